package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"sagechat/internal/types"
)

// mockDBTX implements DBTX with per-call capture and overridable behavior.
type mockDBTX struct {
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	queryFn    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row

	execSQL  []string
	execArgs [][]any
	querySQL []string
	rowSQL   []string
	rowArgs  [][]any
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execSQL = append(m.execSQL, sql)
	m.execArgs = append(m.execArgs, args)
	if m.execFn != nil {
		return m.execFn(ctx, sql, args...)
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (m *mockDBTX) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	m.querySQL = append(m.querySQL, sql)
	if m.queryFn != nil {
		return m.queryFn(ctx, sql, args...)
	}
	return &scheduleRows{}, nil
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.rowSQL = append(m.rowSQL, sql)
	m.rowArgs = append(m.rowArgs, args)
	if m.queryRowFn != nil {
		return m.queryRowFn(ctx, sql, args...)
	}
	return &mockRow{err: pgx.ErrNoRows}
}

// mockRow implements pgx.Row. scanFn receives the scan destinations.
type mockRow struct {
	scanFn func(dest ...any) error
	err    error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return nil
}

// scheduleRows implements pgx.Rows over a fixed slice of schedule rows,
// matching the column order of scheduleColumns.
type scheduleRows struct {
	data    []types.ScheduledMessage
	idx     int
	scanErr error
	errVal  error
}

func (r *scheduleRows) Next() bool {
	r.idx++
	return r.idx <= len(r.data)
}

func (r *scheduleRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx-1]
	*dest[0].(*string) = row.ID
	*dest[1].(*string) = row.UserID
	*dest[2].(*string) = row.AdminID
	*dest[3].(*string) = row.MessageContent
	*dest[4].(*time.Time) = row.ScheduleStartDate
	*dest[5].(*int) = row.MessageCount
	*dest[6].(**time.Time) = row.LastSentAt
	*dest[7].(*time.Time) = row.NextScheduledAt
	*dest[8].(*bool) = row.IsActive
	*dest[9].(*time.Time) = row.CreatedAt
	*dest[10].(*time.Time) = row.UpdatedAt
	return nil
}

func (r *scheduleRows) Close()                                       {}
func (r *scheduleRows) Err() error                                   { return r.errVal }
func (r *scheduleRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *scheduleRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *scheduleRows) Values() ([]any, error)                       { return nil, nil }
func (r *scheduleRows) RawValues() [][]byte                          { return nil }
func (r *scheduleRows) Conn() *pgx.Conn                              { return nil }
