package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"sagechat/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockStore implements ScheduleStore with overridable behavior per method.
type mockStore struct {
	getActiveFn     func(ctx context.Context, userID string) (*types.ScheduledMessage, error)
	createFn        func(ctx context.Context, m *types.ScheduledMessage) error
	advanceFn       func(ctx context.Context, id string, expectedCount int, sentAt, nextAt time.Time) (bool, error)
	deactivateFn    func(ctx context.Context, userID string) error
	updateContentFn func(ctx context.Context, userID, content string) (bool, error)
	listDueFn       func(ctx context.Context, now time.Time) ([]types.ScheduledMessage, error)
	listActiveFn    func(ctx context.Context) ([]types.ScheduledMessage, error)
	countAllFn      func(ctx context.Context) (int, error)
	countActiveFn   func(ctx context.Context) (int, error)
	countSentFn     func(ctx context.Context, start, end time.Time) (int, error)
	countUpcomingFn func(ctx context.Context, start, end time.Time) (int, error)

	// captured arguments for inspection
	createdRow      *types.ScheduledMessage
	advanceCalls    []advanceCall
	advanceCallsMu  sync.Mutex
}

type advanceCall struct {
	id            string
	expectedCount int
	sentAt        time.Time
	nextAt        time.Time
}

func (m *mockStore) GetActiveByUser(ctx context.Context, userID string) (*types.ScheduledMessage, error) {
	if m.getActiveFn != nil {
		return m.getActiveFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockStore) Create(ctx context.Context, row *types.ScheduledMessage) error {
	m.createdRow = row
	if m.createFn != nil {
		return m.createFn(ctx, row)
	}
	if row.ID == "" {
		row.ID = "sched-1"
	}
	return nil
}

func (m *mockStore) Advance(ctx context.Context, id string, expectedCount int, sentAt, nextAt time.Time) (bool, error) {
	m.advanceCallsMu.Lock()
	m.advanceCalls = append(m.advanceCalls, advanceCall{id, expectedCount, sentAt, nextAt})
	m.advanceCallsMu.Unlock()
	if m.advanceFn != nil {
		return m.advanceFn(ctx, id, expectedCount, sentAt, nextAt)
	}
	return true, nil
}

func (m *mockStore) Deactivate(ctx context.Context, userID string) error {
	if m.deactivateFn != nil {
		return m.deactivateFn(ctx, userID)
	}
	return nil
}

func (m *mockStore) UpdateContent(ctx context.Context, userID, content string) (bool, error) {
	if m.updateContentFn != nil {
		return m.updateContentFn(ctx, userID, content)
	}
	return true, nil
}

func (m *mockStore) ListDue(ctx context.Context, now time.Time) ([]types.ScheduledMessage, error) {
	if m.listDueFn != nil {
		return m.listDueFn(ctx, now)
	}
	return nil, nil
}

func (m *mockStore) ListActive(ctx context.Context) ([]types.ScheduledMessage, error) {
	if m.listActiveFn != nil {
		return m.listActiveFn(ctx)
	}
	return nil, nil
}

func (m *mockStore) CountAll(ctx context.Context) (int, error) {
	if m.countAllFn != nil {
		return m.countAllFn(ctx)
	}
	return 0, nil
}

func (m *mockStore) CountActive(ctx context.Context) (int, error) {
	if m.countActiveFn != nil {
		return m.countActiveFn(ctx)
	}
	return 0, nil
}

func (m *mockStore) CountSentBetween(ctx context.Context, start, end time.Time) (int, error) {
	if m.countSentFn != nil {
		return m.countSentFn(ctx, start, end)
	}
	return 0, nil
}

func (m *mockStore) CountUpcomingBetween(ctx context.Context, start, end time.Time) (int, error) {
	if m.countUpcomingFn != nil {
		return m.countUpcomingFn(ctx, start, end)
	}
	return 0, nil
}

// mockDeliverer records deliveries and fails for users in failFor.
type mockDeliverer struct {
	mu         sync.Mutex
	deliveries []delivery
	failFor    map[string]error
}

type delivery struct {
	senderID    string
	recipientID string
	content     string
	messageType types.MessageType
}

func (m *mockDeliverer) Deliver(ctx context.Context, senderID, recipientID, content string, messageType types.MessageType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failFor[recipientID]; ok {
		return err
	}
	m.deliveries = append(m.deliveries, delivery{senderID, recipientID, content, messageType})
	return nil
}

func newTestScheduler(store ScheduleStore, del Deliverer, now time.Time) *Scheduler {
	return New(Config{
		Store:     store,
		Deliverer: del,
		Logger:    testLogger(),
		Now:       func() time.Time { return now },
	})
}

func appErrCode(t *testing.T, err error) types.ErrorCode {
	t.Helper()
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	return appErr.Code
}

func TestCreateScheduleConflict(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	store := &mockStore{
		getActiveFn: func(ctx context.Context, userID string) (*types.ScheduledMessage, error) {
			return &types.ScheduledMessage{ID: "existing", UserID: userID, IsActive: true}, nil
		},
	}
	s := newTestScheduler(store, &mockDeliverer{}, now)

	_, err := s.CreateSchedule(context.Background(), "user-1", "admin-1", "")
	if err == nil {
		t.Fatal("expected conflict error for user with active series")
	}
	if code := appErrCode(t, err); code != types.ErrCodeConflictScheduleActive {
		t.Errorf("error code = %s, want %s", code, types.ErrCodeConflictScheduleActive)
	}
	if store.createdRow != nil {
		t.Error("Create must not be called on conflict")
	}
}

func TestCreateScheduleSendsImmediately(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	store := &mockStore{}
	del := &mockDeliverer{}
	s := newTestScheduler(store, del, now)

	id, err := s.CreateSchedule(context.Background(), "user-1", "admin-1", "")
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty schedule ID")
	}

	row := store.createdRow
	if row == nil {
		t.Fatal("Create was not called")
	}
	if row.MessageContent != types.DefaultReminderMessage {
		t.Errorf("content = %q, want default message", row.MessageContent)
	}
	if !row.NextScheduledAt.Equal(now) {
		t.Errorf("row must be inserted due-now, got next_scheduled_at=%v", row.NextScheduledAt)
	}
	if row.MessageCount != 0 || !row.IsActive {
		t.Errorf("new row must be active with count 0, got count=%d active=%v", row.MessageCount, row.IsActive)
	}

	if len(del.deliveries) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(del.deliveries))
	}
	d := del.deliveries[0]
	if d.senderID != "admin-1" || d.recipientID != "user-1" {
		t.Errorf("delivery routed %s -> %s, want admin-1 -> user-1", d.senderID, d.recipientID)
	}
	if d.messageType != types.MessageTypeScheduledReminder {
		t.Errorf("message type = %s, want %s", d.messageType, types.MessageTypeScheduledReminder)
	}

	if len(store.advanceCalls) != 1 {
		t.Fatalf("advance calls = %d, want 1", len(store.advanceCalls))
	}
	adv := store.advanceCalls[0]
	if adv.expectedCount != 0 {
		t.Errorf("advance expectedCount = %d, want 0", adv.expectedCount)
	}
	wantNext := now.Add(7 * 24 * time.Hour)
	if !adv.nextAt.Equal(wantNext) {
		t.Errorf("next due after first send = %v, want %v", adv.nextAt, wantNext)
	}
}

func TestCreateScheduleCustomMessage(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	store := &mockStore{}
	del := &mockDeliverer{}
	s := newTestScheduler(store, del, now)

	if _, err := s.CreateSchedule(context.Background(), "user-1", "admin-1", "Custom reminder"); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if store.createdRow.MessageContent != "Custom reminder" {
		t.Errorf("content = %q, want custom message", store.createdRow.MessageContent)
	}
	if del.deliveries[0].content != "Custom reminder" {
		t.Errorf("delivered content = %q, want custom message", del.deliveries[0].content)
	}
}

func TestCreateScheduleFirstDeliveryFailure(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	store := &mockStore{}
	del := &mockDeliverer{failFor: map[string]error{
		"user-1": errors.New("chat unavailable"),
	}}
	s := newTestScheduler(store, del, now)

	id, err := s.CreateSchedule(context.Background(), "user-1", "admin-1", "")
	if err != nil {
		t.Fatalf("first-delivery failure must not fail creation: %v", err)
	}
	if id == "" {
		t.Fatal("expected schedule ID despite delivery failure")
	}
	if len(store.advanceCalls) != 0 {
		t.Error("row must not advance when the first delivery failed")
	}
}

func TestUpdateContentNotFound(t *testing.T) {
	store := &mockStore{
		updateContentFn: func(ctx context.Context, userID, content string) (bool, error) {
			return false, nil
		},
	}
	s := newTestScheduler(store, &mockDeliverer{}, time.Now())

	err := s.UpdateContent(context.Background(), "user-1", "new text")
	if code := appErrCode(t, err); code != types.ErrCodeNotFoundSchedule {
		t.Errorf("error code = %s, want %s", code, types.ErrCodeNotFoundSchedule)
	}
}

func TestDeactivatePropagatesStoreError(t *testing.T) {
	dbErr := types.NewAppError(types.ErrCodeInternalDB, "boom", nil)
	store := &mockStore{
		deactivateFn: func(ctx context.Context, userID string) error { return dbErr },
	}
	s := newTestScheduler(store, &mockDeliverer{}, time.Now())

	if err := s.Deactivate(context.Background(), "user-1"); !errors.Is(err, dbErr) {
		t.Errorf("expected store error to propagate, got %v", err)
	}
}

func TestStatsAggregatesWithTodayWindow(t *testing.T) {
	now := time.Date(2026, 4, 15, 17, 45, 0, 0, time.UTC)
	var gotStart, gotEnd time.Time
	var mu sync.Mutex

	store := &mockStore{
		countAllFn:    func(ctx context.Context) (int, error) { return 12, nil },
		countActiveFn: func(ctx context.Context) (int, error) { return 7, nil },
		countSentFn: func(ctx context.Context, start, end time.Time) (int, error) {
			mu.Lock()
			gotStart, gotEnd = start, end
			mu.Unlock()
			return 3, nil
		},
		countUpcomingFn: func(ctx context.Context, start, end time.Time) (int, error) { return 2, nil },
	}
	s := newTestScheduler(store, &mockDeliverer{}, now)

	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := types.ScheduleStats{Total: 12, Active: 7, MessagesSentToday: 3, UpcomingToday: 2}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}

	wantStart := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	if !gotStart.Equal(wantStart) {
		t.Errorf("window start = %v, want midnight %v", gotStart, wantStart)
	}
	if !gotEnd.After(now) || gotEnd.After(wantStart.Add(24*time.Hour)) {
		t.Errorf("window end = %v, want end of day", gotEnd)
	}
}

func TestStatsPropagatesCountError(t *testing.T) {
	store := &mockStore{
		countActiveFn: func(ctx context.Context) (int, error) {
			return 0, types.NewAppError(types.ErrCodeInternalDB, "boom", nil)
		},
	}
	s := newTestScheduler(store, &mockDeliverer{}, time.Now())

	if _, err := s.Stats(context.Background()); err == nil {
		t.Fatal("expected error when a count fails")
	}
}

func dueRow(id, userID string, start time.Time, count int) types.ScheduledMessage {
	return types.ScheduledMessage{
		ID:                id,
		UserID:            userID,
		AdminID:           "admin-1",
		MessageContent:    "hello",
		ScheduleStartDate: start,
		MessageCount:      count,
		NextScheduledAt:   NextMessageDate(start, count),
		IsActive:          true,
	}
}

func TestProcessDueMessagesEmpty(t *testing.T) {
	s := newTestScheduler(&mockStore{}, &mockDeliverer{}, time.Now())

	result, err := s.ProcessDueMessages(context.Background())
	if err != nil {
		t.Fatalf("ProcessDueMessages: %v", err)
	}
	if !result.Success || result.Processed != 0 || result.Total != 0 || len(result.Errors) != 0 {
		t.Errorf("empty sweep result = %+v, want success with zero counts", result)
	}
}

func TestProcessDueMessagesQueryFailure(t *testing.T) {
	store := &mockStore{
		listDueFn: func(ctx context.Context, now time.Time) ([]types.ScheduledMessage, error) {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "boom", nil)
		},
	}
	s := newTestScheduler(store, &mockDeliverer{}, time.Now())

	result, err := s.ProcessDueMessages(context.Background())
	if err == nil {
		t.Fatal("expected error when the due query fails")
	}
	if result.Success {
		t.Error("result.Success must be false when the sweep aborts")
	}
}

func TestProcessDueMessagesPartialFailure(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start.Add(8 * 24 * time.Hour)

	store := &mockStore{
		listDueFn: func(ctx context.Context, _ time.Time) ([]types.ScheduledMessage, error) {
			return []types.ScheduledMessage{
				dueRow("s1", "user-1", start, 1),
				dueRow("s2", "user-2", start, 1),
				dueRow("s3", "user-3", start, 1),
			}, nil
		},
	}
	del := &mockDeliverer{failFor: map[string]error{
		"user-2": errors.New("no chat membership"),
	}}
	s := newTestScheduler(store, del, now)

	result, err := s.ProcessDueMessages(context.Background())
	if err != nil {
		t.Fatalf("partial failure must not abort the sweep: %v", err)
	}
	if !result.Success {
		t.Error("result.Success must stay true on partial failure")
	}
	if result.Processed != 2 || result.Total != 3 {
		t.Errorf("processed/total = %d/%d, want 2/3", result.Processed, result.Total)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "user-2") {
		t.Errorf("errors = %v, want one entry naming user-2", result.Errors)
	}
	if len(store.advanceCalls) != 2 {
		t.Errorf("advance calls = %d, want 2 (failed row must not advance)", len(store.advanceCalls))
	}
}

func TestProcessDueMessagesSkipsConcurrentlyClaimedRow(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start.Add(8 * 24 * time.Hour)

	store := &mockStore{
		listDueFn: func(ctx context.Context, _ time.Time) ([]types.ScheduledMessage, error) {
			return []types.ScheduledMessage{
				dueRow("s1", "user-1", start, 1),
				dueRow("s2", "user-2", start, 1),
			}, nil
		},
		advanceFn: func(ctx context.Context, id string, expectedCount int, sentAt, nextAt time.Time) (bool, error) {
			// s2 was advanced by another sweep between our read and write.
			return id != "s2", nil
		},
	}
	s := newTestScheduler(store, &mockDeliverer{}, now)

	result, err := s.ProcessDueMessages(context.Background())
	if err != nil {
		t.Fatalf("ProcessDueMessages: %v", err)
	}
	if result.Processed != 1 {
		t.Errorf("processed = %d, want 1 (claimed row is not ours)", result.Processed)
	}
	if len(result.Errors) != 0 {
		t.Errorf("a concurrently claimed row is not an error, got %v", result.Errors)
	}
}

func TestProcessDueMessagesAdvancesCadence(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start.Add(22 * 24 * time.Hour)

	store := &mockStore{
		listDueFn: func(ctx context.Context, _ time.Time) ([]types.ScheduledMessage, error) {
			return []types.ScheduledMessage{dueRow("s1", "user-1", start, 3)}, nil
		},
	}
	s := newTestScheduler(store, &mockDeliverer{}, now)

	if _, err := s.ProcessDueMessages(context.Background()); err != nil {
		t.Fatalf("ProcessDueMessages: %v", err)
	}

	adv := store.advanceCalls[0]
	if adv.expectedCount != 3 {
		t.Errorf("advance expectedCount = %d, want the row's current count 3", adv.expectedCount)
	}
	wantNext := start.Add(36 * 24 * time.Hour)
	if !adv.nextAt.Equal(wantNext) {
		t.Errorf("next due = %v, want %v (15-day interval)", adv.nextAt, wantNext)
	}
}

// memStore is a minimal in-memory ScheduleStore for the lifecycle test.
type memStore struct {
	mu   sync.Mutex
	rows map[string]*types.ScheduledMessage
	seq  int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]*types.ScheduledMessage)}
}

func (m *memStore) GetActiveByUser(_ context.Context, userID string) (*types.ScheduledMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.UserID == userID && r.IsActive {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) Create(_ context.Context, row *types.ScheduledMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	row.ID = fmt.Sprintf("sched-%d", m.seq)
	cp := *row
	m.rows[row.ID] = &cp
	return nil
}

func (m *memStore) Advance(_ context.Context, id string, expectedCount int, sentAt, nextAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || !r.IsActive || r.MessageCount != expectedCount {
		return false, nil
	}
	r.MessageCount = expectedCount + 1
	sent := sentAt
	r.LastSentAt = &sent
	r.NextScheduledAt = nextAt
	return true, nil
}

func (m *memStore) Deactivate(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.UserID == userID && r.IsActive {
			r.IsActive = false
		}
	}
	return nil
}

func (m *memStore) UpdateContent(_ context.Context, userID, content string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.UserID == userID && r.IsActive {
			r.MessageContent = content
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListDue(_ context.Context, now time.Time) ([]types.ScheduledMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []types.ScheduledMessage
	for _, r := range m.rows {
		if r.IsActive && !r.NextScheduledAt.After(now) {
			due = append(due, *r)
		}
	}
	return due, nil
}

func (m *memStore) ListActive(_ context.Context) ([]types.ScheduledMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active []types.ScheduledMessage
	for _, r := range m.rows {
		if r.IsActive {
			active = append(active, *r)
		}
	}
	return active, nil
}

func (m *memStore) CountAll(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

func (m *memStore) CountActive(_ context.Context) (int, error) {
	rows, _ := m.ListActive(context.Background())
	return len(rows), nil
}

func (m *memStore) CountSentBetween(_ context.Context, start, end time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.LastSentAt != nil && !r.LastSentAt.Before(start) && !r.LastSentAt.After(end) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountUpcomingBetween(_ context.Context, start, end time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.IsActive && !r.NextScheduledAt.Before(start) && !r.NextScheduledAt.After(end) {
			n++
		}
	}
	return n, nil
}

// Exercises the full series lifecycle against a moving clock: creation sends
// immediately, sweeps deliver at day 7 and 14, the fourth message lands at
// day 21, and a sweep between due dates delivers nothing.
func TestScheduleLifecycle(t *testing.T) {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := start
	store := newMemStore()
	del := &mockDeliverer{}
	s := New(Config{
		Store:     store,
		Deliverer: del,
		Logger:    testLogger(),
		Now:       func() time.Time { return clock },
	})
	ctx := context.Background()

	if _, err := s.CreateSchedule(ctx, "user-1", "admin-1", ""); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if len(del.deliveries) != 1 {
		t.Fatalf("deliveries after creation = %d, want 1", len(del.deliveries))
	}

	// Between due dates nothing is delivered.
	clock = start.Add(3 * 24 * time.Hour)
	result, err := s.ProcessDueMessages(ctx)
	if err != nil {
		t.Fatalf("sweep at day 3: %v", err)
	}
	if result.Total != 0 {
		t.Errorf("sweep at day 3 found %d due rows, want 0", result.Total)
	}

	for i, offsetDays := range []int{7, 14, 21} {
		clock = start.Add(time.Duration(offsetDays) * 24 * time.Hour)
		result, err := s.ProcessDueMessages(ctx)
		if err != nil {
			t.Fatalf("sweep at day %d: %v", offsetDays, err)
		}
		if result.Processed != 1 {
			t.Fatalf("sweep at day %d processed %d, want 1", offsetDays, result.Processed)
		}
		if got := len(del.deliveries); got != i+2 {
			t.Fatalf("deliveries after day %d = %d, want %d", offsetDays, got, i+2)
		}

		// Re-running the same sweep with no time elapsed is a no-op.
		again, err := s.ProcessDueMessages(ctx)
		if err != nil {
			t.Fatalf("repeat sweep at day %d: %v", offsetDays, err)
		}
		if again.Processed != 0 {
			t.Errorf("repeat sweep at day %d processed %d, want 0", offsetDays, again.Processed)
		}
	}

	row, err := s.ActiveScheduleFor(ctx, "user-1")
	if err != nil {
		t.Fatalf("ActiveScheduleFor: %v", err)
	}
	if row.MessageCount != 4 {
		t.Errorf("message count after four sends = %d, want 4", row.MessageCount)
	}
	wantNext := start.Add(36 * 24 * time.Hour)
	if !row.NextScheduledAt.Equal(wantNext) {
		t.Errorf("next due = %v, want %v", row.NextScheduledAt, wantNext)
	}

	if err := s.Deactivate(ctx, "user-1"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	clock = start.Add(40 * 24 * time.Hour)
	result, err = s.ProcessDueMessages(ctx)
	if err != nil {
		t.Fatalf("sweep after deactivation: %v", err)
	}
	if result.Total != 0 {
		t.Errorf("deactivated series still due: %+v", result)
	}
}
