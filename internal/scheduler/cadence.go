package scheduler

import "time"

// Cadence day offsets. The first three reminders go out weekly (offsets 0, 7,
// 14 days from the series start); every reminder after that follows at 15-day
// intervals (offsets 21, 36, 51, ...).
const (
	earlyIntervalDays = 7
	lateIntervalDays  = 15
	earlyPhaseCount   = 3
	earlyPhaseDays    = earlyPhaseCount * earlyIntervalDays // 21
)

// day is a fixed 24-hour duration. Cadence math operates on absolute
// instants, never calendar dates, so the result is timezone-stable.
const day = 24 * time.Hour

// NextMessageDate returns the due instant of the next reminder, given the
// series start and the number of messages already sent.
//
//	sent = 0, 1, 2  ->  start + 0d, 7d, 14d
//	sent = 3, 4, 5  ->  start + 21d, 36d, 51d
//
// The function is pure and monotonically increasing in sent.
func NextMessageDate(start time.Time, sent int) time.Time {
	if sent < earlyPhaseCount {
		return start.Add(time.Duration(sent) * earlyIntervalDays * day)
	}
	return start.Add(earlyPhaseDays*day + time.Duration(sent-earlyPhaseCount)*lateIntervalDays*day)
}
