// Package types defines the domain model and shared contracts for the
// sagechat scheduled-messaging service. Types here are persistence-agnostic;
// repository implementations live in internal/db.
package types

import "time"

// MessageType categorizes chat messages appended by this service. The chat
// client renders scheduled reminders and activation follow-ups differently
// from ordinary text messages.
type MessageType string

const (
	MessageTypeScheduledReminder  MessageType = "scheduled_reminder"
	MessageTypeActivationFollowUp MessageType = "activation_followup"
)

// DefaultReminderMessage is the message body used when an admin schedules a
// reminder series without supplying custom content.
const DefaultReminderMessage = "You have an appointment tomorrow"

// ScheduledMessage is one reminder series for a user. At most one row with
// IsActive=true exists per UserID; deactivation is terminal and a new series
// requires a new row.
type ScheduledMessage struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	AdminID           string     `json:"admin_id"`
	MessageContent    string     `json:"message_content"`
	ScheduleStartDate time.Time  `json:"schedule_start_date"`
	MessageCount      int        `json:"message_count"`
	LastSentAt        *time.Time `json:"last_sent_at,omitempty"`
	NextScheduledAt   time.Time  `json:"next_scheduled_at"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// SweepResult reports the outcome of one due-message sweep. Processed counts
// rows whose delivery and advancement both succeeded; Total is the number of
// rows the due query returned; Errors holds one entry per failed row.
type SweepResult struct {
	Success   bool     `json:"success"`
	Processed int      `json:"processed"`
	Total     int      `json:"total"`
	Errors    []string `json:"errors,omitempty"`
}

// ScheduleStats is the aggregate view shown on the admin dashboard.
// "Today" windows use local-midnight boundaries.
type ScheduleStats struct {
	Total             int `json:"total"`
	Active            int `json:"active"`
	MessagesSentToday int `json:"messages_sent_today"`
	UpcomingToday     int `json:"upcoming_today"`
}
