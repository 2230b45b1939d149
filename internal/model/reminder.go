package model

import "time"

type ReminderStatus string

const (
	ReminderPending ReminderStatus = "pending"
	ReminderSent    ReminderStatus = "sent"
	ReminderFailed  ReminderStatus = "failed"
)

// ScheduledReminder is the durable record of an aftercare notification that
// should reach a customer at ScheduledFor. It is created by the dispatcher in
// pending state and mutated only by the processor (and the recovery path on
// manual retry).
type ScheduledReminder struct {
	ID           string         `json:"id"`
	StudioID     string         `json:"studioId"`
	CustomerID   string         `json:"customerId"`
	QRCodeID     string         `json:"qrCodeId"`
	Message      string         `json:"message"`
	ScheduledFor time.Time      `json:"scheduledFor"`
	Status       ReminderStatus `json:"status"`
	Attempts     int            `json:"attempts"`
	LastAttempt  *time.Time     `json:"lastAttempt,omitempty"`
	SentAt       *time.Time     `json:"sentAt,omitempty"`
	Error        *string        `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// ReminderJob is the queue payload for a scheduled reminder. The job identity
// equals ReminderID, which is what makes double-scheduling a no-op.
type ReminderJob struct {
	ReminderID string `json:"reminderId"`
	CustomerID string `json:"customerId"`
	Message    string `json:"message"`
}
