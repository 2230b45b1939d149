package model

import "time"

type FailedJobStatus string

const (
	FailedJobFailed   FailedJobStatus = "failed"
	FailedJobRetrying FailedJobStatus = "retrying"
	FailedJobResolved FailedJobStatus = "resolved"
)

// JobTypeReminder is the only job type the recovery path knows how to retry.
const JobTypeReminder = "reminder"

// FailedJob is the durable artifact of a work item that exhausted all retries.
// Operators list, retry, and delete these through the admin surface.
type FailedJob struct {
	ID         string          `json:"id"`
	JobType    string          `json:"jobType"`
	JobData    []byte          `json:"jobData"`
	ReminderID *string         `json:"reminderId,omitempty"`
	Error      string          `json:"error"`
	StackTrace string          `json:"stackTrace,omitempty"`
	Attempts   int             `json:"attempts"`
	FailedAt   time.Time       `json:"failedAt"`
	Status     FailedJobStatus `json:"status"`
	RetriedAt  *time.Time      `json:"retriedAt,omitempty"`
}
