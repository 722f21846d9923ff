package models

import "time"

const (
	EventJobCreated      = "job.created"
	EventJobScanned      = "job.scanned"
	EventJobPrinting     = "job.printing"
	EventJobPaid         = "job.paid"
	EventJobCompleted    = "job.completed"
	EventJobCancelled    = "job.cancelled"
	EventJobExpired      = "job.expired"
	EventPaymentRecorded = "payment.recorded"
)

// JobEvent is published whenever a job changes hands or status.
type JobEvent struct {
	Type      string    `json:"type"`
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type PaymentEvent struct {
	Type      string    `json:"type"`
	PaymentID string    `json:"payment_id"`
	Payment   *Payment  `json:"payment"`
	Timestamp time.Time `json:"timestamp"`
}
