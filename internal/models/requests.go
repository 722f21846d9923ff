package models

import "time"

// CreateJobRequest is the body a signed-in user posts to submit a job.
// Optional fields are pointers so an explicit zero can be told apart from
// an absent value.
type CreateJobRequest struct {
	FileURL    string  `json:"fileUrl"`
	FileName   *string `json:"fileName"`
	TotalPages *int    `json:"totalPages"`
	Color      *bool   `json:"color"`
	Duplex     *bool   `json:"duplex"`
	Copies     *int    `json:"copies"`
	PrinterID  *string `json:"printerId"`
	// LegacyPrinterID is the snake_case spelling older clients send.
	LegacyPrinterID *string `json:"printer_id"`
}

type ScanRequest struct {
	QRID string `json:"qr_id" binding:"required"`
}

type CompleteRequest struct {
	JobID  string    `json:"job_id" binding:"required"`
	Status JobStatus `json:"status"`
}

// PaymentWebhookRequest is the provider-neutral payment callback body.
type PaymentWebhookRequest struct {
	JobID         string        `json:"job_id" binding:"required"`
	Status        PaymentStatus `json:"status"`
	TransactionID *string       `json:"transaction_id"`
	Amount        *float64      `json:"amount"`
	Method        string        `json:"method"`
	UserID        *string       `json:"user_id"`
}

type QRResponse struct {
	QRID      string    `json:"qr_id"`
	ExpiresAt time.Time `json:"expires_at"`
	QRDataURL string    `json:"qr_data_url"`
}
