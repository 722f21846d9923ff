package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusSuccess   PaymentStatus = "success"
	StatusFailed    PaymentStatus = "failed"
	StatusRefunded  PaymentStatus = "refunded"
	StatusCancelled PaymentStatus = "cancelled"
)

// Known reports whether s is one of the statuses the gateway acts on or
// reports. Other provider statuses are still kept in the ledger.
func (s PaymentStatus) Known() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed, StatusRefunded, StatusCancelled:
		return true
	}
	return false
}

// Payment is one attempt in the append-only payment ledger.
type Payment struct {
	bun.BaseModel `bun:"table:payments,alias:p"`

	ID            string        `json:"id" bun:"id,pk"`
	JobID         string        `json:"job_id" bun:"job_id"`
	UserID        *string       `json:"user_id" bun:"user_id"`
	Method        string        `json:"method" bun:"method"`
	Amount        float64       `json:"amount" bun:"amount"`
	Status        PaymentStatus `json:"status" bun:"status"`
	TransactionID *string       `json:"transaction_id" bun:"transaction_id"`
	CreatedAt     time.Time     `json:"created_at" bun:"created_at"`
}

func (p *Payment) Clone() *Payment {
	c := *p
	if p.UserID != nil {
		v := *p.UserID
		c.UserID = &v
	}
	if p.TransactionID != nil {
		v := *p.TransactionID
		c.TransactionID = &v
	}
	return &c
}
