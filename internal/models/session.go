package models

import (
	"time"

	"github.com/uptrace/bun"
)

// QRSession is a short-lived credential that lets a printer fetch one job.
type QRSession struct {
	bun.BaseModel `bun:"table:qr_sessions,alias:s"`

	QRID        string     `json:"qr_id" bun:"qr_id,pk"`
	JobID       string     `json:"job_id" bun:"job_id"`
	UserID      string     `json:"user_id" bun:"user_id"`
	ExpiresAt   time.Time  `json:"expires_at" bun:"expires_at"`
	RedeemedAt  *time.Time `json:"redeemed_at,omitempty" bun:"redeemed_at"`
	RedeemCount int        `json:"redeem_count" bun:"redeem_count"`
	CreatedAt   time.Time  `json:"created_at" bun:"created_at"`
}

// ExpiredAt reports whether the session is past its validity window at now.
// A session is still valid at exactly ExpiresAt.
func (s *QRSession) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (s *QRSession) Clone() *QRSession {
	c := *s
	if s.RedeemedAt != nil {
		v := *s.RedeemedAt
		c.RedeemedAt = &v
	}
	return &c
}
