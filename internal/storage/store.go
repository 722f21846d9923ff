package storage

import (
	"context"
	"errors"
	"time"

	"print-gateway/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Repository is row-level CRUD over print_jobs, qr_sessions and payments.
// It carries no business rules; conditional updates report whether they
// applied and leave the decision to the caller.
type Repository interface {
	SaveJob(ctx context.Context, job *models.PrintJob) error
	GetJob(ctx context.Context, id string) (*models.PrintJob, error)
	// LockJob is GetJob that, inside WithinTx, holds the row until commit and
	// always reads the latest committed version.
	LockJob(ctx context.Context, id string) (*models.PrintJob, error)
	// UpdateJobStatus sets status to `to` only if the row is currently `from`.
	UpdateJobStatus(ctx context.Context, id string, from, to models.JobStatus, at time.Time) (bool, error)
	// ListStaleJobs returns created jobs older than cutoff that have neither a
	// session still valid at cutoff nor any redeemed session.
	ListStaleJobs(ctx context.Context, cutoff time.Time, limit int) ([]*models.PrintJob, error)

	SaveSession(ctx context.Context, session *models.QRSession) error
	GetSession(ctx context.Context, qrID string) (*models.QRSession, error)
	// RecordRedemption bumps the redemption counters. With singleUse it only
	// applies when the session has never been redeemed.
	RecordRedemption(ctx context.Context, qrID string, at time.Time, singleUse bool) (bool, error)
	ListSessionsByJob(ctx context.Context, jobID string) ([]*models.QRSession, error)
	DeleteSessionsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)

	SavePayment(ctx context.Context, payment *models.Payment) error
	ListPaymentsByJob(ctx context.Context, jobID string) ([]*models.Payment, error)
}

type Store interface {
	Repository

	// WithinTx runs fn against a transaction-bound Repository. fn's error
	// rolls everything back; nil commits.
	WithinTx(ctx context.Context, fn func(repo Repository) error) error
	Ping(ctx context.Context) error
	Close() error
}
