package services

import (
	"context"
	"fmt"
	"strings"

	"print-gateway/internal/logger"
	"print-gateway/internal/models"
	"print-gateway/internal/storage"
	"print-gateway/internal/utils"
)

const defaultPaymentMethod = "unknown"

// maxLedgerLabel bounds provider-supplied method and status strings to the
// ledger's column width.
const maxLedgerLabel = 64

type RecordPaymentInput struct {
	JobID         string
	Method        string
	Amount        float64
	Status        models.PaymentStatus
	TransactionID *string
	UserID        *string
}

// PaymentService keeps the append-only payment ledger and applies
// payment outcomes to jobs.
type PaymentService struct {
	repo storage.Repository
	jobs *JobService
	log  *logger.Logger
	now  Clock
}

func NewPaymentService(repo storage.Repository, jobs *JobService, log *logger.Logger, now Clock) *PaymentService {
	if now == nil {
		now = utils.Now
	}
	return &PaymentService{repo: repo, jobs: jobs, log: log, now: now}
}

func (s *PaymentService) WithRepository(repo storage.Repository) *PaymentService {
	c := *s
	c.repo = repo
	c.jobs = s.jobs.WithRepository(repo)
	return &c
}

// RecordPayment always inserts a new ledger row, whatever its status.
func (s *PaymentService) RecordPayment(ctx context.Context, in RecordPaymentInput) (*models.Payment, error) {
	if in.JobID == "" {
		return nil, fmt.Errorf("%w: job_id is required", ErrValidation)
	}
	if in.Amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	// Statuses outside the known set are stored as sent; only success
	// ever moves a job.
	status := models.PaymentStatus(strings.ToLower(strings.TrimSpace(string(in.Status))))
	if status == "" {
		status = models.StatusPending
	}
	method := strings.TrimSpace(in.Method)
	if method == "" {
		method = defaultPaymentMethod
	}
	if len(status) > maxLedgerLabel || len(method) > maxLedgerLabel {
		return nil, fmt.Errorf("%w: status and method must be at most %d characters", ErrValidation, maxLedgerLabel)
	}

	payment := &models.Payment{
		ID:            utils.GeneratePaymentID(),
		JobID:         in.JobID,
		UserID:        nonEmpty(in.UserID),
		Method:        method,
		Amount:        in.Amount,
		Status:        status,
		TransactionID: nonEmpty(in.TransactionID),
		CreatedAt:     s.now(),
	}
	if err := s.repo.SavePayment(ctx, payment); err != nil {
		s.log.Error("PAYMENT", fmt.Sprintf("Failed to save payment for job %s: %v", in.JobID, err))
		return nil, fmt.Errorf("failed to save payment: %w", err)
	}

	s.log.LogPayment("RECORD", payment.ID, fmt.Sprintf("job=%s status=%s amount=%.2f method=%s", payment.JobID, payment.Status, payment.Amount, payment.Method))
	return payment, nil
}

// Reconcile promotes the job to paid on a success. Calling it again, or
// after the job has moved past paid, confirms without side effects;
// promoted is true only for the call that actually moved the job.
func (s *PaymentService) Reconcile(ctx context.Context, jobID string, status models.PaymentStatus) (bool, error) {
	if status != models.StatusSuccess {
		if !status.Known() {
			s.log.Warn("PAYMENT", fmt.Sprintf("Unrecognized payment status %q for job %s recorded as-is", status, jobID))
		}
		s.log.LogPayment("RECONCILE", jobID, fmt.Sprintf("Status %s leaves job untouched", status))
		return false, nil
	}

	job, promoted, err := s.jobs.ConfirmStatus(ctx, jobID, models.JobStatusPaid)
	if err != nil {
		return false, err
	}
	if promoted {
		s.log.LogPayment("RECONCILE", jobID, "Job promoted to paid")
	} else {
		s.log.LogPayment("RECONCILE", jobID, fmt.Sprintf("Already %s, confirmation only", job.Status))
	}
	return promoted, nil
}

func (s *PaymentService) ListPayments(ctx context.Context, jobID string) ([]*models.Payment, error) {
	payments, err := s.repo.ListPaymentsByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

func nonEmpty(p *string) *string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}
