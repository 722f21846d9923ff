package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"print-gateway/internal/logger"
	"print-gateway/internal/models"
	"print-gateway/internal/storage"
)

type EventPublisher interface {
	PublishJobEvent(event *models.JobEvent) error
	PublishPaymentEvent(event *models.PaymentEvent) error
}

type QREncoder interface {
	EncodeDataURL(content string) (string, error)
}

// DeliveryGuard claims a provider transaction id so side effects keyed on
// it fire once across webhook retries.
type DeliveryGuard interface {
	ClaimTransaction(ctx context.Context, transactionID string) (bool, error)
}

type PaymentProvider interface {
	CreatePaymentIntent(ctx context.Context, in PaymentIntentInput) (*PaymentIntentResult, error)
}

// Pricing quotes a job in major currency units per printed side.
type Pricing struct {
	MonoPagePrice  float64
	ColorPagePrice float64
	Currency       string
}

func (p Pricing) Quote(job *models.PrintJob) float64 {
	per := p.MonoPagePrice
	if job.Color {
		per = p.ColorPagePrice
	}
	return float64(toCents(per*float64(job.PrintedSides()))) / 100.0
}

type CoordinatorConfig struct {
	SessionTTL                time.Duration
	RequirePaymentBeforePrint bool
	Pricing                   Pricing
}

// Collaborators are the optional outer dependencies of a Coordinator.
// Nil members switch the matching feature off.
type Collaborators struct {
	Publisher EventPublisher
	Guard     DeliveryGuard
	Provider  PaymentProvider
}

type CreateJobResult struct {
	Job       *models.PrintJob
	Session   *models.QRSession
	QRDataURL string
}

type JobDetails struct {
	Job      *models.PrintJob    `json:"job"`
	Payments []*models.Payment   `json:"payments"`
	Sessions []*models.QRSession `json:"sessions"`
}

type PaymentCallbackInput struct {
	JobID         string
	Status        models.PaymentStatus
	TransactionID *string
	Amount        *float64
	Method        string
	UserID        *string
}

type PaymentCallbackResult struct {
	Payment  *models.Payment
	Promoted bool
}

// Coordinator binds users, printer devices and payment providers to the
// job, session and payment services. It owns every authorization decision.
type Coordinator struct {
	store    storage.Store
	jobs     *JobService
	sessions *SessionService
	payments *PaymentService
	encoder  QREncoder
	collab   Collaborators
	cfg      CoordinatorConfig
	log      *logger.Logger
	now      Clock
}

func NewCoordinator(store storage.Store, jobs *JobService, sessions *SessionService, payments *PaymentService,
	encoder QREncoder, collab Collaborators, cfg CoordinatorConfig, log *logger.Logger) *Coordinator {
	return &Coordinator{
		store:    store,
		jobs:     jobs,
		sessions: sessions,
		payments: payments,
		encoder:  encoder,
		collab:   collab,
		cfg:      cfg,
		log:      log,
		now:      jobs.now,
	}
}

// CreateJob stores a job together with its first session and QR image.
// Nothing is persisted unless all three succeed.
func (c *Coordinator) CreateJob(ctx context.Context, userID string, req *models.CreateJobRequest) (*CreateJobResult, error) {
	var result *CreateJobResult
	err := c.store.WithinTx(ctx, func(repo storage.Repository) error {
		job, err := c.jobs.WithRepository(repo).CreateJob(ctx, userID, req)
		if err != nil {
			return err
		}
		session, dataURL, err := c.issue(ctx, repo, job)
		if err != nil {
			return err
		}
		result = &CreateJobResult{Job: job, Session: session, QRDataURL: dataURL}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.publishJob(models.EventJobCreated, result.Job)
	return result, nil
}

func (c *Coordinator) issue(ctx context.Context, repo storage.Repository, job *models.PrintJob) (*models.QRSession, string, error) {
	session, err := c.sessions.WithRepository(repo).IssueSession(ctx, job.ID, job.UserID, c.cfg.SessionTTL)
	if err != nil {
		return nil, "", err
	}
	dataURL, err := c.encoder.EncodeDataURL(session.QRID)
	if err != nil {
		c.log.Error("QR", fmt.Sprintf("Failed to render QR for job %s: %v", job.ID, err))
		return nil, "", fmt.Errorf("failed to render qr image: %w", err)
	}
	return session, dataURL, nil
}

// ScanToken redeems a printer-presented token and returns the job it
// unlocks. A rejected scan leaves the redemption unrecorded.
func (c *Coordinator) ScanToken(ctx context.Context, qrID string) (*models.PrintJob, error) {
	if qrID == "" {
		return nil, fmt.Errorf("%w: qr_id is required", ErrValidation)
	}

	var job *models.PrintJob
	err := c.store.WithinTx(ctx, func(repo storage.Repository) error {
		jobID, err := c.sessions.WithRepository(repo).RedeemSession(ctx, qrID)
		if err != nil {
			return err
		}
		job, err = c.jobs.WithRepository(repo).GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		switch {
		case job.Status == models.JobStatusCancelled || job.Status == models.JobStatusExpired:
			return fmt.Errorf("%w: job is %s", ErrInvalidTransition, job.Status)
		case c.cfg.RequirePaymentBeforePrint && !Passed(job.Status, models.JobStatusPaid):
			return ErrPaymentRequired
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.publishJob(models.EventJobScanned, job)
	return job, nil
}

// CompleteJob records a printer's progress report. An empty status means done.
func (c *Coordinator) CompleteJob(ctx context.Context, jobID string, status models.JobStatus) (*models.PrintJob, bool, error) {
	if jobID == "" {
		return nil, false, fmt.Errorf("%w: job_id is required", ErrValidation)
	}
	if status == "" {
		status = models.JobStatusDone
	}
	switch status {
	case models.JobStatusPrinting, models.JobStatusDone, models.JobStatusFailed:
	default:
		return nil, false, fmt.Errorf("%w: printers may only report printing, done or failed", ErrValidation)
	}

	var job *models.PrintJob
	var changed bool
	err := c.store.WithinTx(ctx, func(repo storage.Repository) error {
		jobs := c.jobs.WithRepository(repo)
		current, err := jobs.LockJob(ctx, jobID)
		if err != nil {
			return err
		}
		if c.cfg.RequirePaymentBeforePrint && !Passed(current.Status, models.JobStatusPaid) {
			return ErrPaymentRequired
		}
		job, changed, err = jobs.SetStatus(ctx, jobID, status)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		event := models.EventJobCompleted
		if status == models.JobStatusPrinting {
			event = models.EventJobPrinting
		}
		c.publishJob(event, job)
	}
	return job, changed, nil
}

// HandlePaymentCallback appends the attempt to the ledger and reconciles the
// job. The ledger row is kept even when the job can no longer become paid.
func (c *Coordinator) HandlePaymentCallback(ctx context.Context, in PaymentCallbackInput) (*PaymentCallbackResult, error) {
	if in.JobID == "" {
		return nil, fmt.Errorf("%w: job_id is required", ErrValidation)
	}
	amount := 0.0
	if in.Amount != nil {
		amount = *in.Amount
	}

	result := &PaymentCallbackResult{}
	var job *models.PrintJob
	var reconcileErr error
	err := c.store.WithinTx(ctx, func(repo storage.Repository) error {
		payments := c.payments.WithRepository(repo)
		var err error
		if job, err = payments.jobs.LockJob(ctx, in.JobID); err != nil {
			return err
		}

		payment, err := payments.RecordPayment(ctx, RecordPaymentInput{
			JobID:         in.JobID,
			Method:        in.Method,
			Amount:        amount,
			Status:        in.Status,
			TransactionID: in.TransactionID,
			UserID:        in.UserID,
		})
		if err != nil {
			return err
		}
		result.Payment = payment

		result.Promoted, err = payments.Reconcile(ctx, in.JobID, payment.Status)
		if errors.Is(err, ErrInvalidTransition) {
			reconcileErr = err
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	c.publishPayment(ctx, result.Payment)
	if reconcileErr != nil {
		c.log.Warn("PAYMENT", fmt.Sprintf("Payment %s recorded but job %s cannot be paid: %v", result.Payment.ID, in.JobID, reconcileErr))
		return result, reconcileErr
	}
	if result.Promoted {
		job.Status = models.JobStatusPaid
		c.publishJob(models.EventJobPaid, job)
	}
	return result, nil
}

func (c *Coordinator) GetJobForOwner(ctx context.Context, userID, jobID string) (*JobDetails, error) {
	job, err := c.loadOwned(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	payments, err := c.payments.ListPayments(ctx, jobID)
	if err != nil {
		return nil, err
	}
	sessions, err := c.sessions.ListSessions(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &JobDetails{Job: job, Payments: payments, Sessions: sessions}, nil
}

// ReissueSession gives the owner a fresh token for a job that can still be printed.
func (c *Coordinator) ReissueSession(ctx context.Context, userID, jobID string) (*models.QRSession, string, error) {
	job, err := c.loadOwned(ctx, userID, jobID)
	if err != nil {
		return nil, "", err
	}
	if job.Status != models.JobStatusCreated && job.Status != models.JobStatusPaid {
		return nil, "", fmt.Errorf("%w: job is %s", ErrInvalidTransition, job.Status)
	}

	var session *models.QRSession
	var dataURL string
	err = c.store.WithinTx(ctx, func(repo storage.Repository) error {
		session, dataURL, err = c.issue(ctx, repo, job)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return session, dataURL, nil
}

func (c *Coordinator) CancelJob(ctx context.Context, userID, jobID string) (*models.PrintJob, error) {
	if _, err := c.loadOwned(ctx, userID, jobID); err != nil {
		return nil, err
	}
	job, changed, err := c.jobs.SetStatus(ctx, jobID, models.JobStatusCancelled)
	if err != nil {
		return nil, err
	}
	if changed {
		c.publishJob(models.EventJobCancelled, job)
	}
	return job, nil
}

// Checkout opens a provider payment for an unpaid job and records it as pending.
func (c *Coordinator) Checkout(ctx context.Context, userID, jobID string) (*models.CheckoutResponse, error) {
	if c.collab.Provider == nil {
		return nil, ErrStripeDisabled
	}
	job, err := c.loadOwned(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusCreated {
		return nil, fmt.Errorf("%w: job is %s", ErrInvalidTransition, job.Status)
	}

	amount := c.cfg.Pricing.Quote(job)
	intent, err := c.collab.Provider.CreatePaymentIntent(ctx, PaymentIntentInput{
		JobID:    job.ID,
		UserID:   userID,
		Amount:   amount,
		Currency: c.cfg.Pricing.Currency,
	})
	if err != nil {
		return nil, err
	}

	payment, err := c.payments.RecordPayment(ctx, RecordPaymentInput{
		JobID:         job.ID,
		Method:        "stripe",
		Amount:        intent.Amount,
		Status:        models.StatusPending,
		TransactionID: &intent.ID,
		UserID:        &userID,
	})
	if err != nil {
		return nil, err
	}

	return &models.CheckoutResponse{
		JobID:           job.ID,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		Payment:         payment,
	}, nil
}

func (c *Coordinator) loadOwned(ctx context.Context, userID, jobID string) (*models.PrintJob, error) {
	job, err := c.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		c.log.LogSecurity("JOB_ACCESS", fmt.Sprintf("User %s denied access to job %s", userID, jobID))
		return nil, ErrForbidden
	}
	return job, nil
}

func (c *Coordinator) publishJob(eventType string, job *models.PrintJob) {
	if c.collab.Publisher == nil {
		return
	}
	event := &models.JobEvent{
		Type:      eventType,
		JobID:     job.ID,
		Status:    job.Status,
		UserID:    job.UserID,
		Timestamp: c.now(),
	}
	if err := c.collab.Publisher.PublishJobEvent(event); err != nil {
		c.log.Error("KAFKA", fmt.Sprintf("Failed to publish %s for job %s: %v", eventType, job.ID, err))
	}
}

// publishPayment announces a ledger row, once per transaction id and status
// when a guard is configured. A failed attempt and the later success of the
// same provider transaction are separate announcements.
func (c *Coordinator) publishPayment(ctx context.Context, payment *models.Payment) {
	if c.collab.Publisher == nil {
		return
	}
	if c.collab.Guard != nil && payment.TransactionID != nil {
		key := deliveryKey(*payment.TransactionID, payment.Status)
		claimed, err := c.collab.Guard.ClaimTransaction(ctx, key)
		switch {
		case err != nil:
			c.log.Warn("REDIS", fmt.Sprintf("Delivery claim failed for %s, publishing anyway: %v", key, err))
		case !claimed:
			c.log.LogPayment("DUPLICATE", payment.ID, fmt.Sprintf("Transaction %s already announced as %s", *payment.TransactionID, payment.Status))
			return
		}
	}

	event := &models.PaymentEvent{
		Type:      models.EventPaymentRecorded,
		PaymentID: payment.ID,
		Payment:   payment,
		Timestamp: c.now(),
	}
	if err := c.collab.Publisher.PublishPaymentEvent(event); err != nil {
		c.log.Error("KAFKA", fmt.Sprintf("Failed to publish payment %s: %v", payment.ID, err))
	}
}

func deliveryKey(transactionID string, status models.PaymentStatus) string {
	return transactionID + ":" + string(status)
}
