package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"print-gateway/internal/logger"
	"print-gateway/internal/models"
	"print-gateway/internal/storage"
	"print-gateway/internal/utils"
)

// Clock is the server-side time source every expiry and timestamp is read from.
type Clock func() time.Time

// maxStatusAttempts bounds the compare-and-set loop in SetStatus.
const maxStatusAttempts = 5

type JobService struct {
	repo storage.Repository
	log  *logger.Logger
	now  Clock
}

func NewJobService(repo storage.Repository, log *logger.Logger, now Clock) *JobService {
	if now == nil {
		now = utils.Now
	}
	return &JobService{repo: repo, log: log, now: now}
}

// WithRepository returns a copy bound to repo, typically a transaction.
func (s *JobService) WithRepository(repo storage.Repository) *JobService {
	c := *s
	c.repo = repo
	return &c
}

func (s *JobService) CreateJob(ctx context.Context, userID string, req *models.CreateJobRequest) (*models.PrintJob, error) {
	job, err := buildJob(userID, req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	job.ID = utils.GenerateUUID()
	job.Status = models.JobStatusCreated
	job.CreatedAt = now
	job.UpdatedAt = now

	if err := s.repo.SaveJob(ctx, job); err != nil {
		s.log.Error("JOB", fmt.Sprintf("Failed to save job for user %s: %v", userID, err))
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.log.LogJob("CREATE", job.ID, fmt.Sprintf("Job created for user %s (%d pages x %d copies)", userID, job.TotalPages, job.Copies))
	return job, nil
}

func buildJob(userID string, req *models.CreateJobRequest) (*models.PrintJob, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: request body is required", ErrValidation)
	}

	fileURL := strings.TrimSpace(req.FileURL)
	if fileURL == "" {
		return nil, fmt.Errorf("%w: fileUrl is required", ErrValidation)
	}
	// Any storage scheme is accepted; the printer resolves the reference.
	if _, err := url.Parse(fileURL); err != nil {
		return nil, fmt.Errorf("%w: fileUrl is not a valid URL", ErrValidation)
	}

	job := &models.PrintJob{
		UserID:     userID,
		FileURL:    fileURL,
		TotalPages: 1,
		Copies:     1,
	}
	if req.FileName != nil {
		if name := strings.TrimSpace(*req.FileName); name != "" {
			job.FileName = &name
		}
	}
	if req.TotalPages != nil {
		if *req.TotalPages < 1 {
			return nil, fmt.Errorf("%w: totalPages must be at least 1", ErrValidation)
		}
		job.TotalPages = *req.TotalPages
	}
	if req.Copies != nil {
		if *req.Copies < 1 {
			return nil, fmt.Errorf("%w: copies must be at least 1", ErrValidation)
		}
		job.Copies = *req.Copies
	}
	if req.Color != nil {
		job.Color = *req.Color
	}
	if req.Duplex != nil {
		job.Duplex = *req.Duplex
	}
	printerID := req.PrinterID
	if printerID == nil {
		printerID = req.LegacyPrinterID
	}
	if printerID != nil {
		if id := strings.TrimSpace(*printerID); id != "" {
			job.PrinterID = &id
		}
	}
	return job, nil
}

func (s *JobService) GetJob(ctx context.Context, id string) (*models.PrintJob, error) {
	job, err := s.repo.GetJob(ctx, id)
	return loadJob(id, job, err)
}

// LockJob loads the job and, inside a transaction, keeps other writers off
// it until commit. Status changes and ledger writes take it first so
// concurrent callers queue on the row instead of deadlocking on it.
func (s *JobService) LockJob(ctx context.Context, id string) (*models.PrintJob, error) {
	job, err := s.repo.LockJob(ctx, id)
	return loadJob(id, job, err)
}

func loadJob(id string, job *models.PrintJob, err error) (*models.PrintJob, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return job, nil
}

// SetStatus moves a job forward along the lattice. Setting the current
// status again is a no-op and reports changed=false.
func (s *JobService) SetStatus(ctx context.Context, id string, status models.JobStatus) (*models.PrintJob, bool, error) {
	return s.advance(ctx, id, status, false)
}

// ConfirmStatus is SetStatus that also accepts a job already beyond status
// as confirmation, leaving it untouched.
func (s *JobService) ConfirmStatus(ctx context.Context, id string, status models.JobStatus) (*models.PrintJob, bool, error) {
	return s.advance(ctx, id, status, true)
}

func (s *JobService) advance(ctx context.Context, id string, to models.JobStatus, acceptPassed bool) (*models.PrintJob, bool, error) {
	if !to.Valid() {
		return nil, false, fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}

	for attempt := 0; attempt < maxStatusAttempts; attempt++ {
		job, err := s.LockJob(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if job.Status == to || (acceptPassed && Passed(job.Status, to)) {
			return job, false, nil
		}
		if !CanTransition(job.Status, to) {
			return job, false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, to)
		}

		now := s.now()
		ok, err := s.repo.UpdateJobStatus(ctx, id, job.Status, to, now)
		if err != nil {
			s.log.Error("JOB", fmt.Sprintf("Failed to update job %s to %s: %v", id, to, err))
			return nil, false, fmt.Errorf("failed to update job status: %w", err)
		}
		if ok {
			s.log.LogJob("STATUS", id, fmt.Sprintf("%s -> %s", job.Status, to))
			job.Status = to
			job.UpdatedAt = now
			return job, true, nil
		}
		s.log.Debug("JOB", fmt.Sprintf("Lost status race on job %s (attempt %d), re-reading", id, attempt+1))
	}
	return nil, false, fmt.Errorf("job %s: status did not settle after %d attempts", id, maxStatusAttempts)
}

// ExpireStale moves abandoned created jobs to expired and returns the ones it moved.
func (s *JobService) ExpireStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.PrintJob, error) {
	stale, err := s.repo.ListStaleJobs(ctx, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}

	var expired []*models.PrintJob
	for _, job := range stale {
		now := s.now()
		ok, err := s.repo.UpdateJobStatus(ctx, job.ID, models.JobStatusCreated, models.JobStatusExpired, now)
		if err != nil {
			return expired, fmt.Errorf("failed to expire job %s: %w", job.ID, err)
		}
		if ok {
			job.Status = models.JobStatusExpired
			job.UpdatedAt = now
			expired = append(expired, job)
			s.log.LogJob("EXPIRE", job.ID, "No session was redeemed in time")
		}
	}
	return expired, nil
}
