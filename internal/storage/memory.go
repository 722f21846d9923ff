package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"print-gateway/internal/models"
)

type memState struct {
	jobs     map[string]*models.PrintJob
	sessions map[string]*models.QRSession
	payments []*models.Payment
}

func (s *memState) clone() *memState {
	c := &memState{
		jobs:     make(map[string]*models.PrintJob, len(s.jobs)),
		sessions: make(map[string]*models.QRSession, len(s.sessions)),
		payments: make([]*models.Payment, 0, len(s.payments)),
	}
	for k, v := range s.jobs {
		c.jobs[k] = v.Clone()
	}
	for k, v := range s.sessions {
		c.sessions[k] = v.Clone()
	}
	for _, p := range s.payments {
		c.payments = append(c.payments, p.Clone())
	}
	return c
}

// InMemoryStore keeps everything in process. One mutex serializes all
// access, and transactions snapshot the state so they can roll back.
type InMemoryStore struct {
	mutex sync.Mutex
	state *memState
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		state: &memState{
			jobs:     make(map[string]*models.PrintJob),
			sessions: make(map[string]*models.QRSession),
		},
	}
}

func (s *InMemoryStore) repo() *memRepo {
	return &memRepo{state: s.state}
}

func (s *InMemoryStore) WithinTx(ctx context.Context, fn func(Repository) error) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	snapshot := s.state.clone()
	if err := fn(s.repo()); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *InMemoryStore) Ping(ctx context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) SaveJob(ctx context.Context, job *models.PrintJob) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.repo().SaveJob(ctx, job)
}

func (s *InMemoryStore) GetJob(ctx context.Context, id string) (*models.PrintJob, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.repo().GetJob(ctx, id)
}

func (s *InMemoryStore) LockJob(ctx context.Context, id string) (*models.PrintJob, error) {
	return s.GetJob(ctx, id)
}

func (s *InMemoryStore) UpdateJobStatus(ctx context.Context, id string, from, to models.JobStatus, at time.Time) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.repo().UpdateJobStatus(ctx, id, from, to, at)
}

func (s *InMemoryStore) ListStaleJobs(ctx context.Context, cutoff time.Time, limit int) ([]*models.PrintJob, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.repo().ListStaleJobs(ctx, cutoff, limit)
}

func (s *InMemoryStore) SaveSession(ctx context.Context, session *models.QRSession) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.repo().SaveSession(ctx, session)
}

func (s *InMemoryStore) GetSession(ctx context.Context, qrID string) (*models.QRSession, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.repo().GetSession(ctx, qrID)
}

func (s *InMemoryStore) RecordRedemption(ctx context.Context, qrID string, at time.Time, singleUse bool) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.repo().RecordRedemption(ctx, qrID, at, singleUse)
}

func (s *InMemoryStore) ListSessionsByJob(ctx context.Context, jobID string) ([]*models.QRSession, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.repo().ListSessionsByJob(ctx, jobID)
}

func (s *InMemoryStore) DeleteSessionsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.repo().DeleteSessionsExpiredBefore(ctx, cutoff)
}

func (s *InMemoryStore) SavePayment(ctx context.Context, payment *models.Payment) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.repo().SavePayment(ctx, payment)
}

func (s *InMemoryStore) ListPaymentsByJob(ctx context.Context, jobID string) ([]*models.Payment, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.repo().ListPaymentsByJob(ctx, jobID)
}

// memRepo does the work; callers hold the store mutex.
type memRepo struct {
	state *memState
}

func (r *memRepo) SaveJob(ctx context.Context, job *models.PrintJob) error {
	if _, exists := r.state.jobs[job.ID]; exists {
		return fmt.Errorf("failed to save job: duplicate id %s", job.ID)
	}
	r.state.jobs[job.ID] = job.Clone()
	return nil
}

func (r *memRepo) GetJob(ctx context.Context, id string) (*models.PrintJob, error) {
	job, exists := r.state.jobs[id]
	if !exists {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

// LockJob needs no row lock: the caller already holds the store mutex.
func (r *memRepo) LockJob(ctx context.Context, id string) (*models.PrintJob, error) {
	return r.GetJob(ctx, id)
}

func (r *memRepo) UpdateJobStatus(ctx context.Context, id string, from, to models.JobStatus, at time.Time) (bool, error) {
	job, exists := r.state.jobs[id]
	if !exists || job.Status != from {
		return false, nil
	}
	job.Status = to
	job.UpdatedAt = at
	return true, nil
}

func (r *memRepo) ListStaleJobs(ctx context.Context, cutoff time.Time, limit int) ([]*models.PrintJob, error) {
	var stale []*models.PrintJob
	for _, job := range r.state.jobs {
		if job.Status != models.JobStatusCreated || !job.CreatedAt.Before(cutoff) {
			continue
		}
		keep := false
		for _, s := range r.state.sessions {
			if s.JobID == job.ID && (s.ExpiresAt.After(cutoff) || s.RedeemedAt != nil) {
				keep = true
				break
			}
		}
		if !keep {
			stale = append(stale, job.Clone())
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (r *memRepo) SaveSession(ctx context.Context, session *models.QRSession) error {
	if _, exists := r.state.sessions[session.QRID]; exists {
		return fmt.Errorf("failed to save session: duplicate qr id")
	}
	if _, exists := r.state.jobs[session.JobID]; !exists {
		return fmt.Errorf("failed to save session: job %s does not exist", session.JobID)
	}
	r.state.sessions[session.QRID] = session.Clone()
	return nil
}

func (r *memRepo) GetSession(ctx context.Context, qrID string) (*models.QRSession, error) {
	session, exists := r.state.sessions[qrID]
	if !exists {
		return nil, ErrNotFound
	}
	return session.Clone(), nil
}

func (r *memRepo) RecordRedemption(ctx context.Context, qrID string, at time.Time, singleUse bool) (bool, error) {
	session, exists := r.state.sessions[qrID]
	if !exists {
		return false, nil
	}
	if singleUse && session.RedeemedAt != nil {
		return false, nil
	}
	if session.RedeemedAt == nil {
		t := at
		session.RedeemedAt = &t
	}
	session.RedeemCount++
	return true, nil
}

func (r *memRepo) ListSessionsByJob(ctx context.Context, jobID string) ([]*models.QRSession, error) {
	var sessions []*models.QRSession
	for _, s := range r.state.sessions {
		if s.JobID == jobID {
			sessions = append(sessions, s.Clone())
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.Before(sessions[j].CreatedAt) })
	return sessions, nil
}

func (r *memRepo) DeleteSessionsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, s := range r.state.sessions {
		if s.ExpiresAt.Before(cutoff) {
			delete(r.state.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) SavePayment(ctx context.Context, payment *models.Payment) error {
	if _, exists := r.state.jobs[payment.JobID]; !exists {
		return fmt.Errorf("failed to save payment: job %s does not exist", payment.JobID)
	}
	r.state.payments = append(r.state.payments, payment.Clone())
	return nil
}

func (r *memRepo) ListPaymentsByJob(ctx context.Context, jobID string) ([]*models.Payment, error) {
	var payments []*models.Payment
	for _, p := range r.state.payments {
		if p.JobID == jobID {
			payments = append(payments, p.Clone())
		}
	}
	return payments, nil
}
