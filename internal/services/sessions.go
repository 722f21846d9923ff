package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"print-gateway/internal/logger"
	"print-gateway/internal/models"
	"print-gateway/internal/storage"
	"print-gateway/internal/utils"
)

const DefaultSessionTTL = 10 * time.Minute

type SessionService struct {
	repo       storage.Repository
	log        *logger.Logger
	now        Clock
	defaultTTL time.Duration
	singleUse  bool
}

func NewSessionService(repo storage.Repository, log *logger.Logger, now Clock, defaultTTL time.Duration, singleUse bool) *SessionService {
	if now == nil {
		now = utils.Now
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultSessionTTL
	}
	return &SessionService{repo: repo, log: log, now: now, defaultTTL: defaultTTL, singleUse: singleUse}
}

func (s *SessionService) WithRepository(repo storage.Repository) *SessionService {
	c := *s
	c.repo = repo
	return &c
}

func (s *SessionService) SingleUse() bool { return s.singleUse }

// IssueSession mints a new token for jobID valid until now+ttl. A
// non-positive ttl falls back to the configured default.
func (s *SessionService) IssueSession(ctx context.Context, jobID, userID string, ttl time.Duration) (*models.QRSession, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	token, err := utils.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate qr token: %w", err)
	}

	now := s.now()
	session := &models.QRSession{
		QRID:      token,
		JobID:     jobID,
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.repo.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save qr session: %w", err)
	}

	s.log.LogSession("ISSUE", token, fmt.Sprintf("Issued for job %s, expires %s", jobID, session.ExpiresAt.Format(time.RFC3339)))
	return session, nil
}

// RedeemSession validates qrID and returns the job it is bound to.
// Expiry is checked first, so an expired token never yields a job.
func (s *SessionService) RedeemSession(ctx context.Context, qrID string) (string, error) {
	session, err := s.repo.GetSession(ctx, qrID)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.LogSecurity("QR_UNKNOWN", fmt.Sprintf("Unknown token %s presented", logger.TokenPrefix(qrID)))
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load qr session: %w", err)
	}

	now := s.now()
	if session.ExpiredAt(now) {
		s.log.LogSession("EXPIRED", qrID, fmt.Sprintf("Expired at %s", session.ExpiresAt.Format(time.RFC3339)))
		return "", ErrSessionExpired
	}

	ok, err := s.repo.RecordRedemption(ctx, qrID, now, s.singleUse)
	if err != nil {
		return "", fmt.Errorf("failed to record redemption: %w", err)
	}
	if !ok {
		if s.singleUse {
			s.log.LogSecurity("QR_REPLAY", fmt.Sprintf("Token %s already redeemed", logger.TokenPrefix(qrID)))
			return "", ErrSessionRedeemed
		}
		return "", ErrSessionNotFound
	}

	s.log.LogSession("REDEEM", qrID, fmt.Sprintf("Redeemed for job %s", session.JobID))
	return session.JobID, nil
}

func (s *SessionService) ListSessions(ctx context.Context, jobID string) ([]*models.QRSession, error) {
	sessions, err := s.repo.ListSessionsByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// PurgeExpired deletes sessions that expired before cutoff.
func (s *SessionService) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.repo.DeleteSessionsExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return n, nil
}
