package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"print-gateway/internal/logger"
	"print-gateway/internal/models"
)

// dialect captures what differs between the SQL engines we run on.
type dialect struct {
	name   string
	schema []string
	bun    schema.Dialect
	// lockRows is false for SQLite, which has no SELECT ... FOR UPDATE and
	// serializes writers on its single connection instead.
	lockRows bool
}

// sqlStore is the shared bun gateway behind the MySQL, Postgres and SQLite
// stores.
type sqlStore struct {
	*sqlRepo
	db *bun.DB
}

func newSQLStore(sqldb *sql.DB, d dialect, log *logger.Logger) *sqlStore {
	db := bun.NewDB(sqldb, d.bun)
	return &sqlStore{
		sqlRepo: &sqlRepo{db: db, d: d, log: log},
		db:      db,
	}
}

func (s *sqlStore) initTables(ctx context.Context) error {
	s.log.LogDatabase("MIGRATE", s.d.name, "Creating print_jobs, qr_sessions and payments tables if not exists")
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	s.log.LogDatabase("SUCCESS", s.d.name, "Tables ready")
	return nil
}

func (s *sqlStore) WithinTx(ctx context.Context, fn func(Repository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&sqlRepo{db: tx, d: s.d, log: s.log}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error("DATABASE", fmt.Sprintf("Rollback failed: %v", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	s.log.LogDatabase("CLOSE", s.d.name, "Closing database connection")
	return s.db.Close()
}

type sqlRepo struct {
	db  bun.IDB
	d   dialect
	log *logger.Logger
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

func (r *sqlRepo) SaveJob(ctx context.Context, job *models.PrintJob) error {
	r.log.LogDatabase("INSERT", r.d.name, fmt.Sprintf("Saving job %s", job.ID))

	if _, err := r.db.NewInsert().Model(job).Exec(ctx); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (r *sqlRepo) GetJob(ctx context.Context, id string) (*models.PrintJob, error) {
	return r.getJob(ctx, id, false)
}

func (r *sqlRepo) LockJob(ctx context.Context, id string) (*models.PrintJob, error) {
	return r.getJob(ctx, id, r.d.lockRows)
}

func (r *sqlRepo) getJob(ctx context.Context, id string, forUpdate bool) (*models.PrintJob, error) {
	job := new(models.PrintJob)
	q := r.db.NewSelect().Model(job).Where("j.id = ?", id)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (r *sqlRepo) UpdateJobStatus(ctx context.Context, id string, from, to models.JobStatus, at time.Time) (bool, error) {
	r.log.LogDatabase("UPDATE", r.d.name, fmt.Sprintf("Job %s %s -> %s", id, from, to))

	res, err := r.db.NewUpdate().
		Model((*models.PrintJob)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to update job status: %w", err)
	}
	return affectedOne(res)
}

func (r *sqlRepo) ListStaleJobs(ctx context.Context, cutoff time.Time, limit int) ([]*models.PrintJob, error) {
	live := r.db.NewSelect().
		TableExpr("qr_sessions AS s").
		ColumnExpr("1").
		Where("s.job_id = j.id").
		Where("s.expires_at > ? OR s.redeemed_at IS NOT NULL", cutoff)

	var jobs []*models.PrintJob
	err := r.db.NewSelect().
		Model(&jobs).
		Where("j.status = ?", string(models.JobStatusCreated)).
		Where("j.created_at < ?", cutoff).
		Where("NOT EXISTS (?)", live).
		OrderExpr("j.created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	return jobs, nil
}

func (r *sqlRepo) SaveSession(ctx context.Context, session *models.QRSession) error {
	r.log.LogDatabase("INSERT", r.d.name, fmt.Sprintf("Saving qr session for job %s", session.JobID))

	if _, err := r.db.NewInsert().Model(session).Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *sqlRepo) GetSession(ctx context.Context, qrID string) (*models.QRSession, error) {
	session := new(models.QRSession)
	if err := r.db.NewSelect().Model(session).Where("s.qr_id = ?", qrID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (r *sqlRepo) RecordRedemption(ctx context.Context, qrID string, at time.Time, singleUse bool) (bool, error) {
	q := r.db.NewUpdate().
		Model((*models.QRSession)(nil)).
		Set("redeem_count = redeem_count + 1").
		Where("qr_id = ?", qrID)
	if singleUse {
		q = q.Set("redeemed_at = ?", at).Where("redeemed_at IS NULL")
	} else {
		q = q.Set("redeemed_at = COALESCE(redeemed_at, ?)", at)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to record redemption: %w", err)
	}
	return affectedOne(res)
}

func (r *sqlRepo) ListSessionsByJob(ctx context.Context, jobID string) ([]*models.QRSession, error) {
	var sessions []*models.QRSession
	err := r.db.NewSelect().
		Model(&sessions).
		Where("s.job_id = ?", jobID).
		OrderExpr("s.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (r *sqlRepo) DeleteSessionsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*models.QRSession)(nil)).
		Where("expires_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func (r *sqlRepo) SavePayment(ctx context.Context, payment *models.Payment) error {
	r.log.LogDatabase("INSERT", r.d.name, fmt.Sprintf("Saving payment %s for job %s", payment.ID, payment.JobID))

	if _, err := r.db.NewInsert().Model(payment).Exec(ctx); err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

func (r *sqlRepo) ListPaymentsByJob(ctx context.Context, jobID string) ([]*models.Payment, error) {
	var payments []*models.Payment
	err := r.db.NewSelect().
		Model(&payments).
		Where("p.job_id = ?", jobID).
		OrderExpr("p.created_at ASC, p.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}
