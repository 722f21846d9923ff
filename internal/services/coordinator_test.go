package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"print-gateway/internal/logger"
	"print-gateway/internal/models"
	"print-gateway/internal/storage"
)

func TestCoordinatorCreateJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})

	result, err := f.coord.CreateJob(ctx, "user_1", validRequest())
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCreated, result.Job.Status)
	assert.Equal(t, 2, result.Job.Copies)
	assert.Equal(t, t0.Add(10*time.Minute), result.Session.ExpiresAt)
	assert.Equal(t, "data:image/png;base64,c3R1Yg==", result.QRDataURL)
	assert.Equal(t, []string{result.Session.QRID}, f.encoder.seen, "the QR image carries only the token")

	sessions, err := f.sessions.ListSessions(ctx, result.Job.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, result.Session.QRID, sessions[0].QRID)
	assert.Equal(t, 1, f.publisher.count(models.EventJobCreated))
}

func TestCoordinatorCreateJobRollsBackOnEncodeFailure(t *testing.T) {
	ctx := context.Background()
	encoder := &stubEncoder{err: errors.New("encoder down")}
	f := newFixture(t, fixtureOptions{encoder: encoder})

	_, err := f.coord.CreateJob(ctx, "user_1", validRequest())
	require.Error(t, err)

	require.Len(t, encoder.seen, 1)
	_, err = f.store.GetSession(ctx, encoder.seen[0])
	assert.Error(t, err, "session must not survive the rollback")

	stale, err := f.store.ListStaleJobs(ctx, t0.Add(1000*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale, "job must not survive the rollback")
	assert.Zero(t, f.publisher.count(models.EventJobCreated))
}

func TestCoordinatorCreateJobValidation(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	_, err := f.coord.CreateJob(context.Background(), "user_1", &models.CreateJobRequest{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCoordinatorScanToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	result, err := f.coord.CreateJob(ctx, "user_1", validRequest())
	require.NoError(t, err)

	job, err := f.coord.ScanToken(ctx, result.Session.QRID)
	require.NoError(t, err)
	assert.Equal(t, result.Job.ID, job.ID)
	assert.Equal(t, "https://x/a.pdf", job.FileURL)
	assert.Equal(t, 1, f.publisher.count(models.EventJobScanned))

	_, err = f.coord.ScanToken(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.coord.ScanToken(ctx, "unknown")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCoordinatorScanExpiredToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	result, err := f.coord.CreateJob(ctx, "user_1", validRequest())
	require.NoError(t, err)

	_, err = f.coord.ScanToken(ctx, result.Session.QRID)
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	job, err := f.coord.ScanToken(ctx, result.Session.QRID)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Nil(t, job)
}

func TestCoordinatorScanRequiresPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{requirePayment: true, singleUse: true})
	result, err := f.coord.CreateJob(ctx, "user_1", validRequest())
	require.NoError(t, err)

	_, err = f.coord.ScanToken(ctx, result.Session.QRID)
	assert.ErrorIs(t, err, ErrPaymentRequired)

	_, err = f.coord.HandlePaymentCallback(ctx, PaymentCallbackInput{JobID: result.Job.ID, Status: models.StatusSuccess})
	require.NoError(t, err)

	// the refused scan did not use up the single-use token
	job, err := f.coord.ScanToken(ctx, result.Session.QRID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPaid, job.Status)

	_, err = f.coord.ScanToken(ctx, result.Session.QRID)
	assert.ErrorIs(t, err, ErrSessionRedeemed)
}

func TestCoordinatorScanCancelledJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	result, err := f.coord.CreateJob(ctx, "user_1", validRequest())
	require.NoError(t, err)
	_, err = f.coord.CancelJob(ctx, "user_1", result.Job.ID)
	require.NoError(t, err)

	_, err = f.coord.ScanToken(ctx, result.Session.QRID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCoordinatorCompleteJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	result, err := f.coord.CreateJob(ctx, "user_1", validRequest())
	require.NoError(t, err)

	job, changed, err := f.coord.CompleteJob(ctx, result.Job.ID, models.JobStatusPrinting)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.JobStatusPrinting, job.Status)

	job, changed, err = f.coord.CompleteJob(ctx, result.Job.ID, "")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.JobStatusDone, job.Status)

	_, changed, err = f.coord.CompleteJob(ctx, result.Job.ID, models.JobStatusDone)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, f.publisher.count(models.EventJobCompleted))
	assert.Equal(t, 1, f.publisher.count(models.EventJobPrinting))

	_, _, err = f.coord.CompleteJob(ctx, result.Job.ID, models.JobStatusFailed)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, _, err = f.coord.CompleteJob(ctx, result.Job.ID, models.JobStatusPaid)
	assert.ErrorIs(t, err, ErrValidation)
	_, _, err = f.coord.CompleteJob(ctx, "", "")
	assert.ErrorIs(t, err, ErrValidation)
	_, _, err = f.coord.CompleteJob(ctx, "missing", "")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestCoordinatorCompleteRequiresPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{requirePayment: true})
	result, err := f.coord.CreateJob(ctx, "user_1", validRequest())
	require.NoError(t, err)

	_, _, err = f.coord.CompleteJob(ctx, result.Job.ID, models.JobStatusDone)
	assert.ErrorIs(t, err, ErrPaymentRequired)

	job, err := f.jobs.GetJob(ctx, result.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCreated, job.Status)

	_, err = f.coord.HandlePaymentCallback(ctx, PaymentCallbackInput{JobID: result.Job.ID, Status: models.StatusSuccess})
	require.NoError(t, err)
	job, changed, err := f.coord.CompleteJob(ctx, result.Job.ID, models.JobStatusDone)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.JobStatusDone, job.Status)
}

func TestCoordinatorPaymentWebhookTwice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	result, err := f.coord.CreateJob(ctx, "user_1", validRequest())
	require.NoError(t, err)

	in := PaymentCallbackInput{
		JobID:  result.Job.ID,
		Status: models.StatusSuccess,
		Amount: floatPtr(0.2),
		Method: "card",
	}
	first, err := f.coord.HandlePaymentCallback(ctx, in)
	require.NoError(t, err)
	assert.True(t, first.Promoted)

	second, err := f.coord.HandlePaymentCallback(ctx, in)
	require.NoError(t, err)
	assert.False(t, second.Promoted)

	job, err := f.jobs.GetJob(ctx, result.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPaid, job.Status)

	payments, err := f.payments.ListPayments(ctx, result.Job.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
	assert.Equal(t, 1, f.publisher.count(models.EventJobPaid))
	assert.Equal(t, 2, f.publisher.count(models.EventPaymentRecorded), "no transaction id means no dedupe")
}

func TestCoordinatorPaymentWebhookConcurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	result, err := f.coord.CreateJob(ctx, "user_1", validRequest())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	promotions := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.coord.HandlePaymentCallback(ctx, PaymentCallbackInput{JobID: result.Job.ID, Status: models.StatusSuccess})
			if assert.NoError(t, err) && res.Promoted {
				mu.Lock()
				promotions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, promotions)
	payments, err := f.payments.ListPayments(ctx, result.Job.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 10)
}

func TestCoordinatorPaymentWebhookUnknownJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})

	_, err := f.coord.HandlePaymentCallback(ctx, PaymentCallbackInput{JobID: "missing", Status: models.StatusSuccess})
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = f.coord.HandlePaymentCallback(ctx, PaymentCallbackInput{Status: models.StatusSuccess})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, f.publisher.count(models.EventPaymentRecorded))
}

func TestCoordinatorPaymentWebhookCancelledJobKeepsLedgerRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	result, err := f.coord.CreateJob(ctx, "user_1", validRequest())
	require.NoError(t, err)
	_, err = f.coord.CancelJob(ctx, "user_1", result.Job.ID)
	require.NoError(t, err)

	res, err := f.coord.HandlePaymentCallback(ctx, PaymentCallbackInput{JobID: result.Job.ID, Status: models.StatusSuccess})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	require.NotNil(t, res)
	assert.False(t, res.Promoted)

	payments, err := f.payments.ListPayments(ctx, result.Job.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestCoordinatorPaymentEventDedupedByTransaction(t *testing.T) {
	ctx := context.Background()
	guard := new(MockGuard)
	guard.On("ClaimTransaction", mock.Anything, "txn_1:success").Return(true, nil).Once()
	guard.On("ClaimTransaction", mock.Anything, "txn_1:success").Return(false, nil)

	f := newFixture(t, fixtureOptions{guard: guard})
	result, err := f.coord.CreateJob(ctx, "user_1", validRequest())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.coord.HandlePaymentCallback(ctx, PaymentCallbackInput{
			JobID:         result.Job.ID,
			Status:        models.StatusSuccess,
			TransactionID: strPtr("txn_1"),
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 1, f.publisher.count(models.EventPaymentRecorded))
	guard.AssertNumberOfCalls(t, "ClaimTransaction", 3)
}

func TestCoordinatorFailedThenSuccessOnSameTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{guard: &memGuard{}})
	result, err := f.coord.CreateJob(ctx, "user_1", validRequest())
	require.NoError(t, err)

	for _, status := range []models.PaymentStatus{models.StatusFailed, models.StatusSuccess, models.StatusSuccess} {
		_, err := f.coord.HandlePaymentCallback(ctx, PaymentCallbackInput{
			JobID:         result.Job.ID,
			Status:        status,
			TransactionID: strPtr("pi_retry"),
		})
		require.NoError(t, err)
	}

	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	require.Len(t, f.publisher.payments, 2)
	assert.Equal(t, models.StatusFailed, f.publisher.payments[0].Payment.Status)
	assert.Equal(t, models.StatusSuccess, f.publisher.payments[1].Payment.Status)
}

func TestCoordinatorPaymentWebhookConcurrentOnSQLStore(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := newFixture(t, fixtureOptions{store: store})
	result, err := f.coord.CreateJob(ctx, "user_1", validRequest())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	promotions := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.coord.HandlePaymentCallback(ctx, PaymentCallbackInput{
				JobID:         result.Job.ID,
				Status:        models.StatusSuccess,
				TransactionID: strPtr(fmt.Sprintf("txn_%d", i)),
			})
			if assert.NoError(t, err) && res.Promoted {
				mu.Lock()
				promotions++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, promotions)
	job, err := f.jobs.GetJob(ctx, result.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPaid, job.Status)

	payments, err := f.payments.ListPayments(ctx, result.Job.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 8)
	for _, p := range payments {
		assert.True(t, strings.HasPrefix(p.ID, "pay_"))
	}
}

func TestCoordinatorOwnerOperations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	result, err := f.coord.CreateJob(ctx, "user_1", validRequest())
	require.NoError(t, err)

	_, err = f.coord.GetJobForOwner(ctx, "user_2", result.Job.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, _, err = f.coord.ReissueSession(ctx, "user_2", result.Job.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.coord.CancelJob(ctx, "user_2", result.Job.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.coord.GetJobForOwner(ctx, "user_1", "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	session, dataURL, err := f.coord.ReissueSession(ctx, "user_1", result.Job.ID)
	require.NoError(t, err)
	assert.NotEqual(t, result.Session.QRID, session.QRID)
	assert.NotEmpty(t, dataURL)

	details, err := f.coord.GetJobForOwner(ctx, "user_1", result.Job.ID)
	require.NoError(t, err)
	assert.Len(t, details.Sessions, 2)
	assert.Empty(t, details.Payments)

	job, err := f.coord.CancelJob(ctx, "user_1", result.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, job.Status)
	assert.Equal(t, 1, f.publisher.count(models.EventJobCancelled))

	_, _, err = f.coord.ReissueSession(ctx, "user_1", result.Job.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCoordinatorCheckout(t *testing.T) {
	ctx := context.Background()
	provider := new(MockProvider)
	f := newFixture(t, fixtureOptions{provider: provider})
	result, err := f.coord.CreateJob(ctx, "user_1", &models.CreateJobRequest{
		FileURL:    "https://x/a.pdf",
		TotalPages: intPtr(3),
		Copies:     intPtr(4),
	})
	require.NoError(t, err)

	provider.On("CreatePaymentIntent", mock.Anything, PaymentIntentInput{
		JobID:    result.Job.ID,
		UserID:   "user_1",
		Amount:   1.2,
		Currency: "usd",
	}).Return(&PaymentIntentResult{ID: "pi_123", ClientSecret: "pi_123_secret", Amount: 1.2, Currency: "usd"}, nil).Once()

	resp, err := f.coord.Checkout(ctx, "user_1", result.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_123_secret", resp.ClientSecret)
	assert.Equal(t, models.StatusPending, resp.Payment.Status)
	assert.Equal(t, "stripe", resp.Payment.Method)
	require.NotNil(t, resp.Payment.TransactionID)
	assert.Equal(t, "pi_123", *resp.Payment.TransactionID)
	provider.AssertExpectations(t)

	_, err = f.coord.Checkout(ctx, "user_2", result.Job.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCoordinatorCheckoutWithoutProvider(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	_, err := f.coord.Checkout(context.Background(), "user_1", "job")
	assert.ErrorIs(t, err, ErrStripeDisabled)
}

func TestPricingQuote(t *testing.T) {
	p := Pricing{MonoPagePrice: 0.10, ColorPagePrice: 0.50}
	assert.InDelta(t, 1.2, p.Quote(&models.PrintJob{TotalPages: 3, Copies: 4}), 0.0001)
	assert.InDelta(t, 3.0, p.Quote(&models.PrintJob{TotalPages: 3, Copies: 2, Color: true}), 0.0001)
}
