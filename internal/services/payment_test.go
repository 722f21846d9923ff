package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"print-gateway/internal/models"
)

func TestRecordPaymentDefaults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	job := createJob(t, f)

	payment, err := f.payments.RecordPayment(ctx, RecordPaymentInput{JobID: job.ID, TransactionID: strPtr(" ")})
	require.NoError(t, err)
	assert.Equal(t, "unknown", payment.Method)
	assert.Equal(t, models.StatusPending, payment.Status)
	assert.Zero(t, payment.Amount)
	assert.Nil(t, payment.TransactionID)
	assert.Nil(t, payment.UserID)
	assert.Equal(t, t0, payment.CreatedAt)
}

func TestRecordPaymentValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	job := createJob(t, f)

	_, err := f.payments.RecordPayment(ctx, RecordPaymentInput{})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.payments.RecordPayment(ctx, RecordPaymentInput{JobID: job.ID, Amount: -1})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.payments.RecordPayment(ctx, RecordPaymentInput{JobID: job.ID, Status: models.PaymentStatus(strings.Repeat("x", 65))})
	assert.ErrorIs(t, err, ErrValidation)

	payments, err := f.payments.ListPayments(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestRecordPaymentKeepsUnrecognizedStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	job := createJob(t, f)

	for _, status := range []models.PaymentStatus{"completed", " Refund_Pending "} {
		payment, err := f.payments.RecordPayment(ctx, RecordPaymentInput{JobID: job.ID, Status: status, Amount: 2})
		require.NoError(t, err)
		assert.False(t, payment.Status.Known())

		promoted, err := f.payments.Reconcile(ctx, job.ID, payment.Status)
		require.NoError(t, err)
		assert.False(t, promoted)
	}

	payments, err := f.payments.ListPayments(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, models.PaymentStatus("completed"), payments[0].Status)
	assert.Equal(t, models.PaymentStatus("refund_pending"), payments[1].Status)

	got, err := f.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCreated, got.Status)
}

func TestReconcileTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	job := createJob(t, f)

	for i, wantPromoted := range []bool{true, false} {
		_, err := f.payments.RecordPayment(ctx, RecordPaymentInput{JobID: job.ID, Status: models.StatusSuccess, Amount: 1})
		require.NoError(t, err)
		promoted, err := f.payments.Reconcile(ctx, job.ID, models.StatusSuccess)
		require.NoError(t, err, "call %d", i)
		assert.Equal(t, wantPromoted, promoted)
	}

	got, err := f.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPaid, got.Status)

	payments, err := f.payments.ListPayments(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestReconcileIgnoresNonSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	job := createJob(t, f)

	for _, status := range []models.PaymentStatus{models.StatusPending, models.StatusFailed, models.StatusRefunded} {
		promoted, err := f.payments.Reconcile(ctx, job.ID, status)
		require.NoError(t, err)
		assert.False(t, promoted)
	}
	got, err := f.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCreated, got.Status)
}

func TestReconcileAfterPrintingIsConfirmation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	job := createJob(t, f)
	_, _, err := f.jobs.SetStatus(ctx, job.ID, models.JobStatusPrinting)
	require.NoError(t, err)

	promoted, err := f.payments.Reconcile(ctx, job.ID, models.StatusSuccess)
	require.NoError(t, err)
	assert.False(t, promoted)

	got, err := f.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPrinting, got.Status)
}

func TestReconcileCancelledJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	job := createJob(t, f)
	_, _, err := f.jobs.SetStatus(ctx, job.ID, models.JobStatusCancelled)
	require.NoError(t, err)

	_, err = f.payments.Reconcile(ctx, job.ID, models.StatusSuccess)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
