package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"print-gateway/internal/models"
)

func TestCreateJobDefaults(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	job, err := f.jobs.CreateJob(context.Background(), "user_1", &models.CreateJobRequest{
		FileURL:  "https://files.example.com/a.pdf",
		FileName: strPtr("  "),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobStatusCreated, job.Status)
	assert.Equal(t, 1, job.TotalPages)
	assert.Equal(t, 1, job.Copies)
	assert.False(t, job.Color)
	assert.False(t, job.Duplex)
	assert.Nil(t, job.FileName)
	assert.Nil(t, job.PrinterID)
	assert.Equal(t, t0, job.CreatedAt)
}

func TestCreateJobValidation(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		req    *models.CreateJobRequest
	}{
		{"no user", "", validRequest()},
		{"nil body", "user_1", nil},
		{"missing fileUrl", "user_1", &models.CreateJobRequest{}},
		{"blank fileUrl", "user_1", &models.CreateJobRequest{FileURL: "   "}},
		{"unparseable fileUrl", "user_1", &models.CreateJobRequest{FileURL: "http://[::1/a.pdf"}},
		{"bad escape in fileUrl", "user_1", &models.CreateJobRequest{FileURL: "https://x/%zz.pdf"}},
		{"zero copies", "user_1", &models.CreateJobRequest{FileURL: "https://x/a.pdf", Copies: intPtr(0)}},
		{"negative pages", "user_1", &models.CreateJobRequest{FileURL: "https://x/a.pdf", TotalPages: intPtr(-1)}},
	}

	f := newFixture(t, fixtureOptions{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.jobs.CreateJob(context.Background(), tt.userID, tt.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCreateJobAcceptsAnyStorageReference(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	for _, ref := range []string{
		"azure://container/blob.pdf",
		"minio://storage.local:9000/bucket/a.pdf",
		"ftp://files.example.com/a.pdf",
		"uploads/2024/a.pdf",
	} {
		job, err := f.jobs.CreateJob(context.Background(), "user_1", &models.CreateJobRequest{FileURL: ref})
		require.NoError(t, err, ref)
		assert.Equal(t, ref, job.FileURL)
	}
}

func TestCreateJobKeepsOptionalFields(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	job, err := f.jobs.CreateJob(context.Background(), "user_1", &models.CreateJobRequest{
		FileURL:    "s3://bucket/key.pdf",
		FileName:   strPtr("report.pdf"),
		TotalPages: intPtr(12),
		Color:      boolPtr(true),
		Duplex:     boolPtr(true),
		Copies:     intPtr(3),
		PrinterID:  strPtr("lobby-1"),
	})
	require.NoError(t, err)

	stored, err := f.jobs.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", *stored.FileName)
	assert.Equal(t, "lobby-1", *stored.PrinterID)
	assert.Equal(t, 36, stored.PrintedSides())
	assert.True(t, stored.Color)
	assert.True(t, stored.Duplex)
}

func TestGetJobNotFound(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	_, err := f.jobs.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	job, err := f.jobs.CreateJob(ctx, "user_1", validRequest())
	require.NoError(t, err)

	_, _, err = f.jobs.SetStatus(ctx, job.ID, "shredded")
	assert.ErrorIs(t, err, ErrValidation)

	f.clock.Advance(1)
	updated, changed, err := f.jobs.SetStatus(ctx, job.ID, models.JobStatusPaid)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.JobStatusPaid, updated.Status)
	assert.True(t, updated.UpdatedAt.After(job.UpdatedAt))

	_, changed, err = f.jobs.SetStatus(ctx, job.ID, models.JobStatusPaid)
	require.NoError(t, err)
	assert.False(t, changed, "same status is a no-op")

	_, _, err = f.jobs.SetStatus(ctx, job.ID, models.JobStatusCreated)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, _, err = f.jobs.SetStatus(ctx, job.ID, models.JobStatusCancelled)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, _, err = f.jobs.SetStatus(ctx, "missing", models.JobStatusPaid)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestConfirmStatusAcceptsLaterStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	job, err := f.jobs.CreateJob(ctx, "user_1", validRequest())
	require.NoError(t, err)
	_, _, err = f.jobs.SetStatus(ctx, job.ID, models.JobStatusDone)
	require.NoError(t, err)

	got, changed, err := f.jobs.ConfirmStatus(ctx, job.ID, models.JobStatusPaid)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, models.JobStatusDone, got.Status)

	_, _, err = f.jobs.SetStatus(ctx, job.ID, models.JobStatusPaid)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSetStatusConcurrentCallersConverge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOptions{})
	job, err := f.jobs.CreateJob(ctx, "user_1", validRequest())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	changedCount := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, changed, err := f.jobs.SetStatus(ctx, job.ID, models.JobStatusPaid)
			assert.NoError(t, err)
			if changed {
				mu.Lock()
				changedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, changedCount)
	got, err := f.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPaid, got.Status)
}
