package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"print-gateway/internal/logger"
	"print-gateway/internal/models"
	"print-gateway/internal/storage"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingPublisher keeps every event it is handed.
type recordingPublisher struct {
	mu       sync.Mutex
	jobs     []*models.JobEvent
	payments []*models.PaymentEvent
}

func (p *recordingPublisher) PublishJobEvent(event *models.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, event)
	return nil
}

func (p *recordingPublisher) PublishPaymentEvent(event *models.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments = append(p.payments, event)
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.jobs {
		if e.Type == eventType {
			n++
		}
	}
	if eventType == models.EventPaymentRecorded {
		n += len(p.payments)
	}
	return n
}

type stubEncoder struct {
	err  error
	seen []string
}

func (e *stubEncoder) EncodeDataURL(content string) (string, error) {
	e.seen = append(e.seen, content)
	if e.err != nil {
		return "", e.err
	}
	return "data:image/png;base64,c3R1Yg==", nil
}

// MockGuard implements DeliveryGuard for testing
type MockGuard struct {
	mock.Mock
}

func (m *MockGuard) ClaimTransaction(ctx context.Context, transactionID string) (bool, error) {
	args := m.Called(ctx, transactionID)
	return args.Bool(0), args.Error(1)
}

// memGuard is a DeliveryGuard backed by a set, claiming each key once.
type memGuard struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func (g *memGuard) ClaimTransaction(ctx context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.claimed == nil {
		g.claimed = make(map[string]bool)
	}
	if g.claimed[key] {
		return false, nil
	}
	g.claimed[key] = true
	return true, nil
}

// MockProvider implements PaymentProvider for testing
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) CreatePaymentIntent(ctx context.Context, in PaymentIntentInput) (*PaymentIntentResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PaymentIntentResult), args.Error(1)
}

type fixtureOptions struct {
	singleUse      bool
	requirePayment bool
	encoder        *stubEncoder
	guard          DeliveryGuard
	provider       PaymentProvider
	store          storage.Store
}

type fixture struct {
	store     storage.Store
	clock     *fakeClock
	jobs      *JobService
	sessions  *SessionService
	payments  *PaymentService
	coord     *Coordinator
	publisher *recordingPublisher
	encoder   *stubEncoder
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	var store storage.Store = storage.NewInMemoryStore()
	if opts.store != nil {
		store = opts.store
	}
	clock := newFakeClock()
	log := logger.Discard()

	jobs := NewJobService(store, log, clock.Now)
	sessions := NewSessionService(store, log, clock.Now, 10*time.Minute, opts.singleUse)
	payments := NewPaymentService(store, jobs, log, clock.Now)
	publisher := &recordingPublisher{}
	encoder := opts.encoder
	if encoder == nil {
		encoder = &stubEncoder{}
	}

	coord := NewCoordinator(store, jobs, sessions, payments, encoder, Collaborators{
		Publisher: publisher,
		Guard:     opts.guard,
		Provider:  opts.provider,
	}, CoordinatorConfig{
		SessionTTL:                10 * time.Minute,
		RequirePaymentBeforePrint: opts.requirePayment,
		Pricing:                   Pricing{MonoPagePrice: 0.10, ColorPagePrice: 0.50, Currency: "usd"},
	}, log)

	return &fixture{
		store:     store,
		clock:     clock,
		jobs:      jobs,
		sessions:  sessions,
		payments:  payments,
		coord:     coord,
		publisher: publisher,
		encoder:   encoder,
	}
}

func intPtr(v int) *int           { return &v }
func boolPtr(v bool) *bool        { return &v }
func strPtr(v string) *string     { return &v }
func floatPtr(v float64) *float64 { return &v }

func validRequest() *models.CreateJobRequest {
	return &models.CreateJobRequest{FileURL: "https://x/a.pdf", Copies: intPtr(2)}
}
