package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"print-gateway/internal/config"
	"print-gateway/internal/logger"
	"print-gateway/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

type PaymentIntentInput struct {
	JobID    string
	UserID   string
	Amount   float64
	Currency string
}

type PaymentIntentResult struct {
	ID           string
	ClientSecret string
	Amount       float64
	Currency     string
}

// StripeService creates checkout intents and verifies Stripe webhooks.
type StripeService struct {
	client        *client.API
	webhookSecret string
	currency      string
	log           *logger.Logger
}

func NewStripeService(cfg config.StripeConfig, log *logger.Logger) (*StripeService, error) {
	if cfg.SecretKey == "" {
		return nil, ErrStripeDisabled
	}

	sc := client.New(cfg.SecretKey, nil)
	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeService{
		client:        sc,
		webhookSecret: cfg.WebhookSecret,
		currency:      cfg.Currency,
		log:           log,
	}, nil
}

// CreatePaymentIntent opens a PaymentIntent tagged with the job and user ids.
func (s *StripeService) CreatePaymentIntent(ctx context.Context, in PaymentIntentInput) (*PaymentIntentResult, error) {
	currency := in.Currency
	if currency == "" {
		currency = s.currency
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toCents(in.Amount)),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String("Print job " + in.JobID),
		Metadata: map[string]string{
			"job_id":  in.JobID,
			"user_id": in.UserID,
		},
	}

	pi, err := s.client.PaymentIntents.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent for job %s: %v", in.JobID, err))
		return nil, fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}

	s.log.LogPayment("STRIPE", pi.ID, fmt.Sprintf("Payment intent created for job %s, amount %.2f %s", in.JobID, in.Amount, currency))
	return &PaymentIntentResult{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       fromCents(pi.Amount),
		Currency:     string(pi.Currency),
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and maps payment
// intent events to a job update. Events that say nothing about a job's
// payment return a nil update.
func (s *StripeService) ParseWebhook(payload []byte, signature string) (*models.StripePaymentUpdate, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: invalid webhook signature: %v", ErrValidation, err)
	}

	var status models.PaymentStatus
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		status = models.StatusSuccess
	case stripe.EventTypePaymentIntentPaymentFailed:
		status = models.StatusFailed
	case stripe.EventTypePaymentIntentCanceled:
		status = models.StatusCancelled
	default:
		s.log.Debug("STRIPE", fmt.Sprintf("Ignoring event %s (%s)", event.ID, event.Type))
		return nil, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: malformed payment intent: %v", ErrValidation, err)
	}
	jobID := pi.Metadata["job_id"]
	if jobID == "" {
		s.log.Warn("STRIPE", fmt.Sprintf("Payment intent %s has no job_id metadata", pi.ID))
		return nil, nil
	}

	return &models.StripePaymentUpdate{
		EventID:         event.ID,
		JobID:           jobID,
		UserID:          pi.Metadata["user_id"],
		PaymentIntentID: pi.ID,
		Status:          status,
		Amount:          fromCents(pi.Amount),
	}, nil
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromCents(cents int64) float64 {
	return float64(cents) / 100.0
}
