package models

// CheckoutResponse is returned when a job owner starts a Stripe payment.
type CheckoutResponse struct {
	JobID           string   `json:"job_id"`
	PaymentIntentID string   `json:"payment_intent_id"`
	ClientSecret    string   `json:"client_secret"`
	Amount          float64  `json:"amount"`
	Currency        string   `json:"currency"`
	Payment         *Payment `json:"payment"`
}

// StripePaymentUpdate is what a verified Stripe event says about a job.
type StripePaymentUpdate struct {
	EventID         string
	JobID           string
	UserID          string
	PaymentIntentID string
	Status          PaymentStatus
	Amount          float64
}
