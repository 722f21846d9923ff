package services

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrJobNotFound       = errors.New("job not found")
	ErrSessionNotFound   = errors.New("qr session not found")
	ErrSessionExpired    = errors.New("qr session expired")
	ErrSessionRedeemed   = errors.New("qr session already redeemed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPaymentRequired   = errors.New("payment required before printing")
	ErrForbidden         = errors.New("job belongs to another user")
	ErrStripeAPIError    = errors.New("stripe API error")
	ErrStripeDisabled    = errors.New("stripe is not configured")
)
