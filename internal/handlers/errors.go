package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"print-gateway/internal/logger"
	"print-gateway/internal/services"
	"print-gateway/internal/utils"
)

const maxBodyBytes = 64 << 10

// statusFor maps a service error to its HTTP status and public message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, "Validation failed"
	case errors.Is(err, services.ErrJobNotFound):
		return http.StatusNotFound, "Job not found"
	case errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound, "QR not found"
	case errors.Is(err, services.ErrSessionExpired):
		return http.StatusGone, "QR expired"
	case errors.Is(err, services.ErrSessionRedeemed):
		return http.StatusConflict, "QR already used"
	case errors.Is(err, services.ErrInvalidTransition):
		return http.StatusConflict, "Status change not allowed"
	case errors.Is(err, services.ErrPaymentRequired):
		return http.StatusPaymentRequired, "Payment required"
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, services.ErrStripeDisabled):
		return http.StatusServiceUnavailable, "Payments are not configured"
	case errors.Is(err, services.ErrStripeAPIError):
		return http.StatusBadGateway, "Payment provider error"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// respondError writes the mapped status. Client errors carry their detail;
// server errors are logged and answered opaquely.
func respondError(c *gin.Context, log *logger.Logger, component string, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(component, fmt.Sprintf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err))
		c.JSON(status, utils.ErrorResponse(message, ""))
		return
	}
	c.JSON(status, utils.ErrorResponse(message, err.Error()))
}

// bindStrict decodes a JSON body rejecting unknown fields, then runs the
// binding tags.
func bindStrict(c *gin.Context, obj interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(obj); err != nil {
		return err
	}
	return binding.Validator.ValidateStruct(obj)
}
