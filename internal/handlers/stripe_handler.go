package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"print-gateway/internal/logger"
	"print-gateway/internal/models"
	"print-gateway/internal/services"
	"print-gateway/internal/utils"
)

type StripeWebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*models.StripePaymentUpdate, error)
}

type StripeHandler struct {
	parser StripeWebhookParser
	coord  *services.Coordinator
	log    *logger.Logger
}

func NewStripeHandler(parser StripeWebhookParser, coord *services.Coordinator, log *logger.Logger) *StripeHandler {
	return &StripeHandler{parser: parser, coord: coord, log: log}
}

// HandleStripeWebhook answers 2xx for anything Stripe should not retry and
// 5xx only when a retry could succeed.
func (h *StripeHandler) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Unreadable body", ""))
		return
	}

	update, err := h.parser.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.log.LogSecurity("STRIPE_SIGNATURE", fmt.Sprintf("Rejected webhook from %s: %v", c.ClientIP(), err))
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid webhook", ""))
		return
	}
	if update == nil {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	in := services.PaymentCallbackInput{
		JobID:         update.JobID,
		Status:        update.Status,
		TransactionID: &update.PaymentIntentID,
		Amount:        &update.Amount,
		Method:        "stripe",
	}
	if update.UserID != "" {
		in.UserID = &update.UserID
	}

	_, err = h.coord.HandlePaymentCallback(c.Request.Context(), in)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrJobNotFound), errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrValidation):
		h.log.Warn("STRIPE", fmt.Sprintf("Event %s for job %s not applied: %v", update.EventID, update.JobID, err))
	default:
		h.log.Error("STRIPE", fmt.Sprintf("Event %s failed: %v", update.EventID, err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Internal server error", ""))
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
