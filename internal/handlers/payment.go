package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"print-gateway/internal/logger"
	"print-gateway/internal/models"
	"print-gateway/internal/services"
	"print-gateway/internal/utils"
)

type PaymentHandler struct {
	coord *services.Coordinator
	log   *logger.Logger
}

func NewPaymentHandler(coord *services.Coordinator, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{coord: coord, log: log}
}

// CallbackInput converts a provider-neutral callback body.
func CallbackInput(req *models.PaymentWebhookRequest) services.PaymentCallbackInput {
	return services.PaymentCallbackInput{
		JobID:         req.JobID,
		Status:        req.Status,
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		Method:        req.Method,
		UserID:        req.UserID,
	}
}

// Webhook accepts provider callbacks. Bodies are decoded leniently since
// providers add fields over time.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	var req models.PaymentWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("missing job_id", err.Error()))
		return
	}

	result, err := h.coord.HandlePaymentCallback(c.Request.Context(), CallbackInput(&req))
	if err != nil {
		respondError(c, h.log, "PAYMENT", err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse(gin.H{
		"payment_id": result.Payment.ID,
		"promoted":   result.Promoted,
	}))
}
