package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"print-gateway/internal/logger"
	"print-gateway/internal/middleware"
	"print-gateway/internal/models"
	"print-gateway/internal/services"
	"print-gateway/internal/utils"
)

// JobHandler serves the signed-in user's side of the handoff.
type JobHandler struct {
	coord *services.Coordinator
	log   *logger.Logger
}

func NewJobHandler(coord *services.Coordinator, log *logger.Logger) *JobHandler {
	return &JobHandler{coord: coord, log: log}
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	var req models.CreateJobRequest
	if err := bindStrict(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}
	if req.FileURL == "" {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("fileUrl required", ""))
		return
	}

	result, err := h.coord.CreateJob(c.Request.Context(), middleware.UserID(c), &req)
	if err != nil {
		respondError(c, h.log, "JOB", err)
		return
	}

	c.JSON(http.StatusCreated, utils.SuccessResponse(gin.H{
		"job": result.Job,
		"qr": models.QRResponse{
			QRID:      result.Session.QRID,
			ExpiresAt: result.Session.ExpiresAt,
			QRDataURL: result.QRDataURL,
		},
	}))
}

func (h *JobHandler) GetJob(c *gin.Context) {
	details, err := h.coord.GetJobForOwner(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, "JOB", err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse(gin.H{
		"job":      details.Job,
		"payments": details.Payments,
		"sessions": len(details.Sessions),
	}))
}

func (h *JobHandler) ReissueQR(c *gin.Context) {
	session, dataURL, err := h.coord.ReissueSession(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, "JOB", err)
		return
	}
	c.JSON(http.StatusCreated, utils.SuccessResponse(gin.H{
		"qr": models.QRResponse{QRID: session.QRID, ExpiresAt: session.ExpiresAt, QRDataURL: dataURL},
	}))
}

func (h *JobHandler) CancelJob(c *gin.Context) {
	job, err := h.coord.CancelJob(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, "JOB", err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse(gin.H{"job": job}))
}

func (h *JobHandler) Checkout(c *gin.Context) {
	resp, err := h.coord.Checkout(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, "STRIPE", err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse(gin.H{
		"job_id":            resp.JobID,
		"payment_intent_id": resp.PaymentIntentID,
		"client_secret":     resp.ClientSecret,
		"amount":            resp.Amount,
		"currency":          resp.Currency,
		"payment":           resp.Payment,
	}))
}
