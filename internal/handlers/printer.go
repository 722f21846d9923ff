package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"print-gateway/internal/logger"
	"print-gateway/internal/models"
	"print-gateway/internal/services"
	"print-gateway/internal/utils"
)

// ScanThrottle limits how many unknown tokens one client may try.
type ScanThrottle interface {
	Blocked(ctx context.Context, client string) (bool, error)
	RecordFailure(ctx context.Context, client string) error
}

// PrinterHandler serves printer devices. The token is their only credential
// unless device keys are configured in front of it.
type PrinterHandler struct {
	coord    *services.Coordinator
	throttle ScanThrottle
	log      *logger.Logger
}

func NewPrinterHandler(coord *services.Coordinator, throttle ScanThrottle, log *logger.Logger) *PrinterHandler {
	return &PrinterHandler{coord: coord, throttle: throttle, log: log}
}

func (h *PrinterHandler) ScanQR(c *gin.Context) {
	ctx := c.Request.Context()
	client := c.ClientIP()

	if h.throttle != nil {
		blocked, err := h.throttle.Blocked(ctx, client)
		if err != nil {
			h.log.Warn("REDIS", fmt.Sprintf("Scan throttle unavailable: %v", err))
		} else if blocked {
			h.log.LogSecurity("SCAN_THROTTLED", fmt.Sprintf("Too many unknown tokens from %s", client))
			c.JSON(http.StatusTooManyRequests, utils.ErrorResponse("Too many failed scans", ""))
			return
		}
	}

	var req models.ScanRequest
	if err := bindStrict(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("qr_id required", err.Error()))
		return
	}

	job, err := h.coord.ScanToken(ctx, req.QRID)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) && h.throttle != nil {
			if terr := h.throttle.RecordFailure(ctx, client); terr != nil {
				h.log.Warn("REDIS", fmt.Sprintf("Failed to record scan failure: %v", terr))
			}
		}
		respondError(c, h.log, "PRINTER", err)
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse(gin.H{"job": job}))
}

func (h *PrinterHandler) Complete(c *gin.Context) {
	var req models.CompleteRequest
	if err := bindStrict(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("job_id required", err.Error()))
		return
	}

	job, _, err := h.coord.CompleteJob(c.Request.Context(), req.JobID, req.Status)
	if err != nil {
		respondError(c, h.log, "PRINTER", err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse(gin.H{"status": job.Status}))
}
