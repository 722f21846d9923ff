package handlers

import (
	"github.com/gin-gonic/gin"
)

type Routes struct {
	Jobs    *JobHandler
	Printer *PrinterHandler
	Payment *PaymentHandler
	// Stripe is nil when no Stripe secret is configured.
	Stripe *StripeHandler
	Health gin.HandlerFunc
	User   gin.HandlerFunc
	Device gin.HandlerFunc
}

// Register mounts the versioned API and the unversioned paths older
// printer agents and clients still call.
func (r Routes) Register(router *gin.Engine) {
	router.GET("/", r.Health)
	router.GET("/health", r.Health)

	v1 := router.Group("/api/v1")
	{
		jobs := v1.Group("/jobs", r.User)
		{
			jobs.POST("", r.Jobs.CreateJob)
			jobs.GET("/:id", r.Jobs.GetJob)
			jobs.POST("/:id/qr", r.Jobs.ReissueQR)
			jobs.POST("/:id/cancel", r.Jobs.CancelJob)
			jobs.POST("/:id/checkout", r.Jobs.Checkout)
		}

		printer := v1.Group("/printer", r.Device)
		{
			printer.POST("/scan-qr", r.Printer.ScanQR)
			printer.POST("/complete", r.Printer.Complete)
		}

		v1.POST("/payment/webhook", r.Payment.Webhook)
		if r.Stripe != nil {
			v1.POST("/stripe/webhook", r.Stripe.HandleStripeWebhook)
		}
	}

	router.POST("/create-job", r.User, r.Jobs.CreateJob)
	router.POST("/printer/scan-qr", r.Device, r.Printer.ScanQR)
	router.POST("/printer/complete", r.Device, r.Printer.Complete)
	router.POST("/payment/webhook", r.Payment.Webhook)
}
