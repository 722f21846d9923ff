package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"print-gateway/internal/config"
	"print-gateway/internal/handlers"
	"print-gateway/internal/kafka"
	"print-gateway/internal/logger"
	"print-gateway/internal/middleware"
	"print-gateway/internal/models"
	"print-gateway/internal/qr"
	rediswrap "print-gateway/internal/redis"
	"print-gateway/internal/services"
	"print-gateway/internal/storage"
	"print-gateway/internal/utils"
)

// Global logger instance
var log *logger.Logger

func main() {
	log = logger.NewLogger()
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("ENV", "Error loading .env file, using environment variables")
	}

	log.LogProcess("STARTUP", "Print Gateway starting up...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("CONFIG", "Invalid configuration: "+err.Error())
	}
	log.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.File != "" {
		if err := log.OpenFile(cfg.Logging.File); err != nil {
			log.Warn("CONFIG", err.Error())
		}
	}
	log.Info("CONFIG", "Configuration loaded successfully")

	log.LogProcess("DATABASE", "Initializing "+cfg.Database.Driver+" database...")
	store, err := storage.Open(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", "Failed to initialize storage: "+err.Error())
	}
	defer store.Close()

	log.LogProcess("KAFKA", "Initializing Kafka producer...")
	producer, err := kafka.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Fatal("KAFKA", "Failed to create Kafka producer: "+err.Error())
	}
	defer producer.Close()

	collab := services.Collaborators{Publisher: producer}
	var throttle handlers.ScanThrottle
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Warn("REDIS", "Redis unreachable, continuing without it: "+err.Error())
		} else {
			r := rediswrap.NewRedis(client)
			collab.Guard = r
			if cfg.Session.ScanFailureLimit > 0 {
				throttle = rediswrap.NewScanThrottle(r, cfg.Session.ScanFailureLimit, cfg.Session.ScanFailureWindow)
			}
			log.LogProcess("REDIS", "Redis connection successful")
		}
	} else {
		log.Warn("REDIS", "REDIS_ADDR not set; event dedupe and scan throttling disabled")
	}

	var stripeService *services.StripeService
	stripeService, err = services.NewStripeService(cfg.Stripe, log)
	switch {
	case errors.Is(err, services.ErrStripeDisabled):
		log.Warn("STRIPE", "STRIPE_SECRET_KEY not set; checkout and Stripe webhooks disabled")
		stripeService = nil
	case err != nil:
		log.Fatal("STRIPE", "Failed to initialize Stripe service: "+err.Error())
	default:
		collab.Provider = stripeService
	}

	jobService := services.NewJobService(store, log, utils.Now)
	sessionService := services.NewSessionService(store, log, utils.Now, cfg.Session.TTL, cfg.Session.SingleUse)
	paymentService := services.NewPaymentService(store, jobService, log, utils.Now)
	coordinator := services.NewCoordinator(store, jobService, sessionService, paymentService, qr.NewEncoder(), collab,
		services.CoordinatorConfig{
			SessionTTL:                cfg.Session.TTL,
			RequirePaymentBeforePrint: cfg.Session.RequirePaymentBeforePrint,
			Pricing: services.Pricing{
				MonoPagePrice:  cfg.Stripe.MonoPagePrice,
				ColorPagePrice: cfg.Stripe.ColorPagePrice,
				Currency:       cfg.Stripe.Currency,
			},
		}, log)
	log.LogProcess("SERVICE", "Services initialized")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	sweeper := services.NewSweeper(jobService, sessionService, producer, services.SweeperConfig{
		Interval:         cfg.Session.SweepInterval,
		JobExpiryGrace:   cfg.Session.JobExpiryGrace,
		SessionRetention: cfg.Session.SessionRetention,
	}, log)
	go sweeper.Run(ctx)

	if cfg.Kafka.ConsumerEnabled {
		consumer, err := kafka.NewConsumer(cfg.Kafka, log)
		if err != nil {
			log.Fatal("KAFKA", "Failed to create Kafka consumer: "+err.Error())
		}
		defer consumer.Close()

		go func() {
			log.LogKafka("START", cfg.Kafka.PaymentCallbackTopic, "Starting payment callback consumer")
			err := consumer.ConsumePaymentCallbacks(ctx, func(ctx context.Context, req *models.PaymentWebhookRequest) error {
				_, err := coordinator.HandlePaymentCallback(ctx, handlers.CallbackInput(req))
				if errors.Is(err, services.ErrJobNotFound) || errors.Is(err, services.ErrInvalidTransition) || errors.Is(err, services.ErrValidation) {
					log.Warn("KAFKA", "Payment callback not applied: "+err.Error())
					return nil
				}
				return err
			})
			if err != nil {
				log.Error("KAFKA", "Consumer error: "+err.Error())
			}
		}()
	}

	routes := handlers.Routes{
		Jobs:    handlers.NewJobHandler(coordinator, log),
		Printer: handlers.NewPrinterHandler(coordinator, throttle, log),
		Payment: handlers.NewPaymentHandler(coordinator, log),
		Health:  handlers.Health(store),
		User:    middleware.NewUserAuth(cfg.Auth, log).RequireUser(),
	}
	deviceAuth := middleware.NewDeviceAuth(cfg.Auth, log)
	if !deviceAuth.Enabled() {
		log.Warn("AUTH", "No printer device keys configured; printer endpoints trust any caller")
	}
	routes.Device = deviceAuth.RequireDevice()
	if stripeService != nil {
		routes.Stripe = handlers.NewStripeHandler(stripeService, coordinator, log)
	}

	router := setupRouter(cfg, routes)
	log.LogProcess("ROUTER", "HTTP router configured")

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.LogProcess("SERVER", "Starting HTTP server on "+cfg.Server.Port)
		log.Info("STARTUP", "Health check available at: http://localhost"+cfg.Server.Port+"/health")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", "Server failed to start: "+err.Error())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Warn("SHUTDOWN", "Received shutdown signal, initiating graceful shutdown...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("SHUTDOWN", "Server forced to shutdown: "+err.Error())
		return
	}

	log.Info("SHUTDOWN", "Print Gateway shutdown completed")
}

func setupRouter(cfg *config.Config, routes handlers.Routes) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.EnhancedLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.SecurityHeaders(log))
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimit(cfg.RateLimit, log))

	routes.Register(router)

	log.LogProcess("ROUTER", "All routes registered successfully")
	return router
}
