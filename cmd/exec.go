package cmd

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"

	"booking-system/config"
	"booking-system/handlers"
	"booking-system/migrations"
	"booking-system/monitoring"
	"booking-system/security"
	"booking-system/services"
	"booking-system/utils"
)

// Start wires the pipeline together. Every resource handle is
// constructed here and injected; nothing reaches for globals.
func Start() error {
	cfg := config.LoadConfig()

	// Initialize Redis (seat lock store)
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize SQLite (booking/payment/ticket store)
	db, err := utils.NewDB(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrations.Apply(db); err != nil {
		return err
	}

	monitor := monitoring.NewMonitor(db)

	// Notifier: PubNub when configured, logging fallback otherwise
	var notifier services.Notifier = services.LogNotifier{}
	if cfg.PubNubPublishKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		notifier = services.NewPubNubNotifier(pubnub.NewPubNub(pnConfig))
	}

	// Initialize services
	seatLocks := services.NewSeatLockManager(redisClient, monitor)
	ledger := services.NewBookingLedger(db, seatLocks, cfg.SeatLockTTL, cfg.MaxSeatsPerLock)
	issuance := services.NewTicketIssuanceQueue(
		db, ledger, services.NewQRTicketRenderer(), notifier, monitor,
		cfg.IssuanceRetryDelay, cfg.IssuanceMaxRetries,
	)
	payments := services.NewPaymentStateMachine(db, ledger, issuance, notifier, monitor, utils.RetryPolicy{
		MaxAttempts:  cfg.VerifyMaxAttempts,
		InitialDelay: cfg.VerifyInitialDelay,
		Multiplier:   cfg.VerifyBackoff,
		MaxDelay:     cfg.VerifyMaxDelay,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background tasks
	scheduler := services.NewIssuanceScheduler(issuance, cfg.SchedulerInterval)
	scheduler.Start(ctx)
	go monitor.CollectTaskBacklog(ctx, 30*time.Second)

	if cfg.EnableMetrics {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	// Initialize handlers
	seatHandler := handlers.NewSeatHandler(seatLocks, cfg.SeatLockTTL)
	bookingHandler := handlers.NewBookingHandler(ledger)
	paymentHandler := handlers.NewPaymentHandler(payments)
	adminHandler := handlers.NewAdminHandler(payments, issuance, db)
	rateLimiter := security.NewRateLimiter(redisClient)

	e := echo.New()

	// Seat lock endpoints
	lockGroup := e.Group("/api/v1/seats", rateLimiter.LockRateLimit(30))
	lockGroup.POST("/lock-batch", seatHandler.LockSeats)
	lockGroup.POST("/release-batch", seatHandler.ReleaseSeats)
	lockGroup.POST("/extend-batch", seatHandler.ExtendSeats)
	e.GET("/api/v1/events/:eventId/seat-locks", seatHandler.GetSeatLocks)

	// Booking endpoints
	e.POST("/api/v1/bookings", bookingHandler.CreateBooking, rateLimiter.LockRateLimit(30))
	e.GET("/api/v1/bookings", bookingHandler.ListBookings)
	e.GET("/api/v1/bookings/:bookingId", bookingHandler.GetBooking)
	e.POST("/api/v1/bookings/:bookingId/cancel", bookingHandler.CancelBooking)

	// Payment endpoints
	e.POST("/api/v1/payments", paymentHandler.InitializePayment)
	e.GET("/api/v1/payments/:paymentId", paymentHandler.GetPayment)
	e.POST("/api/v1/payments/:paymentId/reference", paymentHandler.SubmitReference)

	// Admin endpoints
	e.POST("/api/v1/admin/payments/:paymentId/verify", adminHandler.VerifyPayment)
	e.POST("/api/v1/admin/payments/:paymentId/reject", adminHandler.RejectPayment)
	e.GET("/api/v1/admin/ticket-tasks", adminHandler.GetTaskDashboard)
	e.POST("/api/v1/admin/ticket-tasks/process", adminHandler.ForceProcessTasks)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		if err := utils.RedisHealthCheck(redisClient); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: e}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutdown signal received, cleaning up...")

		scheduler.Shutdown(30 * time.Second)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("Server starting on port %s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
