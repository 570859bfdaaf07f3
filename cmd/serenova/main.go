package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/serenovaspa/serenova/internal/handlers"
	"github.com/serenovaspa/serenova/internal/outbox"
	"github.com/serenovaspa/serenova/internal/payments"
	"github.com/serenovaspa/serenova/internal/platform"
	"github.com/serenovaspa/serenova/internal/schedule"
	"github.com/serenovaspa/serenova/internal/storage"
	"github.com/serenovaspa/serenova/libs/config"
	"github.com/serenovaspa/serenova/libs/db"
	"github.com/serenovaspa/serenova/libs/httpx"
	"github.com/serenovaspa/serenova/libs/kafkax"
	otelx "github.com/serenovaspa/serenova/libs/otel"
	"github.com/serenovaspa/serenova/libs/runtime"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "serenova")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	loc, err := time.LoadLocation(config.String("BUSINESS_TIMEZONE", "Asia/Kolkata"))
	if err != nil {
		logger.Error("invalid BUSINESS_TIMEZONE; falling back to local", "err", err)
		loc = time.Local
	}
	blackouts := config.StringList("BLACKOUT_DATES")
	if len(blackouts) == 0 {
		// Annual deep-cleaning closure.
		blackouts = []string{"2025-05-26"}
	}
	rules := schedule.DefaultRules(loc).AddBlackouts(blackouts...)

	bookingRepo := storage.NewBookingRepository(pool, rules.Buffer, loc)
	paymentsRepo := storage.NewPaymentsRepository(pool)
	staffRepo := storage.NewStaffRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	engine := schedule.NewEngine(rules, bookingRepo)

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	var platformClient *platform.Client
	if base := config.String("PLATFORM_BASE_URL", ""); base != "" {
		platformClient, err = platform.New(platform.Config{
			BaseURL: base,
			APIKey:  config.String("PLATFORM_API_KEY", ""),
			Timeout: 10 * time.Second,
		})
		if err != nil {
			logger.Error("platform client init failed", "err", err)
			platformClient = nil
		}
	} else {
		logger.Warn("salon platform proxy disabled (PLATFORM_BASE_URL not set)")
	}

	var gateway *payments.Gateway
	if key := config.String("PAYMENT_GATEWAY_KEY", ""); key != "" {
		gateway, err = payments.NewGateway(payments.GatewayConfig{
			Key:        key,
			Salt:       config.String("PAYMENT_GATEWAY_SALT", ""),
			Endpoint:   config.String("PAYMENT_GATEWAY_URL", "https://secure.payu.in/_payment"),
			SuccessURL: config.String("PAYMENT_SUCCESS_URL", ""),
			FailureURL: config.String("PAYMENT_FAILURE_URL", ""),
		})
		if err != nil {
			logger.Error("payment gateway init failed", "err", err)
			gateway = nil
		}
	} else {
		logger.Warn("payment gateway disabled (PAYMENT_GATEWAY_KEY not set)")
	}
	stripeCheckout := payments.NewStripeCheckout(payments.StripeConfig{
		SecretKey:      config.String("STRIPE_SECRET_KEY", ""),
		PriceEssential: config.String("STRIPE_PRICE_ESSENTIAL", ""),
		PricePremier:   config.String("STRIPE_PRICE_PREMIER", ""),
		SuccessURL:     config.String("CHECKOUT_SUCCESS_URL", ""),
		CancelURL:      config.String("CHECKOUT_CANCEL_URL", ""),
	})

	availabilityHandler := handlers.NewAvailabilityHandler(engine, logger)
	bookingHandler := handlers.NewBookingHandler(bookingRepo, outboxRepo, engine, logger)
	paymentsHandler := handlers.NewPaymentsHandler(gateway, stripeCheckout, paymentsRepo, outboxRepo, logger, handlers.PaymentsConfig{
		StripeWebhookSecret:           config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookToleranceSeconds: config.Int("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300),
		SuccessRedirect:               config.String("PAYMENT_SUCCESS_URL", "/payment/success"),
		FailureRedirect:               config.String("PAYMENT_FAILURE_URL", "/payment/failure"),
	})
	platformHandler := handlers.NewPlatformHandler(platformClient, logger)
	adminHandler := handlers.NewAdminHandler(staffRepo, bookingRepo, logger, config.String("ADMIN_API_KEY", ""))

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	}
	if kafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/availability/slots", availabilityHandler.Slots)
	mux.HandleFunc("/api/v1/availability/days", availabilityHandler.Days)
	mux.HandleFunc("/api/v1/availability/next", availabilityHandler.Next)
	mux.HandleFunc("/api/v1/availability/check", availabilityHandler.Check)
	mux.HandleFunc("/api/v1/availability/busy", availabilityHandler.Busy)
	mux.HandleFunc("/api/v1/appointments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			bookingHandler.List(w, r)
			return
		}
		bookingHandler.Create(w, r)
	})
	mux.HandleFunc("/api/v1/appointments/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/appointments/reschedule", bookingHandler.Reschedule)
	mux.HandleFunc("/api/v1/guests", platformHandler.Guest)
	mux.HandleFunc("/api/v1/services", platformHandler.Services)
	mux.HandleFunc("/api/v1/payments/order", paymentsHandler.CreateOrder)
	mux.HandleFunc("/api/v1/payments/return", paymentsHandler.Return)
	mux.HandleFunc("/api/v1/payments/checkout", paymentsHandler.Checkout)
	mux.HandleFunc("/api/v1/payments/stripe/webhook", paymentsHandler.StripeWebhook)
	mux.HandleFunc("/api/v1/admin/staff", adminHandler.RequireAdminKey(adminHandler.RegisterStaff))
	mux.HandleFunc("/api/v1/admin/login", adminHandler.LoginStaff)
	mux.HandleFunc("/api/v1/admin/appointments/complete", adminHandler.RequireAdminKey(adminHandler.CompleteAppointment))

	rateLimitMW := rateLimiter(rdb, logger)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.StringList("CORS_ALLOWED_ORIGINS"),
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "X-Guest-Id", "X-Admin-Key", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		rateLimitMW,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(30*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "serenova")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// rateLimiter prefers the Redis fixed-window limiter when Redis is
// configured; otherwise the in-process limiter covers single-instance runs.
func rateLimiter(rdb *redis.Client, logger *slog.Logger) httpx.Middleware {
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if rdb != nil {
		failOpen := config.Bool("RATE_LIMIT_FAIL_OPEN", true)
		return httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "serenova").Middleware(logger, failOpen)
	}
	return httpx.NewRateLimiter(limit, time.Minute).Middleware()
}
