package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/bookingengine/libs/auth"
	"github.com/md-rashed-zaman/bookingengine/libs/db"
	"github.com/md-rashed-zaman/bookingengine/libs/grpcx"
	"github.com/md-rashed-zaman/bookingengine/libs/httpx"
	"github.com/md-rashed-zaman/bookingengine/libs/kafkax"
	otelx "github.com/md-rashed-zaman/bookingengine/libs/otel"
	"github.com/md-rashed-zaman/bookingengine/libs/runtime"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/admission"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/cache"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/config"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/identity"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/trust"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)},
	}

	var store cache.Cache = cache.NewMemory()
	rateLimit := func(next http.Handler) http.Handler { return next }
	if cfg.RedisAddr != "" {
		rdb := cache.NewRedisClient(cache.RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() { _ = rdb.Close() }()
		redisCache := cache.NewRedis(rdb, "booking:")
		store = redisCache
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: redisCache.Ping})
		if cfg.RateLimitPerMinute > 0 {
			rateLimit = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "rl:booking", auth.SubjectKey).Middleware(logger, true)
		}
	} else {
		logger.Warn("REDIS_ADDR not set; using in-process cache and rate limiter")
		if cfg.RateLimitPerMinute > 0 {
			rateLimit = httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute, auth.SubjectKey).Middleware()
		}
	}

	clk := clock.Real{}
	outboxRepo := outbox.NewRepository()
	reader := storage.NewReader(pool)
	customers := identity.NewPostgres(pool)
	cachedCustomers := identity.NewCached(customers, store, cfg.IdentityCacheTTL, logger)

	trustService := trust.NewService(reader, store, cfg.TrustCacheTTL, clk, logger)
	resolver := availability.NewResolver(logger)
	slotQuery := availability.NewQuery(reader, reader, resolver, logger)

	controller := admission.NewController(admission.Options{
		Store:         storage.NewAdmissionStore(pool),
		Identity:      cachedCustomers,
		Availability:  resolver,
		Notifier:      notify.NewOutboxNotifier(pool, outboxRepo),
		Trust:         trustService,
		Clock:         clk,
		Logger:        logger,
		NotifyTimeout: cfg.NotifyTimeout,
	})
	lifecycleService := lifecycle.NewService(storage.NewLifecycleStore(pool, outboxRepo), trustService, clk, logger)

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkax.SplitBrokers(cfg.KafkaBrokers),
		PollEvery: cfg.OutboxPollEvery,
		BatchSize: cfg.OutboxBatchSize,
	})
	go publisher.Run(ctx)

	if cfg.KafkaBrokers != "" && cfg.KafkaIdentityTopic != "" {
		identityConsumer := consumer.New(
			kafkax.NewReader(kafkax.ReaderConfig{
				Brokers: cfg.KafkaBrokers,
				GroupID: cfg.KafkaGroupID,
				Topic:   cfg.KafkaIdentityTopic,
			}),
			pool,
			inbox.NewRepository(),
			consumer.NewIdentityHandler(customers, cachedCustomers),
			logger,
		)
		go identityConsumer.Run(ctx)
	} else {
		logger.Warn("identity consumer disabled (no kafka brokers configured)")
	}

	var verifier auth.Verifier = auth.HS256Verifier{Secret: cfg.JWTSecret}
	if cfg.JWKSURL != "" {
		verifier = auth.NewJWKSClient(cfg.JWKSURL, 5*time.Minute)
	}
	requireAuth := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, auth.RequireBearer(verifier), rateLimit)
	}

	bookingHandler := handlers.NewBookingHandler(controller, logger)
	slotsHandler := handlers.NewSlotsHandler(slotQuery, logger)
	trustHandler := handlers.NewTrustHandler(trustService, reader, logger)
	statusHandler := handlers.NewStatusHandler(lifecycleService, logger)

	metrics.Register()
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/api/v1/public/slots", httpx.Chain(http.HandlerFunc(slotsHandler.List), rateLimit))
	mux.Handle("/api/v1/bookings", requireAuth(bookingHandler.Create))
	mux.Handle("/api/v1/bookings/status", requireAuth(statusHandler.UpdateStatus))
	mux.Handle("/api/v1/bookings/check-in", requireAuth(statusHandler.CheckIn))
	mux.Handle("/api/v1/customers/trust-score", requireAuth(trustHandler.Score))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{AllowedOrigins: cfg.AllowedOrigins(), MaxAge: 10 * time.Minute}),
		httpx.WithBodyLimit(cfg.HTTPBodyLimitBytes),
		httpx.WithTimeout(cfg.HTTPTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcx.NewServer(logger)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	health.Shutdown()
	grpcSrv.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
