package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/grpcserver"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/payments"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/waitlist"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func newServeCmd() *cobra.Command {
	var demo bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers, the outbox publisher and the waitlist sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), demo)
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false, "seed the in-memory store with a sample business (ignored with DATABASE_URL)")
	return cmd
}

func serve(parent context.Context, demo bool) error {
	if parent == nil {
		parent = context.Background()
	}
	bootLogger := runtime.NewLogger("scheduling-service")
	cfg, err := loadSettings(bootLogger)
	if err != nil {
		return err
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContextFrom(parent)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	a, err := newApp(ctx, logger, cfg, demo)
	if err != nil {
		logger.Error("startup failed", "err", err)
		return err
	}
	defer a.Close()

	if a.pool != nil {
		publisher := outbox.NewPublisher(a.pool, a.outbox, logger, outbox.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			PollEvery: cfg.OutboxPoll,
			BatchSize: 50,
			RetainFor: cfg.OutboxRetain,
		})
		go publisher.Run(ctx)
	}
	if cfg.SweepInterval > 0 {
		sweeper := waitlist.NewSweeper(a.waitlist, logger, waitlist.SweeperConfig{Interval: cfg.SweepInterval})
		go sweeper.Run(ctx)
		logger.Info("waitlist sweeper enabled", "interval", cfg.SweepInterval.String())
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
	}

	checks := []runtime.ReadyCheck{
		{Name: "store", Check: a.store.Ping},
	}
	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers), Optional: true})
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb), Optional: true})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.Register(mux,
		handlers.NewBookingHandler(a.engine, logger),
		handlers.NewWaitlistHandler(a.waitlist, logger),
		payments.NewWebhook(a.engine, logger, cfg.StripeSecret, cfg.StripeTolerance),
	)

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.APICORSPolicy(cfg.CORSOrigins)),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(cfg.BodyLimit),
		httpx.WithTimeout(cfg.RequestTimeout),
		rateLimit(logger, cfg, rdb),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpcserver.New(logger, a.store, 10*time.Second)
	go func() {
		if err := grpcSrv.Serve(ctx, ":"+cfg.GrpcPort); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	return nil
}

// rateLimit shares counters through Redis when configured and falls back to a
// per-process limiter otherwise.
func rateLimit(logger *slog.Logger, cfg settings, rdb *redis.Client) httpx.Middleware {
	if rdb != nil {
		logger.Info("rate limiting enabled (redis)", "per_minute", cfg.RateLimit, "redis_addr", cfg.RedisAddr)
		return httpx.NewRedisRateLimiter(rdb, cfg.RateLimit, time.Minute, cfg.RateLimitKey).Middleware(logger)
	}
	logger.Info("rate limiting enabled (in-memory)", "per_minute", cfg.RateLimit)
	return httpx.NewRateLimiter(cfg.RateLimit, time.Minute).Middleware()
}
