package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bulkflow/libs/config"
	"github.com/md-rashed-zaman/bulkflow/libs/db"
	"github.com/md-rashed-zaman/bulkflow/libs/httpx"
	otelx "github.com/md-rashed-zaman/bulkflow/libs/otel"
	"github.com/md-rashed-zaman/bulkflow/libs/runtime"
	"github.com/md-rashed-zaman/bulkflow/libs/sqs"
	"github.com/md-rashed-zaman/bulkflow/libs/telegram"
	"github.com/md-rashed-zaman/bulkflow/services/bot-service/internal/campaign"
	"github.com/md-rashed-zaman/bulkflow/services/bot-service/internal/flow"
	"github.com/md-rashed-zaman/bulkflow/services/bot-service/internal/handlers"
	"github.com/md-rashed-zaman/bulkflow/services/bot-service/internal/reservation"
	"github.com/md-rashed-zaman/bulkflow/services/bot-service/internal/session"
	"github.com/md-rashed-zaman/bulkflow/services/bot-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func newQueue(logger *slog.Logger) *sqs.Client {
	queueURL := config.String("QUEUE_URL", "")
	if strings.TrimSpace(queueURL) == "" {
		return nil
	}
	client, err := sqs.New(sqs.Config{
		QueueURL:          queueURL,
		Region:            config.String("AWS_REGION", "us-east-1"),
		AccessKeyID:       config.String("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey:   config.String("AWS_SECRET_ACCESS_KEY", ""),
		VisibilityTimeout: config.Int("QUEUE_VISIBILITY_TIMEOUT_SECONDS", 30),
	})
	if err != nil {
		logger.Warn("queue client init failed; jobs disabled", "err", err)
		return nil
	}
	return client
}

func main() {
	service := config.String("SERVICE_NAME", "bot-service")
	port, err := config.Port("PORT", "8084")
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

	var sender telegram.Sender = telegram.NoopSender{}
	if token := config.String("TG_BOT_TOKEN", ""); token != "" {
		bot, err := telegram.NewBotSender(token)
		if err != nil {
			logger.Error("telegram sender init failed", "err", err)
			panic(err)
		}
		sender = bot
	} else {
		logger.Warn("TG_BOT_TOKEN not set; outbound messages are dropped")
	}

	queue := newQueue(logger)
	var engineQueue reservation.Enqueuer
	var dispatcher *campaign.Dispatcher
	if queue != nil {
		engineQueue = queue
		dispatcher = campaign.NewDispatcher(pool, queue, logger)
	} else {
		logger.Warn("QUEUE_URL not set; reminders and campaigns disabled")
	}

	repo := storage.NewRepository(pool)
	sessions := session.NewStore(pool)
	engine := reservation.NewEngine(pool, engineQueue, logger)
	machine := flow.NewMachine(repo, sessions, engine, sender, logger)

	webhookHandler := handlers.NewWebhookHandler(machine, repo, logger, config.String("TG_WEBHOOK_SECRET", ""))
	adminHandler := handlers.NewAdminHandler(repo, dispatcher, logger, config.String("ADMIN_TOKEN", ""))

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
	)
	mux.HandleFunc("/tg/webhook", webhookHandler.Webhook)
	mux.HandleFunc("/admin/seed", adminHandler.Seed)
	mux.HandleFunc("/admin/services", adminHandler.Services)
	mux.HandleFunc("/admin/slots", adminHandler.Slots)
	mux.HandleFunc("/admin/bookings/recent", adminHandler.RecentBookings)
	mux.HandleFunc("/admin/campaigns/send", adminHandler.SendCampaign)

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	var rateLimitMW httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, true)
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id,X-Admin-Token")),
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(10*time.Second),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "bot")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if v := strings.TrimSpace(item); v != "" {
			out = append(out, v)
		}
	}
	return out
}
