package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/bulkflow/libs/config"
	"github.com/md-rashed-zaman/bulkflow/libs/db"
	"github.com/md-rashed-zaman/bulkflow/libs/httpx"
	otelx "github.com/md-rashed-zaman/bulkflow/libs/otel"
	"github.com/md-rashed-zaman/bulkflow/libs/runtime"
	"github.com/md-rashed-zaman/bulkflow/libs/sqs"
	"github.com/md-rashed-zaman/bulkflow/libs/telegram"
	"github.com/md-rashed-zaman/bulkflow/services/worker-service/internal/consumer"
	"github.com/md-rashed-zaman/bulkflow/services/worker-service/internal/delivery"
	"github.com/md-rashed-zaman/bulkflow/services/worker-service/internal/reminders"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "worker-service")
	port, err := config.Port("PORT", "8085")
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
	queueURL, err := config.RequiredString("QUEUE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	queue, err := sqs.New(sqs.Config{
		QueueURL:          queueURL,
		Region:            config.String("AWS_REGION", "us-east-1"),
		AccessKeyID:       config.String("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey:   config.String("AWS_SECRET_ACCESS_KEY", ""),
		VisibilityTimeout: config.Int("QUEUE_VISIBILITY_TIMEOUT_SECONDS", 30),
	})
	if err != nil {
		logger.Error("queue client init failed", "err", err)
		panic(err)
	}

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

	reminderHandler := reminders.NewHandler(
		reminders.NewRepository(pool),
		sender,
		logger,
		config.Duration("REMINDER_WINDOW", time.Hour),
	)
	deliveryHandler := delivery.NewHandler(delivery.NewRepository(pool), sender, logger)

	worker := consumer.New(queue, logger, reminderHandler.Handle, deliveryHandler.Handle, consumer.Config{
		MaxMessages: config.Int("QUEUE_MAX_MESSAGES", 10),
		WaitSeconds: config.Int("QUEUE_WAIT_SECONDS", 10),
		PollEvery:   config.Duration("QUEUE_POLL_EVERY", 30*time.Second),
	})
	go worker.Run(ctx)

	adminToken := config.String("ADMIN_TOKEN", "")
	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
	)
	// Manual drain endpoint; the poll loop covers steady state.
	mux.HandleFunc("/admin/processOnce", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if adminToken == "" || r.Header.Get("x-admin-token") != adminToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := worker.ProcessOnce(r.Context()); err != nil {
			logger.Error("manual queue drain failed", "err", err)
			http.Error(w, "queue poll failed", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "worker")
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
