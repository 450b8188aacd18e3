package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mediaPipeline/api/config"
	"mediaPipeline/api/handlers"
	"mediaPipeline/api/middleware"
	"mediaPipeline/api/service"
	"mediaPipeline/cache"
	"mediaPipeline/database"
	"mediaPipeline/engine"
	"mediaPipeline/kafka"
	"mediaPipeline/metrics"
	"mediaPipeline/notify"
	"mediaPipeline/repository"
)

func main() {
	cfg := config.Load()

	var logger *zap.Logger
	if cfg.Env == "development" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("API Service starting", zap.String("port", cfg.Port))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(ctx, cfg.DatabaseURL, 10)
	if err != nil {
		logger.Fatal("Failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisCache, err := database.ConnectCache(cfg.RedisAddr)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisCache.Close()

	producer, err := kafka.NewProducer(cfg.Brokers(), cfg.KafkaTopic)
	if err != nil {
		logger.Fatal("Failed to create kafka producer", zap.Error(err))
	}
	defer producer.Close()

	if cfg.WebhookSecret == "" {
		logger.Warn("WEBHOOK_SECRET is empty, completion signals are not verified")
	}

	m := metrics.New()
	statusCache := cache.NewStatusCache(redisCache, cfg.StatusCacheTTL)
	repo := cache.TrackStatus(repository.NewPostgresRepo(db), statusCache, logger)
	notifier := notify.Multi{
		notify.NewLogNotifier(logger),
		notify.NewRedisPublisher(redisCache.Client()),
	}

	controls := engine.NewControls(repo, producer, notifier, m, logger)
	bridge := engine.NewBridge(repo, producer, notifier, m, logger)
	pipelineService := service.NewPipelineService(controls, bridge, statusCache, cfg.WebhookSecret, logger)

	mux := http.NewServeMux()
	handlers.NewPipelineHandler(pipelineService, logger).Register(mux)
	handlers.NewWebhookHandler(pipelineService, logger).Register(mux)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", m.Handler())

	var handler http.Handler = mux
	handler = middleware.Recovery(logger)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.TraceID(handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server started", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("API Service shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}
