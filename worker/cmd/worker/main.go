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

	"mediaPipeline/agents"
	"mediaPipeline/cache"
	"mediaPipeline/converter"
	"mediaPipeline/database"
	"mediaPipeline/engine"
	"mediaPipeline/kafka"
	"mediaPipeline/metrics"
	"mediaPipeline/notify"
	"mediaPipeline/provider"
	"mediaPipeline/repository"
	"mediaPipeline/worker/config"
	"mediaPipeline/worker/pool"
	"mediaPipeline/worker/service"
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

	logger.Info("Worker Service starting",
		zap.Int("workers", cfg.WorkerCount),
		zap.String("topic", cfg.KafkaTopic),
		zap.String("provider", cfg.Provider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(ctx, cfg.DatabaseURL, int32(cfg.WorkerCount*2))
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

	consumer, err := kafka.NewConsumer(cfg.Brokers(), cfg.KafkaGroupID, logger)
	if err != nil {
		logger.Fatal("Failed to create kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	text, media, err := buildProviders(cfg)
	if err != nil {
		logger.Fatal("Failed to configure providers", zap.Error(err))
	}

	store := repository.NewPostgresRepo(db)
	repo := cache.TrackStatus(store, cache.NewStatusCache(redisCache, cfg.StatusCacheTTL), logger)
	m := metrics.New()
	notifier := notify.Multi{
		notify.NewLogNotifier(logger),
		notify.NewRedisPublisher(redisCache.Client()),
	}

	set := agents.NewSet(agents.Deps{
		Text:        text,
		Media:       media,
		Assets:      store,
		Converter:   converter.NewConverter(logger),
		MediaDir:    cfg.MediaDir,
		CallbackURL: cfg.CallbackURL,
	})
	if err := set.Validate(); err != nil {
		logger.Fatal("Agent set is incomplete", zap.Error(err))
	}

	executor := engine.NewExecutor(repo, set, notifier, m, logger, cfg.StepTimeout)
	runner := engine.NewRunner(repo, executor, notifier, m, logger)
	controls := engine.NewControls(repo, producer, notifier, m, logger)
	bridge := engine.NewBridge(repo, producer, notifier, m, logger)

	processor := service.NewProcessor(
		executor,
		runner,
		controls,
		bridge,
		cache.NewRedisLocker(redisCache.Client()),
		m,
		logger,
		service.Options{
			MaxAttempts:     cfg.MaxAttempts,
			PipelineTimeout: cfg.PipelineTimeout,
			LockWait:        cfg.LockWait,
		},
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()

	workers := pool.NewWorkerPool(cfg.WorkerCount)
	err = consumer.Consume(ctx, cfg.KafkaTopic, func(ctx context.Context, msg *kafka.JobMessage) {
		workers.Submit(ctx, msg, processor.Process)
	})
	if err != nil {
		logger.Error("Consumer stopped", zap.Error(err))
	}

	logger.Info("Worker Service shutting down")
	workers.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func buildProviders(cfg *config.Config) (provider.TextGenerator, provider.MediaSubmitter, error) {
	var text provider.TextGenerator = &provider.DummyText{}
	if cfg.Provider == "openai" {
		t, err := provider.NewOpenAIText(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, nil, err
		}
		text = t
	}

	var media provider.MediaSubmitter = &provider.DummyMedia{}
	if cfg.MediaAPIURL != "" {
		media = &provider.HTTPMedia{
			Endpoint:   cfg.MediaAPIURL,
			APIKey:     cfg.MediaAPIKey,
			HTTPClient: &http.Client{Timeout: 30 * time.Second},
		}
	}
	return text, media, nil
}
