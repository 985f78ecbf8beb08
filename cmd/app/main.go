package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"scanguard/internal/config"
	"scanguard/internal/domain/model"
	"scanguard/internal/domain/ports/adapter"
	ml "scanguard/internal/infra/adapters/ml"
	pg "scanguard/internal/infra/db/postgres"
	"scanguard/internal/infra/logging"
	"scanguard/internal/infra/metrics"
	red "scanguard/internal/infra/redis"
	"scanguard/internal/infra/web"
	"scanguard/internal/infra/worker"
	"scanguard/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, noop ML fallback)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	// Collectors are queued by package init; expose them before anything
	// starts counting.
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer pool.Close()
	tm := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisClient.Close()
	cache := red.NewPredictionCache(redisClient, cfg.Redis.TextTTL, cfg.Redis.URLTTL)
	limiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)
	notifier := red.NewNotifier(redisClient)

	// ---- Repositories ----
	queue := pg.NewScanJobRepo(pool, tm)
	scanHistory := pg.NewScanHistoryRepo(pool)
	phishingHistory := pg.NewPhishingHistoryRepo(pool)
	feedbackRepo := pg.NewFeedbackRepo(pool)
	versionRepo := pg.NewModelVersionRepo(pool)

	// ---- ML adapter ----
	var (
		predictor adapter.PredictionClient
		trainer   adapter.TrainingClient
	)
	if cfg.ML.BaseURL == "" {
		logger.Warn().Msg("ml.base_url unset, using noop ML client")
		noop := ml.NoopClient{}
		predictor, trainer = noop, noop
	} else {
		client, err := ml.NewHTTPClient(cfg.ML.BaseURL, cfg.ML.APIKey, cfg.ML.PredictTimeout, cfg.ML.RetrainTimeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("ml client init failed")
		}
		predictor, trainer = client, client
	}

	// ---- Use cases ----
	scanUC := usecase.NewScanUseCase(queue, scanHistory, limiter, cfg.Feedback.SubmitPerMinute, logger)
	feedbackUC := usecase.NewFeedbackUseCase(feedbackRepo, scanHistory, phishingHistory, queue,
		cfg.ML.ModelType, cfg.Feedback.RetrainThreshold, logger)
	modelUC := usecase.NewModelUseCase(versionRepo, tm, logger)

	// ---- Worker pools ----
	type class struct {
		cfg  config.WorkerClassConfig
		kind model.JobKind
	}
	classes := []class{
		{cfg.Workers.Text, model.JobText},
		{cfg.Workers.Voice, model.JobVoice},
		{cfg.Workers.URL, model.JobURL},
	}
	pools := make([]*worker.Pool, 0, len(classes)+2)
	for _, c := range classes {
		p := worker.NewPool(c.cfg.Concurrency, c.cfg.Rate, c.cfg.Burst, cfg.Workers.PollInterval)
		proc := worker.NewScanProcessor(c.kind, queue, cache, predictor,
			scanHistory, phishingHistory, notifier, cfg.Workers.RetryBackoff, logger)
		p.Start(ctx, proc.ProcessOne)
		pools = append(pools, p)
		logger.Info().Str("kind", string(c.kind)).Int("concurrency", c.cfg.Concurrency).
			Float64("rate", c.cfg.Rate).Msg("scan worker pool started")
	}

	fbPool := worker.NewPool(cfg.Workers.Feedback.Concurrency, cfg.Workers.Feedback.Rate,
		cfg.Workers.Feedback.Burst, cfg.Workers.PollInterval)
	fbProc := worker.NewFeedbackProcessor(queue, feedbackRepo, scanHistory, phishingHistory,
		notifier, cfg.Feedback, cfg.Workers.RetryBackoff, logger)
	fbPool.Start(ctx, fbProc.ProcessOne)
	pools = append(pools, fbPool)

	// Retraining is strictly single-worker; the Redis lock covers multi-node.
	rtPool := worker.NewPool(1, 0, 0, cfg.Workers.PollInterval)
	rtProc := worker.NewRetrainProcessor(queue, versionRepo, feedbackUC, trainer, modelUC,
		locker, notifier, cfg.Feedback.RetrainThreshold, cfg.Retrain.LockTTL,
		cfg.Workers.RetryBackoff, logger)
	rtPool.Start(ctx, rtProc.ProcessOne)
	pools = append(pools, rtPool)

	// ---- Admin / ops HTTP server ----
	srv := web.NewServer(scanUC, feedbackUC, modelUC, queue, pool, redisClient, cfg.Admin.APIKey, logger)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Admin.Port), Handler: srv.Router()}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("admin http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Workers.DrainTimeout)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	for _, p := range pools {
		if !p.Drain(cfg.Workers.DrainTimeout) {
			logger.Warn().Msg("worker pool did not drain before timeout")
		}
	}
	logger.Info().Msg("shutdown complete")
}
