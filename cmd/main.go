package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"tribunal/internal/adapters/ai"
	"tribunal/internal/adapters/config"
	"tribunal/internal/adapters/errors/noop"
	"tribunal/internal/adapters/errors/sentry"
	"tribunal/internal/adapters/telegram"
	"tribunal/internal/calibration"
	"tribunal/internal/events"
	"tribunal/internal/isolation"
	"tribunal/internal/metrics"
	"tribunal/internal/publish"
	"tribunal/internal/repository/postgres"
	"tribunal/internal/review"
	"tribunal/pkg/errors"
	"tribunal/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: tribunal <evidence-file> [requirements-file]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	metrics.Init()
	if cfg.Metrics.Enabled() {
		startMetricsServer(cfg.Metrics.Addr, log)
	}

	evidence, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to read evidence file: %v", err)
	}

	var requirements []byte
	if len(os.Args) > 2 {
		requirements, err = os.ReadFile(os.Args[2])
		if err != nil {
			log.Fatalf("Failed to read requirements file: %v", err)
		}
	}

	tracker := calibration.NewTracker(cfg.Calibration.Path)
	if err := tracker.Load(); err != nil {
		log.Fatalf("Failed to load calibration state: %v", err)
	}

	provider := ai.NewOpenAIProvider(ai.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		HTTPTimeout: cfg.AI.HTTPTimeout,
		RatePerSec:  cfg.AI.RatePerSec,
		RateBurst:   cfg.AI.RateBurst,
	})
	executor := review.NewAIExecutor(provider, review.AIExecutorConfig{
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
	})

	publisher := publish.NewPublisher(cfg.Results.Dir, initNotifier(cfg, log), initArchive(cfg, log))

	orchestrator := review.NewOrchestrator(
		cfg.Council,
		executor,
		isolation.NewIsolator(cfg.Isolation.BaseDir),
		&review.HeuristicScorer{},
		tracker,
		publisher,
	)

	result, err := orchestrator.RunRound(context.Background(), string(evidence), string(requirements))
	if err != nil {
		log.Fatalf("Round failed: %v", err)
	}

	for _, warning := range result.Warnings {
		log.Warnf("Round warning: %s", warning)
	}

	if result.Decision.FinalDecision != review.DecisionApprove {
		os.Exit(1)
	}
}

// startMetricsServer serves the Prometheus endpoint for the round's lifetime.
func startMetricsServer(addr string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	go func() {
		log.Infof("Metrics endpoint listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Warnf("Metrics endpoint stopped: %v", err)
		}
	}()
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// initNotifier picks the decision notifier: Telegram, then Kafka, then log.
// The publisher emits exactly one event through whichever is chosen.
func initNotifier(cfg *config.Config, log *logger.Logger) events.Notifier {
	if cfg.Telegram.Enabled() {
		notifier, err := telegram.NewNotifier(telegram.Config{
			Token:  cfg.Telegram.BotToken,
			ChatID: cfg.Telegram.ChatID,
		})
		if err == nil {
			log.Info("Decision notifications via Telegram")
			return notifier
		}
		log.Warnf("Failed to initialize Telegram notifier: %v", err)
	}

	if cfg.Kafka.Enabled() {
		log.Infof("Decision notifications via Kafka topic %s", cfg.Kafka.Topic)
		return events.NewKafkaNotifier(events.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
	}

	log.Info("Decision notifications via log only")
	return events.NewLogNotifier()
}

// initArchive connects the optional Postgres round archive.
func initArchive(cfg *config.Config, log *logger.Logger) publish.Archive {
	if !cfg.Postgres.Enabled() {
		return nil
	}

	db, err := postgres.Connect(cfg.Postgres)
	if err != nil {
		log.Warnf("Round archive disabled: %v", err)
		return nil
	}

	log.Info("Round archive enabled (Postgres)")
	return postgres.NewRoundArchive(db)
}
