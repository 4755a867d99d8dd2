package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/sagars2004/Flowstate/analysis"
	"github.com/sagars2004/Flowstate/core"
	"github.com/sagars2004/Flowstate/core/validation"
	"github.com/sagars2004/Flowstate/db"
	"github.com/sagars2004/Flowstate/delivery"
	"github.com/sagars2004/Flowstate/focus"
	"github.com/sagars2004/Flowstate/inference"
	"github.com/sagars2004/Flowstate/intervention"
	"github.com/sagars2004/Flowstate/logging"
	"github.com/sagars2004/Flowstate/patterns"
	"github.com/sagars2004/Flowstate/queue"
	"github.com/sagars2004/Flowstate/ratelimit"
	"github.com/sagars2004/Flowstate/server"
	"github.com/sagars2004/Flowstate/shutdown"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Use fmt here since the logger isn't initialized yet
		fmt.Printf("Note: no .env file loaded: %v\n", err)
	}

	isDevelopment := os.Getenv("DEV_MODE") == "true"

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "flowstate.log"
	}

	logger, err := logging.NewLogger(isDevelopment, logFile)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(core.ExitCodeError)
	}
	defer logger.Sync()

	// Startup validation with console feedback before heavy wiring
	result := validation.NewSuite().WithShowProgress(true).Validate()
	if !result.Success {
		logger.Error("startup validation failed",
			zap.Int("passed", result.Passed),
			zap.Int("failed", result.Failed))
		os.Exit(core.ExitCodeError)
	}

	config, err := core.LoadConfig()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Bool("inference_enabled", config.HasInferenceKey()),
		zap.String("fast_model", config.FastModel),
		zap.String("deep_model", config.DeepModel),
		zap.Int("tokens_per_minute", config.TokensPerMinute),
		zap.Int("requests_per_minute", config.RequestsPerMinute),
		zap.Duration("intervention_min_interval", config.InterventionMinInterval),
		zap.Int("port", config.Port),
		zap.Bool("dev_mode", isDevelopment),
	)

	if err := run(config, logger); err != nil {
		logger.Fatal("fatal error", zap.Error(err))
	}
	logger.Info("goodbye")
}

func run(config *core.Config, logger *logging.Logger) error {
	manager := shutdown.NewManager(logger.Named("shutdown"), 30*time.Second)
	manager.Start()
	ctx := manager.Context()

	// Storage
	database, err := db.Open(config.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	manager.Register("database", 40, func(context.Context) error {
		return database.Close()
	})
	database.StartCleanupScheduler(ctx, 30*24*time.Hour, 6*time.Hour, logger.Named("cleanup"))

	writer := db.NewAsyncWriter(database, logger.Named("db"))
	writer.Start()
	manager.Register("async writer", 30, func(ctx context.Context) error {
		if !writer.StopWithTimeout(10 * time.Second) {
			return fmt.Errorf("async writer drain timed out")
		}
		return nil
	})

	sessionStore := db.NewSessionStore(database)
	activityStore := db.NewActivityStore(database, writer)
	interventionStore := db.NewInterventionStore(database)

	// Detection and scoring, with optional tuning overrides
	tuning, err := core.LoadTuning(config.TuningPath)
	if err != nil {
		return err
	}
	detector := patterns.NewDetector(patterns.DefaultConfig())
	detector.UpdateConfig(patternOverrides(tuning))
	calculator, err := focus.NewCalculator(focusConfig(tuning))
	if err != nil {
		return err
	}
	analyzer := analysis.NewService(detector, calculator, logger.Named("analysis"))

	// Inference pipeline: limiter, queue, client. Skipped entirely in
	// degraded mode.
	var (
		generator intervention.Generator
		stats     server.StatsProvider
	)
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		TokensPerMinute:   config.TokensPerMinute,
		RequestsPerMinute: config.RequestsPerMinute,
	})
	if config.HasInferenceKey() {
		queueConfig := queue.DefaultConfig()
		queueConfig.MaxQueueSize = config.MaxQueueSize
		queueConfig.RetryDelay = config.RetryDelay
		queueConfig.DefaultTokenEstimate = config.DefaultTokenEstimate
		queueConfig.IsThrottle = inference.IsThrottle

		requestQueue := queue.New(limiter, queueConfig)
		manager.Register("request queue", 20, func(context.Context) error {
			requestQueue.Close()
			return nil
		})

		client := inference.NewClient(config, limiter, requestQueue, logger.Named("inference"))
		generator = client
		stats = client
	} else {
		logger.Warn("no inference API key configured, running in rule-based degraded mode")
	}

	// Delivery and orchestration
	hub := delivery.NewHub(delivery.DefaultHubConfig(), logger.Named("delivery"))
	go hub.Run(ctx)
	if stats != nil {
		go broadcastHealth(ctx, hub, stats)
	}

	orchestrator := intervention.New(intervention.Deps{
		Sessions:      sessionStore,
		Activities:    activityStore,
		Interventions: interventionStore,
		Analyzer:      analyzer,
		Limiter:       limiter,
		Generator:     generator,
		Deliverer:     hub,
		Config:        config,
		Logger:        logger.Named("intervention"),
	})
	orchestrator.Start(ctx)
	manager.Register("orchestrator", 15, func(context.Context) error {
		orchestrator.Wait()
		return nil
	})

	// HTTP surface
	srv := server.New(server.DefaultServerConfig(config.Port), server.Deps{
		Orchestrator:  orchestrator,
		Hub:           hub,
		Sessions:      sessionStore,
		Interventions: interventionStore,
		Stats:         stats,
		Logger:        logger.Named("http"),
	})
	manager.Register("http server", 10, srv.Shutdown)

	errChan := make(chan error, 1)
	go func() { errChan <- srv.Start() }()

	select {
	case err := <-errChan:
		if err != nil {
			manager.Shutdown()
			return err
		}
	case <-ctx.Done():
	}
	return manager.Shutdown()
}

// broadcastHealth pushes rate-limit headroom to every connected
// listener periodically, mirroring the REST health endpoint.
func broadcastHealth(ctx context.Context, hub *delivery.Hub, stats server.StatsProvider) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hub.BroadcastAll(delivery.MessageTypeHealth, stats.Stats())
		}
	}
}

// patternOverrides maps the optional tuning file onto detector
// overrides.
func patternOverrides(tuning *core.Tuning) patterns.Overrides {
	p := tuning.Patterns
	o := patterns.Overrides{
		ContextSwitchThreshold:   p.ContextSwitchThreshold,
		SocialMediaThreshold:     p.SocialMediaThreshold,
		FragmentedFocusThreshold: p.FragmentedFocusThreshold,
		FragmentedFocusMinRatio:  p.FragmentedFocusMinRatio,
	}
	if p.ContextSwitchWindowMin != nil {
		window := time.Duration(*p.ContextSwitchWindowMin) * time.Minute
		o.ContextSwitchWindow = &window
	}
	if p.FragmentedFocusWindowMin != nil {
		window := time.Duration(*p.FragmentedFocusWindowMin) * time.Minute
		o.FragmentedFocusWindow = &window
	}
	if p.IdleThresholdShortSec != nil {
		short := time.Duration(*p.IdleThresholdShortSec) * time.Second
		o.IdleThresholdShort = &short
	}
	if p.IdleThresholdExtendedSec != nil {
		extended := time.Duration(*p.IdleThresholdExtendedSec) * time.Second
		o.IdleThresholdExtended = &extended
	}
	return o
}

// focusConfig applies tuning overrides on top of the scorer defaults.
func focusConfig(tuning *core.Tuning) focus.Config {
	cfg := focus.DefaultConfig()
	w := tuning.Focus.Weights
	if w.TypingConsistency != nil {
		cfg.Weights.TypingConsistency = *w.TypingConsistency
	}
	if w.LowContextSwitching != nil {
		cfg.Weights.LowContextSwitching = *w.LowContextSwitching
	}
	if w.MinimalIdle != nil {
		cfg.Weights.MinimalIdle = *w.MinimalIdle
	}
	if w.SiteFocus != nil {
		cfg.Weights.SiteFocus = *w.SiteFocus
	}
	if len(tuning.Focus.ProductiveDomains) > 0 {
		cfg.ProductiveDomains = tuning.Focus.ProductiveDomains
	}
	if len(tuning.Focus.DistractingDomains) > 0 {
		cfg.DistractingDomains = tuning.Focus.DistractingDomains
	}
	return cfg
}
