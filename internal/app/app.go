// Package app is the composition root: it owns every long-lived component
// and the shutdown ordering.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"loadsignal.dev/collector/internal/analytics"
	"loadsignal.dev/collector/internal/config"
	"loadsignal.dev/collector/internal/db"
	"loadsignal.dev/collector/internal/dedup"
	"loadsignal.dev/collector/internal/discovery"
	"loadsignal.dev/collector/internal/dispatch"
	"loadsignal.dev/collector/internal/enrich"
	"loadsignal.dev/collector/internal/httpapi"
	"loadsignal.dev/collector/internal/logging"
	"loadsignal.dev/collector/internal/scheduler"
	"loadsignal.dev/collector/internal/sourcecfg"
)

const (
	fetchDrainGrace   = 30 * time.Second
	webhookDrainGrace = 15 * time.Second
)

// Run boots the collector and blocks until a termination signal arrives
// and the shutdown sequence finishes.
func Run() int {
	// A missing .env is fine; environment variables may come from anywhere.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("collector exited with error")
		return 1
	}
	return 0
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancelStart := context.WithTimeout(rootCtx, 30*time.Second)
	pool, err := db.NewPool(startCtx, cfg)
	cancelStart()
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("database ready")

	// Seed configured sources before the scheduler looks for them.
	specs, err := sourcecfg.LoadSources(cfg.SourcesPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.SourcesPath).Msg("sources file not loaded")
	} else if err := sourcecfg.SeedStore(rootCtx, pool, specs); err != nil {
		return fmt.Errorf("seed sources: %w", err)
	} else {
		logger.Info().Int("sources", len(specs)).Msg("sources seeded")
	}

	seeds, err := sourcecfg.LoadSeeds(cfg.DiscoverySeedsPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.DiscoverySeedsPath).Msg("discovery seeds not loaded")
	}

	deduplicator := dedup.New(pool, logger)
	if err := deduplicator.Warmup(rootCtx); err != nil {
		return fmt.Errorf("warm dedup indexes: %w", err)
	}

	webhookSender := dispatch.NewWebhookSender(pool, cfg.WebhookConcurrency, logger)
	dispatcher := dispatch.NewDispatcher(pool, webhookSender, cfg.MaxPushConnections, logger)

	llm := enrich.NewLLMClient(cfg)
	pipeline := enrich.NewPipeline(pool, llm, dispatcher, cfg.EnrichConcurrency, logger)

	sched := scheduler.New(pool, deduplicator, pipeline, cfg.FetchConcurrency, logger)

	engine := discovery.NewEngine(pool, seeds, cfg.DiscoverySearchAPIKey, cfg.DiscoverySearchEngineID, cfg.DiscoveryMaxCandidates, logger)
	validator := discovery.NewValidator(pool, seeds, cfg.DiscoveryAutoApproveScore, logger)
	jobs := discovery.NewJobs(engine, validator, cfg.DiscoveryIntervalHours, 10, cfg.DiscoveryEnabled, logger)

	analyticsService := analytics.NewService(pool)

	server := httpapi.NewServer(cfg, pool, pipeline, dispatcher, jobs, validator, analyticsService, logger)

	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	// Webhook workers outlive the main work context so queued deliveries
	// can drain during shutdown.
	webhookCtx, cancelWebhooks := context.WithCancel(context.Background())
	defer cancelWebhooks()

	var background sync.WaitGroup

	webhookSender.Start(webhookCtx)
	pipeline.Start(workCtx)

	background.Add(2)
	go func() {
		defer background.Done()
		sched.Run(workCtx)
	}()
	go func() {
		defer background.Done()
		jobs.Run(workCtx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		cancelWork()
		return err
	case <-rootCtx.Done():
	}

	logger.Info().Msg("shutdown requested")

	// Stop accepting new scheduler ticks and drain in-flight fetches.
	cancelWork()
	waitWithGrace(&background, fetchDrainGrace, logger, "background loops")

	// Stop the HTTP listener and wait for in-flight requests. Upgraded push
	// connections are not closed by this call.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}

	// Drain the webhook queue last, then stop its workers.
	webhookSender.Drain(webhookDrainGrace)
	cancelWebhooks()
	pipeline.Wait()

	logger.Info().Msg("shutdown complete")
	return nil
}

func waitWithGrace(wg *sync.WaitGroup, grace time.Duration, logger zerolog.Logger, what string) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		logger.Warn().Str("what", what).Dur("grace", grace).Msg("drain grace expired, forcing exit")
	}
}
