package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/feedd/internal/api"
	"github.com/newthinker/feedd/internal/config"
	"github.com/newthinker/feedd/internal/core"
	"github.com/newthinker/feedd/internal/feed"
	"github.com/newthinker/feedd/internal/health"
	"github.com/newthinker/feedd/internal/logger"
	"github.com/newthinker/feedd/internal/metrics"
	"github.com/newthinker/feedd/internal/provider"
	"github.com/newthinker/feedd/internal/selector"
	"github.com/newthinker/feedd/internal/storage/archive"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the price feed and HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	log.Info("starting feedd",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Strings("assets", cfg.Assets),
	)

	orch, deps, err := buildFeed(cfg, log)
	if err != nil {
		return err
	}

	server, err := api.NewServer(api.Config{
		Host:   cfg.Server.Host,
		Port:   cfg.Server.Port,
		APIKey: cfg.Server.APIKey,
	}, api.Dependencies{
		Cache:   deps.Cache,
		Tracker: deps.Tracker,
		Metrics: deps.Metrics,
	}, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := orch.Start(ctx); err != nil && err != context.Canceled {
			log.Error("feed error", zap.Error(err))
		}
	}()
	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down feedd")
	orch.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	return server.Shutdown(shutdownCtx)
}

func loadConfig(log *zap.Logger) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
		log.Warn("no config file specified, using defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// buildFeed wires adapters, tracker, selector, cache and orchestrator
// from configuration.
func buildFeed(cfg *config.Config, log *zap.Logger) (*feed.Orchestrator, feed.Dependencies, error) {
	adapters := make([]provider.Adapter, 0, len(cfg.Providers))
	priority := make([]core.ProviderID, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		a, err := provider.New(pc.Name, provider.Options{
			BaseURL: pc.BaseURL,
			APIKey:  pc.APIKey,
		})
		if err != nil {
			return nil, feed.Dependencies{}, fmt.Errorf("creating provider %q: %w", pc.Name, err)
		}
		adapters = append(adapters, a)
		priority = append(priority, a.Name())
	}

	deps := feed.Dependencies{
		Adapters: adapters,
		Tracker:  health.New(priority, cfg.Feed.FailureThreshold),
		Selector: selector.New(priority),
		Cache:    feed.NewCache(cfg.Feed.SubscriberBuffer),
	}

	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.NewRegistry()
	}

	if cfg.Archive.Enabled {
		store, err := buildArchive(cfg.Archive)
		if err != nil {
			return nil, feed.Dependencies{}, fmt.Errorf("creating archive: %w", err)
		}
		deps.Archive = store
		log.Info("snapshot archival enabled", zap.String("type", cfg.Archive.Type))
	}

	feedCfg := feed.Config{
		RefreshInterval:   cfg.Feed.RefreshInterval,
		CycleDeadline:     cfg.Feed.CycleDeadline,
		ProviderTimeout:   cfg.Feed.ProviderTimeout,
		RateLimitCooldown: cfg.Feed.RateLimitCooldown,
		Assets:            cfg.Assets,
	}

	orch, err := feed.New(feedCfg, deps, log)
	if err != nil {
		return nil, feed.Dependencies{}, fmt.Errorf("creating orchestrator: %w", err)
	}
	return orch, deps, nil
}

func buildArchive(cfg config.ArchiveConfig) (archive.Storage, error) {
	switch cfg.Type {
	case "localfs":
		return archive.NewLocalFS(cfg.Path)
	case "s3":
		return archive.NewS3(archive.S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown archive type %q", cfg.Type)
	}
}
