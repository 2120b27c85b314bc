package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"hoist/internal/api"
	"hoist/internal/artifacts"
	"hoist/internal/config"
	"hoist/internal/daemon"
	"hoist/internal/jobs"
	"hoist/internal/logging"
	"hoist/internal/notifications"
	"hoist/internal/services/ytdlp"
	"hoist/internal/transcode"
	"hoist/internal/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Secrets may come from a local .env instead of the config file.
	_ = godotenv.Load()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := jobs.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		os.Exit(1)
	}

	notifier := notifications.NewService(cfg)
	fetcher := ytdlp.NewCLI(
		ytdlp.WithBinary(cfg.FetchBinary()),
		ytdlp.WithAllowedDomains(cfg.Fetch.AllowedSourceDomains),
	)
	pool := transcode.NewPool(cfg, store, logger)

	manager := workflow.NewManager(cfg, store, logger,
		workflow.WithFetcher(fetcher),
		workflow.WithNotifier(notifier),
		workflow.WithTranscoder(pool),
	)
	jobSvc := api.NewJobService(store, fetcher,
		artifacts.NewManager(cfg.Paths.DownloadRoot, logger),
		notifier, manager, logger)

	d, err := daemon.New(cfg, store, logger, manager, pool, notifier, jobSvc)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("hoistd shutting down")
}
