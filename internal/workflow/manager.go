package workflow

import (
	"log/slog"
	"sync"
	"time"

	"hoist/internal/artifacts"
	"hoist/internal/config"
	"hoist/internal/jobs"
	"hoist/internal/logging"
	"hoist/internal/notifications"
	"hoist/internal/progress"
	"hoist/internal/services/ytdlp"
)

// Transcoder receives completed jobs for an optional post-download pass.
type Transcoder interface {
	Submit(job *jobs.Job)
}

// Manager runs the bounded worker pool that drains the job queue.
type Manager struct {
	cfg        *config.Config
	store      *jobs.Store
	fetcher    ytdlp.Client
	artifacts  *artifacts.Manager
	notifier   notifications.Service
	transcoder Transcoder
	throttle   *progress.Throttle
	logger     *slog.Logger

	workers       int
	pollInterval  time.Duration
	retryInterval time.Duration
	toolTimeout   time.Duration
	nudge         chan struct{}

	mu      sync.RWMutex
	running bool
	cancel  func()
	wg      sync.WaitGroup
	lastErr error
	lastJob *jobs.Job
}

// ManagerOption configures optional Manager collaborators.
type ManagerOption func(*Manager)

// WithFetcher overrides the media tool client (used in tests).
func WithFetcher(fetcher ytdlp.Client) ManagerOption {
	return func(m *Manager) { m.fetcher = fetcher }
}

// WithNotifier overrides the notification service (used in tests).
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) { m.notifier = notifier }
}

// WithTranscoder wires the optional post-download transcode pool.
func WithTranscoder(transcoder Transcoder) ManagerOption {
	return func(m *Manager) { m.transcoder = transcoder }
}

// NewManager constructs a workflow manager from configuration.
func NewManager(cfg *config.Config, store *jobs.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	workers := cfg.Fetch.MaxConcurrentDownloads
	if workers < 1 {
		workers = 1
	}
	m := &Manager{
		cfg:   cfg,
		store: store,
		fetcher: ytdlp.NewCLI(
			ytdlp.WithBinary(cfg.FetchBinary()),
			ytdlp.WithAllowedDomains(cfg.Fetch.AllowedSourceDomains),
		),
		artifacts:     artifacts.NewManager(cfg.Paths.DownloadRoot, logger),
		notifier:      notifications.NewService(cfg),
		throttle:      progress.NewThrottle(cfg.Notifications.MinPercentStep),
		logger:        logging.NewComponentLogger(logger, "workflow"),
		workers:       workers,
		pollInterval:  time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		retryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		toolTimeout:   time.Duration(cfg.Fetch.ToolTimeout) * time.Second,
		nudge:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enqueue wakes an idle worker so a freshly submitted job is picked up
// without waiting out the poll interval. Safe to call from any goroutine.
func (m *Manager) Enqueue() {
	select {
	case m.nudge <- struct{}{}:
	default:
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *jobs.Job) {
	m.mu.Lock()
	if job != nil {
		cp := *job
		m.lastJob = &cp
	} else {
		m.lastJob = nil
	}
	m.mu.Unlock()
}
