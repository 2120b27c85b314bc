package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"hoist/internal/api"
	"hoist/internal/config"
	"hoist/internal/jobs"
	"hoist/internal/logging"
	"hoist/internal/notifications"
	"hoist/internal/transcode"
	"hoist/internal/workflow"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *jobs.Store
	workflow  *workflow.Manager
	transcode *transcode.Pool
	notifier  notifications.Service
	jobSvc    *api.JobService

	apiSrv *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	JobDBPath    string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *jobs.Store, logger *slog.Logger, wf *workflow.Manager, pool *transcode.Pool, notifier notifications.Service, jobSvc *api.JobService) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil || jobSvc == nil {
		return nil, errors.New("daemon requires config, store, logger, workflow manager, and job service")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "hoistd.lock")
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		workflow:  wf,
		transcode: pool,
		notifier:  notifier,
		jobSvc:    jobSvc,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.apiSrv = srv
	return d, nil
}

// Start acquires the daemon lock, requeues work interrupted by a previous
// process, and launches the worker pool and HTTP server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another hoist daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.workflow.RecoverInterrupted(runCtx); err != nil {
		d.releaseStart()
		return err
	}
	if err := d.workflow.Start(runCtx); err != nil {
		d.releaseStart()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.transcode.Start(runCtx)

	if d.apiSrv != nil {
		if err := d.apiSrv.start(runCtx); err != nil {
			d.workflow.Stop()
			d.transcode.Stop()
			d.releaseStart()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("hoist daemon started", logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) releaseStart() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	_ = d.lock.Unlock()
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.apiSrv != nil {
		d.apiSrv.stop()
	}
	d.workflow.Stop()
	d.transcode.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("hoist daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddr returns the bound API address once Start has succeeded. Empty when
// no API server is configured.
func (d *Daemon) APIAddr() string {
	if d.apiSrv == nil {
		return ""
	}
	return d.apiSrv.addr()
}

// TestNotification triggers a test notification against the configured chat.
func (d *Daemon) TestNotification(ctx context.Context, chatID int64) (bool, string, error) {
	if d.notifier == nil || d.cfg.Notifications.TelegramBotToken == "" {
		return false, "telegram bot token not configured", nil
	}
	if err := d.notifier.TestNotification(ctx, chatID); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// JobHealth returns aggregate job diagnostics.
func (d *Daemon) JobHealth(ctx context.Context) (jobs.HealthSummary, error) {
	return d.store.Health(ctx)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		JobDBPath:    d.store.Path(),
		LockFilePath: d.lockPath,
	}
}

// downloadRoot exposes the published artifact root for the file server.
func (d *Daemon) downloadRoot() string {
	return d.cfg.Paths.DownloadRoot
}
