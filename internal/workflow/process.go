package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hoist/internal/jobs"
	"hoist/internal/logging"
	"hoist/internal/services"
	"hoist/internal/services/ytdlp"
)

// processJob drives one claimed job from running to a terminal state. A
// context cancellation leaves the job in the running state on purpose; the
// next startup requeues it.
func (m *Manager) processJob(ctx context.Context, logger *slog.Logger, job *jobs.Job) {
	jobLogger := logger.With(
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldSourceURL, job.SourceURL),
	)
	start := time.Now()
	jobLogger.Info("job started", logging.String(logging.FieldEventType, "job_start"))
	m.setLastJob(job)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("worker panic: %v", r)
			jobLogger.Error("job handler panicked", logging.Error(err))
			m.failJob(ctx, jobLogger, job, err)
		}
	}()
	defer m.throttle.Forget(job.ID)

	if err := m.notifier.NotifyJobStarted(ctx, job); err != nil {
		jobLogger.Warn("start notification failed", logging.Error(err))
	}

	workDir, err := m.artifacts.Prepare(job.ID)
	if err != nil {
		m.failJob(ctx, jobLogger, job, err)
		return
	}

	// The shutdown check below reads the worker context, not fetchCtx: a
	// tool timeout fails the job while a daemon shutdown abandons it.
	fetchCtx := ctx
	cancelFetch := func() {}
	if m.toolTimeout > 0 {
		fetchCtx, cancelFetch = context.WithTimeout(ctx, m.toolTimeout)
	}
	result, err := m.fetcher.Fetch(fetchCtx, job.SourceURL, workDir, func(update ytdlp.ProgressUpdate) {
		m.reportProgress(ctx, jobLogger, job, update.Percent)
	})
	cancelFetch()
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			jobLogger.Info("job interrupted by shutdown")
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = services.Wrap(services.ErrExtraction, "fetch",
				fmt.Sprintf("media tool exceeded the %s timeout", m.toolTimeout), err)
		}
		m.failJob(ctx, jobLogger, job, err)
		return
	}

	final, err := m.artifacts.Finalize(workDir, job.ID, result)
	if err != nil {
		m.failJob(ctx, jobLogger, job, err)
		return
	}

	title := strings.TrimSpace(result.Title)
	if title == "" {
		title = job.SourceURL
	}
	job.SetCompleted(title, final.OutputDir, final.MetadataPath, final.DescriptionPath, final.Manifest)
	if err := m.store.Update(ctx, job); err != nil {
		jobLogger.Error("failed to persist job completion", logging.Error(err))
		m.setLastError(err)
		return
	}
	m.setLastJob(job)

	if err := m.notifier.NotifyJobCompleted(ctx, job); err != nil {
		jobLogger.Warn("completion notification failed", logging.Error(err))
	}
	if m.transcoder != nil {
		m.transcoder.Submit(job)
	}

	jobLogger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String("title", job.Title),
		logging.Int("files", len(job.FileManifest)),
		logging.Duration("job_duration", time.Since(start)),
	)
}

// reportProgress persists and forwards a progress sample when it clears the
// notification throttle. Persistence failures are logged and swallowed; a
// dropped sample never aborts a download.
func (m *Manager) reportProgress(ctx context.Context, logger *slog.Logger, job *jobs.Job, percent float64) {
	if !m.throttle.Observe(job.ID, percent) {
		return
	}
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	job.Progress = percent

	if err := m.store.UpdateProgress(ctx, job.ID, percent); err != nil {
		logger.Warn("failed to persist progress", logging.Error(err))
	}
	if err := m.notifier.NotifyProgress(ctx, job, percent); err != nil {
		logger.Warn("progress notification failed", logging.Error(err))
	}
}

func (m *Manager) failJob(ctx context.Context, logger *slog.Logger, job *jobs.Job, cause error) {
	m.setLastError(cause)
	job.SetFailed(services.Message(cause))
	logger.Error("job failed",
		logging.Error(cause),
		logging.String(logging.FieldEventType, "job_failed"),
	)

	if err := m.store.Update(ctx, job); err != nil {
		logger.Error("failed to persist job failure", logging.Error(err))
		return
	}
	m.setLastJob(job)

	if err := m.notifier.NotifyJobFailed(ctx, job); err != nil {
		logger.Warn("failure notification failed", logging.Error(err))
	}
}
