package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hoist/internal/jobs"
	"hoist/internal/logging"
)

// Start begins background processing with the configured worker count.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers)
	m.mu.Unlock()

	for i := 0; i < m.workers; i++ {
		worker := m.logger.With(logging.Int("worker", i))
		go m.runWorker(runCtx, worker)
	}

	m.logger.Info("worker pool started", logging.Int("workers", m.workers))
	return nil
}

// Stop terminates background processing and waits for workers to return.
// Jobs caught mid-download are abandoned in the running state; the next
// startup requeues them.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("worker pool stopped")
}

func (m *Manager) runWorker(ctx context.Context, logger *slog.Logger) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if job == nil {
			m.waitForWork(ctx)
			continue
		}

		m.processJob(ctx, logger, job)
	}
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to claim next job",
		logging.Error(err),
		logging.String(logging.FieldEventType, "claim_failed"),
		logging.String(logging.FieldErrorHint, "check job database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(m.retryInterval):
	}
}

func (m *Manager) waitForWork(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-m.nudge:
	case <-time.After(m.pollInterval):
	}
}

// RecoverInterrupted requeues jobs left in the running state by a previous
// process and nudges the pool once for each. Called before Start accepts
// new work so interrupted downloads restart from scratch.
func (m *Manager) RecoverInterrupted(ctx context.Context) error {
	requeued, err := m.store.RequeueInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("requeue interrupted jobs: %w", err)
	}
	for _, id := range requeued {
		m.logger.Info("requeued interrupted job", logging.String(logging.FieldJobID, id))
		m.Enqueue()
	}
	return nil
}

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running   bool
	Workers   int
	LastError string
	LastJob   *jobs.Job
	JobStats  map[jobs.Status]int
}

// Status reports the current pool state and queue statistics.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastJob := m.lastJob
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read job stats", logging.Error(err))
	}

	summary := StatusSummary{Running: running, Workers: m.workers, JobStats: stats}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastJob != nil {
		cp := *lastJob
		summary.LastJob = &cp
	}
	return summary
}
