package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ClaimNext atomically pops the oldest pending job and marks it running.
// The pop and the status flip happen in one statement, so no two workers
// can ever claim the same job. Returns nil when the queue is empty.
func (s *Store) ClaimNext(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	var (
		job     *Job
		scanErr error
	)
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(
			ctx,
			`UPDATE jobs
             SET status = ?, progress = 0, error_message = NULL, updated_at = ?
             WHERE id = (
                 SELECT id FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT 1
             ) AND status = ?
             RETURNING `+jobColumns,
			StatusRunning,
			timestamp,
			StatusPending,
			StatusPending,
		)
		job, scanErr = scanJob(row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

// RequeueInterrupted returns jobs left running by a previous process back to
// pending and lists every pending job id in FIFO order for re-enqueueing.
// Interrupted jobs lose their progress and artifact fields; the download
// starts over on the next claim.
func (s *Store) RequeueInterrupted(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, progress = 0, title = NULL, output_dir = NULL,
             metadata_path = NULL, description_path = NULL, file_manifest = '[]',
             error_message = NULL, updated_at = ?
         WHERE status = ?`,
		StatusPending,
		timestamp,
		StatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("requeue interrupted jobs: %w", err)
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id FROM jobs WHERE status = ? ORDER BY created_at, id`,
		StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusRunning:
			health.Running += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}
