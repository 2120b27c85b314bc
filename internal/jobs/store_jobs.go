package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"hoist/internal/services"
)

const jobColumns = "id, source_url, status, progress, title, output_dir, metadata_path, description_path, file_manifest, error_message, chat_id, message_id, watched, starred, created_at, updated_at"

// New inserts a pending job for a source URL. chatID is the optional chat
// reference attached by the webhook; zero means none.
func (s *Store) New(ctx context.Context, sourceURL string, chatID int64) (*Job, error) {
	ctx = ensureContext(ctx)
	id := newJobID()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (id, source_url, status, progress, file_manifest, chat_id, created_at, updated_at)
         VALUES (?, ?, ?, 0, '[]', ?, ?, ?)`,
		id,
		sourceURL,
		StatusPending,
		nullableInt64(chatID),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. Returns nil when no job exists.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FindBySourceURL returns the first job matching a source URL, used to
// reject duplicate submissions.
func (s *Store) FindBySourceURL(ctx context.Context, sourceURL string) (*Job, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE source_url = ? ORDER BY created_at LIMIT 1`,
		sourceURL,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by source url: %w", err)
	}
	return job, nil
}

// Update persists all mutable fields of an existing job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()

	manifest, err := marshalManifest(job.FileManifest)
	if err != nil {
		return err
	}

	_, err = s.execWithRetry(
		ensureContext(ctx),
		`UPDATE jobs
         SET status = ?, progress = ?, title = ?, output_dir = ?, metadata_path = ?,
             description_path = ?, file_manifest = ?, error_message = ?, message_id = ?,
             watched = ?, starred = ?, updated_at = ?
         WHERE id = ?`,
		job.Status,
		job.Progress,
		nullableString(job.Title),
		nullableString(job.OutputDir),
		nullableString(job.MetadataPath),
		nullableString(job.DescriptionPath),
		manifest,
		nullableString(job.ErrorMessage),
		nullableInt64(job.MessageID),
		boolToInt(job.Watched),
		boolToInt(job.Starred),
		job.UpdatedAt.Format(time.RFC3339Nano),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// UpdateProgress persists a single progress value for a running job.
func (s *Store) UpdateProgress(ctx context.Context, id string, percent float64) error {
	_, err := s.execWithRetry(
		ensureContext(ctx),
		`UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ?`,
		percent,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// SetMessageID records the chat message used for in-place progress edits.
func (s *Store) SetMessageID(ctx context.Context, id string, messageID int64) error {
	_, err := s.execWithRetry(
		ensureContext(ctx),
		`UPDATE jobs SET message_id = ?, updated_at = ? WHERE id = ?`,
		nullableInt64(messageID),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set message id: %w", err)
	}
	return nil
}

// UpdateFlags mutates the organizational booleans. Nil pointers leave the
// corresponding flag untouched. Flags are independent of job status.
func (s *Store) UpdateFlags(ctx context.Context, id string, watched, starred *bool) (*Job, error) {
	if watched == nil && starred == nil {
		return s.GetByID(ctx, id)
	}

	assignments := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if watched != nil {
		assignments = append(assignments, "watched = ?")
		args = append(args, boolToInt(*watched))
	}
	if starred != nil {
		assignments = append(assignments, "starred = ?")
		args = append(args, boolToInt(*starred))
	}
	assignments = append(assignments, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano), id)

	res, err := s.execWithRetry(
		ensureContext(ctx),
		`UPDATE jobs SET `+strings.Join(assignments, ", ")+` WHERE id = ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("update flags: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, services.Wrap(services.ErrNotFound, "update flags", fmt.Sprintf("job %s", id), nil)
	}
	return s.GetByID(ctx, id)
}

// List returns jobs matching the filter, newest first. The created_at/id
// ordering is stable across repeated calls absent mutation.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var (
		clauses []string
		args    []any
	)
	if filter.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.Watched != nil {
		clauses = append(clauses, "watched = ?")
		args = append(args, boolToInt(*filter.Watched))
	}
	if filter.Starred != nil {
		clauses = append(clauses, "starred = ?")
		args = append(args, boolToInt(*filter.Starred))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var result []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

// Remove deletes a job record. Jobs that are pending or running are refused
// with a conflict error so live work is never deleted out from under a worker.
func (s *Store) Remove(ctx context.Context, id string) (*Job, error) {
	ctx = ensureContext(ctx)
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "remove job", fmt.Sprintf("job %s", id), nil)
	}
	if job.Status.IsLive() {
		return nil, services.Wrap(services.ErrConflict, "remove job",
			fmt.Sprintf("job %s is %s", id, job.Status), nil)
	}

	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ? AND status NOT IN (?, ?)`,
		id, StatusPending, StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Lost a race with a claim; report the conflict rather than pretending.
		return nil, services.Wrap(services.ErrConflict, "remove job",
			fmt.Sprintf("job %s was claimed concurrently", id), nil)
	}
	return job, nil
}

func newJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func marshalManifest(manifest []string) (string, error) {
	if len(manifest) == 0 {
		return "[]", nil
	}
	encoded, err := json.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	return string(encoded), nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              string
		sourceURL       string
		statusStr       string
		progress        sql.NullFloat64
		title           sql.NullString
		outputDir       sql.NullString
		metadataPath    sql.NullString
		descriptionPath sql.NullString
		manifestRaw     sql.NullString
		errorMessage    sql.NullString
		chatID          sql.NullInt64
		messageID       sql.NullInt64
		watched         sql.NullInt64
		starred         sql.NullInt64
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourceURL,
		&statusStr,
		&progress,
		&title,
		&outputDir,
		&metadataPath,
		&descriptionPath,
		&manifestRaw,
		&errorMessage,
		&chatID,
		&messageID,
		&watched,
		&starred,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		SourceURL:       sourceURL,
		Status:          Status(statusStr),
		Progress:        progress.Float64,
		Title:           title.String,
		OutputDir:       outputDir.String,
		MetadataPath:    metadataPath.String,
		DescriptionPath: descriptionPath.String,
		ErrorMessage:    errorMessage.String,
		ChatID:          chatID.Int64,
		MessageID:       messageID.Int64,
		Watched:         watched.Int64 != 0,
		Starred:         starred.Int64 != 0,
	}

	if manifestRaw.Valid && manifestRaw.String != "" {
		if err := json.Unmarshal([]byte(manifestRaw.String), &job.FileManifest); err != nil {
			return nil, fmt.Errorf("decode manifest for job %s: %w", id, err)
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}
