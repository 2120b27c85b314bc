package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"hoist/internal/artifacts"
	"hoist/internal/jobs"
	"hoist/internal/logging"
	"hoist/internal/notifications"
	"hoist/internal/services"
	"hoist/internal/services/ytdlp"
)

// Enqueuer wakes the worker pool after a submission.
type Enqueuer interface {
	Enqueue()
}

// JobService implements the job operations shared by the HTTP API and CLI.
type JobService struct {
	store     *jobs.Store
	fetcher   ytdlp.Client
	artifacts *artifacts.Manager
	notifier  notifications.Service
	pool      Enqueuer
	logger    *slog.Logger
}

// NewJobService constructs a JobService around the given collaborators.
// pool may be nil for read-only consumers.
func NewJobService(store *jobs.Store, fetcher ytdlp.Client, manager *artifacts.Manager, notifier notifications.Service, pool Enqueuer, logger *slog.Logger) *JobService {
	return &JobService{
		store:     store,
		fetcher:   fetcher,
		artifacts: manager,
		notifier:  notifier,
		pool:      pool,
		logger:    logging.NewComponentLogger(logger, "api"),
	}
}

// Create validates and persists a new download job, announces it, and wakes
// the worker pool. Resubmitting a URL that is already pending or running is
// a conflict; terminal jobs with the same URL do not block a fresh download.
func (s *JobService) Create(ctx context.Context, sourceURL string, chatID int64) (JobView, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if err := validateSourceURL(sourceURL); err != nil {
		return JobView{}, err
	}
	if !s.fetcher.DomainAllowed(sourceURL) {
		return JobView{}, services.Wrap(services.ErrDomainRejected, "create job",
			fmt.Sprintf("domain of %s is not in the allow-list", sourceURL), nil)
	}

	existing, err := s.store.FindBySourceURL(ctx, sourceURL)
	if err != nil {
		return JobView{}, err
	}
	if existing != nil && existing.Status.IsLive() {
		return JobView{}, services.Wrap(services.ErrConflict, "create job",
			fmt.Sprintf("job %s for this url is already %s", existing.ID, existing.Status), nil)
	}

	job, err := s.store.New(ctx, sourceURL, chatID)
	if err != nil {
		return JobView{}, err
	}
	s.logger.Info("job created",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldSourceURL, job.SourceURL),
	)

	if messageID, err := s.notifier.NotifyJobQueued(ctx, job); err != nil {
		s.logger.Warn("queued notification failed", logging.Error(err))
	} else if messageID != 0 {
		if err := s.store.SetMessageID(ctx, job.ID, messageID); err != nil {
			s.logger.Warn("failed to persist chat message id", logging.Error(err))
		} else {
			job.MessageID = messageID
		}
	}

	if s.pool != nil {
		s.pool.Enqueue()
	}
	return FromJob(job), nil
}

// Get fetches a single job.
func (s *JobService) Get(ctx context.Context, id string) (JobView, error) {
	job, err := s.requireJob(ctx, id)
	if err != nil {
		return JobView{}, err
	}
	return FromJob(job), nil
}

// List returns jobs matching the filter, newest first.
func (s *JobService) List(ctx context.Context, filter jobs.Filter) ([]JobView, error) {
	list, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromJobs(list), nil
}

// UpdateFlags applies watched/starred changes. Starring without an explicit
// watched value marks the job watched as well; an explicit value always
// wins.
func (s *JobService) UpdateFlags(ctx context.Context, id string, update FlagsUpdate) (JobView, error) {
	if update.Watched == nil && update.Starred == nil {
		return JobView{}, services.Wrap(services.ErrValidation, "update flags", "no flags provided", nil)
	}

	watched := update.Watched
	if update.Starred != nil && *update.Starred && watched == nil {
		implied := true
		watched = &implied
	}

	job, err := s.store.UpdateFlags(ctx, id, watched, update.Starred)
	if err != nil {
		return JobView{}, err
	}
	return FromJob(job), nil
}

// ListFiles returns the published manifest of a job.
func (s *JobService) ListFiles(ctx context.Context, id string) (JobFilesResponse, error) {
	job, err := s.requireJob(ctx, id)
	if err != nil {
		return JobFilesResponse{}, err
	}
	files := append([]string(nil), job.FileManifest...)
	if files == nil {
		files = []string{}
	}
	return JobFilesResponse{ID: job.ID, Files: files}, nil
}

// Remove deletes a terminal job and its files. Pending and running jobs are
// refused with a conflict.
func (s *JobService) Remove(ctx context.Context, id string) (JobDeleted, error) {
	removed, err := s.store.Remove(ctx, id)
	if err != nil {
		return JobDeleted{}, err
	}

	if s.artifacts != nil {
		if err := s.artifacts.RemoveJobFiles(removed.OutputDir, removed.FileManifest); err != nil {
			s.logger.Warn("failed to remove job files",
				logging.String(logging.FieldJobID, id), logging.Error(err))
		}
	}
	s.logger.Info("job removed", logging.String(logging.FieldJobID, id))
	return JobDeleted{ID: id, Deleted: true}, nil
}

func (s *JobService) requireJob(ctx context.Context, id string) (*jobs.Job, error) {
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "get job",
			fmt.Sprintf("job %s not found", id), nil)
	}
	return job, nil
}

func validateSourceURL(sourceURL string) error {
	if sourceURL == "" {
		return services.Wrap(services.ErrValidation, "create job", "source url required", nil)
	}
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return services.Wrap(services.ErrValidation, "create job", "source url is not a valid url", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return services.Wrap(services.ErrValidation, "create job", "source url must use http or https", nil)
	}
	if parsed.Host == "" {
		return services.Wrap(services.ErrValidation, "create job", "source url missing host", nil)
	}
	return nil
}
