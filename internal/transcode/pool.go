package transcode

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"hoist/internal/config"
	"hoist/internal/jobs"
	"hoist/internal/logging"
)

// commandContext is swapped out in tests.
var commandContext = exec.CommandContext

const submitBuffer = 64

// Pool re-encodes downloaded media into mp4 in the background. Completed
// jobs are submitted after their artifacts are published; each matching
// source file is replaced in place and the job manifest updated.
type Pool struct {
	cfg        *config.Config
	store      *jobs.Store
	logger     *slog.Logger
	root       string
	extensions map[string]struct{}

	queue chan string

	mu       sync.Mutex
	inFlight map[string]struct{}

	cancel func()
	wg     sync.WaitGroup
}

// NewPool constructs a transcode pool. Returns nil when transcoding is
// disabled; a nil Pool accepts Submit calls as no-ops.
func NewPool(cfg *config.Config, store *jobs.Store, logger *slog.Logger) *Pool {
	if !cfg.Transcode.Enabled {
		return nil
	}
	extensions := make(map[string]struct{}, len(cfg.Transcode.Extensions))
	for _, ext := range cfg.Transcode.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions[ext] = struct{}{}
	}
	return &Pool{
		cfg:        cfg,
		store:      store,
		logger:     logging.NewComponentLogger(logger, "transcode"),
		root:       cfg.Paths.DownloadRoot,
		extensions: extensions,
		queue:      make(chan string, submitBuffer),
		inFlight:   make(map[string]struct{}),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	if p == nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	workers := p.cfg.Transcode.Workers
	if workers < 1 {
		workers = 1
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.runWorker(runCtx)
	}
	p.logger.Info("transcode pool started", logging.Int("workers", workers))
}

// Stop terminates the workers and waits for the current file to finish
// encoding or be interrupted.
func (p *Pool) Stop() {
	if p == nil || p.cancel == nil {
		return
	}
	p.cancel()
	p.wg.Wait()
	p.logger.Info("transcode pool stopped")
}

// Submit queues a completed job for transcoding. Jobs without matching
// source files and jobs already queued are skipped; when the queue is full
// the job is dropped with a warning rather than blocking the caller.
func (p *Pool) Submit(job *jobs.Job) {
	if p == nil || job == nil {
		return
	}
	if !p.hasCandidates(job.FileManifest) {
		return
	}

	p.mu.Lock()
	if _, dup := p.inFlight[job.ID]; dup {
		p.mu.Unlock()
		return
	}
	p.inFlight[job.ID] = struct{}{}
	p.mu.Unlock()

	select {
	case p.queue <- job.ID:
	default:
		p.release(job.ID)
		p.logger.Warn("transcode queue full, dropping job",
			logging.String(logging.FieldJobID, job.ID))
	}
}

func (p *Pool) hasCandidates(manifest []string) bool {
	for _, rel := range manifest {
		if _, ok := p.extensions[strings.ToLower(filepath.Ext(rel))]; ok {
			return true
		}
	}
	return false
}

func (p *Pool) release(jobID string) {
	p.mu.Lock()
	delete(p.inFlight, jobID)
	p.mu.Unlock()
}

func (p *Pool) runWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-p.queue:
			p.processJob(ctx, jobID)
			p.release(jobID)
		}
	}
}

// processJob re-encodes every matching manifest entry and persists the
// rewritten manifest once. Individual file failures are logged and leave
// that entry untouched.
func (p *Pool) processJob(ctx context.Context, jobID string) {
	logger := p.logger.With(logging.String(logging.FieldJobID, jobID))

	job, err := p.store.GetByID(ctx, jobID)
	if err != nil {
		logger.Error("failed to load job for transcode", logging.Error(err))
		return
	}
	if job == nil || job.Status != jobs.StatusCompleted {
		return
	}

	changed := false
	manifest := make([]string, 0, len(job.FileManifest))
	for _, rel := range job.FileManifest {
		if ctx.Err() != nil {
			manifest = append(manifest, rel)
			continue
		}
		if _, ok := p.extensions[strings.ToLower(filepath.Ext(rel))]; !ok {
			manifest = append(manifest, rel)
			continue
		}
		replacement, err := p.transcodeFile(ctx, rel)
		if err != nil {
			logger.Warn("transcode failed, keeping original",
				logging.String("file", rel), logging.Error(err))
			manifest = append(manifest, rel)
			continue
		}
		logger.Info("transcoded file",
			logging.String("source", rel), logging.String("output", replacement))
		manifest = append(manifest, replacement)
		changed = true
	}
	if !changed {
		return
	}

	sort.Strings(manifest)
	// Re-read before writing so flag updates made during the encode survive.
	fresh, err := p.store.GetByID(ctx, jobID)
	if err != nil || fresh == nil {
		logger.Error("failed to reload job after transcode", logging.Error(err))
		return
	}
	fresh.FileManifest = manifest
	if err := p.store.Update(ctx, fresh); err != nil {
		logger.Error("failed to persist transcoded manifest", logging.Error(err))
	}
}

var errOutsideRoot = errors.New("path escapes download root")

// resolveWithinRoot joins a manifest entry to the download root and refuses
// any path that resolves outside it.
func (p *Pool) resolveWithinRoot(rel string) (string, error) {
	rel = strings.TrimLeft(strings.TrimSpace(rel), "/\\")
	if rel == "" {
		return "", errOutsideRoot
	}
	resolved := filepath.Clean(filepath.Join(p.root, rel))
	if resolved == p.root || !strings.HasPrefix(resolved, p.root+string(filepath.Separator)) {
		return "", errOutsideRoot
	}
	return resolved, nil
}

// transcodeFile encodes one source file into mp4 next to it, removes the
// source on success, and returns the replacement's root-relative path.
func (p *Pool) transcodeFile(ctx context.Context, rel string) (string, error) {
	source, err := p.resolveWithinRoot(rel)
	if err != nil {
		return "", err
	}
	target := strings.TrimSuffix(source, filepath.Ext(source)) + ".mp4"
	if _, err := os.Stat(target); err == nil {
		return "", os.ErrExist
	}

	cmd := commandContext(ctx, p.cfg.FFmpegBinary(),
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", source,
		"-c:v", "libx264", "-preset", "fast", "-crf", "23",
		"-c:a", "aac", "-movflags", "+faststart",
		target,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		_ = os.Remove(target)
		trimmed := strings.TrimSpace(string(output))
		if trimmed != "" {
			return "", &encodeError{output: trimmed, err: err}
		}
		return "", err
	}

	if err := os.Remove(source); err != nil {
		return "", err
	}
	return strings.TrimSuffix(rel, filepath.Ext(rel)) + ".mp4", nil
}

type encodeError struct {
	output string
	err    error
}

func (e *encodeError) Error() string { return e.err.Error() + ": " + e.output }
func (e *encodeError) Unwrap() error { return e.err }
