package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"hoist/internal/jobs"
	"hoist/internal/services/ytdlp"
)

// FakeFetcher implements ytdlp.Client for workflow and API tests. Fetch
// emits the configured progress sequence, writes the configured files into
// the working directory, and returns the configured result or error.
type FakeFetcher struct {
	mu       sync.Mutex
	calls    []string
	Progress []float64
	Files    map[string][]byte
	Result   *ytdlp.Result
	Err      error
	Block    chan struct{}
}

// Fetch records the call and replays the scripted outcome.
func (f *FakeFetcher) Fetch(ctx context.Context, sourceURL, workDir string, progress func(ytdlp.ProgressUpdate)) (*ytdlp.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sourceURL)
	f.mu.Unlock()

	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for _, percent := range f.Progress {
		if progress != nil {
			progress(ytdlp.ProgressUpdate{Percent: percent})
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}

	for name, content := range f.Files {
		if err := os.WriteFile(filepath.Join(workDir, name), content, 0o644); err != nil {
			return nil, err
		}
	}

	result := f.Result
	if result == nil {
		result = &ytdlp.Result{Title: "Fetched"}
	}
	if result.Files == nil {
		for name := range f.Files {
			result.Files = append(result.Files, name)
		}
	}
	return result, nil
}

// DomainAllowed accepts every URL.
func (f *FakeFetcher) DomainAllowed(string) bool { return true }

// Calls returns the source URLs Fetch has been invoked with.
func (f *FakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]string, len(f.calls))
	copy(cp, f.calls)
	return cp
}

// RecorderNotifier implements notifications.Service and records every event.
type RecorderNotifier struct {
	mu        sync.Mutex
	Queued    []string
	Started   []string
	Progress  map[string][]float64
	Completed []string
	Failed    []string
	Rejected  []string
	MessageID int64
}

func (r *RecorderNotifier) NotifyJobQueued(_ context.Context, job *jobs.Job) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Queued = append(r.Queued, job.ID)
	return r.MessageID, nil
}

func (r *RecorderNotifier) NotifyJobStarted(_ context.Context, job *jobs.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Started = append(r.Started, job.ID)
	return nil
}

func (r *RecorderNotifier) NotifyProgress(_ context.Context, job *jobs.Job, percent float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Progress == nil {
		r.Progress = make(map[string][]float64)
	}
	r.Progress[job.ID] = append(r.Progress[job.ID], percent)
	return nil
}

func (r *RecorderNotifier) NotifyJobCompleted(_ context.Context, job *jobs.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Completed = append(r.Completed, job.ID)
	return nil
}

func (r *RecorderNotifier) NotifyJobFailed(_ context.Context, job *jobs.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed = append(r.Failed, job.ID)
	return nil
}

func (r *RecorderNotifier) NotifyRejected(_ context.Context, chatID int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Rejected = append(r.Rejected, reason)
	return nil
}

func (r *RecorderNotifier) TestNotification(context.Context, int64) error { return nil }

// Snapshot returns copies of the recorded event slices under the lock.
func (r *RecorderNotifier) Snapshot() (started, completed, failed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	started = append(started, r.Started...)
	completed = append(completed, r.Completed...)
	failed = append(failed, r.Failed...)
	return started, completed, failed
}
