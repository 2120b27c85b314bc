package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hoist/internal/jobs"
	"hoist/internal/logging"
	"hoist/internal/services/ytdlp"
	"hoist/internal/testsupport"
	"hoist/internal/workflow"
)

func waitForStatus(t *testing.T, store *jobs.Store, id string, want jobs.Status) *jobs.Job {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job != nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", id, want)
	return nil
}

func TestManagerCompletesJob(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)

	fetcher := &testsupport.FakeFetcher{
		Progress: []float64{10, 25, 33, 50, 100},
		Files:    map[string][]byte{"clip.mp4": []byte("video")},
		Result:   &ytdlp.Result{Title: "Sample Clip", Metadata: map[string]any{"id": "abc"}},
	}
	notifier := &testsupport.RecorderNotifier{}

	manager := workflow.NewManager(cfg, store, logging.NewNop(),
		workflow.WithFetcher(fetcher),
		workflow.WithNotifier(notifier),
	)
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	defer manager.Stop()

	job := testsupport.NewJob(t, store, "https://example.com/watch?v=1")
	manager.Enqueue()

	done := waitForStatus(t, store, job.ID, jobs.StatusCompleted)
	if done.Title != "Sample Clip" {
		t.Fatalf("expected title Sample Clip, got %q", done.Title)
	}
	if done.Progress != 100 {
		t.Fatalf("expected progress 100, got %v", done.Progress)
	}
	if done.OutputDir == "" || done.MetadataPath == "" {
		t.Fatalf("expected artifact paths to be recorded, got %+v", done)
	}
	if len(done.FileManifest) == 0 {
		t.Fatalf("expected non-empty manifest")
	}
	for _, rel := range done.FileManifest {
		if _, err := os.Stat(filepath.Join(cfg.Paths.DownloadRoot, rel)); err != nil {
			t.Fatalf("manifest entry %s missing on disk: %v", rel, err)
		}
	}

	started, completed, failed := notifier.Snapshot()
	if len(started) != 1 || len(completed) != 1 || len(failed) != 0 {
		t.Fatalf("unexpected notification counts: started=%d completed=%d failed=%d",
			len(started), len(completed), len(failed))
	}
	samples := notifier.Progress[job.ID]
	want := []float64{10, 25, 50, 100}
	if len(samples) != len(want) {
		t.Fatalf("expected progress samples %v, got %v", want, samples)
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Fatalf("expected progress samples %v, got %v", want, samples)
		}
	}
}

func TestManagerRecordsFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)

	fetcher := &testsupport.FakeFetcher{Err: errors.New("network unreachable")}
	notifier := &testsupport.RecorderNotifier{}

	manager := workflow.NewManager(cfg, store, logging.NewNop(),
		workflow.WithFetcher(fetcher),
		workflow.WithNotifier(notifier),
	)
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	defer manager.Stop()

	job := testsupport.NewJob(t, store, "https://example.com/watch?v=2")
	manager.Enqueue()

	failedJob := waitForStatus(t, store, job.ID, jobs.StatusFailed)
	if failedJob.ErrorMessage == "" {
		t.Fatalf("expected error message on failed job")
	}

	_, _, failed := notifier.Snapshot()
	if len(failed) != 1 {
		t.Fatalf("expected one failure notification, got %d", len(failed))
	}
}

func TestManagerFailsJobOnToolTimeout(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	cfg.Fetch.ToolTimeout = 1

	store := testsupport.MustOpenStore(t, cfg)

	// Block is never released; only the timeout can end the fetch.
	fetcher := &testsupport.FakeFetcher{Block: make(chan struct{})}
	notifier := &testsupport.RecorderNotifier{}

	manager := workflow.NewManager(cfg, store, logging.NewNop(),
		workflow.WithFetcher(fetcher),
		workflow.WithNotifier(notifier),
	)
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	defer manager.Stop()

	job := testsupport.NewJob(t, store, "https://example.com/watch?v=stall")
	manager.Enqueue()

	failedJob := waitForStatus(t, store, job.ID, jobs.StatusFailed)
	if !strings.Contains(failedJob.ErrorMessage, "timeout") {
		t.Fatalf("expected timeout in error message, got %q", failedJob.ErrorMessage)
	}

	_, _, failed := notifier.Snapshot()
	if len(failed) != 1 {
		t.Fatalf("expected one failure notification, got %d", len(failed))
	}
}

func TestManagerDrainsBacklogAcrossWorkers(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(3))
	store := testsupport.MustOpenStore(t, cfg)

	fetcher := &testsupport.FakeFetcher{Result: &ytdlp.Result{Title: "Clip"}}
	notifier := &testsupport.RecorderNotifier{}

	manager := workflow.NewManager(cfg, store, logging.NewNop(),
		workflow.WithFetcher(fetcher),
		workflow.WithNotifier(notifier),
	)

	var ids []string
	for i := 0; i < 6; i++ {
		job := testsupport.NewJob(t, store, "https://example.com/watch?v=backlog"+string(rune('a'+i)))
		ids = append(ids, job.ID)
	}

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	defer manager.Stop()
	manager.Enqueue()

	for _, id := range ids {
		waitForStatus(t, store, id, jobs.StatusCompleted)
	}
	if calls := fetcher.Calls(); len(calls) != len(ids) {
		t.Fatalf("expected %d fetch calls, got %d", len(ids), len(calls))
	}
}

func TestStopAbandonsInFlightJobForRequeue(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1))
	store := testsupport.MustOpenStore(t, cfg)

	fetcher := &testsupport.FakeFetcher{Block: make(chan struct{})}
	notifier := &testsupport.RecorderNotifier{}

	manager := workflow.NewManager(cfg, store, logging.NewNop(),
		workflow.WithFetcher(fetcher),
		workflow.WithNotifier(notifier),
	)
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start manager: %v", err)
	}

	job := testsupport.NewJob(t, store, "https://example.com/watch?v=3")
	manager.Enqueue()
	waitForStatus(t, store, job.ID, jobs.StatusRunning)

	manager.Stop()

	stuck, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stuck.Status != jobs.StatusRunning {
		t.Fatalf("expected abandoned job to stay running, got %s", stuck.Status)
	}

	if err := manager.RecoverInterrupted(context.Background()); err != nil {
		t.Fatalf("recover interrupted: %v", err)
	}
	recovered, err := store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if recovered.Status != jobs.StatusPending {
		t.Fatalf("expected recovered job to be pending, got %s", recovered.Status)
	}
	if recovered.Progress != 0 {
		t.Fatalf("expected recovered job progress reset, got %v", recovered.Progress)
	}
}

func TestStatusReportsPoolState(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(2))
	store := testsupport.MustOpenStore(t, cfg)

	manager := workflow.NewManager(cfg, store, logging.NewNop(),
		workflow.WithFetcher(&testsupport.FakeFetcher{}),
		workflow.WithNotifier(&testsupport.RecorderNotifier{}),
	)

	summary := manager.Status(context.Background())
	if summary.Running {
		t.Fatalf("expected not running before Start")
	}
	if summary.Workers != 2 {
		t.Fatalf("expected 2 workers, got %d", summary.Workers)
	}

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	defer manager.Stop()

	summary = manager.Status(context.Background())
	if !summary.Running {
		t.Fatalf("expected running after Start")
	}
}
