package progress

import "sync"

// initialCheckpoint sits below any real percent so the first event for a
// job always passes the step filter.
const initialCheckpoint = -100.0

// Throttle reduces a noisy per-job progress stream to a bounded number of
// significant updates. An observed value is forwarded when it is the first
// event for the job, when it has advanced at least the configured step
// since the last forwarded value, or when it reaches 100 (forwarded once).
//
// Forwarded values are non-decreasing: regressions from the tool (a
// restarted sub-download reporting combined progress) are absorbed silently.
type Throttle struct {
	step float64

	mu          sync.Mutex
	checkpoints map[string]float64
}

// NewThrottle constructs a throttle with the given minimum percent step.
// Non-positive steps fall back to 10.
func NewThrottle(step float64) *Throttle {
	if step <= 0 {
		step = 10
	}
	return &Throttle{
		step:        step,
		checkpoints: make(map[string]float64),
	}
}

// Observe records a raw percent value for a job and reports whether it
// should be forwarded (persisted and notified).
func (t *Throttle) Observe(jobID string, percent float64) bool {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.checkpoints[jobID]
	if !ok {
		last = initialCheckpoint
	}
	if percent >= 100 {
		if last >= 100 {
			return false
		}
		t.checkpoints[jobID] = 100
		return true
	}
	if percent-last < t.step {
		return false
	}
	t.checkpoints[jobID] = percent
	return true
}

// Forget drops the tracked checkpoint for a job. Called when a job leaves
// the running state so ids can be reused after a requeue.
func (t *Throttle) Forget(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.checkpoints, jobID)
}
