package jobs

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a download job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsLive reports whether a job in this status is queued or executing.
func (s Status) IsLive() bool {
	return s == StatusPending || s == StatusRunning
}

// Job represents one download request persisted in SQLite.
//
// Artifact fields (Title, OutputDir, MetadataPath, DescriptionPath,
// FileManifest) are written once by the worker that executed the job and
// never mutated afterward. Paths are relative to the download root.
type Job struct {
	ID              string
	SourceURL       string
	Status          Status
	Progress        float64
	Title           string
	OutputDir       string
	MetadataPath    string
	DescriptionPath string
	FileManifest    []string
	ErrorMessage    string
	ChatID          int64
	MessageID       int64
	Watched         bool
	Starred         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SetCompleted records a successful execution result on the job.
func (j *Job) SetCompleted(title, outputDir, metadataPath, descriptionPath string, manifest []string) {
	j.Status = StatusCompleted
	j.Progress = 100
	j.Title = title
	j.OutputDir = outputDir
	j.MetadataPath = metadataPath
	j.DescriptionPath = descriptionPath
	j.FileManifest = manifest
	j.ErrorMessage = ""
}

// SetFailed marks the job as failed with the given error message. Artifact
// fields are left as-is so a partially written working directory stays
// discoverable for diagnosis.
func (j *Job) SetFailed(message string) {
	j.Status = StatusFailed
	j.ErrorMessage = message
}

// Filter narrows List results. Nil fields match everything.
type Filter struct {
	Status  *Status
	Watched *bool
	Starred *bool
}

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
}
