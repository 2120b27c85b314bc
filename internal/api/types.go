package api

import (
	"hoist/internal/jobs"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// JobView describes a download job in a transport-friendly format.
type JobView struct {
	ID              string   `json:"id"`
	SourceURL       string   `json:"sourceUrl"`
	Status          string   `json:"status"`
	Progress        float64  `json:"progress"`
	Title           string   `json:"title,omitempty"`
	OutputDir       string   `json:"outputDir,omitempty"`
	MetadataPath    string   `json:"metadataPath,omitempty"`
	DescriptionPath string   `json:"descriptionPath,omitempty"`
	Files           []string `json:"files,omitempty"`
	ErrorMessage    string   `json:"errorMessage,omitempty"`
	Watched         bool     `json:"watched"`
	Starred         bool     `json:"starred"`
	CreatedAt       string   `json:"createdAt,omitempty"`
	UpdatedAt       string   `json:"updatedAt,omitempty"`
}

// FlagsUpdate carries the optional flag changes for a PATCH request. Nil
// fields leave the flag untouched.
type FlagsUpdate struct {
	Watched *bool `json:"watched"`
	Starred *bool `json:"starred"`
}

// JobDeleted reports the outcome of a remove operation.
type JobDeleted struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// JobListResponse wraps a collection of jobs for API responses.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// JobFilesResponse lists a job's published files relative to the download root.
type JobFilesResponse struct {
	ID    string   `json:"id"`
	Files []string `json:"files"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running     bool           `json:"running"`
	PID         int            `json:"pid"`
	Workers     int            `json:"workers"`
	JobDBPath   string         `json:"jobDbPath"`
	LockPath    string         `json:"lockFilePath"`
	JobStats    map[string]int `json:"jobStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastJob     *JobView       `json:"lastJob,omitempty"`
}

// FromJob converts a stored job into its API representation.
func FromJob(job *jobs.Job) JobView {
	if job == nil {
		return JobView{}
	}
	view := JobView{
		ID:              job.ID,
		SourceURL:       job.SourceURL,
		Status:          string(job.Status),
		Progress:        job.Progress,
		Title:           job.Title,
		OutputDir:       job.OutputDir,
		MetadataPath:    job.MetadataPath,
		DescriptionPath: job.DescriptionPath,
		ErrorMessage:    job.ErrorMessage,
		Watched:         job.Watched,
		Starred:         job.Starred,
	}
	if len(job.FileManifest) > 0 {
		view.Files = append(view.Files, job.FileManifest...)
	}
	if !job.CreatedAt.IsZero() {
		view.CreatedAt = job.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !job.UpdatedAt.IsZero() {
		view.UpdatedAt = job.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return view
}

// FromJobs converts a slice of stored jobs preserving order.
func FromJobs(list []*jobs.Job) []JobView {
	views := make([]JobView, 0, len(list))
	for _, job := range list {
		views = append(views, FromJob(job))
	}
	return views
}

// MergeJobStats exposes job counts keyed by status string, defaulting every
// known status to zero so consumers see a stable shape.
func MergeJobStats(stats map[jobs.Status]int) map[string]int {
	merged := make(map[string]int, len(jobs.AllStatuses()))
	for _, status := range jobs.AllStatuses() {
		merged[string(status)] = 0
	}
	for status, count := range stats {
		merged[string(status)] = count
	}
	return merged
}
