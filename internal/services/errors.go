package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors used to classify failures across the job pipeline.
// Callers wrap these with Wrap and branch with errors.Is.
var (
	// ErrValidation marks bad caller input (empty URL, malformed request).
	ErrValidation = errors.New("validation error")
	// ErrDomainRejected marks a source URL whose host is not in the
	// configured allow-list. Checked before the media tool is spawned.
	ErrDomainRejected = errors.New("domain rejected")
	// ErrExtraction marks a failure of the external media tool itself.
	ErrExtraction = errors.New("extraction error")
	// ErrStorage marks filesystem or job store failures.
	ErrStorage = errors.New("storage error")
	// ErrConflict marks operations refused because of current job state
	// (removing a live job, resubmitting an existing URL).
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks lookups for jobs that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks failures with no better classification.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes operation context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, operation, message string, err error) error {
	detail := buildDetail(operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// HTTPStatus maps a classified error to the status code the API returns.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrDomainRejected):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Message extracts the human-readable portion of a wrapped error, dropping
// the sentinel prefix so it can be stored on a job record or returned to
// API callers without the internal classification noise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	text := err.Error()
	for _, sentinel := range []error{
		ErrValidation, ErrDomainRejected, ErrExtraction,
		ErrStorage, ErrConflict, ErrNotFound, ErrTransient,
	} {
		prefix := sentinel.Error() + ": "
		if strings.HasPrefix(text, prefix) {
			return strings.TrimPrefix(text, prefix)
		}
	}
	return text
}

func buildDetail(operation, message string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
