package services_test

import (
	"errors"
	"net/http"
	"testing"

	"hoist/internal/services"
)

func TestWrapTagsWithMarker(t *testing.T) {
	cause := errors.New("disk full")
	err := services.Wrap(services.ErrStorage, "finalize", "write metadata", cause)

	if !errors.Is(err, services.ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage in chain", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v, want cause in chain", err)
	}
	want := "storage error: finalize: write metadata: disk full"
	if err.Error() != want {
		t.Fatalf("err = %q, want %q", err.Error(), want)
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := services.Wrap(services.ErrNotFound, "remove job", "job abc", nil)
	if err.Error() != "not found: remove job: job abc" {
		t.Fatalf("err = %q", err.Error())
	}
}

func TestWrapNilMarkerDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
	if err.Error() != "transient failure: service failure" {
		t.Fatalf("err = %q", err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{services.Wrap(services.ErrValidation, "create", "bad url", nil), http.StatusBadRequest},
		{services.Wrap(services.ErrDomainRejected, "create", "host", nil), http.StatusBadRequest},
		{services.Wrap(services.ErrNotFound, "get", "job", nil), http.StatusNotFound},
		{services.Wrap(services.ErrConflict, "remove", "live", nil), http.StatusConflict},
		{services.Wrap(services.ErrStorage, "update", "db", nil), http.StatusInternalServerError},
		{errors.New("unclassified"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := services.HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestMessageStripsSentinelPrefix(t *testing.T) {
	err := services.Wrap(services.ErrExtraction, "fetch", "tool exited 1", nil)
	if got := services.Message(err); got != "fetch: tool exited 1" {
		t.Fatalf("Message = %q", got)
	}

	plain := errors.New("already readable")
	if got := services.Message(plain); got != "already readable" {
		t.Fatalf("Message = %q", got)
	}
	if got := services.Message(nil); got != "" {
		t.Fatalf("Message(nil) = %q", got)
	}
}
