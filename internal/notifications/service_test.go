package notifications

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"hoist/internal/config"
	"hoist/internal/jobs"
)

func TestNewServiceReturnsNoopWhenTokenMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.TelegramBotToken = ""
	svc := NewService(&cfg)
	if _, ok := svc.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", svc)
	}
	job := &jobs.Job{ID: "abc", SourceURL: "https://example.com/v", ChatID: 42}
	if _, err := svc.NotifyJobQueued(context.Background(), job); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func newTestService(t *testing.T, handler http.Handler) Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	previous := telegramAPIBase
	telegramAPIBase = server.URL
	t.Cleanup(func() { telegramAPIBase = previous })

	cfg := config.Default()
	cfg.Notifications.TelegramBotToken = "test-token"
	cfg.Notifications.RequestTimeout = 5
	return NewService(&cfg)
}

func decodePayload(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	payload := map[string]any{}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return payload
}

func TestNotifyJobQueuedCapturesMessageID(t *testing.T) {
	var capturedMethod string
	var capturedPayload map[string]any

	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedMethod = r.URL.Path
		capturedPayload = decodePayload(t, r)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"result": map[string]any{"message_id": 777},
		})
	}))

	job := &jobs.Job{ID: "abc", SourceURL: "https://example.com/v", ChatID: 42}
	messageID, err := svc.NotifyJobQueued(context.Background(), job)
	if err != nil {
		t.Fatalf("notify queued: %v", err)
	}
	if messageID != 777 {
		t.Fatalf("expected message id 777, got %d", messageID)
	}
	if capturedMethod != "/bottest-token/sendMessage" {
		t.Fatalf("unexpected method path %q", capturedMethod)
	}
	if got := capturedPayload["chat_id"].(float64); got != 42 {
		t.Fatalf("expected chat_id 42, got %v", got)
	}
}

func TestNotifyProgressEditsTrackedMessage(t *testing.T) {
	var capturedMethod string
	var capturedPayload map[string]any

	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedMethod = r.URL.Path
		capturedPayload = decodePayload(t, r)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{}})
	}))

	job := &jobs.Job{ID: "abc", SourceURL: "https://example.com/v", Title: "Clip", ChatID: 42, MessageID: 777}
	if err := svc.NotifyProgress(context.Background(), job, 50); err != nil {
		t.Fatalf("notify progress: %v", err)
	}
	if capturedMethod != "/bottest-token/editMessageText" {
		t.Fatalf("unexpected method path %q", capturedMethod)
	}
	if got := capturedPayload["message_id"].(float64); got != 777 {
		t.Fatalf("expected message_id 777, got %v", got)
	}
	if got := capturedPayload["text"].(string); got != "Downloading: Clip (50%)" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestEditToleratesNotModifiedResponse(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: message is not modified"}`))
	}))

	job := &jobs.Job{ID: "abc", SourceURL: "https://example.com/v", ChatID: 42, MessageID: 777}
	if err := svc.NotifyJobStarted(context.Background(), job); err != nil {
		t.Fatalf("expected 400 on edit to be tolerated, got %v", err)
	}
}

func TestNotifyJobCompletedLinksExternalURL(t *testing.T) {
	var capturedText string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := decodePayload(t, r)
		capturedText = payload["text"].(string)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{}})
	}))
	t.Cleanup(server.Close)

	previous := telegramAPIBase
	telegramAPIBase = server.URL
	t.Cleanup(func() { telegramAPIBase = previous })

	cfg := config.Default()
	cfg.Notifications.TelegramBotToken = "test-token"
	cfg.Notifications.BaseExternalURL = "https://hoist.example.com/"
	svc := NewService(&cfg)

	job := &jobs.Job{ID: "abc", SourceURL: "https://example.com/v", Title: "Clip", OutputDir: "Clip", ChatID: 42, MessageID: 777}
	if err := svc.NotifyJobCompleted(context.Background(), job); err != nil {
		t.Fatalf("notify completed: %v", err)
	}
	want := "Completed: Clip\nhttps://hoist.example.com/downloads/Clip/"
	if capturedText != want {
		t.Fatalf("expected text %q, got %q", want, capturedText)
	}
}

func TestNotifySkipsJobsWithoutChat(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for job without chat: %s", r.URL.String())
	}))

	job := &jobs.Job{ID: "abc", SourceURL: "https://example.com/v"}
	if _, err := svc.NotifyJobQueued(context.Background(), job); err != nil {
		t.Fatalf("notify queued: %v", err)
	}
	if err := svc.NotifyJobFailed(context.Background(), job); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
}
