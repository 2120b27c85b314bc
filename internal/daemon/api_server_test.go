package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"hoist/internal/api"
	"hoist/internal/artifacts"
	"hoist/internal/jobs"
	"hoist/internal/logging"
	"hoist/internal/testsupport"
	"hoist/internal/workflow"
)

type daemonFixture struct {
	daemon   *Daemon
	store    *jobs.Store
	notifier *testsupport.RecorderNotifier
	server   *httptest.Server
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *daemonFixture {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &testsupport.RecorderNotifier{}
	fetcher := &testsupport.FakeFetcher{}

	wf := workflow.NewManager(cfg, store, logging.NewNop(),
		workflow.WithFetcher(fetcher),
		workflow.WithNotifier(notifier),
	)
	jobSvc := api.NewJobService(store, fetcher,
		artifacts.NewManager(cfg.Paths.DownloadRoot, logging.NewNop()),
		notifier, nil, logging.NewNop())

	d, err := New(cfg, store, logging.NewNop(), wf, nil, notifier, jobSvc)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if d.apiSrv == nil {
		t.Fatalf("expected api server to be configured")
	}

	server := httptest.NewServer(d.apiSrv.server.Handler)
	t.Cleanup(server.Close)
	return &daemonFixture{daemon: d, store: store, notifier: notifier, server: server}
}

func (f *daemonFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestJobEndpoints(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/jobs",
		map[string]any{"sourceUrl": "https://example.com/watch?v=1", "chatId": 7}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created api.JobView
	decodeInto(t, resp, &created)
	if created.Status != "pending" || created.ID == "" {
		t.Fatalf("unexpected created view %+v", created)
	}

	resp = f.do(t, http.MethodPost, "/api/jobs",
		map[string]any{"sourceUrl": "https://example.com/watch?v=1"}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, "/api/jobs", nil, nil)
	var list api.JobListResponse
	decodeInto(t, resp, &list)
	if len(list.Jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(list.Jobs))
	}

	resp = f.do(t, http.MethodGet, "/api/jobs/"+created.ID, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodPatch, "/api/jobs/"+created.ID+"/flags",
		map[string]any{"starred": true}, nil)
	var flagged api.JobView
	decodeInto(t, resp, &flagged)
	if !flagged.Starred || !flagged.Watched {
		t.Fatalf("expected starring to imply watched, got %+v", flagged)
	}

	resp = f.do(t, http.MethodGet, "/api/jobs/"+created.ID+"/files", nil, nil)
	var files api.JobFilesResponse
	decodeInto(t, resp, &files)
	if files.ID != created.ID || len(files.Files) != 0 {
		t.Fatalf("expected empty manifest, got %+v", files)
	}

	resp = f.do(t, http.MethodDelete, "/api/jobs/"+created.ID, nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 deleting pending job, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, "/api/jobs/missing", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, "/api/jobs?status=bogus", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status filter, got %d", resp.StatusCode)
	}
}

func TestBearerAuth(t *testing.T) {
	f := newFixture(t, testsupport.WithAPIToken("sekrit"))

	resp := f.do(t, http.MethodGet, "/api/jobs", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, "/api/jobs", nil,
		map[string]string{"Authorization": "Bearer wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, "/api/jobs", nil,
		map[string]string{"Authorization": "Bearer sekrit"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
}

func TestStatusEndpointReportsStableShape(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/status", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var status api.DaemonStatus
	decodeInto(t, resp, &status)
	if status.Running {
		t.Fatalf("expected not running before Start")
	}
	for _, name := range []string{"pending", "running", "completed", "failed"} {
		if _, ok := status.JobStats[name]; !ok {
			t.Fatalf("expected %s key in job stats, got %v", name, status.JobStats)
		}
	}
}

func TestWebhookSubmitsFirstURL(t *testing.T) {
	f := newFixture(t)
	f.daemon.cfg.Notifications.WebhookSecret = "hook"

	update := map[string]any{
		"message": map[string]any{
			"text": "please grab https://example.com/watch?v=hook thanks",
			"chat": map[string]any{"id": 99},
		},
	}

	resp := f.do(t, http.MethodPost, "/api/webhook/telegram", update, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodPost, "/api/webhook/telegram", update,
		map[string]string{"X-Telegram-Bot-Api-Secret-Token": "hook"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	list, err := f.store.List(context.Background(), jobs.Filter{})
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(list) != 1 || list[0].SourceURL != "https://example.com/watch?v=hook" {
		t.Fatalf("expected webhook job, got %+v", list)
	}
	if list[0].ChatID != 99 {
		t.Fatalf("expected chat id 99, got %d", list[0].ChatID)
	}
}

func TestWebhookRejectsMessagesWithoutURL(t *testing.T) {
	f := newFixture(t)

	update := map[string]any{
		"message": map[string]any{
			"text": "hello there",
			"chat": map[string]any{"id": 12},
		},
	}
	resp := f.do(t, http.MethodPost, "/api/webhook/telegram", update, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(f.notifier.Rejected) != 1 {
		t.Fatalf("expected one rejection reply, got %d", len(f.notifier.Rejected))
	}
}
