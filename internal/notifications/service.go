package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hoist/internal/config"
	"hoist/internal/jobs"
)

const userAgent = "Hoist-Go/0.1.0"

// telegramAPIBase is swapped out in tests.
var telegramAPIBase = "https://api.telegram.org"

// Service defines the notification surface exposed to workflow components.
// Methods that take a job edit that job's tracked chat message in place when
// one exists; NotifyJobQueued returns the id of the message it created so the
// caller can persist it on the job.
type Service interface {
	NotifyJobQueued(ctx context.Context, job *jobs.Job) (int64, error)
	NotifyJobStarted(ctx context.Context, job *jobs.Job) error
	NotifyProgress(ctx context.Context, job *jobs.Job, percent float64) error
	NotifyJobCompleted(ctx context.Context, job *jobs.Job) error
	NotifyJobFailed(ctx context.Context, job *jobs.Job) error
	NotifyRejected(ctx context.Context, chatID int64, reason string) error
	TestNotification(ctx context.Context, chatID int64) error
}

// NewService builds a notification service backed by the Telegram Bot API
// when a bot token is configured. Without a token, a noop implementation is
// returned so workflow code never branches on notification availability.
func NewService(cfg *config.Config) Service {
	token := strings.TrimSpace(cfg.Notifications.TelegramBotToken)
	if token == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &telegramService{
		apiBase:     telegramAPIBase + "/bot" + token,
		externalURL: strings.TrimRight(strings.TrimSpace(cfg.Notifications.BaseExternalURL), "/"),
		client:      &http.Client{Timeout: timeout},
	}
}

type telegramService struct {
	apiBase     string
	externalURL string
	client      *http.Client
}

func (t *telegramService) NotifyJobQueued(ctx context.Context, job *jobs.Job) (int64, error) {
	if job == nil || job.ChatID == 0 {
		return 0, nil
	}
	text := fmt.Sprintf("Queued: %s", job.SourceURL)
	return t.sendMessage(ctx, job.ChatID, text)
}

func (t *telegramService) NotifyJobStarted(ctx context.Context, job *jobs.Job) error {
	return t.update(ctx, job, fmt.Sprintf("Downloading: %s", jobLabel(job)))
}

func (t *telegramService) NotifyProgress(ctx context.Context, job *jobs.Job, percent float64) error {
	return t.update(ctx, job, fmt.Sprintf("Downloading: %s (%.0f%%)", jobLabel(job), percent))
}

func (t *telegramService) NotifyJobCompleted(ctx context.Context, job *jobs.Job) error {
	text := fmt.Sprintf("Completed: %s", jobLabel(job))
	if t.externalURL != "" && job != nil && strings.TrimSpace(job.OutputDir) != "" {
		text = fmt.Sprintf("%s\n%s/downloads/%s/", text, t.externalURL, job.OutputDir)
	}
	return t.update(ctx, job, text)
}

func (t *telegramService) NotifyJobFailed(ctx context.Context, job *jobs.Job) error {
	text := fmt.Sprintf("Failed: %s", jobLabel(job))
	if job != nil && strings.TrimSpace(job.ErrorMessage) != "" {
		text = fmt.Sprintf("%s\n%s", text, strings.TrimSpace(job.ErrorMessage))
	}
	return t.update(ctx, job, text)
}

func (t *telegramService) NotifyRejected(ctx context.Context, chatID int64, reason string) error {
	if chatID == 0 {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "request rejected"
	}
	_, err := t.sendMessage(ctx, chatID, "Rejected: "+reason)
	return err
}

func (t *telegramService) TestNotification(ctx context.Context, chatID int64) error {
	if chatID == 0 {
		return nil
	}
	_, err := t.sendMessage(ctx, chatID, "Notification system test")
	return err
}

func jobLabel(job *jobs.Job) string {
	if job == nil {
		return ""
	}
	if title := strings.TrimSpace(job.Title); title != "" {
		return title
	}
	return job.SourceURL
}

// update edits the job's tracked message, falling back to a fresh message
// when no message id has been captured yet. Telegram rejects edits whose
// text matches the current message with a 400; that is not an error here.
func (t *telegramService) update(ctx context.Context, job *jobs.Job, text string) error {
	if job == nil || job.ChatID == 0 {
		return nil
	}
	if job.MessageID == 0 {
		_, err := t.sendMessage(ctx, job.ChatID, text)
		return err
	}

	payload := map[string]any{
		"chat_id":    job.ChatID,
		"message_id": job.MessageID,
		"text":       text,
	}
	_, status, err := t.call(ctx, "editMessageText", payload)
	if err != nil {
		if status == http.StatusBadRequest {
			return nil
		}
		return err
	}
	return nil
}

func (t *telegramService) sendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	body, _, err := t.call(ctx, "sendMessage", payload)
	if err != nil {
		return 0, err
	}

	var parsed struct {
		Result struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("decode telegram response: %w", err)
	}
	return parsed.Result.MessageID, nil
}

func (t *telegramService) call(ctx context.Context, method string, payload map[string]any) ([]byte, int, error) {
	if t == nil || t.client == nil {
		return nil, 0, nil
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("encode telegram payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiBase+"/"+method, bytes.NewReader(encoded))
	if err != nil {
		return nil, 0, fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("telegram %s returned %d: %s", method, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, resp.StatusCode, nil
}

type noopService struct{}

func (noopService) NotifyJobQueued(context.Context, *jobs.Job) (int64, error)     { return 0, nil }
func (noopService) NotifyJobStarted(context.Context, *jobs.Job) error             { return nil }
func (noopService) NotifyProgress(context.Context, *jobs.Job, float64) error      { return nil }
func (noopService) NotifyJobCompleted(context.Context, *jobs.Job) error           { return nil }
func (noopService) NotifyJobFailed(context.Context, *jobs.Job) error              { return nil }
func (noopService) NotifyRejected(context.Context, int64, string) error           { return nil }
func (noopService) TestNotification(context.Context, int64) error                 { return nil }
