package daemon

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"hoist/internal/logging"
	"hoist/internal/services"
)

const webhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// telegramUpdate is the subset of the Bot API update payload the webhook
// consumes.
type telegramUpdate struct {
	Message struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// handleWebhook accepts Telegram bot updates and turns the first URL in the
// message into a job submission. The handler always answers 200 for
// well-formed updates so Telegram does not retry; rejection feedback goes
// back through the chat instead.
func (s *apiServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	secret := strings.TrimSpace(s.daemon.cfg.Notifications.WebhookSecret)
	if secret != "" {
		provided := r.Header.Get(webhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}

	var update telegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid update payload")
		return
	}

	chatID := update.Message.Chat.ID
	sourceURL := firstURL(update.Message.Text)
	if sourceURL == "" {
		s.reject(r, chatID, "send a link to download")
		s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	if _, err := s.daemon.jobSvc.Create(r.Context(), sourceURL, chatID); err != nil {
		s.logger.Warn("webhook submission rejected",
			logging.String(logging.FieldSourceURL, sourceURL), logging.Error(err))
		s.reject(r, chatID, services.Message(err))
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *apiServer) reject(r *http.Request, chatID int64, reason string) {
	if err := s.daemon.notifier.NotifyRejected(r.Context(), chatID, reason); err != nil {
		s.logger.Warn("rejection reply failed", logging.Error(err))
	}
}

// firstURL returns the first whitespace-separated token that parses as an
// http(s) link.
func firstURL(text string) string {
	for _, token := range strings.Fields(text) {
		if strings.HasPrefix(token, "http://") || strings.HasPrefix(token, "https://") {
			return token
		}
	}
	return ""
}
