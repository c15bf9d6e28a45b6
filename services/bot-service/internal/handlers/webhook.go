package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/bulkflow/services/bot-service/internal/flow"
	"github.com/md-rashed-zaman/bulkflow/services/bot-service/internal/model"
	"github.com/md-rashed-zaman/bulkflow/services/bot-service/internal/storage"
)

const webhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler adapts Telegram updates into flow events. It is
// deliberately thin: everything interesting happens in the machine.
type WebhookHandler struct {
	machine *flow.Machine
	repo    *storage.Repository
	logger  *slog.Logger
	secret  string
}

func NewWebhookHandler(machine *flow.Machine, repo *storage.Repository, logger *slog.Logger, secret string) *WebhookHandler {
	return &WebhookHandler{machine: machine, repo: repo, logger: logger, secret: secret}
}

type tgUser struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type tgMessage struct {
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	From *tgUser `json:"from"`
	Text string  `json:"text"`
}

type tgUpdate struct {
	Message       *tgMessage `json:"message"`
	CallbackQuery *struct {
		Data    string     `json:"data"`
		From    *tgUser    `json:"from"`
		Message *tgMessage `json:"message"`
	} `json:"callback_query"`
}

func (h *WebhookHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.secret != "" && r.Header.Get(webhookSecretHeader) != h.secret {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var update tgUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	msg := update.Message
	if msg == nil && update.CallbackQuery != nil {
		msg = update.CallbackQuery.Message
	}
	if msg == nil || msg.Chat.ID == 0 {
		writeOK(w)
		return
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	from := (*tgUser)(nil)
	if update.Message != nil {
		from = update.Message.From
	} else if update.CallbackQuery != nil {
		from = update.CallbackQuery.From
	}
	if from != nil {
		if err := h.repo.UpsertUser(r.Context(), model.ChatUser{
			ChatID:    chatID,
			Username:  from.Username,
			FirstName: from.FirstName,
			LastName:  from.LastName,
		}); err != nil {
			h.logger.Warn("user upsert failed", "err", err, "chat_id", chatID)
		}
	}

	var ev flow.Event
	switch {
	case update.CallbackQuery != nil:
		ev = flow.ParseCallback(update.CallbackQuery.Data)
	case strings.HasPrefix(update.Message.Text, "/"):
		ev = flow.ParseCommand(update.Message.Text)
	default:
		ev = flow.Event{Kind: flow.EventUnknown}
	}

	if err := h.machine.Handle(r.Context(), chatID, ev); err != nil {
		// A non-2xx makes Telegram redeliver the update; the transition is
		// a pure function of (snapshot, event), so a retry is safe.
		h.logger.Error("flow handling failed", "err", err, "chat_id", chatID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeOK(w)
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}
