package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bulkflow/services/bot-service/internal/campaign"
	"github.com/md-rashed-zaman/bulkflow/services/bot-service/internal/model"
	"github.com/md-rashed-zaman/bulkflow/services/bot-service/internal/storage"
)

// AdminHandler is the thin reference-data surface: it writes the catalog
// the core reads, and triggers campaign dispatch.
type AdminHandler struct {
	repo       *storage.Repository
	dispatcher *campaign.Dispatcher
	logger     *slog.Logger
	token      string
}

func NewAdminHandler(repo *storage.Repository, dispatcher *campaign.Dispatcher, logger *slog.Logger, token string) *AdminHandler {
	return &AdminHandler{repo: repo, dispatcher: dispatcher, logger: logger, token: token}
}

func (h *AdminHandler) authorized(w http.ResponseWriter, r *http.Request) bool {
	if h.token != "" && r.Header.Get("x-admin-token") != h.token {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func (h *AdminHandler) Seed(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.repo.SeedDemo(r.Context(), time.Now()); err != nil {
		h.logger.Error("seed failed", "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}

func (h *AdminHandler) Services(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		services, err := h.repo.ListServices(r.Context())
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		type item struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			DurationMin int    `json:"duration_min"`
			Active      bool   `json:"active"`
		}
		items := make([]item, 0, len(services))
		for _, s := range services {
			items = append(items, item{ID: s.ID, Name: s.Name, DurationMin: s.DurationMin, Active: s.Active})
		}
		writeJSON(w, map[string]any{"results": items})
	case http.MethodPost:
		var req struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			DurationMin int    `json:"duration_min"`
			Active      *bool  `json:"active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if req.ID == "" || req.Name == "" || req.DurationMin <= 0 {
			http.Error(w, "missing required fields", http.StatusBadRequest)
			return
		}
		active := true
		if req.Active != nil {
			active = *req.Active
		}
		if err := h.repo.CreateService(r.Context(), model.Service{
			ID: req.ID, Name: req.Name, DurationMin: req.DurationMin, Active: active,
		}); err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AdminHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		slots, err := h.repo.ListSlots(r.Context(), strings.TrimSpace(r.URL.Query().Get("service")))
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		type item struct {
			ID          string `json:"id"`
			ServiceID   string `json:"service_id"`
			StartTS     string `json:"start_ts"`
			EndTS       string `json:"end_ts"`
			Capacity    int    `json:"capacity"`
			BookedCount int    `json:"booked_count"`
		}
		items := make([]item, 0, len(slots))
		for _, s := range slots {
			items = append(items, item{
				ID:          s.ID,
				ServiceID:   s.ServiceID,
				StartTS:     s.Start.UTC().Format(model.WireTime),
				EndTS:       s.End.UTC().Format(model.WireTime),
				Capacity:    s.Capacity,
				BookedCount: s.BookedCount,
			})
		}
		writeJSON(w, map[string]any{"results": items})
	case http.MethodPost:
		var req struct {
			ServiceID string `json:"service_id"`
			StartTS   string `json:"start_ts"`
			EndTS     string `json:"end_ts"`
			Capacity  int    `json:"capacity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if req.ServiceID == "" || req.Capacity <= 0 {
			http.Error(w, "missing required fields", http.StatusBadRequest)
			return
		}
		start, err := time.ParseInLocation(model.WireTime, req.StartTS, time.UTC)
		if err != nil {
			http.Error(w, "invalid start_ts", http.StatusBadRequest)
			return
		}
		end, err := time.ParseInLocation(model.WireTime, req.EndTS, time.UTC)
		if err != nil {
			http.Error(w, "invalid end_ts", http.StatusBadRequest)
			return
		}
		if !end.After(start) {
			http.Error(w, "end_ts must be after start_ts", http.StatusBadRequest)
			return
		}
		id, err := h.repo.CreateSlot(r.Context(), model.Slot{
			ServiceID: req.ServiceID, Start: start, End: end, Capacity: req.Capacity,
		})
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"id": id})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AdminHandler) RecentBookings(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	bookings, err := h.repo.RecentBookings(r.Context(), 50)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	type item struct {
		ID      string `json:"id"`
		ChatID  string `json:"chat_id"`
		Status  string `json:"status"`
		Service string `json:"service"`
		StartTS string `json:"start_ts"`
	}
	items := make([]item, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, item{
			ID: b.ID, ChatID: b.ChatID, Status: b.Status,
			Service: b.ServiceName, StartTS: b.Start.UTC().Format(model.WireTime),
		})
	}
	writeJSON(w, map[string]any{"results": items})
}

func (h *AdminHandler) SendCampaign(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.dispatcher == nil {
		http.Error(w, "queue not configured", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		http.Error(w, "body is required", http.StatusBadRequest)
		return
	}
	res, err := h.dispatcher.Dispatch(r.Context(), req.Body)
	if err != nil {
		h.logger.Error("campaign dispatch failed", "err", err)
		http.Error(w, "dispatch error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"campaign_id": res.CampaignID,
		"enqueued":    res.Enqueued,
		"failed":      res.Failed,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
