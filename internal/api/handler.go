// Package api provides the HTTP adapters around the conversation engine:
// the inbound WhatsApp webhook and the dashboard stats endpoints.
//
//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/veluna/stylebot/internal/domain"
	"github.com/veluna/stylebot/internal/store"
)

// maxWebhookBodySize bounds inbound webhook payloads (64KB).
const maxWebhookBodySize = 64 << 10

// defaultStatsWindowHours is used when the dashboard omits window_hours.
const defaultStatsWindowHours = 24

// EventProcessor is the engine surface the webhook needs.
type EventProcessor interface {
	HandleInboundEvent(ctx context.Context, ev domain.InboundEvent) error
}

// Handler serves the webhook and stats routes.
type Handler struct {
	engine EventProcessor
	repo   store.Repository
}

// NewHandler creates a new Handler.
func NewHandler(engine EventProcessor, repo store.Repository) *Handler {
	return &Handler{engine: engine, repo: repo}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes registers webhook and stats routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook/whatsapp", h.HandleWebhook)
	r.Get("/api/stats", h.HandleStats)
}

// webhookPayload is the inbound message event as delivered by the transport
// layer (signature verification happens upstream).
type webhookPayload struct {
	From     string `json:"from"`
	Text     string `json:"text"`
	MediaRef string `json:"media_ref,omitempty"`
	Status   string `json:"status,omitempty"`
}

// HandleWebhook handles POST /webhook/whatsapp. A processing failure is
// logged and the event dropped; the transport still gets a 200 so it does
// not redeliver an event the engine has already rejected.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.From == "" {
		Error(w, http.StatusBadRequest, "from is required")
		return
	}

	ev := domain.InboundEvent{
		From:     payload.From,
		Text:     payload.Text,
		MediaRef: payload.MediaRef,
		Status:   domain.StatusTag(payload.Status),
	}

	if err := h.engine.HandleInboundEvent(r.Context(), ev); err != nil {
		slog.Error("failed to process inbound event", "from", ev.From, "error", err)
	}

	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statsResponse is the dashboard aggregation payload.
type statsResponse struct {
	UserCount           int64 `json:"user_count"`
	RecentSessionCount  int64 `json:"recent_session_count"`
	RecommendationCount int64 `json:"recommendation_count"`
	WindowHours         int   `json:"window_hours"`
}

// HandleStats handles GET /api/stats?window_hours=N.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	windowHours := defaultStatsWindowHours
	if raw := r.URL.Query().Get("window_hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "window_hours must be a positive integer")
			return
		}
		windowHours = n
	}

	users, err := h.repo.UserCount(r.Context())
	if err != nil {
		slog.Error("failed to count users", "error", err)
		Error(w, http.StatusInternalServerError, "stats unavailable")
		return
	}

	sessions, err := h.repo.RecentSessionCount(r.Context(), time.Duration(windowHours)*time.Hour)
	if err != nil {
		slog.Error("failed to count recent sessions", "error", err)
		Error(w, http.StatusInternalServerError, "stats unavailable")
		return
	}

	recs, err := h.repo.RecommendationCount(r.Context())
	if err != nil {
		slog.Error("failed to count recommendations", "error", err)
		Error(w, http.StatusInternalServerError, "stats unavailable")
		return
	}

	JSON(w, http.StatusOK, statsResponse{
		UserCount:           users,
		RecentSessionCount:  sessions,
		RecommendationCount: recs,
		WindowHours:         windowHours,
	})
}
