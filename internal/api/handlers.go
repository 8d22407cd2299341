package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/msghook/internal/store"
	"github.com/mattjoyce/msghook/internal/webhook"
)

// readyTimeout bounds the readiness probe's storage round trip.
const readyTimeout = 2 * time.Second

// handleLive handles GET /health/live.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{Status: "alive"})
}

// handleReady handles GET /health/ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "not_ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		s.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "not_ready"})
		return
	}

	s.respondJSON(w, http.StatusOK, HealthResponse{Status: "ready"})
}

// handleMetrics handles GET /metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	body, err := s.metrics.Render()
	if err != nil {
		s.logger.Error("failed to render metrics", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.webhookSignatureHeader()))
}

// handleWebhook handles POST /webhook.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	s.webhook.ServeHTTP(w, r)
}

// handleListMessages handles GET /messages.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := store.DefaultPage()
	var err error
	if page.Limit, err = intParam(query.Get("limit"), page.Limit); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, "limit: "+err.Error())
		return
	}
	if page.Offset, err = intParam(query.Get("offset"), page.Offset); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, "offset: "+err.Error())
		return
	}

	filter := store.Filter{
		From:  query.Get("from_"),
		Since: query.Get("since"),
		Text:  query.Get("q"),
	}

	result, err := s.store.List(r.Context(), filter, page)
	if err != nil {
		if errors.Is(err, store.ErrInvalidPage) {
			s.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("failed to list messages", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := MessagesResponse{
		Data:   make([]MessageResponse, 0, len(result.Messages)),
		Total:  result.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for _, m := range result.Messages {
		resp.Data = append(resp.Data, MessageResponse{
			MessageID: m.ID,
			From:      m.From,
			To:        m.To,
			Timestamp: m.Timestamp,
			Text:      m.Text,
		})
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Aggregate(r.Context())
	if err != nil {
		s.logger.Error("failed to aggregate messages", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := StatsResponse{
		TotalMessages:     stats.Total,
		SendersCount:      len(stats.Senders),
		MessagesPerSender: make([]SenderResponse, 0, len(stats.Senders)),
		FirstMessageTS:    stats.FirstTimestamp,
		LastMessageTS:     stats.LastTimestamp,
	}
	for _, sc := range stats.Senders {
		resp.MessagesPerSender = append(resp.MessagesPerSender, SenderResponse{From: sc.From, Count: sc.Count})
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// intParam parses a non-negative integer query parameter, returning def when absent.
func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	if n < 0 {
		return 0, errors.New("must be non-negative")
	}
	return n, nil
}

func (s *Server) webhookSignatureHeader() string {
	if s.config.Webhook.SignatureHeader != "" {
		return s.config.Webhook.SignatureHeader
	}
	return webhook.DefaultSignatureHeader
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError sends a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.respondJSON(w, code, ErrorResponse{Error: msg})
}
