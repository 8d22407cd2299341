package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mattjoyce/msghook/internal/message"
	"github.com/mattjoyce/msghook/internal/metrics"
	"github.com/mattjoyce/msghook/internal/store"
)

// Handler ingests signed message events.
type Handler struct {
	config  Config
	store   MessageInserter
	metrics OutcomeRecorder
	logger  *slog.Logger
}

// New creates a webhook handler.
func New(config Config, inserter MessageInserter, recorder OutcomeRecorder, logger *slog.Logger) *Handler {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if config.SignatureHeader == "" {
		config.SignatureHeader = DefaultSignatureHeader
	}
	return &Handler{
		config:  config,
		store:   inserter,
		metrics: recorder,
		logger:  logger,
	}
}

// ServeHTTP handles POST requests carrying one message.
//
// The raw body is captured before anything else, verified against the
// signature header, then decoded and inserted. Signature failures and
// malformed payloads never reach the store. Created and duplicate inserts
// both answer 200 so that senders retrying a delivery see success.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, h.config.MaxBodySize+1))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > h.config.MaxBodySize {
		h.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	signature := r.Header.Get(h.config.SignatureHeader)
	if !VerifySignature(h.config.Secret, body, signature) {
		h.logger.Warn("webhook signature rejected",
			"path", r.URL.Path,
			"header", h.config.SignatureHeader,
			"signature_present", signature != "",
		)
		h.metrics.RecordWebhook(metrics.WebhookInvalidSignature)
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	msg, err := message.Decode(body)
	if err != nil {
		var verr *message.ValidationError
		if errors.As(err, &verr) {
			h.respondError(w, http.StatusUnprocessableEntity, verr.Error())
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	outcome, err := h.store.Insert(ctx, msg)
	if err != nil {
		h.logger.Error("failed to store message",
			"message_id", msg.ID,
			"error", err,
		)
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	switch outcome {
	case store.OutcomeCreated:
		h.metrics.RecordWebhook(metrics.WebhookCreated)
	case store.OutcomeDuplicate:
		h.metrics.RecordWebhook(metrics.WebhookDuplicate)
	}

	h.logger.Info("webhook message stored",
		"message_id", msg.ID,
		"outcome", string(outcome),
	)

	h.respondJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// respondJSON sends a JSON response.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends a JSON error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, ErrorResponse{Error: msg})
}
