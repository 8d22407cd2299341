package webhook

import (
	"context"

	"github.com/mattjoyce/msghook/internal/message"
	"github.com/mattjoyce/msghook/internal/store"
)

// MessageInserter stores a decoded message idempotently.
type MessageInserter interface {
	Insert(ctx context.Context, msg message.Message) (store.Outcome, error)
}

// OutcomeRecorder counts webhook business outcomes.
type OutcomeRecorder interface {
	RecordWebhook(outcome string)
}

// Config holds ingestion endpoint configuration.
type Config struct {
	// Secret is the shared HMAC-SHA256 key.
	Secret string

	// SignatureHeader is the HTTP header carrying the hex signature (default: X-Signature).
	SignatureHeader string

	// MaxBodySize is the maximum accepted request body in bytes (default: 1MB).
	MaxBodySize int64
}

// StatusResponse is the JSON body for accepted webhooks.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the JSON body for rejected webhooks.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Default values
const (
	DefaultMaxBodySize     = 1048576 // 1 MB
	DefaultSignatureHeader = "X-Signature"
)
