package api

import (
	"context"
	"time"

	"github.com/mattjoyce/msghook/internal/message"
	"github.com/mattjoyce/msghook/internal/store"
	"github.com/mattjoyce/msghook/internal/webhook"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/mattjoyce/msghook/internal/api MessageStore

// MessageStore defines the storage operations served over HTTP
type MessageStore interface {
	Insert(ctx context.Context, msg message.Message) (store.Outcome, error)
	List(ctx context.Context, f store.Filter, p store.Page) (store.Result, error)
	Aggregate(ctx context.Context) (store.Stats, error)
	Ping(ctx context.Context) error
}

// Config holds API server configuration
type Config struct {
	Listen       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Webhook      webhook.Config
}

// MessageResponse is one item of GET /messages
type MessageResponse struct {
	MessageID string  `json:"message_id"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Timestamp string  `json:"ts"`
	Text      *string `json:"text"`
}

// MessagesResponse is returned by GET /messages
type MessagesResponse struct {
	Data   []MessageResponse `json:"data"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// SenderResponse is one leaderboard entry of GET /stats
type SenderResponse struct {
	From  string `json:"from"`
	Count int    `json:"count"`
}

// StatsResponse is returned by GET /stats
type StatsResponse struct {
	TotalMessages     int              `json:"total_messages"`
	SendersCount      int              `json:"senders_count"`
	MessagesPerSender []SenderResponse `json:"messages_per_sender"`
	FirstMessageTS    *string          `json:"first_message_ts"`
	LastMessageTS     *string          `json:"last_message_ts"`
}

// HealthResponse is returned by the health probes
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}
