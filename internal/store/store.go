// Package store persists inbound messages in SQLite and answers the
// filtered, paginated and aggregate reads over them.
//
// Idempotency is enforced by the messages primary key: Insert never checks
// for an existing row first, it attempts the insert and maps the engine's
// uniqueness violation to OutcomeDuplicate. Concurrent deliveries of the same
// message_id therefore resolve to exactly one OutcomeCreated.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mattjoyce/msghook/internal/message"
)

// Outcome is the result of an Insert.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeDuplicate Outcome = "duplicate"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the message table. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New wraps an open database whose schema has been bootstrapped
// (see storage.OpenSQLite).
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Insert stores msg with a server-assigned received_at. If a row with the same
// ID already exists it is left untouched and OutcomeDuplicate is returned.
func (s *Store) Insert(ctx context.Context, msg message.Message) (Outcome, error) {
	if msg.ID == "" {
		return "", fmt.Errorf("message id is empty")
	}

	receivedAt := s.now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO messages(message_id, from_address, to_address, ts, text, received_at)
VALUES(?, ?, ?, ?, ?, ?);
`, msg.ID, msg.From, msg.To, msg.Timestamp, nullString(msg.Text), receivedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return OutcomeDuplicate, nil
		}
		return "", fmt.Errorf("insert message: %w", err)
	}
	return OutcomeCreated, nil
}

// Get returns a single message by ID, or sql.ErrNoRows.
func (s *Store) Get(ctx context.Context, id string) (message.Message, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT message_id, from_address, to_address, ts, text, received_at
FROM messages WHERE message_id = ?;
`, id)
	m, err := scanMessage(row)
	if err != nil {
		return message.Message{}, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// Ping runs a trivial query to confirm the database answers.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1;").Scan(&one); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// Extended result codes disabled: fall back to the engine's message.
		return strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	return false
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(sc scanner) (message.Message, error) {
	var (
		m    message.Message
		text sql.NullString
	)
	if err := sc.Scan(&m.ID, &m.From, &m.To, &m.Timestamp, &text, &m.ReceivedAt); err != nil {
		return message.Message{}, err
	}
	if text.Valid {
		m.Text = &text.String
	}
	return m, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
