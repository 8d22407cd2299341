package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattjoyce/msghook/internal/message"
	"github.com/mattjoyce/msghook/internal/storage"
)

const (
	// DefaultLimit applies when a caller does not specify a page size.
	DefaultLimit = 50
	// TopSenders bounds the sender leaderboard returned by Aggregate.
	TopSenders = 10
)

// ErrInvalidPage is returned for negative limit or offset values.
var ErrInvalidPage = errors.New("limit and offset must be non-negative")

// Filter narrows a message listing. Empty fields are not applied; all
// non-empty fields must match.
type Filter struct {
	// From matches from_address exactly.
	From string
	// Since keeps messages whose ts sorts at or after it (string comparison).
	Since string
	// Text matches a case-insensitive substring of the message text.
	Text string
}

// Page bounds a listing. Rows are skipped and limited in (ts, message_id) order.
type Page struct {
	Limit  int
	Offset int
}

// DefaultPage returns the page used when none is requested.
func DefaultPage() Page {
	return Page{Limit: DefaultLimit}
}

// Result is one page of a listing together with the filter's total row count.
type Result struct {
	Messages []message.Message
	Total    int
}

// SenderCount is one entry in the sender leaderboard.
type SenderCount struct {
	From  string
	Count int
}

// Stats aggregates the whole message table.
type Stats struct {
	Total   int
	Senders []SenderCount
	// FirstTimestamp and LastTimestamp are nil when the table is empty.
	FirstTimestamp *string
	LastTimestamp  *string
}

func (f Filter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.From != "" {
		conds = append(conds, "from_address = ?")
		args = append(args, f.From)
	}
	if f.Since != "" {
		conds = append(conds, "ts >= ?")
		args = append(args, f.Since)
	}
	if f.Text != "" {
		conds = append(conds, storage.LowerFunc+`(text) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(f.Text))+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes LIKE wildcards in s match literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Count returns the number of messages matching f.
func (s *Store) Count(ctx context.Context, f Filter) (int, error) {
	return count(ctx, s.db, f)
}

// Query returns the messages matching f ordered by (ts, message_id) ascending,
// with p.Offset rows skipped and at most p.Limit rows returned.
func (s *Store) Query(ctx context.Context, f Filter, p Page) ([]message.Message, error) {
	return query(ctx, s.db, f, p)
}

// List returns a page and the filter's total from one consistent snapshot.
func (s *Store) List(ctx context.Context, f Filter, p Page) (Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	total, err := count(ctx, tx, f)
	if err != nil {
		return Result{}, err
	}
	msgs, err := query(ctx, tx, f, p)
	if err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("commit tx: %w", err)
	}
	return Result{Messages: msgs, Total: total}, nil
}

func count(ctx context.Context, q querier, f Filter) (int, error) {
	where, args := f.where()
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages"+where+";", args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func query(ctx context.Context, q querier, f Filter, p Page) ([]message.Message, error) {
	if p.Limit < 0 || p.Offset < 0 {
		return nil, ErrInvalidPage
	}

	where, args := f.where()
	args = append(args, p.Limit, p.Offset)
	rows, err := q.QueryContext(ctx, `
SELECT message_id, from_address, to_address, ts, text, received_at
FROM messages`+where+`
ORDER BY ts ASC, message_id ASC
LIMIT ? OFFSET ?;
`, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]message.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// Aggregate returns totals, the top senders by message count (ties broken by
// sender ascending) and the earliest and latest ts.
func (s *Store) Aggregate(ctx context.Context) (Stats, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var st Stats
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages;").Scan(&st.Total); err != nil {
		return Stats{}, fmt.Errorf("count messages: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
SELECT from_address, COUNT(*) AS n
FROM messages
GROUP BY from_address
ORDER BY n DESC, from_address ASC
LIMIT ?;
`, TopSenders)
	if err != nil {
		return Stats{}, fmt.Errorf("query senders: %w", err)
	}
	st.Senders = make([]SenderCount, 0, TopSenders)
	for rows.Next() {
		var sc SenderCount
		if err := rows.Scan(&sc.From, &sc.Count); err != nil {
			_ = rows.Close()
			return Stats{}, fmt.Errorf("scan sender: %w", err)
		}
		st.Senders = append(st.Senders, sc)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return Stats{}, fmt.Errorf("iterate senders: %w", err)
	}
	_ = rows.Close()

	var first, last sql.NullString
	if err := tx.QueryRowContext(ctx, "SELECT MIN(ts), MAX(ts) FROM messages;").Scan(&first, &last); err != nil {
		return Stats{}, fmt.Errorf("query ts range: %w", err)
	}
	if first.Valid {
		st.FirstTimestamp = &first.String
	}
	if last.Valid {
		st.LastTimestamp = &last.String
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit tx: %w", err)
	}
	return st, nil
}
