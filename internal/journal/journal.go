// Package journal records commands received over MQTT and the outcome of
// the puts they triggered, and serves them back for inspection.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry kinds.
const (
	KindCommand   = "command"
	KindPutResult = "put_result"
)

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Entry is a single journal row.
type Entry struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Action     string          `json:"action"`
	Context    string          `json:"context"`
	Path       string          `json:"path"`
	Value      json.RawMessage `json:"value,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	State      string          `json:"state,omitempty"`
	StatusCode int             `json:"status_code,omitempty"`
	Message    string          `json:"message,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Filter controls which entries to return.
type Filter struct {
	Kind    string // optional: command or put_result
	Action  string // optional: W or P
	Context string // optional: exact bus context
	Path    string // optional: exact path
	Limit   int    // default 50, max 200
	Offset  int    // pagination offset
}

// ListResult contains a page of entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the interface for journal storage.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores entries in the command_log table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new journal repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var value any
	if len(entry.Value) > 0 {
		value = string(entry.Value)
	}
	var statusCode any
	if entry.StatusCode != 0 {
		statusCode = entry.StatusCode
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_log (id, kind, action, context, path, value, request_id, state, status_code, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Kind, entry.Action, entry.Context, entry.Path,
		value,
		nullableString(entry.RequestID), nullableString(entry.State),
		statusCode, nullableString(entry.Message),
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}

	return nil
}

// nullableString maps empty strings to SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) { //nolint:gocognit // dynamic query builder
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	for _, c := range []struct {
		column, value string
	}{
		{"kind", filter.Kind},
		{"action", filter.Action},
		{"context", filter.Context},
		{"path", filter.Path},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM command_log %s", where) //nolint:gosec // WHERE built from fixed column names
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting journal entries: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from fixed column names
		`SELECT id, kind, action, context, path, value, request_id, state, status_code, message, created_at
		 FROM command_log %s ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var value, requestID, state, message sql.NullString
		var statusCode sql.NullInt64
		var createdAt string

		if err := rows.Scan(&e.ID, &e.Kind, &e.Action, &e.Context, &e.Path,
			&value, &requestID, &state, &statusCode, &message, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}

		if value.Valid {
			e.Value = json.RawMessage(value.String)
		}
		e.RequestID = requestID.String
		e.State = state.String
		e.StatusCode = int(statusCode.Int64)
		e.Message = message.String

		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
