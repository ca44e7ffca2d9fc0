package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"parishdesk.org/internal/ids"
	"parishdesk.org/internal/obs"
)

// Entry is one append-only record: either an access decision or an
// administrative mutation. Entries are never mutated or deleted through
// normal operation; retention is an operational concern outside the core.
type Entry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Action       string    `json:"action"`
	Resource     string    `json:"resource"`
	ResourceID   string    `json:"resource_id,omitempty"`
	PermissionID string    `json:"permission_id,omitempty"`
	Granted      bool      `json:"granted"`
	Reason       string    `json:"reason,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Archiver receives a synchronous copy of every entry. Implementations own
// durability (Postgres in this repo); the in-memory log stays authoritative
// for Query.
type Archiver interface {
	Append(ctx context.Context, e Entry) error
}

// Filter narrows Query results. Zero-value fields match everything.
type Filter struct {
	UserID   string
	Resource string
	Granted  *bool
	From     time.Time
	To       time.Time
}

// Log is the append-only audit trail.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	archiver Archiver
	now      func() time.Time
}

// Option configures the log.
type Option func(*Log)

// WithArchiver attaches a durable sink called synchronously on every Record.
func WithArchiver(a Archiver) Option {
	return func(l *Log) { l.archiver = a }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Log) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLog creates an empty audit log.
func NewLog(opts ...Option) *Log {
	l := &Log{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends the entry, emits it as a JSON audit line and forwards it to
// the archiver if one is attached. Archive failures are logged, not
// propagated: the decision that produced the entry has already been made and
// the in-memory trail keeps it.
func (l *Log) Record(ctx context.Context, e Entry) Entry {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = l.now().UTC()
	}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()

	emit(e)

	if l.archiver != nil {
		if err := l.archiver.Append(ctx, e); err != nil {
			obs.LogRequest(map[string]any{
				"ts":    l.now().UTC().Format(time.RFC3339Nano),
				"level": "error",
				"msg":   "audit_archive_failed",
				"entry": e.ID,
				"error": err.Error(),
			})
		}
	}
	return e
}

// Query returns entries matching the filter, newest first.
func (l *Log) Query(f Filter) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.Resource != "" && e.Resource != f.Resource {
			continue
		}
		if f.Granted != nil && e.Granted != *f.Granted {
			continue
		}
		if !f.From.IsZero() && e.OccurredAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.OccurredAt.After(f.To) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Len reports the number of recorded entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func emit(e Entry) {
	line := map[string]any{
		"ts":       e.OccurredAt.Format(time.RFC3339Nano),
		"type":     "audit",
		"user_id":  e.UserID,
		"action":   e.Action,
		"resource": e.Resource,
		"granted":  e.Granted,
	}
	if e.ResourceID != "" {
		line["resource_id"] = e.ResourceID
	}
	if e.PermissionID != "" {
		line["permission_id"] = e.PermissionID
	}
	if e.Reason != "" {
		line["reason"] = e.Reason
	}
	data, err := json.Marshal(line)
	if err != nil {
		return
	}
	obs.Logger().Println(string(data))
}
