package audit

import (
	"context"
	"time"
)

const (
	OutcomeRows    = "rows"
	OutcomeMessage = "message"
	OutcomeError   = "error"
)

// Entry is one gateway request as seen by the audit log. SQL is empty when
// no statement was extracted.
type Entry struct {
	ID        int64         `json:"id"`
	TraceID   string        `json:"traceId"`
	TenantID  string        `json:"tenantId"`
	Prompt    string        `json:"prompt"`
	SQL       string        `json:"sql,omitempty"`
	Outcome   string        `json:"outcome"`
	ErrorKind string        `json:"errorKind,omitempty"`
	RowCount  int           `json:"rowCount"`
	Duration  time.Duration `json:"-"`
	CreatedAt time.Time     `json:"createdAt"`
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

type Reader interface {
	Recent(ctx context.Context, tenantID string, limit int) ([]Entry, error)
}

// Nop discards entries and lists nothing.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error {
	return nil
}

func (Nop) Recent(context.Context, string, int) ([]Entry, error) {
	return []Entry{}, nil
}
