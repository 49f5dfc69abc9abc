// Package audit records security-relevant actions to the log and to an
// append-only store.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"learnhub.org/internal/auth"
	"learnhub.org/internal/ids"
	"learnhub.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id attached by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Entry is one append-only audit record.
type Entry struct {
	ID           string            `json:"id"`
	OccurredAt   time.Time         `json:"occurred_at"`
	ActorID      string            `json:"actor_id,omitempty"`
	ActorEmail   string            `json:"actor_email,omitempty"`
	Namespace    string            `json:"namespace,omitempty"`
	Action       string            `json:"action"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	Metadata     map[string]string `json:"metadata"`
	RequestID    string            `json:"request_id,omitempty"`
}

// Filter narrows audit listings.
type Filter struct {
	Action  string
	ActorID string
	Limit   int
	Offset  int
}

// Store persists entries.
type Store interface {
	AppendAudit(ctx context.Context, e Entry) error
	ListAudit(ctx context.Context, f Filter) ([]Entry, int, error)
}

// Recorder writes audit entries.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder returns a Recorder. With a nil store entries are only logged.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record logs e, enriched with the request id and the caller found in ctx,
// and appends it to the store.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	e.Action = strings.TrimSpace(e.Action)
	if e.Action == "" {
		return errors.New("audit action is required")
	}
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = r.now().UTC()
	}
	if e.RequestID == "" {
		e.RequestID = RequestIDFromContext(ctx)
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		if e.ActorID == "" {
			e.ActorID = p.IdentityID()
		}
		if e.ActorEmail == "" {
			e.ActorEmail = p.Session.Email
		}
		if e.Namespace == "" {
			e.Namespace = string(p.Namespace)
		}
	}
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}

	obs.Logger().Info("audit",
		zap.String("type", "audit"),
		zap.String("event", e.Action),
		zap.String("request_id", e.RequestID),
		zap.String("actor_id", e.ActorID),
		zap.String("namespace", e.Namespace),
		zap.String("resource_type", e.ResourceType),
		zap.String("resource_id", e.ResourceID),
		zap.Any("fields", e.Metadata),
	)
	if r.store == nil {
		return nil
	}
	return r.store.AppendAudit(ctx, e)
}

// List returns entries newest first.
func (r *Recorder) List(ctx context.Context, f Filter) ([]Entry, int, error) {
	if r.store == nil {
		return []Entry{}, 0, nil
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	return r.store.ListAudit(ctx, f)
}
