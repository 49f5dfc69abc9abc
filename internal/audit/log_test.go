package audit

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"learnhub.org/internal/auth"
	"learnhub.org/internal/obs"
)

type memStore struct {
	entries []Entry
	err     error
}

func (m *memStore) AppendAudit(ctx context.Context, e Entry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memStore) ListAudit(ctx context.Context, f Filter) ([]Entry, int, error) {
	return m.entries, len(m.entries), nil
}

func TestRecordLogsAndPersists(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := obs.SetLogger(zap.New(core))
	defer obs.SetLogger(prev)

	store := &memStore{}
	rec := NewRecorder(store)

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = auth.ContextWithPrincipal(ctx, auth.Principal{
		Namespace: auth.NamespaceAdmin,
		Session:   auth.Session{IdentityID: "user-42", Email: "ada@example.com"},
	})

	err := rec.Record(ctx, Entry{
		Action:       "course.create",
		ResourceType: "course",
		ResourceID:   "c-1",
		Metadata:     map[string]string{"title": "Go"},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	if len(store.entries) != 1 {
		t.Fatalf("expected one stored entry, got %d", len(store.entries))
	}
	got := store.entries[0]
	if got.RequestID != "req-123" || got.ActorID != "user-42" || got.Namespace != "admin" {
		t.Fatalf("entry not enriched from context: %+v", got)
	}
	if got.ID == "" || got.OccurredAt.IsZero() {
		t.Fatalf("expected id and timestamp, got %+v", got)
	}

	lines := logs.FilterMessage("audit").All()
	if len(lines) != 1 {
		t.Fatalf("expected one audit log line, got %d", len(lines))
	}
	fields := lines[0].ContextMap()
	if fields["type"] != "audit" || fields["event"] != "course.create" {
		t.Fatalf("unexpected log fields: %v", fields)
	}
}

func TestRecordRequiresAction(t *testing.T) {
	rec := NewRecorder(nil)
	if err := rec.Record(context.Background(), Entry{Action: "  "}); err == nil {
		t.Fatalf("expected error for blank action")
	}
}

func TestRecordSurfacesStoreError(t *testing.T) {
	boom := errors.New("disk full")
	rec := NewRecorder(&memStore{err: boom})
	if err := rec.Record(context.Background(), Entry{Action: "auth.login"}); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}
