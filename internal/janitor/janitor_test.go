package janitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"learnhub.org/internal/auth"
)

type stubPurger struct {
	calls []auth.Namespace
	err   error
}

func (s *stubPurger) PurgeExpired(ctx context.Context, ns auth.Namespace) (int64, error) {
	s.calls = append(s.calls, ns)
	return 2, s.err
}

type stubSweeper struct{ idle time.Duration }

func (s *stubSweeper) Sweep(idle time.Duration) int {
	s.idle = idle
	return 1
}

func TestRunOncePurgesBothNamespaces(t *testing.T) {
	purger := &stubPurger{}
	sweeper := &stubSweeper{}
	j, err := New("@every 1m", purger, sweeper, 5*time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(purger.calls) != 2 || purger.calls[0] != auth.NamespaceUser || purger.calls[1] != auth.NamespaceAdmin {
		t.Fatalf("unexpected purge calls %v", purger.calls)
	}
	if sweeper.idle != 5*time.Minute {
		t.Fatalf("sweeper not called with idle ttl, got %v", sweeper.idle)
	}
}

func TestRunOnceJoinsErrors(t *testing.T) {
	boom := errors.New("db down")
	j, err := New("@every 1m", &stubPurger{err: boom}, nil, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := j.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	if _, err := New("every now and then", &stubPurger{}, nil, 0); err == nil {
		t.Fatalf("expected schedule parse error")
	}
}

func TestStartStop(t *testing.T) {
	j, err := New("@every 1h", &stubPurger{}, nil, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	j.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	j.Stop(ctx)
}
