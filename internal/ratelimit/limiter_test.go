package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestAllowPerKey(t *testing.T) {
	l := New(1, 2)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("10.0.0.1"); !ok {
			t.Fatalf("request %d should pass within burst", i)
		}
	}
	ok, wait := l.Allow("10.0.0.1")
	if ok || wait <= 0 {
		t.Fatalf("expected rejection with positive wait, got ok=%v wait=%v", ok, wait)
	}
	if ok, _ := l.Allow("10.0.0.2"); !ok {
		t.Fatalf("other keys have their own bucket")
	}

	l.now = func() time.Time { return base.Add(time.Second) }
	if ok, _ := l.Allow("10.0.0.1"); !ok {
		t.Fatalf("bucket should refill after a second")
	}
}

func TestSweepRemovesIdle(t *testing.T) {
	l := New(10, 10)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }
	l.Allow("a")
	l.now = func() time.Time { return base.Add(10 * time.Minute) }
	l.Allow("b")

	if removed := l.Sweep(5 * time.Minute); removed != 1 {
		t.Fatalf("expected 1 removed bucket, got %d", removed)
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 remaining bucket, got %d", l.Len())
	}
}

func TestAllowConcurrent(t *testing.T) {
	l := New(1000, 1000)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Allow(string(rune('a' + i%8)))
			}
		}(i)
		if i%4 == 0 {
			l.Sweep(time.Hour)
		}
	}
	wg.Wait()
	if l.Len() != 8 {
		t.Fatalf("expected 8 keys, got %d", l.Len())
	}
}
