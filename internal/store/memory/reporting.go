package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"learnhub.org/internal/analytics"
	"learnhub.org/internal/apperr"
	"learnhub.org/internal/audit"
	"learnhub.org/internal/settings"
)

func (s *Store) GetSettings(ctx context.Context) (settings.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return settings.Settings{}, fmt.Errorf("settings: %w", apperr.ErrNotFound)
	}
	out := *s.settings
	out.FeaturedCourseIDs = slices.Clone(out.FeaturedCourseIDs)
	return out, nil
}

func (s *Store) PutSettings(ctx context.Context, next settings.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next.FeaturedCourseIDs = slices.Clone(next.FeaturedCourseIDs)
	s.settings = &next
	return nil
}

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta := make(map[string]string, len(e.Metadata))
	for k, v := range e.Metadata {
		meta[k] = v
	}
	e.Metadata = meta
	s.auditLog = append(s.auditLog, e)
	return nil
}

func (s *Store) ListAudit(ctx context.Context, f audit.Filter) ([]audit.Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []audit.Entry
	for i := len(s.auditLog) - 1; i >= 0; i-- {
		e := s.auditLog[i]
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.ActorID != "" && e.ActorID != f.ActorID {
			continue
		}
		matched = append(matched, e)
	}
	return page(matched, f.Limit, f.Offset), len(matched), nil
}

func (s *Store) Totals(ctx context.Context) (analytics.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := analytics.Totals{
		Users:       int64(len(s.identities)),
		Courses:     int64(len(s.courses)),
		Orders:      int64(len(s.orders)),
		Enrollments: int64(len(s.enrollments)),
	}
	for _, c := range s.courses {
		if c.Published {
			t.PublishedCourses++
		}
	}
	for _, o := range s.orders {
		t.RevenueCents += o.TotalCents
	}
	return t, nil
}

func (s *Store) TopCourses(ctx context.Context, limit int) ([]analytics.CourseCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64)
	for _, e := range s.enrollments {
		counts[e.CourseID]++
	}
	out := make([]analytics.CourseCount, 0, len(counts))
	for id, n := range counts {
		out = append(out, analytics.CourseCount{CourseID: id, Title: s.courses[id].Title, Enrollments: n})
	}
	slices.SortFunc(out, func(a, b analytics.CourseCount) int {
		if a.Enrollments != b.Enrollments {
			if a.Enrollments > b.Enrollments {
				return -1
			}
			return 1
		}
		return strings.Compare(a.CourseID, b.CourseID)
	})
	return page(out, limit, 0), nil
}

func (s *Store) SignupsByDay(ctx context.Context, since time.Time) ([]analytics.DayCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64)
	for _, identity := range s.identities {
		if identity.CreatedAt.Before(since) {
			continue
		}
		counts[identity.CreatedAt.UTC().Format(time.DateOnly)]++
	}
	out := make([]analytics.DayCount, 0, len(counts))
	for day, n := range counts {
		out = append(out, analytics.DayCount{Day: day, Count: n})
	}
	slices.SortFunc(out, func(a, b analytics.DayCount) int { return strings.Compare(a.Day, b.Day) })
	return out, nil
}
