// Package analytics produces the back-office summary.
package analytics

import (
	"context"
	"fmt"
	"time"

	"learnhub.org/internal/apperr"
)

const (
	DefaultWindowDays = 30
	MaxWindowDays     = 365
	topCourses        = 5
)

// Totals are all-time counts.
type Totals struct {
	Users            int64 `json:"users"`
	Courses          int64 `json:"courses"`
	PublishedCourses int64 `json:"published_courses"`
	Orders           int64 `json:"orders"`
	Enrollments      int64 `json:"enrollments"`
	RevenueCents     int64 `json:"revenue_cents"`
}

// CourseCount ranks a course by enrollments.
type CourseCount struct {
	CourseID    string `json:"course_id"`
	Title       string `json:"title"`
	Enrollments int64  `json:"enrollments"`
}

// DayCount is a per-day tally.
type DayCount struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

// Summary is the dashboard payload.
type Summary struct {
	Totals       Totals        `json:"totals"`
	TopCourses   []CourseCount `json:"top_courses"`
	SignupsByDay []DayCount    `json:"signups_by_day"`
	WindowDays   int           `json:"window_days"`
	GeneratedAt  time.Time     `json:"generated_at"`
}

// Store aggregates the figures. Days in SignupsByDay use YYYY-MM-DD in UTC.
type Store interface {
	Totals(ctx context.Context) (Totals, error)
	TopCourses(ctx context.Context, limit int) ([]CourseCount, error)
	SignupsByDay(ctx context.Context, since time.Time) ([]DayCount, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Summary collects totals, top courses and signups over the last days days.
func (s *Service) Summary(ctx context.Context, days int) (Summary, error) {
	if days == 0 {
		days = DefaultWindowDays
	}
	if days < 1 || days > MaxWindowDays {
		return Summary{}, fmt.Errorf("%w: days must be within 1..%d", apperr.ErrInvalidInput, MaxWindowDays)
	}
	now := s.now().UTC()
	totals, err := s.store.Totals(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("totals: %w", err)
	}
	top, err := s.store.TopCourses(ctx, topCourses)
	if err != nil {
		return Summary{}, fmt.Errorf("top courses: %w", err)
	}
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))
	signups, err := s.store.SignupsByDay(ctx, since)
	if err != nil {
		return Summary{}, fmt.Errorf("signups: %w", err)
	}
	if top == nil {
		top = []CourseCount{}
	}
	return Summary{
		Totals:       totals,
		TopCourses:   top,
		SignupsByDay: fillDays(signups, since, days),
		WindowDays:   days,
		GeneratedAt:  now,
	}, nil
}

// fillDays returns one entry per day of the window, zero where the store had none.
func fillDays(counts []DayCount, since time.Time, days int) []DayCount {
	byDay := make(map[string]int64, len(counts))
	for _, c := range counts {
		byDay[c.Day] = c.Count
	}
	out := make([]DayCount, 0, days)
	for i := 0; i < days; i++ {
		day := since.AddDate(0, 0, i).Format(time.DateOnly)
		out = append(out, DayCount{Day: day, Count: byDay[day]})
	}
	return out
}
