// Package settings holds the site-wide settings document and its validator.
package settings

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"learnhub.org/internal/apperr"
)

const (
	maxSiteNameLength = 100
	maxFeatured       = 12
	maxCartItemsLimit = 100
)

// Settings is the single site configuration document editable by admins.
type Settings struct {
	SiteName          string    `json:"site_name"`
	SupportEmail      string    `json:"support_email"`
	Currency          string    `json:"currency"`
	MaintenanceMode   bool      `json:"maintenance_mode"`
	AllowRegistration bool      `json:"allow_registration"`
	MaxCartItems      int       `json:"max_cart_items"`
	FeaturedCourseIDs []string  `json:"featured_course_ids"`
	UpdatedAt         time.Time `json:"updated_at"`
	UpdatedBy         string    `json:"updated_by,omitempty"`
}

// Defaults are served until an admin saves settings.
func Defaults() Settings {
	return Settings{
		SiteName:          "learnhub",
		SupportEmail:      "support@learnhub.org",
		Currency:          "USD",
		AllowRegistration: true,
		MaxCartItems:      20,
		FeaturedCourseIDs: []string{},
	}
}

// Validate checks every field and reports all problems in one error wrapping
// apperr.ErrInvalidInput.
func (s *Settings) Validate() error {
	var problems []string
	s.SiteName = strings.TrimSpace(s.SiteName)
	if s.SiteName == "" || len([]rune(s.SiteName)) > maxSiteNameLength {
		problems = append(problems, fmt.Sprintf("site_name must be 1-%d characters", maxSiteNameLength))
	}
	s.SupportEmail = strings.ToLower(strings.TrimSpace(s.SupportEmail))
	if addr, err := mail.ParseAddress(s.SupportEmail); err != nil || addr.Address != s.SupportEmail {
		problems = append(problems, "support_email must be a valid address")
	}
	s.Currency = strings.ToUpper(strings.TrimSpace(s.Currency))
	if !isCurrencyCode(s.Currency) {
		problems = append(problems, "currency must be a 3-letter code")
	}
	if s.MaxCartItems < 1 || s.MaxCartItems > maxCartItemsLimit {
		problems = append(problems, fmt.Sprintf("max_cart_items must be within 1..%d", maxCartItemsLimit))
	}
	if len(s.FeaturedCourseIDs) > maxFeatured {
		problems = append(problems, fmt.Sprintf("featured_course_ids holds at most %d entries", maxFeatured))
	}
	seen := make(map[string]bool, len(s.FeaturedCourseIDs))
	for _, id := range s.FeaturedCourseIDs {
		if strings.TrimSpace(id) == "" {
			problems = append(problems, "featured_course_ids must not contain empty ids")
			break
		}
		if seen[id] {
			problems = append(problems, "featured_course_ids must not repeat ids")
			break
		}
		seen[id] = true
	}
	if s.FeaturedCourseIDs == nil {
		s.FeaturedCourseIDs = []string{}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", apperr.ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

func isCurrencyCode(c string) bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Store persists the settings document. Get returns apperr.ErrNotFound when
// nothing has been saved yet.
type Store interface {
	GetSettings(ctx context.Context) (Settings, error)
	PutSettings(ctx context.Context, s Settings) error
}

// CourseLookup reports whether a course id exists in the catalog.
type CourseLookup interface {
	CourseExists(ctx context.Context, id string) (bool, error)
}

// Service reads and updates settings.
type Service struct {
	store   Store
	courses CourseLookup
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCourseLookup makes Update reject featured ids unknown to the catalog.
func WithCourseLookup(courses CourseLookup) Option {
	return func(s *Service) { s.courses = courses }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the saved settings or the defaults.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	cur, err := s.store.GetSettings(ctx)
	if errors.Is(err, apperr.ErrNotFound) {
		return Defaults(), nil
	}
	return cur, err
}

// Update validates and saves next, stamping the editor.
func (s *Service) Update(ctx context.Context, next Settings, editor string) (Settings, error) {
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	if err := s.checkFeatured(ctx, next.FeaturedCourseIDs); err != nil {
		return Settings{}, err
	}
	next.UpdatedAt = s.now().UTC()
	next.UpdatedBy = editor
	if err := s.store.PutSettings(ctx, next); err != nil {
		return Settings{}, err
	}
	return next, nil
}

func (s *Service) checkFeatured(ctx context.Context, ids []string) error {
	if s.courses == nil {
		return nil
	}
	var unknown []string
	for _, id := range ids {
		ok, err := s.courses.CourseExists(ctx, id)
		if err != nil {
			return fmt.Errorf("check featured course %s: %w", id, err)
		}
		if !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: featured_course_ids references unknown courses: %s",
			apperr.ErrInvalidInput, strings.Join(unknown, ", "))
	}
	return nil
}

// DefaultCurrency returns the configured currency, or empty on failure.
func (s *Service) DefaultCurrency(ctx context.Context) string {
	cur, err := s.Get(ctx)
	if err != nil {
		return ""
	}
	return cur.Currency
}

// MaxCartItems returns the configured cart cap.
func (s *Service) MaxCartItems(ctx context.Context) int {
	cur, err := s.Get(ctx)
	if err != nil || cur.MaxCartItems <= 0 {
		return Defaults().MaxCartItems
	}
	return cur.MaxCartItems
}

// RegistrationOpen reports whether self sign-up is allowed.
func (s *Service) RegistrationOpen(ctx context.Context) (bool, error) {
	cur, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	return cur.AllowRegistration, nil
}

// MaintenanceMode reports whether learner-facing writes are suspended.
func (s *Service) MaintenanceMode(ctx context.Context) (bool, error) {
	cur, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	return cur.MaintenanceMode, nil
}

// FeaturedCourseIDs returns the curated course ids in display order.
func (s *Service) FeaturedCourseIDs(ctx context.Context) ([]string, error) {
	cur, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	return cur.FeaturedCourseIDs, nil
}
