// Package catalog manages courses, categories and career tracks.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"learnhub.org/internal/apperr"
	"learnhub.org/internal/ids"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 10000
	maxTrackCourses      = 50
	defaultListLimit     = 20
	fallbackCurrency     = "USD"
)

// CurrencySource supplies the currency for courses created without one.
type CurrencySource interface {
	DefaultCurrency(ctx context.Context) string
}

// Service validates catalog changes before they reach the store.
type Service struct {
	store    Store
	currency CurrencySource
	now      func() time.Time
}

// NewService constructs a catalog Service. currency may be nil.
func NewService(store Store, currency CurrencySource) *Service {
	return &Service{store: store, currency: currency, now: time.Now}
}

// PublicCourses lists published courses only.
func (s *Service) PublicCourses(ctx context.Context, f CourseFilter) ([]Course, int, error) {
	f.PublishedOnly = true
	return s.ListCourses(ctx, f)
}

// PublicCourse returns a published course; unpublished courses are reported as not found.
func (s *Service) PublicCourse(ctx context.Context, id string) (Course, error) {
	c, err := s.Course(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if !c.Published {
		return Course{}, fmt.Errorf("course: %w", apperr.ErrNotFound)
	}
	return c, nil
}

// FeaturedCourses resolves curated ids to published courses, keeping the
// given order. Ids that are gone or unpublished are skipped.
func (s *Service) FeaturedCourses(ctx context.Context, ids []string) ([]Course, error) {
	out := make([]Course, 0, len(ids))
	for _, id := range ids {
		c, err := s.store.Course(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if c.Published {
			out = append(out, c)
		}
	}
	return out, nil
}

// ListCourses lists courses matching f.
func (s *Service) ListCourses(ctx context.Context, f CourseFilter) ([]Course, int, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Search = strings.TrimSpace(f.Search)
	return s.store.ListCourses(ctx, f)
}

// Course returns any course by id.
func (s *Service) Course(ctx context.Context, id string) (Course, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Course{}, fmt.Errorf("%w: course id is required", apperr.ErrInvalidInput)
	}
	return s.store.Course(ctx, id)
}

// CreateCourse validates in and stores a new course.
func (s *Service) CreateCourse(ctx context.Context, in CourseInput) (Course, error) {
	now := s.now().UTC()
	c := Course{ID: ids.New(), CreatedAt: now, UpdatedAt: now}
	applyCourse(&c, in)
	if c.Currency == "" {
		c.Currency = s.defaultCurrency(ctx)
	}
	if err := s.validateCourse(ctx, &c); err != nil {
		return Course{}, err
	}
	return s.store.CreateCourse(ctx, c)
}

// UpdateCourse applies in to course id.
func (s *Service) UpdateCourse(ctx context.Context, id string, in CourseInput) (Course, error) {
	c, err := s.Course(ctx, id)
	if err != nil {
		return Course{}, err
	}
	applyCourse(&c, in)
	c.UpdatedAt = s.now().UTC()
	if err := s.validateCourse(ctx, &c); err != nil {
		return Course{}, err
	}
	return s.store.UpdateCourse(ctx, c)
}

// DeleteCourse removes course id.
func (s *Service) DeleteCourse(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: course id is required", apperr.ErrInvalidInput)
	}
	return s.store.DeleteCourse(ctx, id)
}

// Categories lists every category.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return s.store.ListCategories(ctx)
}

// CreateCategory validates in and stores a new category.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (Category, error) {
	now := s.now().UTC()
	c := Category{ID: ids.New(), CreatedAt: now, UpdatedAt: now}
	applyCategory(&c, in)
	if err := validateNamed(&c.Name, &c.Slug, c.Description); err != nil {
		return Category{}, err
	}
	return s.store.CreateCategory(ctx, c)
}

// UpdateCategory applies in to category id.
func (s *Service) UpdateCategory(ctx context.Context, id string, in CategoryInput) (Category, error) {
	c, err := s.store.Category(ctx, strings.TrimSpace(id))
	if err != nil {
		return Category{}, err
	}
	applyCategory(&c, in)
	c.UpdatedAt = s.now().UTC()
	if err := validateNamed(&c.Name, &c.Slug, c.Description); err != nil {
		return Category{}, err
	}
	return s.store.UpdateCategory(ctx, c)
}

// DeleteCategory removes category id.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	return s.store.DeleteCategory(ctx, strings.TrimSpace(id))
}

// CareerTracks lists every career track.
func (s *Service) CareerTracks(ctx context.Context) ([]CareerTrack, error) {
	return s.store.ListCareerTracks(ctx)
}

// CreateCareerTrack validates in and stores a new career track.
func (s *Service) CreateCareerTrack(ctx context.Context, in CareerTrackInput) (CareerTrack, error) {
	now := s.now().UTC()
	t := CareerTrack{ID: ids.New(), CreatedAt: now, UpdatedAt: now}
	applyCareerTrack(&t, in)
	if err := s.validateCareerTrack(ctx, &t); err != nil {
		return CareerTrack{}, err
	}
	return s.store.CreateCareerTrack(ctx, t)
}

// UpdateCareerTrack applies in to career track id.
func (s *Service) UpdateCareerTrack(ctx context.Context, id string, in CareerTrackInput) (CareerTrack, error) {
	t, err := s.store.CareerTrack(ctx, strings.TrimSpace(id))
	if err != nil {
		return CareerTrack{}, err
	}
	applyCareerTrack(&t, in)
	t.UpdatedAt = s.now().UTC()
	if err := s.validateCareerTrack(ctx, &t); err != nil {
		return CareerTrack{}, err
	}
	return s.store.UpdateCareerTrack(ctx, t)
}

// DeleteCareerTrack removes career track id.
func (s *Service) DeleteCareerTrack(ctx context.Context, id string) error {
	return s.store.DeleteCareerTrack(ctx, strings.TrimSpace(id))
}

func (s *Service) defaultCurrency(ctx context.Context) string {
	if s.currency != nil {
		if c := s.currency.DefaultCurrency(ctx); c != "" {
			return c
		}
	}
	return fallbackCurrency
}

func (s *Service) validateCourse(ctx context.Context, c *Course) error {
	if err := validateNamed(&c.Title, &c.Slug, c.Description); err != nil {
		return err
	}
	if c.PriceCents < 0 {
		return fmt.Errorf("%w: price_cents must be >= 0", apperr.ErrInvalidInput)
	}
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	if len(c.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", apperr.ErrInvalidInput)
	}
	if c.CategoryID != "" {
		if _, err := s.store.Category(ctx, c.CategoryID); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return fmt.Errorf("%w: category %s does not exist", apperr.ErrInvalidInput, c.CategoryID)
			}
			return err
		}
	}
	if c.CareerTrackID != "" {
		if _, err := s.store.CareerTrack(ctx, c.CareerTrackID); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return fmt.Errorf("%w: career track %s does not exist", apperr.ErrInvalidInput, c.CareerTrackID)
			}
			return err
		}
	}
	return nil
}

func (s *Service) validateCareerTrack(ctx context.Context, t *CareerTrack) error {
	if err := validateNamed(&t.Name, &t.Slug, t.Description); err != nil {
		return err
	}
	if len(t.CourseIDs) > maxTrackCourses {
		return fmt.Errorf("%w: a career track holds at most %d courses", apperr.ErrInvalidInput, maxTrackCourses)
	}
	seen := make(map[string]struct{}, len(t.CourseIDs))
	for _, id := range t.CourseIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: course %s listed twice", apperr.ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
		if _, err := s.store.Course(ctx, id); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return fmt.Errorf("%w: course %s does not exist", apperr.ErrInvalidInput, id)
			}
			return err
		}
	}
	if t.CourseIDs == nil {
		t.CourseIDs = []string{}
	}
	return nil
}

func validateNamed(name, slug *string, description string) error {
	*name = strings.TrimSpace(*name)
	if *name == "" {
		return fmt.Errorf("%w: name or title is required", apperr.ErrInvalidInput)
	}
	if len([]rune(*name)) > maxTitleLength {
		return fmt.Errorf("%w: name or title exceeds %d characters", apperr.ErrInvalidInput, maxTitleLength)
	}
	if len(description) > maxDescriptionLength {
		return fmt.Errorf("%w: description is too long", apperr.ErrInvalidInput)
	}
	*slug = Slugify(*slug)
	if *slug == "" {
		*slug = Slugify(*name)
	}
	if *slug == "" {
		return fmt.Errorf("%w: slug must contain letters or digits", apperr.ErrInvalidInput)
	}
	return nil
}

// Slugify lowercases s and joins its alphanumeric runs with dashes.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}

func applyCourse(c *Course, in CourseInput) {
	set(&c.Title, in.Title)
	set(&c.Slug, in.Slug)
	set(&c.Description, in.Description)
	set(&c.CategoryID, in.CategoryID)
	set(&c.CareerTrackID, in.CareerTrackID)
	set(&c.Instructor, in.Instructor)
	set(&c.ImageURL, in.ImageURL)
	set(&c.Currency, in.Currency)
	if in.PriceCents != nil {
		c.PriceCents = *in.PriceCents
	}
	if in.Published != nil {
		c.Published = *in.Published
	}
}

func applyCategory(c *Category, in CategoryInput) {
	set(&c.Name, in.Name)
	set(&c.Slug, in.Slug)
	set(&c.Description, in.Description)
}

func applyCareerTrack(t *CareerTrack, in CareerTrackInput) {
	set(&t.Name, in.Name)
	set(&t.Slug, in.Slug)
	set(&t.Description, in.Description)
	if in.CourseIDs != nil {
		t.CourseIDs = append([]string(nil), (*in.CourseIDs)...)
	}
}

func set(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}
