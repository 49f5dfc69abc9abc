package catalog

import (
	"context"
	"time"
)

// Course is a purchasable unit of learning content.
type Course struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Slug          string    `json:"slug"`
	Description   string    `json:"description"`
	CategoryID    string    `json:"category_id,omitempty"`
	CareerTrackID string    `json:"career_track_id,omitempty"`
	Instructor    string    `json:"instructor,omitempty"`
	ImageURL      string    `json:"image_url,omitempty"`
	PriceCents    int64     `json:"price_cents"`
	Currency      string    `json:"currency"`
	Published     bool      `json:"published"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Category groups courses by subject.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CareerTrack is an ordered path through several courses.
type CareerTrack struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	CourseIDs   []string  `json:"course_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	CategoryID    string
	CareerTrackID string
	Search        string
	PublishedOnly bool
	Limit         int
	Offset        int
}

// CourseInput carries course fields for create and update. Nil fields are left
// unchanged on update.
type CourseInput struct {
	Title         *string `json:"title"`
	Slug          *string `json:"slug"`
	Description   *string `json:"description"`
	CategoryID    *string `json:"category_id"`
	CareerTrackID *string `json:"career_track_id"`
	Instructor    *string `json:"instructor"`
	ImageURL      *string `json:"image_url"`
	PriceCents    *int64  `json:"price_cents"`
	Currency      *string `json:"currency"`
	Published     *bool   `json:"published"`
}

// CategoryInput carries category fields. Nil fields are left unchanged on update.
type CategoryInput struct {
	Name        *string `json:"name"`
	Slug        *string `json:"slug"`
	Description *string `json:"description"`
}

// CareerTrackInput carries career track fields. Nil fields are left unchanged on update.
type CareerTrackInput struct {
	Name        *string   `json:"name"`
	Slug        *string   `json:"slug"`
	Description *string   `json:"description"`
	CourseIDs   *[]string `json:"course_ids"`
}

// Store persists the catalog. Create and update return apperr.ErrConflict on a
// duplicate slug; lookups return apperr.ErrNotFound.
type Store interface {
	CreateCourse(ctx context.Context, c Course) (Course, error)
	UpdateCourse(ctx context.Context, c Course) (Course, error)
	DeleteCourse(ctx context.Context, id string) error
	Course(ctx context.Context, id string) (Course, error)
	ListCourses(ctx context.Context, f CourseFilter) ([]Course, int, error)

	CreateCategory(ctx context.Context, c Category) (Category, error)
	UpdateCategory(ctx context.Context, c Category) (Category, error)
	DeleteCategory(ctx context.Context, id string) error
	Category(ctx context.Context, id string) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)

	CreateCareerTrack(ctx context.Context, t CareerTrack) (CareerTrack, error)
	UpdateCareerTrack(ctx context.Context, t CareerTrack) (CareerTrack, error)
	DeleteCareerTrack(ctx context.Context, id string) error
	CareerTrack(ctx context.Context, id string) (CareerTrack, error)
	ListCareerTracks(ctx context.Context) ([]CareerTrack, error)
}
