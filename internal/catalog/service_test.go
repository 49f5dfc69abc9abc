package catalog_test

import (
	"context"
	"testing"

	"learnhub.org/internal/apperr"
	"learnhub.org/internal/catalog"
	"learnhub.org/internal/store/memory"
)

type fixedCurrency string

func (c fixedCurrency) DefaultCurrency(context.Context) string { return string(c) }

func ptr[T any](v T) *T { return &v }

func TestCreateCourseDefaults(t *testing.T) {
	ctx := context.Background()
	svc := catalog.NewService(memory.New(), fixedCurrency("EUR"))

	c, err := svc.CreateCourse(ctx, catalog.CourseInput{Title: ptr("  Go Concurrency Patterns! "), PriceCents: ptr[int64](1500)})
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	if c.Title != "Go Concurrency Patterns!" {
		t.Fatalf("title not trimmed: %q", c.Title)
	}
	if c.Slug != "go-concurrency-patterns" {
		t.Fatalf("slug = %q", c.Slug)
	}
	if c.Currency != "EUR" {
		t.Fatalf("currency = %q", c.Currency)
	}
	if c.Published {
		t.Fatalf("courses start unpublished")
	}

	_, err = svc.CreateCourse(ctx, catalog.CourseInput{Title: ptr("Go concurrency patterns")})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("duplicate slug: expected conflict, got %v", err)
	}
}

func TestCreateCourseValidation(t *testing.T) {
	ctx := context.Background()
	svc := catalog.NewService(memory.New(), nil)

	cases := []struct {
		name string
		in   catalog.CourseInput
	}{
		{"missing title", catalog.CourseInput{}},
		{"blank title", catalog.CourseInput{Title: ptr("   ")}},
		{"negative price", catalog.CourseInput{Title: ptr("A"), PriceCents: ptr[int64](-1)}},
		{"bad currency", catalog.CourseInput{Title: ptr("A"), Currency: ptr("euro")}},
		{"unknown category", catalog.CourseInput{Title: ptr("A"), CategoryID: ptr("missing")}},
		{"unknown track", catalog.CourseInput{Title: ptr("A"), CareerTrackID: ptr("missing")}},
		{"symbols only", catalog.CourseInput{Title: ptr("!!!")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateCourse(ctx, tc.in)
			if apperr.KindOf(err) != apperr.KindInvalidInput {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestUpdateCourseKeepsUnsetFields(t *testing.T) {
	ctx := context.Background()
	svc := catalog.NewService(memory.New(), nil)
	c, err := svc.CreateCourse(ctx, catalog.CourseInput{Title: ptr("SQL Basics"), Description: ptr("joins"), PriceCents: ptr[int64](900)})
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}

	updated, err := svc.UpdateCourse(ctx, c.ID, catalog.CourseInput{Published: ptr(true)})
	if err != nil {
		t.Fatalf("UpdateCourse: %v", err)
	}
	if !updated.Published || updated.Description != "joins" || updated.PriceCents != 900 {
		t.Fatalf("unexpected update result %+v", updated)
	}

	if _, err := svc.UpdateCourse(ctx, "missing", catalog.CourseInput{}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPublicViewsHideDrafts(t *testing.T) {
	ctx := context.Background()
	svc := catalog.NewService(memory.New(), nil)
	draft, _ := svc.CreateCourse(ctx, catalog.CourseInput{Title: ptr("Draft")})
	live, _ := svc.CreateCourse(ctx, catalog.CourseInput{Title: ptr("Live"), Published: ptr(true)})

	items, total, err := svc.PublicCourses(ctx, catalog.CourseFilter{})
	if err != nil {
		t.Fatalf("PublicCourses: %v", err)
	}
	if total != 1 || items[0].ID != live.ID {
		t.Fatalf("unexpected public listing %+v", items)
	}
	if _, err := svc.PublicCourse(ctx, draft.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("draft must be hidden, got %v", err)
	}

	_, total, err = svc.ListCourses(ctx, catalog.CourseFilter{})
	if err != nil || total != 2 {
		t.Fatalf("back office listing: total=%d err=%v", total, err)
	}
}

func TestFeaturedCoursesKeepOrderAndSkipHidden(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := catalog.NewService(store, nil)
	first, _ := svc.CreateCourse(ctx, catalog.CourseInput{Title: ptr("First"), Published: ptr(true)})
	second, _ := svc.CreateCourse(ctx, catalog.CourseInput{Title: ptr("Second"), Published: ptr(true)})
	draft, _ := svc.CreateCourse(ctx, catalog.CourseInput{Title: ptr("Draft")})

	got, err := svc.FeaturedCourses(ctx, []string{second.ID, draft.ID, "crs_gone", first.ID})
	if err != nil {
		t.Fatalf("FeaturedCourses: %v", err)
	}
	if len(got) != 2 || got[0].ID != second.ID || got[1].ID != first.ID {
		t.Fatalf("unexpected featured %+v", got)
	}
	if ok, err := store.CourseExists(ctx, draft.ID); err != nil || !ok {
		t.Fatalf("CourseExists(draft) = %v, %v", ok, err)
	}
	if ok, err := store.CourseExists(ctx, "crs_gone"); err != nil || ok {
		t.Fatalf("CourseExists(unknown) = %v, %v", ok, err)
	}
}

func TestCareerTrackReferencesCourses(t *testing.T) {
	ctx := context.Background()
	svc := catalog.NewService(memory.New(), nil)
	a, _ := svc.CreateCourse(ctx, catalog.CourseInput{Title: ptr("Part One")})
	b, _ := svc.CreateCourse(ctx, catalog.CourseInput{Title: ptr("Part Two")})

	if _, err := svc.CreateCareerTrack(ctx, catalog.CareerTrackInput{Name: ptr("Track"), CourseIDs: ptr([]string{a.ID, a.ID})}); apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Fatalf("duplicate course ids: expected invalid input, got %v", err)
	}
	if _, err := svc.CreateCareerTrack(ctx, catalog.CareerTrackInput{Name: ptr("Track"), CourseIDs: ptr([]string{"ghost"})}); apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Fatalf("unknown course: expected invalid input, got %v", err)
	}

	track, err := svc.CreateCareerTrack(ctx, catalog.CareerTrackInput{Name: ptr("Backend Engineer"), CourseIDs: ptr([]string{a.ID, b.ID})})
	if err != nil {
		t.Fatalf("CreateCareerTrack: %v", err)
	}
	if track.Slug != "backend-engineer" {
		t.Fatalf("slug = %q", track.Slug)
	}

	if err := svc.DeleteCourse(ctx, a.ID); err != nil {
		t.Fatalf("DeleteCourse: %v", err)
	}
	tracks, err := svc.CareerTracks(ctx)
	if err != nil {
		t.Fatalf("CareerTracks: %v", err)
	}
	if len(tracks) != 1 || len(tracks[0].CourseIDs) != 1 || tracks[0].CourseIDs[0] != b.ID {
		t.Fatalf("deleted course still referenced: %+v", tracks)
	}
}

func TestDeleteCategoryDetachesCourses(t *testing.T) {
	ctx := context.Background()
	svc := catalog.NewService(memory.New(), nil)
	cat, err := svc.CreateCategory(ctx, catalog.CategoryInput{Name: ptr("Web")})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	c, err := svc.CreateCourse(ctx, catalog.CourseInput{Title: ptr("HTTP"), CategoryID: ptr(cat.ID)})
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	if err := svc.DeleteCategory(ctx, cat.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	got, err := svc.Course(ctx, c.ID)
	if err != nil {
		t.Fatalf("Course: %v", err)
	}
	if got.CategoryID != "" {
		t.Fatalf("category not detached: %q", got.CategoryID)
	}
	if err := svc.DeleteCategory(ctx, cat.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("second delete: expected not found, got %v", err)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Hello World":       "hello-world",
		"  --Go 1.24--  ":   "go-1-24",
		"Données & Modèles": "données-modèles",
		"***":               "",
	}
	for in, want := range cases {
		if got := catalog.Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
