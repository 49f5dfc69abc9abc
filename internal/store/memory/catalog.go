package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"learnhub.org/internal/apperr"
	"learnhub.org/internal/catalog"
)

func (s *Store) slugTaken(slug, exceptID string, slugs func(yield func(id, slug string) bool)) bool {
	taken := false
	slugs(func(id, other string) bool {
		if id != exceptID && other == slug {
			taken = true
			return false
		}
		return true
	})
	return taken
}

func (s *Store) courseSlugs(yield func(id, slug string) bool) {
	for id, c := range s.courses {
		if !yield(id, c.Slug) {
			return
		}
	}
}

func (s *Store) categorySlugs(yield func(id, slug string) bool) {
	for id, c := range s.categories {
		if !yield(id, c.Slug) {
			return
		}
	}
}

func (s *Store) trackSlugs(yield func(id, slug string) bool) {
	for id, t := range s.tracks {
		if !yield(id, t.Slug) {
			return
		}
	}
}

func (s *Store) CreateCourse(ctx context.Context, c catalog.Course) (catalog.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slugTaken(c.Slug, c.ID, s.courseSlugs) {
		return catalog.Course{}, fmt.Errorf("%w: slug %q already used", apperr.ErrConflict, c.Slug)
	}
	s.courses[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCourse(ctx context.Context, c catalog.Course) (catalog.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[c.ID]; !ok {
		return catalog.Course{}, fmt.Errorf("course: %w", apperr.ErrNotFound)
	}
	if s.slugTaken(c.Slug, c.ID, s.courseSlugs) {
		return catalog.Course{}, fmt.Errorf("%w: slug %q already used", apperr.ErrConflict, c.Slug)
	}
	s.courses[c.ID] = c
	return c, nil
}

func (s *Store) DeleteCourse(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[id]; !ok {
		return fmt.Errorf("course: %w", apperr.ErrNotFound)
	}
	delete(s.courses, id)
	for tid, t := range s.tracks {
		if i := slices.Index(t.CourseIDs, id); i >= 0 {
			t.CourseIDs = slices.Delete(slices.Clone(t.CourseIDs), i, i+1)
			s.tracks[tid] = t
		}
	}
	return nil
}

func (s *Store) CourseExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.courses[id]
	return ok, nil
}

func (s *Store) Course(ctx context.Context, id string) (catalog.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.courses[id]
	if !ok {
		return catalog.Course{}, fmt.Errorf("course: %w", apperr.ErrNotFound)
	}
	return c, nil
}

func (s *Store) ListCourses(ctx context.Context, f catalog.CourseFilter) ([]catalog.Course, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []catalog.Course
	for _, c := range s.courses {
		if f.PublishedOnly && !c.Published {
			continue
		}
		if f.CategoryID != "" && c.CategoryID != f.CategoryID {
			continue
		}
		if f.CareerTrackID != "" && c.CareerTrackID != f.CareerTrackID {
			continue
		}
		if f.Search != "" && !containsFold(c.Title, f.Search) && !containsFold(c.Description, f.Search) {
			continue
		}
		matched = append(matched, c)
	}
	slices.SortFunc(matched, func(a, b catalog.Course) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return page(matched, f.Limit, f.Offset), len(matched), nil
}

func (s *Store) CreateCategory(ctx context.Context, c catalog.Category) (catalog.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slugTaken(c.Slug, c.ID, s.categorySlugs) {
		return catalog.Category{}, fmt.Errorf("%w: slug %q already used", apperr.ErrConflict, c.Slug)
	}
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCategory(ctx context.Context, c catalog.Category) (catalog.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[c.ID]; !ok {
		return catalog.Category{}, fmt.Errorf("category: %w", apperr.ErrNotFound)
	}
	if s.slugTaken(c.Slug, c.ID, s.categorySlugs) {
		return catalog.Category{}, fmt.Errorf("%w: slug %q already used", apperr.ErrConflict, c.Slug)
	}
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return fmt.Errorf("category: %w", apperr.ErrNotFound)
	}
	delete(s.categories, id)
	for cid, c := range s.courses {
		if c.CategoryID == id {
			c.CategoryID = ""
			s.courses[cid] = c
		}
	}
	return nil
}

func (s *Store) Category(ctx context.Context, id string) (catalog.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return catalog.Category{}, fmt.Errorf("category: %w", apperr.ErrNotFound)
	}
	return c, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b catalog.Category) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) CreateCareerTrack(ctx context.Context, t catalog.CareerTrack) (catalog.CareerTrack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slugTaken(t.Slug, t.ID, s.trackSlugs) {
		return catalog.CareerTrack{}, fmt.Errorf("%w: slug %q already used", apperr.ErrConflict, t.Slug)
	}
	t.CourseIDs = slices.Clone(t.CourseIDs)
	s.tracks[t.ID] = t
	return t, nil
}

func (s *Store) UpdateCareerTrack(ctx context.Context, t catalog.CareerTrack) (catalog.CareerTrack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[t.ID]; !ok {
		return catalog.CareerTrack{}, fmt.Errorf("career track: %w", apperr.ErrNotFound)
	}
	if s.slugTaken(t.Slug, t.ID, s.trackSlugs) {
		return catalog.CareerTrack{}, fmt.Errorf("%w: slug %q already used", apperr.ErrConflict, t.Slug)
	}
	t.CourseIDs = slices.Clone(t.CourseIDs)
	s.tracks[t.ID] = t
	return t, nil
}

func (s *Store) DeleteCareerTrack(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[id]; !ok {
		return fmt.Errorf("career track: %w", apperr.ErrNotFound)
	}
	delete(s.tracks, id)
	for cid, c := range s.courses {
		if c.CareerTrackID == id {
			c.CareerTrackID = ""
			s.courses[cid] = c
		}
	}
	return nil
}

func (s *Store) CareerTrack(ctx context.Context, id string) (catalog.CareerTrack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tracks[id]
	if !ok {
		return catalog.CareerTrack{}, fmt.Errorf("career track: %w", apperr.ErrNotFound)
	}
	t.CourseIDs = slices.Clone(t.CourseIDs)
	return t, nil
}

func (s *Store) ListCareerTracks(ctx context.Context) ([]catalog.CareerTrack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.CareerTrack, 0, len(s.tracks))
	for _, t := range s.tracks {
		t.CourseIDs = slices.Clone(t.CourseIDs)
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b catalog.CareerTrack) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}
