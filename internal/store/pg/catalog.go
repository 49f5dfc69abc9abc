package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"learnhub.org/internal/catalog"
)

const courseColumns = `id, title, slug, description, category_id, career_track_id, instructor, image_url, price_cents, currency, published, created_at, updated_at`

func scanCourse(row rowScanner) (catalog.Course, error) {
	var (
		c        catalog.Course
		category sql.NullString
		track    sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Title, &c.Slug, &c.Description, &category, &track, &c.Instructor, &c.ImageURL,
		&c.PriceCents, &c.Currency, &c.Published, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return catalog.Course{}, err
	}
	c.CategoryID = category.String
	c.CareerTrackID = track.String
	return c, nil
}

func (s *Store) CreateCourse(ctx context.Context, c catalog.Course) (catalog.Course, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into courses (id, title, slug, description, category_id, career_track_id, instructor, image_url, price_cents, currency, published, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		returning `+courseColumns,
		c.ID, c.Title, c.Slug, c.Description, nullIfEmpty(c.CategoryID), nullIfEmpty(c.CareerTrackID),
		c.Instructor, c.ImageURL, c.PriceCents, c.Currency, c.Published, c.CreatedAt, c.UpdatedAt)
	created, err := scanCourse(row)
	if err != nil {
		return catalog.Course{}, mapWriteError(err, "course")
	}
	return created, nil
}

func (s *Store) UpdateCourse(ctx context.Context, c catalog.Course) (catalog.Course, error) {
	row := s.db.QueryRowContext(ctx, `
		update courses set title = $2, slug = $3, description = $4, category_id = $5, career_track_id = $6,
			instructor = $7, image_url = $8, price_cents = $9, currency = $10, published = $11, updated_at = $12
		where id = $1
		returning `+courseColumns,
		c.ID, c.Title, c.Slug, c.Description, nullIfEmpty(c.CategoryID), nullIfEmpty(c.CareerTrackID),
		c.Instructor, c.ImageURL, c.PriceCents, c.Currency, c.Published, c.UpdatedAt)
	updated, err := scanCourse(row)
	if err != nil {
		return catalog.Course{}, notFound(mapWriteError(err, "course"), "course")
	}
	return updated, nil
}

// DeleteCourse removes the course and drops it from every career track.
func (s *Store) DeleteCourse(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `delete from courses where id = $1`, id)
	if err != nil {
		return err
	}
	if err := rowsAffected(res, "course"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		update career_tracks set course_ids = course_ids - $1::text
		where course_ids ? $1::text`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Course(ctx context.Context, id string) (catalog.Course, error) {
	row := s.db.QueryRowContext(ctx, `select `+courseColumns+` from courses where id = $1`, id)
	c, err := scanCourse(row)
	if err != nil {
		return catalog.Course{}, notFound(err, "course")
	}
	return c, nil
}

func (s *Store) CourseExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `select exists(select 1 from courses where id = $1)`, id).Scan(&ok)
	return ok, err
}

const courseFilterWhere = `
	where ($1 = false or published)
	  and ($2 = '' or category_id = $2)
	  and ($3 = '' or career_track_id = $3)
	  and ($4 = '' or title ilike $4 or description ilike $4)`

func (s *Store) ListCourses(ctx context.Context, f catalog.CourseFilter) ([]catalog.Course, int, error) {
	pattern := ""
	if f.Search != "" {
		pattern = "%" + escapeLike(f.Search) + "%"
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from courses`+courseFilterWhere,
		f.PublishedOnly, f.CategoryID, f.CareerTrackID, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `select `+courseColumns+` from courses`+courseFilterWhere+`
		order by created_at desc, id desc
		limit $5 offset $6`,
		f.PublishedOnly, f.CategoryID, f.CareerTrackID, pattern, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []catalog.Course{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, c)
	}
	return result, total, rows.Err()
}

const categoryColumns = `id, name, slug, description, created_at, updated_at`

func scanCategory(row rowScanner) (catalog.Category, error) {
	var c catalog.Category
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) CreateCategory(ctx context.Context, c catalog.Category) (catalog.Category, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into categories (id, name, slug, description, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
		returning `+categoryColumns, c.ID, c.Name, c.Slug, c.Description, c.CreatedAt, c.UpdatedAt)
	created, err := scanCategory(row)
	if err != nil {
		return catalog.Category{}, mapWriteError(err, "category")
	}
	return created, nil
}

func (s *Store) UpdateCategory(ctx context.Context, c catalog.Category) (catalog.Category, error) {
	row := s.db.QueryRowContext(ctx, `
		update categories set name = $2, slug = $3, description = $4, updated_at = $5
		where id = $1
		returning `+categoryColumns, c.ID, c.Name, c.Slug, c.Description, c.UpdatedAt)
	updated, err := scanCategory(row)
	if err != nil {
		return catalog.Category{}, notFound(mapWriteError(err, "category"), "category")
	}
	return updated, nil
}

// DeleteCategory relies on the foreign key to clear course references.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from categories where id = $1`, id)
	if err != nil {
		return err
	}
	return rowsAffected(res, "category")
}

func (s *Store) Category(ctx context.Context, id string) (catalog.Category, error) {
	row := s.db.QueryRowContext(ctx, `select `+categoryColumns+` from categories where id = $1`, id)
	c, err := scanCategory(row)
	if err != nil {
		return catalog.Category{}, notFound(err, "category")
	}
	return c, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	rows, err := s.db.QueryContext(ctx, `select `+categoryColumns+` from categories order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []catalog.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

const trackColumns = `id, name, slug, description, course_ids, created_at, updated_at`

func scanCareerTrack(row rowScanner) (catalog.CareerTrack, error) {
	var (
		t   catalog.CareerTrack
		raw []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Description, &raw, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return catalog.CareerTrack{}, err
	}
	t.CourseIDs = []string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &t.CourseIDs); err != nil {
			return catalog.CareerTrack{}, fmt.Errorf("decode course ids: %w", err)
		}
	}
	return t, nil
}

func (s *Store) CreateCareerTrack(ctx context.Context, t catalog.CareerTrack) (catalog.CareerTrack, error) {
	courseIDs, err := encodeJSON(nonNil(t.CourseIDs))
	if err != nil {
		return catalog.CareerTrack{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		insert into career_tracks (id, name, slug, description, course_ids, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning `+trackColumns, t.ID, t.Name, t.Slug, t.Description, courseIDs, t.CreatedAt, t.UpdatedAt)
	created, err := scanCareerTrack(row)
	if err != nil {
		return catalog.CareerTrack{}, mapWriteError(err, "career track")
	}
	return created, nil
}

func (s *Store) UpdateCareerTrack(ctx context.Context, t catalog.CareerTrack) (catalog.CareerTrack, error) {
	courseIDs, err := encodeJSON(nonNil(t.CourseIDs))
	if err != nil {
		return catalog.CareerTrack{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		update career_tracks set name = $2, slug = $3, description = $4, course_ids = $5, updated_at = $6
		where id = $1
		returning `+trackColumns, t.ID, t.Name, t.Slug, t.Description, courseIDs, t.UpdatedAt)
	updated, err := scanCareerTrack(row)
	if err != nil {
		return catalog.CareerTrack{}, notFound(mapWriteError(err, "career track"), "career track")
	}
	return updated, nil
}

func (s *Store) DeleteCareerTrack(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from career_tracks where id = $1`, id)
	if err != nil {
		return err
	}
	return rowsAffected(res, "career track")
}

func (s *Store) CareerTrack(ctx context.Context, id string) (catalog.CareerTrack, error) {
	row := s.db.QueryRowContext(ctx, `select `+trackColumns+` from career_tracks where id = $1`, id)
	t, err := scanCareerTrack(row)
	if err != nil {
		return catalog.CareerTrack{}, notFound(err, "career track")
	}
	return t, nil
}

func (s *Store) ListCareerTracks(ctx context.Context) ([]catalog.CareerTrack, error) {
	rows, err := s.db.QueryContext(ctx, `select `+trackColumns+` from career_tracks order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []catalog.CareerTrack{}
	for rows.Next() {
		t, err := scanCareerTrack(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
