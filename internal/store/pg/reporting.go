package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"learnhub.org/internal/analytics"
	"learnhub.org/internal/audit"
	"learnhub.org/internal/settings"
)

func (s *Store) GetSettings(ctx context.Context) (settings.Settings, error) {
	var (
		raw       []byte
		updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `select document, updated_at from site_settings where id = 1`).Scan(&raw, &updatedAt)
	if err != nil {
		return settings.Settings{}, notFound(err, "settings")
	}
	var out settings.Settings
	if err := json.Unmarshal(raw, &out); err != nil {
		return settings.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	out.UpdatedAt = updatedAt
	if out.FeaturedCourseIDs == nil {
		out.FeaturedCourseIDs = []string{}
	}
	return out, nil
}

func (s *Store) PutSettings(ctx context.Context, next settings.Settings) error {
	doc, err := encodeJSON(next)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into site_settings (id, document, updated_at) values (1, $1, $2)
		on conflict (id) do update set document = excluded.document, updated_at = excluded.updated_at`,
		doc, next.UpdatedAt)
	return err
}

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	meta, err := encodeJSON(e.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_log (id, occurred_at, actor_id, actor_email, namespace, action, resource_type, resource_id, metadata, request_id)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.OccurredAt, e.ActorID, e.ActorEmail, e.Namespace, e.Action, e.ResourceType, e.ResourceID, meta, e.RequestID)
	return err
}

const auditWhere = `where ($1 = '' or action = $1) and ($2 = '' or actor_id = $2)`

func (s *Store) ListAudit(ctx context.Context, f audit.Filter) ([]audit.Entry, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from audit_log `+auditWhere, f.Action, f.ActorID).
		Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, occurred_at, actor_id, actor_email, namespace, action, resource_type, resource_id, metadata, request_id
		from audit_log `+auditWhere+`
		order by occurred_at desc, id desc
		limit $3 offset $4`, f.Action, f.ActorID, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []audit.Entry{}
	for rows.Next() {
		var (
			e   audit.Entry
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.ActorID, &e.ActorEmail, &e.Namespace, &e.Action,
			&e.ResourceType, &e.ResourceID, &raw, &e.RequestID); err != nil {
			return nil, 0, err
		}
		e.Metadata = map[string]string{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Metadata); err != nil {
				return nil, 0, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		result = append(result, e)
	}
	return result, total, rows.Err()
}

func (s *Store) Totals(ctx context.Context) (analytics.Totals, error) {
	var t analytics.Totals
	err := s.db.QueryRowContext(ctx, `
		select
			(select count(*) from identities),
			(select count(*) from courses),
			(select count(*) from courses where published),
			(select count(*) from orders),
			(select count(*) from enrollments),
			(select coalesce(sum(total_cents), 0) from orders)`).
		Scan(&t.Users, &t.Courses, &t.PublishedCourses, &t.Orders, &t.Enrollments, &t.RevenueCents)
	return t, err
}

func (s *Store) TopCourses(ctx context.Context, limit int) ([]analytics.CourseCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		select e.course_id, coalesce(c.title, ''), count(*) as n
		from enrollments e
		left join courses c on c.id = e.course_id
		group by e.course_id, c.title
		order by n desc, e.course_id
		limit $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []analytics.CourseCount{}
	for rows.Next() {
		var cc analytics.CourseCount
		if err := rows.Scan(&cc.CourseID, &cc.Title, &cc.Enrollments); err != nil {
			return nil, err
		}
		result = append(result, cc)
	}
	return result, rows.Err()
}

func (s *Store) SignupsByDay(ctx context.Context, since time.Time) ([]analytics.DayCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		select to_char(created_at at time zone 'UTC', 'YYYY-MM-DD') as day, count(*)
		from identities
		where created_at >= $1
		group by day
		order by day`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []analytics.DayCount{}
	for rows.Next() {
		var dc analytics.DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, err
		}
		result = append(result, dc)
	}
	return result, rows.Err()
}
