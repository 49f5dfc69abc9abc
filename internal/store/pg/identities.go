package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"learnhub.org/internal/apperr"
	"learnhub.org/internal/auth"
)

const identityColumns = `id, email, name, photo_url, password_hash, provider, roles, external_subject, verified, created_at, updated_at, last_login_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (auth.Identity, error) {
	var (
		identity  auth.Identity
		rawRoles  []byte
		lastLogin sql.NullTime
	)
	if err := row.Scan(&identity.ID, &identity.Email, &identity.Name, &identity.PhotoURL, &identity.PasswordHash,
		&identity.Provider, &rawRoles, &identity.ExternalSubject, &identity.Verified, &identity.CreatedAt, &identity.UpdatedAt, &lastLogin); err != nil {
		return auth.Identity{}, err
	}
	roles, err := decodeRoles(rawRoles)
	if err != nil {
		return auth.Identity{}, err
	}
	identity.Roles = roles
	if lastLogin.Valid {
		t := lastLogin.Time
		identity.LastLoginAt = &t
	}
	return identity, nil
}

func (s *Store) CreateIdentity(ctx context.Context, identity auth.Identity) (auth.Identity, error) {
	roles, err := encodeJSON(identity.Roles)
	if err != nil {
		return auth.Identity{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		insert into identities (id, email, name, photo_url, password_hash, provider, roles, external_subject, verified, created_at, updated_at)
		values ($1, lower($2), $3, $4, $5, $6, $7, $8, $9, $10, $11)
		returning `+identityColumns,
		identity.ID, identity.Email, identity.Name, identity.PhotoURL, identity.PasswordHash,
		identity.Provider, roles, identity.ExternalSubject, identity.Verified, identity.CreatedAt, identity.UpdatedAt)
	created, err := scanIdentity(row)
	if err != nil {
		return auth.Identity{}, mapWriteError(err, "identity")
	}
	return created, nil
}

func (s *Store) IdentityByEmail(ctx context.Context, email string) (auth.Identity, error) {
	row := s.db.QueryRowContext(ctx, `select `+identityColumns+` from identities where email = lower($1)`,
		strings.TrimSpace(email))
	identity, err := scanIdentity(row)
	if err != nil {
		return auth.Identity{}, notFound(err, "identity")
	}
	return identity, nil
}

func (s *Store) IdentityByID(ctx context.Context, id string) (auth.Identity, error) {
	row := s.db.QueryRowContext(ctx, `select `+identityColumns+` from identities where id = $1`, id)
	identity, err := scanIdentity(row)
	if err != nil {
		return auth.Identity{}, notFound(err, "identity")
	}
	return identity, nil
}

func (s *Store) ListIdentities(ctx context.Context, opts auth.ListOptions) ([]auth.Identity, int, error) {
	pattern := ""
	if opts.Search != "" {
		pattern = "%" + escapeLike(opts.Search) + "%"
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `
		select count(*) from identities
		where $1 = '' or email ilike $1 or name ilike $1
	`, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+identityColumns+` from identities
		where $1 = '' or email ilike $1 or name ilike $1
		order by created_at desc, id desc
		limit $2 offset $3
	`, pattern, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []auth.Identity{}
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, identity)
	}
	return result, total, rows.Err()
}

func (s *Store) UpdateIdentityRoles(ctx context.Context, id string, roles []auth.Role, at time.Time) (auth.Identity, error) {
	raw, err := encodeJSON(roles)
	if err != nil {
		return auth.Identity{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		update identities set roles = $2, updated_at = $3
		where id = $1
		returning `+identityColumns, id, raw, at)
	identity, err := scanIdentity(row)
	if err != nil {
		return auth.Identity{}, notFound(err, "identity")
	}
	return identity, nil
}

func (s *Store) RecordLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `update identities set last_login_at = $2 where id = $1`, id, at)
	if err != nil {
		return err
	}
	return rowsAffected(res, "identity")
}

// LinkExternalSubject sets external_subject only while it is empty; the
// unique index on the column rejects a subject held by another identity.
func (s *Store) LinkExternalSubject(ctx context.Context, id, subject string, at time.Time) (auth.Identity, error) {
	row := s.db.QueryRowContext(ctx, `
		update identities set external_subject = $2, updated_at = $3
		where id = $1 and (external_subject = '' or external_subject = $2)
		returning `+identityColumns, id, subject, at)
	identity, err := scanIdentity(row)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return auth.Identity{}, mapWriteError(err, "external subject")
	}
	if _, err := s.IdentityByID(ctx, id); err != nil {
		return auth.Identity{}, err
	}
	return auth.Identity{}, fmt.Errorf("%w: identity is linked to another subject", apperr.ErrConflict)
}

func (s *Store) DeleteIdentity(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from identities where id = $1`, id)
	if err != nil {
		return err
	}
	return rowsAffected(res, "identity")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
