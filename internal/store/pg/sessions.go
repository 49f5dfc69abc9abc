package pg

import (
	"context"
	"fmt"
	"time"

	"learnhub.org/internal/apperr"
	"learnhub.org/internal/auth"
)

// sessionTables maps namespaces to their collections. Table names never come
// from request input.
var sessionTables = map[auth.Namespace]string{
	auth.NamespaceUser:  "user_sessions",
	auth.NamespaceAdmin: "admin_sessions",
}

func sessionTable(ns auth.Namespace) (string, error) {
	table, ok := sessionTables[ns]
	if !ok {
		return "", fmt.Errorf("%w: unknown namespace %q", apperr.ErrInvalidInput, ns)
	}
	return table, nil
}

func (s *Store) InsertSession(ctx context.Context, ns auth.Namespace, session auth.Session) error {
	table, err := sessionTable(ns)
	if err != nil {
		return err
	}
	roles, err := encodeJSON(session.Roles)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		insert into %s (token, identity_id, email, name, photo_url, roles, active, created_at, last_login, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, table),
		session.Token, session.IdentityID, session.Email, session.Name, session.PhotoURL, roles,
		session.Active, session.CreatedAt, session.LastLogin, session.ExpiresAt)
	if err != nil {
		return mapWriteError(err, "session")
	}
	return nil
}

func (s *Store) SessionByToken(ctx context.Context, ns auth.Namespace, token string) (auth.Session, error) {
	table, err := sessionTable(ns)
	if err != nil {
		return auth.Session{}, err
	}
	var (
		session  auth.Session
		rawRoles []byte
	)
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		select token, identity_id, email, name, photo_url, roles, active, created_at, last_login, expires_at
		from %s where token = $1`, table), token).
		Scan(&session.Token, &session.IdentityID, &session.Email, &session.Name, &session.PhotoURL, &rawRoles,
			&session.Active, &session.CreatedAt, &session.LastLogin, &session.ExpiresAt)
	if err != nil {
		return auth.Session{}, notFound(err, "session")
	}
	if session.Roles, err = decodeRoles(rawRoles); err != nil {
		return auth.Session{}, err
	}
	return session, nil
}

func (s *Store) TouchSession(ctx context.Context, ns auth.Namespace, token string, at time.Time) error {
	table, err := sessionTable(ns)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`update %s set last_login = $2 where token = $1`, table), token, at)
	if err != nil {
		return err
	}
	return rowsAffected(res, "session")
}

func (s *Store) DeactivateSession(ctx context.Context, ns auth.Namespace, token string) error {
	table, err := sessionTable(ns)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`update %s set active = false where token = $1`, table), token)
	if err != nil {
		return err
	}
	return rowsAffected(res, "session")
}

func (s *Store) DeactivateIdentitySessions(ctx context.Context, ns auth.Namespace, identityID string) (int64, error) {
	table, err := sessionTable(ns)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		update %s set active = false where identity_id = $1 and active`, table), identityID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) PurgeExpiredSessions(ctx context.Context, ns auth.Namespace, before time.Time) (int64, error) {
	table, err := sessionTable(ns)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`delete from %s where expires_at <= $1`, table), before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
