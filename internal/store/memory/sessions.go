package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"learnhub.org/internal/apperr"
	"learnhub.org/internal/auth"
)

func (s *Store) bucket(ns auth.Namespace) (map[string]auth.Session, error) {
	b, ok := s.sessions[ns]
	if !ok {
		return nil, fmt.Errorf("%w: unknown namespace %q", apperr.ErrInvalidInput, ns)
	}
	return b, nil
}

func (s *Store) InsertSession(ctx context.Context, ns auth.Namespace, session auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.bucket(ns)
	if err != nil {
		return err
	}
	if _, exists := b[session.Token]; exists {
		return apperr.ErrConflict
	}
	session.Roles = slices.Clone(session.Roles)
	b[session.Token] = session
	return nil
}

func (s *Store) SessionByToken(ctx context.Context, ns auth.Namespace, token string) (auth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := s.bucket(ns)
	if err != nil {
		return auth.Session{}, err
	}
	session, ok := b[token]
	if !ok {
		return auth.Session{}, fmt.Errorf("session: %w", apperr.ErrNotFound)
	}
	session.Roles = slices.Clone(session.Roles)
	return session, nil
}

func (s *Store) TouchSession(ctx context.Context, ns auth.Namespace, token string, at time.Time) error {
	return s.updateSession(ns, token, func(sess *auth.Session) { sess.LastLogin = at })
}

func (s *Store) DeactivateSession(ctx context.Context, ns auth.Namespace, token string) error {
	return s.updateSession(ns, token, func(sess *auth.Session) { sess.Active = false })
}

func (s *Store) updateSession(ns auth.Namespace, token string, fn func(*auth.Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.bucket(ns)
	if err != nil {
		return err
	}
	session, ok := b[token]
	if !ok {
		return fmt.Errorf("session: %w", apperr.ErrNotFound)
	}
	fn(&session)
	b[token] = session
	return nil
}

func (s *Store) DeactivateIdentitySessions(ctx context.Context, ns auth.Namespace, identityID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.bucket(ns)
	if err != nil {
		return 0, err
	}
	var n int64
	for token, session := range b {
		if session.IdentityID == identityID && session.Active {
			session.Active = false
			b[token] = session
			n++
		}
	}
	return n, nil
}

func (s *Store) PurgeExpiredSessions(ctx context.Context, ns auth.Namespace, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.bucket(ns)
	if err != nil {
		return 0, err
	}
	var n int64
	for token, session := range b {
		if !session.ExpiresAt.After(before) {
			delete(b, token)
			n++
		}
	}
	return n, nil
}
