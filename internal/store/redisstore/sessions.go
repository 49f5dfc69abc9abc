// Package redisstore keeps sessions in Redis. Each session key expires with the
// session itself, and a per-identity set indexes tokens for bulk revocation.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"learnhub.org/internal/apperr"
	"learnhub.org/internal/auth"
)

const defaultPrefix = "learnhub"

var _ auth.SessionStore = (*SessionStore)(nil)

type SessionStore struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewSessionStore(rdb redis.UniversalClient) *SessionStore {
	return &SessionStore{rdb: rdb, prefix: defaultPrefix, now: time.Now}
}

// Ping checks connectivity.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *SessionStore) sessionKey(ns auth.Namespace, token string) string {
	return fmt.Sprintf("%s:%s_session:%s", s.prefix, ns, token)
}

func (s *SessionStore) identityKey(ns auth.Namespace, identityID string) string {
	return fmt.Sprintf("%s:%s_identity:%s", s.prefix, ns, identityID)
}

func checkNamespace(ns auth.Namespace) error {
	if !ns.Valid() {
		return fmt.Errorf("%w: unknown namespace %q", apperr.ErrInvalidInput, ns)
	}
	return nil
}

func (s *SessionStore) InsertSession(ctx context.Context, ns auth.Namespace, session auth.Session) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("%w: session already expired", apperr.ErrInvalidInput)
	}
	blob, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	key := s.sessionKey(ns, session.Token)
	idxKey := s.identityKey(ns, session.IdentityID)
	ok, err := s.rdb.SetNX(ctx, key, blob, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: session token already exists", apperr.ErrConflict)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, idxKey, session.Token)
		pipe.Expire(ctx, idxKey, ttl)
		return nil
	})
	return err
}

func (s *SessionStore) SessionByToken(ctx context.Context, ns auth.Namespace, token string) (auth.Session, error) {
	if err := checkNamespace(ns); err != nil {
		return auth.Session{}, err
	}
	return s.load(ctx, s.sessionKey(ns, token))
}

func (s *SessionStore) load(ctx context.Context, key string) (auth.Session, error) {
	blob, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return auth.Session{}, fmt.Errorf("session: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return auth.Session{}, err
	}
	var session auth.Session
	if err := json.Unmarshal(blob, &session); err != nil {
		return auth.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

// update rewrites a session in place under WATCH, keeping its remaining TTL.
func (s *SessionStore) update(ctx context.Context, key string, mutate func(*auth.Session) bool) (bool, error) {
	changed := false
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		blob, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("session: %w", apperr.ErrNotFound)
		}
		if err != nil {
			return err
		}
		var session auth.Session
		if err := json.Unmarshal(blob, &session); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		if !mutate(&session) {
			return nil
		}
		next, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, redis.KeepTTL)
			return nil
		})
		if err == nil {
			changed = true
		}
		return err
	}, key)
	return changed, err
}

func (s *SessionStore) TouchSession(ctx context.Context, ns auth.Namespace, token string, at time.Time) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	_, err := s.update(ctx, s.sessionKey(ns, token), func(session *auth.Session) bool {
		session.LastLogin = at
		return true
	})
	return err
}

func (s *SessionStore) DeactivateSession(ctx context.Context, ns auth.Namespace, token string) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	_, err := s.update(ctx, s.sessionKey(ns, token), func(session *auth.Session) bool {
		if !session.Active {
			return false
		}
		session.Active = false
		return true
	})
	return err
}

func (s *SessionStore) DeactivateIdentitySessions(ctx context.Context, ns auth.Namespace, identityID string) (int64, error) {
	if err := checkNamespace(ns); err != nil {
		return 0, err
	}
	idxKey := s.identityKey(ns, identityID)
	tokens, err := s.rdb.SMembers(ctx, idxKey).Result()
	if err != nil {
		return 0, err
	}
	var count int64
	for _, token := range tokens {
		changed, err := s.update(ctx, s.sessionKey(ns, token), func(session *auth.Session) bool {
			if !session.Active {
				return false
			}
			session.Active = false
			return true
		})
		if errors.Is(err, apperr.ErrNotFound) {
			s.rdb.SRem(ctx, idxKey, token)
			continue
		}
		if err != nil {
			return count, err
		}
		if changed {
			count++
		}
	}
	return count, nil
}

// PurgeExpiredSessions is a no-op: Redis expires session keys on its own.
func (s *SessionStore) PurgeExpiredSessions(ctx context.Context, ns auth.Namespace, before time.Time) (int64, error) {
	return 0, checkNamespace(ns)
}
