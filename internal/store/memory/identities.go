package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"learnhub.org/internal/apperr"
	"learnhub.org/internal/auth"
)

func copyIdentity(in auth.Identity) auth.Identity {
	out := in
	out.Roles = slices.Clone(in.Roles)
	if in.LastLoginAt != nil {
		t := *in.LastLoginAt
		out.LastLoginAt = &t
	}
	return out
}

func (s *Store) CreateIdentity(ctx context.Context, identity auth.Identity) (auth.Identity, error) {
	email := strings.ToLower(identity.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.emails[email]; exists {
		return auth.Identity{}, apperr.ErrConflict
	}
	if _, exists := s.identities[identity.ID]; exists {
		return auth.Identity{}, apperr.ErrConflict
	}
	if identity.ExternalSubject != "" {
		for _, other := range s.identities {
			if other.ExternalSubject == identity.ExternalSubject {
				return auth.Identity{}, apperr.ErrConflict
			}
		}
	}
	identity.Email = email
	s.identities[identity.ID] = copyIdentity(identity)
	s.emails[email] = identity.ID
	return copyIdentity(identity), nil
}

func (s *Store) IdentityByEmail(ctx context.Context, email string) (auth.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return auth.Identity{}, fmt.Errorf("identity: %w", apperr.ErrNotFound)
	}
	return copyIdentity(s.identities[id]), nil
}

func (s *Store) IdentityByID(ctx context.Context, id string) (auth.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[id]
	if !ok {
		return auth.Identity{}, fmt.Errorf("identity: %w", apperr.ErrNotFound)
	}
	return copyIdentity(identity), nil
}

func (s *Store) ListIdentities(ctx context.Context, opts auth.ListOptions) ([]auth.Identity, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []auth.Identity
	for _, identity := range s.identities {
		if opts.Search != "" && !containsFold(identity.Email, opts.Search) && !containsFold(identity.Name, opts.Search) {
			continue
		}
		matched = append(matched, copyIdentity(identity))
	}
	slices.SortFunc(matched, func(a, b auth.Identity) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return page(matched, opts.Limit, opts.Offset), len(matched), nil
}

func (s *Store) UpdateIdentityRoles(ctx context.Context, id string, roles []auth.Role, at time.Time) (auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return auth.Identity{}, fmt.Errorf("identity: %w", apperr.ErrNotFound)
	}
	identity.Roles = slices.Clone(roles)
	identity.UpdatedAt = at
	s.identities[id] = identity
	return copyIdentity(identity), nil
}

func (s *Store) RecordLogin(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return fmt.Errorf("identity: %w", apperr.ErrNotFound)
	}
	identity.LastLoginAt = &at
	s.identities[id] = identity
	return nil
}

func (s *Store) LinkExternalSubject(ctx context.Context, id, subject string, at time.Time) (auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return auth.Identity{}, fmt.Errorf("identity: %w", apperr.ErrNotFound)
	}
	if identity.ExternalSubject == subject {
		return copyIdentity(identity), nil
	}
	if identity.ExternalSubject != "" {
		return auth.Identity{}, fmt.Errorf("%w: identity is linked to another subject", apperr.ErrConflict)
	}
	for otherID, other := range s.identities {
		if otherID != id && other.ExternalSubject == subject {
			return auth.Identity{}, fmt.Errorf("%w: subject is linked to another identity", apperr.ErrConflict)
		}
	}
	identity.ExternalSubject = subject
	identity.UpdatedAt = at
	s.identities[id] = identity
	return copyIdentity(identity), nil
}

func (s *Store) DeleteIdentity(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return fmt.Errorf("identity: %w", apperr.ErrNotFound)
	}
	delete(s.identities, id)
	delete(s.emails, identity.Email)
	delete(s.carts, id)
	return nil
}
