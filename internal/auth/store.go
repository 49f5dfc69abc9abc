package auth

import (
	"context"
	"time"
)

// IdentityStore persists identities. Email lookups are case-insensitive;
// implementations store emails lowercased.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, identity Identity) (Identity, error)
	IdentityByEmail(ctx context.Context, email string) (Identity, error)
	IdentityByID(ctx context.Context, id string) (Identity, error)
	ListIdentities(ctx context.Context, opts ListOptions) ([]Identity, int, error)
	UpdateIdentityRoles(ctx context.Context, id string, roles []Role, at time.Time) (Identity, error)
	RecordLogin(ctx context.Context, id string, at time.Time) error
	// LinkExternalSubject binds a provider subject to an identity that has
	// none. A different existing subject, or one held by another identity,
	// is a conflict.
	LinkExternalSubject(ctx context.Context, id, subject string, at time.Time) (Identity, error)
	DeleteIdentity(ctx context.Context, id string) error
}

// SessionStore persists sessions, one collection per namespace.
type SessionStore interface {
	InsertSession(ctx context.Context, ns Namespace, session Session) error
	SessionByToken(ctx context.Context, ns Namespace, token string) (Session, error)
	TouchSession(ctx context.Context, ns Namespace, token string, at time.Time) error
	DeactivateSession(ctx context.Context, ns Namespace, token string) error
	DeactivateIdentitySessions(ctx context.Context, ns Namespace, identityID string) (int64, error)
	PurgeExpiredSessions(ctx context.Context, ns Namespace, before time.Time) (int64, error)
}
