package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode"

	"learnhub.org/internal/apperr"
	"learnhub.org/internal/ids"
)

const (
	defaultSessionTTL = 7 * 24 * time.Hour
	minPasswordLength = 8
	maxPasswordLength = 72
	maxNameLength     = 120
)

// Service issues, resolves and revokes sessions and manages identities.
type Service struct {
	identities IdentityStore
	sessions   SessionStore
	hasher     Hasher
	now        func() time.Time
	sessionTTL time.Duration
	newToken   func() (string, error)

	dummyOnce sync.Once
	dummyHash string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithSessionTTL configures how long a session stays valid after issuance.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
		return nil
	}
}

// WithHasher replaces the default bcrypt hasher.
func WithHasher(h Hasher) ServiceOption {
	return func(s *Service) error {
		s.hasher = h
		return nil
	}
}

// WithTokenSource overrides session token generation.
func WithTokenSource(fn func() (string, error)) ServiceOption {
	return func(s *Service) error {
		if fn == nil {
			return errors.New("auth: token source is nil")
		}
		s.newToken = fn
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(identities IdentityStore, sessions SessionStore, opts ...ServiceOption) (*Service, error) {
	if identities == nil || sessions == nil {
		return nil, errors.New("auth: identity and session stores are required")
	}
	svc := &Service{
		identities: identities,
		sessions:   sessions,
		hasher:     NewHasher(DefaultBcryptCost),
		now:        time.Now,
		sessionTTL: defaultSessionTTL,
		newToken:   ids.NewToken,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// SessionTTL returns the configured session lifetime.
func (s *Service) SessionTTL() time.Duration { return s.sessionTTL }

// Register creates a password identity with the user role and opens a user session.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Identity, Session, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return Identity{}, Session{}, err
	}
	if err := checkPassword(in.Password); err != nil {
		return Identity{}, Session{}, err
	}
	name, err := normalizeName(in.Name, email)
	if err != nil {
		return Identity{}, Session{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Identity{}, Session{}, err
	}
	now := s.now().UTC()
	identity, err := s.identities.CreateIdentity(ctx, Identity{
		ID:           ids.New(),
		Email:        email,
		Name:         name,
		PhotoURL:     strings.TrimSpace(in.PhotoURL),
		PasswordHash: hash,
		Provider:     ProviderPassword,
		Roles:        []Role{RoleUser},
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return Identity{}, Session{}, fmt.Errorf("%w: email already registered", apperr.ErrConflict)
		}
		return Identity{}, Session{}, err
	}
	session, err := s.issue(ctx, NamespaceUser, identity)
	if err != nil {
		return Identity{}, Session{}, err
	}
	return identity, session, nil
}

// Login verifies a password and opens a session in ns. Unknown emails and wrong
// passwords are indistinguishable to the caller, and neither writes a session.
// The admin namespace also requires a back-office role.
func (s *Service) Login(ctx context.Context, ns Namespace, email, password string) (Identity, Session, error) {
	if !ns.Valid() {
		return Identity{}, Session{}, fmt.Errorf("%w: unknown namespace %q", apperr.ErrInvalidInput, ns)
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Identity{}, Session{}, fmt.Errorf("%w: email and password are required", apperr.ErrInvalidInput)
	}
	identity, err := s.identities.IdentityByEmail(ctx, email)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		s.hasher.Verify(password, s.timingHash())
		return Identity{}, Session{}, fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthenticated)
	case err != nil:
		return Identity{}, Session{}, err
	}
	if !s.hasher.Verify(password, identity.PasswordHash) {
		return Identity{}, Session{}, fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthenticated)
	}
	if ns == NamespaceAdmin && !IsBackOffice(identity.Roles) {
		return Identity{}, Session{}, fmt.Errorf("%w: back-office role required", apperr.ErrForbidden)
	}
	session, err := s.issue(ctx, ns, identity)
	if err != nil {
		return Identity{}, Session{}, err
	}
	return identity, session, nil
}

// LoginExternal opens a user session for a third-party identity. The first
// sign-in creates the identity. An existing identity is entered only through
// its linked provider subject, or linked now when the provider vouches for
// the email.
func (s *Service) LoginExternal(ctx context.Context, ext ExternalIdentity) (Identity, Session, error) {
	email, err := normalizeEmail(ext.Email)
	if err != nil {
		return Identity{}, Session{}, err
	}
	subject := strings.TrimSpace(ext.Subject)
	if subject == "" {
		return Identity{}, Session{}, fmt.Errorf("%w: external identity has no subject", apperr.ErrUnauthenticated)
	}
	identity, err := s.identities.IdentityByEmail(ctx, email)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		identity, err = s.createExternal(ctx, email, subject, ext)
		if errors.Is(err, apperr.ErrConflict) {
			// lost a race with a concurrent first sign-in, or the subject
			// already belongs to an account under another email
			identity, err = s.identities.IdentityByEmail(ctx, email)
			if errors.Is(err, apperr.ErrNotFound) {
				err = fmt.Errorf("%w: provider account is linked to another identity", apperr.ErrUnauthenticated)
			}
			if err == nil {
				identity, err = s.linkExternal(ctx, identity, subject, ext.EmailVerified)
			}
		}
	case err == nil:
		identity, err = s.linkExternal(ctx, identity, subject, ext.EmailVerified)
	}
	if err != nil {
		return Identity{}, Session{}, err
	}
	session, err := s.issue(ctx, NamespaceUser, identity)
	if err != nil {
		return Identity{}, Session{}, err
	}
	return identity, session, nil
}

func (s *Service) createExternal(ctx context.Context, email, subject string, ext ExternalIdentity) (Identity, error) {
	name, err := normalizeName(ext.Name, email)
	if err != nil {
		name = localPart(email)
	}
	now := s.now().UTC()
	return s.identities.CreateIdentity(ctx, Identity{
		ID:              ids.New(),
		Email:           email,
		Name:            name,
		PhotoURL:        strings.TrimSpace(ext.PhotoURL),
		Provider:        ProviderExternal,
		Roles:           []Role{RoleUser},
		ExternalSubject: subject,
		Verified:        ext.EmailVerified,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

// linkExternal admits an external sign-in onto an existing identity.
func (s *Service) linkExternal(ctx context.Context, identity Identity, subject string, emailVerified bool) (Identity, error) {
	switch {
	case identity.ExternalSubject == subject:
		return identity, nil
	case identity.ExternalSubject != "":
		return Identity{}, fmt.Errorf("%w: identity is linked to another provider account", apperr.ErrUnauthenticated)
	case !emailVerified:
		return Identity{}, fmt.Errorf("%w: provider has not verified %s", apperr.ErrUnauthenticated, identity.Email)
	}
	linked, err := s.identities.LinkExternalSubject(ctx, identity.ID, subject, s.now().UTC())
	if errors.Is(err, apperr.ErrConflict) {
		return Identity{}, fmt.Errorf("%w: %v", apperr.ErrUnauthenticated, err)
	}
	return linked, err
}

// issue writes exactly one new session record for identity.
func (s *Service) issue(ctx context.Context, ns Namespace, identity Identity) (Session, error) {
	token, err := s.newToken()
	if err != nil {
		return Session{}, fmt.Errorf("generate session token: %w", err)
	}
	now := s.now().UTC()
	session := Session{
		Token:      token,
		IdentityID: identity.ID,
		Email:      identity.Email,
		Name:       identity.Name,
		PhotoURL:   identity.PhotoURL,
		Roles:      identity.Roles,
		Active:     true,
		CreatedAt:  now,
		LastLogin:  now,
		ExpiresAt:  now.Add(s.sessionTTL),
	}
	if err := s.sessions.InsertSession(ctx, ns, session); err != nil {
		return Session{}, fmt.Errorf("store session: %w", err)
	}
	if err := s.identities.RecordLogin(ctx, identity.ID, now); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return Session{}, fmt.Errorf("record login: %w", err)
	}
	return session, nil
}

// Resolve maps a token to its principal without modifying any record.
func (s *Service) Resolve(ctx context.Context, ns Namespace, token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, fmt.Errorf("%w: no session", apperr.ErrUnauthenticated)
	}
	session, err := s.sessions.SessionByToken(ctx, ns, token)
	if errors.Is(err, apperr.ErrNotFound) {
		return Principal{}, fmt.Errorf("%w: unknown session", apperr.ErrUnauthenticated)
	}
	if err != nil {
		return Principal{}, err
	}
	if !session.Live(s.now()) {
		return Principal{}, fmt.Errorf("%w: session expired or revoked", apperr.ErrUnauthenticated)
	}
	return Principal{Namespace: ns, Session: session}, nil
}

// Touch records activity on a live session. Expiry is never extended.
func (s *Service) Touch(ctx context.Context, ns Namespace, token string) (Session, error) {
	p, err := s.Resolve(ctx, ns, token)
	if err != nil {
		return Session{}, err
	}
	now := s.now().UTC()
	if err := s.sessions.TouchSession(ctx, ns, p.Session.Token, now); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Session{}, fmt.Errorf("%w: unknown session", apperr.ErrUnauthenticated)
		}
		return Session{}, err
	}
	p.Session.LastLogin = now
	return p.Session, nil
}

// Logout deactivates the session identified by token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, ns Namespace, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	err := s.sessions.DeactivateSession(ctx, ns, token)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	return err
}

// RevokeIdentity deactivates every session of the identity in all namespaces.
func (s *Service) RevokeIdentity(ctx context.Context, identityID string) (int64, error) {
	var total int64
	for _, ns := range Namespaces {
		n, err := s.sessions.DeactivateIdentitySessions(ctx, ns, identityID)
		if err != nil {
			return total, fmt.Errorf("revoke %s sessions: %w", ns, err)
		}
		total += n
	}
	return total, nil
}

// PurgeExpired removes sessions in ns whose expiry has passed.
func (s *Service) PurgeExpired(ctx context.Context, ns Namespace) (int64, error) {
	return s.sessions.PurgeExpiredSessions(ctx, ns, s.now().UTC())
}

// Identity returns an identity by id.
func (s *Service) Identity(ctx context.Context, id string) (Identity, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Identity{}, fmt.Errorf("%w: id is required", apperr.ErrInvalidInput)
	}
	return s.identities.IdentityByID(ctx, id)
}

// ListIdentities pages through identities.
func (s *Service) ListIdentities(ctx context.Context, opts ListOptions) ([]Identity, int, error) {
	return s.identities.ListIdentities(ctx, opts)
}

// UpdateRoles replaces the roles of identity id on behalf of actor. The actor
// must be able to grant every requested role and the target's current top role.
// Sessions of the target are revoked so the change takes effect immediately.
func (s *Service) UpdateRoles(ctx context.Context, actor Principal, id string, names []string) (Identity, error) {
	if len(names) == 0 {
		return Identity{}, fmt.Errorf("%w: at least one role is required", apperr.ErrInvalidInput)
	}
	for _, name := range names {
		if _, ok := ParseRole(name); !ok {
			return Identity{}, fmt.Errorf("%w: unknown role %q", apperr.ErrInvalidInput, name)
		}
	}
	roles := NormalizeRoles(names)
	target, err := s.Identity(ctx, id)
	if err != nil {
		return Identity{}, err
	}
	if err := s.checkOutranks(actor, target); err != nil {
		return Identity{}, err
	}
	for _, r := range roles {
		if !CanGrantRoles(actor.Roles(), r) {
			return Identity{}, fmt.Errorf("%w: cannot grant role %s", apperr.ErrForbidden, r)
		}
	}
	updated, err := s.identities.UpdateIdentityRoles(ctx, target.ID, roles, s.now().UTC())
	if err != nil {
		return Identity{}, err
	}
	if _, err := s.RevokeIdentity(ctx, target.ID); err != nil {
		return Identity{}, err
	}
	return updated, nil
}

// DeleteIdentity removes identity id on behalf of actor and revokes its sessions.
func (s *Service) DeleteIdentity(ctx context.Context, actor Principal, id string) error {
	target, err := s.Identity(ctx, id)
	if err != nil {
		return err
	}
	if target.ID == actor.IdentityID() {
		return fmt.Errorf("%w: cannot delete your own account", apperr.ErrInvalidInput)
	}
	if err := s.checkOutranks(actor, target); err != nil {
		return err
	}
	if _, err := s.RevokeIdentity(ctx, target.ID); err != nil {
		return err
	}
	return s.identities.DeleteIdentity(ctx, target.ID)
}

func (s *Service) checkOutranks(actor Principal, target Identity) error {
	top := TopRank(target.Roles)
	for _, r := range target.Roles {
		if r.Rank() == top && !CanGrantRoles(actor.Roles(), r) {
			return fmt.Errorf("%w: target holds a more privileged role", apperr.ErrForbidden)
		}
	}
	return nil
}

// timingHash is compared against when an email is unknown so that both
// failure paths cost one bcrypt comparison.
func (s *Service) timingHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("learnhub-timing-equalizer")
	})
	return s.dummyHash
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", apperr.ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email is malformed", apperr.ErrInvalidInput)
	}
	return email, nil
}

func normalizeName(raw, email string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return localPart(email), nil
	}
	if len([]rune(name)) > maxNameLength {
		return "", fmt.Errorf("%w: name exceeds %d characters", apperr.ErrInvalidInput, maxNameLength)
	}
	return name, nil
}

func localPart(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}

func checkPassword(pw string) error {
	if len(pw) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", apperr.ErrInvalidInput, minPasswordLength)
	}
	if len(pw) > maxPasswordLength {
		return fmt.Errorf("%w: password must be at most %d bytes", apperr.ErrInvalidInput, maxPasswordLength)
	}
	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return fmt.Errorf("%w: password must contain a letter and a digit", apperr.ErrInvalidInput)
	}
	return nil
}
