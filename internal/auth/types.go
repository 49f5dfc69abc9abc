package auth

import "time"

// Namespace separates learner sessions from back-office sessions.
type Namespace string

const (
	NamespaceUser  Namespace = "user"
	NamespaceAdmin Namespace = "admin"
)

// Namespaces lists every session namespace.
var Namespaces = []Namespace{NamespaceUser, NamespaceAdmin}

// Valid reports whether ns is a known namespace.
func (ns Namespace) Valid() bool {
	return ns == NamespaceUser || ns == NamespaceAdmin
}

// Auth providers recorded on identities.
const (
	ProviderPassword = "password"
	ProviderExternal = "external"
)

// Identity is a registered account. ExternalSubject is the identity
// provider's stable subject, set once an external sign-in is linked.
type Identity struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	PhotoURL        string     `json:"photo_url,omitempty"`
	PasswordHash    string     `json:"-"`
	Provider        string     `json:"provider"`
	Roles           []Role     `json:"roles"`
	ExternalSubject string     `json:"-"`
	Verified        bool       `json:"verified"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
}

// Session is a server-side record of an authenticated login.
type Session struct {
	Token      string    `json:"token"`
	IdentityID string    `json:"identity_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	PhotoURL   string    `json:"photo_url,omitempty"`
	Roles      []Role    `json:"roles"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	LastLogin  time.Time `json:"last_login"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Live reports whether the session is active and unexpired at now.
func (s Session) Live(now time.Time) bool {
	return s.Active && now.Before(s.ExpiresAt)
}

// Principal is the resolved caller of a request.
type Principal struct {
	Namespace Namespace
	Session   Session
}

// IdentityID returns the caller's identity id.
func (p Principal) IdentityID() string { return p.Session.IdentityID }

// Roles returns the caller's roles as recorded on the session.
func (p Principal) Roles() []Role { return p.Session.Roles }

// Can reports whether the principal may perform action on resource.
func (p Principal) Can(resource Resource, action Action) bool {
	return Authorize(p.Session.Roles, resource, action)
}

// ListOptions pages through identities.
type ListOptions struct {
	Limit  int
	Offset int
	Search string
}

// ExternalIdentity is a verified third-party identity assertion.
type ExternalIdentity struct {
	Subject       string
	Email         string
	Name          string
	PhotoURL      string
	EmailVerified bool
}

// RegisterInput carries the fields accepted at sign-up.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	PhotoURL string
}
