package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"learnhub.org/internal/apperr"
	"learnhub.org/internal/auth"
	"learnhub.org/internal/store/memory"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newService(t *testing.T) (*auth.Service, *memory.Store, *clock) {
	t.Helper()
	store := memory.New()
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := auth.NewService(store, store,
		auth.WithClock(clk.Now),
		auth.WithHasher(auth.NewHasher(4)),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store, clk
}

func TestRegisterIssuesUserSession(t *testing.T) {
	svc, store, clk := newService(t)
	ctx := context.Background()

	identity, session, err := svc.Register(ctx, auth.RegisterInput{Email: "A@X.com", Password: "Str0ng!Pass"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if identity.Email != "a@x.com" || identity.Name != "a" {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if len(identity.Roles) != 1 || identity.Roles[0] != auth.RoleUser {
		t.Fatalf("expected [user] roles, got %v", identity.Roles)
	}
	if !session.Active || !session.ExpiresAt.Equal(clk.now.Add(7*24*time.Hour)) {
		t.Fatalf("unexpected session %+v", session)
	}
	if len(session.Token) < 32 {
		t.Fatalf("token too short: %q", session.Token)
	}
	stored, err := store.SessionByToken(ctx, auth.NamespaceUser, session.Token)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if !stored.CreatedAt.Equal(stored.LastLogin) {
		t.Fatalf("created_at and last_login should match at issuance")
	}

	_, _, err = svc.Register(ctx, auth.RegisterInput{Email: "a@x.com", Password: "Another1pass"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newService(t)
	cases := []auth.RegisterInput{
		{Email: "", Password: "Str0ng!Pass"},
		{Email: "not-an-email", Password: "Str0ng!Pass"},
		{Email: "b@x.com", Password: "short1"},
		{Email: "b@x.com", Password: "lettersonly"},
	}
	for _, in := range cases {
		if _, _, err := svc.Register(context.Background(), in); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Fatalf("Register(%+v): expected invalid input, got %v", in, err)
		}
	}
}

func TestLoginFailuresWriteNoSession(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	if _, _, err := svc.Register(ctx, auth.RegisterInput{Email: "a@x.com", Password: "Str0ng!Pass"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	purgeAll := func() int64 {
		n, _ := store.PurgeExpiredSessions(ctx, auth.NamespaceUser, time.Now().Add(100*365*24*time.Hour))
		return n
	}
	purgeAll()

	for _, tc := range []struct{ email, password string }{
		{"a@x.com", "wrong-pass1"},
		{"nobody@x.com", "Str0ng!Pass"},
	} {
		_, _, err := svc.Login(ctx, auth.NamespaceUser, tc.email, tc.password)
		if !errors.Is(err, apperr.ErrUnauthenticated) {
			t.Fatalf("Login(%s): expected unauthenticated, got %v", tc.email, err)
		}
	}
	if n := purgeAll(); n != 0 {
		t.Fatalf("expected no sessions after failed logins, found %d", n)
	}
}

func TestAdminLoginRequiresBackOfficeRole(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	identity, _, err := svc.Register(ctx, auth.RegisterInput{Email: "a@x.com", Password: "Str0ng!Pass"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := svc.Login(ctx, auth.NamespaceAdmin, "a@x.com", "Str0ng!Pass"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden for plain user, got %v", err)
	}
	if _, err := store.UpdateIdentityRoles(ctx, identity.ID, []auth.Role{auth.RoleStaff}, time.Now()); err != nil {
		t.Fatalf("UpdateIdentityRoles: %v", err)
	}
	_, session, err := svc.Login(ctx, auth.NamespaceAdmin, "A@x.com ", "Str0ng!Pass")
	if err != nil {
		t.Fatalf("admin Login: %v", err)
	}
	if _, err := svc.Resolve(ctx, auth.NamespaceUser, session.Token); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("admin token must not resolve in user namespace, got %v", err)
	}
	if _, err := svc.Resolve(ctx, auth.NamespaceAdmin, session.Token); err != nil {
		t.Fatalf("admin token should resolve in admin namespace: %v", err)
	}
}

func TestResolveLifecycle(t *testing.T) {
	svc, store, clk := newService(t)
	ctx := context.Background()
	_, session, err := svc.Register(ctx, auth.RegisterInput{Email: "a@x.com", Password: "Str0ng!Pass"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := svc.Resolve(ctx, auth.NamespaceUser, ""); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("empty token: expected unauthenticated, got %v", err)
	}
	if _, err := svc.Resolve(ctx, auth.NamespaceUser, "missing"); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("unknown token: expected unauthenticated, got %v", err)
	}

	clk.now = clk.now.Add(time.Hour)
	p, err := svc.Resolve(ctx, auth.NamespaceUser, session.Token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	stored, _ := store.SessionByToken(ctx, auth.NamespaceUser, session.Token)
	if !stored.LastLogin.Equal(session.LastLogin) {
		t.Fatalf("Resolve must not modify last_login")
	}
	if p.IdentityID() != session.IdentityID {
		t.Fatalf("unexpected principal %+v", p)
	}

	touched, err := svc.Touch(ctx, auth.NamespaceUser, session.Token)
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if !touched.LastLogin.Equal(clk.now) || !touched.ExpiresAt.Equal(session.ExpiresAt) {
		t.Fatalf("Touch should update last_login only: %+v", touched)
	}

	clk.now = session.ExpiresAt
	if _, err := svc.Resolve(ctx, auth.NamespaceUser, session.Token); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("session at expiry must be rejected, got %v", err)
	}
}

func TestLogoutDeactivates(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, session, err := svc.Register(ctx, auth.RegisterInput{Email: "a@x.com", Password: "Str0ng!Pass"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, second, err := svc.Login(ctx, auth.NamespaceUser, "a@x.com", "Str0ng!Pass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if second.Token == session.Token {
		t.Fatalf("each login must issue a new token")
	}
	if err := svc.Logout(ctx, auth.NamespaceUser, session.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Resolve(ctx, auth.NamespaceUser, session.Token); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("logged out session must not resolve, got %v", err)
	}
	if _, err := svc.Resolve(ctx, auth.NamespaceUser, second.Token); err != nil {
		t.Fatalf("other sessions survive logout: %v", err)
	}
	if err := svc.Logout(ctx, auth.NamespaceUser, "unknown"); err != nil {
		t.Fatalf("logout of unknown token should be a no-op: %v", err)
	}
}

func TestUpdateRolesEnforcesHierarchy(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	target, targetSession, err := svc.Register(ctx, auth.RegisterInput{Email: "t@x.com", Password: "Str0ng!Pass"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	boss, _, err := svc.Register(ctx, auth.RegisterInput{Email: "boss@x.com", Password: "Str0ng!Pass"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	admin := auth.Principal{Namespace: auth.NamespaceAdmin, Session: auth.Session{IdentityID: "admin-1", Roles: []auth.Role{auth.RoleAdmin}}}

	if _, err := svc.UpdateRoles(ctx, admin, target.ID, []string{"super_admin"}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("admin must not grant super_admin, got %v", err)
	}
	if _, err := svc.UpdateRoles(ctx, admin, target.ID, []string{"wizard"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("unknown role must be rejected, got %v", err)
	}
	updated, err := svc.UpdateRoles(ctx, admin, target.ID, []string{"staff", "user"})
	if err != nil {
		t.Fatalf("UpdateRoles: %v", err)
	}
	if len(updated.Roles) != 2 || updated.Roles[1] != auth.RoleStaff {
		t.Fatalf("unexpected roles %v", updated.Roles)
	}
	if _, err := svc.Resolve(ctx, auth.NamespaceUser, targetSession.Token); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("role change should revoke sessions, got %v", err)
	}

	if _, err := store.UpdateIdentityRoles(ctx, boss.ID, []auth.Role{auth.RoleSuperAdmin}, time.Now()); err != nil {
		t.Fatalf("seed super admin: %v", err)
	}
	if _, err := svc.UpdateRoles(ctx, admin, boss.ID, []string{"user"}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("admin must not demote a super admin, got %v", err)
	}
	if err := svc.DeleteIdentity(ctx, admin, boss.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("admin must not delete a super admin, got %v", err)
	}
	if _, err := svc.UpdateRoles(ctx, admin, "missing", []string{"user"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoginExternalCreatesOnce(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	ext := auth.ExternalIdentity{Subject: "g-1", Email: "Ext@X.com", Name: "Ext", EmailVerified: true}
	first, s1, err := svc.LoginExternal(ctx, ext)
	if err != nil {
		t.Fatalf("LoginExternal: %v", err)
	}
	second, s2, err := svc.LoginExternal(ctx, ext)
	if err != nil {
		t.Fatalf("LoginExternal: %v", err)
	}
	if first.ID != second.ID || !first.Verified || first.Provider != auth.ProviderExternal {
		t.Fatalf("expected one verified external identity: %+v %+v", first, second)
	}
	if s1.Token == s2.Token {
		t.Fatalf("each sign-in must insert a new session")
	}
	if _, _, err := svc.Login(ctx, auth.NamespaceUser, "ext@x.com", "anything1"); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("password login without hash must fail closed, got %v", err)
	}
}

func TestLoginExternalNeverTakesOverPasswordAccount(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	victim, _, err := svc.Register(ctx, auth.RegisterInput{Email: "victim@x.com", Password: "Str0ng!Pass"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	unverified := auth.ExternalIdentity{Subject: "g-attacker", Email: "victim@x.com", EmailVerified: false}
	if _, _, err := svc.LoginExternal(ctx, unverified); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("unverified email: expected unauthenticated, got %v", err)
	}
	if n, _ := store.DeactivateIdentitySessions(ctx, auth.NamespaceUser, victim.ID); n != 1 {
		t.Fatalf("only the registration session may exist, found %d active", n)
	}
	stored, err := store.IdentityByID(ctx, victim.ID)
	if err != nil {
		t.Fatalf("IdentityByID: %v", err)
	}
	if stored.ExternalSubject != "" {
		t.Fatalf("refused sign-in must not link a subject, got %q", stored.ExternalSubject)
	}

	verified := auth.ExternalIdentity{Subject: "g-victim", Email: "victim@x.com", EmailVerified: true}
	linked, _, err := svc.LoginExternal(ctx, verified)
	if err != nil {
		t.Fatalf("verified email should link: %v", err)
	}
	if linked.ID != victim.ID || linked.ExternalSubject != "g-victim" {
		t.Fatalf("unexpected linked identity %+v", linked)
	}

	other := auth.ExternalIdentity{Subject: "g-other", Email: "victim@x.com", EmailVerified: true}
	if _, _, err := svc.LoginExternal(ctx, other); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("different subject: expected unauthenticated, got %v", err)
	}
	if _, _, err := svc.LoginExternal(ctx, auth.ExternalIdentity{Email: "victim@x.com", EmailVerified: true}); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("missing subject: expected unauthenticated, got %v", err)
	}
}

func TestLoginExternalSubjectOwnsOneIdentity(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	if _, _, err := svc.LoginExternal(ctx, auth.ExternalIdentity{Subject: "g-1", Email: "old@x.com", EmailVerified: true}); err != nil {
		t.Fatalf("LoginExternal: %v", err)
	}
	_, _, err := svc.LoginExternal(ctx, auth.ExternalIdentity{Subject: "g-1", Email: "new@x.com", EmailVerified: true})
	if !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("subject reused under another email: expected unauthenticated, got %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	svc, _, clk := newService(t)
	ctx := context.Background()
	if _, _, err := svc.Register(ctx, auth.RegisterInput{Email: "a@x.com", Password: "Str0ng!Pass"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if n, _ := svc.PurgeExpired(ctx, auth.NamespaceUser); n != 0 {
		t.Fatalf("nothing should be purged yet, got %d", n)
	}
	clk.now = clk.now.Add(8 * 24 * time.Hour)
	if n, _ := svc.PurgeExpired(ctx, auth.NamespaceUser); n != 1 {
		t.Fatalf("expected one purged session, got %d", n)
	}
}
