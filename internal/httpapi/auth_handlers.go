package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"learnhub.org/internal/apperr"
	"learnhub.org/internal/auth"
	"learnhub.org/internal/obs"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	PhotoURL string `json:"photo_url"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type externalLoginRequest struct {
	IDToken string `json:"id_token"`
}

type heartbeatResponse struct {
	LastLogin time.Time `json:"last_login"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	if a.suspended(w, r) {
		return
	}
	open, err := a.deps.Settings.RegistrationOpen(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	if !open {
		obs.RecordAuthAttempt(string(auth.NamespaceUser), "register", "closed")
		writeError(w, r, apperr.KindForbidden, "registration is closed")
		return
	}
	identity, session, err := a.deps.Auth.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		PhotoURL: req.PhotoURL,
	})
	if err != nil {
		obs.RecordAuthAttempt(string(auth.NamespaceUser), "register", string(apperr.KindOf(err)))
		handleError(w, r, err)
		return
	}
	obs.RecordAuthAttempt(string(auth.NamespaceUser), "register", "success")
	ctx := auth.ContextWithPrincipal(r.Context(), auth.Principal{Namespace: auth.NamespaceUser, Session: session})
	a.audit(ctx, "auth.register", "identity", identity.ID, map[string]string{"email": identity.Email})

	a.setSessionCookies(w, auth.NamespaceUser, session)
	w.Header().Set("Location", "/v1/auth/me")
	writeJSON(w, http.StatusCreated, newMeResponse(auth.NamespaceUser, session).withIdentity(identity))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	a.passwordLogin(w, r, auth.NamespaceUser)
}

func (a *API) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	a.passwordLogin(w, r, auth.NamespaceAdmin)
}

func (a *API) passwordLogin(w http.ResponseWriter, r *http.Request, ns auth.Namespace) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	identity, session, err := a.deps.Auth.Login(r.Context(), ns, req.Email, req.Password)
	if err != nil {
		kind := apperr.KindOf(err)
		obs.RecordAuthAttempt(string(ns), "password", string(kind))
		if kind == apperr.KindUnauthenticated || kind == apperr.KindForbidden {
			a.audit(r.Context(), fmt.Sprintf("auth.%s.login_failed", ns), "identity", "", map[string]string{
				"email":  req.Email,
				"reason": string(kind),
			})
		}
		handleError(w, r, err)
		return
	}
	obs.RecordAuthAttempt(string(ns), "password", "success")
	ctx := auth.ContextWithPrincipal(r.Context(), auth.Principal{Namespace: ns, Session: session})
	a.audit(ctx, fmt.Sprintf("auth.%s.login", ns), "identity", identity.ID, nil)

	a.setSessionCookies(w, ns, session)
	writeJSON(w, http.StatusOK, newMeResponse(ns, session).withIdentity(identity))
}

func (a *API) handleExternalLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.deps.IDP == nil {
		writeError(w, r, apperr.KindNotFound, "external sign-in is not configured")
		return
	}
	var req externalLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	if a.suspended(w, r) {
		return
	}
	ext, err := a.deps.IDP.Verify(r.Context(), req.IDToken)
	if err != nil {
		obs.RecordAuthAttempt(string(auth.NamespaceUser), "external", string(apperr.KindOf(err)))
		handleError(w, r, err)
		return
	}
	identity, session, err := a.deps.Auth.LoginExternal(r.Context(), ext)
	if err != nil {
		obs.RecordAuthAttempt(string(auth.NamespaceUser), "external", string(apperr.KindOf(err)))
		handleError(w, r, err)
		return
	}
	obs.RecordAuthAttempt(string(auth.NamespaceUser), "external", "success")
	ctx := auth.ContextWithPrincipal(r.Context(), auth.Principal{Namespace: auth.NamespaceUser, Session: session})
	a.audit(ctx, "auth.user.login_external", "identity", identity.ID, map[string]string{"subject": ext.Subject})

	a.setSessionCookies(w, auth.NamespaceUser, session)
	writeJSON(w, http.StatusOK, newMeResponse(auth.NamespaceUser, session).withIdentity(identity))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.logout(w, r, auth.NamespaceUser)
}

func (a *API) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	a.logout(w, r, auth.NamespaceAdmin)
}

// logout succeeds without a live session; cookies are cleared either way.
func (a *API) logout(w http.ResponseWriter, r *http.Request, ns auth.Namespace) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token := sessionToken(r, ns)
	ctx := r.Context()
	p, err := a.deps.Auth.Resolve(ctx, ns, token)
	resolved := err == nil
	if err != nil && !errors.Is(err, apperr.ErrUnauthenticated) {
		handleError(w, r, err)
		return
	}
	if resolved {
		ctx = auth.ContextWithPrincipal(ctx, p)
	}
	if err := a.deps.Auth.Logout(ctx, ns, token); err != nil {
		handleError(w, r, err)
		return
	}
	if resolved {
		a.audit(ctx, fmt.Sprintf("auth.%s.logout", ns), "identity", p.IdentityID(), nil)
	}
	a.clearSessionCookies(w, ns)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	a.me(w, r, auth.NamespaceUser)
}

func (a *API) handleAdminMe(w http.ResponseWriter, r *http.Request) {
	a.me(w, r, auth.NamespaceAdmin)
}

func (a *API) me(w http.ResponseWriter, r *http.Request, ns auth.Namespace) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	_, p, ok := a.authenticate(w, r, ns)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newMeResponse(ns, p.Session))
}

// handleHeartbeat is the explicit activity refresh. It updates last_login
// only; expiry is fixed at issuance.
func (a *API) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	session, err := a.deps.Auth.Touch(r.Context(), auth.NamespaceUser, sessionToken(r, auth.NamespaceUser))
	if err != nil {
		handleError(w, r, err)
		return
	}
	maxAge := int(session.ExpiresAt.Sub(session.LastLogin).Seconds())
	a.setDataCookie(w, auth.NamespaceUser, session, maxAge)
	writeJSON(w, http.StatusOK, heartbeatResponse{
		LastLogin: session.LastLogin,
		ExpiresAt: session.ExpiresAt,
	})
}
