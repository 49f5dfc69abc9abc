package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"learnhub.org/internal/apperr"
	"learnhub.org/internal/audit"
	"learnhub.org/internal/auth"
	"learnhub.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// tokenCookie names the HttpOnly cookie carrying the session token of ns.
func tokenCookie(ns auth.Namespace) string { return string(ns) + "_token" }

// dataCookie names the script-readable display cookie of ns.
func dataCookie(ns auth.Namespace) string { return string(ns) + "_data" }

// displayData is mirrored into the data cookie for the frontend. The server
// never reads it back.
type displayData struct {
	Email     string    `json:"email"`
	Role      []string  `json:"role"`
	Name      string    `json:"name"`
	PhotoURL  string    `json:"photoURL"`
	LastLogin time.Time `json:"lastLogin"`
}

func (a *API) setSessionCookies(w http.ResponseWriter, ns auth.Namespace, s auth.Session) {
	maxAge := int(a.deps.Auth.SessionTTL().Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie(ns),
		Value:    s.Token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.deps.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	a.setDataCookie(w, ns, s, maxAge)
}

func (a *API) setDataCookie(w http.ResponseWriter, ns auth.Namespace, s auth.Session, maxAge int) {
	data, err := json.Marshal(displayData{
		Email:     s.Email,
		Role:      auth.RoleNames(s.Roles),
		Name:      s.Name,
		PhotoURL:  s.PhotoURL,
		LastLogin: s.LastLogin,
	})
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     dataCookie(ns),
		Value:    url.QueryEscape(string(data)),
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   a.deps.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearSessionCookies(w http.ResponseWriter, ns auth.Namespace) {
	for _, name := range []string{tokenCookie(ns), dataCookie(ns)} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: name == tokenCookie(ns),
			Secure:   a.deps.SecureCookies,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// sessionToken reads the namespace cookie, falling back to a bearer header.
func sessionToken(r *http.Request, ns auth.Namespace) string {
	if c, err := r.Cookie(tokenCookie(ns)); err == nil && c.Value != "" {
		return c.Value
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		return ""
	}
	return token
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// authenticate resolves the caller's session in ns. On failure the error
// response has been written and ok is false.
func (a *API) authenticate(w http.ResponseWriter, r *http.Request, ns auth.Namespace) (*http.Request, auth.Principal, bool) {
	p, err := a.deps.Auth.Resolve(r.Context(), ns, sessionToken(r, ns))
	if err != nil {
		handleError(w, r, err)
		return r, auth.Principal{}, false
	}
	ctx := auth.ContextWithPrincipal(r.Context(), p)
	return r.WithContext(ctx), p, true
}

// authorize checks the permission and writes 403 when it is missing.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, p auth.Principal, res auth.Resource, act auth.Action) bool {
	allowed := p.Can(res, act)
	obs.RecordAuthzDecision(string(res), string(act), allowed)
	if !allowed {
		writeError(w, r, apperr.KindForbidden, fmt.Sprintf("missing permission %s:%s", res, act))
		return false
	}
	return true
}

// guard resolves the session in ns and then checks the permission, so that
// authorization always precedes any lookup or side effect.
func (a *API) guard(w http.ResponseWriter, r *http.Request, ns auth.Namespace, res auth.Resource, act auth.Action) (*http.Request, auth.Principal, bool) {
	r, p, ok := a.authenticate(w, r, ns)
	if !ok {
		return r, p, false
	}
	if !a.authorize(w, r, p, res, act) {
		return r, p, false
	}
	return r, p, true
}

// suspended writes 503 and reports true while maintenance mode holds
// learner-facing writes.
func (a *API) suspended(w http.ResponseWriter, r *http.Request) bool {
	on, err := a.deps.Settings.MaintenanceMode(r.Context())
	if err != nil {
		handleError(w, r, err)
		return true
	}
	if !on {
		return false
	}
	w.Header().Set("Retry-After", "300")
	writeError(w, r, apperr.KindUnavailable, "learnhub is in maintenance mode; try again later")
	return true
}

func (a *API) audit(ctx context.Context, action, resourceType, resourceID string, meta map[string]string) {
	err := a.deps.Audit.Record(ctx, audit.Entry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     meta,
	})
	if err != nil {
		obs.Logger().Warn("audit write failed",
			zap.String("action", action),
			zap.String("request_id", RequestIDFromContext(ctx)),
			zap.Error(err),
		)
	}
}

type sessionView struct {
	Namespace string    `json:"namespace"`
	LastLogin time.Time `json:"last_login"`
	ExpiresAt time.Time `json:"expires_at"`
}

// meResponse describes the caller. Verified is reported only where the
// identity record was just loaded.
type meResponse struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	Name        string      `json:"name"`
	PhotoURL    string      `json:"photo_url,omitempty"`
	Roles       []string    `json:"roles"`
	Permissions []string    `json:"permissions"`
	Verified    *bool       `json:"verified,omitempty"`
	Session     sessionView `json:"session"`
}

// withIdentity adds fields known only from the identity record.
func (m meResponse) withIdentity(identity auth.Identity) meResponse {
	verified := identity.Verified
	m.Verified = &verified
	return m
}

func newMeResponse(ns auth.Namespace, s auth.Session) meResponse {
	return meResponse{
		ID:          s.IdentityID,
		Email:       s.Email,
		Name:        s.Name,
		PhotoURL:    s.PhotoURL,
		Roles:       auth.RoleNames(s.Roles),
		Permissions: auth.Permissions(s.Roles),
		Session: sessionView{
			Namespace: string(ns),
			LastLogin: s.LastLogin,
			ExpiresAt: s.ExpiresAt,
		},
	}
}
