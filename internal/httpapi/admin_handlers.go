package httpapi

import (
	"net/http"
	"strings"

	"learnhub.org/internal/audit"
	"learnhub.org/internal/auth"
	"learnhub.org/internal/settings"
)

type updateRolesRequest struct {
	Roles []string `json:"roles"`
}

type settingsRequest struct {
	SiteName          string   `json:"site_name"`
	SupportEmail      string   `json:"support_email"`
	Currency          string   `json:"currency"`
	MaintenanceMode   bool     `json:"maintenance_mode"`
	AllowRegistration bool     `json:"allow_registration"`
	MaxCartItems      int      `json:"max_cart_items"`
	FeaturedCourseIDs []string `json:"featured_course_ids"`
}

func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	r, _, ok := a.guard(w, r, auth.NamespaceAdmin, auth.ResourceUsers, auth.ActionRead)
	if !ok {
		return
	}
	params, err := parseQuery(r.URL.Query(), qLimit, qOffset, qSearch)
	if err != nil {
		handleError(w, r, err)
		return
	}
	items, total, err := a.deps.Auth.ListIdentities(r.Context(), auth.ListOptions{
		Limit:  params.Limit,
		Offset: params.Offset,
		Search: params.Search,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[auth.Identity]{Items: items, Total: total, Limit: params.Limit, Offset: params.Offset})
}

func (a *API) handleAdminUser(w http.ResponseWriter, r *http.Request) {
	var action auth.Action
	switch r.Method {
	case http.MethodGet:
		action = auth.ActionRead
	case http.MethodDelete:
		action = auth.ActionDelete
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		return
	}
	r, p, ok := a.guard(w, r, auth.NamespaceAdmin, auth.ResourceUsers, action)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	if r.Method == http.MethodGet {
		identity, err := a.deps.Auth.Identity(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, identity)
		return
	}
	if err := a.deps.Auth.DeleteIdentity(r.Context(), p, id); err != nil {
		handleError(w, r, err)
		return
	}
	a.audit(r.Context(), "admin.user.delete", "identity", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAdminUserRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	r, p, ok := a.guard(w, r, auth.NamespaceAdmin, auth.ResourceUsers, auth.ActionUpdate)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	var req updateRolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	identity, err := a.deps.Auth.UpdateRoles(r.Context(), p, id, req.Roles)
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.audit(r.Context(), "admin.user.roles.update", "identity", identity.ID, map[string]string{
		"roles": strings.Join(auth.RoleNames(identity.Roles), ","),
	})
	writeJSON(w, http.StatusOK, identity)
}

func (a *API) handleAdminAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	r, _, ok := a.guard(w, r, auth.NamespaceAdmin, auth.ResourceAnalytics, auth.ActionRead)
	if !ok {
		return
	}
	params, err := parseQuery(r.URL.Query(), qDays)
	if err != nil {
		handleError(w, r, err)
		return
	}
	summary, err := a.deps.Analytics.Summary(r.Context(), params.Days)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleAdminAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	r, _, ok := a.guard(w, r, auth.NamespaceAdmin, auth.ResourceAuditLogs, auth.ActionRead)
	if !ok {
		return
	}
	params, err := parseQuery(r.URL.Query(), qLimit, qOffset, qAction, qActor)
	if err != nil {
		handleError(w, r, err)
		return
	}
	items, total, err := a.deps.Audit.List(r.Context(), audit.Filter{
		Action:  params.Action,
		ActorID: params.Actor,
		Limit:   params.Limit,
		Offset:  params.Offset,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[audit.Entry]{Items: items, Total: total, Limit: params.Limit, Offset: params.Offset})
}

func (a *API) handleAdminSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		r, _, ok := a.guard(w, r, auth.NamespaceAdmin, auth.ResourceSettings, auth.ActionRead)
		if !ok {
			return
		}
		cur, err := a.deps.Settings.Get(r.Context())
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, cur)
	case http.MethodPut:
		r, p, ok := a.guard(w, r, auth.NamespaceAdmin, auth.ResourceSettings, auth.ActionUpdate)
		if !ok {
			return
		}
		var req settingsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			handleError(w, r, err)
			return
		}
		saved, err := a.deps.Settings.Update(r.Context(), settings.Settings{
			SiteName:          req.SiteName,
			SupportEmail:      req.SupportEmail,
			Currency:          req.Currency,
			MaintenanceMode:   req.MaintenanceMode,
			AllowRegistration: req.AllowRegistration,
			MaxCartItems:      req.MaxCartItems,
			FeaturedCourseIDs: req.FeaturedCourseIDs,
		}, p.Session.Email)
		if err != nil {
			handleError(w, r, err)
			return
		}
		a.audit(r.Context(), "admin.settings.update", "settings", "site", nil)
		writeJSON(w, http.StatusOK, saved)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}
