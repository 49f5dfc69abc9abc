package httpapi

import (
	"fmt"
	"net/http"

	"learnhub.org/internal/apperr"
	"learnhub.org/internal/auth"
	"learnhub.org/internal/catalog"
)

var courseQueryKeys = []string{qLimit, qOffset, qSearch, qCategory, qCareerTrack}

var publicCourseQueryKeys = append([]string{qFeatured}, courseQueryKeys...)

func courseFilter(p queryParams) catalog.CourseFilter {
	return catalog.CourseFilter{
		CategoryID:    p.Category,
		CareerTrackID: p.CareerTrack,
		Search:        p.Search,
		Limit:         p.Limit,
		Offset:        p.Offset,
	}
}

func (a *API) handlePublicCourses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	query := r.URL.Query()
	params, err := parseQuery(query, publicCourseQueryKeys...)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if params.Featured {
		if len(query) > 1 {
			writeError(w, r, apperr.KindInvalidInput, "featured cannot be combined with other query parameters")
			return
		}
		a.featuredCourses(w, r, params)
		return
	}
	items, total, err := a.deps.Catalog.PublicCourses(r.Context(), courseFilter(params))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[catalog.Course]{Items: items, Total: total, Limit: params.Limit, Offset: params.Offset})
}

// featuredCourses serves the curated list from settings in its saved order.
func (a *API) featuredCourses(w http.ResponseWriter, r *http.Request, params queryParams) {
	ids, err := a.deps.Settings.FeaturedCourseIDs(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	items, err := a.deps.Catalog.FeaturedCourses(r.Context(), ids)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[catalog.Course]{Items: items, Total: len(items), Limit: params.Limit})
}

func (a *API) handlePublicCourse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	course, err := a.deps.Catalog.PublicCourse(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, course)
}

func (a *API) handlePublicCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, err := parseQuery(r.URL.Query()); err != nil {
		handleError(w, r, err)
		return
	}
	items, err := a.deps.Catalog.Categories(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handlePublicCareerTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, err := parseQuery(r.URL.Query()); err != nil {
		handleError(w, r, err)
		return
	}
	items, err := a.deps.Catalog.CareerTracks(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// --- back office ---

func (a *API) handleAdminCourses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		r, _, ok := a.guard(w, r, auth.NamespaceAdmin, auth.ResourceCourses, auth.ActionRead)
		if !ok {
			return
		}
		params, err := parseQuery(r.URL.Query(), courseQueryKeys...)
		if err != nil {
			handleError(w, r, err)
			return
		}
		items, total, err := a.deps.Catalog.ListCourses(r.Context(), courseFilter(params))
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse[catalog.Course]{Items: items, Total: total, Limit: params.Limit, Offset: params.Offset})
	case http.MethodPost:
		r, _, ok := a.guard(w, r, auth.NamespaceAdmin, auth.ResourceCourses, auth.ActionCreate)
		if !ok {
			return
		}
		var in catalog.CourseInput
		if err := decodeJSON(w, r, &in); err != nil {
			handleError(w, r, err)
			return
		}
		course, err := a.deps.Catalog.CreateCourse(r.Context(), in)
		if err != nil {
			handleError(w, r, err)
			return
		}
		a.audit(r.Context(), "catalog.course.create", "course", course.ID, map[string]string{"slug": course.Slug})
		w.Header().Set("Location", fmt.Sprintf("/v1/admin/courses/%s", course.ID))
		writeJSON(w, http.StatusCreated, course)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAdminCourse(w http.ResponseWriter, r *http.Request) {
	var action auth.Action
	switch r.Method {
	case http.MethodGet:
		action = auth.ActionRead
	case http.MethodPut:
		action = auth.ActionUpdate
	case http.MethodDelete:
		action = auth.ActionDelete
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
		return
	}
	r, _, ok := a.guard(w, r, auth.NamespaceAdmin, auth.ResourceCourses, action)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		course, err := a.deps.Catalog.Course(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, course)
	case http.MethodPut:
		var in catalog.CourseInput
		if err := decodeJSON(w, r, &in); err != nil {
			handleError(w, r, err)
			return
		}
		course, err := a.deps.Catalog.UpdateCourse(r.Context(), id, in)
		if err != nil {
			handleError(w, r, err)
			return
		}
		a.audit(r.Context(), "catalog.course.update", "course", course.ID, nil)
		writeJSON(w, http.StatusOK, course)
	case http.MethodDelete:
		if err := a.deps.Catalog.DeleteCourse(r.Context(), id); err != nil {
			handleError(w, r, err)
			return
		}
		a.audit(r.Context(), "catalog.course.delete", "course", id, nil)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *API) handleAdminCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		r, _, ok := a.guard(w, r, auth.NamespaceAdmin, auth.ResourceCategories, auth.ActionRead)
		if !ok {
			return
		}
		if _, err := parseQuery(r.URL.Query()); err != nil {
			handleError(w, r, err)
			return
		}
		items, err := a.deps.Catalog.Categories(r.Context())
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		r, _, ok := a.guard(w, r, auth.NamespaceAdmin, auth.ResourceCategories, auth.ActionCreate)
		if !ok {
			return
		}
		var in catalog.CategoryInput
		if err := decodeJSON(w, r, &in); err != nil {
			handleError(w, r, err)
			return
		}
		category, err := a.deps.Catalog.CreateCategory(r.Context(), in)
		if err != nil {
			handleError(w, r, err)
			return
		}
		a.audit(r.Context(), "catalog.category.create", "category", category.ID, map[string]string{"slug": category.Slug})
		w.Header().Set("Location", fmt.Sprintf("/v1/admin/categories/%s", category.ID))
		writeJSON(w, http.StatusCreated, category)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAdminCategory(w http.ResponseWriter, r *http.Request) {
	var action auth.Action
	switch r.Method {
	case http.MethodPut:
		action = auth.ActionUpdate
	case http.MethodDelete:
		action = auth.ActionDelete
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
		return
	}
	r, _, ok := a.guard(w, r, auth.NamespaceAdmin, auth.ResourceCategories, action)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	if r.Method == http.MethodDelete {
		if err := a.deps.Catalog.DeleteCategory(r.Context(), id); err != nil {
			handleError(w, r, err)
			return
		}
		a.audit(r.Context(), "catalog.category.delete", "category", id, nil)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	var in catalog.CategoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	category, err := a.deps.Catalog.UpdateCategory(r.Context(), id, in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.audit(r.Context(), "catalog.category.update", "category", category.ID, nil)
	writeJSON(w, http.StatusOK, category)
}

func (a *API) handleAdminCareerTracks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		r, _, ok := a.guard(w, r, auth.NamespaceAdmin, auth.ResourceCareerTracks, auth.ActionRead)
		if !ok {
			return
		}
		if _, err := parseQuery(r.URL.Query()); err != nil {
			handleError(w, r, err)
			return
		}
		items, err := a.deps.Catalog.CareerTracks(r.Context())
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		r, _, ok := a.guard(w, r, auth.NamespaceAdmin, auth.ResourceCareerTracks, auth.ActionCreate)
		if !ok {
			return
		}
		var in catalog.CareerTrackInput
		if err := decodeJSON(w, r, &in); err != nil {
			handleError(w, r, err)
			return
		}
		track, err := a.deps.Catalog.CreateCareerTrack(r.Context(), in)
		if err != nil {
			handleError(w, r, err)
			return
		}
		a.audit(r.Context(), "catalog.career_track.create", "career_track", track.ID, map[string]string{"slug": track.Slug})
		w.Header().Set("Location", fmt.Sprintf("/v1/admin/career-tracks/%s", track.ID))
		writeJSON(w, http.StatusCreated, track)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAdminCareerTrack(w http.ResponseWriter, r *http.Request) {
	var action auth.Action
	switch r.Method {
	case http.MethodPut:
		action = auth.ActionUpdate
	case http.MethodDelete:
		action = auth.ActionDelete
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
		return
	}
	r, _, ok := a.guard(w, r, auth.NamespaceAdmin, auth.ResourceCareerTracks, action)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err)
		return
	}
	if r.Method == http.MethodDelete {
		if err := a.deps.Catalog.DeleteCareerTrack(r.Context(), id); err != nil {
			handleError(w, r, err)
			return
		}
		a.audit(r.Context(), "catalog.career_track.delete", "career_track", id, nil)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	var in catalog.CareerTrackInput
	if err := decodeJSON(w, r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	track, err := a.deps.Catalog.UpdateCareerTrack(r.Context(), id, in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.audit(r.Context(), "catalog.career_track.update", "career_track", track.ID, nil)
	writeJSON(w, http.StatusOK, track)
}
