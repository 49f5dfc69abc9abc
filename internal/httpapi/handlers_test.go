package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"learnhub.org/internal/analytics"
	"learnhub.org/internal/audit"
	"learnhub.org/internal/auth"
	"learnhub.org/internal/catalog"
	"learnhub.org/internal/commerce"
	"learnhub.org/internal/settings"
	"learnhub.org/internal/store/memory"
)

const testPassword = "correct-horse-42"

type testEnv struct {
	srv   *httptest.Server
	store *memory.Store
}

func newTestAPI(t *testing.T) *testEnv {
	t.Helper()
	return newTestAPIWith(t, nil)
}

// newTestAPIWith lets a test swap dependencies before the server starts.
func newTestAPIWith(t *testing.T, override func(*Deps)) *testEnv {
	t.Helper()
	store := memory.New()
	authSvc, err := auth.NewService(store, store, auth.WithHasher(auth.NewHasher(4)))
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	settingsSvc := settings.NewService(store, settings.WithCourseLookup(store))
	catalogSvc := catalog.NewService(store, settingsSvc)
	deps := Deps{
		Auth:      authSvc,
		Catalog:   catalogSvc,
		Commerce:  commerce.NewService(store, catalogSvc, settingsSvc),
		Settings:  settingsSvc,
		Analytics: analytics.NewService(store),
		Audit:     audit.NewRecorder(store),
		Version:   "test",
	}
	if override != nil {
		override(&deps)
	}
	api := New(deps)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store}
}

// apiClient is one browser: it keeps its own cookies.
type apiClient struct {
	t    *testing.T
	base string
	http *http.Client
}

func (e *testEnv) client(t *testing.T) *apiClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &apiClient{t: t, base: e.srv.URL, http: &http.Client{Jar: jar}}
}

func (c *apiClient) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	c.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (c *apiClient) get(path string) *http.Response { return c.do(http.MethodGet, path, nil) }

func (c *apiClient) post(path string, body any) *http.Response {
	return c.do(http.MethodPost, path, body)
}

func (c *apiClient) put(path string, body any) *http.Response {
	return c.do(http.MethodPut, path, body)
}

func (c *apiClient) delete(path string) *http.Response { return c.do(http.MethodDelete, path, nil) }

func (c *apiClient) cookie(name string) *http.Cookie {
	u, _ := url.Parse(c.base)
	for _, ck := range c.http.Jar.Cookies(u) {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode %T: %v", v, err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status = %d, want %d; body=%s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body)
	}
}

func expectError(t *testing.T, resp *http.Response, status int, kind string) {
	t.Helper()
	expectStatus(t, resp, status)
	body := decode[errorResponse](t, resp)
	if body.Kind != kind {
		t.Fatalf("kind = %q, want %q (error %q)", body.Kind, kind, body.Error)
	}
	if body.RequestID == "" {
		t.Fatalf("error body without request_id")
	}
}

func (e *testEnv) register(t *testing.T, email string) *apiClient {
	t.Helper()
	c := e.client(t)
	resp := c.post("/v1/auth/register", map[string]string{"email": email, "password": testPassword, "name": "Test " + email})
	expectStatus(t, resp, http.StatusCreated)
	return c
}

// promote sets roles directly in the store, bypassing the API.
func (e *testEnv) promote(t *testing.T, email string, roles ...auth.Role) auth.Identity {
	t.Helper()
	ctx := context.Background()
	identity, err := e.store.IdentityByEmail(ctx, email)
	if err != nil {
		t.Fatalf("lookup %s: %v", email, err)
	}
	identity, err = e.store.UpdateIdentityRoles(ctx, identity.ID, roles, time.Now())
	if err != nil {
		t.Fatalf("promote %s: %v", email, err)
	}
	return identity
}

func (e *testEnv) adminClient(t *testing.T, email string, roles ...auth.Role) *apiClient {
	t.Helper()
	e.register(t, email)
	e.promote(t, email, roles...)
	c := e.client(t)
	resp := c.post("/v1/admin/auth/login", map[string]string{"email": email, "password": testPassword})
	expectStatus(t, resp, http.StatusOK)
	return c
}

func TestHealthAndInfo(t *testing.T) {
	env := newTestAPI(t)
	c := env.client(t)

	resp := c.get("/healthz")
	expectStatus(t, resp, http.StatusOK)
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatalf("missing %s header", requestIDHeader)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers not applied")
	}

	expectStatus(t, c.get("/readyz"), http.StatusOK)
	expectError(t, c.get("/nope"), http.StatusNotFound, "not_found")
}

func TestRegisterSetsCookiesAndMe(t *testing.T) {
	env := newTestAPI(t)
	c := env.client(t)

	resp := c.post("/v1/auth/register", map[string]string{"email": "Ada@Example.com", "password": testPassword, "name": "Ada"})
	expectStatus(t, resp, http.StatusCreated)
	if loc := resp.Header.Get("Location"); loc != "/v1/auth/me" {
		t.Fatalf("Location = %q", loc)
	}
	created := decode[meResponse](t, resp)
	if len(created.Roles) != 1 || created.Roles[0] != "user" {
		t.Fatalf("roles = %v", created.Roles)
	}
	if created.Verified == nil || *created.Verified {
		t.Fatalf("new password identity must be unverified, got %v", created.Verified)
	}
	if !created.Session.ExpiresAt.Equal(created.Session.LastLogin.Add(7 * 24 * time.Hour)) {
		t.Fatalf("session expiry %v is not 7 days after %v", created.Session.ExpiresAt, created.Session.LastLogin)
	}
	var token, data *http.Cookie
	for _, ck := range resp.Cookies() {
		switch ck.Name {
		case "user_token":
			token = ck
		case "user_data":
			data = ck
		}
	}
	if token == nil || !token.HttpOnly || token.SameSite != http.SameSiteStrictMode {
		t.Fatalf("token cookie not hardened: %+v", token)
	}
	if token.MaxAge != int((7 * 24 * time.Hour).Seconds()) {
		t.Fatalf("token MaxAge = %d", token.MaxAge)
	}
	if data == nil || data.HttpOnly {
		t.Fatalf("data cookie must be readable by scripts: %+v", data)
	}
	raw, err := url.QueryUnescape(data.Value)
	if err != nil {
		t.Fatalf("unescape data cookie: %v", err)
	}
	var display displayData
	if err := json.Unmarshal([]byte(raw), &display); err != nil {
		t.Fatalf("data cookie json: %v", err)
	}
	if display.Email != "ada@example.com" || len(display.Role) != 1 || display.Role[0] != "user" {
		t.Fatalf("unexpected display data %+v", display)
	}

	me := decode[meResponse](t, c.get("/v1/auth/me"))
	if me.Email != "ada@example.com" || me.Name != "Ada" {
		t.Fatalf("unexpected me %+v", me)
	}

	expectError(t, env.client(t).post("/v1/auth/register", map[string]string{"email": "ada@example.com", "password": testPassword}),
		http.StatusConflict, "conflict")
}

func TestBearerTokenFallback(t *testing.T) {
	env := newTestAPI(t)
	c := env.register(t, "bearer@example.com")
	token := c.cookie("user_token")
	if token == nil {
		t.Fatalf("no token cookie")
	}

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token.Value)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)
}

func TestLoginAndLogout(t *testing.T) {
	env := newTestAPI(t)
	env.register(t, "bob@example.com")

	c := env.client(t)
	expectError(t, c.post("/v1/auth/login", map[string]string{"email": "bob@example.com", "password": "wrong-password-1"}),
		http.StatusUnauthorized, "unauthenticated")
	expectError(t, c.post("/v1/auth/login", map[string]string{"email": "nobody@example.com", "password": testPassword}),
		http.StatusUnauthorized, "unauthenticated")

	expectStatus(t, c.post("/v1/auth/login", map[string]string{"email": "bob@example.com", "password": testPassword}), http.StatusOK)
	expectStatus(t, c.get("/v1/auth/me"), http.StatusOK)

	expectStatus(t, c.post("/v1/auth/logout", nil), http.StatusNoContent)
	expectError(t, c.get("/v1/auth/me"), http.StatusUnauthorized, "unauthenticated")

	// without a session logout still succeeds
	expectStatus(t, env.client(t).post("/v1/auth/logout", nil), http.StatusNoContent)
}

func TestNamespacesAreSeparate(t *testing.T) {
	env := newTestAPI(t)
	env.register(t, "staff@example.com")
	env.promote(t, "staff@example.com", auth.RoleUser, auth.RoleStaff)

	c := env.client(t)
	expectStatus(t, c.post("/v1/admin/auth/login", map[string]string{"email": "staff@example.com", "password": testPassword}), http.StatusOK)
	expectStatus(t, c.get("/v1/admin/auth/me"), http.StatusOK)
	// an admin session does not authenticate the learner namespace
	expectError(t, c.get("/v1/auth/me"), http.StatusUnauthorized, "unauthenticated")

	expectStatus(t, c.post("/v1/admin/auth/logout", nil), http.StatusNoContent)
	expectError(t, c.get("/v1/admin/auth/me"), http.StatusUnauthorized, "unauthenticated")
}

func TestAdminLoginRequiresBackOfficeRole(t *testing.T) {
	env := newTestAPI(t)
	env.register(t, "learner@example.com")

	c := env.client(t)
	expectError(t, c.post("/v1/admin/auth/login", map[string]string{"email": "learner@example.com", "password": testPassword}),
		http.StatusForbidden, "forbidden")
	if c.cookie("admin_token") != nil {
		t.Fatalf("refused admin login must not set a cookie")
	}
}

// countingAnalytics counts aggregation queries reaching the store.
type countingAnalytics struct {
	analytics.Store
	calls atomic.Int32
}

func (c *countingAnalytics) Totals(ctx context.Context) (analytics.Totals, error) {
	c.calls.Add(1)
	return c.Store.Totals(ctx)
}

func (c *countingAnalytics) TopCourses(ctx context.Context, limit int) ([]analytics.CourseCount, error) {
	c.calls.Add(1)
	return c.Store.TopCourses(ctx, limit)
}

func (c *countingAnalytics) SignupsByDay(ctx context.Context, since time.Time) ([]analytics.DayCount, error) {
	c.calls.Add(1)
	return c.Store.SignupsByDay(ctx, since)
}

func TestUnauthenticatedBeforeForbidden(t *testing.T) {
	counter := &countingAnalytics{Store: memory.New()}
	env := newTestAPIWith(t, func(d *Deps) { d.Analytics = analytics.NewService(counter) })
	anon := env.client(t)
	expectError(t, anon.get("/v1/admin/users"), http.StatusUnauthorized, "unauthenticated")
	expectError(t, anon.get("/v1/admin/analytics?days=7"), http.StatusUnauthorized, "unauthenticated")
	if n := counter.calls.Load(); n != 0 {
		t.Fatalf("anonymous analytics request ran %d aggregations", n)
	}
	expectError(t, anon.get("/v1/cart"), http.StatusUnauthorized, "unauthenticated")
	// authentication is checked before the query is decoded
	expectError(t, anon.get("/v1/admin/users?bogus=1"), http.StatusUnauthorized, "unauthenticated")

	staff := env.adminClient(t, "staff@example.com", auth.RoleStaff)
	expectError(t, staff.get("/v1/admin/users"), http.StatusForbidden, "forbidden")
	expectError(t, staff.get("/v1/admin/users?bogus=1"), http.StatusForbidden, "forbidden")
	expectStatus(t, staff.get("/v1/admin/analytics"), http.StatusOK)
	if counter.calls.Load() == 0 {
		t.Fatalf("authorized analytics request did not reach the store")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestAPI(t)
	resp := env.client(t).get("/v1/auth/login")
	expectError(t, resp, http.StatusMethodNotAllowed, "invalid_input")
	if resp.Header.Get("Allow") != http.MethodPost {
		t.Fatalf("Allow = %q", resp.Header.Get("Allow"))
	}
}

func TestCatalogCartCheckoutFlow(t *testing.T) {
	env := newTestAPI(t)
	admin := env.adminClient(t, "admin@example.com", auth.RoleAdmin)

	resp := admin.post("/v1/admin/categories", map[string]any{"name": "Data Science"})
	expectStatus(t, resp, http.StatusCreated)
	category := decode[catalog.Category](t, resp)
	if category.Slug != "data-science" {
		t.Fatalf("slug = %q", category.Slug)
	}

	resp = admin.post("/v1/admin/courses", map[string]any{
		"title":       "Intro to Go",
		"category_id": category.ID,
		"price_cents": 4900,
		"published":   true,
	})
	expectStatus(t, resp, http.StatusCreated)
	course := decode[catalog.Course](t, resp)
	if course.Currency != "USD" {
		t.Fatalf("currency = %q, want settings default", course.Currency)
	}

	resp = admin.post("/v1/admin/courses", map[string]any{"title": "Draft", "price_cents": 100})
	expectStatus(t, resp, http.StatusCreated)
	draft := decode[catalog.Course](t, resp)

	anon := env.client(t)
	list := decode[listResponse[catalog.Course]](t, anon.get("/v1/courses?category="+category.ID))
	if list.Total != 1 || list.Items[0].ID != course.ID {
		t.Fatalf("unexpected public list %+v", list)
	}
	expectError(t, anon.get("/v1/courses/"+draft.ID), http.StatusNotFound, "not_found")
	expectError(t, anon.get("/v1/courses?limit=500"), http.StatusBadRequest, "invalid_input")
	expectError(t, anon.get("/v1/courses?sort=price"), http.StatusBadRequest, "invalid_input")

	learner := env.register(t, "learner@example.com")
	expectError(t, learner.post("/v1/checkout/confirm", map[string]string{"payment_reference": "pi_1"}),
		http.StatusBadRequest, "invalid_input")
	expectError(t, learner.post("/v1/cart/items", map[string]string{"course_id": draft.ID}),
		http.StatusNotFound, "not_found")

	cart := decode[cartResponse](t, learner.post("/v1/cart/items", map[string]string{"course_id": course.ID}))
	if len(cart.Items) != 1 || cart.TotalCents != 4900 {
		t.Fatalf("unexpected cart %+v", cart)
	}

	resp = learner.post("/v1/checkout/confirm", map[string]string{"payment_reference": "pi_1"})
	expectStatus(t, resp, http.StatusCreated)
	order := decode[commerce.Order](t, resp)
	if order.TotalCents != 4900 || len(order.Items) != 1 {
		t.Fatalf("unexpected order %+v", order)
	}

	cart = decode[cartResponse](t, learner.get("/v1/cart"))
	if len(cart.Items) != 0 {
		t.Fatalf("cart not cleared after checkout: %+v", cart)
	}

	enrollments := decode[struct {
		Items []commerce.Enrollment `json:"items"`
	}](t, learner.get("/v1/enrollments"))
	if len(enrollments.Items) != 1 || enrollments.Items[0].CourseID != course.ID {
		t.Fatalf("unexpected enrollments %+v", enrollments)
	}

	orders := decode[listResponse[commerce.Order]](t, learner.get("/v1/orders"))
	if orders.Total != 1 {
		t.Fatalf("orders total = %d", orders.Total)
	}

	expectError(t, learner.post("/v1/cart/items", map[string]string{"course_id": course.ID}),
		http.StatusConflict, "conflict")

	// the same payment cannot be recorded twice
	resp = admin.post("/v1/admin/courses", map[string]any{"title": "Advanced Go", "price_cents": 9900, "published": true})
	expectStatus(t, resp, http.StatusCreated)
	second := decode[catalog.Course](t, resp)
	expectStatus(t, learner.post("/v1/cart/items", map[string]string{"course_id": second.ID}), http.StatusOK)
	expectError(t, learner.post("/v1/checkout/confirm", map[string]string{"payment_reference": "pi_1"}),
		http.StatusConflict, "conflict")

	all := decode[listResponse[commerce.Order]](t, admin.get("/v1/admin/orders"))
	if all.Total != 1 {
		t.Fatalf("admin orders total = %d", all.Total)
	}

	logs := decode[listResponse[audit.Entry]](t, admin.get("/v1/admin/audit-logs?action=commerce.checkout.confirm"))
	if logs.Total != 1 {
		t.Fatalf("checkout audit entries = %d", logs.Total)
	}
}

func TestRoleUpdateRevokesSessions(t *testing.T) {
	env := newTestAPI(t)
	admin := env.adminClient(t, "admin@example.com", auth.RoleAdmin)
	learner := env.register(t, "learner@example.com")
	target := decode[meResponse](t, learner.get("/v1/auth/me"))

	resp := admin.put("/v1/admin/users/"+target.ID+"/roles", map[string]any{"roles": []string{"user", "staff"}})
	expectStatus(t, resp, http.StatusOK)
	updated := decode[auth.Identity](t, resp)
	if len(updated.Roles) != 2 {
		t.Fatalf("roles = %v", updated.Roles)
	}

	expectError(t, learner.get("/v1/auth/me"), http.StatusUnauthorized, "unauthenticated")

	// an admin cannot grant above its own rank
	expectError(t, admin.put("/v1/admin/users/"+target.ID+"/roles", map[string]any{"roles": []string{"super_admin"}}),
		http.StatusForbidden, "forbidden")
	expectError(t, admin.put("/v1/admin/users/"+target.ID+"/roles", map[string]any{"roles": []string{"wizard"}}),
		http.StatusBadRequest, "invalid_input")
}

func TestAdminCannotDeleteHigherRankOrSelf(t *testing.T) {
	env := newTestAPI(t)
	admin := env.adminClient(t, "admin@example.com", auth.RoleAdmin)
	root := env.register(t, "root@example.com")
	rootID := decode[meResponse](t, root.get("/v1/auth/me")).ID
	env.promote(t, "root@example.com", auth.RoleSuperAdmin)

	expectError(t, admin.delete("/v1/admin/users/"+rootID), http.StatusForbidden, "forbidden")

	self := decode[meResponse](t, admin.get("/v1/admin/auth/me"))
	expectError(t, admin.delete("/v1/admin/users/"+self.ID), http.StatusBadRequest, "invalid_input")

	learner := env.register(t, "learner@example.com")
	learnerID := decode[meResponse](t, learner.get("/v1/auth/me")).ID
	expectStatus(t, admin.delete("/v1/admin/users/"+learnerID), http.StatusNoContent)
	expectError(t, learner.get("/v1/auth/me"), http.StatusUnauthorized, "unauthenticated")
	expectError(t, admin.get("/v1/admin/users/"+learnerID), http.StatusNotFound, "not_found")
}

func TestRegistrationClosedBySettings(t *testing.T) {
	env := newTestAPI(t)
	admin := env.adminClient(t, "admin@example.com", auth.RoleAdmin)

	cur := decode[settings.Settings](t, admin.get("/v1/admin/settings"))
	req := map[string]any{
		"site_name":           cur.SiteName,
		"support_email":       cur.SupportEmail,
		"currency":            cur.Currency,
		"maintenance_mode":    false,
		"allow_registration":  false,
		"max_cart_items":      cur.MaxCartItems,
		"featured_course_ids": []string{},
	}
	saved := decode[settings.Settings](t, admin.put("/v1/admin/settings", req))
	if saved.AllowRegistration || saved.UpdatedBy != "admin@example.com" {
		t.Fatalf("unexpected saved settings %+v", saved)
	}

	expectError(t, env.client(t).post("/v1/auth/register", map[string]string{"email": "late@example.com", "password": testPassword}),
		http.StatusForbidden, "forbidden")

	req["currency"] = "dollars"
	expectError(t, admin.put("/v1/admin/settings", req), http.StatusBadRequest, "invalid_input")
}

func TestStrictBodies(t *testing.T) {
	env := newTestAPI(t)
	c := env.client(t)

	resp := c.post("/v1/auth/register", map[string]any{"email": "x@example.com", "password": testPassword, "role": "admin"})
	expectError(t, resp, http.StatusBadRequest, "invalid_input")

	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/v1/auth/login", strings.NewReader(`{"email":"x@example.com"}{"password":"x"}`))
	raw, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer raw.Body.Close()
	expectError(t, raw, http.StatusBadRequest, "invalid_input")
}

func TestHeartbeatRefreshesLastLogin(t *testing.T) {
	env := newTestAPI(t)
	c := env.register(t, "beat@example.com")
	before := decode[meResponse](t, c.get("/v1/auth/me"))

	resp := c.post("/v1/auth/heartbeat", nil)
	expectStatus(t, resp, http.StatusOK)
	hb := decode[heartbeatResponse](t, resp)
	if hb.LastLogin.Before(before.Session.LastLogin) {
		t.Fatalf("last_login moved backwards: %v < %v", hb.LastLogin, before.Session.LastLogin)
	}
	if !hb.ExpiresAt.Equal(before.Session.ExpiresAt) {
		t.Fatalf("heartbeat must not extend expiry: %v != %v", hb.ExpiresAt, before.Session.ExpiresAt)
	}

	expectError(t, env.client(t).post("/v1/auth/heartbeat", nil), http.StatusUnauthorized, "unauthenticated")
}

func TestExternalLoginDisabled(t *testing.T) {
	env := newTestAPI(t)
	expectError(t, env.client(t).post("/v1/auth/external", map[string]string{"id_token": "x"}),
		http.StatusNotFound, "not_found")
}

func settingsRequest(cur settings.Settings) map[string]any {
	return map[string]any{
		"site_name":           cur.SiteName,
		"support_email":       cur.SupportEmail,
		"currency":            cur.Currency,
		"maintenance_mode":    cur.MaintenanceMode,
		"allow_registration":  cur.AllowRegistration,
		"max_cart_items":      cur.MaxCartItems,
		"featured_course_ids": cur.FeaturedCourseIDs,
	}
}

func (e *testEnv) publishCourse(t *testing.T, admin *apiClient, title string, published bool) catalog.Course {
	t.Helper()
	resp := admin.post("/v1/admin/courses", map[string]any{"title": title, "price_cents": 1500, "published": published})
	expectStatus(t, resp, http.StatusCreated)
	return decode[catalog.Course](t, resp)
}

func TestMaintenanceModeBlocksLearnerWrites(t *testing.T) {
	env := newTestAPI(t)
	admin := env.adminClient(t, "admin@example.com", auth.RoleAdmin)
	course := env.publishCourse(t, admin, "Intro to Go", true)
	learner := env.register(t, "learner@example.com")

	req := settingsRequest(decode[settings.Settings](t, admin.get("/v1/admin/settings")))
	req["maintenance_mode"] = true
	expectStatus(t, admin.put("/v1/admin/settings", req), http.StatusOK)

	resp := env.client(t).post("/v1/auth/register", map[string]string{"email": "late@example.com", "password": testPassword})
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("maintenance response without Retry-After")
	}
	expectError(t, resp, http.StatusServiceUnavailable, "unavailable")
	expectError(t, learner.post("/v1/cart/items", map[string]string{"course_id": course.ID}),
		http.StatusServiceUnavailable, "unavailable")
	expectError(t, learner.delete("/v1/cart/items/"+course.ID), http.StatusServiceUnavailable, "unavailable")
	expectError(t, learner.post("/v1/checkout/confirm", map[string]string{"payment_reference": "pi_1"}),
		http.StatusServiceUnavailable, "unavailable")

	// reads and the back office keep working
	expectStatus(t, learner.get("/v1/auth/me"), http.StatusOK)
	expectStatus(t, env.client(t).get("/v1/courses"), http.StatusOK)
	env.publishCourse(t, admin, "Advanced Go", true)

	// the guard still runs first
	expectError(t, env.client(t).post("/v1/cart/items", map[string]string{"course_id": course.ID}),
		http.StatusUnauthorized, "unauthenticated")

	req["maintenance_mode"] = false
	expectStatus(t, admin.put("/v1/admin/settings", req), http.StatusOK)
	expectStatus(t, learner.post("/v1/cart/items", map[string]string{"course_id": course.ID}), http.StatusOK)
}

func TestFeaturedCourses(t *testing.T) {
	env := newTestAPI(t)
	admin := env.adminClient(t, "admin@example.com", auth.RoleAdmin)
	first := env.publishCourse(t, admin, "Intro to Go", true)
	second := env.publishCourse(t, admin, "Advanced Go", true)
	draft := env.publishCourse(t, admin, "Draft", false)

	req := settingsRequest(decode[settings.Settings](t, admin.get("/v1/admin/settings")))
	req["featured_course_ids"] = []string{second.ID, "crs_missing"}
	expectError(t, admin.put("/v1/admin/settings", req), http.StatusBadRequest, "invalid_input")

	req["featured_course_ids"] = []string{second.ID, draft.ID, first.ID}
	saved := decode[settings.Settings](t, admin.put("/v1/admin/settings", req))
	if len(saved.FeaturedCourseIDs) != 3 {
		t.Fatalf("featured ids = %v", saved.FeaturedCourseIDs)
	}

	anon := env.client(t)
	featured := decode[listResponse[catalog.Course]](t, anon.get("/v1/courses?featured=true"))
	if featured.Total != 2 || featured.Items[0].ID != second.ID || featured.Items[1].ID != first.ID {
		t.Fatalf("unexpected featured list %+v", featured)
	}

	all := decode[listResponse[catalog.Course]](t, anon.get("/v1/courses?featured=false"))
	if all.Total != 2 {
		t.Fatalf("featured=false should list every published course, got %d", all.Total)
	}
	expectError(t, anon.get("/v1/courses?featured=true&limit=5"), http.StatusBadRequest, "invalid_input")
	expectError(t, anon.get("/v1/courses?featured=maybe"), http.StatusBadRequest, "invalid_input")
}
