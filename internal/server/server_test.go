package server

import (
	"context"
	"html/template"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"armp/internal/config"
	"armp/internal/models"
	"armp/internal/testutil"
	"armp/internal/tokenstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "SecurePass1!"

func testConfig(apiURL string) *config.Config {
	return &config.Config{
		Port:               "0",
		APIBaseURL:         apiURL,
		APITimeoutSeconds:  5,
		SessionCookieName:  "armp_sid",
		SessionIdleMinutes: 60,
		TokenTTLHours:      24,
		AuthRateLimit:      10,
		Env:                "test",
	}
}

func newTestServer(t *testing.T, api *testutil.FakeAPI, rdb *redis.Client) *Server {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	s, err := NewServer(testConfig(api.URL()), rdb)
	require.NoError(t, err)
	return s
}

// browser replays the session cookie across requests.
type browser struct {
	t   *testing.T
	app *fiber.App
	sid string
}

func newBrowser(t *testing.T, s *Server) *browser {
	return &browser{t: t, app: s.App()}
}

func (b *browser) do(method, path string, form url.Values) (*http.Response, string) {
	b.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	}
	req.Header.Set(fiber.HeaderAccept, fiber.MIMETextHTML)
	if b.sid != "" {
		req.AddCookie(&http.Cookie{Name: "armp_sid", Value: b.sid})
	}

	resp, err := b.app.Test(req, -1)
	require.NoError(b.t, err)
	for _, c := range resp.Cookies() {
		if c.Name == "armp_sid" {
			b.sid = c.Value
		}
	}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp, string(raw)
}

func (b *browser) get(path string) (*http.Response, string) {
	return b.do(fiber.MethodGet, path, nil)
}

func (b *browser) post(path string, form url.Values) (*http.Response, string) {
	if form == nil {
		form = url.Values{}
	}
	return b.do(fiber.MethodPost, path, form)
}

func (b *browser) login(user models.User) {
	b.t.Helper()
	resp, _ := b.post("/login", url.Values{"email": {user.Email}, "password": {testPassword}})
	require.Equal(b.t, fiber.StatusSeeOther, resp.StatusCode)
}

func assertRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, location, resp.Header.Get(fiber.HeaderLocation))
}

func TestUnknownPathsRedirectToLogin(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	b := newBrowser(t, newTestServer(t, api, nil))

	for _, path := range []string{"/", "/nope", "/requester/unknown"} {
		resp, _ := b.get(path)
		assertRedirect(t, resp, "/login")
	}
}

func TestLoginRedirectsToRoleDashboard(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	s := newTestServer(t, api, nil)

	requester := api.AddUser(models.RoleRequester, testPassword)
	approver := api.AddUser(models.RoleApprover, testPassword)

	rb := newBrowser(t, s)
	resp, _ := rb.post("/login", url.Values{"email": {requester.Email}, "password": {testPassword}})
	assertRedirect(t, resp, "/requester")
	require.NotEmpty(t, rb.sid)

	resp, body := rb.get("/requester")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "My Access Requests")
	assert.Contains(t, body, template.HTMLEscapeString(requester.Name))

	// Guest pages forward a signed-in user home.
	resp, _ = rb.get("/login")
	assertRedirect(t, resp, "/requester")

	ab := newBrowser(t, s)
	resp, _ = ab.post("/login", url.Values{"email": {approver.Email}, "password": {testPassword}})
	assertRedirect(t, resp, "/approver")
}

func TestLoginValidationNeverCallsAPI(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	b := newBrowser(t, newTestServer(t, api, nil))

	resp, body := b.post("/login", url.Values{"email": {"nope"}, "password": {"short"}})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Please enter a valid email address")
	assert.Contains(t, body, "Password must be at least 8 characters")
	assert.Empty(t, api.CallsTo(http.MethodPost, "/auth/login"))
}

func TestLoginFailureShowsServerMessage(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	b := newBrowser(t, newTestServer(t, api, nil))
	user := api.AddUser(models.RoleRequester, testPassword)

	resp, body := b.post("/login", url.Values{"email": {user.Email}, "password": {"WrongPass1!"}})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Invalid email or password")
	assert.NotContains(t, body, "WrongPass1!")

	resp, _ = b.get("/requester")
	assertRedirect(t, resp, "/login")
}

func TestRegisterSignsInWithoutRole(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	b := newBrowser(t, newTestServer(t, api, nil))

	resp, _ := b.post("/register", url.Values{
		"name":            {"Jane Doe"},
		"email":           {"jane@example.com"},
		"password":        {testPassword},
		"confirmPassword": {testPassword},
	})
	assertRedirect(t, resp, "/requester")

	calls := api.CallsTo(http.MethodPost, "/auth/register")
	require.Len(t, calls, 1)
	assert.NotContains(t, calls[0].Body, `"role"`)
}

func TestRegisterValidation(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	b := newBrowser(t, newTestServer(t, api, nil))

	resp, body := b.post("/register", url.Values{
		"name":            {"J"},
		"email":           {"jane@example.com"},
		"password":        {testPassword},
		"confirmPassword": {"Different1!"},
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Name must be at least 2 characters")
	assert.Contains(t, body, "Passwords do not match")
	assert.Empty(t, api.CallsTo(http.MethodPost, "/auth/register"))
}

func TestRoleGuardRedirectsToLogin(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	b := newBrowser(t, newTestServer(t, api, nil))
	b.login(api.AddUser(models.RoleRequester, testPassword))

	resp, _ := b.get("/approver")
	assertRedirect(t, resp, "/login")
	resp, _ = b.post("/approver/requests/R1/approve", nil)
	assertRedirect(t, resp, "/login")
}

func TestRequesterSubmitFlow(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	b := newBrowser(t, newTestServer(t, api, nil))
	b.login(api.AddUser(models.RoleRequester, testPassword))

	resp, body := b.get("/requester")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "No requests yet")

	resp, _ = b.post("/requester/form/open", nil)
	assertRedirect(t, resp, "/requester")

	// Invalid input is re-rendered with field messages and values kept.
	resp, body = b.post("/requester/requests", url.Values{
		"accessType": {"GitHub Admin"},
		"reason":     {"too short"},
		"urgency":    {"HIGH"},
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Reason must be at least 10 characters")
	assert.Contains(t, body, "GitHub Admin")
	assert.Empty(t, api.CallsTo(http.MethodPost, "/access-requests"))

	api.ResetCalls()
	resp, _ = b.post("/requester/requests", url.Values{
		"accessType": {"GitHub Admin"},
		"reason":     {"Need to manage repositories"},
		"urgency":    {"HIGH"},
	})
	assertRedirect(t, resp, "/requester")

	creates := api.CallsTo(http.MethodPost, "/access-requests")
	require.Len(t, creates, 1)
	assert.JSONEq(t, `{"accessType":"GitHub Admin","reason":"Need to manage repositories","urgency":"HIGH"}`, creates[0].Body)
	assert.Len(t, api.CallsTo(http.MethodGet, "/access-requests/my"), 1)

	resp, body = b.get("/requester")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "You already have a pending request")
	assert.Contains(t, body, "GitHub Admin")

	// The form cannot be reopened while the request is pending.
	resp, _ = b.post("/requester/form/open", nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestRequesterSubmitFailureKeepsForm(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	b := newBrowser(t, newTestServer(t, api, nil))
	b.login(api.AddUser(models.RoleRequester, testPassword))
	b.get("/requester")
	b.post("/requester/form/open", nil)

	api.Fail(http.MethodPost, "/access-requests", http.StatusInternalServerError, "Database unavailable")
	resp, body := b.post("/requester/requests", url.Values{
		"accessType": {"VPN"},
		"reason":     {"Remote work setup"},
		"urgency":    {"LOW"},
	})
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, "Database unavailable")
	assert.Contains(t, body, "Remote work setup")
}

func TestApproverRejectFlow(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	b := newBrowser(t, newTestServer(t, api, nil))
	owner := api.AddUser(models.RoleRequester, testPassword)
	req := api.AddRequest(owner, models.StatusPending)
	b.login(api.AddUser(models.RoleApprover, testPassword))

	resp, body := b.get("/approver?status=PENDING")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, template.HTMLEscapeString(req.AccessType))
	assert.Contains(t, body, "/approver/requests/"+req.ID+"/approve")

	resp, _ = b.post("/approver/requests/"+req.ID+"/reject/open", nil)
	assertRedirect(t, resp, "/approver?status=PENDING")

	resp, body = b.post("/approver/requests/"+req.ID+"/reject", url.Values{"rejectionReason": {"no"}})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Rejection reason must be at least 5 characters")

	api.ResetCalls()
	resp, _ = b.post("/approver/requests/"+req.ID+"/reject", url.Values{"rejectionReason": {"Not needed for this role"}})
	assertRedirect(t, resp, "/approver?status=PENDING")

	rejects := api.CallsTo(http.MethodPatch, "/access-requests/"+req.ID+"/reject")
	require.Len(t, rejects, 1)
	assert.JSONEq(t, `{"rejectionReason":"Not needed for this role"}`, rejects[0].Body)
	assert.Len(t, api.CallsTo(http.MethodGet, "/access-requests"), 1)
	assert.Len(t, api.CallsTo(http.MethodGet, "/access-requests/stats"), 1)

	stored, ok := api.Request(req.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusRejected, stored.Status)

	_, body = b.get("/approver?status=PENDING")
	assert.NotContains(t, body, "Confirm Rejection")
	assert.Contains(t, body, "No pending requests at the moment.")
}

func TestApproverApprove(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	b := newBrowser(t, newTestServer(t, api, nil))
	req := api.AddRequest(api.AddUser(models.RoleRequester, testPassword), models.StatusPending)
	b.login(api.AddUser(models.RoleApprover, testPassword))
	b.get("/approver")

	resp, _ := b.post("/approver/requests/"+req.ID+"/approve", nil)
	assertRedirect(t, resp, "/approver")

	stored, _ := api.Request(req.ID)
	assert.Equal(t, models.StatusApproved, stored.Status)

	// A second approval is refused by the API and shown as a banner.
	resp, body := b.post("/approver/requests/"+req.ID+"/approve", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Request has already been processed")
}

func TestApproverCreateApprover(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	b := newBrowser(t, newTestServer(t, api, nil))
	me := api.AddUser(models.RoleApprover, testPassword)
	b.login(me)
	b.get("/approver")

	resp, _ := b.post("/approver/approvers/open", nil)
	assertRedirect(t, resp, "/approver")

	resp, _ = b.post("/approver/approvers", url.Values{
		"name":            {"New Approver"},
		"email":           {"new.approver@example.com"},
		"password":        {testPassword},
		"confirmPassword": {testPassword},
	})
	assertRedirect(t, resp, "/approver")

	calls := api.CallsTo(http.MethodPost, "/auth/register")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Body, `"role":"APPROVER"`)

	// Still signed in as the original approver.
	_, body := b.get("/approver")
	assert.Contains(t, body, "Approver account created for new.approver@example.com")
	assert.Contains(t, body, template.HTMLEscapeString(me.Name))
}

func TestRevokedTokenSignsOut(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	b := newBrowser(t, newTestServer(t, api, nil))
	b.login(api.AddUser(models.RoleRequester, testPassword))

	api.RevokeTokens()
	resp, _ := b.get("/requester")
	assertRedirect(t, resp, "/login")

	resp, _ = b.get("/login")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestDashboardCallsCarryTokenAfterLogin(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	b := newBrowser(t, newTestServer(t, api, nil))
	b.login(api.AddUser(models.RoleRequester, testPassword))

	resp, body := b.get("/requester")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "Failed to load your requests")

	calls := api.CallsTo(http.MethodGet, "/access-requests/my")
	require.NotEmpty(t, calls)
	for _, c := range calls {
		assert.True(t, strings.HasPrefix(c.Authorization, "Bearer "), "missing bearer token: %q", c.Authorization)
	}
}

func TestRevokedTokenWithRedisClearsSession(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	api := testutil.NewFakeAPI(t)
	b := newBrowser(t, newTestServer(t, api, rdb))
	b.login(api.AddUser(models.RoleApprover, testPassword))
	require.True(t, mr.Exists(tokenstore.Key(b.sid)))

	resp, _ := b.get("/approver")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	api.RevokeTokens()
	resp, _ = b.get("/approver")
	assertRedirect(t, resp, "/login")
	assert.False(t, mr.Exists(tokenstore.Key(b.sid)))

	resp, _ = b.get("/approver")
	assertRedirect(t, resp, "/login")
	resp, _ = b.get("/login")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestLogoutAlwaysClears(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	b := newBrowser(t, newTestServer(t, api, nil))
	b.login(api.AddUser(models.RoleRequester, testPassword))

	api.Fail(http.MethodPost, "/auth/logout", http.StatusInternalServerError, "boom")
	resp, _ := b.post("/logout", nil)
	assertRedirect(t, resp, "/login")

	resp, _ = b.get("/requester")
	assertRedirect(t, resp, "/login")
}

func TestRedisTokensSurviveRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	api := testutil.NewFakeAPI(t)
	user := api.AddUser(models.RoleRequester, testPassword)

	first := newBrowser(t, newTestServer(t, api, rdb))
	first.login(user)
	assert.True(t, mr.Exists(tokenstore.Key(first.sid)))

	// A fresh server with the same Redis rehydrates the browser from its
	// cookie alone.
	second := newBrowser(t, newTestServer(t, api, rdb))
	second.sid = first.sid
	resp, body := second.get("/requester")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, template.HTMLEscapeString(user.Name))

	second.post("/logout", nil)
	assert.False(t, mr.Exists(tokenstore.Key(first.sid)))
}

func TestHealthEndpoints(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	s := newTestServer(t, api, nil)

	resp, err := s.App().Test(httptest.NewRequest(fiber.MethodGet, "/health/live", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = s.App().Test(httptest.NewRequest(fiber.MethodGet, "/health/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"degraded"`)
	// Probes never create browser sessions.
	assert.Empty(t, resp.Cookies())
	assert.Zero(t, s.sessions.Len())

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	withRedis := newTestServer(t, api, rdb)
	mr.Close()
	resp, err = withRedis.App().Test(httptest.NewRequest(fiber.MethodGet, "/health/ready", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestReadinessReportsFeatureFlags(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	cfg := testConfig(api.URL())
	cfg.FeatureFlags = "token_refresh=on, new_badges=25%"
	t.Setenv("APP_ENV", "test")
	s, err := NewServer(cfg, nil)
	require.NoError(t, err)

	resp, err := s.App().Test(httptest.NewRequest(fiber.MethodGet, "/health/ready", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"feature_flags":{"new_badges":"25%","token_refresh":"on"}`)
}

func TestShutdownClosesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	api := testutil.NewFakeAPI(t)
	s := newTestServer(t, api, rdb)

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Error(t, rdb.Ping(context.Background()).Err())
}
