package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/store/memory"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin-password-1"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	store   *memory.Store
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, auth.Bootstrap(ctx, store, auth.BootstrapOptions{
		AdminEmail:    adminEmail,
		AdminPassword: adminPassword,
	}))
	svc, err := auth.NewService(store, auth.TokenConfig{
		Secret:   []byte("0123456789abcdef0123456789abcdef"),
		Issuer:   "gatehouse-test",
		Audience: "gatehouse-test",
	})
	require.NoError(t, err)

	api := New(svc, Options{Version: "test", RateBurst: 100, RatePerSec: 100})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		store:   store,
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, token string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodPost, path, body, token)
}

func (c *apiClient) get(path, token string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodGet, path, nil, token)
}

func (c *apiClient) login(email, password string) auth.AuthResult {
	c.t.Helper()
	resp := c.post("/v1/auth/login", map[string]string{"email": email, "password": password}, "")
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected login status: %d", resp.StatusCode)
	}
	res := decode[auth.AuthResult](c.t, resp)
	if res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		c.t.Fatalf("empty tokens issued")
	}
	return res
}

func (c *apiClient) register(email, password string) auth.AuthResult {
	c.t.Helper()
	resp := c.post("/v1/auth/register", map[string]string{
		"email":      email,
		"password":   password,
		"first_name": "Test",
		"last_name":  "User",
	}, "")
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("unexpected register status: %d", resp.StatusCode)
	}
	return decode[auth.AuthResult](c.t, resp)
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	resp := api.get("/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "test", body["version"])
}

func TestReadyWithoutDependencies(t *testing.T) {
	api := newTestAPI(t)
	resp := api.get("/readyz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ready", decode[map[string]any](t, resp)["status"])
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return context.DeadlineExceeded }

func TestReadyReportsFailingDependency(t *testing.T) {
	svc, err := auth.NewService(memory.New(), auth.TokenConfig{Secret: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)
	api := New(svc, Options{Ready: ReadyProbe{Redis: failingPinger{}}})

	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestAuthFlow(t *testing.T) {
	api := newTestAPI(t)

	reg := api.register("Alice@Example.com", "correct-horse")
	require.Equal(t, "alice@example.com", reg.User.Email)
	require.Equal(t, []string{auth.RoleUser}, reg.User.Roles)

	resp := api.get("/v1/users/me", reg.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[auth.UserView](t, resp)
	require.Equal(t, reg.User.ID, me.ID)

	login := api.login("alice@example.com", "correct-horse")

	resp = api.post("/v1/auth/refresh", map[string]string{
		"access_token":  login.Tokens.AccessToken,
		"refresh_token": login.Tokens.RefreshToken,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := decode[auth.AuthResult](t, resp)
	require.NotEqual(t, login.Tokens.RefreshToken, rotated.Tokens.RefreshToken)

	// the consumed refresh token is dead
	resp = api.post("/v1/auth/refresh", map[string]string{
		"access_token":  login.Tokens.AccessToken,
		"refresh_token": login.Tokens.RefreshToken,
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	require.Equal(t, auth.ReasonInvalidRefreshToken, body["error"])
	require.NotEmpty(t, body["request_id"])

	resp = api.post("/v1/auth/logout", map[string]string{"refresh_token": rotated.Tokens.RefreshToken}, rotated.Tokens.AccessToken)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = api.post("/v1/auth/refresh", map[string]string{
		"access_token":  rotated.Tokens.AccessToken,
		"refresh_token": rotated.Tokens.RefreshToken,
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestRefreshAcceptsHeaderToken(t *testing.T) {
	api := newTestAPI(t)
	reg := api.register("bob@example.com", "correct-horse")

	resp := api.post("/v1/auth/refresh", map[string]string{"refresh_token": reg.Tokens.RefreshToken}, reg.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = api.post("/v1/auth/refresh", map[string]string{"refresh_token": reg.Tokens.RefreshToken}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestRegisterErrors(t *testing.T) {
	api := newTestAPI(t)
	api.register("carol@example.com", "correct-horse")

	cases := []struct {
		name string
		body any
		want int
	}{
		{"duplicate", map[string]string{"email": "CAROL@example.com", "password": "correct-horse"}, http.StatusConflict},
		{"short password", map[string]string{"email": "dave@example.com", "password": "short"}, http.StatusBadRequest},
		{"bad email", map[string]string{"email": "not-an-email", "password": "correct-horse"}, http.StatusBadRequest},
		{"unknown field", map[string]string{"email": "erin@example.com", "password": "correct-horse", "role": "Admin"}, http.StatusBadRequest},
		{"empty body", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := api.post("/v1/auth/register", tc.body, "")
			defer resp.Body.Close()
			require.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	api := newTestAPI(t)
	api.register("frank@example.com", "correct-horse")

	wrong := api.post("/v1/auth/login", map[string]string{"email": "frank@example.com", "password": "wrong-horse"}, "")
	unknown := api.post("/v1/auth/login", map[string]string{"email": "nobody@example.com", "password": "wrong-horse"}, "")
	require.Equal(t, http.StatusUnauthorized, wrong.StatusCode)
	require.Equal(t, http.StatusUnauthorized, unknown.StatusCode)
	require.Equal(t, decode[map[string]any](t, wrong)["error"], decode[map[string]any](t, unknown)["error"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/v1/users/me", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
	resp.Body.Close()

	resp = api.get("/v1/users/me", "not-a-jwt")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = api.post("/v1/auth/logout", map[string]string{"refresh_token": "x"}, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestRBACRoutes(t *testing.T) {
	api := newTestAPI(t)
	user := api.register("grace@example.com", "correct-horse")
	admin := api.login(adminEmail, adminPassword)

	// ordinary users cannot manage roles
	resp := api.get("/v1/roles", user.Tokens.AccessToken)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = api.post("/v1/roles", map[string]any{
		"name":        "Auditor",
		"description": "Reads users",
		"permissions": []string{auth.PermUsersRead},
	}, admin.Tokens.AccessToken)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	role := decode[auth.RoleDetail](t, resp)
	require.Equal(t, []string{auth.PermUsersRead}, role.Permissions)

	resp = api.post("/v1/roles", map[string]any{"name": "Auditor"}, admin.Tokens.AccessToken)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodPut, "/v1/users/"+user.User.ID+"/roles", map[string]any{
		"roles": []string{auth.RoleUser, "Auditor"},
	}, admin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[auth.UserView](t, resp)
	require.ElementsMatch(t, []string{auth.RoleUser, "Auditor"}, view.Roles)

	resp = api.get("/v1/roles/by-name/Auditor/users", admin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[listResponse[auth.UserView]](t, resp)
	require.Len(t, list.Items, 1)
	require.Equal(t, user.User.ID, list.Items[0].ID)

	// assigned roles cannot be deleted
	resp = api.do(http.MethodDelete, "/v1/roles/"+role.ID, nil, admin.Tokens.AccessToken)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = api.get("/v1/permissions", admin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	perms := decode[listResponse[auth.Permission]](t, resp)
	require.Len(t, perms.Items, len(auth.BuiltinPermissions))
}

func TestGetUserSelfOrReader(t *testing.T) {
	api := newTestAPI(t)
	a := api.register("heidi@example.com", "correct-horse")
	b := api.register("ivan@example.com", "correct-horse")
	admin := api.login(adminEmail, adminPassword)

	resp := api.get("/v1/users/"+a.User.ID, a.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = api.get("/v1/users/"+b.User.ID, a.Tokens.AccessToken)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = api.get("/v1/users/"+b.User.ID, admin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestDeactivatedUserCannotRefresh(t *testing.T) {
	api := newTestAPI(t)
	user := api.register("judy@example.com", "correct-horse")
	admin := api.login(adminEmail, adminPassword)

	resp := api.do(http.MethodPut, "/v1/users/"+user.User.ID+"/status", map[string]any{"active": false}, admin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, decode[auth.UserView](t, resp).Active)

	resp = api.post("/v1/auth/refresh", map[string]string{
		"access_token":  user.Tokens.AccessToken,
		"refresh_token": user.Tokens.RefreshToken,
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = api.do(http.MethodPut, "/v1/users/"+user.User.ID+"/status", map[string]any{}, admin.Tokens.AccessToken)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI(t)
	resp := api.get("/v1/nope", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
