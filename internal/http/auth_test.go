package handlers_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starterkit/internal/apperr"
	"starterkit/internal/domain"
)

// Login succeeds, fails with one generic message and is throttled per client.
func TestLoginSuccessFailAndThrottle(t *testing.T) {
	env := newEnv(t, nil)
	env.createUser(t, "alice@example.com", domain.RoleUser)
	cl := env.client(t)

	resp := cl.login("alice@example.com", "wrong-Passw0rd")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	badPw := decode(t, resp)

	resp = cl.login("nobody@example.com", testPassword)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	unknown := decode(t, resp)
	assert.Equal(t, badPw, unknown, "unknown email and bad password must look the same")

	resp = cl.login("alice@example.com", testPassword)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sid := extractCookie(resp, "sid")
	require.NotNil(t, sid)
	assert.True(t, sid.HttpOnly)
	assert.NotEmpty(t, sid.Value)

	resp = cl.login("alice@example.com", testPassword)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, apperr.CodeRateLimited, errorCode(t, resp))

	fails := env.entries("auth.login.fail")
	require.Len(t, fails, 2)
	for _, e := range fails {
		assert.Equal(t, "security", fieldString(e, "category"))
		fields := e.ContextMap()["fields"].(map[string]any)
		assert.NotContains(t, fields["email"], "alice@")
		assert.NotContains(t, fields["email"], "nobody@")
	}
	require.Len(t, env.entries("auth.login.success"), 1)
}

func TestLoginRotatesSession(t *testing.T) {
	env := newEnv(t, nil)
	env.createUser(t, "bob@example.com", domain.RoleUser)
	cl := env.client(t)

	resp := cl.login("bob@example.com", testPassword)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := cl.cookies["sid"]

	resp = cl.login("bob@example.com", testPassword)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := cl.cookies["sid"]
	assert.NotEqual(t, first, second)

	// The old session id no longer authenticates.
	stale := env.client(t)
	stale.cookies["sid"] = first
	resp = stale.do(http.MethodGet, "/api/v1/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = cl.do(http.MethodGet, "/api/v1/auth/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := decode(t, resp)["user"].(map[string]any)
	assert.Equal(t, "bob@example.com", user["email"])
	assert.NotContains(t, user, "password_hash")
}

func TestLogoutEndsSession(t *testing.T) {
	env := newEnv(t, nil)
	env.createUser(t, "carol@example.com", domain.RoleUser)
	cl := env.client(t)
	require.Equal(t, http.StatusOK, cl.login("carol@example.com", testPassword).StatusCode)
	sid := cl.cookies["sid"]

	resp := cl.do(http.MethodPost, "/api/v1/auth/logout", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotContains(t, cl.cookies, "sid")

	replay := env.client(t)
	replay.cookies["sid"] = sid
	assert.Equal(t, http.StatusUnauthorized, replay.do(http.MethodGet, "/api/v1/auth/me", nil).StatusCode)
}

func TestRegisterAndSignupFlag(t *testing.T) {
	env := newEnv(t, nil)
	cl := env.client(t)
	cl.fetchCSRF()

	resp := cl.do(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": "dave@example.com", "name": "Dave", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode(t, resp)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, apperr.CodeValidation, errBody["code"])
	assert.NotEmpty(t, errBody["fields"])

	resp = cl.do(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": "dave@example.com", "name": "Dave", "password": testPassword,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, cl.cookies["sid"])

	// Closing signup from the admin API turns registration away.
	admin := env.createUser(t, "root@example.com", domain.RoleAdmin)
	ac := env.client(t)
	require.Equal(t, http.StatusOK, ac.login(admin.Email, testPassword).StatusCode)
	resp = ac.do(http.MethodPut, "/api/v1/admin/flags/signup", map[string]any{
		"description": "Public self-service registration", "enabled": false, "rollout_percent": 100,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	other := env.client(t)
	other.fetchCSRF()
	resp = other.do(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": "erin@example.com", "name": "Erin", "password": testPassword,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Len(t, env.entries("auth.register.closed"), 1)
}

func TestChangePassword(t *testing.T) {
	env := newEnv(t, nil)
	env.createUser(t, "frank@example.com", domain.RoleUser)
	cl := env.client(t)
	require.Equal(t, http.StatusOK, cl.login("frank@example.com", testPassword).StatusCode)

	resp := cl.do(http.MethodPost, "/api/v1/auth/password", map[string]string{
		"current_password": "Wrong-passw0rd", "new_password": "An0ther-secret!",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = cl.do(http.MethodPost, "/api/v1/auth/password", map[string]string{
		"current_password": testPassword, "new_password": "An0ther-secret!",
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, http.StatusOK, cl.do(http.MethodGet, "/api/v1/auth/me", nil).StatusCode)

	fresh := env.client(t)
	assert.Equal(t, http.StatusOK, fresh.login("frank@example.com", "An0ther-secret!").StatusCode)
}

// Unsafe requests without the double-submit token are refused before any handler runs.
func TestCSRFRequired(t *testing.T) {
	env := newEnv(t, nil)
	env.createUser(t, "gina@example.com", domain.RoleUser)
	cl := env.client(t)

	resp := cl.do(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "gina@example.com", "password": testPassword,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, apperr.CodeForbidden, errorCode(t, resp))
	assert.Empty(t, env.entries("auth.login.success"))
	require.Len(t, env.entries("csrf.fail"), 1)

	// A header that does not match the cookie is rejected too.
	cl.fetchCSRF()
	cl.csrf = "forged"
	resp = cl.do(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "gina@example.com", "password": testPassword,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// CSP reports come from the browser itself and carry no token.
	anon := env.client(t)
	resp = anon.send(http.MethodPost, "/api/v1/csp-report",
		strings.NewReader(`{"csp-report":{"violated-directive":"script-src"}}`), "application/csp-report")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
