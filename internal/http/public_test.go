package handlers_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starterkit/internal/apperr"
	"starterkit/internal/domain"
	"starterkit/internal/services"
)

func TestContactSubmission(t *testing.T) {
	env := newEnv(t, nil)
	cl := env.client(t)
	cl.fetchCSRF()

	resp := cl.do(http.MethodPost, "/api/v1/contact", map[string]string{
		"name": "Hank", "email": "hank@example.com", "subject": "Hi", "message": "I would like to know more.",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "accepted", decode(t, resp)["status"])
	require.Len(t, env.mailer.Sent(), 1)
	assert.Equal(t, "owner@example.com", env.mailer.Sent()[0].To)

	// Bots filling the hidden field get the same answer and nothing is stored.
	resp = cl.do(http.MethodPost, "/api/v1/contact", map[string]string{
		"name": "Bot", "email": "bot@example.com", "message": "Buy cheap things now!", "website": "http://spam.example",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "accepted", decode(t, resp)["status"])
	assert.Len(t, env.entries("contact.honeypot"), 1)

	var n int
	require.NoError(t, env.db.Get(&n, `SELECT COUNT(*) FROM contact_submissions`))
	assert.Equal(t, 1, n)

	var ipHash string
	require.NoError(t, env.db.Get(&ipHash, `SELECT ip_hash FROM contact_submissions`))
	assert.NotEmpty(t, ipHash)
	assert.NotContains(t, ipHash, ".")

	resp = cl.do(http.MethodPost, "/api/v1/contact", map[string]string{
		"name": "Hank", "email": "hank@example.com", "message": "One more time please.",
	})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestContactValidation(t *testing.T) {
	env := newEnv(t, nil)
	cl := env.client(t)
	cl.fetchCSRF()

	resp := cl.do(http.MethodPost, "/api/v1/contact", map[string]string{
		"name": "Ivy", "email": "not-an-email", "message": "short",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode(t, resp)["error"].(map[string]any)
	assert.Equal(t, apperr.CodeValidation, body["code"])
	fields := body["fields"].([]any)
	assert.Len(t, fields, 2)
	assert.Empty(t, env.mailer.Sent())
}

func TestConsentCookie(t *testing.T) {
	env := newEnv(t, nil)
	cl := env.client(t)

	resp := cl.do(http.MethodGet, "/api/v1/consent", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cons := decode(t, resp)["consent"].(map[string]any)
	assert.Equal(t, false, cons["given"])

	cl.fetchCSRF()
	resp = cl.do(http.MethodPost, "/api/v1/consent", map[string]bool{"analytics": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cookie := extractCookie(resp, services.ConsentCookie)
	require.NotNil(t, cookie)
	assert.False(t, cookie.HttpOnly)
	assert.True(t, strings.HasPrefix(cookie.Value, "v1.100."), cookie.Value)
	assert.Equal(t, []any{domain.ConsentNecessary, domain.ConsentAnalytics}, decode(t, resp)["categories"])

	resp = cl.do(http.MethodGet, "/api/v1/consent", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cons = decode(t, resp)["consent"].(map[string]any)
	assert.Equal(t, true, cons["given"])
	assert.Equal(t, true, cons["analytics"])
	assert.Equal(t, false, cons["marketing"])

	var n int
	require.NoError(t, env.db.Get(&n, `SELECT COUNT(*) FROM consent_records`))
	assert.Equal(t, 1, n)
}

func TestCSPReportEndpoint(t *testing.T) {
	env := newEnv(t, nil)
	cl := env.client(t)

	resp := cl.send(http.MethodPost, "/api/v1/csp-report", strings.NewReader(`{"csp-report":{
		"document-uri":"https://app.example/page",
		"violated-directive":"script-src-elem",
		"blocked-uri":"https://evil.example/x.js",
		"original-policy":"default-src 'self'"}}`), "application/csp-report")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = cl.send(http.MethodPost, "/api/v1/csp-report", strings.NewReader(`[{"type":"csp-violation","body":{
		"documentURL":"https://app.example/","effectiveDirective":"img-src","blockedURL":"data"}}]`), "application/reports+json")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = cl.send(http.MethodPost, "/api/v1/csp-report", strings.NewReader(`not json`), "application/csp-report")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	reports := env.entries("csp.violation")
	require.Len(t, reports, 2)
	first := reports[0].ContextMap()["fields"].(map[string]any)
	assert.Equal(t, "script-src-elem", first["violated-directive"])
	assert.NotContains(t, first, "original-policy")
	second := reports[1].ContextMap()["fields"].(map[string]any)
	assert.Equal(t, "img-src", second["effectiveDirective"])
}

func TestSecurityHeadersAndHealth(t *testing.T) {
	env := newEnv(t, nil)
	cl := env.client(t)

	resp := cl.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	csp := resp.Header.Get("Content-Security-Policy")
	assert.Contains(t, csp, "default-src 'self'")
	assert.Contains(t, csp, "'nonce-")
	assert.Contains(t, csp, "report-uri /api/v1/csp-report")
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Frame-Options"))
	assert.Empty(t, resp.Header.Get("Strict-Transport-Security"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	other := cl.do(http.MethodGet, "/healthz", nil)
	assert.NotEqual(t, csp, other.Header.Get("Content-Security-Policy"), "nonce must change per response")

	assert.Equal(t, http.StatusOK, cl.do(http.MethodGet, "/readyz", nil).StatusCode)

	resp = cl.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readAll(t, resp), "http_requests_total")
}

func TestReadyzReportsDatabaseDown(t *testing.T) {
	env := newEnv(t, nil)
	require.NoError(t, env.db.Close())

	resp := env.client(t).do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, apperr.CodeUnavailable, errorCode(t, resp))
}

func TestNotFoundEnvelope(t *testing.T) {
	env := newEnv(t, nil)
	resp := env.client(t).do(http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decode(t, resp)["error"].(map[string]any)
	assert.Equal(t, apperr.CodeNotFound, body["code"])
	assert.Equal(t, "Resource not found", body["message"])
}

func TestMalformedBody(t *testing.T) {
	env := newEnv(t, nil)
	cl := env.client(t)
	cl.fetchCSRF()
	resp := cl.send(http.MethodPost, "/api/v1/auth/register", strings.NewReader(`{"email":`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, apperr.CodeBadRequest, errorCode(t, resp))
}

func TestFlagEvaluation(t *testing.T) {
	env := newEnv(t, nil)
	resp := env.client(t).do(http.MethodGet, "/api/v1/flags", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	flags := decode(t, resp)["flags"].(map[string]any)
	assert.Equal(t, true, flags["signup"])
	assert.Equal(t, true, flags["uploads"])
}

// The access log records the path only; query strings can carry tokens.
func TestAccessLogOmitsQuery(t *testing.T) {
	env := newEnv(t, nil)
	cl := env.client(t)
	resp := cl.do(http.MethodGet, "/api/v1/invitations/verify?token=abcdefghijklmnopqrstuvwxyz0123456789ABCDEFG", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	access := env.entries("http.access")
	require.NotEmpty(t, access)
	last := access[len(access)-1]
	assert.Equal(t, "/api/v1/invitations/verify", fieldString(last, "path"))
	assert.EqualValues(t, http.StatusBadRequest, last.ContextMap()["status"])
	assert.Contains(t, last.ContextMap()["fields"], "latency_ms")
	for _, e := range env.logs.All() {
		for _, v := range e.ContextMap() {
			if s, ok := v.(string); ok {
				assert.False(t, containsAny(s, "abcdefghijklmnop"), s)
			}
		}
	}
}
