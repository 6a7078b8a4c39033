package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"starterkit/internal/config"
	"starterkit/internal/domain"
	"starterkit/internal/http/handlers"
	applog "starterkit/internal/log"
	"starterkit/internal/mail"
	"starterkit/internal/metrics"
	"starterkit/internal/repos"
	"starterkit/internal/storage"
)

const testPassword = "Sup3r-secret!"

type captureMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.sent...)
}

type testEnv struct {
	app    *fiber.App
	deps   *handlers.Deps
	db     *sqlx.DB
	mailer *captureMailer
	logs   *observer.ObservedLogs
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	var cfg config.Config
	cfg.App = config.App{Name: "Starter", Env: "test", BaseURL: "http://localhost:8080"}
	cfg.DB = config.DB{Driver: "sqlite", DSN: ":memory:"}
	cfg.Security = config.Security{
		CSRFEnabled:  true,
		CSPReportURI: "/api/v1/csp-report",
		CSPNonce:     true,
	}
	cfg.RateLimit = config.RateLimit{
		GlobalMax: 1000, GlobalWindow: time.Minute,
		LoginMax: 3, LoginWindow: time.Minute,
		ContactMax: 2, ContactWindow: time.Minute,
		InviteMax: 20, InviteWindow: time.Minute,
		UploadMax: 20, UploadWindow: time.Minute,
		ReportMax: 5, ReportWindow: time.Minute,
	}
	cfg.Storage = config.Storage{Backend: "local", MediaDir: t.TempDir(), PublicPath: "/media/", MaxBytes: 1024}
	cfg.Mail = config.Mail{Backend: "log", ContactNotify: "owner@example.com"}
	cfg.Invite = config.Invite{TTL: 48 * time.Hour, PurgeInterval: time.Hour}
	cfg.Session = config.Session{TTL: time.Hour}
	cfg.Metrics = config.Metrics{Enabled: true}
	return cfg
}

// newEnv builds the full app on an in-memory database. mutate may adjust the
// config before anything is wired.
func newEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig(t)
	if mutate != nil {
		mutate(&cfg)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	prev := applog.L()
	applog.SetLogger(zap.New(core))
	t.Cleanup(func() { applog.SetLogger(prev) })

	db, err := repos.OpenDB(cfg.DB.Driver, cfg.DB.DSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := storage.NewLocalStore(cfg.Storage.MediaDir, cfg.Storage.PublicPath)
	require.NoError(t, err)

	m := &captureMailer{}
	deps, err := handlers.NewDeps(db, cfg, handlers.Options{
		Store:   store,
		Mailer:  m,
		Metrics: metrics.New(),
	})
	require.NoError(t, err)
	deps.Auth.Cost = bcrypt.MinCost

	app, err := handlers.NewApp(deps)
	require.NoError(t, err)
	return &testEnv{app: app, deps: deps, db: db, mailer: m, logs: logs}
}

// createUser registers an account directly through the service layer.
func (e *testEnv) createUser(t *testing.T, email, role string) *domain.User {
	t.Helper()
	ctx := context.Background()
	u, _, err := e.deps.Auth.Register(ctx, email, "Test User", testPassword)
	require.NoError(t, err)
	if role != domain.RoleUser {
		require.NoError(t, repos.NewUserRepo(e.db, repos.NewTxManager(e.db)).UpdateRole(ctx, u.ID, role))
		u.Role = role
	}
	return u
}

// entries returns the captured log entries with the given message.
func (e *testEnv) entries(action string) []observer.LoggedEntry {
	return e.logs.FilterMessage(action).All()
}

// client keeps cookies and the CSRF token between requests, like a browser tab.
type client struct {
	t       *testing.T
	app     *fiber.App
	cookies map[string]string
	csrf    string
}

func (e *testEnv) client(t *testing.T) *client {
	return &client{t: t, app: e.app, cookies: map[string]string{}}
}

// fetchCSRF primes the csrf cookie and remembers the token for unsafe methods.
func (cl *client) fetchCSRF() {
	cl.t.Helper()
	resp := cl.do(http.MethodGet, "/api/v1/csrf", nil)
	require.Equal(cl.t, http.StatusOK, resp.StatusCode)
	var body struct {
		Token string `json:"csrf_token"`
	}
	require.NoError(cl.t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(cl.t, body.Token)
	cl.csrf = body.Token
}

func (cl *client) do(method, path string, body any) *http.Response {
	cl.t.Helper()
	var r io.Reader
	ct := ""
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(cl.t, err)
		r = bytes.NewReader(raw)
		ct = fiber.MIMEApplicationJSON
	}
	return cl.send(method, path, r, ct)
}

func (cl *client) send(method, path string, body io.Reader, contentType string) *http.Response {
	cl.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(fiber.HeaderContentType, contentType)
	}
	if cl.csrf != "" {
		req.Header.Set("X-CSRF-Token", cl.csrf)
	}
	for name, v := range cl.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: v})
	}
	resp, err := cl.app.Test(req, -1)
	require.NoError(cl.t, err)
	for _, c := range resp.Cookies() {
		if c.Value == "" || (!c.Expires.IsZero() && c.Expires.Before(time.Now())) {
			delete(cl.cookies, c.Name)
			continue
		}
		cl.cookies[c.Name] = c.Value
	}
	return resp
}

func (cl *client) login(email, password string) *http.Response {
	cl.t.Helper()
	if cl.csrf == "" {
		cl.fetchCSRF()
	}
	return cl.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email, "password": password})
}

func extractCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// errorCode pulls error.code out of the JSON envelope.
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := decode(t, resp)
	env, ok := body["error"].(map[string]any)
	require.True(t, ok, "no error envelope in %v", body)
	code, _ := env["code"].(string)
	return code
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func fieldString(entry observer.LoggedEntry, key string) string {
	v, _ := entry.ContextMap()[key].(string)
	return v
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
