package log

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	prev := L()
	SetLogger(zap.New(core))
	t.Cleanup(func() { base.Store(prev) })
	return logs
}

func TestDirectZapCallsAreRedacted(t *testing.T) {
	logs := observe(t)

	L().Info("mail sent to bob@example.com",
		zap.String("smtp_password", "pw"),
		zap.String("recipient", "bob@example.com"),
		zap.String("dsn", "postgres://u:p@db/app"),
		zap.Error(errors.New("GET /x?token=abc rejected")),
		zap.Any("cfg", map[string]any{"secret_key": "s", "port": "8080"}),
	)

	require.Equal(t, 1, logs.Len())
	e := logs.All()[0]
	assert.Equal(t, "mail sent to b***@example.com", e.Message)
	m := e.ContextMap()
	assert.Equal(t, Redacted, m["smtp_password"])
	assert.Equal(t, "b***@example.com", m["recipient"])
	assert.Equal(t, "postgres://u:"+Redacted+"@db/app", m["dsn"])
	assert.Equal(t, "GET /x?token="+Redacted+" rejected", m["error"])
	assert.Equal(t, map[string]any{"secret_key": Redacted, "port": "8080"}, m["cfg"])
}

func TestRequestHelpersAddContext(t *testing.T) {
	logs := observe(t)

	app := fiber.New()
	app.Post("/login", func(c *fiber.Ctx) error {
		c.Locals("requestid", "req-1")
		c.Locals("userID", "u-1")
		c.Locals(ClientIPKey, "203.0.113.7")
		Security(c, "auth.login.fail", map[string]any{"email": "eve@example.com", "password": "x"})
		Audit(c, "auth.login.success", nil)
		Error(c, "server.error", errors.New("boom for carol@example.com"), nil)
		return c.SendStatus(fiber.StatusUnauthorized)
	})
	_, err := app.Test(httptest.NewRequest("POST", "/login", nil))
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 3)

	sec := entries[0]
	assert.Equal(t, zapcore.WarnLevel, sec.Level)
	m := sec.ContextMap()
	assert.Equal(t, "security", m["category"])
	assert.Equal(t, "auth.login.fail", m["action"])
	assert.Equal(t, "203.0.113.7", m["ip"])
	assert.Equal(t, "POST", m["method"])
	assert.Equal(t, "/login", m["path"])
	assert.Equal(t, "req-1", m["req_id"])
	assert.Equal(t, "u-1", m["user_id"])
	assert.Equal(t, map[string]any{"email": "e***@example.com", "password": Redacted}, m["fields"])

	assert.Equal(t, "audit", entries[1].ContextMap()["category"])
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "boom for c***@example.com", entries[2].ContextMap()["err"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("bogus"))
}
