package log

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Locals key under which the rate-limit layer stores the validated client IP.
const ClientIPKey = "clientIP"

type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	File   string // optional; entries go to stdout and the file
}

var base atomic.Pointer[zap.Logger]

func init() {
	base.Store(zap.NewNop())
}

// New builds a redacting zap logger. The returned closer releases the log file, if any.
func New(cfg Config) (*zap.Logger, io.Closer, error) {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	var enc zapcore.Encoder
	if cfg.Format == "console" {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	var closer io.Closer = nopCloser{}
	ws := zapcore.AddSync(os.Stdout)
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		ws = zapcore.NewMultiWriteSyncer(ws, zapcore.AddSync(f))
		closer = f
	}

	core := NewRedactingCore(zapcore.NewCore(enc, ws, ParseLevel(cfg.Level)))
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLogger replaces the process logger. Cores that are not already
// redacting get wrapped.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	base.Store(l.WithOptions(zap.WrapCore(NewRedactingCore)))
}

// L returns the process logger.
func L() *zap.Logger { return base.Load() }

func write(level zapcore.Level, category string, c *fiber.Ctx, action string, err error, fields map[string]any) {
	l := base.Load()
	if ce := l.Check(level, action); ce != nil {
		zf := make([]zap.Field, 0, 10)
		zf = append(zf, zap.String("action", action))
		if category != "" {
			zf = append(zf, zap.String("category", category))
		}
		if c != nil {
			zf = append(zf, requestFields(c)...)
		}
		if err != nil {
			zf = append(zf, zap.String("err", Scrub(err.Error())))
		}
		if len(fields) > 0 {
			zf = append(zf, zap.Any("fields", Redact(fields)))
		}
		ce.Write(zf...)
	}
}

func requestFields(c *fiber.Ctx) []zap.Field {
	ip, _ := c.Locals(ClientIPKey).(string)
	if ip == "" {
		ip = c.IP()
	}
	zf := []zap.Field{
		zap.String("ip", ip),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
	}
	if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
		zf = append(zf, zap.String("req_id", rid))
	}
	if uid, ok := c.Locals("userID").(string); ok && uid != "" {
		zf = append(zf, zap.String("user_id", uid))
	}
	return zf
}

func Info(c *fiber.Ctx, action string, fields map[string]any) {
	write(zapcore.InfoLevel, "", c, action, nil, fields)
}

func Audit(c *fiber.Ctx, action string, fields map[string]any) {
	write(zapcore.InfoLevel, "audit", c, action, nil, fields)
}

func Security(c *fiber.Ctx, action string, fields map[string]any) {
	write(zapcore.WarnLevel, "security", c, action, nil, fields)
}

func Error(c *fiber.Ctx, action string, err error, fields map[string]any) {
	write(zapcore.ErrorLevel, "", c, action, err, fields)
}
