package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// redactCore applies Redact/Scrub to every field before it reaches the
// wrapped core, so direct zap calls get the same treatment as the helpers.
type redactCore struct {
	zapcore.Core
}

// NewRedactingCore wraps c.
func NewRedactingCore(c zapcore.Core) zapcore.Core {
	if _, ok := c.(redactCore); ok {
		return c
	}
	return redactCore{Core: c}
}

func (r redactCore) With(fields []zapcore.Field) zapcore.Core {
	return redactCore{Core: r.Core.With(redactFields(fields))}
}

func (r redactCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if r.Enabled(ent.Level) {
		return ce.AddCore(ent, r)
	}
	return ce
}

func (r redactCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = Scrub(ent.Message)
	return r.Core.Write(ent, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = redactField(f)
	}
	return out
}

func redactField(f zapcore.Field) zapcore.Field {
	switch classify(f.Key) {
	case kindSecret:
		return zap.String(f.Key, Redacted)
	case kindEmail, kindPhone, kindPII:
		switch f.Type {
		case zapcore.StringType:
			return zap.Any(f.Key, redactValue(f.Key, f.String, 0))
		case zapcore.ReflectType:
			return zap.Any(f.Key, redactValue(f.Key, f.Interface, 0))
		}
		return zap.String(f.Key, PII)
	}
	switch f.Type {
	case zapcore.StringType:
		return zap.String(f.Key, Scrub(f.String))
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok && err != nil {
			return zap.String(f.Key, Scrub(err.Error()))
		}
	case zapcore.ReflectType:
		switch v := f.Interface.(type) {
		case map[string]any:
			return zap.Any(f.Key, Redact(v))
		case map[string]string, []any, []string, string:
			return zap.Any(f.Key, redactValue("", v, 0))
		}
	}
	return f
}
