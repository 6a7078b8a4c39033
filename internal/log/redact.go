package log

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	Redacted  = "[REDACTED]"
	PII       = "[PII]"
	Truncated = "[TRUNCATED]"

	maxDepth = 8
)

// Substrings of a normalized key that mark the value as a secret.
var secretParts = []string{
	"password", "passwd", "secret", "token", "apikey", "authorization",
	"cookie", "session", "credential", "privatekey", "cardnumber", "csrf",
}

// Short secret markers matched anywhere in the key once benignWords are removed.
var secretShort = []string{"sid", "ssn", "cvv"}

// Words that contain a short marker without being one ("classname" holds "ssn").
var benignWords = []string{
	"class", "business", "address", "process", "access",
	"inside", "outside", "side", "consid", "resid", "presid", "subsid",
}

// Too short to match as substrings ("pinned", "footprint").
var secretExact = map[string]struct{}{
	"pin": {}, "otp": {},
}

var piiExact = map[string]struct{}{
	"name": {}, "fullname": {}, "firstname": {}, "lastname": {},
	"address": {}, "street": {}, "postalcode": {}, "zip": {},
}

var (
	reBearer   = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*`)
	reJWT      = regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`)
	reEmail    = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	reQuery    = regexp.MustCompile(`(?i)([?&](?:token|password|secret|api_key|key|code)=)[^&\s]+`)
	reUserinfo = regexp.MustCompile(`(://[^:/@\s]+:)[^@\s]+@`)
	reKeyValue = regexp.MustCompile(`(?i)\b([a-z_]*(?:password|passwd|pwd|secret|token))\s*=\s*(?:'[^']*'|"[^"]*"|[^\s&'"]+)`)
)

type keyKind int

const (
	kindPlain keyKind = iota
	kindSecret
	kindEmail
	kindPhone
	kindPII
)

func normalizeKey(k string) string {
	var b strings.Builder
	b.Grow(len(k))
	for _, r := range k {
		if r == '_' || r == '-' || r == '.' || r == ' ' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func classify(key string) keyKind {
	if key == "" {
		return kindPlain
	}
	k := normalizeKey(key)
	if _, ok := secretExact[k]; ok {
		return kindSecret
	}
	for _, p := range secretParts {
		if strings.Contains(k, p) {
			return kindSecret
		}
	}
	if hasShortMarker(k) {
		return kindSecret
	}
	switch {
	case strings.HasSuffix(k, "email"), k == "recipient":
		return kindEmail
	case strings.Contains(k, "phone"):
		return kindPhone
	}
	if _, ok := piiExact[k]; ok {
		return kindPII
	}
	return kindPlain
}

func hasShortMarker(k string) bool {
	for _, w := range benignWords {
		k = strings.ReplaceAll(k, w, " ")
	}
	for _, p := range secretShort {
		if strings.Contains(k, p) {
			return true
		}
	}
	return false
}

// IsSensitiveKey reports whether a field name is treated as a secret.
func IsSensitiveKey(key string) bool { return classify(key) == kindSecret }

// Redact returns a deep copy of fields with secrets and PII masked.
// The input map is never modified.
func Redact(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = redactValue(k, v, 0)
	}
	return out
}

func redactValue(key string, v any, depth int) any {
	if depth > maxDepth {
		return Truncated
	}
	switch classify(key) {
	case kindSecret:
		if v == nil {
			return nil
		}
		return Redacted
	case kindEmail:
		switch t := v.(type) {
		case string:
			return MaskEmail(t)
		case []string, []any:
			// masked element by element below
		default:
			return PII
		}
	case kindPhone:
		if s, ok := v.(string); ok {
			return MaskPhone(s)
		}
		return PII
	case kindPII:
		if v == nil {
			return nil
		}
		return PII
	}

	switch t := v.(type) {
	case string:
		return Scrub(t)
	case error:
		return Scrub(t.Error())
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = redactValue(k, vv, depth+1)
		}
		return m
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = redactValue(k, vv, depth+1)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = redactValue(key, vv, depth+1)
		}
		return s
	case []string:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = redactValue(key, vv, depth+1)
		}
		return s
	default:
		return v
	}
}

// Scrub masks secrets embedded in free text: bearer tokens, JWTs, URL
// credentials, secret query params, key=value secrets such as a lib/pq DSN,
// and email addresses.
func Scrub(s string) string {
	if s == "" {
		return s
	}
	s = reBearer.ReplaceAllString(s, "Bearer "+Redacted)
	s = reJWT.ReplaceAllString(s, Redacted)
	s = reUserinfo.ReplaceAllString(s, "${1}"+Redacted+"@")
	s = reQuery.ReplaceAllString(s, "${1}"+Redacted)
	s = reKeyValue.ReplaceAllString(s, "${1}="+Redacted)
	s = reEmail.ReplaceAllStringFunc(s, MaskEmail)
	return s
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(e string) string {
	e = strings.TrimSpace(e)
	at := strings.LastIndex(e, "@")
	if at <= 0 || at == len(e)-1 {
		return PII
	}
	local, domain := e[:at], e[at+1:]
	first := []rune(local)[0]
	return string(first) + "***@" + domain
}

// MaskPhone keeps the last four digits.
func MaskPhone(p string) string {
	var digits []rune
	for _, r := range p {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return "***"
	}
	return "***" + string(digits[len(digits)-4:])
}
