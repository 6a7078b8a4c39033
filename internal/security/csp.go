// Package security builds the Content-Security-Policy and the other
// response hardening headers.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/gofiber/fiber/v2"
)

// NonceLocal is the fiber Locals key holding the per-request nonce.
const NonceLocal = "cspNonce"

var (
	ErrInvalidDirective = errors.New("csp: invalid directive name")
	ErrInvalidSource    = errors.New("csp: invalid source")
	ErrInvalidReportURI = errors.New("csp: invalid report uri")
)

var (
	reDirective = regexp.MustCompile(`^[a-z][a-z-]*$`)
	reNonce     = regexp.MustCompile(`^[A-Za-z0-9+/_-]+={0,2}$`)
)

// Emission order for well-known directives; others follow sorted by name.
var canonical = []string{
	"default-src",
	"script-src",
	"style-src",
	"img-src",
	"font-src",
	"connect-src",
	"media-src",
	"object-src",
	"frame-src",
	"worker-src",
	"manifest-src",
	"child-src",
	"frame-ancestors",
	"base-uri",
	"form-action",
	"upgrade-insecure-requests",
	"block-all-mixed-content",
}

var canonicalRank = func() map[string]int {
	m := make(map[string]int, len(canonical))
	for i, d := range canonical {
		m[d] = i
	}
	return m
}()

type CSPConfig struct {
	Directives              map[string][]string
	ReportURI               string
	ReportOnly              bool
	UpgradeInsecureRequests bool
	UseNonce                bool
	// Dev loosens script-src and connect-src for hot-reload tooling.
	Dev bool
}

func DefaultCSP() CSPConfig {
	return CSPConfig{
		Directives: map[string][]string{
			"default-src":     {"'self'"},
			"script-src":      {"'self'"},
			"style-src":       {"'self'", "'unsafe-inline'"},
			"img-src":         {"'self'", "data:", "blob:", "https:"},
			"font-src":        {"'self'", "data:"},
			"connect-src":     {"'self'"},
			"frame-ancestors": {"'none'"},
			"object-src":      {"'none'"},
			"base-uri":        {"'self'"},
			"form-action":     {"'self'"},
		},
	}
}

// Add appends sources to a directive, creating it if needed.
func (c *CSPConfig) Add(directive string, sources ...string) {
	if c.Directives == nil {
		c.Directives = map[string][]string{}
	}
	c.Directives[directive] = append(c.Directives[directive], sources...)
}

// ParseExtra reads entries shaped "directive=src1 src2" into cfg.
func (c *CSPConfig) ParseExtra(entries []string) error {
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		name, srcs, ok := strings.Cut(e, "=")
		if !ok {
			return fmt.Errorf("%w: %q", ErrInvalidDirective, e)
		}
		c.Add(strings.TrimSpace(name), strings.Fields(srcs)...)
	}
	return nil
}

// NewNonce returns 16 random bytes, base64 encoded.
func NewNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func validSource(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == ';' || r == ',' {
			return false
		}
	}
	return true
}

func validReportURI(u string) bool {
	if strings.HasPrefix(u, "/") && !strings.HasPrefix(u, "//") {
		return validSource(u)
	}
	p, err := url.Parse(u)
	if err != nil || p.Host == "" {
		return false
	}
	return (p.Scheme == "http" || p.Scheme == "https") && validSource(u)
}

// BuildCSP renders cfg as a header value. nonce may be empty.
func BuildCSP(cfg CSPConfig, nonce string) (string, error) {
	if nonce != "" && !reNonce.MatchString(nonce) {
		return "", fmt.Errorf("%w: nonce", ErrInvalidSource)
	}
	dirs := make(map[string][]string, len(cfg.Directives)+1)
	for name, srcs := range cfg.Directives {
		if !reDirective.MatchString(name) || name == "report-uri" {
			return "", fmt.Errorf("%w: %q", ErrInvalidDirective, name)
		}
		out := make([]string, 0, len(srcs))
		seen := make(map[string]struct{}, len(srcs))
		for _, s := range srcs {
			if !validSource(s) {
				return "", fmt.Errorf("%w: %q in %s", ErrInvalidSource, s, name)
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
		dirs[name] = out
	}

	add := func(name, src string) {
		srcs, ok := dirs[name]
		if !ok {
			return
		}
		for _, s := range srcs {
			if s == src {
				return
			}
		}
		dirs[name] = append(srcs, src)
	}
	if nonce != "" {
		add("script-src", "'nonce-"+nonce+"'")
		add("style-src", "'nonce-"+nonce+"'")
	}
	if cfg.Dev {
		add("script-src", "'unsafe-eval'")
		add("connect-src", "ws:")
	}
	if cfg.UpgradeInsecureRequests {
		if _, ok := dirs["upgrade-insecure-requests"]; !ok {
			dirs["upgrade-insecure-requests"] = nil
		}
	}

	names := make([]string, 0, len(dirs))
	for n := range dirs {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, iok := canonicalRank[names[i]]
		rj, jok := canonicalRank[names[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return names[i] < names[j]
		}
	})

	parts := make([]string, 0, len(names)+1)
	for _, n := range names {
		srcs := dropNone(dirs[n])
		if len(srcs) == 0 {
			parts = append(parts, n)
			continue
		}
		parts = append(parts, n+" "+strings.Join(srcs, " "))
	}
	if cfg.ReportURI != "" {
		if !validReportURI(cfg.ReportURI) {
			return "", fmt.Errorf("%w: %q", ErrInvalidReportURI, cfg.ReportURI)
		}
		parts = append(parts, "report-uri "+cfg.ReportURI)
	}
	return strings.Join(parts, "; "), nil
}

// dropNone removes 'none' once other sources are present; browsers ignore
// it in that case anyway.
func dropNone(srcs []string) []string {
	if len(srcs) < 2 {
		return srcs
	}
	out := srcs[:0:0]
	for _, s := range srcs {
		if s != "'none'" {
			out = append(out, s)
		}
	}
	return out
}

// HeaderName is the response header cfg is sent under.
func (c CSPConfig) HeaderName() string {
	if c.ReportOnly {
		return fiber.HeaderContentSecurityPolicyReportOnly
	}
	return fiber.HeaderContentSecurityPolicy
}

// CSP sets the policy on every response. An invalid cfg panics at startup.
func CSP(cfg CSPConfig) fiber.Handler {
	static, err := BuildCSP(cfg, "")
	if err != nil {
		panic(err)
	}
	header := cfg.HeaderName()
	return func(c *fiber.Ctx) error {
		if !cfg.UseNonce {
			c.Set(header, static)
			return c.Next()
		}
		nonce, err := NewNonce()
		if err != nil {
			return err
		}
		policy, err := BuildCSP(cfg, nonce)
		if err != nil {
			return err
		}
		c.Locals(NonceLocal, nonce)
		c.Set(header, policy)
		return c.Next()
	}
}
