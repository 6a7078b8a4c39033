// Package ratelimit decides which bucket a request counts against and
// enforces per-policy limits on top of fiber's limiter.
package ratelimit

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ProxyTrust is the set of proxies whose forwarding headers we believe.
type ProxyTrust struct {
	prefixes []netip.Prefix
}

// ParseProxyTrust accepts CIDRs and bare addresses.
func ParseProxyTrust(entries []string) (*ProxyTrust, error) {
	t := &ProxyTrust{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
			}
			t.prefixes = append(t.prefixes, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		a = normalize(a)
		t.prefixes = append(t.prefixes, netip.PrefixFrom(a, a.BitLen()))
	}
	return t, nil
}

func (t *ProxyTrust) Trusted(a netip.Addr) bool {
	if t == nil || !a.IsValid() {
		return false
	}
	a = normalize(a)
	for _, p := range t.prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

func normalize(a netip.Addr) netip.Addr {
	return a.Unmap().WithZone("")
}

func parseIP(s string) (netip.Addr, bool) {
	a, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, false
	}
	return normalize(a), true
}

// ClientIP returns the address a request is attributed to. Forwarding
// headers only count when the peer is a trusted proxy, and only entries
// that parse as addresses are ever returned.
func ClientIP(c *fiber.Ctx, trust *ProxyTrust) netip.Addr {
	peer, _ := netip.AddrFromSlice(c.Context().RemoteIP())
	peer = normalize(peer)
	return resolve(peer, c.Get(fiber.HeaderXForwardedFor), c.Get("X-Real-IP"), trust)
}

func resolve(peer netip.Addr, xff, realIP string, trust *ProxyTrust) netip.Addr {
	if !trust.Trusted(peer) {
		return peer
	}
	if strings.TrimSpace(xff) == "" {
		if a, ok := parseIP(realIP); ok {
			return a
		}
		return peer
	}
	hops := strings.Split(xff, ",")
	last := peer
	for i := len(hops) - 1; i >= 0; i-- {
		a, ok := parseIP(hops[i])
		if !ok {
			return last
		}
		if !trust.Trusted(a) {
			return a
		}
		last = a
	}
	return last
}

// BucketKey groups IPv6 clients by /64, since one host usually owns the whole prefix.
func BucketKey(scope string, a netip.Addr) string {
	if !a.IsValid() {
		return scope + ":invalid"
	}
	a = normalize(a)
	if a.Is4() {
		return scope + ":" + a.String()
	}
	p, err := a.Prefix(64)
	if err != nil {
		return scope + ":" + a.String()
	}
	return scope + ":" + p.String()
}
