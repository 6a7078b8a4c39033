package ratelimit

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProxyTrust(t *testing.T) {
	trust, err := ParseProxyTrust([]string{"10.0.0.0/8", " 192.0.2.1 ", "", "fd00::/8"})
	require.NoError(t, err)
	assert.True(t, trust.Trusted(netip.MustParseAddr("10.1.2.3")))
	assert.True(t, trust.Trusted(netip.MustParseAddr("::ffff:10.1.2.3")))
	assert.True(t, trust.Trusted(netip.MustParseAddr("192.0.2.1")))
	assert.False(t, trust.Trusted(netip.MustParseAddr("192.0.2.2")))
	assert.True(t, trust.Trusted(netip.MustParseAddr("fd12::1")))
	assert.False(t, trust.Trusted(netip.Addr{}))

	var none *ProxyTrust
	assert.False(t, none.Trusted(netip.MustParseAddr("10.1.2.3")))

	for _, bad := range []string{"10.0.0.0/33", "not-an-ip", "1.2.3"} {
		_, err := ParseProxyTrust([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestResolveClientIP(t *testing.T) {
	trust, err := ParseProxyTrust([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	proxy := netip.MustParseAddr("10.0.0.5")
	direct := netip.MustParseAddr("198.51.100.20")

	cases := []struct {
		name   string
		peer   netip.Addr
		xff    string
		realIP string
		want   string
	}{
		{"untrusted peer ignores headers", direct, "203.0.113.1", "203.0.113.2", "198.51.100.20"},
		{"trusted peer uses forwarded client", proxy, "203.0.113.1", "", "203.0.113.1"},
		{"rightmost untrusted hop wins", proxy, "6.6.6.6, 203.0.113.1, 10.0.0.9", "", "203.0.113.1"},
		{"garbage hop stops the walk", proxy, "203.0.113.1, <script>, 10.0.0.9", "", "10.0.0.9"},
		{"all hops trusted", proxy, "10.0.0.7, 10.0.0.9", "", "10.0.0.7"},
		{"real ip fallback", proxy, "", "203.0.113.3", "203.0.113.3"},
		{"bad real ip falls back to peer", proxy, "", "nope", "10.0.0.5"},
		{"mapped addresses unmapped", proxy, "::ffff:203.0.113.1", "", "203.0.113.1"},
		{"zones dropped", proxy, "fe80::1%eth0", "", "fe80::1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := resolve(tc.peer, tc.xff, tc.realIP, trust)
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestBucketKey(t *testing.T) {
	assert.Equal(t, "login:203.0.113.1", BucketKey("login", netip.MustParseAddr("203.0.113.1")))
	assert.Equal(t, "login:203.0.113.1", BucketKey("login", netip.MustParseAddr("::ffff:203.0.113.1")))
	assert.Equal(t, "login:2001:db8:1:2::/64", BucketKey("login", netip.MustParseAddr("2001:db8:1:2:aaaa::1")))
	assert.Equal(t,
		BucketKey("login", netip.MustParseAddr("2001:db8:1:2::1")),
		BucketKey("login", netip.MustParseAddr("2001:db8:1:2:ffff:ffff:ffff:ffff")))
	assert.Equal(t, "login:invalid", BucketKey("login", netip.Addr{}))
	assert.NotEqual(t, BucketKey("login", netip.MustParseAddr("203.0.113.1")), BucketKey("contact", netip.MustParseAddr("203.0.113.1")))
}
