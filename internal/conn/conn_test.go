package conn

import (
	"net"
	"testing"

	"github.com/exabgpd/bgpd/internal/bgp"
)

func mustRange(t *testing.T, cidr string) bgp.IPRange {
	t.Helper()
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		t.Fatalf("ParseCIDR: %v", err)
	}
	ones, _ := ipnet.Mask.Size()
	ip, err := bgp.NewIP(bgp.AFIIPv4, ipnet.IP.To4())
	if err != nil {
		t.Fatalf("NewIP: %v", err)
	}
	r, err := bgp.NewIPRange(bgp.AFIIPv4, ip.Bytes(), ones)
	if err != nil {
		t.Fatalf("NewIPRange: %v", err)
	}
	return r
}

func mustExactIP(t *testing.T, addr string) bgp.IP {
	t.Helper()
	ip := net.ParseIP(addr).To4()
	got, err := bgp.NewIP(bgp.AFIIPv4, ip)
	if err != nil {
		t.Fatalf("NewIP: %v", err)
	}
	return got
}

func TestMatcher_ExactBeatsRange(t *testing.T) {
	m := NewMatcher()
	m.AddRange("wildcard", mustRange(t, "192.0.2.0/24"))
	m.AddExact("specific", mustExactIP(t, "192.0.2.5"))

	name, err := m.Match(net.ParseIP("192.0.2.5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "specific" {
		t.Fatalf("expected exact match to win, got %q", name)
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	m := NewMatcher()
	m.AddRange("wildcard", mustRange(t, "192.0.2.0/24"))

	name, err := m.Match(net.ParseIP("203.0.113.1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "" {
		t.Fatalf("expected no match, got %q", name)
	}
}

func TestMatcher_AmbiguousWildcardsRejected(t *testing.T) {
	m := NewMatcher()
	m.AddRange("a", mustRange(t, "192.0.2.0/24"))
	m.AddRange("b", mustRange(t, "192.0.0.0/16"))

	_, err := m.Match(net.ParseIP("192.0.2.5"))
	if err != ErrAmbiguousMatch {
		t.Fatalf("expected ErrAmbiguousMatch, got %v", err)
	}
}
