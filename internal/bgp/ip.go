package bgp

import (
	"bytes"
	"fmt"
	"net"
)

// IP is an abstract address value: an AFI plus packed bytes. It carries no
// mask; IPRange extends it with one for listener-side peer matching.
type IP struct {
	afi   AFI
	bytes []byte
}

// NoNextHop is a sentinel distinct from every real address.
var NoNextHop = IP{afi: AFIUnknown, bytes: nil}

// NewIP builds an IP from an explicit AFI and packed bytes. The AFI is
// never inferred from len(raw): callers MUST supply it. This is the single
// choke point that prevents the classic mask>32-implies-IPv6 bug.
func NewIP(afi AFI, raw []byte) (IP, error) {
	n := afi.MaxBytes()
	if n == 0 {
		return IP{}, fmt.Errorf("bgp: unsupported AFI %s for address", afi)
	}
	if len(raw) != n {
		return IP{}, fmt.Errorf("bgp: address for %s must be %d bytes, got %d", afi, n, len(raw))
	}
	b := make([]byte, n)
	copy(b, raw)
	return IP{afi: afi, bytes: b}, nil
}

// MustIP is NewIP that panics on error; used only for package-internal
// well-known constants, never on attacker-controlled input.
func MustIP(afi AFI, raw []byte) IP {
	ip, err := NewIP(afi, raw)
	if err != nil {
		panic(err)
	}
	return ip
}

func FromNetIP(n net.IP) (IP, error) {
	if v4 := n.To4(); v4 != nil {
		return NewIP(AFIIPv4, v4)
	}
	if v6 := n.To16(); v6 != nil {
		return NewIP(AFIIPv6, v6)
	}
	return IP{}, fmt.Errorf("bgp: invalid net.IP %v", n)
}

func (ip IP) AFI() AFI        { return ip.afi }
func (ip IP) Bytes() []byte   { return ip.bytes }
func (ip IP) IsNoNextHop() bool { return ip.afi == AFIUnknown }

func (ip IP) Equal(o IP) bool {
	return ip.afi == o.afi && bytes.Equal(ip.bytes, o.bytes)
}

func (ip IP) String() string {
	if ip.IsNoNextHop() {
		return "none"
	}
	return net.IP(ip.bytes).String()
}

func (ip IP) NetIP() net.IP { return net.IP(ip.bytes) }

// IPRange is an IP plus a prefix mask, used for peer-range matching at the
// listener (e.g. a neighbor configured as 192.0.2.0/24 accepting any peer
// in that block).
type IPRange struct {
	IP   IP
	Mask int
}

func NewIPRange(afi AFI, raw []byte, mask int) (IPRange, error) {
	ip, err := NewIP(afi, raw)
	if err != nil {
		return IPRange{}, err
	}
	maxMask := afi.MaxBytes() * 8
	if mask < 0 || mask > maxMask {
		return IPRange{}, fmt.Errorf("bgp: mask /%d invalid for %s", mask, afi)
	}
	return IPRange{IP: ip, Mask: mask}, nil
}

// Contains reports whether peer falls within this range. Both addresses
// must be the same AFI; mismatched families never match (no v4-in-v6
// coercion).
func (r IPRange) Contains(peer IP) bool {
	if r.IP.afi != peer.afi {
		return false
	}
	full := r.Mask / 8
	if !bytes.Equal(r.IP.bytes[:full], peer.bytes[:full]) {
		return false
	}
	rem := r.Mask % 8
	if rem == 0 {
		return true
	}
	shift := 8 - rem
	return (r.IP.bytes[full] >> shift) == (peer.bytes[full] >> shift)
}

func (r IPRange) String() string {
	return fmt.Sprintf("%s/%d", r.IP, r.Mask)
}
