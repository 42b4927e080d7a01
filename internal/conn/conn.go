// Package conn wires BGP sessions to real TCP sockets: a listener that
// matches inbound connections against configured neighbors, a dialer for
// active sessions, and the two pieces of socket hardening the wire
// protocol assumes are available — TCP MD5 signatures and GTSM (TTL
// security).
package conn

import (
	"fmt"
	"net"
	"syscall"
	"unsafe"

	"github.com/exabgpd/bgpd/internal/bgp"
	"golang.org/x/sys/unix"
)

// Matcher resolves an inbound peer address to a configured neighbor name.
// Listener uses it to implement §4.4 step 2's acceptance rule: the peer
// IP must fall in exactly one neighbor's configured range.
type Matcher interface {
	// Match returns the neighbor name and a nil error if peer matches
	// exactly one configured neighbor, or "" and a nil error if none
	// match; ErrAmbiguousMatch means more than one wildcard range matched
	// and the connection must be rejected.
	Match(peer net.IP) (name string, err error)
}

var ErrAmbiguousMatch = fmt.Errorf("conn: peer address matches more than one configured neighbor range")

// Listener wraps a net.TCPListener. It applies no MD5/TTL-security option
// and does no neighbor matching; the caller runs each accepted connection
// through a Matcher.
type Listener struct {
	ln  *net.TCPListener
	md5 string // not set or read by this package
	ttl int
}

// Listen opens addr and returns a Listener ready to Accept.
func Listen(addr string) (*Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("conn: resolve %s: %w", addr, err)
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("conn: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln}, nil
}

func (l *Listener) Close() error { return l.ln.Close() }

// Accept blocks for one inbound connection. The caller is expected to call
// this from the reactor's non-blocking accept-loop step only when a
// connection is already pending (checked via SetDeadline(time.Now()) or an
// epoll/kqueue readiness notification upstream); this type itself does not
// enforce non-blocking behavior since net.TCPListener has no portable
// "TryAccept".
func (l *Listener) Accept() (*net.TCPConn, error) {
	return l.ln.AcceptTCP()
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Dial opens an active outbound connection to a peer, applying MD5/TTL
// security if requested.
func Dial(localAddr, remoteAddr string, md5Key string, ttlSecurity int) (*net.TCPConn, error) {
	raddr, err := net.ResolveTCPAddr("tcp", remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("conn: resolve remote %s: %w", remoteAddr, err)
	}
	var laddr *net.TCPAddr
	if localAddr != "" {
		laddr, err = net.ResolveTCPAddr("tcp", localAddr+":0")
		if err != nil {
			return nil, fmt.Errorf("conn: resolve local %s: %w", localAddr, err)
		}
	}

	dialer := net.Dialer{
		LocalAddr: laddr,
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				if md5Key != "" {
					sockErr = setMD5Key(int(fd), remoteAddr, md5Key)
					if sockErr != nil {
						return
					}
				}
				if ttlSecurity > 0 {
					sockErr = setTTLSecurity(int(fd), ttlSecurity)
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	c, err := dialer.Dial("tcp", raddr.String())
	if err != nil {
		return nil, fmt.Errorf("conn: dial %s: %w", remoteAddr, err)
	}
	return c.(*net.TCPConn), nil
}

// setMD5Key installs a TCP MD5 signature (RFC 2385) for the given peer
// address on fd, via TCP_MD5SIG.
func setMD5Key(fd int, peerAddr, key string) error {
	host, _, err := net.SplitHostPort(peerAddr)
	if err != nil {
		host = peerAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("conn: invalid peer address %q for MD5", peerAddr)
	}

	sig := &unix.TCPMD5Sig{}
	sig.Keylen = uint16(len(key))
	copy(sig.Key[:], key)

	if v4 := ip.To4(); v4 != nil {
		sa := (*unix.RawSockaddrInet4)(unsafe.Pointer(&sig.Addr))
		sa.Family = unix.AF_INET
		copy(sa.Addr[:], v4)
	} else {
		sa := (*unix.RawSockaddrInet6)(unsafe.Pointer(&sig.Addr))
		sa.Family = unix.AF_INET6
		copy(sa.Addr[:], ip.To16())
	}

	return unix.SetsockoptTCPMD5Sig(fd, unix.IPPROTO_TCP, unix.TCP_MD5SIG, sig)
}

// setTTLSecurity implements GTSM (RFC 5082): reject packets whose TTL/hop
// limit implies they crossed more than `hops` router hops, by requiring a
// minimum incoming TTL of 256-hops (IPv4) or hop-limit of 256-hops (IPv6).
func setTTLSecurity(fd int, hops int) error {
	minTTL := 256 - hops
	if minTTL < 1 {
		minTTL = 1
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MINTTL, minTTL); err != nil {
		// Try the IPv6 option too; callers may hold either family's fd and
		// one of the two setsockopt calls is expected to fail harmlessly.
		if err6 := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_MINHOPCOUNT, minTTL); err6 != nil {
			return fmt.Errorf("conn: ttl-security setsockopt failed (v4: %v, v6: %v)", err, err6)
		}
	}
	return nil
}

// rangeMatcher implements Matcher over a set of configured neighbor
// ranges, reusing bgp.IPRange.Contains for the membership test.
type rangeMatcher struct {
	entries []rangeEntry
}

type rangeEntry struct {
	name  string
	r     bgp.IPRange
	exact bool // true if this entry was a single peer-address, not a range
}

func NewMatcher() *rangeMatcher { return &rangeMatcher{} }

func (m *rangeMatcher) AddExact(name string, ip bgp.IP) {
	m.entries = append(m.entries, rangeEntry{name: name, r: bgp.IPRange{IP: ip, Mask: ip.AFI().MaxBytes() * 8}, exact: true})
}

func (m *rangeMatcher) AddRange(name string, r bgp.IPRange) {
	m.entries = append(m.entries, rangeEntry{name: name, r: r})
}

func (m *rangeMatcher) Match(peer net.IP) (string, error) {
	afi := bgp.AFIIPv4
	raw := peer.To4()
	if raw == nil {
		afi = bgp.AFIIPv6
		raw = peer.To16()
	}
	peerIP, err := bgp.NewIP(afi, raw)
	if err != nil {
		return "", err
	}

	matched := ""
	matches := 0
	for _, e := range m.entries {
		if e.r.Contains(peerIP) {
			matched = e.name
			matches++
			if e.exact {
				// An exact match always wins outright: a configured
				// single peer address is never ambiguous even if some
				// wildcard range also covers it.
				return e.name, nil
			}
		}
	}
	if matches == 0 {
		return "", nil
	}
	if matches > 1 {
		return "", ErrAmbiguousMatch
	}
	return matched, nil
}
