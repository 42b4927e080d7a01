package bgp

import (
	"encoding/binary"
	"fmt"
)

// Action is what an NLRI instance represents within an UPDATE.
type Action uint8

const (
	ActionUnset Action = iota
	ActionAnnounce
	ActionWithdraw
)

func (a Action) String() string {
	switch a {
	case ActionAnnounce:
		return "announce"
	case ActionWithdraw:
		return "withdraw"
	default:
		return "unset"
	}
}

// NLRI is the packed-bytes-first representation shared by every address
// family this codec supports. The canonical representation is the exact
// wire bytes (sans path-id, which is tracked separately) plus the family
// and action; semantic accessors decode lazily from those bytes. An NLRI
// is immutable once constructed — WithAction returns a copy.
type NLRI interface {
	Family() Family
	Action() Action
	PathID() uint32
	HasPathID() bool
	// Key returns the canonical wire-format key bytes for this NLRI,
	// excluding path-id and action — two NLRI that name the same route
	// identity (e.g. an announce and its later withdrawal) have equal Key().
	Key() []byte
	// Index is a byte-string unique per route identity, suitable as a map
	// key: family || addpath-id || Key().
	Index() []byte
	// Pack appends the wire-format NLRI entry (path-id if present, then
	// Key()) to dst, as it appears inside a classic NLRI field or an
	// MP_REACH/MP_UNREACH attribute.
	Pack(dst []byte) []byte
	// WithAction returns a copy of this NLRI with a new explicit action.
	// There is no fallback to a prior action: callers MUST always pass one.
	WithAction(Action) NLRI
}

// base is embedded by every concrete NLRI type.
type base struct {
	family  Family
	action  Action
	pathID  uint32
	hasPath bool
	key     []byte // canonical wire-format key, family-specific layout
}

func (b base) Family() Family    { return b.family }
func (b base) Action() Action    { return b.action }
func (b base) PathID() uint32    { return b.pathID }
func (b base) HasPathID() bool   { return b.hasPath }
func (b base) Key() []byte       { return b.key }

func (b base) Index() []byte {
	idx := make([]byte, 0, 3+4+len(b.key))
	var afiBuf [2]byte
	binary.BigEndian.PutUint16(afiBuf[:], uint16(b.family.AFI))
	idx = append(idx, afiBuf[:]...)
	idx = append(idx, byte(b.family.SAFI))
	var pidBuf [4]byte
	binary.BigEndian.PutUint32(pidBuf[:], b.pathID)
	idx = append(idx, pidBuf[:]...)
	idx = append(idx, b.key...)
	return idx
}

func (b base) Pack(dst []byte) []byte {
	if b.hasPath {
		var pidBuf [4]byte
		binary.BigEndian.PutUint32(pidBuf[:], b.pathID)
		dst = append(dst, pidBuf[:]...)
	}
	return append(dst, b.key...)
}

// INET is a plain IPv4/IPv6 unicast or multicast prefix (classic or MP).
type INET struct {
	base
	prefixLen int
	prefix    IP
}

// NewINET builds an INET NLRI. family.AFI determines the byte width of
// prefix; prefixLen must be <= family.AFI.MaxBytes()*8.
func NewINET(family Family, prefix IP, prefixLen int, action Action, pathID uint32, hasPathID bool) (*INET, error) {
	if prefix.afi != family.AFI {
		return nil, fmt.Errorf("bgp: INET prefix AFI %s does not match family %s", prefix.afi, family)
	}
	maxBits := family.AFI.MaxBytes() * 8
	if prefixLen < 0 || prefixLen > maxBits {
		return nil, fmt.Errorf("bgp: prefix length /%d invalid for %s", prefixLen, family.AFI)
	}
	key := packPrefixKey(prefix.bytes, prefixLen)
	return &INET{
		base:      base{family: family, action: action, pathID: pathID, hasPath: hasPathID, key: key},
		prefixLen: prefixLen,
		prefix:    prefix,
	}, nil
}

func (n *INET) Prefix() IP    { return n.prefix }
func (n *INET) MaskLen() int  { return n.prefixLen }

func (n *INET) WithAction(a Action) NLRI {
	c := *n
	c.base.action = a
	return &c
}

func (n *INET) String() string {
	return fmt.Sprintf("%s/%d", n.prefix, n.prefixLen)
}

// packPrefixKey encodes a CIDR the way it appears on the wire: 1 length
// byte (bits) followed by ceil(bits/8) significant bytes.
func packPrefixKey(addr []byte, bits int) []byte {
	n := (bits + 7) / 8
	out := make([]byte, 1+n)
	out[0] = byte(bits)
	copy(out[1:], addr[:n])
	return out
}

// unpackPrefixKey is the inverse of packPrefixKey: it reads one length byte
// then ceil(bits/8) bytes from data, zero-padded into a full-width address.
// Returns the bits, the full-width address bytes, and bytes consumed.
func unpackPrefixKey(data []byte, maxBytes int) (bits int, addr []byte, consumed int, err error) {
	if len(data) < 1 {
		return 0, nil, 0, fmt.Errorf("bgp: truncated prefix length")
	}
	bits = int(data[0])
	if bits > maxBytes*8 {
		return 0, nil, 0, fmt.Errorf("bgp: prefix length /%d exceeds %d-byte address", bits, maxBytes)
	}
	n := (bits + 7) / 8
	if len(data) < 1+n {
		return 0, nil, 0, fmt.Errorf("bgp: truncated prefix body (need %d, have %d)", n, len(data)-1)
	}
	addr = make([]byte, maxBytes)
	copy(addr, data[1:1+n])
	return bits, addr, 1 + n, nil
}

// ParseINRI parses a run of classic/MP unicast NLRI entries, honoring
// Add-Path if negotiated for this family. AFI is taken from family and is
// never inferred from prefix length — every factory call here is explicit.
func ParseINRI(family Family, data []byte, addPath bool, action Action) ([]NLRI, error) {
	var out []NLRI
	off := 0
	maxBytes := family.AFI.MaxBytes()
	if maxBytes == 0 {
		return nil, fmt.Errorf("bgp: unsupported AFI %s in NLRI", family.AFI)
	}
	for off < len(data) {
		var pathID uint32
		if addPath {
			if off+4 > len(data) {
				return nil, fmt.Errorf("bgp: add-path id truncated")
			}
			pathID = binary.BigEndian.Uint32(data[off : off+4])
			off += 4
		}
		bits, addr, consumed, err := unpackPrefixKey(data[off:], maxBytes)
		if err != nil {
			return nil, err
		}
		off += consumed
		ip, err := NewIP(family.AFI, addr)
		if err != nil {
			return nil, err
		}
		n, err := NewINET(family, ip, bits, action, pathID, addPath)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
