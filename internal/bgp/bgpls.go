package bgp

import (
	"encoding/binary"
	"fmt"
)

// BGP-LS NLRI types (RFC 7752 §3.2).
const (
	BGPLSTypeNode   uint16 = 1
	BGPLSTypeLink   uint16 = 2
	BGPLSTypePrefix uint16 = 3 // covers both IPv4 and IPv6 topology prefix NLRI
)

// BGPLS is a BGP-LS NLRI: a 2-byte type, a 2-byte length, a 1-byte
// protocol-id and an 8-byte identifier, then a sequence of TLVs (local/remote node descriptors,
// link/prefix descriptors). The TLV block is kept as opaque bytes — this
// codec classifies link/node/prefix by the outer type field and preserves
// the descriptor TLVs verbatim for byte-exact round-trip, without claiming
// to decode every descriptor TLV semantically.
type BGPLS struct {
	base
	nlriType   uint16
	protocolID uint8
	identifier uint64
	tlvs       []byte
}

func NewBGPLS(nlriType uint16, protocolID uint8, identifier uint64, tlvs []byte, action Action) *BGPLS {
	n := &BGPLS{nlriType: nlriType, protocolID: protocolID, identifier: identifier, tlvs: tlvs}
	n.base = base{family: FamilyBGPLS, action: action, key: n.packKey()}
	return n
}

func (n *BGPLS) NLRIType() uint16   { return n.nlriType }
func (n *BGPLS) ProtocolID() uint8  { return n.protocolID }
func (n *BGPLS) Identifier() uint64 { return n.identifier }
func (n *BGPLS) TLVs() []byte       { return n.tlvs }

func (n *BGPLS) IsLink() bool   { return n.nlriType == BGPLSTypeLink }
func (n *BGPLS) IsNode() bool   { return n.nlriType == BGPLSTypeNode }
func (n *BGPLS) IsPrefix() bool { return n.nlriType == BGPLSTypePrefix }

func (n *BGPLS) WithAction(a Action) NLRI {
	c := *n
	c.base.action = a
	return &c
}

func (n *BGPLS) packKey() []byte {
	valLen := 1 + 8 + len(n.tlvs)
	out := make([]byte, 4+valLen)
	binary.BigEndian.PutUint16(out[0:2], n.nlriType)
	binary.BigEndian.PutUint16(out[2:4], uint16(valLen))
	out[4] = n.protocolID
	binary.BigEndian.PutUint64(out[5:13], n.identifier)
	copy(out[13:], n.tlvs)
	return out
}

// ParseBGPLS parses a run of BGP-LS NLRI entries.
func ParseBGPLS(data []byte, action Action) ([]NLRI, error) {
	var out []NLRI
	off := 0
	for off < len(data) {
		if off+4 > len(data) {
			return nil, fmt.Errorf("bgp: truncated bgp-ls nlri header")
		}
		nlriType := binary.BigEndian.Uint16(data[off : off+2])
		length := int(binary.BigEndian.Uint16(data[off+2 : off+4]))
		off += 4
		if off+length > len(data) {
			return nil, fmt.Errorf("bgp: truncated bgp-ls nlri value")
		}
		val := data[off : off+length]
		off += length

		if len(val) < 9 {
			return nil, fmt.Errorf("bgp: bgp-ls nlri value too short")
		}
		protocolID := val[0]
		identifier := binary.BigEndian.Uint64(val[1:9])
		tlvs := make([]byte, len(val)-9)
		copy(tlvs, val[9:])

		out = append(out, NewBGPLS(nlriType, protocolID, identifier, tlvs, action))
	}
	return out, nil
}
