package bgp

import (
	"encoding/binary"
	"fmt"
)

// MPReach is the decoded MP_REACH_NLRI attribute value (code 14).
type MPReach struct {
	Family  Family
	NextHop []byte // raw next-hop bytes, family-dependent width
	NLRI    []NLRI
}

// MPUnreach is the decoded MP_UNREACH_NLRI attribute value (code 15).
type MPUnreach struct {
	Family Family
	NLRI   []NLRI
}

// PackMPReach encodes AFI(2) || SAFI(1) || nexthop-len(1) || nexthop ||
// reserved(1) || NLRIs, per RFC 4760 §3.
func PackMPReach(r MPReach, addPath bool) []byte {
	out := make([]byte, 0, 8+len(r.NLRI)*8)
	var afiBuf [2]byte
	binary.BigEndian.PutUint16(afiBuf[:], uint16(r.Family.AFI))
	out = append(out, afiBuf[:]...)
	out = append(out, byte(r.Family.SAFI))
	out = append(out, byte(len(r.NextHop)))
	out = append(out, r.NextHop...)
	out = append(out, 0) // reserved (SNPA count, always 0 emitted)
	for _, n := range r.NLRI {
		out = n.Pack(out)
	}
	return out
}

// PackMPUnreach encodes AFI(2) || SAFI(1) || NLRIs, per RFC 4760 §4.
func PackMPUnreach(u MPUnreach) []byte {
	out := make([]byte, 0, 3+len(u.NLRI)*8)
	var afiBuf [2]byte
	binary.BigEndian.PutUint16(afiBuf[:], uint16(u.Family.AFI))
	out = append(out, afiBuf[:]...)
	out = append(out, byte(u.Family.SAFI))
	for _, n := range u.NLRI {
		n2 := n.WithAction(ActionWithdraw)
		out = n2.Pack(out)
	}
	return out
}

// ParseMPReach decodes an MP_REACH_NLRI value, dispatching NLRI parsing by
// family. addPath must reflect the negotiated Add-Path role for this
// family; it is never inferred from the attribute itself.
func ParseMPReach(data []byte, addPath bool) (*MPReach, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("bgp: MP_REACH_NLRI too short")
	}
	afi := AFI(binary.BigEndian.Uint16(data[0:2]))
	safi := SAFI(data[2])
	family := Family{AFI: afi, SAFI: safi}
	nhLen := int(data[3])
	off := 4
	if off+nhLen > len(data) {
		return nil, fmt.Errorf("bgp: MP_REACH_NLRI next-hop truncated")
	}
	nextHop := append([]byte(nil), data[off:off+nhLen]...)
	off += nhLen

	if off >= len(data) {
		return nil, fmt.Errorf("bgp: MP_REACH_NLRI missing reserved/SNPA byte")
	}
	snpaCount := int(data[off])
	off++
	for i := 0; i < snpaCount; i++ {
		if off >= len(data) {
			return nil, fmt.Errorf("bgp: MP_REACH_NLRI SNPA truncated")
		}
		snpaLen := int(data[off])
		off++
		byteLen := (snpaLen + 1) / 2
		if off+byteLen > len(data) {
			return nil, fmt.Errorf("bgp: MP_REACH_NLRI SNPA body truncated")
		}
		off += byteLen
	}

	nlri, err := parseFamilyNLRI(family, data[off:], addPath, ActionAnnounce)
	if err != nil {
		return nil, err
	}
	return &MPReach{Family: family, NextHop: nextHop, NLRI: nlri}, nil
}

// ParseMPUnreach decodes an MP_UNREACH_NLRI value.
func ParseMPUnreach(data []byte, addPath bool) (*MPUnreach, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("bgp: MP_UNREACH_NLRI too short")
	}
	afi := AFI(binary.BigEndian.Uint16(data[0:2]))
	safi := SAFI(data[2])
	family := Family{AFI: afi, SAFI: safi}
	nlri, err := parseFamilyNLRI(family, data[3:], addPath, ActionWithdraw)
	if err != nil {
		return nil, err
	}
	return &MPUnreach{Family: family, NLRI: nlri}, nil
}

// parseFamilyNLRI dispatches NLRI parsing to the family-specific parser.
// This is the single point where a (AFI,SAFI) pair selects decode logic;
// nothing here infers AFI from payload shape.
func parseFamilyNLRI(family Family, data []byte, addPath bool, action Action) ([]NLRI, error) {
	switch family.SAFI {
	case SAFIUnicast, SAFIMulticast:
		return ParseINRI(family, data, addPath, action)
	case SAFIMPLSLabel:
		return ParseLabeled(family, data, addPath, action)
	case SAFIMPLSVPN:
		return ParseIPVPN(family, data, addPath, action)
	case SAFIEVPN:
		return ParseEVPN(data, action)
	case SAFIFlowSpec, SAFIFlowVPN:
		return ParseFlowSpec(family, data, action)
	case SAFIBGPLS, SAFIBGPLSVPN:
		return ParseBGPLS(data, action)
	default:
		return nil, fmt.Errorf("bgp: unsupported SAFI %s for family %s", family.SAFI, family)
	}
}

// NextHopWidth returns the wire-format byte width of the MP next-hop for a
// family: 4 for IPv4, 16 or 32 (global+link-local) for IPv6, 12 for
// MPLS-VPN (8-byte zero RD prefix + 4-byte IPv4), 24 for VPN-IPv6.
func NextHopWidth(family Family, linkLocal bool) int {
	switch family.SAFI {
	case SAFIMPLSVPN:
		if family.AFI == AFIIPv6 {
			return 24
		}
		return 12
	default:
		if family.AFI == AFIIPv6 {
			if linkLocal {
				return 32
			}
			return 16
		}
		return 4
	}
}

// PackVPNNextHop prefixes a plain next-hop address with an 8-byte
// zero Route Distinguisher, as MPLS-VPN families require.
func PackVPNNextHop(addr []byte) []byte {
	out := make([]byte, 8+len(addr))
	copy(out[8:], addr)
	return out
}
