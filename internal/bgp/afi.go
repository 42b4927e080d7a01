// Package bgp implements the BGP-4 wire codec: address families, NLRI,
// path attributes, messages, and the per-session negotiated capability
// state. It is pure data handling; no I/O lives here.
package bgp

import "fmt"

// AFI is an Address Family Identifier (RFC 4760).
type AFI uint16

const (
	AFIUnknown AFI = 0
	AFIIPv4    AFI = 1
	AFIIPv6    AFI = 2
	AFIL2VPN   AFI = 25
	AFIBGPLS   AFI = 16388
)

func (a AFI) String() string {
	switch a {
	case AFIIPv4:
		return "ipv4"
	case AFIIPv6:
		return "ipv6"
	case AFIL2VPN:
		return "l2vpn"
	case AFIBGPLS:
		return "bgp-ls"
	default:
		return fmt.Sprintf("afi(%d)", uint16(a))
	}
}

// MaxBytes returns the byte length of a full address in this family, or 0
// if unknown. AFI is never inferred from this value; it is only used once
// the AFI is already known.
func (a AFI) MaxBytes() int {
	switch a {
	case AFIIPv4:
		return 4
	case AFIIPv6:
		return 16
	default:
		return 0
	}
}

// SAFI is a Subsequent Address Family Identifier.
type SAFI uint8

const (
	SAFIUnknown    SAFI = 0
	SAFIUnicast    SAFI = 1
	SAFIMulticast  SAFI = 2
	SAFIMPLSLabel  SAFI = 4
	SAFIMPLSVPN    SAFI = 128
	SAFIFlowSpec   SAFI = 133
	SAFIFlowVPN    SAFI = 134
	SAFIEVPN       SAFI = 70
	SAFIBGPLS      SAFI = 71
	SAFIBGPLSVPN   SAFI = 72
)

func (s SAFI) String() string {
	switch s {
	case SAFIUnicast:
		return "unicast"
	case SAFIMulticast:
		return "multicast"
	case SAFIMPLSLabel:
		return "nlri-mpls"
	case SAFIMPLSVPN:
		return "mpls-vpn"
	case SAFIFlowSpec:
		return "flow"
	case SAFIFlowVPN:
		return "flow-vpn"
	case SAFIEVPN:
		return "evpn"
	case SAFIBGPLS:
		return "bgp-ls"
	case SAFIBGPLSVPN:
		return "bgp-ls-vpn"
	default:
		return fmt.Sprintf("safi(%d)", uint8(s))
	}
}

// Family is the (AFI, SAFI) pair identifying an NLRI's semantics.
type Family struct {
	AFI  AFI
	SAFI SAFI
}

func (f Family) String() string {
	return fmt.Sprintf("%s/%s", f.AFI, f.SAFI)
}

var (
	FamilyIPv4Unicast     = Family{AFIIPv4, SAFIUnicast}
	FamilyIPv6Unicast     = Family{AFIIPv6, SAFIUnicast}
	FamilyIPv4Labeled     = Family{AFIIPv4, SAFIMPLSLabel}
	FamilyIPv6Labeled     = Family{AFIIPv6, SAFIMPLSLabel}
	FamilyIPv4MPLSVPN     = Family{AFIIPv4, SAFIMPLSVPN}
	FamilyIPv6MPLSVPN     = Family{AFIIPv6, SAFIMPLSVPN}
	FamilyL2VPNEVPN       = Family{AFIL2VPN, SAFIEVPN}
	FamilyIPv4FlowSpec    = Family{AFIIPv4, SAFIFlowSpec}
	FamilyIPv6FlowSpec    = Family{AFIIPv6, SAFIFlowSpec}
	FamilyBGPLS           = Family{AFIBGPLS, SAFIBGPLS}
)

// classic reports whether this family is carried in the IPv4-unicast
// classic UPDATE NLRI field rather than inside MP_REACH/MP_UNREACH.
func (f Family) classic() bool {
	return f == FamilyIPv4Unicast
}
