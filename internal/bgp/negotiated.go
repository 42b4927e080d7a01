package bgp

import "time"

// Negotiated is the intersection of local and peer OPEN capabilities,
// frozen at OPENCONFIRM. It is read by the codec (attribute packing,
// message size limits) and by the FSM (timers).
type Negotiated struct {
	LocalASN ASN
	PeerASN  ASN
	ASN4     bool

	Families []Family

	// AddPath mirrors SPEC_FULL's resolution of the dual-negotiation-path
	// open question: both a per-family map and a legacy global flag are
	// kept, with the per-family map taking precedence whenever it has an
	// entry for the family in question (even one with both roles off).
	AddPath    map[Family]AddPathRole
	AddPathAll bool

	RouteRefresh         bool
	EnhancedRouteRefresh bool
	ExtendedMessage      bool

	GracefulRestart         bool
	GracefulRestartTime     time.Duration
	GracefulRestartFamilies map[Family]bool // forwarding-preserved

	HoldTime time.Duration
}

// AddPathFor reports the effective Add-Path role for a family, resolving
// the per-family/global dual-path per the rule above.
func (n *Negotiated) AddPathFor(f Family) AddPathRole {
	if n.AddPath != nil {
		if role, ok := n.AddPath[f]; ok {
			return role
		}
	}
	if n.AddPathAll {
		return AddPathRole{Send: true, Receive: true}
	}
	return AddPathRole{}
}

func (n *Negotiated) HasFamily(f Family) bool {
	for _, got := range n.Families {
		if got == f {
			return true
		}
	}
	return false
}

// MaxMessageSize returns the negotiated ceiling for a single BGP message:
// 4096 bytes by default, 65535 if EXTENDED_MESSAGE was negotiated.
func (n *Negotiated) MaxMessageSize() int {
	if n.ExtendedMessage {
		return 65535
	}
	return 4096
}

// Negotiate computes the intersection of a local and peer capability set.
// ASN4 negotiation follows RFC 6793 §4.2.3: if the local side sent the
// capability but the peer did not return it (or vice versa, seen as an
// asymmetry the caller already validated), the session runs in 2-byte
// compatibility mode rather than full 4-byte mode.
func Negotiate(local, peer *CapabilitySet, localASN, peerASN ASN, holdTime time.Duration) *Negotiated {
	n := &Negotiated{
		LocalASN: localASN,
		PeerASN:  peerASN,
		ASN4:     local.ASN4 && peer.ASN4,
		AddPath:  make(map[Family]AddPathRole),
		HoldTime: holdTime,
	}

	localFamilies := make(map[Family]bool, len(local.MultiprotocolFamilies))
	for _, f := range local.MultiprotocolFamilies {
		localFamilies[f] = true
	}
	for _, f := range peer.MultiprotocolFamilies {
		if localFamilies[f] {
			n.Families = append(n.Families, f)
		}
	}
	if len(n.Families) == 0 {
		// No MP capability exchanged at all implies classic IPv4 unicast.
		n.Families = []Family{FamilyIPv4Unicast}
	}

	n.RouteRefresh = local.RouteRefresh && peer.RouteRefresh
	n.EnhancedRouteRefresh = local.EnhancedRouteRefresh && peer.EnhancedRouteRefresh
	n.ExtendedMessage = local.ExtendedMessage && peer.ExtendedMessage

	for f, localRole := range local.AddPath {
		if peerRole, ok := peer.AddPath[f]; ok {
			// Our send capability matters only if peer can receive, and
			// vice versa.
			n.AddPath[f] = AddPathRole{
				Send:    localRole.Send && peerRole.Receive,
				Receive: localRole.Receive && peerRole.Send,
			}
		}
	}
	n.AddPathAll = local.AddPathAll && peer.AddPathAll

	n.GracefulRestart = local.GracefulRestart && peer.GracefulRestart
	if n.GracefulRestart {
		n.GracefulRestartTime = time.Duration(peer.GracefulRestartTime) * time.Second
		n.GracefulRestartFamilies = make(map[Family]bool)
		for _, grf := range peer.GracefulRestartFamilies {
			if localFamilies[grf.Family] {
				n.GracefulRestartFamilies[grf.Family] = grf.ForwardingPreserved
			}
		}
	}

	return n
}
