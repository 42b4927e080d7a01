package bgp

import "testing"

func TestNegotiate_AddPathPerFamilyPrecedence(t *testing.T) {
	local := NewCapabilitySet()
	local.AddPath[FamilyIPv4Unicast] = AddPathRole{Send: true, Receive: true}
	local.AddPathAll = true

	peer := NewCapabilitySet()
	peer.AddPath[FamilyIPv4Unicast] = AddPathRole{Send: true, Receive: true}
	peer.AddPathAll = false

	n := Negotiate(local, peer, 65001, 65002, 0)
	if !n.AddPathFor(FamilyIPv4Unicast).Send {
		t.Fatalf("expected per-family add-path to negotiate on")
	}
	if n.AddPathAll {
		t.Fatalf("AddPathAll should be false since peer did not set it")
	}
	// A family with no per-family entry and no global flag must fall back
	// to disabled, not silently inherit the other family's role.
	if role := n.AddPathFor(FamilyIPv6Unicast); role.Send || role.Receive {
		t.Fatalf("expected no add-path for unconfigured family, got %+v", role)
	}
}

func TestNegotiate_ASN4RequiresBothSides(t *testing.T) {
	local := NewCapabilitySet()
	local.ASN4 = true
	peer := NewCapabilitySet() // peer did not send FOUR_OCTET_ASN

	n := Negotiate(local, peer, 65001, 65002, 0)
	if n.ASN4 {
		t.Fatalf("ASN4 must not negotiate on unless both sides advertised it")
	}
}

func TestNegotiate_FamilyIntersection(t *testing.T) {
	local := NewCapabilitySet()
	local.MultiprotocolFamilies = []Family{FamilyIPv4Unicast, FamilyIPv6Unicast}
	peer := NewCapabilitySet()
	peer.MultiprotocolFamilies = []Family{FamilyIPv6Unicast, FamilyIPv4MPLSVPN}

	n := Negotiate(local, peer, 65001, 65002, 0)
	if len(n.Families) != 1 || n.Families[0] != FamilyIPv6Unicast {
		t.Fatalf("expected only the shared family to survive, got %v", n.Families)
	}
}

func TestMaxMessageSize(t *testing.T) {
	n := &Negotiated{}
	if n.MaxMessageSize() != 4096 {
		t.Fatalf("expected 4096 default, got %d", n.MaxMessageSize())
	}
	n.ExtendedMessage = true
	if n.MaxMessageSize() != 65535 {
		t.Fatalf("expected 65535 with extended message, got %d", n.MaxMessageSize())
	}
}
