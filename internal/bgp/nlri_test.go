package bgp

import "testing"

func TestLabeledRoundTrip(t *testing.T) {
	prefix := MustIP(AFIIPv4, []byte{10, 1, 2, 0})
	n, err := NewLabeled(FamilyIPv4Labeled, []uint32{100}, prefix, 24, ActionAnnounce, 0, false)
	if err != nil {
		t.Fatalf("NewLabeled: %v", err)
	}
	packed := n.Pack(nil)
	got, err := ParseLabeled(FamilyIPv4Labeled, packed, false, ActionAnnounce)
	if err != nil {
		t.Fatalf("ParseLabeled: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	l := got[0].(*Labeled)
	if l.MaskLen() != 24 || !l.Prefix().Equal(prefix) {
		t.Fatalf("prefix round-trip mismatch")
	}
	if len(l.Labels()) != 1 || l.Labels()[0] != 100 {
		t.Fatalf("label round-trip mismatch: %v", l.Labels())
	}
}

func TestIPVPNRoundTrip(t *testing.T) {
	rd := NewRDType0(65001, 42)
	prefix := MustIP(AFIIPv4, []byte{172, 16, 0, 0})
	n, err := NewIPVPN(FamilyIPv4MPLSVPN, []uint32{500}, rd, prefix, 16, ActionAnnounce, 0, false)
	if err != nil {
		t.Fatalf("NewIPVPN: %v", err)
	}
	packed := n.Pack(nil)
	got, err := ParseIPVPN(FamilyIPv4MPLSVPN, packed, false, ActionAnnounce)
	if err != nil {
		t.Fatalf("ParseIPVPN: %v", err)
	}
	v := got[0].(*IPVPN)
	if v.MaskLen() != 16 || !v.Prefix().Equal(prefix) {
		t.Fatalf("prefix round-trip mismatch")
	}
	if v.RD() != rd {
		t.Fatalf("RD round-trip mismatch: got %s want %s", v.RD(), rd)
	}
	if rd.String() != "65001:42" {
		t.Fatalf("unexpected RD string: %s", rd.String())
	}
}

func TestEVPNMACRoundTrip(t *testing.T) {
	rd := NewRDType2(4200000001, 7)
	var esi ESI
	esi[0] = 0x01
	mac := [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	ip := MustIP(AFIIPv4, []byte{192, 0, 2, 5})
	n := NewEVPNMAC(rd, esi, 100, mac, ip, []uint32{42}, ActionAnnounce, 0, false)

	parsed, err := ParseEVPN(n.Key(), ActionAnnounce)
	if err != nil {
		t.Fatalf("ParseEVPN: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(parsed))
	}
	got := parsed[0].(*EVPNMAC)
	if got.MAC() != mac || got.RD() != rd || got.EthTag() != 100 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if !got.IP().Equal(ip) {
		t.Fatalf("IP round-trip mismatch: %s vs %s", got.IP(), ip)
	}
}

func TestEVPNPrefixRoundTrip(t *testing.T) {
	rd := NewRDType1([4]byte{10, 0, 0, 1}, 3)
	var esi ESI
	prefix := MustIP(AFIIPv4, []byte{203, 0, 113, 0})
	gw := MustIP(AFIIPv4, []byte{203, 0, 113, 1})
	n := NewEVPNPrefix(rd, esi, 0, prefix, 24, gw, 77, ActionAnnounce, 0, false)

	parsed, err := ParseEVPN(n.Key(), ActionAnnounce)
	if err != nil {
		t.Fatalf("ParseEVPN: %v", err)
	}
	got := parsed[0].(*EVPNPrefix)
	if got.MaskLen() != 24 || !got.Prefix().Equal(prefix) || !got.GatewayIP().Equal(gw) || got.Label() != 77 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestEVPNOpaqueFallbackPreservesBytes(t *testing.T) {
	val := []byte{0xAA, 0xBB, 0xCC}
	raw := append([]byte{9, byte(len(val))}, val...) // route type 9 is unsupported
	parsed, err := ParseEVPN(raw, ActionAnnounce)
	if err != nil {
		t.Fatalf("ParseEVPN: %v", err)
	}
	o := parsed[0].(*opaqueEVPN)
	if o.RouteType() != 9 {
		t.Fatalf("expected route type 9, got %d", o.RouteType())
	}
	if !bytesEqual(o.Key(), raw) {
		t.Fatalf("opaque EVPN did not preserve bytes: got %x want %x", o.Key(), raw)
	}
}

func TestFlowSpecRoundTrip(t *testing.T) {
	components := []byte{FlowComponentDestinationPrefix, 24, 198, 51, 100}
	n := NewFlowSpec(FamilyIPv4FlowSpec, components, ActionAnnounce)
	packed := n.Pack(nil)
	got, err := ParseFlowSpec(FamilyIPv4FlowSpec, packed, ActionAnnounce)
	if err != nil {
		t.Fatalf("ParseFlowSpec: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	fs := got[0].(*FlowSpec)
	if !bytesEqual(fs.Components(), components) {
		t.Fatalf("component bytes mismatch: got %x want %x", fs.Components(), components)
	}
}

func TestFlowSpecExtendedLength(t *testing.T) {
	components := make([]byte, 250)
	for i := range components {
		components[i] = byte(i)
	}
	n := NewFlowSpec(FamilyIPv4FlowSpec, components, ActionAnnounce)
	packed := n.Pack(nil)
	got, err := ParseFlowSpec(FamilyIPv4FlowSpec, packed, ActionAnnounce)
	if err != nil {
		t.Fatalf("ParseFlowSpec: %v", err)
	}
	if !bytesEqual(got[0].(*FlowSpec).Components(), components) {
		t.Fatalf("extended-length component round-trip mismatch")
	}
}

func TestBGPLSRoundTrip(t *testing.T) {
	tlvs := []byte{0, 1, 0, 2, 0xAB, 0xCD}
	n := NewBGPLS(BGPLSTypeNode, 7, 0x0102030405060708, tlvs, ActionAnnounce)
	packed := n.Pack(nil)
	got, err := ParseBGPLS(packed, ActionAnnounce)
	if err != nil {
		t.Fatalf("ParseBGPLS: %v", err)
	}
	b := got[0].(*BGPLS)
	if !b.IsNode() || b.ProtocolID() != 7 || b.Identifier() != 0x0102030405060708 {
		t.Fatalf("round-trip mismatch: %+v", b)
	}
	if !bytesEqual(b.TLVs(), tlvs) {
		t.Fatalf("tlv round-trip mismatch: got %x want %x", b.TLVs(), tlvs)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
