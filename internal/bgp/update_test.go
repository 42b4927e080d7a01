package bgp

import "testing"

func simpleNegotiated() *Negotiated {
	return &Negotiated{
		Families: []Family{FamilyIPv4Unicast, FamilyIPv6Unicast},
		AddPath:  make(map[Family]AddPathRole),
	}
}

func mandatoryAttrs(t *testing.T) *AttributeCollection {
	t.Helper()
	attrs := NewAttributeCollection()
	attrs.Set(newAttribute(AttrOrigin, []byte{0}))
	attrs.Set(newAttribute(AttrASPath, ASPath{
		Segments: []ASPathSegment{{Type: ASPathSequence, ASNs: []ASN{65001, 65002}}},
	}.Pack(true)))
	attrs.Set(newAttribute(AttrNextHop, []byte{192, 0, 2, 1}))
	return attrs
}

func TestUpdateRoundTrip_ClassicIPv4(t *testing.T) {
	neg := simpleNegotiated()
	prefix := MustIP(AFIIPv4, []byte{10, 0, 0, 0})
	nlri, err := NewINET(FamilyIPv4Unicast, prefix, 24, ActionAnnounce, 0, false)
	if err != nil {
		t.Fatalf("NewINET: %v", err)
	}

	u := &Update{Attrs: mandatoryAttrs(t), NLRI: []NLRI{nlri}}
	body, err := u.packBody(neg)
	if err != nil {
		t.Fatalf("packBody: %v", err)
	}
	got, err := UnpackUpdate(body, neg)
	if err != nil {
		t.Fatalf("UnpackUpdate: %v", err)
	}
	if len(got.NLRI) != 1 {
		t.Fatalf("expected 1 NLRI, got %d", len(got.NLRI))
	}
	inet := got.NLRI[0].(*INET)
	if inet.MaskLen() != 24 || !inet.Prefix().Equal(prefix) {
		t.Fatalf("round-trip mismatch: %s", inet)
	}
	if !got.Attrs.Equal(u.Attrs) {
		t.Fatalf("attribute round-trip mismatch")
	}
}

func TestUpdateRoundTrip_Withdrawal(t *testing.T) {
	neg := simpleNegotiated()
	prefix := MustIP(AFIIPv4, []byte{198, 51, 100, 0})
	nlri, err := NewINET(FamilyIPv4Unicast, prefix, 24, ActionWithdraw, 0, false)
	if err != nil {
		t.Fatalf("NewINET: %v", err)
	}
	u := &Update{Attrs: NewAttributeCollection(), Withdrawn: []NLRI{nlri}}
	body, err := u.packBody(neg)
	if err != nil {
		t.Fatalf("packBody: %v", err)
	}
	got, err := UnpackUpdate(body, neg)
	if err != nil {
		t.Fatalf("UnpackUpdate: %v", err)
	}
	if len(got.Withdrawn) != 1 || len(got.NLRI) != 0 {
		t.Fatalf("expected 1 withdrawn/0 announced, got %d/%d", len(got.Withdrawn), len(got.NLRI))
	}
}

func TestUpdate_MissingMandatoryAttrRejected(t *testing.T) {
	neg := simpleNegotiated()
	prefix := MustIP(AFIIPv4, []byte{10, 0, 0, 0})
	nlri, _ := NewINET(FamilyIPv4Unicast, prefix, 24, ActionAnnounce, 0, false)
	attrs := NewAttributeCollection()
	attrs.Set(newAttribute(AttrOrigin, []byte{0})) // AS_PATH and NEXT_HOP missing
	u := &Update{Attrs: attrs, NLRI: []NLRI{nlri}}
	body, err := u.packBody(neg)
	if err != nil {
		t.Fatalf("packBody: %v", err)
	}
	if _, err := UnpackUpdate(body, neg); err == nil {
		t.Fatalf("expected missing-mandatory-attribute error")
	}
}

func TestEndOfRIB_ClassicIPv4(t *testing.T) {
	eor := NewEndOfRIB(FamilyIPv4Unicast)
	body, err := eor.packBody(simpleNegotiated())
	if err != nil {
		t.Fatalf("packBody: %v", err)
	}
	if len(body) != 4 {
		t.Fatalf("expected a 4-byte empty-sections UPDATE, got %d bytes", len(body))
	}
	got, err := UnpackUpdate(body, simpleNegotiated())
	if err != nil {
		t.Fatalf("UnpackUpdate: %v", err)
	}
	family, ok := got.IsEndOfRIB()
	if !ok || family != FamilyIPv4Unicast {
		t.Fatalf("expected classic IPv4 EOR, got family=%s ok=%v", family, ok)
	}
}

func TestEndOfRIB_IPv6(t *testing.T) {
	eor := NewEndOfRIB(FamilyIPv6Unicast)
	body, err := eor.packBody(simpleNegotiated())
	if err != nil {
		t.Fatalf("packBody: %v", err)
	}
	got, err := UnpackUpdate(body, simpleNegotiated())
	if err != nil {
		t.Fatalf("UnpackUpdate: %v", err)
	}
	family, ok := got.IsEndOfRIB()
	if !ok || family != FamilyIPv6Unicast {
		t.Fatalf("expected IPv6 EOR via empty MP_UNREACH, got family=%s ok=%v", family, ok)
	}
}

func TestUpdateRoundTrip_MPReachIPv6(t *testing.T) {
	neg := simpleNegotiated()
	prefix := MustIP(AFIIPv6, make([]byte, 16))
	prefix.Bytes()[0] = 0x20
	prefix.Bytes()[1] = 0x01
	prefix.Bytes()[2] = 0x0d
	prefix.Bytes()[3] = 0xb8
	nlri, err := NewINET(FamilyIPv6Unicast, prefix, 32, ActionAnnounce, 0, false)
	if err != nil {
		t.Fatalf("NewINET: %v", err)
	}
	nextHop := MustIP(AFIIPv6, make([]byte, 16))

	attrs := NewAttributeCollection()
	attrs.Set(newAttribute(AttrOrigin, []byte{0}))
	attrs.Set(newAttribute(AttrASPath, ASPath{}.Pack(true)))
	mpReach := PackMPReach(MPReach{Family: FamilyIPv6Unicast, NextHop: nextHop.Bytes(), NLRI: []NLRI{nlri}}, false)
	attrs.Set(newAttribute(AttrMPReachNLRI, mpReach))

	u := &Update{Attrs: attrs}
	body, err := u.packBody(neg)
	if err != nil {
		t.Fatalf("packBody: %v", err)
	}
	got, err := UnpackUpdate(body, neg)
	if err != nil {
		t.Fatalf("UnpackUpdate: %v", err)
	}
	a, ok := got.Attrs.Get(AttrMPReachNLRI)
	if !ok {
		t.Fatalf("MP_REACH_NLRI attribute missing after round-trip")
	}
	reach, err := ParseMPReach(a.Value, false)
	if err != nil {
		t.Fatalf("ParseMPReach: %v", err)
	}
	if len(reach.NLRI) != 1 {
		t.Fatalf("expected 1 NLRI in MP_REACH, got %d", len(reach.NLRI))
	}
	got6 := reach.NLRI[0].(*INET)
	if got6.MaskLen() != 32 || !got6.Prefix().Equal(prefix) {
		t.Fatalf("round-trip mismatch: %s", got6)
	}
}

// TestAFIIndependence_LargeIPv6MaskLen is the regression test for the bug
// class this codec is built to avoid: an IPv6 prefix with a mask length
// greater than 32 (impossible for IPv4) must never be misread as IPv4
// because AFI is always explicit, never inferred from mask length.
func TestAFIIndependence_LargeIPv6MaskLen(t *testing.T) {
	addr := make([]byte, 16)
	addr[0], addr[1] = 0x20, 0x01
	prefix := MustIP(AFIIPv6, addr)
	nlri, err := NewINET(FamilyIPv6Unicast, prefix, 128, ActionAnnounce, 0, false)
	if err != nil {
		t.Fatalf("NewINET: %v", err)
	}
	var packed []byte
	packed = nlri.Pack(packed)

	parsed, err := ParseINRI(FamilyIPv6Unicast, packed, false, ActionAnnounce)
	if err != nil {
		t.Fatalf("ParseINRI: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected 1 NLRI, got %d", len(parsed))
	}
	got := parsed[0].(*INET)
	if got.MaskLen() != 128 {
		t.Fatalf("expected mask /128, got /%d", got.MaskLen())
	}
	if got.Family().AFI != AFIIPv6 {
		t.Fatalf("AFI must stay IPv6, got %s", got.Family().AFI)
	}
}
