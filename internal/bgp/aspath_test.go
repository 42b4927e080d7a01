package bgp

import "testing"

func TestASPathRoundTrip_ASN4(t *testing.T) {
	p := ASPath{Segments: []ASPathSegment{
		{Type: ASPathSequence, ASNs: []ASN{65001, 4200000001, 65002}},
	}}
	packed := p.Pack(true)
	got, err := ParseASPath(packed, true)
	if err != nil {
		t.Fatalf("ParseASPath: %v", err)
	}
	if len(got.Segments) != 1 || len(got.Segments[0].ASNs) != 3 {
		t.Fatalf("unexpected shape: %+v", got)
	}
	if got.Segments[0].ASNs[1] != 4200000001 {
		t.Fatalf("expected 4-byte ASN preserved, got %d", got.Segments[0].ASNs[1])
	}
}

func TestASPathPack_SubstitutesASTransFor2ByteSession(t *testing.T) {
	p := ASPath{Segments: []ASPathSegment{
		{Type: ASPathSequence, ASNs: []ASN{65001, 4200000001}},
	}}
	packed := p.Pack(false)
	got, err := ParseASPath(packed, false)
	if err != nil {
		t.Fatalf("ParseASPath: %v", err)
	}
	if got.Segments[0].ASNs[1] != ASTrans {
		t.Fatalf("expected AS_TRANS substitution, got %d", got.Segments[0].ASNs[1])
	}
}

func TestMergeAS4Path(t *testing.T) {
	asPath := ASPath{Segments: []ASPathSegment{
		{Type: ASPathSequence, ASNs: []ASN{65001, ASTrans, ASTrans}},
	}}
	as4Path := ASPath{Segments: []ASPathSegment{
		{Type: ASPathSequence, ASNs: []ASN{4200000001, 4200000002}},
	}}
	merged := MergeAS4Path(asPath, as4Path)
	if segmentASNCount(merged) != 3 {
		t.Fatalf("expected 3 ASNs after merge, got %d", segmentASNCount(merged))
	}
	if merged.Segments[0].ASNs[0] != 65001 {
		t.Fatalf("expected leading real ASN preserved, got %d", merged.Segments[0].ASNs[0])
	}
	if merged.Segments[1].ASNs[0] != 4200000001 || merged.Segments[1].ASNs[1] != 4200000002 {
		t.Fatalf("expected AS4_PATH segment appended verbatim, got %+v", merged.Segments[1])
	}
}

func TestMergeAS4Path_EmptyAS4PathIsNoop(t *testing.T) {
	asPath := ASPath{Segments: []ASPathSegment{{Type: ASPathSequence, ASNs: []ASN{65001}}}}
	merged := MergeAS4Path(asPath, ASPath{})
	if segmentASNCount(merged) != 1 {
		t.Fatalf("expected unchanged AS_PATH, got %+v", merged)
	}
}

func TestCommunityPackUnpack(t *testing.T) {
	cs := []Community{NewCommunity(65001, 100), NewCommunity(65001, 200)}
	packed := PackCommunities(cs)
	got := ParseCommunities(packed)
	if len(got) != 2 || got[0].ASN() != 65001 || got[0].Value() != 100 {
		t.Fatalf("community round-trip mismatch: %+v", got)
	}
}

func TestLargeCommunityPackUnpack(t *testing.T) {
	cs := []LargeCommunity{{GlobalAdmin: 65001, Data1: 1, Data2: 2}}
	packed := PackLargeCommunities(cs)
	got := ParseLargeCommunities(packed)
	if len(got) != 1 || got[0] != cs[0] {
		t.Fatalf("large community round-trip mismatch: %+v", got)
	}
}
