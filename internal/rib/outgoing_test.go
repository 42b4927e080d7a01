package rib

import (
	"testing"

	"github.com/exabgpd/bgpd/internal/bgp"
)

func testNeg() *bgp.Negotiated {
	return &bgp.Negotiated{
		Families: []bgp.Family{bgp.FamilyIPv4Unicast, bgp.FamilyIPv6Unicast},
		AddPath:  make(map[bgp.Family]bgp.AddPathRole),
	}
}

func classicAttrs(nextHop byte) *bgp.AttributeCollection {
	attrs := bgp.NewAttributeCollection()
	attrs.Set(bgp.Attribute{Code: bgp.AttrOrigin, Value: []byte{0}})
	attrs.Set(bgp.Attribute{Flags: 0x40, Code: bgp.AttrASPath, Value: bgp.ASPath{
		Segments: []bgp.ASPathSegment{{Type: bgp.ASPathSequence, ASNs: []bgp.ASN{65001}}},
	}.Pack(true)})
	attrs.Set(bgp.Attribute{Code: bgp.AttrNextHop, Value: []byte{192, 0, 2, nextHop}})
	return attrs
}

func v4Route(t *testing.T, octet byte, action bgp.Action) *bgp.Route {
	t.Helper()
	prefix := bgp.MustIP(bgp.AFIIPv4, []byte{10, 0, 0, octet})
	nlri, err := bgp.NewINET(bgp.FamilyIPv4Unicast, prefix, 32, action, 0, false)
	if err != nil {
		t.Fatalf("NewINET: %v", err)
	}
	nextHop := bgp.MustIP(bgp.AFIIPv4, []byte{192, 0, 2, 1})
	return bgp.NewRoute(nlri, classicAttrs(1), action, nextHop)
}

func TestAddToRib_CacheIdempotence(t *testing.T) {
	o := NewOutgoing(testNeg())
	r := v4Route(t, 1, bgp.ActionAnnounce)
	o.AddToRib(r, false)

	upd, ok := o.NextUpdate(true)
	if !ok || upd == nil {
		t.Fatalf("expected one update to drain")
	}
	if o.CachedCount(bgp.FamilyIPv4Unicast) != 1 {
		t.Fatalf("expected route cached after send")
	}

	// Re-announcing the identical route must be a no-op: nothing pending.
	o.AddToRib(v4Route(t, 1, bgp.ActionAnnounce), false)
	if o.HasPending() {
		t.Fatalf("re-announcing identical route should not create pending work")
	}
}

func TestDelFromRib_NeverAdvertisedIsNoop(t *testing.T) {
	o := NewOutgoing(testNeg())
	o.DelFromRib(v4Route(t, 9, bgp.ActionWithdraw))
	if o.HasPending() {
		t.Fatalf("withdrawing an NLRI that was never advertised and isn't pending must be a no-op")
	}
}

func TestWithdrawEvictsCacheExactlyOnEmit(t *testing.T) {
	o := NewOutgoing(testNeg())
	o.AddToRib(v4Route(t, 1, bgp.ActionAnnounce), false)
	if _, ok := o.NextUpdate(true); !ok {
		t.Fatalf("expected announce to drain")
	}
	if o.CachedCount(bgp.FamilyIPv4Unicast) != 1 {
		t.Fatalf("expected cached announce")
	}

	o.DelFromRib(v4Route(t, 1, bgp.ActionWithdraw))
	// Cache must still show the route until the withdraw UPDATE is actually
	// emitted by NextUpdate, not the moment DelFromRib is called.
	if o.CachedCount(bgp.FamilyIPv4Unicast) != 1 {
		t.Fatalf("cache evicted before withdraw was emitted")
	}
	if _, ok := o.NextUpdate(true); !ok {
		t.Fatalf("expected withdraw to drain")
	}
	if o.CachedCount(bgp.FamilyIPv4Unicast) != 0 {
		t.Fatalf("expected cache evicted exactly when withdraw emitted")
	}
}

func TestNextUpdate_GroupedBatchesSharedAttributesTogether(t *testing.T) {
	o := NewOutgoing(testNeg())
	for i := byte(1); i <= 5; i++ {
		o.AddToRib(v4Route(t, i, bgp.ActionAnnounce), false)
	}
	upd, ok := o.NextUpdate(true)
	if !ok {
		t.Fatalf("expected a batched update")
	}
	if len(upd.NLRI) != 5 {
		t.Fatalf("expected all 5 routes (same attribute bucket) grouped into one UPDATE, got %d", len(upd.NLRI))
	}
	if _, ok := o.NextUpdate(true); ok {
		t.Fatalf("expected nothing left pending after one grouped drain")
	}
}

func TestNextUpdate_DifferentBucketsNotCoalesced(t *testing.T) {
	o := NewOutgoing(testNeg())
	r1 := v4Route(t, 1, bgp.ActionAnnounce)
	r2nlri, err := bgp.NewINET(bgp.FamilyIPv4Unicast, bgp.MustIP(bgp.AFIIPv4, []byte{10, 0, 0, 2}), 32, bgp.ActionAnnounce, 0, false)
	if err != nil {
		t.Fatalf("NewINET: %v", err)
	}
	r2 := bgp.NewRoute(r2nlri, classicAttrs(2), bgp.ActionAnnounce, bgp.MustIP(bgp.AFIIPv4, []byte{192, 0, 2, 2}))

	o.AddToRib(r1, false)
	o.AddToRib(r2, false)

	first, ok := o.NextUpdate(true)
	if !ok {
		t.Fatalf("expected first batch")
	}
	if len(first.NLRI) != 1 {
		t.Fatalf("routes with different next-hops must not share an UPDATE, got %d NLRIs", len(first.NLRI))
	}
	second, ok := o.NextUpdate(true)
	if !ok || len(second.NLRI) != 1 {
		t.Fatalf("expected a second single-NLRI batch")
	}
	if _, ok := o.NextUpdate(true); ok {
		t.Fatalf("expected RIB fully drained")
	}
}

func TestNextUpdate_UngroupedPopsOneAtATime(t *testing.T) {
	o := NewOutgoing(testNeg())
	for i := byte(1); i <= 3; i++ {
		o.AddToRib(v4Route(t, i, bgp.ActionAnnounce), false)
	}
	count := 0
	for {
		upd, ok := o.NextUpdate(false)
		if !ok {
			break
		}
		if len(upd.NLRI) != 1 {
			t.Fatalf("ungrouped drain must emit exactly one NLRI per UPDATE, got %d", len(upd.NLRI))
		}
		count++
	}
	if count != 3 {
		t.Fatalf("expected 3 single-route updates, got %d", count)
	}
}

func TestEnhancedRouteRefresh_ReplaysCache(t *testing.T) {
	o := NewOutgoing(testNeg())
	o.AddToRib(v4Route(t, 1, bgp.ActionAnnounce), false)
	o.AddToRib(v4Route(t, 2, bgp.ActionAnnounce), false)
	for {
		if _, ok := o.NextUpdate(true); !ok {
			break
		}
	}
	if o.CachedCount(bgp.FamilyIPv4Unicast) != 2 {
		t.Fatalf("expected 2 cached routes before refresh")
	}

	begin := o.BeginRefresh(bgp.FamilyIPv4Unicast)
	if !begin.IsBoRT() {
		t.Fatalf("expected BEGIN-OF-ROUTE-REFRESH marker")
	}

	// A mutation during the refresh window must be buffered, not pending.
	o.AddToRib(v4Route(t, 3, bgp.ActionAnnounce), false)
	if o.HasPending() {
		t.Fatalf("mutation during refresh window must not become pending immediately")
	}

	end := o.EndRefresh(bgp.FamilyIPv4Unicast)
	if !end.IsEoRT() {
		t.Fatalf("expected END-OF-ROUTE-REFRESH marker")
	}

	var total int
	for {
		upd, ok := o.NextUpdate(true)
		if !ok {
			break
		}
		total += len(upd.NLRI)
	}
	if total != 3 {
		t.Fatalf("expected replay of the 2 cached routes plus the 1 buffered mutation, got %d", total)
	}
}

func TestNextUpdate_WithdrawBeatsAnnounceForSameFamily(t *testing.T) {
	o := NewOutgoing(testNeg())
	o.AddToRib(v4Route(t, 1, bgp.ActionAnnounce), false)
	if _, ok := o.NextUpdate(true); !ok {
		t.Fatalf("expected initial announce to drain")
	}
	o.DelFromRib(v4Route(t, 1, bgp.ActionWithdraw))
	o.AddToRib(v4Route(t, 2, bgp.ActionAnnounce), false)

	upd, ok := o.NextUpdate(true)
	if !ok {
		t.Fatalf("expected a pending update")
	}
	if len(upd.Withdrawn) == 0 {
		t.Fatalf("expected withdraws to drain ahead of announces within a family")
	}
}
