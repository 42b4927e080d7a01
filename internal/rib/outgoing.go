// Package rib implements the per-neighbor outgoing RIB: a
// store that deduplicates routes, groups routes sharing attributes into
// minimum-count UPDATE batches, and supports Enhanced-Route-Refresh replay.
package rib

import (
	"sort"

	"github.com/exabgpd/bgpd/internal/bgp"
)

// nlriIndex is the per-NLRI dedup key (family||path-id||wire key).
type nlriIndex string

// attrIndex is the grouping key for announces: the attribute collection's
// content-derived index combined with the explicit next-hop, since routes
// that differ only in next-hop cannot share one MP_REACH_NLRI next-hop
// field even if their attribute sets are otherwise identical.
type attrIndex string

func keyOf(r *bgp.Route) nlriIndex { return nlriIndex(r.NLRI().Index()) }

func bucketOf(r *bgp.Route) attrIndex {
	return attrIndex(r.Attributes().Index() + "\x00" + r.NextHop().String())
}

type familyState struct {
	withdraw      map[nlriIndex]*bgp.Route
	announce      map[attrIndex]map[nlriIndex]*bgp.Route
	cache         map[nlriIndex]*bgp.Route
	refreshing    bool
	refreshBuffer []*bgp.Route
}

func newFamilyState() *familyState {
	return &familyState{
		withdraw: make(map[nlriIndex]*bgp.Route),
		announce: make(map[attrIndex]map[nlriIndex]*bgp.Route),
		cache:    make(map[nlriIndex]*bgp.Route),
	}
}

// clearPendingIdx removes idx from whichever pending structure (withdraw or
// one announce bucket) currently holds it, so a fresh add/del never leaves
// a stale duplicate behind.
func (fs *familyState) clearPendingIdx(idx nlriIndex) {
	delete(fs.withdraw, idx)
	for bk, m := range fs.announce {
		if _, ok := m[idx]; ok {
			delete(m, idx)
			if len(m) == 0 {
				delete(fs.announce, bk)
			}
		}
	}
}

func (fs *familyState) hasPending() bool {
	if len(fs.withdraw) > 0 {
		return true
	}
	return len(fs.announce) > 0
}

// Outgoing is the per-neighbor outgoing RIB described in SPEC_FULL.md's
// Outgoing RIB / §4.2 sections.
type Outgoing struct {
	neg      *bgp.Negotiated
	families map[bgp.Family]*familyState
}

func NewOutgoing(neg *bgp.Negotiated) *Outgoing {
	return &Outgoing{neg: neg, families: make(map[bgp.Family]*familyState)}
}

// SetNegotiated rebinds the negotiated session state used for batch-size
// validation, without disturbing any pending/cached routes. Callers use
// this when a neighbor's outgoing RIB is created before the session first
// establishes (so API commands can stage routes for a not-yet-up peer)
// and the real Negotiated only becomes available once OPENCONFIRM
// completes.
func (o *Outgoing) SetNegotiated(neg *bgp.Negotiated) {
	o.neg = neg
}

func (o *Outgoing) ensure(family bgp.Family) *familyState {
	fs, ok := o.families[family]
	if !ok {
		fs = newFamilyState()
		o.families[family] = fs
	}
	return fs
}

// AddToRib inserts route into pending unless an identical route (same
// attribute index and next-hop) is already the last-sent state for this
// NLRI and force is false, per §4.2.
func (o *Outgoing) AddToRib(route *bgp.Route, force bool) {
	fs := o.ensure(route.Family())
	idx := keyOf(route)

	if !force {
		if cached, ok := fs.cache[idx]; ok &&
			cached.Attributes().Equal(route.Attributes()) &&
			cached.NextHop().Equal(route.NextHop()) {
			return
		}
	}

	if fs.refreshing {
		fs.refreshBuffer = append(fs.refreshBuffer, route)
		return
	}

	fs.clearPendingIdx(idx)
	ak := bucketOf(route)
	if fs.announce[ak] == nil {
		fs.announce[ak] = make(map[nlriIndex]*bgp.Route)
	}
	fs.announce[ak][idx] = route
}

// DelFromRib marks idx for withdrawal unless it was never advertised and
// isn't currently pending, in which case it is a no-op per §4.2.
func (o *Outgoing) DelFromRib(route *bgp.Route) {
	fs := o.ensure(route.Family())
	idx := keyOf(route)

	_, inCache := fs.cache[idx]
	inPending := false
	if _, ok := fs.withdraw[idx]; ok {
		inPending = true
	}
	for _, m := range fs.announce {
		if _, ok := m[idx]; ok {
			inPending = true
			break
		}
	}
	if !inCache && !inPending {
		return
	}

	if fs.refreshing {
		fs.refreshBuffer = append(fs.refreshBuffer, route.WithAction(bgp.ActionWithdraw))
		return
	}

	fs.clearPendingIdx(idx)
	fs.withdraw[idx] = route.WithAction(bgp.ActionWithdraw)
}

// sortedFamilies returns families with pending work in a deterministic
// order, so repeated drains on identical state make the same choices.
func (o *Outgoing) sortedFamilies() []bgp.Family {
	var out []bgp.Family
	for f, fs := range o.families {
		if fs.hasPending() {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func sortedIdx(m map[nlriIndex]*bgp.Route) []nlriIndex {
	out := make([]nlriIndex, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NextUpdate pops one UPDATE's worth of pending work, honoring the
// negotiated maximum message size, and reports ok=false when nothing is
// pending. grouped=false pops exactly one NLRI (used by tests; the
// reactor always drains grouped).
// Consuming a prefix of the work and stopping leaves the RIB
// self-consistent: whatever wasn't popped remains pending for the next
// call, matching the "updates() is restartable" invariant.
func (o *Outgoing) NextUpdate(grouped bool) (*bgp.Update, bool) {
	for _, family := range o.sortedFamilies() {
		fs := o.families[family]

		if len(fs.withdraw) > 0 {
			all := make([]*bgp.Route, 0, len(fs.withdraw))
			for _, idx := range sortedIdx(fs.withdraw) {
				all = append(all, fs.withdraw[idx])
			}
			n := 1
			if grouped {
				n = o.growBatch(all, func(batch []*bgp.Route) *bgp.Update {
					return buildWithdrawUpdate(family, batch)
				})
			}
			batch := all[:n]
			upd := buildWithdrawUpdate(family, batch)
			for _, r := range batch {
				idx := keyOf(r)
				delete(fs.withdraw, idx)
				delete(fs.cache, idx)
			}
			return upd, true
		}

		for _, bk := range sortedBucketKeys(fs.announce) {
			m := fs.announce[bk]
			all := make([]*bgp.Route, 0, len(m))
			for _, idx := range sortedIdx(m) {
				all = append(all, m[idx])
			}
			n := 1
			if grouped {
				n = o.growBatch(all, func(batch []*bgp.Route) *bgp.Update {
					return buildAnnounceUpdate(family, batch)
				})
			}
			batch := all[:n]
			upd := buildAnnounceUpdate(family, batch)
			for _, r := range batch {
				idx := keyOf(r)
				delete(m, idx)
				fs.cache[idx] = r
			}
			if len(m) == 0 {
				delete(fs.announce, bk)
			}
			return upd, true
		}
	}
	return nil, false
}

func sortedBucketKeys(m map[attrIndex]map[nlriIndex]*bgp.Route) []attrIndex {
	out := make([]attrIndex, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// growBatch returns how many leading routes of all can be packed into one
// message without exceeding the negotiated maximum size, growing greedily
// and validating against the real codec rather than an estimate.
func (o *Outgoing) growBatch(all []*bgp.Route, build func([]*bgp.Route) *bgp.Update) int {
	n := 1
	for n < len(all) {
		if _, err := bgp.PackMessage(build(all[:n+1]), o.neg); err != nil {
			break
		}
		n++
	}
	return n
}

func buildAnnounceUpdate(family bgp.Family, routes []*bgp.Route) *bgp.Update {
	attrs := routes[0].Attributes().Clone()
	nlris := make([]bgp.NLRI, len(routes))
	for i, r := range routes {
		nlris[i] = r.NLRI()
	}
	if family == bgp.FamilyIPv4Unicast {
		return &bgp.Update{Attrs: attrs, NLRI: nlris}
	}
	nextHop := routes[0].NextHop()
	mpReach := bgp.PackMPReach(bgp.MPReach{Family: family, NextHop: nextHop.Bytes(), NLRI: nlris}, false)
	attrs.Set(bgp.Attribute{Flags: 0x80, Code: bgp.AttrMPReachNLRI, Value: mpReach})
	return &bgp.Update{Attrs: attrs}
}

func buildWithdrawUpdate(family bgp.Family, routes []*bgp.Route) *bgp.Update {
	nlris := make([]bgp.NLRI, len(routes))
	for i, r := range routes {
		nlris[i] = r.NLRI().WithAction(bgp.ActionWithdraw)
	}
	if family == bgp.FamilyIPv4Unicast {
		return &bgp.Update{Attrs: bgp.NewAttributeCollection(), Withdrawn: nlris}
	}
	mpUnreach := bgp.PackMPUnreach(bgp.MPUnreach{Family: family, NLRI: nlris})
	attrs := bgp.NewAttributeCollection()
	attrs.Set(bgp.Attribute{Flags: 0x80, Code: bgp.AttrMPUnreachNLRI, Value: mpUnreach})
	return &bgp.Update{Attrs: attrs}
}

// BeginRefresh starts an Enhanced-Route-Refresh window for family: further
// AddToRib/DelFromRib calls for that family are buffered rather than made
// pending, until EndRefresh closes the window.
func (o *Outgoing) BeginRefresh(family bgp.Family) *bgp.RouteRefresh {
	fs := o.ensure(family)
	fs.refreshing = true
	return &bgp.RouteRefresh{Family: family, Reserved: bgp.RefreshBoRT}
}

// EndRefresh replays every cached announce for family back into pending
// (so the next NextUpdate calls emit them again), applies whatever
// mutations were buffered during the window, and returns the closing
// ROUTE-REFRESH(END) message.
func (o *Outgoing) EndRefresh(family bgp.Family) *bgp.RouteRefresh {
	fs := o.ensure(family)
	for _, idx := range sortedIdx(fs.cache) {
		route := fs.cache[idx]
		fs.clearPendingIdx(idx)
		ak := bucketOf(route)
		if fs.announce[ak] == nil {
			fs.announce[ak] = make(map[nlriIndex]*bgp.Route)
		}
		fs.announce[ak][idx] = route
	}

	fs.refreshing = false
	buffered := fs.refreshBuffer
	fs.refreshBuffer = nil
	for _, route := range buffered {
		if route.Action() == bgp.ActionAnnounce {
			o.AddToRib(route, false)
		} else {
			o.DelFromRib(route)
		}
	}

	return &bgp.RouteRefresh{Family: family, Reserved: bgp.RefreshEoRT}
}

// CachedCount reports how many announces are currently the last-sent state
// for family; used by metrics and tests.
func (o *Outgoing) CachedCount(family bgp.Family) int {
	fs, ok := o.families[family]
	if !ok {
		return 0
	}
	return len(fs.cache)
}

// HasPending reports whether any family has work NextUpdate would drain.
func (o *Outgoing) HasPending() bool {
	return len(o.sortedFamilies()) > 0
}
