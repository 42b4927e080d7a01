package api

import (
	"testing"

	"go.uber.org/zap"

	"github.com/exabgpd/bgpd/internal/bgp"
	"github.com/exabgpd/bgpd/internal/rib"
)

type fakeNeighbor struct {
	name        string
	established bool
	out         *rib.Outgoing
	flushed     int
	tornDown    []uint8
}

func newFakeNeighbor(name string) *fakeNeighbor {
	return &fakeNeighbor{name: name, out: rib.NewOutgoing(nil)}
}

func (f *fakeNeighbor) Name() string              { return f.name }
func (f *fakeNeighbor) PeerASN() bgp.ASN          { return 65001 }
func (f *fakeNeighbor) Established() bool         { return f.established }
func (f *fakeNeighbor) Negotiated() *bgp.Negotiated { return nil }
func (f *fakeNeighbor) Outgoing() *rib.Outgoing   { return f.out }
func (f *fakeNeighbor) Flush()                    { f.flushed++ }
func (f *fakeNeighbor) Teardown(subcode uint8)    { f.tornDown = append(f.tornDown, subcode) }

type fakeRegistry struct {
	byName map[string]*fakeNeighbor
}

func newFakeRegistry(names ...string) *fakeRegistry {
	r := &fakeRegistry{byName: make(map[string]*fakeNeighbor)}
	for _, n := range names {
		r.byName[n] = newFakeNeighbor(n)
	}
	return r
}

func (r *fakeRegistry) Neighbor(name string) (Neighbor, bool) {
	n, ok := r.byName[name]
	return n, ok
}

func (r *fakeRegistry) All() []Neighbor {
	out := make([]Neighbor, 0, len(r.byName))
	for _, n := range r.byName {
		out = append(out, n)
	}
	return out
}

func newTestDispatcher(reg Registry) *Dispatcher {
	return NewDispatcher(reg, Hooks{}, zap.NewNop())
}

func TestDispatch_AnnounceRouteAddsToOutgoingRIB(t *testing.T) {
	reg := newFakeRegistry("203.0.113.1")
	d := newTestDispatcher(reg)

	resp := d.Dispatch("neighbor 203.0.113.1 announce route 198.51.100.0/24 next-hop 203.0.113.1 med 100")
	if !resp.OK {
		t.Fatalf("dispatch failed: %s", resp.Message)
	}

	n := reg.byName["203.0.113.1"]
	if !n.out.HasPending() {
		t.Fatalf("expected pending announce in outgoing RIB")
	}
	if n.flushed != 1 {
		t.Fatalf("expected Flush() called once, got %d", n.flushed)
	}
}

func TestDispatch_WithdrawRouteNoopWhenNeverAnnounced(t *testing.T) {
	reg := newFakeRegistry("203.0.113.1")
	d := newTestDispatcher(reg)

	resp := d.Dispatch("neighbor 203.0.113.1 withdraw route 198.51.100.0/24 next-hop 203.0.113.1")
	if !resp.OK {
		t.Fatalf("dispatch failed: %s", resp.Message)
	}
	n := reg.byName["203.0.113.1"]
	if n.out.HasPending() {
		t.Fatalf("withdraw of a never-announced route should be a no-op")
	}
}

func TestDispatch_WildcardSelectorAppliesToAllNeighbors(t *testing.T) {
	reg := newFakeRegistry("203.0.113.1", "203.0.113.2")
	d := newTestDispatcher(reg)

	resp := d.Dispatch("neighbor * announce route 198.51.100.0/24 next-hop 203.0.113.1")
	if !resp.OK {
		t.Fatalf("dispatch failed: %s", resp.Message)
	}
	for _, name := range []string{"203.0.113.1", "203.0.113.2"} {
		if !reg.byName[name].out.HasPending() {
			t.Fatalf("expected neighbor %s to receive the wildcard announce", name)
		}
	}
}

func TestDispatch_UnknownNeighborErrors(t *testing.T) {
	reg := newFakeRegistry("203.0.113.1")
	d := newTestDispatcher(reg)

	resp := d.Dispatch("neighbor 203.0.113.99 announce route 198.51.100.0/24 next-hop 203.0.113.1")
	if resp.OK {
		t.Fatalf("expected error dispatching to unknown neighbor")
	}
}

func TestDispatch_LegacyAnnounceWithNoSelectorTargetsWildcard(t *testing.T) {
	reg := newFakeRegistry("203.0.113.1")
	d := newTestDispatcher(reg)

	resp := d.Dispatch("announce route 198.51.100.0/24 next-hop 203.0.113.1")
	if !resp.OK {
		t.Fatalf("dispatch failed: %s", resp.Message)
	}
	if !reg.byName["203.0.113.1"].out.HasPending() {
		t.Fatalf("expected legacy bare announce to reach the only configured neighbor")
	}
}

func TestDispatch_LegacyPreferenceKeywordTranslated(t *testing.T) {
	reg := newFakeRegistry("203.0.113.1")
	d := newTestDispatcher(reg)

	resp := d.Dispatch("neighbor 203.0.113.1 announce route 198.51.100.0/24 next-hop 203.0.113.1 preference 200")
	if !resp.OK {
		t.Fatalf("dispatch failed: %s", resp.Message)
	}
}

func TestDispatch_GroupSharesAttributesAcrossRoutes(t *testing.T) {
	reg := newFakeRegistry("203.0.113.1")
	d := newTestDispatcher(reg)

	steps := []string{
		"neighbor 203.0.113.1 group start",
		"neighbor 203.0.113.1 group attributes community 65001:100",
		"neighbor 203.0.113.1 announce route 198.51.100.0/24 next-hop 203.0.113.1",
		"neighbor 203.0.113.1 announce route 198.51.101.0/24 next-hop 203.0.113.1",
		"neighbor 203.0.113.1 group end",
	}
	for _, line := range steps {
		resp := d.Dispatch(line)
		if !resp.OK {
			t.Fatalf("step %q failed: %s", line, resp.Message)
		}
	}

	n := reg.byName["203.0.113.1"]
	if n.flushed == 0 {
		t.Fatalf("expected group end to flush buffered routes")
	}
	if !n.out.HasPending() {
		t.Fatalf("expected both grouped routes pending")
	}
}

func TestDispatch_TeardownSymbolicCode(t *testing.T) {
	reg := newFakeRegistry("203.0.113.1")
	d := newTestDispatcher(reg)

	resp := d.Dispatch("neighbor 203.0.113.1 teardown administrative-reset")
	if !resp.OK {
		t.Fatalf("dispatch failed: %s", resp.Message)
	}
	n := reg.byName["203.0.113.1"]
	if len(n.tornDown) != 1 || n.tornDown[0] != bgp.SubcodeCeaseAdminReset {
		t.Fatalf("expected administrative-reset subcode, got %+v", n.tornDown)
	}
}

func TestDispatch_VersionNegotiation(t *testing.T) {
	reg := newFakeRegistry()
	d := newTestDispatcher(reg)

	resp := d.Dispatch("version 4")
	if !resp.OK || resp.Data["version"] != 4 {
		t.Fatalf("expected version negotiation to 4, got %+v", resp)
	}
}

func TestDispatch_StatusReportsCountsAndToggles(t *testing.T) {
	reg := newFakeRegistry("203.0.113.1", "203.0.113.2")
	reg.byName["203.0.113.1"].established = true
	d := newTestDispatcher(reg)

	resp := d.Dispatch("status")
	if !resp.OK {
		t.Fatalf("dispatch failed: %s", resp.Message)
	}
	if resp.Data["configured"] != 2 || resp.Data["established"] != 1 {
		t.Fatalf("unexpected status data: %+v", resp.Data)
	}
	if resp.Data["ack"] != true {
		t.Fatalf("expected ack enabled by default, got %+v", resp.Data)
	}
}

func TestDispatch_AckEnableDisableSilence(t *testing.T) {
	reg := newFakeRegistry()
	d := newTestDispatcher(reg)

	if resp := d.Dispatch("ack disable"); !resp.OK || d.ackEnabled {
		t.Fatalf("expected ack disabled, got resp=%+v ackEnabled=%v", resp, d.ackEnabled)
	}
	if resp := d.Dispatch("ack silence"); !resp.OK || d.ackEnabled {
		t.Fatalf("expected ack silence treated as disabled, got resp=%+v ackEnabled=%v", resp, d.ackEnabled)
	}
	if resp := d.Dispatch("ack enable"); !resp.OK || !d.ackEnabled {
		t.Fatalf("expected ack re-enabled, got resp=%+v ackEnabled=%v", resp, d.ackEnabled)
	}
	if resp := d.Dispatch("ack bogus"); resp.OK {
		t.Fatalf("expected unknown ack mode to be rejected")
	}
}

func TestDispatch_SyncEnableSetsSessionDefault(t *testing.T) {
	reg := newFakeRegistry("203.0.113.1")
	d := newTestDispatcher(reg)

	if resp := d.Dispatch("sync enable"); !resp.OK || !d.syncEnabled {
		t.Fatalf("expected sync enabled, got resp=%+v syncEnabled=%v", resp, d.syncEnabled)
	}

	resp := d.Dispatch("neighbor 203.0.113.1 announce route 198.51.100.0/24 next-hop 203.0.113.1")
	if !resp.OK {
		t.Fatalf("dispatch failed: %s", resp.Message)
	}
	if len(resp.SyncWait) != 1 {
		t.Fatalf("expected route command to inherit the session sync default, got SyncWait=%+v", resp.SyncWait)
	}
}

func TestDispatch_RouteLineSyncKeywordSetsWait(t *testing.T) {
	reg := newFakeRegistry("203.0.113.1")
	d := newTestDispatcher(reg)

	resp := d.Dispatch("neighbor 203.0.113.1 announce route 198.51.100.0/24 next-hop 203.0.113.1 sync")
	if !resp.OK {
		t.Fatalf("dispatch failed: %s", resp.Message)
	}
	if len(resp.SyncWait) != 1 {
		t.Fatalf("expected trailing sync keyword to set SyncWait, got %+v", resp.SyncWait)
	}
}

func TestDispatch_RouteLineAsyncOverridesSessionDefault(t *testing.T) {
	reg := newFakeRegistry("203.0.113.1")
	d := newTestDispatcher(reg)
	d.Dispatch("sync enable")

	resp := d.Dispatch("neighbor 203.0.113.1 announce route 198.51.100.0/24 next-hop 203.0.113.1 async")
	if !resp.OK {
		t.Fatalf("dispatch failed: %s", resp.Message)
	}
	if len(resp.SyncWait) != 0 {
		t.Fatalf("expected trailing async keyword to override the session sync default, got %+v", resp.SyncWait)
	}
}

func TestDispatch_SessionVerbsAreAccepted(t *testing.T) {
	reg := newFakeRegistry()
	d := newTestDispatcher(reg)

	for _, line := range []string{"reset", "ping", "help"} {
		if resp := d.Dispatch(line); !resp.OK {
			t.Fatalf("dispatch %q failed: %s", line, resp.Message)
		}
	}
}

func TestDispatch_RestartInvokesHook(t *testing.T) {
	reg := newFakeRegistry()
	called := false
	d := NewDispatcher(reg, Hooks{Restart: func() { called = true }}, zap.NewNop())

	if resp := d.Dispatch("restart"); !resp.OK {
		t.Fatalf("dispatch failed: %s", resp.Message)
	}
	if !called {
		t.Fatalf("expected Restart hook to be invoked")
	}
}

func TestDispatch_ByeInvokesShutdownHook(t *testing.T) {
	reg := newFakeRegistry()
	called := false
	d := NewDispatcher(reg, Hooks{Shutdown: func() { called = true }}, zap.NewNop())

	if resp := d.Dispatch("bye"); !resp.OK {
		t.Fatalf("dispatch failed: %s", resp.Message)
	}
	if !called {
		t.Fatalf("expected Shutdown hook to be invoked by bye")
	}
}

func TestDispatch_ApiVersionSyntax(t *testing.T) {
	reg := newFakeRegistry()
	d := newTestDispatcher(reg)

	resp := d.Dispatch("api version 5")
	if !resp.OK || resp.Data["version"] != 5 {
		t.Fatalf("expected api version 5 to negotiate version 5, got %+v", resp)
	}
}
