// Package api implements the command-and-control surface described in
// SPEC_FULL.md's API / process-control sections: a line-oriented grammar
// (daemon/session/system/peer/group commands), v4-compatible legacy
// text rewriting, neighbor-group buffering with shared attribute
// inheritance, and JSON/text response encoding for forked helpers and the
// FIFO CLI alike.
package api

import (
	"fmt"
	"sort"
	"strings"

	"github.com/exabgpd/bgpd/internal/bgp"
	"github.com/exabgpd/bgpd/internal/rib"
)

// Neighbor is what the API needs from one configured/running peer. The
// reactor implements it; api never reaches into FSM or socket internals
// directly.
type Neighbor interface {
	Name() string
	PeerASN() bgp.ASN
	Established() bool
	Negotiated() *bgp.Negotiated
	Outgoing() *rib.Outgoing
	Flush() // requests the reactor pull pending updates for this peer on its next turn
	// Teardown administratively closes the session with a CEASE
	// notification carrying subcode.
	Teardown(subcode uint8)
}

// Registry resolves neighbor selectors ("*", a single peer address, or a
// comma-separated list) against the set of configured neighbors.
type Registry interface {
	Neighbor(name string) (Neighbor, bool)
	All() []Neighbor
}

// ResolveSelector expands a neighbor selector token into the matching
// Neighbor set, in deterministic (name-sorted) order so repeated
// selections of "*" enumerate peers identically across calls.
func ResolveSelector(reg Registry, selector string) ([]Neighbor, error) {
	if selector == "*" || selector == "" {
		all := reg.All()
		sort.Slice(all, func(i, j int) bool { return all[i].Name() < all[j].Name() })
		return all, nil
	}

	var names []string
	for _, part := range strings.Split(selector, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			names = append(names, part)
		}
	}
	sort.Strings(names)

	out := make([]Neighbor, 0, len(names))
	for _, name := range names {
		n, ok := reg.Neighbor(name)
		if !ok {
			return nil, fmt.Errorf("api: unknown neighbor %q", name)
		}
		out = append(out, n)
	}
	return out, nil
}
