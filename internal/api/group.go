package api

import (
	"fmt"
	"strings"

	"github.com/exabgpd/bgpd/internal/bgp"
)

// GroupBuffer accumulates route lines between "group start" and "group
// end", applying a shared "attributes ..." line to every route in the
// group via Route.WithMergedAttributes. It exists because the line
// protocol has no other way to express "these N routes all carry this
// MED/community set" without repeating the attribute tokens on every
// line.
type GroupBuffer struct {
	open    bool
	shared  *bgp.AttributeCollection
	pending []*bgp.Route
}

func NewGroupBuffer() *GroupBuffer {
	return &GroupBuffer{}
}

func (g *GroupBuffer) Open() bool { return g.open }

// Start begins a group; a group already open is an error rather than
// silently nesting, since the wire grammar has no concept of nested
// groups.
func (g *GroupBuffer) Start() error {
	if g.open {
		return fmt.Errorf("api: group already open")
	}
	g.open = true
	g.shared = bgp.NewAttributeCollection()
	g.pending = nil
	return nil
}

// SetAttributes records the tokens following "attributes" as the shared
// set every subsequently (or previously) buffered route will be merged
// with at End.
func (g *GroupBuffer) SetAttributes(tokens []string) error {
	if !g.open {
		return fmt.Errorf("api: attributes outside an open group")
	}
	// Reuse ParseRoute's attribute vocabulary by parsing a synthetic route
	// line of "0.0.0.0/0 next-hop 0.0.0.0 <tokens...>" and keeping only the
	// attribute collection it builds, rather than duplicating the keyword
	// switch here.
	synthetic := append([]string{"0.0.0.0/0", "next-hop", "0.0.0.0"}, tokens...)
	r, _, err := ParseRoute(synthetic, bgp.ActionAnnounce)
	if err != nil {
		return fmt.Errorf("api: group attributes: %w", err)
	}
	attrs := r.Attributes().Clone()
	attrs.Delete(bgp.AttrNextHop)
	g.shared = attrs
	return nil
}

// AddRoute buffers a route built from the given tokens for later merging.
func (g *GroupBuffer) AddRoute(tokens []string, action bgp.Action) error {
	if !g.open {
		return fmt.Errorf("api: route outside an open group")
	}
	r, _, err := ParseRoute(tokens, action)
	if err != nil {
		return err
	}
	g.pending = append(g.pending, r)
	return nil
}

// End closes the group, merging the shared attribute set into every
// buffered route (shared attributes win on conflicting codes, matching
// Route.WithMergedAttributes's documented precedence) and returns them.
func (g *GroupBuffer) End() ([]*bgp.Route, error) {
	if !g.open {
		return nil, fmt.Errorf("api: group end without a matching start")
	}
	out := make([]*bgp.Route, len(g.pending))
	for i, r := range g.pending {
		out[i] = r.WithMergedAttributes(g.shared)
	}
	g.open = false
	g.shared = nil
	g.pending = nil
	return out, nil
}

// IsGroupCommand reports whether line is one of the group-control verbs.
func IsGroupCommand(line string) (verb string, rest []string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "group" {
		return "", nil, false
	}
	if len(fields) < 2 {
		return "", nil, false
	}
	return fields[1], fields[2:], true
}
