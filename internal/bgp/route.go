package bgp

// Route is NLRI + attributes + an explicit action + an explicit next-hop,
// which is distinct from any next-hop encoded inside an attribute (e.g. the
// classic NEXT_HOP attribute, or MP_REACH's next-hop field) — this is the
// local next-hop the RIB uses for outbound policy before the attribute is
// packed. Routes are immutable; With* methods return derivations.
//
// Route.Action is always set explicitly at construction. There is no
// fallback to NLRI.Action(): SPEC_FULL §Design Decisions on Open Questions
// resolves this open question by requiring an explicit action everywhere.
type Route struct {
	nlri       NLRI
	attrs      *AttributeCollection
	action     Action
	nextHop    IP
	refcount   int
}

// NewRoute constructs a Route. action is mandatory; passing ActionUnset
// is a programmer error (not guarded at runtime to keep this hot path
// allocation-free, but every call site in this codebase passes an explicit
// value — see internal/api and internal/rib).
func NewRoute(nlri NLRI, attrs *AttributeCollection, action Action, nextHop IP) *Route {
	return &Route{nlri: nlri, attrs: attrs, action: action, nextHop: nextHop, refcount: 1}
}

func (r *Route) NLRI() NLRI                        { return r.nlri }
func (r *Route) Attributes() *AttributeCollection  { return r.attrs }
func (r *Route) Action() Action                    { return r.action }
func (r *Route) NextHop() IP                       { return r.nextHop }
func (r *Route) Family() Family                    { return r.nlri.Family() }

// WithAction returns a derived Route carrying a new action; the NLRI's own
// action is kept in sync so Pack()/Index() stay consistent.
func (r *Route) WithAction(a Action) *Route {
	c := *r
	c.action = a
	c.nlri = r.nlri.WithAction(a)
	c.refcount = 1
	return &c
}

func (r *Route) WithNextHop(nh IP) *Route {
	c := *r
	c.nextHop = nh
	c.refcount = 1
	return &c
}

// WithMergedAttributes returns a derivation whose attribute collection is
// the receiver's base attributes overlaid with extra (extra wins on
// conflicting codes) — used by group-level `attributes ...` inheritance.
func (r *Route) WithMergedAttributes(extra *AttributeCollection) *Route {
	merged := r.attrs.Clone()
	for _, code := range extra.sortedCodes() {
		a, _ := extra.Get(code)
		merged.Set(a)
	}
	c := *r
	c.attrs = merged
	c.refcount = 1
	return &c
}

// Retain/Release implement the refcount used by the process-wide route
// store (§4.6) to dedup identical routes injected for multiple peers.
func (r *Route) Retain() { r.refcount++ }

// Release decrements the refcount and reports whether it reached zero
// (the caller should then remove the route from the store).
func (r *Route) Release() bool {
	r.refcount--
	return r.refcount <= 0
}

func (r *Route) Refcount() int { return r.refcount }
