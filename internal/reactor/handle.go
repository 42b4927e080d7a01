package reactor

import (
	"github.com/exabgpd/bgpd/internal/bgp"
	"github.com/exabgpd/bgpd/internal/rib"
)

// neighborHandle adapts a session to the api.Neighbor interface without
// exposing FSM/connection internals: Flush and Teardown go through the
// reactor's ctrl channel so the actual mutation still happens on the
// single reactor goroutine.
type neighborHandle struct {
	s *session
	r *Reactor
}

func (h neighborHandle) Name() string               { return h.s.name }
func (h neighborHandle) PeerASN() bgp.ASN            { return h.s.fsm.PeerASN() }
func (h neighborHandle) Established() bool           { return h.s.established() }
func (h neighborHandle) Negotiated() *bgp.Negotiated { return h.s.fsm.Negotiated }

func (h neighborHandle) Outgoing() *rib.Outgoing {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.s.outgoing == nil {
		h.s.outgoing = rib.NewOutgoing(nil)
	}
	return h.s.outgoing
}

func (h neighborHandle) Flush() {
	select {
	case h.r.ctrl <- ctrlRequest{kind: ctrlFlush, peer: h.s.name}:
	default:
	}
}

func (h neighborHandle) Teardown(subcode uint8) {
	select {
	case h.r.ctrl <- ctrlRequest{kind: ctrlTeardown, peer: h.s.name, subcode: subcode}:
	default:
	}
}
