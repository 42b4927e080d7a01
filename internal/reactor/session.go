package reactor

import (
	"net"
	"strings"
	"sync"

	"github.com/exabgpd/bgpd/internal/bgp"
	"github.com/exabgpd/bgpd/internal/config"
	"github.com/exabgpd/bgpd/internal/fsm"
	"github.com/exabgpd/bgpd/internal/rib"
)

// incomingRoute is one route this speaker received from a peer, kept in
// the incoming RIB for show-routes/audit purposes; the reactor does not
// otherwise act on incoming routes (no policy engine, per SPEC_FULL's
// Non-goals).
type incomingRoute struct {
	route *bgp.Route
}

// session is one configured neighbor's full runtime state: its FSM, its
// outgoing RIB, its live connection (if any), and the incoming routes it
// last advertised. The reactor's single goroutine is the only thing that
// ever mutates a session; reader goroutines only ever send parsed
// messages onto the shared events channel.
type session struct {
	name string
	cfg  config.NeighborConfig

	fsm      *fsm.Peer
	outgoing *rib.Outgoing

	mu       sync.Mutex
	conn     net.Conn
	incoming map[string]*incomingRoute // keyed by NLRI index, classic unicast only for now

	closing bool
}

func newSession(name string, cfg config.NeighborConfig, localASN bgp.ASN, localRouterID uint32, caps *bgp.CapabilitySet) *session {
	holdTime := uint16(90)
	if cfg.HoldTime > 0 {
		holdTime = uint16(cfg.HoldTime)
	} else if cfg.HoldTime < 0 {
		holdTime = 0
	}
	return &session{
		name:     name,
		cfg:      cfg,
		fsm:      fsm.New(localASN, holdTime, caps, localRouterID),
		incoming: make(map[string]*incomingRoute),
	}
}

func (s *session) established() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fsm.State == fsm.Established
}

func (s *session) setConn(c net.Conn) {
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
}

func (s *session) closeConn() {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.mu.Unlock()
	if c != nil {
		c.Close()
	}
}

func (s *session) send(msg bgp.Message, neg *bgp.Negotiated) error {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	data, err := bgp.PackMessage(msg, neg)
	if err != nil {
		return err
	}
	_, err = c.Write(data)
	return err
}

// buildLocalCapabilities derives this speaker's OPEN capabilities from the
// neighbor configuration: MP-BGP families, optional Add-Path per family,
// 4-byte ASN (always offered), route-refresh (always offered),
// enhanced-route-refresh, and graceful restart when requested.
func buildLocalCapabilities(cfg config.NeighborConfig, localASN bgp.ASN) *bgp.CapabilitySet {
	c := bgp.NewCapabilitySet()
	c.ASN4 = true
	c.RouteRefresh = true
	c.EnhancedRouteRefresh = true

	families := parseFamilies(cfg.Families)
	if len(families) == 0 {
		families = []bgp.Family{bgp.FamilyIPv4Unicast}
	}
	c.MultiprotocolFamilies = families

	for _, tok := range cfg.AddPath {
		f, role, ok := parseAddPathToken(tok, families)
		if !ok {
			continue
		}
		c.AddPath[f] = role
	}

	if cfg.GracefulRestart {
		c.GracefulRestart = true
		c.GracefulRestartTime = 120
		for _, f := range families {
			c.GracefulRestartFamilies = append(c.GracefulRestartFamilies, bgp.GracefulRestartFamily{Family: f, ForwardingPreserved: true})
		}
	}

	return c
}

func parseFamilies(names []string) []bgp.Family {
	var out []bgp.Family
	for _, n := range names {
		switch strings.ToLower(n) {
		case "ipv4", "ipv4-unicast":
			out = append(out, bgp.FamilyIPv4Unicast)
		case "ipv6", "ipv6-unicast":
			out = append(out, bgp.FamilyIPv6Unicast)
		case "ipv4-labeled":
			out = append(out, bgp.FamilyIPv4Labeled)
		case "ipv6-labeled":
			out = append(out, bgp.FamilyIPv6Labeled)
		case "ipv4-mpls-vpn":
			out = append(out, bgp.FamilyIPv4MPLSVPN)
		case "ipv6-mpls-vpn":
			out = append(out, bgp.FamilyIPv6MPLSVPN)
		case "l2vpn-evpn":
			out = append(out, bgp.FamilyL2VPNEVPN)
		case "ipv4-flow":
			out = append(out, bgp.FamilyIPv4FlowSpec)
		case "ipv6-flow":
			out = append(out, bgp.FamilyIPv6FlowSpec)
		}
	}
	return out
}

// parseAddPathToken parses one "family:send|receive|send-receive" config
// entry, matching against families already configured so a typo in the
// family name is silently ignored (the family itself simply isn't
// negotiated) rather than crashing config load.
func parseAddPathToken(tok string, families []bgp.Family) (bgp.Family, bgp.AddPathRole, bool) {
	parts := strings.SplitN(tok, ":", 2)
	if len(parts) != 2 {
		return bgp.Family{}, bgp.AddPathRole{}, false
	}
	fams := parseFamilies([]string{parts[0]})
	if len(fams) == 0 {
		return bgp.Family{}, bgp.AddPathRole{}, false
	}
	role := bgp.AddPathRole{}
	switch strings.ToLower(parts[1]) {
	case "send":
		role.Send = true
	case "receive":
		role.Receive = true
	case "send-receive", "both":
		role.Send = true
		role.Receive = true
	default:
		return bgp.Family{}, bgp.AddPathRole{}, false
	}
	return fams[0], role, true
}
