// Package fsm implements the per-peer BGP finite state machine: state
// transitions, hold/keepalive timers, graceful-restart bookkeeping, and
// reconnect backoff. It owns no socket or RIB state directly — the
// reactor drives it with events and carries out the actions it returns,
// keeping the transition logic itself free of I/O and therefore testable
// without a network.
package fsm

import (
	"fmt"
	"time"

	"github.com/exabgpd/bgpd/internal/bgp"
)

type State int

const (
	Idle State = iota
	Connect
	Active
	OpenSent
	OpenConfirm
	Established
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Connect:
		return "CONNECT"
	case Active:
		return "ACTIVE"
	case OpenSent:
		return "OPENSENT"
	case OpenConfirm:
		return "OPENCONFIRM"
	case Established:
		return "ESTABLISHED"
	default:
		return "UNKNOWN"
	}
}

// Action is what the caller must carry out after an event is applied.
// The FSM never performs I/O itself; it only reports what's needed.
type Action int

const (
	ActionNone Action = iota
	ActionStartConnect
	ActionStartListen
	ActionSendOpen
	ActionSendKeepalive
	ActionSendNotifyHoldTimer
	ActionSendNotifyCease
	ActionClose
	ActionRunNeighborUpHelpers
	ActionScheduleReconnect
	ActionRetainGracefulRestartCache
	ActionWithdrawStaleGracefulRestart
)

const minHoldTime = 3 * time.Second
const initialBackoff = 1 * time.Second
const maxBackoff = 60 * time.Second

// Peer holds one neighbor's FSM state. Construct with New and drive it
// with the event methods; each returns the Action the reactor must take.
type Peer struct {
	State State

	localASN, peerASN   bgp.ASN
	localHold, peerHold uint16 // as advertised in each side's OPEN, seconds

	Negotiated *bgp.Negotiated

	holdTimer      time.Duration
	keepaliveTimer time.Duration
	holdDeadline   time.Time
	keepaliveDue   time.Time

	graceful           bool
	graceFamiliesAlive map[bgp.Family]bool
	graceDeadline      time.Time

	backoff        time.Duration
	nextReconnect  time.Time
	localCaps      *bgp.CapabilitySet
	localRouterID  uint32
}

// New constructs a Peer FSM in IDLE, not yet negotiated.
func New(localASN bgp.ASN, localHoldSeconds uint16, localCaps *bgp.CapabilitySet, localRouterID uint32) *Peer {
	return &Peer{
		State:         Idle,
		localASN:      localASN,
		localHold:     localHoldSeconds,
		localCaps:     localCaps,
		localRouterID: localRouterID,
		backoff:       initialBackoff,
	}
}

// AdminStart begins a connection attempt: CONNECT if this side dials out,
// ACTIVE if it only listens for the peer to connect (passive neighbors).
func (p *Peer) AdminStart(passive bool) Action {
	if p.State != Idle {
		return ActionNone
	}
	if passive {
		p.State = Active
		return ActionStartListen
	}
	p.State = Connect
	return ActionStartConnect
}

// ConnectionCompleted fires when an outbound TCP dial succeeds.
func (p *Peer) ConnectionCompleted() Action {
	if p.State != Connect {
		return ActionNone
	}
	p.State = OpenSent
	return ActionSendOpen
}

// IncomingAccept fires when a listener hands this peer an inbound
// connection while it was passively waiting.
func (p *Peer) IncomingAccept() Action {
	if p.State != Active {
		return ActionNone
	}
	p.State = OpenSent
	return ActionSendOpen
}

// RecvOpen validates the peer's OPEN against configuration, negotiates
// capabilities on success, and moves to OPENCONFIRM.
func (p *Peer) RecvOpen(open *bgp.Open, expectedPeerASN bgp.ASN) (Action, error) {
	if p.State != OpenSent {
		return ActionNone, fmt.Errorf("fsm: recv OPEN not expected in state %s", p.State)
	}
	peerASN := open.RealASN()
	if expectedPeerASN != 0 && peerASN != expectedPeerASN {
		return ActionSendNotifyCease, fmt.Errorf("fsm: peer ASN %d does not match configured %d", peerASN, expectedPeerASN)
	}

	p.peerASN = peerASN
	p.peerHold = open.HoldTime
	hold := negotiateHoldTime(p.localHold, p.peerHold)
	p.Negotiated = bgp.Negotiate(p.localCaps, open.Caps, p.localASN, peerASN, hold)
	p.graceful = p.Negotiated.GracefulRestart

	p.holdTimer = hold
	if hold > 0 {
		p.keepaliveTimer = hold / 3
	}

	p.State = OpenConfirm
	return ActionSendKeepalive, nil
}

// RecvKeepalive in OPENCONFIRM completes the three-way handshake.
func (p *Peer) RecvKeepalive(now time.Time) Action {
	p.resetHoldTimer(now)
	if p.State != OpenConfirm {
		return ActionNone
	}
	p.State = Established
	p.backoff = initialBackoff
	if p.keepaliveTimer > 0 {
		p.keepaliveDue = now.Add(p.keepaliveTimer)
	}
	if p.graceful {
		p.graceFamiliesAlive = make(map[bgp.Family]bool)
		for f := range p.Negotiated.GracefulRestartFamilies {
			p.graceFamiliesAlive[f] = true
		}
	}
	return ActionRunNeighborUpHelpers
}

// RecvUpdate resets the hold timer; the caller is responsible for feeding
// the UPDATE to the codec and incoming RIB.
func (p *Peer) RecvUpdate(now time.Time) Action {
	p.resetHoldTimer(now)
	return ActionNone
}

// KeepaliveTimerDue reports whether it's time to send a KEEPALIVE and, if
// so, reschedules the timer.
func (p *Peer) KeepaliveTimerDue(now time.Time) Action {
	if p.State != Established || p.keepaliveTimer <= 0 {
		return ActionNone
	}
	if now.Before(p.keepaliveDue) {
		return ActionNone
	}
	p.keepaliveDue = now.Add(p.keepaliveTimer)
	return ActionSendKeepalive
}

// PendingRIBWork always returns ActionNone; the reactor's tick drains the
// outgoing RIB itself.
func (p *Peer) PendingRIBWork() Action {
	if p.State != Established {
		return ActionNone
	}
	return ActionNone
}

// HoldTimerExpired checks whether the hold timer has lapsed.
func (p *Peer) HoldTimerExpired(now time.Time) Action {
	if p.holdTimer <= 0 || p.holdDeadline.IsZero() {
		return ActionNone
	}
	if now.Before(p.holdDeadline) {
		return ActionNone
	}
	p.toIdle()
	return ActionSendNotifyHoldTimer
}

// RecvNotification closes the session and schedules a reconnect.
func (p *Peer) RecvNotification(notif *bgp.Notification) Action {
	p.toIdle()
	return ActionScheduleReconnect
}

// AdminShutdown closes the session administratively.
func (p *Peer) AdminShutdown() Action {
	p.toIdle()
	return ActionSendNotifyCease
}

// ConnectionLost is the FSM's reaction to a dropped TCP connection
// (read/write error, EOF) rather than a protocol-level NOTIFICATION. If
// graceful restart was negotiated, the caller must NOT synthesize
// withdraws to other subsystems and must start the restart timer.
func (p *Peer) ConnectionLost(now time.Time) Action {
	wasEstablished := p.State == Established
	var restartTime time.Duration
	if p.Negotiated != nil {
		restartTime = p.Negotiated.GracefulRestartTime
	}
	p.toIdle()
	if wasEstablished && p.graceful {
		p.graceDeadline = now.Add(restartTime)
		return ActionRetainGracefulRestartCache
	}
	return ActionScheduleReconnect
}

// GracefulRestartExpired reports whether the restart timer has lapsed
// without an End-of-RIB, meaning retained routes must now be withdrawn.
func (p *Peer) GracefulRestartExpired(now time.Time) Action {
	if p.graceDeadline.IsZero() || now.Before(p.graceDeadline) {
		return ActionNone
	}
	p.graceDeadline = time.Time{}
	return ActionWithdrawStaleGracefulRestart
}

// PeerASN returns the peer's real ASN, valid once OPEN has been
// exchanged (zero before then).
func (p *Peer) PeerASN() bgp.ASN { return p.peerASN }

func (p *Peer) toIdle() {
	p.State = Idle
	p.Negotiated = nil
	p.holdTimer = 0
	p.keepaliveTimer = 0
	p.holdDeadline = time.Time{}
	p.keepaliveDue = time.Time{}
}

func (p *Peer) resetHoldTimer(now time.Time) {
	if p.holdTimer > 0 {
		p.holdDeadline = now.Add(p.holdTimer)
	}
}

// NextBackoff returns the delay to wait before the next reconnect
// attempt and advances the internal backoff state (capped, doubling).
func (p *Peer) NextBackoff() time.Duration {
	d := p.backoff
	p.backoff *= 2
	if p.backoff > maxBackoff {
		p.backoff = maxBackoff
	}
	return d
}

func negotiateHoldTime(local, peer uint16) time.Duration {
	if local == 0 || peer == 0 {
		return 0
	}
	h := local
	if peer < h {
		h = peer
	}
	hold := time.Duration(h) * time.Second
	if hold < minHoldTime {
		hold = minHoldTime
	}
	return hold
}
