// Package reactor is the cooperative scheduler tying together the peer
// FSM, the wire codec, the outgoing RIB, and TCP transport into a running
// BGP speaker. A single goroutine (Run) owns every mutation of FSM/RIB
// state; per-connection reader goroutines and per-peer dial goroutines
// only ever push events onto a shared channel, the same "ambient I/O on
// its own goroutine, mutation serialized on the main turn" split the
// teacher's Kafka-consumer reactor uses.
package reactor

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/exabgpd/bgpd/internal/api"
	"github.com/exabgpd/bgpd/internal/bgp"
	"github.com/exabgpd/bgpd/internal/conn"
	"github.com/exabgpd/bgpd/internal/config"
	"github.com/exabgpd/bgpd/internal/fsm"
	"github.com/exabgpd/bgpd/internal/metrics"
	"github.com/exabgpd/bgpd/internal/rib"
	sigqueue "github.com/exabgpd/bgpd/internal/reactor/signal"
)

// peerEvent is the single event type every goroutine but Run's own
// funnels through. Exactly one of its fields (besides peer) is set.
type peerEvent struct {
	peer    string
	frame   []byte
	newConn net.Conn
	connErr error
}

type ctrlKind int

const (
	ctrlFlush ctrlKind = iota
	ctrlTeardown
)

type ctrlRequest struct {
	kind    ctrlKind
	peer    string
	subcode uint8
}

// AuditSink and EventSink are the optional downstream channels the
// reactor publishes to; both are best-effort and never block RIB
// mutation (callers pass a buffered channel and drop-on-full is left to
// the consumer side, matching the audit/eventbus packages' own
// best-effort posture).
type AuditSink = chan<- AuditEvent

// AuditEvent mirrors internal/audit.Event's shape without importing that
// package directly, avoiding a reactor->audit->reactor import cycle risk
// as the audit package grows; cmd/bgpd's wiring converts one to the
// other at the channel boundary.
type AuditEvent struct {
	Time     time.Time
	Neighbor string
	PeerASN  bgp.ASN
	Kind     string
	Family   bgp.Family
	Prefix   string
	NextHop  string
}

// Reactor runs every configured neighbor's session to completion.
type Reactor struct {
	logger        *zap.Logger
	localASN      bgp.ASN
	localRouterID uint32

	mu       sync.RWMutex
	sessions map[string]*session

	listeners []*conn.Listener
	matcher   *matcherImpl

	events   chan peerEvent
	ctrl     chan ctrlRequest
	commands chan cmdRequest

	dispatcher *api.Dispatcher
	hooks      api.Hooks

	audit AuditSink

	// signals is the lock-free queue bridging asynchronous OS signal
	// delivery into the single "process at most one pending signal per
	// turn" reactor turn. The forwarding goroutine started in New is the
	// sole producer; Run's own loop is the sole consumer.
	signals *sigqueue.Queue
	sigCh   chan os.Signal

	wg sync.WaitGroup
}

// cmdRequest carries one API command line into the reactor's single
// goroutine, so Dispatch's RIB mutations are never concurrent with the
// reactor's own FSM/RIB handling. reply is nil for fire-and-forget
// callers (e.g. a process subscription with no ack expected).
type cmdRequest struct {
	line  string
	reply chan<- api.Response
}

// matcherImpl is a thin rename so reactor.go doesn't need to know conn's
// exported constructor name at every call site.
type matcherImpl = conn.Matcher

func New(cfg *config.Config, logger *zap.Logger, auditCh AuditSink, hooks api.Hooks) (*Reactor, error) {
	localASN := bgp.ASN(cfg.Service.LocalASN)
	routerID, err := parseRouterID(cfg.Service.RouterID)
	if err != nil {
		return nil, fmt.Errorf("reactor: %w", err)
	}

	r := &Reactor{
		logger:        logger.Named("reactor"),
		localASN:      localASN,
		localRouterID: routerID,
		sessions:      make(map[string]*session),
		events:        make(chan peerEvent, 256),
		ctrl:          make(chan ctrlRequest, 64),
		commands:      make(chan cmdRequest, 64),
		audit:         auditCh,
		signals:       sigqueue.New(),
		sigCh:         make(chan os.Signal, 8),
	}

	matcher := conn.NewMatcher()
	for name, nc := range cfg.Neighbors {
		caps := buildLocalCapabilities(nc, localASN)
		r.sessions[name] = newSession(name, nc, localASN, routerID, caps)

		if nc.PeerRange != "" {
			rng, err := parseIPRangeString(nc.PeerRange)
			if err != nil {
				return nil, fmt.Errorf("reactor: neighbor %s: %w", name, err)
			}
			matcher.AddRange(name, rng)
		} else {
			ip, err := parseIPString(nc.PeerAddress)
			if err != nil {
				return nil, fmt.Errorf("reactor: neighbor %s: %w", name, err)
			}
			matcher.AddExact(name, ip)
		}
	}
	r.matcher = matcher
	if hooks.Restart == nil {
		hooks.Restart = r.restartAllPeers
	}
	r.hooks = hooks
	r.dispatcher = api.NewDispatcher(r, hooks, logger)

	signal.Notify(r.sigCh, sigqueue.Signals...)
	go r.forwardSignals()

	return r, nil
}

// forwardSignals is the signal queue's sole producer goroutine. It starts
// the moment New returns, well before Run's loop ever calls MarkReady, so
// a signal delivered during process startup (config load, DB migration
// check, listener bind) is buffered rather than lost.
func (r *Reactor) forwardSignals() {
	for sig := range r.sigCh {
		kind := sigqueue.KindForSignal(sig)
		if kind == sigqueue.None {
			continue
		}
		r.signals.Push(kind, sigqueue.Number(sig))
	}
}

// Dispatch queues line for execution on the reactor's own goroutine and
// blocks until it completes, returning the command's Response. Safe to
// call from any goroutine (FIFO reader, forked-process reader, HTTP
// handler).
//
// A sync-mode route command (api.Response.SyncWait non-empty) needs a
// second, potentially slow wait for the UPDATE to actually reach every
// targeted peer's send buffer. That wait runs here, on the caller's own
// goroutine, after the quick RIB-mutation Response has already come back
// through reply — never inside the reactor's own turn, which is what
// drains the outgoing RIB in the first place and would deadlock against
// itself if asked to block on its own progress.
func (r *Reactor) Dispatch(ctx context.Context, line string) (api.Response, error) {
	reply := make(chan api.Response, 1)
	select {
	case r.commands <- cmdRequest{line: line, reply: reply}:
	case <-ctx.Done():
		return api.Response{}, ctx.Err()
	}
	select {
	case resp := <-reply:
		if len(resp.SyncWait) > 0 {
			if err := r.dispatcher.WaitForFlush(ctx, resp.SyncWait); err != nil {
				return resp, err
			}
		}
		return resp, nil
	case <-ctx.Done():
		return api.Response{}, ctx.Err()
	}
}

// ConfiguredCount satisfies httpapi.ReactorStatus.
func (r *Reactor) ConfiguredCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// EstablishedCount satisfies httpapi.ReactorStatus.
func (r *Reactor) EstablishedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if s.established() {
			n++
		}
	}
	return n
}

// Neighbor and All satisfy api.Registry, wrapping each session as an
// api.Neighbor handle bound to this reactor's control channel.
func (r *Reactor) Neighbor(name string) (api.Neighbor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[name]
	if !ok {
		return nil, false
	}
	return neighborHandle{s: s, r: r}, true
}

func (r *Reactor) All() []api.Neighbor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]api.Neighbor, 0, len(r.sessions))
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, neighborHandle{s: r.sessions[name], r: r})
	}
	return out
}

// Listen opens every configured listen address; call before Run.
func (r *Reactor) Listen(addresses []string) error {
	for _, addr := range addresses {
		ln, err := conn.Listen(addr)
		if err != nil {
			return fmt.Errorf("reactor: listen %s: %w", addr, err)
		}
		r.listeners = append(r.listeners, ln)
	}
	return nil
}

// Run starts every background goroutine (listeners, per-peer dialers,
// readers) and then drains the shared event channel until ctx is
// cancelled, applying every FSM/RIB mutation serially on this goroutine.
func (r *Reactor) Run(ctx context.Context) error {
	for _, ln := range r.listeners {
		r.wg.Add(1)
		go r.acceptLoop(ctx, ln)
	}

	r.mu.RLock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	for _, name := range names {
		s := r.sessions[name]
		action := s.fsm.AdminStart(s.cfg.Passive)
		r.applyAction(s, action)
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	// MarkReady flips the signal queue from "buffering only" to active
	// processing, promoting whatever arrived during startup (listener
	// bind, AdminStart above) so it is handled on the very next turn
	// instead of being silently dropped.
	r.signals.MarkReady()

	for {
		if kind, num := r.signals.Tick(); kind != sigqueue.None {
			r.handleSignalAction(kind, num)
			r.signals.Rearm()
		}

		select {
		case <-ctx.Done():
			r.shutdown()
			r.wg.Wait()
			return nil
		case ev := <-r.events:
			r.handleEvent(ev)
		case req := <-r.ctrl:
			r.handleCtrl(req)
		case req := <-r.commands:
			resp := r.dispatcher.Dispatch(req.line)
			if req.reply != nil {
				req.reply <- resp
			}
		case now := <-ticker.C:
			r.tick(now)
		}
	}
}

// handleSignalAction applies one reactor-level signal action (at most one
// per turn, per the signal queue's Tick contract). Shutdown goes through
// the same hook the "shutdown" API command uses so both paths converge on
// one code path; ctx cancellation (main's own signal handling, or a test
// harness) still works independently of this.
func (r *Reactor) handleSignalAction(kind sigqueue.Kind, signum int) {
	r.logger.Info("signal received", zap.String("action", kind.String()), zap.Int("signal", signum))
	switch kind {
	case sigqueue.Shutdown:
		// Graceful shutdown: tear sessions down on this turn, then let
		// Hooks.Shutdown (main's cancel(ctx)) stop Run's loop through the
		// normal ctx.Done path, same as the "shutdown" API command.
		r.shutdown()
		if r.hooks.Shutdown != nil {
			r.hooks.Shutdown()
		}
	case sigqueue.Reload:
		if r.hooks.Reload != nil {
			r.hooks.Reload()
		}
	case sigqueue.Restart:
		if r.hooks.Restart != nil {
			r.hooks.Restart()
		}
	}
}

// restartAllPeers tears down every established session with a CEASE/
// administrative-reset notification and lets the FSM's own reconnect
// backoff bring it back up, without exiting the process. Mirrors
// handleCtrl's ctrlTeardown case, applied to every session instead of one.
func (r *Reactor) restartAllPeers() {
	r.mu.RLock()
	sessions := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		if !s.established() {
			continue
		}
		s.send(&bgp.Notification{Code: bgp.NotifyCease, Subcode: bgp.SubcodeCeaseAdminReset}, s.fsm.Negotiated)
		metrics.MessagesTotal.WithLabelValues(s.name, "send", "notification").Inc()
		s.closeConn()
		r.applyAction(s, s.fsm.ConnectionLost(time.Now()))
	}
}

func (r *Reactor) shutdown() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.established() {
			action := s.fsm.AdminShutdown()
			r.applyAction(s, action)
		} else {
			s.closeConn()
		}
	}
	for _, ln := range r.listeners {
		ln.Close()
	}
}

func (r *Reactor) tick(now time.Time) {
	r.mu.RLock()
	sessions := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		if action := s.fsm.HoldTimerExpired(now); action != fsm.ActionNone {
			r.applyAction(s, action)
			continue
		}
		if action := s.fsm.KeepaliveTimerDue(now); action != fsm.ActionNone {
			r.applyAction(s, action)
		}
		if action := s.fsm.GracefulRestartExpired(now); action != fsm.ActionNone {
			r.applyAction(s, action)
		}
		if s.established() && s.outgoing != nil && s.outgoing.HasPending() {
			r.drainOutgoing(s)
		}
	}
}

// drainOutgoing pulls one grouped UPDATE off the session's outgoing RIB
// and writes it, matching NextUpdate's "restartable" contract: whatever
// isn't popped this turn waits for the next.
func (r *Reactor) drainOutgoing(s *session) {
	upd, ok := s.outgoing.NextUpdate(true)
	if !ok {
		return
	}
	start := time.Now()
	if err := s.send(upd, s.fsm.Negotiated); err != nil {
		r.logger.Warn("write UPDATE failed", zap.String("neighbor", s.name), zap.Error(err))
		return
	}
	metrics.UpdateWriteDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())
	metrics.BatchSize.WithLabelValues(s.name).Observe(float64(len(upd.NLRI) + len(upd.Withdrawn)))
	metrics.MessagesTotal.WithLabelValues(s.name, "send", "update").Inc()
}

func (r *Reactor) handleEvent(ev peerEvent) {
	r.mu.RLock()
	s, ok := r.sessions[ev.peer]
	r.mu.RUnlock()
	if !ok {
		if ev.newConn != nil {
			ev.newConn.Close()
		}
		return
	}

	switch {
	case ev.newConn != nil:
		r.handleNewConn(s, ev.newConn)
	case ev.connErr != nil:
		r.handleConnLost(s)
	default:
		r.handleFrame(s, ev.frame)
	}
}

func (r *Reactor) handleNewConn(s *session, c net.Conn) {
	s.setConn(c)
	var action fsm.Action
	if s.fsm.State == fsm.Connect {
		action = s.fsm.ConnectionCompleted()
	} else {
		action = s.fsm.IncomingAccept()
	}
	r.applyAction(s, action)
	r.wg.Add(1)
	go r.readLoop(s.name, c)
}

func (r *Reactor) handleConnLost(s *session) {
	s.closeConn()
	action := s.fsm.ConnectionLost(time.Now())
	r.applyAction(s, action)
}

func (r *Reactor) handleFrame(s *session, frame []byte) {
	msg, err := bgp.UnpackMessage(frame, s.fsm.Negotiated)
	if err != nil {
		metrics.ParseErrorsTotal.WithLabelValues(s.name, "message", "unpack").Inc()
		if pe, ok := err.(*bgp.ParseError); ok {
			s.send(pe.AsNotification(), s.fsm.Negotiated)
		}
		s.closeConn()
		r.applyAction(s, s.fsm.ConnectionLost(time.Now()))
		return
	}

	metrics.MessagesTotal.WithLabelValues(s.name, "recv", messageKind(msg)).Inc()

	switch m := msg.(type) {
	case *bgp.Open:
		expected := bgp.ASN(s.cfg.PeerASN)
		action, err := s.fsm.RecvOpen(m, expected)
		if err != nil {
			r.logger.Warn("OPEN rejected", zap.String("neighbor", s.name), zap.Error(err))
		}
		r.applyAction(s, action)
	case *bgp.Keepalive:
		r.applyAction(s, s.fsm.RecvKeepalive(time.Now()))
	case *bgp.Update:
		r.applyAction(s, s.fsm.RecvUpdate(time.Now()))
		r.handleUpdate(s, m)
	case *bgp.Notification:
		r.applyAction(s, s.fsm.RecvNotification(m))
	case *bgp.RouteRefresh:
		// Incoming ROUTE-REFRESH asks us to replay our own outgoing RIB for
		// the family; we have no independent policy to re-evaluate, so we
		// simply re-announce the cached state.
		if s.outgoing != nil {
			s.outgoing.BeginRefresh(m.Family)
			s.outgoing.EndRefresh(m.Family)
		}
	}
}

func (r *Reactor) handleUpdate(s *session, upd *bgp.Update) {
	if family, isEOR := upd.IsEndOfRIB(); isEOR {
		metrics.EORSeen.WithLabelValues(s.name, family.String()).Set(1)
		return
	}
	s.mu.Lock()
	for _, w := range upd.Withdrawn {
		delete(s.incoming, string(w.Index()))
	}
	for _, n := range upd.NLRI {
		s.incoming[string(n.Index())] = &incomingRoute{route: bgp.NewRoute(n, upd.Attrs, bgp.ActionAnnounce, bgp.NoNextHop)}
	}
	s.mu.Unlock()

	if r.audit == nil {
		return
	}
	for _, n := range upd.NLRI {
		r.publishAudit(s, "announce", n)
	}
	for _, w := range upd.Withdrawn {
		r.publishAudit(s, "withdraw", w)
	}
}

func (r *Reactor) publishAudit(s *session, kind string, n bgp.NLRI) {
	ev := AuditEvent{
		Time:     time.Now(),
		Neighbor: s.name,
		PeerASN:  s.fsm.PeerASN(),
		Kind:     kind,
		Family:   n.Family(),
	}
	if inet, ok := n.(*bgp.INET); ok {
		ev.Prefix = inet.String()
	}
	select {
	case r.audit <- ev:
	default:
		// Best-effort: a full audit channel means the sink is behind;
		// dropping here is preferable to blocking RIB mutation on it.
	}
}

func (r *Reactor) applyAction(s *session, action fsm.Action) {
	switch action {
	case fsm.ActionStartConnect:
		r.wg.Add(1)
		go r.dialLoop(s)
	case fsm.ActionStartListen:
		// Passive neighbor: nothing to do until the listener hands us an
		// accepted connection that matches this peer.
	case fsm.ActionSendOpen:
		open := &bgp.Open{
			ASN:      openASNField(r.localASN),
			HoldTime: holdTimeField(s),
			RouterID: r.localRouterID,
			Caps:     buildLocalCapabilities(s.cfg, r.localASN),
		}
		if err := s.send(open, nil); err != nil {
			r.logger.Warn("send OPEN failed", zap.String("neighbor", s.name), zap.Error(err))
		} else {
			metrics.MessagesTotal.WithLabelValues(s.name, "send", "open").Inc()
		}
	case fsm.ActionSendKeepalive:
		if err := s.send(&bgp.Keepalive{}, s.fsm.Negotiated); err != nil {
			r.logger.Warn("send KEEPALIVE failed", zap.String("neighbor", s.name), zap.Error(err))
		} else {
			metrics.MessagesTotal.WithLabelValues(s.name, "send", "keepalive").Inc()
		}
	case fsm.ActionSendNotifyHoldTimer:
		s.send(&bgp.Notification{Code: bgp.NotifyHoldTimer}, s.fsm.Negotiated)
		metrics.MessagesTotal.WithLabelValues(s.name, "send", "notification").Inc()
		s.closeConn()
	case fsm.ActionSendNotifyCease:
		s.send(&bgp.Notification{Code: bgp.NotifyCease, Subcode: bgp.SubcodeCeaseAdminShutdown}, s.fsm.Negotiated)
		metrics.MessagesTotal.WithLabelValues(s.name, "send", "notification").Inc()
		s.closeConn()
	case fsm.ActionClose:
		s.closeConn()
	case fsm.ActionRunNeighborUpHelpers:
		s.mu.Lock()
		if s.outgoing == nil {
			s.outgoing = rib.NewOutgoing(s.fsm.Negotiated)
		} else {
			s.outgoing.SetNegotiated(s.fsm.Negotiated)
		}
		s.mu.Unlock()
		metrics.FSMStateTransitionsTotal.WithLabelValues(s.name, "established").Inc()
		r.logger.Info("session established", zap.String("neighbor", s.name), zap.Uint32("peer_asn", uint32(s.fsm.PeerASN())))
	case fsm.ActionScheduleReconnect:
		delay := s.fsm.NextBackoff()
		r.wg.Add(1)
		go r.reconnectAfter(s, delay)
	case fsm.ActionRetainGracefulRestartCache:
		r.logger.Info("connection lost, retaining graceful-restart cache", zap.String("neighbor", s.name))
	case fsm.ActionWithdrawStaleGracefulRestart:
		r.withdrawAllFromPeer(s)
		delay := s.fsm.NextBackoff()
		r.wg.Add(1)
		go r.reconnectAfter(s, delay)
	}
}

func (r *Reactor) withdrawAllFromPeer(s *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.incoming {
		delete(s.incoming, k)
	}
}

func (r *Reactor) handleCtrl(req ctrlRequest) {
	r.mu.RLock()
	s, ok := r.sessions[req.peer]
	r.mu.RUnlock()
	if !ok {
		return
	}
	switch req.kind {
	case ctrlFlush:
		if s.established() && s.outgoing != nil {
			r.drainOutgoing(s)
		}
	case ctrlTeardown:
		s.send(&bgp.Notification{Code: bgp.NotifyCease, Subcode: req.subcode}, s.fsm.Negotiated)
		metrics.MessagesTotal.WithLabelValues(s.name, "send", "notification").Inc()
		s.closeConn()
		r.applyAction(s, s.fsm.ConnectionLost(time.Now()))
	}
}

func (r *Reactor) acceptLoop(ctx context.Context, ln *conn.Listener) {
	defer r.wg.Done()
	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				r.logger.Warn("accept failed", zap.Error(err))
				continue
			}
		}
		remote, _, _ := net.SplitHostPort(c.RemoteAddr().String())
		ip := net.ParseIP(remote)
		name, err := r.matcher.Match(ip)
		if err != nil || name == "" {
			c.Close()
			continue
		}
		select {
		case r.events <- peerEvent{peer: name, newConn: c}:
		case <-ctx.Done():
			c.Close()
			return
		}
	}
}

func (r *Reactor) dialLoop(s *session) {
	defer r.wg.Done()
	c, err := conn.Dial(s.cfg.LocalAddress, s.cfg.PeerAddress+":179", s.cfg.MD5, s.cfg.TTLSecurity)
	if err != nil {
		r.logger.Debug("dial failed", zap.String("neighbor", s.name), zap.Error(err))
		r.events <- peerEvent{peer: s.name, connErr: err}
		return
	}
	r.events <- peerEvent{peer: s.name, newConn: c}
}

func (r *Reactor) reconnectAfter(s *session, delay time.Duration) {
	defer r.wg.Done()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	<-timer.C
	r.mu.RLock()
	cur, ok := r.sessions[s.name]
	r.mu.RUnlock()
	if !ok || cur != s {
		return
	}
	action := s.fsm.AdminStart(s.cfg.Passive)
	r.applyAction(s, action)
}

func (r *Reactor) readLoop(name string, c net.Conn) {
	defer r.wg.Done()
	br := bufio.NewReader(c)
	for {
		header := make([]byte, 19)
		if _, err := io.ReadFull(br, header); err != nil {
			r.events <- peerEvent{peer: name, connErr: err}
			return
		}
		length := int(header[16])<<8 | int(header[17])
		if length < 19 {
			r.events <- peerEvent{peer: name, connErr: fmt.Errorf("reactor: bad frame length %d", length)}
			return
		}
		frame := make([]byte, length)
		copy(frame, header)
		if length > 19 {
			if _, err := io.ReadFull(br, frame[19:]); err != nil {
				r.events <- peerEvent{peer: name, connErr: err}
				return
			}
		}
		r.events <- peerEvent{peer: name, frame: frame}
	}
}

func messageKind(msg bgp.Message) string {
	switch msg.(type) {
	case *bgp.Open:
		return "open"
	case *bgp.Update:
		return "update"
	case *bgp.Keepalive:
		return "keepalive"
	case *bgp.Notification:
		return "notification"
	case *bgp.RouteRefresh:
		return "route-refresh"
	default:
		return "unknown"
	}
}

func openASNField(asn bgp.ASN) bgp.ASN {
	if uint32(asn) > 0xFFFF {
		return bgp.ASTrans
	}
	return asn
}

func holdTimeField(s *session) uint16 {
	if s.cfg.HoldTime < 0 {
		return 0
	}
	if s.cfg.HoldTime == 0 {
		return 90
	}
	return uint16(s.cfg.HoldTime)
}

func parseRouterID(s string) (uint32, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, fmt.Errorf("invalid router-id %q", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, fmt.Errorf("router-id %q is not an IPv4 address", s)
	}
	return binary.BigEndian.Uint32(v4), nil
}

func parseIPString(s string) (bgp.IP, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return bgp.IP{}, fmt.Errorf("invalid address %q", s)
	}
	return bgp.FromNetIP(ip)
}

func parseIPRangeString(s string) (bgp.IPRange, error) {
	_, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return bgp.IPRange{}, fmt.Errorf("invalid peer_range %q: %w", s, err)
	}
	bits, _ := ipnet.Mask.Size()
	afi := bgp.AFIIPv4
	raw := ipnet.IP.To4()
	if raw == nil {
		afi = bgp.AFIIPv6
		raw = ipnet.IP.To16()
	}
	return bgp.NewIPRange(afi, raw, bits)
}
