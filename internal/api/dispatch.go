package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/exabgpd/bgpd/internal/bgp"
)

// ceaseSubcodes maps the symbolic names the "teardown" command accepts to
// their RFC 4486 subcode values, so a helper process doesn't need to know
// the numeric encoding.
var ceaseSubcodes = map[string]uint8{
	"administrative-shutdown": bgp.SubcodeCeaseAdminShutdown,
	"peer-deconfigured":       bgp.SubcodeCeasePeerDeconfigured,
	"administrative-reset":    bgp.SubcodeCeaseAdminReset,
	"connection-rejected":     bgp.SubcodeCeaseConnectionRejected,
	"other-configuration-change": bgp.SubcodeCeaseOtherConfigChange,
}

// Hooks are the daemon-level side effects api cannot perform itself
// (graceful shutdown, config reload, session restart).
type Hooks struct {
	Shutdown func()
	Reload   func()
	// Restart tears down and reconnects every session without exiting the
	// process (daemon restart / SIGUSR1).
	Restart func()
}

// Dispatcher parses and executes one command line at a time against a
// Registry, per SPEC_FULL's API grammar (daemon/session/system/peer/group
// verbs; no rib verb is parsed). It is not safe for concurrent use by multiple goroutines
// without external synchronization — callers drive it from the reactor's
// single command-processing path, same as every other RIB mutation.
type Dispatcher struct {
	reg     Registry
	hooks   Hooks
	logger  *zap.Logger
	version int

	group          *GroupBuffer
	groupNeighbors []Neighbor
	groupAction    bgp.Action

	// ackEnabled/syncEnabled are the session-level "ack"/"sync" toggles
	// (enable|disable|silence for ack, enable|disable for sync); a route
	// line's own trailing sync/async keyword overrides syncEnabled for
	// that one command only.
	ackEnabled  bool
	syncEnabled bool
}

func NewDispatcher(reg Registry, hooks Hooks, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{reg: reg, hooks: hooks, logger: logger, version: 6, group: NewGroupBuffer(), ackEnabled: true}
}

// Dispatch parses and executes one line, translating legacy syntax first
// so every downstream branch only ever sees canonical v6 grammar.
func (d *Dispatcher) Dispatch(line string) Response {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return OK("", nil)
	}
	canonical := TranslateLegacy(line)
	fields := strings.Fields(canonical)
	if len(fields) == 0 {
		return OK("", nil)
	}

	switch fields[0] {
	case "version":
		return d.dispatchVersion(fields[1:])
	case "api":
		// "api version N" is the system-grammar spelling of "version N";
		// bare "api" with nothing else reports the current version.
		rest := fields[1:]
		if len(rest) > 0 && rest[0] == "version" {
			rest = rest[1:]
		}
		return d.dispatchVersion(rest)
	case "shutdown":
		if d.hooks.Shutdown != nil {
			d.hooks.Shutdown()
		}
		return OK(canonical, nil)
	case "reload":
		if d.hooks.Reload != nil {
			d.hooks.Reload()
		}
		return OK(canonical, nil)
	case "restart":
		if d.hooks.Restart != nil {
			d.hooks.Restart()
		}
		return OK(canonical, nil)
	case "status":
		return d.dispatchStatus()
	case "help":
		return OK(canonical, map[string]any{"commands": helpCommands})
	case "ack":
		return d.dispatchAck(fields[1:], canonical)
	case "sync":
		return d.dispatchSync(fields[1:], canonical)
	case "reset":
		d.group = NewGroupBuffer()
		d.groupNeighbors = nil
		return OK(canonical, nil)
	case "ping":
		return OK(canonical, nil)
	case "bye":
		if d.hooks.Shutdown != nil {
			d.hooks.Shutdown()
		}
		return OK(canonical, nil)
	case "show":
		return d.dispatchShow(fields[1:])
	case "neighbor":
		if len(fields) < 3 {
			return Errorf(canonical, "neighbor command missing selector/verb")
		}
		return d.dispatchNeighbor(fields[1], fields[2:], canonical)
	default:
		return Errorf(canonical, "unknown command %q", fields[0])
	}
}

// helpCommands lists the literal first tokens Dispatch understands, for
// the "help" system verb.
var helpCommands = []string{
	"version", "shutdown", "reload", "restart", "status", "help",
	"ack enable|disable|silence", "sync enable|disable", "reset", "ping", "bye",
	"show", "neighbor",
}

func (d *Dispatcher) dispatchStatus() Response {
	names := make([]string, 0)
	established := 0
	for _, n := range d.reg.All() {
		names = append(names, n.Name())
		if n.Established() {
			established++
		}
	}
	return OK("status", map[string]any{
		"configured":  len(names),
		"established": established,
		"ack":         d.ackEnabled,
		"sync":        d.syncEnabled,
	})
}

// dispatchAck implements "ack enable|disable|silence". silence is treated
// identically to disable: both stop the per-command "done"/"error:" line,
// the only distinction the original protocol drew was which helper-process
// mode requested it, which this dispatcher doesn't track separately.
func (d *Dispatcher) dispatchAck(rest []string, full string) Response {
	if len(rest) == 0 {
		return Errorf(full, "ack requires enable, disable, or silence")
	}
	switch rest[0] {
	case "enable":
		d.ackEnabled = true
	case "disable", "silence":
		d.ackEnabled = false
	default:
		return Errorf(full, "unknown ack mode %q", rest[0])
	}
	return OK(full, map[string]any{"ack": d.ackEnabled})
}

// dispatchSync implements "sync enable|disable", the session-wide default
// a route line's own trailing sync/async keyword can still override.
func (d *Dispatcher) dispatchSync(rest []string, full string) Response {
	if len(rest) == 0 {
		return Errorf(full, "sync requires enable or disable")
	}
	switch rest[0] {
	case "enable":
		d.syncEnabled = true
	case "disable":
		d.syncEnabled = false
	default:
		return Errorf(full, "unknown sync mode %q", rest[0])
	}
	return OK(full, map[string]any{"sync": d.syncEnabled})
}

func (d *Dispatcher) dispatchVersion(rest []string) Response {
	if len(rest) == 0 {
		return OK("version", map[string]any{"version": d.version})
	}
	v, err := strconv.Atoi(rest[0])
	if err != nil || (v != 4 && v != 5 && v != 6) {
		return Errorf("version", "unsupported api version %q", rest[0])
	}
	d.version = v
	return OK("version", map[string]any{"version": d.version})
}

func (d *Dispatcher) dispatchShow(rest []string) Response {
	if len(rest) == 0 {
		return Errorf("show", "show requires an argument (neighbor|routes)")
	}
	switch rest[0] {
	case "neighbor", "neighbors":
		names := make([]string, 0)
		for _, n := range d.reg.All() {
			names = append(names, n.Name())
		}
		return OK("show neighbor", map[string]any{"neighbors": names})
	case "routes":
		counts := map[string]any{}
		for _, n := range d.reg.All() {
			counts[n.Name()] = n.Outgoing().CachedCount(bgp.FamilyIPv4Unicast)
		}
		return OK("show routes", map[string]any{"cached": counts})
	default:
		return Errorf("show", "unknown show target %q", rest[0])
	}
}

func (d *Dispatcher) dispatchNeighbor(selector string, rest []string, full string) Response {
	if len(rest) == 0 {
		return Errorf(full, "neighbor command missing verb")
	}

	// Group control verbs operate on the buffer rather than the registry
	// directly; a group spans however many subsequent lines come between
	// start and end.
	if rest[0] == "group" {
		return d.dispatchGroup(selector, rest[1:], full)
	}

	neighbors, err := ResolveSelector(d.reg, selector)
	if err != nil {
		return Errorf(full, "%s", err)
	}

	switch rest[0] {
	case "announce":
		if len(rest) < 2 || rest[1] != "route" {
			return Errorf(full, "neighbor announce expects \"route ...\"")
		}
		return d.dispatchRoute(neighbors, rest[2:], bgp.ActionAnnounce, full, d.group.Open())
	case "withdraw":
		if len(rest) < 2 || rest[1] != "route" {
			return Errorf(full, "neighbor withdraw expects \"route ...\"")
		}
		return d.dispatchRoute(neighbors, rest[2:], bgp.ActionWithdraw, full, d.group.Open())
	case "flush":
		for _, n := range neighbors {
			n.Flush()
		}
		return OK(full, map[string]any{"flushed": len(neighbors)})
	case "teardown":
		return d.dispatchTeardown(neighbors, rest[1:], full)
	default:
		return Errorf(full, "unknown neighbor verb %q", rest[0])
	}
}

func (d *Dispatcher) dispatchRoute(neighbors []Neighbor, tokens []string, action bgp.Action, full string, buffering bool) Response {
	if buffering {
		if err := d.group.AddRoute(tokens, action); err != nil {
			return Errorf(full, "%s", err)
		}
		d.groupNeighbors = neighbors
		d.groupAction = action
		return OK(full, map[string]any{"buffered": true})
	}

	route, syncOverride, err := ParseRoute(tokens, action)
	if err != nil {
		return Errorf(full, "%s", err)
	}
	applyRoute(neighbors, route, action)

	sync := d.syncEnabled
	if syncOverride != nil {
		sync = *syncOverride
	}
	resp := OK(full, map[string]any{"neighbors": len(neighbors)})
	if sync {
		resp.SyncWait = neighbors
	}
	return resp
}

func applyRoute(neighbors []Neighbor, route *bgp.Route, action bgp.Action) {
	for _, n := range neighbors {
		if action == bgp.ActionWithdraw {
			n.Outgoing().DelFromRib(route)
		} else {
			n.Outgoing().AddToRib(route, false)
		}
		n.Flush()
	}
}

func (d *Dispatcher) dispatchGroup(selector string, rest []string, full string) Response {
	if len(rest) == 0 {
		return Errorf(full, "group command missing verb")
	}
	switch rest[0] {
	case "start":
		if err := d.group.Start(); err != nil {
			return Errorf(full, "%s", err)
		}
		return OK(full, nil)
	case "attributes":
		if err := d.group.SetAttributes(rest[1:]); err != nil {
			return Errorf(full, "%s", err)
		}
		return OK(full, nil)
	case "end":
		routes, err := d.group.End()
		if err != nil {
			return Errorf(full, "%s", err)
		}
		for _, r := range routes {
			applyRoute(d.groupNeighbors, r, d.groupAction)
		}
		d.groupNeighbors = nil
		return OK(full, map[string]any{"routes": len(routes)})
	default:
		return Errorf(full, "unknown group verb %q", rest[0])
	}
}

func (d *Dispatcher) dispatchTeardown(neighbors []Neighbor, rest []string, full string) Response {
	if len(rest) == 0 {
		return Errorf(full, "teardown requires a subcode")
	}
	subcode, ok := ceaseSubcodes[rest[0]]
	if !ok {
		n, err := strconv.Atoi(rest[0])
		if err != nil || n < 0 || n > 255 {
			return Errorf(full, "unknown teardown code %q", rest[0])
		}
		subcode = uint8(n)
	}
	for _, n := range neighbors {
		n.Teardown(subcode)
	}
	return OK(full, map[string]any{"torn_down": len(neighbors)})
}

// WaitForFlush blocks until every named neighbor's outgoing RIB has no
// pending work or ctx is done, for sync-mode helper processes that expect
// their acknowledgement to mean "reached the network" rather than just
// "accepted into the RIB". The reactor is what actually drains pending
// work on its own turn; this only polls for that to have happened.
func (d *Dispatcher) WaitForFlush(ctx context.Context, neighbors []Neighbor) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		allDrained := true
		for _, n := range neighbors {
			if n.Outgoing().HasPending() {
				allDrained = false
				break
			}
		}
		if allDrained {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("api: wait for flush: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
