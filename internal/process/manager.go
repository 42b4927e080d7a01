package process

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/exabgpd/bgpd/internal/config"
)

// Manager starts every configured helper process and supervises its
// stdout-reader loop with an errgroup.Group: a helper's unexpected exit
// either respawns it (with a short backoff, matching the reactor's own
// reconnect posture) or, if RespawnOnDeath is false, simply ends that one
// goroutine without tearing down the rest of the daemon — an errgroup on
// its own would abort every other member on the first error, which is
// wrong for a fleet of independently-configured helpers.
type Manager struct {
	procs  map[string]*Process
	logger *zap.Logger
}

// Dispatch is how the manager hands a forked helper's command line to the
// rest of the daemon; wired to reactor.Dispatch by the caller so helper
// commands mutate RIB state on the same single goroutine API/FIFO
// commands do.
type Dispatch func(ctx context.Context, line string) (string, error)

func NewManager(cfgs map[string]config.ProcessConfig, logger *zap.Logger) *Manager {
	procs := make(map[string]*Process, len(cfgs))
	for name, c := range cfgs {
		subs := make([]Subscription, 0, 4)
		procs[name] = New(name, c.Run, ParseEncoding(c.Encoder), c.RespawnOnDeath, c.TerminateOnDeath, subs, logger)
	}
	return &Manager{procs: procs, logger: logger.Named("process.manager")}
}

// Run starts every helper and blocks until ctx is cancelled or a
// non-respawning helper's supervising goroutine returns an error.
func (m *Manager) Run(ctx context.Context, dispatch Dispatch) error {
	g, ctx := errgroup.WithContext(ctx)
	for name, p := range m.procs {
		name, p := name, p
		g.Go(func() error {
			return m.superviseOne(ctx, name, p, dispatch)
		})
	}
	return g.Wait()
}

func (m *Manager) superviseOne(ctx context.Context, name string, p *Process, dispatch Dispatch) error {
	for {
		if err := p.Start(); err != nil {
			m.logger.Error("helper process failed to start", zap.String("process", name), zap.Error(err))
			if !p.Respawn {
				return err
			}
			if !sleepOrDone(ctx, time.Second) {
				return ctx.Err()
			}
			p.NoteRestart()
			continue
		}

		readErr := p.ReadLines(ctx, func(line string) {
			if _, err := dispatch(ctx, line); err != nil {
				m.logger.Warn("helper command failed", zap.String("process", name), zap.Error(err))
			}
		})

		waitErr := p.Wait()
		if ctx.Err() != nil {
			return nil
		}

		m.logger.Warn("helper process exited", zap.String("process", name), zap.Error(waitErr), zap.Error(readErr))
		if p.Terminate {
			return waitErr
		}
		if !p.Respawn {
			return nil
		}
		p.NoteRestart()
		if !sleepOrDone(ctx, time.Second) {
			return ctx.Err()
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Broadcast writes line to every helper subscribed to sub, best-effort —
// a write failure is logged and otherwise ignored, matching the
// audit/eventbus sinks' posture toward a single slow/dead consumer.
func (m *Manager) Broadcast(sub Subscription, line string) {
	for name, p := range m.procs {
		if !p.Subscribed(sub) {
			continue
		}
		if err := p.WriteLine(line); err != nil {
			m.logger.Warn("broadcast to helper failed", zap.String("process", name), zap.Error(err))
		}
	}
}
