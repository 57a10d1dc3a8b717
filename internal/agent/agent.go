// Package agent hosts the clipboard monitor: it wires the chain manager,
// toast debouncer and router to a platform, runs the UI loop, serves the
// local control channel and performs the ordered shutdown.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.klb.dev/clipwatch/internal/chain"
	"go.klb.dev/clipwatch/internal/clip"
	"go.klb.dev/clipwatch/internal/config"
	"go.klb.dev/clipwatch/internal/message"
	"go.klb.dev/clipwatch/internal/notify"
	"go.klb.dev/clipwatch/internal/platform"
	"go.klb.dev/clipwatch/internal/router"
	"go.klb.dev/clipwatch/internal/uiloop"
)

// Agent is one running clipboard monitor.
type Agent struct {
	log     *slog.Logger
	plat    platform.Platform
	backend clip.Backend
	version string
	ln      net.Listener

	loop   *uiloop.Loop
	sched  uiloop.Scheduler
	toast  *notify.Debouncer
	chain  *chain.Manager
	router *router.Router

	// Owned by the UI loop.
	cfg         config.Config
	schedule    *chain.Schedule
	settle      uiloop.Timer
	startedAt   time.Time
	shutdownErr error

	cancel    context.CancelFunc
	closeLn   sync.Once
	serveDone sync.WaitGroup
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.log = l }
}

// WithListener serves the control channel on ln. The agent closes it on
// shutdown.
func WithListener(ln net.Listener) Option {
	return func(a *Agent) { a.ln = ln }
}

// WithVersion sets the version reported over the control channel.
func WithVersion(v string) Option {
	return func(a *Agent) { a.version = v }
}

// New wires an Agent around plat and backend. Nothing touches the OS until
// Run.
func New(plat platform.Platform, backend clip.Backend, cfg config.Config, opts ...Option) *Agent {
	a := &Agent{
		log:     slog.Default(),
		plat:    plat,
		backend: backend,
		version: "dev",
		cfg:     cfg,
		loop:    uiloop.New(),
	}
	for _, o := range opts {
		o(a)
	}

	a.sched = uiloop.NewScheduler(a.loop)
	a.toast = notify.New(plat.Tray(), a.sched, a.log, cfg.NotifyOptions())
	a.chain = chain.New(plat.Viewer(), a.loop,
		chain.WithLogger(a.log),
		chain.WithProbe(backend.Probe),
		chain.WithStaleAfter(cfg.Chain.StaleAfter),
		chain.WithClock(a.sched.Now),
	)
	a.router = router.New(backend, a.toast, a.chain, a.log)
	a.schedule = chain.NewSchedule(cfg.Chain.ReconnectInterval, a.loop, a.chain.Reconnect)
	return a
}

// Run blocks until ctx is cancelled or Exit is picked from the tray, then
// shuts down. Shutdown failures are logged and joined into the result.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.cancel = cancel

	if a.ln != nil {
		a.serveDone.Add(1)
		go a.serve(ctx)
	}

	err := a.plat.Run(ctx, a.loop, &host{a: a})
	cancel()
	a.closeListener()
	a.serveDone.Wait()
	a.loop.Close()

	if err != nil {
		return fmt.Errorf("platform: %w", err)
	}
	return a.shutdownErr
}

// Reconfigure applies cfg on the UI loop. Safe to call from any goroutine.
func (a *Agent) Reconfigure(cfg config.Config) {
	a.loop.Post(func() { a.reconfigure(cfg) })
}

func (a *Agent) reconfigure(cfg config.Config) {
	prev := a.cfg
	a.cfg = cfg
	a.toast.Reconfigure(cfg.NotifyOptions())
	a.chain.SetStaleAfter(cfg.Chain.StaleAfter)
	if cfg.Chain.ReconnectInterval != prev.Chain.ReconnectInterval {
		a.schedule.Stop()
		a.schedule = chain.NewSchedule(cfg.Chain.ReconnectInterval, a.loop, a.chain.Reconnect)
		a.schedule.Start()
	}
	a.log.Info("configuration reloaded",
		"toast_duration", cfg.Notify.Duration,
		"reconnect_interval", cfg.Chain.ReconnectInterval,
	)
}

func (a *Agent) started() {
	a.startedAt = a.sched.Now()
	a.log.Info("clipboard monitor started",
		"version", a.version,
		"platform", a.plat.Name(),
		"reconnect_interval", a.schedule.Period(),
	)
	a.chain.Register()
	a.schedule.Start()
	if err := a.plat.Events().Subscribe(a.onEvent); err != nil {
		a.log.Warn("system events unavailable", "err", err)
	}
}

func (a *Agent) onEvent(ev platform.Event) {
	switch ev {
	case platform.EventResume, platform.EventUnlock:
		// Give the system time to settle before touching the chain.
		if a.settle != nil {
			a.settle.Stop()
		}
		a.settle = a.sched.AfterFunc(a.cfg.Chain.SettleDelay, a.chain.Reconnect)
		a.log.Debug("chain check scheduled", "event", ev, "delay", a.cfg.Chain.SettleDelay)
	case platform.EventAbout:
		a.toast.ShowAbout()
	case platform.EventExit:
		a.log.Info("exit requested from tray")
		a.cancel()
	}
}

// stopping tears down in a fixed order. Every step runs even if an earlier
// one failed.
func (a *Agent) stopping() {
	var errs []error

	a.toast.Cancel()
	if a.settle != nil {
		a.settle.Stop()
	}
	a.schedule.Stop()
	if err := a.plat.Events().Unsubscribe(); err != nil {
		a.log.Warn("unsubscribe system events", "err", err)
		errs = append(errs, err)
	}
	if err := a.chain.Deregister(); err != nil {
		errs = append(errs, err)
	}
	if err := a.plat.Tray().Dispose(); err != nil {
		a.log.Warn("dispose tray", "err", err)
		errs = append(errs, err)
	}
	a.closeListener()

	a.shutdownErr = errors.Join(errs...)
	a.log.Info("clipboard monitor stopped")
}

func (a *Agent) closeListener() {
	if a.ln == nil {
		return
	}
	a.closeLn.Do(func() { _ = a.ln.Close() })
}

// status snapshots agent state. Must run on the UI loop.
func (a *Agent) status() *message.Status {
	cs := a.chain.Status()
	snap := a.toast.Snapshot()
	return &message.Status{
		Version:       a.version,
		Backend:       a.plat.Name(),
		StartedAt:     a.startedAt,
		ChainState:    cs.State.String(),
		Link:          cs.Link.String(),
		Receiving:     cs.Receiving,
		LastChange:    cs.LastChange,
		Reconnects:    cs.Reconnects,
		LastReconnect: cs.LastReconnect,
		ToastState:    a.toast.State().String(),
		LastSeenSeq:   snap.Seq,
		LastSeenAt:    snap.SeenAt,
	}
}

type host struct{ a *Agent }

func (h *host) Route(msg chain.Message) bool { return h.a.router.Route(msg) }
func (h *host) Started()                     { h.a.started() }
func (h *host) Stopping()                    { h.a.stopping() }
