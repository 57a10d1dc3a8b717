//go:build linux

package platform

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"go.klb.dev/clipwatch/internal/chain"
	"go.klb.dev/clipwatch/internal/clip"
	"go.klb.dev/clipwatch/internal/uiloop"
)

const (
	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = "/org/freedesktop/Notifications"
	notifyIface = "org.freedesktop.Notifications"

	login1Dest         = "org.freedesktop.login1"
	login1ManagerIface = "org.freedesktop.login1.Manager"
	login1SessionIface = "org.freedesktop.login1.Session"
)

type linuxPlatform struct {
	log     *slog.Logger
	backend clip.Backend
	viewer  *pseudoViewer
	tray    Tray
	events  *logindEvents
}

func newPlatform(backend clip.Backend, opts Options) (Platform, error) {
	p := &linuxPlatform{
		log:     opts.Log,
		backend: backend,
		viewer:  &pseudoViewer{},
	}

	if conn, err := dbus.ConnectSessionBus(); err != nil {
		opts.Log.Warn("no session bus, toasts go to the log only", "err", err)
		p.tray = &logTray{log: opts.Log}
	} else {
		p.tray = newDBusTray(conn, opts.AppName, opts.Log)
	}

	if conn, err := dbus.ConnectSystemBus(); err != nil {
		opts.Log.Debug("no system bus, resume/unlock events disabled", "err", err)
		p.events = &logindEvents{log: opts.Log}
	} else {
		p.events = &logindEvents{conn: conn, log: opts.Log}
	}
	return p, nil
}

func (p *linuxPlatform) Name() string         { return "linux (" + p.backend.Name() + ")" }
func (p *linuxPlatform) Viewer() chain.Viewer { return p.viewer }
func (p *linuxPlatform) Tray() Tray           { return p.tray }
func (p *linuxPlatform) Events() Events       { return p.events }

func (p *linuxPlatform) Run(ctx context.Context, loop *uiloop.Loop, host Host) error {
	p.events.setLoop(loop)
	return runPolled(ctx, loop, host, p.backend.Watch())
}

// dbusTray shows toasts through the desktop notification service. The id
// of the last notification is reused as replaces_id so refreshes update one
// bubble in place instead of stacking.
type dbusTray struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	appName string
	log     *slog.Logger
	id      uint32
}

func newDBusTray(conn *dbus.Conn, appName string, log *slog.Logger) *dbusTray {
	return &dbusTray{
		conn:    conn,
		obj:     conn.Object(notifyDest, notifyPath),
		appName: appName,
		log:     log,
	}
}

func (t *dbusTray) ShowToast(title, body string, hint time.Duration) error {
	// Notify(app_name s, replaces_id u, app_icon s, summary s, body s,
	//        actions as, hints a{sv}, expire_timeout i) -> id u
	var id uint32
	err := t.obj.Call(notifyIface+".Notify", 0,
		t.appName,
		t.id,
		"edit-paste",
		title,
		body,
		[]string{},
		map[string]dbus.Variant{"transient": dbus.MakeVariant(true)},
		int32(hint.Milliseconds()),
	).Store(&id)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	t.id = id
	return nil
}

func (t *dbusTray) HideToast() error {
	if t.id == 0 {
		return nil
	}
	if err := t.obj.Call(notifyIface+".CloseNotification", 0, t.id).Err; err != nil {
		return fmt.Errorf("close notification: %w", err)
	}
	t.id = 0
	return nil
}

func (t *dbusTray) Dispose() error {
	err := t.HideToast()
	if cerr := t.conn.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// logindEvents maps logind signals to Resume and Unlock.
type logindEvents struct {
	conn *dbus.Conn
	log  *slog.Logger

	mu      sync.Mutex
	loop    *uiloop.Loop
	signals chan *dbus.Signal
	done    chan struct{}
	wg      sync.WaitGroup
}

var logindMatches = [][]dbus.MatchOption{
	{dbus.WithMatchInterface(login1ManagerIface), dbus.WithMatchMember("PrepareForSleep")},
	{dbus.WithMatchInterface(login1SessionIface), dbus.WithMatchMember("Unlock")},
}

func (e *logindEvents) setLoop(loop *uiloop.Loop) {
	e.mu.Lock()
	e.loop = loop
	e.mu.Unlock()
}

func (e *logindEvents) Subscribe(fn func(Event)) error {
	if e.conn == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done != nil {
		return fmt.Errorf("logind: already subscribed")
	}
	if e.loop == nil {
		return fmt.Errorf("logind: subscribe before Run")
	}
	for _, m := range logindMatches {
		if err := e.conn.AddMatchSignal(m...); err != nil {
			return fmt.Errorf("logind add match: %w", err)
		}
	}
	e.signals = make(chan *dbus.Signal, 8)
	e.done = make(chan struct{})
	e.conn.Signal(e.signals)

	e.wg.Add(1)
	go e.dispatch(e.loop, e.signals, e.done, fn)
	return nil
}

func (e *logindEvents) dispatch(loop *uiloop.Loop, signals <-chan *dbus.Signal, done <-chan struct{}, fn func(Event)) {
	defer e.wg.Done()
	for {
		select {
		case <-done:
			return
		case sig, ok := <-signals:
			if !ok || sig == nil {
				return
			}
			ev, ok := logindEvent(sig)
			if !ok {
				continue
			}
			e.log.Debug("session event", "event", ev, "signal", sig.Name)
			loop.Post(func() { fn(ev) })
		}
	}
}

// logindEvent maps a logind signal to an Event. PrepareForSleep(false) marks
// the end of a sleep cycle.
func logindEvent(sig *dbus.Signal) (Event, bool) {
	switch sig.Name {
	case login1ManagerIface + ".PrepareForSleep":
		if len(sig.Body) == 1 {
			if starting, ok := sig.Body[0].(bool); ok && !starting {
				return EventResume, true
			}
		}
	case login1SessionIface + ".Unlock":
		return EventUnlock, true
	}
	return 0, false
}

func (e *logindEvents) Unsubscribe() error {
	if e.conn == nil {
		return nil
	}
	e.mu.Lock()
	done := e.done
	signals := e.signals
	e.done = nil
	e.signals = nil
	e.mu.Unlock()
	if done == nil {
		return nil
	}

	close(done)
	e.wg.Wait()
	e.conn.RemoveSignal(signals)
	var firstErr error
	for _, m := range logindMatches {
		if err := e.conn.RemoveMatchSignal(m...); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("logind remove match: %w", err)
		}
	}
	if err := e.conn.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
