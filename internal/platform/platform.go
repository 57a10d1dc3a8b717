// Package platform adapts the OS to the agent: clipboard-viewer chain
// primitives, the tray toast surface, power/session events and the thread
// that owns the UI loop.
//
// Build constraints select the implementation:
//
//	platform_windows.go  hidden window, SetClipboardViewer chain, Shell_NotifyIcon tray
//	platform_linux.go    D-Bus notifications, logind events, polled pseudo-chain
//	platform_other.go    log-only tray, polled pseudo-chain
package platform

import (
	"context"
	"log/slog"

	"go.klb.dev/clipwatch/internal/chain"
	"go.klb.dev/clipwatch/internal/clip"
	"go.klb.dev/clipwatch/internal/notify"
	"go.klb.dev/clipwatch/internal/uiloop"
)

// TrayTooltip is shown when hovering over the tray icon.
const TrayTooltip = "Clipboard Monitor (Right-click to exit)"

// Event is a system or tray-menu notification delivered to the agent.
type Event int

const (
	// EventResume fires when the machine resumes from sleep.
	EventResume Event = iota + 1
	// EventUnlock fires when the user's session is unlocked.
	EventUnlock
	// EventAbout fires when About is picked from the tray menu.
	EventAbout
	// EventExit fires when Exit is picked from the tray menu.
	EventExit
)

func (e Event) String() string {
	switch e {
	case EventResume:
		return "resume"
	case EventUnlock:
		return "unlock"
	case EventAbout:
		return "about"
	case EventExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Tray is the notification surface. Every method runs on the UI loop.
type Tray interface {
	notify.Tray
	// Dispose removes the tray icon and releases its resources.
	Dispose() error
}

// Events delivers Event values. The callback always runs on the UI loop.
type Events interface {
	Subscribe(fn func(Event)) error
	Unsubscribe() error
}

// Host receives callbacks from Run on the UI loop.
type Host interface {
	// Route handles a clipboard message and reports whether it was consumed.
	Route(msg chain.Message) bool
	// Started runs once the platform can service chain and tray calls.
	Started()
	// Stopping runs once before the platform tears down its window.
	Stopping()
}

// Platform bundles the OS collaborators.
type Platform interface {
	Name() string
	Viewer() chain.Viewer
	Tray() Tray
	Events() Events
	// Run makes the calling goroutine the owner of loop and pumps OS
	// messages until ctx is cancelled. Host.Stopping has returned by the
	// time Run does.
	Run(ctx context.Context, loop *uiloop.Loop, host Host) error
}

// Options configures New.
type Options struct {
	// AppName identifies the agent to the notification service.
	AppName string
	Log     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.AppName == "" {
		o.AppName = "clipwatch"
	}
	if o.Log == nil {
		o.Log = slog.Default()
	}
	return o
}

// New returns the platform for the running OS. backend supplies change
// notifications where the OS has no clipboard-viewer chain.
func New(backend clip.Backend, opts Options) (Platform, error) {
	return newPlatform(backend, opts.withDefaults())
}
