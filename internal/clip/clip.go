// Package clip provides guarded access to the text on the system clipboard.
// Build constraints select the implementation:
//
//	clip_windows.go  Windows via Win32 CF_UNICODETEXT reads with a bounded OpenClipboard retry
//	clip_poll.go     Linux and macOS via golang.design/x/clipboard, polling for changes
//	clip_other.go    headless / container stub
//
// The clipboard is shared with every other process on the system. Any read
// may fail transiently while another process holds it open, so callers treat
// errors as "skip this observation", never as fatal.
package clip

import "errors"

// ErrClipboardBusy means text was advertised but could not be read, usually
// because another process holds the clipboard open.
var ErrClipboardBusy = errors.New("clipboard busy")

// ErrUnavailable means no clipboard is reachable (headless session).
var ErrUnavailable = errors.New("clipboard unavailable")

// Backend is the interface that all platform clipboard implementations satisfy.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// HasText reports whether the clipboard currently advertises text.
	HasText() bool

	// Text returns the clipboard text.
	Text() (string, error)

	// Probe checks that the clipboard can be opened at all.
	Probe() error

	// Watch returns a channel that receives a signal whenever the clipboard
	// text changes. The channel is never closed. Backends whose change
	// notifications arrive through the clipboard-viewer chain return a
	// channel that never fires.
	Watch() <-chan struct{}

	// Close releases any resources held by the backend.
	Close()
}

// headlessBackend is a no-op clipboard backend for environments without a
// display server (headless Linux servers, containers, etc.).
// It never produces Watch events and never has text.
type headlessBackend struct {
	watchCh chan struct{}
}

func newHeadless() *headlessBackend {
	return &headlessBackend{watchCh: make(chan struct{})}
}

func (b *headlessBackend) Name() string           { return "headless (no-op)" }
func (b *headlessBackend) HasText() bool          { return false }
func (b *headlessBackend) Text() (string, error)  { return "", ErrUnavailable }
func (b *headlessBackend) Probe() error           { return ErrUnavailable }
func (b *headlessBackend) Watch() <-chan struct{} { return b.watchCh }
func (b *headlessBackend) Close()                 {}
