// Package notify decides when new clipboard text is worth a toast and keeps
// the toast on screen for an exact, cancellable duration.
//
// A new toast always pre-empts the one in flight: the previous auto-hide is
// cancelled before the next is scheduled, so at most one is ever pending.
// Debouncer is not safe for concurrent use; run it on the UI loop and give it
// a uiloop.Scheduler whose callbacks are marshaled back onto that loop.
package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.klb.dev/clipwatch/internal/uiloop"
)

const (
	DefaultClipDuration  = 2000 * time.Millisecond
	DefaultAboutDuration = 5000 * time.Millisecond
	DefaultMaxRunes      = 100
	DefaultAboutText     = "Created By Andrew Hutchinson"

	// Ellipsis is appended to truncated text.
	Ellipsis = "..."
)

// ErrRender wraps a failed tray call.
var ErrRender = errors.New("toast render failed")

// Tray renders toasts. Implementations live in package platform.
type Tray interface {
	ShowToast(title, body string, hint time.Duration) error
	HideToast() error
}

// State is the toast visibility state.
type State int

const (
	Idle State = iota
	Showing
)

func (s State) String() string {
	if s == Showing {
		return "showing"
	}
	return "idle"
}

// Snapshot is the last accepted clipboard text.
type Snapshot struct {
	Text   string
	Seq    uint64
	SeenAt time.Time
}

// Pending describes the outstanding auto-hide.
type Pending struct {
	Token    uint64
	FireAt   time.Time
	Duration time.Duration
}

// Options holds the tunable parts of the debouncer. Zero values fall back to
// the defaults.
type Options struct {
	Title         string
	AboutText     string
	ClipDuration  time.Duration
	AboutDuration time.Duration
	MaxRunes      int
}

func (o Options) withDefaults() Options {
	if o.AboutText == "" {
		o.AboutText = DefaultAboutText
	}
	if o.ClipDuration <= 0 {
		o.ClipDuration = DefaultClipDuration
	}
	if o.AboutDuration <= 0 {
		o.AboutDuration = DefaultAboutDuration
	}
	if o.MaxRunes <= 0 {
		o.MaxRunes = DefaultMaxRunes
	}
	return o
}

// Debouncer is the toast state machine.
type Debouncer struct {
	tray  Tray
	sched uiloop.Scheduler
	log   *slog.Logger
	opts  Options

	state    State
	snapshot Snapshot
	pending  *Pending
	timer    uiloop.Timer
	token    uint64
}

// New returns an Idle debouncer.
func New(tray Tray, sched uiloop.Scheduler, log *slog.Logger, opts Options) *Debouncer {
	if tray == nil {
		panic("notify.New: tray cannot be nil")
	}
	if sched == nil {
		panic("notify.New: scheduler cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Debouncer{
		tray:  tray,
		sched: sched,
		log:   log,
		opts:  opts.withDefaults(),
	}
}

// State returns the current visibility state.
func (d *Debouncer) State() State { return d.state }

// Snapshot returns the last accepted text.
func (d *Debouncer) Snapshot() Snapshot { return d.snapshot }

// Pending returns the outstanding auto-hide, if any.
func (d *Debouncer) Pending() (Pending, bool) {
	if d.pending == nil {
		return Pending{}, false
	}
	return *d.pending, true
}

// Options returns the effective options.
func (d *Debouncer) Options() Options { return d.opts }

// Reconfigure replaces the options. A toast already on screen keeps its
// current deadline.
func (d *Debouncer) Reconfigure(opts Options) {
	d.opts = opts.withDefaults()
}

// OnContentObserved shows text if it is non-blank and differs from the last
// accepted value. It reports whether a toast was triggered.
func (d *Debouncer) OnContentObserved(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	if text == d.snapshot.Text {
		return false
	}
	d.snapshot = Snapshot{
		Text:   text,
		Seq:    d.snapshot.Seq + 1,
		SeenAt: d.sched.Now(),
	}
	d.Show(text, d.opts.ClipDuration)
	return true
}

// ShowAbout shows the informational toast.
func (d *Debouncer) ShowAbout() {
	d.Show(d.opts.AboutText, d.opts.AboutDuration)
}

// Show renders text and schedules it to hide after exactly dur.
func (d *Debouncer) Show(text string, dur time.Duration) {
	d.cancelPending()

	body := Truncate(text, d.opts.MaxRunes)

	// Force a full hide/show cycle so the tray never keeps stale content.
	if err := d.tray.HideToast(); err != nil {
		d.renderFailed("hide before show", err)
	}
	if err := d.tray.ShowToast(d.opts.Title, body, dur); err != nil {
		d.renderFailed("show", err)
	}

	d.token++
	token := d.token
	d.pending = &Pending{
		Token:    token,
		FireAt:   d.sched.Now().Add(dur),
		Duration: dur,
	}
	d.timer = d.sched.AfterFunc(dur, func() { d.expire(token) })
	d.state = Showing
}

// Hide removes the toast. With nothing showing it does nothing.
func (d *Debouncer) Hide() {
	if d.state == Idle {
		return
	}
	d.cancelPending()
	if err := d.tray.HideToast(); err != nil {
		d.renderFailed("hide", err)
	}
	d.state = Idle
}

// Cancel stops any pending auto-hide without touching the tray.
func (d *Debouncer) Cancel() {
	d.cancelPending()
}

func (d *Debouncer) expire(token uint64) {
	// A timer that lost the race with a newer Show must not hide the newer
	// toast.
	if d.pending == nil || d.pending.Token != token {
		return
	}
	d.timer = nil
	d.Hide()
}

func (d *Debouncer) cancelPending() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}

func (d *Debouncer) renderFailed(op string, err error) {
	d.log.Error("toast render failed", "op", op, "err", fmt.Errorf("%w: %w", ErrRender, err), "failure", "RenderFailure")
}

// Truncate cuts text to its first max runes and appends Ellipsis when it was
// longer than max.
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i] + Ellipsis
		}
		n++
	}
	return text
}
