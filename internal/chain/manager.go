package chain

import (
	"fmt"
	"log/slog"
	"time"
)

// Poster queues work onto the UI loop. *uiloop.Loop satisfies it.
type Poster interface {
	Post(fn func()) bool
}

// Status is a point-in-time view of the manager for diagnostics.
type Status struct {
	State         State
	Link          Link
	Receiving     bool
	LastChange    time.Time
	Reconnects    int
	LastReconnect time.Time
}

// Manager owns this process's chain membership.
type Manager struct {
	viewer Viewer
	post   Poster
	log    *slog.Logger
	now    func() time.Time

	// probe checks that the clipboard itself is still reachable.
	probe      func() error
	staleAfter time.Duration

	state      State
	link       Link
	receiving  bool
	lastChange time.Time

	reconnects    int
	lastReconnect time.Time
	closed        bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for absorbed failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithProbe installs a clipboard accessibility probe consulted by CheckHealth.
func WithProbe(probe func() error) Option {
	return func(m *Manager) { m.probe = probe }
}

// WithStaleAfter makes CheckHealth report Broken when no change notification
// has arrived for d. Zero disables the check.
func WithStaleAfter(d time.Duration) Option {
	return func(m *Manager) { m.staleAfter = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New returns an Unregistered manager.
func New(viewer Viewer, post Poster, opts ...Option) *Manager {
	if viewer == nil {
		panic("chain.New: viewer cannot be nil")
	}
	if post == nil {
		panic("chain.New: poster cannot be nil")
	}
	m := &Manager{
		viewer: viewer,
		post:   post,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// State returns the current membership state.
func (m *Manager) State() State { return m.state }

// Link returns the stored next-viewer handle.
func (m *Manager) Link() Link { return m.link }

// Status returns a snapshot for diagnostics.
func (m *Manager) Status() Status {
	return Status{
		State:         m.state,
		Link:          m.link,
		Receiving:     m.receiving,
		LastChange:    m.lastChange,
		Reconnects:    m.reconnects,
		LastReconnect: m.lastReconnect,
	}
}

// Register joins the chain. On failure the manager is marked SuspectBroken
// and a reconnect is posted to the loop instead of being retried inline.
func (m *Manager) Register() {
	if m.closed {
		return
	}
	next, err := m.viewer.RegisterViewer()
	if err != nil {
		m.state = SuspectBroken
		m.receiving = false
		m.logFailure("failed to initialize clipboard monitoring",
			fmt.Errorf("%w: %w", ErrRegistration, err), "ChainRegistrationFailure")
		m.post.Post(m.Reconnect)
		return
	}
	m.link = next
	m.state = Registered
	m.receiving = true
	m.lastChange = m.now()
	m.log.Info("joined clipboard viewer chain", "next", next)
}

// Deregister leaves the chain, handing our link back to the OS. It is meant
// for shutdown only; the manager ignores every later call.
func (m *Manager) Deregister() error {
	if m.closed {
		return nil
	}
	m.closed = true
	defer func() {
		m.state = Unregistered
		m.link = 0
	}()

	if m.state == Unregistered || m.link == 0 {
		return nil
	}
	if err := m.viewer.DeregisterViewer(m.link); err != nil {
		err = fmt.Errorf("%w: %w", ErrRegistration, err)
		m.logFailure("failed to leave clipboard viewer chain", err, "ChainRegistrationFailure")
		return err
	}
	m.log.Info("left clipboard viewer chain")
	return nil
}

// Forward relays msg unmodified to the next viewer. Skipping this starves
// every viewer after us, so it runs for every change and topology message.
func (m *Manager) Forward(msg Message) {
	if m.link == 0 {
		return
	}
	if err := m.viewer.ForwardMessage(m.link, msg); err != nil {
		m.markSuspect()
		m.receiving = false
		m.logFailure("failed to forward clipboard message",
			fmt.Errorf("%w: %w", ErrForward, err), "ChainForwardFailure",
			"kind", msg.Kind, "next", m.link)
	}
}

// HandleTopologyChange reacts to a viewer leaving the chain. If the removed
// viewer is our link we adopt its successor; otherwise the message travels
// downstream so every remaining viewer sees it.
func (m *Manager) HandleTopologyChange(msg Message, removed, next Link) {
	if removed == m.link {
		m.log.Debug("clipboard chain link replaced", "removed", removed, "next", next)
		m.link = next
		// Our neighbourhood changed under us; let the next health check
		// re-validate membership.
		m.receiving = false
		return
	}
	m.Forward(msg)
}

// NoteChangeDelivered records that a change notification reached us, which
// is the best evidence the chain still works.
func (m *Manager) NoteChangeDelivered() {
	m.receiving = true
	m.lastChange = m.now()
}

// CheckHealth infers chain validity. The OS offers no direct query, so this
// combines the membership state, the chain head, the receiving flag, the
// clipboard probe and, when enabled, notification staleness.
func (m *Manager) CheckHealth() Health {
	h, reason := m.health()
	if h == Broken {
		m.log.Debug("clipboard chain looks broken", "reason", reason, "state", m.state)
		m.markSuspect()
	}
	return h
}

func (m *Manager) health() (Health, string) {
	if m.state != Registered {
		return Broken, "not registered"
	}
	head, err := m.viewer.CurrentViewer()
	if err != nil {
		m.log.Warn("error checking clipboard chain", "err", err)
		return Broken, "chain query failed"
	}
	if head == 0 {
		return Broken, "chain is empty"
	}
	if !m.receiving {
		return Broken, "not receiving updates"
	}
	if m.probe != nil {
		if err := m.probe(); err != nil {
			m.log.Debug("clipboard probe failed", "err", err, "failure", "ClipboardAccessFailure")
			return Broken, "clipboard probe failed"
		}
	}
	if m.staleAfter > 0 && m.now().Sub(m.lastChange) > m.staleAfter {
		return Broken, "no recent change notification"
	}
	return Valid, ""
}

// Reconnect re-joins the chain if CheckHealth reports it broken. The stale
// membership is removed first; a failure there is logged and ignored.
func (m *Manager) Reconnect() {
	if m.closed {
		return
	}
	if m.CheckHealth() == Valid {
		return
	}
	m.rejoin()
}

// Rejoin drops and re-establishes membership without consulting
// CheckHealth. Used when an operator asks for a reconnect.
func (m *Manager) Rejoin() {
	if m.closed {
		return
	}
	m.rejoin()
}

// SetStaleAfter changes the staleness window used by CheckHealth.
func (m *Manager) SetStaleAfter(d time.Duration) { m.staleAfter = d }

func (m *Manager) rejoin() {
	m.state = Reconnecting
	if err := m.viewer.DeregisterViewer(m.link); err != nil {
		m.logFailure("failed to remove stale chain membership",
			fmt.Errorf("%w: %w", ErrRegistration, err), "ChainRegistrationFailure")
	}
	// Registering may deliver a change notification re-entrantly; it must
	// not be forwarded to the stale link.
	m.link = 0

	next, err := m.viewer.RegisterViewer()
	if err != nil {
		m.state = SuspectBroken
		m.receiving = false
		m.logFailure("failed to reconnect clipboard chain",
			fmt.Errorf("%w: %w", ErrRegistration, err), "ChainRegistrationFailure")
		return
	}

	m.link = next
	m.state = Registered
	m.receiving = true
	m.lastChange = m.now()
	m.reconnects++
	m.lastReconnect = m.now()
	if m.probe != nil {
		if err := m.probe(); err != nil {
			m.log.Info("rejoined clipboard chain but the clipboard is still unreachable",
				"next", next, "reconnects", m.reconnects, "err", err)
			return
		}
	}
	m.log.Warn("clipboard chain was broken and has been restored", "next", next, "reconnects", m.reconnects)
}

func (m *Manager) markSuspect() {
	if m.state == Registered {
		m.state = SuspectBroken
	}
}

func (m *Manager) logFailure(msg string, err error, failure string, args ...any) {
	args = append([]any{"err", err, "failure", failure}, args...)
	m.log.Error(msg, args...)
}
