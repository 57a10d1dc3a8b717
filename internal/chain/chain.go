// Package chain keeps this process linked into the OS clipboard-viewer chain.
//
// The chain is a singly-linked list maintained by the OS: each viewer holds a
// handle to the next one and must relay every change and topology message to
// it. Membership silently breaks after suspend/resume, session switches, or a
// peer that forgets to forward, so the Manager probes its own health and
// re-registers when the probe fails.
//
// Manager is not safe for concurrent use. Every method must run on the UI
// loop (see package uiloop); timers and OS event callbacks post onto it.
package chain

import (
	"errors"
	"fmt"
)

// Link is an opaque handle to the next viewer in the chain. Zero means this
// process has no downstream viewer.
type Link uintptr

func (l Link) String() string { return fmt.Sprintf("%#x", uintptr(l)) }

// Kind classifies a window message delivered by the OS.
type Kind int

const (
	KindOther Kind = iota
	// KindContentChanged is WM_DRAWCLIPBOARD or its emulation.
	KindContentChanged
	// KindTopologyChanged is WM_CHANGECBCHAIN: WParam is the removed viewer,
	// LParam the viewer that followed it.
	KindTopologyChanged
)

func (k Kind) String() string {
	switch k {
	case KindContentChanged:
		return "content-changed"
	case KindTopologyChanged:
		return "topology-changed"
	default:
		return "other"
	}
}

// Message is a raw OS window message. It is relayed downstream unmodified.
type Message struct {
	Kind   Kind
	Raw    uint32
	WParam uintptr
	LParam uintptr
}

// State is the chain membership state.
type State int

const (
	Unregistered State = iota
	Registered
	SuspectBroken
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Registered:
		return "registered"
	case SuspectBroken:
		return "suspect-broken"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unregistered"
	}
}

// Health is the outcome of a chain validity probe.
type Health int

const (
	Valid Health = iota
	Broken
)

func (h Health) String() string {
	if h == Broken {
		return "broken"
	}
	return "valid"
}

var (
	// ErrRegistration is a failed register/deregister call against the OS.
	ErrRegistration = errors.New("clipboard chain registration failed")
	// ErrForward is a failed relay to the next viewer, usually a stale link.
	ErrForward = errors.New("clipboard chain forward failed")
)

// Viewer is the set of OS clipboard-chain primitives. Implementations are
// bound to this process's message window.
type Viewer interface {
	// RegisterViewer inserts this process at the head of the chain and
	// returns the previous head.
	RegisterViewer() (Link, error)
	// DeregisterViewer removes this process, splicing next into its place.
	DeregisterViewer(next Link) error
	// ForwardMessage relays msg to next.
	ForwardMessage(next Link, msg Message) error
	// CurrentViewer returns the head of the chain; zero means empty.
	CurrentViewer() (Link, error)
}
