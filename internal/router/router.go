// Package router is the single dispatch point for OS clipboard messages.
package router

import (
	"context"
	"log/slog"

	"go.klb.dev/clipwatch/internal/chain"
)

// TextReader is the guarded clipboard text accessor.
type TextReader interface {
	HasText() bool
	Text() (string, error)
}

// ContentObserver receives newly observed clipboard text.
type ContentObserver interface {
	OnContentObserved(text string) bool
}

// ChainHandler maintains clipboard-viewer chain membership.
type ChainHandler interface {
	NoteChangeDelivered()
	Forward(msg chain.Message)
	HandleTopologyChange(msg chain.Message, removed, next chain.Link)
}

// Router dispatches clipboard messages. It must run on the UI loop.
type Router struct {
	reader   TextReader
	observer ContentObserver
	chain    ChainHandler
	log      *slog.Logger
}

// New returns a Router.
func New(reader TextReader, observer ContentObserver, ch ChainHandler, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{reader: reader, observer: observer, chain: ch, log: log}
}

// Route handles msg and reports whether it was consumed. Unconsumed messages
// must go to the platform's default handling.
func (r *Router) Route(msg chain.Message) bool {
	switch msg.Kind {
	case chain.KindContentChanged:
		r.chain.NoteChangeDelivered()
		r.observe()
		// Forward even when the read failed so downstream viewers are not
		// starved.
		r.chain.Forward(msg)
		return true

	case chain.KindTopologyChanged:
		r.chain.HandleTopologyChange(msg, chain.Link(msg.WParam), chain.Link(msg.LParam))
		return true

	default:
		return false
	}
}

func (r *Router) observe() {
	if !r.reader.HasText() {
		return
	}
	text, err := r.reader.Text()
	if err != nil {
		r.log.Warn("clipboard read failed, skipping change", "err", err, "failure", "ClipboardAccessFailure")
		return
	}
	if r.observer.OnContentObserved(text) {
		r.logText(text)
	}
}

const previewRunes = 120

// logText logs accepted text at DEBUG with a preview of up to previewRunes.
func (r *Router) logText(text string) {
	if !r.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	runes := []rune(text)
	preview := text
	if len(runes) > previewRunes {
		preview = string(runes[:previewRunes]) + "…"
	}
	r.log.Debug("clipboard text shown", "chars", len(runes), "preview", preview)
}
