//go:build !windows

package platform

import (
	"context"
	"log/slog"
	"time"

	"go.klb.dev/clipwatch/internal/chain"
	"go.klb.dev/clipwatch/internal/uiloop"
)

// selfLink stands in for this process at the head of the pseudo-chain.
const selfLink chain.Link = 1

// pseudoViewer is a one-member chain. There is never a next viewer, so
// ForwardMessage is never reached and membership cannot break.
type pseudoViewer struct {
	registered bool
}

func (v *pseudoViewer) RegisterViewer() (chain.Link, error) {
	v.registered = true
	return 0, nil
}

func (v *pseudoViewer) DeregisterViewer(chain.Link) error {
	v.registered = false
	return nil
}

func (v *pseudoViewer) ForwardMessage(chain.Link, chain.Message) error { return nil }

func (v *pseudoViewer) CurrentViewer() (chain.Link, error) {
	if !v.registered {
		return 0, nil
	}
	return selfLink, nil
}

// logTray writes toasts to the log. It is the fallback when no
// notification service is reachable.
type logTray struct {
	log *slog.Logger
}

func (t *logTray) ShowToast(title, body string, hint time.Duration) error {
	t.log.Info("clipboard", "title", title, "text", body, "timeout_ms", hint.Milliseconds())
	return nil
}

func (t *logTray) HideToast() error { return nil }
func (t *logTray) Dispose() error   { return nil }

type nopEvents struct{}

func (nopEvents) Subscribe(func(Event)) error { return nil }
func (nopEvents) Unsubscribe() error          { return nil }

// runPolled owns loop on the calling goroutine. Every signal on watch is
// delivered to the host as a content-changed message.
func runPolled(ctx context.Context, loop *uiloop.Loop, host Host, watch <-chan struct{}) error {
	loop.Post(host.Started)

	pumpDone := make(chan struct{})
	defer close(pumpDone)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-pumpDone:
				return
			case <-watch:
				loop.Post(func() {
					host.Route(chain.Message{Kind: chain.KindContentChanged})
				})
			}
		}
	}()

	loop.Run(ctx)

	loop.Drain()
	host.Stopping()
	return nil
}
