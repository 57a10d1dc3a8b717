//go:build linux || darwin

package clip

import (
	"bytes"
	"log/slog"
	"sync"
	"time"

	"golang.design/x/clipboard"
)

const pollInterval = 250 * time.Millisecond

type pollBackend struct {
	watchCh  chan struct{}
	done     chan struct{}
	once     sync.Once
	lastText []byte
}

// New returns the polling clipboard backend, or a headless no-op backend if
// the display environment is unavailable (e.g. a headless server without X11
// or Wayland). clipboard.Init is called here rather than in init() so that
// CLI sub-commands don't trigger the warning.
func New() Backend {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return newHeadless()
	}
	b := &pollBackend{
		watchCh:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		lastText: clipboard.Read(clipboard.FmtText),
	}
	go b.poll()
	return b
}

func (b *pollBackend) Name() string { return "clipboard (poll)" }

func (b *pollBackend) poll() {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-t.C:
			text := clipboard.Read(clipboard.FmtText)
			if text == nil || bytes.Equal(text, b.lastText) {
				continue
			}
			b.lastText = text
			select {
			case b.watchCh <- struct{}{}:
			default:
			}
		}
	}
}

func (b *pollBackend) HasText() bool {
	return clipboard.Read(clipboard.FmtText) != nil
}

func (b *pollBackend) Text() (string, error) {
	data := clipboard.Read(clipboard.FmtText)
	if data == nil {
		return "", ErrClipboardBusy
	}
	return string(data), nil
}

func (b *pollBackend) Probe() error { return nil }

func (b *pollBackend) Watch() <-chan struct{} { return b.watchCh }
func (b *pollBackend) Close()                 { b.once.Do(func() { close(b.done) }) }
