//go:build !windows

package platform

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipwatch/internal/chain"
	"go.klb.dev/clipwatch/internal/uiloop"
)

func TestPseudoViewerMembership(t *testing.T) {
	t.Parallel()
	v := &pseudoViewer{}

	head, err := v.CurrentViewer()
	require.NoError(t, err)
	assert.Zero(t, head)

	next, err := v.RegisterViewer()
	require.NoError(t, err)
	assert.Zero(t, next, "a one-member chain has no next viewer")

	head, err = v.CurrentViewer()
	require.NoError(t, err)
	assert.Equal(t, selfLink, head)

	require.NoError(t, v.DeregisterViewer(0))
	head, _ = v.CurrentViewer()
	assert.Zero(t, head)
}

func TestLogTrayWritesToast(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	tray := &logTray{log: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, tray.ShowToast("", "hello", 2*time.Second))
	require.NoError(t, tray.HideToast())
	require.NoError(t, tray.Dispose())

	assert.Contains(t, buf.String(), "text=hello")
	assert.Contains(t, buf.String(), "timeout_ms=2000")
}

type recordingHost struct {
	mu       sync.Mutex
	calls    []string
	messages []chain.Message
}

func (h *recordingHost) record(s string) {
	h.mu.Lock()
	h.calls = append(h.calls, s)
	h.mu.Unlock()
}

func (h *recordingHost) Route(msg chain.Message) bool {
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	h.mu.Unlock()
	h.record("route")
	return true
}

func (h *recordingHost) Started()  { h.record("started") }
func (h *recordingHost) Stopping() { h.record("stopping") }

func (h *recordingHost) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func TestRunPolledDeliversWatchSignalsAsContentChanges(t *testing.T) {
	t.Parallel()
	loop := uiloop.New()
	host := &recordingHost{}
	watch := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- runPolled(ctx, loop, host, watch) }()

	watch <- struct{}{}
	require.Eventually(t, func() bool {
		return len(host.snapshot()) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runPolled did not return after cancel")
	}

	calls := host.snapshot()
	assert.Equal(t, []string{"started", "route", "stopping"}, calls)
	host.mu.Lock()
	defer host.mu.Unlock()
	require.Len(t, host.messages, 1)
	assert.Equal(t, chain.KindContentChanged, host.messages[0].Kind)
}

func TestEventString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "resume", EventResume.String())
	assert.Equal(t, "unlock", EventUnlock.String())
	assert.Equal(t, "about", EventAbout.String())
	assert.Equal(t, "exit", EventExit.String())
	assert.Equal(t, "unknown", Event(0).String())
}
