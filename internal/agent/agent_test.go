package agent

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipwatch/internal/chain"
	"go.klb.dev/clipwatch/internal/config"
	"go.klb.dev/clipwatch/internal/message"
	"go.klb.dev/clipwatch/internal/platform"
	"go.klb.dev/clipwatch/internal/uiloop"
	"go.klb.dev/clipwatch/internal/wire"
)

// journal records calls across every fake in order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	j.entries = append(j.entries, s)
	j.mu.Unlock()
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) count(s string) int {
	n := 0
	for _, e := range j.all() {
		if e == s {
			n++
		}
	}
	return n
}

type fakeViewer struct {
	j    *journal
	mu   sync.Mutex
	head chain.Link
	fwd  []chain.Message
}

func (v *fakeViewer) RegisterViewer() (chain.Link, error) {
	v.j.add("register")
	v.mu.Lock()
	v.head = 0x1
	v.mu.Unlock()
	return 0x42, nil
}

func (v *fakeViewer) DeregisterViewer(chain.Link) error {
	v.j.add("deregister")
	return nil
}

func (v *fakeViewer) ForwardMessage(_ chain.Link, msg chain.Message) error {
	v.mu.Lock()
	v.fwd = append(v.fwd, msg)
	v.mu.Unlock()
	return nil
}

func (v *fakeViewer) CurrentViewer() (chain.Link, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.head, nil
}

func (v *fakeViewer) dropFromChain() {
	v.mu.Lock()
	v.head = 0
	v.mu.Unlock()
}

func (v *fakeViewer) forwarded() []chain.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]chain.Message(nil), v.fwd...)
}

type fakeTray struct {
	j      *journal
	mu     sync.Mutex
	bodies []string
}

func (t *fakeTray) ShowToast(_, body string, _ time.Duration) error {
	t.mu.Lock()
	t.bodies = append(t.bodies, body)
	t.mu.Unlock()
	t.j.add("show")
	return nil
}

func (t *fakeTray) HideToast() error { t.j.add("hide"); return nil }
func (t *fakeTray) Dispose() error   { t.j.add("dispose"); return nil }

func (t *fakeTray) shown() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.bodies...)
}

type fakeEvents struct {
	j  *journal
	mu sync.Mutex
	fn func(platform.Event)
}

func (e *fakeEvents) Subscribe(fn func(platform.Event)) error {
	e.mu.Lock()
	e.fn = fn
	e.mu.Unlock()
	e.j.add("subscribe")
	return nil
}

func (e *fakeEvents) Unsubscribe() error {
	e.mu.Lock()
	e.fn = nil
	e.mu.Unlock()
	e.j.add("unsubscribe")
	return nil
}

type fakeBackend struct {
	mu   sync.Mutex
	text string
}

func (b *fakeBackend) Name() string { return "fake" }
func (b *fakeBackend) HasText() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text != ""
}

func (b *fakeBackend) Text() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text, nil
}

func (b *fakeBackend) set(s string) {
	b.mu.Lock()
	b.text = s
	b.mu.Unlock()
}

func (b *fakeBackend) Probe() error           { return nil }
func (b *fakeBackend) Watch() <-chan struct{} { return nil }
func (b *fakeBackend) Close()                 {}

type fakePlatform struct {
	viewer *fakeViewer
	tray   *fakeTray
	events *fakeEvents

	mu   sync.Mutex
	loop *uiloop.Loop
	host platform.Host
}

func newFakePlatform(j *journal) *fakePlatform {
	return &fakePlatform{
		viewer: &fakeViewer{j: j},
		tray:   &fakeTray{j: j},
		events: &fakeEvents{j: j},
	}
}

func (p *fakePlatform) Name() string            { return "fake" }
func (p *fakePlatform) Viewer() chain.Viewer    { return p.viewer }
func (p *fakePlatform) Tray() platform.Tray     { return p.tray }
func (p *fakePlatform) Events() platform.Events { return p.events }

func (p *fakePlatform) Run(ctx context.Context, loop *uiloop.Loop, host platform.Host) error {
	p.mu.Lock()
	p.loop, p.host = loop, host
	p.mu.Unlock()

	loop.Post(host.Started)
	loop.Run(ctx)
	loop.Drain()
	host.Stopping()
	return nil
}

func (p *fakePlatform) deliver(msg chain.Message) {
	p.mu.Lock()
	loop, host := p.loop, p.host
	p.mu.Unlock()
	loop.Post(func() { host.Route(msg) })
}

func (p *fakePlatform) emit(ev platform.Event) {
	p.mu.Lock()
	loop := p.loop
	p.mu.Unlock()
	loop.Post(func() {
		p.events.mu.Lock()
		fn := p.events.fn
		p.events.mu.Unlock()
		if fn != nil {
			fn(ev)
		}
	})
}

func testConfig() config.Config {
	return config.Config{
		Notify: config.NotifyConfig{
			Duration:      50 * time.Millisecond,
			AboutDuration: 50 * time.Millisecond,
			AboutText:     "Created By Andrew Hutchinson",
			MaxChars:      100,
		},
		Chain: config.ChainConfig{
			ReconnectInterval: chain.DefaultReconnectInterval,
			SettleDelay:       10 * time.Millisecond,
		},
	}
}

type harness struct {
	t       *testing.T
	j       *journal
	plat    *fakePlatform
	backend *fakeBackend
	agent   *Agent
	logs    *syncWriter
	cancel  context.CancelFunc

	done chan struct{}
	err  error
}

func startAgent(t *testing.T, opts ...Option) *harness {
	t.Helper()
	j := &journal{}
	h := &harness{
		t:       t,
		j:       j,
		plat:    newFakePlatform(j),
		backend: &fakeBackend{},
		logs:    &syncWriter{},
		done:    make(chan struct{}),
	}
	log := slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts = append([]Option{WithLogger(log), WithVersion("test")}, opts...)
	h.agent = New(h.plat, h.backend, testConfig(), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.err = h.agent.Run(ctx)
		close(h.done)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})

	require.Eventually(t, func() bool { return j.count("subscribe") == 1 }, time.Second, 5*time.Millisecond)
	return h
}

func (h *harness) stop() error {
	h.t.Helper()
	h.cancel()
	select {
	case <-h.done:
		return h.err
	case <-time.After(2 * time.Second):
		h.t.Fatal("agent did not stop")
		return nil
	}
}

type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncWriter) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestContentChangeShowsToastThenAutoHides(t *testing.T) {
	t.Parallel()
	h := startAgent(t)
	h.backend.set("hello")

	msg := chain.Message{Kind: chain.KindContentChanged, Raw: 0x0308}
	h.plat.deliver(msg)

	require.Eventually(t, func() bool {
		return len(h.plat.tray.shown()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"hello"}, h.plat.tray.shown())
	require.Eventually(t, func() bool {
		return len(h.plat.viewer.forwarded()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, msg, h.plat.viewer.forwarded()[0])

	// One hide precedes the show; the auto-hide adds a second.
	require.Eventually(t, func() bool {
		return h.j.count("hide") == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.stop())
}

func TestRepeatedContentIsNotShownAgain(t *testing.T) {
	t.Parallel()
	h := startAgent(t)
	h.backend.set("same")

	h.plat.deliver(chain.Message{Kind: chain.KindContentChanged})
	h.plat.deliver(chain.Message{Kind: chain.KindContentChanged})

	require.Eventually(t, func() bool {
		return len(h.plat.viewer.forwarded()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"same"}, h.plat.tray.shown())
	require.NoError(t, h.stop())
}

func TestShutdownOrder(t *testing.T) {
	t.Parallel()
	h := startAgent(t)
	require.NoError(t, h.stop())

	var tail []string
	for _, e := range h.j.all() {
		switch e {
		case "unsubscribe", "deregister", "dispose":
			tail = append(tail, e)
		}
	}
	assert.Equal(t, []string{"unsubscribe", "deregister", "dispose"}, tail)
	assert.Contains(t, h.logs.String(), "clipboard monitor stopped")
}

func TestExitFromTrayStopsAgent(t *testing.T) {
	t.Parallel()
	h := startAgent(t)

	h.plat.emit(platform.EventExit)

	select {
	case <-h.done:
		require.NoError(t, h.err)
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop after Exit")
	}
	assert.Equal(t, 1, h.j.count("deregister"))
}

func TestAboutShowsCredit(t *testing.T) {
	t.Parallel()
	h := startAgent(t)

	h.plat.emit(platform.EventAbout)

	require.Eventually(t, func() bool {
		return len(h.plat.tray.shown()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Created By Andrew Hutchinson"}, h.plat.tray.shown())
	require.NoError(t, h.stop())
}

func TestResumeReconnectsBrokenChainAfterSettleDelay(t *testing.T) {
	t.Parallel()
	h := startAgent(t)
	require.Equal(t, 1, h.j.count("register"))

	h.plat.viewer.dropFromChain()
	h.plat.emit(platform.EventResume)

	require.Eventually(t, func() bool {
		return h.j.count("register") == 2
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, h.logs.String(), "has been restored")
	require.NoError(t, h.stop())
}

func TestUnlockLeavesHealthyChainAlone(t *testing.T) {
	t.Parallel()
	h := startAgent(t)

	h.plat.emit(platform.EventUnlock)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, h.j.count("register"))
	require.NoError(t, h.stop())
}

func TestReconfigureAppliesOnLoop(t *testing.T) {
	t.Parallel()
	h := startAgent(t)

	cfg := testConfig()
	cfg.Notify.MaxChars = 3
	h.agent.Reconfigure(cfg)

	h.backend.set("abcdef")
	h.plat.deliver(chain.Message{Kind: chain.KindContentChanged})

	require.Eventually(t, func() bool {
		return len(h.plat.tray.shown()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"abc..."}, h.plat.tray.shown())
	require.NoError(t, h.stop())
}

func request(t *testing.T, addr string, msg *message.Message) *message.Message {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	wc := wire.New(conn)
	defer wc.Close()

	require.NoError(t, wc.WriteMsg(msg))
	wc.SetReadDeadline(2 * time.Second)
	resp, err := wc.ReadMsg()
	require.NoError(t, err)
	return resp
}

func TestControlChannel(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	h := startAgent(t, WithListener(ln))

	t.Run("ping", func(t *testing.T) {
		resp := request(t, addr, &message.Message{Type: message.TypePing})
		assert.Equal(t, message.TypePong, resp.Type)
	})

	t.Run("status", func(t *testing.T) {
		resp := request(t, addr, &message.Message{Type: message.TypeStatus})
		require.Equal(t, message.TypeStatusResponse, resp.Type)
		require.NotNil(t, resp.Status)
		assert.Equal(t, "registered", resp.Status.ChainState)
		assert.Equal(t, "0x42", resp.Status.Link)
		assert.Equal(t, "idle", resp.Status.ToastState)
		assert.Equal(t, "test", resp.Status.Version)
		assert.Equal(t, "fake", resp.Status.Backend)
	})

	t.Run("reconnect forces a rejoin", func(t *testing.T) {
		resp := request(t, addr, &message.Message{Type: message.TypeReconnect})
		require.Equal(t, message.TypeOK, resp.Type)
		require.NotNil(t, resp.Status)
		assert.Equal(t, 1, resp.Status.Reconnects)
		assert.Equal(t, 2, h.j.count("register"))
	})

	t.Run("unknown type", func(t *testing.T) {
		resp := request(t, addr, &message.Message{Type: "BOGUS"})
		assert.Equal(t, message.TypeError, resp.Type)
		assert.Contains(t, resp.Error, "BOGUS")
	})

	require.NoError(t, h.stop())
	_, err = net.Dial("tcp", addr)
	assert.Error(t, err, "listener must be closed on shutdown")
}
