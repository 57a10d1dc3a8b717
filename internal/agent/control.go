package agent

import (
	"context"
	"errors"
	"net"
	"time"

	"go.klb.dev/clipwatch/internal/message"
	"go.klb.dev/clipwatch/internal/wire"
)

const controlTimeout = 5 * time.Second

var errShuttingDown = errors.New("agent is shutting down")

func (a *Agent) serve(ctx context.Context) {
	defer a.serveDone.Done()
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				a.log.Warn("control channel accept failed", "err", err)
			}
			return
		}
		a.serveDone.Add(1)
		go func() {
			defer a.serveDone.Done()
			a.handleConn(ctx, conn)
		}()
	}
}

func (a *Agent) handleConn(ctx context.Context, conn net.Conn) {
	wc := wire.New(conn)
	defer wc.Close()
	wc.SetReadDeadline(controlTimeout)

	msg, err := wc.ReadMsg()
	if err != nil {
		a.log.Debug("control: read failed", "err", err)
		return
	}
	a.log.Debug("control: request", "type", msg.Type)

	reply := a.dispatch(ctx, msg)
	if err := wc.WriteMsg(reply); err != nil {
		a.log.Debug("control: write failed", "err", err)
	}
}

func (a *Agent) dispatch(ctx context.Context, msg *message.Message) *message.Message {
	switch msg.Type {
	case message.TypePing:
		return &message.Message{Type: message.TypePong}

	case message.TypeStatus:
		var st *message.Status
		if err := a.onLoop(ctx, func() { st = a.status() }); err != nil {
			return message.Errorf("status: %v", err)
		}
		return &message.Message{Type: message.TypeStatusResponse, Status: st}

	case message.TypeReconnect:
		a.log.Info("reconnect requested over control channel")
		var st *message.Status
		err := a.onLoop(ctx, func() {
			a.chain.Rejoin()
			st = a.status()
		})
		if err != nil {
			return message.Errorf("reconnect: %v", err)
		}
		return &message.Message{Type: message.TypeOK, Status: st}

	default:
		return message.Errorf("unknown message type %q", msg.Type)
	}
}

// onLoop runs fn on the UI loop and waits for it to finish.
func (a *Agent) onLoop(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !a.loop.Post(func() {
		fn()
		close(done)
	}) {
		return errShuttingDown
	}

	timer := time.NewTimer(controlTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errShuttingDown
	case <-timer.C:
		return errors.New("timed out waiting for the UI loop")
	}
}
