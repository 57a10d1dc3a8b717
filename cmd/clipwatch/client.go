package main

import (
	"fmt"
	"time"

	"go.klb.dev/clipwatch/internal/ipc"
	"go.klb.dev/clipwatch/internal/message"
	"go.klb.dev/clipwatch/internal/wire"
)

const requestTimeout = 10 * time.Second

// request sends msg to the running agent and returns its reply. An ERROR
// reply is returned as an error.
func request(msg *message.Message) (*message.Message, error) {
	conn, err := ipc.Dial()
	if err != nil {
		return nil, fmt.Errorf("clipwatch is not running (%s): %w", ipc.SocketPath(), err)
	}
	wc := wire.New(conn)
	defer wc.Close()

	if err := wc.WriteMsg(msg); err != nil {
		return nil, fmt.Errorf("send %s: %w", msg.Type, err)
	}
	wc.SetReadDeadline(requestTimeout)
	resp, err := wc.ReadMsg()
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if resp.Type == message.TypeError {
		return nil, fmt.Errorf("agent: %s", resp.Error)
	}
	return resp, nil
}
