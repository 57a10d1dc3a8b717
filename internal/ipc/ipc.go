// Package ipc provides helpers for the local control channel used by the
// status and reconnect CLI commands to talk to a running clipwatch agent.
//
// The channel is newline-delimited JSON (package wire) served over a Unix
// domain socket, or a named pipe on Windows.
package ipc

import (
	"net"
	"os"
)

// SocketPath returns the platform-appropriate path for the IPC socket.
//
//   - Linux / macOS: $XDG_RUNTIME_DIR/clipwatch.sock or $TMPDIR/clipwatch.sock
//     (override with $CLIPWATCH_SOCKET)
//   - Windows:       \\.\pipe\clipwatch
func SocketPath() string {
	if s := os.Getenv("CLIPWATCH_SOCKET"); s != "" {
		return s
	}
	return socketPath()
}

// IsRunning reports whether a clipwatch agent appears to be listening on the
// IPC socket. It does a cheap dial-and-close; no data is exchanged.
func IsRunning() bool {
	c, err := Dial()
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Dial connects to the IPC socket.
func Dial() (net.Conn, error) {
	return dialIPC(SocketPath())
}

// Listen creates and returns a net.Listener on the IPC socket path.
func Listen() (net.Listener, error) {
	return listenIPC(SocketPath())
}
