// Package ipc locates and opens the local Unix socket on which the cliphist
// daemon serves its gRPC API to CLI sub-commands and other collaborators.
//
// Access control is the socket file's mode: it is created owner-only, so no
// token is exchanged. Windows 10 and later support AF_UNIX as well.
package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const dialTimeout = 500 * time.Millisecond

// SocketPath returns the IPC socket path.
//
//   - $CLIPHIST_SOCKET when set
//   - $XDG_RUNTIME_DIR/cliphist.sock on Linux sessions that have one
//   - $TMPDIR/cliphist-<uid>.sock otherwise
func SocketPath() string {
	if s := os.Getenv("CLIPHIST_SOCKET"); s != "" {
		return s
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "cliphist.sock")
	}
	return filepath.Join(os.TempDir(), "cliphist-"+strconv.Itoa(os.Getuid())+".sock")
}

// Target returns the gRPC dial target for the socket.
func Target() string { return "unix://" + SocketPath() }

// IsRunning reports whether a daemon is listening on the socket. It does a
// cheap dial-and-close; no data is exchanged.
func IsRunning() bool {
	c, err := net.DialTimeout("unix", SocketPath(), dialTimeout)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// ErrAlreadyRunning is returned by Listen when another daemon owns the socket.
var ErrAlreadyRunning = errors.New("ipc: another daemon is listening")

// Listen creates the socket, removing a stale file left by a crashed run.
// It refuses to take over a socket that still has a listener.
func Listen() (net.Listener, error) {
	path := SocketPath()
	if IsRunning() {
		return nil, fmt.Errorf("%w on %s", ErrAlreadyRunning, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ipc: %w", err)
	}
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("ipc: chmod %s: %w", path, err)
	}
	return ln, nil
}
