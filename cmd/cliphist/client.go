package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/grpc"

	"go.klb.dev/cliphist/internal/ipc"
	"go.klb.dev/cliphist/internal/rpc"
)

const requestTimeout = 5 * time.Second

// dialDaemon connects to the running daemon over the IPC socket.
func dialDaemon() (*grpc.ClientConn, *rpc.Client, error) {
	if !ipc.IsRunning() {
		return nil, nil, fmt.Errorf("no cliphist daemon listening on %s (start one with \"cliphist daemon\")", ipc.SocketPath())
	}
	conn, err := rpc.Dial(ipc.Target())
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	return conn, rpc.NewClient(conn), nil
}

// withClient runs fn against the daemon with a bounded deadline.
func withClient(parent context.Context, fn func(ctx context.Context, c *rpc.Client) error) error {
	conn, c, err := dialDaemon()
	if err != nil {
		return err
	}
	defer conn.Close()

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, requestTimeout)
	defer cancel()
	return fn(ctx, c)
}

// resolveID accepts either an entry id or a 1-based position in list order.
func resolveID(ctx context.Context, c *rpc.Client, ref string) (string, error) {
	n, err := strconv.Atoi(ref)
	if err != nil {
		return ref, nil
	}
	resp, err := c.List(ctx, &rpc.ListRequest{})
	if err != nil {
		return "", fmt.Errorf("list: %w", err)
	}
	if n < 1 || n > len(resp.Entries) {
		return "", fmt.Errorf("no entry at position %d (history has %d)", n, len(resp.Entries))
	}
	return resp.Entries[n-1].ID, nil
}
