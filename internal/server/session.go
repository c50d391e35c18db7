package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/protocol"
)

// runSession owns one accepted connection: read a command, dispatch it, write
// the envelope, repeat. Commands are processed strictly sequentially; there
// is no pipelining within a connection. A malformed payload is answered with
// an error envelope and the session keeps going; a transport failure ends the
// session silently.
func runSession(ctx context.Context, conn net.Conn, router *Router) {
	defer func() { _ = conn.Close() }()

	remote := conn.RemoteAddr().String()
	slog.Debug("session started", "remote", remote)

	reader := bufio.NewReader(conn)
	for {
		if ctx.Err() != nil {
			return
		}

		cmd, err := protocol.ReadCommand(reader)
		if err != nil {
			var parseErr *protocol.ParseError
			if errors.As(err, &parseErr) {
				if writeErr := protocol.WriteResponse(conn, protocol.Fail(parseErr.Error())); writeErr != nil {
					return
				}
				continue
			}
			if err != io.EOF {
				slog.Debug("session read failed", "remote", remote, "error", err)
			}
			return
		}

		resp := router.Dispatch(ctx, cmd)
		if err := protocol.WriteResponse(conn, resp); err != nil {
			// Peer is gone; nothing useful to report to it.
			slog.Debug("session write failed", "remote", remote, "error", err)
			return
		}

		slog.Debug("command handled", "remote", remote, "action", cmd.Action, "success", resp.Success)
	}
}
