// Package server implements the command socket: a listener on a unix socket
// or TCP loopback address, persistent per-connection sessions, and the action
// router. Connections exchange newline-delimited JSON per internal/protocol.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Connection modes.
const (
	ModeIPC = "ipc"
	ModeTCP = "tcp"
)

// Options configures a Listener.
type Options struct {
	// Mode selects the transport: ModeIPC (unix socket) or ModeTCP.
	Mode string
	// IPCPath is the socket path for ModeIPC. A stale socket file left by a
	// previous run is removed before binding.
	IPCPath string
	// TCPAddr is the host:port bind address for ModeTCP.
	TCPAddr string
}

// Listener accepts connections and runs one session per connection until
// Shutdown.
type Listener struct {
	router *Router

	ln       net.Listener
	ipcPath  string
	sessions atomic.Int64

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// Listen binds per opts and returns a Listener ready to Serve.
func Listen(opts Options, router *Router) (*Listener, error) {
	var ln net.Listener
	var err error
	var ipcPath string

	switch opts.Mode {
	case ModeIPC, "":
		ipcPath = opts.IPCPath
		if ipcPath == "" {
			return nil, errors.New("server: ipc mode requires a socket path")
		}
		if err := os.MkdirAll(filepath.Dir(ipcPath), 0o755); err != nil {
			return nil, fmt.Errorf("server: socket dir: %w", err)
		}
		// A crashed previous run leaves the socket file behind.
		if err := removeStaleSocket(ipcPath); err != nil {
			return nil, err
		}
		ln, err = net.Listen("unix", ipcPath)
		if err != nil {
			return nil, fmt.Errorf("server: bind unix %s: %w", ipcPath, err)
		}
		if err := os.Chmod(ipcPath, 0o700); err != nil {
			_ = ln.Close()
			return nil, fmt.Errorf("server: chmod socket: %w", err)
		}
	case ModeTCP:
		if opts.TCPAddr == "" {
			return nil, errors.New("server: tcp mode requires a bind address")
		}
		ln, err = net.Listen("tcp", opts.TCPAddr)
		if err != nil {
			return nil, fmt.Errorf("server: bind tcp %s: %w", opts.TCPAddr, err)
		}
	default:
		return nil, fmt.Errorf("server: unknown connection mode %q", opts.Mode)
	}

	return &Listener{
		router:  router,
		ln:      ln,
		ipcPath: ipcPath,
		conns:   make(map[net.Conn]struct{}),
		closed:  make(chan struct{}),
	}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// SessionCount returns the number of currently active sessions.
func (l *Listener) SessionCount() int64 { return l.sessions.Load() }

// Serve accepts connections until Shutdown. Each accepted connection runs in
// its own goroutine so a slow or stuck client cannot block others. Serve
// returns nil after Shutdown.
func (l *Listener) Serve(ctx context.Context) error {
	slog.Info("command server listening", "addr", l.ln.Addr().String())

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.closed:
				return nil
			default:
			}
			// Accept failures on a live listener are transient; keep going.
			slog.Warn("accept failed", "error", err)
			continue
		}

		l.connMu.Lock()
		l.conns[conn] = struct{}{}
		l.connMu.Unlock()

		l.wg.Add(1)
		l.sessions.Add(1)
		go func() {
			defer l.wg.Done()
			defer l.sessions.Add(-1)
			defer func() {
				l.connMu.Lock()
				delete(l.conns, conn)
				l.connMu.Unlock()
			}()
			runSession(ctx, conn, l.router)
		}()
	}
}

// Shutdown stops accepting, closes the listener and every live connection,
// and waits for sessions to unwind or ctx to expire.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.closeOnce.Do(func() {
		close(l.closed)
		_ = l.ln.Close()
		if l.ipcPath != "" {
			_ = os.Remove(l.ipcPath)
		}
		// Closing live connections unblocks sessions parked in a read.
		l.connMu.Lock()
		for conn := range l.conns {
			_ = conn.Close()
		}
		l.connMu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("server: stat socket: %w", err)
	}
	// If something is still serving, refuse to steal the path.
	if conn, err := net.Dial("unix", path); err == nil {
		_ = conn.Close()
		return fmt.Errorf("server: socket %s is already in use", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("server: remove stale socket: %w", err)
	}
	slog.Debug("removed stale socket", "path", path)
	return nil
}
