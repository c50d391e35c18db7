// Package bridge implements the client side of the command socket: a
// persistent connection with explicit lifecycle state, reconnect with
// backoff, and strictly serialized command/response exchanges.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/protocol"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/server"
)

// Sentinel failures callers branch on. ErrTimeout means the command may or
// may not have executed; the client never retries it. ErrConnectionLost
// means the connection is gone and the next call will reconnect.
var (
	ErrTimeout        = errors.New("bridge: command timed out")
	ErrConnectionLost = errors.New("bridge: connection lost")
)

// ServerError carries a success:false envelope's message verbatim.
type ServerError struct {
	Action  string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// State is the connection lifecycle phase.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Options configures a Client. Zero values get the listed defaults.
type Options struct {
	// Mode selects the transport, matching the server side.
	Mode string
	// IPCPath is the socket path for ipc mode.
	IPCPath string
	// TCPAddr is the host:port for tcp mode.
	TCPAddr string

	// DialTimeout bounds a single connection attempt. Default 2s.
	DialTimeout time.Duration
	// CommandTimeout bounds one command/response exchange. Default 10s.
	CommandTimeout time.Duration
	// MaxAttempts bounds connection attempts per reconnect. Default 5.
	MaxAttempts int
	// BaseBackoff is the first retry delay, doubled per attempt up to
	// MaxBackoff. Defaults 100ms and 2s.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Client is a persistent command socket client. Safe for concurrent use;
// commands are serialized so responses always pair with their request.
type Client struct {
	opts  Options
	state atomic.Int32

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// New creates a disconnected Client. The first SendCommand or an explicit
// Connect establishes the connection.
func New(opts Options) *Client {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 2 * time.Second
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 100 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 2 * time.Second
	}
	return &Client{opts: opts}
}

// State returns the current lifecycle phase.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Connect establishes the connection eagerly. SendCommand connects lazily,
// so calling Connect is optional.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureConnected(ctx)
}

// Close drops the connection. The client can be reused; the next call
// reconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardown()
	return nil
}

// SendCommand performs one command/response exchange, reconnecting first if
// the connection is down. A transport failure mid-exchange returns
// ErrConnectionLost (or ErrTimeout on deadline) and leaves the client
// disconnected; the command is never resent automatically.
func (c *Client) SendCommand(ctx context.Context, action string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("bridge: marshal params for %s: %w", action, err)
		}
		raw = data
	}

	deadline := time.Now().Add(c.opts.CommandTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.teardown()
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	if err := protocol.WriteCommand(c.conn, protocol.Command{Action: action, Params: raw}); err != nil {
		c.teardown()
		return nil, c.classify(action, err)
	}

	resp, err := protocol.ReadResponse(c.reader)
	if err != nil {
		// The stream is desynchronized either way; drop it.
		c.teardown()
		return nil, c.classify(action, err)
	}
	_ = c.conn.SetDeadline(time.Time{})

	if !resp.Success {
		return nil, &ServerError{Action: action, Message: resp.Error}
	}
	return resp.Data, nil
}

// ensureConnected dials with exponential backoff. Caller holds mu.
func (c *Client) ensureConnected(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	c.state.Store(int32(StateConnecting))
	backoff := c.opts.BaseBackoff

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		conn, err := c.dial(ctx)
		if err == nil {
			c.conn = conn
			c.reader = bufio.NewReader(conn)
			c.state.Store(int32(StateReady))
			return nil
		}
		lastErr = err
		slog.Debug("bridge connect attempt failed", "attempt", attempt, "error", err)

		if attempt == c.opts.MaxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			c.state.Store(int32(StateDisconnected))
			return ctx.Err()
		}
		backoff *= 2
		if backoff > c.opts.MaxBackoff {
			backoff = c.opts.MaxBackoff
		}
	}

	c.state.Store(int32(StateDisconnected))
	return fmt.Errorf("%w: connect failed after %d attempts: %v", ErrConnectionLost, c.opts.MaxAttempts, lastErr)
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.opts.DialTimeout}
	switch c.opts.Mode {
	case server.ModeTCP:
		return dialer.DialContext(ctx, "tcp", c.opts.TCPAddr)
	case server.ModeIPC, "":
		return dialer.DialContext(ctx, "unix", c.opts.IPCPath)
	default:
		return nil, fmt.Errorf("bridge: unknown connection mode %q", c.opts.Mode)
	}
}

// teardown drops the connection. Caller holds mu.
func (c *Client) teardown() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
	c.state.Store(int32(StateDisconnected))
}

// classify maps a transport failure to the sentinel callers branch on.
func (c *Client) classify(action string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s", ErrTimeout, action)
	}
	return fmt.Errorf("%w: %s: %v", ErrConnectionLost, action, err)
}
