package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/protocol"
)

func startTestListener(t *testing.T) (*Listener, string) {
	t.Helper()

	r := NewRouter()
	r.Register("ping", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]string{"message": "pong"}, nil
	})
	r.Register("echo", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in map[string]string
		if err := json.Unmarshal(params, &in); err != nil {
			return nil, err
		}
		return in, nil
	})

	path := filepath.Join(t.TempDir(), "agent.sock")
	l, err := Listen(Options{Mode: ModeIPC, IPCPath: path}, r)
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	go func() { _ = l.Serve(context.Background()) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Shutdown(ctx)
	})
	return l, path
}

func roundTrip(t *testing.T, conn net.Conn, r *bufio.Reader, cmd protocol.Command) protocol.Response {
	t.Helper()
	if err := protocol.WriteCommand(conn, cmd); err != nil {
		t.Fatalf("WriteCommand() error: %v", err)
	}
	resp, err := protocol.ReadResponse(r)
	if err != nil {
		t.Fatalf("ReadResponse() error: %v", err)
	}
	return resp
}

func TestListenerSessions(t *testing.T) {
	t.Run("ping_round_trip", func(t *testing.T) {
		_, path := startTestListener(t)

		conn, err := net.Dial("unix", path)
		if err != nil {
			t.Fatalf("Dial() error: %v", err)
		}
		defer conn.Close()

		resp := roundTrip(t, conn, bufio.NewReader(conn), protocol.Command{Action: "ping"})
		if !resp.Success {
			t.Fatalf("ping response success = false (error: %s)", resp.Error)
		}
	})

	t.Run("malformed_line_keeps_session_open", func(t *testing.T) {
		_, path := startTestListener(t)

		conn, err := net.Dial("unix", path)
		if err != nil {
			t.Fatalf("Dial() error: %v", err)
		}
		defer conn.Close()
		r := bufio.NewReader(conn)

		if _, err := conn.Write([]byte("this is not json\n")); err != nil {
			t.Fatalf("write garbage: %v", err)
		}
		resp, err := protocol.ReadResponse(r)
		if err != nil {
			t.Fatalf("ReadResponse() after garbage: %v", err)
		}
		if resp.Success {
			t.Fatal("garbage line accepted; want error envelope")
		}

		// The same connection must still serve valid commands.
		resp = roundTrip(t, conn, r, protocol.Command{Action: "ping"})
		if !resp.Success {
			t.Fatalf("ping after garbage failed: %s", resp.Error)
		}
	})

	t.Run("oversized_line_gets_one_error_envelope", func(t *testing.T) {
		_, path := startTestListener(t)

		conn, err := net.Dial("unix", path)
		if err != nil {
			t.Fatalf("Dial() error: %v", err)
		}
		defer conn.Close()
		r := bufio.NewReader(conn)

		go func() {
			line := append(bytes.Repeat([]byte("x"), protocol.MaxLineBytes+200*1024), '\n')
			if _, err := conn.Write(line); err != nil {
				return
			}
			_ = protocol.WriteCommand(conn, protocol.Command{Action: "ping"})
		}()

		resp, err := protocol.ReadResponse(r)
		if err != nil {
			t.Fatalf("ReadResponse() after oversized line: %v", err)
		}
		if resp.Success || !strings.Contains(resp.Error, "frame limit") {
			t.Fatalf("oversized line response = %+v; want frame limit error", resp)
		}

		// Exactly one error envelope per rejected frame: the next response
		// must pair with the ping, not with the tail of the oversized line.
		resp, err = protocol.ReadResponse(r)
		if err != nil {
			t.Fatalf("ReadResponse() for ping: %v", err)
		}
		if !resp.Success {
			t.Fatalf("ping after oversized line failed: %s", resp.Error)
		}
	})

	t.Run("sequential_commands_one_session", func(t *testing.T) {
		_, path := startTestListener(t)

		conn, err := net.Dial("unix", path)
		if err != nil {
			t.Fatalf("Dial() error: %v", err)
		}
		defer conn.Close()
		r := bufio.NewReader(conn)

		for i := 0; i < 5; i++ {
			params, _ := json.Marshal(map[string]string{"n": fmt.Sprint(i)})
			resp := roundTrip(t, conn, r, protocol.Command{Action: "echo", Params: params})
			if !resp.Success {
				t.Fatalf("echo %d failed: %s", i, resp.Error)
			}
			var out map[string]string
			if err := json.Unmarshal(resp.Data, &out); err != nil {
				t.Fatalf("unmarshal echo %d: %v", i, err)
			}
			if out["n"] != fmt.Sprint(i) {
				t.Fatalf("echo %d = %q; responses out of order", i, out["n"])
			}
		}
	})

	t.Run("concurrent_sessions", func(t *testing.T) {
		_, path := startTestListener(t)

		var wg sync.WaitGroup
		for c := 0; c < 8; c++ {
			wg.Add(1)
			go func(c int) {
				defer wg.Done()
				conn, err := net.Dial("unix", path)
				if err != nil {
					t.Errorf("client %d: Dial() error: %v", c, err)
					return
				}
				defer conn.Close()
				r := bufio.NewReader(conn)
				for i := 0; i < 10; i++ {
					params, _ := json.Marshal(map[string]string{"client": fmt.Sprint(c)})
					if err := protocol.WriteCommand(conn, protocol.Command{Action: "echo", Params: params}); err != nil {
						t.Errorf("client %d: write: %v", c, err)
						return
					}
					resp, err := protocol.ReadResponse(r)
					if err != nil {
						t.Errorf("client %d: read: %v", c, err)
						return
					}
					var out map[string]string
					if err := json.Unmarshal(resp.Data, &out); err != nil {
						t.Errorf("client %d: unmarshal: %v", c, err)
						return
					}
					if out["client"] != fmt.Sprint(c) {
						t.Errorf("client %d got reply for client %s", c, out["client"])
						return
					}
				}
			}(c)
		}
		wg.Wait()
	})

	t.Run("refuses_live_socket_path", func(t *testing.T) {
		_, path := startTestListener(t)

		if _, err := Listen(Options{Mode: ModeIPC, IPCPath: path}, NewRouter()); err == nil {
			t.Fatal("Listen() on a live socket path succeeded; want error")
		}
	})

	t.Run("tcp_mode", func(t *testing.T) {
		r := NewRouter()
		r.Register("ping", func(ctx context.Context, params json.RawMessage) (any, error) {
			return map[string]string{"message": "pong"}, nil
		})
		l, err := Listen(Options{Mode: ModeTCP, TCPAddr: "127.0.0.1:0"}, r)
		if err != nil {
			t.Fatalf("Listen(tcp) error: %v", err)
		}
		go func() { _ = l.Serve(context.Background()) }()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = l.Shutdown(ctx)
		}()

		conn, err := net.Dial("tcp", l.Addr().String())
		if err != nil {
			t.Fatalf("Dial(tcp) error: %v", err)
		}
		defer conn.Close()

		resp := roundTrip(t, conn, bufio.NewReader(conn), protocol.Command{Action: "ping"})
		if !resp.Success {
			t.Fatalf("tcp ping failed: %s", resp.Error)
		}
	})
}
