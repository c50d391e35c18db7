package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/bridge"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/config"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "--help" {
		usage()
		os.Exit(2)
	}
	action := os.Args[1]

	var params json.RawMessage
	if len(os.Args) > 2 {
		raw := []byte(os.Args[2])
		if !json.Valid(raw) {
			fmt.Fprintf(os.Stderr, "params is not valid JSON: %s\n", os.Args[2])
			os.Exit(2)
		}
		params = raw
	}

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	client := bridge.New(bridge.Options{
		Mode:           cfg.ConnMode,
		IPCPath:        cfg.IPCPath,
		TCPAddr:        cfg.TCPAddr(),
		DialTimeout:    cfg.DialTimeout,
		CommandTimeout: cfg.CommandTimeout,
		MaxAttempts:    cfg.MaxAttempts,
	})
	defer func() {
		if err := client.Close(); err != nil {
			slog.Debug("client close failed", "error", err)
		}
	}()

	data, err := client.SendCommand(context.Background(), action, params)
	if err != nil {
		var serverErr *bridge.ServerError
		switch {
		case errors.As(err, &serverErr):
			fmt.Fprintf(os.Stderr, "%s failed: %s\n", serverErr.Action, serverErr.Message)
		case errors.Is(err, bridge.ErrTimeout):
			fmt.Fprintf(os.Stderr, "%s timed out\n", action)
		default:
			fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
		}
		os.Exit(1)
	}

	printJSON(os.Stdout, data)
}

func printJSON(w io.Writer, data json.RawMessage) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		fmt.Fprintln(w, string(data))
		return
	}
	fmt.Fprintln(w, buf.String())
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: agentctl <action> [params-json]

Sends a single command to a running agent and prints the response data.

Examples:
  agentctl ping
  agentctl health_check
  agentctl get_console_logs '{"level":"error","limit":50}'
  agentctl take_screenshot '{"format":"jpeg","quality":70}'

Connection settings come from AGENT_CLIENT_* environment variables,
falling back to the server's AGENT_* values (see .env support).
`)
}
