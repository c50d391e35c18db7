package tools

import (
	"context"
	"encoding/json"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/capture"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/host"
)

type injectConsoleParams struct {
	WindowLabel string `json:"window_label,omitempty"`
	BufferSize  int    `json:"buffer_size,omitempty"`
}

func (t *toolset) injectConsoleCapture(ctx context.Context, params json.RawMessage) (any, error) {
	var p injectConsoleParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	size := p.BufferSize
	if size <= 0 {
		size = t.deps.LogBufferSize
	}
	if err := t.deps.Hub.ActivateConsole(ctx, size); err != nil {
		return nil, err
	}
	return statusMessage{Message: "console capture active", BufferSize: size}, nil
}

type getConsoleLogsParams struct {
	capture.LogFilter
	WindowLabel string `json:"window_label,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

type consoleLogsResult struct {
	Logs          []capture.LogEntry `json:"logs"`
	TotalCount    int                `json:"total_count"`
	ReturnedCount int                `json:"returned_count"`
}

func (t *toolset) getConsoleLogs(ctx context.Context, params json.RawMessage) (any, error) {
	var p getConsoleLogsParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if !capture.ValidLevel(p.Level) {
		return nil, host.Validationf("unknown log level %q", p.Level)
	}

	snap, _, err := t.deps.Hub.ConsoleSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	res := capture.QueryLogs(snap, p.LogFilter, p.Limit)
	return consoleLogsResult{
		Logs:          res.Items,
		TotalCount:    res.TotalCount,
		ReturnedCount: res.ReturnedCount,
	}, nil
}

func (t *toolset) clearConsoleLogs(ctx context.Context, params json.RawMessage) (any, error) {
	if err := t.deps.Hub.ClearConsole(ctx); err != nil {
		return nil, err
	}
	return statusMessage{Message: "console logs cleared"}, nil
}
