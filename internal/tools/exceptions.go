package tools

import (
	"context"
	"encoding/json"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/capture"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/host"
)

type injectErrorTrackerParams struct {
	WindowLabel string `json:"window_label,omitempty"`
	BufferSize  int    `json:"buffer_size,omitempty"`
	// Older clients send the size under this name.
	CircularBufferSize int `json:"circular_buffer_size,omitempty"`
}

func (t *toolset) injectErrorTracker(ctx context.Context, params json.RawMessage) (any, error) {
	var p injectErrorTrackerParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	size := p.BufferSize
	if size <= 0 {
		size = p.CircularBufferSize
	}
	if size <= 0 {
		size = t.deps.ExceptionBufferSize
	}
	if err := t.deps.Hub.ActivateExceptions(ctx, size); err != nil {
		return nil, err
	}
	return statusMessage{Message: "error tracking active", BufferSize: size}, nil
}

type getExceptionsParams struct {
	capture.ExceptionFilter
	WindowLabel string `json:"window_label,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

type exceptionsResult struct {
	Exceptions    []capture.ExceptionEntry `json:"exceptions"`
	TotalCount    int                      `json:"total_count"`
	ReturnedCount int                      `json:"returned_count"`
}

func (t *toolset) getExceptions(ctx context.Context, params json.RawMessage) (any, error) {
	var p getExceptionsParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if !capture.ValidErrorType(p.ErrorType) {
		return nil, host.Validationf("unknown error type %q", p.ErrorType)
	}

	snap, _, err := t.deps.Hub.ExceptionSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	res := capture.QueryExceptions(snap, p.ExceptionFilter, p.Limit)
	return exceptionsResult{
		Exceptions:    res.Items,
		TotalCount:    res.TotalCount,
		ReturnedCount: res.ReturnedCount,
	}, nil
}

func (t *toolset) clearExceptions(ctx context.Context, params json.RawMessage) (any, error) {
	if err := t.deps.Hub.ClearExceptions(ctx); err != nil {
		return nil, err
	}
	return statusMessage{Message: "exceptions cleared"}, nil
}
