package tools

import (
	"context"
	"encoding/json"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/capture"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/host"
)

// Sub-actions of the network_inspector command.
const (
	networkActionGetRequests   = "get_requests"
	networkActionClearRequests = "clear_requests"
	networkActionStartCapture  = "start_capture"
	networkActionStopCapture   = "stop_capture"
)

type injectNetworkParams struct {
	WindowLabel string `json:"window_label,omitempty"`
	BufferSize  int    `json:"buffer_size,omitempty"`
}

func (t *toolset) injectNetworkCapture(ctx context.Context, params json.RawMessage) (any, error) {
	var p injectNetworkParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	size := p.BufferSize
	if size <= 0 {
		size = t.deps.NetworkBufferSize
	}
	if err := t.deps.Hub.ActivateNetwork(ctx, size); err != nil {
		return nil, err
	}
	return statusMessage{Message: "network capture active", BufferSize: size}, nil
}

type networkFilterParams struct {
	capture.NetworkFilter
	Limit int `json:"limit,omitempty"`
}

type networkInspectorParams struct {
	WindowLabel string               `json:"window_label,omitempty"`
	Action      string               `json:"action"`
	Filter      *networkFilterParams `json:"filter,omitempty"`
}

type networkRequestsResult struct {
	Requests      []capture.NetworkRequest `json:"requests"`
	TotalCount    int                      `json:"total_count"`
	ReturnedCount int                      `json:"returned_count"`
	CaptureActive bool                     `json:"capture_active"`
}

type networkToggleResult struct {
	Message       string `json:"message"`
	CaptureActive bool   `json:"capture_active"`
}

func (t *toolset) networkInspector(ctx context.Context, params json.RawMessage) (any, error) {
	var p networkInspectorParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	switch p.Action {
	case networkActionGetRequests:
		var f networkFilterParams
		if p.Filter != nil {
			f = *p.Filter
		}
		snap, active, err := t.deps.Hub.NetworkSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		res := capture.QueryNetwork(snap, f.NetworkFilter, f.Limit)
		return networkRequestsResult{
			Requests:      res.Items,
			TotalCount:    res.TotalCount,
			ReturnedCount: res.ReturnedCount,
			CaptureActive: active,
		}, nil

	case networkActionClearRequests:
		if err := t.deps.Hub.ClearNetwork(ctx); err != nil {
			return nil, err
		}
		return statusMessage{Message: "network requests cleared"}, nil

	case networkActionStartCapture:
		active, err := t.deps.Hub.SetNetworkCapture(ctx, true)
		if err != nil {
			return nil, err
		}
		return networkToggleResult{Message: "network capture started", CaptureActive: active}, nil

	case networkActionStopCapture:
		active, err := t.deps.Hub.SetNetworkCapture(ctx, false)
		if err != nil {
			return nil, err
		}
		return networkToggleResult{Message: "network capture stopped", CaptureActive: active}, nil

	case "":
		return nil, host.Validationf("network_inspector requires an action")
	default:
		return nil, host.Validationf("unknown network_inspector action %q", p.Action)
	}
}
