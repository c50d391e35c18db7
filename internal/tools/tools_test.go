package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/capture"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/host"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/hub"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/protocol"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/server"
)

type stubHost struct {
	screenshotFormat string
	executedCode     string
	evalResult       string
	reloaded         bool
	windowOp         host.WindowOp
	err              error
}

func (s *stubHost) TakeScreenshot(ctx context.Context, format string, quality int) (host.Screenshot, error) {
	s.screenshotFormat = format
	if s.err != nil {
		return host.Screenshot{}, s.err
	}
	return host.Screenshot{Format: format, Data: "aGVsbG8=", Width: 800, Height: 600}, nil
}

func (s *stubHost) GetDOM(ctx context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "<html><body>ok</body></html>", nil
}

func (s *stubHost) ExecuteJS(ctx context.Context, code string) (string, error) {
	s.executedCode = code
	if s.err != nil {
		return "", s.err
	}
	if s.evalResult != "" {
		return s.evalResult, nil
	}
	return `{"answer":42}`, nil
}

func (s *stubHost) ManageWindow(ctx context.Context, op host.WindowOp, bounds *host.WindowBounds) (host.WindowBounds, error) {
	s.windowOp = op
	if s.err != nil {
		return host.WindowBounds{}, s.err
	}
	if bounds != nil {
		return *bounds, nil
	}
	return host.WindowBounds{X: 10, Y: 20, Width: 800, Height: 600}, nil
}

func (s *stubHost) Reload(ctx context.Context) error {
	s.reloaded = true
	return s.err
}

func newTestRouter(t *testing.T) (*server.Router, *hub.Hub, *stubHost) {
	t.Helper()
	h := hub.New(hub.Options{})
	t.Cleanup(h.Close)

	stub := &stubHost{}
	r := server.NewRouter()
	RegisterAll(r, Deps{Hub: h, Host: stub, Version: "0.0.0-test"})
	return r, h, stub
}

func dispatch(t *testing.T, r *server.Router, action string, params any) protocol.Response {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		var err error
		raw, err = json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
	}
	return r.Dispatch(context.Background(), protocol.Command{Action: action, Params: raw})
}

func mustData(t *testing.T, resp protocol.Response, dst any) {
	t.Helper()
	if !resp.Success {
		t.Fatalf("command failed: %s", resp.Error)
	}
	if err := json.Unmarshal(resp.Data, dst); err != nil {
		t.Fatalf("unmarshal response data: %v", err)
	}
}

func TestPing(t *testing.T) {
	r, _, _ := newTestRouter(t)

	resp := dispatch(t, r, protocol.ActionPing, nil)
	if !resp.Success {
		t.Fatalf("ping failed: %s", resp.Error)
	}
	if string(resp.Data) != `"pong"` {
		t.Fatalf("ping data = %s; want %q", resp.Data, `"pong"`)
	}
}

func TestHealthCheck(t *testing.T) {
	r, _, _ := newTestRouter(t)

	var report healthReport
	mustData(t, dispatch(t, r, protocol.ActionHealthCheck, nil), &report)
	if report.Status != "ok" {
		t.Fatalf("health status = %q; want ok", report.Status)
	}
	if len(report.Capabilities) == 0 {
		t.Fatal("health report has no capabilities")
	}
	if len(report.Buffers) != 3 {
		t.Fatalf("health report buffers = %d; want 3", len(report.Buffers))
	}
}

func TestConsoleCommands(t *testing.T) {
	r, h, _ := newTestRouter(t)

	t.Run("activate_record_query", func(t *testing.T) {
		var status statusMessage
		mustData(t, dispatch(t, r, protocol.ActionInjectConsoleCapture, map[string]any{"buffer_size": 50}), &status)
		if status.BufferSize != 50 {
			t.Fatalf("activation buffer_size = %d; want 50", status.BufferSize)
		}

		for i, level := range []string{"info", "info", "info", "error", "error"} {
			h.RecordLog(capture.LogEntry{TimestampMS: int64(1000 + i), Level: level, Message: "entry"})
		}

		var res consoleLogsResult
		mustData(t, dispatch(t, r, protocol.ActionGetConsoleLogs, map[string]any{"level": "error"}), &res)
		if res.ReturnedCount != 2 || res.TotalCount != 2 {
			t.Fatalf("error query counts = (%d, %d); want (2, 2)", res.ReturnedCount, res.TotalCount)
		}
		for _, e := range res.Logs {
			if e.Level != "error" {
				t.Fatalf("filtered query returned level %q", e.Level)
			}
		}
	})

	t.Run("invalid_level_rejected", func(t *testing.T) {
		resp := dispatch(t, r, protocol.ActionGetConsoleLogs, map[string]any{"level": "shout"})
		if resp.Success {
			t.Fatal("unknown level accepted")
		}
		if !strings.Contains(resp.Error, "shout") {
			t.Fatalf("error %q does not name the bad level", resp.Error)
		}
	})

	t.Run("clear", func(t *testing.T) {
		var status statusMessage
		mustData(t, dispatch(t, r, protocol.ActionClearConsoleLogs, nil), &status)

		var res consoleLogsResult
		mustData(t, dispatch(t, r, protocol.ActionGetConsoleLogs, nil), &res)
		if res.TotalCount != 0 {
			t.Fatalf("total_count after clear = %d; want 0", res.TotalCount)
		}
	})
}

func TestNetworkInspector(t *testing.T) {
	r, h, _ := newTestRouter(t)

	mustData(t, dispatch(t, r, protocol.ActionInjectNetworkCapture, nil), &statusMessage{})
	h.RecordRequest(capture.NetworkRequest{ID: "r1", URL: "https://api.example.com/users", Method: "GET", RequestType: "fetch", StartTimeMS: 1000})
	h.RecordRequest(capture.NetworkRequest{ID: "r2", URL: "https://api.example.com/orders", Method: "POST", RequestType: "xhr", StartTimeMS: 2000})
	h.CompleteRequest("r1", func(req *capture.NetworkRequest) {
		req.StatusCode = 200
		req.EndTimeMS = 1500
		req.DurationMS = 500
	})

	t.Run("get_requests", func(t *testing.T) {
		var res networkRequestsResult
		mustData(t, dispatch(t, r, protocol.ActionNetworkInspector, map[string]any{"action": "get_requests"}), &res)
		if res.TotalCount != 2 {
			t.Fatalf("total_count = %d; want 2", res.TotalCount)
		}
		if !res.CaptureActive {
			t.Fatal("capture_active = false after activation")
		}
		// Newest first.
		if res.Requests[0].ID != "r2" {
			t.Fatalf("first request = %s; want r2", res.Requests[0].ID)
		}
		if res.Requests[1].StatusCode != 200 {
			t.Fatalf("r1 status = %d; completion not applied", res.Requests[1].StatusCode)
		}
	})

	t.Run("get_requests_with_filter", func(t *testing.T) {
		var res networkRequestsResult
		mustData(t, dispatch(t, r, protocol.ActionNetworkInspector, map[string]any{
			"action": "get_requests",
			"filter": map[string]any{"method": "POST"},
		}), &res)
		if res.ReturnedCount != 1 || res.Requests[0].ID != "r2" {
			t.Fatalf("POST filter returned %d items; want just r2", res.ReturnedCount)
		}
	})

	t.Run("stop_and_start_capture", func(t *testing.T) {
		var toggle networkToggleResult
		mustData(t, dispatch(t, r, protocol.ActionNetworkInspector, map[string]any{"action": "stop_capture"}), &toggle)
		if toggle.CaptureActive {
			t.Fatal("capture_active = true after stop_capture")
		}

		// Paused capture drops new records but keeps existing entries.
		h.RecordRequest(capture.NetworkRequest{ID: "r3", URL: "https://api.example.com/x", StartTimeMS: 3000})
		var res networkRequestsResult
		mustData(t, dispatch(t, r, protocol.ActionNetworkInspector, map[string]any{"action": "get_requests"}), &res)
		if res.TotalCount != 2 {
			t.Fatalf("total_count while paused = %d; want 2", res.TotalCount)
		}

		mustData(t, dispatch(t, r, protocol.ActionNetworkInspector, map[string]any{"action": "start_capture"}), &toggle)
		if !toggle.CaptureActive {
			t.Fatal("capture_active = false after start_capture")
		}
	})

	t.Run("clear_requests", func(t *testing.T) {
		mustData(t, dispatch(t, r, protocol.ActionNetworkInspector, map[string]any{"action": "clear_requests"}), &statusMessage{})
		var res networkRequestsResult
		mustData(t, dispatch(t, r, protocol.ActionNetworkInspector, map[string]any{"action": "get_requests"}), &res)
		if res.TotalCount != 0 {
			t.Fatalf("total_count after clear = %d; want 0", res.TotalCount)
		}
	})

	t.Run("unknown_sub_action", func(t *testing.T) {
		resp := dispatch(t, r, protocol.ActionNetworkInspector, map[string]any{"action": "defragment"})
		if resp.Success {
			t.Fatal("unknown sub-action accepted")
		}
	})
}

func TestExceptionCommands(t *testing.T) {
	r, h, _ := newTestRouter(t)

	var status statusMessage
	mustData(t, dispatch(t, r, protocol.ActionInjectErrorTracker, map[string]any{"buffer_size": 10}), &status)
	if status.BufferSize != 10 {
		t.Fatalf("activation buffer_size = %d; want 10", status.BufferSize)
	}

	for i := 0; i < 3; i++ {
		h.RecordException("uncaught", "TypeError: x is undefined", "", int64(1000+i))
	}
	h.RecordException("unhandledrejection", "network down", "", 5000)

	t.Run("dedup_visible_through_query", func(t *testing.T) {
		var res exceptionsResult
		mustData(t, dispatch(t, r, protocol.ActionGetExceptions, nil), &res)
		if res.TotalCount != 2 {
			t.Fatalf("total_count = %d; want 2 deduplicated entries", res.TotalCount)
		}
		for _, e := range res.Exceptions {
			if e.ErrorType == "uncaught" && e.Frequency != 3 {
				t.Fatalf("uncaught frequency = %d; want 3", e.Frequency)
			}
		}
	})

	t.Run("filter_by_type", func(t *testing.T) {
		var res exceptionsResult
		mustData(t, dispatch(t, r, protocol.ActionGetExceptions, map[string]any{"error_type": "unhandledrejection"}), &res)
		if res.ReturnedCount != 1 || res.Exceptions[0].Message != "network down" {
			t.Fatalf("type filter returned %d items", res.ReturnedCount)
		}
	})

	t.Run("invalid_type_rejected", func(t *testing.T) {
		resp := dispatch(t, r, protocol.ActionGetExceptions, map[string]any{"error_type": "kernelpanic"})
		if resp.Success {
			t.Fatal("unknown error type accepted")
		}
	})

	t.Run("clear", func(t *testing.T) {
		mustData(t, dispatch(t, r, protocol.ActionClearExceptions, nil), &statusMessage{})
		var res exceptionsResult
		mustData(t, dispatch(t, r, protocol.ActionGetExceptions, nil), &res)
		if res.TotalCount != 0 {
			t.Fatalf("total_count after clear = %d; want 0", res.TotalCount)
		}
	})
}

func TestWebviewCommands(t *testing.T) {
	t.Run("take_screenshot_defaults", func(t *testing.T) {
		r, _, stub := newTestRouter(t)
		var shot host.Screenshot
		mustData(t, dispatch(t, r, protocol.ActionTakeScreenshot, nil), &shot)
		if stub.screenshotFormat != "png" {
			t.Fatalf("default format = %q; want png", stub.screenshotFormat)
		}
	})

	t.Run("take_screenshot_jpg_alias", func(t *testing.T) {
		r, _, stub := newTestRouter(t)
		mustData(t, dispatch(t, r, protocol.ActionTakeScreenshot, map[string]any{"format": "jpg", "quality": 60}), &host.Screenshot{})
		if stub.screenshotFormat != "jpeg" {
			t.Fatalf("jpg alias produced format %q; want jpeg", stub.screenshotFormat)
		}
	})

	t.Run("take_screenshot_rejects_bad_input", func(t *testing.T) {
		r, _, _ := newTestRouter(t)
		if resp := dispatch(t, r, protocol.ActionTakeScreenshot, map[string]any{"format": "bmp"}); resp.Success {
			t.Fatal("bmp format accepted")
		}
		if resp := dispatch(t, r, protocol.ActionTakeScreenshot, map[string]any{"quality": 150}); resp.Success {
			t.Fatal("quality 150 accepted")
		}
	})

	t.Run("get_dom", func(t *testing.T) {
		r, _, _ := newTestRouter(t)
		var res getDOMResult
		mustData(t, dispatch(t, r, protocol.ActionGetDOM, nil), &res)
		if !strings.Contains(res.DOM, "<html>") {
			t.Fatalf("dom = %q; want document markup", res.DOM)
		}
	})

	t.Run("execute_js", func(t *testing.T) {
		r, _, stub := newTestRouter(t)
		var res executeJSResult
		mustData(t, dispatch(t, r, protocol.ActionExecuteJS, map[string]any{"code": "1 + 41"}), &res)
		if stub.executedCode != "1 + 41" {
			t.Fatalf("executed code = %q", stub.executedCode)
		}
		if string(res.Result) != `{"answer":42}` {
			t.Fatalf("result = %s", res.Result)
		}
	})

	t.Run("execute_js_requires_code", func(t *testing.T) {
		r, _, _ := newTestRouter(t)
		if resp := dispatch(t, r, protocol.ActionExecuteJS, nil); resp.Success {
			t.Fatal("execute_js without code accepted")
		}
	})

	t.Run("execute_js_wraps_bare_string", func(t *testing.T) {
		r, _, stub := newTestRouter(t)
		stub.evalResult = "not json"
		var res executeJSResult
		mustData(t, dispatch(t, r, protocol.ActionExecuteJS, map[string]any{"code": "x"}), &res)
		if string(res.Result) != `"not json"` {
			t.Fatalf("bare string result = %s; want quoted", res.Result)
		}
	})

	t.Run("manage_window_set_bounds", func(t *testing.T) {
		r, _, _ := newTestRouter(t)
		var bounds host.WindowBounds
		mustData(t, dispatch(t, r, protocol.ActionManageWindow, map[string]any{
			"operation": "set_bounds", "x": 5, "y": 6, "width": 1024, "height": 768,
		}), &bounds)
		if bounds.Width != 1024 || bounds.Height != 768 {
			t.Fatalf("bounds = %+v", bounds)
		}
	})

	t.Run("manage_window_set_bounds_requires_size", func(t *testing.T) {
		r, _, _ := newTestRouter(t)
		if resp := dispatch(t, r, protocol.ActionManageWindow, map[string]any{"operation": "set_bounds"}); resp.Success {
			t.Fatal("set_bounds without size accepted")
		}
	})

	t.Run("manage_window_unknown_op", func(t *testing.T) {
		r, _, _ := newTestRouter(t)
		if resp := dispatch(t, r, protocol.ActionManageWindow, map[string]any{"operation": "minimize_to_tray"}); resp.Success {
			t.Fatal("unknown operation accepted")
		}
	})

	t.Run("hot_reload", func(t *testing.T) {
		r, _, stub := newTestRouter(t)
		mustData(t, dispatch(t, r, protocol.ActionHotReload, nil), &statusMessage{})
		if !stub.reloaded {
			t.Fatal("Reload() not invoked")
		}
	})

	t.Run("host_error_surfaces_verbatim", func(t *testing.T) {
		r, _, stub := newTestRouter(t)
		stub.err = errors.New("WINDOW_NOT_FOUND: no window with label main")
		resp := dispatch(t, r, protocol.ActionGetDOM, nil)
		if resp.Success {
			t.Fatal("host failure produced a success envelope")
		}
		if resp.Error != "WINDOW_NOT_FOUND: no window with label main" {
			t.Fatalf("error = %q; host message not preserved", resp.Error)
		}
	})
}
