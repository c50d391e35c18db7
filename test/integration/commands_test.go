//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestPing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	data, err := env.Bridge.SendCommand(ctx, "ping", nil)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if string(data) != `"pong"` {
		t.Fatalf("ping data = %s; want \"pong\"", data)
	}
}

func TestHealthCheck(t *testing.T) {
	var report struct {
		Status       string   `json:"status"`
		Version      string   `json:"version"`
		UptimeMS     int64    `json:"uptime_ms"`
		Capabilities []string `json:"capabilities"`
	}
	env.send(t, "health_check", nil, &report)
	if report.Status != "ok" && report.Status != "degraded" {
		t.Fatalf("health status = %q", report.Status)
	}
	if report.Version == "" {
		t.Fatal("health_check returned empty version")
	}
	if len(report.Capabilities) == 0 {
		t.Fatal("health_check returned no capabilities")
	}
}

func TestConsoleCaptureRoundTrip(t *testing.T) {
	env.send(t, "inject_console_capture", map[string]any{"buffer_size": 200}, nil)

	var result struct {
		Logs          []json.RawMessage `json:"logs"`
		TotalCount    int               `json:"total_count"`
		ReturnedCount int               `json:"returned_count"`
	}
	env.send(t, "get_console_logs", nil, &result)
	if result.ReturnedCount != len(result.Logs) {
		t.Fatalf("returned_count = %d but %d logs", result.ReturnedCount, len(result.Logs))
	}

	env.send(t, "clear_console_logs", nil, nil)
	env.send(t, "get_console_logs", nil, &result)
	if result.TotalCount != 0 {
		t.Fatalf("total_count after clear = %d; want 0", result.TotalCount)
	}
}

func TestNetworkCaptureToggle(t *testing.T) {
	env.send(t, "inject_network_capture", map[string]any{"buffer_size": 100}, nil)

	var toggled struct {
		CaptureActive bool `json:"capture_active"`
	}
	env.send(t, "network_inspector", map[string]any{"action": "stop_capture"}, &toggled)
	if toggled.CaptureActive {
		t.Fatal("capture_active = true after stop_capture")
	}
	env.send(t, "network_inspector", map[string]any{"action": "start_capture"}, &toggled)
	if !toggled.CaptureActive {
		t.Fatal("capture_active = false after start_capture")
	}

	var listed struct {
		TotalCount    int  `json:"total_count"`
		CaptureActive bool `json:"capture_active"`
	}
	env.send(t, "network_inspector", map[string]any{"action": "get_requests"}, &listed)
	if !listed.CaptureActive {
		t.Fatal("get_requests reports capture inactive")
	}
}

func TestErrorTrackerRoundTrip(t *testing.T) {
	env.send(t, "inject_error_tracker", map[string]any{"buffer_size": 100}, nil)

	var result struct {
		Exceptions    []json.RawMessage `json:"exceptions"`
		TotalCount    int               `json:"total_count"`
		ReturnedCount int               `json:"returned_count"`
	}
	env.send(t, "get_exceptions", nil, &result)
	if result.ReturnedCount != len(result.Exceptions) {
		t.Fatalf("returned_count = %d but %d exceptions", result.ReturnedCount, len(result.Exceptions))
	}

	env.send(t, "clear_exceptions", nil, nil)
}

func TestUnknownActionError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := env.Bridge.SendCommand(ctx, "frobnicate", nil)
	if err == nil {
		t.Fatal("unknown action did not return an error")
	}
}
