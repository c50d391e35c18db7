package tools

import (
	"context"
	"encoding/json"
	"runtime"
	"time"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/hub"
)

// ping answers without touching the capture context, so it stays usable as a
// liveness probe even when the marshaled path is wedged.
func (t *toolset) ping(ctx context.Context, params json.RawMessage) (any, error) {
	return "pong", nil
}

type buildInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
}

type systemInfo struct {
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	CPUCount int    `json:"cpu_count"`
}

type healthReport struct {
	Status         string            `json:"status"`
	Version        string            `json:"version"`
	UptimeMS       int64             `json:"uptime_ms"`
	BuildInfo      buildInfo         `json:"build_info"`
	SystemInfo     systemInfo        `json:"system_info"`
	Capabilities   []string          `json:"capabilities"`
	ActiveSessions int64             `json:"active_sessions"`
	Buffers        []hub.BufferStats `json:"buffers,omitempty"`
	BufferError    string            `json:"buffer_error,omitempty"`
}

func (t *toolset) healthCheck(ctx context.Context, params json.RawMessage) (any, error) {
	report := healthReport{
		Status:   "ok",
		Version:  t.deps.Version,
		UptimeMS: time.Since(t.started).Milliseconds(),
		BuildInfo: buildInfo{
			Version:   t.deps.Version,
			GoVersion: runtime.Version(),
		},
		SystemInfo: systemInfo{
			OS:       runtime.GOOS,
			Arch:     runtime.GOARCH,
			CPUCount: runtime.NumCPU(),
		},
		Capabilities: t.router.Actions(),
	}
	if t.deps.SessionCount != nil {
		report.ActiveSessions = t.deps.SessionCount()
	}

	// A wedged capture context degrades the report instead of failing it.
	stats, err := t.deps.Hub.Stats(ctx)
	if err != nil {
		report.Status = "degraded"
		report.BufferError = err.Error()
		return report, nil
	}
	report.Buffers = stats
	return report, nil
}
