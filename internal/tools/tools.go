// Package tools implements the socket command handlers: capture activation,
// retrieval and clearing for the three telemetry kinds, the host passthrough
// commands, and the connectivity probes. Handlers validate their own params
// and return plain values; the router wraps them into response envelopes.
package tools

import (
	"encoding/json"
	"time"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/host"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/hub"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/protocol"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/server"
)

// Buffer capacities used when activation params carry none.
const (
	defaultLogBufferSize       = 1000
	defaultNetworkBufferSize   = 500
	defaultExceptionBufferSize = 1000
)

// Deps carries everything the handlers need. Zero buffer sizes fall back to
// the package defaults.
type Deps struct {
	Hub  *hub.Hub
	Host host.Host

	Version string

	LogBufferSize       int
	NetworkBufferSize   int
	ExceptionBufferSize int

	// SessionCount reports live socket sessions for health_check. Optional.
	SessionCount func() int64
}

type toolset struct {
	deps    Deps
	router  *server.Router
	started time.Time
}

// RegisterAll wires every command handler onto the router.
func RegisterAll(r *server.Router, d Deps) {
	if d.LogBufferSize <= 0 {
		d.LogBufferSize = defaultLogBufferSize
	}
	if d.NetworkBufferSize <= 0 {
		d.NetworkBufferSize = defaultNetworkBufferSize
	}
	if d.ExceptionBufferSize <= 0 {
		d.ExceptionBufferSize = defaultExceptionBufferSize
	}

	t := &toolset{deps: d, router: r, started: time.Now()}

	r.Register(protocol.ActionPing, t.ping)
	r.Register(protocol.ActionHealthCheck, t.healthCheck)

	r.Register(protocol.ActionInjectConsoleCapture, t.injectConsoleCapture)
	r.Register(protocol.ActionGetConsoleLogs, t.getConsoleLogs)
	r.Register(protocol.ActionClearConsoleLogs, t.clearConsoleLogs)

	r.Register(protocol.ActionInjectNetworkCapture, t.injectNetworkCapture)
	r.Register(protocol.ActionNetworkInspector, t.networkInspector)

	r.Register(protocol.ActionInjectErrorTracker, t.injectErrorTracker)
	r.Register(protocol.ActionGetExceptions, t.getExceptions)
	r.Register(protocol.ActionClearExceptions, t.clearExceptions)

	r.Register(protocol.ActionTakeScreenshot, t.takeScreenshot)
	r.Register(protocol.ActionGetDOM, t.getDOM)
	r.Register(protocol.ActionExecuteJS, t.executeJS)
	r.Register(protocol.ActionManageWindow, t.manageWindow)
	r.Register(protocol.ActionHotReload, t.hotReload)

	r.Register(protocol.ActionGetPerformanceMetrics, t.getPerformanceMetrics)
	r.Register(protocol.ActionStorageInspector, t.storageInspector)
	r.Register(protocol.ActionManageLocalStorage, t.manageLocalStorage)

	r.Register(protocol.ActionSimulateTextInput, t.simulateTextInput)
	r.Register(protocol.ActionSimulateMouseMovement, t.simulateMouseMovement)
	r.Register(protocol.ActionGetElementPosition, t.getElementPosition)
	r.Register(protocol.ActionSendTextToElement, t.sendTextToElement)
}

// statusMessage is the shared shape of activation and clear responses.
type statusMessage struct {
	Message    string `json:"message"`
	BufferSize int    `json:"buffer_size,omitempty"`
}

// decodeParams unmarshals params into dst. Absent params are treated as all
// defaults; a present but malformed payload is a validation error.
func decodeParams(params json.RawMessage, dst any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return host.Validationf("invalid params: %v", err)
	}
	return nil
}
