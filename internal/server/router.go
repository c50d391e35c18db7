package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/protocol"
)

// Handler processes one command's params and returns response data. A
// returned error becomes a failure envelope; the handler owns parameter
// validation.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Router maps action names to handlers. The table is built at startup and
// read-only afterwards.
type Router struct {
	handlers map[string]Handler
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Register installs a handler for an action name. Registering the same action
// twice is a programming error and panics at startup.
func (r *Router) Register(action string, h Handler) {
	if _, dup := r.handlers[action]; dup {
		panic(fmt.Sprintf("router: duplicate handler for action %q", action))
	}
	r.handlers[action] = h
}

// Actions returns the registered action names, sorted.
func (r *Router) Actions() []string {
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dispatch routes one command and converts every failure mode, including a
// panicking handler, into a response envelope. The router itself performs no
// side effects.
func (r *Router) Dispatch(ctx context.Context, cmd protocol.Command) (resp protocol.Response) {
	h, ok := r.handlers[cmd.Action]
	if !ok {
		return protocol.Fail(fmt.Sprintf("Unknown action: %s", cmd.Action))
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("handler panic", "action", cmd.Action, "panic", rec, "stack", string(debug.Stack()))
			resp = protocol.Fail(fmt.Sprintf("internal error handling %s", cmd.Action))
		}
	}()

	data, err := h(ctx, cmd.Params)
	if err != nil {
		return protocol.Fail(err.Error())
	}
	return protocol.OK(data)
}
