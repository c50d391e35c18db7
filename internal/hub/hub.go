// Package hub owns the capture buffers on behalf of the instrumented
// application context. Sessions and the status API never touch a buffer
// directly: queries and lifecycle changes are marshaled into the hub's run
// loop and bounded by a call timeout, so a busy or wedged context surfaces as
// a TIMEOUT error instead of blocking a connection. Recording from
// instrumentation hooks is fire-and-forget and may drop under backpressure.
package hub

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/capture"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/host"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/relay"
)

// Capture kinds, used for interceptor registration and stats.
const (
	KindConsole   = "console"
	KindNetwork   = "network"
	KindException = "exception"
)

const callQueueSize = 256

// Interceptor installs instrumentation into the running application for one
// capture kind and feeds the hub. Implementations must make Uninstall safe to
// call when Install failed or was never called.
type Interceptor interface {
	Install(h *Hub) error
	Uninstall()
}

// Options configures a Hub.
type Options struct {
	// CallTimeout bounds every marshaled call. Zero means 5s.
	CallTimeout time.Duration
	// Broker receives every recorded entry for live streaming. Optional.
	Broker *relay.Broker
}

type call struct {
	fn   func()
	done chan struct{}
}

// Hub is the single owner of the three capture buffers.
type Hub struct {
	callTimeout time.Duration
	broker      *relay.Broker

	calls chan call
	done  chan struct{}
	wg    sync.WaitGroup

	logs       *capture.Buffer[capture.LogEntry]
	network    *capture.Buffer[capture.NetworkRequest]
	exceptions *capture.Buffer[capture.ExceptionEntry]

	// networkPaused suspends recording without dropping captured entries.
	// Only touched inside the run loop.
	networkPaused bool

	interceptorMu sync.Mutex
	interceptors  map[string]Interceptor
	installed     map[string]bool
}

// New creates a Hub and starts its run loop.
func New(opts Options) *Hub {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 5 * time.Second
	}
	h := &Hub{
		callTimeout: opts.CallTimeout,
		broker:      opts.Broker,
		calls:       make(chan call, callQueueSize),
		done:        make(chan struct{}),
		logs:        capture.NewBuffer[capture.LogEntry](),
		network: capture.NewDedupBuffer(
			func(r capture.NetworkRequest) string { return r.ID },
			func(existing *capture.NetworkRequest, incoming capture.NetworkRequest) { *existing = incoming },
		),
		exceptions: capture.NewDedupBuffer(
			func(e capture.ExceptionEntry) string { return e.DedupKey() },
			func(existing *capture.ExceptionEntry, incoming capture.ExceptionEntry) {
				existing.Frequency += incoming.Frequency
				existing.LastOccurrenceMS = incoming.LastOccurrenceMS
			},
		),
		interceptors: make(map[string]Interceptor),
		installed:    make(map[string]bool),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case c := <-h.calls:
			c.fn()
			close(c.done)
		case <-h.done:
			return
		}
	}
}

// Close tears the hub down: interceptors are uninstalled and all buffers
// destroyed.
func (h *Hub) Close() {
	h.interceptorMu.Lock()
	for kind, installed := range h.installed {
		if installed {
			h.interceptors[kind].Uninstall()
			h.installed[kind] = false
		}
	}
	h.interceptorMu.Unlock()

	close(h.done)
	h.wg.Wait()

	h.logs.Deactivate()
	h.network.Deactivate()
	h.exceptions.Deactivate()
}

// SetInterceptor registers the instrumentation source for a capture kind.
// It is installed lazily by the matching activation command.
func (h *Hub) SetInterceptor(kind string, i Interceptor) {
	h.interceptorMu.Lock()
	h.interceptors[kind] = i
	h.interceptorMu.Unlock()
}

// call marshals fn into the run loop and waits for completion up to the call
// timeout. The closure still runs atomically when dequeued even if the caller
// already gave up.
func (h *Hub) call(ctx context.Context, op string, fn func()) error {
	ctx, cancel := context.WithTimeout(ctx, h.callTimeout)
	defer cancel()

	c := call{fn: fn, done: make(chan struct{})}
	select {
	case h.calls <- c:
	case <-h.done:
		return host.NewError(host.CodeHostUnavailable, "capture context is shut down", nil)
	case <-ctx.Done():
		return host.NewError(host.CodeTimeout, op+" timed out waiting for capture context", ctx.Err())
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return host.NewError(host.CodeTimeout, op+" timed out waiting for capture context", ctx.Err())
	}
}

// enqueue marshals fn without waiting. Used on the recording path; drops the
// operation when the queue is saturated.
func (h *Hub) enqueue(fn func()) {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case h.calls <- c:
	case <-h.done:
	default:
		slog.Warn("capture call queue full, dropping record")
	}
}

// installInterceptor installs the registered source for kind, once.
func (h *Hub) installInterceptor(kind string) error {
	h.interceptorMu.Lock()
	defer h.interceptorMu.Unlock()

	i, ok := h.interceptors[kind]
	if !ok || h.installed[kind] {
		return nil
	}
	if err := i.Install(h); err != nil {
		return err
	}
	h.installed[kind] = true
	return nil
}

func (h *Hub) publish(feed string, entry any) {
	if h.broker != nil {
		h.broker.Publish(feed, entry)
	}
}

// --- console ---

// ActivateConsole activates the log buffer and installs console
// instrumentation. Idempotent.
func (h *Hub) ActivateConsole(ctx context.Context, capacity int) error {
	if err := h.call(ctx, "inject_console_capture", func() {
		h.logs.Activate(capacity)
	}); err != nil {
		return err
	}
	return h.installInterceptor(KindConsole)
}

// RecordLog stores a console entry. Fire-and-forget.
func (h *Hub) RecordLog(e capture.LogEntry) {
	h.enqueue(func() {
		if h.logs.Record(e) {
			h.publish(relay.FeedLog, e)
		}
	})
}

// ConsoleSnapshot returns a copy of the log buffer and its activity flag.
func (h *Hub) ConsoleSnapshot(ctx context.Context) ([]capture.LogEntry, bool, error) {
	var snap []capture.LogEntry
	var active bool
	err := h.call(ctx, "get_console_logs", func() {
		snap = h.logs.Snapshot()
		active = h.logs.Active()
	})
	return snap, active, err
}

// ClearConsole empties the log buffer.
func (h *Hub) ClearConsole(ctx context.Context) error {
	return h.call(ctx, "clear_console_logs", func() { h.logs.Clear() })
}

// --- network ---

// ActivateNetwork activates the request buffer, resumes capture, and installs
// network instrumentation. Idempotent.
func (h *Hub) ActivateNetwork(ctx context.Context, capacity int) error {
	if err := h.call(ctx, "inject_network_capture", func() {
		h.network.Activate(capacity)
		h.networkPaused = false
	}); err != nil {
		return err
	}
	return h.installInterceptor(KindNetwork)
}

// RecordRequest stores a new in-flight request. Fire-and-forget.
func (h *Hub) RecordRequest(r capture.NetworkRequest) {
	h.enqueue(func() {
		if h.networkPaused {
			return
		}
		if h.network.Record(r) {
			h.publish(relay.FeedNetwork, r)
		}
	})
}

// CompleteRequest fills completion fields of an in-flight request in place.
// The entry may already have been evicted, which is not an error.
func (h *Hub) CompleteRequest(id string, fn func(*capture.NetworkRequest)) {
	h.enqueue(func() {
		if h.networkPaused {
			return
		}
		h.network.Update(id, fn)
	})
}

// NetworkSnapshot returns a copy of the request buffer and the capture flag.
func (h *Hub) NetworkSnapshot(ctx context.Context) ([]capture.NetworkRequest, bool, error) {
	var snap []capture.NetworkRequest
	var active bool
	err := h.call(ctx, "network_inspector", func() {
		snap = h.network.Snapshot()
		active = h.network.Active() && !h.networkPaused
	})
	return snap, active, err
}

// ClearNetwork empties the request buffer without touching the capture flag.
func (h *Hub) ClearNetwork(ctx context.Context) error {
	return h.call(ctx, "clear_requests", func() { h.network.Clear() })
}

// SetNetworkCapture pauses or resumes recording. Returns the resulting
// capture flag.
func (h *Hub) SetNetworkCapture(ctx context.Context, active bool) (bool, error) {
	var result bool
	err := h.call(ctx, "network_capture_toggle", func() {
		h.networkPaused = !active
		result = h.network.Active() && !h.networkPaused
	})
	return result, err
}

// --- exceptions ---

// ActivateExceptions activates the exception buffer and installs error
// instrumentation. Idempotent.
func (h *Hub) ActivateExceptions(ctx context.Context, capacity int) error {
	if err := h.call(ctx, "inject_error_tracker", func() {
		h.exceptions.Activate(capacity)
	}); err != nil {
		return err
	}
	return h.installInterceptor(KindException)
}

// RecordException stores one occurrence, merging with an existing entry
// sharing (error_type, message). Fire-and-forget.
func (h *Hub) RecordException(errorType, message, rawStack string, ts int64) {
	entry := capture.ExceptionEntry{
		ID:                newEntryID(),
		ErrorType:         errorType,
		Message:           message,
		StackTrace:        capture.ParseStackTrace(rawStack),
		FirstOccurrenceMS: ts,
		LastOccurrenceMS:  ts,
		Frequency:         1,
	}
	h.enqueue(func() {
		if h.exceptions.Record(entry) {
			h.publish(relay.FeedException, entry)
		}
	})
}

// ExceptionSnapshot returns a copy of the exception buffer and its activity
// flag.
func (h *Hub) ExceptionSnapshot(ctx context.Context) ([]capture.ExceptionEntry, bool, error) {
	var snap []capture.ExceptionEntry
	var active bool
	err := h.call(ctx, "get_exceptions", func() {
		snap = h.exceptions.Snapshot()
		active = h.exceptions.Active()
	})
	return snap, active, err
}

// ClearExceptions empties the exception buffer.
func (h *Hub) ClearExceptions(ctx context.Context) error {
	return h.call(ctx, "clear_exceptions", func() { h.exceptions.Clear() })
}

// --- stats ---

// BufferStats describes one buffer for the status API and health checks.
type BufferStats struct {
	Kind     string `json:"kind"`
	Active   bool   `json:"active"`
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
	Evicted  uint64 `json:"evicted"`
}

// Stats reports all three buffers.
func (h *Hub) Stats(ctx context.Context) ([]BufferStats, error) {
	var out []BufferStats
	err := h.call(ctx, "stats", func() {
		out = []BufferStats{
			{Kind: KindConsole, Active: h.logs.Active(), Size: h.logs.Len(), Capacity: h.logs.Capacity(), Evicted: h.logs.Evicted()},
			{Kind: KindNetwork, Active: h.network.Active() && !h.networkPaused, Size: h.network.Len(), Capacity: h.network.Capacity(), Evicted: h.network.Evicted()},
			{Kind: KindException, Active: h.exceptions.Active(), Size: h.exceptions.Len(), Capacity: h.exceptions.Capacity(), Evicted: h.exceptions.Evicted()},
		}
	})
	return out, err
}

func newEntryID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b[:])
}
