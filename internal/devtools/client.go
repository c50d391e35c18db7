// Package devtools connects the agent to the application webview over the
// Chrome DevTools Protocol. The chromedp Client streams console, network,
// and exception events into the capture hub; the raw websocket host serves
// the request/response webview commands.
package devtools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/capture"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/hub"
)

// Options configures the devtools connection.
type Options struct {
	// DevtoolsURL is the browser debugging endpoint, e.g.
	// "http://127.0.0.1:9222".
	DevtoolsURL string
	// URLFilter limits attachment to webview targets whose URL contains
	// this substring. Empty attaches to the first page target.
	URLFilter string
}

// Client attaches to the application webview and forwards protocol events
// into the hub. Event kinds are gated individually so each capture family
// only flows after its activation command installed the matching
// interceptor.
type Client struct {
	opts Options

	mu          sync.Mutex
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	targetID    target.ID

	hub     *hub.Hub
	enabled map[string]bool
}

// NewClient creates an unconnected Client.
func NewClient(opts Options) *Client {
	return &Client{opts: opts, enabled: make(map[string]bool)}
}

// Connect attaches to the first webview target matching the URL filter and
// starts listening for events.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.tabCtx != nil {
		return nil
	}
	if c.opts.DevtoolsURL == "" {
		return fmt.Errorf("devtools: no devtools endpoint configured")
	}

	slog.Info("connecting to webview devtools", "url", c.opts.DevtoolsURL)
	// The session outlives the caller, so its contexts are rooted in
	// Background; the caller's deadline still bounds setup through this
	// watcher, which tears the allocator down if ctx expires mid-connect.
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), c.opts.DevtoolsURL)
	stopWatch := context.AfterFunc(ctx, allocCancel)
	defer stopWatch()

	tempCtx, tempCancel := chromedp.NewContext(allocCtx)
	defer tempCancel()
	if err := chromedp.Run(tempCtx); err != nil {
		allocCancel()
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return fmt.Errorf("devtools: connect: %w", err)
	}

	targets, err := chromedp.Targets(tempCtx)
	if err != nil {
		allocCancel()
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return fmt.Errorf("devtools: enumerate targets: %w", err)
	}

	var picked *target.Info
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if c.matchesURL(t.URL) {
			picked = t
			break
		}
	}
	if picked == nil {
		allocCancel()
		return fmt.Errorf("devtools: no webview target matching %q", c.opts.URLFilter)
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithTargetID(picked.TargetID))
	if err := chromedp.Run(tabCtx, runtime.Enable(), network.Enable(), page.Enable()); err != nil {
		tabCancel()
		allocCancel()
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return fmt.Errorf("devtools: enable domains: %w", err)
	}

	c.allocCancel = allocCancel
	c.tabCtx = tabCtx
	c.tabCancel = tabCancel
	c.targetID = picked.TargetID

	chromedp.ListenTarget(tabCtx, c.handleEvent)
	slog.Info("attached to webview", "target_id", picked.TargetID, "url", truncateURL(picked.URL))
	return nil
}

// Close detaches from the webview.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tabCancel != nil {
		c.tabCancel()
		c.tabCtx = nil
		c.tabCancel = nil
	}
	if c.allocCancel != nil {
		c.allocCancel()
		c.allocCancel = nil
	}
}

// enableKind turns on event forwarding for one capture kind, connecting
// lazily on the first activation.
func (c *Client) enableKind(kind string, h *hub.Hub) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.connectLocked(ctx); err != nil {
		return err
	}
	c.hub = h
	c.enabled[kind] = true
	return nil
}

func (c *Client) disableKind(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.enabled, kind)
}

func (c *Client) sink(kind string) *hub.Hub {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled[kind] {
		return nil
	}
	return c.hub
}

func (c *Client) handleEvent(ev any) {
	switch e := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		c.onConsoleAPICalled(e)
	case *runtime.EventExceptionThrown:
		c.onExceptionThrown(e)
	case *network.EventRequestWillBeSent:
		c.onRequestWillBeSent(e)
	case *network.EventResponseReceived:
		c.onResponseReceived(e)
	case *network.EventLoadingFinished:
		c.onLoadingFinished(e)
	case *network.EventLoadingFailed:
		c.onLoadingFailed(e)
	}
}

func (c *Client) onConsoleAPICalled(e *runtime.EventConsoleAPICalled) {
	h := c.sink(hub.KindConsole)
	if h == nil {
		return
	}

	args := make([]string, 0, len(e.Args))
	for _, a := range e.Args {
		args = append(args, remoteObjectString(a))
	}
	message := ""
	if len(args) > 0 {
		message = args[0]
	}

	h.RecordLog(capture.LogEntry{
		TimestampMS: e.Timestamp.Time().UnixMilli(),
		Level:       consoleLevel(e.Type),
		Message:     message,
		Args:        args,
	})
}

func (c *Client) onExceptionThrown(e *runtime.EventExceptionThrown) {
	h := c.sink(hub.KindException)
	if h == nil || e.ExceptionDetails == nil {
		return
	}

	d := e.ExceptionDetails
	message := d.Text
	rawStack := ""
	if d.Exception != nil && d.Exception.Description != "" {
		// Description carries "TypeError: msg\n    at fn (file:1:2)...".
		desc := d.Exception.Description
		if idx := strings.IndexByte(desc, '\n'); idx >= 0 {
			message = desc[:idx]
			rawStack = desc[idx+1:]
		} else {
			message = desc
		}
	}

	h.RecordException(capture.ErrorTypeUncaught, message, rawStack, e.Timestamp.Time().UnixMilli())
}

func (c *Client) onRequestWillBeSent(e *network.EventRequestWillBeSent) {
	h := c.sink(hub.KindNetwork)
	if h == nil {
		return
	}

	var reqType string
	switch e.Type {
	case network.ResourceTypeXHR:
		reqType = capture.RequestTypeXHR
	case network.ResourceTypeFetch:
		reqType = capture.RequestTypeFetch
	default:
		// Only API traffic is interesting; skip documents, images, etc.
		return
	}

	startMS := time.Now().UnixMilli()
	if e.WallTime != nil {
		startMS = e.WallTime.Time().UnixMilli()
	}

	h.RecordRequest(capture.NetworkRequest{
		ID:             string(e.RequestID),
		URL:            e.Request.URL,
		Method:         e.Request.Method,
		RequestType:    reqType,
		RequestHeaders: headerMap(e.Request.Headers),
		StartTimeMS:    startMS,
	})
}

func (c *Client) onResponseReceived(e *network.EventResponseReceived) {
	h := c.sink(hub.KindNetwork)
	if h == nil || e.Response == nil {
		return
	}
	status := int(e.Response.Status)
	headers := headerMap(e.Response.Headers)
	h.CompleteRequest(string(e.RequestID), func(r *capture.NetworkRequest) {
		r.StatusCode = status
		r.ResponseHeaders = headers
	})
}

func (c *Client) onLoadingFinished(e *network.EventLoadingFinished) {
	h := c.sink(hub.KindNetwork)
	if h == nil {
		return
	}
	endMS := time.Now().UnixMilli()
	h.CompleteRequest(string(e.RequestID), func(r *capture.NetworkRequest) {
		r.EndTimeMS = endMS
		r.DurationMS = endMS - r.StartTimeMS
	})
}

func (c *Client) onLoadingFailed(e *network.EventLoadingFailed) {
	h := c.sink(hub.KindNetwork)
	if h == nil {
		return
	}
	endMS := time.Now().UnixMilli()
	errText := e.ErrorText
	if e.Canceled {
		errText = "canceled"
	}
	h.CompleteRequest(string(e.RequestID), func(r *capture.NetworkRequest) {
		r.Error = errText
		r.EndTimeMS = endMS
		r.DurationMS = endMS - r.StartTimeMS
	})
}

func (c *Client) matchesURL(url string) bool {
	if c.opts.URLFilter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(url), strings.ToLower(c.opts.URLFilter))
}

func consoleLevel(t runtime.APIType) string {
	switch t {
	case runtime.APITypeDebug:
		return capture.LevelDebug
	case runtime.APITypeWarning:
		return capture.LevelWarn
	case runtime.APITypeError, runtime.APITypeAssert:
		return capture.LevelError
	default:
		return capture.LevelInfo
	}
}

func remoteObjectString(o *runtime.RemoteObject) string {
	if o == nil {
		return ""
	}
	if o.Value != nil {
		// Unquote plain strings; keep structured values as JSON.
		var s string
		if err := json.Unmarshal(o.Value, &s); err == nil {
			return s
		}
		return string(o.Value)
	}
	if o.Description != "" {
		return o.Description
	}
	return string(o.Type)
}

func headerMap(h network.Headers) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
