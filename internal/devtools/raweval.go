package devtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/host"
)

// EvalHost implements host.Host over a minimal devtools websocket client.
// It speaks the protocol directly instead of going through chromedp's
// session machinery: the webview commands are plain request/response calls
// and the heavy auto-attach initialisation destabilises some webview builds.
type EvalHost struct {
	httpBase  string
	urlFilter string

	mu        sync.Mutex
	conn      net.Conn
	sessionID string
	targetID  string

	writeMu sync.Mutex
	seq     atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan json.RawMessage
}

// NewEvalHost creates a disconnected EvalHost. The first command dials the
// endpoint and attaches to the webview target.
func NewEvalHost(opts Options) *EvalHost {
	return &EvalHost{
		httpBase:  strings.TrimRight(opts.DevtoolsURL, "/"),
		urlFilter: opts.URLFilter,
		pending:   make(map[int64]chan json.RawMessage),
	}
}

// Close drops the websocket connection.
func (r *EvalHost) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teardownLocked()
}

func (r *EvalHost) teardownLocked() {
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
	r.sessionID = ""
	r.targetID = ""
}

// session returns a live connection and session, establishing both if
// needed.
func (r *EvalHost) session(ctx context.Context) (net.Conn, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil && r.sessionID != "" {
		return r.conn, r.sessionID, nil
	}
	if r.httpBase == "" {
		return nil, "", host.NewError(host.CodeHostUnavailable, "no devtools endpoint configured", nil)
	}

	if r.conn == nil {
		wsURL, err := r.browserWSURL(ctx)
		if err != nil {
			return nil, "", host.NewError(host.CodeHostUnavailable, "devtools endpoint unreachable", err)
		}
		slog.Debug("eval host connecting", "ws_url", wsURL)
		conn, _, _, err := ws.Dial(ctx, wsURL)
		if err != nil {
			return nil, "", host.NewError(host.CodeHostUnavailable, "devtools websocket dial failed", err)
		}
		r.conn = conn
		r.pendingMu.Lock()
		r.pending = make(map[int64]chan json.RawMessage)
		r.pendingMu.Unlock()
		go r.readLoop(conn)
	}

	targetID, err := r.pickTarget(ctx)
	if err != nil {
		return nil, "", err
	}
	sessionID, err := r.attachToTarget(ctx, r.conn, targetID)
	if err != nil {
		return nil, "", host.NewError(host.CodeHostUnavailable, "attach to webview failed", err)
	}
	r.targetID = targetID
	r.sessionID = sessionID
	return r.conn, sessionID, nil
}

// browserWSURL resolves the browser-level websocket endpoint.
func (r *EvalHost) browserWSURL(ctx context.Context) (string, error) {
	verCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(verCtx, http.MethodGet, r.httpBase+"/json/version", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("/json/version: HTTP %d", resp.StatusCode)
	}

	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return "", err
	}
	if version.WebSocketDebuggerURL == "" {
		return "", errors.New("/json/version returned no webSocketDebuggerUrl")
	}
	return version.WebSocketDebuggerURL, nil
}

// pickTarget finds the webview page target via /json/list.
func (r *EvalHost) pickTarget(ctx context.Context) (string, error) {
	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(listCtx, http.MethodGet, r.httpBase+"/json/list", nil)
	if err != nil {
		return "", host.NewError(host.CodeHostUnavailable, "list targets", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", host.NewError(host.CodeHostUnavailable, "list targets", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", host.NewError(host.CodeHostUnavailable, fmt.Sprintf("/json/list: HTTP %d", resp.StatusCode), nil)
	}

	var targets []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		URL  string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return "", host.NewError(host.CodeHostUnavailable, "decode target list", err)
	}

	filter := strings.ToLower(r.urlFilter)
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if filter == "" || strings.Contains(strings.ToLower(t.URL), filter) {
			return t.ID, nil
		}
	}
	return "", host.NewError(host.CodeWindowNotFound, fmt.Sprintf("no webview target matching %q", r.urlFilter), nil)
}

// readLoop dispatches responses to waiters. Pending calls are released
// before the connection state is cleared so no waiter can deadlock against
// a caller holding mu.
func (r *EvalHost) readLoop(conn net.Conn) {
	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			slog.Debug("eval host read loop exit", "error", err)
			r.closeAllPending()
			r.mu.Lock()
			if r.conn == conn {
				r.teardownLocked()
			}
			r.mu.Unlock()
			return
		}

		var msg struct {
			ID int64 `json:"id"`
		}
		if json.Unmarshal(data, &msg) != nil || msg.ID == 0 {
			continue
		}

		r.pendingMu.Lock()
		ch, ok := r.pending[msg.ID]
		if ok {
			delete(r.pending, msg.ID)
		}
		r.pendingMu.Unlock()
		if ok {
			ch <- json.RawMessage(data)
		}
	}
}

func (r *EvalHost) closeAllPending() {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	for id, ch := range r.pending {
		close(ch)
		delete(r.pending, id)
	}
}

func (r *EvalHost) deletePending(id int64) {
	r.pendingMu.Lock()
	delete(r.pending, id)
	r.pendingMu.Unlock()
}

// attachToTarget attaches a flat session to the webview target.
func (r *EvalHost) attachToTarget(ctx context.Context, conn net.Conn, targetID string) (string, error) {
	params := struct {
		TargetID string `json:"targetId"`
		Flatten  bool   `json:"flatten"`
	}{TargetID: targetID, Flatten: true}

	raw, err := r.exchange(ctx, conn, "", "Target.attachToTarget", params)
	if err != nil {
		return "", err
	}
	var result struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("unmarshal attach result: %w", err)
	}
	return result.SessionID, nil
}

// send runs one command on the webview session, establishing it first if
// needed.
func (r *EvalHost) send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	conn, sessionID, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	return r.exchange(ctx, conn, sessionID, method, params)
}

// exchange performs a single command/response round trip. The websocket
// write is serialized; the response wait holds no locks.
func (r *EvalHost) exchange(ctx context.Context, conn net.Conn, sessionID, method string, params any) (json.RawMessage, error) {
	id := r.seq.Add(1)
	req := struct {
		ID        int64  `json:"id"`
		Method    string `json:"method"`
		SessionID string `json:"sessionId,omitempty"`
		Params    any    `json:"params,omitempty"`
	}{ID: id, Method: method, SessionID: sessionID, Params: params}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("devtools: marshal %s: %w", method, err)
	}

	ch := make(chan json.RawMessage, 1)
	r.pendingMu.Lock()
	r.pending[id] = ch
	r.pendingMu.Unlock()

	r.writeMu.Lock()
	err = wsutil.WriteClientText(conn, data)
	r.writeMu.Unlock()
	if err != nil {
		r.deletePending(id)
		r.mu.Lock()
		if r.conn == conn {
			r.teardownLocked()
		}
		r.mu.Unlock()
		return nil, host.NewError(host.CodeHostUnavailable, method+" send failed", err)
	}

	select {
	case raw, ok := <-ch:
		if !ok {
			return nil, host.NewError(host.CodeHostUnavailable, "devtools connection closed", nil)
		}
		var envelope struct {
			Result json.RawMessage `json:"result"`
			Error  *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("devtools: unmarshal %s response: %w", method, err)
		}
		if envelope.Error != nil {
			return nil, host.NewError(host.CodeEvalFailure, method+": "+envelope.Error.Message, nil)
		}
		return envelope.Result, nil
	case <-ctx.Done():
		r.deletePending(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, host.NewError(host.CodeTimeout, method+" timed out", ctx.Err())
		}
		return nil, ctx.Err()
	}
}

// evaluate runs an expression in the webview and returns the JSON-encoded
// result value.
func (r *EvalHost) evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	params := struct {
		Expression    string `json:"expression"`
		ReturnByValue bool   `json:"returnByValue"`
		AwaitPromise  bool   `json:"awaitPromise"`
	}{Expression: expression, ReturnByValue: true, AwaitPromise: true}

	raw, err := r.send(ctx, "Runtime.evaluate", params)
	if err != nil {
		return nil, err
	}

	var result struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception *struct {
				Description string `json:"description"`
			} `json:"exception"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("devtools: unmarshal evaluate result: %w", err)
	}
	if d := result.ExceptionDetails; d != nil {
		msg := d.Text
		if d.Exception != nil && d.Exception.Description != "" {
			msg = d.Exception.Description
		}
		return nil, host.NewError(host.CodeEvalFailure, msg, nil)
	}
	if result.Result.Value == nil {
		return json.RawMessage("null"), nil
	}
	return result.Result.Value, nil
}

// evaluateString runs an expression expected to produce a string.
func (r *EvalHost) evaluateString(ctx context.Context, expression string) (string, error) {
	raw, err := r.evaluate(ctx, expression)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw), nil
	}
	return s, nil
}

// --- host.Host ---

func (r *EvalHost) TakeScreenshot(ctx context.Context, format string, quality int) (host.Screenshot, error) {
	params := struct {
		Format  string `json:"format"`
		Quality int    `json:"quality,omitempty"`
	}{Format: format}
	if format == "jpeg" {
		params.Quality = quality
	}

	raw, err := r.send(ctx, "Page.captureScreenshot", params)
	if err != nil {
		return host.Screenshot{}, err
	}
	var result struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return host.Screenshot{}, fmt.Errorf("devtools: unmarshal screenshot: %w", err)
	}

	shot := host.Screenshot{Format: format, Data: result.Data}
	if metricsRaw, err := r.send(ctx, "Page.getLayoutMetrics", struct{}{}); err == nil {
		var metrics struct {
			CSSLayoutViewport struct {
				ClientWidth  int `json:"clientWidth"`
				ClientHeight int `json:"clientHeight"`
			} `json:"cssLayoutViewport"`
		}
		if json.Unmarshal(metricsRaw, &metrics) == nil {
			shot.Width = metrics.CSSLayoutViewport.ClientWidth
			shot.Height = metrics.CSSLayoutViewport.ClientHeight
		}
	}
	return shot, nil
}

func (r *EvalHost) GetDOM(ctx context.Context) (string, error) {
	return r.evaluateString(ctx, "document.documentElement.outerHTML")
}

func (r *EvalHost) ExecuteJS(ctx context.Context, code string) (string, error) {
	raw, err := r.evaluate(ctx, code)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (r *EvalHost) ManageWindow(ctx context.Context, op host.WindowOp, bounds *host.WindowBounds) (host.WindowBounds, error) {
	windowID, current, err := r.windowForTarget(ctx)
	if err != nil {
		return host.WindowBounds{}, err
	}

	switch op {
	case host.WindowOpGetBounds:
		return current, nil

	case host.WindowOpSetBounds:
		params := struct {
			WindowID int64        `json:"windowId"`
			Bounds   windowBounds `json:"bounds"`
		}{
			WindowID: windowID,
			Bounds:   windowBounds{Left: bounds.X, Top: bounds.Y, Width: bounds.Width, Height: bounds.Height},
		}
		if _, err := r.send(ctx, "Browser.setWindowBounds", params); err != nil {
			return host.WindowBounds{}, err
		}
		return *bounds, nil

	case host.WindowOpFocus:
		if _, err := r.send(ctx, "Page.bringToFront", struct{}{}); err != nil {
			return host.WindowBounds{}, err
		}
		return current, nil
	}
	return host.WindowBounds{}, host.Validationf("unknown window operation %q", op)
}

func (r *EvalHost) Reload(ctx context.Context) error {
	_, err := r.send(ctx, "Page.reload", struct{}{})
	return err
}

type windowBounds struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r *EvalHost) windowForTarget(ctx context.Context) (int64, host.WindowBounds, error) {
	conn, sessionID, err := r.session(ctx)
	if err != nil {
		return 0, host.WindowBounds{}, err
	}
	r.mu.Lock()
	targetID := r.targetID
	r.mu.Unlock()

	params := struct {
		TargetID string `json:"targetId"`
	}{TargetID: targetID}

	raw, err := r.exchange(ctx, conn, sessionID, "Browser.getWindowForTarget", params)
	if err != nil {
		return 0, host.WindowBounds{}, err
	}

	var result struct {
		WindowID int64        `json:"windowId"`
		Bounds   windowBounds `json:"bounds"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, host.WindowBounds{}, fmt.Errorf("devtools: unmarshal window bounds: %w", err)
	}
	return result.WindowID, host.WindowBounds{
		X:      result.Bounds.Left,
		Y:      result.Bounds.Top,
		Width:  result.Bounds.Width,
		Height: result.Bounds.Height,
	}, nil
}
