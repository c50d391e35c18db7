package tools

import (
	"context"
	"encoding/json"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/host"
)

type takeScreenshotParams struct {
	WindowLabel string `json:"window_label,omitempty"`
	Format      string `json:"format,omitempty"`
	Quality     int    `json:"quality,omitempty"`
}

func (t *toolset) takeScreenshot(ctx context.Context, params json.RawMessage) (any, error) {
	var p takeScreenshotParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	format := p.Format
	switch format {
	case "":
		format = "png"
	case "jpg":
		format = "jpeg"
	case "png", "jpeg":
	default:
		return nil, host.Validationf("unsupported screenshot format %q", p.Format)
	}

	quality := p.Quality
	if quality == 0 {
		quality = 80
	}
	if quality < 1 || quality > 100 {
		return nil, host.Validationf("quality must be between 1 and 100, got %d", p.Quality)
	}

	return t.deps.Host.TakeScreenshot(ctx, format, quality)
}

type getDOMResult struct {
	DOM string `json:"dom"`
}

func (t *toolset) getDOM(ctx context.Context, params json.RawMessage) (any, error) {
	dom, err := t.deps.Host.GetDOM(ctx)
	if err != nil {
		return nil, err
	}
	return getDOMResult{DOM: dom}, nil
}

type executeJSParams struct {
	WindowLabel string `json:"window_label,omitempty"`
	Code        string `json:"code"`
}

type executeJSResult struct {
	Result json.RawMessage `json:"result"`
}

func (t *toolset) executeJS(ctx context.Context, params json.RawMessage) (any, error) {
	var p executeJSParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Code == "" {
		return nil, host.Validationf("code is required")
	}
	result, err := t.deps.Host.ExecuteJS(ctx, p.Code)
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(result)) {
		// Defend against a host returning a bare string.
		quoted, _ := json.Marshal(result)
		return executeJSResult{Result: quoted}, nil
	}
	return executeJSResult{Result: json.RawMessage(result)}, nil
}

type manageWindowParams struct {
	WindowLabel string `json:"window_label,omitempty"`
	Operation   string `json:"operation"`
	X           *int   `json:"x,omitempty"`
	Y           *int   `json:"y,omitempty"`
	Width       *int   `json:"width,omitempty"`
	Height      *int   `json:"height,omitempty"`
}

func (t *toolset) manageWindow(ctx context.Context, params json.RawMessage) (any, error) {
	var p manageWindowParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	op := host.WindowOp(p.Operation)
	var bounds *host.WindowBounds
	switch op {
	case host.WindowOpGetBounds, host.WindowOpFocus:
	case host.WindowOpSetBounds:
		if p.Width == nil || p.Height == nil {
			return nil, host.Validationf("set_bounds requires width and height")
		}
		b := host.WindowBounds{Width: *p.Width, Height: *p.Height}
		if p.X != nil {
			b.X = *p.X
		}
		if p.Y != nil {
			b.Y = *p.Y
		}
		bounds = &b
	case "":
		return nil, host.Validationf("manage_window requires an operation")
	default:
		return nil, host.Validationf("unknown window operation %q", p.Operation)
	}

	return t.deps.Host.ManageWindow(ctx, op, bounds)
}

func (t *toolset) hotReload(ctx context.Context, params json.RawMessage) (any, error) {
	if err := t.deps.Host.Reload(ctx); err != nil {
		return nil, err
	}
	return statusMessage{Message: "reload triggered"}, nil
}
