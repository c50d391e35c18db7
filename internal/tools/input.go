package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/host"
)

type simulateTextInputParams struct {
	WindowLabel string `json:"window_label,omitempty"`
	Text        string `json:"text"`
	DelayMS     int    `json:"delay_ms,omitempty"`
}

func (t *toolset) simulateTextInput(ctx context.Context, params json.RawMessage) (any, error) {
	var p simulateTextInputParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Text == "" {
		return nil, host.Validationf("text is required")
	}
	if p.DelayMS < 0 {
		return nil, host.Validationf("delay_ms must not be negative")
	}

	code := fmt.Sprintf(`(async () => {
const target = document.activeElement;
if (!target || target === document.body) {
  return { error: 'no focused element to type into' };
}
const text = %s;
const delay = %d;
for (const ch of text) {
  target.dispatchEvent(new KeyboardEvent('keydown', { key: ch, bubbles: true }));
  if ('value' in target) {
    target.value += ch;
  } else if (target.isContentEditable) {
    target.textContent += ch;
  }
  target.dispatchEvent(new InputEvent('input', { data: ch, inputType: 'insertText', bubbles: true }));
  target.dispatchEvent(new KeyboardEvent('keyup', { key: ch, bubbles: true }));
  if (delay > 0) await new Promise(r => setTimeout(r, delay));
}
target.dispatchEvent(new Event('change', { bubbles: true }));
return { typed_characters: Array.from(text).length };
})()`, jsString(p.Text), p.DelayMS)

	return t.evalToJSON(ctx, code, "text input")
}

type simulateMouseMovementParams struct {
	WindowLabel string `json:"window_label,omitempty"`
	X           *int   `json:"x"`
	Y           *int   `json:"y"`
	Steps       int    `json:"steps,omitempty"`
}

func (t *toolset) simulateMouseMovement(ctx context.Context, params json.RawMessage) (any, error) {
	var p simulateMouseMovementParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.X == nil || p.Y == nil {
		return nil, host.Validationf("x and y are required")
	}
	steps := p.Steps
	if steps <= 0 {
		steps = 10
	}

	code := fmt.Sprintf(`(async () => {
const endX = %d;
const endY = %d;
const steps = %d;
let x = window.__agentMouseX || 0;
let y = window.__agentMouseY || 0;
for (let i = 1; i <= steps; i++) {
  const px = x + (endX - x) * i / steps;
  const py = y + (endY - y) * i / steps;
  const target = document.elementFromPoint(px, py) || document.body;
  target.dispatchEvent(new MouseEvent('mousemove', {
    clientX: px, clientY: py, bubbles: true, cancelable: true, view: window
  }));
  await new Promise(r => setTimeout(r, 5));
}
window.__agentMouseX = endX;
window.__agentMouseY = endY;
return { x: endX, y: endY, steps: steps };
})()`, *p.X, *p.Y, steps)

	return t.evalToJSON(ctx, code, "mouse movement")
}

type getElementPositionParams struct {
	WindowLabel string `json:"window_label,omitempty"`
	Selector    string `json:"selector"`
}

func (t *toolset) getElementPosition(ctx context.Context, params json.RawMessage) (any, error) {
	var p getElementPositionParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Selector == "" {
		return nil, host.Validationf("selector is required")
	}

	code := fmt.Sprintf(`(() => {
const el = document.querySelector(%s);
if (!el) {
  return { found: false };
}
const rect = el.getBoundingClientRect();
const style = window.getComputedStyle(el);
return {
  found: true,
  x: rect.x,
  y: rect.y,
  width: rect.width,
  height: rect.height,
  center_x: rect.x + rect.width / 2,
  center_y: rect.y + rect.height / 2,
  visible: rect.width > 0 && rect.height > 0 && style.visibility !== 'hidden' && style.display !== 'none'
};
})()`, jsString(p.Selector))

	result, err := t.deps.Host.ExecuteJS(ctx, code)
	if err != nil {
		return nil, err
	}
	var probe struct {
		Found bool `json:"found"`
	}
	if err := json.Unmarshal([]byte(result), &probe); err != nil {
		return nil, host.NewError(host.CodeEvalFailure, "element position returned malformed data", err)
	}
	if !probe.Found {
		return nil, host.NewError(host.CodeEvalFailure, fmt.Sprintf("no element matches selector %q", p.Selector), nil)
	}
	return json.RawMessage(result), nil
}

type sendTextToElementParams struct {
	WindowLabel string `json:"window_label,omitempty"`
	Selector    string `json:"selector"`
	Text        string `json:"text"`
}

func (t *toolset) sendTextToElement(ctx context.Context, params json.RawMessage) (any, error) {
	var p sendTextToElementParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Selector == "" {
		return nil, host.Validationf("selector is required")
	}
	if p.Text == "" {
		return nil, host.Validationf("text is required")
	}

	code := fmt.Sprintf(`(() => {
const el = document.querySelector(%s);
if (!el) {
  return { error: 'no element matches selector ' + %s };
}
el.focus();
if ('value' in el) {
  const proto = Object.getPrototypeOf(el);
  const setter = Object.getOwnPropertyDescriptor(proto, 'value');
  if (setter && setter.set) {
    setter.set.call(el, %s);
  } else {
    el.value = %s;
  }
} else if (el.isContentEditable) {
  el.textContent = %s;
} else {
  return { error: 'element is not text-editable' };
}
el.dispatchEvent(new InputEvent('input', { inputType: 'insertText', bubbles: true }));
el.dispatchEvent(new Event('change', { bubbles: true }));
return { sent: true, selector: %s };
})()`, jsString(p.Selector), jsString(p.Selector), jsString(p.Text), jsString(p.Text),
		jsString(p.Text), jsString(p.Selector))

	return t.evalToJSON(ctx, code, "send text")
}

// evalToJSON runs code in the page and surfaces an in-page {error: ...}
// result as an EVAL_FAILURE instead of a success envelope.
func (t *toolset) evalToJSON(ctx context.Context, code, what string) (any, error) {
	result, err := t.deps.Host.ExecuteJS(ctx, code)
	if err != nil {
		return nil, err
	}
	var probe struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(result), &probe); err != nil {
		return nil, host.NewError(host.CodeEvalFailure, what+" returned malformed data", err)
	}
	if probe.Error != "" {
		return nil, host.NewError(host.CodeEvalFailure, probe.Error, nil)
	}
	return json.RawMessage(result), nil
}
