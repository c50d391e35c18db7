// Package host declares the application-side APIs the agent calls into for
// commands that are plain request/response operations against the running
// application (screenshots, window geometry, DOM, script evaluation). The
// production implementation lives in internal/devtools; tests use stubs.
package host

import (
	"context"
	"fmt"
)

// Stable error codes surfaced to bridge clients through error envelopes.
const (
	CodeValidation      = "VALIDATION"
	CodeWindowNotFound  = "WINDOW_NOT_FOUND"
	CodeTimeout         = "TIMEOUT"
	CodeHostUnavailable = "HOST_UNAVAILABLE"
	CodeEvalFailure     = "EVAL_FAILURE"
	CodeCaptureInactive = "CAPTURE_INACTIVE"
)

// CodedError is a typed error used for stable failure reporting across the
// socket and HTTP surfaces.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// NewError builds a CodedError.
func NewError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// Validationf builds a VALIDATION error from a format string.
func Validationf(format string, args ...any) error {
	return &CodedError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Screenshot is a captured image of the application window.
type Screenshot struct {
	Format string `json:"format"`
	Data   string `json:"data"` // base64
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// WindowOp names a manage_window operation.
type WindowOp string

const (
	WindowOpGetBounds WindowOp = "get_bounds"
	WindowOpSetBounds WindowOp = "set_bounds"
	WindowOpFocus     WindowOp = "focus"
)

// WindowBounds describes window geometry.
type WindowBounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Host is the boundary to the running application. Every method is a single
// marshaled request/response call and honors ctx cancellation.
type Host interface {
	// TakeScreenshot rasterizes the current window. format is "png" or
	// "jpeg"; quality applies to jpeg only.
	TakeScreenshot(ctx context.Context, format string, quality int) (Screenshot, error)

	// GetDOM returns the serialized document of the window.
	GetDOM(ctx context.Context) (string, error)

	// ExecuteJS evaluates a script in the window and returns the
	// JSON-encoded result.
	ExecuteJS(ctx context.Context, code string) (string, error)

	// ManageWindow applies a window operation and returns the resulting
	// bounds.
	ManageWindow(ctx context.Context, op WindowOp, bounds *WindowBounds) (WindowBounds, error)

	// Reload reloads the window without restarting the application.
	Reload(ctx context.Context) error
}
