// Package protocol defines the newline-delimited JSON wire format exchanged
// between the agent socket server and bridge clients.
package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Action names accepted by the command router.
const (
	ActionPing        = "ping"
	ActionHealthCheck = "health_check"

	ActionInjectConsoleCapture = "inject_console_capture"
	ActionGetConsoleLogs       = "get_console_logs"
	ActionClearConsoleLogs     = "clear_console_logs"

	ActionInjectNetworkCapture = "inject_network_capture"
	ActionNetworkInspector     = "network_inspector"

	ActionInjectErrorTracker = "inject_error_tracker"
	ActionGetExceptions      = "get_exceptions"
	ActionClearExceptions    = "clear_exceptions"

	ActionTakeScreenshot = "take_screenshot"
	ActionGetDOM         = "get_dom"
	ActionExecuteJS      = "execute_js"
	ActionManageWindow   = "manage_window"
	ActionHotReload      = "hot_reload"

	ActionGetPerformanceMetrics = "get_performance_metrics"
	ActionStorageInspector      = "storage_inspector"
	ActionManageLocalStorage    = "manage_local_storage"

	ActionSimulateTextInput     = "simulate_text_input"
	ActionSimulateMouseMovement = "simulate_mouse_movement"
	ActionGetElementPosition    = "get_element_position"
	ActionSendTextToElement     = "send_text_to_element"
)

// MaxLineBytes bounds a single framed command or response. Large enough for
// screenshot payloads, small enough to stop a runaway peer.
const MaxLineBytes = 32 * 1024 * 1024

// Command is one framed request: an action name plus handler-specific params.
type Command struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the envelope written back for every command. Exactly one of
// Data/Error is populated.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// OK builds a success envelope around v.
func OK(v any) Response {
	data, err := json.Marshal(v)
	if err != nil {
		return Fail(fmt.Sprintf("failed to serialize response: %v", err))
	}
	return Response{Success: true, Data: data}
}

// Fail builds a failure envelope carrying msg.
func Fail(msg string) Response {
	return Response{Success: false, Error: msg}
}

// ReadCommand reads one newline-terminated JSON command from r. An io error
// (including EOF) is returned as-is; a parse failure is returned as a
// *ParseError so the session can answer with an error envelope and keep the
// connection open.
func ReadCommand(r *bufio.Reader) (Command, error) {
	line, err := readLine(r)
	if err != nil {
		return Command{}, err
	}

	var cmd Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		return Command{}, &ParseError{Reason: err.Error()}
	}
	if strings.TrimSpace(cmd.Action) == "" {
		return Command{}, &ParseError{Reason: "missing action field"}
	}
	return cmd, nil
}

// WriteCommand frames cmd onto w with a trailing newline.
func WriteCommand(w io.Writer, cmd Command) error {
	return writeJSONLine(w, cmd)
}

// ReadResponse reads one newline-terminated response envelope from r.
func ReadResponse(r *bufio.Reader) (Response, error) {
	line, err := readLine(r)
	if err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, &ParseError{Reason: err.Error()}
	}
	return resp, nil
}

// WriteResponse frames resp onto w with a trailing newline.
func WriteResponse(w io.Writer, resp Response) error {
	return writeJSONLine(w, resp)
}

// ParseError reports a payload that was read from the wire but failed to
// decode as a command or response.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid payload: %s", e.Reason)
}

func readLine(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return nil, err
		}
		buf = append(buf, chunk...)
		if len(buf) > MaxLineBytes {
			// Discard the rest of the line so the next read starts at a
			// frame boundary instead of mid-payload.
			for isPrefix {
				if _, isPrefix, err = r.ReadLine(); err != nil {
					return nil, err
				}
			}
			return nil, &ParseError{Reason: "payload exceeds frame limit"}
		}
		if !isPrefix {
			return buf, nil
		}
	}
}

func writeJSONLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("protocol: marshal: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
