// Package capture holds the bounded telemetry stores for console logs,
// network requests, and exceptions, plus the filter/pagination query layer
// shared by the three kinds.
package capture

import "strings"

// Log levels recorded by the console interceptor.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Error types recorded by the exception tracker.
const (
	ErrorTypeUncaught           = "uncaught"
	ErrorTypeUnhandledRejection = "unhandledrejection"
	ErrorTypeReactBoundary      = "reactboundary"
)

// Request types recorded by the network interceptor.
const (
	RequestTypeFetch = "fetch"
	RequestTypeXHR   = "xhr"
)

// LogEntry is a single captured console message.
type LogEntry struct {
	TimestampMS int64    `json:"timestamp_ms"`
	Level       string   `json:"level"`
	Message     string   `json:"message"`
	Args        []string `json:"args,omitempty"`
}

// NetworkRequest is a single captured fetch/XHR call. In-flight entries carry
// only request-side fields; completion fills status, response headers/body,
// and duration in place.
type NetworkRequest struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	RequestType     string            `json:"request_type"`
	StatusCode      int               `json:"status_code,omitempty"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	RequestBody     string            `json:"request_body,omitempty"`
	ResponseBody    string            `json:"response_body,omitempty"`
	Error           string            `json:"error,omitempty"`
	StartTimeMS     int64             `json:"start_time_ms"`
	EndTimeMS       int64             `json:"end_time_ms,omitempty"`
	DurationMS      int64             `json:"duration_ms,omitempty"`
}

// ExceptionEntry is a deduplicated error occurrence. Repeats of the same
// (error_type, message) pair merge into one entry.
type ExceptionEntry struct {
	ID                string       `json:"id"`
	ErrorType         string       `json:"error_type"`
	Message           string       `json:"message"`
	StackTrace        []StackFrame `json:"stack_trace,omitempty"`
	FirstOccurrenceMS int64        `json:"first_occurrence_ms"`
	LastOccurrenceMS  int64        `json:"last_occurrence_ms"`
	Frequency         int          `json:"frequency"`
}

// DedupKey is the identity used to merge repeated exceptions.
func (e ExceptionEntry) DedupKey() string {
	return e.ErrorType + "\x00" + e.Message
}

// ValidLevel reports whether s names a known log level. "all" and "" mean no
// level filtering.
func ValidLevel(s string) bool {
	switch strings.ToLower(s) {
	case "", "all", LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true
	}
	return false
}

// ValidErrorType reports whether s names a known exception kind.
func ValidErrorType(s string) bool {
	switch strings.ToLower(s) {
	case "", "all", ErrorTypeUncaught, ErrorTypeUnhandledRejection, ErrorTypeReactBoundary:
		return true
	}
	return false
}
