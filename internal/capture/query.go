package capture

import (
	"regexp"
	"sort"
	"strings"
)

// Default page sizes per retrieval command, matching the caller-facing
// defaults of the socket protocol.
const (
	DefaultLogLimit       = 1000
	DefaultNetworkLimit   = 100
	DefaultExceptionLimit = 1000
)

// LogFilter selects console log entries. All set fields must match.
type LogFilter struct {
	Level       string `json:"level,omitempty"`
	Pattern     string `json:"message_pattern,omitempty"`
	StartTimeMS *int64 `json:"start_time_ms,omitempty"`
	EndTimeMS   *int64 `json:"end_time_ms,omitempty"`
}

// NetworkFilter selects network request entries. All set fields must match.
type NetworkFilter struct {
	URLPattern    string `json:"url_pattern,omitempty"`
	Method        string `json:"method,omitempty"`
	StatusCode    *int   `json:"status_code,omitempty"`
	RequestType   string `json:"request_type,omitempty"`
	MinDurationMS *int64 `json:"min_duration_ms,omitempty"`
	MaxDurationMS *int64 `json:"max_duration_ms,omitempty"`
	StartTimeMS   *int64 `json:"start_time_ms,omitempty"`
	EndTimeMS     *int64 `json:"end_time_ms,omitempty"`
}

// ExceptionFilter selects exception entries. Time bounds apply to the last
// occurrence. All set fields must match.
type ExceptionFilter struct {
	ErrorType   string `json:"error_type,omitempty"`
	Pattern     string `json:"message_pattern,omitempty"`
	StartTimeMS *int64 `json:"start_time_ms,omitempty"`
	EndTimeMS   *int64 `json:"end_time_ms,omitempty"`
}

// QueryResult is the shared shape of a filtered, paginated retrieval.
type QueryResult[T any] struct {
	Items         []T
	TotalCount    int
	ReturnedCount int
}

// QueryLogs filters, sorts newest-first, and paginates a log snapshot.
func QueryLogs(snapshot []LogEntry, f LogFilter, limit int) QueryResult[LogEntry] {
	match := newPatternMatcher(f.Pattern)
	filtered := filterEntries(snapshot, func(e LogEntry) bool {
		if !matchEnum(f.Level, e.Level) {
			return false
		}
		if !withinRange(e.TimestampMS, f.StartTimeMS, f.EndTimeMS) {
			return false
		}
		return match(e.Message)
	})
	sortNewestFirst(filtered, func(e LogEntry) int64 { return e.TimestampMS })
	return paginate(filtered, limit, DefaultLogLimit)
}

// QueryNetwork filters, sorts newest-first, and paginates a network snapshot.
func QueryNetwork(snapshot []NetworkRequest, f NetworkFilter, limit int) QueryResult[NetworkRequest] {
	match := newPatternMatcher(f.URLPattern)
	filtered := filterEntries(snapshot, func(e NetworkRequest) bool {
		if !matchEnum(f.Method, e.Method) {
			return false
		}
		if !matchEnum(f.RequestType, e.RequestType) {
			return false
		}
		if f.StatusCode != nil && e.StatusCode != *f.StatusCode {
			return false
		}
		if !withinRange(e.DurationMS, f.MinDurationMS, f.MaxDurationMS) {
			return false
		}
		if !withinRange(e.StartTimeMS, f.StartTimeMS, f.EndTimeMS) {
			return false
		}
		return match(e.URL)
	})
	sortNewestFirst(filtered, func(e NetworkRequest) int64 { return e.StartTimeMS })
	return paginate(filtered, limit, DefaultNetworkLimit)
}

// QueryExceptions filters, sorts newest-first by last occurrence, and
// paginates an exception snapshot.
func QueryExceptions(snapshot []ExceptionEntry, f ExceptionFilter, limit int) QueryResult[ExceptionEntry] {
	match := newPatternMatcher(f.Pattern)
	filtered := filterEntries(snapshot, func(e ExceptionEntry) bool {
		if !matchEnum(f.ErrorType, e.ErrorType) {
			return false
		}
		if !withinRange(e.LastOccurrenceMS, f.StartTimeMS, f.EndTimeMS) {
			return false
		}
		return match(e.Message)
	})
	sortNewestFirst(filtered, func(e ExceptionEntry) int64 { return e.LastOccurrenceMS })
	return paginate(filtered, limit, DefaultExceptionLimit)
}

func filterEntries[T any](entries []T, keep func(T) bool) []T {
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func sortNewestFirst[T any](entries []T, ts func(T) int64) {
	sort.SliceStable(entries, func(i, j int) bool {
		return ts(entries[i]) > ts(entries[j])
	})
}

func paginate[T any](filtered []T, limit, defaultLimit int) QueryResult[T] {
	if limit <= 0 {
		limit = defaultLimit
	}
	total := len(filtered)
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return QueryResult[T]{Items: filtered, TotalCount: total, ReturnedCount: len(filtered)}
}

// matchEnum compares an optional enum filter value against a field,
// case-insensitively. Empty and "all" match everything.
func matchEnum(want, got string) bool {
	if want == "" || strings.EqualFold(want, "all") {
		return true
	}
	return strings.EqualFold(want, got)
}

// withinRange checks inclusive optional bounds.
func withinRange(v int64, min, max *int64) bool {
	if min != nil && v < *min {
		return false
	}
	if max != nil && v > *max {
		return false
	}
	return true
}

// newPatternMatcher compiles pattern as a regular expression. Invalid syntax
// degrades to a case-insensitive substring match; callers rely on this for
// arbitrary user-supplied patterns. The empty pattern matches everything.
func newPatternMatcher(pattern string) func(string) bool {
	if pattern == "" {
		return func(string) bool { return true }
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		lowered := strings.ToLower(pattern)
		return func(s string) bool {
			return strings.Contains(strings.ToLower(s), lowered)
		}
	}
	return re.MatchString
}
