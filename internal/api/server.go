// Package api serves the HTTP status surface: health, buffer statistics,
// capture queries mirroring the socket commands, and a live SSE event
// stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/capture"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/host"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/hub"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/relay"
)

// Deps carries the status API's collaborators.
type Deps struct {
	Hub     *hub.Hub
	Broker  *relay.Broker
	Version string

	// SessionCount reports live socket sessions. Optional.
	SessionCount func() int64
}

// NewServer builds the status API handler.
func NewServer(deps Deps) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Webview Agent Status API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	if deps.Broker != nil {
		router.Get("/events", relay.SSEHandler(deps.Broker))
	}

	s := &server{deps: deps, started: time.Now()}
	s.registerHealthHandlers(api)
	s.registerCaptureHandlers(api)

	return router
}

type server struct {
	deps    Deps
	started time.Time
}

func (s *server) registerHealthHandlers(api huma.API) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type statsOutput struct {
		Body struct {
			Version        string            `json:"version"`
			UptimeMS       int64             `json:"uptime_ms"`
			ActiveSessions int64             `json:"active_sessions"`
			EventClients   int               `json:"event_clients"`
			Buffers        []hub.BufferStats `json:"buffers"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "stats", Method: http.MethodGet, Path: "/api/v1/stats", Summary: "Buffer and connection statistics", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*statsOutput, error) {
			stats, err := s.deps.Hub.Stats(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &statsOutput{}
			out.Body.Version = s.deps.Version
			out.Body.UptimeMS = time.Since(s.started).Milliseconds()
			out.Body.Buffers = stats
			if s.deps.SessionCount != nil {
				out.Body.ActiveSessions = s.deps.SessionCount()
			}
			if s.deps.Broker != nil {
				out.Body.EventClients = s.deps.Broker.ClientCount()
			}
			return out, nil
		})
}

func (s *server) registerCaptureHandlers(api huma.API) {
	type logsInput struct {
		Level       string `query:"level" doc:"Filter by level (debug/info/warn/error, or all)"`
		Pattern     string `query:"pattern" doc:"Message pattern (regex, substring fallback)"`
		StartTimeMS *int64 `query:"start_time_ms"`
		EndTimeMS   *int64 `query:"end_time_ms"`
		Limit       int    `query:"limit"`
	}
	type logsOutput struct {
		Body struct {
			Logs          []capture.LogEntry `json:"logs"`
			TotalCount    int                `json:"total_count"`
			ReturnedCount int                `json:"returned_count"`
			CaptureActive bool               `json:"capture_active"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "query-logs", Method: http.MethodGet, Path: "/api/v1/logs", Summary: "Query captured console logs", Tags: []string{"Capture"}},
		func(ctx context.Context, input *logsInput) (*logsOutput, error) {
			if !capture.ValidLevel(input.Level) {
				return nil, huma.Error400BadRequest(fmt.Sprintf("unknown log level %q", input.Level))
			}
			snap, active, err := s.deps.Hub.ConsoleSnapshot(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			res := capture.QueryLogs(snap, capture.LogFilter{
				Level:       input.Level,
				Pattern:     input.Pattern,
				StartTimeMS: input.StartTimeMS,
				EndTimeMS:   input.EndTimeMS,
			}, input.Limit)
			out := &logsOutput{}
			out.Body.Logs = res.Items
			out.Body.TotalCount = res.TotalCount
			out.Body.ReturnedCount = res.ReturnedCount
			out.Body.CaptureActive = active
			return out, nil
		})

	type networkInput struct {
		URLPattern    string `query:"url_pattern"`
		Method        string `query:"method"`
		StatusCode    *int   `query:"status_code"`
		RequestType   string `query:"request_type" doc:"fetch or xhr"`
		MinDurationMS *int64 `query:"min_duration_ms"`
		MaxDurationMS *int64 `query:"max_duration_ms"`
		StartTimeMS   *int64 `query:"start_time_ms"`
		EndTimeMS     *int64 `query:"end_time_ms"`
		Limit         int    `query:"limit"`
	}
	type networkOutput struct {
		Body struct {
			Requests      []capture.NetworkRequest `json:"requests"`
			TotalCount    int                      `json:"total_count"`
			ReturnedCount int                      `json:"returned_count"`
			CaptureActive bool                     `json:"capture_active"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "query-network", Method: http.MethodGet, Path: "/api/v1/network", Summary: "Query captured network requests", Tags: []string{"Capture"}},
		func(ctx context.Context, input *networkInput) (*networkOutput, error) {
			snap, active, err := s.deps.Hub.NetworkSnapshot(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			res := capture.QueryNetwork(snap, capture.NetworkFilter{
				URLPattern:    input.URLPattern,
				Method:        input.Method,
				StatusCode:    input.StatusCode,
				RequestType:   input.RequestType,
				MinDurationMS: input.MinDurationMS,
				MaxDurationMS: input.MaxDurationMS,
				StartTimeMS:   input.StartTimeMS,
				EndTimeMS:     input.EndTimeMS,
			}, input.Limit)
			out := &networkOutput{}
			out.Body.Requests = res.Items
			out.Body.TotalCount = res.TotalCount
			out.Body.ReturnedCount = res.ReturnedCount
			out.Body.CaptureActive = active
			return out, nil
		})

	type exceptionsInput struct {
		ErrorType   string `query:"error_type" doc:"uncaught, unhandledrejection, reactboundary, or all"`
		Pattern     string `query:"pattern"`
		StartTimeMS *int64 `query:"start_time_ms"`
		EndTimeMS   *int64 `query:"end_time_ms"`
		Limit       int    `query:"limit"`
	}
	type exceptionsOutput struct {
		Body struct {
			Exceptions    []capture.ExceptionEntry `json:"exceptions"`
			TotalCount    int                      `json:"total_count"`
			ReturnedCount int                      `json:"returned_count"`
			CaptureActive bool                     `json:"capture_active"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "query-exceptions", Method: http.MethodGet, Path: "/api/v1/exceptions", Summary: "Query captured exceptions", Tags: []string{"Capture"}},
		func(ctx context.Context, input *exceptionsInput) (*exceptionsOutput, error) {
			if !capture.ValidErrorType(input.ErrorType) {
				return nil, huma.Error400BadRequest(fmt.Sprintf("unknown error type %q", input.ErrorType))
			}
			snap, active, err := s.deps.Hub.ExceptionSnapshot(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			res := capture.QueryExceptions(snap, capture.ExceptionFilter{
				ErrorType:   input.ErrorType,
				Pattern:     input.Pattern,
				StartTimeMS: input.StartTimeMS,
				EndTimeMS:   input.EndTimeMS,
			}, input.Limit)
			out := &exceptionsOutput{}
			out.Body.Exceptions = res.Items
			out.Body.TotalCount = res.TotalCount
			out.Body.ReturnedCount = res.ReturnedCount
			out.Body.CaptureActive = active
			return out, nil
		})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *host.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case host.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case host.CodeWindowNotFound:
			return huma.Error404NotFound(coded.Message)
		case host.CodeTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case host.CodeHostUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
