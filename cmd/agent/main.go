package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/api"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/config"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/devtools"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/hub"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/netutil"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/relay"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/server"
	"github.com/moinsen-dev/tauri-plugin-mcp/internal/tools"
	"gopkg.in/natefinch/lumberjack.v2"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load agent config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("agent config loaded",
		"conn_mode", cfg.ConnMode,
		"ipc_path", cfg.IPCPath,
		"tcp_addr", cfg.TCPAddr(),
		"port_auto_fallback", cfg.PortAutoFallback,
		"status_bind_addr", cfg.StatusBindAddr,
		"call_timeout_ms", cfg.CallTimeout.Milliseconds(),
		"devtools_url", cfg.DevtoolsURL,
		"tab_url_filter", cfg.TabURLFilter,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	broker := relay.NewBroker()
	h := hub.New(hub.Options{CallTimeout: cfg.CallTimeout, Broker: broker})
	defer h.Close()

	dtOpts := devtools.Options{DevtoolsURL: cfg.DevtoolsURL, URLFilter: cfg.TabURLFilter}
	dtClient := devtools.NewClient(dtOpts)
	defer dtClient.Close()
	devtools.RegisterInterceptors(h, dtClient)

	evalHost := devtools.NewEvalHost(dtOpts)
	defer evalHost.Close()

	var ln *server.Listener

	router := server.NewRouter()
	tools.RegisterAll(router, tools.Deps{
		Hub:                 h,
		Host:                evalHost,
		Version:             version,
		LogBufferSize:       cfg.LogBufferSize,
		NetworkBufferSize:   cfg.NetworkBufferSize,
		ExceptionBufferSize: cfg.ExceptionBufferSize,
		SessionCount: func() int64 {
			if ln == nil {
				return 0
			}
			return ln.SessionCount()
		},
	})

	lnOpts := server.Options{Mode: cfg.ConnMode, IPCPath: cfg.IPCPath}
	if cfg.ConnMode == server.ModeTCP {
		addr, err := netutil.SelectBindAddr(cfg.TCPAddr(), cfg.TCPCandidates(), cfg.PortAutoFallback)
		if err != nil {
			slog.Error("failed to select bind address", "preferred", cfg.TCPAddr(), "error", err)
			os.Exit(1)
		}
		lnOpts.TCPAddr = addr
	}

	ln, err = server.Listen(lnOpts, router)
	if err != nil {
		slog.Error("failed to bind command socket", "mode", cfg.ConnMode, "error", err)
		os.Exit(1)
	}

	go func() {
		slog.Info("agent listening", "mode", cfg.ConnMode, "addr", ln.Addr().String())
		if err := ln.Serve(context.Background()); err != nil {
			slog.Error("command socket serve failed", "error", err)
		}
	}()

	statusSrv := &http.Server{
		Addr: cfg.StatusBindAddr,
		Handler: api.NewServer(api.Deps{
			Hub:          h,
			Broker:       broker,
			Version:      version,
			SessionCount: ln.SessionCount,
		}),
	}

	go func() {
		slog.Info("status API listening", "addr", cfg.StatusBindAddr, "docs", "http://"+cfg.StatusBindAddr+"/docs")
		if err := statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("status API server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := statusSrv.Shutdown(ctx); err != nil {
		slog.Error("status API shutdown failed", "error", err)
	}
	if err := ln.Shutdown(ctx); err != nil {
		slog.Error("command socket shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
