// Package config reads agent and client settings from environment variables
// with an optional .env file.
package config

import (
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server holds configuration for the agent daemon.
type Server struct {
	// Socket transport
	ConnMode          string
	IPCPath           string
	TCPHost           string
	TCPPort           int
	TCPPortCandidates []int
	PortAutoFallback  bool

	// HTTP status API
	StatusBindAddr string

	// Capture behavior
	CallTimeout         time.Duration
	LogBufferSize       int
	NetworkBufferSize   int
	ExceptionBufferSize int

	// Webview instrumentation
	DevtoolsURL  string
	TabURLFilter string

	// Logging
	LogLevel string
	LogFile  string
}

// Client holds configuration for the agentctl bridge client.
type Client struct {
	ConnMode string
	IPCPath  string
	TCPHost  string
	TCPPort  int

	DialTimeout    time.Duration
	CommandTimeout time.Duration
	MaxAttempts    int
}

// Load reads the server configuration.
func Load() (*Server, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Server{
		ConnMode:            strings.ToLower(getEnvOrDefault("AGENT_CONN_MODE", "ipc")),
		IPCPath:             getEnvOrDefault("AGENT_IPC_PATH", "/tmp/tauri-plugin-mcp.sock"),
		TCPHost:             getEnvOrDefault("AGENT_TCP_HOST", "127.0.0.1"),
		TCPPort:             getEnvIntOrDefault("AGENT_TCP_PORT", 9999),
		TCPPortCandidates:   getEnvIntListOrDefault("AGENT_TCP_PORT_CANDIDATES", []int{9999, 10000, 10001}),
		PortAutoFallback:    getEnvBoolOrDefault("AGENT_PORT_AUTO_FALLBACK", true),
		StatusBindAddr:      getEnvOrDefault("AGENT_STATUS_BIND_ADDR", "127.0.0.1:8189"),
		CallTimeout:         time.Duration(getEnvIntOrDefault("AGENT_CALL_TIMEOUT_MS", 5000)) * time.Millisecond,
		LogBufferSize:       getEnvIntOrDefault("AGENT_LOG_BUFFER_SIZE", 1000),
		NetworkBufferSize:   getEnvIntOrDefault("AGENT_NETWORK_BUFFER_SIZE", 500),
		ExceptionBufferSize: getEnvIntOrDefault("AGENT_EXCEPTION_BUFFER_SIZE", 1000),
		DevtoolsURL:         getEnvOrDefault("AGENT_DEVTOOLS_URL", ""),
		TabURLFilter:        getEnvOrDefault("AGENT_TAB_URL_FILTER", ""),
		LogLevel:            strings.ToLower(getEnvOrDefault("AGENT_LOG_LEVEL", "info")),
		LogFile:             getEnvOrDefault("AGENT_LOG_FILE", "logs/agent.log"),
	}
	if cfg.CallTimeout < 500*time.Millisecond {
		cfg.CallTimeout = 500 * time.Millisecond
	}
	return cfg, nil
}

// LoadClient reads the bridge client configuration.
func LoadClient() (*Client, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Client{
		ConnMode:       strings.ToLower(getEnvOrDefault("AGENT_CLIENT_CONN_MODE", getEnvOrDefault("AGENT_CONN_MODE", "ipc"))),
		IPCPath:        getEnvOrDefault("AGENT_CLIENT_IPC_PATH", getEnvOrDefault("AGENT_IPC_PATH", "/tmp/tauri-plugin-mcp.sock")),
		TCPHost:        getEnvOrDefault("AGENT_CLIENT_TCP_HOST", getEnvOrDefault("AGENT_TCP_HOST", "127.0.0.1")),
		TCPPort:        getEnvIntOrDefault("AGENT_CLIENT_TCP_PORT", getEnvIntOrDefault("AGENT_TCP_PORT", 9999)),
		DialTimeout:    time.Duration(getEnvIntOrDefault("AGENT_CLIENT_DIAL_TIMEOUT_MS", 2000)) * time.Millisecond,
		CommandTimeout: time.Duration(getEnvIntOrDefault("AGENT_CLIENT_COMMAND_TIMEOUT_MS", 10000)) * time.Millisecond,
		MaxAttempts:    getEnvIntOrDefault("AGENT_CLIENT_MAX_ATTEMPTS", 5),
	}
	return cfg, nil
}

// TCPAddr returns the host:port for tcp mode.
func (c *Server) TCPAddr() string {
	return net.JoinHostPort(c.TCPHost, strconv.Itoa(c.TCPPort))
}

// TCPCandidates returns the fallback host:port list for tcp mode.
func (c *Server) TCPCandidates() []string {
	out := make([]string, 0, len(c.TCPPortCandidates))
	for _, port := range c.TCPPortCandidates {
		out = append(out, net.JoinHostPort(c.TCPHost, strconv.Itoa(port)))
	}
	return out
}

// TCPAddr returns the host:port for tcp mode.
func (c *Client) TCPAddr() string {
	return net.JoinHostPort(c.TCPHost, strconv.Itoa(c.TCPPort))
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvIntListOrDefault(key string, defaultVal []int) []int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []int
	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if i, err := strconv.Atoi(part); err == nil {
			out = append(out, i)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
