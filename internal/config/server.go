package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default server configuration values
const (
	DefaultAddr            = ":3210"
	DefaultLogLevel        = "info"
	DefaultMaxMessageSize  = 64 * 1024
	DefaultSendBuffer      = 256
	DefaultEventRate       = 20
	DefaultEventBurst      = 40
	DefaultLedgerCapacity  = 100_000
	DefaultShutdownTimeout = 10 * time.Second
)

// Server holds relay configuration
type Server struct {
	// Addr is the listen address of the HTTP server
	Addr string

	// AllowedOrigins restricts websocket upgrades; empty allows any origin
	AllowedOrigins []string

	LogLevel string

	// Per-connection limits
	MaxMessageSize int64
	SendBuffer     int
	EventRate      float64
	EventBurst     int

	// LedgerCapacity bounds remembered message ids; 0 means unbounded
	LedgerCapacity int

	ShutdownTimeout time.Duration
}

// ServerOptions carries CLI flag overrides
type ServerOptions struct {
	Addr           string
	AllowedOrigins string
	LogLevel       string

	// EnvFile is loaded into the environment first when it exists
	EnvFile string
}

// LoadServer reads configuration with the following priority:
// 1. CLI flags (passed via ServerOptions) - highest priority
// 2. Environment variables (including those from EnvFile)
// 3. Hardcoded defaults - lowest priority
func LoadServer(opts ServerOptions) (*Server, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	cfg := &Server{
		Addr:           firstNonEmpty(opts.Addr, os.Getenv("ADDR"), DefaultAddr),
		AllowedOrigins: splitList(firstNonEmpty(opts.AllowedOrigins, os.Getenv("ALLOWED_ORIGINS"))),
		LogLevel:       firstNonEmpty(opts.LogLevel, os.Getenv("LOG_LEVEL"), DefaultLogLevel),
	}

	var err error
	if cfg.MaxMessageSize, err = envInt64("MAX_MESSAGE_SIZE", DefaultMaxMessageSize); err != nil {
		return nil, err
	}
	if cfg.SendBuffer, err = envInt("SEND_BUFFER", DefaultSendBuffer); err != nil {
		return nil, err
	}
	if cfg.EventRate, err = envFloat("EVENT_RATE", DefaultEventRate); err != nil {
		return nil, err
	}
	if cfg.EventBurst, err = envInt("EVENT_BURST", DefaultEventBurst); err != nil {
		return nil, err
	}
	if cfg.LedgerCapacity, err = envInt("LEDGER_CAPACITY", DefaultLedgerCapacity); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = envDuration("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout); err != nil {
		return nil, err
	}

	if cfg.MaxMessageSize <= 0 {
		return nil, fmt.Errorf("MAX_MESSAGE_SIZE must be positive, got %d", cfg.MaxMessageSize)
	}
	if cfg.SendBuffer <= 0 {
		return nil, fmt.Errorf("SEND_BUFFER must be positive, got %d", cfg.SendBuffer)
	}
	return cfg, nil
}

// OriginAllowed reports whether a websocket upgrade from origin is accepted.
// Requests without an Origin header (non-browser clients) are always allowed.
func (s *Server) OriginAllowed(origin string) bool {
	if len(s.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	for _, o := range s.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
