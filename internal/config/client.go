package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Default client configuration values
const (
	DefaultServer = "ws://localhost:3210/ws"
	DefaultSTUN   = "stun:stun.l.google.com:19302"
)

// Client holds chat client configuration
type Client struct {
	// ServerURL is the websocket endpoint of the relay
	ServerURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to TURN candidates
	ForceRelay bool
}

// ClientOptions for loading config with CLI flag overrides
type ClientOptions struct {
	Server     string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
	EnvFile    string
}

// LoadClient reads configuration with the following priority:
// 1. CLI flags (passed via ClientOptions) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func LoadClient(opts ClientOptions) (*Client, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	serverURL, err := websocketURL(firstNonEmpty(opts.Server, os.Getenv("SERVER_URL"), DefaultServer))
	if err != nil {
		return nil, err
	}

	cfg := &Client{
		ServerURL:  serverURL,
		STUNServer: firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer: firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:   firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:   firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
		ForceRelay: opts.ForceRelay,
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}
	return cfg, nil
}

// websocketURL accepts a full ws(s)/http(s) URL or a bare host[:port] and
// returns the relay's websocket endpoint.
func websocketURL(s string) (string, error) {
	if !strings.Contains(s, "://") {
		s = "ws://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q: missing host", s)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// StatsURL returns the HTTP stats endpoint next to the websocket endpoint.
func (c *Client) StatsURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}
	if u.Scheme == "wss" {
		u.Scheme = "https"
	} else {
		u.Scheme = "http"
	}
	u.Path = "/stats"
	return u.String()
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Client) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Client) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Client) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
