package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Transport names.
const (
	TransportNATS   = "nats"
	TransportMemory = "memory"
)

// ClientConfig holds the connection settings
type ClientConfig struct {
	Transport   string   `yaml:"transport"` // nats or memory
	Servers     []string `yaml:"servers"`
	NoRandomize bool     `yaml:"no_randomize"`
	Name        string   `yaml:"name"`
	CredsFile   string   `yaml:"creds_file"`

	// Unconsumed messages/bytes per subscription before it is a slow
	// consumer. Negative disables the limit.
	PendingMsgsLimit  int `yaml:"pending_msgs_limit"`
	PendingBytesLimit int `yaml:"pending_bytes_limit"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
	FlushTimeout   time.Duration `yaml:"flush_timeout"`
	MaxReconnects  int           `yaml:"max_reconnects"` // -1 retries forever
	ReconnectWait  time.Duration `yaml:"reconnect_wait"`
	InboxPrefix    string        `yaml:"inbox_prefix"`
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Transport:         TransportNATS,
		Servers:           []string{nats.DefaultURL},
		Name:              "natsub",
		PendingMsgsLimit:  nats.DefaultSubPendingMsgsLimit,
		PendingBytesLimit: nats.DefaultSubPendingBytesLimit,
		RequestTimeout:    2 * time.Second,
		FlushTimeout:      10 * time.Second,
		MaxReconnects:     nats.DefaultMaxReconnect,
		ReconnectWait:     nats.DefaultReconnectWait,
		InboxPrefix:       "_INBOX",
	}
}

// ApplyDefaults fills in missing values with defaults
func (c *ClientConfig) ApplyDefaults() {
	d := DefaultClientConfig()
	if c.Transport == "" {
		c.Transport = d.Transport
	}
	if len(c.Servers) == 0 && c.Transport == TransportNATS {
		c.Servers = d.Servers
	}
	if c.PendingMsgsLimit == 0 {
		c.PendingMsgsLimit = d.PendingMsgsLimit
	}
	if c.PendingBytesLimit == 0 {
		c.PendingBytesLimit = d.PendingBytesLimit
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.FlushTimeout == 0 {
		c.FlushTimeout = d.FlushTimeout
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = d.ReconnectWait
	}
	if c.InboxPrefix == "" {
		c.InboxPrefix = d.InboxPrefix
	}
}

// ApplyEnvOverrides applies environment variable overrides
func (c *ClientConfig) ApplyEnvOverrides() {
	if val := os.Getenv("NATSUB_TRANSPORT"); val != "" {
		c.Transport = val
	}
	if val := os.Getenv("NATSUB_SERVERS"); val != "" {
		c.Servers = strings.Split(val, ",")
	}
	if val := os.Getenv("NATSUB_NAME"); val != "" {
		c.Name = val
	}
	if val := os.Getenv("NATSUB_CREDS_FILE"); val != "" {
		c.CredsFile = val
	}
	if val := os.Getenv("NATSUB_MAX_RECONNECTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.MaxReconnects = n
		}
	}
	if val := os.Getenv("NATSUB_REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.RequestTimeout = d
		}
	}
}

// ResolvePaths resolves the credentials file against the config directory
func (c *ClientConfig) ResolvePaths(configDir string) {
	if c.CredsFile != "" && !filepath.IsAbs(c.CredsFile) {
		c.CredsFile = filepath.Clean(filepath.Join(configDir, c.CredsFile))
	}
}

// Validate validates the configuration
func (c *ClientConfig) Validate() error {
	switch c.Transport {
	case TransportNATS:
		if len(c.Servers) == 0 {
			return fmt.Errorf("client.servers cannot be empty for the %s transport", TransportNATS)
		}
	case TransportMemory:
	default:
		return fmt.Errorf("invalid client transport: %s (must be %s or %s)", c.Transport, TransportNATS, TransportMemory)
	}

	if c.RequestTimeout < 0 {
		return fmt.Errorf("client.request_timeout must not be negative")
	}
	if c.FlushTimeout < 0 {
		return fmt.Errorf("client.flush_timeout must not be negative")
	}
	if c.ReconnectWait < 0 {
		return fmt.Errorf("client.reconnect_wait must not be negative")
	}
	return nil
}
