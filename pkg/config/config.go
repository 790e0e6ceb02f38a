// Package config provides configuration handling for the TCP/IP protocol
// stack daemon: which network interfaces to bring up, which routes to
// install, the TCP tuning knobs, and logging.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/qmmzzdx/tcpip-network-protocol-stack/pkg/logging"
	"gopkg.in/yaml.v3"
)

// LoggingConfig contains configuration for logging.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// File is the log file path.
	File string `json:"file" yaml:"file"`

	// MaxSize is the maximum size of the log file in megabytes.
	MaxSize int `json:"maxSize" yaml:"maxSize"`

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `json:"maxBackups" yaml:"maxBackups"`

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int `json:"maxAge" yaml:"maxAge"`
}

// InterfaceConfig describes one NetworkInterface to bring up.
type InterfaceConfig struct {
	// Name is a local identifier, used only for logging.
	Name string `json:"name" yaml:"name"`

	// MAC is the interface's hardware address, "aa:bb:cc:dd:ee:ff".
	MAC string `json:"mac" yaml:"mac"`

	// IP is the interface's IPv4 address, dotted quad.
	IP string `json:"ip" yaml:"ip"`
}

// RouteConfig describes one route to install in the Router.
type RouteConfig struct {
	// Prefix is the route's network address, dotted quad.
	Prefix string `json:"prefix" yaml:"prefix"`

	// PrefixLength is the number of significant bits in Prefix, 0-32.
	PrefixLength int `json:"prefixLength" yaml:"prefixLength"`

	// NextHop is the gateway IP to forward matching datagrams to. Empty
	// means forward directly to the datagram's own destination (the
	// route is for a directly-connected subnet).
	NextHop string `json:"nextHop" yaml:"nextHop"`

	// InterfaceIndex is the index, as returned by Router.AddInterface, of
	// the outgoing interface for this route.
	InterfaceIndex int `json:"interfaceIndex" yaml:"interfaceIndex"`
}

// TCPConfig holds the TCP tuning knobs. Validate checks them, but no other
// package reads them: tcp.Sender uses the constants tcp.MaxPayloadSize and
// tcp.MaxRetransmissionAttempts, a TCPPeer takes its RTO, capacities and
// ISN from peer.Config, and tcpstackd creates no TCPPeers.
type TCPConfig struct {
	// RTTimeoutMs is the initial retransmission timeout in milliseconds.
	RTTimeoutMs uint64 `json:"rtTimeoutMs" yaml:"rtTimeoutMs"`

	// RecvCapacity is the inbound ByteStream's capacity in bytes.
	RecvCapacity uint64 `json:"recvCapacity" yaml:"recvCapacity"`

	// SendCapacity is the outbound ByteStream's capacity in bytes.
	SendCapacity uint64 `json:"sendCapacity" yaml:"sendCapacity"`

	// ISN is the initial sequence number new peers start from, in tests
	// and deterministic deployments; production peers should randomize
	// this per-connection rather than rely on the config default.
	ISN uint32 `json:"isn" yaml:"isn"`

	// MaxPayloadSize caps the payload size of any one outgoing segment.
	MaxPayloadSize int `json:"maxPayloadSize" yaml:"maxPayloadSize"`

	// MaxRetransmissionAttempts is the number of consecutive backed-off
	// retransmissions allowed before a connection is considered failed.
	MaxRetransmissionAttempts int `json:"maxRetransmissionAttempts" yaml:"maxRetransmissionAttempts"`
}

// Config represents the complete daemon configuration.
type Config struct {
	// Logging contains the logging configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Interfaces lists the NetworkInterfaces to bring up. Must be
	// non-empty.
	Interfaces []InterfaceConfig `json:"interfaces" yaml:"interfaces"`

	// Routes lists the routes to install once the interfaces above
	// exist.
	Routes []RouteConfig `json:"routes" yaml:"routes"`

	// TCP holds the shared TCPPeer tuning knobs.
	TCP TCPConfig `json:"tcp" yaml:"tcp"`
}

// DefaultConfig returns the default configuration. It carries no
// interfaces; callers must add at least one before Validate succeeds.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Interfaces: []InterfaceConfig{},
		Routes:     []RouteConfig{},
		TCP: TCPConfig{
			RTTimeoutMs:               1000,
			RecvCapacity:              64000,
			SendCapacity:              64000,
			ISN:                       137,
			MaxPayloadSize:            1000,
			MaxRetransmissionAttempts: 8,
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file, based on its
// extension.
func LoadFromFile(path string, config *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch {
	case strings.HasSuffix(path, ".json"):
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	return nil
}

// LoadFromEnv overlays environment variables onto config.
func LoadFromEnv(config *Config) {
	if val := os.Getenv("LOGGING_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOGGING_FILE"); val != "" {
		config.Logging.File = val
	}
	if val := os.Getenv("LOGGING_MAX_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Logging.MaxSize = n
		}
	}
	if val := os.Getenv("LOGGING_MAX_BACKUPS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Logging.MaxBackups = n
		}
	}
	if val := os.Getenv("LOGGING_MAX_AGE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Logging.MaxAge = n
		}
	}

	if val := os.Getenv("TCP_RT_TIMEOUT_MS"); val != "" {
		if n, err := strconv.ParseUint(val, 10, 64); err == nil {
			config.TCP.RTTimeoutMs = n
		}
	}
	if val := os.Getenv("TCP_RECV_CAPACITY"); val != "" {
		if n, err := strconv.ParseUint(val, 10, 64); err == nil {
			config.TCP.RecvCapacity = n
		}
	}
	if val := os.Getenv("TCP_SEND_CAPACITY"); val != "" {
		if n, err := strconv.ParseUint(val, 10, 64); err == nil {
			config.TCP.SendCapacity = n
		}
	}
	if val := os.Getenv("TCP_ISN"); val != "" {
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.TCP.ISN = uint32(n)
		}
	}
	if val := os.Getenv("TCP_MAX_PAYLOAD_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.TCP.MaxPayloadSize = n
		}
	}
	if val := os.Getenv("TCP_MAX_RETX_ATTEMPTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.TCP.MaxRetransmissionAttempts = n
		}
	}
}

// Validate checks the configuration for internal consistency, returning
// the first violated invariant it finds.
func (c *Config) Validate() error {
	if len(c.Interfaces) == 0 {
		return fmt.Errorf("at least one interface must be configured")
	}
	for _, ifc := range c.Interfaces {
		if ifc.Name == "" {
			return fmt.Errorf("interface name cannot be empty")
		}
		if _, err := net.ParseMAC(ifc.MAC); err != nil {
			return fmt.Errorf("invalid MAC address for interface %s: %s", ifc.Name, ifc.MAC)
		}
		if net.ParseIP(ifc.IP) == nil {
			return fmt.Errorf("invalid IP address for interface %s: %s", ifc.Name, ifc.IP)
		}
	}

	for i, rt := range c.Routes {
		if rt.PrefixLength < 0 || rt.PrefixLength > 32 {
			return fmt.Errorf("route %d: invalid prefix length: %d", i, rt.PrefixLength)
		}
		if net.ParseIP(rt.Prefix) == nil {
			return fmt.Errorf("route %d: invalid prefix address: %s", i, rt.Prefix)
		}
		if rt.NextHop != "" && net.ParseIP(rt.NextHop) == nil {
			return fmt.Errorf("route %d: invalid next-hop address: %s", i, rt.NextHop)
		}
		if rt.InterfaceIndex < 0 || rt.InterfaceIndex >= len(c.Interfaces) {
			return fmt.Errorf("route %d: interface index %d out of range", i, rt.InterfaceIndex)
		}
	}

	if c.TCP.MaxRetransmissionAttempts <= 0 || c.TCP.MaxRetransmissionAttempts > 64 {
		return fmt.Errorf("invalid MAX_RETX_ATTEMPTS: %d", c.TCP.MaxRetransmissionAttempts)
	}
	if c.TCP.MaxPayloadSize <= 0 {
		return fmt.Errorf("invalid MAX_PAYLOAD_SIZE: %d", c.TCP.MaxPayloadSize)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	return nil
}

// ApplyLogging applies the logging configuration to the global logger.
func (c *Config) ApplyLogging() error {
	var level logging.Level
	switch c.Logging.Level {
	case "debug":
		level = logging.DebugLevel
	case "info":
		level = logging.InfoLevel
	case "warn":
		level = logging.WarnLevel
	case "error":
		level = logging.ErrorLevel
	default:
		level = logging.InfoLevel
	}
	logging.SetLevel(level)

	if c.Logging.File != "" {
		dir := "."
		if lastSlash := strings.LastIndex(c.Logging.File, "/"); lastSlash != -1 {
			dir = c.Logging.File[:lastSlash]
		}
		filename := c.Logging.File
		if lastSlash := strings.LastIndex(c.Logging.File, "/"); lastSlash != -1 {
			filename = c.Logging.File[lastSlash+1:]
		}

		err := logging.EnableFileLogging(
			dir,
			filename,
			c.Logging.MaxSize,
			c.Logging.MaxBackups,
			c.Logging.MaxAge,
		)
		if err != nil {
			return fmt.Errorf("failed to enable file logging: %w", err)
		}
	}

	return nil
}

// SaveToFile saves the configuration to a JSON or YAML file, based on its
// extension.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch {
	case strings.HasSuffix(path, ".json"):
		data, err = json.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		data, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	dir := "."
	if lastSlash := strings.LastIndex(path, "/"); lastSlash != -1 {
		dir = path[:lastSlash]
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
