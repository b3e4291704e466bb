// Package config manages godlep daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete godlep configuration.
type Config struct {
	HTTP       HTTPConfig        `koanf:"http"`
	Metrics    MetricsConfig     `koanf:"metrics"`
	Log        LogConfig         `koanf:"log"`
	DLEP       DLEPConfig        `koanf:"dlep"`
	Interfaces []InterfaceConfig `koanf:"interfaces"`
}

// HTTPConfig holds the session/destination introspection API server
// configuration (internal/server).
type HTTPConfig struct {
	// Addr is the introspection API listen address (e.g., ":8854").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// DLEPConfig holds the default DLEP session parameters. These can be
// overridden per interface in Interfaces.
type DLEPConfig struct {
	// DefaultHeartbeatInterval is the default HEARTBEAT_INTERVAL this
	// daemon proposes.
	DefaultHeartbeatInterval time.Duration `koanf:"default_heartbeat_interval"`

	// DefaultDiscoveryInterval is the default PEER_DISCOVERY cadence for
	// router-role interfaces.
	DefaultDiscoveryInterval time.Duration `koanf:"default_discovery_interval"`

	// PeerType is the free-text peer_type string advertised in
	// PEER_INITIALIZATION(_ACK).
	PeerType string `koanf:"peer_type"`
}

// InterfaceConfig describes one declarative DLEP interface from the
// configuration file. Each entry starts a radio- or router-role
// session engine on daemon startup and SIGHUP reload.
type InterfaceConfig struct {
	// Name is the network interface name (e.g., "wlan0").
	Name string `koanf:"name"`

	// Role is "radio" or "router".
	Role string `koanf:"role"`

	// DiscoveryAddr is the multicast/broadcast address router-role
	// interfaces send PEER_DISCOVERY to (e.g., "224.0.0.117:854").
	// Both roles bind their discovery socket to its port; radio-role
	// interfaces take only the port from it and join the default DLEP
	// multicast groups.
	DiscoveryAddr string `koanf:"discovery_addr"`

	// BindAddr is the local unicast address this interface's discovery
	// socket joins its multicast group from, and the address a radio
	// session's TCP listener binds to and advertises as its PEER_OFFER
	// conpoint. A router session's TCP dial does not use it.
	BindAddr string `koanf:"bind_addr"`

	// TCPPort is the TCP port a radio interface listens on and
	// advertises in its PEER_OFFER conpoint. Router interfaces dial the
	// port the selected conpoint names instead. Defaults
	// to RFC 8175's registered 854 when zero.
	TCPPort uint16 `koanf:"tcp_port"`

	// HeartbeatInterval overrides DLEPConfig.DefaultHeartbeatInterval
	// for this interface, when nonzero.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`

	// DiscoveryInterval overrides DLEPConfig.DefaultDiscoveryInterval
	// for this interface, when nonzero.
	DiscoveryInterval time.Duration `koanf:"discovery_interval"`

	// SendNeighbors enables mirroring non-proxied L2 neighbors as
	// DESTINATION_* signals (radio role only).
	SendNeighbors bool `koanf:"send_neighbors"`

	// SendProxied enables mirroring proxied L2 neighbors.
	SendProxied bool `koanf:"send_proxied"`

	// ExtensionIDs lists the non-base extension ids this interface
	// offers/accepts during negotiation.
	ExtensionIDs []uint16 `koanf:"extension_ids"`
}

// DiscoveryAddrPort parses DiscoveryAddr as a netip.AddrPort.
func (ic InterfaceConfig) DiscoveryAddrPort() (netip.AddrPort, error) {
	if ic.DiscoveryAddr == "" {
		return netip.AddrPort{}, fmt.Errorf("interface %q: %w", ic.Name, ErrInvalidDiscoveryAddr)
	}
	ap, err := netip.ParseAddrPort(ic.DiscoveryAddr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("parse interface %q discovery_addr %q: %w", ic.Name, ic.DiscoveryAddr, err)
	}
	return ap, nil
}

// effectiveTCPPort returns TCPPort, defaulting to the IANA-registered
// DLEP port 854 when unset.
func (ic InterfaceConfig) effectiveTCPPort() uint16 {
	if ic.TCPPort == 0 {
		return 854
	}
	return ic.TCPPort
}

// TCPAddrPort parses BindAddr and combines it with effectiveTCPPort
// into the address a radio session listens on. Router-role interfaces
// use only its address, as the bind address of their discovery socket.
func (ic InterfaceConfig) TCPAddrPort() (netip.AddrPort, error) {
	if ic.BindAddr == "" {
		return netip.AddrPort{}, fmt.Errorf("interface %q: %w", ic.Name, ErrInvalidBindAddr)
	}
	addr, err := netip.ParseAddr(ic.BindAddr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("parse interface %q bind_addr %q: %w", ic.Name, ic.BindAddr, err)
	}
	return netip.AddrPortFrom(addr, ic.effectiveTCPPort()), nil
}

// InterfaceKey returns a unique identifier for the interface, used for
// diffing on SIGHUP reload.
func (ic InterfaceConfig) InterfaceKey() string {
	return ic.Name + "|" + ic.Role
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
//
// The 1s heartbeat and 5s discovery defaults are conservative starting
// points: the ack-timeout (2x heartbeat) and discovery cadence both
// scale with whatever this daemon proposes, so a link-appropriate
// value belongs in the per-interface override, not the default.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr: ":8854",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		DLEP: DLEPConfig{
			DefaultHeartbeatInterval: 1 * time.Second,
			DefaultDiscoveryInterval: 5 * time.Second,
			PeerType:                 "godlep",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for godlep configuration.
// Variables are named GODLEP_<section>_<key>, e.g., GODLEP_HTTP_ADDR.
const envPrefix = "GODLEP_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GODLEP_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	GODLEP_HTTP_ADDR     -> http.addr
//	GODLEP_METRICS_ADDR  -> metrics.addr
//	GODLEP_METRICS_PATH  -> metrics.path
//	GODLEP_LOG_LEVEL     -> log.level
//	GODLEP_LOG_FORMAT    -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GODLEP_HTTP_ADDR -> http.addr.
// Strips the GODLEP_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"http.addr":                       defaults.HTTP.Addr,
		"metrics.addr":                    defaults.Metrics.Addr,
		"metrics.path":                    defaults.Metrics.Path,
		"log.level":                       defaults.Log.Level,
		"log.format":                      defaults.Log.Format,
		"dlep.default_heartbeat_interval": defaults.DLEP.DefaultHeartbeatInterval.String(),
		"dlep.default_discovery_interval": defaults.DLEP.DefaultDiscoveryInterval.String(),
		"dlep.peer_type":                  defaults.DLEP.PeerType,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyHTTPAddr indicates the introspection API listen address is empty.
	ErrEmptyHTTPAddr = errors.New("http.addr must not be empty")

	// ErrInvalidHeartbeatDefault indicates the default heartbeat interval is invalid.
	ErrInvalidHeartbeatDefault = errors.New("dlep.default_heartbeat_interval must be > 0")

	// ErrInvalidDiscoveryDefault indicates the default discovery interval is invalid.
	ErrInvalidDiscoveryDefault = errors.New("dlep.default_discovery_interval must be > 0")

	// ErrInvalidDiscoveryAddr indicates an interface's discovery address is missing or malformed.
	ErrInvalidDiscoveryAddr = errors.New("interface discovery_addr is invalid or empty")

	// ErrInvalidBindAddr indicates an interface's unicast bind address is missing or malformed.
	ErrInvalidBindAddr = errors.New("interface bind_addr is invalid or empty")

	// ErrInvalidInterfaceRole indicates an interface has an unrecognized role.
	ErrInvalidInterfaceRole = errors.New("interface role must be radio or router")

	// ErrDuplicateInterfaceKey indicates two interfaces share the same (name, role) key.
	ErrDuplicateInterfaceKey = errors.New("duplicate interface key")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.HTTP.Addr == "" {
		return ErrEmptyHTTPAddr
	}

	if cfg.DLEP.DefaultHeartbeatInterval <= 0 {
		return ErrInvalidHeartbeatDefault
	}

	if cfg.DLEP.DefaultDiscoveryInterval <= 0 {
		return ErrInvalidDiscoveryDefault
	}

	return validateInterfaces(cfg.Interfaces)
}

// ValidInterfaceRoles lists the recognized role strings.
var ValidInterfaceRoles = map[string]bool{
	"radio":  true,
	"router": true,
}

// validateInterfaces checks each declarative interface entry for correctness.
func validateInterfaces(ifaces []InterfaceConfig) error {
	seen := make(map[string]struct{}, len(ifaces))

	for i, ic := range ifaces {
		if !ValidInterfaceRoles[ic.Role] {
			return fmt.Errorf("interfaces[%d] role %q: %w", i, ic.Role, ErrInvalidInterfaceRole)
		}

		if _, err := ic.DiscoveryAddrPort(); err != nil {
			return fmt.Errorf("interfaces[%d]: %w", i, err)
		}

		if _, err := ic.TCPAddrPort(); err != nil {
			return fmt.Errorf("interfaces[%d]: %w", i, err)
		}

		key := ic.InterfaceKey()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("interfaces[%d] key %q: %w", i, key, ErrDuplicateInterfaceKey)
		}
		seen[key] = struct{}{}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
