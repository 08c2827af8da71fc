// Package config loads DTNEX's runtime configuration from defaults,
// environment variables, and CLI flags, in that precedence order,
// following munonun-Web4's own env-var-then-flag layering. A config-file
// reader is not provided; environment variables and flags cover every
// tunable this agent has.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dtnex/internal/dtnerr"
)

// Config holds every tunable the agent reads at startup.
type Config struct {
	// Protocol surface.
	UpdateInterval        time.Duration
	ContactLifetime       time.Duration
	ContactTimeTolerance  time.Duration
	BundleTTL             time.Duration
	SharedKey             string
	LocalMetadataName     string
	LocalMetadataContact  string
	LocalGPSLat           *float64
	LocalGPSLon           *float64
	DisableMetadataExchange bool
	ServiceNumber         uint16
	AcceptLegacyMetadata  bool // gates acceptance of a legacy, shorter metadata payload encoding

	// Router adapter: reference SQLite backing.
	RouterDBPath string
	LocalNodeID  uint64
	Neighbors    []uint64

	// Transport adapter: QUIC backing.
	ListenAddr   string
	DevTLS       bool
	PeerAddrs    map[uint64]string

	// Peripheral, disabled-by-default features. Bpecho gets its own
	// transport listener, mirroring the reference DTN network daemon's
	// separate bpecho service access point distinct from its main one.
	BpechoServiceNumber uint16
	BpechoEnabled       bool
	BpechoListenAddr    string
	GraphEnabled        bool
	GraphFile           string

	// Ambient.
	DiagnosticsAddr string
	LogLevel        string
	ReplayCacheSize int
}

// Defaults matches the reference DTN network daemon's DEFAULT_* constants.
func Defaults() Config {
	return Config{
		UpdateInterval:       600 * time.Second,
		ContactLifetime:      3600 * time.Second,
		ContactTimeTolerance: 1800 * time.Second,
		BundleTTL:            1800 * time.Second,
		SharedKey:            "open",
		ServiceNumber:        12160,
		BpechoServiceNumber:  12161,
		AcceptLegacyMetadata: false,
		RouterDBPath:         ":memory:",
		LogLevel:             "info",
		ReplayCacheSize:      5000,
	}
}

// LoadFromEnv overrides c's fields from DTNEX_* environment variables.
// Only fields with a natural scalar env representation are covered here;
// PeerAddrs/Neighbors are expected to come from CLI flags or programmatic
// construction.
func (c *Config) LoadFromEnv() error {
	if v, ok := envDuration("DTNEX_UPDATE_INTERVAL"); ok {
		c.UpdateInterval = v
	}
	if v, ok := envDuration("DTNEX_CONTACT_LIFETIME"); ok {
		c.ContactLifetime = v
	}
	if v, ok := envDuration("DTNEX_CONTACT_TIME_TOLERANCE"); ok {
		c.ContactTimeTolerance = v
	}
	if v, ok := envDuration("DTNEX_BUNDLE_TTL"); ok {
		c.BundleTTL = v
	}
	if v := strings.TrimSpace(os.Getenv("DTNEX_SHARED_KEY")); v != "" {
		c.SharedKey = v
	}
	if v := strings.TrimSpace(os.Getenv("DTNEX_LOCAL_METADATA_NAME")); v != "" {
		c.LocalMetadataName = v
	}
	if v := strings.TrimSpace(os.Getenv("DTNEX_LOCAL_METADATA_CONTACT")); v != "" {
		c.LocalMetadataContact = v
	}
	if v, ok := envUint16("DTNEX_SERVICE_NUMBER"); ok {
		c.ServiceNumber = v
	}
	if v, ok := envBool("DTNEX_DISABLE_METADATA_EXCHANGE"); ok {
		c.DisableMetadataExchange = v
	}
	if v, ok := envBool("DTNEX_ACCEPT_LEGACY_METADATA"); ok {
		c.AcceptLegacyMetadata = v
	}
	if v := strings.TrimSpace(os.Getenv("DTNEX_ROUTER_DB_PATH")); v != "" {
		c.RouterDBPath = v
	}
	if v := strings.TrimSpace(os.Getenv("DTNEX_LISTEN_ADDR")); v != "" {
		c.ListenAddr = v
	}
	if v, ok := envBool("DTNEX_DEVTLS"); ok {
		c.DevTLS = v
	}
	if v, ok := envBool("DTNEX_BPECHO_ENABLED"); ok {
		c.BpechoEnabled = v
	}
	if v := strings.TrimSpace(os.Getenv("DTNEX_BPECHO_LISTEN_ADDR")); v != "" {
		c.BpechoListenAddr = v
	}
	if v, ok := envBool("DTNEX_GRAPH_ENABLED"); ok {
		c.GraphEnabled = v
	}
	if v := strings.TrimSpace(os.Getenv("DTNEX_GRAPH_FILE")); v != "" {
		c.GraphFile = v
	}
	if v := strings.TrimSpace(os.Getenv("DTNEX_DIAGNOSTICS_ADDR")); v != "" {
		c.DiagnosticsAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("DTNEX_LOG_LEVEL")); v != "" {
		c.LogLevel = v
	}
	if v, ok := envInt("DTNEX_REPLAY_CACHE_SIZE"); ok && v > 0 {
		c.ReplayCacheSize = v
	}
	return nil
}

// Validate reports dtnerr.ErrConfigInvalid for any field required at
// startup that is unparseable or missing: such a config is fatal, not
// something the agent can start up and work around.
func (c *Config) Validate() error {
	if c.LocalNodeID == 0 {
		return fmt.Errorf("%w: local node id must be non-zero", dtnerr.ErrConfigInvalid)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen address must be set", dtnerr.ErrConfigInvalid)
	}
	if c.SharedKey == "" {
		return fmt.Errorf("%w: shared key must be non-empty", dtnerr.ErrConfigInvalid)
	}
	if c.BundleTTL < c.UpdateInterval {
		return fmt.Errorf("%w: bundle_ttl (%s) must be >= update_interval (%s)", dtnerr.ErrConfigInvalid, c.BundleTTL, c.UpdateInterval)
	}
	if (c.LocalGPSLat == nil) != (c.LocalGPSLon == nil) {
		return fmt.Errorf("%w: local GPS coordinates must be both set or both absent", dtnerr.ErrConfigInvalid)
	}
	if c.BpechoEnabled && c.BpechoListenAddr == "" {
		return fmt.Errorf("%w: bpecho_listen_addr must be set when bpecho is enabled", dtnerr.ErrConfigInvalid)
	}
	if c.GraphEnabled && c.GraphFile == "" {
		return fmt.Errorf("%w: graph_file must be set when graph export is enabled", dtnerr.ErrConfigInvalid)
	}
	return nil
}

func envInt(key string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envUint16(key string) (uint16, bool) {
	n, ok := envInt(key)
	if !ok || n < 0 || n > 0xFFFF {
		return 0, false
	}
	return uint16(n), true
}

func envDuration(key string) (time.Duration, bool) {
	n, ok := envInt(key)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

func envBool(key string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false, false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return b, true
}
