package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full daemon configuration, loaded from an optional YAML
// file and overlaid with BGPD_-prefixed environment variables.
type Config struct {
	Service   ServiceConfig             `koanf:"service"`
	Listen    ListenConfig              `koanf:"listen"`
	FIFO      FIFOConfig                `koanf:"fifo"`
	Neighbors map[string]NeighborConfig `koanf:"neighbors"`
	Processes map[string]ProcessConfig  `koanf:"processes"`
	Audit     AuditConfig               `koanf:"audit"`
	EventBus  EventBusConfig            `koanf:"eventbus"`
}

type ServiceConfig struct {
	InstanceID             string `koanf:"instance_id"`
	RouterID               string `koanf:"router_id"`
	LocalASN               uint32 `koanf:"local_asn"`
	MetricsListen          string `koanf:"metrics_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

type ListenConfig struct {
	Addresses []string `koanf:"addresses"`
	MD5       string   `koanf:"md5"`
	TTLSecurity int    `koanf:"ttl_security"`
}

type FIFOConfig struct {
	InPath  string `koanf:"in_path"`
	OutPath string `koanf:"out_path"`
}

// NeighborConfig is one peer's configuration, keyed by name in the parent
// map. PeerRange allows a single configuration entry to accept any peer
// address within a CIDR block (listener-side dynamic neighbors).
type NeighborConfig struct {
	Description   string   `koanf:"description"`
	PeerAddress   string   `koanf:"peer_address"`
	PeerRange     string   `koanf:"peer_range"`
	LocalAddress  string   `koanf:"local_address"`
	PeerASN       uint32   `koanf:"peer_asn"`
	LocalASN      uint32   `koanf:"local_asn"`
	RouterID      string   `koanf:"router_id"`
	HoldTime      int      `koanf:"hold_time"`
	Passive       bool     `koanf:"passive"`
	Families      []string `koanf:"families"`
	AddPath       []string `koanf:"add_path"`
	MD5           string   `koanf:"md5"`
	TTLSecurity   int      `koanf:"ttl_security"`
	GracefulRestart bool   `koanf:"graceful_restart"`
	Group         string   `koanf:"group"`
}

// ProcessConfig describes a helper process this daemon forks and pipes
// API commands to/from (the FIFO and named-process mechanisms of the
// original ExaBGP design).
type ProcessConfig struct {
	Run          []string `koanf:"run"`
	Encoder      string   `koanf:"encoder"`
	RespawnOnDeath bool   `koanf:"respawn"`
	TerminateOnDeath bool `koanf:"terminate"`
	Neighbors    []string `koanf:"neighbors"`
}

type AuditConfig struct {
	DSN           string `koanf:"dsn"`
	MaxConns      int32  `koanf:"max_conns"`
	MinConns      int32  `koanf:"min_conns"`
	StoreRaw      bool   `koanf:"store_raw"`
	CompressRaw   bool   `koanf:"compress_raw"`
	BatchSize     int    `koanf:"batch_size"`
	FlushIntervalMs int  `koanf:"flush_interval_ms"`
	RetentionDays int    `koanf:"retention_days"`
	Timezone      string `koanf:"timezone"`
}

type EventBusConfig struct {
	Brokers  []string `koanf:"brokers"`
	Topic    string   `koanf:"topic"`
	ClientID string   `koanf:"client_id"`
	SASL     SASLConfig `koanf:"sasl"`
}

type SASLConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Mechanism string `koanf:"mechanism"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: BGPD_SERVICE__LOG_LEVEL → service.log_level
	if err := k.Load(env.Provider("BGPD_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "BGPD_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			InstanceID:             "bgpd-1",
			MetricsListen:          ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 10,
		},
		Listen: ListenConfig{
			Addresses: []string{"0.0.0.0:179"},
		},
		FIFO: FIFOConfig{
			InPath:  "/run/bgpd/bgpd.in",
			OutPath: "/run/bgpd/bgpd.out",
		},
		Audit: AuditConfig{
			MaxConns:        10,
			MinConns:        1,
			BatchSize:       200,
			FlushIntervalMs: 1000,
			RetentionDays:   30,
			Timezone:        "UTC",
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if len(cfg.Listen.Addresses) == 1 && strings.Contains(cfg.Listen.Addresses[0], ",") {
		cfg.Listen.Addresses = strings.Split(cfg.Listen.Addresses[0], ",")
	}
	if len(cfg.EventBus.Brokers) == 1 && strings.Contains(cfg.EventBus.Brokers[0], ",") {
		cfg.EventBus.Brokers = strings.Split(cfg.EventBus.Brokers[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Service.LocalASN == 0 {
		return fmt.Errorf("config: service.local_asn is required")
	}
	if c.Service.RouterID == "" {
		return fmt.Errorf("config: service.router_id is required")
	}
	if len(c.Listen.Addresses) == 0 {
		return fmt.Errorf("config: listen.addresses is required")
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	for name, n := range c.Neighbors {
		if n.PeerAddress == "" && n.PeerRange == "" {
			return fmt.Errorf("config: neighbor %q must set peer_address or peer_range", name)
		}
		if n.PeerAddress != "" && n.PeerRange != "" {
			return fmt.Errorf("config: neighbor %q cannot set both peer_address and peer_range", name)
		}
		if n.PeerASN == 0 {
			return fmt.Errorf("config: neighbor %q must set peer_asn", name)
		}
		if n.HoldTime < 0 {
			return fmt.Errorf("config: neighbor %q hold_time must be >= 0", name)
		}
	}
	for name, p := range c.Processes {
		if len(p.Run) == 0 {
			return fmt.Errorf("config: process %q must set run", name)
		}
		// A process that both respawns and is configured to terminate the
		// daemon on death is a contradiction: respawn implies the daemon
		// keeps running and expects the helper back, terminate implies it
		// doesn't. See the resolved open question in SPEC_FULL.md.
		if p.RespawnOnDeath && p.TerminateOnDeath {
			return fmt.Errorf("config: process %q cannot set both respawn and terminate", name)
		}
	}
	if c.Audit.DSN != "" {
		if c.Audit.MaxConns <= 0 {
			return fmt.Errorf("config: audit.max_conns must be > 0 when audit.dsn is set")
		}
		if c.Audit.MinConns < 0 {
			return fmt.Errorf("config: audit.min_conns must be >= 0")
		}
	}
	if c.EventBus.Topic != "" && len(c.EventBus.Brokers) == 0 {
		return fmt.Errorf("config: eventbus.brokers is required when eventbus.topic is set")
	}
	return nil
}
