package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			InstanceID:             "test",
			RouterID:               "192.0.2.1",
			LocalASN:               65001,
			MetricsListen:          ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 10,
		},
		Listen: ListenConfig{
			Addresses: []string{"0.0.0.0:179"},
		},
		Neighbors: map[string]NeighborConfig{
			"peer1": {
				PeerAddress: "192.0.2.2",
				PeerASN:     65002,
				HoldTime:    180,
			},
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_NoLocalASN(t *testing.T) {
	cfg := validConfig()
	cfg.Service.LocalASN = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing local_asn")
	}
}

func TestValidate_NoRouterID(t *testing.T) {
	cfg := validConfig()
	cfg.Service.RouterID = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing router_id")
	}
}

func TestValidate_NoListenAddresses(t *testing.T) {
	cfg := validConfig()
	cfg.Listen.Addresses = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty listen addresses")
	}
}

func TestValidate_ShutdownTimeoutZero(t *testing.T) {
	cfg := validConfig()
	cfg.Service.ShutdownTimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for shutdown_timeout_seconds = 0")
	}
}

func TestValidate_NeighborMissingAddressAndRange(t *testing.T) {
	cfg := validConfig()
	cfg.Neighbors["peer1"] = NeighborConfig{PeerASN: 65002}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for neighbor with neither peer_address nor peer_range")
	}
}

func TestValidate_NeighborBothAddressAndRange(t *testing.T) {
	cfg := validConfig()
	n := cfg.Neighbors["peer1"]
	n.PeerRange = "192.0.2.0/24"
	cfg.Neighbors["peer1"] = n
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for neighbor setting both peer_address and peer_range")
	}
}

func TestValidate_NeighborMissingPeerASN(t *testing.T) {
	cfg := validConfig()
	n := cfg.Neighbors["peer1"]
	n.PeerASN = 0
	cfg.Neighbors["peer1"] = n
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for neighbor missing peer_asn")
	}
}

func TestValidate_ProcessRespawnAndTerminateContradiction(t *testing.T) {
	cfg := validConfig()
	cfg.Processes = map[string]ProcessConfig{
		"helper1": {
			Run:              []string{"/usr/bin/helper"},
			RespawnOnDeath:   true,
			TerminateOnDeath: true,
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for contradictory respawn+terminate process config")
	}
}

func TestValidate_AuditRequiresPositiveMaxConns(t *testing.T) {
	cfg := validConfig()
	cfg.Audit.DSN = "postgres://localhost/audit"
	cfg.Audit.MaxConns = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for audit.max_conns <= 0 with audit enabled")
	}
}

func TestValidate_EventBusTopicRequiresBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.EventBus.Topic = "bgp-events"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for eventbus.topic without brokers")
	}
}

func writeMinimalYAML(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	data := `
service:
  router_id: "192.0.2.1"
  local_asn: 65001
neighbors:
  peer1:
    peer_address: "192.0.2.2"
    peer_asn: 65002
`
	if err := os.WriteFile(p, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_EnvOverrideRouterID(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("BGPD_SERVICE__ROUTER_ID", "198.51.100.1")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service.RouterID != "198.51.100.1" {
		t.Errorf("expected router_id from env, got %q", cfg.Service.RouterID)
	}
}

func TestLoad_EnvOverrideLogLevel(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("BGPD_SERVICE__LOG_LEVEL", "debug")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service.LogLevel != "debug" {
		t.Errorf("expected log_level 'debug' from env, got %q", cfg.Service.LogLevel)
	}
}

func TestLoad_EnvZeroLocalASNFailsValidation(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("BGPD_SERVICE__LOCAL_ASN", "0")

	_, err := Load(p)
	if err == nil {
		t.Fatal("expected validation error for local_asn=0 via env")
	}
}
