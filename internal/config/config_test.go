package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Scan.Interval != 0 {
		t.Errorf("Scan.Interval = %d, want 0", cfg.Scan.Interval)
	}
	if cfg.Scan.OffInterval != 30 {
		t.Errorf("Scan.OffInterval = %d, want 30", cfg.Scan.OffInterval)
	}
	if cfg.Scan.ResolveTimeout != 10 {
		t.Errorf("Scan.ResolveTimeout = %d, want 10", cfg.Scan.ResolveTimeout)
	}
	if cfg.Scan.ListenWindow != 30 {
		t.Errorf("Scan.ListenWindow = %d, want 30", cfg.Scan.ListenWindow)
	}
	if cfg.MQTT.Enabled {
		t.Error("MQTT should be disabled by default")
	}
	if cfg.MQTT.Port != 1883 {
		t.Errorf("MQTT.Port = %d, want 1883", cfg.MQTT.Port)
	}
	if cfg.MQTT.DiscoveryPrefix != "homeassistant" {
		t.Errorf("MQTT.DiscoveryPrefix = %q, want %q", cfg.MQTT.DiscoveryPrefix, "homeassistant")
	}
	if cfg.History.Enabled {
		t.Error("History should be disabled by default")
	}
	if cfg.History.Path == "" {
		t.Error("History.Path should not be empty")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
log_level: debug
scan:
  interval: 300
  off_interval: 60
  resolve_timeout: 15
  listen_window: 45
devices:
  - address: "AA:BB:CC:DD:EE:FF"
    name: kitchen
  - address: "11:22:33:44:55:66"
    name: pantry
mqtt:
  enabled: true
  broker: broker.local
  port: 8883
  topic_prefix: scales
history:
  enabled: true
  path: /tmp/readings.db
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.Scan.Interval != 300 {
		t.Errorf("Scan.Interval = %d, want 300", cfg.Scan.Interval)
	}
	if cfg.Scan.OffInterval != 60 {
		t.Errorf("Scan.OffInterval = %d, want 60", cfg.Scan.OffInterval)
	}
	if len(cfg.Devices) != 2 {
		t.Fatalf("len(Devices) = %d, want 2", len(cfg.Devices))
	}
	if cfg.Devices[0].Address != "AA:BB:CC:DD:EE:FF" || cfg.Devices[0].Name != "kitchen" {
		t.Errorf("Devices[0] = %+v, want the kitchen scale", cfg.Devices[0])
	}
	if !cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled = false, want true")
	}
	if cfg.MQTT.Broker != "broker.local" {
		t.Errorf("MQTT.Broker = %q, want %q", cfg.MQTT.Broker, "broker.local")
	}
	if cfg.MQTT.Port != 8883 {
		t.Errorf("MQTT.Port = %d, want 8883", cfg.MQTT.Port)
	}
	if cfg.MQTT.TopicPrefix != "scales" {
		t.Errorf("MQTT.TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "scales")
	}
	if !cfg.History.Enabled {
		t.Error("History.Enabled = false, want true")
	}
	if cfg.History.Path != "/tmp/readings.db" {
		t.Errorf("History.Path = %q, want %q", cfg.History.Path, "/tmp/readings.db")
	}
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	yamlContent := `
devices:
  - address: "AA:BB:CC:DD:EE:FF"
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want default %q", cfg.LogLevel, "info")
	}
	if cfg.Scan.OffInterval != 30 {
		t.Errorf("Scan.OffInterval = %d, want default 30", cfg.Scan.OffInterval)
	}
	if cfg.MQTT.ClientID != "sencorscale" {
		t.Errorf("MQTT.ClientID = %q, want default %q", cfg.MQTT.ClientID, "sencorscale")
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	yamlContent := `
history:
  enabled: true
  path: ~/scales/history.db
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := filepath.Join(home, "scales/history.db")
	if cfg.History.Path != expected {
		t.Errorf("History.Path = %q, want %q", cfg.History.Path, expected)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "valid with devices",
			modify: func(c *Config) {
				c.Devices = []DeviceConfig{{Address: "AA:BB", Name: "kitchen"}}
			},
			wantErr: false,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
		{
			name:    "negative scan interval",
			modify:  func(c *Config) { c.Scan.Interval = -1 },
			wantErr: true,
		},
		{
			name:    "negative off interval",
			modify:  func(c *Config) { c.Scan.OffInterval = -5 },
			wantErr: true,
		},
		{
			name: "empty device address",
			modify: func(c *Config) {
				c.Devices = []DeviceConfig{{Address: "", Name: "kitchen"}}
			},
			wantErr: true,
		},
		{
			name: "duplicate device address",
			modify: func(c *Config) {
				c.Devices = []DeviceConfig{
					{Address: "AA:BB", Name: "kitchen"},
					{Address: "aa:bb", Name: "pantry"},
				}
			},
			wantErr: true,
		},
		{
			name: "mqtt enabled without broker",
			modify: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.Broker = ""
			},
			wantErr: true,
		},
		{
			name: "mqtt port out of range",
			modify: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.Port = 70000
			},
			wantErr: true,
		},
		{
			name: "mqtt disabled ignores broker",
			modify: func(c *Config) {
				c.MQTT.Enabled = false
				c.MQTT.Broker = ""
			},
			wantErr: false,
		},
		{
			name: "history enabled without path",
			modify: func(c *Config) {
				c.History.Enabled = true
				c.History.Path = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
