package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
lab:
  id: "test-lab"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
chain:
  id: "chain-a"
  r_est_ohm: 10000
  margin: 5
  guard_fail_open: false
instruments:
  mfli:
    device: "dev4321"
    demod: 1
    auxouts:
      X: 0
      Y: 1
  preamp:
    gain_v_per_v: 1000
    coupling: "DC"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Lab.ID != "test-lab" {
		t.Errorf("Lab.ID = %q, want %q", cfg.Lab.ID, "test-lab")
	}
	if cfg.Chain.REstOhm == nil || *cfg.Chain.REstOhm != 10000 {
		t.Errorf("Chain.REstOhm = %v, want 10000", cfg.Chain.REstOhm)
	}
	if cfg.Chain.Margin != 5 {
		t.Errorf("Chain.Margin = %v, want 5", cfg.Chain.Margin)
	}
	if cfg.Chain.GuardFailOpen {
		t.Error("Chain.GuardFailOpen = true, want false")
	}
	// Defaults survive when the file leaves a field out.
	if cfg.Chain.AmplitudeConvention != "rms" {
		t.Errorf("Chain.AmplitudeConvention = %q, want %q", cfg.Chain.AmplitudeConvention, "rms")
	}
	if cfg.Instruments.Converter.GmAPerV != 1e-3 {
		t.Errorf("Converter.GmAPerV = %v, want 1e-3", cfg.Instruments.Converter.GmAPerV)
	}
	if cfg.Instruments.MFLI.AuxOuts["Y"] != 1 {
		t.Errorf("MFLI.AuxOuts[Y] = %d, want 1", cfg.Instruments.MFLI.AuxOuts["Y"])
	}
	if cfg.Instruments.Preamp.Coupling != "DC" {
		t.Errorf("Preamp.Coupling = %q, want DC", cfg.Instruments.Preamp.Coupling)
	}
}

func TestLoad_REstUnsetByDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, "lab:\n  id: bench\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Chain.REstOhm != nil {
		t.Errorf("Chain.REstOhm = %v, want nil", *cfg.Chain.REstOhm)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
lab:
  id: "bench"
chain:
  margin: 0.5
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for margin < 1, got nil")
	}
	if !strings.Contains(err.Error(), "chain.margin") {
		t.Errorf("Load() error = %v, want mention of chain.margin", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	negative := -1.0

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing lab ID",
			mutate:  func(c *Config) { c.Lab.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "port ignored when api disabled",
			mutate:  func(c *Config) { c.API.Enabled = false; c.API.Port = 0 },
			wantErr: false,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
		{
			name:    "negative r_est",
			mutate:  func(c *Config) { c.Chain.REstOhm = &negative },
			wantErr: true,
		},
		{
			name:    "unknown amplitude convention",
			mutate:  func(c *Config) { c.Chain.AmplitudeConvention = "dbm" },
			wantErr: true,
		},
		{
			name:    "unknown polarity",
			mutate:  func(c *Config) { c.Chain.ExcitationPolarity = "both" },
			wantErr: true,
		},
		{
			name:    "negative transconductance",
			mutate:  func(c *Config) { c.Instruments.Converter.GmAPerV = -1e-3 },
			wantErr: true,
		},
		{
			name:    "converter phase out of range",
			mutate:  func(c *Config) { c.Instruments.Converter.PhaseDeg = 270 },
			wantErr: true,
		},
		{
			name:    "bad coupling",
			mutate:  func(c *Config) { c.Instruments.Preamp.Coupling = "GND" },
			wantErr: true,
		},
		{
			name:    "unknown auxout",
			mutate:  func(c *Config) { c.Instruments.MFLI.AuxOuts = map[string]int{"Z": 0} },
			wantErr: true,
		},
		{
			name:    "auxout index out of range",
			mutate:  func(c *Config) { c.Instruments.MFLI.AuxOuts = map[string]int{"X": 4} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Chain: ChainConfig{PollInterval: 2},
	}

	if got := cfg.API.ReadTimeout().Seconds(); got != 30 {
		t.Errorf("ReadTimeout() = %v, want 30", got)
	}
	if got := cfg.API.WriteTimeout().Seconds(); got != 45 {
		t.Errorf("WriteTimeout() = %v, want 45", got)
	}
	if got := cfg.API.IdleTimeout().Seconds(); got != 60 {
		t.Errorf("IdleTimeout() = %v, want 60", got)
	}
	if got := cfg.GetPollInterval().Seconds(); got != 2 {
		t.Errorf("GetPollInterval() = %v, want 2", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("SIGNALCHAIN_DATABASE_PATH", "/custom/path.db")
	t.Setenv("SIGNALCHAIN_MQTT_HOST", "mqtt.example.com")
	t.Setenv("SIGNALCHAIN_MQTT_USERNAME", "testuser")
	t.Setenv("SIGNALCHAIN_MQTT_PASSWORD", "testpass")
	t.Setenv("SIGNALCHAIN_API_HOST", "192.168.1.1")
	t.Setenv("SIGNALCHAIN_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("SIGNALCHAIN_CHAIN_R_EST_OHM", "2200")
	t.Setenv("SIGNALCHAIN_CHAIN_GUARD_FAIL_OPEN", "false")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Chain.REstOhm == nil || *cfg.Chain.REstOhm != 2200 {
		t.Errorf("Chain.REstOhm = %v, want 2200", cfg.Chain.REstOhm)
	}
	if cfg.Chain.GuardFailOpen {
		t.Error("Chain.GuardFailOpen = true, want false")
	}
}

func TestApplyEnvOverrides_BadNumber(t *testing.T) {
	t.Setenv("SIGNALCHAIN_CHAIN_R_EST_OHM", "ten kilo-ohm")
	if err := applyEnvOverrides(defaultConfig()); err == nil {
		t.Error("applyEnvOverrides() expected error for unparsable R_est, got nil")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Lab.ID == "" {
		t.Error("defaultConfig should have non-empty Lab.ID")
	}
	if cfg.Chain.Margin != 3.0 {
		t.Errorf("defaultConfig Chain.Margin = %v, want 3.0", cfg.Chain.Margin)
	}
	if !cfg.Chain.GuardFailOpen {
		t.Error("defaultConfig Chain.GuardFailOpen = false, want true")
	}
	if cfg.Instruments.Preamp.GainVPerV != 100 {
		t.Errorf("defaultConfig Preamp.GainVPerV = %v, want 100", cfg.Instruments.Preamp.GainVPerV)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}
