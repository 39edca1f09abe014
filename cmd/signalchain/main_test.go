package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/signalchain-core/internal/infrastructure/config"
	"github.com/nerrad567/signalchain-core/internal/infrastructure/logging"
)

// writeConfig writes a config with MQTT, API and InfluxDB disabled and
// points SIGNALCHAIN_CONFIG at it. extra is appended to the YAML.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
lab:
  id: test-lab

database:
  path: "` + filepath.Join(dir, "test.db") + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

api:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: json
  output: stdout
` + extra
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("SIGNALCHAIN_CONFIG", path)
	return path
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("SIGNALCHAIN_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_InvalidChainConfig(t *testing.T) {
	writeConfig(t, `
chain:
  excitation_polarity: sideways
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with an unknown polarity")
	}
}

func TestRun_StartupAndShutdown(t *testing.T) {
	writeConfig(t, `
chain:
  id: bench-test
  r_est_ohm: 1000
  poll_interval: 1
`)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}
}

func TestBuildChain(t *testing.T) {
	path := writeConfig(t, `
chain:
  id: bench-test
  r_est_ohm: 1000
instruments:
  converter:
    gm_a_per_v: 0.01
  preamp:
    gain_v_per_v: 1000
    coupling: DC
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	log := logging.New(cfg.Logging, "test")

	svc, err := buildChain(cfg, nil, nil, log)
	if err != nil {
		t.Fatalf("buildChain() error = %v", err)
	}
	if svc.ChainID() != "bench-test" {
		t.Errorf("ChainID() = %q, want bench-test", svc.ChainID())
	}

	cs, err := svc.ConverterSettings()
	if err != nil {
		t.Fatalf("ConverterSettings() error = %v", err)
	}
	if cs.TransconductanceAPerV != 0.01 {
		t.Errorf("gm = %v, want 0.01", cs.TransconductanceAPerV)
	}
	ps, err := svc.PreampSettings()
	if err != nil {
		t.Fatalf("PreampSettings() error = %v", err)
	}
	if ps.GainVPerV != 1000 || ps.Coupling != "DC" {
		t.Errorf("preamp = %+v, want gain 1000 DC", ps)
	}
	if adv := svc.AdvisoryConfig(); adv.REst == nil || *adv.REst != 1000 {
		t.Errorf("advisory r_est = %v, want 1000", adv.REst)
	}

	if _, err := svc.SetCurrentTarget(context.Background(), 1e-5); err != nil {
		t.Fatalf("SetCurrentTarget() error = %v", err)
	}
	got, err := svc.CommandedCurrent()
	if err != nil {
		t.Fatalf("CommandedCurrent() error = %v", err)
	}
	if diff := got - 1e-5; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("CommandedCurrent() = %v, want 1e-5", got)
	}
}

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("SIGNALCHAIN_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("SIGNALCHAIN_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}
