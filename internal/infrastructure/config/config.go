package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the signal chain controller.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Lab         LabConfig         `yaml:"lab"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
	Chain       ChainConfig       `yaml:"chain"`
	Instruments InstrumentsConfig `yaml:"instruments"`
}

// LabConfig identifies the bench this controller runs on.
type LabConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     APICORSConfig    `yaml:"cors"`
}

// APICORSConfig contains cross-origin settings for browser dashboards.
// An empty AllowedOrigins list allows every origin.
type APICORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Output  string `yaml:"output"`
	NoColor bool   `yaml:"no_color"`
}

// ChainConfig holds the advisory scalars and behaviour switches of the
// signal chain engine.
type ChainConfig struct {
	ID string `yaml:"id"`

	// REstOhm is the user's estimate of the sample impedance. Nil means unset.
	REstOhm *float64 `yaml:"r_est_ohm"`

	// Margin multiplies the live R readout to suggest a lock-in sensitivity.
	// Default: 3.0
	Margin float64 `yaml:"margin"`

	// AmplitudeConvention records how the excitation level is quoted:
	// "rms", "amplitude" or "peak_to_peak". Carried as data only.
	AmplitudeConvention string `yaml:"amplitude_convention"`

	// GuardFailOpen skips the overload guard when the input range cannot be
	// read. When false the setpoint is refused instead.
	// Default: true
	GuardFailOpen bool `yaml:"guard_fail_open"`

	// ExcitationPolarity is "signed" or "magnitude".
	// Default: "signed"
	ExcitationPolarity string `yaml:"excitation_polarity"`

	// PollInterval is the readback telemetry period in seconds. 0 disables polling.
	PollInterval int `yaml:"poll_interval"`
}

// InstrumentsConfig describes the nodes that make up the chain.
type InstrumentsConfig struct {
	MFLI       MFLIConfig       `yaml:"mfli"`
	Converter  ConverterConfig  `yaml:"converter"`
	Preamp     PreampConfig     `yaml:"preamp"`
	Simulation SimulationConfig `yaml:"simulation"`
}

// MFLIConfig selects the demodulator, signal output and aux outputs used on
// the lock-in.
type MFLIConfig struct {
	Device  string         `yaml:"device"`
	Demod   int            `yaml:"demod"`
	Sigout  int            `yaml:"sigout"`
	AuxOuts map[string]int `yaml:"auxouts"`
}

// ConverterConfig holds the manual settings of the V->I transformer.
type ConverterConfig struct {
	GmAPerV             float64  `yaml:"gm_a_per_v"`
	Invert              bool     `yaml:"invert"`
	PhaseDeg            float64  `yaml:"phase_deg"`
	PrimaryImpedanceOhm *float64 `yaml:"primary_impedance_ohm"`
}

// PreampConfig holds the manual settings of the voltage preamplifier.
type PreampConfig struct {
	GainVPerV   float64  `yaml:"gain_v_per_v"`
	Invert      bool     `yaml:"invert"`
	Coupling    string   `yaml:"coupling"`
	BandwidthHz *float64 `yaml:"bandwidth_hz"`
}

// SimulationConfig describes the sample wired into the simulated bench.
type SimulationConfig struct {
	SampleResistanceOhm float64 `yaml:"sample_resistance_ohm"`
	SamplePhaseDeg      float64 `yaml:"sample_phase_deg"`
	NoiseV              float64 `yaml:"noise_v"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SIGNALCHAIN_SECTION_KEY
// For example: SIGNALCHAIN_DATABASE_PATH, SIGNALCHAIN_CHAIN_R_EST_OHM
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Lab: LabConfig{
			ID:   "lab-001",
			Name: "Transport bench",
		},
		Database: DatabaseConfig{
			Path:        "./data/signalchain.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "signalchain-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Chain: ChainConfig{
			ID:                  "chain-1",
			Margin:              3.0,
			AmplitudeConvention: "rms",
			GuardFailOpen:       true,
			ExcitationPolarity:  "signed",
			PollInterval:        1,
		},
		Instruments: InstrumentsConfig{
			MFLI: MFLIConfig{
				Device: "dev1234",
			},
			Converter: ConverterConfig{
				GmAPerV: 1e-3,
			},
			Preamp: PreampConfig{
				GainVPerV: 100,
				Coupling:  "AC",
			},
			Simulation: SimulationConfig{
				SampleResistanceOhm: 1000,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SIGNALCHAIN_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Database
	if v := os.Getenv("SIGNALCHAIN_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("SIGNALCHAIN_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SIGNALCHAIN_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SIGNALCHAIN_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("SIGNALCHAIN_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("SIGNALCHAIN_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Chain
	if v := os.Getenv("SIGNALCHAIN_CHAIN_R_EST_OHM"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parsing SIGNALCHAIN_CHAIN_R_EST_OHM: %w", err)
		}
		cfg.Chain.REstOhm = &r
	}
	if v := os.Getenv("SIGNALCHAIN_CHAIN_GUARD_FAIL_OPEN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing SIGNALCHAIN_CHAIN_GUARD_FAIL_OPEN: %w", err)
		}
		cfg.Chain.GuardFailOpen = b
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Lab.ID == "" {
		errs = append(errs, "lab.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	errs = append(errs, c.Chain.validate()...)
	errs = append(errs, c.Instruments.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c ChainConfig) validate() []string {
	var errs []string
	if c.ID == "" {
		errs = append(errs, "chain.id is required")
	}
	if c.REstOhm != nil && (*c.REstOhm < 0 || math.IsNaN(*c.REstOhm)) {
		errs = append(errs, "chain.r_est_ohm must be >= 0")
	}
	if c.Margin < 1 {
		errs = append(errs, "chain.margin must be >= 1")
	}
	switch c.AmplitudeConvention {
	case "rms", "amplitude", "peak_to_peak":
	default:
		errs = append(errs, "chain.amplitude_convention must be rms, amplitude or peak_to_peak")
	}
	switch c.ExcitationPolarity {
	case "signed", "magnitude":
	default:
		errs = append(errs, "chain.excitation_polarity must be signed or magnitude")
	}
	if c.PollInterval < 0 {
		errs = append(errs, "chain.poll_interval must be >= 0")
	}
	return errs
}

func (c InstrumentsConfig) validate() []string {
	var errs []string
	if c.MFLI.Device == "" {
		errs = append(errs, "instruments.mfli.device is required")
	}
	for name, idx := range c.MFLI.AuxOuts {
		switch name {
		case "X", "Y", "R", "Theta":
		default:
			errs = append(errs, fmt.Sprintf("instruments.mfli.auxouts: unknown output %q", name))
		}
		if idx < 0 || idx > 3 {
			errs = append(errs, fmt.Sprintf("instruments.mfli.auxouts.%s must be between 0 and 3", name))
		}
	}
	if c.Converter.GmAPerV < 0 {
		errs = append(errs, "instruments.converter.gm_a_per_v must be >= 0")
	}
	if c.Converter.PhaseDeg < -180 || c.Converter.PhaseDeg > 180 {
		errs = append(errs, "instruments.converter.phase_deg must be between -180 and 180")
	}
	if c.Preamp.GainVPerV < 0 {
		errs = append(errs, "instruments.preamp.gain_v_per_v must be >= 0")
	}
	if c.Preamp.Coupling != "AC" && c.Preamp.Coupling != "DC" {
		errs = append(errs, "instruments.preamp.coupling must be AC or DC")
	}
	if c.Simulation.SampleResistanceOhm < 0 {
		errs = append(errs, "instruments.simulation.sample_resistance_ohm must be >= 0")
	}
	return errs
}

// ReadTimeout returns the read timeout as a Duration.
func (c APIConfig) ReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// WriteTimeout returns the write timeout as a Duration.
func (c APIConfig) WriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// IdleTimeout returns the idle timeout as a Duration.
func (c APIConfig) IdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}

// GetPollInterval returns the readback poll period as a Duration. Zero
// disables the background readback loop.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Chain.PollInterval) * time.Second
}
