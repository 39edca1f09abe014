// Signal Chain Core - lab instrument chain controller
//
// This is the main entry point for the signal chain controller. It composes
// an excitation source, a V->I converter, a preamplifier and a lock-in
// amplifier into one virtual instrument and exposes it over:
//   - a REST API for interactive use
//   - MQTT commands and state for automation scripts
//   - InfluxDB telemetry for readback history
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/signalchain-core/migrations"

	"github.com/nerrad567/signalchain-core/internal/api"
	"github.com/nerrad567/signalchain-core/internal/bridge"
	"github.com/nerrad567/signalchain-core/internal/chain"
	"github.com/nerrad567/signalchain-core/internal/control"
	"github.com/nerrad567/signalchain-core/internal/drivers/mfli"
	"github.com/nerrad567/signalchain-core/internal/infrastructure/config"
	"github.com/nerrad567/signalchain-core/internal/infrastructure/database"
	"github.com/nerrad567/signalchain-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/signalchain-core/internal/infrastructure/logging"
	"github.com/nerrad567/signalchain-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/signalchain-core/internal/journal"
	"github.com/nerrad567/signalchain-core/internal/nodes"
	"github.com/nerrad567/signalchain-core/internal/simulate"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting signal chain core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	checks := map[string]api.HealthChecker{"database": db}
	journalRepo := journal.NewSQLiteRepository(db.DB)

	// InfluxDB is optional; the interface stays nil when disabled
	var telemetry control.Telemetry
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		telemetry = influxClient
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	svc, err := buildChain(cfg, journalRepo, telemetry, log)
	if err != nil {
		return err
	}
	log.Info("signal chain ready", "chain_id", svc.ChainID(), "device", cfg.Instruments.MFLI.Device)

	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		checks["mqtt"] = mqttClient

		b, bridgeErr := startBridge(ctx, cfg, svc, mqttClient, log)
		if bridgeErr != nil {
			return bridgeErr
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			b.Stop()
		}()
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log,
			Chain:   svc,
			Journal: journalRepo,
			Checks:  checks,
			Schema:  db,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if cfg.GetPollInterval() > 0 {
		go func() {
			if runErr := svc.Run(ctx); runErr != nil {
				log.Error("readback loop stopped", "error", runErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API, bridge, MQTT, InfluxDB, database.
	log.Info("signal chain core stopped")
	return nil
}

// buildChain opens the lock-in, wraps the manual converter and preamp and
// returns the control service for the configured chain.
//
// No vendor data server client is linked in, so the lock-in is the
// simulated bench driven by instruments.simulation.
func buildChain(cfg *config.Config, j control.Journal, telemetry control.Telemetry, log *logging.Logger) (*control.Service, error) {
	inst := cfg.Instruments

	bench := simulate.New(simulate.Config{
		Device: inst.MFLI.Device,
		Demod:  inst.MFLI.Demod,
		Sigout: inst.MFLI.Sigout,
		Model: simulate.Model{
			TransconductanceAPerV: inst.Converter.GmAPerV,
			ConverterInvert:       inst.Converter.Invert,
			SampleResistanceOhm:   inst.Simulation.SampleResistanceOhm,
			SamplePhaseDeg:        inst.Simulation.SamplePhaseDeg,
			PreampGainVPerV:       inst.Preamp.GainVPerV,
			PreampInvert:          inst.Preamp.Invert,
			NoiseV:                inst.Simulation.NoiseV,
		},
		Seed: uint64(time.Now().UnixNano()),
	})

	drv, err := mfli.New(bench, mfli.Config{
		Device:  inst.MFLI.Device,
		Demod:   inst.MFLI.Demod,
		Sigout:  inst.MFLI.Sigout,
		AuxOuts: inst.MFLI.AuxOuts,
	})
	if err != nil {
		return nil, fmt.Errorf("opening lock-in: %w", err)
	}
	src, err := nodes.NewMFLISource(drv)
	if err != nil {
		return nil, fmt.Errorf("creating source node: %w", err)
	}
	lockIn, err := nodes.NewMFLILockIn(drv)
	if err != nil {
		return nil, fmt.Errorf("creating lock-in node: %w", err)
	}

	conv := nodes.NewManualConverter()
	if err := conv.Apply(nodes.ConverterSettings{
		TransconductanceAPerV: inst.Converter.GmAPerV,
		Invert:                inst.Converter.Invert,
		PhaseDeg:              inst.Converter.PhaseDeg,
		PrimaryImpedanceOhm:   inst.Converter.PrimaryImpedanceOhm,
	}); err != nil {
		return nil, fmt.Errorf("configuring converter: %w", err)
	}
	preamp := nodes.NewManualPreamp()
	if err := preamp.Apply(nodes.PreampSettings{
		GainVPerV:   inst.Preamp.GainVPerV,
		Invert:      inst.Preamp.Invert,
		Coupling:    nodes.Coupling(inst.Preamp.Coupling),
		BandwidthHz: inst.Preamp.BandwidthHz,
	}); err != nil {
		return nil, fmt.Errorf("configuring preamp: %w", err)
	}

	polarity, err := chain.ParsePolarity(cfg.Chain.ExcitationPolarity)
	if err != nil {
		return nil, fmt.Errorf("chain polarity: %w", err)
	}
	guard := chain.GuardFailOpen
	if !cfg.Chain.GuardFailOpen {
		guard = chain.GuardFailClosed
	}

	svc, err := control.New(control.Options{
		ChainID:   cfg.Chain.ID,
		Nodes:     chain.Nodes{Source: src, Converter: conv, Amplifier: preamp, LockIn: lockIn},
		Converter: conv,
		Preamp:    preamp,
		Advisory: chain.AdvisoryConfig{
			REst:       cfg.Chain.REstOhm,
			Margin:     cfg.Chain.Margin,
			Convention: chain.AmplitudeConvention(cfg.Chain.AmplitudeConvention),
		},
		GuardMode:    guard,
		Polarity:     polarity,
		Journal:      j,
		Telemetry:    telemetry,
		Logger:       log,
		PollInterval: cfg.GetPollInterval(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating chain controller: %w", err)
	}
	return svc, nil
}

// startBridge wires the chain controller to MQTT commands and state topics.
func startBridge(ctx context.Context, cfg *config.Config, svc *control.Service, mqttClient *mqtt.Client, log *logging.Logger) (*bridge.Bridge, error) {
	b, err := bridge.New(bridge.Options{
		BridgeID:   cfg.MQTT.Broker.ClientID,
		MQTTClient: &mqttBridgeAdapter{client: mqttClient},
		Controller: svc,
		Logger:     log,
		Version:    version,
		QoS:        byte(cfg.MQTT.QoS),
	})
	if err != nil {
		return nil, fmt.Errorf("creating MQTT bridge: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting MQTT bridge: %w", err)
	}
	svc.AddObserver(b)
	log.Info("MQTT bridge started", "chain_id", svc.ChainID())
	return b, nil
}

// getConfigPath returns the configuration file path.
// Uses SIGNALCHAIN_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SIGNALCHAIN_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck runs every registered check and returns the first failure.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. Infrastructure handlers return an error; bridge
// handlers do not.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// Unsubscribe implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}

// IsConnected implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Disconnect implements bridge.MQTTClient. The client is closed by run's
// defer chain, so this is a no-op.
func (a *mqttBridgeAdapter) Disconnect(_ uint) {}
