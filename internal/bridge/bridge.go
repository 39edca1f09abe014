package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/signalchain-core/internal/chain"
	"github.com/nerrad567/signalchain-core/internal/control"
	"github.com/nerrad567/signalchain-core/internal/drivers/mfli"
	"github.com/nerrad567/signalchain-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/signalchain-core/internal/nodes"
)

// commandTimeout bounds a single command, including its journal write.
const commandTimeout = 5 * time.Second

// MQTTClient is the subset of the MQTT client the bridge needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Unsubscribe(topic string) error
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Controller applies commands to one chain. *control.Service satisfies it.
type Controller interface {
	ChainID() string
	SetCurrentTarget(ctx context.Context, amps float64) ([]chain.Advisory, error)
	SetReferenceFrequency(ctx context.Context, hz float64) error
	ReferenceFrequency() (float64, error)
	SetOutput(ctx context.Context, on bool) error
	SetExcitation(ctx context.Context, volts float64) error
	SetTimeConstant(ctx context.Context, seconds float64) error
	SetSensitivity(ctx context.Context, volts float64) error
	SetInputRange(ctx context.Context, volts float64) error
	AdvisoryConfig() chain.AdvisoryConfig
	SetAdvisoryConfig(ctx context.Context, cfg chain.AdvisoryConfig) error
	ConverterSettings() (nodes.ConverterSettings, error)
	SetConverter(ctx context.Context, s nodes.ConverterSettings) error
	PreampSettings() (nodes.PreampSettings, error)
	SetPreamp(ctx context.Context, s nodes.PreampSettings) error
	Readback() (chain.Readback, error)
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configure a Bridge.
type Options struct {
	// BridgeID names the bridge on the health topic. It is normally the
	// MQTT client id, so the health topic matches the client's LWT topic.
	BridgeID string

	MQTTClient MQTTClient
	Controller Controller
	Logger     Logger

	Version        string
	HealthInterval time.Duration
	QoS            byte
}

// Metrics are running counters of bridge activity.
type Metrics struct {
	CommandsReceived    uint64 `json:"commands_received"`
	CommandsFailed      uint64 `json:"commands_failed"`
	// StatesPublished counts retained state messages, both from the poll
	// loop and from read commands.
	StatesPublished     uint64 `json:"states_published"`
	AdvisoriesPublished uint64 `json:"advisories_published"`
}

// Bridge connects one chain controller to MQTT.
// All methods are safe for concurrent use.
type Bridge struct {
	id      string
	chainID string
	mqtt    MQTTClient
	ctrl    Controller
	logger  Logger
	qos     byte
	topics  mqtt.Topics
	health  *HealthReporter

	commandsReceived    atomic.Uint64
	commandsFailed      atomic.Uint64
	statesPublished     atomic.Uint64
	advisoriesPublished atomic.Uint64

	// Shutdown coordination
	ctx       context.Context // cancelled on Stop to abort in-flight commands
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	stopMu    sync.Mutex
	stopped   bool
	stopOnce  sync.Once
}

// New creates a bridge. Call Start to subscribe.
func New(opts Options) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if opts.BridgeID == "" {
		return nil, fmt.Errorf("bridge id is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	qos := opts.QoS
	if qos > 2 {
		qos = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		id:        opts.BridgeID,
		chainID:   opts.Controller.ChainID(),
		mqtt:      opts.MQTTClient,
		ctrl:      opts.Controller,
		logger:    logger,
		qos:       qos,
		ctx:       ctx,
		ctxCancel: cancel,
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.BridgeID,
		ChainID:   b.chainID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Topic:     b.topics.BridgeHealth(opts.BridgeID),
		Check:     b.checkInstruments,
		Logger:    logger,
	})
	return b, nil
}

// Start subscribes to the chain's command topic and begins health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logger.Warn("failed to publish starting status", "error", err)
	}

	topic := b.topics.ChainCommand(b.chainID)
	if err := b.mqtt.Subscribe(topic, b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", topic)

	b.health.Start(ctx)
	b.logger.Info("bridge started", "bridge_id", b.id, "chain_id", b.chainID)
	return nil
}

// Stop unsubscribes from the command topic, cancels in-flight commands,
// waits for them and publishes a final stopping status. Safe to call more
// than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.stopMu.Lock()
		b.stopped = true
		b.stopMu.Unlock()

		topic := b.topics.ChainCommand(b.chainID)
		if err := b.mqtt.Unsubscribe(topic); err != nil {
			b.logger.Warn("failed to unsubscribe from commands", "topic", topic, "error", err)
		}

		b.ctxCancel()
		b.wg.Wait()
		b.health.Stop()
		b.logger.Info("bridge stopped", "bridge_id", b.id)
	})
}

// Metrics returns a snapshot of the bridge counters.
func (b *Bridge) Metrics() Metrics {
	return Metrics{
		CommandsReceived:    b.commandsReceived.Load(),
		CommandsFailed:      b.commandsFailed.Load(),
		StatesPublished:     b.statesPublished.Load(),
		AdvisoriesPublished: b.advisoriesPublished.Load(),
	}
}

// OnReadback publishes a readback as the chain's retained state.
func (b *Bridge) OnReadback(chainID string, rb chain.Readback) {
	msg := StateMessage{ChainID: chainID, Timestamp: time.Now().UTC(), Readback: rb}
	if err := b.publishJSON(b.topics.ChainState(chainID), msg, true); err != nil {
		b.logger.Warn("failed to publish state", "chain_id", chainID, "error", err)
		return
	}
	b.statesPublished.Add(1)
}

// OnAdvisory publishes an overload advisory.
func (b *Bridge) OnAdvisory(chainID string, adv chain.Advisory) {
	msg := AdvisoryMessage{
		ChainID:   chainID,
		Timestamp: time.Now().UTC(),
		Advisory:  adv,
		Message:   adv.String(),
	}
	if err := b.publishJSON(b.topics.ChainAdvisory(chainID), msg, false); err != nil {
		b.logger.Warn("failed to publish advisory", "chain_id", chainID, "error", err)
		return
	}
	b.advisoriesPublished.Add(1)
}

// handleCommand is the MQTT callback for the command topic.
func (b *Bridge) handleCommand(_ string, payload []byte) {
	if !b.begin() {
		return
	}
	defer b.wg.Done()
	b.commandsReceived.Add(1)

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Warn("failed to parse command", "error", err)
		b.publishAck(CommandMessage{ID: uuid.NewString()}, nil,
			fmt.Errorf("%w: %w", ErrInvalidCommand, err))
		return
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	b.logger.Info("received command",
		"command_id", cmd.ID,
		"command", cmd.Command,
		"source", cmd.Source)

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	result, err := b.execute(ctx, cmd)
	b.publishAck(cmd, result, err)
}

// begin registers an in-flight command, or reports false once stopping.
func (b *Bridge) begin() bool {
	b.stopMu.Lock()
	defer b.stopMu.Unlock()
	if b.stopped {
		return false
	}
	b.wg.Add(1)
	return true
}

// execute dispatches one command to the controller.
func (b *Bridge) execute(ctx context.Context, cmd CommandMessage) (any, error) {
	switch cmd.Command {
	case CmdSetCurrent:
		var p struct {
			Amps *float64 `json:"amps"`
		}
		if err := decodeParams(cmd.Parameters, &p); err != nil {
			return nil, err
		}
		if p.Amps == nil {
			return nil, missingParam("amps")
		}
		advs, err := b.ctrl.SetCurrentTarget(ctx, *p.Amps)
		if err != nil {
			return nil, err
		}
		if advs == nil {
			advs = []chain.Advisory{}
		}
		return SetCurrentResult{TargetA: *p.Amps, Advisories: advs}, nil

	case CmdSetFrequency:
		hz, err := floatParam(cmd.Parameters, "hz")
		if err != nil {
			return nil, err
		}
		return nil, b.ctrl.SetReferenceFrequency(ctx, hz)

	case CmdSetOutput:
		var p struct {
			Enabled *bool `json:"enabled"`
		}
		if err := decodeParams(cmd.Parameters, &p); err != nil {
			return nil, err
		}
		if p.Enabled == nil {
			return nil, missingParam("enabled")
		}
		return nil, b.ctrl.SetOutput(ctx, *p.Enabled)

	case CmdSetExcitation:
		return nil, b.applyFloat(ctx, cmd.Parameters, "volts", b.ctrl.SetExcitation)
	case CmdSetTimeConstant:
		return nil, b.applyFloat(ctx, cmd.Parameters, "seconds", b.ctrl.SetTimeConstant)
	case CmdSetSensitivity:
		return nil, b.applyFloat(ctx, cmd.Parameters, "volts", b.ctrl.SetSensitivity)
	case CmdSetInputRange:
		return nil, b.applyFloat(ctx, cmd.Parameters, "volts", b.ctrl.SetInputRange)

	case CmdSetAdvisory:
		cfg := b.ctrl.AdvisoryConfig()
		if err := decodeParams(cmd.Parameters, &cfg); err != nil {
			return nil, err
		}
		if err := b.ctrl.SetAdvisoryConfig(ctx, cfg); err != nil {
			return nil, err
		}
		return b.ctrl.AdvisoryConfig(), nil

	case CmdSetConverter:
		s, err := b.ctrl.ConverterSettings()
		if err != nil {
			return nil, err
		}
		if err := decodeParams(cmd.Parameters, &s); err != nil {
			return nil, err
		}
		if err := b.ctrl.SetConverter(ctx, s); err != nil {
			return nil, err
		}
		return s, nil

	case CmdSetPreamp:
		s, err := b.ctrl.PreampSettings()
		if err != nil {
			return nil, err
		}
		if err := decodeParams(cmd.Parameters, &s); err != nil {
			return nil, err
		}
		if err := b.ctrl.SetPreamp(ctx, s); err != nil {
			return nil, err
		}
		return s, nil

	case CmdRead:
		rb, err := b.ctrl.Readback()
		if err != nil {
			return nil, err
		}
		b.OnReadback(b.chainID, rb)
		return rb, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidCommand, cmd.Command)
	}
}

func (b *Bridge) applyFloat(ctx context.Context, raw json.RawMessage, name string, set func(context.Context, float64) error) error {
	v, err := floatParam(raw, name)
	if err != nil {
		return err
	}
	return set(ctx, v)
}

// publishAck answers cmd on the ack topic. A nil err acks it as accepted.
func (b *Bridge) publishAck(cmd CommandMessage, result any, err error) {
	ack := newAck(cmd, b.chainID)
	if err != nil {
		b.commandsFailed.Add(1)
		ack.Status = AckFailed
		ack.Error = &AckError{Code: errorCode(err), Message: err.Error()}
		b.logger.Warn("command failed",
			"command_id", cmd.ID,
			"command", cmd.Command,
			"code", ack.Error.Code,
			"error", err)
	} else {
		ack.Status = AckAccepted
		ack.Result = result
	}

	if err := b.publishJSON(b.topics.ChainAck(b.chainID), ack, false); err != nil {
		b.logger.Error("failed to publish ack", "command_id", cmd.ID, "error", err)
	}
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	return b.mqtt.Publish(topic, payload, b.qos, retained)
}

// checkInstruments reports whether the instruments still answer.
func (b *Bridge) checkInstruments() error {
	_, err := b.ctrl.ReferenceFrequency()
	return err
}

// errorCode maps an error to the code carried in a failed ack.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrInvalidParameters),
		errors.Is(err, chain.ErrInvalidSetpoint),
		errors.Is(err, chain.ErrInvalidFrequency),
		errors.Is(err, chain.ErrInvalidAdvisoryConfig),
		errors.Is(err, nodes.ErrInvalidParameter),
		errors.Is(err, mfli.ErrOutOfRange):
		return ErrCodeInvalidParameters
	case errors.Is(err, chain.ErrZeroTransconductance):
		return ErrCodeZeroTransconductance
	case errors.Is(err, chain.ErrGuardUnavailable):
		return ErrCodeGuardUnavailable
	case errors.Is(err, control.ErrNotAdjustable):
		return ErrCodeNotConfigured
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	default:
		return ErrCodeDeviceError
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}
	return nil
}

func floatParam(raw json.RawMessage, name string) (float64, error) {
	var p map[string]json.RawMessage
	if err := decodeParams(raw, &p); err != nil {
		return 0, err
	}
	v, ok := p[name]
	if !ok || string(bytes.TrimSpace(v)) == "null" {
		return 0, missingParam(name)
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidParameters, name, err)
	}
	return f, nil
}

func missingParam(name string) error {
	return fmt.Errorf("%w: %s is required", ErrInvalidParameters, name)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
