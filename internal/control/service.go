package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/signalchain-core/internal/chain"
	"github.com/nerrad567/signalchain-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/signalchain-core/internal/journal"
	"github.com/nerrad567/signalchain-core/internal/nodes"
)

// DefaultPollInterval is used when Options.PollInterval is zero.
const DefaultPollInterval = time.Second

// journalTimeout bounds a single journal write.
const journalTimeout = 2 * time.Second

// Logger is the logging interface used by the service.
type Logger = chain.Logger

// Journal records setpoint history. *journal.SQLiteRepository satisfies it.
type Journal interface {
	Record(ctx context.Context, e *journal.Entry) error
}

// Telemetry receives readbacks and advisories. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteChainSample(chainID string, s influxdb.ChainSample)
	WriteAdvisory(chainID string, a influxdb.AdvisorySample)
}

// Observer is notified after each poll and each advisory. Callbacks run
// without the service lock held, so they may call back into the service.
type Observer interface {
	OnReadback(chainID string, rb chain.Readback)
	OnAdvisory(chainID string, adv chain.Advisory)
}

// Options configure a Service.
type Options struct {
	ChainID string
	Nodes   chain.Nodes

	// Converter and Preamp are the editable nodes behind Nodes.Converter
	// and Nodes.Amplifier. Either may be nil, in which case its settings
	// cannot be changed through the service.
	Converter *nodes.ManualConverter
	Preamp    *nodes.ManualPreamp

	Advisory  chain.AdvisoryConfig
	GuardMode chain.GuardMode
	Polarity  chain.Polarity

	Journal      Journal   // optional
	Telemetry    Telemetry // optional
	Logger       Logger
	PollInterval time.Duration
}

// Status is a point-in-time view of a chain for the HTTP API.
type Status struct {
	ChainID                   string               `json:"chain_id"`
	Summary                   string               `json:"summary"`
	Readback                  chain.Readback       `json:"readback"`
	Advisory                  chain.AdvisoryConfig `json:"advisory"`
	Polarity                  string               `json:"polarity"`
	GuardFailOpen             bool                 `json:"guard_fail_open"`
	HasSourceFrequencyControl bool                 `json:"has_source_frequency_control"`
	LastAdvisory              *chain.Advisory      `json:"last_advisory,omitempty"`
	LastPollAt                *time.Time           `json:"last_poll_at,omitempty"`
}

// Service serialises access to one chain engine. All methods are safe for
// concurrent use.
type Service struct {
	chainID   string
	engine    *chain.Engine
	converter *nodes.ManualConverter
	preamp    *nodes.ManualPreamp
	journal   Journal
	telemetry Telemetry
	logger    Logger
	interval  time.Duration

	mu           sync.Mutex
	pending      []chain.Advisory // advisories raised by the call in progress
	lastAdvisory *chain.Advisory
	lastPollAt   time.Time

	observersMu sync.RWMutex
	observers   []Observer
}

// New builds the engine for opts.Nodes and wraps it in a Service.
func New(opts Options) (*Service, error) {
	if opts.ChainID == "" {
		return nil, fmt.Errorf("control: chain id is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	s := &Service{
		chainID:   opts.ChainID,
		converter: opts.Converter,
		preamp:    opts.Preamp,
		journal:   opts.Journal,
		telemetry: opts.Telemetry,
		logger:    logger,
		interval:  interval,
	}

	engine, err := chain.New(opts.Nodes, chain.Options{
		Advisory:  opts.Advisory,
		GuardMode: opts.GuardMode,
		Polarity:  opts.Polarity,
		Logger:    logger,
		// Runs under s.mu; the advisory is dispatched once the lock is released.
		OnAdvisory: func(adv chain.Advisory) {
			s.pending = append(s.pending, adv)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingEngineNodes, err)
	}
	s.engine = engine
	return s, nil
}

// ChainID returns the chain identifier.
func (s *Service) ChainID() string {
	return s.chainID
}

// AddObserver registers o for readback and advisory notifications.
func (s *Service) AddObserver(o Observer) {
	s.observersMu.Lock()
	s.observers = append(s.observers, o)
	s.observersMu.Unlock()
}

// SetCurrentTarget applies a current setpoint and returns any advisories
// the overload guard raised for it. Advisories are returned even when the
// subsequent write fails.
func (s *Service) SetCurrentTarget(ctx context.Context, amps float64) ([]chain.Advisory, error) {
	s.mu.Lock()
	s.pending = nil
	err := s.engine.SetCurrentTarget(amps)
	advs := s.pending
	s.pending = nil
	if len(advs) > 0 {
		last := advs[len(advs)-1]
		s.lastAdvisory = &last
	}
	s.mu.Unlock()

	s.dispatchAdvisories(ctx, advs)
	if err != nil {
		return advs, err
	}

	s.record(ctx, journal.KindCurrentSetpoint, &amps, map[string]any{
		"polarity":   s.engine.Polarity().String(),
		"advisories": len(advs),
	})
	s.logger.Info("current target set", "chain_id", s.chainID, "target_a", amps)
	return advs, nil
}

// CommandedCurrent returns the open-loop current implied by the live
// source level and transconductance.
func (s *Service) CommandedCurrent() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.CommandedCurrent()
}

// SetReferenceFrequency sets the source (when coupled) and lock-in frequency.
func (s *Service) SetReferenceFrequency(ctx context.Context, hz float64) error {
	s.mu.Lock()
	err := s.engine.SetReferenceFrequency(hz)
	coupled := s.engine.HasSourceFrequencyControl()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.record(ctx, journal.KindFrequency, &hz, map[string]any{"source_coupled": coupled})
	s.logger.Info("reference frequency set", "chain_id", s.chainID, "frequency_hz", hz)
	return nil
}

// ReferenceFrequency returns the lock-in demodulator frequency.
func (s *Service) ReferenceFrequency() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.ReferenceFrequency()
}

// SetExcitation writes the source level directly, bypassing the guard.
func (s *Service) SetExcitation(ctx context.Context, volts float64) error {
	s.mu.Lock()
	err := s.engine.SetExcitationLevel(volts)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.record(ctx, journal.KindExcitation, &volts, nil)
	return nil
}

// SetOutput switches the source output.
func (s *Service) SetOutput(ctx context.Context, on bool) error {
	s.mu.Lock()
	err := s.engine.SetOutputEnabled(on)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.record(ctx, journal.KindOutput, nil, map[string]any{"enabled": on})
	return nil
}

// SetTimeConstant writes the demodulator time constant.
func (s *Service) SetTimeConstant(ctx context.Context, seconds float64) error {
	return s.setLockIn(ctx, "time_constant", seconds, s.engine.SetTimeConstant)
}

// SetSensitivity writes the lock-in sensitivity.
func (s *Service) SetSensitivity(ctx context.Context, volts float64) error {
	return s.setLockIn(ctx, "sensitivity", volts, s.engine.SetSensitivity)
}

// SetInputRange writes the lock-in signal input range.
func (s *Service) SetInputRange(ctx context.Context, volts float64) error {
	return s.setLockIn(ctx, "input_range", volts, s.engine.SetInputRange)
}

func (s *Service) setLockIn(ctx context.Context, param string, v float64, set func(float64) error) error {
	s.mu.Lock()
	err := set(v)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.record(ctx, journal.KindLockIn, &v, map[string]any{"parameter": param})
	return nil
}

// AdvisoryConfig returns the advisory scalars.
func (s *Service) AdvisoryConfig() chain.AdvisoryConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.AdvisoryConfig()
}

// SetAdvisoryConfig replaces the advisory scalars.
func (s *Service) SetAdvisoryConfig(ctx context.Context, cfg chain.AdvisoryConfig) error {
	s.mu.Lock()
	err := s.engine.SetAdvisoryConfig(cfg)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	details := map[string]any{
		"margin":               cfg.Margin,
		"amplitude_convention": string(cfg.Convention),
	}
	s.record(ctx, journal.KindAdvisoryConfig, cfg.REst, details)
	return nil
}

// ConverterSettings returns the editable converter settings.
func (s *Service) ConverterSettings() (nodes.ConverterSettings, error) {
	if s.converter == nil {
		return nodes.ConverterSettings{}, ErrNotAdjustable
	}
	return s.converter.Settings(), nil
}

// SetConverter replaces the converter settings.
func (s *Service) SetConverter(ctx context.Context, cs nodes.ConverterSettings) error {
	if s.converter == nil {
		return ErrNotAdjustable
	}
	s.mu.Lock()
	err := s.converter.Apply(cs)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	gm := cs.TransconductanceAPerV
	s.record(ctx, journal.KindConverterSettings, &gm, map[string]any{
		"invert":    cs.Invert,
		"phase_deg": cs.PhaseDeg,
	})
	return nil
}

// PreampSettings returns the editable preamp settings.
func (s *Service) PreampSettings() (nodes.PreampSettings, error) {
	if s.preamp == nil {
		return nodes.PreampSettings{}, ErrNotAdjustable
	}
	return s.preamp.Settings(), nil
}

// SetPreamp replaces the preamp settings.
func (s *Service) SetPreamp(ctx context.Context, ps nodes.PreampSettings) error {
	if s.preamp == nil {
		return ErrNotAdjustable
	}
	s.mu.Lock()
	err := s.preamp.Apply(ps)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	gain := ps.GainVPerV
	s.record(ctx, journal.KindPreampSettings, &gain, map[string]any{
		"invert":   ps.Invert,
		"coupling": string(ps.Coupling),
	})
	return nil
}

// Readback reads the chain once without notifying observers.
func (s *Service) Readback() (chain.Readback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Readback()
}

// Summary renders the chain topology summary.
func (s *Service) Summary() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Summary()
}

// Status gathers summary, readback and configuration in one locked pass.
func (s *Service) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rb, err := s.engine.Readback()
	if err != nil {
		return Status{}, err
	}
	summary, err := s.engine.Summary()
	if err != nil {
		return Status{}, err
	}

	st := Status{
		ChainID:                   s.chainID,
		Summary:                   summary,
		Readback:                  rb,
		Advisory:                  s.engine.AdvisoryConfig(),
		Polarity:                  s.engine.Polarity().String(),
		GuardFailOpen:             s.engine.GuardMode() == chain.GuardFailOpen,
		HasSourceFrequencyControl: s.engine.HasSourceFrequencyControl(),
	}
	if s.lastAdvisory != nil {
		adv := *s.lastAdvisory
		st.LastAdvisory = &adv
	}
	if !s.lastPollAt.IsZero() {
		at := s.lastPollAt
		st.LastPollAt = &at
	}
	return st, nil
}

// Poll takes one readback and forwards it to telemetry and observers.
func (s *Service) Poll(_ context.Context) (chain.Readback, error) {
	s.mu.Lock()
	rb, err := s.engine.Readback()
	now := time.Now()
	if err == nil {
		s.lastPollAt = now
	}
	s.mu.Unlock()
	if err != nil {
		return chain.Readback{}, err
	}

	if s.telemetry != nil {
		s.telemetry.WriteChainSample(s.chainID, ChainSample(rb, now))
	}
	for _, o := range s.snapshotObservers() {
		o.OnReadback(s.chainID, rb)
	}
	return rb, nil
}

// Run polls the chain every PollInterval until ctx is cancelled. Poll
// failures are logged and the loop continues.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("chain poll loop started", "chain_id", s.chainID, "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("chain poll loop stopped", "chain_id", s.chainID)
			return nil
		case <-ticker.C:
			if _, err := s.Poll(ctx); err != nil {
				s.logger.Warn("chain poll failed", "chain_id", s.chainID, "error", err)
			}
		}
	}
}

func (s *Service) dispatchAdvisories(ctx context.Context, advs []chain.Advisory) {
	if len(advs) == 0 {
		return
	}
	observers := s.snapshotObservers()
	for _, adv := range advs {
		predicted := adv.PredictedV
		s.record(ctx, journal.KindAdvisory, &predicted, map[string]any{
			"target_a":      adv.TargetA,
			"threshold_v":   adv.ThresholdV,
			"input_range_v": adv.InputRangeV,
			"message":       adv.String(),
		})
		if s.telemetry != nil {
			s.telemetry.WriteAdvisory(s.chainID, influxdb.AdvisorySample{
				TargetA:     adv.TargetA,
				PredictedV:  adv.PredictedV,
				ThresholdV:  adv.ThresholdV,
				InputRangeV: adv.InputRangeV,
				Timestamp:   time.Now(),
			})
		}
		for _, o := range observers {
			o.OnAdvisory(s.chainID, adv)
		}
	}
}

func (s *Service) snapshotObservers() []Observer {
	s.observersMu.RLock()
	defer s.observersMu.RUnlock()
	return append([]Observer(nil), s.observers...)
}

// record journals an entry. A journal failure is logged and never fails
// the operation that produced it.
func (s *Service) record(ctx context.Context, kind journal.Kind, value *float64, details map[string]any) {
	if s.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()

	e := &journal.Entry{ChainID: s.chainID, Kind: kind, Details: details}
	if value != nil {
		v := *value
		e.Value = &v
	}
	if err := s.journal.Record(ctx, e); err != nil {
		s.logger.Warn("journal write failed", "chain_id", s.chainID, "kind", string(kind), "error", err)
	}
}

// ChainSample converts a readback into a telemetry sample.
func ChainSample(rb chain.Readback, at time.Time) influxdb.ChainSample {
	return influxdb.ChainSample{
		X:                       rb.X,
		Y:                       rb.Y,
		R:                       rb.R,
		ThetaDeg:                rb.Theta,
		FrequencyHz:             rb.FrequencyHz,
		SampleVoltageRe:         rb.SampleVoltageRe,
		SampleVoltageIm:         rb.SampleVoltageIm,
		CommandedCurrentA:       rb.CommandedCurrentA,
		MeasuredCurrentA:        rb.MeasuredCurrentA,
		RecommendedSensitivityV: rb.RecommendedSensitivityV,
		Timestamp:               at,
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
