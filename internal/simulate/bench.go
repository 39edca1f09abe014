// Package simulate provides a bench model that stands in for an MFLI and
// the analogue chain wired to it.
//
// Bench implements mfli.Session. Writes land in an in-memory node tree;
// demodulator samples and aux output values are computed from the signal
// output settings through a fixed physical model:
//
//	I   = gm_eff * amplitude           (only while the output is on)
//	Vs  = I * R * exp(i*phase)
//	Vin = Vs * gv_eff                  (clipped to the input range)
//
// The model's gm and gain are the hardware's true values. They are kept
// separate from the manual node settings so a mis-entered gain shows up as
// a mismatch between commanded and measured current.
package simulate

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"github.com/nerrad567/signalchain-core/internal/chain"
	"github.com/nerrad567/signalchain-core/internal/drivers/mfli"
)

// Model is the physical truth of the simulated bench.
type Model struct {
	TransconductanceAPerV float64
	ConverterInvert       bool
	SampleResistanceOhm   float64
	SamplePhaseDeg        float64
	PreampGainVPerV       float64
	PreampInvert          bool
	NoiseV                float64 // standard deviation added to X and Y
}

// Config selects the channels the bench answers for.
type Config struct {
	Device string
	Demod  int
	Sigout int
	Model  Model
	Seed   uint64
}

// Bench is a simulated MFLI plus converter, sample and preamp.
// It is safe for concurrent use.
type Bench struct {
	*mfli.MemorySession

	dev    string
	demod  int
	sigout int

	mu    sync.Mutex
	model Model
	rng   *rand.Rand
	ticks uint64
}

// New returns a bench seeded with the MFLI power-on node values.
func New(cfg Config) *Bench {
	return &Bench{
		MemorySession: mfli.NewDeviceSession(cfg.Device),
		dev:           cfg.Device,
		demod:         cfg.Demod,
		sigout:        cfg.Sigout,
		model:         cfg.Model,
		rng:           rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

// Model returns the current physical model.
func (b *Bench) Model() Model {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.model
}

// SetModel replaces the physical model, for example to swap the sample.
func (b *Bench) SetModel(m Model) {
	b.mu.Lock()
	b.model = m
	b.mu.Unlock()
}

func (b *Bench) path(format string, args ...any) string {
	return fmt.Sprintf("/%s/"+format, append([]any{b.dev}, args...)...)
}

// GetSample implements mfli.Session. The configured demodulator's sample is
// computed from the model; other paths read the node tree.
func (b *Bench) GetSample(path string) (mfli.Sample, error) {
	if path != b.path("demods/%d/sample", b.demod) {
		return b.MemorySession.GetSample(path)
	}
	return b.demodulate()
}

// GetDouble implements mfli.Session. Aux output values follow their
// outputselect routing, scale and offset.
func (b *Bench) GetDouble(path string) (float64, error) {
	idx, ok := b.auxValueIndex(path)
	if !ok {
		return b.MemorySession.GetDouble(path)
	}

	sel, err := b.MemorySession.GetInt(b.path("auxouts/%d/outputselect", idx))
	if err != nil {
		return 0, err
	}
	scale, err := b.MemorySession.GetDouble(b.path("auxouts/%d/scale", idx))
	if err != nil {
		return 0, err
	}
	offset, err := b.MemorySession.GetDouble(b.path("auxouts/%d/offset", idx))
	if err != nil {
		return 0, err
	}
	if err := b.checkFault(path); err != nil {
		return 0, err
	}

	s, err := b.demodulate()
	if err != nil {
		return 0, err
	}

	var reading float64
	switch mfli.Output(sel) {
	case mfli.OutputX:
		reading = s.X
	case mfli.OutputY:
		reading = s.Y
	case mfli.OutputR:
		reading = math.Hypot(s.X, s.Y)
	case mfli.OutputTheta:
		reading = math.Atan2(s.Y, s.X) * 180 / math.Pi
	default:
		return offset, nil
	}
	return reading*scale + offset, nil
}

// checkFault applies any injected fault on the value node itself.
func (b *Bench) checkFault(path string) error {
	_, err := b.MemorySession.GetDouble(path)
	return err
}

func (b *Bench) auxValueIndex(path string) (int, bool) {
	rest, ok := strings.CutPrefix(path, b.path("auxouts/"))
	if !ok {
		return 0, false
	}
	num, ok := strings.CutSuffix(rest, "/value")
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(num)
	if err != nil {
		return 0, false
	}
	return idx, true
}

func (b *Bench) demodulate() (mfli.Sample, error) {
	on, err := b.MemorySession.GetInt(b.path("sigouts/%d/on", b.sigout))
	if err != nil {
		return mfli.Sample{}, err
	}
	amp, err := b.MemorySession.GetDouble(b.path("sigouts/%d/amplitudes/0", b.sigout))
	if err != nil {
		return mfli.Sample{}, err
	}
	inputRange, err := b.MemorySession.GetDouble(b.path("sigins/%d/range", b.demod))
	if err != nil {
		return mfli.Sample{}, err
	}
	freq, err := b.MemorySession.GetDouble(b.path("demods/%d/freq", b.demod))
	if err != nil {
		return mfli.Sample{}, err
	}
	if err := b.checkFault(b.path("demods/%d/sample", b.demod)); err != nil {
		return mfli.Sample{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.model

	var drive float64
	if on != 0 {
		drive = amp
	}
	current := chain.Effective(m.TransconductanceAPerV, m.ConverterInvert) * drive
	vs := complex(current*m.SampleResistanceOhm, 0) * cmplx.Rect(1, m.SamplePhaseDeg*math.Pi/180)
	vin := vs * complex(chain.Effective(m.PreampGainVPerV, m.PreampInvert), 0)

	if mag := cmplx.Abs(vin); inputRange > 0 && mag > inputRange {
		vin *= complex(inputRange/mag, 0)
	}
	if m.NoiseV > 0 {
		vin += complex(b.rng.NormFloat64()*m.NoiseV, b.rng.NormFloat64()*m.NoiseV)
	}

	b.ticks++
	return mfli.Sample{
		X:         real(vin),
		Y:         imag(vin),
		Frequency: freq,
		Timestamp: b.ticks,
	}, nil
}
