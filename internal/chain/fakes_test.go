package chain

import (
	"errors"
	"math"
	"sync"
)

var errDeviceOffline = errors.New("device offline")

// fakeSource is a Source without frequency control that records writes.
type fakeSource struct {
	level   float64
	on      bool
	writes  []string
	readErr error
	setErr  error
}

func (s *fakeSource) Level() (float64, error) {
	if s.readErr != nil {
		return 0, s.readErr
	}
	return s.level, nil
}

func (s *fakeSource) SetLevel(v float64) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.writes = append(s.writes, "level")
	s.level = v
	return nil
}

func (s *fakeSource) OutputEnabled() (bool, error) {
	if s.readErr != nil {
		return false, s.readErr
	}
	return s.on, nil
}

func (s *fakeSource) SetOutputEnabled(on bool) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.writes = append(s.writes, "output")
	s.on = on
	return nil
}

// fakeFreqSource adds frequency control to fakeSource.
type fakeFreqSource struct {
	fakeSource
	freq    float64
	freqErr error
}

func (s *fakeFreqSource) Frequency() (float64, error) { return s.freq, nil }

func (s *fakeFreqSource) SetFrequency(hz float64) error {
	if s.freqErr != nil {
		return s.freqErr
	}
	s.writes = append(s.writes, "frequency")
	s.freq = hz
	return nil
}

type fakeConverter struct {
	gm  float64
	inv bool
	err error
}

func (c *fakeConverter) Transconductance() (float64, error) { return c.gm, c.err }
func (c *fakeConverter) Inverted() (bool, error)            { return c.inv, c.err }

type fakeAmplifier struct {
	gain float64
	inv  bool
	err  error
}

func (a *fakeAmplifier) Gain() (float64, error)  { return a.gain, a.err }
func (a *fakeAmplifier) Inverted() (bool, error) { return a.inv, a.err }

type fakeLockIn struct {
	freq, tc, sens, inputRange float64
	x, y, r, theta             float64
	rangeErr, freqErr, readErr error
	reads                      int
}

func (l *fakeLockIn) Frequency() (float64, error) { return l.freq, nil }

func (l *fakeLockIn) SetFrequency(hz float64) error {
	if l.freqErr != nil {
		return l.freqErr
	}
	l.freq = hz
	return nil
}

func (l *fakeLockIn) TimeConstant() (float64, error)  { return l.tc, nil }
func (l *fakeLockIn) SetTimeConstant(s float64) error { l.tc = s; return nil }
func (l *fakeLockIn) Sensitivity() (float64, error)   { return l.sens, nil }
func (l *fakeLockIn) SetSensitivity(v float64) error  { l.sens = v; return nil }

func (l *fakeLockIn) InputRange() (float64, error) {
	if l.rangeErr != nil {
		return 0, l.rangeErr
	}
	return l.inputRange, nil
}

func (l *fakeLockIn) SetInputRange(v float64) error { l.inputRange = v; return nil }

func (l *fakeLockIn) read(v float64) (float64, error) {
	l.reads++
	if l.readErr != nil {
		return 0, l.readErr
	}
	return v, nil
}

func (l *fakeLockIn) X() (float64, error)     { return l.read(l.x) }
func (l *fakeLockIn) Y() (float64, error)     { return l.read(l.y) }
func (l *fakeLockIn) R() (float64, error)     { return l.read(l.r) }
func (l *fakeLockIn) Theta() (float64, error) { return l.read(l.theta) }

// fakeDemodLockIn returns X and Y from one sample. Its per-channel
// readouts are left inconsistent so tests can tell which path was used.
type fakeDemodLockIn struct {
	fakeLockIn
	sx, sy      float64
	demodulated int
}

func (l *fakeDemodLockIn) Demodulate() (float64, float64, error) {
	l.demodulated++
	if l.readErr != nil {
		return 0, 0, l.readErr
	}
	return l.sx, l.sy, nil
}

// recordingLogger keeps warn messages for assertions.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

// bench bundles a set of fakes and the engine built from them.
type bench struct {
	src        *fakeFreqSource
	conv       *fakeConverter
	amp        *fakeAmplifier
	lockin     *fakeLockIn
	engine     *Engine
	advisories []Advisory
}

func newBench(opts Options) *bench {
	b := &bench{
		src:    &fakeFreqSource{},
		conv:   &fakeConverter{gm: 1e-3},
		amp:    &fakeAmplifier{gain: 100},
		lockin: &fakeLockIn{inputRange: 1.0, tc: 0.1, sens: 1.0},
	}
	opts.OnAdvisory = func(a Advisory) { b.advisories = append(b.advisories, a) }
	eng, err := New(Nodes{Source: b.src, Converter: b.conv, Amplifier: b.amp, LockIn: b.lockin}, opts)
	if err != nil {
		panic(err)
	}
	b.engine = eng
	return b
}

func closeRel(got, want, rel float64) bool {
	if want == 0 {
		return math.Abs(got) <= rel
	}
	return math.Abs(got-want) <= rel*math.Abs(want)
}
