package mfli

import (
	"fmt"
	"strings"
	"sync"
)

// Sample is one demodulator sample.
type Sample struct {
	X         float64
	Y         float64
	Frequency float64
	Phase     float64
	Timestamp uint64
}

// Session reads and writes instrument nodes by path.
type Session interface {
	GetDouble(path string) (float64, error)
	SetDouble(path string, v float64) error
	GetInt(path string) (int64, error)
	SetInt(path string, v int64) error
	GetSample(path string) (Sample, error)
}

// MemorySession is an in-memory node tree. Unset nodes read as zero.
// It is safe for concurrent use.
type MemorySession struct {
	mu      sync.RWMutex
	doubles map[string]float64
	ints    map[string]int64
	samples map[string]Sample
	faults  map[string]error // keyed by path prefix
	writes  []string
}

// NewMemorySession returns an empty node tree.
func NewMemorySession() *MemorySession {
	return &MemorySession{
		doubles: make(map[string]float64),
		ints:    make(map[string]int64),
		samples: make(map[string]Sample),
		faults:  make(map[string]error),
	}
}

// NewDeviceSession returns a node tree seeded with an MFLI's power-on values
// for device dev.
func NewDeviceSession(dev string) *MemorySession {
	s := NewMemorySession()
	for n := 0; n < 4; n++ {
		s.doubles[fmt.Sprintf("/%s/demods/%d/freq", dev, n)] = 1e3
		s.doubles[fmt.Sprintf("/%s/demods/%d/timeconstant", dev, n)] = 0.01
		s.doubles[fmt.Sprintf("/%s/demods/%d/range", dev, n)] = 1.0
		s.doubles[fmt.Sprintf("/%s/auxouts/%d/scale", dev, n)] = 1.0
		s.ints[fmt.Sprintf("/%s/auxouts/%d/outputselect", dev, n)] = int64(OutputManual)
	}
	s.doubles[fmt.Sprintf("/%s/sigins/0/range", dev)] = 1.0
	s.doubles[fmt.Sprintf("/%s/sigouts/0/range", dev)] = 1.0
	s.ints[fmt.Sprintf("/%s/sigouts/0/enables/0", dev)] = 1
	return s
}

// Fail makes every access to a path starting with prefix return err.
// A nil err clears the fault.
func (s *MemorySession) Fail(prefix string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, prefix)
		return
	}
	s.faults[prefix] = err
}

// Writes returns the paths written so far, in order.
func (s *MemorySession) Writes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.writes))
	copy(out, s.writes)
	return out
}

// fault must be called with mu held.
func (s *MemorySession) fault(path string) error {
	for prefix, err := range s.faults {
		if strings.HasPrefix(path, prefix) {
			return fmt.Errorf("%s: %w: %w", path, ErrNodeUnavailable, err)
		}
	}
	return nil
}

// GetDouble implements Session.
func (s *MemorySession) GetDouble(path string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault(path); err != nil {
		return 0, err
	}
	return s.doubles[path], nil
}

// SetDouble implements Session.
func (s *MemorySession) SetDouble(path string, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(path); err != nil {
		return err
	}
	s.doubles[path] = v
	s.writes = append(s.writes, path)
	return nil
}

// GetInt implements Session.
func (s *MemorySession) GetInt(path string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault(path); err != nil {
		return 0, err
	}
	return s.ints[path], nil
}

// SetInt implements Session.
func (s *MemorySession) SetInt(path string, v int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(path); err != nil {
		return err
	}
	s.ints[path] = v
	s.writes = append(s.writes, path)
	return nil
}

// GetSample implements Session.
func (s *MemorySession) GetSample(path string) (Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fault(path); err != nil {
		return Sample{}, err
	}
	return s.samples[path], nil
}

// PutSample stores the sample returned for path.
func (s *MemorySession) PutSample(path string, sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[path] = sample
}
