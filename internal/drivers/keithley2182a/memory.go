package keithley2182a

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// errNoReading is returned by MemoryTransport when a reading is requested
// and none is queued.
var errNoReading = errors.New("no reading queued")

// powerOn holds the settings after *RST, keyed by SCPI header.
var powerOn = map[string]string{
	"SENS:FUNC":             `"VOLT:DC"`,
	"SENS:NPLC":             "5",
	"SENS:RANG":             "120",
	"SENS:RANG:AUTO":        "1",
	"SENS:APER":             "0.08333",
	"SYST:LFR":              "60",
	"UNIT:TEMP":             "C",
	"SENS:AVER":             "0",
	"SENS:AVER:COUN":        "10",
	"TRIG:SOUR":             "IMM",
	"TRIG:DEL":              "0",
	"DISP:ENAB":             "1",
	"SENS:VOLT:DC:IMP:AUTO": "0",
	"SENS:VOLT:DC:LPAS":     "0",
	"SENS:VOLT:DC:DFIL":     "1",
	"SENS:VOLT:DC:AZER":     "1",
}

// MemoryTransport answers SCPI in process. Settings written are echoed by
// the matching query; readings come from a queue filled with PushReadings.
// It is safe for concurrent use.
type MemoryTransport struct {
	mu       sync.Mutex
	settings map[string]string
	readings []float64
	last     float64
	errQueue []InstrumentError
	faults   map[string]error // keyed by command prefix
	commands []string
}

// NewMemoryTransport returns a transport in the power-on state.
func NewMemoryTransport() *MemoryTransport {
	m := &MemoryTransport{faults: make(map[string]error)}
	m.reset()
	return m
}

func (m *MemoryTransport) reset() {
	m.settings = make(map[string]string, len(powerOn))
	for k, v := range powerOn {
		m.settings[k] = v
	}
}

// PushReadings queues readings for MEAS, READ and FETC.
func (m *MemoryTransport) PushReadings(vs ...float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, vs...)
}

// PushError queues an entry for SYST:ERR?.
func (m *MemoryTransport) PushError(code int, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errQueue = append(m.errQueue, InstrumentError{Code: code, Message: msg})
}

// Fail makes every command starting with prefix return err. A nil err
// clears the fault.
func (m *MemoryTransport) Fail(prefix string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, prefix)
		return
	}
	m.faults[prefix] = err
}

// Commands returns every command seen so far, queries included, in order.
func (m *MemoryTransport) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.commands))
	copy(out, m.commands)
	return out
}

// Setting returns the stored value of a header, as the instrument would
// echo it.
func (m *MemoryTransport) Setting(header string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings[header]
}

// fault must be called with mu held.
func (m *MemoryTransport) fault(cmd string) error {
	for prefix, err := range m.faults {
		if strings.HasPrefix(cmd, prefix) {
			return err
		}
	}
	return nil
}

// Write implements Transport.
func (m *MemoryTransport) Write(cmd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, cmd)
	if err := m.fault(cmd); err != nil {
		return err
	}

	header, arg, hasArg := strings.Cut(cmd, " ")
	switch header {
	case "*RST":
		m.reset()
		return nil
	case "*CLS":
		m.errQueue = nil
		return nil
	case "INIT", "ABOR", "*TRG":
		return nil
	}
	if !hasArg {
		return fmt.Errorf("unknown command %q", cmd)
	}
	switch strings.ToUpper(arg) {
	case "ON":
		arg = "1"
	case "OFF":
		arg = "0"
	}
	m.settings[header] = arg
	return nil
}

// Query implements Transport.
func (m *MemoryTransport) Query(cmd string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, cmd)
	if err := m.fault(cmd); err != nil {
		return "", err
	}

	switch cmd {
	case "MEAS:VOLT:DC?":
		m.settings["SENS:FUNC"] = `"VOLT:DC"`
		return m.nextReading()
	case "MEAS:TEMP?":
		m.settings["SENS:FUNC"] = `"TEMP"`
		return m.nextReading()
	case "READ?":
		return m.nextReading()
	case "FETC?":
		return formatReading(m.last), nil
	case "*OPC?":
		return "1", nil
	case "*TST?":
		return "0", nil
	case "SYST:ERR?":
		if len(m.errQueue) == 0 {
			return `0,"No error"`, nil
		}
		e := m.errQueue[0]
		m.errQueue = m.errQueue[1:]
		return fmt.Sprintf("%d,%q", e.Code, e.Message), nil
	}

	header, ok := strings.CutSuffix(cmd, "?")
	if !ok {
		return "", fmt.Errorf("not a query: %q", cmd)
	}
	v, ok := m.settings[header]
	if !ok {
		return "", fmt.Errorf("unknown query %q", cmd)
	}
	return v, nil
}

// nextReading must be called with mu held.
func (m *MemoryTransport) nextReading() (string, error) {
	if len(m.readings) == 0 {
		return "", errNoReading
	}
	m.last = m.readings[0]
	m.readings = m.readings[1:]
	return formatReading(m.last), nil
}

// formatReading renders v the way the instrument does, e.g. +1.234560E-06.
func formatReading(v float64) string {
	s := strconv.FormatFloat(v, 'E', 6, 64)
	if v >= 0 {
		s = "+" + s
	}
	return s
}
