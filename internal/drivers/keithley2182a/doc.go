// Package keithley2182a drives a Keithley 2182A nanovoltmeter over SCPI.
//
// The driver validates every setting against the instrument's accepted
// values before anything is written, then speaks plain SCPI through a
// Transport. Framing and addressing (GPIB, serial, VISA) belong to the
// Transport implementation; MemoryTransport answers in process for tests
// and simulation.
package keithley2182a
