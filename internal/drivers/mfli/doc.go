// Package mfli drives a Zurich Instruments MFLI lock-in amplifier used as a
// single-channel instrument: one demodulator, one signal output as the
// excitation source, and up to four auxiliary outputs carrying X, Y, R or
// Theta.
//
// The driver speaks in instrument node paths (for example
// /dev1234/demods/0/freq) through a Session. Session framing and transport
// belong to the data server client; MemorySession is an in-process node
// tree for tests and simulation.
package mfli
