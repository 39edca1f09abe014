// Package nodes binds concrete backings to the signal chain capability
// interfaces.
//
// Manual nodes hold user-entered values for instruments with no remote
// interface (a V->I transformer, a voltage preamplifier). MFLI nodes
// forward to a lock-in driver, which serves as both the excitation source
// and the demodulator. Nodes forward reads and writes; they compute
// nothing beyond parameter validation.
package nodes
