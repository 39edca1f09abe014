// Package chain implements the signal chain engine: a virtual instrument
// that composes four device nodes into one measurement topology.
//
//	[Source] -> [V->I Converter] -> [Sample] -> [Voltage Amplifier] -> [Lock-in]
//
// The engine turns a current setpoint into a source voltage through the
// converter's transconductance, keeps the source and lock-in reference
// frequencies in step, reconstructs the complex sample voltage from the
// demodulator channels and runs an advisory overload guard before every
// setpoint write.
//
// # State
//
// The engine holds no measurement state. Every derived quantity is
// recomputed from live node reads on each call; the only values it owns are
// the node references and the advisory scalars (R_est, margin, amplitude
// convention). There is no setpoint memory: CommandedCurrent recomputes
// from the current source level and transconductance, so a gain change made
// after SetCurrentTarget is reflected immediately.
//
// # Concurrency
//
// An Engine takes no locks. Each node must be owned by exactly one engine,
// and callers that share an engine across goroutines must serialise access
// themselves (see internal/control).
//
// # Usage
//
//	eng, err := chain.New(chain.Nodes{
//	    Source:    src,
//	    Converter: conv,
//	    Amplifier: preamp,
//	    LockIn:    li,
//	}, chain.Options{Logger: logger})
//	if err != nil {
//	    return err
//	}
//	if err := eng.SetCurrentTarget(1e-6); err != nil {
//	    return err
//	}
package chain
