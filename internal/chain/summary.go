package chain

import (
	"fmt"
	"strings"
)

// Summary renders the chain topology and its current settings as text.
func (e *Engine) Summary() (string, error) {
	rb, err := e.Readback()
	if err != nil {
		return "", err
	}
	gmEff, err := e.effectiveTransconductance()
	if err != nil {
		return "", err
	}
	gvEff, err := e.effectiveGain()
	if err != nil {
		return "", err
	}

	rEst := "unset"
	if r, ok := e.advisory.rEst(); ok {
		rEst = fmt.Sprintf("%g Ω", r)
	}
	measured := "n/a (R_est unset)"
	if rb.MeasuredCurrentA != nil {
		measured = fmt.Sprintf("%.3e A", *rb.MeasuredCurrentA)
	}

	var b strings.Builder
	b.WriteString("Signal Chain Topology Summary\n")
	b.WriteString("=============================\n")
	b.WriteString("[Source] -> [V->I Converter] -> [Sample] -> [Voltage Preamp] -> [Lock-in]\n\n")
	b.WriteString("Current Settings:\n")
	fmt.Fprintf(&b, "- Source level (%s): %g V\n", e.advisory.Convention, rb.ExcitationV)
	fmt.Fprintf(&b, "- Output enabled: %t\n", rb.OutputEnabled)
	fmt.Fprintf(&b, "- Reference frequency: %g Hz\n", rb.FrequencyHz)
	fmt.Fprintf(&b, "- Effective transconductance: %.3e A/V\n", gmEff)
	fmt.Fprintf(&b, "- Effective preamp gain: %.1f V/V\n", gvEff)
	fmt.Fprintf(&b, "- Estimated sample resistance: %s\n", rEst)
	b.WriteString("\nDerived Values:\n")
	fmt.Fprintf(&b, "- Commanded current: %.3e A\n", rb.CommandedCurrentA)
	fmt.Fprintf(&b, "- Measured current: %s\n", measured)
	fmt.Fprintf(&b, "- Sample voltage (complex): %.3e%+.3ei V\n", rb.SampleVoltageRe, rb.SampleVoltageIm)
	fmt.Fprintf(&b, "- Recommended sensitivity: %.3e V\n", rb.RecommendedSensitivityV)
	return b.String(), nil
}
