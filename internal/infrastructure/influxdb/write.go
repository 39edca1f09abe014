package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementChain    = "signal_chain"
	MeasurementAdvisory = "signal_chain_advisory"
)

// ChainSample is one telemetry readback of a signal chain.
type ChainSample struct {
	X, Y, R, ThetaDeg float64
	FrequencyHz       float64

	SampleVoltageRe float64
	SampleVoltageIm float64

	CommandedCurrentA float64
	// MeasuredCurrentA is nil when no sample resistance estimate is set.
	MeasuredCurrentA *float64

	RecommendedSensitivityV float64
	Timestamp               time.Time
}

// AdvisorySample is one overload advisory.
type AdvisorySample struct {
	TargetA     float64
	PredictedV  float64
	ThresholdV  float64
	InputRangeV float64
	Timestamp   time.Time
}

// NewChainPoint builds the signal_chain point for s, tagged by chain id.
func NewChainPoint(chainID string, s ChainSample) *write.Point {
	fields := map[string]any{
		"x":                         s.X,
		"y":                         s.Y,
		"r":                         s.R,
		"theta_deg":                 s.ThetaDeg,
		"frequency_hz":              s.FrequencyHz,
		"sample_voltage_re":         s.SampleVoltageRe,
		"sample_voltage_im":         s.SampleVoltageIm,
		"commanded_current_a":       s.CommandedCurrentA,
		"recommended_sensitivity_v": s.RecommendedSensitivityV,
	}
	if s.MeasuredCurrentA != nil {
		fields["measured_current_a"] = *s.MeasuredCurrentA
	}
	return write.NewPoint(MeasurementChain, map[string]string{"chain_id": chainID}, fields, stamp(s.Timestamp))
}

// NewAdvisoryPoint builds the signal_chain_advisory point for a.
func NewAdvisoryPoint(chainID string, a AdvisorySample) *write.Point {
	return write.NewPoint(
		MeasurementAdvisory,
		map[string]string{"chain_id": chainID},
		map[string]any{
			"target_a":      a.TargetA,
			"predicted_v":   a.PredictedV,
			"threshold_v":   a.ThresholdV,
			"input_range_v": a.InputRangeV,
		},
		stamp(a.Timestamp),
	)
}

// WriteChainSample queues a chain readback.
func (c *Client) WriteChainSample(chainID string, s ChainSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(NewChainPoint(chainID, s))
}

// WriteAdvisory queues an overload advisory.
func (c *Client) WriteAdvisory(chainID string, a AdvisorySample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(NewAdvisoryPoint(chainID, a))
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
