package keithley2182a

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Statistics summarises a run of DC voltage readings.
type Statistics struct {
	Mean float64
	// StdDev is the sample standard deviation; zero for a single reading.
	StdDev  float64
	Min     float64
	Max     float64
	Count   int
	Samples []float64
}

// MeasureVoltageStatistics takes n DC voltage readings with MeasureVoltage
// and summarises them. The first failed reading aborts the run.
func (d *Driver) MeasureVoltageStatistics(n int) (Statistics, error) {
	if n < 1 {
		return Statistics{}, fmt.Errorf("%w: reading count %d must be >= 1", ErrOutOfRange, n)
	}
	samples := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v, err := d.MeasureVoltage()
		if err != nil {
			return Statistics{}, fmt.Errorf("reading %d of %d: %w", i+1, n, err)
		}
		samples = append(samples, v)
	}
	return summarise(samples), nil
}

func summarise(samples []float64) Statistics {
	st := Statistics{
		Min:     floats.Min(samples),
		Max:     floats.Max(samples),
		Count:   len(samples),
		Samples: samples,
	}
	if len(samples) == 1 {
		st.Mean = samples[0]
		return st
	}
	st.Mean, st.StdDev = stat.MeanStdDev(samples, nil)
	return st
}
