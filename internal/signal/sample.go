// Package signal holds the time-domain primitives of the impedance pipeline:
// the Sample value, the duration-bounded rolling Buffer, and the uniform-grid
// Resample step that every spectral stage depends on.
package signal

import (
	"fmt"
	"math"
)

// Sample is a single timestamped impedance measurement. Timestamps are
// seconds on a monotonic clock with an arbitrary epoch; values are ohms.
//
// Samples are passed by value and never mutated in place. Annotation is
// free-form per-sample metadata (replay markers, lead-off flags from the
// acquisition device) which resampling carries through where it can.
type Sample struct {
	Timestamp  float64
	Value      float64
	Annotation string
}

// WithTime returns a copy of s relabelled to timestamp t.
func (s Sample) WithTime(t float64) Sample {
	s.Timestamp = t
	return s
}

// WithValue returns a copy of s carrying value v.
func (s Sample) WithValue(v float64) Sample {
	s.Value = v
	return s
}

// Finite reports whether both timestamp and value are finite numbers.
func (s Sample) Finite() bool {
	return !math.IsNaN(s.Timestamp) && !math.IsInf(s.Timestamp, 0) &&
		!math.IsNaN(s.Value) && !math.IsInf(s.Value, 0)
}

func (s Sample) String() string {
	if s.Annotation != "" {
		return fmt.Sprintf("%.4fs=%.3f (%s)", s.Timestamp, s.Value, s.Annotation)
	}
	return fmt.Sprintf("%.4fs=%.3f", s.Timestamp, s.Value)
}

// Values extracts the value column of samples.
func Values(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Value
	}
	return out
}

// Timestamps extracts the timestamp column of samples.
func Timestamps(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Timestamp
	}
	return out
}
