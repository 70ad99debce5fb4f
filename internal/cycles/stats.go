package cycles

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises the extrema of one respiratory cycle. P5 approximates the
// end-expiratory impedance (EEI) and P95 the end-inspiratory impedance (EII).
type Stats struct {
	Min    float64
	Max    float64
	P5     float64
	P95    float64
	Start  float64 // timestamp of the first sample, seconds
	Period float64 // cycle length, seconds
}

// NewStats computes Stats over the values of a single cycle.
func NewStats(values []float64, start, period float64) Stats {
	s := Stats{Start: start, Period: period}
	if len(values) == 0 {
		return s
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	s.Min = floats.Min(sorted)
	s.Max = floats.Max(sorted)
	s.P5 = stat.Quantile(0.05, stat.LinInterp, sorted, nil)
	s.P95 = stat.Quantile(0.95, stat.LinInterp, sorted, nil)
	return s
}

// Tidal is the tidal-volume surrogate P95 - P5.
func (s Stats) Tidal() float64 { return s.P95 - s.P5 }

// Coincident reports whether s and other describe the same underlying cycle:
// their starts differ by less than half of s's period.
func (s Stats) Coincident(other Stats) bool {
	return math.Abs(s.Start-other.Start) < s.Period/2
}

func (s Stats) String() string {
	return fmt.Sprintf("cycle@%.2fs period=%.2fs min=%.2f p5=%.2f p95=%.2f max=%.2f",
		s.Start, s.Period, s.Min, s.P5, s.P95, s.Max)
}
