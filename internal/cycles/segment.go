// Package cycles slices a uniformly sampled window into individual respiratory
// cycles and keeps a bounded history of their extrema.
package cycles

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/impedance/internal/signal"
)

// DefaultPhaseSteps is the number of candidate offsets tried per half period.
const DefaultPhaseSteps = 5

// Segment is one full period cut out of a window.
type Segment struct {
	Start  int // index into the window
	Values []float64
}

// SegmentWindow slices values into consecutive, non-overlapping runs of
// exactly periodLength samples, dropping partial periods at either end.
//
// A cycle is modelled as inspiration (rising impedance) followed by
// expiration. If the second half of the window has the lower mean the
// candidate offsets lie in [0.5, 1.0) of a period, otherwise in [0, 0.5).
// phaseSteps evenly spaced offsets are tried and the one whose slices have
// the largest summed within-slice variance wins; the earliest offset wins
// ties.
func SegmentWindow(values []float64, periodLength, phaseSteps int) ([]Segment, error) {
	if periodLength <= 0 {
		return nil, fmt.Errorf("period length %d must be positive: %w", periodLength, signal.ErrInvalidArgument)
	}
	if phaseSteps <= 0 {
		return nil, fmt.Errorf("phase steps %d must be positive: %w", phaseSteps, signal.ErrInvalidArgument)
	}
	if len(values) < periodLength {
		return nil, nil
	}

	half := len(values) / 2
	base := 0.0
	if stat.Mean(values[half:], nil) < stat.Mean(values[:half], nil) {
		base = 0.5
	}

	bestOffset, bestScore := -1, math.Inf(-1)
	for step := 0; step < phaseSteps; step++ {
		frac := base + 0.5*float64(step)/float64(phaseSteps)
		offset := int(math.Round(frac * float64(periodLength)))
		if offset >= periodLength {
			offset = periodLength - 1
		}
		score, n := sliceVariance(values, offset, periodLength)
		if n == 0 {
			continue
		}
		if score > bestScore {
			bestOffset, bestScore = offset, score
		}
	}
	if bestOffset < 0 {
		return nil, nil
	}

	var out []Segment
	for start := bestOffset; start+periodLength <= len(values); start += periodLength {
		out = append(out, Segment{Start: start, Values: values[start : start+periodLength]})
	}
	return out, nil
}

// sliceVariance sums the population variance of every full period starting
// at offset and returns the number of periods considered.
func sliceVariance(values []float64, offset, periodLength int) (float64, int) {
	total, n := 0.0, 0
	for start := offset; start+periodLength <= len(values); start += periodLength {
		total += stat.PopVariance(values[start:start+periodLength], nil)
		n++
	}
	return total, n
}
