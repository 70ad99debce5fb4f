package signal

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultJitterTolerance is the fraction of the desired period by which input
// timestamps may stray from the uniform grid before Resample abandons
// relabelling and falls back to Fourier resampling.
const DefaultJitterTolerance = 0.5

// ResamplePath identifies which strategy Resample used.
type ResamplePath int

const (
	// PathCopy means the input had fewer than two grid points and was copied.
	PathCopy ResamplePath = iota
	// PathRelabel means the input matched the grid within tolerance and only
	// timestamps were moved.
	PathRelabel
	// PathFourier means values were band-limited resampled onto the grid.
	PathFourier
)

func (p ResamplePath) String() string {
	switch p {
	case PathCopy:
		return "copy"
	case PathRelabel:
		return "relabel"
	case PathFourier:
		return "fourier"
	default:
		return fmt.Sprintf("ResamplePath(%d)", int(p))
	}
}

// ResampleStats describes a single Resample call.
type ResampleStats struct {
	Path        ResamplePath
	Input       int
	Output      int
	MaxResidual float64 // seconds, after removing the mean grid offset; relabel candidates only
}

// Resample converts an ordered snapshot into n = round(span/desiredPeriod)+1
// samples evenly spaced over [snapshot[0].Timestamp, snapshot[last].Timestamp].
//
// When the input already has n samples and, after removing the mean offset
// between the input and grid timestamps, no sample is further than
// jitterTolerance*desiredPeriod from its grid point, samples are relabelled in
// place and their values are untouched. Otherwise the value sequence is
// Fourier resampled to n points; originals within half a period of a grid
// point only contribute their annotation.
func Resample(snapshot []Sample, desiredPeriod, jitterTolerance float64) ([]Sample, error) {
	out, _, err := ResampleWithStats(snapshot, desiredPeriod, jitterTolerance)
	return out, err
}

// ResampleWithStats is Resample that also reports which path ran.
func ResampleWithStats(snapshot []Sample, desiredPeriod, jitterTolerance float64) ([]Sample, ResampleStats, error) {
	stats := ResampleStats{Input: len(snapshot)}
	if !(desiredPeriod > 0) {
		return nil, stats, fmt.Errorf("desired period %v must be positive: %w", desiredPeriod, ErrInvalidArgument)
	}
	if !(jitterTolerance >= 0) {
		return nil, stats, fmt.Errorf("jitter tolerance %v must be non-negative: %w", jitterTolerance, ErrInvalidArgument)
	}

	if len(snapshot) == 0 {
		return []Sample{}, stats, nil
	}
	first := snapshot[0].Timestamp
	last := snapshot[len(snapshot)-1].Timestamp
	n := int(math.Round((last-first)/desiredPeriod)) + 1
	if n < 2 {
		stats.Output = 1
		return []Sample{snapshot[0].WithTime(first)}, stats, nil
	}
	stats.Output = n

	grid := make([]float64, n)
	floats.Span(grid, first, last)

	if len(snapshot) == n {
		times := Timestamps(snapshot)
		offset := stat.Mean(floats.SubTo(make([]float64, n), grid, times), nil)
		for i, t := range times {
			if r := math.Abs(t + offset - grid[i]); r > stats.MaxResidual {
				stats.MaxResidual = r
			}
		}
		if stats.MaxResidual < jitterTolerance*desiredPeriod {
			stats.Path = PathRelabel
			out := make([]Sample, n)
			for i, s := range snapshot {
				out[i] = s.WithTime(grid[i])
			}
			return out, stats, nil
		}
	}

	stats.Path = PathFourier
	values := fourierResample(Values(snapshot), n)
	half := desiredPeriod / 2
	out := make([]Sample, n)
	j := 0
	for i, t := range grid {
		for j < len(snapshot) && snapshot[j].Timestamp < t-half {
			j++
		}
		k := j
		if k+1 < len(snapshot) && math.Abs(snapshot[k+1].Timestamp-t) < math.Abs(snapshot[k].Timestamp-t) {
			k++
		}
		if k < len(snapshot) && math.Abs(snapshot[k].Timestamp-t) < half {
			out[i] = snapshot[k].WithTime(t).WithValue(values[i])
		} else {
			out[i] = Sample{Timestamp: t, Value: values[i]}
		}
	}
	return out, stats, nil
}

// fourierResample band-limit resamples x to n points by truncating or
// zero-padding its real spectrum. An even-length Nyquist bin is doubled when
// downsampling (it absorbs its conjugate partner) and halved when upsampling
// (it gains one).
func fourierResample(x []float64, n int) []float64 {
	m := len(x)
	if m == n {
		out := make([]float64, n)
		copy(out, x)
		return out
	}

	in := fourier.NewFFT(m).Coefficients(nil, x)
	coeff := make([]complex128, n/2+1)
	shared := min(m, n)
	copy(coeff, in[:shared/2+1])
	if shared%2 == 0 {
		switch {
		case n < m:
			coeff[shared/2] *= 2
		case n > m:
			coeff[shared/2] *= 0.5
		}
	}

	out := fourier.NewFFT(n).Sequence(nil, coeff)
	floats.Scale(1/float64(m), out)
	return out
}
