// Package spectral estimates the dominant periodic component of a uniformly
// sampled impedance window and decides whether it looks like breathing.
package spectral

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/impedance/internal/signal"
)

// Periodogram returns the one-sided power spectral density of values sampled
// every samplingPeriod seconds. The window mean is removed first so the DC
// level of the impedance baseline does not dominate. Power is in units²/Hz;
// freqs[k] = k / (N * samplingPeriod).
func Periodogram(values []float64, samplingPeriod float64) (freqs, power []float64, err error) {
	if !(samplingPeriod > 0) {
		return nil, nil, fmt.Errorf("sampling period %v must be positive: %w", samplingPeriod, signal.ErrInvalidArgument)
	}
	n := len(values)
	if n < 2 {
		return nil, nil, nil
	}

	detrended := make([]float64, n)
	copy(detrended, values)
	floats.AddConst(-stat.Mean(values, nil), detrended)

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, detrended)

	fs := 1 / samplingPeriod
	freqs = make([]float64, len(coeff))
	power = make([]float64, len(coeff))
	scale := 1 / (fs * float64(n))
	for k, c := range coeff {
		freqs[k] = fft.Freq(k) * fs
		a := cmplx.Abs(c)
		power[k] = a * a * scale
		if k != 0 && !(n%2 == 0 && k == n/2) {
			power[k] *= 2
		}
	}
	return freqs, power, nil
}
