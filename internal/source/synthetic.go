package source

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/banshee-data/impedance/internal/signal"
)

// Synthetic generates a deterministic breathing waveform: a sinusoid around a
// baseline with optional timing jitter, additive noise and a baseline step.
type Synthetic struct {
	Baseline         float64 // ohms
	Amplitude        float64 // ohms, half the peak-to-peak swing
	BreathsPerMinute float64
	SamplePeriod     float64 // seconds
	Duration         float64 // seconds
	Jitter           float64 // fraction of SamplePeriod, below 0.5
	Noise            float64 // standard deviation, ohms
	StepAt           float64 // seconds; the step is disabled when StepSize is 0
	StepSize         float64 // ohms added to the baseline from StepAt on
	Seed             uint64
}

// DefaultSynthetic is a minute of quiet 15 breaths/min breathing at 100 Hz.
func DefaultSynthetic() Synthetic {
	return Synthetic{
		Baseline:         100,
		Amplitude:        10,
		BreathsPerMinute: 15,
		SamplePeriod:     0.01,
		Duration:         60,
		Seed:             1,
	}
}

// Validate checks the generator settings.
func (g Synthetic) Validate() error {
	switch {
	case !(g.SamplePeriod > 0):
		return fmt.Errorf("sample period %v must be positive: %w", g.SamplePeriod, signal.ErrInvalidArgument)
	case g.Duration < 0:
		return fmt.Errorf("duration %v must not be negative: %w", g.Duration, signal.ErrInvalidArgument)
	case g.BreathsPerMinute < 0:
		return fmt.Errorf("breathing rate %v must not be negative: %w", g.BreathsPerMinute, signal.ErrInvalidArgument)
	case g.Jitter < 0 || g.Jitter >= 0.5:
		return fmt.Errorf("jitter %v must be in [0, 0.5): %w", g.Jitter, signal.ErrInvalidArgument)
	case g.Noise < 0:
		return fmt.Errorf("noise %v must not be negative: %w", g.Noise, signal.ErrInvalidArgument)
	}
	return nil
}

// Value returns the noiseless waveform at t.
func (g Synthetic) Value(t float64) float64 {
	v := g.Baseline + g.Amplitude*math.Sin(2*math.Pi*g.BreathsPerMinute/60*t)
	if g.StepSize != 0 && t >= g.StepAt {
		v += g.StepSize
	}
	return v
}

// Samples generates the whole series. The same settings always produce the
// same samples.
func (g Synthetic) Samples() ([]signal.Sample, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(g.Seed, g.Seed^0x9e3779b97f4a7c15))
	n := int(math.Floor(g.Duration/g.SamplePeriod+1e-9)) + 1
	out := make([]signal.Sample, n)
	for i := range out {
		t := float64(i) * g.SamplePeriod
		if g.Jitter > 0 && i > 0 {
			t += (rng.Float64()*2 - 1) * g.Jitter * g.SamplePeriod
		}
		v := g.Value(t)
		if g.Noise > 0 {
			v += rng.NormFloat64() * g.Noise
		}
		out[i] = signal.Sample{Timestamp: t, Value: v}
	}
	return out, nil
}

// Run sends the generated series without pacing.
func (g Synthetic) Run(ctx context.Context, out chan<- signal.Sample) error {
	defer close(out)
	samples, err := g.Samples()
	if err != nil {
		return err
	}
	for _, s := range samples {
		if err := send(ctx, out, s); err != nil {
			return err
		}
	}
	return nil
}
