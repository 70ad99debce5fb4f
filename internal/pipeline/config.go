// Package pipeline drives the streaming analysis: samples are buffered, and
// once per analysis period the buffered window is resampled, checked for a
// respiratory component, cut into cycles and scored.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/banshee-data/impedance/internal/cycles"
	"github.com/banshee-data/impedance/internal/score"
	"github.com/banshee-data/impedance/internal/signal"
	"github.com/banshee-data/impedance/internal/spectral"
)

// Config holds the pipeline tuning. Times are in seconds.
type Config struct {
	BufferDuration  float64
	AnalysisPeriod  float64
	SamplingPeriod  float64
	JitterTolerance float64
	PhaseSteps      int
	MaxCycles       int

	Detector spectral.Config
	Score    score.Config
}

// DefaultConfig returns the stock settings for a 100 Hz impedance stream.
func DefaultConfig() Config {
	return Config{
		BufferDuration:  20,
		AnalysisPeriod:  10,
		SamplingPeriod:  0.01,
		JitterTolerance: signal.DefaultJitterTolerance,
		PhaseSteps:      cycles.DefaultPhaseSteps,
		MaxCycles:       20,
		Detector:        spectral.DefaultConfig(),
		Score:           score.DefaultConfig(),
	}
}

// Validate reports every invalid setting, wrapped in signal.ErrInvalidArgument.
func (c Config) Validate() error {
	var errs []error
	if !(c.BufferDuration > 0) {
		errs = append(errs, fmt.Errorf("buffer duration %v must be positive", c.BufferDuration))
	}
	if !(c.AnalysisPeriod > 0) {
		errs = append(errs, fmt.Errorf("analysis period %v must be positive", c.AnalysisPeriod))
	}
	if !(c.SamplingPeriod > 0) {
		errs = append(errs, fmt.Errorf("sampling period %v must be positive", c.SamplingPeriod))
	} else if c.SamplingPeriod >= c.BufferDuration {
		errs = append(errs, fmt.Errorf("sampling period %v must be shorter than the buffer", c.SamplingPeriod))
	}
	if !(c.JitterTolerance >= 0) {
		errs = append(errs, fmt.Errorf("jitter tolerance %v must be non-negative", c.JitterTolerance))
	}
	if c.PhaseSteps <= 0 {
		errs = append(errs, fmt.Errorf("phase steps %d must be positive", c.PhaseSteps))
	}
	if c.MaxCycles <= 0 {
		errs = append(errs, fmt.Errorf("max cycles %d must be positive", c.MaxCycles))
	}
	if err := c.Detector.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Score.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("pipeline config: %w: %w", signal.ErrInvalidArgument, errors.Join(errs...))
	}
	return nil
}
