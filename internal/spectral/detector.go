package spectral

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Outcome classifies a detection pass.
type Outcome int

const (
	// NoRespiratoryComponent means the dominant frequency fell outside the
	// physiological breathing band.
	NoRespiratoryComponent Outcome = iota
	// ImplausibleSignal means the window mean is outside the plausible
	// impedance range, typically a flatline from a disconnected lead.
	ImplausibleSignal
	// Respiratory means a breathing-rate component dominates a plausible
	// impedance signal.
	Respiratory
)

func (o Outcome) String() string {
	switch o {
	case NoRespiratoryComponent:
		return "no-respiratory-component"
	case ImplausibleSignal:
		return "implausible-signal"
	case Respiratory:
		return "respiratory"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Config bounds what counts as a respiratory signal.
type Config struct {
	MinBreathsPerMinute float64
	MaxBreathsPerMinute float64
	MinImpedance        float64 // ohms
	MaxImpedance        float64 // ohms
}

// DefaultConfig is 8-30 breaths/min over a 10-500 Ω baseline.
func DefaultConfig() Config {
	return Config{
		MinBreathsPerMinute: 8,
		MaxBreathsPerMinute: 30,
		MinImpedance:        10,
		MaxImpedance:        500,
	}
}

// Validate checks that both ranges are non-empty and positive.
func (c Config) Validate() error {
	if !(c.MinBreathsPerMinute > 0) || !(c.MaxBreathsPerMinute > c.MinBreathsPerMinute) {
		return fmt.Errorf("breathing band [%v, %v] breaths/min is invalid", c.MinBreathsPerMinute, c.MaxBreathsPerMinute)
	}
	if !(c.MaxImpedance > c.MinImpedance) {
		return fmt.Errorf("impedance range [%v, %v] ohms is invalid", c.MinImpedance, c.MaxImpedance)
	}
	return nil
}

// Detection is the result of one Detect call.
type Detection struct {
	DominantFrequency float64 // Hz
	Power             float64 // PSD at the dominant bin
	Mean              float64 // window mean, ohms
	Outcome           Outcome
}

// IsRespiratory reports whether the window is usable for cycle segmentation.
func (d Detection) IsRespiratory() bool { return d.Outcome == Respiratory }

// BreathsPerMinute converts the dominant frequency to a respiratory rate.
func (d Detection) BreathsPerMinute() float64 { return d.DominantFrequency * 60 }

// Period returns the dominant period in seconds, or 0 when there is none.
func (d Detection) Period() float64 {
	if d.DominantFrequency <= 0 {
		return 0
	}
	return 1 / d.DominantFrequency
}

// Detector finds the dominant periodic component of a window.
type Detector struct {
	cfg Config
}

// NewDetector returns a Detector for cfg.
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

// Config returns the detector's bounds.
func (d *Detector) Config() Config { return d.cfg }

// Detect takes the periodogram maximum as the dominant frequency. The
// impedance plausibility check runs first so a flatline is never mistaken
// for a very slow breath.
func (d *Detector) Detect(values []float64, samplingPeriod float64) (Detection, error) {
	freqs, power, err := Periodogram(values, samplingPeriod)
	if err != nil {
		return Detection{}, err
	}
	var det Detection
	if len(values) > 0 {
		det.Mean = stat.Mean(values, nil)
	}
	if len(power) > 0 {
		k := floats.MaxIdx(power)
		det.DominantFrequency = freqs[k]
		det.Power = power[k]
	}

	switch {
	case math.IsNaN(det.Mean) || det.Mean < d.cfg.MinImpedance || det.Mean > d.cfg.MaxImpedance:
		det.Outcome = ImplausibleSignal
	case det.Power <= 0:
		det.Outcome = NoRespiratoryComponent
	default:
		bpm := det.BreathsPerMinute()
		if bpm >= d.cfg.MinBreathsPerMinute && bpm <= d.cfg.MaxBreathsPerMinute {
			det.Outcome = Respiratory
		} else {
			det.Outcome = NoRespiratoryComponent
		}
	}
	return det, nil
}
