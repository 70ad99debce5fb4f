// Package score turns the rolling cycle history into a Venous Air Embolism
// (VAE) risk score and a Signal Quality Index (SQI).
//
// The point allocations are heuristics, not calibrated clinical values. They
// live in Config so they can be retuned without touching the algorithm.
package score

import "fmt"

// Config holds the scoring weights and thresholds.
type Config struct {
	// TargetCycles is N, the number of prior cycles the latest cycle is
	// compared with and the history depth at which SQI fill saturates.
	TargetCycles int
	// MinCyclesForVAE is the minimum history length before VAE is scored.
	MinCyclesForVAE int
	// RiseDeadband is the smallest P5/P95 rise (ohms) treated as a rise.
	RiseDeadband float64

	// VAE components.
	PointsPerOhm       float64 // per ohm of combined P5+P95 rise
	MagnitudeCap       float64 // cap on the magnitude contribution
	SymmetryPoints     float64 // awarded in full when both rises are equal
	SymmetrySaturation float64 // smaller rise (ohms) that earns the full symmetry bonus

	// SQI components.
	FillPoints         float64 // history fill, scaled by len/TargetCycles
	CoveragePoints     float64 // continuous detection time
	CoverageSaturation float64 // seconds of tracking for the full coverage bonus
	StabilityPoints    float64 // trend stability
	ExtremaWeight      float64 // penalty per unit of (sd(P5)+sd(P95))/tidal
	AbsoluteWeight     float64 // penalty per unit of (sd(Min)+sd(Max))/tidal
	TidalWeight        float64 // penalty per unit of sd(P95-P5)/tidal

	// Alarm.
	VAEAlarmThreshold  int
	SQIAlarmThreshold  int
	AlarmPenaltyWaiver float64 // stability penalty multiplier while VAE is alarming
}

// DefaultConfig returns the stock weights: VAE 70 magnitude + 30 symmetry,
// SQI 50 fill + 20 coverage + 30 stability.
func DefaultConfig() Config {
	return Config{
		TargetCycles:    10,
		MinCyclesForVAE: 3,
		RiseDeadband:    0.1,

		PointsPerOhm:       10,
		MagnitudeCap:       70,
		SymmetryPoints:     30,
		SymmetrySaturation: 1.0,

		FillPoints:         50,
		CoveragePoints:     20,
		CoverageSaturation: 60,
		StabilityPoints:    30,
		ExtremaWeight:      0.5,
		AbsoluteWeight:     0.25,
		TidalWeight:        1.0,

		VAEAlarmThreshold:  50,
		SQIAlarmThreshold:  60,
		AlarmPenaltyWaiver: 0.5,
	}
}

// Validate rejects configurations the engine cannot score with.
func (c Config) Validate() error {
	if c.TargetCycles <= 0 {
		return fmt.Errorf("target_cycles must be positive, got %d", c.TargetCycles)
	}
	if c.MinCyclesForVAE < 2 {
		return fmt.Errorf("min_cycles_for_vae must be at least 2, got %d", c.MinCyclesForVAE)
	}
	if c.RiseDeadband < 0 {
		return fmt.Errorf("rise_deadband must be non-negative, got %f", c.RiseDeadband)
	}
	if !(c.SymmetrySaturation > 0) {
		return fmt.Errorf("symmetry_saturation must be positive, got %f", c.SymmetrySaturation)
	}
	if c.CoverageSaturation <= 0 {
		return fmt.Errorf("coverage_saturation must be positive, got %f", c.CoverageSaturation)
	}
	if c.AlarmPenaltyWaiver < 0 || c.AlarmPenaltyWaiver > 1 {
		return fmt.Errorf("alarm_penalty_waiver must be between 0 and 1, got %f", c.AlarmPenaltyWaiver)
	}
	for name, v := range map[string]float64{
		"points_per_ohm":   c.PointsPerOhm,
		"magnitude_cap":    c.MagnitudeCap,
		"symmetry_points":  c.SymmetryPoints,
		"fill_points":      c.FillPoints,
		"coverage_points":  c.CoveragePoints,
		"stability_points": c.StabilityPoints,
		"extrema_weight":   c.ExtremaWeight,
		"absolute_weight":  c.AbsoluteWeight,
		"tidal_weight":     c.TidalWeight,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, v)
		}
	}
	return nil
}
