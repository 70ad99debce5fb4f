package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/impedance/internal/pipeline"
	"github.com/banshee-data/impedance/internal/serialmux"
)

// DefaultConfigPath is the path to the canonical analysis defaults file.
const DefaultConfigPath = "config/analysis.defaults.json"

// AnalysisConfig is the on-disk analysis configuration. Every field is
// optional; unset fields fall back to the pipeline defaults, so partial files
// are safe.
type AnalysisConfig struct {
	// Buffering and resampling, seconds
	BufferDuration  *float64 `json:"buffer_duration,omitempty"`
	AnalysisPeriod  *float64 `json:"analysis_period,omitempty"`
	SamplingPeriod  *float64 `json:"sampling_period,omitempty"`
	JitterTolerance *float64 `json:"jitter_tolerance,omitempty"`

	// Segmentation and history
	PhaseSteps *int `json:"phase_steps,omitempty"`
	MaxCycles  *int `json:"max_cycles,omitempty"`

	// Plausibility gates
	MinBreathsPerMinute *float64 `json:"min_breaths_per_minute,omitempty"`
	MaxBreathsPerMinute *float64 `json:"max_breaths_per_minute,omitempty"`
	MinImpedance        *float64 `json:"min_impedance,omitempty"`
	MaxImpedance        *float64 `json:"max_impedance,omitempty"`

	// Scoring
	TargetCycles       *int     `json:"target_cycles,omitempty"`
	MinCyclesForVAE    *int     `json:"min_cycles_for_vae,omitempty"`
	RiseDeadband       *float64 `json:"rise_deadband,omitempty"`
	VAEAlarmThreshold  *int     `json:"vae_alarm_threshold,omitempty"`
	SQIAlarmThreshold  *int     `json:"sqi_alarm_threshold,omitempty"`
	AlarmPenaltyWaiver *float64 `json:"alarm_penalty_waiver,omitempty"`
	CoverageSaturation *float64 `json:"coverage_saturation,omitempty"`

	// Score weights, points
	PointsPerOhm       *float64 `json:"points_per_ohm,omitempty"`
	MagnitudeCap       *float64 `json:"magnitude_cap,omitempty"`
	SymmetryPoints     *float64 `json:"symmetry_points,omitempty"`
	SymmetrySaturation *float64 `json:"symmetry_saturation,omitempty"`
	FillPoints         *float64 `json:"fill_points,omitempty"`
	CoveragePoints     *float64 `json:"coverage_points,omitempty"`
	StabilityPoints    *float64 `json:"stability_points,omitempty"`
	ExtremaWeight      *float64 `json:"extrema_weight,omitempty"`
	AbsoluteWeight     *float64 `json:"absolute_weight,omitempty"`
	TidalWeight        *float64 `json:"tidal_weight,omitempty"`

	// Acquisition and diagnostics
	ReplaySpeed        *float64               `json:"replay_speed,omitempty"`
	DebugRetention     *string                `json:"debug_retention,omitempty"` // duration string like "10m"
	Serial             *serialmux.PortOptions `json:"serial,omitempty"`
	SerialInitCommands []string               `json:"serial_init_commands,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// EmptyAnalysisConfig returns a config with every field unset.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// DefaultAnalysisConfig returns a config with every field set to the built-in
// default.
func DefaultAnalysisConfig() *AnalysisConfig {
	d := pipeline.DefaultConfig()
	return &AnalysisConfig{
		BufferDuration:      ptrFloat64(d.BufferDuration),
		AnalysisPeriod:      ptrFloat64(d.AnalysisPeriod),
		SamplingPeriod:      ptrFloat64(d.SamplingPeriod),
		JitterTolerance:     ptrFloat64(d.JitterTolerance),
		PhaseSteps:          ptrInt(d.PhaseSteps),
		MaxCycles:           ptrInt(d.MaxCycles),
		MinBreathsPerMinute: ptrFloat64(d.Detector.MinBreathsPerMinute),
		MaxBreathsPerMinute: ptrFloat64(d.Detector.MaxBreathsPerMinute),
		MinImpedance:        ptrFloat64(d.Detector.MinImpedance),
		MaxImpedance:        ptrFloat64(d.Detector.MaxImpedance),
		TargetCycles:        ptrInt(d.Score.TargetCycles),
		MinCyclesForVAE:     ptrInt(d.Score.MinCyclesForVAE),
		RiseDeadband:        ptrFloat64(d.Score.RiseDeadband),
		VAEAlarmThreshold:   ptrInt(d.Score.VAEAlarmThreshold),
		SQIAlarmThreshold:   ptrInt(d.Score.SQIAlarmThreshold),
		AlarmPenaltyWaiver:  ptrFloat64(d.Score.AlarmPenaltyWaiver),
		CoverageSaturation:  ptrFloat64(d.Score.CoverageSaturation),
		PointsPerOhm:        ptrFloat64(d.Score.PointsPerOhm),
		MagnitudeCap:        ptrFloat64(d.Score.MagnitudeCap),
		SymmetryPoints:      ptrFloat64(d.Score.SymmetryPoints),
		SymmetrySaturation:  ptrFloat64(d.Score.SymmetrySaturation),
		FillPoints:          ptrFloat64(d.Score.FillPoints),
		CoveragePoints:      ptrFloat64(d.Score.CoveragePoints),
		StabilityPoints:     ptrFloat64(d.Score.StabilityPoints),
		ExtremaWeight:       ptrFloat64(d.Score.ExtremaWeight),
		AbsoluteWeight:      ptrFloat64(d.Score.AbsoluteWeight),
		TidalWeight:         ptrFloat64(d.Score.TidalWeight),
		ReplaySpeed:         ptrFloat64(1),
		DebugRetention:      ptrString("10m"),
		Serial:              &serialmux.PortOptions{BaudRate: serialmux.DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"},
	}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file. The file must
// have a .json extension and be under 1MB.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upwards from the
// working directory. It panics if the file cannot be loaded and is intended
// for tests and tools run inside the repository.
func MustLoadDefaultConfig() *AnalysisConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/gen-synthetic/
	}
	for _, path := range candidates {
		if cfg, err := LoadAnalysisConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run from the repository root")
}

// Validate checks that every set value is usable.
func (c *AnalysisConfig) Validate() error {
	var errs []error
	if err := c.PipelineConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.ReplaySpeed != nil && *c.ReplaySpeed < 0 {
		errs = append(errs, fmt.Errorf("replay_speed must be non-negative, got %f", *c.ReplaySpeed))
	}
	if c.DebugRetention != nil && *c.DebugRetention != "" {
		d, err := time.ParseDuration(*c.DebugRetention)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid debug_retention '%s': %w", *c.DebugRetention, err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("debug_retention must be positive, got %s", d))
		}
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalise(); err != nil {
			errs = append(errs, fmt.Errorf("serial: %w", err))
		}
	}
	return errors.Join(errs...)
}

// PipelineConfig overlays the set fields on pipeline.DefaultConfig.
func (c *AnalysisConfig) PipelineConfig() pipeline.Config {
	p := pipeline.DefaultConfig()
	setFloat(&p.BufferDuration, c.BufferDuration)
	setFloat(&p.AnalysisPeriod, c.AnalysisPeriod)
	setFloat(&p.SamplingPeriod, c.SamplingPeriod)
	setFloat(&p.JitterTolerance, c.JitterTolerance)
	setInt(&p.PhaseSteps, c.PhaseSteps)
	setInt(&p.MaxCycles, c.MaxCycles)

	setFloat(&p.Detector.MinBreathsPerMinute, c.MinBreathsPerMinute)
	setFloat(&p.Detector.MaxBreathsPerMinute, c.MaxBreathsPerMinute)
	setFloat(&p.Detector.MinImpedance, c.MinImpedance)
	setFloat(&p.Detector.MaxImpedance, c.MaxImpedance)

	setInt(&p.Score.TargetCycles, c.TargetCycles)
	setInt(&p.Score.MinCyclesForVAE, c.MinCyclesForVAE)
	setFloat(&p.Score.RiseDeadband, c.RiseDeadband)
	setInt(&p.Score.VAEAlarmThreshold, c.VAEAlarmThreshold)
	setInt(&p.Score.SQIAlarmThreshold, c.SQIAlarmThreshold)
	setFloat(&p.Score.AlarmPenaltyWaiver, c.AlarmPenaltyWaiver)
	setFloat(&p.Score.CoverageSaturation, c.CoverageSaturation)

	setFloat(&p.Score.PointsPerOhm, c.PointsPerOhm)
	setFloat(&p.Score.MagnitudeCap, c.MagnitudeCap)
	setFloat(&p.Score.SymmetryPoints, c.SymmetryPoints)
	setFloat(&p.Score.SymmetrySaturation, c.SymmetrySaturation)
	setFloat(&p.Score.FillPoints, c.FillPoints)
	setFloat(&p.Score.CoveragePoints, c.CoveragePoints)
	setFloat(&p.Score.StabilityPoints, c.StabilityPoints)
	setFloat(&p.Score.ExtremaWeight, c.ExtremaWeight)
	setFloat(&p.Score.AbsoluteWeight, c.AbsoluteWeight)
	setFloat(&p.Score.TidalWeight, c.TidalWeight)
	return p
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// GetReplaySpeed returns the replay_speed value or the default.
func (c *AnalysisConfig) GetReplaySpeed() float64 {
	if c.ReplaySpeed == nil {
		return 1
	}
	return *c.ReplaySpeed
}

// GetDebugRetention returns the debug_retention value or the default.
func (c *AnalysisConfig) GetDebugRetention() time.Duration {
	if c.DebugRetention == nil || *c.DebugRetention == "" {
		return 10 * time.Minute
	}
	d, err := time.ParseDuration(*c.DebugRetention)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// GetSerial returns the serial options with defaults applied.
func (c *AnalysisConfig) GetSerial() serialmux.PortOptions {
	if c.Serial == nil {
		return serialmux.PortOptions{}
	}
	return *c.Serial
}
