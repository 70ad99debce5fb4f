package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/impedance/internal/pipeline"
	"github.com/banshee-data/impedance/internal/serialmux"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultAnalysisConfig_MatchesPipelineDefaults(t *testing.T) {
	cfg := DefaultAnalysisConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if diff := cmp.Diff(pipeline.DefaultConfig(), cfg.PipelineConfig()); diff != "" {
		t.Errorf("PipelineConfig() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(pipeline.DefaultConfig(), EmptyAnalysisConfig().PipelineConfig()); diff != "" {
		t.Errorf("empty config should yield defaults (-want +got):\n%s", diff)
	}
}

func TestMustLoadDefaultConfig_MatchesBuiltIn(t *testing.T) {
	onDisk := MustLoadDefaultConfig()
	if diff := cmp.Diff(DefaultAnalysisConfig(), onDisk); diff != "" {
		t.Errorf("%s drifted from DefaultAnalysisConfig (-builtin +file):\n%s", DefaultConfigPath, diff)
	}
}

func TestLoadAnalysisConfig_Partial(t *testing.T) {
	path := writeConfig(t, "partial.json", `{
  "analysis_period": 5,
  "max_cycles": 40,
  "min_impedance": 20,
  "vae_alarm_threshold": 70,
  "replay_speed": 0,
  "debug_retention": "90s",
  "serial": {"baud_rate": 9600, "parity": "even"},
  "serial_init_commands": ["RATE 100", "START"]
}`)
	cfg, err := LoadAnalysisConfig(path)
	if err != nil {
		t.Fatalf("LoadAnalysisConfig() error = %v", err)
	}

	p := cfg.PipelineConfig()
	if p.AnalysisPeriod != 5 || p.MaxCycles != 40 {
		t.Errorf("pipeline overrides not applied: %+v", p)
	}
	if p.BufferDuration != 20 {
		t.Errorf("BufferDuration = %v, want default 20", p.BufferDuration)
	}
	if p.Detector.MinImpedance != 20 || p.Detector.MaxImpedance != 500 {
		t.Errorf("detector = %+v", p.Detector)
	}
	if p.Score.VAEAlarmThreshold != 70 || p.Score.SQIAlarmThreshold != 60 {
		t.Errorf("score thresholds = %d/%d", p.Score.VAEAlarmThreshold, p.Score.SQIAlarmThreshold)
	}
	if got := cfg.GetReplaySpeed(); got != 0 {
		t.Errorf("GetReplaySpeed() = %v, want 0", got)
	}
	if got := cfg.GetDebugRetention(); got != 90*time.Second {
		t.Errorf("GetDebugRetention() = %v, want 90s", got)
	}
	if got := cfg.GetSerial(); got != (serialmux.PortOptions{BaudRate: 9600, Parity: "even"}) {
		t.Errorf("GetSerial() = %+v", got)
	}
	if diff := cmp.Diff([]string{"RATE 100", "START"}, cfg.SerialInitCommands); diff != "" {
		t.Errorf("SerialInitCommands mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadAnalysisConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"wrong extension", "cfg.yaml", `{}`, ".json extension"},
		{"bad json", "cfg.json", `{"max_cycles": }`, "parse config JSON"},
		{"negative buffer", "cfg.json", `{"buffer_duration": -1}`, "buffer duration"},
		{"inverted band", "cfg.json", `{"min_breaths_per_minute": 40}`, "breathing band"},
		{"bad retention", "cfg.json", `{"debug_retention": "soon"}`, "debug_retention"},
		{"negative speed", "cfg.json", `{"replay_speed": -2}`, "replay_speed"},
		{"bad serial", "cfg.json", `{"serial": {"data_bits": 12}}`, "serial"},
		{"negative weight", "cfg.json", `{"tidal_weight": -1}`, "tidal_weight"},
		{"zero symmetry saturation", "cfg.json", `{"symmetry_saturation": 0}`, "symmetry_saturation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAnalysisConfig(writeConfig(t, tt.file, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadAnalysisConfig() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}

	if _, err := LoadAnalysisConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadAnalysisConfig_ScoreWeights(t *testing.T) {
	path := writeConfig(t, "weights.json", `{
  "points_per_ohm": 5,
  "magnitude_cap": 60,
  "symmetry_points": 40,
  "symmetry_saturation": 2,
  "fill_points": 40,
  "coverage_points": 30,
  "stability_points": 30,
  "extrema_weight": 1,
  "absolute_weight": 0,
  "tidal_weight": 2
}`)
	cfg, err := LoadAnalysisConfig(path)
	if err != nil {
		t.Fatalf("LoadAnalysisConfig() error = %v", err)
	}

	want := pipeline.DefaultConfig().Score
	want.PointsPerOhm = 5
	want.MagnitudeCap = 60
	want.SymmetryPoints = 40
	want.SymmetrySaturation = 2
	want.FillPoints = 40
	want.CoveragePoints = 30
	want.StabilityPoints = 30
	want.ExtremaWeight = 1
	want.AbsoluteWeight = 0
	want.TidalWeight = 2
	if diff := cmp.Diff(want, cfg.PipelineConfig().Score); diff != "" {
		t.Errorf("score weights mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadAnalysisConfig_TooLarge(t *testing.T) {
	body := `{"max_cycles": 20` + strings.Repeat(" ", 1024*1024) + `}`
	_, err := LoadAnalysisConfig(writeConfig(t, "big.json", body))
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("error = %v, want size rejection", err)
	}
}

func TestGetters_Defaults(t *testing.T) {
	cfg := EmptyAnalysisConfig()
	if cfg.GetReplaySpeed() != 1 {
		t.Errorf("GetReplaySpeed() = %v", cfg.GetReplaySpeed())
	}
	if cfg.GetDebugRetention() != 10*time.Minute {
		t.Errorf("GetDebugRetention() = %v", cfg.GetDebugRetention())
	}
	if cfg.GetSerial() != (serialmux.PortOptions{}) {
		t.Errorf("GetSerial() = %+v", cfg.GetSerial())
	}
}
