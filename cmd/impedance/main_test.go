package main

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/impedance/internal/pipeline"
	"github.com/banshee-data/impedance/internal/score"
	"github.com/banshee-data/impedance/internal/spectral"
)

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name    string
		replay  string
		serial  string
		wantErr bool
	}{
		{"neither", "", "", true},
		{"both", "a.csv", "/dev/ttyUSB0", true},
		{"replay", "a.csv", "", false},
		{"serial", "", "/dev/ttyUSB0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFlags(tt.replay, tt.serial)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateFlags(%q, %q) error = %v, wantErr %v", tt.replay, tt.serial, err, tt.wantErr)
			}
		})
	}
}

func TestValidateOutputs(t *testing.T) {
	dir := t.TempDir()
	if err := validateOutputs("", filepath.Join(dir, "capture.csv"), filepath.Join(dir, "plots")); err != nil {
		t.Errorf("validateOutputs() under temp dir = %v", err)
	}
	if err := validateOutputs("/etc/impedance/capture.csv"); err == nil {
		t.Error("expected error for a path outside the working and temp dirs")
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig(\"\") error = %v", err)
	}
	if cfg.PipelineConfig().AnalysisPeriod != pipeline.DefaultConfig().AnalysisPeriod {
		t.Error("empty path should load built-in defaults")
	}
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for a missing config file")
	}
}

func TestFlagDefaults(t *testing.T) {
	if *baudRate != 0 {
		t.Errorf("baud default = %d, want 0 (use config)", *baudRate)
	}
	if *verbose {
		t.Error("verbose should default to false")
	}
}

func TestStatusOf(t *testing.T) {
	r := pipeline.Result{
		Timestamp:  30,
		State:      pipeline.Tracking,
		Detection:  spectral.Detection{DominantFrequency: 0.25, Outcome: spectral.Respiratory},
		Score:      score.State{VAE: 55, SQI: 70, Alarm: true},
		HistoryLen: 12,
	}
	got := statusOf(r)
	if got.State != "tracking" || got.BreathsPerMinute != 15 || !got.Alarm || got.Cycles != 12 {
		t.Errorf("statusOf() = %+v", got)
	}
}
