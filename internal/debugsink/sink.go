// Package debugsink receives the named diagnostic series produced on each
// analysis pass. Sinks are best-effort: the pipeline never fails because a
// sink misbehaves.
package debugsink

import "github.com/banshee-data/impedance/internal/signal"

// Labels emitted by the analysis pipeline.
const (
	LabelWindow = "window" // resampled analysis window, replaced every pass
	LabelEEI    = "eei"    // end-expiratory impedance (cycle P5)
	LabelEII    = "eii"    // end-inspiratory impedance (cycle P95)
	LabelVAE    = "vae"
	LabelSQI    = "sqi"
)

// Sink accepts a batch of samples for a named series. When resetFirst is set
// the series is cleared before the batch is appended.
type Sink interface {
	Emit(label string, samples []signal.Sample, resetFirst bool)
}

// SinkFunc adapts an ordinary function to a Sink.
type SinkFunc func(label string, samples []signal.Sample, resetFirst bool)

// Emit calls f.
func (f SinkFunc) Emit(label string, samples []signal.Sample, resetFirst bool) {
	f(label, samples, resetFirst)
}

// Discard drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(string, []signal.Sample, bool) {}
