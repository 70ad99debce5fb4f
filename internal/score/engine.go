package score

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/impedance/internal/cycles"
)

// State is the output of one analysis pass. It is recomputed from scratch on
// every pass.
type State struct {
	VAE       int
	SQI       int
	Alarm     bool
	Breakdown Breakdown
}

// Breakdown exposes the unrounded component points behind a State.
type Breakdown struct {
	RiseP5    float64
	RiseP95   float64
	Magnitude float64
	Symmetry  float64

	Fill             float64
	Coverage         float64
	Stability        float64
	StabilityPenalty float64
	Waived           bool
}

// Engine scores a cycle history.
type Engine struct {
	cfg Config
}

// NewEngine returns an Engine for cfg.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine's weights.
func (e *Engine) Config() Config { return e.cfg }

// Score computes VAE, SQI and the alarm flag. history is oldest first.
// firstDetection and now are timestamps in seconds; firstDetection is ignored
// unless tracking is set.
func (e *Engine) Score(history []cycles.Stats, firstDetection float64, tracking bool, now float64) State {
	var st State
	var vae float64
	vae, st.Breakdown = e.vae(history)
	st.VAE = clamp(vae)

	if tracking && len(history) > 0 {
		vaeAlarming := st.VAE >= e.cfg.VAEAlarmThreshold
		st.SQI = clamp(e.sqi(history, firstDetection, now, vaeAlarming, &st.Breakdown))
	}
	st.Alarm = st.VAE >= e.cfg.VAEAlarmThreshold && st.SQI >= e.cfg.SQIAlarmThreshold
	return st
}

// vae compares the latest cycle with the mean of up to TargetCycles cycles
// before it. Only a paired rise of both P5 and P95 scores: combined magnitude
// (capped) plus a symmetry bonus that is full when both rises are equal and
// at least SymmetrySaturation, so a noise-sized pair cannot earn it.
func (e *Engine) vae(history []cycles.Stats) (float64, Breakdown) {
	var b Breakdown
	if len(history) < e.cfg.MinCyclesForVAE {
		return 0, b
	}
	latest := history[len(history)-1]
	prior := history[:len(history)-1]
	if len(prior) > e.cfg.TargetCycles {
		prior = prior[len(prior)-e.cfg.TargetCycles:]
	}
	p5 := make([]float64, len(prior))
	p95 := make([]float64, len(prior))
	for i, c := range prior {
		p5[i], p95[i] = c.P5, c.P95
	}
	b.RiseP5 = latest.P5 - stat.Mean(p5, nil)
	b.RiseP95 = latest.P95 - stat.Mean(p95, nil)
	if b.RiseP5 <= e.cfg.RiseDeadband || b.RiseP95 <= e.cfg.RiseDeadband {
		return 0, b
	}

	b.Magnitude = math.Min(e.cfg.MagnitudeCap, (b.RiseP5+b.RiseP95)*e.cfg.PointsPerOhm)
	lo, hi := math.Min(b.RiseP5, b.RiseP95), math.Max(b.RiseP5, b.RiseP95)
	asymmetry := 1 - lo/hi
	b.Symmetry = e.cfg.SymmetryPoints * (1 - asymmetry) * math.Min(1, lo/e.cfg.SymmetrySaturation)
	return b.Magnitude + b.Symmetry, b
}

// sqi adds history fill, tracking coverage and trend stability. While VAE is
// alarming the stability penalty is partly waived so the abnormality being
// flagged does not drag down its own confidence.
func (e *Engine) sqi(history []cycles.Stats, firstDetection, now float64, vaeAlarming bool, b *Breakdown) float64 {
	n := float64(len(history))
	b.Fill = e.cfg.FillPoints * math.Min(n/float64(e.cfg.TargetCycles), 1)

	if elapsed := now - firstDetection; elapsed > 0 {
		b.Coverage = e.cfg.CoveragePoints * math.Min(elapsed/e.cfg.CoverageSaturation, 1)
	}

	penalty, ok := e.stabilityPenalty(history)
	if ok {
		if vaeAlarming {
			penalty *= e.cfg.AlarmPenaltyWaiver
			b.Waived = true
		}
		b.StabilityPenalty = penalty
		b.Stability = e.cfg.StabilityPoints * math.Max(0, math.Min(1, 1-penalty))
	}
	return b.Fill + b.Coverage + b.Stability
}

// stabilityPenalty measures the spread of the cycle extrema relative to the
// mean tidal swing. It reports false when there is no swing to normalise by.
func (e *Engine) stabilityPenalty(history []cycles.Stats) (float64, bool) {
	n := len(history)
	p5 := make([]float64, n)
	p95 := make([]float64, n)
	lo := make([]float64, n)
	hi := make([]float64, n)
	tidal := make([]float64, n)
	for i, c := range history {
		p5[i], p95[i] = c.P5, c.P95
		lo[i], hi[i] = c.Min, c.Max
		tidal[i] = c.Tidal()
	}
	meanTidal := stat.Mean(tidal, nil)
	if !(meanTidal > 0) {
		return 0, false
	}

	extrema := (popStdDev(p5) + popStdDev(p95)) / meanTidal
	absolute := (popStdDev(lo) + popStdDev(hi)) / meanTidal
	swing := popStdDev(tidal) / meanTidal
	return e.cfg.ExtremaWeight*extrema + e.cfg.AbsoluteWeight*absolute + e.cfg.TidalWeight*swing, true
}

func popStdDev(x []float64) float64 {
	return math.Sqrt(stat.PopVariance(x, nil))
}

func clamp(points float64) int {
	if math.IsNaN(points) {
		return 0
	}
	return int(math.Max(0, math.Min(100, math.Round(points))))
}
