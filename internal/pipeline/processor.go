package pipeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/banshee-data/impedance/internal/cycles"
	"github.com/banshee-data/impedance/internal/debugsink"
	"github.com/banshee-data/impedance/internal/monitoring"
	"github.com/banshee-data/impedance/internal/score"
	"github.com/banshee-data/impedance/internal/signal"
	"github.com/banshee-data/impedance/internal/spectral"
)

// ErrEnded is returned by Push once End has been called.
var ErrEnded = errors.New("stream ended")

// State is the tracking state of a Processor.
type State int

const (
	// NoSignal means the last analysis pass found no usable respiratory signal.
	NoSignal State = iota
	// Tracking means consecutive passes have found a respiratory component
	// since FirstDetection.
	Tracking
)

func (s State) String() string {
	switch s {
	case NoSignal:
		return "no-signal"
	case Tracking:
		return "tracking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result is the output of one analysis pass.
type Result struct {
	Timestamp      float64 // timestamp of the sample that triggered the pass
	Detection      spectral.Detection
	Score          score.State
	State          State
	FirstDetection float64 // zero unless Tracking
	NewCycles      []cycles.Stats
	HistoryLen     int
	Resample       signal.ResampleStats
}

// Processor owns the buffer, cycle history and scoring state of a single
// sensor stream. It is not safe for concurrent use; see Run.
type Processor struct {
	id       uuid.UUID
	cfg      Config
	sink     debugsink.Sink
	buffer   *signal.Buffer
	history  *cycles.History
	detector *spectral.Detector
	engine   *score.Engine

	state          State
	firstDetection float64
	lastAnalysis   float64
	analysed       bool
	ended          bool
	alarm          bool
	latest         Result
}

// NewProcessor validates cfg and returns a Processor emitting debug series to
// sink. A nil sink discards them.
func NewProcessor(cfg Config, sink debugsink.Sink) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	buf, err := signal.NewBuffer(cfg.BufferDuration)
	if err != nil {
		return nil, err
	}
	hist, err := cycles.NewHistory(cfg.MaxCycles)
	if err != nil {
		return nil, err
	}
	det, err := spectral.NewDetector(cfg.Detector)
	if err != nil {
		return nil, err
	}
	eng, err := score.NewEngine(cfg.Score)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = debugsink.Discard
	}
	return &Processor{
		id:       uuid.New(),
		cfg:      cfg,
		sink:     sink,
		buffer:   buf,
		history:  hist,
		detector: det,
		engine:   eng,
	}, nil
}

// ID identifies the processor in logs and debug output.
func (p *Processor) ID() uuid.UUID { return p.id }

// Config returns the processor's settings.
func (p *Processor) Config() Config { return p.cfg }

// State returns the current tracking state.
func (p *Processor) State() State { return p.state }

// Latest returns the most recent analysis result.
func (p *Processor) Latest() (Result, bool) { return p.latest, p.analysed }

// History returns the recorded cycles, oldest first.
func (p *Processor) History() []cycles.Stats { return p.history.All() }

// Ended reports whether End has been called.
func (p *Processor) Ended() bool { return p.ended }

// End marks the end of the stream. Later pushes fail with ErrEnded and leave
// the buffer untouched.
func (p *Processor) End() {
	if !p.ended {
		monitoring.Debugf("pipeline %s: end of stream", p.id)
	}
	p.ended = true
}

// Push adds one sample. When the buffer is full and at least AnalysisPeriod
// has passed since the previous pass (or there has been none), an analysis
// pass runs and its result is returned; otherwise the result is nil.
// Out-of-order samples fail with signal.ErrOrderingViolation.
func (p *Processor) Push(s signal.Sample) (*Result, error) {
	if p.ended {
		return nil, ErrEnded
	}
	if err := p.buffer.Push(s); err != nil {
		return nil, err
	}
	if !p.buffer.Filled() {
		return nil, nil
	}
	if p.analysed && s.Timestamp-p.lastAnalysis < p.cfg.AnalysisPeriod {
		return nil, nil
	}

	res, err := p.analyse(s.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("analysis at %.3fs: %w", s.Timestamp, err)
	}
	p.lastAnalysis = s.Timestamp
	p.analysed = true
	p.latest = res
	return &res, nil
}

func (p *Processor) analyse(now float64) (Result, error) {
	res := Result{Timestamp: now}

	window, rs, err := signal.ResampleWithStats(p.buffer.Snapshot(), p.cfg.SamplingPeriod, p.cfg.JitterTolerance)
	if err != nil {
		return res, err
	}
	res.Resample = rs
	p.emit(debugsink.LabelWindow, window, true)

	values := signal.Values(window)
	det, err := p.detector.Detect(values, p.cfg.SamplingPeriod)
	if err != nil {
		return res, err
	}
	res.Detection = det

	if det.IsRespiratory() {
		if p.state == NoSignal {
			p.state = Tracking
			p.firstDetection = now
			monitoring.Logf("pipeline %s: tracking respiration at %.1f breaths/min (t=%.2fs)", p.id, det.BreathsPerMinute(), now)
		}
		added, err := p.recordCycles(window, values, det.Period())
		if err != nil {
			return res, err
		}
		res.NewCycles = added
	} else if p.state == Tracking {
		p.state = NoSignal
		p.firstDetection = 0
		monitoring.Logf("pipeline %s: lost respiratory signal (%s, t=%.2fs)", p.id, det.Outcome, now)
	}

	res.State = p.state
	res.FirstDetection = p.firstDetection
	res.HistoryLen = p.history.Len()
	res.Score = p.engine.Score(p.history.All(), p.firstDetection, p.state == Tracking, now)

	p.emit(debugsink.LabelVAE, []signal.Sample{{Timestamp: now, Value: float64(res.Score.VAE)}}, false)
	p.emit(debugsink.LabelSQI, []signal.Sample{{Timestamp: now, Value: float64(res.Score.SQI)}}, false)

	if res.Score.Alarm != p.alarm {
		p.alarm = res.Score.Alarm
		if p.alarm {
			monitoring.Logf("pipeline %s: ALARM raised VAE=%d SQI=%d (t=%.2fs)", p.id, res.Score.VAE, res.Score.SQI, now)
		} else {
			monitoring.Logf("pipeline %s: alarm cleared VAE=%d SQI=%d (t=%.2fs)", p.id, res.Score.VAE, res.Score.SQI, now)
		}
	}
	monitoring.Debugf("pipeline %s: t=%.2fs %s f=%.3fHz cycles=%d/%d VAE=%d SQI=%d path=%s",
		p.id, now, det.Outcome, det.DominantFrequency, len(res.NewCycles), res.HistoryLen,
		res.Score.VAE, res.Score.SQI, rs.Path)
	return res, nil
}

// recordCycles segments the window at the detected period and adds every
// non-duplicate cycle to the history.
func (p *Processor) recordCycles(window []signal.Sample, values []float64, period float64) ([]cycles.Stats, error) {
	periodLength := int(math.Round(period / p.cfg.SamplingPeriod))
	segments, err := cycles.SegmentWindow(values, periodLength, p.cfg.PhaseSteps)
	if err != nil {
		return nil, err
	}

	var added []cycles.Stats
	var eei, eii []signal.Sample
	for _, seg := range segments {
		start := window[seg.Start].Timestamp
		st := cycles.NewStats(seg.Values, start, period)
		if !p.history.Add(st) {
			continue
		}
		added = append(added, st)
		eei = append(eei, signal.Sample{Timestamp: start, Value: st.P5})
		eii = append(eii, signal.Sample{Timestamp: start, Value: st.P95})
	}
	if len(added) > 0 {
		p.emit(debugsink.LabelEEI, eei, false)
		p.emit(debugsink.LabelEII, eii, false)
	}
	return added, nil
}

// emit forwards to the sink. A panicking sink is logged and otherwise ignored.
func (p *Processor) emit(label string, samples []signal.Sample, resetFirst bool) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("pipeline %s: debug sink panicked on %q: %v", p.id, label, r)
		}
	}()
	p.sink.Emit(label, samples, resetFirst)
}
