package debugsink

import (
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/impedance/internal/signal"
)

// DefaultRetention is how many seconds of each series a Recorder keeps.
const DefaultRetention = 600.0

// Recorder keeps recent samples for every label in memory. It is safe for
// concurrent use: the pipeline writes while debug HTTP handlers read.
type Recorder struct {
	mu        sync.Mutex
	retention float64
	series    map[string]*signal.Buffer
	order     []string
	dropped   map[string]int
}

// NewRecorder returns a Recorder holding retention seconds per label.
func NewRecorder(retention float64) (*Recorder, error) {
	if !(retention > 0) {
		return nil, fmt.Errorf("recorder retention %v must be positive: %w", retention, signal.ErrInvalidArgument)
	}
	return &Recorder{
		retention: retention,
		series:    make(map[string]*signal.Buffer),
		dropped:   make(map[string]int),
	}, nil
}

// Emit appends samples to label. Samples that do not advance the series
// timestamp are dropped and counted.
func (r *Recorder) Emit(label string, samples []signal.Sample, resetFirst bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf, ok := r.series[label]
	if !ok {
		// retention was validated in NewRecorder
		buf, _ = signal.NewBuffer(r.retention)
		r.series[label] = buf
		r.order = append(r.order, label)
	}
	if resetFirst {
		buf.Clear()
	}
	for _, s := range samples {
		if !buf.PushOrDiscard(s) {
			r.dropped[label]++
		}
	}
}

// Labels returns every label seen so far, sorted.
func (r *Recorder) Labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	sort.Strings(out)
	return out
}

// Series returns a copy of the samples currently held for label.
func (r *Recorder) Series(label string) []signal.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.series[label]
	if !ok {
		return nil
	}
	return buf.Snapshot()
}

// Dropped returns how many samples were discarded for label because they were
// not newer than the series' last sample.
func (r *Recorder) Dropped(label string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped[label]
}
