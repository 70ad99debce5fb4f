package signal

import "fmt"

// compactThreshold is the number of evicted head slots tolerated before the
// backing array is compacted.
const compactThreshold = 1024

// Buffer is a rolling, duration-bounded store of strictly time-ordered
// samples. After every insertion samples are evicted from the oldest end
// until newest.Timestamp - oldest.Timestamp <= Duration().
//
// Buffer is not safe for concurrent use. Producers running on another
// goroutine must serialise delivery (see pipeline.Run).
type Buffer struct {
	duration float64
	samples  []Sample
	head     int // index of the oldest live sample in samples
	filled   bool
}

// NewBuffer creates an empty buffer retaining duration seconds of samples.
func NewBuffer(duration float64) (*Buffer, error) {
	if !(duration > 0) {
		return nil, fmt.Errorf("buffer duration %v must be positive: %w", duration, ErrInvalidArgument)
	}
	return &Buffer{duration: duration}, nil
}

// Duration returns the configured retention in seconds.
func (b *Buffer) Duration() float64 { return b.duration }

// Len returns the number of stored samples.
func (b *Buffer) Len() int { return len(b.samples) - b.head }

// Filled reports whether at least one sample has been evicted, i.e. the buffer
// has seen a full window of data since it was created or last cleared.
func (b *Buffer) Filled() bool { return b.filled }

// Span returns newest minus oldest timestamp, or 0 when fewer than two
// samples are stored.
func (b *Buffer) Span() float64 {
	if b.Len() < 2 {
		return 0
	}
	return b.samples[len(b.samples)-1].Timestamp - b.samples[b.head].Timestamp
}

// Last returns the newest sample.
func (b *Buffer) Last() (Sample, bool) {
	if b.Len() == 0 {
		return Sample{}, false
	}
	return b.samples[len(b.samples)-1], true
}

// Push appends s. It fails with ErrNonFinite when the timestamp or value is
// NaN or infinite, and with ErrOrderingViolation when s is not strictly newer
// than the last stored sample; either way the buffer is left unchanged.
func (b *Buffer) Push(s Sample) error {
	if !s.Finite() {
		return fmt.Errorf("push %v: %w", s, ErrNonFinite)
	}
	if last, ok := b.Last(); ok && !(s.Timestamp > last.Timestamp) {
		return fmt.Errorf("push %.6f after %.6f: %w", s.Timestamp, last.Timestamp, ErrOrderingViolation)
	}
	b.insert(s)
	return nil
}

// PushOrDiscard appends s if it is finite and strictly newer than the last
// stored sample and silently drops it otherwise. It reports whether s was
// stored. Only auxiliary series (debug traces) should use this.
func (b *Buffer) PushOrDiscard(s Sample) bool {
	if !s.Finite() {
		return false
	}
	if last, ok := b.Last(); ok && !(s.Timestamp > last.Timestamp) {
		return false
	}
	b.insert(s)
	return true
}

func (b *Buffer) insert(s Sample) {
	b.samples = append(b.samples, s)
	for b.Len() > 1 && s.Timestamp-b.samples[b.head].Timestamp > b.duration {
		b.samples[b.head] = Sample{}
		b.head++
		b.filled = true
	}
	if b.head >= compactThreshold && b.head*2 >= len(b.samples) {
		n := copy(b.samples, b.samples[b.head:])
		b.samples = b.samples[:n]
		b.head = 0
	}
}

// Snapshot returns an ordered copy of the current contents. No resampling is
// applied; see Resample.
func (b *Buffer) Snapshot() []Sample {
	out := make([]Sample, b.Len())
	copy(out, b.samples[b.head:])
	return out
}

// Clear empties the buffer and resets the filled flag.
func (b *Buffer) Clear() {
	b.samples = b.samples[:0]
	b.head = 0
	b.filled = false
}
