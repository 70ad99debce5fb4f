package cycles

import (
	"fmt"

	"github.com/banshee-data/impedance/internal/signal"
)

// History is a FIFO-bounded, deduplicated record of detected cycles in
// insertion order. Overlapping analysis windows re-detect the same cycle; the
// first detection is kept.
type History struct {
	maxCycles int
	cycles    []Stats
}

// NewHistory returns an empty history holding at most maxCycles entries.
func NewHistory(maxCycles int) (*History, error) {
	if maxCycles <= 0 {
		return nil, fmt.Errorf("history size %d must be positive: %w", maxCycles, signal.ErrInvalidArgument)
	}
	return &History{maxCycles: maxCycles, cycles: make([]Stats, 0, maxCycles+1)}, nil
}

// Add appends s unless a coincident cycle is already recorded. It reports
// whether s was stored. The oldest entries are trimmed beyond the bound.
func (h *History) Add(s Stats) bool {
	for i := len(h.cycles) - 1; i >= 0; i-- {
		if s.Coincident(h.cycles[i]) {
			return false
		}
	}
	h.cycles = append(h.cycles, s)
	if over := len(h.cycles) - h.maxCycles; over > 0 {
		n := copy(h.cycles, h.cycles[over:])
		h.cycles = h.cycles[:n]
	}
	return true
}

// Len returns the number of recorded cycles.
func (h *History) Len() int { return len(h.cycles) }

// Max returns the configured bound.
func (h *History) Max() int { return h.maxCycles }

// All returns a copy of the history, oldest first.
func (h *History) All() []Stats {
	out := make([]Stats, len(h.cycles))
	copy(out, h.cycles)
	return out
}

// Latest returns the most recently added cycle.
func (h *History) Latest() (Stats, bool) {
	if len(h.cycles) == 0 {
		return Stats{}, false
	}
	return h.cycles[len(h.cycles)-1], true
}

// Recent returns a copy of up to the n most recent cycles, oldest first.
func (h *History) Recent(n int) []Stats {
	if n > len(h.cycles) {
		n = len(h.cycles)
	}
	if n <= 0 {
		return nil
	}
	out := make([]Stats, n)
	copy(out, h.cycles[len(h.cycles)-n:])
	return out
}
