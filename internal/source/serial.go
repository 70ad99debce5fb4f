package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/banshee-data/impedance/internal/monitoring"
	"github.com/banshee-data/impedance/internal/signal"
	"github.com/banshee-data/impedance/internal/timeutil"
)

// Subscriber is the part of a serialmux.SerialMux a Serial source needs.
type Subscriber interface {
	Subscribe() (string, chan string)
	Unsubscribe(string)
}

// Serial turns lines from a serial front-end into samples. A line is either
// "timestamp,value[,annotation]" or a bare "value", which is stamped with the
// seconds elapsed on Clock since Run started. Malformed lines and samples that
// do not advance the timestamp are logged and skipped.
type Serial struct {
	Mux   Subscriber
	Clock timeutil.Clock

	skipped int
}

// NewSerial reads from mux using the wall clock.
func NewSerial(mux Subscriber) *Serial {
	return &Serial{Mux: mux, Clock: timeutil.RealClock{}}
}

// Skipped returns how many lines were rejected.
func (s *Serial) Skipped() int { return s.skipped }

// Run forwards samples until the subscription closes or ctx is done.
func (s *Serial) Run(ctx context.Context, out chan<- signal.Sample) error {
	defer close(out)
	clock := s.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	id, lines := s.Mux.Subscribe()
	defer s.Mux.Unsubscribe(id)

	epoch := clock.Now()
	last, haveLast := 0.0, false
	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok = <-lines:
			if !ok {
				return nil
			}
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sample, stamped, err := ParseLine(line)
		if err != nil {
			s.skipped++
			monitoring.Logf("source: skipping serial line %q: %v", line, err)
			continue
		}
		if !stamped {
			sample.Timestamp = timeutil.Seconds(clock, epoch)
		}
		if haveLast && !(sample.Timestamp > last) {
			s.skipped++
			monitoring.Debugf("source: dropping serial sample at %.6fs, not after %.6fs", sample.Timestamp, last)
			continue
		}
		last, haveLast = sample.Timestamp, true

		if err := send(ctx, out, sample); err != nil {
			return err
		}
	}
}

// ParseLine parses one device line. stamped reports whether the line carried
// its own timestamp.
func ParseLine(line string) (sample signal.Sample, stamped bool, err error) {
	fields := strings.Split(line, ",")
	switch len(fields) {
	case 1:
		v, err := parseFinite(fields[0])
		if err != nil {
			return signal.Sample{}, false, fmt.Errorf("value: %w", err)
		}
		return signal.Sample{Value: v}, false, nil
	case 2, 3:
		s, err := parseRecord(fields)
		if err != nil {
			return signal.Sample{}, false, err
		}
		if s.Timestamp < 0 {
			return signal.Sample{}, false, fmt.Errorf("negative timestamp %v", s.Timestamp)
		}
		return s, true, nil
	default:
		return signal.Sample{}, false, fmt.Errorf("expected 1 to 3 fields, got %d", len(fields))
	}
}
