package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/impedance/internal/monitoring"
	"github.com/banshee-data/impedance/internal/signal"
	"github.com/banshee-data/impedance/internal/timeutil"
)

// ReadCSV parses rows of timestamp,value[,annotation] with no header. A row
// with a negative timestamp marks the end of the capture; it and anything
// after it are ignored. Timestamps must be strictly increasing.
func ReadCSV(r io.Reader) ([]signal.Sample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var samples []signal.Sample
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		s, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		if s.Timestamp < 0 {
			break
		}
		if n := len(samples); n > 0 && !(s.Timestamp > samples[n-1].Timestamp) {
			return nil, fmt.Errorf("row %d: timestamp %v not after %v: %w", row, s.Timestamp, samples[n-1].Timestamp, signal.ErrOrderingViolation)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// LoadCSV reads a capture file with ReadCSV.
func LoadCSV(path string) ([]signal.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	samples, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

func parseRecord(record []string) (signal.Sample, error) {
	if len(record) < 2 || len(record) > 3 {
		return signal.Sample{}, fmt.Errorf("expected 2 or 3 fields, got %d", len(record))
	}
	t, err := parseFinite(record[0])
	if err != nil {
		return signal.Sample{}, fmt.Errorf("timestamp: %w", err)
	}
	v, err := parseFinite(record[1])
	if err != nil {
		return signal.Sample{}, fmt.Errorf("value: %w", err)
	}
	s := signal.Sample{Timestamp: t, Value: v}
	if len(record) == 3 {
		s.Annotation = strings.TrimSpace(record[2])
	}
	return s, nil
}

// parseFinite parses a number, rejecting the NaN and Inf spellings that
// strconv accepts.
func parseFinite(field string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q: %w", strings.TrimSpace(field), signal.ErrNonFinite)
	}
	return f, nil
}

// CSVReplay replays a parsed capture, pacing samples against Clock so that
// sample i is sent (Timestamp_i - Timestamp_0)/Speed after the first.
type CSVReplay struct {
	Samples []signal.Sample
	Clock   timeutil.Clock
	// Speed scales playback; 1 is real time. Zero or negative sends as fast
	// as the consumer reads.
	Speed float64
}

// NewCSVReplay loads path for real-time replay.
func NewCSVReplay(path string) (*CSVReplay, error) {
	samples, err := LoadCSV(path)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("source: loaded %d samples from %s", len(samples), path)
	return &CSVReplay{Samples: samples, Clock: timeutil.RealClock{}, Speed: 1}, nil
}

// Run sends every sample then closes out.
func (r *CSVReplay) Run(ctx context.Context, out chan<- signal.Sample) error {
	defer close(out)
	if len(r.Samples) == 0 {
		return nil
	}
	clock := r.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	t0 := r.Samples[0].Timestamp
	start := clock.Now()
	for _, s := range r.Samples {
		if r.Speed > 0 {
			offset := time.Duration((s.Timestamp - t0) / r.Speed * float64(time.Second))
			if err := timeutil.SleepContext(ctx, clock, offset-clock.Since(start)); err != nil {
				return err
			}
		}
		if err := send(ctx, out, s); err != nil {
			return err
		}
	}
	return nil
}

// CSVRecorder writes samples in the format ReadCSV accepts, flushing each row
// so a capture survives an abrupt stop.
type CSVRecorder struct {
	w *csv.Writer
	c io.Closer
}

// NewCSVRecorder writes to w. If w is an io.Closer it is closed by Close.
func NewCSVRecorder(w io.Writer) *CSVRecorder {
	rec := &CSVRecorder{w: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		rec.c = c
	}
	return rec
}

// CreateCSVRecorder creates (or truncates) path.
func CreateCSVRecorder(path string) (*CSVRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture: %w", err)
	}
	return NewCSVRecorder(f), nil
}

// Record appends one row.
func (r *CSVRecorder) Record(s signal.Sample) error {
	record := []string{
		strconv.FormatFloat(s.Timestamp, 'f', -1, 64),
		strconv.FormatFloat(s.Value, 'f', -1, 64),
	}
	if s.Annotation != "" {
		record = append(record, s.Annotation)
	}
	if err := r.w.Write(record); err != nil {
		return err
	}
	r.w.Flush()
	return r.w.Error()
}

// Close flushes and closes the underlying writer if it is closable.
func (r *CSVRecorder) Close() error {
	r.w.Flush()
	err := r.w.Error()
	if r.c != nil {
		if cerr := r.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Tee forwards samples from in to the returned channel, recording each one.
// Recording failures are logged once and recording stops; forwarding
// continues. The returned channel closes when in closes or ctx is done.
func Tee(ctx context.Context, in <-chan signal.Sample, rec *CSVRecorder) <-chan signal.Sample {
	out := make(chan signal.Sample, cap(in))
	go func() {
		defer close(out)
		recording := true
		for s := range in {
			if recording {
				if err := rec.Record(s); err != nil {
					monitoring.Logf("source: capture stopped: %v", err)
					recording = false
				}
			}
			if send(ctx, out, s) != nil {
				return
			}
		}
	}()
	return out
}
