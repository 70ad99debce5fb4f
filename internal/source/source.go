// Package source produces impedance samples for the pipeline: replayed from a
// CSV capture, read live from a serial front-end, or generated synthetically.
//
// Every source follows the same contract: Run sends samples on out in
// timestamp order and closes out when it returns, so channel closure is the
// end-of-stream signal seen by pipeline.Run.
package source

import (
	"context"

	"github.com/banshee-data/impedance/internal/signal"
)

// Source produces a stream of samples.
type Source interface {
	Run(ctx context.Context, out chan<- signal.Sample) error
}

// send delivers s unless ctx is done first.
func send(ctx context.Context, out chan<- signal.Sample, s signal.Sample) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- s:
		return nil
	}
}
