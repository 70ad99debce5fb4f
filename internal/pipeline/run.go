package pipeline

import (
	"context"
	"errors"

	"github.com/banshee-data/impedance/internal/monitoring"
	"github.com/banshee-data/impedance/internal/signal"
)

// Run feeds samples from a producer goroutine into p on the calling
// goroutine, so the Processor is never touched concurrently. Closing samples
// ends the stream (p.End) and Run returns nil. onResult, if non-nil, is called
// for every analysis pass. Non-finite samples are logged and skipped. A
// cancelled ctx returns ctx.Err(); any other Push error, such as an ordering
// violation, is returned as is.
func Run(ctx context.Context, p *Processor, samples <-chan signal.Sample, onResult func(Result)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-samples:
			if !ok {
				p.End()
				return nil
			}
			res, err := p.Push(s)
			if errors.Is(err, signal.ErrNonFinite) {
				monitoring.Logf("pipeline %s: skipping sample: %v", p.ID(), err)
				continue
			}
			if err != nil {
				return err
			}
			if res != nil && onResult != nil {
				onResult(*res)
			}
		}
	}
}
