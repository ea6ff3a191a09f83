package codecpump

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Group runs several pumps concurrently.
// When a pump fails, the other ones are interrupted through a shared stop flag.
type Group struct {
	// pumps. Each pump must own its engines and its source.
	Pumps []*Pump

	// shared stop flag (optional).
	// It overrides the stop flag of every pump.
	Stop *atomic.Bool
}

// Run runs all the pumps and waits for them.
// It returns the records of all pumps, in the same order, and the first error.
// Records of failed pumps are nil.
func (g *Group) Run(ctx context.Context) ([]*Record, error) {
	stop := g.Stop
	if stop == nil {
		stop = &atomic.Bool{}
	}

	recs := make([]*Record, len(g.Pumps))
	eg := &errgroup.Group{}

	for i, p := range g.Pumps {
		p.Stop = stop

		eg.Go(func() error {
			rec, err := p.Run(ctx)
			if err != nil {
				stop.Store(true)
				return err
			}

			recs[i] = rec
			return nil
		})
	}

	err := eg.Wait()
	return recs, err
}
