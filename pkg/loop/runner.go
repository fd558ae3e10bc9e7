package loop

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunAll runs independent tasks concurrently, at most parallelism at a time.
// States are returned in task order. The first hard error cancels the rest.
func (l *Loop) RunAll(ctx context.Context, tasks []Task, steps, parallelism int) ([]*State, error) {
	states := make([]*State, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			st, err := l.Run(gctx, t, steps)
			states[i] = st
			return err
		})
	}
	return states, g.Wait()
}
