package indexer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/index"
)

// Job runs the map phase of one input for one index.
type Job func(ctx context.Context) (index.StorageUpdate, error)

// Updater is the update entry point of an index with content type I.
// *index.MapReduceIndex implements it.
type Updater[I any] interface {
	Update(ctx context.Context, id index.InputID, content *I) (index.StorageUpdate, error)
}

// UpdateJob maps content for id in u. A nil content removes the input.
func UpdateJob[I any](u Updater[I], id index.InputID, content *I) Job {
	return func(ctx context.Context) (index.StorageUpdate, error) {
		return u.Update(ctx, id, content)
	}
}

// MapAll runs jobs with at most workers in flight and returns their updates
// combined in job order. The first failing job cancels the rest.
func MapAll(ctx context.Context, workers int, jobs []Job) (index.StorageUpdate, error) {
	if len(jobs) == 0 {
		return index.NoopUpdate, nil
	}
	updates := make([]index.StorageUpdate, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, job := range jobs {
		g.Go(func() error {
			u, err := job(gctx)
			if err != nil {
				return fmt.Errorf("job %d: %w", i, err)
			}
			updates[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return index.Combine(updates...), nil
}

// Apply maps every job using the configured number of workers and commits
// the results in order. It reports whether every commit succeeded.
func (r *Registry) Apply(ctx context.Context, jobs ...Job) (bool, error) {
	u, err := MapAll(ctx, r.cfg.MapWorkers, jobs)
	if err != nil {
		return false, err
	}
	return u.Update(), nil
}
