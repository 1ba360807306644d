package finder

import (
	"context"

	"imagemanager/hashcache"
	"imagemanager/imageprocessor"
	"imagemanager/logging"
	"imagemanager/types"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Executor runs one hashing phase over a bounded worker pool. Its only
// effect is filling the cache; results are read back by a Grouper.
type Executor struct {
	Open         hashcache.Opener
	Hasher       imageprocessor.Hasher
	Verify       bool
	Digest       hashcache.DigestAlgorithm
	Workers      int
	ShowProgress bool
	Log          *logrus.Entry
}

// NewExecutor builds an executor from search options
func NewExecutor(open hashcache.Opener, hasher imageprocessor.Hasher, opts Options) *Executor {
	return &Executor{
		Open:         open,
		Hasher:       hasher,
		Verify:       opts.Verify,
		Digest:       opts.Digest,
		Workers:      opts.workers(),
		ShowProgress: opts.ShowProgress,
		Log:          logging.WithComponent("executor"),
	}
}

// RunPhase makes sure every image has a cached value under algo. Images that
// cannot be decoded are logged and skipped. A cache failure or cancellation
// stops all workers and is returned.
func (e *Executor) RunPhase(ctx context.Context, images []types.ImageRef, algo types.Algorithm) (PhaseStats, error) {
	log := e.Log
	if log == nil {
		log = logging.WithComponent("executor")
	}
	log = log.WithField("phase", algo.String())
	if err := algo.Validate(); err != nil {
		return PhaseStats{Phase: algo.String(), Total: len(images)}, err
	}

	workers := e.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(images) {
		workers = len(images)
	}

	tracker := NewProgressTracker(algo.String(), len(images), e.ShowProgress, log)
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan types.ImageRef)

	g.Go(func() error {
		defer close(jobs)
		for _, img := range images {
			select {
			case jobs <- img:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		w := &worker{
			id:     i,
			open:   e.Open,
			hasher: e.Hasher,
			verify: e.Verify,
			digest: e.Digest,
			log:    log.WithField("worker", i),
		}
		g.Go(func() error {
			defer w.close()
			for img := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				_, cached, err := w.hash(gctx, img, algo)
				if err != nil && !isDecodeError(err) {
					return errors.Wrapf(err, "%s: %s", algo.Name, img)
				}
				tracker.Record(ProcessImageResult{Path: string(img), Cached: cached, Error: err})
			}
			return nil
		})
	}

	err := g.Wait()
	stats := tracker.Stop()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return stats, err
	}

	log.WithFields(logrus.Fields{
		"total":    stats.Total,
		"cached":   stats.Cached,
		"computed": stats.Computed,
		"failed":   stats.Failed,
		"elapsed":  stats.Elapsed,
	}).Info("phase finished")
	return stats, nil
}
