package finder

import (
	"context"

	"imagemanager/hashcache"
	"imagemanager/imageprocessor"
	"imagemanager/logging"
	"imagemanager/types"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Source produces the candidate images of a run
type Source interface {
	Discover(roots []string, recursive bool) ([]types.ImageRef, error)
}

// Pipeline runs discovery, the coarse phase and the fine phase in order
type Pipeline struct {
	Source  Source
	Open    hashcache.Opener
	Hasher  imageprocessor.Hasher
	Options Options
	Log     *logrus.Entry

	// Stats holds the phase summaries of the last run.
	Stats []PhaseStats
}

// NewPipeline wires a pipeline with default logging
func NewPipeline(source Source, open hashcache.Opener, hasher imageprocessor.Hasher, opts Options) *Pipeline {
	return &Pipeline{
		Source:  source,
		Open:    open,
		Hasher:  hasher,
		Options: opts,
		Log:     logging.WithComponent("pipeline"),
	}
}

// Run finds the sets of images that are equal under both the coarse and the
// fine hash. Only coarse candidates are fine-hashed.
func (p *Pipeline) Run(ctx context.Context, roots []string, recursive bool) ([]types.DuplicateSet, error) {
	p.Stats = nil
	opts := p.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	log := p.Log
	if log == nil {
		log = logging.WithComponent("pipeline")
	}

	images, err := p.Source.Discover(roots, recursive)
	if err != nil {
		return nil, err
	}
	log.WithField("images", len(images)).Info("discovered images")

	cache, err := hashcache.Open(ctx, p.Open)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cache.Close(); err != nil {
			log.WithError(err).Warn("closing cache handle")
		}
	}()

	executor := NewExecutor(p.Open, p.Hasher, opts)
	executor.Log = log.WithField("component", "executor")
	grouper := NewGrouper(cache, p.Hasher, opts)
	grouper.Log = log.WithField("component", "grouper")

	stats, err := executor.RunPhase(ctx, images, opts.Coarse)
	p.Stats = append(p.Stats, stats)
	if err != nil {
		return nil, errors.Wrap(err, "coarse phase")
	}
	grouper.Exclude(stats.FailedImages)
	candidates, err := grouper.Group(ctx, images, opts.Coarse)
	if err != nil {
		return nil, errors.Wrap(err, "coarse grouping")
	}
	flat := Flatten(candidates)
	log.WithFields(logrus.Fields{"groups": len(candidates), "candidates": len(flat)}).Info("coarse grouping done")
	if len(flat) == 0 {
		return []types.DuplicateSet{}, nil
	}

	stats, err = executor.RunPhase(ctx, flat, opts.Fine)
	p.Stats = append(p.Stats, stats)
	if err != nil {
		return nil, errors.Wrap(err, "fine phase")
	}
	grouper.Exclude(stats.FailedImages)

	// Fine values are compared within each coarse group, so every member of a
	// set matches its mates under both hashes.
	sets := make([]types.DuplicateSet, 0, len(candidates))
	for _, candidate := range candidates {
		confirmed, err := grouper.Group(ctx, candidate.Images, opts.Fine)
		if err != nil {
			return nil, errors.Wrap(err, "fine grouping")
		}
		for _, g := range confirmed {
			sets = append(sets, types.DuplicateSet(g))
		}
	}
	log.WithField("sets", len(sets)).Info("duplicate search finished")
	return sets, nil
}
