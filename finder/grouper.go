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

// Grouper partitions images into classes of exactly equal hash values
type Grouper struct {
	Cache  *hashcache.Client
	Hasher imageprocessor.Hasher
	Verify bool
	Digest hashcache.DigestAlgorithm
	Log    *logrus.Entry

	// Excluded images are left out without a cache lookup, typically the
	// failures of the phase that just ran.
	Excluded map[types.ImageRef]struct{}
}

// Exclude replaces the excluded set with images
func (g *Grouper) Exclude(images []types.ImageRef) {
	g.Excluded = make(map[types.ImageRef]struct{}, len(images))
	for _, img := range images {
		g.Excluded[img] = struct{}{}
	}
}

// NewGrouper builds a grouper reading through cache
func NewGrouper(cache *hashcache.Client, hasher imageprocessor.Hasher, opts Options) *Grouper {
	return &Grouper{
		Cache:  cache,
		Hasher: hasher,
		Verify: opts.Verify,
		Digest: opts.Digest,
		Log:    logging.WithComponent("grouper"),
	}
}

// Group returns the buckets of images sharing a value under algo. Only buckets
// with at least two members are kept. Buckets appear in order of their first
// member, members in input order. Values normally come from the cache; a miss
// is computed the same way the phase would.
func (g *Grouper) Group(ctx context.Context, images []types.ImageRef, algo types.Algorithm) ([]types.CandidateGroup, error) {
	if err := algo.Validate(); err != nil {
		return nil, err
	}
	log := g.Log
	if log == nil {
		log = logging.WithComponent("grouper")
	}
	w := &worker{
		client: g.Cache,
		hasher: g.Hasher,
		verify: g.Verify,
		digest: g.Digest,
		log:    log.WithField("phase", algo.String()),
	}

	index := make(map[types.HashValue]int)
	seen := make(map[types.ImageRef]struct{}, len(images))
	var buckets []types.CandidateGroup

	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, dup := seen[img]; dup {
			continue
		}
		seen[img] = struct{}{}
		if _, skip := g.Excluded[img]; skip {
			w.log.WithField("path", img).Debug("excluded from grouping, hashing failed")
			continue
		}

		v, _, err := w.hash(ctx, img, algo)
		if err != nil {
			if isDecodeError(err) {
				w.log.WithField("path", img).WithError(err).Debug("excluded from grouping")
				continue
			}
			return nil, errors.Wrapf(err, "group %s", img)
		}

		i, ok := index[v]
		if !ok {
			i = len(buckets)
			index[v] = i
			buckets = append(buckets, types.CandidateGroup{Value: v})
		}
		buckets[i].Images = append(buckets[i].Images, img)
	}

	groups := make([]types.CandidateGroup, 0, len(buckets))
	for _, b := range buckets {
		if len(b.Images) > 1 {
			groups = append(groups, b)
		}
	}
	return groups, nil
}

// Flatten lists every image of groups once, in group order
func Flatten(groups []types.CandidateGroup) []types.ImageRef {
	seen := make(map[types.ImageRef]struct{})
	var out []types.ImageRef
	for _, g := range groups {
		for _, img := range g.Images {
			if _, dup := seen[img]; dup {
				continue
			}
			seen[img] = struct{}{}
			out = append(out, img)
		}
	}
	return out
}
