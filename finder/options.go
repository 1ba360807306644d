package finder

import (
	"imagemanager/hashcache"
	"imagemanager/signalhandler"
	"imagemanager/types"

	"github.com/pkg/errors"
)

// Options configures a duplicate search
type Options struct {
	// Coarse is the cheap filter hash run over every image.
	Coarse types.Algorithm
	// Fine is the confirming hash run over coarse candidates only.
	Fine types.Algorithm
	// Verify adds a content digest to every cache key so changed files are rehashed.
	Verify bool
	Digest hashcache.DigestAlgorithm
	// Workers is the pool size per phase. Zero means one per usable CPU.
	Workers      int
	ShowProgress bool
}

// DefaultOptions returns the standard two-phase configuration: an 8x8 average
// hash followed by an 8x8 perceptual hash over a 32x32 DCT.
func DefaultOptions() Options {
	return Options{
		Coarse: types.Algorithm{Name: types.AlgorithmAverage, HashSize: 8},
		Fine:   types.Algorithm{Name: types.AlgorithmPerception, HashSize: 8, HighFreqFactor: 4},
		Digest: hashcache.DigestMD5,
	}
}

// Validate checks both phase algorithms
func (o Options) Validate() error {
	if err := o.Coarse.Validate(); err != nil {
		return errors.Wrap(err, "coarse phase")
	}
	if err := o.Fine.Validate(); err != nil {
		return errors.Wrap(err, "fine phase")
	}
	if o.Workers < 0 {
		return errors.Errorf("workers must not be negative, got %d", o.Workers)
	}
	return nil
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return signalhandler.GetOptimalProcs()
}
