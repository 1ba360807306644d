package types

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ImageRef is the resolved absolute path of an image file
type ImageRef string

// ContentDigest is a fingerprint of a file's bytes, formatted as "<algo>:<hex>"
type ContentDigest string

// HashValue is the hex rendering of a perceptual hash bit vector
type HashValue string

// Algorithm names understood by the hashing layer
const (
	AlgorithmAverage    = "ahash"
	AlgorithmDifference = "dhash"
	AlgorithmPerception = "phash"
)

// Algorithm identifies a hash function together with its parameters
type Algorithm struct {
	Name           string
	HashSize       int
	HighFreqFactor int
}

// Params renders the parameters in a canonical, order-stable form
func (a Algorithm) Params() string {
	if a.Name == AlgorithmPerception {
		return fmt.Sprintf("hash_size=%d;highfreq_factor=%d", a.HashSize, a.HighFreqFactor)
	}
	return fmt.Sprintf("hash_size=%d", a.HashSize)
}

// Tag is the label cache entries computed with this algorithm are stored under
func (a Algorithm) Tag() string {
	if a.Name == "" {
		return "hash"
	}
	return strings.ToUpper(a.Name[:1]) + "-hash"
}

func (a Algorithm) String() string {
	return a.Name + "(" + a.Params() + ")"
}

// Validate checks the parameters against what the hash implementations accept
func (a Algorithm) Validate() error {
	if a.HashSize <= 0 {
		return errors.Errorf("%s: hash size must be positive, got %d", a.Name, a.HashSize)
	}
	switch a.Name {
	case AlgorithmAverage, AlgorithmDifference:
		if (a.HashSize*a.HashSize)%64 != 0 {
			return errors.Errorf("%s: hash size squared must be a multiple of 64, got %d", a.Name, a.HashSize)
		}
	case AlgorithmPerception:
		if a.HashSize&(a.HashSize-1) != 0 {
			return errors.Errorf("%s: hash size must be a power of two, got %d", a.Name, a.HashSize)
		}
		if a.HighFreqFactor <= 0 {
			return errors.Errorf("%s: high frequency factor must be positive, got %d", a.Name, a.HighFreqFactor)
		}
	default:
		return errors.Errorf("unknown hash algorithm %q", a.Name)
	}
	return nil
}

// HashKey identifies one memoized hash computation.
// Keys that differ only in Digest are distinct entries.
type HashKey struct {
	Algorithm string
	Params    string
	Image     ImageRef
	Digest    ContentDigest
}

// NewHashKey builds the key for hashing image with algo
func NewHashKey(algo Algorithm, image ImageRef, digest ContentDigest) HashKey {
	return HashKey{
		Algorithm: algo.Name,
		Params:    algo.Params(),
		Image:     image,
		Digest:    digest,
	}
}

// String renders the key as a single string, used by key-value stores
func (k HashKey) String() string {
	return k.Algorithm + "|" + k.Params + "|" + string(k.Image) + "|" + string(k.Digest)
}

// CandidateGroup is a set of images that share an identical hash value
type CandidateGroup struct {
	Value  HashValue
	Images []ImageRef
}

// DuplicateSet is a group that survived both the coarse and the fine phase
type DuplicateSet CandidateGroup
