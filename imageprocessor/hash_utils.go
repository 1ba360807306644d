package imageprocessor

import (
	"fmt"
	"image"
	"strings"

	"imagemanager/types"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Hasher computes the hash of one image file under an algorithm.
// Implementations must be safe for concurrent use.
type Hasher interface {
	Hash(path string, algo types.Algorithm) (types.HashValue, error)
}

// HasherFunc adapts a function to the Hasher interface
type HasherFunc func(path string, algo types.Algorithm) (types.HashValue, error)

// Hash calls f
func (f HasherFunc) Hash(path string, algo types.Algorithm) (types.HashValue, error) {
	return f(path, algo)
}

// ImageHasher loads files through a loader registry and hashes the pixels
type ImageHasher struct {
	registry *ImageLoaderRegistry
}

// NewImageHasher creates a hasher backed by registry
func NewImageHasher(registry *ImageLoaderRegistry) *ImageHasher {
	return &ImageHasher{registry: registry}
}

// Hash decodes the file and computes its hash. Unreadable files yield a DecodeError.
func (h *ImageHasher) Hash(path string, algo types.Algorithm) (types.HashValue, error) {
	img, err := h.registry.LoadImage(path)
	if err != nil {
		return "", err
	}
	v, err := ComputeHash(img, algo)
	if err != nil {
		return "", newDecodeError(path, err)
	}
	return v, nil
}

// ComputeHash computes the hash of an already decoded image
func ComputeHash(img image.Image, algo types.Algorithm) (types.HashValue, error) {
	if err := algo.Validate(); err != nil {
		return "", err
	}
	if img == nil || img.Bounds().Empty() {
		return "", errors.New("cannot hash an empty image")
	}

	var (
		h   *goimagehash.ExtImageHash
		err error
	)
	switch algo.Name {
	case types.AlgorithmAverage:
		h, err = goimagehash.ExtAverageHash(img, algo.HashSize, algo.HashSize)
	case types.AlgorithmDifference:
		h, err = goimagehash.ExtDifferenceHash(img, algo.HashSize, algo.HashSize)
	case types.AlgorithmPerception:
		// goimagehash rescales to its own (size*size)-pixel square before the
		// DCT, so this pre-resize is what drops detail finer than
		// hash_size*highfreq_factor pixels.
		side := algo.HashSize * algo.HighFreqFactor
		h, err = goimagehash.ExtPerceptionHash(imaging.Resize(img, side, side, imaging.Lanczos), algo.HashSize, algo.HashSize)
	}
	if err != nil {
		return "", errors.Wrapf(err, "compute %s", algo.Name)
	}
	return formatHash(algo.Name, h.GetHash()), nil
}

// formatHash renders the bit vector as fixed-width hex, prefixed by the algorithm
func formatHash(name string, bits []uint64) types.HashValue {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte(':')
	for _, word := range bits {
		fmt.Fprintf(&b, "%016x", word)
	}
	return types.HashValue(b.String())
}
