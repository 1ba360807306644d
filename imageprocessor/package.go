// Package imageprocessor loads images of various formats and computes the
// perceptual hashes used to detect duplicates.
package imageprocessor

import "image"

// ImageLoader is the interface that all image loaders must implement
type ImageLoader interface {
	// CanLoad checks if the loader can handle the given file
	CanLoad(path string) bool

	// LoadImage loads and returns the decoded image
	LoadImage(path string) (image.Image, error)
}
