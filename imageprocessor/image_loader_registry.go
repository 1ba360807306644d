package imageprocessor

import (
	"image"
	"path/filepath"
	"strings"
	"sync"

	"imagemanager/logging"

	"github.com/pkg/errors"
)

// ImageLoaderRegistry maintains a registry of image loaders
type ImageLoaderRegistry struct {
	loaders        map[string]ImageLoader
	defaultLoader  ImageLoader
	fallbackLoader ImageLoader
	rawLoader      *RawImageLoader
	mutex          sync.RWMutex
}

// NewImageLoaderRegistry creates a new image loader registry
func NewImageLoaderRegistry() *ImageLoaderRegistry {
	registry := &ImageLoaderRegistry{
		loaders: make(map[string]ImageLoader),
	}

	registry.registerStandardLoaders()
	registry.registerRawLoaders()

	return registry
}

func (r *ImageLoaderRegistry) registerStandardLoaders() {
	standardLoader := NewStandardImageLoader()
	for ext, format := range formatExtensions {
		for _, supported := range standardLoader.SupportedFormats {
			if format == supported {
				r.RegisterLoader(ext, standardLoader)
			}
		}
	}

	r.defaultLoader = standardLoader
	r.fallbackLoader = NewOpenCVImageLoader()
}

func (r *ImageLoaderRegistry) registerRawLoaders() {
	r.rawLoader = NewRawImageLoader()
	for _, ext := range RawExtensions() {
		r.RegisterLoader(ext, r.rawLoader)
	}
}

// RegisterLoader registers a new loader for a specific file extension
func (r *ImageLoaderRegistry) RegisterLoader(ext string, loader ImageLoader) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.loaders[strings.ToLower(ext)] = loader
}

// GetLoader returns the appropriate loader for the given path
func (r *ImageLoaderRegistry) GetLoader(path string) ImageLoader {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ext := strings.ToLower(filepath.Ext(path))
	if loader, ok := r.loaders[ext]; ok {
		return loader
	}
	return r.defaultLoader
}

// LoadImage loads an image with the loader registered for its extension,
// retrying through the fallback loader when that fails and the fallback
// supports the format. Failures are DecodeErrors.
func (r *ImageLoaderRegistry) LoadImage(path string) (image.Image, error) {
	if !hasFileContent(path) {
		return nil, newDecodeError(path, errors.New("missing or empty file"))
	}

	loader := r.GetLoader(path)
	img, err := loader.LoadImage(path)
	if err == nil {
		return img, nil
	}

	if r.fallbackLoader != nil && loader != r.fallbackLoader && r.fallbackLoader.CanLoad(path) {
		logging.DebugLog("Primary loader failed for %s (%v), trying fallback", path, err)
		if img, fbErr := r.fallbackLoader.LoadImage(path); fbErr == nil {
			return img, nil
		}
	}
	return nil, newDecodeError(path, err)
}

// Close releases helper processes started by the loaders
func (r *ImageLoaderRegistry) Close() error {
	if r.rawLoader != nil {
		return r.rawLoader.Close()
	}
	return nil
}
