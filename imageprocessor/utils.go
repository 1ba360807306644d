package imageprocessor

import (
	"image"
	"os"
)

// Dimensions returns the stored pixel size of an image. The header is read
// when the codec supports it, otherwise the whole image is loaded.
func (r *ImageLoaderRegistry) Dimensions(path string) (width, height int, err error) {
	if f, openErr := os.Open(path); openErr == nil {
		cfg, _, cfgErr := image.DecodeConfig(f)
		f.Close()
		if cfgErr == nil && cfg.Width > 0 && cfg.Height > 0 {
			return cfg.Width, cfg.Height, nil
		}
	}

	img, err := r.LoadImage(path)
	if err != nil {
		return 0, 0, err
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}
