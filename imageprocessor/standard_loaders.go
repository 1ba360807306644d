package imageprocessor

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// StandardImageLoader decodes common formats with the Go codecs and applies
// the EXIF orientation
type StandardImageLoader struct {
	BaseImageLoader
}

// NewStandardImageLoader creates a new loader for standard image formats
func NewStandardImageLoader() *StandardImageLoader {
	return &StandardImageLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{
				FormatJPEG,
				FormatPNG,
				FormatGIF,
				FormatBMP,
				FormatWEBP,
				FormatTIFF,
			},
		},
	}
}

// LoadImage loads a standard image format
func (l *StandardImageLoader) LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return img, nil
}

// OpenCVImageLoader reads images through OpenCV. It is used as the fallback
// when the primary loader for a file fails.
type OpenCVImageLoader struct {
	BaseImageLoader
}

// NewOpenCVImageLoader creates the OpenCV fallback loader
func NewOpenCVImageLoader() *OpenCVImageLoader {
	return &OpenCVImageLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{
				FormatJPEG,
				FormatPNG,
				FormatBMP,
				FormatWEBP,
				FormatTIFF,
			},
		},
	}
}

// LoadImage reads the file with IMRead and converts the Mat to an image.Image
func (l *OpenCVImageLoader) LoadImage(path string) (image.Image, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	defer mat.Close()

	if mat.Empty() {
		return nil, errors.New("opencv could not read image")
	}
	img, err := mat.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "convert opencv mat")
	}
	return img, nil
}
