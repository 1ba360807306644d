package imageprocessor

import (
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// FormatType represents a known image format type
type FormatType string

// Known image format constants
const (
	FormatUnknown FormatType = "unknown"
	FormatJPEG    FormatType = "jpeg"
	FormatPNG     FormatType = "png"
	FormatGIF     FormatType = "gif"
	FormatTIFF    FormatType = "tiff"
	FormatBMP     FormatType = "bmp"
	FormatWEBP    FormatType = "webp"
	FormatRAW     FormatType = "raw"
	FormatCR2     FormatType = "cr2"
	FormatCR3     FormatType = "cr3"
	FormatNEF     FormatType = "nef"
	FormatARW     FormatType = "arw"
	FormatDNG     FormatType = "dng"
)

var formatExtensions = map[string]FormatType{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".gif":  FormatGIF,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
	".bmp":  FormatBMP,
	".webp": FormatWEBP,

	// RAW formats
	".raw": FormatRAW,
	".cr2": FormatCR2,
	".cr3": FormatCR3,
	".nef": FormatNEF,
	".arw": FormatARW,
	".dng": FormatDNG,
	".raf": FormatRAW,
	".nrw": FormatRAW,
	".srf": FormatRAW,
	".orf": FormatRAW,
	".rw2": FormatRAW,
	".pef": FormatRAW,
}

// GetFileFormat returns the format type based on file extension
func GetFileFormat(path string) FormatType {
	ext := strings.ToLower(filepath.Ext(path))
	format, exists := formatExtensions[ext]
	if !exists {
		return FormatUnknown
	}
	return format
}

// IsRawFormat checks if a file is in a camera RAW format
func IsRawFormat(path string) bool {
	switch GetFileFormat(path) {
	case FormatRAW, FormatCR2, FormatCR3, FormatNEF, FormatARW, FormatDNG:
		return true
	}
	return false
}

// RawExtensions returns the extensions handled by the RAW preview loader
func RawExtensions() []string {
	var exts []string
	for ext := range formatExtensions {
		if IsRawFormat(ext) {
			exts = append(exts, ext)
		}
	}
	return exts
}
