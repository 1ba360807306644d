package imageprocessor

import (
	"bytes"
	"encoding/base64"
	"image"
	"strings"
	"sync"

	"imagemanager/logging"

	"github.com/barasher/go-exiftool"
	"github.com/pkg/errors"
)

// previewTags lists the embedded previews tried in order, largest first
var previewTags = []string{
	"JpgFromRaw",
	"PreviewImage",
	"OtherImage",
	"ThumbnailImage",
}

// RawImageLoader extracts the embedded JPEG preview of camera RAW files with
// exiftool. The exiftool process is started on first use and shared, so calls
// are serialized.
type RawImageLoader struct {
	BaseImageLoader

	mu      sync.Mutex
	et      *exiftool.Exiftool
	initErr error
}

// NewRawImageLoader creates a new RAW image loader
func NewRawImageLoader() *RawImageLoader {
	return &RawImageLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{
				FormatRAW,
				FormatCR2,
				FormatCR3,
				FormatNEF,
				FormatARW,
				FormatDNG,
			},
		},
	}
}

// tool returns the running exiftool process, starting it if needed.
// Callers hold l.mu.
func (l *RawImageLoader) tool() (*exiftool.Exiftool, error) {
	if l.et == nil && l.initErr == nil {
		l.et, l.initErr = exiftool.NewExiftool(exiftool.ExtractAllBinaryMetadata())
		if l.initErr != nil {
			logging.LogWarning("exiftool unavailable, RAW previews disabled: %v", l.initErr)
		}
	}
	return l.et, l.initErr
}

// LoadImage decodes the largest embedded preview found in the RAW file
func (l *RawImageLoader) LoadImage(path string) (image.Image, error) {
	l.mu.Lock()
	et, err := l.tool()
	if err != nil {
		l.mu.Unlock()
		return nil, errors.Wrap(err, "start exiftool")
	}
	infos := et.ExtractMetadata(path)
	l.mu.Unlock()

	if len(infos) == 0 {
		return nil, errors.New("no metadata extracted")
	}
	if infos[0].Err != nil {
		return nil, errors.Wrap(infos[0].Err, "extract metadata")
	}

	for _, tag := range previewTags {
		raw, err := infos[0].GetString(tag)
		if err != nil || !strings.HasPrefix(raw, "base64:") {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(raw, "base64:"))
		if err != nil {
			logging.DebugLog("Bad %s payload in %s: %v", tag, path, err)
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			logging.DebugLog("Cannot decode %s of %s: %v", tag, path, err)
			continue
		}
		logging.DebugLog("Using %s preview for %s", tag, path)
		return img, nil
	}

	return nil, errors.New("no decodable embedded preview")
}

// Close stops the exiftool process if one was started
func (l *RawImageLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.et != nil {
		err := l.et.Close()
		l.et = nil
		return err
	}
	return nil
}
