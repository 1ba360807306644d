package scanner

import (
	"strings"

	"imagemanager/imageprocessor"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// IsImageFile reports whether the file content is an image. RAW formats are
// accepted by extension since their containers often sniff as TIFF or ISO media.
func IsImageFile(fs afero.Fs, path string) (bool, error) {
	if imageprocessor.IsRawFormat(path) {
		return true, nil
	}

	f, err := fs.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	mime, err := mimetype.DetectReader(f)
	if err != nil {
		return false, err
	}
	return isImageMIME(mime), nil
}

func isImageMIME(mime *mimetype.MIME) bool {
	for m := mime; m != nil; m = m.Parent() {
		if m.Is("image/svg+xml") {
			return false
		}
		if strings.HasPrefix(m.String(), "image/") {
			return true
		}
	}
	return false
}
