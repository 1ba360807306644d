package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"imagemanager/logging"
	"imagemanager/types"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngMagic  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	jpegMagic = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
)

func newTestScanner(t *testing.T) *Scanner {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string][]byte{
		"/photos/a.png":             pngMagic,
		"/photos/b.jpg":             jpegMagic,
		"/photos/notes.txt":         []byte("shopping list"),
		"/photos/renamed.dat":       pngMagic,
		"/photos/raw/c.nef":         []byte("II*\x00 nikon"),
		"/photos/raw/deeper/d.png":  pngMagic,
		"/photos/raw/deeper/e.html": []byte("<html><body></body></html>"),
		"/elsewhere/f.jpg":          jpegMagic,
	}
	for path, data := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(fs, path, data, 0o644))
	}
	return &Scanner{Fs: fs, Log: logging.WithComponent("scanner-test")}
}

func TestDiscoverNonRecursive(t *testing.T) {
	s := newTestScanner(t)

	refs, err := s.Discover([]string{"/photos"}, false)
	require.NoError(t, err)
	assert.Equal(t, []types.ImageRef{"/photos/a.png", "/photos/b.jpg", "/photos/renamed.dat"}, refs)
	assert.Equal(t, 1, s.Stats().Skipped)
}

func TestDiscoverRecursive(t *testing.T) {
	s := newTestScanner(t)

	refs, err := s.Discover([]string{"/photos"}, true)
	require.NoError(t, err)
	assert.Equal(t, []types.ImageRef{
		"/photos/a.png",
		"/photos/b.jpg",
		"/photos/raw/c.nef",
		"/photos/raw/deeper/d.png",
		"/photos/renamed.dat",
	}, refs)
	assert.Equal(t, 1, s.Stats().RAW)
}

func TestDiscoverDeduplicatesAcrossRoots(t *testing.T) {
	s := newTestScanner(t)

	refs, err := s.Discover([]string{"/photos/b.jpg", "/photos", "/elsewhere", "/photos/a.png"}, false)
	require.NoError(t, err)
	assert.Equal(t, []types.ImageRef{
		"/photos/b.jpg",
		"/photos/a.png",
		"/photos/renamed.dat",
		"/elsewhere/f.jpg",
	}, refs)
}

func TestDiscoverFileRootNotImage(t *testing.T) {
	s := newTestScanner(t)

	refs, err := s.Discover([]string{"/photos/notes.txt"}, false)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestDiscoverMissingRoot(t *testing.T) {
	s := newTestScanner(t)

	_, err := s.Discover([]string{"/photos", "/does/not/exist"}, true)
	var discoveryErr *DiscoveryError
	require.True(t, errors.As(err, &discoveryErr))
	assert.Equal(t, "/does/not/exist", discoveryErr.Path)
}

func TestDiscoverResolvesSymlinks(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	album := filepath.Join(root, "album")
	photos := filepath.Join(root, "photos")
	require.NoError(t, os.MkdirAll(album, 0o755))
	require.NoError(t, os.MkdirAll(photos, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(album, "a.png"), pngMagic, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(photos, "b.jpg"), jpegMagic, 0o644))
	require.NoError(t, os.Symlink(album, filepath.Join(photos, "shortcut")))
	require.NoError(t, os.Symlink(".", filepath.Join(photos, "loop")))
	require.NoError(t, os.Symlink(filepath.Join(photos, "b.jpg"), filepath.Join(root, "b-link.jpg")))

	s := NewScanner()
	refs, err := s.Discover([]string{photos, filepath.Join(root, "b-link.jpg"), album}, true)
	require.NoError(t, err)

	assert.Equal(t, []types.ImageRef{
		types.ImageRef(filepath.Join(photos, "b.jpg")),
		types.ImageRef(filepath.Join(album, "a.png")),
	}, refs)
}

func TestDiscoverWithoutLogger(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/in", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/in/a.png", pngMagic, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/in/notes.txt", []byte("text"), 0o644))

	s := &Scanner{Fs: fs}
	refs, err := s.Discover([]string{"/in"}, true)
	require.NoError(t, err)
	assert.Equal(t, []types.ImageRef{"/in/a.png"}, refs)
}

func TestIsImageFile(t *testing.T) {
	s := newTestScanner(t)

	tests := map[string]bool{
		"/photos/a.png":             true,
		"/photos/notes.txt":         false,
		"/photos/raw/c.nef":         true,
		"/photos/raw/deeper/e.html": false,
	}
	for path, want := range tests {
		t.Run(path, func(t *testing.T) {
			got, err := IsImageFile(s.Fs, path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}
