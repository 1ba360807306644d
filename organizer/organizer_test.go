package organizer

import (
	"path/filepath"
	"testing"

	"imagemanager/logging"
	"imagemanager/types"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDims map[string][2]int

func (f fakeDims) Dimensions(path string) (int, int, error) {
	d, ok := f[path]
	if !ok {
		return 0, 0, errors.New("unknown image")
	}
	return d[0], d[1], nil
}

func newTestOrganizer(t *testing.T, files ...string) *Organizer {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, f := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(f), 0o755))
		require.NoError(t, afero.WriteFile(fs, f, []byte("content of "+f), 0o644))
	}
	return &Organizer{Fs: fs, Log: logging.WithComponent("organizer-test")}
}

func assertExists(t *testing.T, fs afero.Fs, path string, want bool) {
	t.Helper()
	ok, err := afero.Exists(fs, path)
	require.NoError(t, err)
	assert.Equal(t, want, ok, path)
}

func TestSelectSubject(t *testing.T) {
	ordered := SelectSubject([]types.ImageRef{"/p/a/photo.jpg", "/p/a/sub/photo-copy.jpg", "/p/b/X.jpg", "/p/b/a.jpg"})
	assert.Equal(t, []types.ImageRef{"/p/b/a.jpg", "/p/b/X.jpg", "/p/a/photo.jpg", "/p/a/sub/photo-copy.jpg"}, ordered)
}

func TestDuplicateName(t *testing.T) {
	assert.Equal(t, "IMG_1_dup_2.JPG", DuplicateName("/x/IMG_1.JPG", 2))
	assert.Equal(t, "noext_dup_1", DuplicateName("/x/noext", 1))
}

func TestOrganizeDuplicatesDefaultDir(t *testing.T) {
	o := newTestOrganizer(t, "/p/a/photo.jpg", "/p/a/sub/photo-copy.jpg", "/p/b/x.jpg")
	sets := []types.DuplicateSet{{Value: "phash:1", Images: []types.ImageRef{"/p/a/photo.jpg", "/p/a/sub/photo-copy.jpg", "/p/b/x.jpg"}}}

	report, err := o.OrganizeDuplicates(sets, "")
	require.NoError(t, err)

	assert.Equal(t, []Operation{
		{From: "/p/a/photo.jpg", To: "/p/b/dups/x_dup_1.jpg"},
		{From: "/p/a/sub/photo-copy.jpg", To: "/p/b/dups/x_dup_2.jpg"},
	}, report.Done)
	assertExists(t, o.Fs, "/p/b/x.jpg", true)
	assertExists(t, o.Fs, "/p/a/photo.jpg", false)
	assertExists(t, o.Fs, "/p/b/dups/x_dup_2.jpg", true)
	assert.Equal(t, report.Done, PlanDuplicates(sets, ""))
}

func TestOrganizeDuplicatesSkipsTakenNames(t *testing.T) {
	o := newTestOrganizer(t, "/p/x.jpg", "/p/y/x.jpg", "/p/z/x.jpg", "/dups/x_dup_1.jpg")
	sets := []types.DuplicateSet{{Images: []types.ImageRef{"/p/z/x.jpg", "/p/x.jpg", "/p/y/x.jpg"}}}

	report, err := o.OrganizeDuplicates(sets, "/dups")
	require.NoError(t, err)

	assert.Equal(t, []Operation{
		{From: "/p/y/x.jpg", To: "/dups/x_dup_2.jpg"},
		{From: "/p/z/x.jpg", To: "/dups/x_dup_3.jpg"},
	}, report.Done)
	assertExists(t, o.Fs, "/dups/x_dup_1.jpg", true)
}

func TestOrganizeDuplicatesGivesUpAfterTenNames(t *testing.T) {
	files := []string{"/p/x.jpg", "/p/y/x.jpg"}
	for i := 1; i <= 10; i++ {
		files = append(files, filepath.Join("/dups", DuplicateName("/p/x.jpg", i)))
	}
	o := newTestOrganizer(t, files...)

	report, err := o.OrganizeDuplicates([]types.DuplicateSet{{Images: []types.ImageRef{"/p/x.jpg", "/p/y/x.jpg"}}}, "/dups")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still in its original location")
	assert.Empty(t, report.Done)
	assert.Len(t, report.Skipped, 1)
	assertExists(t, o.Fs, "/p/y/x.jpg", true)
}

func TestOrganizeDuplicatesRequiresDirectory(t *testing.T) {
	o := newTestOrganizer(t, "/p/x.jpg", "/not-a-dir")

	_, err := o.OrganizeDuplicates(nil, "/not-a-dir")
	assert.Error(t, err)
	_, err = o.OrganizeDuplicates(nil, "/missing")
	assert.Error(t, err)
}

func TestRatioBucket(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1.0, "square"},
		{1.1, "square"},
		{0.75, "ratio unkn"},
		{1.2499, "ratio 1.25"},
		{1.5, "ratio 1.33"},
		{1.6, "ratio 1.6"},
		{1.777, "widescreen"},
		{2.4, "widescreen"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RatioBucket(tt.ratio), "ratio %v", tt.ratio)
	}
}

func TestHeightBucket(t *testing.T) {
	assert.Equal(t, "h480", HeightBucket(100))
	assert.Equal(t, "h480", HeightBucket(480))
	assert.Equal(t, "h720", HeightBucket(481))
	assert.Equal(t, "h4320", HeightBucket(4320))
	assert.Equal(t, "hMassive", HeightBucket(5000))
}

func TestOrganizeImagesCopy(t *testing.T) {
	o := newTestOrganizer(t, "/in/wide.jpg", "/in/square.png", "/in/broken.jpg")
	dims := fakeDims{
		"/in/wide.jpg":   {1920, 1080},
		"/in/square.png": {500, 500},
	}

	report, err := o.OrganizeImages([]types.ImageRef{"/in/wide.jpg", "/in/square.png", "/in/broken.jpg"},
		ImageOptions{Target: "/out"}, dims)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/in/broken.jpg")

	assert.Equal(t, []Operation{
		{From: "/in/wide.jpg", To: "/out/widescreen/h1080/wide.jpg"},
		{From: "/in/square.png", To: "/out/square/h720/square.png"},
	}, report.Done)
	assertExists(t, o.Fs, "/in/wide.jpg", true)

	data, err := afero.ReadFile(o.Fs, "/out/widescreen/h1080/wide.jpg")
	require.NoError(t, err)
	assert.Equal(t, "content of /in/wide.jpg", string(data))
}

func TestOrganizeImagesMoveRespectsExistingFiles(t *testing.T) {
	o := newTestOrganizer(t, "/in/a.jpg", "/out/ratio 1.33/h480/a.jpg")
	dims := fakeDims{"/in/a.jpg": {640, 480}}
	images := []types.ImageRef{"/in/a.jpg"}

	report, err := o.OrganizeImages(images, ImageOptions{Target: "/out", Move: true}, dims)
	require.Error(t, err)
	assert.Len(t, report.Skipped, 1)
	assertExists(t, o.Fs, "/in/a.jpg", true)

	report, err = o.OrganizeImages(images, ImageOptions{Target: "/out", Move: true, Overwrite: true}, dims)
	require.NoError(t, err)
	assert.Len(t, report.Done, 1)
	assertExists(t, o.Fs, "/in/a.jpg", false)

	data, err := afero.ReadFile(o.Fs, "/out/ratio 1.33/h480/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "content of /in/a.jpg", string(data))
}
