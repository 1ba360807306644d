// Package organizer moves files around once duplicates or image sizes are known.
package organizer

import (
	"io"
	"os"
	"path/filepath"

	"imagemanager/logging"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Operation is one planned or executed file transfer
type Operation struct {
	From string
	To   string
}

// Report lists the transfers an organizer performed
type Report struct {
	Done    []Operation
	Skipped []Operation
}

// Organizer performs file moves and copies on a filesystem
type Organizer struct {
	Fs  afero.Fs
	Log *logrus.Entry
}

// New returns an organizer working on the OS filesystem
func New() *Organizer {
	return &Organizer{
		Fs:  afero.NewOsFs(),
		Log: logging.WithComponent("organizer"),
	}
}

func (o *Organizer) exists(path string) bool {
	_, err := o.Fs.Stat(path)
	return err == nil
}

func (o *Organizer) isDir(path string) bool {
	ok, err := afero.IsDir(o.Fs, path)
	return err == nil && ok
}

func (o *Organizer) isFile(path string) bool {
	info, err := o.Fs.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// copyFile copies src over dst, replacing dst if it exists
func (o *Organizer) copyFile(src, dst string) error {
	in, err := o.Fs.Open(src)
	if err != nil {
		return errors.Wrapf(err, "open %s", src)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat %s", src)
	}

	out, err := o.Fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errors.Wrapf(err, "create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "copy %s to %s", src, dst)
	}
	return errors.Wrapf(out.Close(), "close %s", dst)
}

func (o *Organizer) mkdir(dir string) error {
	return errors.Wrapf(o.Fs.MkdirAll(dir, 0o755), "create %s", filepath.Clean(dir))
}
