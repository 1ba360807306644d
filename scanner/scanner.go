package scanner

import (
	"os"
	"path/filepath"

	"imagemanager/imageprocessor"
	"imagemanager/logging"
	"imagemanager/types"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Scanner discovers image files below a set of roots
type Scanner struct {
	Fs  afero.Fs
	Log *logrus.Entry

	stats   DiscoveryStats
	visited map[string]struct{}
}

// NewScanner creates a scanner over the OS filesystem
func NewScanner() *Scanner {
	return &Scanner{
		Fs:  afero.NewOsFs(),
		Log: logging.WithComponent("scanner"),
	}
}

// Stats returns the counters of the last Discover call
func (s *Scanner) Stats() DiscoveryStats {
	return s.stats
}

func (s *Scanner) logger() *logrus.Entry {
	if s.Log == nil {
		s.Log = logging.WithComponent("scanner")
	}
	return s.Log
}

// resolve returns the absolute path of p with every symlink evaluated. Only
// the OS filesystem has symlinks; other filesystems get the cleaned path.
func (s *Scanner) resolve(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if _, ok := s.Fs.(*afero.OsFs); ok {
		return filepath.EvalSymlinks(abs)
	}
	return abs, nil
}

// Discover returns the resolved absolute paths of the images found under
// roots, in discovery order and without duplicates. File roots are taken as is
// when they are images. Directory roots are listed, and their subdirectories
// entered only when recursive is set. Symlinks are followed, and a directory
// reached twice is listed once.
func (s *Scanner) Discover(roots []string, recursive bool) ([]types.ImageRef, error) {
	s.stats = DiscoveryStats{}
	s.visited = make(map[string]struct{})
	log := s.logger()
	seen := make(map[types.ImageRef]struct{})
	var refs []types.ImageRef

	add := func(path string) {
		ref := types.ImageRef(path)
		if _, dup := seen[ref]; dup {
			return
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}

	for _, root := range roots {
		abs, err := s.resolve(root)
		if err != nil {
			return nil, &DiscoveryError{Path: root, Err: err}
		}

		info, err := s.Fs.Stat(abs)
		if err != nil {
			return nil, &DiscoveryError{Path: root, Err: err}
		}

		switch {
		case info.Mode().IsRegular():
			s.consider(abs, add)
		case info.IsDir():
			if err := s.walkDir(abs, recursive, add); err != nil {
				return nil, err
			}
		default:
			return nil, &DiscoveryError{Path: root}
		}
	}

	log.WithFields(logrus.Fields{
		"files":  s.stats.Files,
		"images": len(refs),
		"raw":    s.stats.RAW,
	}).Debug("discovery finished")
	return refs, nil
}

func (s *Scanner) walkDir(dir string, recursive bool, add func(string)) error {
	if _, done := s.visited[dir]; done {
		return nil
	}
	s.visited[dir] = struct{}{}

	entries, err := afero.ReadDir(s.Fs, dir)
	if err != nil {
		return &DiscoveryError{Path: dir, Err: err}
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		info := entry
		if entry.Mode()&os.ModeSymlink != 0 {
			target, err := s.resolve(path)
			if err == nil {
				info, err = s.Fs.Stat(target)
			}
			if err != nil {
				s.logger().WithField("path", path).Debug("skipping dangling symlink")
				continue
			}
			path = target
		}

		switch {
		case info.IsDir():
			if recursive {
				if err := s.walkDir(path, recursive, add); err != nil {
					return err
				}
			}
		case info.Mode().IsRegular():
			s.consider(path, add)
		}
	}
	return nil
}

func (s *Scanner) consider(path string, add func(string)) {
	s.stats.Files++

	ok, err := IsImageFile(s.Fs, path)
	if err != nil {
		s.logger().WithField("path", path).WithError(err).Debug("cannot sniff file type")
	}
	if !ok {
		s.stats.Skipped++
		return
	}

	s.stats.Images++
	if imageprocessor.IsRawFormat(path) {
		s.stats.RAW++
	}
	add(path)
}
