package organizer

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"imagemanager/types"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// DefaultDupDirName is created next to the kept image when no duplicate directory is given
const DefaultDupDirName = "dups"

// maxNameAttempts bounds how many suffix numbers are tried per duplicate
const maxNameAttempts = 10

// SelectSubject orders a set so the image that stays in place comes first:
// the shortest path, ties broken by case-insensitive name.
func SelectSubject(images []types.ImageRef) []types.ImageRef {
	ordered := append([]types.ImageRef(nil), images...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := string(ordered[i]), string(ordered[j])
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return strings.ToLower(a) < strings.ToLower(b)
	})
	return ordered
}

// DuplicateName returns the file name given to the n-th duplicate of subject
func DuplicateName(subject string, n int) string {
	base := filepath.Base(subject)
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s_dup_%d%s", strings.TrimSuffix(base, ext), n, ext)
}

// PlanDuplicates returns the moves that OrganizeDuplicates would attempt first
func PlanDuplicates(sets []types.DuplicateSet, dupDir string) []Operation {
	var ops []Operation
	for _, set := range sets {
		ordered := SelectSubject(set.Images)
		if len(ordered) < 2 {
			continue
		}
		subject := string(ordered[0])
		dir := dupDir
		if dir == "" {
			dir = filepath.Join(filepath.Dir(subject), DefaultDupDirName)
		}
		for i, dup := range ordered[1:] {
			ops = append(ops, Operation{From: string(dup), To: filepath.Join(dir, DuplicateName(subject, i+1))})
		}
	}
	return ops
}

// OrganizeDuplicates keeps one image of every set in place and moves the others
// into dupDir, renamed after the kept image. An empty dupDir means a "dups"
// folder next to the kept image. When a name is taken the next suffix numbers
// are tried; a duplicate that cannot be placed stays where it is and is reported.
func (o *Organizer) OrganizeDuplicates(sets []types.DuplicateSet, dupDir string) (*Report, error) {
	if dupDir != "" && !o.isDir(dupDir) {
		return nil, errors.Errorf("duplicate directory %s must be an existing directory", dupDir)
	}

	report := &Report{}
	var result *multierror.Error

	for _, set := range sets {
		ordered := SelectSubject(set.Images)
		if len(ordered) < 2 {
			continue
		}
		subject := string(ordered[0])

		dir := dupDir
		if dir == "" {
			dir = filepath.Join(filepath.Dir(subject), DefaultDupDirName)
			if err := o.mkdir(dir); err != nil {
				result = multierror.Append(result, err)
				continue
			}
		}

		for i, dup := range ordered[1:] {
			op, err := o.moveDuplicate(string(dup), subject, dir, i+1)
			if err != nil {
				result = multierror.Append(result, err)
				report.Skipped = append(report.Skipped, Operation{From: string(dup)})
				continue
			}
			o.Log.WithField("from", op.From).WithField("to", op.To).Warn("moved duplicate")
			report.Done = append(report.Done, op)
		}
	}
	return report, result.ErrorOrNil()
}

func (o *Organizer) moveDuplicate(path, subject, dir string, n int) (Operation, error) {
	var lastErr error
	for j := n; j < n+maxNameAttempts; j++ {
		target := filepath.Join(dir, DuplicateName(subject, j))
		if o.exists(target) {
			continue
		}
		if err := o.Fs.Rename(path, target); err != nil {
			lastErr = err
			continue
		}
		return Operation{From: path, To: target}, nil
	}
	if lastErr == nil {
		lastErr = errors.New("all candidate names are taken")
	}
	return Operation{}, errors.Wrapf(lastErr, "could not move duplicate %s into %s, it is still in its original location", path, dir)
}
