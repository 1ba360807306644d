package organizer

import (
	"math"
	"path/filepath"
	"strconv"

	"imagemanager/types"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Ratio is a named aspect ratio bucket
type Ratio struct {
	Value float64
	Name  string
}

// DefaultRatios are the aspect ratio buckets, in ascending order
var DefaultRatios = []Ratio{
	{1.0, "square"},
	{1.25, "ratio 1.25"},
	{4.0 / 3.0, "ratio 1.33"},
	{1.6, "ratio 1.6"},
	{16.0 / 9.0, "widescreen"},
}

// DefaultHeights are the height buckets, in ascending order
var DefaultHeights = []int{480, 720, 1080, 1440, 2160, 4320}

const (
	unknownRatioName = "ratio unkn"
	massiveHeight    = "Massive"
	ratioTolerance   = 1e-3
)

// Dimensioner reports the pixel size of an image file
type Dimensioner interface {
	Dimensions(path string) (width, height int, err error)
}

func isClose(a, b, relTol float64) bool {
	return math.Abs(a-b) <= relTol*math.Max(math.Abs(a), math.Abs(b))
}

// RatioBucket returns the name of the largest bucket not above ratio, allowing
// a small tolerance so 1.777 still counts as widescreen
func RatioBucket(ratio float64) string {
	for i := len(DefaultRatios) - 1; i >= 0; i-- {
		r := DefaultRatios[i]
		if isClose(r.Value, ratio, ratioTolerance) || r.Value < ratio {
			return r.Name
		}
	}
	return unknownRatioName
}

// HeightBucket returns the directory name of the smallest bucket holding height
func HeightBucket(height int) string {
	for _, h := range DefaultHeights {
		if h >= height {
			return "h" + strconv.Itoa(h)
		}
	}
	return "h" + massiveHeight
}

// BucketDir returns the directory an image of the given size is filed under
func BucketDir(target string, width, height int) string {
	return filepath.Join(target, RatioBucket(float64(width)/float64(height)), HeightBucket(height))
}

// PlanImages computes where every image goes. Images whose size cannot be read
// are left out and reported.
func PlanImages(images []types.ImageRef, target string, dims Dimensioner) ([]Operation, error) {
	var ops []Operation
	var result *multierror.Error
	for _, img := range images {
		w, h, err := dims.Dimensions(string(img))
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "read size of %s", img))
			continue
		}
		if w <= 0 || h <= 0 {
			result = multierror.Append(result, errors.Errorf("%s has no pixels", img))
			continue
		}
		dir := BucketDir(target, w, h)
		ops = append(ops, Operation{From: string(img), To: filepath.Join(dir, filepath.Base(string(img)))})
	}
	return ops, result.ErrorOrNil()
}

// ImageOptions controls OrganizeImages
type ImageOptions struct {
	Target string
	// Move renames instead of copying. Copies always replace existing files.
	Move bool
	// Overwrite lets a move replace an existing file at the destination.
	Overwrite bool
}

// OrganizeImages files every image under Target/<ratio>/h<height>
func (o *Organizer) OrganizeImages(images []types.ImageRef, opts ImageOptions, dims Dimensioner) (*Report, error) {
	ops, planErr := PlanImages(images, opts.Target, dims)
	var result *multierror.Error
	if planErr != nil {
		result = multierror.Append(result, planErr)
	}
	o.Log.WithField("operations", len(ops)).Info("organizing images")

	report := &Report{}
	created := map[string]bool{}
	for _, op := range ops {
		if !o.isFile(op.From) {
			result = multierror.Append(result, errors.Errorf("%s does not point to a valid image", op.From))
			report.Skipped = append(report.Skipped, op)
			continue
		}

		dir := filepath.Dir(op.To)
		if !created[dir] {
			if err := o.mkdir(dir); err != nil {
				result = multierror.Append(result, err)
				report.Skipped = append(report.Skipped, op)
				continue
			}
			created[dir] = true
		}

		if err := o.transfer(op, opts); err != nil {
			result = multierror.Append(result, err)
			report.Skipped = append(report.Skipped, op)
			continue
		}
		report.Done = append(report.Done, op)
	}
	return report, result.ErrorOrNil()
}

func (o *Organizer) transfer(op Operation, opts ImageOptions) error {
	log := o.Log.WithField("from", op.From).WithField("to", op.To)
	if !opts.Move {
		if err := o.copyFile(op.From, op.To); err != nil {
			return err
		}
		log.Info("copied image")
		return nil
	}

	if o.exists(op.To) {
		if !opts.Overwrite {
			return errors.Errorf("%s already exists, not moving %s", op.To, op.From)
		}
		if err := o.Fs.Remove(op.To); err != nil {
			return errors.Wrapf(err, "replace %s", op.To)
		}
		log.Warn("replacing existing image")
	}
	if err := o.Fs.Rename(op.From, op.To); err != nil {
		return errors.Wrapf(err, "move %s", op.From)
	}
	log.Warn("moved image")
	return nil
}
