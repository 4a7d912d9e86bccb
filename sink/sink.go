// Package sink stores the output of every labeled frame.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/schizzz8/lucrezio-semantic-perception/rimage"
	"github.com/schizzz8/lucrezio-semantic-perception/vision/groundtruth"
)

// A Sink receives the detections and the label image of each processed frame.
type Sink interface {
	Write(ctx context.Context, set *groundtruth.DetectionSet, label *rimage.Image) error
	Close() error
}

// Multi writes to every sink in order. Errors are combined; one failing sink does not stop the
// others.
type Multi []Sink

// Write implements Sink.
func (m Multi) Write(ctx context.Context, set *groundtruth.DetectionSet, label *rimage.Image) error {
	var errs error
	for _, s := range m {
		errs = multierr.Combine(errs, s.Write(ctx, set, label))
	}
	return errs
}

// Close implements Sink.
func (m Multi) Close() error {
	var errs error
	for _, s := range m {
		errs = multierr.Combine(errs, s.Close())
	}
	return errs
}

// FileSink writes "<timestamp>_<frame id>.json" and, optionally, the label image as
// "<timestamp>_<frame id>.png" into a directory. The timestamp is in Unix nanoseconds.
type FileSink struct {
	dir        string
	writeLabel bool
}

// NewFileSink creates dir if needed.
func NewFileSink(dir string, writeLabel bool) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "cannot create output directory %q", dir)
	}
	return &FileSink{dir: dir, writeLabel: writeLabel}, nil
}

// BaseName returns the file name, without extension, used for a set.
func BaseName(set *groundtruth.DetectionSet) string {
	return fmt.Sprintf("%d_%s", set.Timestamp.UnixNano(), set.FrameID)
}

// Write implements Sink.
func (fs *FileSink) Write(ctx context.Context, set *groundtruth.DetectionSet, label *rimage.Image) error {
	base := filepath.Join(fs.dir, BaseName(set))
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(base+".json", data, 0o640); err != nil {
		return errors.Wrap(err, "cannot write detections")
	}
	if fs.writeLabel && label != nil {
		if err := rimage.WriteImageToFile(base+".png", label); err != nil {
			return errors.Wrap(err, "cannot write label image")
		}
	}
	return nil
}

// Close implements Sink.
func (fs *FileSink) Close() error {
	return nil
}

// ReadDetectionSet reads a set written by a FileSink.
func ReadDetectionSet(fn string) (*groundtruth.DetectionSet, error) {
	//nolint:gosec
	data, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	var set groundtruth.DetectionSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, errors.Wrapf(err, "malformed detection set %q", fn)
	}
	return &set, nil
}
