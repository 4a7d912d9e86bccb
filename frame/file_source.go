package frame

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/schizzz8/lucrezio-semantic-perception/logging"
	"github.com/schizzz8/lucrezio-semantic-perception/pointcloud"
	"github.com/schizzz8/lucrezio-semantic-perception/rimage"
)

// FileSource serves a single frame stored on disk: a frame file plus either a 16-bit depth image
// or a PCD point cloud.
type FileSource struct {
	framePath   string
	pointsPath  string
	cameraFrame string
	logger      logging.Logger

	mu   sync.Mutex
	done bool
}

// NewFileSource returns a source for one frame. pointsPath is a ".pcd" cloud or a depth image.
func NewFileSource(framePath, pointsPath, cameraFrame string, logger logging.Logger) *FileSource {
	if cameraFrame == "" {
		cameraFrame = DefaultCameraFrame
	}
	return &FileSource{framePath: framePath, pointsPath: pointsPath, cameraFrame: cameraFrame, logger: logger}
}

// Next returns the frame the first time and ErrSourceDone afterwards.
func (fs *FileSource) Next(ctx context.Context) (*Input, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.done {
		return nil, ErrSourceDone
	}
	fs.done = true
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadInput(fs.framePath, fs.pointsPath, fs.cameraFrame, fs.logger)
}

// Close is a no-op.
func (fs *FileSource) Close(ctx context.Context) error {
	return nil
}

// LoadInput reads a frame file and its companion points file into an Input. The timestamp is the
// frame file's modification time.
func LoadInput(framePath, pointsPath, cameraFrame string, logger logging.Logger) (*Input, error) {
	rec, err := ReadFrameFile(framePath)
	if err != nil {
		return nil, err
	}
	logRecord(logger, framePath, rec)

	in := &Input{
		Timestamp:   time.Now(),
		CameraFrame: cameraFrame,
		CameraPose:  rec.CameraPose,
		LogicalPose: rec.LogicalPose,
		Models:      rec.Models,
	}
	if info, err := os.Stat(framePath); err == nil {
		in.Timestamp = info.ModTime()
	}
	if pointsPath == "" {
		return nil, errors.Errorf("no points file for frame %q", framePath)
	}
	if strings.EqualFold(filepath.Ext(pointsPath), ".pcd") {
		if in.Cloud, err = pointcloud.NewFromFile(pointsPath); err != nil {
			return nil, err
		}
		return in, nil
	}
	if in.Depth, err = rimage.ReadDepthMapFromFile(pointsPath); err != nil {
		return nil, err
	}
	return in, nil
}

func logRecord(logger logging.Logger, fn string, rec *Record) {
	logger.Debugw("loaded frame file",
		"file", fn,
		"camera_pose", rec.CameraPose.String(),
		"logical_pose", rec.LogicalPose.String(),
		"models", len(rec.Models))
	for i, m := range rec.Models {
		logger.Debugw("model", "index", i, "type", m.Type, "pose", m.Pose.String(), "min", m.Min, "max", m.Max)
	}
}
