// Package frame acquires the per-frame inputs of the labeler: the model snapshot reported by the
// logical camera, the depth camera's points and the camera pose.
package frame

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/schizzz8/lucrezio-semantic-perception/pointcloud"
	"github.com/schizzz8/lucrezio-semantic-perception/rimage"
	"github.com/schizzz8/lucrezio-semantic-perception/rimage/transform"
	"github.com/schizzz8/lucrezio-semantic-perception/spatialmath"
	"github.com/schizzz8/lucrezio-semantic-perception/vision/groundtruth"
)

const (
	// DefaultWorldFrame is the frame camera poses are looked up in.
	DefaultWorldFrame = "map"
	// DefaultCameraFrame is the depth camera's optical frame.
	DefaultCameraFrame = "camera_depth_optical_frame"
	// DefaultPoseTimeout bounds the wait for a camera pose.
	DefaultPoseTimeout = 3 * time.Second
	// DefaultMinDepth and DefaultMaxDepth bound valid depth readings, in meters.
	DefaultMinDepth = 0.02
	DefaultMaxDepth = 8.0
)

// ErrSourceDone is returned by Source.Next once a source has no more frames.
var ErrSourceDone = errors.New("frame source done")

// Input is one synchronized frame. Exactly one of Samples, Depth and Cloud is needed to derive
// the point samples; they are tried in that order.
type Input struct {
	Timestamp   time.Time
	CameraFrame string
	// CameraPose and LogicalPose are world frame poses of the depth camera and of the logical
	// camera whose frame the models are expressed in.
	CameraPose  spatialmath.Pose
	LogicalPose spatialmath.Pose
	Models      []groundtruth.Model

	Samples pointcloud.SampleStream
	Depth   *rimage.DepthMap
	Cloud   *pointcloud.Cloud

	// Width and Height are the label image size. Zero means take it from the intrinsics, then
	// from the depth map or organized cloud.
	Width, Height int
}

// ImageSize resolves the label image size.
func (in *Input) ImageSize(params *transform.PinholeCameraIntrinsics) (int, int) {
	switch {
	case in.Width > 0 && in.Height > 0:
		return in.Width, in.Height
	case params != nil && params.Width > 0 && params.Height > 0:
		return params.Width, params.Height
	case in.Depth != nil:
		return in.Depth.Width(), in.Depth.Height()
	case in.Cloud != nil && in.Cloud.Organized():
		return in.Cloud.Width, in.Cloud.Height
	default:
		return 0, 0
	}
}

// Stream returns the frame's point samples, deprojecting depth or re-projecting the cloud with
// params as needed.
func (in *Input) Stream(params *transform.PinholeCameraIntrinsics, minDepth, maxDepth float64) (pointcloud.SampleStream, error) {
	if in.Samples != nil {
		return in.Samples, nil
	}
	if in.Depth != nil {
		points, err := params.PointsImageFromDepth(in.Depth, minDepth, maxDepth)
		if err != nil {
			return nil, err
		}
		return pointcloud.NewGridStream(points), nil
	}
	if in.Cloud != nil {
		w, h := in.ImageSize(params)
		return in.Cloud.Stream(params, w, h), nil
	}
	return nil, errors.New("frame has no points")
}

// Source produces frames one at a time.
type Source interface {
	// Next blocks until the next frame is available. It returns ErrSourceDone when there are no
	// more frames; any other error means the current frame was dropped.
	Next(ctx context.Context) (*Input, error)
	Close(ctx context.Context) error
}

// PoseLookup resolves the pose of source in target, waiting at most timeout for it.
type PoseLookup interface {
	LookupTransform(ctx context.Context, target, source string, timeout time.Duration) (spatialmath.Pose, error)
}
