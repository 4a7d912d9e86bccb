package groundtruth

import "github.com/pkg/errors"

var (
	// ErrMissingIntrinsics is returned for frames that arrive before the camera matrix is known.
	ErrMissingIntrinsics = errors.New("camera intrinsics not yet available")
	// ErrPoseLookup is returned when the camera pose could not be resolved in time.
	ErrPoseLookup = errors.New("camera pose lookup failed")
	// ErrEmptyModelList is returned for frames without models; there is nothing to label.
	ErrEmptyModelList = errors.New("frame has no models")
)
