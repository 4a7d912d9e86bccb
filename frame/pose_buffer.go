package frame

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/schizzz8/lucrezio-semantic-perception/spatialmath"
	"github.com/schizzz8/lucrezio-semantic-perception/vision/groundtruth"
)

type framePair struct {
	target, source string
}

// PoseBuffer keeps the latest known pose between pairs of frames and answers lookups for them,
// waiting for poses that have not been published yet.
type PoseBuffer struct {
	clock clock.Clock

	mu      sync.Mutex
	poses   map[framePair]spatialmath.Pose
	updated chan struct{}
}

// NewPoseBuffer returns an empty buffer. A nil clock means the wall clock.
func NewPoseBuffer(clk clock.Clock) *PoseBuffer {
	if clk == nil {
		clk = clock.New()
	}
	return &PoseBuffer{clock: clk, poses: map[framePair]spatialmath.Pose{}, updated: make(chan struct{})}
}

// Set records the pose of source in target and wakes up pending lookups.
func (pb *PoseBuffer) Set(target, source string, pose spatialmath.Pose) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.poses[framePair{target, source}] = pose
	close(pb.updated)
	pb.updated = make(chan struct{})
}

func (pb *PoseBuffer) get(target, source string) (spatialmath.Pose, bool, chan struct{}) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if target == source {
		return spatialmath.NewZeroPose(), true, pb.updated
	}
	if pose, ok := pb.poses[framePair{target, source}]; ok {
		return pose, true, pb.updated
	}
	if pose, ok := pb.poses[framePair{source, target}]; ok {
		return spatialmath.PoseInverse(pose), true, pb.updated
	}
	return spatialmath.Pose{}, false, pb.updated
}

// LookupTransform returns the pose of source in target, waiting up to timeout for it to be set.
// A timeout yields an error wrapping groundtruth.ErrPoseLookup.
func (pb *PoseBuffer) LookupTransform(ctx context.Context, target, source string, timeout time.Duration) (spatialmath.Pose, error) {
	timer := pb.clock.Timer(timeout)
	defer timer.Stop()
	for {
		pose, ok, updated := pb.get(target, source)
		if ok {
			return pose, nil
		}
		select {
		case <-ctx.Done():
			return spatialmath.Pose{}, ctx.Err()
		case <-timer.C:
			return spatialmath.Pose{}, errors.Wrapf(groundtruth.ErrPoseLookup,
				"no transform from %q to %q after %v", source, target, timeout)
		case <-updated:
		}
	}
}
