package frame

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/schizzz8/lucrezio-semantic-perception/logging"
	"github.com/schizzz8/lucrezio-semantic-perception/pointcloud"
	"github.com/schizzz8/lucrezio-semantic-perception/rimage"
	"github.com/schizzz8/lucrezio-semantic-perception/rimage/transform"
	"github.com/schizzz8/lucrezio-semantic-perception/spatialmath"
	"github.com/schizzz8/lucrezio-semantic-perception/vision/groundtruth"
)

// ModelSnapshot is one logical camera message.
type ModelSnapshot struct {
	Timestamp   time.Time
	LogicalPose spatialmath.Pose
	Models      []groundtruth.Model
}

// PointsMessage is one depth camera message, carrying either a cloud or a depth image.
type PointsMessage struct {
	Timestamp     time.Time
	Cloud         *pointcloud.Cloud
	Depth         *rimage.DepthMap
	Width, Height int
}

// SyncConfig tunes a SyncSource. Zero values take the defaults.
type SyncConfig struct {
	WorldFrame  string
	CameraFrame string
	PoseTimeout time.Duration
	// Slop is the largest timestamp difference at which a snapshot and a points message are
	// considered simultaneous.
	Slop time.Duration
	// QueueSize bounds every internal queue; the oldest entry is dropped on overflow.
	QueueSize int
}

const (
	// DefaultSlop is the pairing tolerance used when SyncConfig.Slop is zero.
	DefaultSlop = 100 * time.Millisecond
	// DefaultQueueSize is the queue bound used when SyncConfig.QueueSize is zero.
	DefaultQueueSize = 10
)

func (cfg *SyncConfig) applyDefaults() {
	if cfg.WorldFrame == "" {
		cfg.WorldFrame = DefaultWorldFrame
	}
	if cfg.CameraFrame == "" {
		cfg.CameraFrame = DefaultCameraFrame
	}
	if cfg.PoseTimeout <= 0 {
		cfg.PoseTimeout = DefaultPoseTimeout
	}
	if cfg.Slop <= 0 {
		cfg.Slop = DefaultSlop
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
}

type matchedPair struct {
	models ModelSnapshot
	points PointsMessage
}

// SyncSource pairs model snapshots with points messages that arrive independently, matching each
// snapshot to the points message nearest in time, and resolves the camera pose for every pair.
// Messages are expected in timestamp order per stream.
type SyncSource struct {
	cfg         SyncConfig
	lookup      PoseLookup
	calibration *transform.CalibrationState
	logger      logging.Logger

	mu        sync.Mutex
	models    []ModelSnapshot
	points    []PointsMessage
	unmatched int

	ready     chan matchedPair
	done      chan struct{}
	closeOnce sync.Once
}

// NewSyncSource returns a source fed through its Push methods.
func NewSyncSource(cfg SyncConfig, lookup PoseLookup, calibration *transform.CalibrationState, logger logging.Logger) *SyncSource {
	cfg.applyDefaults()
	return &SyncSource{
		cfg:         cfg,
		lookup:      lookup,
		calibration: calibration,
		logger:      logger,
		ready:       make(chan matchedPair, cfg.QueueSize),
		done:        make(chan struct{}),
	}
}

// PushIntrinsics latches the camera matrix. Only the first valid call has an effect.
func (ss *SyncSource) PushIntrinsics(params *transform.PinholeCameraIntrinsics) error {
	latched, err := ss.calibration.Latch(params)
	if err != nil {
		return err
	}
	if latched {
		ss.logger.Infow("got camera info", "fx", params.Fx, "fy", params.Fy, "ppx", params.Ppx, "ppy", params.Ppy)
	}
	return nil
}

// PushModels queues a model snapshot.
func (ss *SyncSource) PushModels(snap ModelSnapshot) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.models = append(ss.models, snap)
	if len(ss.models) > ss.cfg.QueueSize {
		ss.models = ss.models[1:]
		ss.unmatched++
	}
	ss.match()
}

// PushPoints queues a points message.
func (ss *SyncSource) PushPoints(msg PointsMessage) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.points = append(ss.points, msg)
	if len(ss.points) > ss.cfg.QueueSize {
		ss.points = ss.points[1:]
	}
	ss.match()
}

// Unmatched returns how many model snapshots were discarded without a points message.
func (ss *SyncSource) Unmatched() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.unmatched
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// match must be called with mu held.
func (ss *SyncSource) match() {
	for len(ss.models) > 0 && len(ss.points) > 0 {
		snap := ss.models[0]
		best := 0
		for j := range ss.points {
			if absDuration(ss.points[j].Timestamp.Sub(snap.Timestamp)) <
				absDuration(ss.points[best].Timestamp.Sub(snap.Timestamp)) {
				best = j
			}
		}
		delta := ss.points[best].Timestamp.Sub(snap.Timestamp)
		switch {
		case absDuration(delta) <= ss.cfg.Slop:
			ss.emit(matchedPair{models: snap, points: ss.points[best]})
			ss.models = ss.models[1:]
			ss.points = ss.points[best+1:]
		case delta > 0:
			// every queued and future points message is too late for this snapshot.
			ss.models = ss.models[1:]
			ss.unmatched++
		default:
			// a closer points message may still arrive.
			ss.points = ss.points[best:]
			return
		}
	}
}

func (ss *SyncSource) emit(pair matchedPair) {
	for {
		select {
		case ss.ready <- pair:
			return
		default:
		}
		select {
		case <-ss.ready:
			ss.unmatched++
		default:
		}
	}
}

// Next waits for the next matched pair and resolves its camera pose.
func (ss *SyncSource) Next(ctx context.Context) (*Input, error) {
	var pair matchedPair
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ss.done:
		return nil, ErrSourceDone
	case pair = <-ss.ready:
	}
	cameraPose, err := ss.lookup.LookupTransform(ctx, ss.cfg.WorldFrame, ss.cfg.CameraFrame, ss.cfg.PoseTimeout)
	if err != nil {
		if !errors.Is(err, groundtruth.ErrPoseLookup) && ctx.Err() == nil {
			err = errors.Wrap(groundtruth.ErrPoseLookup, err.Error())
		}
		return nil, err
	}
	return &Input{
		Timestamp:   pair.models.Timestamp,
		CameraFrame: ss.cfg.CameraFrame,
		CameraPose:  cameraPose,
		LogicalPose: pair.models.LogicalPose,
		Models:      pair.models.Models,
		Depth:       pair.points.Depth,
		Cloud:       pair.points.Cloud,
		Width:       pair.points.Width,
		Height:      pair.points.Height,
	}, nil
}

// Close makes pending and future Next calls return ErrSourceDone.
func (ss *SyncSource) Close(ctx context.Context) error {
	ss.closeOnce.Do(func() { close(ss.done) })
	return nil
}
