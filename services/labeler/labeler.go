// Package labeler runs the ground truth pipeline over a stream of frames: it resolves the camera
// transform, projects the model boxes, classifies the frame's point samples and paints the label
// image, then hands the result to a sink.
package labeler

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/schizzz8/lucrezio-semantic-perception/frame"
	"github.com/schizzz8/lucrezio-semantic-perception/logging"
	"github.com/schizzz8/lucrezio-semantic-perception/rimage"
	"github.com/schizzz8/lucrezio-semantic-perception/rimage/transform"
	"github.com/schizzz8/lucrezio-semantic-perception/vision/groundtruth"
)

// Config tunes a Labeler.
type Config struct {
	// Workers is the number of goroutines used to classify a frame. 0 or 1 classifies inline.
	Workers int
	// MinDepth and MaxDepth bound valid depth readings in meters. Zero means the frame package
	// defaults.
	MinDepth, MaxDepth float64
}

func (cfg *Config) applyDefaults() {
	if cfg.MinDepth == 0 {
		cfg.MinDepth = frame.DefaultMinDepth
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = frame.DefaultMaxDepth
	}
}

// Result is the output of one processed frame.
type Result struct {
	Set   *groundtruth.DetectionSet
	Label *rimage.Image
	// Samples is the number of raw entries in the frame's point stream and Matched how many of
	// them were assigned to a model.
	Samples int
	Matched int
	// Unknown lists the model categories painted with the fallback color.
	Unknown []string
}

// A Labeler processes one frame at a time, reusing its detection arena between frames.
type Labeler struct {
	mu          sync.Mutex
	cfg         Config
	calibration *transform.CalibrationState
	arena       *groundtruth.Arena
	clk         clock.Clock
	logger      logging.Logger
}

// NewLabeler returns a labeler reading its camera matrix from calibration.
func NewLabeler(cfg Config, calibration *transform.CalibrationState, logger logging.Logger) *Labeler {
	cfg.applyDefaults()
	return &Labeler{
		cfg:         cfg,
		calibration: calibration,
		arena:       groundtruth.NewArena(),
		clk:         clock.New(),
		logger:      logger,
	}
}

// Process labels one frame. It fails with ErrMissingIntrinsics until the calibration has been
// latched and with ErrEmptyModelList when the frame has no models; in both cases nothing is
// produced.
func (l *Labeler) Process(ctx context.Context, in *frame.Input) (*Result, error) {
	params, err := l.calibration.Intrinsics()
	if err != nil {
		return nil, errors.Wrap(groundtruth.ErrMissingIntrinsics, err.Error())
	}
	if len(in.Models) == 0 {
		return nil, groundtruth.ErrEmptyModelList
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	start := l.clk.Now()
	tRel := groundtruth.ResolveCameraTransform(in.CameraPose, in.LogicalPose)
	l.arena.Reset(tRel, in.Models)
	l.logger.CDebugw(ctx, "Computing WBB took", "duration", l.clk.Since(start), "models", len(in.Models))

	start = l.clk.Now()
	stream, err := in.Stream(params, l.cfg.MinDepth, l.cfg.MaxDepth)
	if err != nil {
		return nil, errors.Wrap(err, "cannot get point samples")
	}
	matched := l.arena.ClassifyParallel(stream, l.cfg.Workers)
	l.logger.CDebugw(ctx, "Computing detections took",
		"duration", l.clk.Since(start), "samples", stream.Len(), "matched", matched)

	start = l.clk.Now()
	width, height := in.ImageSize(params)
	detections := l.arena.Snapshot()
	label, unknown := groundtruth.PaintLabelImage(width, height, detections)
	for _, category := range unknown {
		l.logger.CWarnw(ctx, "no label color for model category", "category", category)
	}
	l.logger.CDebugw(ctx, "Computing label image took", "duration", l.clk.Since(start), "width", width, "height", height)

	return &Result{
		Set: &groundtruth.DetectionSet{
			Timestamp:   in.Timestamp,
			FrameID:     groundtruth.NewFrameID(in.Timestamp, in.CameraFrame),
			CameraFrame: in.CameraFrame,
			Detections:  detections,
		},
		Label:   label,
		Samples: stream.Len(),
		Matched: matched,
		Unknown: unknown,
	}, nil
}
