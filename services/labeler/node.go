package labeler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/schizzz8/lucrezio-semantic-perception/frame"
	"github.com/schizzz8/lucrezio-semantic-perception/logging"
	"github.com/schizzz8/lucrezio-semantic-perception/sink"
	"github.com/schizzz8/lucrezio-semantic-perception/utils"
)

// DefaultStatsEvery is how many frames pass between two stats log lines.
const DefaultStatsEvery = 100

// latencyWindow is how many of the latest frame latencies are summarized in the stats.
const latencyWindow = 100

// Stats counts what a Node has seen since it started.
type Stats struct {
	Frames      int // frames labeled
	Dropped     int // frames dropped before labeling finished
	WriteErrors int
	Models      int
	Samples     int
	Matched     int
}

// NodeConfig tunes a Node.
type NodeConfig struct {
	// StatsEvery logs the stats every that many processed frames. 0 means DefaultStatsEvery, a
	// negative value disables the periodic log.
	StatsEvery int
	// DebugEvery labels every that many frames with frame debugging enabled on the context, so
	// their stage logs are emitted at any log level. 0 disables it.
	DebugEvery int
	// Clock is used for slow frame warnings. Nil means the wall clock.
	Clock clock.Clock
}

// A Node pulls frames from a source, labels them and writes the results to a sink.
type Node struct {
	source  frame.Source
	labeler *Labeler
	sink    sink.Sink
	cfg     NodeConfig
	logger  logging.Logger

	// pulled counts the frames returned by the source.
	pulled int

	mu    sync.Mutex
	stats Stats
	// latencies holds the processing time, in milliseconds, of the latest labeled frames.
	latencies []float64
}

// NewNode wires a source, a labeler and a sink together.
func NewNode(source frame.Source, l *Labeler, s sink.Sink, cfg NodeConfig, logger logging.Logger) *Node {
	if cfg.StatsEvery == 0 {
		cfg.StatsEvery = DefaultStatsEvery
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Node{source: source, labeler: l, sink: s, cfg: cfg, logger: logger}
}

// Run processes frames until ctx is done or the source reports frame.ErrSourceDone. A frame
// that fails at any stage is logged and dropped. Run returns ctx's error when cancelled and
// nil when the source is done.
func (n *Node) Run(ctx context.Context) error {
	defer n.logStats()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		waited := utils.SlowLogger(ctx, n.cfg.Clock, n.logger, "waiting for next frame")
		in, err := n.source.Next(ctx)
		waited()
		if err != nil {
			switch {
			case errors.Is(err, frame.ErrSourceDone):
				n.logger.Info("frame source done")
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			}
			n.drop(ctx, "acquire", err)
			continue
		}
		n.pulled++
		frameCtx := ctx
		if n.cfg.DebugEvery > 0 && n.pulled%n.cfg.DebugEvery == 0 {
			frameCtx = logging.EnableFrameDebug(ctx, fmt.Sprintf("frame-%d", n.pulled))
		}
		n.processFrame(frameCtx, in)
	}
}

func (n *Node) processFrame(ctx context.Context, in *frame.Input) {
	start := n.cfg.Clock.Now()
	result, err := n.labeler.Process(ctx, in)
	if err != nil {
		n.drop(ctx, "label", err)
		return
	}
	if err := n.sink.Write(ctx, result.Set, result.Label); err != nil {
		n.logger.CWarnw(ctx, "cannot write frame", "frame_id", result.Set.FrameID, "error", err)
		n.mu.Lock()
		n.stats.WriteErrors++
		n.mu.Unlock()
	}
	n.logger.CDebugw(ctx, "labeled frame",
		"frame_id", result.Set.FrameID,
		"timestamp", result.Set.Timestamp,
		"visible", result.Set.Visible(),
		"matched", result.Matched,
	)

	elapsed := n.cfg.Clock.Since(start)

	n.mu.Lock()
	if len(n.latencies) == latencyWindow {
		n.latencies = n.latencies[1:]
	}
	n.latencies = append(n.latencies, float64(elapsed)/float64(time.Millisecond))
	n.stats.Frames++
	n.stats.Models += len(result.Set.Detections)
	n.stats.Samples += result.Samples
	n.stats.Matched += result.Matched
	frames := n.stats.Frames
	n.mu.Unlock()
	if n.cfg.StatsEvery > 0 && frames%n.cfg.StatsEvery == 0 {
		n.logStats()
	}
}

func (n *Node) drop(ctx context.Context, stage string, err error) {
	n.mu.Lock()
	n.stats.Dropped++
	n.mu.Unlock()
	n.logger.CWarnw(ctx, "dropping frame", "stage", stage, "reason", err)
}

func (n *Node) logStats() {
	n.mu.Lock()
	counts := n.stats
	latencies := append([]float64(nil), n.latencies...)
	n.mu.Unlock()

	fields := []interface{}{
		"frames", counts.Frames,
		"dropped", counts.Dropped,
		"write_errors", counts.WriteErrors,
		"models", counts.Models,
		"samples", counts.Samples,
		"matched", counts.Matched,
	}
	// both fail only on an empty window.
	if mean, err := stats.Mean(latencies); err == nil {
		fields = append(fields, "latency_ms_mean", mean)
	}
	if p95, err := stats.Percentile(latencies, 95); err == nil {
		fields = append(fields, "latency_ms_p95", p95)
	}
	n.logger.Infow("labeler stats", fields...)
}

// Stats returns a copy of the counters.
func (n *Node) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}

// Close closes the source and the sink.
func (n *Node) Close(ctx context.Context) error {
	return multierr.Combine(n.source.Close(ctx), n.sink.Close())
}
