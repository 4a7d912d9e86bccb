package cli

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/schizzz8/lucrezio-semantic-perception/config"
	"github.com/schizzz8/lucrezio-semantic-perception/frame"
	"github.com/schizzz8/lucrezio-semantic-perception/logging"
	"github.com/schizzz8/lucrezio-semantic-perception/rimage/transform"
	"github.com/schizzz8/lucrezio-semantic-perception/ros"
	"github.com/schizzz8/lucrezio-semantic-perception/services/labeler"
	"github.com/schizzz8/lucrezio-semantic-perception/sink"
)

// LabelAction labels one frame file and exits.
func LabelAction(c *cli.Context) error {
	cfg, err := configFromFlags(c, func(cfg *config.Config) {
		if c.IsSet(frameFlag) || c.IsSet(pointsFlag) {
			cfg.Frames.Dir = ""
			cfg.Frames.File = c.String(frameFlag)
			cfg.Frames.Points = c.String(pointsFlag)
		}
	})
	if err != nil {
		return err
	}
	stats, err := runLabeler(c.Context, c, cfg)
	if err != nil {
		return err
	}
	if stats.Frames == 0 {
		return errors.Errorf("frame %q was dropped", cfg.Frames.File)
	}
	return nil
}

// WatchAction labels the frames of a directory until interrupted.
func WatchAction(c *cli.Context) error {
	cfg, err := configFromFlags(c, func(cfg *config.Config) {
		if c.IsSet(dirFlag) {
			cfg.Frames.File, cfg.Frames.Points = "", ""
			cfg.Frames.Dir = c.String(dirFlag)
		}
	})
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	_, err = runLabeler(ctx, c, cfg)
	return err
}

// IntrinsicsAction extracts the first camera_info message of a rosbag topic as intrinsics JSON.
func IntrinsicsAction(c *cli.Context) error {
	rb, err := ros.ReadBag(c.String(bagFlag))
	if err != nil {
		return err
	}
	params, err := ros.CameraInfoFromBag(rb, c.String(topicFlag))
	if err != nil {
		return err
	}
	if out := c.String(outFlag); out != "" {
		if err := params.WriteJSONFile(out); err != nil {
			return err
		}
		printf(c.App.Writer, "Wrote intrinsics to %s", out)
		return nil
	}
	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", data)
	return nil
}

// SummaryAction prints the per-category detection counts of a label database.
func SummaryAction(c *cli.Context) (err error) {
	path := c.String(sqliteFlag)
	if _, err := os.Stat(path); err != nil {
		return errors.Wrap(err, "cannot open label database")
	}
	db, err := sink.NewSQLiteSink(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, db.Close())
	}()
	summary, err := db.Summary(c.Context)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", summary)
	return nil
}

// configFromFlags reads the --config file, if any, then applies the run flags and selectFrames
// on top of it.
func configFromFlags(c *cli.Context, selectFrames func(cfg *config.Config)) (*config.Config, error) {
	cfg := &config.Config{}
	if fn := c.String(configFlag); fn != "" {
		read, err := config.Read(fn)
		if err != nil {
			return nil, err
		}
		cfg = read
	}
	selectFrames(cfg)
	if c.IsSet(cameraFrameFlag) {
		cfg.Frames.CameraFrame = c.String(cameraFrameFlag)
	}
	if c.IsSet(intrinsicsFlag) {
		cfg.Intrinsics = config.IntrinsicsConfig{File: c.String(intrinsicsFlag)}
	}
	if c.IsSet(bagFlag) {
		cfg.Intrinsics = config.IntrinsicsConfig{Bag: c.String(bagFlag), Topic: c.String(topicFlag)}
	}
	if c.IsSet(outFlag) {
		cfg.Output.Dir = c.String(outFlag)
	}
	if c.IsSet(sqliteFlag) {
		cfg.Output.SQLite = c.String(sqliteFlag)
	}
	if c.IsSet(writeLabelFlag) {
		cfg.Output.WriteLabel = c.Bool(writeLabelFlag)
	}
	if c.IsSet(workersFlag) {
		cfg.Classification.Workers = c.Int(workersFlag)
	}
	if c.IsSet(minDepthFlag) {
		cfg.Depth.Min = c.Float64(minDepthFlag)
	}
	if c.IsSet(maxDepthFlag) {
		cfg.Depth.Max = c.Float64(maxDepthFlag)
	}
	if c.IsSet(debugEveryFlag) {
		cfg.Output.DebugEvery = c.Int(debugEveryFlag)
	}
	if c.Bool(debugFlag) {
		cfg.LogLevel = logging.DEBUG.String()
	}
	if c.IsSet(logFileFlag) {
		cfg.LogFile = c.String(logFileFlag)
	}
	if err := cfg.Complete(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// newLogger returns the run's logger and a function closing its log file, if any.
func newLogger(cfg *config.Config) (logging.Logger, func() error) {
	logger := logging.NewLogger("gtlabeler")
	//nolint:errcheck
	level, _ := logging.LevelFromString(cfg.LogLevel)
	logger.SetLevel(level)
	if cfg.LogFile == "" {
		return logger, logger.Sync
	}
	file := logging.NewFileAppender(cfg.LogFile)
	logger.AddAppender(file)
	return logger, func() error {
		return multierr.Combine(logger.Sync(), file.Close())
	}
}

func newSource(cfg *config.Config, logger logging.Logger) (frame.Source, error) {
	if cfg.Frames.Dir != "" {
		return frame.NewDirSource(cfg.Frames.Dir, cfg.Frames.CameraFrame, logger)
	}
	return frame.NewFileSource(cfg.Frames.File, cfg.Frames.Points, cfg.Frames.CameraFrame, logger), nil
}

func newSink(cfg *config.Config) (sink.Sink, error) {
	var sinks sink.Multi
	if cfg.Output.Dir != "" {
		fs, err := sink.NewFileSink(cfg.Output.Dir, cfg.Output.WriteLabel)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
	}
	if cfg.Output.SQLite != "" {
		db, err := sink.NewSQLiteSink(cfg.Output.SQLite)
		if err != nil {
			return nil, multierr.Combine(err, sinks.Close())
		}
		sinks = append(sinks, db)
	}
	return sinks, nil
}

// runLabeler runs a labeler node over the configured source until it is done or ctx is
// cancelled.
func runLabeler(ctx context.Context, c *cli.Context, cfg *config.Config) (labeler.Stats, error) {
	logger, closeLogs := newLogger(cfg)
	defer utils.UncheckedErrorFunc(closeLogs)

	params, err := cfg.Intrinsics.Load()
	if err != nil {
		return labeler.Stats{}, errors.Wrap(err, "cannot load intrinsics")
	}
	calibration, err := transform.NewReadyCalibrationState(params)
	if err != nil {
		return labeler.Stats{}, err
	}
	source, err := newSource(cfg, logger.Sublogger("frames"))
	if err != nil {
		return labeler.Stats{}, err
	}
	out, err := newSink(cfg)
	if err != nil {
		return labeler.Stats{}, multierr.Combine(err, source.Close(ctx))
	}

	l := labeler.NewLabeler(labeler.Config{
		Workers:  cfg.Classification.Workers,
		MinDepth: cfg.Depth.Min,
		MaxDepth: cfg.Depth.Max,
	}, calibration, logger.Sublogger("labeler"))
	node := labeler.NewNode(source, l, out, labeler.NodeConfig{
		StatsEvery: cfg.Output.StatsEvery,
		DebugEvery: cfg.Output.DebugEvery,
	}, logger)

	runErr := node.Run(ctx)
	//nolint:contextcheck
	closeErr := node.Close(context.Background())
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	stats := node.Stats()
	printf(c.App.Writer, "Labeled %d frame(s), dropped %d", stats.Frames, stats.Dropped)
	if stats.WriteErrors > 0 {
		warningf(c.App.ErrWriter, "%d frame(s) could not be written", stats.WriteErrors)
	}
	return stats, multierr.Combine(runErr, closeErr)
}
