// Package config defines the labeler's configuration file.
package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/schizzz8/lucrezio-semantic-perception/frame"
	"github.com/schizzz8/lucrezio-semantic-perception/logging"
	"github.com/schizzz8/lucrezio-semantic-perception/ros"
)

// Config describes one labeler run.
type Config struct {
	Frames         FramesConfig         `json:"frames" yaml:"frames"`
	Depth          DepthConfig          `json:"depth" yaml:"depth"`
	Classification ClassificationConfig `json:"classification" yaml:"classification"`
	Output         OutputConfig         `json:"output" yaml:"output"`
	Intrinsics     IntrinsicsConfig     `json:"intrinsics" yaml:"intrinsics"`
	LogLevel       string               `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	// LogFile, if set, receives a copy of the logs and is rotated by size.
	LogFile string `json:"log_file,omitempty" yaml:"log_file,omitempty"`

	// ConfigFilePath is the file the config was read from, if any.
	ConfigFilePath string `json:"-" yaml:"-"`
}

// FramesConfig selects where frames come from. Exactly one of Dir and File is set.
type FramesConfig struct {
	// Dir is watched for frame files, each with a points file of the same base name.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	// File and Points name a single frame file and its points file.
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
	Points string `json:"points,omitempty" yaml:"points,omitempty"`

	WorldFrame  string `json:"world_frame,omitempty" yaml:"world_frame,omitempty"`
	CameraFrame string `json:"camera_frame,omitempty" yaml:"camera_frame,omitempty"`
	// PoseTimeout is a duration string such as "3s".
	PoseTimeout string `json:"pose_timeout,omitempty" yaml:"pose_timeout,omitempty"`
	// Slop is the largest time difference allowed when pairing models with points.
	Slop string `json:"slop,omitempty" yaml:"slop,omitempty"`
}

// DepthConfig bounds valid depth readings, in meters.
type DepthConfig struct {
	Min float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// ClassificationConfig tunes the pixel classifier.
type ClassificationConfig struct {
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// OutputConfig selects the sinks. At least one of Dir and SQLite is set.
type OutputConfig struct {
	Dir        string `json:"dir,omitempty" yaml:"dir,omitempty"`
	SQLite     string `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	WriteLabel bool   `json:"write_label" yaml:"write_label"`
	StatsEvery int    `json:"stats_every,omitempty" yaml:"stats_every,omitempty"`
	// DebugEvery logs the stage details of every that many frames at any log level.
	DebugEvery int `json:"debug_every,omitempty" yaml:"debug_every,omitempty"`
}

// IntrinsicsConfig locates the camera matrix: a JSON file or a rosbag camera_info topic.
type IntrinsicsConfig struct {
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
	Bag   string `json:"bag,omitempty" yaml:"bag,omitempty"`
	Topic string `json:"topic,omitempty" yaml:"topic,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.Frames.WorldFrame == "" {
		c.Frames.WorldFrame = frame.DefaultWorldFrame
	}
	if c.Frames.CameraFrame == "" {
		c.Frames.CameraFrame = frame.DefaultCameraFrame
	}
	if c.Frames.PoseTimeout == "" {
		c.Frames.PoseTimeout = frame.DefaultPoseTimeout.String()
	}
	if c.Frames.Slop == "" {
		c.Frames.Slop = frame.DefaultSlop.String()
	}
	if c.Depth.Min == 0 {
		c.Depth.Min = frame.DefaultMinDepth
	}
	if c.Depth.Max == 0 {
		c.Depth.Max = frame.DefaultMaxDepth
	}
	if c.Intrinsics.Bag != "" && c.Intrinsics.Topic == "" {
		c.Intrinsics.Topic = ros.DefaultCameraInfoTopic
	}
	if c.LogLevel == "" {
		c.LogLevel = logging.INFO.String()
	}
}

// Complete fills in defaults and validates the result.
func (c *Config) Complete() error {
	c.applyDefaults()
	return c.Validate("")
}

// Validate checks every section and returns all problems found.
func (c *Config) Validate(path string) error {
	var errs error
	errs = multierr.Append(errs, c.Frames.Validate(join(path, "frames")))
	errs = multierr.Append(errs, c.Depth.Validate(join(path, "depth")))
	if c.Classification.Workers < 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(join(path, "classification"),
			errors.Errorf("workers must be non-negative, got %d", c.Classification.Workers)))
	}
	errs = multierr.Append(errs, c.Output.Validate(join(path, "output")))
	errs = multierr.Append(errs, c.Intrinsics.Validate(join(path, "intrinsics")))
	if _, err := logging.LevelFromString(c.LogLevel); err != nil {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path, err))
	}
	return errs
}

// Validate ensures the frame source is fully specified.
func (fc *FramesConfig) Validate(path string) error {
	var errs error
	switch {
	case fc.Dir == "" && fc.File == "":
		errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError(path, "dir"))
	case fc.Dir != "" && fc.File != "":
		errs = multierr.Append(errs, utils.NewConfigValidationError(path, errors.New("only one of dir and file may be set")))
	case fc.File != "" && fc.Points == "":
		errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError(path, "points"))
	}
	for name, value := range map[string]string{"pose_timeout": fc.PoseTimeout, "slop": fc.Slop} {
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = multierr.Append(errs, utils.NewConfigValidationError(path, errors.Wrapf(err, "invalid %s", name)))
		} else if d <= 0 {
			errs = multierr.Append(errs, utils.NewConfigValidationError(path, errors.Errorf("%s must be positive", name)))
		}
	}
	return errs
}

// Validate ensures the range is not empty.
func (dc *DepthConfig) Validate(path string) error {
	if dc.Min < 0 || dc.Max <= dc.Min {
		return utils.NewConfigValidationError(path, errors.Errorf("invalid depth range [%v, %v]", dc.Min, dc.Max))
	}
	return nil
}

// Validate ensures at least one sink is configured.
func (oc *OutputConfig) Validate(path string) error {
	if oc.Dir == "" && oc.SQLite == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "dir")
	}
	if oc.WriteLabel && oc.Dir == "" {
		return utils.NewConfigValidationError(path, errors.New("write_label needs dir"))
	}
	if oc.DebugEvery < 0 {
		return utils.NewConfigValidationError(path, errors.New("debug_every cannot be negative"))
	}
	return nil
}

// Validate ensures exactly one intrinsics source is set.
func (ic *IntrinsicsConfig) Validate(path string) error {
	switch {
	case ic.File == "" && ic.Bag == "":
		return utils.NewConfigValidationFieldRequiredError(path, "file")
	case ic.File != "" && ic.Bag != "":
		return utils.NewConfigValidationError(path, errors.New("only one of file and bag may be set"))
	}
	return nil
}

// SyncConfig returns the settings of an in-memory synchronizing frame source. The config must
// have been validated.
func (c *Config) SyncConfig() frame.SyncConfig {
	//nolint:errcheck
	timeout, _ := time.ParseDuration(c.Frames.PoseTimeout)
	//nolint:errcheck
	slop, _ := time.ParseDuration(c.Frames.Slop)
	return frame.SyncConfig{
		WorldFrame:  c.Frames.WorldFrame,
		CameraFrame: c.Frames.CameraFrame,
		PoseTimeout: timeout,
		Slop:        slop,
	}
}

func join(path, field string) string {
	if path == "" {
		return field
	}
	return fmt.Sprintf("%s.%s", path, field)
}
