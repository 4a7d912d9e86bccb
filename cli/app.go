// Package cli contains the gtlabeler command line tool.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	configFlag      = "config"
	debugFlag       = "debug"
	logFileFlag     = "log-file"
	frameFlag       = "frame"
	pointsFlag      = "points"
	dirFlag         = "dir"
	cameraFrameFlag = "camera-frame"
	intrinsicsFlag  = "intrinsics"
	bagFlag         = "bag"
	topicFlag       = "topic"
	outFlag         = "out"
	sqliteFlag      = "sqlite"
	writeLabelFlag  = "write-label"
	workersFlag     = "workers"
	minDepthFlag    = "min-depth"
	maxDepthFlag    = "max-depth"
	debugEveryFlag  = "debug-every"
)

var runFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  cameraFrameFlag,
		Usage: "frame id stamped on the detections",
	},
	&cli.StringFlag{
		Name:  intrinsicsFlag,
		Usage: "read the camera matrix from the JSON `FILE`",
	},
	&cli.StringFlag{
		Name:  bagFlag,
		Usage: "read the camera matrix from the camera_info topic of a rosbag `FILE`",
	},
	&cli.StringFlag{
		Name:  topicFlag,
		Usage: "camera_info topic to read from --bag",
	},
	&cli.StringFlag{
		Name:    outFlag,
		Aliases: []string{"o"},
		Usage:   "write detections to `DIR`",
	},
	&cli.StringFlag{
		Name:  sqliteFlag,
		Usage: "record detections in the sqlite database `FILE`",
	},
	&cli.BoolFlag{
		Name:  writeLabelFlag,
		Usage: "write the label image next to the detections",
	},
	&cli.IntFlag{
		Name:  workersFlag,
		Usage: "number of goroutines classifying each frame",
	},
	&cli.Float64Flag{
		Name:  minDepthFlag,
		Usage: "smallest valid depth in meters",
	},
	&cli.Float64Flag{
		Name:  maxDepthFlag,
		Usage: "largest valid depth in meters",
	},
	&cli.IntFlag{
		Name:  debugEveryFlag,
		Usage: "log the stage details of every `N`th frame without --debug",
	},
}

var app = &cli.App{
	Name:            "gtlabeler",
	Usage:           "label depth camera frames with simulator ground truth",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    configFlag,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:    debugFlag,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
		&cli.StringFlag{
			Name:  logFileFlag,
			Usage: "also write logs to `FILE`, rotated by size",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "label",
			Usage:     "label a single frame file",
			UsageText: "gtlabeler label --frame FILE --points FILE --intrinsics FILE --out DIR",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:  frameFlag,
					Usage: "frame text `FILE` with the poses and models",
				},
				&cli.StringFlag{
					Name:  pointsFlag,
					Usage: "PCD cloud or 16 bit depth PNG `FILE` of the frame",
				},
			}, runFlags...),
			Action: LabelAction,
		},
		{
			Name:      "watch",
			Usage:     "label every frame file that appears in a directory until interrupted",
			UsageText: "gtlabeler watch --dir DIR --intrinsics FILE --out DIR",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:  dirFlag,
					Usage: "`DIR` to watch for frame files",
				},
			}, runFlags...),
			Action: WatchAction,
		},
		{
			Name:      "intrinsics",
			Usage:     "extract the camera matrix from a rosbag",
			UsageText: "gtlabeler intrinsics --bag FILE [--topic TOPIC] [--out FILE]",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     bagFlag,
					Required: true,
					Usage:    "rosbag `FILE`",
				},
				&cli.StringFlag{
					Name:  topicFlag,
					Usage: "camera_info topic",
				},
				&cli.StringFlag{
					Name:    outFlag,
					Aliases: []string{"o"},
					Usage:   "write the intrinsics JSON to `FILE` instead of stdout",
				},
			},
			Action: IntrinsicsAction,
		},
		{
			Name:      "summary",
			Usage:     "print per-category detection counts of a label database",
			UsageText: "gtlabeler summary --sqlite FILE",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     sqliteFlag,
					Required: true,
					Usage:    "label database `FILE`",
				},
			},
			Action: SummaryAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
