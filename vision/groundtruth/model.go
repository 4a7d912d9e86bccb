// Package groundtruth derives per-object 2D detections and a label raster from simulator
// object metadata and a camera's 3D point samples.
//
// Each frame runs four stages: the camera transform is resolved from the camera and logical
// poses, every model's local box is projected into the camera frame, every valid point sample is
// assigned to the first box containing it, and the assigned pixels are painted with a color
// derived from the model's type.
package groundtruth

import (
	"image"
	"math"
	"strconv"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/schizzz8/lucrezio-semantic-perception/spatialmath"
)

// Model is one object reported by the logical camera: its type, its pose in the logical camera
// frame and the two corners of its box in model coordinates.
type Model struct {
	Type string           `json:"type"`
	Pose spatialmath.Pose `json:"pose"`
	Min  r3.Vector        `json:"min"`
	Max  r3.Vector        `json:"max"`
}

// BoundingBox3D is an axis aligned box in the camera frame with Min <= Max on every axis.
type BoundingBox3D struct {
	Min r3.Vector `json:"min"`
	Max r3.Vector `json:"max"`
}

// NewBoundingBox3D returns the componentwise envelope of two corners.
func NewBoundingBox3D(a, b r3.Vector) BoundingBox3D {
	return BoundingBox3D{
		Min: r3.Vector{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)},
		Max: r3.Vector{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)},
	}
}

// Contains is the half-open membership test: Min is inside, Max is outside, on every axis.
func (bb BoundingBox3D) Contains(p r3.Vector) bool {
	return p.X >= bb.Min.X && p.X < bb.Max.X &&
		p.Y >= bb.Min.Y && p.Y < bb.Max.Y &&
		p.Z >= bb.Min.Z && p.Z < bb.Max.Z
}

// Pixel is an image location as (row, col).
type Pixel struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Detection accumulates the pixels assigned to one model. A detection that was never assigned a
// pixel keeps its sentinel bounds, TopLeft at the largest int and BottomRight at the smallest.
type Detection struct {
	Type        string  `json:"type"`
	TopLeft     Pixel   `json:"top_left"`
	BottomRight Pixel   `json:"bottom_right"`
	Pixels      []Pixel `json:"pixels"`
}

// NewDetection returns an empty detection for the given type.
func NewDetection(typ string) Detection {
	d := Detection{}
	d.reset(typ)
	return d
}

// reset empties the detection, keeping the pixel list's capacity.
func (d *Detection) reset(typ string) {
	d.Type = typ
	d.TopLeft = Pixel{Row: math.MaxInt, Col: math.MaxInt}
	d.BottomRight = Pixel{Row: math.MinInt, Col: math.MinInt}
	d.Pixels = d.Pixels[:0]
}

func (d *Detection) add(row, col int) {
	if row < d.TopLeft.Row {
		d.TopLeft.Row = row
	}
	if col < d.TopLeft.Col {
		d.TopLeft.Col = col
	}
	if row > d.BottomRight.Row {
		d.BottomRight.Row = row
	}
	if col > d.BottomRight.Col {
		d.BottomRight.Col = col
	}
	d.Pixels = append(d.Pixels, Pixel{Row: row, Col: col})
}

// Visible reports whether any pixel was assigned. A single assigned pixel is visible with a
// zero-size box.
func (d Detection) Visible() bool {
	return d.TopLeft.Row <= d.BottomRight.Row && d.TopLeft.Col <= d.BottomRight.Col
}

// BoundingBox returns the pixel bounds as an image rectangle (x is the column) including both
// corners. It is empty when the detection is not visible.
func (d Detection) BoundingBox() image.Rectangle {
	if !d.Visible() {
		return image.Rectangle{}
	}
	return image.Rect(d.TopLeft.Col, d.TopLeft.Row, d.BottomRight.Col+1, d.BottomRight.Row+1)
}

// Clone returns a deep copy.
func (d Detection) Clone() Detection {
	out := d
	out.Pixels = append(make([]Pixel, 0, len(d.Pixels)), d.Pixels...)
	return out
}

// DetectionSet is the output of one frame, index aligned with the frame's models.
type DetectionSet struct {
	Timestamp   time.Time   `json:"timestamp"`
	FrameID     uuid.UUID   `json:"frame_id"`
	CameraFrame string      `json:"camera_frame"`
	Detections  []Detection `json:"detections"`
}

var frameIDNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("gtlabeler/frame"))

// NewFrameID returns the id of the frame taken at ts by cameraFrame. The same frame always gets
// the same id, so relabeling a frame reproduces its output.
func NewFrameID(ts time.Time, cameraFrame string) uuid.UUID {
	return uuid.NewSHA1(frameIDNamespace, []byte(strconv.FormatInt(ts.UnixNano(), 10)+"/"+cameraFrame))
}

// Visible returns how many detections were assigned at least one pixel.
func (ds *DetectionSet) Visible() int {
	n := 0
	for _, d := range ds.Detections {
		if d.Visible() {
			n++
		}
	}
	return n
}
