package pointcloud

import (
	"github.com/golang/geo/r3"

	"github.com/schizzz8/lucrezio-semantic-perception/rimage"
	"github.com/schizzz8/lucrezio-semantic-perception/rimage/transform"
)

// Cloud is a list of camera frame points. When Height > 1 the cloud is organized: point i was
// observed by pixel (i / Width, i % Width), as depth cameras publish it.
type Cloud struct {
	Width, Height int
	Points        []r3.Vector
}

// NewCloud returns an unorganized cloud over points.
func NewCloud(points []r3.Vector) *Cloud {
	return &Cloud{Width: len(points), Height: 1, Points: points}
}

// Organized reports whether the cloud carries a pixel grid.
func (c *Cloud) Organized() bool {
	return c.Height > 1 && c.Width*c.Height == len(c.Points)
}

// PointsImage lays an organized cloud out as a points image. Non-finite points become the zero
// vector, so they read as invalid.
func (c *Cloud) PointsImage() *rimage.PointsImage {
	pi := rimage.NewPointsImage(c.Height, c.Width)
	for i, p := range c.Points {
		if !finite(p) {
			continue
		}
		pi.Set(i/c.Width, i%c.Width, p)
	}
	return pi
}

// Stream picks the adapter that matches the cloud's shape: organized clouds are read by index,
// everything else is re-projected through params into an image of width x height (0 for
// unbounded).
func (c *Cloud) Stream(params *transform.PinholeCameraIntrinsics, width, height int) SampleStream {
	if c.Organized() {
		return NewGridStream(c.PointsImage())
	}
	return NewProjectedStream(c.Points, params, width, height)
}

// projectedStream re-projects unordered points through the camera matrix.
type projectedStream struct {
	points        []r3.Vector
	params        *transform.PinholeCameraIntrinsics
	width, height int
}

// NewProjectedStream returns a stream that finds each point's pixel by projecting it with params.
// Near-zero points and points whose projection is undefined are skipped, as are pixels outside
// width x height when those are non-zero.
func NewProjectedStream(points []r3.Vector, params *transform.PinholeCameraIntrinsics, width, height int) SampleStream {
	return &projectedStream{points: points, params: params, width: width, height: height}
}

func (ps *projectedStream) Len() int {
	return len(ps.points)
}

func (ps *projectedStream) Iterate(numBatches, myBatch int, fn func(s Sample) bool) {
	start, end := batchRange(len(ps.points), numBatches, myBatch)
	for _, p := range ps.points[start:end] {
		if !rimage.IsValidPoint(p) {
			continue
		}
		row, col, ok := ps.params.ProjectToPixel(p)
		if !ok {
			continue
		}
		if ps.width > 0 && (col < 0 || col >= ps.width) {
			continue
		}
		if ps.height > 0 && (row < 0 || row >= ps.height) {
			continue
		}
		if !fn(Sample{Row: row, Col: col, Point: p}) {
			return
		}
	}
}

// gridStream walks a points image in row-major order.
type gridStream struct {
	points *rimage.PointsImage
}

// NewGridStream returns a stream over a dense points image. Cells holding the near-zero sentinel
// are skipped.
func NewGridStream(points *rimage.PointsImage) SampleStream {
	return &gridStream{points: points}
}

func (gs *gridStream) Len() int {
	return gs.points.Rows() * gs.points.Cols()
}

func (gs *gridStream) Iterate(numBatches, myBatch int, fn func(s Sample) bool) {
	cols := gs.points.Cols()
	if cols == 0 {
		return
	}
	start, end := batchRange(gs.Len(), numBatches, myBatch)
	for k := start; k < end; k++ {
		r, c := k/cols, k%cols
		p := gs.points.At(r, c)
		if !rimage.IsValidPoint(p) {
			continue
		}
		if !fn(Sample{Row: r, Col: c, Point: p}) {
			return
		}
	}
}

// SliceStream is a fixed list of samples, mostly useful for tests and replays.
type SliceStream []Sample

// Len returns the number of samples.
func (ss SliceStream) Len() int {
	return len(ss)
}

// Iterate visits the samples in order, skipping near-zero points.
func (ss SliceStream) Iterate(numBatches, myBatch int, fn func(s Sample) bool) {
	start, end := batchRange(len(ss), numBatches, myBatch)
	for _, s := range ss[start:end] {
		if !rimage.IsValidPoint(s.Point) {
			continue
		}
		if !fn(s) {
			return
		}
	}
}
