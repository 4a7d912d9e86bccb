package groundtruth

import (
	"go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"github.com/schizzz8/lucrezio-semantic-perception/pointcloud"
	"github.com/schizzz8/lucrezio-semantic-perception/spatialmath"
)

// Arena holds the per-frame boxes and detections. It is reset at the start of every frame and
// keeps its slices, including each detection's pixel list, so that steady state frames do not
// allocate beyond pixel list growth.
type Arena struct {
	boxes      []BoundingBox3D
	detections []Detection
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// Reset projects the models' boxes with tRel and prepares one empty detection per model.
func (a *Arena) Reset(tRel spatialmath.Pose, models []Model) {
	a.boxes = projectBoxesInto(a.boxes, tRel, models)
	if cap(a.detections) < len(models) {
		grown := make([]Detection, len(models))
		copy(grown, a.detections[:cap(a.detections)])
		a.detections = grown
	}
	a.detections = a.detections[:len(models)]
	for i, m := range models {
		a.detections[i].reset(m.Type)
	}
}

// Boxes returns the boxes of the current frame. The slice is reused by the next Reset.
func (a *Arena) Boxes() []BoundingBox3D {
	return a.boxes
}

// Detections returns the detections of the current frame. The slice is reused by the next Reset.
func (a *Arena) Detections() []Detection {
	return a.detections
}

// Snapshot returns a deep copy of the current detections that outlives the next Reset.
func (a *Arena) Snapshot() []Detection {
	out := make([]Detection, len(a.detections))
	for i, d := range a.detections {
		out[i] = d.Clone()
	}
	return out
}

// Classify assigns each valid sample of the stream to the first box containing it and records
// the pixel on the matching detection. It returns the number of assigned samples.
func (a *Arena) Classify(stream pointcloud.SampleStream) int {
	return Classify(stream, a.boxes, a.detections)
}

// ClassifyParallel is Classify split over workers goroutines.
func (a *Arena) ClassifyParallel(stream pointcloud.SampleStream, workers int) int {
	return ClassifyParallel(stream, a.boxes, a.detections, workers)
}

// firstMatch returns the index of the first box containing p, or -1.
func firstMatch(boxes []BoundingBox3D, s pointcloud.Sample) int {
	for j := range boxes {
		if boxes[j].Contains(s.Point) {
			return j
		}
	}
	return -1
}

// Classify assigns each valid sample to the first box, in list order, that contains it.
// detections must be index aligned with boxes. Samples that fall in no box are dropped.
// It returns the number of assigned samples.
func Classify(stream pointcloud.SampleStream, boxes []BoundingBox3D, detections []Detection) int {
	matched := 0
	stream.Iterate(0, 0, func(s pointcloud.Sample) bool {
		if j := firstMatch(boxes, s); j >= 0 {
			detections[j].add(s.Row, s.Col)
			matched++
		}
		return true
	})
	return matched
}

type assignment struct {
	box      int
	row, col int
}

// ClassifyParallel gives the same result as Classify. The stream is split into workers
// contiguous batches that are matched against the boxes concurrently; the assignments are then
// folded into the detections batch by batch, which preserves stream order.
func ClassifyParallel(stream pointcloud.SampleStream, boxes []BoundingBox3D, detections []Detection, workers int) int {
	if workers <= 1 || len(boxes) == 0 {
		return Classify(stream, boxes, detections)
	}
	batches := make([][]assignment, workers)
	var g errgroup.Group
	for b := 0; b < workers; b++ {
		b := b
		g.Go(func() error {
			var out []assignment
			stream.Iterate(workers, b, func(s pointcloud.Sample) bool {
				if j := firstMatch(boxes, s); j >= 0 {
					out = append(out, assignment{box: j, row: s.Row, col: s.Col})
				}
				return true
			})
			batches[b] = out
			return nil
		})
	}
	utils.UncheckedError(g.Wait())

	matched := 0
	for _, batch := range batches {
		for _, as := range batch {
			detections[as.box].add(as.row, as.col)
		}
		matched += len(batch)
	}
	return matched
}
