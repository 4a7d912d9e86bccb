package groundtruth

import (
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"go.viam.com/test"

	"github.com/schizzz8/lucrezio-semantic-perception/pointcloud"
	"github.com/schizzz8/lucrezio-semantic-perception/rimage"
	"github.com/schizzz8/lucrezio-semantic-perception/spatialmath"
)

func rotZ(t *testing.T, theta float64) spatialmath.RotationMatrix {
	t.Helper()
	s, c := math.Sincos(theta)
	rm, err := spatialmath.NewRotationMatrix([]float64{c, -s, 0, s, c, 0, 0, 0, 1})
	test.That(t, err, test.ShouldBeNil)
	return rm
}

func unitModel(typ string, min, max r3.Vector) Model {
	return Model{Type: typ, Pose: spatialmath.NewZeroPose(), Min: min, Max: max}
}

func label(arena *Arena, models []Model, samples pointcloud.SampleStream) []Detection {
	arena.Reset(spatialmath.NewZeroPose(), models)
	arena.Classify(samples)
	return arena.Snapshot()
}

func TestResolveCameraTransform(t *testing.T) {
	camera := spatialmath.NewPoseFromPoint(r3.Vector{X: 1})
	logical := spatialmath.NewPoseFromPoint(r3.Vector{Y: 2})
	tRel := ResolveCameraTransform(camera, logical)
	test.That(t, tRel.Point(), test.ShouldResemble, r3.Vector{X: -1, Y: 2})

	camera = spatialmath.NewPose(r3.Vector{X: 1}, rotZ(t, math.Pi/2))
	tRel = ResolveCameraTransform(camera, spatialmath.NewZeroPose())
	// a point one unit along the camera's x axis, seen from the world.
	world := camera.Transform(r3.Vector{X: 1})
	test.That(t, spatialmath.R3VectorAlmostEqual(world, r3.Vector{X: 1, Y: 1}, 1e-9), test.ShouldBeTrue)
	test.That(t, spatialmath.R3VectorAlmostEqual(tRel.Transform(world), r3.Vector{X: 1}, 1e-9), test.ShouldBeTrue)
}

func TestProjectBoxes(t *testing.T) {
	m := Model{
		Type: "table_1",
		Pose: spatialmath.NewPose(r3.Vector{Z: 1}, rotZ(t, math.Pi/2)),
		Min:  r3.Vector{X: -1, Y: -2},
		Max:  r3.Vector{X: 1, Y: 2, Z: 1},
	}
	boxes := ProjectBoxes(spatialmath.NewPoseFromPoint(r3.Vector{X: 10}), []Model{m})
	test.That(t, boxes, test.ShouldHaveLength, 1)
	test.That(t, spatialmath.R3VectorAlmostEqual(boxes[0].Min, r3.Vector{X: 8, Y: -1, Z: 1}, 1e-9), test.ShouldBeTrue)
	test.That(t, spatialmath.R3VectorAlmostEqual(boxes[0].Max, r3.Vector{X: 12, Y: 1, Z: 2}, 1e-9), test.ShouldBeTrue)

	// only the two corners are transformed: at 45 degrees they line up on the y axis and the
	// envelope has no extent in x.
	m.Pose = spatialmath.NewPose(r3.Vector{}, rotZ(t, math.Pi/4))
	m.Min, m.Max = r3.Vector{X: -1, Y: -1}, r3.Vector{X: 1, Y: 1, Z: 1}
	box := ProjectBox(spatialmath.NewZeroPose(), m)
	test.That(t, box.Max.X-box.Min.X, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, box.Min.Y, test.ShouldAlmostEqual, -math.Sqrt2, 1e-9)
	test.That(t, box.Max.Y, test.ShouldAlmostEqual, math.Sqrt2, 1e-9)

	test.That(t, ProjectBoxes(spatialmath.NewZeroPose(), nil), test.ShouldBeEmpty)
}

func TestEndToEndSingleTable(t *testing.T) {
	models := []Model{unitModel("table_1", r3.Vector{X: -1, Y: -1}, r3.Vector{X: 1, Y: 1, Z: 1})}
	samples := pointcloud.SliceStream{
		{Row: 2, Col: 3, Point: r3.Vector{Z: 0.5}},
		{Row: 4, Col: 4, Point: r3.Vector{X: 2, Y: 2, Z: 2}},
		{Row: 5, Col: 1, Point: r3.Vector{X: 1, Y: 1, Z: 0.99}},
		{Row: 1, Col: 6, Point: r3.Vector{X: -1, Y: -1}},
		{Row: 7, Col: 7, Point: r3.Vector{X: 1, Y: 1, Z: 1}},
	}
	arena := NewArena()
	arena.Reset(ResolveCameraTransform(spatialmath.NewZeroPose(), spatialmath.NewZeroPose()), models)
	test.That(t, arena.Classify(samples), test.ShouldEqual, 2)

	// (1, 1, 0.99) sits on max.x and max.y, so only the first and fourth samples are inside.
	d := arena.Detections()[0]
	test.That(t, d.Type, test.ShouldEqual, "table_1")
	test.That(t, d.Pixels, test.ShouldResemble, []Pixel{{Row: 2, Col: 3}, {Row: 1, Col: 6}})
	test.That(t, d.TopLeft, test.ShouldResemble, Pixel{Row: 1, Col: 3})
	test.That(t, d.BottomRight, test.ShouldResemble, Pixel{Row: 2, Col: 6})
	test.That(t, d.Visible(), test.ShouldBeTrue)
	test.That(t, d.BoundingBox().Dx(), test.ShouldEqual, 4)
	test.That(t, d.BoundingBox().Dy(), test.ShouldEqual, 2)
}

func TestOutsideBoxKeepsSentinel(t *testing.T) {
	models := []Model{
		unitModel("milk_0", r3.Vector{X: 5, Y: 5, Z: 5}, r3.Vector{X: 6, Y: 6, Z: 6}),
		unitModel("salt_0", r3.Vector{X: -1, Y: -1}, r3.Vector{X: 1, Y: 1, Z: 1}),
	}
	samples := pointcloud.SliceStream{{Row: 0, Col: 0, Point: r3.Vector{Z: 0.5}}}
	dets := label(NewArena(), models, samples)

	test.That(t, dets[0].TopLeft, test.ShouldResemble, Pixel{Row: math.MaxInt, Col: math.MaxInt})
	test.That(t, dets[0].BottomRight, test.ShouldResemble, Pixel{Row: math.MinInt, Col: math.MinInt})
	test.That(t, dets[0].Pixels, test.ShouldBeEmpty)
	test.That(t, dets[0].Pixels, test.ShouldNotBeNil)
	test.That(t, dets[0].Visible(), test.ShouldBeFalse)
	test.That(t, dets[0].BoundingBox().Empty(), test.ShouldBeTrue)

	// a single pixel is a zero-size box, still visible.
	test.That(t, dets[1].TopLeft, test.ShouldResemble, dets[1].BottomRight)
	test.That(t, dets[1].Visible(), test.ShouldBeTrue)
}

func TestNewFrameID(t *testing.T) {
	ts := time.Unix(1700000000, 250)
	id := NewFrameID(ts, "camera_depth_optical_frame")
	test.That(t, NewFrameID(ts, "camera_depth_optical_frame"), test.ShouldEqual, id)
	test.That(t, NewFrameID(ts.Add(time.Nanosecond), "camera_depth_optical_frame"), test.ShouldNotEqual, id)
	test.That(t, NewFrameID(ts, "camera_rgb_optical_frame"), test.ShouldNotEqual, id)
}

func gridSamples(n int, step float64) pointcloud.SliceStream {
	var out pointcloud.SliceStream
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			out = append(out, pointcloud.Sample{
				Row: r, Col: c,
				Point: r3.Vector{X: float64(c) * step, Y: float64(r) * step, Z: 1},
			})
		}
	}
	return out
}

func TestNonOverlappingPartition(t *testing.T) {
	samples := gridSamples(10, 0.1)
	left := unitModel("tomato_0", r3.Vector{X: 0, Y: 0, Z: 0}, r3.Vector{X: 0.45, Y: 1, Z: 2})
	right := unitModel("tomato_1", r3.Vector{X: 0.45, Y: 0, Z: 0}, r3.Vector{X: 0.75, Y: 1, Z: 2})
	dets := label(NewArena(), []Model{left, right}, samples)

	seen := map[Pixel]int{}
	for i, d := range dets {
		for _, p := range d.Pixels {
			_, dup := seen[p]
			test.That(t, dup, test.ShouldBeFalse)
			seen[p] = i
		}
	}
	boxes := ProjectBoxes(spatialmath.NewZeroPose(), []Model{left, right})
	inside := 0
	for _, s := range samples {
		if boxes[0].Contains(s.Point) || boxes[1].Contains(s.Point) {
			inside++
			_, ok := seen[Pixel{Row: s.Row, Col: s.Col}]
			test.That(t, ok, test.ShouldBeTrue)
		}
	}
	test.That(t, len(seen), test.ShouldEqual, inside)
	test.That(t, len(dets[0].Pixels), test.ShouldEqual, 50)
	test.That(t, len(dets[1].Pixels), test.ShouldEqual, 30)
}

func TestOverlapFirstMatchAndPermutation(t *testing.T) {
	samples := gridSamples(10, 0.1)
	a := unitModel("table_0", r3.Vector{X: 0, Y: 0, Z: 0}, r3.Vector{X: 0.55, Y: 1, Z: 2})
	b := unitModel("salt_0", r3.Vector{X: 0.35, Y: 0, Z: 0}, r3.Vector{X: 1, Y: 1, Z: 2})
	third := unitModel("milk_0", r3.Vector{X: 0, Y: 5, Z: 0}, r3.Vector{X: 1, Y: 6, Z: 2})

	inOverlap := func(p Pixel) bool { return p.Col >= 4 && p.Col <= 5 }
	count := func(d Detection, pred func(Pixel) bool) int {
		n := 0
		for _, p := range d.Pixels {
			if pred(p) {
				n++
			}
		}
		return n
	}

	ab := label(NewArena(), []Model{a, b, third}, samples)
	test.That(t, count(ab[0], inOverlap), test.ShouldEqual, 20)
	test.That(t, count(ab[1], inOverlap), test.ShouldEqual, 0)

	ba := label(NewArena(), []Model{b, a, third}, samples)
	test.That(t, count(ba[0], inOverlap), test.ShouldEqual, 20)
	test.That(t, count(ba[1], inOverlap), test.ShouldEqual, 0)

	// points outside the overlap are unaffected by the swap.
	outside := func(p Pixel) bool { return !inOverlap(p) }
	test.That(t, count(ab[0], outside), test.ShouldEqual, count(ba[1], outside))
	test.That(t, count(ab[1], outside), test.ShouldEqual, count(ba[0], outside))
	test.That(t, cmp.Diff(ab[2], ba[2]), test.ShouldBeEmpty)
}

func TestBoundaryPerAxis(t *testing.T) {
	box := NewBoundingBox3D(r3.Vector{X: 0, Y: 0, Z: 0}, r3.Vector{X: 1, Y: 2, Z: 3})
	center := r3.Vector{X: 0.5, Y: 1, Z: 1.5}
	test.That(t, box.Contains(center), test.ShouldBeTrue)
	for _, tc := range []struct {
		name string
		set  func(v *r3.Vector, val float64)
		min  float64
		max  float64
	}{
		{"x", func(v *r3.Vector, val float64) { v.X = val }, 0, 1},
		{"y", func(v *r3.Vector, val float64) { v.Y = val }, 0, 2},
		{"z", func(v *r3.Vector, val float64) { v.Z = val }, 0, 3},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := center
			tc.set(&p, tc.min)
			test.That(t, box.Contains(p), test.ShouldBeTrue)
			tc.set(&p, tc.max)
			test.That(t, box.Contains(p), test.ShouldBeFalse)
			tc.set(&p, math.Nextafter(tc.max, math.Inf(-1)))
			test.That(t, box.Contains(p), test.ShouldBeTrue)
			tc.set(&p, math.Nextafter(tc.min, math.Inf(-1)))
			test.That(t, box.Contains(p), test.ShouldBeFalse)
		})
	}

	// the envelope orders corners given in any order.
	flipped := NewBoundingBox3D(r3.Vector{X: 1, Y: 0, Z: 3}, r3.Vector{X: 0, Y: 2, Z: 0})
	test.That(t, flipped, test.ShouldResemble, box)
}

func TestIdempotence(t *testing.T) {
	samples := gridSamples(12, 0.1)
	models := []Model{
		unitModel("table_0", r3.Vector{X: 0.1, Y: 0.1}, r3.Vector{X: 0.6, Y: 0.6, Z: 2}),
		unitModel("tomato_2", r3.Vector{X: 0.3, Y: 0.3}, r3.Vector{X: 1.1, Y: 0.9, Z: 2}),
		unitModel("chair_0", r3.Vector{X: 0, Y: 0.8}, r3.Vector{X: 0.5, Y: 1.2, Z: 2}),
	}
	arena := NewArena()
	first := label(arena, models, samples)
	second := label(arena, models, samples)
	test.That(t, cmp.Diff(first, second), test.ShouldBeEmpty)

	img1, unknown1 := PaintLabelImage(12, 12, first)
	img2, unknown2 := PaintLabelImage(12, 12, second)
	test.That(t, cmp.Diff(img1.Pix(), img2.Pix()), test.ShouldBeEmpty)
	test.That(t, unknown1, test.ShouldResemble, []string{"chair"})
	test.That(t, unknown2, test.ShouldResemble, unknown1)
}

func TestClassifyParallelMatchesSequential(t *testing.T) {
	samples := gridSamples(31, 0.05)
	models := []Model{
		unitModel("table_0", r3.Vector{X: 0.1, Y: 0.1}, r3.Vector{X: 0.9, Y: 0.7, Z: 2}),
		unitModel("tomato_0", r3.Vector{X: 0.5, Y: 0.5}, r3.Vector{X: 1.4, Y: 1.4, Z: 2}),
		unitModel("milk_0", r3.Vector{X: 2, Y: 2}, r3.Vector{X: 3, Y: 3, Z: 3}),
	}
	boxes := ProjectBoxes(spatialmath.NewZeroPose(), models)
	expected := make([]Detection, len(models))
	for i, m := range models {
		expected[i] = NewDetection(m.Type)
	}
	matched := Classify(samples, boxes, expected)
	test.That(t, matched, test.ShouldBeGreaterThan, 0)

	for _, workers := range []int{0, 1, 2, 3, 7, 64} {
		got := make([]Detection, len(models))
		for i, m := range models {
			got[i] = NewDetection(m.Type)
		}
		test.That(t, ClassifyParallel(samples, boxes, got, workers), test.ShouldEqual, matched)
		test.That(t, cmp.Diff(expected, got), test.ShouldBeEmpty)
	}
}

func TestArenaReuse(t *testing.T) {
	arena := NewArena()
	models := []Model{
		unitModel("table_0", r3.Vector{}, r3.Vector{X: 1, Y: 1, Z: 2}),
		unitModel("salt_0", r3.Vector{X: 5}, r3.Vector{X: 6, Y: 1, Z: 2}),
	}
	samples := gridSamples(5, 0.1)
	first := label(arena, models, samples)
	test.That(t, first[0].Pixels, test.ShouldHaveLength, 25)

	arena.Reset(spatialmath.NewZeroPose(), models[1:])
	test.That(t, arena.Detections(), test.ShouldHaveLength, 1)
	test.That(t, arena.Detections()[0].Type, test.ShouldEqual, "salt_0")
	test.That(t, arena.Detections()[0].Pixels, test.ShouldBeEmpty)
	test.That(t, arena.Detections()[0].Visible(), test.ShouldBeFalse)
	// snapshots are not touched by later frames.
	test.That(t, first[0].Pixels, test.ShouldHaveLength, 25)

	arena.Reset(spatialmath.NewZeroPose(), models)
	test.That(t, arena.Boxes(), test.ShouldHaveLength, 2)
	test.That(t, arena.ClassifyParallel(samples, 3), test.ShouldEqual, 25)
	test.That(t, cmp.Diff(arena.Snapshot(), first), test.ShouldBeEmpty)
}

func TestTypeToColor(t *testing.T) {
	c, ok := TypeToColor("tomato_0")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, c, test.ShouldResemble, rimage.NewColor(0x7f, 0xff, 0xff))

	for _, tc := range []struct {
		typ      string
		expected rimage.Color
	}{
		{"table_1", rimage.NewColor(0x3f, 0xff, 0xff)},
		{"tomato", rimage.NewColor(0x7f, 0xff, 0xff)},
		{"salt_12", rimage.NewColor(0xbf, 0xff, 0xff)},
		{"milk_0_extra", rimage.NewColor(0xff, 0xff, 0xff)},
	} {
		c, ok := TypeToColor(tc.typ)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, c, test.ShouldResemble, tc.expected)
	}

	for _, typ := range []string{"chair_0", "", "_table", "Table_1"} {
		c, ok := TypeToColor(typ)
		test.That(t, ok, test.ShouldBeFalse)
		test.That(t, c, test.ShouldResemble, UnknownColor)
	}

	test.That(t, Category("tomato_0_a"), test.ShouldEqual, "tomato")
	test.That(t, Categories(), test.ShouldResemble, []string{"table", "tomato", "salt", "milk"})
}

func TestPaintLabelImage(t *testing.T) {
	table := NewDetection("table_1")
	table.add(0, 0)
	table.add(1, 2)
	chair := NewDetection("chair_1")
	chair.add(2, 2)
	chair2 := NewDetection("chair_2")
	chair2.add(2, 3)
	offImage := NewDetection("milk_0")
	offImage.add(10, 10)
	hidden := NewDetection("salt_0")

	img, unknown := PaintLabelImage(4, 3, []Detection{table, chair, chair2, offImage, hidden})
	test.That(t, unknown, test.ShouldResemble, []string{"chair"})
	tableColor, _ := TypeToColor("table")
	test.That(t, img.GetXY(0, 0), test.ShouldResemble, tableColor)
	test.That(t, img.GetXY(2, 1), test.ShouldResemble, tableColor)
	test.That(t, img.GetXY(2, 2), test.ShouldResemble, UnknownColor)
	test.That(t, img.GetXY(3, 2), test.ShouldResemble, UnknownColor)
	test.That(t, img.GetXY(1, 1), test.ShouldResemble, BackgroundColor)
	test.That(t, img.Width(), test.ShouldEqual, 4)
	test.That(t, img.Height(), test.ShouldEqual, 3)
}
