package sink

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/schizzz8/lucrezio-semantic-perception/rimage"
	"github.com/schizzz8/lucrezio-semantic-perception/vision/groundtruth"
)

func testSet() *groundtruth.DetectionSet {
	visible := groundtruth.Detection{
		Type:        "table_1",
		TopLeft:     groundtruth.Pixel{Row: 1, Col: 2},
		BottomRight: groundtruth.Pixel{Row: 3, Col: 4},
		Pixels:      []groundtruth.Pixel{{Row: 1, Col: 2}, {Row: 3, Col: 4}},
	}
	return &groundtruth.DetectionSet{
		Timestamp:   time.Unix(1700000000, 250).UTC(),
		FrameID:     uuid.MustParse("9b2c6f3e-8d41-4b8a-9a4e-2f1d7c5e0a11"),
		CameraFrame: "camera_depth_optical_frame",
		Detections:  []groundtruth.Detection{visible, groundtruth.NewDetection("milk_0")},
	}
}

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	fs, err := NewFileSink(dir, true)
	test.That(t, err, test.ShouldBeNil)

	set := testSet()
	label := rimage.NewImage(5, 4)
	label.SetXY(2, 1, rimage.NewColor(1, 2, 3))
	test.That(t, fs.Write(context.Background(), set, label), test.ShouldBeNil)
	test.That(t, fs.Close(), test.ShouldBeNil)

	base := filepath.Join(dir, "1700000000000000250_9b2c6f3e-8d41-4b8a-9a4e-2f1d7c5e0a11")
	test.That(t, BaseName(set), test.ShouldEqual, filepath.Base(base))
	back, err := ReadDetectionSet(base + ".json")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Timestamp.Equal(set.Timestamp), test.ShouldBeTrue)
	back.Timestamp = set.Timestamp
	test.That(t, cmp.Diff(set, back), test.ShouldBeEmpty)

	img, err := rimage.ReadImageFromFile(base + ".png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.GetXY(2, 1), test.ShouldResemble, rimage.NewColor(1, 2, 3))
	test.That(t, img.GetXY(0, 0), test.ShouldResemble, rimage.NewColor(0, 0, 0))

	_, err = ReadDetectionSet(base + ".png")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSQLiteSink(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "labels.db")
	s, err := NewSQLiteSink(path)
	test.That(t, err, test.ShouldBeNil)

	set := testSet()
	test.That(t, s.Write(ctx, set, nil), test.ShouldBeNil)

	var ts int64
	var cameraFrame string
	err = s.DB().QueryRowContext(ctx, `SELECT ts, camera_frame FROM frames WHERE frame_id = ?`, set.FrameID.String()).
		Scan(&ts, &cameraFrame)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ts, test.ShouldEqual, set.Timestamp.UnixNano())
	test.That(t, cameraFrame, test.ShouldEqual, "camera_depth_optical_frame")

	rows, err := s.DB().QueryContext(ctx,
		`SELECT idx, type, tl_r, br_c, n_pixels, visible FROM detections WHERE frame_id = ? ORDER BY idx`,
		set.FrameID.String())
	test.That(t, err, test.ShouldBeNil)
	type row struct {
		idx      int
		typ      string
		tlR, brC sql.NullInt64
		nPixels  int
		visible  bool
	}
	var got []row
	for rows.Next() {
		var r row
		test.That(t, rows.Scan(&r.idx, &r.typ, &r.tlR, &r.brC, &r.nPixels, &r.visible), test.ShouldBeNil)
		got = append(got, r)
	}
	test.That(t, rows.Err(), test.ShouldBeNil)
	test.That(t, rows.Close(), test.ShouldBeNil)
	test.That(t, got, test.ShouldHaveLength, 2)
	test.That(t, got[0].typ, test.ShouldEqual, "table_1")
	test.That(t, got[0].tlR, test.ShouldResemble, sql.NullInt64{Int64: 1, Valid: true})
	test.That(t, got[0].brC, test.ShouldResemble, sql.NullInt64{Int64: 4, Valid: true})
	test.That(t, got[0].nPixels, test.ShouldEqual, 2)
	test.That(t, got[0].visible, test.ShouldBeTrue)
	test.That(t, got[1].typ, test.ShouldEqual, "milk_0")
	test.That(t, got[1].tlR.Valid, test.ShouldBeFalse)
	test.That(t, got[1].visible, test.ShouldBeFalse)

	// writing a frame again replaces its rows.
	set.Detections = set.Detections[:1]
	test.That(t, s.Write(ctx, set, nil), test.ShouldBeNil)
	var n int
	test.That(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM detections`).Scan(&n), test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 1)
	test.That(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM frames`).Scan(&n), test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 1)

	test.That(t, s.Close(), test.ShouldBeNil)

	// reopening keeps the data.
	s, err = NewSQLiteSink(path)
	test.That(t, err, test.ShouldBeNil)
	defer s.Close()
	test.That(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM frames`).Scan(&n), test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 1)
}

func TestSQLiteSinkSummary(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteSink(filepath.Join(t.TempDir(), "labels.db"))
	test.That(t, err, test.ShouldBeNil)
	defer s.Close()

	summary, err := s.Summary(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary.Frames, test.ShouldEqual, 0)
	test.That(t, summary.Categories, test.ShouldBeEmpty)

	second := testSet()
	second.FrameID = uuid.New()
	test.That(t, s.Write(ctx, testSet(), nil), test.ShouldBeNil)
	test.That(t, s.Write(ctx, second, nil), test.ShouldBeNil)

	summary, err = s.Summary(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary.Frames, test.ShouldEqual, 2)
	test.That(t, summary.Categories, test.ShouldResemble, []CategorySummary{
		{Category: "milk", Detections: 2, Visible: 0, Pixels: 0},
		{Category: "table", Detections: 2, Visible: 2, Pixels: 4},
	})

	out := summary.String()
	test.That(t, out, test.ShouldContainSubstring, "2 frame(s)")
	test.That(t, out, test.ShouldContainSubstring, "CATEGORY")
	test.That(t, out, test.ShouldContainSubstring, "table")
	test.That(t, out, test.ShouldContainSubstring, "TOTAL")
}

type recordingSink struct {
	writes int
	err    error
	closed bool
}

func (r *recordingSink) Write(ctx context.Context, set *groundtruth.DetectionSet, label *rimage.Image) error {
	r.writes++
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return r.err
}

func TestMulti(t *testing.T) {
	errA := errors.New("a failed")
	a := &recordingSink{err: errA}
	b := &recordingSink{}
	m := Multi{a, b}

	err := m.Write(context.Background(), testSet(), nil)
	test.That(t, errors.Is(err, errA), test.ShouldBeTrue)
	test.That(t, a.writes, test.ShouldEqual, 1)
	test.That(t, b.writes, test.ShouldEqual, 1)

	test.That(t, errors.Is(m.Close(), errA), test.ShouldBeTrue)
	test.That(t, a.closed, test.ShouldBeTrue)
	test.That(t, b.closed, test.ShouldBeTrue)

	test.That(t, Multi{}.Write(context.Background(), testSet(), nil), test.ShouldBeNil)
}
