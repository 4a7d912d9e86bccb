package sink

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	// registers the "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/schizzz8/lucrezio-semantic-perception/rimage"
	"github.com/schizzz8/lucrezio-semantic-perception/vision/groundtruth"
)

const schema = `
	CREATE TABLE IF NOT EXISTS frames (
		frame_id TEXT PRIMARY KEY,
		ts INTEGER NOT NULL,
		camera_frame TEXT
	);
	CREATE TABLE IF NOT EXISTS detections (
		frame_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		type TEXT NOT NULL,
		tl_r INTEGER,
		tl_c INTEGER,
		br_r INTEGER,
		br_c INTEGER,
		n_pixels INTEGER NOT NULL,
		visible BOOLEAN NOT NULL,
		PRIMARY KEY (frame_id, idx),
		FOREIGN KEY (frame_id) REFERENCES frames(frame_id)
	);
`

// SQLiteSink records one row per frame and one row per detection. Pixel lists are not stored;
// bounds of detections that are not visible are NULL.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens or creates the database at path.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %q", path)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, multierr.Combine(errors.Wrap(err, "cannot create schema"), db.Close())
	}
	return &SQLiteSink{db: db}, nil
}

// DB exposes the underlying database for queries.
func (s *SQLiteSink) DB() *sql.DB {
	return s.db
}

// Write implements Sink. The label image is not stored. Writing a frame id again replaces the
// rows stored for it.
func (s *SQLiteSink) Write(ctx context.Context, set *groundtruth.DetectionSet, label *rimage.Image) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin frame tx")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM detections WHERE frame_id = ?`, set.FrameID.String()); err != nil {
		//nolint:errcheck
		tx.Rollback()
		return errors.Wrap(err, "clear detections")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO frames (frame_id, ts, camera_frame) VALUES (?, ?, ?)`,
		set.FrameID.String(), set.Timestamp.UnixNano(), set.CameraFrame,
	); err != nil {
		//nolint:errcheck
		tx.Rollback()
		return errors.Wrap(err, "insert frame")
	}
	for i, d := range set.Detections {
		var tlR, tlC, brR, brC sql.NullInt64
		if d.Visible() {
			tlR = sql.NullInt64{Int64: int64(d.TopLeft.Row), Valid: true}
			tlC = sql.NullInt64{Int64: int64(d.TopLeft.Col), Valid: true}
			brR = sql.NullInt64{Int64: int64(d.BottomRight.Row), Valid: true}
			brC = sql.NullInt64{Int64: int64(d.BottomRight.Col), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO detections (frame_id, idx, type, tl_r, tl_c, br_r, br_c, n_pixels, visible)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			set.FrameID.String(), i, d.Type, tlR, tlC, brR, brC, len(d.Pixels), d.Visible(),
		); err != nil {
			//nolint:errcheck
			tx.Rollback()
			return errors.Wrapf(err, "insert detection %d", i)
		}
	}
	return errors.Wrap(tx.Commit(), "commit frame tx")
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
