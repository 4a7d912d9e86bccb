package sink

import (
	"context"
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"

	"github.com/schizzz8/lucrezio-semantic-perception/vision/groundtruth"
)

// CategorySummary aggregates the stored detections of one model category.
type CategorySummary struct {
	Category   string
	Detections int
	Visible    int
	Pixels     int
}

// Summary is the content of a detection store, one row per category sorted by name.
type Summary struct {
	Frames     int
	Categories []CategorySummary
}

// String prints out a table with one row per category and a total row.
func (s Summary) String() string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("%d frame(s)", s.Frames))
	t.AppendHeader(table.Row{"Category", "Detections", "Visible", "Pixels"})
	var total CategorySummary
	for _, c := range s.Categories {
		t.AppendRow(table.Row{c.Category, c.Detections, c.Visible, c.Pixels})
		total.Detections += c.Detections
		total.Visible += c.Visible
		total.Pixels += c.Pixels
	}
	t.AppendFooter(table.Row{"Total", total.Detections, total.Visible, total.Pixels})
	return t.Render()
}

// Summary aggregates the stored detections by model category.
func (s *SQLiteSink) Summary(ctx context.Context) (Summary, error) {
	var out Summary
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM frames`).Scan(&out.Frames); err != nil {
		return Summary{}, errors.Wrap(err, "count frames")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, COUNT(*), SUM(visible), SUM(n_pixels) FROM detections GROUP BY type`)
	if err != nil {
		return Summary{}, errors.Wrap(err, "summarize detections")
	}
	//nolint:errcheck
	defer rows.Close()

	byCategory := map[string]*CategorySummary{}
	for rows.Next() {
		var typ string
		var row CategorySummary
		if err := rows.Scan(&typ, &row.Detections, &row.Visible, &row.Pixels); err != nil {
			return Summary{}, err
		}
		category := groundtruth.Category(typ)
		acc, ok := byCategory[category]
		if !ok {
			acc = &CategorySummary{Category: category}
			byCategory[category] = acc
		}
		acc.Detections += row.Detections
		acc.Visible += row.Visible
		acc.Pixels += row.Pixels
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}
	for _, c := range byCategory {
		out.Categories = append(out.Categories, *c)
	}
	sort.Slice(out.Categories, func(i, j int) bool {
		return out.Categories[i].Category < out.Categories[j].Category
	})
	return out, nil
}
