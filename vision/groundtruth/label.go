package groundtruth

import (
	"github.com/schizzz8/lucrezio-semantic-perception/rimage"
)

// PaintLabelImage draws every detection's pixels into a width x height image over a black
// background, in detection order. Pixels outside the image are skipped. It returns the categories
// that had no palette color, once each, in order of first appearance.
func PaintLabelImage(width, height int, detections []Detection) (*rimage.Image, []string) {
	img := rimage.NewImage(width, height)
	img.Fill(BackgroundColor)
	var unknown []string
	seen := map[string]bool{}
	for _, d := range detections {
		if len(d.Pixels) == 0 {
			continue
		}
		c, ok := TypeToColor(d.Type)
		if !ok {
			if cat := Category(d.Type); !seen[cat] {
				seen[cat] = true
				unknown = append(unknown, cat)
			}
		}
		for _, p := range d.Pixels {
			if img.In(p.Col, p.Row) {
				img.SetXY(p.Col, p.Row, c)
			}
		}
	}
	return img, unknown
}
