package rimage

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// Depth is a depth reading in millimeters, as delivered by 16UC1 depth cameras. Zero means no
// reading.
type Depth uint16

// Meters converts the reading to meters.
func (d Depth) Meters() float64 {
	return float64(d) / 1000
}

// DepthMap is a dense raster of depth readings addressed by (x, y) = (column, row).
type DepthMap struct {
	width, height int
	data          []Depth
}

// NewEmptyDepthMap returns a depth map with no readings.
func NewEmptyDepthMap(width, height int) *DepthMap {
	return &DepthMap{width: width, height: height, data: make([]Depth, width*height)}
}

// Width returns the number of columns.
func (dm *DepthMap) Width() int {
	return dm.width
}

// Height returns the number of rows.
func (dm *DepthMap) Height() int {
	return dm.height
}

// GetDepth returns the reading at column x, row y.
func (dm *DepthMap) GetDepth(x, y int) Depth {
	return dm.data[y*dm.width+x]
}

// Set stores a reading at column x, row y.
func (dm *DepthMap) Set(x, y int, d Depth) {
	dm.data[y*dm.width+x] = d
}

// ConvertImageToDepthMap interprets a 16 bit grayscale image as millimeter depth.
func ConvertImageToDepthMap(img image.Image) (*DepthMap, error) {
	gray, ok := img.(*image.Gray16)
	if !ok {
		return nil, errors.Errorf("depth images must be 16 bit grayscale, got %T", img)
	}
	bounds := gray.Bounds()
	dm := NewEmptyDepthMap(bounds.Dx(), bounds.Dy())
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			dm.Set(x, y, Depth(gray.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y))
		}
	}
	return dm, nil
}

// ToGray16 converts the depth map to a 16 bit grayscale image.
func (dm *DepthMap) ToGray16() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, dm.width, dm.height))
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16(dm.GetDepth(x, y))})
		}
	}
	return img
}

// ReadDepthMapFromFile decodes a 16 bit grayscale PNG depth image.
func ReadDepthMapFromFile(fn string) (*DepthMap, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening %q", fn)
	}
	defer utils.UncheckedErrorFunc(f.Close)
	img, err := png.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error decoding %q", fn)
	}
	return ConvertImageToDepthMap(img)
}
