package rimage

import (
	"image"
	"image/color"
)

// Image is a dense RGB raster addressed by (x, y) = (column, row).
type Image struct {
	data          []Color
	width, height int
}

// NewImage returns a black image of the given size.
func NewImage(width, height int) *Image {
	return &Image{
		data:   make([]Color, width*height),
		width:  width,
		height: height,
	}
}

// NewImageFromStdImage copies any image.Image into an Image.
func NewImageFromStdImage(img image.Image) *Image {
	bounds := img.Bounds()
	out := NewImage(bounds.Dx(), bounds.Dy())
	for y := 0; y < out.height; y++ {
		for x := 0; x < out.width; x++ {
			out.data[out.kxy(x, y)] = NewColorFromColor(img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return out
}

func (i *Image) kxy(x, y int) int {
	return (y * i.width) + x
}

// ColorModel implements image.Image.
func (i *Image) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds implements image.Image.
func (i *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, i.width, i.height)
}

// At implements image.Image.
func (i *Image) At(x, y int) color.Color {
	if !i.In(x, y) {
		return Color{}
	}
	return i.data[i.kxy(x, y)]
}

// In returns whether (x, y) is inside the image.
func (i *Image) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < i.width && y < i.height
}

// Width returns the number of columns.
func (i *Image) Width() int {
	return i.width
}

// Height returns the number of rows.
func (i *Image) Height() int {
	return i.height
}

// GetXY returns the color at column x, row y.
func (i *Image) GetXY(x, y int) Color {
	return i.data[i.kxy(x, y)]
}

// SetXY sets the color at column x, row y.
func (i *Image) SetXY(x, y int, c Color) {
	i.data[i.kxy(x, y)] = c
}

// Fill paints every pixel with c.
func (i *Image) Fill(c Color) {
	for k := range i.data {
		i.data[k] = c
	}
}

// Pix returns the backing pixels in row-major order. Callers must not resize it.
func (i *Image) Pix() []Color {
	return i.data
}
