package rimage

import (
	"github.com/golang/geo/r3"
)

// InvalidPointNorm is the norm under which a points-image cell is treated as "no reading".
const InvalidPointNorm = 1e-3

// PointsImage is a dense raster where each cell holds the camera frame 3D point seen by that
// pixel, or the zero vector when depth was invalid.
type PointsImage struct {
	rows, cols int
	data       []r3.Vector
}

// NewPointsImage returns a points image with every cell invalid.
func NewPointsImage(rows, cols int) *PointsImage {
	return &PointsImage{rows: rows, cols: cols, data: make([]r3.Vector, rows*cols)}
}

// Rows returns the image height.
func (pi *PointsImage) Rows() int {
	return pi.rows
}

// Cols returns the image width.
func (pi *PointsImage) Cols() int {
	return pi.cols
}

// At returns the point stored at (row, col).
func (pi *PointsImage) At(row, col int) r3.Vector {
	return pi.data[row*pi.cols+col]
}

// Set stores a point at (row, col).
func (pi *PointsImage) Set(row, col int, p r3.Vector) {
	pi.data[row*pi.cols+col] = p
}

// IsValidPoint reports whether p is a real reading rather than the zero sentinel.
func IsValidPoint(p r3.Vector) bool {
	return p.Norm() >= InvalidPointNorm
}
