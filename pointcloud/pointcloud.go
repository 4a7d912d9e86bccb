// Package pointcloud turns camera point data into streams of pixel-tagged samples.
//
// Two shapes of input exist: an unordered cloud whose points must be re-projected through the
// camera matrix to find their pixel, and a dense points image where the pixel is the cell index.
// Both are exposed as a SampleStream so classification logic only ever sees (row, col, point).
package pointcloud

import (
	"github.com/golang/geo/r3"
)

// Sample is a camera frame point tied to the pixel that observed it.
type Sample struct {
	Row, Col int
	Point    r3.Vector
}

// SampleStream yields the valid samples of one frame in a fixed order.
type SampleStream interface {
	// Len returns the number of raw entries in the stream, valid or not.
	Len() int

	// Iterate calls fn for every valid sample in stream order. If fn returns false, iteration
	// stops after fn returns.
	// numBatches lets you divide up the work. 0 means don't divide.
	// myBatch is used iff numBatches > 0 and is which batch you want. Batches are contiguous
	// ranges of the stream, so visiting batches 0..numBatches-1 in order reproduces the
	// undivided order.
	Iterate(numBatches, myBatch int, fn func(s Sample) bool)
}

// batchRange returns the [start, end) slice of n entries owned by myBatch.
func batchRange(n, numBatches, myBatch int) (int, int) {
	if numBatches <= 0 {
		return 0, n
	}
	if myBatch < 0 || myBatch >= numBatches {
		return 0, 0
	}
	return myBatch * n / numBatches, (myBatch + 1) * n / numBatches
}
