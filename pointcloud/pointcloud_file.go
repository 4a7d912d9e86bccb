package pointcloud

import (
	"io"
	"math"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"
	"go.viam.com/utils"
)

// ReadPCD decodes a PCD stream holding at least x, y and z fields.
func ReadPCD(r io.Reader) (*Cloud, error) {
	pp, err := pc.Unmarshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing pcd")
	}
	it, err := pp.Vec3Iterator()
	if err != nil {
		return nil, errors.Wrap(err, "pcd has no x/y/z fields")
	}
	cloud := &Cloud{Width: pp.Width, Height: pp.Height, Points: make([]r3.Vector, 0, pp.Points)}
	for ; it.IsValid(); it.Incr() {
		v := it.Vec3()
		cloud.Points = append(cloud.Points, r3.Vector{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])})
	}
	if cloud.Height <= 0 {
		cloud.Width, cloud.Height = len(cloud.Points), 1
	}
	return cloud, nil
}

// NewFromFile reads a PCD file from disk.
func NewFromFile(fn string) (*Cloud, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening %q", fn)
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return ReadPCD(f)
}

// WritePCD encodes the cloud as a binary PCD with float32 x, y and z fields. NaN points are kept
// so organized clouds keep their layout.
func WritePCD(w io.Writer, cloud *Cloud) error {
	width, height := cloud.Width, cloud.Height
	if width*height != len(cloud.Points) {
		width, height = len(cloud.Points), 1
	}
	pp := &pc.PointCloud{
		PointCloudHeader: pc.PointCloudHeader{
			Version:   0.7,
			Fields:    []string{"x", "y", "z"},
			Size:      []int{4, 4, 4},
			Type:      []string{"F", "F", "F"},
			Count:     []int{1, 1, 1},
			Width:     width,
			Height:    height,
			Viewpoint: []float32{0, 0, 0, 1, 0, 0, 0},
		},
		Points: len(cloud.Points),
		Data:   make([]byte, 4*3*len(cloud.Points)),
	}
	it, err := pp.Vec3Iterator()
	if err != nil {
		return err
	}
	for _, p := range cloud.Points {
		it.SetVec3(mat.Vec3{float32(p.X), float32(p.Y), float32(p.Z)})
		it.Incr()
	}
	return errors.Wrap(pc.Marshal(pp, w), "error writing pcd")
}

// WriteToFile writes the cloud as a PCD file.
func WriteToFile(fn string, cloud *Cloud) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return errors.Wrapf(err, "error creating %q", fn)
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return WritePCD(f, cloud)
}

func finite(p r3.Vector) bool {
	for _, v := range []float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
