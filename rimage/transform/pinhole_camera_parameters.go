// Package transform holds the camera models used to move between pixels and camera frame points.
package transform

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"github.com/schizzz8/lucrezio-semantic-perception/rimage"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intrinsics are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters of a 3x3 camera matrix
//
//	[[fx skew ppx],
//	 [0  fy   ppy],
//	 [0  0    1  ]]
//
// plus the image size the matrix was calibrated for. A zero size means "unknown".
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
	Skew   float64 `json:"skew,omitempty"`
}

// NewPinholeCameraIntrinsicsFromMatrix builds intrinsics from a row-major 3x3 camera matrix, the
// layout of a ROS CameraInfo K field.
func NewPinholeCameraIntrinsicsFromMatrix(k []float64, width, height int) (*PinholeCameraIntrinsics, error) {
	if len(k) != 9 {
		return nil, NewNoIntrinsicsError(fmt.Sprintf("camera matrix needs 9 values, got %d", len(k)))
	}
	const eps = 1e-9
	if math.Abs(k[3]) > eps || math.Abs(k[6]) > eps || math.Abs(k[7]) > eps || math.Abs(k[8]-1) > eps {
		return nil, NewNoIntrinsicsError(fmt.Sprintf("camera matrix %v is not upper triangular with K[2][2] = 1", k))
	}
	params := &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     k[0],
		Skew:   k[1],
		Ppx:    k[2],
		Fy:     k[4],
		Ppy:    k[5],
	}
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	return params, nil
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs. Width and
// height may be zero when only the camera matrix is known.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width < 0 || params.Height < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// GetCameraMatrix returns the 3x3 camera matrix.
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	return mat.NewDense(3, 3, []float64{
		params.Fx, params.Skew, params.Ppx,
		0, params.Fy, params.Ppy,
		0, 0, 1,
	})
}

// NewPinholeCameraIntrinsicsFromJSONFile takes in a file path to a JSON and turns it into PinholeCameraIntrinsics.
func NewPinholeCameraIntrinsicsFromJSONFile(jsonPath string) (*PinholeCameraIntrinsics, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	intrinsics := &PinholeCameraIntrinsics{}
	if err := json.Unmarshal(byteValue, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	return intrinsics, nil
}

// WriteJSONFile writes the intrinsics to jsonPath in the format read by
// NewPinholeCameraIntrinsicsFromJSONFile.
func (params *PinholeCameraIntrinsics) WriteJSONFile(jsonPath string) error {
	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return errors.Wrap(err, "error marshaling intrinsics")
	}
	//nolint:gosec
	return errors.Wrapf(os.WriteFile(jsonPath, data, 0o644), "error writing %q", jsonPath)
}

// PixelToPoint transforms a pixel with depth to a 3D point in the camera frame.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	if params == nil {
		return 0, 0, 0
	}
	yOverZ := (y - params.Ppy) / params.Fy
	xOverZ := (x - params.Ppx - params.Skew*yOverZ) / params.Fx
	return xOverZ * z, yOverZ * z, z
}

// ProjectToPixel applies the camera matrix to a camera frame point and truncates the resulting
// image coordinates to integers, returning (row, col). ok is false when the projection is
// undefined: the point is at or behind the image plane or not finite.
func (params *PinholeCameraIntrinsics) ProjectToPixel(p r3.Vector) (row, col int, ok bool) {
	if p.Z <= 0 || math.IsNaN(p.Z) || math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.Z, 0) {
		return 0, 0, false
	}
	u := (params.Fx*p.X+params.Skew*p.Y)/p.Z + params.Ppx
	v := params.Fy*p.Y/p.Z + params.Ppy
	if math.IsInf(u, 0) || math.IsInf(v, 0) || math.Abs(u) > math.MaxInt32 || math.Abs(v) > math.MaxInt32 {
		return 0, 0, false
	}
	return int(v), int(u), true
}

// PointsImageFromDepth deprojects every depth reading into a camera frame point. Readings outside
// [minDepth, maxDepth] meters become the zero vector, the invalid-point sentinel.
func (params *PinholeCameraIntrinsics) PointsImageFromDepth(
	dm *rimage.DepthMap, minDepth, maxDepth float64,
) (*rimage.PointsImage, error) {
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	if dm == nil {
		return nil, errors.New("no depth channel, cannot build points image")
	}
	if params.Width != 0 && (params.Width != dm.Width() || params.Height != dm.Height()) {
		return nil, errors.Errorf("depth map and intrinsics dimensions don't match Depth(%d,%d) != Intrinsics(%d,%d)",
			dm.Width(), dm.Height(), params.Width, params.Height)
	}
	directions, err := params.pinholeDirections(dm.Height(), dm.Width())
	if err != nil {
		return nil, err
	}
	out := rimage.NewPointsImage(dm.Height(), dm.Width())
	for r := 0; r < dm.Height(); r++ {
		for c := 0; c < dm.Width(); c++ {
			d := dm.GetDepth(c, r).Meters()
			if d < minDepth || d > maxDepth {
				continue
			}
			out.Set(r, c, directions.At(r, c).Mul(d))
		}
	}
	return out, nil
}

// pinholeDirections returns K^-1 * (c, r, 1) for every pixel, i.e. the camera ray with z = 1.
func (params *PinholeCameraIntrinsics) pinholeDirections(rows, cols int) (*rimage.PointsImage, error) {
	var invK mat.Dense
	if err := invK.Inverse(params.GetCameraMatrix()); err != nil {
		return nil, errors.Wrap(err, "camera matrix is not invertible")
	}
	out := rimage.NewPointsImage(rows, cols)
	pixel := mat.NewVecDense(3, nil)
	var ray mat.VecDense
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			pixel.SetVec(0, float64(c))
			pixel.SetVec(1, float64(r))
			pixel.SetVec(2, 1)
			ray.MulVec(&invK, pixel)
			out.Set(r, c, r3.Vector{X: ray.AtVec(0), Y: ray.AtVec(1), Z: ray.AtVec(2)})
		}
	}
	return out, nil
}
