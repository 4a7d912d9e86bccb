// Package spatialmath defines the rigid transforms used to move model extents between the
// simulator's world, the logical camera and the depth camera.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// DefaultRigidTolerance is the slack allowed by CheckRigid when validating rotations read from files.
const DefaultRigidTolerance = 1e-4

// RotationMatrix is a 3x3 rotation stored row-major.
type RotationMatrix [9]float64

// NewIdentityRotation returns the rotation that does nothing.
func NewIdentityRotation() RotationMatrix {
	return RotationMatrix{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// NewRotationMatrix builds a RotationMatrix from nine row-major values.
func NewRotationMatrix(values []float64) (RotationMatrix, error) {
	var rm RotationMatrix
	if len(values) != len(rm) {
		return rm, errors.Errorf("rotation matrix needs 9 values, got %d", len(values))
	}
	copy(rm[:], values)
	return rm, nil
}

// At returns the element at (row, col).
func (rm RotationMatrix) At(row, col int) float64 {
	return rm[row*3+col]
}

// Mul applies the rotation to v.
func (rm RotationMatrix) Mul(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rm[0]*v.X + rm[1]*v.Y + rm[2]*v.Z,
		Y: rm[3]*v.X + rm[4]*v.Y + rm[5]*v.Z,
		Z: rm[6]*v.X + rm[7]*v.Y + rm[8]*v.Z,
	}
}

// MulRotation returns rm*other.
func (rm RotationMatrix) MulRotation(other RotationMatrix) RotationMatrix {
	var out RotationMatrix
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = rm[r*3]*other[c] + rm[r*3+1]*other[3+c] + rm[r*3+2]*other[6+c]
		}
	}
	return out
}

// Transpose returns the transpose, which is the inverse of a proper rotation.
func (rm RotationMatrix) Transpose() RotationMatrix {
	return RotationMatrix{
		rm[0], rm[3], rm[6],
		rm[1], rm[4], rm[7],
		rm[2], rm[5], rm[8],
	}
}

// Quaternion converts the rotation to a unit quaternion.
func (rm RotationMatrix) Quaternion() quat.Number {
	trace := rm[0] + rm[4] + rm[8]
	var q quat.Number
	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q = quat.Number{Real: 0.25 / s, Imag: (rm[7] - rm[5]) * s, Jmag: (rm[2] - rm[6]) * s, Kmag: (rm[3] - rm[1]) * s}
	case rm[0] > rm[4] && rm[0] > rm[8]:
		s := 2 * math.Sqrt(1+rm[0]-rm[4]-rm[8])
		q = quat.Number{Real: (rm[7] - rm[5]) / s, Imag: 0.25 * s, Jmag: (rm[1] + rm[3]) / s, Kmag: (rm[2] + rm[6]) / s}
	case rm[4] > rm[8]:
		s := 2 * math.Sqrt(1+rm[4]-rm[0]-rm[8])
		q = quat.Number{Real: (rm[2] - rm[6]) / s, Imag: (rm[1] + rm[3]) / s, Jmag: 0.25 * s, Kmag: (rm[5] + rm[7]) / s}
	default:
		s := 2 * math.Sqrt(1+rm[8]-rm[0]-rm[4])
		q = quat.Number{Real: (rm[3] - rm[1]) / s, Imag: (rm[2] + rm[6]) / s, Jmag: (rm[5] + rm[7]) / s, Kmag: 0.25 * s}
	}
	return q
}

// Dense returns the rotation as a gonum matrix.
func (rm RotationMatrix) Dense() *mat.Dense {
	return mat.NewDense(3, 3, append([]float64(nil), rm[:]...))
}

// NewRotationMatrixFromQuaternion converts a quaternion to a rotation matrix. The quaternion is
// normalized first, matching what tf does with slightly denormalized inputs.
func NewRotationMatrixFromQuaternion(q quat.Number) (RotationMatrix, error) {
	norm := quat.Abs(q)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return RotationMatrix{}, errors.Errorf("cannot build a rotation from quaternion %v", q)
	}
	q = quat.Scale(1/norm, q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return RotationMatrix{
		1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w),
		2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w),
		2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y),
	}, nil
}

// Pose is a rigid transform: a rotation followed by a translation.
type Pose struct {
	Rotation    RotationMatrix
	Translation r3.Vector
}

// NewZeroPose returns the identity transform.
func NewZeroPose() Pose {
	return Pose{Rotation: NewIdentityRotation()}
}

// NewPose returns a pose from a translation and a rotation.
func NewPose(translation r3.Vector, rotation RotationMatrix) Pose {
	return Pose{Rotation: rotation, Translation: translation}
}

// NewPoseFromPoint returns a pure translation.
func NewPoseFromPoint(translation r3.Vector) Pose {
	return Pose{Rotation: NewIdentityRotation(), Translation: translation}
}

// NewPoseFromQuaternion returns a pose from a translation and a (w, x, y, z) quaternion.
func NewPoseFromQuaternion(translation r3.Vector, q quat.Number) (Pose, error) {
	rot, err := NewRotationMatrixFromQuaternion(q)
	if err != nil {
		return Pose{}, err
	}
	return Pose{Rotation: rot, Translation: translation}, nil
}

// Point returns the translation of the pose.
func (p Pose) Point() r3.Vector {
	return p.Translation
}

// Transform maps v from the pose's child frame into its parent frame.
func (p Pose) Transform(v r3.Vector) r3.Vector {
	return p.Rotation.Mul(v).Add(p.Translation)
}

func (p Pose) String() string {
	return fmt.Sprintf("{translation: %v, rotation: %v}", p.Translation, [9]float64(p.Rotation))
}

// Compose returns a*b, the transform that applies b first and a second.
func Compose(a, b Pose) Pose {
	return Pose{
		Rotation:    a.Rotation.MulRotation(b.Rotation),
		Translation: a.Rotation.Mul(b.Translation).Add(a.Translation),
	}
}

// PoseInverse returns the inverse of a rigid transform.
func PoseInverse(p Pose) Pose {
	rt := p.Rotation.Transpose()
	return Pose{Rotation: rt, Translation: rt.Mul(p.Translation).Mul(-1)}
}

// PoseAlmostEqual returns whether two poses are equal up to epsilon on every element.
func PoseAlmostEqual(a, b Pose, epsilon float64) bool {
	for i := range a.Rotation {
		if math.Abs(a.Rotation[i]-b.Rotation[i]) > epsilon {
			return false
		}
	}
	return R3VectorAlmostEqual(a.Translation, b.Translation, epsilon)
}

// R3VectorAlmostEqual compares two r3.Vectors componentwise.
func R3VectorAlmostEqual(a, b r3.Vector, epsilon float64) bool {
	return math.Abs(a.X-b.X) <= epsilon && math.Abs(a.Y-b.Y) <= epsilon && math.Abs(a.Z-b.Z) <= epsilon
}

// CheckRigid returns an error if the pose's rotation is not orthonormal with determinant +1 or its
// translation is not finite.
func CheckRigid(p Pose, tolerance float64) error {
	t := p.Translation
	for _, v := range []float64{t.X, t.Y, t.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Errorf("translation %v is not finite", t)
		}
	}
	r := p.Rotation.Dense()
	var rrt mat.Dense
	rrt.Mul(r, r.T())
	identity := mat.NewDiagDense(3, []float64{1, 1, 1})
	if !mat.EqualApprox(&rrt, identity, tolerance) {
		return errors.Errorf("rotation %v is not orthonormal", [9]float64(p.Rotation))
	}
	if det := mat.Det(r); math.Abs(det-1) > tolerance {
		return errors.Errorf("rotation determinant is %f, expected 1", det)
	}
	return nil
}
