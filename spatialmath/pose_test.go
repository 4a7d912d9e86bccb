package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

// rotZ is a rotation of theta radians about +Z.
func rotZ(theta float64) RotationMatrix {
	c, s := math.Cos(theta), math.Sin(theta)
	return RotationMatrix{c, -s, 0, s, c, 0, 0, 0, 1}
}

func TestTransform(t *testing.T) {
	p := NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, rotZ(math.Pi/2))
	got := p.Transform(r3.Vector{X: 1})
	test.That(t, R3VectorAlmostEqual(got, r3.Vector{X: 1, Y: 3, Z: 3}, 1e-9), test.ShouldBeTrue)

	test.That(t, NewZeroPose().Transform(r3.Vector{X: 4, Y: 5, Z: 6}), test.ShouldResemble, r3.Vector{X: 4, Y: 5, Z: 6})
}

func TestComposeAndInverse(t *testing.T) {
	a := NewPose(r3.Vector{X: 1, Y: -2, Z: 0.5}, rotZ(0.3))
	b := NewPose(r3.Vector{X: -4, Y: 0, Z: 2}, rotZ(-1.1))
	v := r3.Vector{X: 0.25, Y: 0.5, Z: 0.75}

	// Compose(a, b) applies b first.
	composed := Compose(a, b).Transform(v)
	sequential := a.Transform(b.Transform(v))
	test.That(t, R3VectorAlmostEqual(composed, sequential, 1e-9), test.ShouldBeTrue)

	ident := Compose(PoseInverse(a), a)
	test.That(t, PoseAlmostEqual(ident, NewZeroPose(), 1e-9), test.ShouldBeTrue)
	ident = Compose(a, PoseInverse(a))
	test.That(t, PoseAlmostEqual(ident, NewZeroPose(), 1e-9), test.ShouldBeTrue)

	back := PoseInverse(a).Transform(a.Transform(v))
	test.That(t, R3VectorAlmostEqual(back, v, 1e-9), test.ShouldBeTrue)
}

func TestQuaternionRoundTrip(t *testing.T) {
	half := math.Sqrt2 / 2
	// 90 degrees about Z.
	p, err := NewPoseFromQuaternion(r3.Vector{}, quat.Number{Real: half, Kmag: half})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, PoseAlmostEqual(p, NewPose(r3.Vector{}, rotZ(math.Pi/2)), 1e-9), test.ShouldBeTrue)

	// unnormalized input is normalized.
	p2, err := NewPoseFromQuaternion(r3.Vector{}, quat.Number{Real: 2, Kmag: 2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, PoseAlmostEqual(p, p2, 1e-9), test.ShouldBeTrue)

	for _, theta := range []float64{0, 0.4, 2.5, math.Pi, -2.9} {
		rm := rotZ(theta).MulRotation(RotationMatrix{1, 0, 0, 0, math.Cos(theta), -math.Sin(theta), 0, math.Sin(theta), math.Cos(theta)})
		back, err := NewRotationMatrixFromQuaternion(rm.Quaternion())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, PoseAlmostEqual(NewPose(r3.Vector{}, back), NewPose(r3.Vector{}, rm), 1e-9), test.ShouldBeTrue)
	}

	_, err = NewPoseFromQuaternion(r3.Vector{}, quat.Number{})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCheckRigid(t *testing.T) {
	test.That(t, CheckRigid(NewPose(r3.Vector{X: 1}, rotZ(1.2)), DefaultRigidTolerance), test.ShouldBeNil)

	scaled := NewPose(r3.Vector{}, RotationMatrix{2, 0, 0, 0, 2, 0, 0, 0, 2})
	err := CheckRigid(scaled, DefaultRigidTolerance)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "orthonormal")

	reflection := NewPose(r3.Vector{}, RotationMatrix{1, 0, 0, 0, 1, 0, 0, 0, -1})
	err = CheckRigid(reflection, DefaultRigidTolerance)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "determinant")

	nan := NewPoseFromPoint(r3.Vector{X: math.NaN()})
	test.That(t, CheckRigid(nan, DefaultRigidTolerance), test.ShouldNotBeNil)

	_, err = NewRotationMatrix([]float64{1, 2, 3})
	test.That(t, err, test.ShouldNotBeNil)
}
