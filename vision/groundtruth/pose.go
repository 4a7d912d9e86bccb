package groundtruth

import (
	"github.com/schizzz8/lucrezio-semantic-perception/spatialmath"
)

// ResolveCameraTransform returns inverse(cameraPose) * logicalPose, which maps coordinates in the
// logical camera frame into the depth camera frame. Both poses are world frame poses.
func ResolveCameraTransform(cameraPose, logicalPose spatialmath.Pose) spatialmath.Pose {
	return spatialmath.Compose(spatialmath.PoseInverse(cameraPose), logicalPose)
}

// ProjectBox transforms a model's two local corners by tRel * pose and returns their envelope.
// Only the two corners are transformed, so for rotations that are not axis aligned this is not
// the bounding box of the rotated volume.
func ProjectBox(tRel spatialmath.Pose, m Model) BoundingBox3D {
	full := spatialmath.Compose(tRel, m.Pose)
	return NewBoundingBox3D(full.Transform(m.Min), full.Transform(m.Max))
}

// ProjectBoxes projects every model, in order.
func ProjectBoxes(tRel spatialmath.Pose, models []Model) []BoundingBox3D {
	return projectBoxesInto(nil, tRel, models)
}

func projectBoxesInto(dst []BoundingBox3D, tRel spatialmath.Pose, models []Model) []BoundingBox3D {
	dst = dst[:0]
	for _, m := range models {
		dst = append(dst, ProjectBox(tRel, m))
	}
	return dst
}
