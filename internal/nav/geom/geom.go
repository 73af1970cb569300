// Package geom is the small geometry kernel behind obstacle probing and sidestep
// generation. World space is right-handed with Z up.
package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// degenerateLenSq is the squared segment length below which a line is treated as a point.
const degenerateLenSq = 1e-5

var (
	UnitX = mgl64.Vec3{1, 0, 0}
	UnitY = mgl64.Vec3{0, 1, 0}
	UnitZ = mgl64.Vec3{0, 0, 1}
)

// DistancePointToLine returns the distance from p to the infinite line through a and b.
// When a and b (nearly) coincide it returns the distance from p to a.
func DistancePointToLine(p, a, b mgl64.Vec3) float64 {
	ab := b.Sub(a)
	lenSq := ab.Dot(ab)
	if lenSq < degenerateLenSq {
		return p.Sub(a).Len()
	}
	return p.Sub(a).Cross(ab).Len() / math.Sqrt(lenSq)
}

// GroundPerpendicular returns the rotation that maps +X onto the direction a->b
// while keeping the rotated +Y axis on the ground plane. It is composed as a yaw
// about Z onto the horizontal projection of b-a, then a pitch lifting that
// heading to the true 3D direction.
func GroundPerpendicular(a, b mgl64.Vec3) mgl64.Quat {
	d := b.Sub(a)
	horiz := math.Hypot(d[0], d[1])
	yaw := 0.0
	if horiz > 0 {
		yaw = math.Atan2(d[1], d[0])
	}
	pitch := math.Atan2(d[2], horiz)
	qYaw := mgl64.QuatRotate(yaw, UnitZ)
	// Positive rotation about +Y tips +X toward -Z, hence the sign.
	qPitch := mgl64.QuatRotate(-pitch, UnitY)
	return qYaw.Mul(qPitch)
}

// SideAxis is the unit sideways (left-hand) axis for travel from a to b. It is
// horizontal and perpendicular to the direction of travel.
func SideAxis(a, b mgl64.Vec3) mgl64.Vec3 {
	return GroundPerpendicular(a, b).Rotate(UnitY)
}

// Direction returns the unit vector from a to b, or the zero vector for a
// degenerate segment.
func Direction(a, b mgl64.Vec3) mgl64.Vec3 {
	d := b.Sub(a)
	l := d.Len()
	if l*l < degenerateLenSq {
		return mgl64.Vec3{}
	}
	return d.Mul(1 / l)
}
