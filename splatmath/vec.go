// SPDX-License-Identifier: Unlicense OR MIT

package splatmath

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Vec3 is a 3-D vector, aliased to mgl32's so camera and instance transforms
// compose with the rest of the math stack without conversion.
type Vec3 = mgl32.Vec3

// Quat is a unit quaternion, aliased to mgl32's.
type Quat = mgl32.Quat

// Mat4 is a 4x4 transform matrix, aliased to mgl32's.
type Mat4 = mgl32.Mat4

// Camera is the minimal view state the sort driver and LOD traversal need:
// an eye position, a forward direction, and a field of view in degrees.
type Camera struct {
	Origin  Vec3
	Forward Vec3
	FovX    float32
	FovY    float32
}

// ViewToObject returns the transform carrying points in view space into the
// given instance's object space: translate by the camera origin into world
// space, then apply the inverse of the instance's object-to-world
// transform. Only cam.Origin is used; view space keeps world space's axes.
func ViewToObject(objectToWorld Mat4, cam Camera) Mat4 {
	worldToObject := objectToWorld.Inv()
	viewToWorld := mgl32.Translate3D(cam.Origin.X(), cam.Origin.Y(), cam.Origin.Z())
	return worldToObject.Mul4(viewToWorld)
}

// NormalizeHemisphere returns q scaled so its W component is non-negative,
// per §3's "normalize so w >= 0" rule (a quaternion and its negation
// represent the same rotation; picking the w>=0 representative makes the
// packed encoding unique).
func NormalizeHemisphere(q Quat) Quat {
	q = q.Normalize()
	if q.W < 0 {
		q.W = -q.W
		q.V = q.V.Mul(-1)
	}
	return q
}
