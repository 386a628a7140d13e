// SPDX-License-Identifier: Unlicense OR MIT

package lod

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"splat.dev/core/splatmath"
)

// cost is the node's projected priority: its view-space angular extent,
// scaled by lod_scale and the foveation weight for its direction from the
// camera (§4.4 step 1). The camera is assumed to look down view-space -Z.
func cost(n *Node, objectToView splatmath.Mat4, inst Instance, caps Caps) float32 {
	p := objectToView.Mul4x1(mgl32.Vec4{n.Center.X(), n.Center.Y(), n.Center.Z(), 1})
	viewPos := splatmath.Vec3{p.X(), p.Y(), p.Z()}
	dist := viewPos.Len()
	if dist < 1e-6 {
		dist = 1e-6
	}
	angularSize := 2 * float32(math.Atan(float64(n.Radius/dist)))

	weight := foveationWeight(viewPos, dist, inst, caps)
	scale := inst.LODScale
	if scale <= 0 {
		scale = 1
	}
	return angularSize / scale * weight
}

// foveationWeight implements §4.4's zones: 1 inside the perfect cone,
// outside_foveate outside the frustum but in front, behind_foveate behind
// the viewer, and a smooth interpolation to cone_foveate across the soft
// cone band.
func foveationWeight(viewPos splatmath.Vec3, dist float32, inst Instance, caps Caps) float32 {
	forward := splatmath.Vec3{0, 0, -1}
	cosAngle := viewPos.Dot(forward) / dist
	if cosAngle < 0 {
		return inst.BehindFoveate
	}
	angle := float32(math.Acos(clamp(cosAngle, -1, 1)))

	halfFovX := mgl32.DegToRad(caps.FovX) / 2
	halfFovY := mgl32.DegToRad(caps.FovY) / 2
	frustumHalfAngle := halfFovX
	if halfFovY > frustumHalfAngle {
		frustumHalfAngle = halfFovY
	}
	insideFrustum := frustumHalfAngle <= 0 || angle <= frustumHalfAngle

	if inst.ConeFov <= 0 {
		if insideFrustum {
			return 1
		}
		return inst.OutsideFoveate
	}

	cone0 := mgl32.DegToRad(inst.ConeFov0)
	cone1 := mgl32.DegToRad(inst.ConeFov)
	switch {
	case angle <= cone0:
		return 1
	case cone1 <= cone0 || angle >= cone1:
		if insideFrustum {
			return 1
		}
		return inst.OutsideFoveate
	default:
		t := (angle - cone0) / (cone1 - cone0)
		return 1 + t*(inst.ConeFoveate-1)
	}
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
