// SPDX-License-Identifier: Unlicense OR MIT

package codec

import (
	"math"

	"splat.dev/core/splatmath"
)

func sign(v float32) float32 {
	if v < 0 {
		return -1
	}
	return 1
}

// foldOctahedral applies the §3 "folded octahedral mapping" fold. It is its
// own inverse: calling it a second time on a folded point recovers the
// original, which is exactly how decodeQuat undoes it.
func foldOctahedral(p splatmath.Point) splatmath.Point {
	return splatmath.Point{
		X: (1 - abs32(p.Y)) * sign(p.X),
		Y: (1 - abs32(p.X)) * sign(p.Y),
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// axisAngle is the folded-octahedral-projected axis (in [0,1]^2) plus the
// normalized rotation fraction theta/pi (in [0,1]), before bit quantization.
type axisAngle struct {
	x, y, theta float32
}

// quatToAxisAngle implements §3's quaternion encoding geometry: normalize so
// w>=0, recover the axis/angle pair, and project the axis through the
// folded octahedral map. Quantization to a specific bit depth happens
// separately (quantizeUnit), so the same geometry serves both the 16-byte
// 8/8/8 packing and the 32-byte 10/10/12 packing.
func quatToAxisAngle(q splatmath.Quat) axisAngle {
	q = splatmath.NormalizeHemisphere(q)

	w := q.W
	if w > 1 {
		w = 1
	} else if w < -1 {
		w = -1
	}
	theta := 2 * float32(math.Acos(float64(w)))
	s := float32(math.Sin(float64(theta) / 2))

	var axis splatmath.Vec3
	if abs32(s) < 1e-6 {
		axis = splatmath.Vec3{1, 0, 0}
	} else {
		axis = splatmath.Vec3{q.V.X() / s, q.V.Y() / s, q.V.Z() / s}
		if l := axis.Len(); l > 1e-12 {
			axis = axis.Mul(1 / l)
		}
	}

	l1 := abs32(axis.X()) + abs32(axis.Y()) + abs32(axis.Z())
	if l1 < 1e-12 {
		l1 = 1
	}
	p := splatmath.Point{X: axis.X() / l1, Y: axis.Y() / l1}
	if axis.Z() < 0 {
		p = foldOctahedral(p)
	}

	return axisAngle{
		x:     clamp01((p.X + 1) / 2),
		y:     clamp01((p.Y + 1) / 2),
		theta: clamp01(theta / math.Pi),
	}
}

// axisAngleToQuat reverses quatToAxisAngle.
func axisAngleToQuat(aa axisAngle) splatmath.Quat {
	p := splatmath.Point{X: aa.x*2 - 1, Y: aa.y*2 - 1}
	theta := aa.theta * math.Pi

	z := 1 - abs32(p.X) - abs32(p.Y)
	if z < 0 {
		p = foldOctahedral(p)
	}
	axis := splatmath.Vec3{p.X, p.Y, z}
	if l := axis.Len(); l > 1e-12 {
		axis = axis.Mul(1 / l)
	} else {
		axis = splatmath.Vec3{1, 0, 0}
	}

	half := theta / 2
	w := float32(math.Cos(float64(half)))
	s := float32(math.Sin(float64(half)))
	return splatmath.Quat{W: w, V: axis.Mul(s)}
}

// quaternionBytes is the 24-bit (8/8/8) encoding used by the 16-byte packed
// format: two axis bytes and an angle byte.
type quaternionBytes struct {
	x, y, theta byte
}

func encodeQuat(q splatmath.Quat) quaternionBytes {
	aa := quatToAxisAngle(q)
	return quaternionBytes{
		x:     quantizeUnit(aa.x, 8),
		y:     quantizeUnit(aa.y, 8),
		theta: quantizeUnit(aa.theta, 8),
	}
}

func decodeQuat(qb quaternionBytes) splatmath.Quat {
	return axisAngleToQuat(axisAngle{
		x:     dequantizeUnit(uint32(qb.x), 8),
		y:     dequantizeUnit(uint32(qb.y), 8),
		theta: dequantizeUnit(uint32(qb.theta), 8),
	})
}

// quantizeUnit maps v in [0,1] to a code with `bits` bits of resolution.
func quantizeUnit[T ~uint8 | ~uint16 | ~uint32](v float32, bits int) T {
	levels := float64(uint32(1)<<uint(bits)) - 1
	return T(math.Round(float64(clamp01(v)) * levels))
}

func dequantizeUnit(code uint32, bits int) float32 {
	levels := float64(uint32(1)<<uint(bits)) - 1
	return float32(float64(code) / levels)
}
