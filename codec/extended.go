// SPDX-License-Identifier: Unlicense OR MIT

package codec

import "math"

const halfZero = 0xFC00 // half-float -Inf, used as the "scale axis is zero" sentinel

// EncodeExtended packs p into the 32-byte extended format: word 1 is
// (center.xyz as f32, opacity as f16, 2 bytes padding); word 2 is (color and
// ln(scale) as f16 sextets, plus a 10/10/12-bit folded-octahedral
// quaternion). Returns the two 16-byte words as [4]uint32 each, matching the
// render surface's RGBA32UI texel shape.
func EncodeExtended(p Primitive) (word1, word2 [4]uint32) {
	word1[0] = math.Float32bits(p.Center.X())
	word1[1] = math.Float32bits(p.Center.Y())
	word1[2] = math.Float32bits(p.Center.Z())
	word1[3] = uint32(float32ToHalfBits(p.Opacity))

	var rgb, lnScale [3]uint16
	for i := 0; i < 3; i++ {
		rgb[i] = float32ToHalfBits(p.Color[i])
		if p.Scales[i] == 0 {
			lnScale[i] = halfZero
		} else {
			lnScale[i] = float32ToHalfBits(float32(math.Log(float64(p.Scales[i]))))
		}
	}
	word2[0] = uint32(rgb[0]) | uint32(rgb[1])<<16
	word2[1] = uint32(rgb[2]) | uint32(lnScale[0])<<16
	word2[2] = uint32(lnScale[1]) | uint32(lnScale[2])<<16

	aa := quatToAxisAngle(p.Orient)
	qx := quantizeUnit[uint32](aa.x, 10)
	qy := quantizeUnit[uint32](aa.y, 10)
	qt := quantizeUnit[uint32](aa.theta, 12)
	word2[3] = qx | qy<<10 | qt<<20

	return word1, word2
}

// DecodeExtended reverses EncodeExtended. The result's SH field is always
// empty; extended words never carry SH coefficients.
func DecodeExtended(word1, word2 [4]uint32) Primitive {
	var p Primitive
	p.Center[0] = math.Float32frombits(word1[0])
	p.Center[1] = math.Float32frombits(word1[1])
	p.Center[2] = math.Float32frombits(word1[2])
	p.Opacity = halfBitsToFloat32(uint16(word1[3]))

	rgb := [3]uint16{uint16(word2[0]), uint16(word2[0] >> 16), uint16(word2[1])}
	lnScale := [3]uint16{uint16(word2[1] >> 16), uint16(word2[2]), uint16(word2[2] >> 16)}
	for i := 0; i < 3; i++ {
		p.Color[i] = halfBitsToFloat32(rgb[i])
		if lnScale[i] == halfZero {
			p.Scales[i] = 0
		} else {
			p.Scales[i] = float32(math.Exp(float64(halfBitsToFloat32(lnScale[i]))))
		}
	}

	qx := word2[3] & 0x3ff
	qy := (word2[3] >> 10) & 0x3ff
	qt := (word2[3] >> 20) & 0xfff
	p.Orient = axisAngleToQuat(axisAngle{
		x:     dequantizeUnit(qx, 10),
		y:     dequantizeUnit(qy, 10),
		theta: dequantizeUnit(qt, 12),
	})

	return p
}
