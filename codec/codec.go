// SPDX-License-Identifier: Unlicense OR MIT

package codec

import (
	"math"

	"splat.dev/core/splatmath"
)

// Encode packs p into the 16-byte wire format:
//
//	bytes 0-3:   RGBA8, A = opacity remapped from [0,1] (or [0,2] under
//	             Encoding.LODOpacity), RGB remapped from [enc.RGBMin, enc.RGBMax]
//	bytes 4-9:   center.xyz as three binary16 halves
//	bytes 10-11: two bytes of the 24-bit folded-octahedral quaternion encoding
//	bytes 12-14: three 8-bit log-scale channels (0 == exactly-zero axis)
//	byte 15:     third byte of the quaternion encoding (rotation angle)
func Encode(p Primitive, enc Encoding) Packed {
	var out Packed

	alphaDomain := float32(1)
	if enc.LODOpacity {
		alphaDomain = 2
	}
	a := clamp01(p.Opacity/alphaDomain) * 255
	out[3] = byte(math.Round(float64(a)))

	span := enc.RGBMax - enc.RGBMin
	for i, c := range p.Color {
		t := clamp01((c - enc.RGBMin) / span)
		out[i] = byte(math.Round(float64(t) * 255))
	}

	cx := float32ToHalfBits(p.Center.X())
	cy := float32ToHalfBits(p.Center.Y())
	cz := float32ToHalfBits(p.Center.Z())
	out[4], out[5] = byte(cx), byte(cx>>8)
	out[6], out[7] = byte(cy), byte(cy>>8)
	out[8], out[9] = byte(cz), byte(cz>>8)

	qb := encodeQuat(p.Orient)
	out[10], out[11], out[15] = qb.x, qb.y, qb.theta

	lnSpan := enc.LnScaleMax - enc.LnScaleMin
	for i, sc := range p.Scales {
		if sc == 0 {
			out[12+i] = 0
			continue
		}
		t := clamp01((float32(math.Log(float64(sc))) - enc.LnScaleMin) / lnSpan)
		out[12+i] = byte(1 + math.Round(float64(t)*254))
	}

	return out
}

// Decode unpacks a 16-byte packed primitive back into a Primitive, reversing
// Encode within the tolerances documented in spec §8 (P1/R1). The result
// never carries spherical-harmonic coefficients; those are packed
// separately (see EncodeSHBand).
func Decode(in Packed, enc Encoding) Primitive {
	var p Primitive

	alphaDomain := float32(1)
	if enc.LODOpacity {
		alphaDomain = 2
	}
	p.Opacity = float32(in[3]) / 255 * alphaDomain

	span := enc.RGBMax - enc.RGBMin
	for i := 0; i < 3; i++ {
		p.Color[i] = enc.RGBMin + float32(in[i])/255*span
	}

	cx := halfBitsToFloat32(uint16(in[4]) | uint16(in[5])<<8)
	cy := halfBitsToFloat32(uint16(in[6]) | uint16(in[7])<<8)
	cz := halfBitsToFloat32(uint16(in[8]) | uint16(in[9])<<8)
	p.Center = splatmath.Vec3{cx, cy, cz}

	p.Orient = decodeQuat(quaternionBytes{x: in[10], y: in[11], theta: in[15]})

	lnSpan := enc.LnScaleMax - enc.LnScaleMin
	for i := 0; i < 3; i++ {
		b := in[12+i]
		if b == 0 {
			p.Scales[i] = 0
			continue
		}
		t := float32(b-1) / 254
		p.Scales[i] = float32(math.Exp(float64(enc.LnScaleMin + t*lnSpan)))
	}

	return p
}
