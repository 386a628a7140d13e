// SPDX-License-Identifier: Unlicense OR MIT

// Package codec implements the packed splat wire format: a 16-byte-per-
// primitive quantized encoding (and a 32-byte extended variant), spherical
// harmonic band packing, and the texture-capacity accounting rules that the
// accumulator and paged cache build on.
//
// The bit layout, quantization ranges and error bounds are dictated by the
// format, not by taste; see the package-level comments on Encode and Decode
// for the exact layout.
package codec

import (
	"errors"
	"fmt"

	"splat.dev/core/splatmath"
)

// Primitive is the logical (unpacked) representation of one Gaussian splat.
type Primitive struct {
	Center  splatmath.Vec3
	Scales  [3]float32 // non-negative; 0 marks a degenerate 2D axis
	Orient  splatmath.Quat
	Opacity float32 // [0,1], or [0,2] under LODOpacity
	Color   [3]float32 // in [Encoding.RGBMin, Encoding.RGBMax]
	SH      SHCoeffs
}

// Band selects which spherical-harmonic band is being packed/unpacked.
type Band int

const (
	Band1 Band = 1
	Band2 Band = 2
	Band3 Band = 3
)

// NumCoeffs returns 2k+1, the coefficient-triplet count for band k.
func (b Band) NumCoeffs() int {
	return 2*int(b) + 1
}

// SHCoeffs holds up to three bands of spherical-harmonic coefficients, each
// stored as NumCoeffs*3 floats (one RGB triplet per coefficient).
type SHCoeffs struct {
	Bands int // 0..3 populated bands
	Band1 [3 * 3]float32
	Band2 [3 * 5]float32
	Band3 [3 * 7]float32
}

// Encoding carries the quantization parameters a packed buffer was built
// with: the RGB remap range, the log-scale remap range, and whether alpha
// is stretched for over-bright LOD composition.
type Encoding struct {
	RGBMin, RGBMax         float32
	LnScaleMin, LnScaleMax float32
	LODOpacity             bool
}

// ConfigError reports an invalid Encoding or SH configuration, caught at
// construction time per §7's "surfaced at construction; fatal to that
// component" rule.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("codec: config error: %s", e.Reason)
}

var errDegenerateScaleRange = errors.New("lnScaleMin must be < lnScaleMax")

// NewEncoding validates and returns enc, or a *ConfigError if the scale
// range is degenerate (lnScaleMin >= lnScaleMax makes the quantization step
// undefined).
func NewEncoding(rgbMin, rgbMax, lnScaleMin, lnScaleMax float32, lodOpacity bool) (Encoding, error) {
	if lnScaleMin >= lnScaleMax {
		return Encoding{}, &ConfigError{Reason: errDegenerateScaleRange.Error()}
	}
	if rgbMax <= rgbMin {
		return Encoding{}, &ConfigError{Reason: "rgbMin must be < rgbMax"}
	}
	return Encoding{
		RGBMin:     rgbMin,
		RGBMax:     rgbMax,
		LnScaleMin: lnScaleMin,
		LnScaleMax: lnScaleMax,
		LODOpacity: lodOpacity,
	}, nil
}

// Packed is a 16-byte packed primitive. See Encode for the bit layout.
type Packed [16]byte

// Extended is the 32-byte higher-precision primitive encoding, as two
// 16-byte words.
type Extended [32]byte
