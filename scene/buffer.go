// SPDX-License-Identifier: Unlicense OR MIT

package scene

import (
	"fmt"

	"splat.dev/core/codec"
	"splat.dev/core/splatmath"
)

// PackedSource is a PrimitiveSource backed by a flat slice of 16-byte
// packed primitives, decoded on demand.
type PackedSource struct {
	Data     []codec.Packed
	Encoding codec.Encoding
	Bands    int
}

func (s *PackedSource) NumPrimitives() int          { return len(s.Data) }
func (s *PackedSource) HasViewDependentColor() bool { return s.Bands > 0 }
func (s *PackedSource) SHBands() int                { return s.Bands }

func (s *PackedSource) Fetch(index int, viewOrigin *splatmath.Vec3) (Primitive, error) {
	if index < 0 || index >= len(s.Data) {
		return Primitive{}, fmt.Errorf("scene: packed source: index %d out of range [0,%d)", index, len(s.Data))
	}
	return codec.Decode(s.Data[index], s.Encoding), nil
}

// ExtendedSource is a PrimitiveSource backed by 32-byte extended primitives.
type ExtendedSource struct {
	Word1, Word2 [][4]uint32
}

func (s *ExtendedSource) NumPrimitives() int          { return len(s.Word1) }
func (s *ExtendedSource) HasViewDependentColor() bool { return false }
func (s *ExtendedSource) SHBands() int                { return 0 }

func (s *ExtendedSource) Fetch(index int, viewOrigin *splatmath.Vec3) (Primitive, error) {
	if index < 0 || index >= len(s.Word1) {
		return Primitive{}, fmt.Errorf("scene: extended source: index %d out of range [0,%d)", index, len(s.Word1))
	}
	return codec.DecodeExtended(s.Word1[index], s.Word2[index]), nil
}
