// SPDX-License-Identifier: Unlicense OR MIT

package scene

import (
	"splat.dev/core/codec"
	"splat.dev/core/splatmath"
)

// PrimitiveSource is the capability bundle §3 names: something that can
// report how many primitives it has, whether its color depends on view
// direction, how many SH bands it carries, and fetch a primitive by index.
// PackedSource, ExtendedSource (see buffer.go) and the paged cache's
// Collection (see cache package) all implement it.
type PrimitiveSource interface {
	NumPrimitives() int
	HasViewDependentColor() bool
	SHBands() int // 0..3

	// Fetch decodes primitive index. viewOrigin may be nil; when non-nil it
	// is the origin used to resolve view-dependent color (SH evaluation),
	// and sources with SHBands()==0 may ignore it.
	Fetch(index int, viewOrigin *splatmath.Vec3) (Primitive, error)
}

// Primitive is the decoded form a PrimitiveSource yields; an alias of
// codec.Primitive so a scene.PrimitiveSource and the codec package agree on
// shape without forcing every caller to import codec directly.
type Primitive = codec.Primitive
