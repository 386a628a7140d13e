// SPDX-License-Identifier: Unlicense OR MIT

// Package accum implements the accumulator: the per-frame buffer holding
// every visible generator's packed primitives in a contiguous layout (§4.2),
// adapted from the teacher's gpu/compute.go layer-atlas allocation (rows of
// a fixed-width array texture, generators packed layer by layer) and its
// gpu/caches.go resource-cache generation-tracking idiom (program_cache.go).
package accum

import (
	"fmt"

	"splat.dev/core/codec"
	"splat.dev/core/driver"
	"splat.dev/core/scene"
)

// Kind is the accumulator's primitive encoding. §9's Open Question forbids
// mixing packed and extended generators in one accumulator, so Kind is
// fixed at construction and Plan rejects mismatched generators.
type Kind int

const (
	KindPacked Kind = iota
	KindExtended
)

// CapacityError is a caller bug: an attempted write past the accumulator's
// allocated extent. Per §7 this is a fatal assertion, realized as a panic.
type CapacityError struct {
	Base, Count, Max int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("accum: capacity error: base=%d count=%d exceeds max=%d", e.Base, e.Count, e.Max)
}

// ConfigError reports an invalid accumulator configuration (e.g. a
// generator whose source Kind disagrees with the accumulator's).
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "accum: config error: " + e.Reason }

// MappingEntry is one row of §3's mapping: a generator's recorded slice.
type MappingEntry struct {
	Generator      scene.Generator
	Base, Count    int
	MappingVersion uint64
	GenVersion     uint64 // the generator's own Version() as observed when this entry was built
}

// Accumulator owns a splat texture and the mapping describing its current
// contents, per §3.
type Accumulator struct {
	Kind    Kind
	Width   int
	Surface driver.Surface

	Texture driver.TextureHandle
	// Companion holds the extended encoding's second 16-byte word (§3/§4.2's
	// two-texel extended layout); allocated only when Kind == KindExtended,
	// otherwise zero and unused.
	Companion driver.TextureHandle
	Size      codec.TextureSize

	Mapping        []MappingEntry
	Version        uint64
	MappingVersion uint64

	Programs *ProgramCache

	// Errored holds generators whose WriteRange failed in the most recent
	// Commit; their slice is left stale but the layout did not shift to
	// compensate (§4.2's error-handling rule).
	Errored map[scene.Generator]struct{}
}

// NewAccumulator allocates an empty accumulator of the given kind. Row width
// is always codec.TextureWidth: §3 fixes the splat texture's width at 2048
// as part of the texture layout rule, so it is not a free parameter — every
// row/layer computation in this package (splitRows, MaxPrimitives, the sort
// driver's depth read-back) depends on Width matching the physical texture
// exactly.
func NewAccumulator(kind Kind, surf driver.Surface) (*Accumulator, error) {
	a := &Accumulator{
		Kind:     kind,
		Width:    codec.TextureWidth,
		Surface:  surf,
		Programs: NewProgramCache(),
		Errored:  make(map[scene.Generator]struct{}),

		// Both counters start one below zero (wrapping), so the first Prepare
		// that installs a mapping yields version 0 and mapping_version 0.
		Version:        ^uint64(0),
		MappingVersion: ^uint64(0),
	}
	sz := codec.ComputeTextureSize(0)
	tex, err := surf.AllocateSplatTexture(sz.Width, max1(sz.Height), max1(sz.Depth))
	if err != nil {
		return nil, err
	}
	a.Texture = tex
	if kind == KindExtended {
		companion, err := surf.AllocateSplatTexture(sz.Width, max1(sz.Height), max1(sz.Depth))
		if err != nil {
			return nil, err
		}
		a.Companion = companion
	}
	a.Size = codec.TextureSize{Width: sz.Width, Height: max1(sz.Height), Depth: max1(sz.Depth)}
	return a, nil
}

func max1(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

// MaxPrimitives is the accumulator's current layout capacity (base_N, the
// sum of every generator's rounded-up slice).
func (a *Accumulator) MaxPrimitives() int {
	if len(a.Mapping) == 0 {
		return 0
	}
	last := a.Mapping[len(a.Mapping)-1]
	return last.Base + roundUp(last.Count, a.Width)
}

// NumPrimitives is the accumulator's real (unrounded) primitive count: the
// sum of every mapped generator's Count.
func (a *Accumulator) NumPrimitives() int {
	n := 0
	for _, e := range a.Mapping {
		n += e.Count
	}
	return n
}

// roundUp rounds n up to the next multiple of width, §4.2's per-generator
// slice rounding rule ("rounds up to a multiple of width so that GPU
// dispatch granularity is a row").
func roundUp(n, width int) int {
	if width <= 0 {
		return n
	}
	return (n + width - 1) / width * width
}

// ensureCapacity grows the accumulator's texture if its current Size can't
// hold n primitives, reallocating (the teacher's layerAtlas.ensureSize does
// the equivalent grow-in-place-or-reallocate for its atlas textures).
func (a *Accumulator) ensureCapacity(n int) error {
	if a.Size.Max() >= n {
		return nil
	}
	sz := codec.ComputeTextureSize(n)
	tex, err := a.Surface.AllocateSplatTexture(sz.Width, max1(sz.Height), max1(sz.Depth))
	if err != nil {
		return err
	}
	oldTex := a.Texture
	a.Texture = tex

	if a.Kind == KindExtended {
		companion, err := a.Surface.AllocateSplatTexture(sz.Width, max1(sz.Height), max1(sz.Depth))
		if err != nil {
			a.Texture = oldTex
			a.Surface.ReleaseTexture(tex)
			return err
		}
		oldCompanion := a.Companion
		a.Companion = companion
		a.Surface.ReleaseTexture(oldCompanion)
	}

	a.Size = codec.TextureSize{Width: sz.Width, Height: max1(sz.Height), Depth: max1(sz.Depth)}
	a.Surface.ReleaseTexture(oldTex)
	return nil
}

// Textures returns the accumulator's primary packed texture and, for an
// extended-kind accumulator, its higher-precision companion. §4.2's
// `textures()` operation.
func (a *Accumulator) Textures() []driver.TextureHandle {
	if a.Kind == KindExtended {
		return []driver.TextureHandle{a.Texture, a.Companion}
	}
	return []driver.TextureHandle{a.Texture}
}

// rowsPerLayer returns how many whole rows fit in one array layer at the
// accumulator's configured width, i.e. codec.TextureHeight.
func (a *Accumulator) rowsPerLayer() int {
	return codec.TextureHeight
}

// layerRange identifies a contiguous row range within one texture layer.
type layerRange struct {
	layer          int
	yStart, yEnd   int // rows
	srcOffset      int // primitive index, relative to the generator's base
}

// splitRows partitions [base, base+count) primitives (each row holding
// a.Width primitives) into per-layer contiguous row ranges, since a
// generator's slice can span more than one array layer (§4.2).
func (a *Accumulator) splitRows(base, count int) []layerRange {
	rowsPerLayer := a.rowsPerLayer()

	startRow := base / a.Width
	endRow := (base + count + a.Width - 1) / a.Width

	var out []layerRange
	srcOffset := 0
	for row := startRow; row < endRow; {
		layer := row / rowsPerLayer
		layerStart := row % rowsPerLayer
		layerRowCap := rowsPerLayer - layerStart
		rowsLeft := endRow - row
		n := rowsLeft
		if n > layerRowCap {
			n = layerRowCap
		}
		out = append(out, layerRange{layer: layer, yStart: layerStart, yEnd: layerStart + n, srcOffset: srcOffset})
		srcOffset += n * a.Width
		row += n
	}
	return out
}
