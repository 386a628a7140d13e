// SPDX-License-Identifier: Unlicense OR MIT

package scene

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"splat.dev/core/codec"
	"splat.dev/core/driver"
	"splat.dev/core/splatmath"
)

// Generator is a primitive source bound to a transform: §3's generator.
// Version increments whenever the primitives it yields change; MappingVersion
// increments whenever its primitive count or layout changes (a subset of
// Version's triggers — see §3's two-counter rule).
type Generator interface {
	NumPrimitives() int
	Version() uint64
	MappingVersion() uint64
	ObjectToWorld() splatmath.Mat4
	Fingerprint() uint64

	// Program returns the generator's cacheable dispatch program for its
	// current Fingerprint. Callers (the accumulator's ProgramCache) look one
	// up by Fingerprint first and only call Program again on a miss, so the
	// returned value must depend only on structural state (encoding, SH
	// bands, packed vs extended) — never on this frame's base offset.
	Program() driver.Program

	// WriteRange dispatches primitives [srcOffset, srcOffset+(yEnd-yStart)*w),
	// w being the texture's row width, into rows [yStart, yEnd) of tex's
	// given layer, using prog (as returned by Program, possibly cached from
	// an earlier frame). tex holds the
	// accumulator's texture set: one entry for a packed accumulator, two
	// (primary, companion) for an extended one. The accumulator calls this
	// once per contiguous (layer, row range) the generator's slice touches,
	// since a generator can span multiple layers.
	WriteRange(ctx context.Context, surf driver.Surface, tex []driver.TextureHandle, prog driver.Program, layer, yStart, yEnd, srcOffset int) error
}

// BufferGenerator adapts a PrimitiveSource + a rigid transform into a
// Generator. Version/MappingVersion are driven explicitly (Bump/BumpMapping)
// by whatever owns the source — there is no implicit dirty tracking, since
// the source itself (packed slice, paged cache) is the source of truth for
// whether its content changed.
type BufferGenerator struct {
	Source   PrimitiveSource
	Encoding codec.Encoding
	toWorld  splatmath.Mat4

	version        uint64
	mappingVersion uint64
}

// NewBufferGenerator returns a generator over source with the given
// object-to-world transform, starting at version 0/mapping_version 0.
func NewBufferGenerator(source PrimitiveSource, enc codec.Encoding, objectToWorld splatmath.Mat4) *BufferGenerator {
	return &BufferGenerator{Source: source, Encoding: enc, toWorld: objectToWorld}
}

func (g *BufferGenerator) NumPrimitives() int            { return g.Source.NumPrimitives() }
func (g *BufferGenerator) Version() uint64               { return g.version }
func (g *BufferGenerator) MappingVersion() uint64        { return g.mappingVersion }
func (g *BufferGenerator) ObjectToWorld() splatmath.Mat4 { return g.toWorld }

// Bump advances Version: the primitives changed but the count/layout did not.
func (g *BufferGenerator) Bump() { g.version++ }

// BumpMapping advances both MappingVersion and Version: the count or layout
// changed, which per §3 always implies the content is new too.
func (g *BufferGenerator) BumpMapping() {
	g.mappingVersion++
	g.version++
}

// SetObjectToWorld replaces the generator's transform. It does not by
// itself bump any version counter; callers that treat a transform change as
// a content change should also call Bump.
func (g *BufferGenerator) SetObjectToWorld(m splatmath.Mat4) {
	g.toWorld = m
}

// isExtended reports whether Source needs the 32-byte, two-texel extended
// encoding rather than the 16-byte packed one.
func (g *BufferGenerator) isExtended() bool {
	_, ok := g.Source.(*ExtendedSource)
	return ok
}

// Fingerprint is a structural key over the generator's encoding parameters,
// SH band count and packed-vs-extended kind, used by the accumulator's
// program cache (adapted from the teacher's gpu/caches.go two-generation
// resourceCache, keyed here by fingerprint instead of by *ops.Key).
func (g *BufferGenerator) Fingerprint() uint64 {
	h := fnv1a(uint64(g.Source.SHBands()))
	if g.Source.HasViewDependentColor() {
		h = fnv1aByte(h, 1)
	}
	switch g.Source.(type) {
	case *PackedSource:
		h = fnv1aByte(h, 'P')
	case *ExtendedSource:
		h = fnv1aByte(h, 'E')
	default:
		h = fnv1aByte(h, '?')
	}
	enc := g.Encoding
	for _, f := range [4]float32{enc.RGBMin, enc.RGBMax, enc.LnScaleMin, enc.LnScaleMax} {
		bits := math.Float32bits(f)
		for s := 0; s < 32; s += 8 {
			h = fnv1aByte(h, byte(bits>>s))
		}
	}
	if enc.LODOpacity {
		h = fnv1aByte(h, 'L')
	}
	return h
}

func fnv1a(seed uint64) uint64 {
	const offset = 1469598103934665603
	const prime = 1099511628211
	h := uint64(offset)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seed)
	for _, b := range buf {
		h ^= uint64(b)
		h *= prime
	}
	return h
}

func fnv1aByte(h uint64, b byte) uint64 {
	const prime = 1099511628211
	h ^= uint64(b)
	h *= prime
	return h
}

// EncodingProgram is the cacheable, generator-agnostic part of a dispatch:
// the quantization parameters two structurally identical generators share.
// It holds no per-frame state (no source, no base offset) so the
// accumulator's ProgramCache can hand the same instance back across many
// frames, and across any other generator whose Fingerprint matches.
type EncodingProgram struct {
	Encoding codec.Encoding
	fp       uint64
}

func (p *EncodingProgram) Fingerprint() uint64 { return p.fp }
func (p *EncodingProgram) Release()            {}

// encodeWord packs one primitive for word (0 = packed 16-byte format, 1/2 =
// the extended format's first/second 16-byte word).
func (p *EncodingProgram) encodeWord(prim codec.Primitive, word int) [4]uint32 {
	switch word {
	case 1:
		w1, _ := codec.EncodeExtended(prim)
		return w1
	case 2:
		_, w2 := codec.EncodeExtended(prim)
		return w2
	default:
		packed := codec.Encode(prim, p.Encoding)
		var out [4]uint32
		for w := 0; w < 4; w++ {
			out[w] = binary.LittleEndian.Uint32(packed[w*4 : w*4+4])
		}
		return out
	}
}

// Program returns the generator's structural dispatch program, keyed by
// Fingerprint so the accumulator's ProgramCache can reuse it.
func (g *BufferGenerator) Program() driver.Program {
	return &EncodingProgram{Encoding: g.Encoding, fp: g.Fingerprint()}
}

// dispatchEncoder binds an EncodingProgram (possibly reused from a prior
// frame) to this call's source, row offset and word variant, letting a
// software Surface (driver.MemSurface) synthesize packed words without a
// real GPU shader. It is built fresh per WriteRange call — only the
// EncodingProgram it wraps is cached.
type dispatchEncoder struct {
	*EncodingProgram
	source    PrimitiveSource
	srcOffset int
	word      int
	origin    splatmath.Vec3
}

func (d *dispatchEncoder) Encode(dst []uint32, width, yStart, yEnd int, uniforms []byte) {
	count := (yEnd - yStart) * width
	for i := 0; i < count; i++ {
		idx := d.srcOffset + i
		if idx >= d.source.NumPrimitives() {
			break
		}
		primitive, err := d.source.Fetch(idx, &d.origin)
		if err != nil {
			continue
		}
		words := d.encodeWord(primitive, d.word)
		copy(dst[i*4:i*4+4], words[:])
	}
}

// WriteRange dispatches through surf.WriteRegion, wrapping prog (the
// generator's cached EncodingProgram) with this call's source/offset state.
// A packed generator writes 4 words/primitive into tex[0]; an extended one
// writes 8 words/primitive as two texels, word 1 into tex[0] and word 2 into
// tex[1] (§3/§4.2's 32-byte, two-texel extended layout), which is why an
// extended accumulator's Textures() must supply a companion handle.
func (g *BufferGenerator) WriteRange(ctx context.Context, surf driver.Surface, tex []driver.TextureHandle, prog driver.Program, layer, yStart, yEnd, srcOffset int) error {
	ep, ok := prog.(*EncodingProgram)
	if !ok {
		return fmt.Errorf("scene: WriteRange: unexpected program type %T", prog)
	}
	origin := g.toWorld.Col(3).Vec3()
	uniforms := transformUniforms(g.toWorld)

	if g.isExtended() {
		if len(tex) < 2 {
			return fmt.Errorf("scene: WriteRange: extended source needs a companion texture")
		}
		word1 := &dispatchEncoder{EncodingProgram: ep, source: g.Source, srcOffset: srcOffset, word: 1, origin: origin}
		if err := surf.WriteRegion(ctx, tex[0], layer, yStart, yEnd, word1, uniforms); err != nil {
			return err
		}
		word2 := &dispatchEncoder{EncodingProgram: ep, source: g.Source, srcOffset: srcOffset, word: 2, origin: origin}
		return surf.WriteRegion(ctx, tex[1], layer, yStart, yEnd, word2, uniforms)
	}

	enc := &dispatchEncoder{EncodingProgram: ep, source: g.Source, srcOffset: srcOffset, word: 0, origin: origin}
	return surf.WriteRegion(ctx, tex[0], layer, yStart, yEnd, enc, uniforms)
}

func transformUniforms(m splatmath.Mat4) []byte {
	buf := make([]byte, 16*4)
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(m[i]))
	}
	return buf
}
