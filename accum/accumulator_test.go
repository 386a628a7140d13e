// SPDX-License-Identifier: Unlicense OR MIT

package accum

import (
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"splat.dev/core/codec"
	"splat.dev/core/driver"
	"splat.dev/core/scene"
)

func primitives(enc codec.Encoding, n int) []codec.Packed {
	out := make([]codec.Packed, n)
	for i := range out {
		p := codec.Primitive{
			Center:  mgl32.Vec3{float32(i), 0, 0},
			Scales:  [3]float32{1, 1, 1},
			Orient:  mgl32.QuatIdent(),
			Opacity: 1,
			Color:   [3]float32{0.5, 0.5, 0.5},
		}
		out[i] = codec.Encode(p, enc)
	}
	return out
}

func newTestGenerator(n int) *scene.BufferGenerator {
	enc, _ := codec.NewEncoding(0, 1, -8, 8, false)
	src := &scene.PackedSource{Data: primitives(enc, n), Encoding: enc}
	return scene.NewBufferGenerator(src, src.Encoding, mgl32.Ident4())
}

// TestPrepareSingleStaticCollection covers S1: one generator, no changes
// across two consecutive frames, the mapping and both version counters must
// be identical and the commit must leave the generator unerrored.
func TestPrepareSingleStaticCollection(t *testing.T) {
	surf := driver.NewMemSurface()
	a, err := NewAccumulator(KindPacked, surf)
	if err != nil {
		t.Fatalf("NewAccumulator: %v", err)
	}
	g := newTestGenerator(20)

	plan1, err := a.Prepare([]scene.Generator{g})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := plan1.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(a.Errored) != 0 {
		t.Fatalf("unexpected errored generators: %v", a.Errored)
	}
	v1, mv1 := a.Version, a.MappingVersion

	plan2, err := a.Prepare([]scene.Generator{g})
	if err != nil {
		t.Fatalf("Prepare (2nd): %v", err)
	}
	if !mappingsEqual(plan1.Mapping, plan2.Mapping) {
		t.Fatalf("mapping changed across identical frames")
	}
	if plan2.Version != v1 || plan2.MappingVersion != mv1 {
		t.Fatalf("version advanced with no generator change: got (%d,%d) want (%d,%d)",
			plan2.Version, plan2.MappingVersion, v1, mv1)
	}
}

// TestPrepareContentChangeOnly covers the "version advances, mapping_version
// does not" half of §3's two-counter rule: bumping a generator's content
// without changing its count must leave the mapping (and reusable sort
// order) intact.
func TestPrepareContentChangeOnly(t *testing.T) {
	surf := driver.NewMemSurface()
	a, err := NewAccumulator(KindPacked, surf)
	if err != nil {
		t.Fatalf("NewAccumulator: %v", err)
	}
	g := newTestGenerator(20)

	plan1, _ := a.Prepare([]scene.Generator{g})
	if err := plan1.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	mv1 := a.MappingVersion

	g.Bump()
	plan2, err := a.Prepare([]scene.Generator{g})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if plan2.MappingVersion != mv1 {
		t.Fatalf("mapping_version changed on content-only bump: got %d want %d", plan2.MappingVersion, mv1)
	}
	if plan2.Version == a.Version {
		t.Fatalf("version did not advance on content bump")
	}
}

// TestPrepareGeneratorAdded covers S3: adding a second generator mid-stream
// must advance mapping_version, extend the mapping layout, and leave the
// first generator's base untouched.
func TestPrepareGeneratorAdded(t *testing.T) {
	surf := driver.NewMemSurface()
	a, err := NewAccumulator(KindPacked, surf)
	if err != nil {
		t.Fatalf("NewAccumulator: %v", err)
	}
	g1 := newTestGenerator(20)

	plan1, _ := a.Prepare([]scene.Generator{g1})
	if err := plan1.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	firstBase := a.Mapping[0].Base
	mv1 := a.MappingVersion

	g2 := newTestGenerator(10)
	plan2, err := a.Prepare([]scene.Generator{g1, g2})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if plan2.MappingVersion == mv1 {
		t.Fatalf("mapping_version did not advance when a generator was added")
	}
	if plan2.Mapping[0].Base != firstBase {
		t.Fatalf("existing generator's base shifted: got %d want %d", plan2.Mapping[0].Base, firstBase)
	}
	if err := plan2.Commit(context.Background()); err != nil {
		t.Fatalf("Commit (2nd): %v", err)
	}
	if len(a.Mapping) != 2 {
		t.Fatalf("expected 2 mapping entries, got %d", len(a.Mapping))
	}
}

// TestCommitErrorDoesNotShiftBases exercises §4.2's rule that a failing
// generator is excluded from this frame's presentation without the
// remaining generators' bases shifting to compensate.
func TestCommitErrorDoesNotShiftBases(t *testing.T) {
	surf := driver.NewMemSurface()
	a, err := NewAccumulator(KindPacked, surf)
	if err != nil {
		t.Fatalf("NewAccumulator: %v", err)
	}
	good := newTestGenerator(8)
	bad := &failingGenerator{BufferGenerator: *newTestGenerator(8)}

	plan, err := a.Prepare([]scene.Generator{good, bad})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	wantBadBase := plan.Mapping[1].Base
	if err := plan.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, errored := a.Errored[bad]; !errored {
		t.Fatalf("expected failing generator to be recorded as errored")
	}
	if a.Mapping[1].Base != wantBadBase {
		t.Fatalf("errored generator's base shifted: got %d want %d", a.Mapping[1].Base, wantBadBase)
	}
	if a.Mapping[1].Count != 0 {
		t.Fatalf("errored generator's slice should become empty, got count %d", a.Mapping[1].Count)
	}
	if a.NumPrimitives() != good.NumPrimitives() {
		t.Fatalf("NumPrimitives should exclude the errored generator's contribution: got %d want %d",
			a.NumPrimitives(), good.NumPrimitives())
	}
}

// failingGenerator always fails WriteRange, simulating a surface error from
// one generator in an otherwise healthy frame.
type failingGenerator struct {
	scene.BufferGenerator
}

func (g *failingGenerator) WriteRange(ctx context.Context, surf driver.Surface, tex []driver.TextureHandle, prog driver.Program, layer, yStart, yEnd, srcOffset int) error {
	return &driver.ResourceError{Op: "WriteRegion", Reason: "injected failure"}
}

func TestPrepareRejectsMismatchedKind(t *testing.T) {
	surf := driver.NewMemSurface()
	a, err := NewAccumulator(KindExtended, surf)
	if err != nil {
		t.Fatalf("NewAccumulator: %v", err)
	}
	g := newTestGenerator(8) // PackedSource-backed

	if _, err := a.Prepare([]scene.Generator{g}); err == nil {
		t.Fatalf("expected ConfigError for mismatched kind, got nil")
	}
}

func newExtendedTestGenerator(n int) *scene.BufferGenerator {
	enc, _ := codec.NewEncoding(0, 1, -8, 8, false)
	word1 := make([][4]uint32, n)
	word2 := make([][4]uint32, n)
	for i := range word1 {
		p := codec.Primitive{
			Center:  mgl32.Vec3{float32(i), 0, 0},
			Scales:  [3]float32{1, 1, 1},
			Orient:  mgl32.QuatIdent(),
			Opacity: 1,
			Color:   [3]float32{0.5, 0.5, 0.5},
		}
		word1[i], word2[i] = codec.EncodeExtended(p)
	}
	src := &scene.ExtendedSource{Word1: word1, Word2: word2}
	return scene.NewBufferGenerator(src, enc, mgl32.Ident4())
}

// TestCommitExtendedKindUsesCompanionTexture covers the 32-byte, two-texel
// extended encoding: an extended accumulator must allocate a companion
// texture at construction, and Commit against an ExtendedSource-backed
// generator must succeed and leave Textures() reporting the primary+
// companion pair rather than a single handle.
func TestCommitExtendedKindUsesCompanionTexture(t *testing.T) {
	surf := driver.NewMemSurface()
	a, err := NewAccumulator(KindExtended, surf)
	if err != nil {
		t.Fatalf("NewAccumulator: %v", err)
	}
	if a.Companion == 0 {
		t.Fatalf("expected a companion texture to be allocated for an extended accumulator")
	}
	g := newExtendedTestGenerator(4)

	plan, err := a.Prepare([]scene.Generator{g})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := plan.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(a.Errored) != 0 {
		t.Fatalf("unexpected errored generators: %v", a.Errored)
	}
	textures := a.Textures()
	if len(textures) != 2 {
		t.Fatalf("expected Textures() to return a primary+companion pair, got %d", len(textures))
	}
	if textures[1] != a.Companion {
		t.Fatalf("expected Textures()[1] to be the companion handle")
	}
}

// TestCommitReusesCachedProgramAcrossFrames covers the program cache
// actually being consulted during Commit: two consecutive commits of the
// same generator must reuse the one EncodingProgram instance from
// a.Programs rather than silently building (and discarding) a fresh one
// every frame.
func TestCommitReusesCachedProgramAcrossFrames(t *testing.T) {
	surf := driver.NewMemSurface()
	a, err := NewAccumulator(KindPacked, surf)
	if err != nil {
		t.Fatalf("NewAccumulator: %v", err)
	}
	g := newTestGenerator(8)

	plan1, _ := a.Prepare([]scene.Generator{g})
	if err := plan1.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	fp := g.Fingerprint()
	prog1, ok := a.Programs.Get(fp)
	if !ok {
		t.Fatalf("expected the program cache to hold an entry for the generator's fingerprint")
	}

	g.Bump()
	plan2, err := a.Prepare([]scene.Generator{g})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := plan2.Commit(context.Background()); err != nil {
		t.Fatalf("Commit (2nd): %v", err)
	}
	prog2, ok := a.Programs.Get(fp)
	if !ok {
		t.Fatalf("expected the program cache to still hold an entry after a second commit")
	}
	if prog1 != prog2 {
		t.Fatalf("expected the same cached program instance to be reused across frames")
	}
}
