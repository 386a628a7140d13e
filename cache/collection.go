// SPDX-License-Identifier: Unlicense OR MIT

package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"splat.dev/core/codec"
	"splat.dev/core/driver"
	"splat.dev/core/splatmath"
)

// ChunkData fetches one chunk's raw packed primitives: the actual I/O (disk
// read, HTTP GET) a Collection's Fetcher delegates to. Implementations
// return exactly ChunkPrimitives entries, except possibly a collection's
// last chunk, which may be shorter.
type ChunkData interface {
	FetchChunk(chunk ChunkID) ([]codec.Packed, error)
}

// NotResidentError reports a Fetch against a primitive whose owning chunk
// has not been requested and driven to residency yet, or was evicted since.
type NotResidentError struct {
	Index int
	Chunk ChunkID
}

func (e *NotResidentError) Error() string {
	return fmt.Sprintf("cache: primitive %d (chunk %d) is not resident", e.Index, uint64(e.Chunk))
}

// Collection adapts a PagedCache into the paged-cache PrimitiveSource
// scene.PrimitiveSource's doc comment promises (see scene/source.go):
// primitive index maps to (chunk, offset) by fixed chunk size, and Fetch
// only succeeds once the owning chunk's page has actually landed. Collection
// does not import scene — satisfying scene.PrimitiveSource's method set is
// enough, the same structural-typing the scene package already relies on
// for its own Primitive alias.
//
// PagedCache only tracks GPU page assignment; Collection keeps its own
// CPU-side decode of every resident chunk so Fetch can run without a
// texture read-back, pruned in lockstep with the paged cache's own
// eviction in FinishFrame.
type Collection struct {
	Paged    *PagedCache
	Encoding codec.Encoding
	Total    int // total primitive count across the whole collection
	Bands    int

	fetcher *collectionFetcher

	mu       sync.Mutex
	resident map[ChunkID][]codec.Packed
}

// NewCollection returns a Collection of total primitives (bands SH bands
// each), backed by paged and fetching chunk data through data.
func NewCollection(paged *PagedCache, data ChunkData, enc codec.Encoding, total, bands int) *Collection {
	c := &Collection{
		Paged:    paged,
		Encoding: enc,
		Total:    total,
		Bands:    bands,
		resident: make(map[ChunkID][]codec.Packed),
	}
	c.fetcher = &collectionFetcher{data: data, col: c}
	return c
}

func (c *Collection) NumPrimitives() int          { return c.Total }
func (c *Collection) HasViewDependentColor() bool { return c.Bands > 0 }
func (c *Collection) SHBands() int                { return c.Bands }

// chunkAndOffset maps a global primitive index onto its owning chunk and
// the primitive's offset within that chunk's ChunkPrimitives-sized slice.
func chunkAndOffset(index int) (ChunkID, int) {
	return ChunkID(index / ChunkPrimitives), index % ChunkPrimitives
}

// Fetch decodes primitive index, failing with a *NotResidentError if its
// chunk has not yet been fetched (callers are expected to have driven
// RequestChunks/DriveFetchers for this frame's lod.Result.ChunksReferenced
// before touching any of its primitives).
func (c *Collection) Fetch(index int, viewOrigin *splatmath.Vec3) (codec.Primitive, error) {
	if index < 0 || index >= c.Total {
		return codec.Primitive{}, fmt.Errorf("cache: collection: index %d out of range [0,%d)", index, c.Total)
	}
	chunk, offset := chunkAndOffset(index)
	c.mu.Lock()
	packed, ok := c.resident[chunk]
	c.mu.Unlock()
	_, onPage := c.Paged.Resident(chunk)
	if !ok || !onPage || offset >= len(packed) {
		return codec.Primitive{}, &NotResidentError{Index: index, Chunk: chunk}
	}
	return codec.Decode(packed[offset], c.Encoding), nil
}

// RequestChunks joins every chunk in chunks onto the paged cache's fetch
// queue, a no-op for chunks already resident or in flight. Callers pass the
// current frame's lod.Result.ChunksReferenced (translated to ChunkID and
// filtered to this collection's LODID) here, once per tick.
func (c *Collection) RequestChunks(chunks []ChunkID) {
	for _, chunk := range chunks {
		c.Paged.Request(chunk)
	}
}

// DriveFetchers runs the paged cache's DriveFetchers over its pending fetch
// queue, caching each chunk's packed data as it lands. That call drains the
// whole queue; limit is validated but does not cap how many chunks it
// fetches.
func (c *Collection) DriveFetchers(limit int) error {
	return c.Paged.DriveFetchers(c.fetcher, limit)
}

// FinishFrame advances the paged cache's eviction bookkeeping for this
// frame's referenced chunks, then prunes Collection's own CPU-side decode
// for whatever the paged cache evicted as a result.
func (c *Collection) FinishFrame(referenced []ChunkID) {
	c.Paged.FinishFrame(referenced)
	c.mu.Lock()
	for chunk := range c.resident {
		if _, ok := c.Paged.Resident(chunk); !ok {
			delete(c.resident, chunk)
		}
	}
	c.mu.Unlock()
}

// collectionFetcher adapts a ChunkData source into a Fetcher, uploading
// each chunk's packed bytes into its assigned page and caching the decode
// source for Collection.Fetch.
type collectionFetcher struct {
	data ChunkData
	col  *Collection
}

func (f *collectionFetcher) Fetch(chunk ChunkID, page PageID, surf driver.Surface, tex driver.TextureHandle) error {
	packed, err := f.data.FetchChunk(chunk)
	if err != nil {
		return err
	}
	if err := uploadChunk(surf, tex, int(page), packed); err != nil {
		return err
	}
	f.col.mu.Lock()
	f.col.resident[chunk] = packed
	f.col.mu.Unlock()
	return nil
}

// chunkUploadProgram is a throwaway driver.Program that replays a chunk's
// already-packed bytes into a page's texels, routing a fetch's arrival
// through Surface.WriteRegion the same way a live generator's dispatch does
// (see scene.dispatchEncoder) instead of writing the texture directly.
type chunkUploadProgram struct {
	packed []codec.Packed
}

func (p *chunkUploadProgram) Fingerprint() uint64 { return 0 }
func (p *chunkUploadProgram) Release()            {}

func (p *chunkUploadProgram) Encode(dst []uint32, width, yStart, yEnd int, uniforms []byte) {
	count := (yEnd - yStart) * width
	for i := 0; i < count && i < len(p.packed); i++ {
		b := p.packed[i]
		for w := 0; w < 4; w++ {
			dst[i*4+w] = binary.LittleEndian.Uint32(b[w*4 : w*4+4])
		}
	}
}

// chunkRows is how many whole texture rows one chunk occupies at
// codec.TextureWidth: 32 of the 2048 rows in its page's layer.
const chunkRows = ChunkPrimitives / codec.TextureWidth

// uploadChunk writes packed into page's layer of tex, the array-layer
// convention PagedCache's one page_max-deep texture uses.
func uploadChunk(surf driver.Surface, tex driver.TextureHandle, page int, packed []codec.Packed) error {
	prog := &chunkUploadProgram{packed: packed}
	return surf.WriteRegion(context.Background(), tex, page, 0, chunkRows, prog, nil)
}
