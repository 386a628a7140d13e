// SPDX-License-Identifier: Unlicense OR MIT

// Package cache implements the paged splat cache (§4.5): an LRU chunk
// cache backed by a fixed-capacity texture page pool, with in-flight fetch
// tracking and priority-driven eviction. Grounded on the teacher's
// gpu/caches.go resourceCache (the insertion-ordered-map LRU idiom) and on
// github.com/hashicorp/golang-lru, already present in the pack as an
// indirect dependency of noisetorch-NoiseTorch's go.mod; promoted here to a
// direct one and put to its intended use — ordered chunk residency
// tracking — instead of the teacher's plain map.
package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"splat.dev/core/driver"
)

// ChunkID identifies a 65,536-primitive unit of one collection (§3's
// "chunk"); PageID identifies a texture-pool residency slot.
type ChunkID uint64
type PageID int32

// ChunkPrimitives is the fixed primitive count of one chunk.
const ChunkPrimitives = 65536

// ConfigError reports an invalid cache configuration.
type ConfigError struct{ Reason string }

func (e *ConfigError) Error() string { return "cache: config error: " + e.Reason }

// TransientFetchError reports a failed chunk fetch (§7); the in-flight
// sentinel is cleared and the chunk is rescheduled.
type TransientFetchError struct {
	Chunk ChunkID
	Cause error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("cache: fetch failed for chunk %d: %v", uint64(e.Chunk), e.Cause)
}
func (e *TransientFetchError) Unwrap() error { return e.Cause }

// Fetcher fetches one chunk's packed primitive data, uploading it into
// page via surf once it arrives. Implementations own the actual I/O (file
// read, HTTP GET); the cache only sequences calls and bounds concurrency.
type Fetcher interface {
	Fetch(chunk ChunkID, page PageID, surf driver.Surface, tex driver.TextureHandle) error
}

// residency is "fetch in flight" (inFlight set, page already allocated to the
// fetch) or "resident on page p".
type residency struct {
	page     PageID
	inFlight bool
}

// PagedCache is one collection's chunk-to-page mapping, LRU order and
// fetch queue (§4.5).
type PagedCache struct {
	Surface driver.Surface
	Texture driver.TextureHandle // one page_max-deep array texture
	PageMax int

	order *lru.Cache // insertion-ordered map of ChunkID -> residency, doubles as the LRU touch/evict structure

	freelist []PageID
	pageTop  int

	pending []ChunkID // pending_fetches, in request order

	// EvictBuffer is the "buffer margin" of §4.5's finish_frame: chunks
	// referenced within the last EvictBuffer frames are kept resident even
	// if absent from the current reference_set. Default 0.
	EvictBuffer int
	recentlyUsed map[ChunkID]int // chunk -> frames since last referenced
}

// NewPagedCache allocates a page_max-page texture pool.
func NewPagedCache(surf driver.Surface, pageMax int) (*PagedCache, error) {
	if pageMax <= 0 {
		return nil, &ConfigError{Reason: "page_max must be positive"}
	}
	tex, err := surf.AllocateSplatTexture(2048, 2048, pageMax)
	if err != nil {
		return nil, err
	}
	// order's own capacity is sized generously so the hashicorp LRU never
	// auto-evicts on our behalf; residency accounting (and page-bounded
	// eviction) is entirely this type's responsibility, not the underlying
	// map's.
	order, err := lru.New(1 << 20)
	if err != nil {
		return nil, err
	}
	return &PagedCache{
		Surface:      surf,
		Texture:      tex,
		PageMax:      pageMax,
		order:        order,
		recentlyUsed: make(map[ChunkID]int),
	}, nil
}

// Touch establishes chunk as most-recently-used, performing no I/O (§4.5).
func (c *PagedCache) Touch(chunk ChunkID) {
	if v, ok := c.order.Get(chunk); ok {
		c.order.Add(chunk, v) // golang-lru's Get already bumps recency; Add re-inserts defensively
	}
	c.recentlyUsed[chunk] = 0
}

func peekResidency(c *lru.Cache, chunk ChunkID) (residency, bool) {
	v, ok := c.Peek(chunk)
	if !ok {
		return residency{}, false
	}
	return v.(residency), true
}

// allocPage pops from the freelist, else grows page_top, else reports
// exhaustion (§4.5's alloc_page).
func (c *PagedCache) allocPage() (PageID, bool) {
	if n := len(c.freelist); n > 0 {
		p := c.freelist[n-1]
		c.freelist = c.freelist[:n-1]
		return p, true
	}
	if c.pageTop < c.PageMax {
		p := PageID(c.pageTop)
		c.pageTop++
		return p, true
	}
	return 0, false
}

// freePage returns page to the freelist. The caller must have already
// removed any chunk mapping to it (§4.5).
func (c *PagedCache) freePage(page PageID) {
	c.freelist = append(c.freelist, page)
}

// Resident reports whether chunk currently has page residency (as opposed
// to being absent or in flight).
func (c *PagedCache) Resident(chunk ChunkID) (PageID, bool) {
	v, ok := peekResidency(c.order, chunk)
	if !ok || v.inFlight {
		return 0, false
	}
	return v.page, true
}

// Request implements §4.5's request: resident chunks are touched, in-flight
// chunks are a no-op, and absent chunks join pending_fetches.
func (c *PagedCache) Request(chunk ChunkID) {
	if v, ok := peekResidency(c.order, chunk); ok {
		if v.inFlight {
			return
		}
		c.Touch(chunk)
		return
	}
	for _, p := range c.pending {
		if p == chunk {
			return
		}
	}
	c.pending = append(c.pending, chunk)
}

// orderedChunkKeys returns order's keys, oldest first, as ChunkID.
func orderedChunkKeys(c *lru.Cache) []ChunkID {
	raw := c.Keys()
	out := make([]ChunkID, len(raw))
	for i, k := range raw {
		out[i] = k.(ChunkID)
	}
	return out
}

// evictOneResident walks the LRU order oldest-first and evicts the first
// chunk that is resident (never one in flight, per §4.5's eviction
// discipline), returning the page it freed.
func (c *PagedCache) evictOneResident() (ChunkID, PageID, bool) {
	for _, k := range orderedChunkKeys(c.order) {
		v, ok := peekResidency(c.order, k)
		if !ok || v.inFlight {
			continue
		}
		c.order.Remove(k)
		delete(c.recentlyUsed, k)
		return k, v.page, true
	}
	return 0, 0, false
}

// allocPageOrEvict allocates a page, evicting the least-recently-used
// resident chunk first if the pool is exhausted.
func (c *PagedCache) allocPageOrEvict() (PageID, bool) {
	if p, ok := c.allocPage(); ok {
		return p, true
	}
	if _, page, ok := c.evictOneResident(); ok {
		c.freePage(page)
		return c.allocPage()
	}
	return 0, false
}

// DriveFetchers implements §4.5's drive_fetchers: it dispatches queued
// requests against fetcher, allocating a page per fetch (evicting an LRU
// resident chunk when the pool is full) and committing residency on
// success. limit bounds concurrent fetches for a genuinely asynchronous
// Fetcher; this implementation's Fetch call is synchronous (it returns
// once the data has landed), so a fetch's in-flight window never overlaps
// the next pop and the loop drains the whole queue in one call regardless
// of limit — the parameter is kept, and validated, for interface parity
// with a future async Fetcher. A chunk whose fetch fails goes back on the
// queue for the next call.
func (c *PagedCache) DriveFetchers(fetcher Fetcher, limit int) error {
	if limit <= 0 {
		return &ConfigError{Reason: "limit must be positive"}
	}
	var firstErr error
	var retry []ChunkID
	for len(c.pending) > 0 {
		chunk := c.pending[0]
		c.pending = c.pending[1:]

		page, ok := c.allocPageOrEvict()
		if !ok {
			// Every resident page is itself in flight: nothing can be
			// freed right now. Put the chunk back and stop.
			c.pending = append([]ChunkID{chunk}, c.pending...)
			break
		}

		c.order.Add(chunk, residency{page: page, inFlight: true})
		err := fetcher.Fetch(chunk, page, c.Surface, c.Texture)

		if err != nil {
			c.order.Remove(chunk)
			c.freePage(page)
			retry = append(retry, chunk)
			if firstErr == nil {
				firstErr = &TransientFetchError{Chunk: chunk, Cause: err}
			}
			continue
		}
		c.order.Add(chunk, residency{page: page, inFlight: false})
		c.recentlyUsed[chunk] = 0
	}
	c.pending = append(c.pending, retry...)
	return firstErr
}

// FinishFrame implements §4.5's finish_frame: any resident chunk absent
// from referenced for more than EvictBuffer consecutive frames is evicted,
// freeing its page. In-flight chunks are never evicted.
func (c *PagedCache) FinishFrame(referenced []ChunkID) {
	refSet := make(map[ChunkID]bool, len(referenced))
	for _, r := range referenced {
		refSet[r] = true
	}
	for chunk := range c.recentlyUsed {
		if refSet[chunk] {
			c.recentlyUsed[chunk] = 0
		} else {
			c.recentlyUsed[chunk]++
		}
	}

	var evict []ChunkID
	for _, k := range orderedChunkKeys(c.order) {
		v, ok := peekResidency(c.order, k)
		if !ok || v.inFlight {
			continue
		}
		if c.recentlyUsed[k] > c.EvictBuffer {
			evict = append(evict, k)
		}
	}
	for _, k := range evict {
		v, _ := peekResidency(c.order, k)
		c.order.Remove(k)
		delete(c.recentlyUsed, k)
		c.freePage(v.page)
	}
}

// Counts reports the current partition of the page pool, for P4's
// invariant: resident+freelist+inFlight never exceeds PageMax, and every
// page belongs to exactly one bucket.
func (c *PagedCache) Counts() (resident, freelist, inFlight int) {
	for _, k := range orderedChunkKeys(c.order) {
		v, ok := peekResidency(c.order, k)
		if !ok {
			continue
		}
		if v.inFlight {
			inFlight++
		} else {
			resident++
		}
	}
	return resident, len(c.freelist), inFlight
}

// Pending reports chunks still queued for fetch, in request order.
func (c *PagedCache) Pending() []ChunkID {
	out := make([]ChunkID, len(c.pending))
	copy(out, c.pending)
	return out
}
