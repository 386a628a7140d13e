// SPDX-License-Identifier: Unlicense OR MIT

// Package engine composes the per-frame pipeline §2's System Overview
// describes: scene generators feed the accumulator, the accumulator's
// mapping drives the sort driver, and the LOD driver's traversal both
// bounds what generators emit and drives which paged-cache chunks are
// resident for the frame's instances. Grounded on the teacher's own
// top-level wiring in app/internal: a single struct holding every
// subsystem's live state, assembled once from a config and driven by one
// per-frame method.
package engine

import (
	"context"
	"fmt"

	"splat.dev/core/accum"
	"splat.dev/core/cache"
	"splat.dev/core/config"
	"splat.dev/core/driver"
	"splat.dev/core/internal/rpc"
	"splat.dev/core/lod"
	"splat.dev/core/scene"
	"splat.dev/core/sortdriver"
	"splat.dev/core/splatmath"
)

// Engine owns one render surface's full pipeline state: the scene arena
// generators register into, the accumulator they're dispatched through,
// the sort driver that orders the result, the LOD driver that bounds it,
// and the paged-cache collections its traversal keeps resident.
type Engine struct {
	Config config.RendererConfig

	Arena *scene.Arena
	Accum *accum.Accumulator
	Sort  *sortdriver.SortDriver
	LOD   *lod.Driver
	Pool  *rpc.Pool

	Surface driver.Surface

	collections map[uint64]*cache.Collection // by lod.Instance.LODID
}

// NewEngine assembles the pipeline from cfg against surf. kind fixes
// whether the accumulator holds packed or extended primitives for the
// engine's lifetime; §9 forbids switching kinds on a live accumulator.
func NewEngine(cfg config.RendererConfig, kind accum.Kind, surf driver.Surface) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	acc, err := accum.NewAccumulator(kind, surf)
	if err != nil {
		return nil, err
	}

	metric := sortdriver.MetricConfig{
		Metric:      sortMetric(cfg.SortRadial),
		AlphaCutoff: float32(cfg.MinAlpha),
	}
	sort, err := sortdriver.NewSortDriver(surf, cfg.MinSortIntervalMs, metric)
	if err != nil {
		return nil, err
	}

	pool, err := rpc.NewPool(0, nil)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Config:      cfg,
		Arena:       scene.NewArena(),
		Accum:       acc,
		Sort:        sort,
		LOD:         lod.NewDriver(pool),
		Pool:        pool,
		Surface:     surf,
		collections: make(map[uint64]*cache.Collection),
	}, nil
}

func sortMetric(radial bool) sortdriver.Metric {
	if radial {
		return sortdriver.MetricRadial
	}
	return sortdriver.MetricBiasedZ
}

// RegisterCollection binds a paged-cache Collection to instance lodID, so
// Tick can drive its chunk residency from that instance's own LOD
// traversal results (lod.ChunkRef.LODID).
func (e *Engine) RegisterCollection(lodID uint64, col *cache.Collection) {
	e.collections[lodID] = col
}

// Tick runs one frame: a gated LOD traversal, paged-cache residency for
// whatever that traversal referenced, the accumulator's prepare/commit
// against the scene arena's registered generators, and the sort driver's
// trigger/tick against the resulting accumulator state. now is a
// caller-supplied monotonic millisecond clock (no wall-clock calls here,
// mirroring sortdriver.SortDriver.Tick's determinism contract).
func (e *Engine) Tick(ctx context.Context, now int64, cam splatmath.Camera, instances []lod.Instance, caps lod.Caps) error {
	if err := e.LOD.Tick(ctx, instances, caps, e.Surface); err != nil {
		return fmt.Errorf("engine: lod tick: %w", err)
	}
	if err := e.driveCacheResidency(); err != nil {
		return fmt.Errorf("engine: cache residency: %w", err)
	}

	plan, err := e.Accum.Prepare(e.Arena.Generators())
	if err != nil {
		return fmt.Errorf("engine: prepare: %w", err)
	}
	if err := plan.Commit(ctx); err != nil {
		return fmt.Errorf("engine: commit: %w", err)
	}

	e.Sort.Trigger(cam, e.Accum.Version)
	if err := e.Sort.Tick(ctx, now, e.Accum); err != nil {
		return fmt.Errorf("engine: sort tick: %w", err)
	}
	return nil
}

// driveCacheResidency requests and drives every chunk the most recent LOD
// traversal referenced, grouped by owning collection, then runs that
// collection's finish_frame so chunks it no longer references age out
// (§4.5). A collection with nothing referenced this tick still runs
// finish_frame against an empty set, so its residents age out under
// EvictBuffer like any other unreferenced chunk.
func (e *Engine) driveCacheResidency() error {
	byLOD := make(map[uint64][]cache.ChunkID)
	for _, ref := range e.LOD.LastResult().ChunksReferenced {
		byLOD[ref.LODID] = append(byLOD[ref.LODID], cache.ChunkID(ref.ChunkID))
	}
	for lodID, col := range e.collections {
		chunks := byLOD[lodID]
		col.RequestChunks(chunks)
		if err := col.DriveFetchers(e.Config.NumLODFetchers); err != nil {
			return err
		}
		col.FinishFrame(chunks)
	}
	return nil
}
