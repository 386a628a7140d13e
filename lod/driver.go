// SPDX-License-Identifier: Unlicense OR MIT

package lod

import (
	"context"

	"splat.dev/core/driver"
	"splat.dev/core/internal/rpc"
)

// Metrics counts the LOD driver's dirty-frame survival, per the Open
// Question in §9 asking implementers to expose exactly this signal.
type Metrics struct {
	// DirtyFramesSkipped counts ticks where dirty was set but tryExclusive
	// was denied, so the traversal could not run and dirty survived
	// untouched into the next tick.
	DirtyFramesSkipped int
	// TraversalsRun counts traversals that completed without error,
	// including ones whose index upload then failed.
	TraversalsRun int
}

// Driver runs §4.4's traversal under the pool's tryExclusive guard (§4.6),
// tracking a dirty flag that survives until the next *successful*
// traversal rather than merely the next attempt — a denied tryExclusive
// must not silently drop the pending request.
type Driver struct {
	Pool *rpc.Pool

	dirty   bool
	Metrics Metrics

	lastResult Result
	lodTex     []driver.TextureHandle // one per instance, from the previous successful upload
}

// NewDriver binds a traversal scheduler to pool.
func NewDriver(pool *rpc.Pool) *Driver {
	return &Driver{Pool: pool}
}

// MarkDirty requests a traversal on the next Tick; call whenever the
// instance set, a tree, or the camera has changed enough to need one.
func (d *Driver) MarkDirty() { d.dirty = true }

// Dirty reports whether a traversal is still pending.
func (d *Driver) Dirty() bool { return d.dirty }

// LastResult returns the most recently completed traversal's output.
func (d *Driver) LastResult() Result { return d.lastResult }

// Tick runs one traversal via tryExclusive if dirty is set. The traversal
// and the index upload run synchronously on the calling goroutine, and Tick
// returns only once both have finished; no worker of the pool is used.
// When tryExclusive is denied, dirty stays set and DirtyFramesSkipped
// increments; only a traversal that actually ran clears it.
func (d *Driver) Tick(ctx context.Context, instances []Instance, caps Caps, surf driver.Surface) error {
	if !d.dirty {
		return nil
	}
	var traverseErr error
	ran, err := d.Pool.TryExclusive(func() error {
		result, err := Traverse(instances, caps)
		if err != nil {
			traverseErr = err
			return err
		}
		d.Metrics.TraversalsRun++
		tex, err := uploadResult(surf, result, d.lodTex)
		if err != nil {
			traverseErr = err
			return err
		}
		d.lastResult = result
		d.lodTex = tex
		return nil
	})
	if err != nil {
		return err
	}
	if !ran {
		d.Metrics.DirtyFramesSkipped++
		return nil
	}
	if traverseErr != nil {
		return traverseErr
	}
	d.dirty = false
	return nil
}

// uploadResult uploads every instance's padded index buffer to its own LOD
// index texture (§6's upload_lod_indices), releasing any texture the
// previous successful upload held so the pool doesn't grow unbounded.
func uploadResult(surf driver.Surface, result Result, prev []driver.TextureHandle) ([]driver.TextureHandle, error) {
	tex := make([]driver.TextureHandle, len(result.Instances))
	for i, ir := range result.Instances {
		if len(ir.Indices) == 0 {
			continue
		}
		h, err := surf.AllocateSplatTexture(len(ir.Indices), 1, 1)
		if err != nil {
			return nil, err
		}
		if err := surf.UploadLODIndices(h, ir.Indices); err != nil {
			return nil, err
		}
		tex[i] = h
	}
	for _, h := range prev {
		surf.ReleaseTexture(h)
	}
	return tex, nil
}
