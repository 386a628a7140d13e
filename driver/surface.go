// SPDX-License-Identifier: Unlicense OR MIT

// Package driver declares the render surface the rest of this module treats
// as an external collaborator: the GPU driver and shader programs are out
// of scope (spec §1), so the core only ever talks to this typed interface,
// adapted from the teacher's own GPU backend abstraction (gpu/backend.go's
// Backend interface) and narrowed from "draw a 2-D scene" to "write and read
// back packed splat primitives".
package driver

import (
	"context"
	"fmt"
)

// TextureHandle identifies a splat texture allocated on a Surface.
type TextureHandle uint64

// Program is a compiled per-generator dispatch pipeline: codec + modifiers
// + transform, built from a deterministic graph so the accumulator can
// cache compiled programs by their structural Fingerprint.
type Program interface {
	Fingerprint() uint64
	Release()
}

// ResourceError reports a render-surface allocation failure (texture too
// large, out of device memory). Per §7, the caller's accumulator is left in
// its prior state.
type ResourceError struct {
	Op     string
	Reason string
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("driver: %s: %s", e.Op, e.Reason)
}

// Surface is the render surface: the GPU driver and shader programs
// collaborator. allocate_splat_texture, write_region, read_pixels_async,
// upload_ordering and upload_lod_indices from spec §6 map directly onto
// this interface's methods.
type Surface interface {
	// AllocateSplatTexture allocates a width x height x depth RGBA32UI
	// array texture, per §3's texture layout.
	AllocateSplatTexture(width, height, depth int) (TextureHandle, error)

	// WriteRegion runs prog as a pseudo-compute dispatch that writes packed
	// primitives into rows [yStart, yEnd) of the given array layer.
	WriteRegion(ctx context.Context, tex TextureHandle, layer, yStart, yEnd int, prog Program, uniforms []byte) error

	// ReadPixelsAsync reads back a w x h block of layer's texels into out,
	// asynchronously; the returned channel carries the single completion
	// error (nil on success) when the read finishes.
	ReadPixelsAsync(ctx context.Context, tex TextureHandle, layer, x, y, w, h int, out []byte, attachment int) <-chan error

	// UploadOrdering uploads a depth-sorted index permutation into the
	// ordering texture (full allocation or sub-image update is the
	// implementation's choice; see §9 design notes).
	UploadOrdering(tex TextureHandle, data []uint32) error

	// UploadLODIndices uploads per-instance LOD index buffers.
	UploadLODIndices(tex TextureHandle, data []uint32) error

	// ReleaseTexture frees a previously allocated texture.
	ReleaseTexture(tex TextureHandle)
}
