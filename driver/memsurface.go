// SPDX-License-Identifier: Unlicense OR MIT

package driver

import (
	"context"
	"sync"
)

// texture is the in-memory backing store for one allocated splat texture:
// depth layers of width*height RGBA32UI texels (four uint32 words each).
type texture struct {
	width, height, depth int
	layers               [][]uint32 // depth slices, each width*height*4 words
}

// MemSurface is an in-process software Surface: no GPU, no cgo. It exists
// so the sort driver, accumulator and LOD driver can be exercised in tests
// end to end, the way the teacher's headless package let it render without
// a window. WriteRegion here just stores whatever bytes the caller supplied
// via a plain memcpy-shaped callback (there is no real shader); production
// callers wire a real GPU-backed Surface instead.
type MemSurface struct {
	mu       sync.Mutex
	textures map[TextureHandle]*texture
	next     TextureHandle

	// WriteFunc, if set, is invoked by WriteRegion for programs that don't
	// implement Encoder, letting tests inject packed primitive bytes as if
	// a real compute shader had written them.
	WriteFunc func(tex TextureHandle, layer, yStart, yEnd int, prog Program, uniforms []byte, dst []uint32)

	// DepthFunc, if set, is invoked by ReadPixelsAsync to synthesize depth
	// samples for a region instead of reading zeros.
	DepthFunc func(tex TextureHandle, layer, x, y, w, h int, out []byte)
}

// NewMemSurface returns an empty in-memory surface.
func NewMemSurface() *MemSurface {
	return &MemSurface{textures: make(map[TextureHandle]*texture)}
}

func (m *MemSurface) AllocateSplatTexture(width, height, depth int) (TextureHandle, error) {
	if width <= 0 || height <= 0 || depth <= 0 {
		return 0, &ResourceError{Op: "AllocateSplatTexture", Reason: "non-positive dimension"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	h := m.next
	layers := make([][]uint32, depth)
	for i := range layers {
		layers[i] = make([]uint32, width*height*4)
	}
	m.textures[h] = &texture{width: width, height: height, depth: depth, layers: layers}
	return h, nil
}

func (m *MemSurface) ReleaseTexture(tex TextureHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.textures, tex)
}

func (m *MemSurface) WriteRegion(ctx context.Context, tex TextureHandle, layer, yStart, yEnd int, prog Program, uniforms []byte) error {
	m.mu.Lock()
	t, ok := m.textures[tex]
	m.mu.Unlock()
	if !ok {
		return &ResourceError{Op: "WriteRegion", Reason: "unknown texture"}
	}
	if layer < 0 || layer >= t.depth {
		return &ResourceError{Op: "WriteRegion", Reason: "layer out of range"}
	}
	width := t.width
	rowWords := width * 4
	lo, hi := yStart*rowWords, yEnd*rowWords
	if lo < 0 || hi > len(t.layers[layer]) {
		return &ResourceError{Op: "WriteRegion", Reason: "row range out of bounds"}
	}
	if enc, ok := prog.(Encoder); ok {
		enc.Encode(t.layers[layer][lo:hi], width, yStart, yEnd, uniforms)
		return nil
	}
	if m.WriteFunc != nil {
		m.WriteFunc(tex, layer, yStart, yEnd, prog, uniforms, t.layers[layer])
	}
	return nil
}

// Encoder is implemented by Programs that can synthesize their own packed
// texel words directly, letting a software Surface exercise a generator's
// dispatch without a real GPU shader. dst covers exactly rows [yStart,yEnd)
// of the layer, width texels wide, four uint32 words per texel.
type Encoder interface {
	Encode(dst []uint32, width, yStart, yEnd int, uniforms []byte)
}

func (m *MemSurface) ReadPixelsAsync(ctx context.Context, tex TextureHandle, layer, x, y, w, h int, out []byte, attachment int) <-chan error {
	done := make(chan error, 1)
	m.mu.Lock()
	_, ok := m.textures[tex]
	m.mu.Unlock()
	if !ok {
		done <- &ResourceError{Op: "ReadPixelsAsync", Reason: "unknown texture"}
		close(done)
		return done
	}
	if m.DepthFunc != nil {
		m.DepthFunc(tex, layer, x, y, w, h, out)
	}
	go func() {
		select {
		case <-ctx.Done():
			done <- ctx.Err()
		default:
			done <- nil
		}
		close(done)
	}()
	return done
}

func (m *MemSurface) UploadOrdering(tex TextureHandle, data []uint32) error {
	return m.upload(tex, data)
}

func (m *MemSurface) UploadLODIndices(tex TextureHandle, data []uint32) error {
	return m.upload(tex, data)
}

func (m *MemSurface) upload(tex TextureHandle, data []uint32) error {
	m.mu.Lock()
	t, ok := m.textures[tex]
	m.mu.Unlock()
	if !ok {
		return &ResourceError{Op: "upload", Reason: "unknown texture"}
	}
	if len(t.layers) == 0 || len(data) > len(t.layers[0]) {
		return &ResourceError{Op: "upload", Reason: "data larger than texture"}
	}
	copy(t.layers[0], data)
	return nil
}
