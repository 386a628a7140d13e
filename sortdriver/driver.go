// SPDX-License-Identifier: Unlicense OR MIT

package sortdriver

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"splat.dev/core/accum"
	"splat.dev/core/driver"
	"splat.dev/core/splatmath"
)

// State is one of the four states of §4.3's sort state machine.
type State int

const (
	StateIdle State = iota
	StateWaiting
	StateReading
	StateSorting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateReading:
		return "reading"
	case StateSorting:
		return "sorting"
	default:
		return "unknown"
	}
}

// ConfigError reports an invalid SortDriver configuration.
type ConfigError struct{ Reason string }

func (e *ConfigError) Error() string { return "sortdriver: config error: " + e.Reason }

const orderingRowWidth = 4096 // one row of 4096 RGBA32UI texels, §3

// roundUpOrdering rounds n up to the next multiple of 16384, §3's ordering
// buffer granularity.
func roundUpOrdering(n int) int {
	const granule = 16384
	if n <= 0 {
		return 0
	}
	return (n + granule - 1) / granule * granule
}

// SortDriver owns the ordering texture and the display/current accumulator
// pair, driving the four-state machine of §4.3. It is built around the
// teacher's caches.go two-generation promotion idiom: a sort result is
// computed against a `current` snapshot and only promoted to `display` when
// the mapping it was computed for is still the authoritative one.
type SortDriver struct {
	Surface       driver.Surface
	Metric        MetricConfig
	MinIntervalMs int64

	state    State
	dirty    bool
	lastSort int64

	display *accum.Accumulator
	current *accum.Accumulator

	orderingTex driver.TextureHandle
	orderingCap int
	allocated   bool

	haveCamera        bool
	lastCameraOrigin  splatmath.Vec3
	lastCameraForward splatmath.Vec3
	lastAccVersion    uint64

	// ThrottledFrames counts ticks where Tick was entered with dirty=true
	// but returned early without sorting because min_sort_interval_ms had
	// not yet elapsed — the sort-driver half of §9's dirty-frame metric.
	ThrottledFrames int
	// SortsExecuted counts completed sorts (read-back through ordering
	// upload), regardless of whether the result was promoted to display.
	SortsExecuted int
}

// NewSortDriver returns an idle driver bound to surf.
func NewSortDriver(surf driver.Surface, minIntervalMs int64, metric MetricConfig) (*SortDriver, error) {
	if surf == nil {
		return nil, &ConfigError{Reason: "surface must not be nil"}
	}
	if minIntervalMs < 0 {
		return nil, &ConfigError{Reason: "min interval must be non-negative"}
	}
	return &SortDriver{Surface: surf, MinIntervalMs: minIntervalMs, Metric: metric}, nil
}

// State reports the driver's current state machine position.
func (d *SortDriver) State() State { return d.state }

// Display returns the accumulator currently promoted for rendering, or nil
// before the first successful sort.
func (d *SortDriver) Display() *accum.Accumulator { return d.display }

// Trigger evaluates §4.3's three trigger conditions against the camera and
// the accumulator's version, setting dirty when any fires. Call once per
// frame before Tick.
func (d *SortDriver) Trigger(cam splatmath.Camera, accVersion uint64) {
	if !d.haveCamera {
		d.haveCamera = true
		d.lastCameraOrigin = cam.Origin
		d.lastCameraForward = cam.Forward
		d.lastAccVersion = accVersion
		d.dirty = true
		return
	}
	moved := cam.Origin.Sub(d.lastCameraOrigin).Len()
	drift := 1 - cam.Forward.Dot(d.lastCameraForward)
	if moved > 0.001 || drift > 0.001 || accVersion != d.lastAccVersion {
		d.dirty = true
	}
	d.lastCameraOrigin = cam.Origin
	d.lastCameraForward = cam.Forward
	d.lastAccVersion = accVersion
}

// Tick runs one pass of §4.3's loop against acc as the candidate `current`
// accumulator. now is a caller-supplied monotonic millisecond clock (no
// wall-clock calls, so callers can drive deterministic tests). It returns
// nil when there is nothing to do (steps 1-2) or after a completed sort and
// upload. An error from the render surface is returned, with dirty left
// set so the next tick retries, per §7's recovery policy.
func (d *SortDriver) Tick(ctx context.Context, now int64, acc *accum.Accumulator) error {
	if !d.dirty || d.state == StateSorting {
		return nil
	}
	if now < d.lastSort+d.MinIntervalMs {
		d.state = StateWaiting
		d.ThrottledFrames++
		return nil
	}

	d.current = acc
	d.state = StateReading
	depths, err := d.readDepths(ctx, acc)
	if err != nil {
		d.state = StateIdle
		return err
	}

	d.state = StateSorting
	ordering, _ := RadixSort(depths)
	paddedLen := roundUpOrdering(len(ordering))
	if paddedLen > len(ordering) {
		padded := make([]uint32, paddedLen)
		copy(padded, ordering)
		for i := len(ordering); i < paddedLen; i++ {
			padded[i] = Sentinel
		}
		ordering = padded
	}

	if err := d.ensureOrderingCapacity(paddedLen); err != nil {
		d.state = StateIdle
		return err
	}
	if err := d.Surface.UploadOrdering(d.orderingTex, ordering); err != nil {
		d.state = StateIdle
		return err
	}

	if d.shouldPromote(acc) {
		old := d.display
		d.display = acc
		_ = old // the outgoing display accumulator is dropped here; this package keeps no accumulator pool to return it to
	}

	d.lastSort = now
	d.dirty = false
	d.state = StateIdle
	d.SortsExecuted++
	return nil
}

// shouldPromote implements §4.3 step 7 / the cancellation rule: current is
// promotable only while its mapping_version still matches display's (or
// there is no display yet). If the mapping diverged while the sort was
// computed, current simply stays in the `current` slot.
func (d *SortDriver) shouldPromote(current *accum.Accumulator) bool {
	if d.display == nil {
		return true
	}
	return current.MappingVersion == d.display.MappingVersion
}

// readDepths gathers the per-primitive depth metric for every slot of acc's
// layout (MaxPrimitives), one asynchronous read per array layer (§4.3 step
// 4). Slots outside every generator's [Base, Base+Count) are +Inf.
func (d *SortDriver) readDepths(ctx context.Context, acc *accum.Accumulator) ([]float32, error) {
	n := acc.MaxPrimitives()
	if n == 0 {
		return nil, nil
	}
	textures := acc.Textures()
	if len(textures) == 0 {
		return nil, fmt.Errorf("sortdriver: accumulator has no texture")
	}
	tex := textures[0]

	depths := make([]float32, 0, n)
	remaining := n
	width := acc.Width
	rowsPerLayer := acc.Size.Height
	if rowsPerLayer <= 0 {
		rowsPerLayer = 1
	}

	for layer := 0; remaining > 0 && layer < acc.Size.Depth; layer++ {
		layerCap := width * rowsPerLayer
		take := remaining
		if take > layerCap {
			take = layerCap
		}
		rows := (take + width - 1) / width
		buf := make([]byte, rows*width*4)
		done := d.Surface.ReadPixelsAsync(ctx, tex, layer, 0, 0, width, rows, buf, 0)
		if err := <-done; err != nil {
			return nil, err
		}
		for i := 0; i < take; i++ {
			bits := binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
			depths = append(depths, math.Float32frombits(bits))
		}
		remaining -= take
	}
	live := make([]bool, len(depths))
	for _, e := range acc.Mapping {
		for i := e.Base; i < e.Base+e.Count && i < len(live); i++ {
			live[i] = true
		}
	}
	for i, ok := range live {
		if !ok {
			depths[i] = float32(math.Inf(1))
		}
	}
	return depths, nil
}

// ensureOrderingCapacity grows the ordering texture to hold n entries,
// reallocating if needed and never shrinking (§3's "grown monotonically,
// never shrunk until disposal" lifecycle rule).
func (d *SortDriver) ensureOrderingCapacity(n int) error {
	if d.allocated && d.orderingCap >= n {
		return nil
	}
	height := (n + orderingRowWidth - 1) / orderingRowWidth
	if height < 1 {
		height = 1
	}
	tex, err := d.Surface.AllocateSplatTexture(orderingRowWidth, height, 1)
	if err != nil {
		return err
	}
	if d.allocated {
		d.Surface.ReleaseTexture(d.orderingTex)
	}
	d.orderingTex = tex
	d.orderingCap = height * orderingRowWidth
	d.allocated = true
	return nil
}
