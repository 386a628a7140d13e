// SPDX-License-Identifier: Unlicense OR MIT

// Package sortdriver implements the asynchronous depth read-back, radix
// sort and ordering-texture upload pipeline (§4.3), adapted from the
// teacher's gpu/compute.go compute-pass scheduling (a state machine driven
// from the owning thread's frame tick) and its caches.go two-buffer
// promotion idiom (display vs current).
package sortdriver

import (
	"math"

	"splat.dev/core/splatmath"
)

// Metric selects which scalar depth the sort orders primitives by.
type Metric int

const (
	MetricRadial Metric = iota
	MetricBiasedZ
)

// MetricConfig carries the renderer-config knobs that shape the per-primitive
// depth metric (§6's sort_radial and min_alpha).
type MetricConfig struct {
	Metric      Metric
	DepthBias   float32
	AlphaCutoff float32
	Mode360     bool // disables the biased-z <= 0 culling rule
}

// ComputeDepths derives the per-primitive sort metric from world-space
// centers and alphas relative to the camera. Centers behind the viewer under
// biased-z (or below the alpha cutoff) are assigned +Inf, which RadixSort
// tails off with the 0xFFFFFFFF sentinel (§4.3's culling rule). Production
// callers read this metric back from the render surface instead; this
// exists so a software Surface (and tests) can synthesize it.
func ComputeDepths(centers []splatmath.Vec3, alphas []float32, cam splatmath.Camera, cfg MetricConfig) []float32 {
	out := make([]float32, len(centers))
	for i, c := range centers {
		d := c.Sub(cam.Origin)
		var metric float32
		switch cfg.Metric {
		case MetricRadial:
			metric = d.Len()
		case MetricBiasedZ:
			metric = cam.Forward.Dot(d) + cfg.DepthBias
			if metric <= 0 && !cfg.Mode360 {
				metric = float32(math.Inf(1))
			}
		}
		if i < len(alphas) && alphas[i] < cfg.AlphaCutoff {
			metric = float32(math.Inf(1))
		}
		out[i] = metric
	}
	return out
}
