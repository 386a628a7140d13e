// SPDX-License-Identifier: Unlicense OR MIT

package sortdriver

import "math"

// Sentinel marks an inactive ordering slot: "no primitive" (§3).
const Sentinel = 0xFFFFFFFF

// sortKey maps a depth metric onto a uint32 whose ascending order sorts
// back-to-front (farthest first): a finite metric's IEEE-754 bits are
// flipped so ascending-uint order matches ascending-float order (sign bit
// set for non-negatives, all bits inverted for negatives, per §4.3's radix
// rule), then the whole key is inverted again so ascending keys correspond
// to descending depth. Non-finite metrics (culled primitives) always sort
// last, past every finite key.
func sortKey(depth float32) uint32 {
	if math.IsInf(float64(depth), 1) || math.IsNaN(float64(depth)) {
		return math.MaxUint32
	}
	bits := math.Float32bits(depth)
	if bits&0x80000000 == 0 {
		bits |= 0x80000000
	} else {
		bits = ^bits
	}
	return ^bits
}

// RadixSort computes a back-to-front ordering over depths: indices with
// finite depth come first, farthest to nearest, followed by
// Sentinel-filled slots for every index with a non-finite depth (§4.3,
// §4's radix + tail rules). The returned slice always has length
// len(depths); activeCount is the number of real (non-sentinel) entries at
// its head, satisfying P7.
func RadixSort(depths []float32) (ordering []uint32, activeCount int) {
	n := len(depths)
	keys := make([]uint32, n)
	idx := make([]uint32, n)
	for i, d := range depths {
		keys[i] = sortKey(d)
		idx[i] = uint32(i)
	}
	lsdRadixSort(keys, idx)

	activeCount = n
	for activeCount > 0 && keys[activeCount-1] == math.MaxUint32 {
		activeCount--
	}

	ordering = make([]uint32, n)
	for i := 0; i < activeCount; i++ {
		ordering[i] = idx[i]
	}
	for i := activeCount; i < n; i++ {
		ordering[i] = Sentinel
	}
	return ordering, activeCount
}

// lsdRadixSort sorts (keys[i], vals[i]) pairs ascending by keys[i] in place,
// four passes of 8-bit digits least-significant first — a stable sort, so
// equal-key ties preserve their original relative order.
func lsdRadixSort(keys []uint32, vals []uint32) {
	n := len(keys)
	if n < 2 {
		return
	}
	keyBuf := make([]uint32, n)
	valBuf := make([]uint32, n)

	for shift := uint(0); shift < 32; shift += 8 {
		var count [257]int
		for _, k := range keys {
			digit := (k >> shift) & 0xFF
			count[digit+1]++
		}
		for i := 0; i < 256; i++ {
			count[i+1] += count[i]
		}
		for i, k := range keys {
			digit := (k >> shift) & 0xFF
			pos := count[digit]
			count[digit]++
			keyBuf[pos] = k
			valBuf[pos] = vals[i]
		}
		keys, keyBuf = keyBuf, keys
		vals, valBuf = valBuf, vals
	}
}
