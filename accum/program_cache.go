// SPDX-License-Identifier: Unlicense OR MIT

package accum

import "splat.dev/core/driver"

// ProgramCache caches compiled per-generator dispatch programs by their
// structural fingerprint, adapted from the teacher's gpu/caches.go
// resourceCache: a program survives a frame only if it was looked up
// (Get) or inserted (Put) that frame. Frame reclaims anything untouched.
type ProgramCache struct {
	res    map[uint64]driver.Program
	newRes map[uint64]driver.Program
}

// NewProgramCache returns an empty cache.
func NewProgramCache() *ProgramCache {
	return &ProgramCache{
		res:    make(map[uint64]driver.Program),
		newRes: make(map[uint64]driver.Program),
	}
}

// Get returns the cached program for fingerprint, marking it live this
// frame, or (nil, false) if nothing is cached for it yet.
func (c *ProgramCache) Get(fingerprint uint64) (driver.Program, bool) {
	p, ok := c.res[fingerprint]
	if ok {
		c.newRes[fingerprint] = p
	}
	return p, ok
}

// Put inserts a freshly-compiled program under fingerprint, marking it live
// this frame.
func (c *ProgramCache) Put(fingerprint uint64, p driver.Program) {
	c.res[fingerprint] = p
	c.newRes[fingerprint] = p
}

// Frame releases every program that wasn't touched (Get or Put) since the
// last Frame call, and rotates the generation.
func (c *ProgramCache) Frame() {
	for fp, p := range c.res {
		if _, live := c.newRes[fp]; !live {
			p.Release()
			delete(c.res, fp)
		}
	}
	c.newRes = make(map[uint64]driver.Program)
}
