// SPDX-License-Identifier: Unlicense OR MIT

package accum

import (
	"context"

	"splat.dev/core/scene"
)

// Plan is the result of Prepare: the mapping computed for this frame, the
// version counters it implies, and a Commit closure that actually dispatches
// primitives into the accumulator's buffer (§4.2).
type Plan struct {
	acc            *Accumulator
	Generators     []scene.Generator
	Mapping        []MappingEntry
	Version        uint64
	MappingVersion uint64
}

// kindOf reports the accum.Kind a generator's source implies, for Prepare's
// kind-mismatch check (§9's "this spec forbids" mixing kinds).
func kindOf(g scene.Generator) (Kind, bool) {
	bg, ok := g.(*scene.BufferGenerator)
	if !ok {
		return 0, false
	}
	switch bg.Source.(type) {
	case *scene.PackedSource:
		return KindPacked, true
	case *scene.ExtendedSource:
		return KindExtended, true
	default:
		return 0, false
	}
}

// Prepare computes the mapping for generators against the accumulator's
// previous state (§4.2's `prepare`). It never touches the GPU; call
// Commit on the result to actually write primitives.
func (a *Accumulator) Prepare(generators []scene.Generator) (*Plan, error) {
	mapping := make([]MappingEntry, 0, len(generators))
	base := 0
	for _, g := range generators {
		if kind, ok := kindOf(g); ok && kind != a.Kind {
			return nil, &ConfigError{Reason: "generator kind does not match accumulator kind"}
		}
		count := g.NumPrimitives()
		mapping = append(mapping, MappingEntry{
			Generator:      g,
			Base:           base,
			Count:          count,
			MappingVersion: g.MappingVersion(),
			GenVersion:     g.Version(),
		})
		base += roundUp(count, a.Width)
	}

	mappingVersion := a.MappingVersion
	if !mappingsEqual(a.Mapping, mapping) {
		mappingVersion = a.MappingVersion + 1
	}

	version := a.Version
	switch {
	case mappingVersion != a.MappingVersion:
		version = a.Version + 1
	default:
		for i, e := range mapping {
			if i >= len(a.Mapping) || a.Mapping[i].GenVersion != e.GenVersion {
				version = a.Version + 1
				break
			}
		}
	}

	return &Plan{
		acc:            a,
		Generators:     generators,
		Mapping:        mapping,
		Version:        version,
		MappingVersion: mappingVersion,
	}, nil
}

// mappingsEqual compares two mappings elementwise on (generator identity,
// base, count, mapping_version), per §4.2's mapping-reuse rule.
func mappingsEqual(a, b []MappingEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Generator != b[i].Generator || a[i].Base != b[i].Base ||
			a[i].Count != b[i].Count || a[i].MappingVersion != b[i].MappingVersion {
			return false
		}
	}
	return true
}

// Commit dispatches every generator's primitives into the accumulator's
// buffer and adopts the plan's mapping/version as the accumulator's new
// state. A generator whose WriteRange errors is recorded in a.Errored and,
// per §4.2's "slice becomes empty" error rule, its adopted mapping entry's
// Count is zeroed — excluding it from NumPrimitives and any later read-back
// — while its Base (and every other entry's Base) is left untouched, so
// downstream generators do not shift to compensate.
func (p *Plan) Commit(ctx context.Context) error {
	a := p.acc
	maxPrimitives := 0
	if len(p.Mapping) > 0 {
		last := p.Mapping[len(p.Mapping)-1]
		maxPrimitives = last.Base + roundUp(last.Count, a.Width)
	}
	if err := a.ensureCapacity(maxPrimitives); err != nil {
		return err
	}

	textures := a.Textures()
	a.Errored = make(map[scene.Generator]struct{})
	for _, e := range p.Mapping {
		if e.Count == 0 {
			continue
		}
		if e.Base+roundUp(e.Count, a.Width) > a.Size.Max() {
			panic(&CapacityError{Base: e.Base, Count: e.Count, Max: a.Size.Max()})
		}

		fingerprint := e.Generator.Fingerprint()
		prog, ok := a.Programs.Get(fingerprint)
		if !ok {
			prog = e.Generator.Program()
			a.Programs.Put(fingerprint, prog)
		}

		for _, lr := range a.splitRows(e.Base, e.Count) {
			if err := e.Generator.WriteRange(ctx, a.Surface, textures, prog, lr.layer, lr.yStart, lr.yEnd, lr.srcOffset); err != nil {
				a.Errored[e.Generator] = struct{}{}
				break
			}
		}
	}

	a.Mapping = p.Mapping
	for i, e := range a.Mapping {
		if _, errored := a.Errored[e.Generator]; errored {
			a.Mapping[i].Count = 0
		}
	}
	a.Version = p.Version
	a.MappingVersion = p.MappingVersion
	a.Programs.Frame()
	return nil
}
