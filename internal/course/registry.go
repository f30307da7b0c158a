// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package course

import (
	"fmt"

	"github.com/relabs-tech/signalboat/internal/geo"
)

// Registry maps topology ids to implementations. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	byID  map[string]Topology
	order []string
}

// NewRegistry builds a registry from the given topologies, in order.
func NewRegistry(topologies ...Topology) *Registry {
	r := &Registry{byID: make(map[string]Topology, len(topologies))}
	for _, t := range topologies {
		if _, dup := r.byID[t.ID()]; dup {
			continue
		}
		r.byID[t.ID()] = t
		r.order = append(r.order, t.ID())
	}
	return r
}

// Builtin returns a registry holding every built-in course shape.
func Builtin() *Registry {
	return NewRegistry(
		simpleTopology{},
		simpleOffsetTopology{},
		windwardLeewardTopology{},
		windwardLeewardOffsetTopology{},
		trapezoidTopology{outer: false},
		trapezoidTopology{outer: true},
		triangleTopology{},
		olympicTopology{},
		slalomTopology{},
	)
}

// Get returns the topology registered under id.
func (r *Registry) Get(id string) (Topology, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// IDs lists registered ids in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// DefaultSpec returns the spec holding id's default params.
func (r *Registry) DefaultSpec(id string) (Spec, error) {
	t, ok := r.byID[id]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownTopology, id)
	}
	return NewSpec(t.Defaults()), nil
}

// DecodeSpec validates raw params against id's schema and decodes them
// into the topology's params record. Missing keys take default values.
func (r *Registry) DecodeSpec(id string, raw map[string]any) (Spec, error) {
	t, ok := r.byID[id]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownTopology, id)
	}
	if err := Validate(t.Schema(), raw); err != nil {
		return Spec{}, err
	}
	p, err := t.Decode(raw)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return NewSpec(p), nil
}

// Render draws spec at origin. An unknown topology, a params record of
// the wrong type, or a non-finite input renders nothing.
func (r *Registry) Render(origin geo.Point, spec Spec) Rendered {
	t, ok := r.byID[spec.TopologyID]
	if !ok || spec.Params == nil || spec.Params.Topology() != spec.TopologyID {
		return Rendered{}
	}
	if !origin.Valid() {
		return Rendered{}
	}
	return t.Draw(origin, spec.Params)
}
