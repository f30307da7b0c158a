// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package course

import (
	"github.com/relabs-tech/signalboat/internal/geo"
)

// Topology ids of the windward family.
const (
	TopologySimple                = "simple"
	TopologySimpleOffset          = "simple_offset"
	TopologyWindwardLeeward       = "windward_leeward"
	TopologyWindwardLeewardOffset = "windward_leeward_offset"
)

// Base holds the params every axis-based course shares.
type Base struct {
	Axis       float64 `json:"axis"`
	DistanceNm float64 `json:"distanceNm"`
	StartLineM float64 `json:"startLineM"`
}

var defaultBase = Base{Axis: 0, DistanceNm: 0.8, StartLineM: 100}

// SimpleParams: start line and one windward mark.
type SimpleParams struct {
	Base
}

func (SimpleParams) Topology() string { return TopologySimple }

// SimpleOffsetParams adds an offset mark beside the windward mark.
type SimpleOffsetParams struct {
	Base
	OffsetM   float64 `json:"offsetM"`
	Direction string  `json:"direction"`
}

func (SimpleOffsetParams) Topology() string { return TopologySimpleOffset }

// WindwardLeewardParams adds a leeward gate and laps.
type WindwardLeewardParams struct {
	Base
	GateWidthM    float64 `json:"gateWidthM"`
	GateDistanceM float64 `json:"gateDistanceM"`
	Laps          int     `json:"laps"`
}

func (WindwardLeewardParams) Topology() string { return TopologyWindwardLeeward }

// WindwardLeewardOffsetParams is a windward-leeward with an offset mark.
type WindwardLeewardOffsetParams struct {
	Base
	OffsetM       float64 `json:"offsetM"`
	Direction     string  `json:"direction"`
	GateWidthM    float64 `json:"gateWidthM"`
	GateDistanceM float64 `json:"gateDistanceM"`
	Laps          int     `json:"laps"`
}

func (WindwardLeewardOffsetParams) Topology() string { return TopologyWindwardLeewardOffset }

// windwardShape is the flattened input of the windward family. The
// variant flags pick which marks are chained after the windward mark.
type windwardShape struct {
	Base
	OffsetM       float64
	Direction     string
	GateWidthM    float64
	GateDistanceM float64
	Laps          int

	offset bool
	gate   bool
}

func drawWindward(id string, origin geo.Point, w windwardShape) Rendered {
	if !origin.Valid() || !finite(w.Axis, w.DistanceNm, w.StartLineM, w.OffsetM, w.GateWidthM, w.GateDistanceM) {
		return Rendered{}
	}

	b := newBuilder()
	mid := b.startLine(origin, w.Axis, w.StartLineM)
	windward := b.mark("1", geo.DestinationPoint(mid, w.Axis, w.DistanceNm*geo.MetersPerNauticalMile))

	rounding := []string{"1"}
	if w.offset {
		b.mark("1a", geo.DestinationPoint(windward, w.Axis+side(w.Direction)*90, w.OffsetM))
		rounding = append(rounding, "1a")
	}

	if !w.gate {
		b.route(concat(seq(1, "Start"), seq(1, rounding...), seq(1, "Finish")))
		return b.done(id)
	}

	laps := max(w.Laps, 1)
	b.gate("4", mid, w.Axis, w.GateDistanceM, w.GateWidthM, w.Axis+180)
	b.route(concat(seq(1, "Start"), loop(laps, append(rounding, "4")...), seq(laps, "Finish")))
	return b.done(id)
}

type simpleTopology struct{}

func (simpleTopology) ID() string       { return TopologySimple }
func (simpleTopology) Schema() Schema   { return baseFields() }
func (simpleTopology) Defaults() Params { return SimpleParams{Base: defaultBase} }

func (t simpleTopology) Decode(raw map[string]any) (Params, error) {
	return decodeInto(t.Defaults().(SimpleParams), raw)
}

func (simpleTopology) Draw(origin geo.Point, params Params) Rendered {
	p, ok := params.(SimpleParams)
	if !ok {
		return Rendered{}
	}
	return drawWindward(TopologySimple, origin, windwardShape{Base: p.Base})
}

type simpleOffsetTopology struct{}

func (simpleOffsetTopology) ID() string { return TopologySimpleOffset }

func (simpleOffsetTopology) Schema() Schema {
	return join(baseFields(), Schema{offsetField(), directionField()})
}

func (simpleOffsetTopology) Defaults() Params {
	return SimpleOffsetParams{Base: defaultBase, OffsetM: 80, Direction: DirectionPort}
}

func (t simpleOffsetTopology) Decode(raw map[string]any) (Params, error) {
	return decodeInto(t.Defaults().(SimpleOffsetParams), raw)
}

func (simpleOffsetTopology) Draw(origin geo.Point, params Params) Rendered {
	p, ok := params.(SimpleOffsetParams)
	if !ok {
		return Rendered{}
	}
	return drawWindward(TopologySimpleOffset, origin, windwardShape{
		Base:      p.Base,
		OffsetM:   p.OffsetM,
		Direction: p.Direction,
		offset:    true,
	})
}

type windwardLeewardTopology struct{}

func (windwardLeewardTopology) ID() string { return TopologyWindwardLeeward }

func (windwardLeewardTopology) Schema() Schema {
	return join(baseFields(), gateFields(), Schema{lapsField()})
}

func (windwardLeewardTopology) Defaults() Params {
	return WindwardLeewardParams{Base: defaultBase, GateWidthM: 60, GateDistanceM: 100, Laps: 2}
}

func (t windwardLeewardTopology) Decode(raw map[string]any) (Params, error) {
	return decodeInto(t.Defaults().(WindwardLeewardParams), raw)
}

func (windwardLeewardTopology) Draw(origin geo.Point, params Params) Rendered {
	p, ok := params.(WindwardLeewardParams)
	if !ok {
		return Rendered{}
	}
	return drawWindward(TopologyWindwardLeeward, origin, windwardShape{
		Base:          p.Base,
		GateWidthM:    p.GateWidthM,
		GateDistanceM: p.GateDistanceM,
		Laps:          p.Laps,
		gate:          true,
	})
}

type windwardLeewardOffsetTopology struct{}

func (windwardLeewardOffsetTopology) ID() string { return TopologyWindwardLeewardOffset }

func (windwardLeewardOffsetTopology) Schema() Schema {
	return join(baseFields(), Schema{offsetField(), directionField()}, gateFields(), Schema{lapsField()})
}

func (windwardLeewardOffsetTopology) Defaults() Params {
	return WindwardLeewardOffsetParams{
		Base:          defaultBase,
		OffsetM:       80,
		Direction:     DirectionPort,
		GateWidthM:    60,
		GateDistanceM: 100,
		Laps:          2,
	}
}

func (t windwardLeewardOffsetTopology) Decode(raw map[string]any) (Params, error) {
	return decodeInto(t.Defaults().(WindwardLeewardOffsetParams), raw)
}

func (windwardLeewardOffsetTopology) Draw(origin geo.Point, params Params) Rendered {
	p, ok := params.(WindwardLeewardOffsetParams)
	if !ok {
		return Rendered{}
	}
	return drawWindward(TopologyWindwardLeewardOffset, origin, windwardShape{
		Base:          p.Base,
		OffsetM:       p.OffsetM,
		Direction:     p.Direction,
		GateWidthM:    p.GateWidthM,
		GateDistanceM: p.GateDistanceM,
		Laps:          p.Laps,
		offset:        true,
		gate:          true,
	})
}
