// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package course

import (
	"github.com/relabs-tech/signalboat/internal/geo"
)

const (
	TopologyTrapezoidInner = "trapezoid_inner"
	TopologyTrapezoidOuter = "trapezoid_outer"
)

// TrapezoidParams describes the trapezoid geometry shared by the inner
// and outer loop courses.
//
// ReachAngle is the angle at mark 1 between the first beat and the reach
// leg; ReachRatio is the reach length as a fraction of the beat.
type TrapezoidParams struct {
	Base
	ReachAngle    float64 `json:"reachAngle"`
	ReachRatio    float64 `json:"reachRatio"`
	Direction     string  `json:"direction"`
	GateWidthM    float64 `json:"gateWidthM"`
	GateDistanceM float64 `json:"gateDistanceM"`
	Laps          int     `json:"laps"`
}

// TrapezoidInnerParams sails the inner loop (1 ↔ 4) before the reach to 2.
type TrapezoidInnerParams struct {
	TrapezoidParams
}

func (TrapezoidInnerParams) Topology() string { return TopologyTrapezoidInner }

// TrapezoidOuterParams sails the outer loop (2 ↔ 3) after the reach.
type TrapezoidOuterParams struct {
	TrapezoidParams
}

func (TrapezoidOuterParams) Topology() string { return TopologyTrapezoidOuter }

var defaultTrapezoid = TrapezoidParams{
	Base:          defaultBase,
	ReachAngle:    60,
	ReachRatio:    0.67,
	Direction:     DirectionPort,
	GateWidthM:    60,
	GateDistanceM: 100,
	Laps:          2,
}

type trapezoidTopology struct {
	outer bool
}

func (t trapezoidTopology) ID() string {
	if t.outer {
		return TopologyTrapezoidOuter
	}
	return TopologyTrapezoidInner
}

func (trapezoidTopology) Schema() Schema {
	return join(baseFields(), Schema{
		{Key: "reachAngle", Type: FieldNumber, Min: 45, Max: 80, Step: 5, Unit: "deg"},
		{Key: "reachRatio", Type: FieldNumber, Min: 0.3, Max: 1.5, Step: 0.01},
		directionField(),
	}, gateFields(), Schema{lapsField()})
}

func (t trapezoidTopology) Defaults() Params {
	if t.outer {
		return TrapezoidOuterParams{TrapezoidParams: defaultTrapezoid}
	}
	return TrapezoidInnerParams{TrapezoidParams: defaultTrapezoid}
}

func (t trapezoidTopology) Decode(raw map[string]any) (Params, error) {
	if t.outer {
		return decodeInto(t.Defaults().(TrapezoidOuterParams), raw)
	}
	return decodeInto(t.Defaults().(TrapezoidInnerParams), raw)
}

func (t trapezoidTopology) Draw(origin geo.Point, params Params) Rendered {
	var p TrapezoidParams
	switch v := params.(type) {
	case TrapezoidInnerParams:
		if t.outer {
			return Rendered{}
		}
		p = v.TrapezoidParams
	case TrapezoidOuterParams:
		if !t.outer {
			return Rendered{}
		}
		p = v.TrapezoidParams
	default:
		return Rendered{}
	}
	if !origin.Valid() || !finite(p.Axis, p.DistanceNm, p.StartLineM, p.ReachAngle, p.ReachRatio, p.GateWidthM, p.GateDistanceM) {
		return Rendered{}
	}

	beat := p.DistanceNm * geo.MetersPerNauticalMile
	s := side(p.Direction)

	b := newBuilder()
	mid := b.startLine(origin, p.Axis, p.StartLineM)
	one := b.mark("1", geo.DestinationPoint(mid, p.Axis, beat))
	two := b.mark("2", geo.DestinationPoint(one, p.Axis+180-s*p.ReachAngle, beat*p.ReachRatio))
	b.gate("3", two, p.Axis, -beat, p.GateWidthM, p.Axis+180)
	b.gate("4", mid, p.Axis, p.GateDistanceM, p.GateWidthM, p.Axis+180)

	laps := max(p.Laps, 1)
	if t.outer {
		// Start, 1, 2, then the 3 ↔ 2 loop, finishing after the last 3.
		stops := concat(seq(1, "Start", "1"), loop(laps, "2", "3"), seq(laps, "Finish"))
		b.route(stops)
		return b.done(t.ID())
	}
	// Start, the 1 ↔ 4 loop, then 1, 2, 3 and the finish.
	stops := concat(seq(1, "Start"), loop(laps, "1", "4"), seq(laps, "1", "2", "3", "Finish"))
	b.route(stops)
	return b.done(t.ID())
}
