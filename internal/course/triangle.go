// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package course

import (
	"math"

	"github.com/relabs-tech/signalboat/internal/geo"
)

const (
	TopologyTriangle = "triangle"
	TopologyOlympic  = "olympic"
)

// TriangleParams: windward mark 1, wing mark 2, leeward mark 3.
//
// WingAngle is the angle at mark 1 between the beat and the first reach.
// Mark 2 sits where the two reaches meet at a right angle, so any wing
// angle keeps 3 directly downwind of 1.
type TriangleParams struct {
	Base
	WingAngle float64 `json:"wingAngle"`
	Direction string  `json:"direction"`
	Laps      int     `json:"laps"`
}

func (TriangleParams) Topology() string { return TopologyTriangle }

// OlympicParams is a triangle followed by a windward-leeward sausage on
// every lap.
type OlympicParams struct {
	Base
	WingAngle float64 `json:"wingAngle"`
	Direction string  `json:"direction"`
	Laps      int     `json:"laps"`
}

func (OlympicParams) Topology() string { return TopologyOlympic }

func triangleSchema() Schema {
	return join(baseFields(), Schema{
		{Key: "wingAngle", Type: FieldNumber, Min: 30, Max: 60, Step: 5, Unit: "deg"},
		directionField(),
		lapsField(),
	})
}

// triangleMarks chains the three triangle marks after the start line.
func triangleMarks(b *builder, origin geo.Point, p Base, wingAngle float64, direction string) {
	mid := b.startLine(origin, p.Axis, p.StartLineM)
	beat := p.DistanceNm * geo.MetersPerNauticalMile
	one := b.mark("1", geo.DestinationPoint(mid, p.Axis, beat))
	reach := beat * math.Cos(wingAngle*math.Pi/180)
	b.mark("2", geo.DestinationPoint(one, p.Axis+180-side(direction)*wingAngle, reach))
	b.mark("3", geo.DestinationPoint(one, p.Axis+180, beat))
}

type triangleTopology struct{}

func (triangleTopology) ID() string     { return TopologyTriangle }
func (triangleTopology) Schema() Schema { return triangleSchema() }

func (triangleTopology) Defaults() Params {
	return TriangleParams{Base: defaultBase, WingAngle: 45, Direction: DirectionPort, Laps: 2}
}

func (t triangleTopology) Decode(raw map[string]any) (Params, error) {
	return decodeInto(t.Defaults().(TriangleParams), raw)
}

func (triangleTopology) Draw(origin geo.Point, params Params) Rendered {
	p, ok := params.(TriangleParams)
	if !ok || !origin.Valid() || !finite(p.Axis, p.DistanceNm, p.StartLineM, p.WingAngle) {
		return Rendered{}
	}
	b := newBuilder()
	triangleMarks(b, origin, p.Base, p.WingAngle, p.Direction)
	laps := max(p.Laps, 1)
	b.route(concat(seq(1, "Start"), loop(laps, "1", "2", "3"), seq(laps, "Finish")))
	return b.done(TopologyTriangle)
}

type olympicTopology struct{}

func (olympicTopology) ID() string     { return TopologyOlympic }
func (olympicTopology) Schema() Schema { return triangleSchema() }

func (olympicTopology) Defaults() Params {
	return OlympicParams{Base: defaultBase, WingAngle: 45, Direction: DirectionPort, Laps: 1}
}

func (t olympicTopology) Decode(raw map[string]any) (Params, error) {
	return decodeInto(t.Defaults().(OlympicParams), raw)
}

func (olympicTopology) Draw(origin geo.Point, params Params) Rendered {
	p, ok := params.(OlympicParams)
	if !ok || !origin.Valid() || !finite(p.Axis, p.DistanceNm, p.StartLineM, p.WingAngle) {
		return Rendered{}
	}
	b := newBuilder()
	triangleMarks(b, origin, p.Base, p.WingAngle, p.Direction)
	laps := max(p.Laps, 1)
	b.route(concat(seq(1, "Start"), loop(laps, "1", "2", "3", "1", "3"), seq(laps, "Finish")))
	return b.done(TopologyOlympic)
}
