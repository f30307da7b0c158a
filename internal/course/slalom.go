// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package course

import (
	"fmt"

	"github.com/relabs-tech/signalboat/internal/geo"
)

const TopologySlalom = "slalom"

// SlalomParams describes a run of gates upwind of the start line, each
// shifted sideways in alternation so the sailed path forms an S.
// Direction picks the side of the first gate.
type SlalomParams struct {
	Axis           float64 `json:"axis"`
	StartLineM     float64 `json:"startLineM"`
	GateCount      int     `json:"gateCount"`
	GateSpacingM   float64 `json:"gateSpacingM"`
	LateralOffsetM float64 `json:"lateralOffsetM"`
	GateWidthM     float64 `json:"gateWidthM"`
	Direction      string  `json:"direction"`
}

func (SlalomParams) Topology() string { return TopologySlalom }

type slalomTopology struct{}

func (slalomTopology) ID() string { return TopologySlalom }

func (slalomTopology) Schema() Schema {
	return Schema{
		{Key: "axis", Type: FieldNumber, Min: 0, Max: 359, Step: 1, Unit: "deg"},
		{Key: "startLineM", Type: FieldNumber, Min: 20, Max: 1000, Step: 10, Unit: "m"},
		{Key: "gateCount", Type: FieldInteger, Min: 2, Max: 12, Step: 1},
		{Key: "gateSpacingM", Type: FieldNumber, Min: 50, Max: 1000, Step: 10, Unit: "m"},
		{Key: "lateralOffsetM", Type: FieldNumber, Min: 0, Max: 300, Step: 10, Unit: "m"},
		{Key: "gateWidthM", Type: FieldNumber, Min: 20, Max: 200, Step: 5, Unit: "m"},
		directionField(),
	}
}

func (slalomTopology) Defaults() Params {
	return SlalomParams{
		Axis:           0,
		StartLineM:     100,
		GateCount:      4,
		GateSpacingM:   150,
		LateralOffsetM: 60,
		GateWidthM:     40,
		Direction:      DirectionPort,
	}
}

func (t slalomTopology) Decode(raw map[string]any) (Params, error) {
	return decodeInto(t.Defaults().(SlalomParams), raw)
}

func (slalomTopology) Draw(origin geo.Point, params Params) Rendered {
	p, ok := params.(SlalomParams)
	if !ok || !origin.Valid() || !finite(p.Axis, p.StartLineM, p.GateSpacingM, p.LateralOffsetM, p.GateWidthM) {
		return Rendered{}
	}
	if p.GateCount < 1 {
		return Rendered{}
	}

	b := newBuilder()
	mid := b.startLine(origin, p.Axis, p.StartLineM)

	stops := seq(1, "Start")
	onAxis := mid
	lateral := side(p.Direction) * p.LateralOffsetM
	for i := 1; i <= p.GateCount; i++ {
		onAxis = geo.DestinationPoint(onAxis, p.Axis, p.GateSpacingM)
		center := project(onAxis, p.Axis+90, lateral)
		name := fmt.Sprintf("G%d", i)
		b.gate(name, center, p.Axis, 0, p.GateWidthM, p.Axis)
		stops = append(stops, stop{label: name, lap: 1})
		lateral = -lateral
	}

	// Finish line one spacing past the last gate, back on the axis.
	finish := geo.DestinationPoint(onAxis, p.Axis, p.GateSpacingM)
	h := p.GateWidthM / 2
	b.mark("Fs", geo.DestinationPoint(finish, p.Axis+90, h))
	b.mark("Fp", geo.DestinationPoint(finish, p.Axis-90, h))
	b.line(LineFinish, "Fs", "Fp", 0)
	b.waypoint("Finish", finish)
	stops = append(stops, stop{label: "Finish", lap: 1})

	b.route(stops)
	return b.done(TopologySlalom)
}
