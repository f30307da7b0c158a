// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package course turns a small parameter set into race marks and legs.
//
// Every topology is a fixed chain of geo.DestinationPoint projections
// starting at the signal boat. Draw never reads or writes anything
// outside its arguments, so two devices holding the same (origin, Spec)
// always render the same course.
package course

import (
	"encoding/json"
	"math"

	"github.com/relabs-tech/signalboat/internal/geo"
)

// Mark is a labeled point of the course.
type Mark struct {
	Label string `json:"label"`
	geo.Point
}

// LineKind says what a rendered segment represents.
type LineKind string

const (
	LineStart  LineKind = "start"
	LineFinish LineKind = "finish"
	LineGate   LineKind = "gate"
	LineLeg    LineKind = "leg"
)

// Line is a segment between two labeled points. Lap is 0 for lines that
// are not part of the sailed route (start line, gates).
type Line struct {
	Kind LineKind  `json:"kind"`
	From string    `json:"from"`
	To   string    `json:"to"`
	Lap  int       `json:"lap"`
	A    geo.Point `json:"a"`
	B    geo.Point `json:"b"`
}

// Rendered is the output of a topology. It is replaced as a whole, never
// patched.
type Rendered struct {
	Topology string `json:"topology"`
	Marks    []Mark `json:"marks"`
	Lines    []Line `json:"lines"`
}

// Empty reports whether nothing was drawn.
func (r Rendered) Empty() bool {
	return len(r.Marks) == 0 && len(r.Lines) == 0
}

// Mark looks up a mark by label.
func (r Rendered) Mark(label string) (Mark, bool) {
	for _, m := range r.Marks {
		if m.Label == label {
			return m, true
		}
	}
	return Mark{}, false
}

// Params is implemented by one concrete record per topology.
type Params interface {
	Topology() string
}

// Topology is a pluggable course shape.
type Topology interface {
	ID() string
	Schema() Schema
	Defaults() Params
	// Decode overlays already validated raw values on the defaults.
	Decode(raw map[string]any) (Params, error)
	// Draw must be pure: same inputs, same output. Invalid input yields
	// an empty Rendered.
	Draw(origin geo.Point, p Params) Rendered
}

// Spec is the shared course state: a topology id and its params record.
type Spec struct {
	TopologyID string
	Params     Params
}

// NewSpec wraps a params record.
func NewSpec(p Params) Spec {
	return Spec{TopologyID: p.Topology(), Params: p}
}

type wireSpec struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
}

// MarshalJSON writes the {type, params} wire shape.
func (s Spec) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireSpec{Type: s.TopologyID, Params: Encode(s.Params)})
}

// Map returns the params as a generic map, as published on the wire.
func (s Spec) Map() map[string]any {
	return Encode(s.Params)
}

// Encode flattens a params record into a map of JSON scalars.
func Encode(p Params) map[string]any {
	if p == nil {
		return nil
	}
	buf, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	out := map[string]any{}
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil
	}
	return out
}

func decodeInto[P Params](defaults P, raw map[string]any) (Params, error) {
	p := defaults
	if len(raw) == 0 {
		return p, nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(buf, &p); err != nil {
		return nil, err
	}
	return p, nil
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// side maps a rounding direction to the sign of the perpendicular offset.
// Port rounding puts offsets to the left of the upwind axis.
func side(direction string) float64 {
	if direction == DirectionStarboard {
		return 1
	}
	return -1
}

// project is DestinationPoint that accepts signed distances.
func project(p geo.Point, bearing, dist float64) geo.Point {
	if dist < 0 {
		return geo.DestinationPoint(p, bearing+180, -dist)
	}
	return geo.DestinationPoint(p, bearing, dist)
}

// gateCenterDistance converts the distance d from a reference point to each
// gate mark into the signed along-axis distance of the gate center. A gate
// narrower than its own width collapses onto the reference point.
func gateCenterDistance(d, h float64) float64 {
	c := math.Sqrt(math.Max(0, d*d-h*h))
	if d < 0 {
		return -c
	}
	return c
}

type stop struct {
	label string
	lap   int
}

// builder accumulates marks and lines in draw order.
type builder struct {
	marks  []Mark
	lines  []Line
	points map[string]geo.Point
}

func newBuilder() *builder {
	return &builder{points: map[string]geo.Point{}}
}

func (b *builder) mark(label string, p geo.Point) geo.Point {
	b.marks = append(b.marks, Mark{Label: label, Point: p})
	b.points[label] = p
	return p
}

// waypoint names a routing point that is not a physical mark.
func (b *builder) waypoint(label string, p geo.Point) geo.Point {
	b.points[label] = p
	return p
}

func (b *builder) line(kind LineKind, from, to string, lap int) {
	b.lines = append(b.lines, Line{Kind: kind, From: from, To: to, Lap: lap, A: b.points[from], B: b.points[to]})
}

// startLine places the signal boat at origin and the pin to port of the
// axis, and returns the line midpoint.
func (b *builder) startLine(origin geo.Point, axis, length float64) geo.Point {
	b.mark("SB", origin)
	pin := b.mark("Pin", geo.DestinationPoint(origin, axis+270, length))
	b.line(LineStart, "SB", "Pin", 0)
	mid := geo.Midpoint(origin, pin)
	b.waypoint("Start", mid)
	b.waypoint("Finish", mid)
	return mid
}

// gate places a pair of marks at distance d from ref along axis. The
// marks are named <name>s and <name>p after the side they fall on for a
// boat sailing through on heading; the center becomes waypoint name.
func (b *builder) gate(name string, ref geo.Point, axis, d, width, heading float64) geo.Point {
	h := width / 2
	center := project(ref, axis, gateCenterDistance(d, h))
	b.mark(name+"s", geo.DestinationPoint(center, heading+90, h))
	b.mark(name+"p", geo.DestinationPoint(center, heading-90, h))
	b.waypoint(name, center)
	b.line(LineGate, name+"s", name+"p", 0)
	return center
}

// route emits one leg per consecutive pair of stops.
func (b *builder) route(stops []stop) {
	for i := 1; i < len(stops); i++ {
		b.line(LineLeg, stops[i-1].label, stops[i].label, stops[i].lap)
	}
}

func (b *builder) done(id string) Rendered {
	return Rendered{Topology: id, Marks: b.marks, Lines: b.lines}
}

// loop repeats the given labels n times, numbering laps from 1.
func loop(n int, labels ...string) []stop {
	out := make([]stop, 0, n*len(labels))
	for lap := 1; lap <= n; lap++ {
		for _, l := range labels {
			out = append(out, stop{label: l, lap: lap})
		}
	}
	return out
}

func seq(lap int, labels ...string) []stop {
	out := make([]stop, 0, len(labels))
	for _, l := range labels {
		out = append(out, stop{label: l, lap: lap})
	}
	return out
}

func concat(parts ...[]stop) []stop {
	var out []stop
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
