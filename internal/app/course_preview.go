// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/relabs-tech/signalboat/internal/course"
	"github.com/relabs-tech/signalboat/internal/geo"
)

// PreviewOptions selects what RunCoursePreview draws.
type PreviewOptions struct {
	Topology string
	Origin   geo.Point
	Params   map[string]any // overlaid on the topology defaults
	GeoJSON  bool
}

// RunCoursePreview renders one course offline and prints its marks and
// legs, or the GeoJSON feature collection.
func RunCoursePreview(w io.Writer, opts PreviewOptions) error {
	reg := course.Builtin()
	if opts.Topology == "" {
		for _, id := range reg.IDs() {
			fmt.Fprintln(w, id)
		}
		return nil
	}

	spec, err := reg.DecodeSpec(opts.Topology, opts.Params)
	if err != nil {
		return err
	}
	rendered := reg.Render(opts.Origin, spec)
	if rendered.Empty() {
		return fmt.Errorf("nothing rendered at %.5f,%.5f", opts.Origin.Lat, opts.Origin.Lng)
	}

	if opts.GeoJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(course.GeoJSON(rendered))
	}

	params, _ := json.Marshal(spec.Map())
	fmt.Fprintf(w, "%s %s\n", spec.TopologyID, params)
	for _, m := range rendered.Marks {
		fmt.Fprintf(w, "MARK %-6s LAT=%10.6f LNG=%11.6f  %6.0fm @ %5.1f\n",
			m.Label, m.Lat, m.Lng,
			geo.Distance(opts.Origin, m.Point), geo.CalcBearing(opts.Origin, m.Point))
	}
	for _, l := range rendered.Lines {
		lap := ""
		if l.Lap > 0 {
			lap = fmt.Sprintf(" lap %d", l.Lap)
		}
		fmt.Fprintf(w, "%-6s %s -> %s  %6.0fm @ %5.1f%s\n",
			l.Kind, l.From, l.To, geo.Distance(l.A, l.B), geo.CalcBearing(l.A, l.B), lap)
	}
	return nil
}
