// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/relabs-tech/signalboat/internal/app"
	"github.com/relabs-tech/signalboat/internal/geo"
)

func main() {
	topology := flag.String("topology", "", "course topology id; empty lists them")
	lat := flag.Float64("lat", 22.3193, "signal boat latitude")
	lng := flag.Float64("lng", 114.1694, "signal boat longitude")
	params := flag.String("params", "", `params as JSON, e.g. {"axis":220,"laps":3}`)
	asGeoJSON := flag.Bool("geojson", false, "print a GeoJSON feature collection")
	flag.Parse()

	opts := app.PreviewOptions{
		Topology: *topology,
		Origin:   geo.Point{Lat: *lat, Lng: *lng},
		GeoJSON:  *asGeoJSON,
	}
	if *params != "" {
		if err := json.Unmarshal([]byte(*params), &opts.Params); err != nil {
			log.Fatalf("invalid -params: %v", err)
		}
	}

	if err := app.RunCoursePreview(os.Stdout, opts); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
