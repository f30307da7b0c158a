// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"math"
	"time"

	"github.com/relabs-tech/signalboat/internal/geo"
)

// Reading is a raw sample from a location source, before filtering.
type Reading struct {
	Lat       float64
	Lng       float64
	AccuracyM float64  // horizontal accuracy estimate, meters
	Heading   *float64 // degrees true, when the device reports one
	Speed     *float64 // m/s
	Time      time.Time
}

// Point returns the reading's coordinate.
func (r Reading) Point() geo.Point {
	return geo.Point{Lat: r.Lat, Lng: r.Lng}
}

// Position is an accepted, filtered fix suitable for JSON and MQTT. It is
// never modified after the tracker emits it.
type Position struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	AccuracyM float64   `json:"accuracy_m"`
	Heading   *float64  `json:"heading,omitempty"` // degrees true
	Speed     *float64  `json:"speed,omitempty"`   // m/s
	Timestamp time.Time `json:"ts"`
}

// Point returns the position's coordinate.
func (p Position) Point() geo.Point {
	return geo.Point{Lat: p.Lat, Lng: p.Lng}
}

// HeadingOr returns the heading, or def when there is none.
func (p Position) HeadingOr(def float64) float64 {
	if p.Heading == nil {
		return def
	}
	return *p.Heading
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func ptr(v float64) *float64 { return &v }
