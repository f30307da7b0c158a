// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"context"
	"math"
	"time"

	"github.com/relabs-tech/signalboat/internal/geo"
)

// MockSource simulates a boat swinging slowly around a mooring.
type MockSource struct {
	Center   geo.Point
	RadiusM  float64
	Interval time.Duration

	start time.Time
}

// NewMockSource creates a mock source that generates smooth changing
// positions around center.
func NewMockSource(center geo.Point) *MockSource {
	return &MockSource{Center: center, RadiusM: 40, Interval: time.Second, start: time.Now()}
}

func (m *MockSource) at(now time.Time) Reading {
	elapsed := now.Sub(m.start).Seconds()
	bearing := math.Mod(elapsed*3, 360)
	p := geo.DestinationPoint(m.Center, bearing, m.RadiusM)
	speed := 2 * math.Pi * m.RadiusM / 120 // one turn every two minutes
	return Reading{
		Lat:       p.Lat,
		Lng:       p.Lng,
		AccuracyM: 4 + 2*math.Sin(elapsed/7),
		Heading:   ptr(geo.NormalizeBearing(bearing + 90)),
		Speed:     ptr(speed),
		Time:      now,
	}
}

// Run emits one reading per interval.
func (m *MockSource) Run(ctx context.Context, out chan<- Reading) error {
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			select {
			case out <- m.at(t):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Once returns the current simulated reading.
func (m *MockSource) Once(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	return m.at(time.Now()), nil
}
