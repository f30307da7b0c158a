// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net"
	"time"
)

// tpvMessage is the subset of a gpsd TPV report we read.
type tpvMessage struct {
	Class string   `json:"class"`
	Mode  int      `json:"mode"`
	Lat   float64  `json:"lat"`
	Lon   float64  `json:"lon"`
	Track *float64 `json:"track"`
	Speed *float64 `json:"speed"` // m/s
	Eph   *float64 `json:"eph"`
	Epx   *float64 `json:"epx"`
	Epy   *float64 `json:"epy"`
}

// GPSDSource reads TPV reports from a gpsd daemon over TCP.
type GPSDSource struct {
	Addr string
}

// NewGPSDSource creates a source for gpsd at addr (host:port).
func NewGPSDSource(addr string) *GPSDSource {
	return &GPSDSource{Addr: addr}
}

func (s *GPSDSource) dial(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.Addr)
	if err != nil {
		return nil, fmt.Errorf("gpsd connect %s: %w", s.Addr, err)
	}
	if _, err := conn.Write([]byte("?WATCH={\"enable\":true,\"json\":true}\n")); err != nil {
		conn.Close()
		return nil, fmt.Errorf("gpsd watch: %w", err)
	}
	return conn, nil
}

// Run streams TPV fixes until ctx is done or the connection drops.
func (s *GPSDSource) Run(ctx context.Context, out chan<- Reading) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		if stop() {
			conn.Close()
		}
	}()
	log.Printf("gps: connected to gpsd at %s", s.Addr)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		r, ok := decodeTPV(scanner.Bytes(), time.Now())
		if !ok {
			continue
		}
		select {
		case out <- r:
		case <-ctx.Done():
			return nil
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("gpsd read: %w", err)
	}
	return fmt.Errorf("gpsd at %s closed the connection", s.Addr)
}

// Once opens a short-lived connection and returns the first usable fix.
func (s *GPSDSource) Once(ctx context.Context) (Reading, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return Reading{}, err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if r, ok := decodeTPV(scanner.Bytes(), time.Now()); ok {
			return r, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return Reading{}, fmt.Errorf("gpsd read: %w", err)
	}
	return Reading{}, fmt.Errorf("gpsd at %s sent no fix", s.Addr)
}

// decodeTPV turns a 2D/3D TPV line into a reading.
func decodeTPV(line []byte, now time.Time) (Reading, bool) {
	var msg tpvMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return Reading{}, false
	}
	if msg.Class != "TPV" || msg.Mode < 2 {
		return Reading{}, false
	}

	acc := math.NaN()
	switch {
	case msg.Epx != nil && msg.Epy != nil:
		acc = math.Max(*msg.Epx, *msg.Epy)
	case msg.Eph != nil:
		acc = *msg.Eph
	}
	if math.IsNaN(acc) {
		return Reading{}, false
	}

	r := Reading{
		Lat:       msg.Lat,
		Lng:       msg.Lon,
		AccuracyM: acc,
		Speed:     msg.Speed,
		Time:      now,
	}
	if msg.Track != nil && msg.Speed != nil && *msg.Speed >= minCourseSpeedKnots*knotsToMS {
		r.Heading = msg.Track
	}
	return r, true
}
