// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
)

const (
	knotsToMS = 0.514444
	// uereMeters turns HDOP into a rough horizontal accuracy.
	uereMeters = 5.0
	// below this speed the RMC course is noise
	minCourseSpeedKnots = 0.5
)

// NMEASource reads a serial GNSS receiver. Position, course and speed
// come from RMC; accuracy is estimated from the GGA HDOP.
type NMEASource struct {
	PortName string // /dev/serial0, /dev/ttyAMA0, /dev/ttyUSB0, ...
	BaudRate uint

	fresh chan Reading
}

// NewNMEASource creates a source for the given serial port.
func NewNMEASource(port string, baud uint) *NMEASource {
	return &NMEASource{PortName: port, BaudRate: baud, fresh: make(chan Reading, 1)}
}

// Run opens the port and streams readings until ctx is done or the port
// fails.
func (s *NMEASource) Run(ctx context.Context, out chan<- Reading) error {
	opts := serial.OpenOptions{
		PortName:              s.PortName,
		BaudRate:              s.BaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.PortName, err)
	}
	log.Printf("gps: serial port opened on %s at %d baud", opts.PortName, opts.BaudRate)

	// closing the port unblocks the reader on cancel
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer func() {
		if stop() {
			port.Close()
		}
	}()

	reader := bufio.NewReader(port)
	var dec nmeaDecoder
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read %s: %w", s.PortName, err)
		}
		r, ok := dec.feed(line, time.Now())
		if !ok {
			continue
		}
		s.publishFresh(r)
		select {
		case out <- r:
		case <-ctx.Done():
			return nil
		}
	}
}

// Once waits for the next reading decoded by Run.
func (s *NMEASource) Once(ctx context.Context) (Reading, error) {
	select {
	case r := <-s.fresh:
		return r, nil
	case <-ctx.Done():
		return Reading{}, fmt.Errorf("no NMEA fix from %s: %w", s.PortName, ctx.Err())
	}
}

func (s *NMEASource) publishFresh(r Reading) {
	select {
	case <-s.fresh:
	default:
	}
	select {
	case s.fresh <- r:
	default:
	}
}

// nmeaDecoder accumulates GGA quality and emits one reading per valid RMC.
type nmeaDecoder struct {
	hdop    float64
	haveGGA bool
}

func (d *nmeaDecoder) feed(line string, now time.Time) (Reading, bool) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return Reading{}, false
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		// noisy receivers emit partial sentences
		return Reading{}, false
	}

	switch sentence.DataType() {
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		if m.FixQuality == nmea.Invalid {
			d.haveGGA = false
			return Reading{}, false
		}
		d.hdop = m.HDOP
		d.haveGGA = true

	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		if m.Validity != nmea.ValidRMC || !d.haveGGA {
			return Reading{}, false
		}
		r := Reading{
			Lat:       m.Latitude,
			Lng:       m.Longitude,
			AccuracyM: d.hdop * uereMeters,
			Speed:     ptr(m.Speed * knotsToMS),
			Time:      now,
		}
		if m.Speed >= minCourseSpeedKnots {
			r.Heading = ptr(m.Course)
		}
		return r, true

	default:
		// GSA, GSV, VTG, ... carry nothing we use
	}
	return Reading{}, false
}
