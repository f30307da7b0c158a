// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/relabs-tech/signalboat/internal/config"
	"github.com/relabs-tech/signalboat/internal/course"
	"github.com/relabs-tech/signalboat/internal/gps"
	"github.com/relabs-tech/signalboat/internal/health"
	"github.com/relabs-tech/signalboat/internal/protocol"
	"github.com/relabs-tech/signalboat/internal/roster"
)

// ErrReadOnly is returned by views that only listen.
var ErrReadOnly = errors.New("read-only view")

// noGPS stands in for a location source on nodes without one.
type noGPS struct{}

func (noGPS) Status() gps.Status { return gps.Status{OK: true} }

// Spectator follows a race without publishing anything: a shore display
// or a dashboard. It has no GPS and cannot change the course.
type Spectator struct {
	raceID  string
	reg     *course.Registry
	roster  *roster.Roster
	monitor *health.Monitor
	sub     *protocol.Subscriber
}

// NewSpectator wires a listener on raceID.
func NewSpectator(raceID string, reg *course.Registry, bus Bus, expiry time.Duration, th health.Thresholds, probe func(context.Context) bool) *Spectator {
	s := &Spectator{
		raceID: raceID,
		reg:    reg,
		roster: roster.New(expiry),
	}
	s.sub = protocol.NewSubscriber(bus, protocol.Normalizer{Registry: reg}, raceID, s.roster.Submit)
	s.monitor = health.NewMonitor(bus, noGPS{}, s.roster, true, th, probe)
	return s
}

func (s *Spectator) RaceID() string             { return s.raceID }
func (s *Spectator) Role() protocol.Role        { return protocol.RoleObserver }
func (s *Spectator) Registry() *course.Registry { return s.reg }
func (s *Spectator) Roster() []roster.Record    { return s.roster.Snapshot() }
func (s *Spectator) Health() health.Status      { return s.monitor.Status(time.Now()) }
func (s *Spectator) AdminConflict() bool        { return s.roster.AdminConflict(time.Now()) }

func (s *Spectator) Course() (course.Spec, bool) {
	spec, _, ok := s.roster.Course()
	return spec, ok
}

// Rendered draws the last heard course at the signal boat's last position.
func (s *Spectator) Rendered() course.Rendered {
	spec, ok := s.Course()
	if !ok {
		return course.Rendered{}
	}
	admin, ok := s.roster.Admin()
	if !ok {
		return course.Rendered{}
	}
	return s.reg.Render(admin.Position, spec)
}

func (s *Spectator) SetCourse(context.Context, string, map[string]any) (course.Spec, error) {
	return course.Spec{}, ErrReadOnly
}

// Run listens until ctx is done.
func (s *Spectator) Run(ctx context.Context) error {
	if err := s.sub.Start(); err != nil {
		return err
	}
	defer s.sub.Stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.roster.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.monitor.Run(ctx)
	}()
	wg.Wait()
	return nil
}

// RunWeb serves the race state of RACE_ID over HTTP, listening only.
func RunWeb() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	if cfg.RaceID == "" {
		return fmt.Errorf("RACE_ID is required for the web viewer")
	}
	if cfg.WebServerPort <= 0 {
		return fmt.Errorf("WEB_SERVER_PORT must be set for the web viewer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := newBus(cfg, "web-"+protocol.NewParticipantID())
	defer bus.Close()

	pcfg := participantConfig(cfg, protocol.RoleObserver)
	s := NewSpectator(cfg.RaceID, course.Builtin(), bus, pcfg.RosterExpiry, pcfg.Health, pcfg.Probe)
	bus.Connect()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.Run(ctx); err != nil {
			log.Printf("web: listener error: %v", err)
			stop()
		}
	}()

	err := serveWeb(ctx, s)
	stop()
	wg.Wait()
	return err
}
