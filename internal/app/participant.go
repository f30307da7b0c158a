// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/signalboat/internal/broker"
	"github.com/relabs-tech/signalboat/internal/config"
	"github.com/relabs-tech/signalboat/internal/course"
	"github.com/relabs-tech/signalboat/internal/gps"
	"github.com/relabs-tech/signalboat/internal/health"
	"github.com/relabs-tech/signalboat/internal/protocol"
	"github.com/relabs-tech/signalboat/internal/roster"
	"github.com/relabs-tech/signalboat/internal/store"
)

// ErrNotAdmin is returned when an observer tries to change the course.
var ErrNotAdmin = errors.New("only the signal boat sets the course")

// Bus is the shared broker connection as the participant uses it.
// *broker.Manager satisfies it.
type Bus interface {
	protocol.Conn
	protocol.SubscribeConn
	health.BrokerState
}

// ParticipantConfig is everything a participant needs besides its
// collaborators.
type ParticipantConfig struct {
	Role            protocol.Role
	RaceID          string
	ID              string
	Topology        string // initial course shape on a signal boat
	Tick            time.Duration
	Publisher       protocol.PublisherConfig
	CourseHeartbeat time.Duration
	CourseExpiry    time.Duration
	Acquirer        gps.AcquirerConfig
	RosterExpiry    time.Duration
	Health          health.Thresholds
	Probe           func(context.Context) bool
}

// participantConfig maps the flat config file onto a participant.
func participantConfig(cfg *config.Config, role protocol.Role) ParticipantConfig {
	return raceParticipantConfig(cfg, role, cfg.RaceID)
}

// raceParticipantConfig is participantConfig for a given race. An empty
// raceID gets a fresh room code.
func raceParticipantConfig(cfg *config.Config, role protocol.Role, raceID string) ParticipantConfig {
	if raceID == "" {
		raceID = protocol.NewRoomCode()
	}
	id := cfg.ParticipantID
	if id == "" {
		id = protocol.NewParticipantID()
	}

	pub := protocol.ObserverPublisherConfig(raceID, id)
	pub.Heartbeat = cfg.ObserverHeartbeat()
	if role == protocol.RoleAdmin {
		pub = protocol.AdminPublisherConfig(raceID, id)
		pub.Heartbeat = cfg.AdminHeartbeat()
	}
	pub.Expiry = cfg.PresenceExpiry()
	pub.Legacy = cfg.SyncPublishLegacy
	pub.LegacyExpiry = cfg.LegacyExpiry()

	acq := gps.DefaultAcquirerConfig()
	acq.Tracker.MaxAccuracyM = cfg.GPSMaxAccuracyM
	acq.Tracker.MaxJumpM = cfg.GPSMaxJumpM
	acq.Tracker.Throttle = cfg.GPSThrottle()
	acq.Tracker.StaleTimeout = cfg.GPSStaleTimeout()
	acq.Tracker.HeadingHysteresis = cfg.HeadingHysteresisDeg
	acq.FallbackInterval = cfg.GPSFallbackInterval()

	return ParticipantConfig{
		Role:            role,
		RaceID:          raceID,
		ID:              id,
		Topology:        cfg.CourseTopology,
		Tick:            time.Second,
		Publisher:       pub,
		CourseHeartbeat: cfg.AdminHeartbeat(),
		CourseExpiry:    cfg.PresenceExpiry(),
		Acquirer:        acq,
		RosterExpiry:    cfg.RosterExpiry(),
		Health: health.Thresholds{
			DataStale:      cfg.DataStale(),
			GPSInaccurateM: cfg.GPSInaccurateM,
			RemoteWarn:     cfg.RemoteWarn(),
			RemoteAlert:    cfg.RemoteAlert(),
		},
		Probe: health.TCPProbe(health.BrokerAddr(cfg.MQTTBroker), 2*time.Second),
	}
}

// Participant is one device on a race: the signal boat (admin) or an
// observer. It owns acquisition, the roster, health, and the publish
// loop; the bus is shared.
type Participant struct {
	cfg  ParticipantConfig
	reg  *course.Registry
	bus  Bus
	repo store.Repository

	acq     *gps.Acquirer
	roster  *roster.Roster
	monitor *health.Monitor
	pub     *protocol.Publisher
	courseB *protocol.CourseBroadcaster
	sub     *protocol.Subscriber

	mu   sync.RWMutex
	spec course.Spec // the signal boat's own course
}

// NewParticipant wires a participant. repo may be nil on an observer.
func NewParticipant(cfg ParticipantConfig, reg *course.Registry, bus Bus, src gps.Source, repo store.Repository) *Participant {
	if repo == nil {
		repo = store.NewMemoryRepository()
	}
	p := &Participant{
		cfg:    cfg,
		reg:    reg,
		bus:    bus,
		repo:   repo,
		acq:    gps.NewAcquirer(src, cfg.Acquirer),
		roster: roster.New(cfg.RosterExpiry),
		pub:    protocol.NewPublisher(bus, cfg.Publisher),
	}
	p.sub = protocol.NewSubscriber(bus, protocol.Normalizer{Registry: reg}, cfg.RaceID, p.receive)
	p.monitor = health.NewMonitor(bus, p.acq, p.roster, cfg.Role == protocol.RoleObserver, cfg.Health, cfg.Probe)
	if cfg.Role == protocol.RoleAdmin {
		p.courseB = protocol.NewCourseBroadcaster(bus, cfg.RaceID, cfg.CourseHeartbeat, cfg.CourseExpiry)
	}
	return p
}

func (p *Participant) RaceID() string             { return p.cfg.RaceID }
func (p *Participant) ID() string                 { return p.cfg.ID }
func (p *Participant) Role() protocol.Role        { return p.cfg.Role }
func (p *Participant) Registry() *course.Registry { return p.reg }

// receive drops our own echoes before they reach the roster. They still
// count as inbound traffic: a lone signal boat hears only itself.
func (p *Participant) receive(ev protocol.Event) {
	p.roster.Touch(ev.ReceivedAt)
	switch ev.Kind {
	case protocol.Upsert:
		if ev.PublisherID == p.cfg.ID {
			return
		}
	case protocol.Clear:
		if (p.cfg.Role == protocol.RoleAdmin && ev.Key == protocol.AdminKey) || ev.Key == p.cfg.ID {
			return
		}
	case protocol.CourseConfig:
		if p.cfg.Role == protocol.RoleAdmin {
			return
		}
	}
	p.roster.Submit(ev)
}

// loadCourse restores the saved course, falling back to the configured
// topology's defaults.
func (p *Participant) loadCourse(ctx context.Context) error {
	saved, err := p.repo.Load(ctx, p.cfg.RaceID)
	if err == nil {
		spec, err := p.reg.DecodeSpec(saved.Topology, saved.Params)
		if err == nil {
			p.setSpec(spec)
			log.Printf("sync: restored %s course for race %s", spec.TopologyID, p.cfg.RaceID)
			return nil
		}
		log.Printf("sync: saved course unusable, using defaults: %v", err)
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Printf("sync: loading saved course: %v", err)
	}

	spec, err := p.reg.DefaultSpec(p.cfg.Topology)
	if err != nil {
		return err
	}
	p.setSpec(spec)
	return nil
}

func (p *Participant) setSpec(spec course.Spec) {
	p.mu.Lock()
	p.spec = spec
	p.mu.Unlock()
}

// SetCourse validates and persists new course params; the next tick
// publishes them.
func (p *Participant) SetCourse(ctx context.Context, topology string, params map[string]any) (course.Spec, error) {
	if p.cfg.Role != protocol.RoleAdmin {
		return course.Spec{}, ErrNotAdmin
	}
	spec, err := p.reg.DecodeSpec(topology, params)
	if err != nil {
		return course.Spec{}, err
	}
	err = p.repo.Save(ctx, store.Settings{
		RaceID:    p.cfg.RaceID,
		Topology:  spec.TopologyID,
		Params:    spec.Map(),
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return course.Spec{}, fmt.Errorf("save course: %w", err)
	}
	p.setSpec(spec)
	log.Printf("sync: course set to %s", spec.TopologyID)
	return spec, nil
}

// Course returns the active course: our own on a signal boat, the last
// one heard otherwise.
func (p *Participant) Course() (course.Spec, bool) {
	if p.cfg.Role == protocol.RoleAdmin {
		p.mu.RLock()
		defer p.mu.RUnlock()
		return p.spec, p.spec.Params != nil
	}
	spec, _, ok := p.roster.Course()
	return spec, ok
}

// Origin is the signal boat's position, which anchors the start line.
func (p *Participant) Origin() (gps.Position, bool) {
	if p.cfg.Role == protocol.RoleAdmin {
		return p.acq.Latest()
	}
	admin, ok := p.roster.Admin()
	if !ok {
		return gps.Position{}, false
	}
	return gps.Position{Lat: admin.Position.Lat, Lng: admin.Position.Lng, Heading: admin.Heading, Timestamp: admin.SentAt}, true
}

// Rendered draws the active course at the signal boat.
func (p *Participant) Rendered() course.Rendered {
	spec, ok := p.Course()
	if !ok {
		return course.Rendered{}
	}
	origin, ok := p.Origin()
	if !ok {
		return course.Rendered{}
	}
	return p.reg.Render(origin.Point(), spec)
}

// Roster returns every peer currently heard.
func (p *Participant) Roster() []roster.Record { return p.roster.Snapshot() }

// Position returns our own latest fix.
func (p *Participant) Position() (gps.Position, bool) { return p.acq.Latest() }

// Health returns the current evaluated status.
func (p *Participant) Health() health.Status { return p.monitor.Status(time.Now()) }

// AdminConflict reports two signal boats on one race.
func (p *Participant) AdminConflict() bool { return p.roster.AdminConflict(time.Now()) }

// Run drives the participant until ctx is cancelled, then tears down.
func (p *Participant) Run(ctx context.Context) error {
	if p.cfg.Role == protocol.RoleAdmin {
		if err := p.loadCourse(ctx); err != nil {
			return err
		}
		log.Printf("sync: signal boat for race %s", p.cfg.RaceID)
	} else {
		log.Printf("sync: observer %s on race %s", p.cfg.ID, p.cfg.RaceID)
	}

	if err := p.sub.Start(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, run := range []func(context.Context){
		p.roster.Run,
		func(ctx context.Context) { p.acq.Run(ctx) },
		p.monitor.Run,
	} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}

	ticker := time.NewTicker(p.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.teardown()
			wg.Wait()
			return nil
		case now := <-ticker.C:
			p.tick(now)
		}
	}
}

func (p *Participant) tick(now time.Time) {
	pos, ok := p.acq.Latest()
	if !ok {
		return
	}
	out := protocol.Outbound{Position: pos.Point(), Heading: pos.Heading}
	var spec course.Spec
	var haveSpec bool
	if p.cfg.Role == protocol.RoleAdmin {
		spec, haveSpec = p.Course()
		if haveSpec {
			out.Course = &spec
		}
	}

	if _, err := p.pub.Tick(now, out); err != nil && !errors.Is(err, broker.ErrNotConnected) {
		log.Printf("sync: publish presence: %v", err)
	}
	if p.courseB != nil && haveSpec {
		if _, err := p.courseB.Tick(now, spec); err != nil && !errors.Is(err, broker.ErrNotConnected) {
			log.Printf("sync: publish course: %v", err)
		}
	}
}

// teardown clears our presence so peers drop us before the expiry. Not
// guaranteed: the connection may already be gone.
func (p *Participant) teardown() {
	if err := p.pub.Clear(); err != nil {
		log.Printf("sync: clear on exit: %v", err)
	}
	p.sub.Stop()
	log.Println("sync: participant stopped")
}
