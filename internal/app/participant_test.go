// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/signalboat/internal/broker"
	"github.com/relabs-tech/signalboat/internal/config"
	"github.com/relabs-tech/signalboat/internal/course"
	"github.com/relabs-tech/signalboat/internal/geo"
	"github.com/relabs-tech/signalboat/internal/gps"
	"github.com/relabs-tech/signalboat/internal/health"
	"github.com/relabs-tech/signalboat/internal/protocol"
	"github.com/relabs-tech/signalboat/internal/store"
)

var harbour = geo.Point{Lat: 22.3193, Lng: 114.1694}

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type handlerEntry struct {
	filter string
	h      broker.Handler
}

// fakeBus is a connected in-process broker. Published messages are not
// looped back; tests inject inbound traffic with deliver.
type fakeBus struct {
	mu       sync.Mutex
	sent     []published
	handlers []*handlerEntry
}

func (f *fakeBus) Publish(topic string, payload []byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{topic, append([]byte(nil), payload...), retained})
	return nil
}

func (f *fakeBus) Subscribe(filter string, h broker.Handler) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &handlerEntry{filter: filter, h: h}
	f.handlers = append(f.handlers, e)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, x := range f.handlers {
			if x == e {
				f.handlers = append(f.handlers[:i], f.handlers[i+1:]...)
				return
			}
		}
	}, nil
}

func (f *fakeBus) State() (broker.State, error) { return broker.Connected, nil }

func (f *fakeBus) OnStateChange(func(broker.State, error)) func() { return func() {} }

func (f *fakeBus) subscribed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *fakeBus) deliver(topic string, payload []byte) {
	f.mu.Lock()
	var hs []broker.Handler
	for _, e := range f.handlers {
		if topicMatches(e.filter, topic) {
			hs = append(hs, e.h)
		}
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(topic, payload)
	}
}

func (f *fakeBus) last(topic string) (published, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].topic == topic {
			return f.sent[i], true
		}
	}
	return published{}, false
}

func topicMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) || (f != "+" && f != tp[i]) {
			return false
		}
	}
	return len(fp) == len(tp)
}

// steadySource reports one good fix at harbour and then goes quiet.
type steadySource struct{}

func (steadySource) Run(ctx context.Context, out chan<- gps.Reading) error {
	select {
	case out <- gps.Reading{Lat: harbour.Lat, Lng: harbour.Lng, AccuracyM: 4, Time: time.Now()}:
	case <-ctx.Done():
	}
	<-ctx.Done()
	return nil
}

func (steadySource) Once(ctx context.Context) (gps.Reading, error) {
	return gps.Reading{Lat: harbour.Lat, Lng: harbour.Lng, AccuracyM: 4, Time: time.Now()}, nil
}

func testConfig(role protocol.Role) ParticipantConfig {
	id := "obs-1"
	pub := protocol.ObserverPublisherConfig("R1", id)
	if role == protocol.RoleAdmin {
		id = "sb-1"
		pub = protocol.AdminPublisherConfig("R1", id)
	}
	return ParticipantConfig{
		Role:            role,
		RaceID:          "R1",
		ID:              id,
		Topology:        course.TopologyWindwardLeeward,
		Tick:            20 * time.Millisecond,
		Publisher:       pub,
		CourseHeartbeat: 15 * time.Second,
		CourseExpiry:    60 * time.Second,
		Acquirer:        gps.DefaultAcquirerConfig(),
		RosterExpiry:    60 * time.Second,
		Health:          health.DefaultThresholds(),
	}
}

func loadTestConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signalboat_config.txt")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func runParticipantAsync(t *testing.T, p *Participant) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	return cancel, done
}

func TestSignalBoatPublishesAndClearsOnExit(t *testing.T) {
	bus := &fakeBus{}
	p := NewParticipant(testConfig(protocol.RoleAdmin), course.Builtin(), bus, steadySource{}, nil)
	cancel, done := runParticipantAsync(t, p)

	presence := protocol.PresenceTopic("R1", protocol.RoleAdmin, "sb-1")
	require.Eventually(t, func() bool {
		_, ok := bus.last(presence)
		return ok
	}, 3*time.Second, 10*time.Millisecond)

	msg, _ := bus.last(presence)
	assert.True(t, msg.retained)
	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.payload, &body))
	assert.Equal(t, "sb-1", body["id"])
	assert.Contains(t, body, "course")

	require.Eventually(t, func() bool {
		_, ok := bus.last(protocol.CourseTopic("R1"))
		return ok
	}, time.Second, 10*time.Millisecond)

	assert.False(t, p.Rendered().Empty())

	cancel()
	require.NoError(t, <-done)
	msg, _ = bus.last(presence)
	assert.Empty(t, msg.payload, "presence cleared on exit")
	assert.Zero(t, bus.subscribed())
}

func TestSignalBoatSetCourse(t *testing.T) {
	repo := store.NewMemoryRepository()
	p := NewParticipant(testConfig(protocol.RoleAdmin), course.Builtin(), &fakeBus{}, steadySource{}, repo)
	ctx := context.Background()

	spec, err := p.SetCourse(ctx, course.TopologyTriangle, map[string]any{"axis": 45.0})
	require.NoError(t, err)
	assert.Equal(t, course.TopologyTriangle, spec.TopologyID)

	got, ok := p.Course()
	require.True(t, ok)
	assert.Equal(t, course.TopologyTriangle, got.TopologyID)

	saved, err := repo.Load(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, course.TopologyTriangle, saved.Topology)
	assert.EqualValues(t, 45, saved.Params["axis"])

	_, err = p.SetCourse(ctx, "nope", nil)
	assert.ErrorIs(t, err, course.ErrUnknownTopology)
	_, err = p.SetCourse(ctx, course.TopologySimple, map[string]any{"distanceNm": 99.0})
	assert.ErrorIs(t, err, course.ErrInvalidParams)

	got, _ = p.Course()
	assert.Equal(t, course.TopologyTriangle, got.TopologyID, "rejected input keeps the old course")
}

func TestSignalBoatRestoresSavedCourse(t *testing.T) {
	repo := store.NewMemoryRepository()
	require.NoError(t, repo.Save(context.Background(), store.Settings{
		RaceID:   "R1",
		Topology: course.TopologySlalom,
		Params:   map[string]any{"axis": 90.0},
	}))
	p := NewParticipant(testConfig(protocol.RoleAdmin), course.Builtin(), &fakeBus{}, steadySource{}, repo)
	require.NoError(t, p.loadCourse(context.Background()))

	spec, ok := p.Course()
	require.True(t, ok)
	assert.Equal(t, course.TopologySlalom, spec.TopologyID)
	assert.EqualValues(t, 90, spec.Map()["axis"])
}

func TestSignalBoatFallsBackToDefaults(t *testing.T) {
	repo := store.NewMemoryRepository()
	require.NoError(t, repo.Save(context.Background(), store.Settings{RaceID: "R1", Topology: "gone"}))
	p := NewParticipant(testConfig(protocol.RoleAdmin), course.Builtin(), &fakeBus{}, steadySource{}, repo)
	require.NoError(t, p.loadCourse(context.Background()))

	spec, ok := p.Course()
	require.True(t, ok)
	assert.Equal(t, course.TopologyWindwardLeeward, spec.TopologyID)
}

func TestSignalBoatEchoesKeepDataFresh(t *testing.T) {
	p := NewParticipant(testConfig(protocol.RoleAdmin), course.Builtin(), &fakeBus{}, steadySource{}, nil)
	t0 := time.Unix(1_700_000_000, 0)

	// an observer came and went, then only our own heartbeat is heard
	p.receive(protocol.Event{Kind: protocol.Upsert, Key: "obs-9", Role: protocol.RoleObserver,
		PublisherID: "obs-9", Position: harbour, ReceivedAt: t0})
	p.receive(protocol.Event{Kind: protocol.Clear, Key: "obs-9", ReceivedAt: t0.Add(time.Second)})

	echo := t0.Add(45 * time.Second)
	p.receive(protocol.Event{Kind: protocol.Upsert, Key: protocol.AdminKey, Role: protocol.RoleAdmin,
		PublisherID: "sb-1", Position: harbour, ReceivedAt: echo})
	assert.Equal(t, echo, p.roster.LastInboundAt())
	_, ok := p.roster.Get(protocol.AdminKey)
	assert.False(t, ok, "echo is not applied")

	assert.NotEqual(t, health.DataStale, p.monitor.Status(echo.Add(20*time.Second)).Code)
	assert.Equal(t, health.DataStale, p.monitor.Status(echo.Add(31*time.Second)).Code,
		"silence after the echo still goes stale")
}

func TestObserverCannotSetCourse(t *testing.T) {
	p := NewParticipant(testConfig(protocol.RoleObserver), course.Builtin(), &fakeBus{}, steadySource{}, nil)
	_, err := p.SetCourse(context.Background(), course.TopologySimple, nil)
	assert.ErrorIs(t, err, ErrNotAdmin)
}

func TestObserverFollowsSignalBoat(t *testing.T) {
	bus := &fakeBus{}
	p := NewParticipant(testConfig(protocol.RoleObserver), course.Builtin(), bus, steadySource{}, nil)
	cancel, done := runParticipantAsync(t, p)
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return bus.subscribed() == len(protocol.Filters("R1")) },
		time.Second, 5*time.Millisecond)

	now := time.Now()
	body := map[string]any{
		"id":     "sb-1",
		"role":   "admin",
		"lat":    harbour.Lat,
		"lng":    harbour.Lng,
		"course": map[string]any{"type": course.TopologySimple, "params": map[string]any{"axis": 180.0}},
		"ts":     now.UnixMilli(),
		"exp":    now.Add(time.Minute).UnixMilli(),
	}
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	bus.deliver(protocol.PresenceTopic("R1", protocol.RoleAdmin, ""), payload)

	require.Eventually(t, func() bool {
		_, ok := p.Course()
		return ok
	}, time.Second, 5*time.Millisecond)

	spec, _ := p.Course()
	assert.Equal(t, course.TopologySimple, spec.TopologyID)
	origin, ok := p.Origin()
	require.True(t, ok)
	assert.InDelta(t, harbour.Lat, origin.Lat, 1e-9)

	r := p.Rendered()
	sb, ok := r.Mark("SB")
	require.True(t, ok)
	assert.InDelta(t, harbour.Lng, sb.Lng, 1e-9)

	// own presence is published under our id and never echoed into the roster
	require.Eventually(t, func() bool {
		_, ok := bus.last(protocol.PresenceTopic("R1", protocol.RoleObserver, "obs-1"))
		return ok
	}, 3*time.Second, 10*time.Millisecond)
	own, _ := bus.last(protocol.PresenceTopic("R1", protocol.RoleObserver, "obs-1"))
	bus.deliver(own.topic, own.payload)
	time.Sleep(50 * time.Millisecond)
	for _, rec := range p.Roster() {
		assert.NotEqual(t, "obs-1", rec.ID)
	}
	assert.Len(t, p.Roster(), 1)
}

func TestParticipantConfigFromFile(t *testing.T) {
	cfg := loadTestConfig(t, "ROLE=admin\nMQTT_BROKER=tcp://localhost:1883\nGPS_SOURCE=mock\nSYNC_PUBLISH_LEGACY=true\n")

	pc := participantConfig(cfg, protocol.RoleAdmin)
	assert.Len(t, pc.RaceID, 6, "a room code is generated")
	assert.NotEmpty(t, pc.ID)
	assert.Equal(t, protocol.RoleAdmin, pc.Publisher.Role)
	assert.Equal(t, 15*time.Second, pc.Publisher.Heartbeat)
	assert.True(t, pc.Publisher.Legacy)
	assert.Equal(t, 30.0, pc.Acquirer.Tracker.MaxAccuracyM)
	assert.Equal(t, 55*time.Second, pc.Health.RemoteAlert)

	obs := participantConfig(cfg, protocol.RoleObserver)
	assert.Equal(t, 25*time.Second, obs.Publisher.Heartbeat)
}

func TestSignalBoatKeepsRaceAndCourseAcrossRestart(t *testing.T) {
	cfg := loadTestConfig(t, "ROLE=admin\nMQTT_BROKER=tcp://localhost:1883\nGPS_SOURCE=mock\n")
	require.Empty(t, cfg.RaceID)
	repo := store.NewMemoryRepository()
	ctx := context.Background()

	start := func() *Participant {
		pc, err := signalBoatConfig(ctx, cfg, repo)
		require.NoError(t, err)
		p := NewParticipant(pc, course.Builtin(), &fakeBus{}, steadySource{}, repo)
		require.NoError(t, p.loadCourse(ctx))
		return p
	}

	first := start()
	assert.Len(t, first.RaceID(), 6)
	_, err := first.SetCourse(ctx, course.TopologyTriangle, map[string]any{"axis": 45.0})
	require.NoError(t, err)

	second := start()
	assert.Equal(t, first.RaceID(), second.RaceID(), "room code survives the restart")
	assert.Equal(t, second.RaceID(), second.cfg.Publisher.RaceID, "published under the resumed code")
	spec, ok := second.Course()
	require.True(t, ok)
	assert.Equal(t, course.TopologyTriangle, spec.TopologyID)
	assert.EqualValues(t, 45, spec.Map()["axis"])
}

func TestSignalBoatConfiguredRaceWins(t *testing.T) {
	cfg := loadTestConfig(t, "ROLE=admin\nRACE_ID=K7QX2M\nMQTT_BROKER=tcp://localhost:1883\nGPS_SOURCE=mock\n")
	repo := store.NewMemoryRepository()
	require.NoError(t, repo.SaveRaceID(context.Background(), "OLD123"))

	pc, err := signalBoatConfig(context.Background(), cfg, repo)
	require.NoError(t, err)
	assert.Equal(t, "K7QX2M", pc.RaceID)
}

func TestCheckRole(t *testing.T) {
	admin := loadTestConfig(t, "ROLE=admin\nMQTT_BROKER=tcp://localhost:1883\nGPS_SOURCE=mock\n")
	assert.NoError(t, checkRole(admin, protocol.RoleAdmin))
	assert.ErrorContains(t, checkRole(admin, protocol.RoleObserver), "ROLE=admin")

	observer := loadTestConfig(t, "ROLE=observer\nMQTT_BROKER=tcp://localhost:1883\nGPS_SOURCE=mock\n")
	assert.ErrorContains(t, checkRole(observer, protocol.RoleAdmin), "set ROLE=admin")
	assert.ErrorContains(t, checkRole(observer, protocol.RoleObserver), "RACE_ID is required")

	joined := loadTestConfig(t, "ROLE=observer\nRACE_ID=K7QX2M\nMQTT_BROKER=tcp://localhost:1883\nGPS_SOURCE=mock\n")
	assert.NoError(t, checkRole(joined, protocol.RoleObserver))
}
