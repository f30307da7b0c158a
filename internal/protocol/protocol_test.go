// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/signalboat/internal/broker"
	"github.com/relabs-tech/signalboat/internal/course"
	"github.com/relabs-tech/signalboat/internal/geo"
)

type sent struct {
	topic    string
	payload  []byte
	retained bool
}

type fakeConn struct {
	sent []sent
	err  error
}

func (f *fakeConn) Publish(topic string, payload []byte, retained bool) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{topic, payload, retained})
	return nil
}

var (
	t0     = time.UnixMilli(1_700_000_000_000)
	origin = geo.Point{Lat: 22.3193, Lng: 114.1694}
)

func TestNormalizeCurrentAndLegacyShapes(t *testing.T) {
	cases := []struct {
		name   string
		topic  string
		body   string
		key    string
		role   Role
		legacy bool
	}{
		{"current admin", "race/R1/presence/ADMIN", `{"id":"a1","role":"admin","lat":22.3,"lng":114.1,"ts":1700000000000}`, AdminKey, RoleAdmin, false},
		{"current observer", "race/R1/presence/obs-7", `{"id":"obs-7","role":"observer","lat":22.3,"lng":114.1,"ts":1}`, "obs-7", RoleObserver, false},
		{"legacy admin", "race/R1/location/admin", `{"id":"a1","role":"admin","lat":22.3,"lng":114.1,"ts":1}`, AdminKey, RoleAdmin, true},
		{"legacy observer", "race/R1/location/observer/obs-7", `{"id":"obs-7","lat":22.3,"lng":114.1,"ts":1}`, "obs-7", RoleObserver, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, ok := Normalize(tc.topic, []byte(tc.body), t0)
			require.True(t, ok)
			assert.Equal(t, Upsert, ev.Kind)
			assert.Equal(t, "R1", ev.RaceID)
			assert.Equal(t, tc.key, ev.Key)
			assert.Equal(t, tc.role, ev.Role)
			assert.Equal(t, tc.legacy, ev.Legacy)
			assert.Equal(t, geo.Point{Lat: 22.3, Lng: 114.1}, ev.Position)
			assert.Equal(t, t0, ev.ReceivedAt)
		})
	}
}

func TestNormalizeDropsBadPayloads(t *testing.T) {
	for name, body := range map[string]string{
		"not json":      `{"lat":`,
		"missing lat":   `{"id":"x","lng":1}`,
		"lat as string": `{"id":"x","lat":"22","lng":1}`,
		"out of range":  `{"id":"x","lat":95,"lng":1}`,
		"expired":       `{"id":"x","lat":1,"lng":1,"exp":1699999999999}`,
		"array":         `[1,2]`,
	} {
		_, ok := Normalize("race/R1/presence/x", []byte(body), t0)
		assert.False(t, ok, name)
	}
	_, ok := Normalize("race/R1/unknown/x", []byte(`{"lat":1,"lng":1}`), t0)
	assert.False(t, ok, "unknown topic")
	_, ok = Normalize("other/R1/presence/x", []byte(`{"lat":1,"lng":1}`), t0)
	assert.False(t, ok)
}

func TestNormalizeEmptyPayloadClears(t *testing.T) {
	ev, ok := Normalize("race/R1/presence/obs-7", nil, t0)
	require.True(t, ok)
	assert.Equal(t, Clear, ev.Kind)
	assert.Equal(t, "obs-7", ev.Key)

	_, ok = Normalize("race/R1/course/config", nil, t0)
	assert.False(t, ok)
}

func TestNormalizeAdminCourse(t *testing.T) {
	body := `{"id":"a1","role":"admin","lat":22.3,"lng":114.1,"heading":-10,
		"course":{"type":"windward_leeward","params":{"axis":40,"laps":3}},"ts":1}`
	ev, ok := Normalize("race/R1/presence/ADMIN", []byte(body), t0)
	require.True(t, ok)
	require.NotNil(t, ev.Course)
	assert.Equal(t, course.TopologyWindwardLeeward, ev.Course.TopologyID)
	p := ev.Course.Params.(course.WindwardLeewardParams)
	assert.Equal(t, 40.0, p.Axis)
	assert.Equal(t, 3, p.Laps)
	require.NotNil(t, ev.Heading)
	assert.Equal(t, 350.0, *ev.Heading)

	bad := `{"id":"a1","lat":22.3,"lng":114.1,"course":{"type":"nope","params":{}}}`
	ev, ok = Normalize("race/R1/presence/ADMIN", []byte(bad), t0)
	require.True(t, ok, "position survives a bad course")
	assert.Nil(t, ev.Course)
}

func TestNormalizeCourseConfigShapes(t *testing.T) {
	ev, ok := Normalize("race/R1/course/config", []byte(`{"axis":40,"distance_nm":0.9,"start_line_m":100}`), t0)
	require.True(t, ok)
	assert.Equal(t, CourseConfig, ev.Kind)
	require.NotNil(t, ev.Course)
	assert.Equal(t, course.SimpleParams{Base: course.Base{Axis: 40, DistanceNm: 0.9, StartLineM: 100}}, ev.Course.Params)

	ev, ok = Normalize("race/R1/course/config", []byte(`{"type":"slalom","params":{"gateCount":6}}`), t0)
	require.True(t, ok)
	assert.Equal(t, course.TopologySlalom, ev.Course.TopologyID)

	_, ok = Normalize("race/R1/course/config", []byte(`{"axis":40}`), t0)
	assert.False(t, ok, "incomplete legacy triple")
	_, ok = Normalize("race/R1/course/config", []byte(`{"type":"simple","params":{"axis":400}}`), t0)
	assert.False(t, ok, "out of schema range")
}

func TestPublisherHeartbeatDedup(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, AdminPublisherConfig("R1", "a1"))
	spec := course.NewSpec(course.SimpleParams{Base: course.Base{Axis: 40, DistanceNm: 0.9, StartLineM: 100}})
	out := Outbound{Position: origin, Course: &spec}

	ok, err := p.Tick(t0, out)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = p.Tick(t0.Add(5*time.Second), out)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, conn.sent, 1, "identical state within the heartbeat publishes once")

	ok, _ = p.Tick(t0.Add(15*time.Second), out)
	assert.True(t, ok)
	ok, _ = p.Tick(t0.Add(16*time.Second), out)
	assert.False(t, ok)
	assert.Len(t, conn.sent, 2, "exactly one more after the heartbeat")

	msg := conn.sent[1]
	assert.Equal(t, "race/R1/presence/ADMIN", msg.topic)
	assert.True(t, msg.retained)
	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.payload, &body))
	assert.Equal(t, "admin", body["role"])
	assert.EqualValues(t, t0.Add(15*time.Second).UnixMilli(), body["ts"])
	assert.EqualValues(t, t0.Add(75*time.Second).UnixMilli(), body["exp"])
	assert.Equal(t, "simple", body["course"].(map[string]any)["type"])
}

func TestPublisherMoveDelta(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, ObserverPublisherConfig("R1", "obs-7"))
	p.Tick(t0, Outbound{Position: origin})

	jitter := geo.Point{Lat: origin.Lat + 4e-6, Lng: origin.Lng - 4e-6}
	ok, _ := p.Tick(t0.Add(time.Second), Outbound{Position: jitter})
	assert.False(t, ok, "sub-meter jitter")

	moved := geo.DestinationPoint(origin, 0, 5)
	ok, _ = p.Tick(t0.Add(2*time.Second), Outbound{Position: moved})
	assert.True(t, ok)

	h := 90.0
	ok, _ = p.Tick(t0.Add(3*time.Second), Outbound{Position: moved, Heading: &h})
	assert.True(t, ok, "heading appeared")
	h2 := 90.5
	ok, _ = p.Tick(t0.Add(4*time.Second), Outbound{Position: moved, Heading: &h2})
	assert.False(t, ok, "under the heading delta")
	assert.Equal(t, "race/R1/presence/obs-7", conn.sent[0].topic)
}

func TestPublisherFailedPublishIsRetried(t *testing.T) {
	conn := &fakeConn{err: broker.ErrNotConnected}
	p := NewPublisher(conn, ObserverPublisherConfig("R1", "obs-7"))

	ok, err := p.Tick(t0, Outbound{Position: origin})
	assert.ErrorIs(t, err, broker.ErrNotConnected)
	assert.False(t, ok)

	conn.err = nil
	ok, err = p.Tick(t0.Add(time.Second), Outbound{Position: origin})
	require.NoError(t, err)
	assert.True(t, ok, "hash is only recorded on success")
}

func TestPublisherLegacyMirrorAndClear(t *testing.T) {
	conn := &fakeConn{}
	cfg := ObserverPublisherConfig("R1", "obs-7")
	cfg.Legacy = true
	p := NewPublisher(conn, cfg)

	p.Tick(t0, Outbound{Position: origin})
	require.Len(t, conn.sent, 2)
	assert.Equal(t, "race/R1/location/observer/obs-7", conn.sent[1].topic)
	var body presencePayload
	require.NoError(t, json.Unmarshal(conn.sent[1].payload, &body))
	assert.Equal(t, t0.Add(300*time.Second).UnixMilli(), body.Exp)

	require.NoError(t, p.Clear())
	require.Len(t, conn.sent, 4)
	assert.Empty(t, conn.sent[2].payload)
	assert.True(t, conn.sent[2].retained)

	ok, _ := p.Tick(t0.Add(time.Second), Outbound{Position: origin})
	assert.True(t, ok, "republishes after a clear")

	conn.err = errors.New("down")
	assert.Error(t, p.Clear())
}

func TestPublisherRoundTripThroughNormalize(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, AdminPublisherConfig("R1", "a1"))
	spec := course.NewSpec(course.TriangleParams{Base: course.Base{Axis: 200, DistanceNm: 1, StartLineM: 150}, WingAngle: 45, Direction: course.DirectionStarboard, Laps: 2})
	h := 33.0
	p.Tick(t0, Outbound{Position: origin, Heading: &h, Course: &spec})

	ev, ok := Normalize(conn.sent[0].topic, conn.sent[0].payload, t0.Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, "a1", ev.PublisherID)
	assert.Equal(t, origin, ev.Position)
	assert.Equal(t, t0, ev.SentAt)
	require.NotNil(t, ev.Course)
	assert.Equal(t, spec, *ev.Course)

	_, ok = Normalize(conn.sent[0].topic, conn.sent[0].payload, t0.Add(61*time.Second))
	assert.False(t, ok, "expired after 60 s")
}

func TestCourseBroadcaster(t *testing.T) {
	conn := &fakeConn{}
	b := NewCourseBroadcaster(conn, "R1", 15*time.Second, 60*time.Second)
	spec := course.NewSpec(course.SimpleParams{Base: course.Base{Axis: 10, DistanceNm: 0.5, StartLineM: 80}})

	ok, _ := b.Tick(t0, spec)
	assert.True(t, ok)
	ok, _ = b.Tick(t0.Add(time.Second), spec)
	assert.False(t, ok)

	changed := course.NewSpec(course.SimpleParams{Base: course.Base{Axis: 20, DistanceNm: 0.5, StartLineM: 80}})
	ok, _ = b.Tick(t0.Add(2*time.Second), changed)
	assert.True(t, ok, "change publishes immediately")

	ev, ok := Normalize(conn.sent[1].topic, conn.sent[1].payload, t0.Add(3*time.Second))
	require.True(t, ok)
	assert.Equal(t, CourseConfig, ev.Kind)
	assert.Equal(t, changed, *ev.Course)
}

type fakeSubConn struct {
	handlers map[string]broker.Handler
	removed  []string
}

func (f *fakeSubConn) Subscribe(filter string, h broker.Handler) (func(), error) {
	if f.handlers == nil {
		f.handlers = map[string]broker.Handler{}
	}
	f.handlers[filter] = h
	return func() { f.removed = append(f.removed, filter) }, nil
}

func TestSubscriberRoutesEvents(t *testing.T) {
	conn := &fakeSubConn{}
	var got []Event
	s := NewSubscriber(conn, Normalizer{Registry: course.Builtin()}, "R1", func(ev Event) { got = append(got, ev) })
	s.now = func() time.Time { return t0 }
	require.NoError(t, s.Start())
	assert.Len(t, conn.handlers, 3)

	h := conn.handlers["race/R1/presence/+"]
	h("race/R1/presence/obs-7", []byte(`{"id":"obs-7","lat":1,"lng":2,"ts":1}`))
	h("race/R1/presence/obs-8", []byte(`garbage`))
	conn.handlers["race/R1/location/#"]("race/R1/location/admin", []byte(`{"id":"a1","lat":1,"lng":2}`))
	require.Len(t, got, 2)
	assert.Equal(t, "obs-7", got[0].Key)
	assert.Equal(t, AdminKey, got[1].Key)

	s.Stop()
	assert.Len(t, conn.removed, 3)
}

func TestIDs(t *testing.T) {
	a, b := NewParticipantID(), NewParticipantID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
	code := NewRoomCode()
	assert.Len(t, code, 6)
	assert.Regexp(t, `^[0-9A-Z]{6}$`, code)
}
