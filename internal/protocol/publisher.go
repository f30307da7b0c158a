// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package protocol

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/relabs-tech/signalboat/internal/course"
	"github.com/relabs-tech/signalboat/internal/geo"
)

// Conn is the publishing side of the shared broker connection.
type Conn interface {
	Publish(topic string, payload []byte, retained bool) error
}

// PublisherConfig holds one participant's publish policy.
type PublisherConfig struct {
	RaceID        string
	ParticipantID string
	Role          Role

	Heartbeat    time.Duration // 15 s admin, 25 s observer
	Expiry       time.Duration // exp written into current-topic payloads
	Legacy       bool          // mirror to the legacy topic as well
	LegacyExpiry time.Duration

	MoveDeltaDeg    float64 // ~1 m of latitude
	HeadingDeltaDeg float64
}

// AdminPublisherConfig returns the admin defaults.
func AdminPublisherConfig(raceID, id string) PublisherConfig {
	return PublisherConfig{
		RaceID:          raceID,
		ParticipantID:   id,
		Role:            RoleAdmin,
		Heartbeat:       15 * time.Second,
		Expiry:          60 * time.Second,
		LegacyExpiry:    300 * time.Second,
		MoveDeltaDeg:    1e-5,
		HeadingDeltaDeg: 1,
	}
}

// ObserverPublisherConfig returns the observer defaults.
func ObserverPublisherConfig(raceID, id string) PublisherConfig {
	cfg := AdminPublisherConfig(raceID, id)
	cfg.Role = RoleObserver
	cfg.Heartbeat = 25 * time.Second
	return cfg
}

// Outbound is the state a participant wants peers to see.
type Outbound struct {
	Position geo.Point
	Heading  *float64
	Course   *course.Spec // admin only
}

// dedup skips a publish when the content is unchanged and the heartbeat
// is not due yet.
type dedup struct {
	hash uint64
	at   time.Time
	sent bool
}

func (d *dedup) skip(hash uint64, now time.Time, heartbeat time.Duration) bool {
	return d.sent && d.hash == hash && now.Sub(d.at) < heartbeat
}

func (d *dedup) mark(hash uint64, now time.Time) {
	d.hash, d.at, d.sent = hash, now, true
}

// Publisher applies the move-delta / heartbeat / content-hash policy to a
// participant's presence. Call Tick on a fast (~1 s) ticker. Not safe for
// concurrent use.
type Publisher struct {
	conn Conn
	cfg  PublisherConfig

	last    dedup
	lastPos geo.Point
	lastHdg *float64
}

// NewPublisher creates a publisher writing through conn.
func NewPublisher(conn Conn, cfg PublisherConfig) *Publisher {
	return &Publisher{conn: conn, cfg: cfg}
}

// moved reports whether out differs from the last published state by
// more than the deltas.
func (p *Publisher) moved(out Outbound) bool {
	if !p.last.sent {
		return true
	}
	if math.Abs(out.Position.Lat-p.lastPos.Lat) > p.cfg.MoveDeltaDeg ||
		math.Abs(out.Position.Lng-p.lastPos.Lng) > p.cfg.MoveDeltaDeg {
		return true
	}
	switch {
	case out.Heading == nil && p.lastHdg == nil:
		return false
	case out.Heading == nil || p.lastHdg == nil:
		return true
	}
	return geo.AngleDiff(*out.Heading, *p.lastHdg) > p.cfg.HeadingDeltaDeg
}

// Tick publishes out when it moved, its content changed, or the
// heartbeat is due. It reports whether a publish happened.
func (p *Publisher) Tick(now time.Time, out Outbound) (bool, error) {
	if !out.Position.Valid() {
		return false, nil
	}
	// sub-delta jitter is published as the previous position so it hashes
	// the same
	if !p.moved(out) {
		out.Position, out.Heading = p.lastPos, p.lastHdg
	}

	body := p.body(out)
	hash, err := hashOf(body)
	if err != nil {
		return false, err
	}
	if p.last.skip(hash, now, p.cfg.Heartbeat) {
		return false, nil
	}

	if err := p.send(PresenceTopic(p.cfg.RaceID, p.cfg.Role, p.cfg.ParticipantID), body, now, p.cfg.Expiry); err != nil {
		return false, err
	}
	p.last.mark(hash, now)
	p.lastPos, p.lastHdg = out.Position, out.Heading

	if p.cfg.Legacy {
		legacy := LegacyTopic(p.cfg.RaceID, p.cfg.Role, p.cfg.ParticipantID)
		if err := p.send(legacy, body, now, p.cfg.LegacyExpiry); err != nil {
			log.Printf("sync: legacy publish %s: %v", legacy, err)
		}
	}
	return true, nil
}

// Clear publishes empty retained messages so peers drop this participant
// before the expiry. Best effort.
func (p *Publisher) Clear() error {
	topics := []string{PresenceTopic(p.cfg.RaceID, p.cfg.Role, p.cfg.ParticipantID)}
	if p.cfg.Legacy {
		topics = append(topics, LegacyTopic(p.cfg.RaceID, p.cfg.Role, p.cfg.ParticipantID))
	}
	for _, t := range topics {
		if err := p.conn.Publish(t, nil, true); err != nil {
			return fmt.Errorf("clear %s: %w", t, err)
		}
	}
	p.last = dedup{}
	return nil
}

func (p *Publisher) body(out Outbound) presencePayload {
	lat, lng := out.Position.Lat, out.Position.Lng
	body := presencePayload{
		ID:      p.cfg.ParticipantID,
		Role:    p.cfg.Role,
		Lat:     &lat,
		Lng:     &lng,
		Heading: out.Heading,
	}
	if p.cfg.Role == RoleAdmin && out.Course != nil {
		if raw, err := json.Marshal(courseBody(*out.Course)); err == nil {
			body.Course = raw
		}
	}
	return body
}

func (p *Publisher) send(topic string, body presencePayload, now time.Time, expiry time.Duration) error {
	body.TS = unixMilli(now)
	body.Exp = unixMilli(now.Add(expiry))
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}
	return p.conn.Publish(topic, buf, true)
}

// hashOf hashes a payload before ts/exp are stamped.
func hashOf(v any) (uint64, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(buf), nil
}

// CourseBroadcaster publishes the admin's course on the course topic on
// change and on the heartbeat.
type CourseBroadcaster struct {
	conn      Conn
	raceID    string
	heartbeat time.Duration
	expiry    time.Duration

	last dedup
}

// NewCourseBroadcaster creates a broadcaster for raceID.
func NewCourseBroadcaster(conn Conn, raceID string, heartbeat, expiry time.Duration) *CourseBroadcaster {
	return &CourseBroadcaster{conn: conn, raceID: raceID, heartbeat: heartbeat, expiry: expiry}
}

// Tick publishes spec when it changed or the heartbeat is due.
func (b *CourseBroadcaster) Tick(now time.Time, spec course.Spec) (bool, error) {
	body := courseBody(spec)
	hash, err := hashOf(body)
	if err != nil {
		return false, err
	}
	if b.last.skip(hash, now, b.heartbeat) {
		return false, nil
	}
	body.TS = unixMilli(now)
	body.Exp = unixMilli(now.Add(b.expiry))
	buf, err := json.Marshal(body)
	if err != nil {
		return false, err
	}
	if err := b.conn.Publish(CourseTopic(b.raceID), buf, true); err != nil {
		return false, err
	}
	b.last.mark(hash, now)
	return true, nil
}
