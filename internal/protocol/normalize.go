// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package protocol

import (
	"encoding/json"
	"math"
	"time"

	"github.com/relabs-tech/signalboat/internal/course"
	"github.com/relabs-tech/signalboat/internal/geo"
)

// EventKind tells the roster what to do with an event.
type EventKind int

const (
	// Upsert carries a participant's latest position.
	Upsert EventKind = iota
	// Clear removes a participant; published on teardown.
	Clear
	// CourseConfig carries a course broadcast.
	CourseConfig
)

// Event is the single canonical shape every wire generation is mapped to.
type Event struct {
	Kind        EventKind
	RaceID      string
	Key         string // roster key: AdminKey or the observer id
	Role        Role
	PublisherID string // id field of the payload
	Position    geo.Point
	Heading     *float64
	Course      *course.Spec
	SentAt      time.Time
	ReceivedAt  time.Time
	Legacy      bool
}

// Normalizer maps inbound topic/payload pairs to events.
type Normalizer struct {
	Registry *course.Registry
}

var defaultNormalizer = Normalizer{Registry: course.Builtin()}

// Normalize maps a message with the built-in course registry.
func Normalize(topic string, payload []byte, now time.Time) (Event, bool) {
	return defaultNormalizer.Normalize(topic, payload, now)
}

// Normalize returns false for anything it cannot trust: unknown topics,
// malformed JSON, missing or non-finite coordinates, expired payloads.
// Such messages are dropped without logging.
func (n Normalizer) Normalize(topic string, payload []byte, now time.Time) (Event, bool) {
	t := parseTopic(topic)
	switch t.kind {
	case topicPresence:
		return n.presence(t, payload, now)
	case topicCourse:
		return n.courseConfig(t, payload, now)
	}
	return Event{}, false
}

func (n Normalizer) presence(t parsedTopic, payload []byte, now time.Time) (Event, bool) {
	ev := Event{
		RaceID:     t.raceID,
		Key:        t.key,
		Role:       t.role,
		ReceivedAt: now,
		Legacy:     t.legacy,
	}
	if len(payload) == 0 {
		ev.Kind = Clear
		return ev, true
	}

	var p presencePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Event{}, false
	}
	if p.Lat == nil || p.Lng == nil {
		return Event{}, false
	}
	pos := geo.Point{Lat: *p.Lat, Lng: *p.Lng}
	if !pos.Valid() {
		return Event{}, false
	}
	if expired(p.Exp, now) {
		return Event{}, false
	}

	ev.Kind = Upsert
	ev.PublisherID = p.ID
	ev.Position = pos
	if p.Heading != nil && !math.IsNaN(*p.Heading) && !math.IsInf(*p.Heading, 0) {
		h := geo.NormalizeBearing(*p.Heading)
		ev.Heading = &h
	}
	ev.SentAt = now
	if p.TS > 0 {
		ev.SentAt = time.UnixMilli(p.TS)
	}
	// a bad course does not invalidate the position
	if t.role == RoleAdmin && len(p.Course) > 0 {
		if spec, ok := n.decodeCourse(p.Course); ok {
			ev.Course = &spec
		}
	}
	return ev, true
}

func (n Normalizer) courseConfig(t parsedTopic, payload []byte, now time.Time) (Event, bool) {
	if len(payload) == 0 {
		return Event{}, false
	}
	var w courseWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return Event{}, false
	}
	if expired(w.Exp, now) {
		return Event{}, false
	}
	spec, ok := n.specFrom(w)
	if !ok {
		return Event{}, false
	}
	ev := Event{
		Kind:       CourseConfig,
		RaceID:     t.raceID,
		Key:        AdminKey,
		Role:       RoleAdmin,
		Course:     &spec,
		SentAt:     now,
		ReceivedAt: now,
	}
	if w.TS > 0 {
		ev.SentAt = time.UnixMilli(w.TS)
	}
	return ev, true
}

func (n Normalizer) decodeCourse(raw json.RawMessage) (course.Spec, bool) {
	var w courseWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return course.Spec{}, false
	}
	return n.specFrom(w)
}

// specFrom accepts {type, params} or the legacy simple-course triple.
func (n Normalizer) specFrom(w courseWire) (course.Spec, bool) {
	reg := n.Registry
	if reg == nil {
		reg = course.Builtin()
	}
	if w.Type != "" {
		spec, err := reg.DecodeSpec(w.Type, w.Params)
		return spec, err == nil
	}
	if w.Axis == nil || w.DistanceNm == nil || w.StartLineM == nil {
		return course.Spec{}, false
	}
	spec, err := reg.DecodeSpec(course.TopologySimple, map[string]any{
		"axis":       *w.Axis,
		"distanceNm": *w.DistanceNm,
		"startLineM": *w.StartLineM,
	})
	return spec, err == nil
}
