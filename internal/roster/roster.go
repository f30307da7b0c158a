// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package roster keeps the table of participants currently heard on a
// race. Membership comes only from message arrival; there is no join or
// leave handshake.
package roster

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/relabs-tech/signalboat/internal/course"
	"github.com/relabs-tech/signalboat/internal/geo"
	"github.com/relabs-tech/signalboat/internal/protocol"
)

// DefaultExpiry drops a participant not heard for a minute.
const DefaultExpiry = 60 * time.Second

// Record is one participant's last known state.
type Record struct {
	Key        string        `json:"key"`
	ID         string        `json:"id"`
	Role       protocol.Role `json:"role"`
	Position   geo.Point     `json:"position"`
	Heading    *float64      `json:"heading,omitempty"`
	Course     *course.Spec  `json:"course,omitempty"`
	SentAt     time.Time     `json:"sentAt"`
	LastSeenAt time.Time     `json:"lastSeenAt"`
	Legacy     bool          `json:"legacy,omitempty"`
}

// Roster is the reducer over inbound events. Apply and Expire may be
// called directly (tests, single-threaded callers) or fed through Run.
type Roster struct {
	expiry  time.Duration
	updates chan protocol.Event
	now     func() time.Time

	mu          sync.RWMutex
	records     map[string]*Record
	course      *course.Spec
	courseAt    time.Time
	lastInbound time.Time
	conflictAt  time.Time
}

// New creates a roster that expires records after expiry.
func New(expiry time.Duration) *Roster {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Roster{
		expiry:  expiry,
		updates: make(chan protocol.Event, 100),
		now:     time.Now,
		records: make(map[string]*Record),
	}
}

// Submit queues an event for Run. It is the sink handed to a
// protocol.Subscriber and never blocks the broker's dispatch.
func (r *Roster) Submit(ev protocol.Event) {
	select {
	case r.updates <- ev:
	default:
		log.Printf("roster: update queue full, dropping event for %s", ev.Key)
	}
}

// Run applies queued events and expires records on a 1 s tick until ctx
// is done. Only this goroutine writes when Run is in use.
func (r *Roster) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.updates:
			r.Apply(ev)
		case <-ticker.C:
			r.Expire(r.now())
		}
	}
}

// Apply folds one event into the table.
func (r *Roster) Apply(ev protocol.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.ReceivedAt.After(r.lastInbound) {
		r.lastInbound = ev.ReceivedAt
	}

	switch ev.Kind {
	case protocol.Clear:
		if _, ok := r.records[ev.Key]; ok {
			delete(r.records, ev.Key)
			log.Printf("roster: %s left", ev.Key)
		}

	case protocol.CourseConfig:
		r.setCourse(ev.Course, ev.ReceivedAt)

	case protocol.Upsert:
		rec := r.records[ev.Key]
		if rec == nil {
			rec = &Record{Key: ev.Key}
			r.records[ev.Key] = rec
			log.Printf("roster: %s joined as %s", ev.Key, ev.Role)
		} else if ev.Key == protocol.AdminKey && rec.ID != "" && ev.PublisherID != "" &&
			rec.ID != ev.PublisherID && ev.ReceivedAt.Sub(rec.LastSeenAt) <= r.expiry {
			// two devices think they are the signal boat; last writer wins
			r.conflictAt = ev.ReceivedAt
			log.Printf("roster: admin conflict, %s replaced %s", ev.PublisherID, rec.ID)
		}
		rec.ID = ev.PublisherID
		rec.Role = ev.Role
		rec.Position = ev.Position
		rec.Heading = ev.Heading
		rec.SentAt = ev.SentAt
		rec.LastSeenAt = ev.ReceivedAt
		rec.Legacy = ev.Legacy
		// a presence without a course keeps the last one seen
		if ev.Course != nil {
			rec.Course = ev.Course
			r.setCourse(ev.Course, ev.ReceivedAt)
		}
	}
}

func (r *Roster) setCourse(spec *course.Spec, at time.Time) {
	if spec == nil {
		return
	}
	c := *spec
	r.course = &c
	r.courseAt = at
}

// Expire removes records not seen within the expiry window and returns
// their keys.
func (r *Roster) Expire(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var gone []string
	for key, rec := range r.records {
		if now.Sub(rec.LastSeenAt) > r.expiry {
			delete(r.records, key)
			gone = append(gone, key)
		}
	}
	sort.Strings(gone)
	for _, key := range gone {
		log.Printf("roster: %s expired", key)
	}
	return gone
}

// Snapshot returns copies of every record, admin first then by key.
func (r *Roster) Snapshot() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		list = append(list, *rec)
	}
	sort.Slice(list, func(i, j int) bool {
		ai, aj := list[i].Key == protocol.AdminKey, list[j].Key == protocol.AdminKey
		if ai != aj {
			return ai
		}
		return list[i].Key < list[j].Key
	})
	return list
}

// Get returns the record stored under key.
func (r *Roster) Get(key string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[key]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Admin returns the signal boat's record.
func (r *Roster) Admin() (Record, bool) {
	return r.Get(protocol.AdminKey)
}

// Course returns the latest course heard on the race, from either the
// admin presence or the course topic. It outlives the admin record.
func (r *Roster) Course() (course.Spec, time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.course == nil {
		return course.Spec{}, time.Time{}, false
	}
	return *r.course, r.courseAt, true
}

// Touch records inbound traffic that is not applied to the table, such
// as our own echoes. It only moves LastInboundAt forward.
func (r *Roster) Touch(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if at.After(r.lastInbound) {
		r.lastInbound = at
	}
}

// LastInboundAt is the arrival time of the newest event.
func (r *Roster) LastInboundAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastInbound
}

// AdminConflict reports whether two publishers wrote the admin slot
// within the last expiry window.
func (r *Roster) AdminConflict(now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.conflictAt.IsZero() && now.Sub(r.conflictAt) <= r.expiry
}

// Len returns the number of participants.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
