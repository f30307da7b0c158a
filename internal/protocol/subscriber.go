// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package protocol

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/signalboat/internal/broker"
)

// SubscribeConn is the subscribing side of the shared broker connection.
type SubscribeConn interface {
	Subscribe(filter string, h broker.Handler) (func(), error)
}

// Subscriber listens to one race and hands normalized events to sink.
type Subscriber struct {
	conn   SubscribeConn
	norm   Normalizer
	raceID string
	sink   func(Event)
	now    func() time.Time

	mu     sync.Mutex
	unsubs []func()
}

// NewSubscriber creates a subscriber for raceID.
func NewSubscriber(conn SubscribeConn, norm Normalizer, raceID string, sink func(Event)) *Subscriber {
	return &Subscriber{conn: conn, norm: norm, raceID: raceID, sink: sink, now: time.Now}
}

// Start subscribes every race filter.
func (s *Subscriber) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range Filters(s.raceID) {
		unsub, err := s.conn.Subscribe(f, s.handle)
		if err != nil {
			for _, u := range s.unsubs {
				u()
			}
			s.unsubs = nil
			return fmt.Errorf("sync: subscribe %s: %w", f, err)
		}
		s.unsubs = append(s.unsubs, unsub)
	}
	log.Printf("sync: listening on race %s", s.raceID)
	return nil
}

// Stop removes this subscriber's filters.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.unsubs {
		u()
	}
	s.unsubs = nil
}

func (s *Subscriber) handle(topic string, payload []byte) {
	ev, ok := s.norm.Normalize(topic, payload, s.now())
	if !ok || ev.RaceID != s.raceID {
		return
	}
	s.sink(ev)
}
