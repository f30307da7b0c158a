// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package store persists the signal boat's course settings so they
// survive a restart.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned by Load when nothing was saved for a race, and
// by LoadRaceID before a room code was ever saved.
var ErrNotFound = errors.New("store: settings not found")

// Settings is the persisted course state of one race. Params stay a
// generic map; the course registry validates them on load.
type Settings struct {
	RaceID    string         `json:"raceId" msgpack:"raceId"`
	Topology  string         `json:"topology" msgpack:"topology"`
	Params    map[string]any `json:"params" msgpack:"params"`
	UpdatedAt time.Time      `json:"updatedAt" msgpack:"updatedAt"`
}

// Repository loads and saves settings by race id. It also keeps the
// device's current room code, so a generated code outlives a restart.
type Repository interface {
	Load(ctx context.Context, raceID string) (Settings, error)
	Save(ctx context.Context, s Settings) error
	LoadRaceID(ctx context.Context) (string, error)
	SaveRaceID(ctx context.Context, raceID string) error
	Close() error
}

const (
	keyPrefix = "settings"
	raceIDKey = "device/race"
)

func settingsKey(raceID string) string {
	return fmt.Sprintf("%s/%s", keyPrefix, raceID)
}

// MemoryRepository keeps settings for the life of the process.
type MemoryRepository struct {
	mu     sync.RWMutex
	data   map[string]Settings
	raceID string
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: map[string]Settings{}}
}

func (m *MemoryRepository) Load(_ context.Context, raceID string) (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.data[settingsKey(raceID)]
	if !ok {
		return Settings{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryRepository) Save(_ context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[settingsKey(s.RaceID)] = s
	return nil
}

func (m *MemoryRepository) LoadRaceID(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.raceID == "" {
		return "", ErrNotFound
	}
	return m.raceID, nil
}

func (m *MemoryRepository) SaveRaceID(_ context.Context, raceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raceID = raceID
	return nil
}

func (m *MemoryRepository) Close() error { return nil }

// Open picks a backend by name: badger (path), redis (url) or memory.
func Open(backend, path, redisURL string) (Repository, error) {
	switch backend {
	case "", "memory":
		return NewMemoryRepository(), nil
	case "badger":
		return OpenBadger(path)
	case "redis":
		return OpenRedis(redisURL)
	}
	return nil, fmt.Errorf("store: unknown backend %q", backend)
}
