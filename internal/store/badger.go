// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/vmihailenco/msgpack/v5"
)

// BadgerRepository stores msgpack-encoded settings in an embedded badger
// database.
type BadgerRepository struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the database at path. An empty path
// opens an in-memory database.
func OpenBadger(path string) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger %q: %w", path, err)
	}
	return &BadgerRepository{db: db}, nil
}

func (b *BadgerRepository) Load(_ context.Context, raceID string) (Settings, error) {
	var s Settings
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(settingsKey(raceID)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &s)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Settings{}, ErrNotFound
	}
	if err != nil {
		return Settings{}, fmt.Errorf("store: load %s: %w", raceID, err)
	}
	return s, nil
}

func (b *BadgerRepository) Save(_ context.Context, s Settings) error {
	buf, err := msgpack.Marshal(s)
	if err != nil {
		return fmt.Errorf("store: marshal settings: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(settingsKey(s.RaceID)), buf)
	})
}

func (b *BadgerRepository) LoadRaceID(context.Context) (string, error) {
	var raceID string
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(raceIDKey))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		raceID = string(val)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: load race id: %w", err)
	}
	return raceID, nil
}

func (b *BadgerRepository) SaveRaceID(_ context.Context, raceID string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(raceIDKey), []byte(raceID))
	})
}

func (b *BadgerRepository) Close() error {
	return b.db.Close()
}
