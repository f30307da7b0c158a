// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisTimeout = 5 * time.Second

// RedisRepository stores JSON settings in Redis, shared between a signal
// boat and its shore station.
type RedisRepository struct {
	client *redis.Client
}

// OpenRedis connects to redisURL and pings it.
func OpenRedis(redisURL string) (*RedisRepository, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("store: connect redis: %w", err)
	}
	log.Println("store: connected to redis")
	return &RedisRepository{client: client}, nil
}

func (r *RedisRepository) Load(ctx context.Context, raceID string) (Settings, error) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	raw, err := r.client.Get(ctx, settingsKey(raceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Settings{}, ErrNotFound
	}
	if err != nil {
		return Settings{}, fmt.Errorf("store: load %s: %w", raceID, err)
	}
	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("store: decode %s: %w", raceID, err)
	}
	return s, nil
}

func (r *RedisRepository) Save(ctx context.Context, s Settings) error {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	buf, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("store: marshal settings: %w", err)
	}
	return r.client.Set(ctx, settingsKey(s.RaceID), buf, 0).Err()
}

func (r *RedisRepository) LoadRaceID(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	raceID, err := r.client.Get(ctx, raceIDKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: load race id: %w", err)
	}
	return raceID, nil
}

func (r *RedisRepository) SaveRaceID(ctx context.Context, raceID string) error {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	return r.client.Set(ctx, raceIDKey, raceID, 0).Err()
}

func (r *RedisRepository) Close() error {
	log.Println("store: closing redis connection")
	return r.client.Close()
}
