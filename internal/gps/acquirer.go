// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"context"
	"log"
	"sync"
	"time"
)

// Source is a continuous location subscription that can also answer a
// single request. Run streams readings until ctx is done or the source
// fails; it may also stop delivering without returning.
type Source interface {
	Run(ctx context.Context, out chan<- Reading) error
	Once(ctx context.Context) (Reading, error)
}

// AcquirerConfig controls the acquisition loop timers.
type AcquirerConfig struct {
	Tracker          TrackerConfig
	CheckInterval    time.Duration // stale checker tick
	FallbackInterval time.Duration // self-healing one-shot poll tick
	OnceTimeout      time.Duration
	RetryDelay       time.Duration // pause before restarting a failed source
}

// DefaultAcquirerConfig returns the stock timers.
func DefaultAcquirerConfig() AcquirerConfig {
	return AcquirerConfig{
		Tracker:          DefaultTrackerConfig(),
		CheckInterval:    time.Second,
		FallbackInterval: 5 * time.Second,
		OnceTimeout:      10 * time.Second,
		RetryDelay:       2 * time.Second,
	}
}

// Acquirer owns a Source and a Tracker. Accepted positions are delivered
// on Positions(); status is polled with Status().
type Acquirer struct {
	src Source
	cfg AcquirerConfig
	now func() time.Time

	mu      sync.Mutex
	tracker *Tracker
	lastErr string
	polling bool

	positions chan Position
}

// NewAcquirer wires src to a tracker built from cfg.
func NewAcquirer(src Source, cfg AcquirerConfig) *Acquirer {
	return &Acquirer{
		src:       src,
		cfg:       cfg,
		now:       time.Now,
		tracker:   NewTracker(cfg.Tracker),
		positions: make(chan Position, 16),
	}
}

// Positions returns the channel of accepted positions.
func (a *Acquirer) Positions() <-chan Position {
	return a.positions
}

// Status returns the current acquisition status.
func (a *Acquirer) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.tracker.Status()
	st.Err = a.lastErr
	return st
}

// Latest returns the last accepted position.
func (a *Acquirer) Latest() (Position, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tracker.Last()
}

// Run drives acquisition until ctx is cancelled. Source failures are
// logged and retried; they never end the loop.
func (a *Acquirer) Run(ctx context.Context) error {
	readings := make(chan Reading, 16)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.watch(ctx, readings)
	}()
	defer wg.Wait()

	check := time.NewTicker(a.cfg.CheckInterval)
	defer check.Stop()
	fallback := time.NewTicker(a.cfg.FallbackInterval)
	defer fallback.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-readings:
			a.offer(r)
		case <-check.C:
			a.checkStale()
		case <-fallback.C:
			a.maybePoll(ctx, readings)
		}
	}
}

func (a *Acquirer) watch(ctx context.Context, out chan<- Reading) {
	for {
		err := a.src.Run(ctx, out)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("gps: source error: %v, retrying in %s", err, a.cfg.RetryDelay)
			a.setErr(err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.cfg.RetryDelay):
		}
	}
}

func (a *Acquirer) offer(r Reading) {
	a.mu.Lock()
	pos, d := a.tracker.Offer(r, a.now())
	if d == Accepted {
		a.lastErr = ""
	}
	a.mu.Unlock()

	if d != Accepted {
		if d != Throttled {
			log.Printf("gps: reading dropped (%s): lat=%.6f lng=%.6f acc=%.1fm", d, r.Lat, r.Lng, r.AccuracyM)
		}
		return
	}
	select {
	case a.positions <- pos:
	default:
		// consumer is behind; it will catch up from Latest()
	}
}

func (a *Acquirer) checkStale() {
	a.mu.Lock()
	changed := a.tracker.CheckStale(a.now())
	a.mu.Unlock()
	if changed {
		log.Printf("gps: no accepted fix for %s, status not ok", a.cfg.Tracker.StaleTimeout)
	}
}

// maybePoll issues a one-shot request when the continuous subscription
// has gone quiet, so a stalled source still recovers a fix.
func (a *Acquirer) maybePoll(ctx context.Context, out chan<- Reading) {
	a.mu.Lock()
	stale := a.tracker.Stale(a.now(), a.cfg.FallbackInterval)
	if !stale || a.polling {
		a.mu.Unlock()
		return
	}
	a.polling = true
	a.mu.Unlock()

	go func() {
		defer func() {
			a.mu.Lock()
			a.polling = false
			a.mu.Unlock()
		}()
		pctx, cancel := context.WithTimeout(ctx, a.cfg.OnceTimeout)
		defer cancel()
		r, err := a.src.Once(pctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("gps: fallback poll failed: %v", err)
				a.setErr(err)
			}
			return
		}
		select {
		case out <- r:
		case <-ctx.Done():
		}
	}()
}

func (a *Acquirer) setErr(err error) {
	a.mu.Lock()
	a.lastErr = err.Error()
	a.mu.Unlock()
}
