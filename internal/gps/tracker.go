// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"time"

	"github.com/relabs-tech/signalboat/internal/geo"
)

// TrackerConfig holds the filter thresholds.
type TrackerConfig struct {
	MaxAccuracyM      float64       // readings less accurate than this are dropped
	MaxJumpM          float64       // readings this far from the last fix are glitches
	Throttle          time.Duration // minimum spacing between accepted readings
	StaleTimeout      time.Duration // no accepted reading for this long → not ok
	HeadingHysteresis float64       // degrees a new bearing must differ by
}

// DefaultTrackerConfig enforces a 30 m accuracy ceiling.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxAccuracyM:      30,
		MaxJumpM:          2000,
		Throttle:          time.Second,
		StaleTimeout:      2500 * time.Millisecond,
		HeadingHysteresis: 3,
	}
}

// Decision is the tracker's verdict on a reading.
type Decision int

const (
	Accepted Decision = iota
	RejectedInvalid
	RejectedAccuracy
	RejectedJump
	RejectedOld
	Throttled
)

func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case RejectedInvalid:
		return "invalid"
	case RejectedAccuracy:
		return "inaccurate"
	case RejectedJump:
		return "jump"
	case RejectedOld:
		return "old"
	case Throttled:
		return "throttled"
	}
	return "unknown"
}

// Status is a snapshot of acquisition health.
type Status struct {
	OK        bool      // an accepted reading within the stale timeout
	HasFix    bool      // at least one reading was ever accepted
	AccuracyM float64   // accuracy of the last raw reading, accepted or not
	LastFixAt time.Time // when the last reading was accepted
	Err       string    // last source error, cleared by the next accepted reading
}

// Tracker filters readings into positions. It is a plain state machine
// driven by the caller's clock; it is not safe for concurrent use.
type Tracker struct {
	cfg TrackerConfig

	last       Position
	hasFix     bool
	acceptedAt time.Time
	heading    *float64
	ok         bool
	rawAcc     float64
}

// NewTracker creates a tracker with cfg.
func NewTracker(cfg TrackerConfig) *Tracker {
	return &Tracker{cfg: cfg}
}

// Offer runs a reading through the accuracy, throttle, and jump filters.
// "No reading is better than a bad reading": a rejected reading leaves the
// reference fix untouched.
func (t *Tracker) Offer(r Reading, now time.Time) (Position, Decision) {
	if !isFinite(r.Lat) || !isFinite(r.Lng) || !isFinite(r.AccuracyM) || r.AccuracyM < 0 || !r.Point().Valid() {
		return Position{}, RejectedInvalid
	}
	// a replayed or cached sample is not a fix
	if !r.Time.IsZero() {
		if now.Sub(r.Time) > t.cfg.StaleTimeout || (t.hasFix && !r.Time.After(t.last.Timestamp)) {
			return Position{}, RejectedOld
		}
	}
	t.rawAcc = r.AccuracyM

	if r.AccuracyM > t.cfg.MaxAccuracyM {
		return Position{}, RejectedAccuracy
	}
	if t.hasFix && now.Sub(t.acceptedAt) < t.cfg.Throttle {
		return Position{}, Throttled
	}
	var moved float64
	if t.hasFix {
		moved = geo.Distance(t.last.Point(), r.Point())
		// the jump filter only guards a live reference; once it is stale
		// the next good reading becomes the new reference
		if moved > t.cfg.MaxJumpM {
			if t.live(now) {
				return Position{}, RejectedJump
			}
			moved = 0 // no bearing across the gap
		}
	}

	t.resolveHeading(r, moved)

	ts := r.Time
	if ts.IsZero() {
		ts = now
	}
	pos := Position{
		Lat:       r.Lat,
		Lng:       r.Lng,
		AccuracyM: r.AccuracyM,
		Timestamp: ts,
	}
	if t.heading != nil {
		pos.Heading = ptr(*t.heading)
	}
	if r.Speed != nil && isFinite(*r.Speed) {
		pos.Speed = ptr(*r.Speed)
	}

	t.last = pos
	t.hasFix = true
	t.acceptedAt = now
	t.ok = true
	return pos, Accepted
}

func (t *Tracker) live(now time.Time) bool {
	return t.ok && now.Sub(t.acceptedAt) <= t.cfg.StaleTimeout
}

// resolveHeading prefers the device heading and falls back to the bearing
// from the previous fix. The displayed heading only changes when the new
// value moves past the hysteresis threshold.
func (t *Tracker) resolveHeading(r Reading, moved float64) {
	var candidate float64
	switch {
	case r.Heading != nil && isFinite(*r.Heading):
		candidate = geo.NormalizeBearing(*r.Heading)
	case t.hasFix && moved > 0:
		candidate = geo.CalcBearing(t.last.Point(), r.Point())
	default:
		return
	}
	if t.heading == nil || geo.AngleDiff(candidate, *t.heading) > t.cfg.HeadingHysteresis {
		t.heading = ptr(candidate)
	}
}

// CheckStale flips the tracker to not-ok when no reading was accepted
// within the stale timeout. It reports whether the status changed.
func (t *Tracker) CheckStale(now time.Time) bool {
	if t.ok && now.Sub(t.acceptedAt) > t.cfg.StaleTimeout {
		t.ok = false
		return true
	}
	return false
}

// Stale reports whether the last accepted reading is older than d, or
// there never was one.
func (t *Tracker) Stale(now time.Time, d time.Duration) bool {
	return !t.hasFix || now.Sub(t.acceptedAt) > d
}

// Last returns the reference fix.
func (t *Tracker) Last() (Position, bool) {
	return t.last, t.hasFix
}

// Status returns the current acquisition status without the error field.
func (t *Tracker) Status() Status {
	return Status{
		OK:        t.ok,
		HasFix:    t.hasFix,
		AccuracyM: t.rawAcc,
		LastFixAt: t.acceptedAt,
	}
}
