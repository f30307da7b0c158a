// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ggaGood    = "$GPGGA,123519,2219.158,N,11410.164,E,1,08,0.9,545.4,M,46.9,M,,*47"
	ggaInvalid = "$GPGGA,123522,2219.158,N,11410.164,E,0,00,99.9,545.4,M,46.9,M,,*76"
	rmcFast    = "$GPRMC,123519,A,2219.158,N,11410.164,E,022.4,084.4,230394,003.1,W*6A"
	rmcVoid    = "$GPRMC,123520,V,2219.158,N,11410.164,E,000.0,000.0,230394,003.1,W*7B"
	rmcSlow    = "$GPRMC,123521,A,2219.158,N,11410.164,E,000.2,084.4,230394,003.1,W*67"
)

func TestNMEADecoderNeedsGGABeforeRMC(t *testing.T) {
	var d nmeaDecoder
	now := time.Unix(1700000000, 0)

	_, ok := d.feed(rmcFast, now)
	assert.False(t, ok, "RMC without a prior GGA has no accuracy")

	_, ok = d.feed(ggaGood+"\r\n", now)
	assert.False(t, ok, "GGA alone emits nothing")

	r, ok := d.feed(rmcFast, now)
	require.True(t, ok)
	assert.InDelta(t, 22+19.158/60, r.Lat, 1e-9)
	assert.InDelta(t, 114+10.164/60, r.Lng, 1e-9)
	assert.InDelta(t, 4.5, r.AccuracyM, 1e-9)
	require.NotNil(t, r.Heading)
	assert.InDelta(t, 84.4, *r.Heading, 1e-9)
	require.NotNil(t, r.Speed)
	assert.InDelta(t, 22.4*knotsToMS, *r.Speed, 1e-9)
	assert.Equal(t, now, r.Time)
}

func TestNMEADecoderRejectsVoidAndInvalid(t *testing.T) {
	var d nmeaDecoder
	now := time.Now()

	d.feed(ggaGood, now)
	_, ok := d.feed(rmcVoid, now)
	assert.False(t, ok, "void RMC")

	d.feed(ggaInvalid, now)
	_, ok = d.feed(rmcFast, now)
	assert.False(t, ok, "invalid GGA clears the quality")
}

func TestNMEADecoderSlowCourseDropped(t *testing.T) {
	var d nmeaDecoder
	now := time.Now()

	d.feed(ggaGood, now)
	r, ok := d.feed(rmcSlow, now)
	require.True(t, ok)
	assert.Nil(t, r.Heading)
	require.NotNil(t, r.Speed)
}

func TestNMEADecoderIgnoresGarbage(t *testing.T) {
	var d nmeaDecoder
	for _, line := range []string{"", "hello", "$GPRMC,123519,A,22", "$GPGGA,bad*00"} {
		_, ok := d.feed(line, time.Now())
		assert.False(t, ok, line)
	}
}
