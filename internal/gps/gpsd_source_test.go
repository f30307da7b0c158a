// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTPV(t *testing.T) {
	now := time.Now()

	r, ok := decodeTPV([]byte(`{"class":"TPV","mode":3,"lat":22.3,"lon":114.2,"track":90.5,"speed":3.0,"epx":4.0,"epy":6.0}`), now)
	require.True(t, ok)
	assert.Equal(t, 22.3, r.Lat)
	assert.Equal(t, 114.2, r.Lng)
	assert.Equal(t, 6.0, r.AccuracyM)
	require.NotNil(t, r.Heading)
	assert.Equal(t, 90.5, *r.Heading)

	r, ok = decodeTPV([]byte(`{"class":"TPV","mode":2,"lat":1,"lon":2,"track":90,"speed":0.1,"eph":12}`), now)
	require.True(t, ok)
	assert.Equal(t, 12.0, r.AccuracyM)
	assert.Nil(t, r.Heading, "too slow for a course")

	for _, line := range []string{
		`{"class":"SKY"}`,
		`{"class":"TPV","mode":1,"lat":1,"lon":2,"eph":3}`,
		`{"class":"TPV","mode":3,"lat":1,"lon":2}`,
		`not json`,
	} {
		_, ok := decodeTPV([]byte(line), now)
		assert.False(t, ok, line)
	}
}

func TestGPSDSourceOnce(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		bufio.NewReader(conn).ReadString('\n') // ?WATCH
		conn.Write([]byte(`{"class":"VERSION","release":"3.25"}` + "\n"))
		conn.Write([]byte(`{"class":"TPV","mode":3,"lat":22.3,"lon":114.2,"eph":5}` + "\n"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r, err := NewGPSDSource(ln.Addr().String()).Once(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5.0, r.AccuracyM)
}
