// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package protocol

import (
	"encoding/json"
	"time"

	"github.com/relabs-tech/signalboat/internal/course"
)

// presencePayload is the JSON body on presence and legacy location
// topics. Pointers mark fields that may be absent.
type presencePayload struct {
	ID      string          `json:"id"`
	Role    Role            `json:"role"`
	Lat     *float64        `json:"lat"`
	Lng     *float64        `json:"lng"`
	Course  json.RawMessage `json:"course,omitempty"`
	Heading *float64        `json:"heading,omitempty"`
	TS      int64           `json:"ts"`
	Exp     int64           `json:"exp,omitempty"`
}

// courseWire covers both course shapes: {type, params} and the legacy
// {axis, distance_nm, start_line_m}.
type courseWire struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`

	Axis       *float64 `json:"axis"`
	DistanceNm *float64 `json:"distance_nm"`
	StartLineM *float64 `json:"start_line_m"`

	TS  int64 `json:"ts,omitempty"`
	Exp int64 `json:"exp,omitempty"`
}

// outboundCourse is what a signal boat publishes on the course topic.
type outboundCourse struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
	TS     int64          `json:"ts,omitempty"`
	Exp    int64          `json:"exp,omitempty"`
}

func courseBody(spec course.Spec) outboundCourse {
	return outboundCourse{Type: spec.TopologyID, Params: spec.Map()}
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func expired(exp int64, now time.Time) bool {
	return exp > 0 && exp < now.UnixMilli()
}
