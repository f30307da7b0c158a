// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package protocol

import (
	"strings"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// NewParticipantID returns a fresh observer id.
func NewParticipantID() string {
	return uuid.NewString()
}

// NewRoomCode returns a short race id for a new signal boat. It is the
// tail of a KSUID, whose leading bytes are the timestamp.
func NewRoomCode() string {
	k := ksuid.New().String()
	return strings.ToUpper(k[len(k)-6:])
}
