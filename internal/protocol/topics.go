// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package protocol

import (
	"strings"
)

// Role distinguishes the single admin publisher from observers.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleObserver Role = "observer"
)

// AdminKey is the roster key of the admin slot.
const AdminKey = "ADMIN"

// Topic builders. Current generation:
//
//	race/{raceId}/presence/ADMIN
//	race/{raceId}/presence/{observerId}
//
// Legacy generation:
//
//	race/{raceId}/location/admin
//	race/{raceId}/location/observer/{observerId}
//
// Course config: race/{raceId}/course/config
func PresenceTopic(raceID string, role Role, id string) string {
	if role == RoleAdmin {
		return "race/" + raceID + "/presence/" + AdminKey
	}
	return "race/" + raceID + "/presence/" + id
}

func LegacyTopic(raceID string, role Role, id string) string {
	if role == RoleAdmin {
		return "race/" + raceID + "/location/admin"
	}
	return "race/" + raceID + "/location/observer/" + id
}

func CourseTopic(raceID string) string {
	return "race/" + raceID + "/course/config"
}

// Filters returns every subscription filter for a race.
func Filters(raceID string) []string {
	return []string{
		"race/" + raceID + "/presence/+",
		"race/" + raceID + "/location/#",
		CourseTopic(raceID),
	}
}

type topicKind int

const (
	topicUnknown topicKind = iota
	topicPresence
	topicCourse
)

type parsedTopic struct {
	kind   topicKind
	raceID string
	role   Role
	key    string // roster key: AdminKey or the observer id
	legacy bool
}

func parseTopic(topic string) parsedTopic {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[0] != "race" || parts[1] == "" {
		return parsedTopic{}
	}
	race := parts[1]
	switch {
	case len(parts) == 4 && parts[2] == "presence" && parts[3] == AdminKey:
		return parsedTopic{kind: topicPresence, raceID: race, role: RoleAdmin, key: AdminKey}
	case len(parts) == 4 && parts[2] == "presence" && parts[3] != "":
		return parsedTopic{kind: topicPresence, raceID: race, role: RoleObserver, key: parts[3]}
	case len(parts) == 4 && parts[2] == "location" && parts[3] == "admin":
		return parsedTopic{kind: topicPresence, raceID: race, role: RoleAdmin, key: AdminKey, legacy: true}
	case len(parts) == 5 && parts[2] == "location" && parts[3] == "observer" && parts[4] != "":
		return parsedTopic{kind: topicPresence, raceID: race, role: RoleObserver, key: parts[4], legacy: true}
	case len(parts) == 4 && parts[2] == "course" && parts[3] == "config":
		return parsedTopic{kind: topicCourse, raceID: race}
	}
	return parsedTopic{}
}
