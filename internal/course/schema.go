// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package course

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	ErrUnknownTopology = errors.New("unknown course topology")
	ErrInvalidParams   = errors.New("invalid course params")
)

// FieldType is the declared type of a param.
type FieldType string

const (
	FieldNumber  FieldType = "number"
	FieldInteger FieldType = "integer"
	FieldSelect  FieldType = "select"
	FieldBool    FieldType = "boolean"
)

// Rounding directions.
const (
	DirectionPort      = "port"
	DirectionStarboard = "starboard"
)

// Field describes one param for form generation and validation.
type Field struct {
	Key     string    `json:"key"`
	Type    FieldType `json:"type"`
	Min     float64   `json:"min,omitempty"`
	Max     float64   `json:"max,omitempty"`
	Step    float64   `json:"step,omitempty"`
	Unit    string    `json:"unit,omitempty"`
	Options []string  `json:"options,omitempty"`
}

// Schema is the ordered field list of a topology.
type Schema []Field

// Field returns the field with the given key.
func (s Schema) Field(key string) (Field, bool) {
	for _, f := range s {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks raw values against the schema. Keys the schema does not
// declare are ignored; they are dropped when the params are decoded.
func Validate(s Schema, raw map[string]any) error {
	for key, v := range raw {
		f, ok := s.Field(key)
		if !ok {
			continue
		}
		if err := f.check(v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidParams, key, err)
		}
	}
	return nil
}

func (f Field) check(v any) error {
	switch f.Type {
	case FieldNumber, FieldInteger:
		n, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("expected number, got %T", v)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return errors.New("not finite")
		}
		if n < f.Min || n > f.Max {
			return fmt.Errorf("%v outside [%v, %v]", n, f.Min, f.Max)
		}
		if f.Type == FieldInteger && n != math.Trunc(n) {
			return fmt.Errorf("%v is not an integer", n)
		}
	case FieldSelect:
		str, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		if !slices.Contains(f.Options, str) {
			return fmt.Errorf("%q not one of %v", str, f.Options)
		}
	case FieldBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", v)
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func baseFields() Schema {
	return Schema{
		{Key: "axis", Type: FieldNumber, Min: 0, Max: 359, Step: 1, Unit: "deg"},
		{Key: "distanceNm", Type: FieldNumber, Min: 0.1, Max: 5, Step: 0.1, Unit: "nm"},
		{Key: "startLineM", Type: FieldNumber, Min: 20, Max: 1000, Step: 10, Unit: "m"},
	}
}

func directionField() Field {
	return Field{Key: "direction", Type: FieldSelect, Options: []string{DirectionPort, DirectionStarboard}}
}

func lapsField() Field {
	return Field{Key: "laps", Type: FieldInteger, Min: 1, Max: 6, Step: 1}
}

func offsetField() Field {
	return Field{Key: "offsetM", Type: FieldNumber, Min: 20, Max: 300, Step: 10, Unit: "m"}
}

func gateFields() Schema {
	return Schema{
		{Key: "gateWidthM", Type: FieldNumber, Min: 20, Max: 200, Step: 5, Unit: "m"},
		{Key: "gateDistanceM", Type: FieldNumber, Min: -500, Max: 500, Step: 10, Unit: "m"},
	}
}

func join(parts ...Schema) Schema {
	var out Schema
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
