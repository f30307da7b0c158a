package course

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSpecValidation(t *testing.T) {
	reg := Builtin()
	tests := []struct {
		name string
		id   string
		raw  map[string]any
		err  error
	}{
		{name: "defaults", id: TopologySimple, raw: nil},
		{name: "unknown topology", id: "figure_eight", raw: nil, err: ErrUnknownTopology},
		{name: "axis out of range", id: TopologySimple, raw: map[string]any{"axis": 400.0}, err: ErrInvalidParams},
		{name: "distance as string", id: TopologySimple, raw: map[string]any{"distanceNm": "far"}, err: ErrInvalidParams},
		{name: "nan", id: TopologySimple, raw: map[string]any{"axis": math.NaN()}, err: ErrInvalidParams},
		{name: "fractional laps", id: TopologyWindwardLeeward, raw: map[string]any{"laps": 1.5}, err: ErrInvalidParams},
		{name: "bad direction", id: TopologyTriangle, raw: map[string]any{"direction": "left"}, err: ErrInvalidParams},
		{name: "unknown key ignored", id: TopologySimple, raw: map[string]any{"color": "red"}},
		{name: "json number", id: TopologySimple, raw: map[string]any{"axis": json.Number("12")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.DecodeSpec(tt.id, tt.raw)
			if tt.err == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.err), "got %v", err)
		})
	}
}

func TestDecodeSpecOverlaysDefaults(t *testing.T) {
	reg := Builtin()
	spec, err := reg.DecodeSpec(TopologyWindwardLeewardOffset, map[string]any{"axis": 75.0, "laps": 3.0})
	require.NoError(t, err)

	p, ok := spec.Params.(WindwardLeewardOffsetParams)
	require.True(t, ok)
	assert.Equal(t, 75.0, p.Axis)
	assert.Equal(t, 3, p.Laps)
	assert.Equal(t, 0.8, p.DistanceNm)
	assert.Equal(t, DirectionPort, p.Direction)
	assert.Equal(t, TopologyWindwardLeewardOffset, spec.TopologyID)
}

func TestSpecWireShapeRoundTrip(t *testing.T) {
	reg := Builtin()
	spec, err := reg.DecodeSpec(TopologyTrapezoidOuter, map[string]any{"reachAngle": 70.0})
	require.NoError(t, err)

	buf, err := json.Marshal(spec)
	require.NoError(t, err)

	var wire struct {
		Type   string         `json:"type"`
		Params map[string]any `json:"params"`
	}
	require.NoError(t, json.Unmarshal(buf, &wire))
	assert.Equal(t, TopologyTrapezoidOuter, wire.Type)
	assert.Equal(t, 70.0, wire.Params["reachAngle"])
	assert.Equal(t, 0.8, wire.Params["distanceNm"])

	back, err := reg.DecodeSpec(wire.Type, wire.Params)
	require.NoError(t, err)
	assert.Equal(t, spec, back)
}

func TestSchemasDeclareEveryParam(t *testing.T) {
	reg := Builtin()
	for _, id := range reg.IDs() {
		topo, _ := reg.Get(id)
		for key := range Encode(topo.Defaults()) {
			_, ok := topo.Schema().Field(key)
			assert.True(t, ok, "%s: %s missing from schema", id, key)
		}
		assert.NoError(t, Validate(topo.Schema(), Encode(topo.Defaults())), id)
	}
}

func TestGeoJSON(t *testing.T) {
	reg := Builtin()
	spec, err := reg.DefaultSpec(TopologyWindwardLeeward)
	require.NoError(t, err)
	r := reg.Render(hongKong, spec)

	fc := GeoJSON(r)
	require.Len(t, fc.Features, len(r.Marks)+len(r.Lines))
	assert.Equal(t, "SB", fc.Features[0].Properties["label"])
	assert.Equal(t, "Point", fc.Features[0].Geometry.GeoJSONType())

	buf, err := fc.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(buf), `"topology":"windward_leeward"`)
}
