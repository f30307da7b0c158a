package course

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeoJSON converts a rendered course into a feature collection for map
// surfaces: one Point per mark and one LineString per line.
func GeoJSON(r Rendered) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, m := range r.Marks {
		f := geojson.NewFeature(orb.Point{m.Lng, m.Lat})
		f.Properties["label"] = m.Label
		f.Properties["kind"] = "mark"
		fc.Append(f)
	}
	for _, l := range r.Lines {
		f := geojson.NewFeature(orb.LineString{{l.A.Lng, l.A.Lat}, {l.B.Lng, l.B.Lat}})
		f.Properties["kind"] = string(l.Kind)
		f.Properties["from"] = l.From
		f.Properties["to"] = l.To
		if l.Lap > 0 {
			f.Properties["lap"] = l.Lap
		}
		fc.Append(f)
	}
	if r.Topology != "" {
		fc.ExtraMembers = geojson.Properties{"topology": r.Topology}
	}
	return fc
}
