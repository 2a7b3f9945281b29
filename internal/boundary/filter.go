// Package boundary filters geographic samples against the national
// boundary polygon. The polygon is loaded once at startup; after that the
// filter is stateless and safe for concurrent use.
package boundary

import (
	"fmt"

	"github.com/ctessum/geom"
	geojson "github.com/paulmach/go.geojson"

	"github.com/PaSeidel/covid-no2-viewer/internal/logger"
)

// Filter tests points against a fixed multi-ring boundary geometry.
type Filter struct {
	polys  geom.MultiPolygon
	bounds *geom.Bounds
	log    *logger.Logger
}

// NewFilter parses a GeoJSON feature collection (or single feature) and
// builds a containment filter from every Polygon/MultiPolygon geometry in
// it. Polygon holes and multi-ring features are preserved.
func NewFilter(data []byte) (*Filter, error) {
	geometries, err := collectGeometries(data)
	if err != nil {
		return nil, err
	}

	var polys geom.MultiPolygon
	for _, g := range geometries {
		switch {
		case g.IsPolygon():
			polys = append(polys, toGeomPolygon(g.Polygon))
		case g.IsMultiPolygon():
			for _, rings := range g.MultiPolygon {
				polys = append(polys, toGeomPolygon(rings))
			}
		}
	}
	if len(polys) == 0 {
		return nil, fmt.Errorf("boundary dataset contains no polygon geometry")
	}

	return &Filter{
		polys:  polys,
		bounds: polys.Bounds(),
		log:    logger.GetGlobalLogger().WithComponent("boundary"),
	}, nil
}

func collectGeometries(data []byte) ([]*geojson.Geometry, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil {
		var out []*geojson.Geometry
		for _, f := range fc.Features {
			if f.Geometry != nil {
				out = append(out, f.Geometry)
			}
		}
		return out, nil
	}
	if f, err := geojson.UnmarshalFeature(data); err == nil && f.Geometry != nil {
		return []*geojson.Geometry{f.Geometry}, nil
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse boundary GeoJSON: %w", err)
	}
	return []*geojson.Geometry{g}, nil
}

// toGeomPolygon converts GeoJSON ring coordinates ([lng, lat] order) to a
// geom.Polygon. Ring 0 is the outer shell, further rings are holes; the
// geometry library resolves containment by crossing count, so winding
// order can be carried over as-is.
func toGeomPolygon(rings [][][]float64) geom.Polygon {
	poly := make(geom.Polygon, 0, len(rings))
	for _, ring := range rings {
		pts := make([]geom.Point, 0, len(ring))
		for _, c := range ring {
			if len(c) < 2 {
				continue
			}
			pts = append(pts, geom.Point{X: c[0], Y: c[1]})
		}
		poly = append(poly, pts)
	}
	return poly
}

// IsInside reports whether the coordinate lies within the boundary. A
// geometry failure on a single point only excludes that point, never the
// batch.
func (f *Filter) IsInside(lat, lng float64) (inside bool) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Warnf("geometry error at lat=%.4f lng=%.4f: %v", lat, lng, r)
			inside = false
		}
	}()

	p := geom.Point{X: lng, Y: lat}
	if p.X < f.bounds.Min.X || p.X > f.bounds.Max.X ||
		p.Y < f.bounds.Min.Y || p.Y > f.bounds.Max.Y {
		return false
	}
	return p.Within(f.polys) != geom.Outside
}

// Bounds returns the bounding box of the loaded boundary geometry.
func (f *Filter) Bounds() (minLng, minLat, maxLng, maxLat float64) {
	return f.bounds.Min.X, f.bounds.Min.Y, f.bounds.Max.X, f.bounds.Max.Y
}
