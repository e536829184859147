package geometry

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

// Polygon is an areal geometry tagged with its spatial reference.
type Polygon struct {
	geom  orb.Geometry // orb.Polygon or orb.MultiPolygon
	srs   SpatialReference
	bound orb.Bound
}

// NewPolygon accepts orb.Polygon and orb.MultiPolygon. Any other geometry
// type is rejected with an error naming it.
func NewPolygon(g orb.Geometry, srs SpatialReference) (Polygon, error) {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) == 0 || len(v[0]) < 3 {
			return Polygon{}, fmt.Errorf("polygon has no outer ring")
		}
	case orb.MultiPolygon:
		if len(v) == 0 {
			return Polygon{}, fmt.Errorf("multipolygon is empty")
		}
		for i, p := range v {
			if len(p) == 0 || len(p[0]) < 3 {
				return Polygon{}, fmt.Errorf("multipolygon member %d has no outer ring", i)
			}
		}
	case nil:
		return Polygon{}, fmt.Errorf("geometry is empty")
	default:
		return Polygon{}, fmt.Errorf("geometry is a %s, not a Polygon or MultiPolygon", g.GeoJSONType())
	}
	return Polygon{geom: g, srs: srs, bound: g.Bound()}, nil
}

// Geometry returns the wrapped orb geometry.
func (p Polygon) Geometry() orb.Geometry { return p.geom }

// SpatialReference returns the polygon's reference.
func (p Polygon) SpatialReference() SpatialReference { return p.srs }

// Bounds returns the axis-aligned bounding box.
func (p Polygon) Bounds() orb.Bound { return p.bound }

// Covers reports whether pt lies inside the polygon or on its boundary.
// Points on a hole's edge are covered; only a hole's interior is excluded.
func (p Polygon) Covers(pt orb.Point) bool {
	if !p.bound.Contains(pt) {
		return false
	}
	switch g := p.geom.(type) {
	case orb.Polygon:
		return polygonCovers(g, pt)
	case orb.MultiPolygon:
		for _, member := range g {
			if polygonCovers(member, pt) {
				return true
			}
		}
	}
	return false
}

func polygonCovers(poly orb.Polygon, pt orb.Point) bool {
	if !planar.RingContains(poly[0], pt) {
		return false
	}
	for _, hole := range poly[1:] {
		if len(hole) < 3 {
			continue
		}
		if planar.RingContains(hole, pt) && !onRing(hole, pt) {
			return false
		}
	}
	return true
}

// onRing reports whether pt lies on any edge of r, closing edge included.
func onRing(r orb.Ring, pt orb.Point) bool {
	n := len(r)
	for i := 0; i < n; i++ {
		if onSegment(r[i], r[(i+1)%n], pt) {
			return true
		}
	}
	return false
}

func onSegment(a, b, p orb.Point) bool {
	if p[0] < math.Min(a[0], b[0]) || p[0] > math.Max(a[0], b[0]) ||
		p[1] < math.Min(a[1], b[1]) || p[1] > math.Max(a[1], b[1]) {
		return false
	}
	cross := (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
	scale := math.Max(math.Abs(b[0]-a[0]), math.Abs(b[1]-a[1]))
	return math.Abs(cross) <= 1e-12*math.Max(scale*scale, 1)
}

// Transform returns the polygon reprojected into to. Equal references
// return p unchanged. Supported pairs are EPSG:4326 and EPSG:3857 in
// either direction.
func (p Polygon) Transform(to SpatialReference) (Polygon, error) {
	if p.srs == to {
		return p, nil
	}
	if p.srs.IsEmpty() || to.IsEmpty() {
		return Polygon{}, fmt.Errorf("%w: %q to %q: empty spatial reference",
			ErrUnsupportedTransform, p.srs, to)
	}

	var proj orb.Projection
	switch {
	case p.srs.Code == EPSGWGS84 && to.Code == EPSGWebMercator:
		proj = project.WGS84.ToMercator
	case p.srs.Code == EPSGWebMercator && to.Code == EPSGWGS84:
		proj = project.Mercator.ToWGS84
	default:
		return Polygon{}, fmt.Errorf("%w: %s to %s", ErrUnsupportedTransform, p.srs, to)
	}

	g := project.Geometry(orb.Clone(p.geom), proj)
	if !finite(g) {
		return Polygon{}, fmt.Errorf("reprojecting %s to %s produced non-finite coordinates", p.srs, to)
	}
	return NewPolygon(g, to)
}

func finite(g orb.Geometry) bool {
	var polys []orb.Polygon
	switch v := g.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{v}
	case orb.MultiPolygon:
		polys = v
	}
	for _, poly := range polys {
		for _, ring := range poly {
			for _, pt := range ring {
				if math.IsNaN(pt[0]) || math.IsNaN(pt[1]) || math.IsInf(pt[0], 0) || math.IsInf(pt[1], 0) {
					return false
				}
			}
		}
	}
	return true
}
