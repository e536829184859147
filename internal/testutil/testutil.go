// Package testutil provides shared test fixtures: point batches,
// TerraSolid files and polygon collections.
package testutil

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/fdbesanto2/PDAL/internal/fsutil"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/pointdata"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/schema"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/terrasolid"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// XYZClassLayout returns float64 X, Y, Z and a uint8 Classification.
func XYZClassLayout() *schema.Layout {
	return schema.NewLayout(
		schema.NewField(schema.XPos, schema.Float64),
		schema.NewField(schema.YPos, schema.Float64),
		schema.NewField(schema.ZPos, schema.Float64),
		schema.NewField(schema.Classification, schema.Uint8),
	)
}

// Points allocates a batch under XYZClassLayout with the given positions
// and Classification 0.
func Points(t testing.TB, pts ...[3]float64) *pointdata.Data {
	t.Helper()
	d, err := pointdata.New(XYZClassLayout(), len(pts))
	AssertNoError(t, err)
	for i, p := range pts {
		d.SetX(i, p[0])
		d.SetY(i, p[1])
		d.SetZ(i, p[2])
	}
	return d
}

// WriteTerraSolid writes pts to path on fs as a millimetre-scaled BIN
// file and returns the number of points written.
func WriteTerraSolid(t testing.TB, fs fsutil.FileSystem, path string, pts ...[3]float64) int {
	t.Helper()
	f, err := fs.Create(path)
	AssertNoError(t, err)
	w, err := terrasolid.NewWriter(f, terrasolid.NewHeader(1000, 0, 0, 0, false, false))
	AssertNoError(t, err)
	AssertNoError(t, w.Write(Points(t, pts...), len(pts)))
	AssertNoError(t, w.Close())
	return w.Count()
}

// Square returns the closed axis-aligned square with corner (x, y).
func Square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x, y + size}, {x + size, y + size}, {x + size, y}, {x, y}}}
}

// PolygonCollection builds a FeatureCollection with one feature per
// polygon, carrying its value in property key.
func PolygonCollection(key string, polys []orb.Polygon, values ...int) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, p := range polys {
		f := geojson.NewFeature(p)
		f.Properties[key] = float64(values[i])
		fc.Append(f)
	}
	return fc
}

// WriteGeoJSON marshals fc to path on fs.
func WriteGeoJSON(t testing.TB, fs fsutil.FileSystem, path string, fc *geojson.FeatureCollection) {
	t.Helper()
	data, err := fc.MarshalJSON()
	AssertNoError(t, err)
	AssertNoError(t, fs.WriteFile(path, data, 0o644))
}
