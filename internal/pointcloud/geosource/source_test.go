package geosource

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fdbesanto2/PDAL/internal/fsutil"
	"github.com/fdbesanto2/PDAL/internal/geostore"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/geometry"
)

const zonesGeoJSON = `{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::3857"}},
  "features": [
    {"type": "Feature",
     "geometry": {"type": "Polygon", "coordinates": [[[0,0,1],[10,0,1],[10,10,1],[0,10,1],[0,0,1]]]},
     "properties": {"cls": 5, "name": "square"}},
    {"type": "Feature",
     "geometry": {"type": "Point", "coordinates": [1, 2]},
     "properties": {"cls": "7", "extra": true}}
  ]
}`

func drain(t *testing.T, l Layer) []*Feature {
	t.Helper()
	var out []*Feature
	for {
		f, err := l.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, f)
	}
}

func memSource(t *testing.T, name, body string) DataSource {
	t.Helper()
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile(name, []byte(body), 0o644))
	ds, err := OpenFS(fs, name)
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return ds
}

func TestGeoJSONLayer(t *testing.T) {
	ds := memSource(t, "/data/zones.geojson", zonesGeoJSON)
	require.Equal(t, 1, ds.LayerCount())

	l, err := ds.LayerAt(0)
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, "zones", l.Name())
	assert.Equal(t, []string{"cls", "extra", "name"}, l.FieldNames())
	assert.Equal(t, 2, l.FieldIndex("name"))
	assert.Equal(t, -1, l.FieldIndex("missing"))
	assert.Equal(t, geometry.SpatialReference{Code: 3857}, l.SpatialReference())

	features := drain(t, l)
	require.Len(t, features, 2)

	poly, ok := features[0].Geometry.(orb.Polygon)
	require.True(t, ok, "first geometry is %T", features[0].Geometry)
	assert.Equal(t, orb.Point{10, 10}, poly[0][2], "third coordinate is dropped")
	assert.Equal(t, []any{5.0, nil, "square"}, features[0].Values)

	_, ok = features[1].Geometry.(orb.Point)
	assert.True(t, ok)
	v, err := features[1].Int(0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	// Further reads stay at EOF.
	_, err = l.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestGeoJSONDefaultsAndErrors(t *testing.T) {
	ds := memSource(t, "plain.json", `{"type":"FeatureCollection","features":[]}`)
	l, err := ds.LayerByName("plain")
	require.NoError(t, err)
	assert.Equal(t, geometry.SpatialReference{Code: geometry.EPSGWGS84}, l.SpatialReference())
	assert.Empty(t, drain(t, l))

	_, err = ds.LayerByName("other")
	assert.ErrorIs(t, err, ErrLayerNotFound)
	_, err = ds.LayerAt(1)
	assert.ErrorIs(t, err, ErrLayerNotFound)
	_, err = ds.ExecuteSQL("SELECT 1")
	assert.ErrorIs(t, err, ErrUnsupported)

	single := memSource(t, "one.geojson", `{"type":"Feature","geometry":{"type":"Point","coordinates":[1,1]},"properties":{"v":1}}`)
	l, err = single.LayerAt(0)
	require.NoError(t, err)
	assert.Len(t, drain(t, l), 1)

	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile("bad.geojson", []byte(`{"type":"Nope"}`), 0o644))
	_, err = OpenFS(fs, "bad.geojson")
	assert.Error(t, err)
	_, err = OpenFS(fs, "missing.geojson")
	assert.Error(t, err)
	_, err = OpenFS(fs, "polys.shp")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestFeatureInt(t *testing.T) {
	f := &Feature{Values: []any{nil, int64(-3), 7.9, "12", " 4.5 ", true, "abc", map[string]any{}, 1e300}}
	for i, want := range []int64{0, -3, 7, 12, 4, 1} {
		got, err := f.Int(i)
		require.NoError(t, err, "attribute %d", i)
		assert.Equal(t, want, got, "attribute %d", i)
	}
	for _, i := range []int{6, 7, 8, 9, -1} {
		_, err := f.Int(i)
		assert.Error(t, err, "attribute %d", i)
	}
}

func storeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "polys.sqlite")
	db, err := geostore.Open(path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.MigrateUp())

	ctx := context.Background()
	fc := geojson.NewFeatureCollection()
	for i, v := range []float64{3, 4} {
		x := float64(i * 20)
		f := geojson.NewFeature(orb.Polygon{{{x, 0}, {x + 10, 0}, {x + 10, 10}, {x, 10}, {x, 0}}})
		f.Properties["code"] = v
		f.Properties["label"] = "zone"
		fc.Append(f)
	}
	_, err = db.ImportFeatureCollection(ctx, "zones", "EPSG:3857", fc)
	require.NoError(t, err)

	pts := geojson.NewFeatureCollection()
	pts.Append(geojson.NewFeature(orb.Point{1, 1}))
	_, err = db.ImportFeatureCollection(ctx, "points", "", pts)
	require.NoError(t, err)

	_, err = db.Exec(`CREATE TABLE parcels (fid INTEGER PRIMARY KEY, shape TEXT, owner_id INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO parcels (shape, owner_id) VALUES ('POLYGON((0 0,1 0,1 1,0 1,0 0))', 9)`)
	require.NoError(t, err)
	_, err = db.RegisterLayer(ctx, geostore.LayerInfo{Name: "parcels", GeometryColumn: "shape", GeometryFormat: "WKT"})
	require.NoError(t, err)
	return path
}

func TestSQLiteLayers(t *testing.T) {
	ds, err := Open(storeFixture(t))
	require.NoError(t, err)
	defer ds.Close()

	require.Equal(t, 3, ds.LayerCount())

	l, err := ds.LayerAt(0)
	require.NoError(t, err)
	assert.Equal(t, "zones", l.Name())
	assert.Equal(t, []string{"code", "label"}, l.FieldNames())
	assert.Equal(t, geometry.SpatialReference{Code: 3857}, l.SpatialReference())
	features := drain(t, l)
	require.Len(t, features, 2)
	for i, f := range features {
		_, ok := f.Geometry.(orb.Polygon)
		assert.True(t, ok, "feature %d geometry %T", i, f.Geometry)
		v, err := f.Int(0)
		require.NoError(t, err)
		assert.Equal(t, int64(3+i), v)
		assert.Equal(t, "zone", f.Values[1])
	}
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	l, err = ds.LayerByName("parcels")
	require.NoError(t, err)
	assert.Equal(t, []string{"owner_id"}, l.FieldNames())
	features = drain(t, l)
	require.Len(t, features, 1)
	assert.Equal(t, orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}, features[0].Geometry)
	require.NoError(t, l.Close())

	_, err = ds.LayerByName("nope")
	assert.ErrorIs(t, err, ErrLayerNotFound)
}

func TestSQLiteExecuteSQL(t *testing.T) {
	ds, err := Open("sqlite:" + storeFixture(t))
	require.NoError(t, err)
	defer ds.Close()

	l, err := ds.ExecuteSQL(`SELECT code, geom FROM zones WHERE code > 3`)
	require.NoError(t, err)
	assert.Equal(t, "sql", l.Name())
	assert.Equal(t, []string{"code"}, l.FieldNames())
	assert.True(t, l.SpatialReference().IsEmpty())
	features := drain(t, l)
	require.Len(t, features, 1)
	v, err := features[0].Int(0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)
	require.NoError(t, l.Close())

	_, err = ds.ExecuteSQL(`SELECT code FROM zones`)
	assert.Error(t, err, "no geometry column")
	_, err = ds.ExecuteSQL(`SELECT * FROM missing_table`)
	assert.Error(t, err)
}

func TestSQLiteOpenErrors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.sqlite"))
	assert.Error(t, err)

	// A database without the layer registry.
	path := filepath.Join(t.TempDir(), "bare.db")
	db, err := geostore.Open(path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE t (x INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path)
	assert.Error(t, err)
}
