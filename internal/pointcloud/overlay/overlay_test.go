package overlay

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fdbesanto2/PDAL/internal/fsutil"
	"github.com/fdbesanto2/PDAL/internal/geostore"
	"github.com/fdbesanto2/PDAL/internal/pointcloud"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/geometry"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/geosource"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/pointdata"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/schema"
)

type fakeLayer struct {
	name     string
	fields   []string
	srs      geometry.SpatialReference
	features []*geosource.Feature
	pos      int
	closed   bool
}

func (l *fakeLayer) Name() string                                { return l.name }
func (l *fakeLayer) FieldNames() []string                        { return l.fields }
func (l *fakeLayer) SpatialReference() geometry.SpatialReference { return l.srs }
func (l *fakeLayer) Close() error                                { l.closed = true; return nil }

func (l *fakeLayer) FieldIndex(name string) int {
	for i, f := range l.fields {
		if f == name {
			return i
		}
	}
	return -1
}

func (l *fakeLayer) Next() (*geosource.Feature, error) {
	if l.pos >= len(l.features) {
		return nil, io.EOF
	}
	f := l.features[l.pos]
	l.pos++
	return f, nil
}

type fakeSource struct {
	layers  []*fakeLayer
	queried string
	closed  bool
}

func (s *fakeSource) LayerCount() int { return len(s.layers) }
func (s *fakeSource) Close() error    { s.closed = true; return nil }

func (s *fakeSource) LayerAt(i int) (geosource.Layer, error) {
	if i >= len(s.layers) {
		return nil, geosource.ErrLayerNotFound
	}
	return s.layers[i], nil
}

func (s *fakeSource) LayerByName(name string) (geosource.Layer, error) {
	for _, l := range s.layers {
		if l.name == name {
			return l, nil
		}
	}
	return nil, geosource.ErrLayerNotFound
}

func (s *fakeSource) ExecuteSQL(query string) (geosource.Layer, error) {
	s.queried = query
	return &fakeLayer{name: "sql", fields: []string{"v"}, features: []*geosource.Feature{
		{Geometry: square(0, 0, 100), Values: []any{int64(9)}},
	}}, nil
}

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x, y + size}, {x + size, y + size}, {x + size, y}, {x, y}}}
}

func polygonLayer(name string, polys []orb.Geometry, values ...int64) *fakeLayer {
	l := &fakeLayer{name: name, fields: []string{"cls", "label"}}
	for i, g := range polys {
		l.features = append(l.features, &geosource.Feature{Geometry: g, Values: []any{values[i], "x"}})
	}
	return l
}

func layout() *schema.Layout {
	return schema.NewLayout(
		schema.NewField(schema.XPos, schema.Float64),
		schema.NewField(schema.YPos, schema.Float64),
		schema.NewField(schema.ZPos, schema.Float64),
		schema.NewField(schema.Classification, schema.Uint8),
	)
}

func points(t *testing.T, pts ...orb.Point) *pointdata.Data {
	t.Helper()
	d, err := pointdata.New(layout(), len(pts))
	require.NoError(t, err)
	for i, p := range pts {
		d.SetX(i, p[0])
		d.SetY(i, p[1])
	}
	return d
}

func classes(d *pointdata.Data) []float64 {
	f := d.Layout().FindFieldIndex(schema.Classification)
	out := make([]float64, d.NumPoints())
	for p := range out {
		out[p] = d.Value(p, f)
	}
	return out
}

func ready(t *testing.T, opts Options, src *fakeSource) *Overlay {
	t.Helper()
	o, err := New(opts)
	require.NoError(t, err)
	o.SetOpener(func(string) (geosource.DataSource, error) { return src, nil })
	require.NoError(t, o.Prepared(layout()))
	require.NoError(t, o.Ready(geometry.SpatialReference{}))
	return o
}

func baseOptions() Options {
	return Options{Dimension: "Classification", Datasource: "polys.geojson"}
}

func TestSquareAssignsBoundaryInclusive(t *testing.T) {
	for _, index := range []string{IndexQuad, IndexGrid} {
		t.Run(index, func(t *testing.T) {
			src := &fakeSource{layers: []*fakeLayer{
				polygonLayer("zones", []orb.Geometry{orb.Polygon{{{0, 0}, {0, 10}, {10, 10}, {10, 0}}}}, 5),
			}}
			opts := baseOptions()
			opts.Index = index
			opts.GridCellSize = 2
			o := ready(t, opts, src)

			d := points(t, orb.Point{1, 1}, orb.Point{20, 20}, orb.Point{5, 5}, orb.Point{0, 0})
			res, err := o.Filter(d)
			require.NoError(t, err)
			assert.Equal(t, []float64{5, 0, 5, 5}, classes(d))
			assert.Equal(t, 4, res.Indexed)
			assert.Equal(t, []int{3}, res.Assigned)
			assert.True(t, src.closed, "datasource closed after Ready")
		})
	}
}

func TestOverlapLastPolygonWins(t *testing.T) {
	src := &fakeSource{layers: []*fakeLayer{
		polygonLayer("zones", []orb.Geometry{square(0, 0, 10), square(5, 5, 10)}, 1, 2),
	}}
	o := ready(t, baseOptions(), src)

	d := points(t, orb.Point{7, 7}, orb.Point{2, 2}, orb.Point{12, 12}, orb.Point{50, 50})
	f := d.Layout().FindFieldIndex(schema.Classification)
	d.SetValue(3, f, 42)

	res, err := o.Filter(d)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1, 2, 42}, classes(d))
	assert.Equal(t, []int{2, 2}, res.Assigned)

	// Reversed order reverses the winner.
	src = &fakeSource{layers: []*fakeLayer{
		polygonLayer("zones", []orb.Geometry{square(5, 5, 10), square(0, 0, 10)}, 2, 1),
	}}
	o = ready(t, baseOptions(), src)
	d = points(t, orb.Point{7, 7})
	_, err = o.Filter(d)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, classes(d))
}

func TestProcessOneMatchesFilter(t *testing.T) {
	src := &fakeSource{layers: []*fakeLayer{
		polygonLayer("zones", []orb.Geometry{square(0, 0, 10), square(5, 5, 10)}, 1, 2),
	}}
	o := ready(t, baseOptions(), src)

	pts := []orb.Point{{7, 7}, {2, 2}, {12, 12}, {50, 50}, {10, 0}}
	batch := points(t, pts...)
	_, err := o.Filter(batch)
	require.NoError(t, err)

	single := points(t, pts...)
	hits := 0
	for p := range pts {
		hit, err := o.ProcessOne(single, p)
		require.NoError(t, err)
		if hit {
			hits++
		}
	}
	assert.Equal(t, classes(batch), classes(single))
	assert.Equal(t, 4, hits)
}

func TestInvalidPointsUntouched(t *testing.T) {
	src := &fakeSource{layers: []*fakeLayer{polygonLayer("zones", []orb.Geometry{square(0, 0, 10)}, 3)}}
	o := ready(t, baseOptions(), src)

	d := points(t, orb.Point{1, 1}, orb.Point{2, 2}, orb.Point{math.NaN(), 1})
	d.SetValid(1, false)
	_, err := o.Filter(d)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 0, 0}, classes(d))
	hit, err := o.ProcessOne(d, 1)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestProcessOneReportsSchemaErrors(t *testing.T) {
	o, err := New(baseOptions())
	require.NoError(t, err)
	d := points(t, orb.Point{1, 1})
	hit, err := o.ProcessOne(d, 0)
	assert.False(t, hit)
	assert.True(t, errors.Is(err, pointcloud.ErrSchema), "not prepared")

	src := &fakeSource{layers: []*fakeLayer{polygonLayer("zones", []orb.Geometry{square(0, 0, 10)}, 3)}}
	o = ready(t, baseOptions(), src)
	xy := schema.NewLayout(
		schema.NewField(schema.XPos, schema.Float64),
		schema.NewField(schema.YPos, schema.Float64),
	)
	noClass, err := pointdata.New(xy, 1)
	require.NoError(t, err)
	noClass.SetX(0, 1)
	noClass.SetY(0, 1)
	hit, err = o.ProcessOne(noClass, 0)
	assert.False(t, hit)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pointcloud.ErrSchema))
	assert.Contains(t, err.Error(), "dimension 'Classification' not found")
}

func TestPointGeometryFailsReadiness(t *testing.T) {
	src := &fakeSource{layers: []*fakeLayer{
		polygonLayer("zones", []orb.Geometry{orb.Point{1, 1}, square(0, 0, 10)}, 1, 2),
	}}
	o, err := New(baseOptions())
	require.NoError(t, err)
	o.SetOpener(func(string) (geosource.DataSource, error) { return src, nil })
	require.NoError(t, o.Prepared(layout()))

	err = o.Ready(geometry.SpatialReference{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pointcloud.ErrGeometryLoad))
	assert.Contains(t, err.Error(), "Point")
	assert.Empty(t, o.Polygons())
	assert.True(t, src.layers[0].closed)
}

func TestDimensionNotFound(t *testing.T) {
	o, err := New(Options{Dimension: "Intensity", Datasource: "x.geojson"})
	require.NoError(t, err)
	err = o.Prepared(layout())
	require.Error(t, err)
	assert.True(t, errors.Is(err, pointcloud.ErrSchema))
	assert.Contains(t, err.Error(), "dimension 'Intensity' not found")

	o, err = New(Options{Dimension: "Classification", Datasource: "x.geojson"})
	require.NoError(t, err)
	noXY := schema.NewLayout(schema.NewField(schema.Classification, schema.Uint8))
	assert.True(t, errors.Is(o.Prepared(noXY), pointcloud.ErrSchema))

	err = o.Ready(geometry.SpatialReference{})
	assert.True(t, errors.Is(err, pointcloud.ErrSchema), "Ready before Prepared")
}

func TestNewValidatesOptions(t *testing.T) {
	for name, opts := range map[string]Options{
		"no dimension":  {Datasource: "a.geojson"},
		"no datasource": {Dimension: "Classification"},
		"bad index":     {Dimension: "Classification", Datasource: "a.geojson", Index: "rtree"},
		"bad cell":      {Dimension: "Classification", Datasource: "a.geojson", GridCellSize: -1},
	} {
		_, err := New(opts)
		assert.Error(t, err, name)
	}
	o, err := New(baseOptions())
	require.NoError(t, err)
	assert.Equal(t, IndexQuad, o.Options().Index)
	assert.Equal(t, DefaultGridCellSize, o.Options().GridCellSize)
}

func TestLayerSelectionPrecedence(t *testing.T) {
	first := polygonLayer("first", []orb.Geometry{square(0, 0, 1)}, 1)
	named := polygonLayer("named", []orb.Geometry{square(0, 0, 1)}, 2)

	opts := baseOptions()
	opts.Layer = "named"
	opts.Query = "SELECT * FROM first"
	src := &fakeSource{layers: []*fakeLayer{first, named}}
	o := ready(t, opts, src)
	require.Len(t, o.Polygons(), 1)
	assert.Equal(t, int64(2), o.Polygons()[0].Value)
	assert.Empty(t, src.queried)

	opts.Layer = ""
	src = &fakeSource{layers: []*fakeLayer{polygonLayer("first", []orb.Geometry{square(0, 0, 1)}, 1)}}
	o = ready(t, opts, src)
	assert.Equal(t, "SELECT * FROM first", src.queried)
	assert.Equal(t, int64(9), o.Polygons()[0].Value)

	opts.Query = ""
	src = &fakeSource{layers: []*fakeLayer{polygonLayer("first", []orb.Geometry{square(0, 0, 1)}, 1)}}
	o = ready(t, opts, src)
	assert.Equal(t, int64(1), o.Polygons()[0].Value)
}

func TestColumnSelection(t *testing.T) {
	mk := func() *fakeSource {
		l := &fakeLayer{name: "zones", fields: []string{"a", "b"}, features: []*geosource.Feature{
			{Geometry: square(0, 0, 1), Values: []any{int64(1), "7"}},
		}}
		return &fakeSource{layers: []*fakeLayer{l}}
	}

	opts := baseOptions()
	opts.Column = "b"
	o := ready(t, opts, mk())
	assert.Equal(t, int64(7), o.Polygons()[0].Value)

	opts.Column = "missing"
	o, err := New(opts)
	require.NoError(t, err)
	o.SetOpener(func(string) (geosource.DataSource, error) { return mk(), nil })
	require.NoError(t, o.Prepared(layout()))
	err = o.Ready(geometry.SpatialReference{})
	assert.True(t, errors.Is(err, pointcloud.ErrGeometryLoad))
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestReadyFailures(t *testing.T) {
	open := func(src geosource.DataSource, err error) *Overlay {
		o, nerr := New(baseOptions())
		require.NoError(t, nerr)
		o.SetOpener(func(string) (geosource.DataSource, error) { return src, err })
		require.NoError(t, o.Prepared(layout()))
		return o
	}

	err := open(nil, errors.New("boom")).Ready(geometry.SpatialReference{})
	assert.True(t, errors.Is(err, pointcloud.ErrGeometryLoad))
	assert.Contains(t, err.Error(), "boom")

	err = open(&fakeSource{}, nil).Ready(geometry.SpatialReference{})
	assert.True(t, errors.Is(err, pointcloud.ErrGeometryLoad), "no layers")

	// 300 does not fit the uint8 Classification field.
	big := &fakeSource{layers: []*fakeLayer{polygonLayer("zones", []orb.Geometry{square(0, 0, 1)}, 300)}}
	err = open(big, nil).Ready(geometry.SpatialReference{})
	assert.True(t, errors.Is(err, pointcloud.ErrGeometryLoad))
	assert.Contains(t, err.Error(), "300")

	noFields := &fakeSource{layers: []*fakeLayer{{name: "bare"}}}
	err = open(noFields, nil).Ready(geometry.SpatialReference{})
	assert.True(t, errors.Is(err, pointcloud.ErrGeometryLoad))

	empty := &fakeSource{layers: []*fakeLayer{{name: "empty", fields: []string{"v"}}}}
	o := open(empty, nil)
	require.NoError(t, o.Ready(geometry.SpatialReference{}))
	d := points(t, orb.Point{1, 1})
	res, err := o.Filter(d)
	require.NoError(t, err)
	assert.Empty(t, res.Assigned)
}

func TestReprojection(t *testing.T) {
	wgs84 := geometry.SpatialReference{Code: geometry.EPSGWGS84}
	merc := geometry.SpatialReference{Code: geometry.EPSGWebMercator}

	l := polygonLayer("zones", []orb.Geometry{square(174, -37, 1), square(174.5, -36.5, 1)}, 1, 2)
	l.srs = wgs84
	o, err := New(baseOptions())
	require.NoError(t, err)
	o.SetOpener(func(string) (geosource.DataSource, error) { return &fakeSource{layers: []*fakeLayer{l}}, nil })
	require.NoError(t, o.Prepared(layout()))

	// Ready with the working reference reprojects straight away.
	require.NoError(t, o.Ready(merc))
	require.Len(t, o.Polygons(), 2)
	for i, e := range o.Polygons() {
		assert.Equal(t, merc, e.Polygon.SpatialReference())
		assert.Equal(t, int64(i+1), e.Value)
	}
	b := o.Polygons()[0].Polygon.Bounds()
	assert.InDelta(t, 19369591.0, b.Min[0], 1000)

	// A Mercator point inside the first square.
	d := points(t, orb.Point{19425000, -4400000})
	_, err = o.Filter(d)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, classes(d))

	require.NoError(t, o.SpatialReferenceChanged(wgs84))
	assert.InDelta(t, 174.0, o.Polygons()[0].Polygon.Bounds().Min[0], 1e-6)

	before := o.Polygons()
	err = o.SpatialReferenceChanged(geometry.SpatialReference{Code: 2193})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pointcloud.ErrReprojection))
	assert.True(t, errors.Is(err, geometry.ErrUnsupportedTransform))
	assert.Equal(t, before, o.Polygons())
}

func TestGeoJSONDatasourceEndToEnd(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile("zones.geojson", []byte(`{"type":"FeatureCollection","features":[
	  {"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[0,10],[10,10],[10,0],[0,0]]]},"properties":{"cls":6}}
	]}`), 0o644))

	opts := baseOptions()
	opts.Datasource = "zones.geojson"
	o, err := New(opts)
	require.NoError(t, err)
	o.SetOpener(func(loc string) (geosource.DataSource, error) { return geosource.OpenFS(fs, loc) })
	require.NoError(t, o.Prepared(layout()))
	require.NoError(t, o.Ready(geometry.SpatialReference{}))

	d := points(t, orb.Point{3, 3}, orb.Point{30, 3})
	_, err = o.Filter(d)
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 0}, classes(d))
}

// polygonZWKB encodes a single-ring ISO WKB Polygon Z.
func polygonZWKB(ring [][3]float64) []byte {
	var buf bytes.Buffer
	buf.WriteByte(1)
	binary.Write(&buf, binary.LittleEndian, uint32(1003))
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, uint32(len(ring)))
	for _, c := range ring {
		binary.Write(&buf, binary.LittleEndian, c)
	}
	return buf.Bytes()
}

func TestGeostorePolygonZEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.sqlite")
	db, err := geostore.Open(path)
	require.NoError(t, err)
	require.NoError(t, db.MigrateUp())
	_, err = db.Exec(`CREATE TABLE zones (fid INTEGER PRIMARY KEY, geom BLOB, cls INTEGER)`)
	require.NoError(t, err)
	ring := [][3]float64{{0, 0, 12.5}, {0, 10, 12.5}, {10, 10, 13}, {10, 0, 13}, {0, 0, 12.5}}
	_, err = db.Exec(`INSERT INTO zones (geom, cls) VALUES (?, 5)`, polygonZWKB(ring))
	require.NoError(t, err)
	_, err = db.RegisterLayer(context.Background(), geostore.LayerInfo{Name: "zones", GeometryColumn: "geom"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	opts := baseOptions()
	opts.Datasource = path
	o, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, o.Prepared(layout()))
	require.NoError(t, o.Ready(geometry.SpatialReference{}))
	require.Len(t, o.Polygons(), 1)

	d := points(t, orb.Point{3, 3}, orb.Point{30, 3}, orb.Point{10, 5})
	res, err := o.Filter(d)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 0, 5}, classes(d))
	assert.Equal(t, []int{2}, res.Assigned)
}
