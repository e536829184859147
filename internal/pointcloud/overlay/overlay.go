// Package overlay assigns polygon attribute values to the points they
// cover.
//
// The polygons are loaded once from a geometry source when the stage
// becomes ready. Each chunk is then indexed and every polygon, in source
// order, overwrites the target field of the points it covers; a later
// polygon wins over an earlier one for shared points.
package overlay

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/paulmach/orb"

	"github.com/fdbesanto2/PDAL/internal/pointcloud"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/geometry"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/geosource"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/pointdata"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/schema"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/spatial"
)

// Index kinds.
const (
	IndexQuad = "quad"
	IndexGrid = "grid"
)

// DefaultGridCellSize is the grid cell edge used when none is configured.
const DefaultGridCellSize = 10.0

// Options configures an Overlay.
type Options struct {
	Dimension  string // target field name, e.g. "Classification"
	Datasource string // geometry source locator
	Column     string // attribute field; the first field when empty
	Query      string // SQL run against the source
	Layer      string // layer name; takes precedence over Query

	Index        string  // IndexQuad (default) or IndexGrid
	GridCellSize float64 // grid cell edge in layout units
}

// Entry is one polygon and the value it assigns.
type Entry struct {
	Polygon geometry.Polygon
	Value   int64
}

// Result reports what one Filter call did.
type Result struct {
	Indexed  int   // points in the spatial index
	Assigned []int // covered points per polygon, in polygon order
}

// Overlay is the spatial join stage.
type Overlay struct {
	opts Options
	open geosource.Opener

	item     schema.DataItem
	kind     schema.ValueKind
	prepared bool

	polygons []Entry
}

// New validates opts and returns an unprepared Overlay.
func New(opts Options) (*Overlay, error) {
	if opts.Dimension == "" {
		return nil, errors.New("overlay: dimension is required")
	}
	if opts.Datasource == "" {
		return nil, errors.New("overlay: datasource is required")
	}
	switch opts.Index {
	case "":
		opts.Index = IndexQuad
	case IndexQuad, IndexGrid:
	default:
		return nil, fmt.Errorf("overlay: unknown index %q (want %q or %q)", opts.Index, IndexQuad, IndexGrid)
	}
	if opts.GridCellSize < 0 || math.IsNaN(opts.GridCellSize) || math.IsInf(opts.GridCellSize, 0) {
		return nil, fmt.Errorf("overlay: grid cell size must be positive, got %g", opts.GridCellSize)
	}
	if opts.GridCellSize == 0 {
		opts.GridCellSize = DefaultGridCellSize
	}
	return &Overlay{opts: opts, open: geosource.Open}, nil
}

// SetOpener replaces the function used to open the datasource.
func (o *Overlay) SetOpener(open geosource.Opener) { o.open = open }

// Options returns the effective options.
func (o *Overlay) Options() Options { return o.opts }

// Polygons returns the loaded polygons in assignment order.
func (o *Overlay) Polygons() []Entry { return o.polygons }

// Prepared resolves the target dimension against layout. The layout must
// also carry X and Y.
func (o *Overlay) Prepared(layout *schema.Layout) error {
	const op = "overlay.prepared"
	f, ok := layout.FindFieldByName(o.opts.Dimension)
	if !ok {
		return pointcloud.Errorf(pointcloud.KindSchema, op, "dimension '%s' not found", o.opts.Dimension)
	}
	if err := pointdata.RequirePosition(layout, schema.XPos, schema.YPos); err != nil {
		return err
	}
	o.item = f.Item()
	o.kind = f.Kind()
	o.prepared = true
	pointcloud.Diagf("overlay: target %s (%s)", f.Item(), f.Kind())
	return nil
}

// Ready loads the polygons. Polygons take the layer's spatial reference,
// or srs when the layer has none; when srs is set and differs from the
// layer's, the polygons are reprojected into it.
func (o *Overlay) Ready(srs geometry.SpatialReference) error {
	const op = "overlay.ready"
	if !o.prepared {
		return pointcloud.Errorf(pointcloud.KindSchema, op, "Prepared was not called")
	}

	ds, err := o.open(o.opts.Datasource)
	if err != nil {
		return pointcloud.Wrap(pointcloud.KindGeometryLoad, op, err, "unable to open datasource %q", o.opts.Datasource)
	}
	defer ds.Close()

	layer, err := o.selectLayer(ds)
	if err != nil {
		return pointcloud.Wrap(pointcloud.KindGeometryLoad, op, err, "unable to select layer in %q", o.opts.Datasource)
	}
	defer layer.Close()

	col := 0
	if o.opts.Column != "" {
		col = layer.FieldIndex(o.opts.Column)
		if col < 0 {
			return pointcloud.Errorf(pointcloud.KindGeometryLoad, op,
				"column %q not found in layer %q (fields %v)", o.opts.Column, layer.Name(), layer.FieldNames())
		}
	} else if len(layer.FieldNames()) == 0 {
		return pointcloud.Errorf(pointcloud.KindGeometryLoad, op, "layer %q has no attribute fields", layer.Name())
	}

	layerSRS := layer.SpatialReference()
	if layerSRS.IsEmpty() {
		layerSRS = srs
	}
	lo, hi := o.kind.Range()

	var polygons []Entry
	for i := 0; ; i++ {
		f, err := layer.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return pointcloud.Wrap(pointcloud.KindGeometryLoad, op, err, "reading feature %d of layer %q", i, layer.Name())
		}
		poly, err := geometry.NewPolygon(f.Geometry, layerSRS)
		if err != nil {
			return pointcloud.Wrap(pointcloud.KindGeometryLoad, op, err, "feature %d of layer %q", i, layer.Name())
		}
		v, err := f.Int(col)
		if err != nil {
			return pointcloud.Wrap(pointcloud.KindGeometryLoad, op, err, "feature %d of layer %q", i, layer.Name())
		}
		if float64(v) < lo || float64(v) > hi {
			return pointcloud.Errorf(pointcloud.KindGeometryLoad, op,
				"feature %d of layer %q: value %d does not fit %s field %s", i, layer.Name(), v, o.kind, o.item)
		}
		polygons = append(polygons, Entry{Polygon: poly, Value: v})
	}
	o.polygons = polygons

	if len(polygons) == 0 {
		pointcloud.Opsf("overlay: warning: layer %q of %q has no features", layer.Name(), o.opts.Datasource)
	} else {
		pointcloud.Opsf("overlay: loaded %d polygons from layer %q", len(polygons), layer.Name())
	}

	if !srs.IsEmpty() && srs != layerSRS {
		return o.SpatialReferenceChanged(srs)
	}
	return nil
}

// selectLayer applies layer > query > first layer.
func (o *Overlay) selectLayer(ds geosource.DataSource) (geosource.Layer, error) {
	switch {
	case o.opts.Layer != "":
		return ds.LayerByName(o.opts.Layer)
	case o.opts.Query != "":
		return ds.ExecuteSQL(o.opts.Query)
	case ds.LayerCount() == 0:
		return nil, errors.New("datasource has no layers")
	}
	return ds.LayerAt(0)
}

// SpatialReferenceChanged reprojects every polygon into srs, keeping
// order and values. On failure the polygons are left unchanged.
func (o *Overlay) SpatialReferenceChanged(srs geometry.SpatialReference) error {
	out := make([]Entry, len(o.polygons))
	for i, e := range o.polygons {
		p, err := e.Polygon.Transform(srs)
		if err != nil {
			return pointcloud.Wrap(pointcloud.KindReprojection, "overlay.spatial_reference_changed", err,
				"polygon %d", i)
		}
		out[i] = Entry{Polygon: p, Value: e.Value}
	}
	o.polygons = out
	pointcloud.Diagf("overlay: reprojected %d polygons to %s", len(out), srs)
	return nil
}

func (o *Overlay) target(data *pointdata.Data) (int, error) {
	if !o.prepared {
		return -1, pointcloud.Errorf(pointcloud.KindSchema, "overlay.filter", "Prepared was not called")
	}
	f := data.Layout().FindFieldIndex(o.item)
	if f < 0 {
		return -1, pointcloud.Errorf(pointcloud.KindSchema, "overlay.filter", "dimension '%s' not found", o.opts.Dimension)
	}
	return f, nil
}

func (o *Overlay) buildIndex(data *pointdata.Data) (spatial.Index, error) {
	if o.opts.Index == IndexGrid {
		return spatial.NewGridIndex(data, o.opts.GridCellSize)
	}
	return spatial.NewQuadIndex(data)
}

// Filter assigns polygon values to the valid points of data. Points
// outside every polygon keep their value.
func (o *Overlay) Filter(data *pointdata.Data) (Result, error) {
	f, err := o.target(data)
	if err != nil {
		return Result{}, err
	}
	idx, err := o.buildIndex(data)
	if err != nil {
		return Result{}, err
	}

	res := Result{Indexed: idx.Len(), Assigned: make([]int, len(o.polygons))}
	for i, e := range o.polygons {
		for _, p := range idx.InBound(e.Polygon.Bounds()) {
			if e.Polygon.Covers(orb.Point{data.X(p), data.Y(p)}) {
				data.SetValue(p, f, float64(e.Value))
				res.Assigned[i]++
			}
		}
	}
	pointcloud.Tracef("overlay: %d points indexed, assigned %v", res.Indexed, res.Assigned)
	return res, nil
}

// ProcessOne assigns to point p without an index and reports whether any
// polygon covered it. It fails like Filter when the stage is not prepared
// or data lacks the target field.
func (o *Overlay) ProcessOne(data *pointdata.Data, p int) (bool, error) {
	f, err := o.target(data)
	if err != nil {
		return false, err
	}
	if !data.IsValid(p) {
		return false, nil
	}
	pt := orb.Point{data.X(p), data.Y(p)}
	hit := false
	for _, e := range o.polygons {
		if e.Polygon.Covers(pt) {
			data.SetValue(p, f, float64(e.Value))
			hit = true
		}
	}
	return hit, nil
}
