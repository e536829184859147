package geosource

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/fdbesanto2/PDAL/internal/fsutil"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/geometry"
)

// geojsonSource holds a whole FeatureCollection as its single layer.
type geojsonSource struct {
	name   string
	fields []string
	srs    geometry.SpatialReference
	fc     *geojson.FeatureCollection
}

func openGeoJSON(fs fsutil.FileSystem, path string) (DataSource, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		// A lone Feature is accepted as a one-feature collection.
		f, ferr := geojson.UnmarshalFeature(data)
		if ferr != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		fc = geojson.NewFeatureCollection()
		fc.Append(f)
	}

	srs, err := legacyCRS(fc)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	seen := map[string]bool{}
	var fields []string
	for _, f := range fc.Features {
		for k := range f.Properties {
			if !seen[k] {
				seen[k] = true
				fields = append(fields, k)
			}
		}
	}
	sort.Strings(fields)

	base := filepath.Base(path)
	return &geojsonSource{
		name:   strings.TrimSuffix(base, filepath.Ext(base)),
		fields: fields,
		srs:    srs,
		fc:     fc,
	}, nil
}

// legacyCRS reads the pre-RFC 7946 "crs" member. Without one, GeoJSON
// coordinates are WGS84.
func legacyCRS(fc *geojson.FeatureCollection) (geometry.SpatialReference, error) {
	wgs84 := geometry.SpatialReference{Code: geometry.EPSGWGS84}
	crs, ok := fc.ExtraMembers["crs"].(map[string]interface{})
	if !ok {
		return wgs84, nil
	}
	props, _ := crs["properties"].(map[string]interface{})
	name, _ := props["name"].(string)
	if name == "" {
		return wgs84, nil
	}
	return geometry.ParseSpatialReference(name)
}

func (s *geojsonSource) LayerCount() int { return 1 }

func (s *geojsonSource) LayerAt(i int) (Layer, error) {
	if i != 0 {
		return nil, fmt.Errorf("%w: index %d", ErrLayerNotFound, i)
	}
	return &geojsonLayer{src: s}, nil
}

func (s *geojsonSource) LayerByName(name string) (Layer, error) {
	if name != s.name {
		return nil, fmt.Errorf("%w: %q", ErrLayerNotFound, name)
	}
	return &geojsonLayer{src: s}, nil
}

func (s *geojsonSource) ExecuteSQL(query string) (Layer, error) {
	return nil, fmt.Errorf("%w: SQL on GeoJSON source %q", ErrUnsupported, s.name)
}

func (s *geojsonSource) Close() error { return nil }

type geojsonLayer struct {
	src *geojsonSource
	pos int
}

func (l *geojsonLayer) Name() string                                { return l.src.name }
func (l *geojsonLayer) FieldNames() []string                        { return l.src.fields }
func (l *geojsonLayer) FieldIndex(name string) int                  { return fieldIndex(l.src.fields, name) }
func (l *geojsonLayer) SpatialReference() geometry.SpatialReference { return l.src.srs }
func (l *geojsonLayer) Close() error                                { return nil }

func (l *geojsonLayer) Next() (*Feature, error) {
	if l.pos >= len(l.src.fc.Features) {
		return nil, io.EOF
	}
	f := l.src.fc.Features[l.pos]
	l.pos++

	values := make([]any, len(l.src.fields))
	for i, k := range l.src.fields {
		values[i] = f.Properties[k]
	}
	return &Feature{Geometry: f.Geometry, Values: values}, nil
}
