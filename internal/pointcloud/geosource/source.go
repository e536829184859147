// Package geosource reads attributed geometries from GeoJSON files and
// geostore SQLite databases behind one layer/feature interface.
package geosource

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/fdbesanto2/PDAL/internal/fsutil"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/geometry"
)

var (
	// ErrUnsupported is returned by backends that lack an operation.
	ErrUnsupported = errors.New("geosource: operation not supported")
	// ErrLayerNotFound is returned for unknown layer names or indexes.
	ErrLayerNotFound = errors.New("geosource: layer not found")
	// ErrUnknownFormat is returned when a locator matches no backend.
	ErrUnknownFormat = errors.New("geosource: unknown datasource format")
)

// Feature is one geometry with its attribute values, ordered like the
// owning layer's FieldNames.
type Feature struct {
	Geometry orb.Geometry
	Values   []any
}

// Int returns attribute i as an integer. Floats are truncated, numeric
// strings are parsed and null reads as 0.
func (f *Feature) Int(i int) (int64, error) {
	if i < 0 || i >= len(f.Values) {
		return 0, fmt.Errorf("attribute index %d out of range [0,%d)", i, len(f.Values))
	}
	switch v := f.Values[i].(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if math.IsNaN(v) || v >= math.MaxInt64 || v < math.MinInt64 {
			return 0, fmt.Errorf("attribute %d: %g is not representable as an integer", i, v)
		}
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return parseInt(i, string(v))
	case string:
		return parseInt(i, v)
	default:
		return 0, fmt.Errorf("attribute %d: unsupported type %T", i, v)
	}
}

func parseInt(i int, s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	fv, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("attribute %d: %q is not numeric", i, s)
	}
	return (&Feature{Values: []any{fv}}).Int(0)
}

// Layer is a forward-only cursor over the features of one layer.
type Layer interface {
	Name() string
	// FieldNames lists the attribute fields, excluding the geometry.
	FieldNames() []string
	// FieldIndex returns the position of name in FieldNames, or -1.
	FieldIndex(name string) int
	SpatialReference() geometry.SpatialReference
	// Next returns the next feature, or io.EOF after the last one.
	Next() (*Feature, error)
	Close() error
}

// DataSource is an opened geometry source. SQLite sources allow one open
// layer at a time; close a layer before opening the next.
type DataSource interface {
	LayerCount() int
	LayerAt(i int) (Layer, error)
	LayerByName(name string) (Layer, error)
	ExecuteSQL(query string) (Layer, error)
	Close() error
}

// Opener opens a datasource from a locator.
type Opener func(locator string) (DataSource, error)

// Open opens locator on the OS filesystem.
func Open(locator string) (DataSource, error) {
	return OpenFS(fsutil.OSFileSystem{}, locator)
}

// OpenFS opens locator, reading GeoJSON through fs. SQLite databases are
// always opened from disk; fs is only used to check they exist.
func OpenFS(fs fsutil.FileSystem, locator string) (DataSource, error) {
	if path, ok := strings.CutPrefix(locator, "sqlite:"); ok {
		return openSQLite(fs, path)
	}
	switch strings.ToLower(filepath.Ext(locator)) {
	case ".geojson", ".json":
		return openGeoJSON(fs, locator)
	case ".sqlite", ".db":
		return openSQLite(fs, locator)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, locator)
}

func fieldIndex(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
