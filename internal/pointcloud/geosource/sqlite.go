package geosource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/fdbesanto2/PDAL/internal/fsutil"
	"github.com/fdbesanto2/PDAL/internal/geostore"
	"github.com/fdbesanto2/PDAL/internal/pointcloud"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/geometry"
)

// sqliteSource exposes the layers registered in a geostore database.
type sqliteSource struct {
	db     *geostore.DB
	layers []geostore.LayerInfo
}

func openSQLite(fs fsutil.FileSystem, path string) (DataSource, error) {
	// geostore.Open would create a missing file.
	if !fs.Exists(path) {
		return nil, fmt.Errorf("open %s: file does not exist", path)
	}
	db, err := geostore.Open(path)
	if err != nil {
		return nil, err
	}
	layers, err := db.Layers(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("read layer registry of %s (run geostore migrate up?): %w", path, err)
	}
	pointcloud.Diagf("geosource: %s has %d registered layers", path, len(layers))
	return &sqliteSource{db: db, layers: layers}, nil
}

func (s *sqliteSource) LayerCount() int { return len(s.layers) }

func (s *sqliteSource) LayerAt(i int) (Layer, error) {
	if i < 0 || i >= len(s.layers) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrLayerNotFound, i, len(s.layers))
	}
	return s.openLayer(s.layers[i])
}

func (s *sqliteSource) LayerByName(name string) (Layer, error) {
	for _, li := range s.layers {
		if li.Name == name {
			return s.openLayer(li)
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrLayerNotFound, name)
}

func (s *sqliteSource) openLayer(li geostore.LayerInfo) (Layer, error) {
	srs, err := geometry.ParseSpatialReference(li.SRS)
	if err != nil {
		return nil, fmt.Errorf("layer %q: %w", li.Name, err)
	}
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY rowid", geostore.QuoteIdentifier(li.Name))
	return s.query(li.Name, query, []string{li.GeometryColumn}, srs)
}

// ExecuteSQL runs query and exposes its rows as a layer. The geometry is
// the first result column named like a registered geometry column, or
// "geom" / "geometry".
func (s *sqliteSource) ExecuteSQL(query string) (Layer, error) {
	var candidates []string
	for _, li := range s.layers {
		candidates = append(candidates, li.GeometryColumn)
	}
	candidates = append(candidates, "geom", "geometry")
	return s.query("sql", query, candidates, geometry.SpatialReference{})
}

func (s *sqliteSource) query(name, query string, geomCandidates []string, srs geometry.SpatialReference) (Layer, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", query, err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("query %q: %w", query, err)
	}

	geomIdx := -1
	for _, want := range geomCandidates {
		for i, c := range cols {
			if strings.EqualFold(c, want) {
				geomIdx = i
				break
			}
		}
		if geomIdx >= 0 {
			break
		}
	}
	if geomIdx < 0 {
		rows.Close()
		return nil, fmt.Errorf("query %q returns no geometry column", query)
	}

	l := &sqliteLayer{name: name, rows: rows, srs: srs, geomIdx: geomIdx, ncols: len(cols)}
	for i, c := range cols {
		if i == geomIdx || strings.EqualFold(c, "fid") {
			continue
		}
		l.fields = append(l.fields, c)
		l.fieldCols = append(l.fieldCols, i)
	}
	return l, nil
}

func (s *sqliteSource) Close() error { return s.db.Close() }

type sqliteLayer struct {
	name      string
	rows      *sql.Rows
	srs       geometry.SpatialReference
	geomIdx   int
	ncols     int
	fields    []string
	fieldCols []int
	closed    bool
}

func (l *sqliteLayer) Name() string                                { return l.name }
func (l *sqliteLayer) FieldNames() []string                        { return l.fields }
func (l *sqliteLayer) FieldIndex(name string) int                  { return fieldIndex(l.fields, name) }
func (l *sqliteLayer) SpatialReference() geometry.SpatialReference { return l.srs }

func (l *sqliteLayer) Next() (*Feature, error) {
	if l.closed {
		return nil, io.EOF
	}
	if !l.rows.Next() {
		if err := l.rows.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	raw := make([]any, l.ncols)
	ptrs := make([]any, l.ncols)
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := l.rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan feature: %w", err)
	}

	g, err := decodeGeometry(raw[l.geomIdx])
	if err != nil {
		return nil, err
	}
	values := make([]any, len(l.fieldCols))
	for i, c := range l.fieldCols {
		if b, ok := raw[c].([]byte); ok {
			values[i] = string(b)
		} else {
			values[i] = raw[c]
		}
	}
	return &Feature{Geometry: g, Values: values}, nil
}

// decodeGeometry reads WKB from blobs and WKT from text. Z and M
// ordinates are dropped.
func decodeGeometry(v any) (orb.Geometry, error) {
	switch g := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(g) == 0 {
			return nil, nil
		}
		flat, err := flattenWKB(g)
		if err != nil {
			return nil, fmt.Errorf("decode WKB geometry: %w", err)
		}
		geom, err := wkb.Unmarshal(flat)
		if err != nil {
			return nil, fmt.Errorf("decode WKB geometry: %w", err)
		}
		return geom, nil
	case string:
		geom, err := wkt.Unmarshal(flattenWKT(g))
		if err != nil {
			return nil, fmt.Errorf("decode WKT geometry: %w", err)
		}
		return geom, nil
	}
	return nil, errors.New("geometry column holds neither WKB nor WKT")
}

func (l *sqliteLayer) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return l.rows.Close()
}
