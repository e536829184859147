package geostore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"

	"github.com/fdbesanto2/PDAL/internal/pointcloud"
)

// ErrLayerNotFound is returned when no layer is registered under a name.
var ErrLayerNotFound = errors.New("geostore: layer not found")

// ErrLayerExists is returned when importing over a registered layer.
var ErrLayerExists = errors.New("geostore: layer already exists")

// LayerInfo is one row of geometry_columns.
type LayerInfo struct {
	ID             string
	Name           string
	GeometryColumn string
	GeometryFormat string // "WKB" or "WKT"
	SRS            string
	FeatureCount   int
	ImportedAt     string
}

const layerColumns = `layer_id, table_name, geometry_column, geometry_format, srs, feature_count, imported_at`

func scanLayer(row interface{ Scan(...any) error }) (LayerInfo, error) {
	var li LayerInfo
	err := row.Scan(&li.ID, &li.Name, &li.GeometryColumn, &li.GeometryFormat, &li.SRS, &li.FeatureCount, &li.ImportedAt)
	return li, err
}

// Layers lists registered layers in registration order.
func (db *DB) Layers(ctx context.Context) ([]LayerInfo, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+layerColumns+` FROM geometry_columns ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	defer rows.Close()

	var out []LayerInfo
	for rows.Next() {
		li, err := scanLayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan layer: %w", err)
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

// Layer returns the registration of the named layer.
func (db *DB) Layer(ctx context.Context, name string) (LayerInfo, error) {
	row := db.QueryRowContext(ctx, `SELECT `+layerColumns+` FROM geometry_columns WHERE table_name = ?`, name)
	li, err := scanLayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return LayerInfo{}, fmt.Errorf("%w: %q", ErrLayerNotFound, name)
	}
	if err != nil {
		return LayerInfo{}, fmt.Errorf("lookup layer %q: %w", name, err)
	}
	return li, nil
}

// RegisterLayer records an existing table as a layer. The table must
// already hold the geometry column in the given format.
func (db *DB) RegisterLayer(ctx context.Context, li LayerInfo) (LayerInfo, error) {
	if !ValidIdentifier(li.Name) || !ValidIdentifier(li.GeometryColumn) {
		return LayerInfo{}, fmt.Errorf("invalid layer or column name %q.%q", li.Name, li.GeometryColumn)
	}
	if li.ID == "" {
		li.ID = uuid.New().String()
	}
	if li.GeometryFormat == "" {
		li.GeometryFormat = "WKB"
	}
	_, err := db.ExecContext(ctx, `INSERT INTO geometry_columns (`+layerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		li.ID, li.Name, li.GeometryColumn, li.GeometryFormat, li.SRS, li.FeatureCount, li.ImportedAt)
	if err != nil {
		return LayerInfo{}, fmt.Errorf("register layer %q: %w", li.Name, err)
	}
	return li, nil
}

// columnType picks the SQLite affinity for a property across all
// features: INTEGER when every non-null value is integral, REAL when
// every value is numeric, TEXT otherwise.
func columnType(fc *geojson.FeatureCollection, key string) string {
	typ := "INTEGER"
	for _, f := range fc.Features {
		switch v := f.Properties[key].(type) {
		case nil:
		case float64:
			if v != float64(int64(v)) && typ == "INTEGER" {
				typ = "REAL"
			}
		case bool:
		default:
			return "TEXT"
		}
	}
	return typ
}

func propertyKeys(fc *geojson.FeatureCollection) []string {
	seen := map[string]bool{}
	var keys []string
	for _, f := range fc.Features {
		for k := range f.Properties {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// ImportFeatureCollection creates a table for fc under name, stores each
// feature's geometry as WKB and its properties as columns, and registers
// the layer. The import is a single transaction.
func (db *DB) ImportFeatureCollection(ctx context.Context, name, srs string, fc *geojson.FeatureCollection) (LayerInfo, error) {
	if !ValidIdentifier(name) {
		return LayerInfo{}, fmt.Errorf("invalid layer name %q", name)
	}
	if _, err := db.Layer(ctx, name); err == nil {
		return LayerInfo{}, fmt.Errorf("%w: %q", ErrLayerExists, name)
	} else if !errors.Is(err, ErrLayerNotFound) {
		return LayerInfo{}, err
	}

	keys := propertyKeys(fc)
	cols := []string{`"fid" INTEGER PRIMARY KEY`, `"geom" BLOB`}
	for _, k := range keys {
		if !ValidIdentifier(k) || strings.EqualFold(k, "fid") || strings.EqualFold(k, "geom") {
			return LayerInfo{}, fmt.Errorf("property %q cannot be used as a column name", k)
		}
		cols = append(cols, QuoteIdentifier(k)+" "+columnType(fc, k))
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return LayerInfo{}, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", QuoteIdentifier(name), strings.Join(cols, ", "))); err != nil {
		return LayerInfo{}, fmt.Errorf("create table %q: %w", name, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keys)+1), ", ")
	quoted := []string{`"geom"`}
	for _, k := range keys {
		quoted = append(quoted, QuoteIdentifier(k))
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QuoteIdentifier(name), strings.Join(quoted, ", "), placeholders))
	if err != nil {
		return LayerInfo{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, f := range fc.Features {
		var geom []byte
		if f.Geometry != nil {
			if geom, err = wkb.Marshal(f.Geometry); err != nil {
				return LayerInfo{}, fmt.Errorf("feature %d: encode geometry: %w", i, err)
			}
		}
		args := []any{geom}
		for _, k := range keys {
			v := f.Properties[k]
			if b, ok := v.(bool); ok {
				v = 0
				if b {
					v = 1
				}
			}
			args = append(args, v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return LayerInfo{}, fmt.Errorf("feature %d: insert: %w", i, err)
		}
	}

	li := LayerInfo{
		ID:             uuid.New().String(),
		Name:           name,
		GeometryColumn: "geom",
		GeometryFormat: "WKB",
		SRS:            srs,
		FeatureCount:   len(fc.Features),
		ImportedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO geometry_columns (`+layerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		li.ID, li.Name, li.GeometryColumn, li.GeometryFormat, li.SRS, li.FeatureCount, li.ImportedAt); err != nil {
		return LayerInfo{}, fmt.Errorf("register layer %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return LayerInfo{}, fmt.Errorf("commit import: %w", err)
	}

	pointcloud.Opsf("geostore: imported %d features into layer %s (%s)", li.FeatureCount, name, li.ID)
	return li, nil
}
