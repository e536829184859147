// Package pointcloud is the root of the point-data toolkit.
//
// Responsibilities: the classified error type shared by every layer and
// the ops/diag/trace logging streams.
//
// Sub-packages, leaf to top:
//   - schema:     DataItem, Field and the append-only Layout
//   - pointdata:  fixed-capacity point buffers with typed accessors
//   - iterator:   sequential and random traversal over a Stage
//   - spatial:    bounding-box indexes over a point buffer
//   - geometry:   polygons, covers test and reprojection
//   - geosource:  GeoJSON and SQLite polygon sources
//   - overlay:    point-in-polygon attribute assignment
//   - terrasolid: TerraSolid BIN reader and writer (an iterator Stage)
//   - report:     per-value summaries, PNG plots and HTML charts
//
// Dependency rule: sub-packages may depend on this package and on
// packages listed above them, never below. The SQLite polygon store
// schema is owned by internal/geostore.
package pointcloud
