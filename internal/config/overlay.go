package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fdbesanto2/PDAL/internal/pointcloud/geometry"
)

// Defaults applied by the Get* methods when a field is unset.
const (
	DefaultChunkSize    = 65536
	DefaultIndex        = "quad"
	DefaultGridCellSize = 10.0
)

// OverlayConfig is the JSON configuration of an overlay run. Every field
// is optional in the file; command-line flags override file values.
type OverlayConfig struct {
	Dimension  *string `json:"dimension,omitempty"`  // target field, e.g. "Classification"
	Datasource *string `json:"datasource,omitempty"` // polygon source locator
	Column     *string `json:"column,omitempty"`
	Query      *string `json:"query,omitempty"`
	Layer      *string `json:"layer,omitempty"` // takes precedence over query

	SpatialReference *string  `json:"spatial_reference,omitempty"` // working reference, e.g. "EPSG:3857"
	ChunkSize        *int     `json:"chunk_size,omitempty"`
	Index            *string  `json:"index,omitempty"` // "quad" or "grid"
	GridCellSize     *float64 `json:"grid_cell_size,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyOverlayConfig returns an OverlayConfig with all fields unset.
func EmptyOverlayConfig() *OverlayConfig {
	return &OverlayConfig{}
}

// LoadOverlayConfig loads an OverlayConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadOverlayConfig(path string) (*OverlayConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyOverlayConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Merge copies every field set in other over c.
func (c *OverlayConfig) Merge(other *OverlayConfig) {
	if other == nil {
		return
	}
	if other.Dimension != nil {
		c.Dimension = other.Dimension
	}
	if other.Datasource != nil {
		c.Datasource = other.Datasource
	}
	if other.Column != nil {
		c.Column = other.Column
	}
	if other.Query != nil {
		c.Query = other.Query
	}
	if other.Layer != nil {
		c.Layer = other.Layer
	}
	if other.SpatialReference != nil {
		c.SpatialReference = other.SpatialReference
	}
	if other.ChunkSize != nil {
		c.ChunkSize = other.ChunkSize
	}
	if other.Index != nil {
		c.Index = other.Index
	}
	if other.GridCellSize != nil {
		c.GridCellSize = other.GridCellSize
	}
}

// Validate checks the values that are set. Required fields are checked by
// Complete.
func (c *OverlayConfig) Validate() error {
	if c.SpatialReference != nil {
		if _, err := geometry.ParseSpatialReference(*c.SpatialReference); err != nil {
			return fmt.Errorf("invalid spatial_reference: %w", err)
		}
	}
	if c.ChunkSize != nil && *c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", *c.ChunkSize)
	}
	if c.Index != nil && *c.Index != "quad" && *c.Index != "grid" {
		return fmt.Errorf("index must be \"quad\" or \"grid\", got %q", *c.Index)
	}
	if c.GridCellSize != nil && *c.GridCellSize <= 0 {
		return fmt.Errorf("grid_cell_size must be positive, got %f", *c.GridCellSize)
	}
	return nil
}

// Complete validates c and checks that dimension and datasource are set.
func (c *OverlayConfig) Complete() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.GetDimension() == "" {
		return fmt.Errorf("dimension is required")
	}
	if c.GetDatasource() == "" {
		return fmt.Errorf("datasource is required")
	}
	return nil
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// GetDimension returns the dimension or "".
func (c *OverlayConfig) GetDimension() string { return str(c.Dimension) }

// GetDatasource returns the datasource or "".
func (c *OverlayConfig) GetDatasource() string { return str(c.Datasource) }

// GetColumn returns the column or "".
func (c *OverlayConfig) GetColumn() string { return str(c.Column) }

// GetQuery returns the query or "".
func (c *OverlayConfig) GetQuery() string { return str(c.Query) }

// GetLayer returns the layer or "".
func (c *OverlayConfig) GetLayer() string { return str(c.Layer) }

// GetSpatialReference returns the parsed working reference; unset or
// invalid values give the empty reference.
func (c *OverlayConfig) GetSpatialReference() geometry.SpatialReference {
	srs, err := geometry.ParseSpatialReference(str(c.SpatialReference))
	if err != nil {
		return geometry.SpatialReference{}
	}
	return srs
}

// GetChunkSize returns the chunk_size value or the default.
func (c *OverlayConfig) GetChunkSize() int {
	if c.ChunkSize == nil {
		return DefaultChunkSize
	}
	return *c.ChunkSize
}

// GetIndex returns the index value or the default.
func (c *OverlayConfig) GetIndex() string {
	if c.Index == nil || *c.Index == "" {
		return DefaultIndex
	}
	return *c.Index
}

// GetGridCellSize returns the grid_cell_size value or the default.
func (c *OverlayConfig) GetGridCellSize() float64 {
	if c.GridCellSize == nil {
		return DefaultGridCellSize
	}
	return *c.GridCellSize
}
