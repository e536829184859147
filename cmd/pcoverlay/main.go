// Command pcoverlay assigns polygon attribute values to the points of a
// TerraSolid BIN file and writes the result to a new file.
//
//	pcoverlay -in scan.bin -out classified.bin \
//	    -dimension Classification -datasource zones.geojson -column cls
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fdbesanto2/PDAL/internal/config"
	"github.com/fdbesanto2/PDAL/internal/pointcloud"
	"github.com/fdbesanto2/PDAL/internal/version"
)

// Config holds the parsed command line. Overlay settings come from the
// optional -config file with explicitly set flags merged over it.
type Config struct {
	In      string
	Out     string
	Plot    string // optional scatter plot of the result (.png/.svg/.pdf)
	Report  string // optional HTML summary
	Verbose bool
	Version bool

	Overlay *config.OverlayConfig
}

func parseFlags(args []string, stderr io.Writer) (*Config, error) {
	fs := flag.NewFlagSet("pcoverlay", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &Config{}
	fs.StringVar(&cfg.In, "in", "", "input TerraSolid BIN file")
	fs.StringVar(&cfg.Out, "out", "", "output TerraSolid BIN file")
	fs.StringVar(&cfg.Plot, "plot", "", "write a scatter plot of the classified points")
	fs.StringVar(&cfg.Report, "report", "", "write an HTML summary chart")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "enable diag and trace logging")
	fs.BoolVar(&cfg.Version, "version", false, "print version and exit")
	configPath := fs.String("config", "", "JSON overlay configuration file")

	dimension := fs.String("dimension", "", "target dimension, e.g. Classification")
	datasource := fs.String("datasource", "", "polygon source (.geojson, .sqlite or sqlite:path)")
	column := fs.String("column", "", "attribute column holding the value (default: first field)")
	query := fs.String("query", "", "SQL query selecting polygons (SQLite sources)")
	layer := fs.String("layer", "", "layer name; takes precedence over -query")
	srs := fs.String("srs", "", "spatial reference of the points, e.g. EPSG:3857")
	chunk := fs.Int("chunk", config.DefaultChunkSize, "points per chunk")
	index := fs.String("index", config.DefaultIndex, "spatial index: quad or grid")
	gridCell := fs.Float64("grid-cell", config.DefaultGridCellSize, "grid index cell size")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	overrides := config.EmptyOverlayConfig()
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dimension":
			overrides.Dimension = dimension
		case "datasource":
			overrides.Datasource = datasource
		case "column":
			overrides.Column = column
		case "query":
			overrides.Query = query
		case "layer":
			overrides.Layer = layer
		case "srs":
			overrides.SpatialReference = srs
		case "chunk":
			overrides.ChunkSize = chunk
		case "index":
			overrides.Index = index
		case "grid-cell":
			overrides.GridCellSize = gridCell
		}
	})

	cfg.Overlay = config.EmptyOverlayConfig()
	if *configPath != "" {
		fileCfg, err := config.LoadOverlayConfig(*configPath)
		if err != nil {
			return nil, err
		}
		cfg.Overlay = fileCfg
	}
	cfg.Overlay.Merge(overrides)
	if err := cfg.Overlay.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if cfg.Version {
		fmt.Fprintln(stdout, version.String("pcoverlay"))
		return nil
	}

	logger := pointcloud.NewLogger(stderr, cfg.Verbose).With(zap.String("run_id", uuid.NewString()))
	defer logger.Sync() //nolint:errcheck
	pointcloud.SetLogger(logger)
	defer pointcloud.SetLogger(nil)

	res, err := runOverlay(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %d points to %s\n", res.Written, cfg.Out)
	for i, n := range res.Assigned {
		fmt.Fprintf(stdout, "polygon %d (value %d): %d points\n", i, res.Polygons[i].Value, n)
	}
	fmt.Fprint(stdout, res.Summary.String())
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("pcoverlay: %v", err)
	}
}
