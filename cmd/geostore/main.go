// Command geostore manages the SQLite polygon store read by pcoverlay.
//
//	geostore -db zones.sqlite migrate up
//	geostore -db zones.sqlite import -name parcels -srs EPSG:3857 parcels.geojson
//	geostore -db zones.sqlite layers
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/paulmach/orb/geojson"

	"github.com/fdbesanto2/PDAL/internal/geostore"
	"github.com/fdbesanto2/PDAL/internal/pointcloud"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/geometry"
	"github.com/fdbesanto2/PDAL/internal/version"
)

const usage = `Usage: geostore [-db path] <command> [args]

Commands:
  migrate up|down|status   manage the store schema
  import [-name L] [-srs S] file.geojson
                           import a FeatureCollection as layer L
  layers                   list registered layers
`

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("geostore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	dbPath := fs.String("db", "geostore.sqlite", "path to the SQLite store")
	verbose := fs.Bool("verbose", false, "enable diag logging")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.String("geostore"))
		return nil
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("missing command")
	}

	pointcloud.SetLogger(pointcloud.NewLogger(stderr, *verbose))
	defer pointcloud.SetLogger(nil)

	db, err := geostore.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	rest := fs.Args()[1:]
	switch cmd := fs.Arg(0); cmd {
	case "migrate":
		return runMigrate(db, rest, stdout)
	case "import":
		return runImport(ctx, db, rest, stdout, stderr)
	case "layers":
		return runLayers(ctx, db, stdout)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runMigrate(db *geostore.DB, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: geostore migrate up|down|status")
	}
	switch args[0] {
	case "up":
		if err := db.MigrateUp(); err != nil {
			return err
		}
	case "down":
		if err := db.MigrateDown(); err != nil {
			return err
		}
	case "status":
	default:
		return fmt.Errorf("unknown migrate action %q", args[0])
	}

	v, dirty, err := db.MigrateVersion()
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	fmt.Fprintf(stdout, "version %d of %d (dirty: %v)\n", v, geostore.LatestVersion, dirty)
	if dirty {
		fmt.Fprintln(stdout, "WARNING: a migration failed mid-execution; inspect the store before continuing")
	}
	return nil
}

func runImport(ctx context.Context, db *geostore.DB, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	name := fs.String("name", "", "layer name (default: file name without extension)")
	srsFlag := fs.String("srs", "EPSG:4326", "spatial reference of the coordinates")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: geostore import [-name L] [-srs S] file.geojson")
	}
	path := fs.Arg(0)

	srs, err := geometry.ParseSpatialReference(*srsFlag)
	if err != nil {
		return err
	}
	layer := *name
	if layer == "" {
		layer = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	li, err := db.ImportFeatureCollection(ctx, layer, srs.String(), fc)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "imported %d features into %s (%s)\n", li.FeatureCount, li.Name, li.SRS)
	return nil
}

func runLayers(ctx context.Context, db *geostore.DB, stdout io.Writer) error {
	layers, err := db.Layers(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tGEOMETRY\tFORMAT\tSRS\tFEATURES")
	for _, li := range layers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", li.Name, li.GeometryColumn, li.GeometryFormat, li.SRS, li.FeatureCount)
	}
	return tw.Flush()
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("geostore: %v", err)
	}
}
