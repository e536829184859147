package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fdbesanto2/PDAL/internal/fsutil"
	"github.com/fdbesanto2/PDAL/internal/pointcloud"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/geosource"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/iterator"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/overlay"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/pointdata"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/report"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/schema"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/terrasolid"
)

// Result summarises one overlay run.
type Result struct {
	Written  int
	Assigned []int // covered points per polygon over all chunks
	Polygons []overlay.Entry
	Summary  report.Summary
}

func runOverlay(ctx context.Context, cfg *Config) (Result, error) {
	return runOverlayFS(ctx, fsutil.OSFileSystem{}, cfg)
}

func runOverlayFS(ctx context.Context, fsys fsutil.FileSystem, cfg *Config) (Result, error) {
	oc := cfg.Overlay
	if cfg.In == "" || cfg.Out == "" {
		return Result{}, fmt.Errorf("-in and -out are required")
	}
	if err := oc.Complete(); err != nil {
		return Result{}, err
	}

	reader, err := terrasolid.NewReader(fsys, cfg.In)
	if err != nil {
		return Result{}, err
	}
	layout := schema.NewLayout(reader.Fields()...)

	ov, err := overlay.New(overlay.Options{
		Dimension:    oc.GetDimension(),
		Datasource:   oc.GetDatasource(),
		Column:       oc.GetColumn(),
		Query:        oc.GetQuery(),
		Layer:        oc.GetLayer(),
		Index:        oc.GetIndex(),
		GridCellSize: oc.GetGridCellSize(),
	})
	if err != nil {
		return Result{}, err
	}
	ov.SetOpener(func(locator string) (geosource.DataSource, error) {
		return geosource.OpenFS(fsys, locator)
	})
	if err := ov.Prepared(layout); err != nil {
		return Result{}, err
	}
	if err := ov.Ready(oc.GetSpatialReference()); err != nil {
		return Result{}, err
	}

	if dir := filepath.Dir(cfg.Out); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return Result{}, pointcloud.Wrap(pointcloud.KindIO, "pcoverlay.create", err, "%s", dir)
		}
	}
	out, err := fsys.Create(cfg.Out)
	if err != nil {
		return Result{}, pointcloud.Wrap(pointcloud.KindIO, "pcoverlay.create", err, "%s", cfg.Out)
	}
	h := reader.Header()
	w, err := terrasolid.NewWriter(out, terrasolid.NewHeader(h.Units, h.OrgX, h.OrgY, h.OrgZ, h.Time != 0, h.Color != 0))
	if err != nil {
		out.Close()
		return Result{}, err
	}

	acc := report.NewAccumulator(oc.GetDimension(), report.DefaultMaxSamples)
	assigned := make([]int, len(ov.Polygons()))
	err = iterator.ForEach(ctx, reader, layout, oc.GetChunkSize(), func(chunk *pointdata.Data, n int) error {
		res, err := ov.Filter(chunk)
		if err != nil {
			return err
		}
		for i, c := range res.Assigned {
			assigned[i] += c
		}
		if err := acc.Add(chunk); err != nil {
			return err
		}
		return w.Write(chunk, n)
	})
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := fsys.Remove(cfg.Out); rerr != nil {
			pointcloud.Opsf("pcoverlay: failed to remove partial output %s: %v", cfg.Out, rerr)
		}
		return Result{}, err
	}

	res := Result{Written: w.Count(), Assigned: assigned, Polygons: ov.Polygons(), Summary: acc.Summary()}
	pointcloud.Opsf("pcoverlay: %s -> %s, %d points, %d polygons", cfg.In, cfg.Out, res.Written, len(res.Polygons))

	if cfg.Plot != "" {
		title := fmt.Sprintf("%s by %s", filepath.Base(cfg.In), oc.GetDimension())
		if err := report.PlotOverlay(cfg.Plot, title, acc.Samples(), res.Polygons); err != nil {
			return res, err
		}
	}
	if cfg.Report != "" {
		f, err := fsys.Create(cfg.Report)
		if err != nil {
			return res, pointcloud.Wrap(pointcloud.KindIO, "pcoverlay.report", err, "%s", cfg.Report)
		}
		if err := report.RenderSummaryHTML(f, res.Summary); err != nil {
			f.Close()
			return res, err
		}
		if err := f.Close(); err != nil {
			return res, err
		}
	}
	return res, nil
}
