package report

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/fdbesanto2/PDAL/internal/pointcloud/overlay"
)

// PlotOverlay draws the samples coloured by value with the polygon
// outlines on top and saves the figure to path. The image format follows
// the file extension (.png, .svg, .pdf).
func PlotOverlay(path, title string, samples []Sample, polygons []overlay.Entry) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"

	byValue := map[float64]plotter.XYs{}
	for _, s := range samples {
		if math.IsNaN(s.X) || math.IsNaN(s.Y) || math.IsInf(s.X, 0) || math.IsInf(s.Y, 0) {
			continue
		}
		byValue[s.Value] = append(byValue[s.Value], plotter.XY{X: s.X, Y: s.Y})
	}
	values := make([]float64, 0, len(byValue))
	for v := range byValue {
		values = append(values, v)
	}
	sort.Float64s(values)

	colors := generateColors(len(values))
	for i, v := range values {
		sc, err := plotter.NewScatter(byValue[v])
		if err != nil {
			return fmt.Errorf("value %g: %w", v, err)
		}
		sc.GlyphStyle.Color = colors[i]
		sc.GlyphStyle.Radius = vg.Points(1)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)
		p.Legend.Add(fmt.Sprintf("%g", v), sc)
	}

	for i, e := range polygons {
		for _, ring := range outerRings(e.Polygon.Geometry()) {
			pts := make(plotter.XYs, 0, len(ring)+1)
			for _, pt := range ring {
				pts = append(pts, plotter.XY{X: pt[0], Y: pt[1]})
			}
			if len(ring) > 0 && !ring.Closed() {
				pts = append(pts, plotter.XY{X: ring[0][0], Y: ring[0][1]})
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return fmt.Errorf("polygon %d: %w", i, err)
			}
			line.Color = color.Black
			line.Width = vg.Points(1)
			p.Add(line)
		}
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}

func outerRings(g orb.Geometry) []orb.Ring {
	switch v := g.(type) {
	case orb.Polygon:
		return []orb.Ring{v[0]}
	case orb.MultiPolygon:
		rings := make([]orb.Ring, 0, len(v))
		for _, p := range v {
			rings = append(rings, p[0])
		}
		return rings
	}
	return nil
}

// generateColors returns n distinct hues.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL in [0,1] to 8-bit RGB.
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
