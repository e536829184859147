package report

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fdbesanto2/PDAL/internal/pointcloud"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/geometry"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/overlay"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/pointdata"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/schema"
)

func classified(t *testing.T, rows [][4]float64) *pointdata.Data {
	t.Helper()
	layout := schema.NewLayout(
		schema.NewField(schema.XPos, schema.Float64),
		schema.NewField(schema.YPos, schema.Float64),
		schema.NewField(schema.ZPos, schema.Float64),
		schema.NewField(schema.Classification, schema.Uint8),
	)
	d, err := pointdata.New(layout, len(rows))
	require.NoError(t, err)
	for p, r := range rows {
		d.SetX(p, r[0])
		d.SetY(p, r[1])
		d.SetZ(p, r[2])
		d.SetValue(p, 3, r[3])
	}
	return d
}

func TestSummarize(t *testing.T) {
	d := classified(t, [][4]float64{
		{0, 0, 1, 2}, {1, 1, 3, 2}, {2, 2, 10, 5}, {3, 3, 99, 5}, {4, 4, 5, 2},
	})
	d.SetValid(3, false)

	s, err := Summarize(d, "Classification")
	require.NoError(t, err)
	assert.Equal(t, 4, s.Total)
	require.Len(t, s.Values, 2)

	assert.Equal(t, 2.0, s.Values[0].Value)
	assert.Equal(t, 3, s.Values[0].Count)
	assert.InDelta(t, 3.0, s.Values[0].MeanZ, 1e-12)
	assert.InDelta(t, 2.0, s.Values[0].StdZ, 1e-12)

	assert.Equal(t, 5.0, s.Values[1].Value)
	assert.Equal(t, 1, s.Values[1].Count)
	assert.InDelta(t, 10.0, s.Values[1].MeanZ, 1e-12)
	assert.True(t, math.IsNaN(s.Values[1].StdZ))

	assert.Contains(t, s.String(), "Classification: 4 points")

	_, err = Summarize(d, "Intensity")
	assert.True(t, errors.Is(err, pointcloud.ErrSchema))
}

func TestAccumulatorMergesChunks(t *testing.T) {
	rows := [][4]float64{{0, 0, 1, 1}, {0, 0, 2, 1}, {0, 0, 4, 1}, {0, 0, 8, 1}, {0, 0, 16, 1}, {0, 0, 32, 1}}
	whole, err := Summarize(classified(t, rows), "Classification")
	require.NoError(t, err)

	a := NewAccumulator("Classification", 0)
	require.NoError(t, a.Add(classified(t, rows[:1])))
	require.NoError(t, a.Add(classified(t, rows[1:4])))
	require.NoError(t, a.Add(classified(t, rows[4:])))
	split := a.Summary()

	require.Len(t, split.Values, 1)
	assert.Equal(t, whole.Values[0].Count, split.Values[0].Count)
	assert.InDelta(t, whole.Values[0].MeanZ, split.Values[0].MeanZ, 1e-9)
	assert.InDelta(t, whole.Values[0].StdZ, split.Values[0].StdZ, 1e-9)
	assert.Len(t, a.Samples(), len(rows))
}

func TestAccumulatorBoundsSamples(t *testing.T) {
	rows := make([][4]float64, 1000)
	for i := range rows {
		rows[i] = [4]float64{float64(i), 0, 0, 1}
	}
	a := NewAccumulator("Classification", 64)
	require.NoError(t, a.Add(classified(t, rows)))

	samples := a.Samples()
	assert.LessOrEqual(t, len(samples), 64)
	assert.Greater(t, len(samples), 16)
	assert.Equal(t, 0.0, samples[0].X)
	for i := 1; i < len(samples); i++ {
		assert.Less(t, samples[i-1].X, samples[i].X)
	}
}

func TestPlotOverlayWritesImage(t *testing.T) {
	poly, err := geometry.NewPolygon(orb.Polygon{{{0, 0}, {0, 10}, {10, 10}, {10, 0}}}, geometry.SpatialReference{})
	require.NoError(t, err)
	entries := []overlay.Entry{{Polygon: poly, Value: 5}}
	samples := []Sample{{X: 1, Y: 1, Value: 5}, {X: 20, Y: 20, Value: 0}, {X: math.NaN(), Y: 0, Value: 0}}

	path := filepath.Join(t.TempDir(), "overlay.png")
	require.NoError(t, PlotOverlay(path, "test", samples, entries))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), "not a PNG")
}

func TestRenderSummaryHTML(t *testing.T) {
	s := Summary{Field: "Classification", Total: 3, Values: []ValueStats{
		{Value: 2, Count: 2, MeanZ: 1.5},
		{Value: 6, Count: 1, MeanZ: math.NaN()},
	}}
	var buf bytes.Buffer
	require.NoError(t, RenderSummaryHTML(&buf, s))
	html := buf.String()
	assert.Contains(t, html, "Classification distribution")
	assert.Contains(t, html, "points=3 values=2")
	assert.Contains(t, html, "mean Z")
}

func TestGenerateColorsDistinct(t *testing.T) {
	assert.Nil(t, generateColors(0))
	colors := generateColors(6)
	seen := map[any]bool{}
	for _, c := range colors {
		assert.False(t, seen[c], "duplicate colour %v", c)
		seen[c] = true
	}
	r, g, b := hslToRGB(0, 0, 0.5)
	assert.Equal(t, [3]uint8{127, 127, 127}, [3]uint8{r, g, b})
}
