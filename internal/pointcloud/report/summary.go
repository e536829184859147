// Package report summarises overlay output as per-value statistics, a
// scatter plot and an HTML bar chart.
package report

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/fdbesanto2/PDAL/internal/pointcloud"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/pointdata"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/schema"
)

// DefaultMaxSamples bounds the points kept for plotting.
const DefaultMaxSamples = 20000

// ValueStats describes the points carrying one value of the field.
type ValueStats struct {
	Value float64
	Count int
	MeanZ float64 // NaN without a Z field
	StdZ  float64 // sample standard deviation; NaN below two points
}

// Summary is the distribution of one field over a point cloud.
type Summary struct {
	Field  string
	Total  int
	Values []ValueStats // ascending by Value
}

// Sample is one plotted point.
type Sample struct {
	X, Y  float64
	Value float64
}

type running struct {
	n        int
	mean, m2 float64
}

// merge folds a chunk's mean and unbiased variance into r.
func (r *running) merge(n int, mean, variance float64) {
	if n == 0 {
		return
	}
	m2 := 0.0
	if n > 1 {
		m2 = variance * float64(n-1)
	}
	if r.n == 0 {
		*r = running{n: n, mean: mean, m2: m2}
		return
	}
	total := r.n + n
	delta := mean - r.mean
	r.mean += delta * float64(n) / float64(total)
	r.m2 += m2 + delta*delta*float64(r.n)*float64(n)/float64(total)
	r.n = total
}

// Accumulator gathers a Summary and plot samples over many chunks.
type Accumulator struct {
	field      string
	maxSamples int

	counts  map[float64]int
	z       map[float64]*running
	total   int
	samples []Sample
	stride  int
	seen    int
}

// NewAccumulator summarises the field named dimension. maxSamples <= 0
// selects DefaultMaxSamples.
func NewAccumulator(dimension string, maxSamples int) *Accumulator {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Accumulator{
		field:      dimension,
		maxSamples: maxSamples,
		counts:     map[float64]int{},
		z:          map[float64]*running{},
		stride:     1,
	}
}

// Add accumulates the valid points of data.
func (a *Accumulator) Add(data *pointdata.Data) error {
	layout := data.Layout()
	f, ok := layout.FindFieldByName(a.field)
	if !ok {
		return pointcloud.Errorf(pointcloud.KindSchema, "report.add", "dimension '%s' not found", a.field)
	}
	hasXY := layout.HasField(schema.XPos) && layout.HasField(schema.YPos)
	hasZ := layout.HasField(schema.ZPos)

	zs := map[float64][]float64{}
	for p := 0; p < data.NumPoints(); p++ {
		if !data.IsValid(p) {
			continue
		}
		v := data.Value(p, f.Index())
		a.counts[v]++
		a.total++
		if hasZ {
			zs[v] = append(zs[v], data.Z(p))
		}
		if hasXY {
			a.sample(Sample{X: data.X(p), Y: data.Y(p), Value: v})
		}
	}
	for v, vals := range zs {
		mean, variance := stat.MeanVariance(vals, nil)
		if len(vals) < 2 {
			variance = 0
		}
		r, ok := a.z[v]
		if !ok {
			r = &running{}
			a.z[v] = r
		}
		r.merge(len(vals), mean, variance)
	}
	return nil
}

// sample keeps every stride-th point. When the buffer fills, every other
// kept sample is dropped and the stride doubles.
func (a *Accumulator) sample(s Sample) {
	a.seen++
	if (a.seen-1)%a.stride != 0 {
		return
	}
	if len(a.samples) == a.maxSamples {
		kept := a.samples[:0]
		for i := 0; i < len(a.samples); i += 2 {
			kept = append(kept, a.samples[i])
		}
		a.samples = kept
		a.stride *= 2
		if (a.seen-1)%a.stride != 0 {
			return
		}
	}
	a.samples = append(a.samples, s)
}

// Samples returns the kept plot samples.
func (a *Accumulator) Samples() []Sample { return a.samples }

// Summary returns the statistics gathered so far.
func (a *Accumulator) Summary() Summary {
	s := Summary{Field: a.field, Total: a.total}
	for v, n := range a.counts {
		vs := ValueStats{Value: v, Count: n, MeanZ: math.NaN(), StdZ: math.NaN()}
		if r, ok := a.z[v]; ok && r.n > 0 {
			vs.MeanZ = r.mean
			if r.n > 1 {
				vs.StdZ = math.Sqrt(r.m2 / float64(r.n-1))
			}
		}
		s.Values = append(s.Values, vs)
	}
	sort.Slice(s.Values, func(i, j int) bool { return s.Values[i].Value < s.Values[j].Value })
	return s
}

// Summarize is the single-chunk form of Accumulator.
func Summarize(data *pointdata.Data, dimension string) (Summary, error) {
	a := NewAccumulator(dimension, 1)
	if err := a.Add(data); err != nil {
		return Summary{}, err
	}
	return a.Summary(), nil
}

// String renders the summary as a small table.
func (s Summary) String() string {
	out := fmt.Sprintf("%s: %d points\n", s.Field, s.Total)
	for _, v := range s.Values {
		out += fmt.Sprintf("  %8g  %10d  meanZ=%.3f\n", v.Value, v.Count, v.MeanZ)
	}
	return out
}
