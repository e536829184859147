// Package spatial indexes the XY positions of a point batch for
// bounding-box queries.
package spatial

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
	"gonum.org/v1/gonum/floats"

	"github.com/fdbesanto2/PDAL/internal/pointcloud"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/pointdata"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/schema"
)

// Index answers bounding-box queries over point indices of one batch.
type Index interface {
	// InBound returns the indices of the points inside b, edges included,
	// in ascending order.
	InBound(b orb.Bound) []int
	// Len returns the number of indexed points.
	Len() int
}

// indexedPoint is the quadtree payload: one position and every point
// index located there. The tree holds each distinct position once.
type indexedPoint struct {
	pt  orb.Point
	ids []int
}

func (p *indexedPoint) Point() orb.Point { return p.pt }

// positions collects the valid points with finite X and Y.
func positions(data *pointdata.Data) ([]int, []float64, []float64, error) {
	if err := data.RequirePosition(schema.XPos, schema.YPos); err != nil {
		return nil, nil, nil, err
	}
	ids := make([]int, 0, data.NumPoints())
	xs := make([]float64, 0, data.NumPoints())
	ys := make([]float64, 0, data.NumPoints())
	skipped := 0
	for p := 0; p < data.NumPoints(); p++ {
		if !data.IsValid(p) {
			continue
		}
		x, y := data.X(p), data.Y(p)
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			skipped++
			continue
		}
		ids = append(ids, p)
		xs = append(xs, x)
		ys = append(ys, y)
	}
	if skipped > 0 {
		pointcloud.Diagf("spatial: skipped %d points with non-finite positions", skipped)
	}
	return ids, xs, ys, nil
}

// QuadIndex is a point quadtree over a batch.
type QuadIndex struct {
	tree *quadtree.Quadtree
	n    int
	buf  []orb.Pointer
}

// NewQuadIndex indexes the valid points of data with finite positions.
func NewQuadIndex(data *pointdata.Data) (*QuadIndex, error) {
	ids, xs, ys, err := positions(data)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &QuadIndex{}, nil
	}

	bound := orb.Bound{
		Min: orb.Point{floats.Min(xs), floats.Min(ys)},
		Max: orb.Point{floats.Max(xs), floats.Max(ys)},
	}
	byPos := make(map[orb.Point]*indexedPoint, len(ids))
	distinct := make([]*indexedPoint, 0, len(ids))
	for i, id := range ids {
		pt := orb.Point{xs[i], ys[i]}
		if ip, ok := byPos[pt]; ok {
			ip.ids = append(ip.ids, id)
			continue
		}
		ip := &indexedPoint{pt: pt, ids: []int{id}}
		byPos[pt] = ip
		distinct = append(distinct, ip)
	}

	tree := quadtree.New(bound)
	for _, ip := range distinct {
		if err := tree.Add(ip); err != nil {
			return nil, pointcloud.Wrap(pointcloud.KindSchema, "spatial.quad_index", err, "add point %d", ip.ids[0])
		}
	}
	pointcloud.Tracef("spatial: quadtree over %d points at %d positions, bound %v", len(ids), len(distinct), bound)
	return &QuadIndex{tree: tree, n: len(ids)}, nil
}

// InBound returns the point indices inside b.
func (q *QuadIndex) InBound(b orb.Bound) []int {
	if q.tree == nil {
		return nil
	}
	q.buf = q.tree.InBound(q.buf, b)
	var out []int
	for _, p := range q.buf {
		out = append(out, p.(*indexedPoint).ids...)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of indexed points.
func (q *QuadIndex) Len() int { return q.n }
