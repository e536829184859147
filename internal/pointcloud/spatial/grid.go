package spatial

import (
	"fmt"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/floats"

	"github.com/fdbesanto2/PDAL/internal/pointcloud/pointdata"
)

// estimatedPointsPerCell sizes the cell map up front.
const estimatedPointsPerCell = 4

// GridIndex buckets points into square XY cells.
type GridIndex struct {
	CellSize float64
	Grid     map[int64][]int // cell ID -> point indices

	ids    []int
	xs, ys []float64
	extent orb.Bound
}

// NewGridIndex indexes the valid points of data with finite positions
// into cells of cellSize.
func NewGridIndex(data *pointdata.Data, cellSize float64) (*GridIndex, error) {
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		return nil, fmt.Errorf("grid cell size must be positive and finite, got %g", cellSize)
	}
	ids, xs, ys, err := positions(data)
	if err != nil {
		return nil, err
	}

	g := &GridIndex{
		CellSize: cellSize,
		Grid:     make(map[int64][]int, len(ids)/estimatedPointsPerCell+1),
		ids:      ids,
		xs:       xs,
		ys:       ys,
	}
	if len(ids) == 0 {
		return g, nil
	}
	g.extent = orb.Bound{
		Min: orb.Point{floats.Min(xs), floats.Min(ys)},
		Max: orb.Point{floats.Max(xs), floats.Max(ys)},
	}
	for i := range ids {
		cx, cy := g.cell(xs[i], ys[i])
		id := cellID(cx, cy)
		g.Grid[id] = append(g.Grid[id], i)
	}
	return g, nil
}

func (g *GridIndex) cell(x, y float64) (int64, int64) {
	return int64(math.Floor(x / g.CellSize)), int64(math.Floor(y / g.CellSize))
}

// cellID pairs two signed cell coordinates into one key: zigzag to make
// them non-negative, then Szudzik's pairing function.
func cellID(cellX, cellY int64) int64 {
	var a, b int64
	if cellX >= 0 {
		a = 2 * cellX
	} else {
		a = -2*cellX - 1
	}
	if cellY >= 0 {
		b = 2 * cellY
	} else {
		b = -2*cellY - 1
	}
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

// InBound returns the point indices inside b.
func (g *GridIndex) InBound(b orb.Bound) []int {
	if len(g.ids) == 0 || !g.extent.Intersects(b) {
		return nil
	}
	// Only cells overlapping the data can hold points.
	clip := orb.Bound{
		Min: orb.Point{math.Max(b.Min[0], g.extent.Min[0]), math.Max(b.Min[1], g.extent.Min[1])},
		Max: orb.Point{math.Min(b.Max[0], g.extent.Max[0]), math.Min(b.Max[1], g.extent.Max[1])},
	}
	// Cell spans stay in float64: tiny cells over a wide extent overflow int64.
	spanX := math.Floor(clip.Max[0]/g.CellSize) - math.Floor(clip.Min[0]/g.CellSize) + 1
	spanY := math.Floor(clip.Max[1]/g.CellSize) - math.Floor(clip.Min[1]/g.CellSize) + 1

	var out []int
	if spanX*spanY > float64(len(g.ids)) {
		for i := range g.ids {
			if b.Contains(orb.Point{g.xs[i], g.ys[i]}) {
				out = append(out, g.ids[i])
			}
		}
		return out
	}

	x0, y0 := g.cell(clip.Min[0], clip.Min[1])
	x1, y1 := g.cell(clip.Max[0], clip.Max[1])
	for cx := x0; cx <= x1; cx++ {
		for cy := y0; cy <= y1; cy++ {
			for _, i := range g.Grid[cellID(cx, cy)] {
				if b.Contains(orb.Point{g.xs[i], g.ys[i]}) {
					out = append(out, g.ids[i])
				}
			}
		}
	}
	slices.Sort(out)
	return out
}

// Len returns the number of indexed points.
func (g *GridIndex) Len() int { return len(g.ids) }
