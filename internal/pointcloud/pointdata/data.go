// Package pointdata stores a fixed number of point records in one flat
// byte buffer shaped by a schema.Layout.
//
// Typed getters and setters panic on a kind mismatch or an out-of-range
// index. Callers that cannot guarantee the field kind statically should
// obtain a FieldAccessor, which checks once and returns an error.
package pointdata

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/fdbesanto2/PDAL/internal/pointcloud"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/schema"
)

// Data holds numPoints records laid out back to back.
type Data struct {
	layout    *schema.Layout
	buf       []byte
	valid     []bool
	numPoints int
	pointSize int
}

// New allocates a zeroed buffer for numPoints records and freezes layout.
func New(layout *schema.Layout, numPoints int) (*Data, error) {
	if layout == nil {
		return nil, pointcloud.Errorf(pointcloud.KindSchema, "pointdata.new", "nil layout")
	}
	if numPoints < 0 {
		return nil, pointcloud.Errorf(pointcloud.KindSchema, "pointdata.new", "negative point count %d", numPoints)
	}
	layout.Freeze()

	size := layout.SizeInBytes()
	valid := make([]bool, numPoints)
	for i := range valid {
		valid[i] = true
	}
	return &Data{
		layout:    layout,
		buf:       make([]byte, numPoints*size),
		valid:     valid,
		numPoints: numPoints,
		pointSize: size,
	}, nil
}

// Layout returns the shared layout.
func (d *Data) Layout() *schema.Layout { return d.layout }

// NumPoints returns the fixed capacity.
func (d *Data) NumPoints() int { return d.numPoints }

// PointSize returns the record width in bytes.
func (d *Data) PointSize() int { return d.pointSize }

// Bytes returns the record of point p. The slice aliases the buffer.
func (d *Data) Bytes(p int) []byte {
	d.checkPoint(p)
	start := p * d.pointSize
	return d.buf[start : start+d.pointSize : start+d.pointSize]
}

// IsValid reports the validity flag of point p.
func (d *Data) IsValid(p int) bool {
	d.checkPoint(p)
	return d.valid[p]
}

// SetValid sets the validity flag of point p. Field bytes are untouched.
func (d *Data) SetValid(p int, v bool) {
	d.checkPoint(p)
	d.valid[p] = v
}

func (d *Data) checkPoint(p int) {
	if p < 0 || p >= d.numPoints {
		panic(fmt.Sprintf("pointdata: point index %d out of range [0,%d)", p, d.numPoints))
	}
}

// slot returns the bytes of field f in point p after checking its kind.
func (d *Data) slot(p, f int, kind schema.ValueKind) []byte {
	d.checkPoint(p)
	if f < 0 || f >= d.layout.NumFields() {
		panic(fmt.Sprintf("pointdata: field index %d out of range [0,%d)", f, d.layout.NumFields()))
	}
	field := d.layout.Field(f)
	if field.Kind() != kind {
		panic(fmt.Sprintf("pointdata: field %s is %s, accessed as %s", field.Item(), field.Kind(), kind))
	}
	return d.rawSlot(p, field)
}

func (d *Data) rawSlot(p int, field schema.Field) []byte {
	start := p*d.pointSize + field.Offset()
	return d.buf[start : start+field.Width()]
}

func (d *Data) Uint8(p, f int) uint8 { return d.slot(p, f, schema.Uint8)[0] }
func (d *Data) SetUint8(p, f int, v uint8) { d.slot(p, f, schema.Uint8)[0] = v }

func (d *Data) Uint16(p, f int) uint16 {
	return binary.LittleEndian.Uint16(d.slot(p, f, schema.Uint16))
}

func (d *Data) SetUint16(p, f int, v uint16) {
	binary.LittleEndian.PutUint16(d.slot(p, f, schema.Uint16), v)
}

func (d *Data) Int32(p, f int) int32 {
	return int32(binary.LittleEndian.Uint32(d.slot(p, f, schema.Int32)))
}

func (d *Data) SetInt32(p, f int, v int32) {
	binary.LittleEndian.PutUint32(d.slot(p, f, schema.Int32), uint32(v))
}

func (d *Data) Uint32(p, f int) uint32 {
	return binary.LittleEndian.Uint32(d.slot(p, f, schema.Uint32))
}

func (d *Data) SetUint32(p, f int, v uint32) {
	binary.LittleEndian.PutUint32(d.slot(p, f, schema.Uint32), v)
}

func (d *Data) Float32(p, f int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(d.slot(p, f, schema.Float32)))
}

func (d *Data) SetFloat32(p, f int, v float32) {
	binary.LittleEndian.PutUint32(d.slot(p, f, schema.Float32), math.Float32bits(v))
}

func (d *Data) Float64(p, f int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(d.slot(p, f, schema.Float64)))
}

func (d *Data) SetFloat64(p, f int, v float64) {
	binary.LittleEndian.PutUint64(d.slot(p, f, schema.Float64), math.Float64bits(v))
}

// Value reads field f of point p converted to float64, whatever its kind.
func (d *Data) Value(p, f int) float64 {
	switch d.layout.Field(f).Kind() {
	case schema.Uint8:
		return float64(d.Uint8(p, f))
	case schema.Uint16:
		return float64(d.Uint16(p, f))
	case schema.Int32:
		return float64(d.Int32(p, f))
	case schema.Uint32:
		return float64(d.Uint32(p, f))
	case schema.Float32:
		return float64(d.Float32(p, f))
	default:
		return d.Float64(p, f)
	}
}

// SetValue stores v into field f of point p, converting to the field
// kind. Integer kinds truncate toward zero and saturate at their range.
func (d *Data) SetValue(p, f int, v float64) {
	kind := d.layout.Field(f).Kind()
	if kind != schema.Float32 && kind != schema.Float64 {
		lo, hi := kind.Range()
		switch {
		case math.IsNaN(v):
			v = 0
		case v < lo:
			v = lo
		case v > hi:
			v = hi
		}
	}
	switch kind {
	case schema.Uint8:
		d.SetUint8(p, f, uint8(v))
	case schema.Uint16:
		d.SetUint16(p, f, uint16(v))
	case schema.Int32:
		d.SetInt32(p, f, int32(v))
	case schema.Uint32:
		d.SetUint32(p, f, uint32(v))
	case schema.Float32:
		d.SetFloat32(p, f, float32(v))
	default:
		d.SetFloat64(p, f, v)
	}
}

// positionIndex returns the cached index of a position item or panics
// with a schema error message when the layout lacks it.
func (d *Data) positionIndex(item schema.DataItem) int {
	var idx int
	switch item {
	case schema.XPos:
		idx = d.layout.XIndex()
	case schema.YPos:
		idx = d.layout.YIndex()
	default:
		idx = d.layout.ZIndex()
	}
	if idx < 0 {
		panic(pointcloud.Errorf(pointcloud.KindSchema, "pointdata.position",
			"layout has no %s field", item).Error())
	}
	return idx
}

// X returns the X coordinate of point p. It panics if the layout has no
// X field; use RequirePosition to check up front.
func (d *Data) X(p int) float64 { return d.Value(p, d.positionIndex(schema.XPos)) }
func (d *Data) Y(p int) float64 { return d.Value(p, d.positionIndex(schema.YPos)) }
func (d *Data) Z(p int) float64 { return d.Value(p, d.positionIndex(schema.ZPos)) }

func (d *Data) SetX(p int, v float64) { d.SetValue(p, d.positionIndex(schema.XPos), v) }
func (d *Data) SetY(p int, v float64) { d.SetValue(p, d.positionIndex(schema.YPos), v) }
func (d *Data) SetZ(p int, v float64) { d.SetValue(p, d.positionIndex(schema.ZPos), v) }

// RequirePosition returns a SchemaError naming the first position item
// the layout lacks.
func (d *Data) RequirePosition(items ...schema.DataItem) error {
	return RequirePosition(d.layout, items...)
}

// RequirePosition checks layout for the given position items.
func RequirePosition(layout *schema.Layout, items ...schema.DataItem) error {
	for _, item := range items {
		if !item.IsPosition() {
			return pointcloud.Errorf(pointcloud.KindSchema, "pointdata.require_position",
				"%s is not a position item", item)
		}
		if !layout.HasField(item) {
			return pointcloud.Errorf(pointcloud.KindSchema, "pointdata.require_position",
				"layout has no %s field", item)
		}
	}
	return nil
}

// CopyFieldsFast copies record src of srcData verbatim into record dst,
// along with its validity flag. Both layouts must be Same including
// active flags.
func (d *Data) CopyFieldsFast(dst, src int, srcData *Data) error {
	if srcData == nil || !d.layout.Same(srcData.layout, false) {
		return pointcloud.Errorf(pointcloud.KindIncompatibleLayout, "pointdata.copy_fields_fast",
			"source layout differs from destination layout")
	}
	copy(d.Bytes(dst), srcData.Bytes(src))
	d.valid[dst] = srcData.valid[src]
	return nil
}

// CopyFields copies every field of record src whose DataItem also exists
// in the destination layout, converting between kinds. It is the slow
// path for layouts that are not Same.
func (d *Data) CopyFields(dst, src int, srcData *Data) error {
	if srcData == nil {
		return pointcloud.Errorf(pointcloud.KindIncompatibleLayout, "pointdata.copy_fields", "nil source")
	}
	if d.layout.Same(srcData.layout, true) {
		copy(d.Bytes(dst), srcData.Bytes(src))
		d.valid[dst] = srcData.valid[src]
		return nil
	}
	d.checkPoint(dst)
	srcData.checkPoint(src)
	for i, f := range d.layout.Fields() {
		j := srcData.layout.FindFieldIndex(f.Item())
		if j < 0 {
			continue
		}
		if srcData.layout.Field(j).Kind() == f.Kind() {
			copy(d.rawSlot(dst, f), srcData.rawSlot(src, srcData.layout.Field(j)))
			continue
		}
		d.SetValue(dst, i, srcData.Value(src, j))
	}
	d.valid[dst] = srcData.valid[src]
	return nil
}

// Dump writes the fields of point p, one per line.
func (d *Data) Dump(w io.Writer, p int) {
	fmt.Fprintf(w, "Point %d (valid=%t)\n", p, d.IsValid(p))
	for i, f := range d.layout.Fields() {
		fmt.Fprintf(w, "  %s: %v\n", f.Item(), d.Value(p, i))
	}
}
