package pointdata

import (
	"encoding/binary"
	"math"

	"github.com/fdbesanto2/PDAL/internal/pointcloud"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/schema"
)

// Value is the set of Go types a field can be read as.
type Value interface {
	uint8 | uint16 | int32 | uint32 | float32 | float64
}

// FieldAccessor reads and writes one field of a Data without per-call
// kind checks. Obtain it with Accessor.
type FieldAccessor[T Value] struct {
	data   *Data
	offset int
	get    func([]byte) T
	put    func([]byte, T)
}

// Accessor binds field f of d to Go type T. It fails with a
// FieldAccessError when T does not match the field's declared kind.
func Accessor[T Value](d *Data, f int) (FieldAccessor[T], error) {
	if f < 0 || f >= d.layout.NumFields() {
		return FieldAccessor[T]{}, pointcloud.Errorf(pointcloud.KindFieldAccess, "pointdata.accessor",
			"field index %d out of range [0,%d)", f, d.layout.NumFields())
	}
	field := d.layout.Field(f)
	want := kindOf[T]()
	if field.Kind() != want {
		return FieldAccessor[T]{}, pointcloud.Errorf(pointcloud.KindFieldAccess, "pointdata.accessor",
			"field %s is %s, requested %s", field.Item(), field.Kind(), want)
	}

	a := FieldAccessor[T]{data: d, offset: field.Offset()}
	switch want {
	case schema.Uint8:
		a.get = func(b []byte) T { return T(b[0]) }
		a.put = func(b []byte, v T) { b[0] = uint8(v) }
	case schema.Uint16:
		a.get = func(b []byte) T { return T(binary.LittleEndian.Uint16(b)) }
		a.put = func(b []byte, v T) { binary.LittleEndian.PutUint16(b, uint16(v)) }
	case schema.Int32:
		a.get = func(b []byte) T { return T(int32(binary.LittleEndian.Uint32(b))) }
		a.put = func(b []byte, v T) { binary.LittleEndian.PutUint32(b, uint32(int32(v))) }
	case schema.Uint32:
		a.get = func(b []byte) T { return T(binary.LittleEndian.Uint32(b)) }
		a.put = func(b []byte, v T) { binary.LittleEndian.PutUint32(b, uint32(v)) }
	case schema.Float32:
		a.get = func(b []byte) T { return T(math.Float32frombits(binary.LittleEndian.Uint32(b))) }
		a.put = func(b []byte, v T) { binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v))) }
	default:
		a.get = func(b []byte) T { return T(math.Float64frombits(binary.LittleEndian.Uint64(b))) }
		a.put = func(b []byte, v T) { binary.LittleEndian.PutUint64(b, math.Float64bits(float64(v))) }
	}
	return a, nil
}

// Get returns the field value of point p.
func (a FieldAccessor[T]) Get(p int) T {
	return a.get(a.data.Bytes(p)[a.offset:])
}

// Set stores v into the field of point p.
func (a FieldAccessor[T]) Set(p int, v T) {
	a.put(a.data.Bytes(p)[a.offset:], v)
}

func kindOf[T Value]() schema.ValueKind {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return schema.Uint8
	case uint16:
		return schema.Uint16
	case int32:
		return schema.Int32
	case uint32:
		return schema.Uint32
	case float32:
		return schema.Float32
	case float64:
		return schema.Float64
	}
	return schema.Float64
}
