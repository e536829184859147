package geosource

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// EWKB type flags.
const (
	ewkbZ    = 0x80000000
	ewkbM    = 0x40000000
	ewkbSRID = 0x20000000
)

var errWKBTruncated = errors.New("wkb: truncated geometry")

// flattenWKB rewrites WKB carrying Z and/or M ordinates, in ISO
// (1000/2000/3000 type offsets) or EWKB (high flag bits) form, as plain
// little-endian 2-D WKB. 2-D input is returned unchanged.
func flattenWKB(b []byte) ([]byte, error) {
	if len(b) < 5 {
		return b, nil
	}
	var order binary.ByteOrder = binary.LittleEndian
	if b[0] == 0 {
		order = binary.BigEndian
	}
	if t := order.Uint32(b[1:]); t&(ewkbZ|ewkbM|ewkbSRID) == 0 && t < 1000 {
		return b, nil
	}

	r := wkbReader{b: b}
	var out bytes.Buffer
	out.Grow(len(b))
	if err := r.geometry(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

type wkbReader struct {
	b   []byte
	off int
}

func (r *wkbReader) uint32(order binary.ByteOrder) (uint32, error) {
	if r.off+4 > len(r.b) {
		return 0, errWKBTruncated
	}
	v := order.Uint32(r.b[r.off:])
	r.off += 4
	return v, nil
}

// header reads byte order and type and returns the base type code
// (1..7) and the number of ordinates per coordinate.
func (r *wkbReader) header() (binary.ByteOrder, uint32, int, error) {
	if r.off >= len(r.b) {
		return nil, 0, 0, errWKBTruncated
	}
	var order binary.ByteOrder
	switch r.b[r.off] {
	case 0:
		order = binary.BigEndian
	case 1:
		order = binary.LittleEndian
	default:
		return nil, 0, 0, fmt.Errorf("wkb: invalid byte order %d", r.b[r.off])
	}
	r.off++

	t, err := r.uint32(order)
	if err != nil {
		return nil, 0, 0, err
	}
	dims := 2
	if t&ewkbZ != 0 {
		dims++
	}
	if t&ewkbM != 0 {
		dims++
	}
	if t&ewkbSRID != 0 {
		if _, err := r.uint32(order); err != nil {
			return nil, 0, 0, err
		}
	}
	t &^= ewkbZ | ewkbM | ewkbSRID
	switch t / 1000 {
	case 0:
	case 1, 2:
		dims++
	case 3:
		dims += 2
	default:
		return nil, 0, 0, fmt.Errorf("wkb: unsupported geometry type %d", t)
	}
	return order, t % 1000, dims, nil
}

func (r *wkbReader) coords(out *bytes.Buffer, order binary.ByteOrder, dims int, n uint32) error {
	for i := uint32(0); i < n; i++ {
		if r.off+dims*8 > len(r.b) {
			return errWKBTruncated
		}
		x := order.Uint64(r.b[r.off:])
		y := order.Uint64(r.b[r.off+8:])
		writeUint64(out, x)
		writeUint64(out, y)
		r.off += dims * 8
	}
	return nil
}

func (r *wkbReader) geometry(out *bytes.Buffer) error {
	order, base, dims, err := r.header()
	if err != nil {
		return err
	}
	out.WriteByte(1)
	writeUint32(out, base)

	switch base {
	case 1: // Point
		return r.coords(out, order, dims, 1)
	case 2: // LineString
		n, err := r.uint32(order)
		if err != nil {
			return err
		}
		writeUint32(out, n)
		return r.coords(out, order, dims, n)
	case 3: // Polygon
		rings, err := r.uint32(order)
		if err != nil {
			return err
		}
		writeUint32(out, rings)
		for i := uint32(0); i < rings; i++ {
			n, err := r.uint32(order)
			if err != nil {
				return err
			}
			writeUint32(out, n)
			if err := r.coords(out, order, dims, n); err != nil {
				return err
			}
		}
		return nil
	case 4, 5, 6, 7: // Multi* and GeometryCollection
		n, err := r.uint32(order)
		if err != nil {
			return err
		}
		writeUint32(out, n)
		for i := uint32(0); i < n; i++ {
			if err := r.geometry(out); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("wkb: unsupported geometry type %d", base)
}

func writeUint32(out *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	out.Write(b[:])
}

func writeUint64(out *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	out.Write(b[:])
}

var (
	wktDimTag = regexp.MustCompile(`(?i)\b(POINT|LINESTRING|POLYGON|MULTIPOINT|MULTILINESTRING|MULTIPOLYGON|GEOMETRYCOLLECTION)\s*(ZM|Z|M)\b`)
	wktTuple  = regexp.MustCompile(`[^(),]+`)
)

// flattenWKT drops Z/ZM/M tags and every ordinate past X and Y.
func flattenWKT(s string) string {
	s = wktDimTag.ReplaceAllString(s, "${1} ")
	return wktTuple.ReplaceAllStringFunc(s, func(tuple string) string {
		fields := strings.Fields(tuple)
		if len(fields) <= 2 {
			return tuple
		}
		for _, f := range fields {
			if _, err := strconv.ParseFloat(f, 64); err != nil {
				return tuple
			}
		}
		return fields[0] + " " + fields[1]
	})
}
