// Package terrasolid reads and writes TerraSolid BIN point files.
//
// A file is a 56-byte little-endian header followed by fixed-size
// records. Coordinates are stored as int32 and scaled by the header's
// Units and origin: value = (raw - Org) / Units.
package terrasolid

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/fdbesanto2/PDAL/internal/pointcloud/schema"
)

const (
	HeaderSize  = 56
	HeaderVer   = 20020715
	RecogVal    = 970401
	RecogStr    = "CXYZ"
	countOffset = 16

	baseRecordSize = 16
)

// Header is the fixed file header.
type Header struct {
	HdrSize    int32
	HdrVersion int32
	RecogVal   int32
	RecogStr   [4]byte
	PntCnt     int32
	Units      int32
	OrgX       float64
	OrgY       float64
	OrgZ       float64
	Time       int32
	Color      int32
}

// NewHeader returns a header for a file with the given scale and origin.
func NewHeader(units int32, orgX, orgY, orgZ float64, withTime, withColor bool) Header {
	h := Header{
		HdrSize:    HeaderSize,
		HdrVersion: HeaderVer,
		RecogVal:   RecogVal,
		Units:      units,
		OrgX:       orgX,
		OrgY:       orgY,
		OrgZ:       orgZ,
	}
	copy(h.RecogStr[:], RecogStr)
	if withTime {
		h.Time = 1
	}
	if withColor {
		h.Color = 1
	}
	return h
}

// ReadHeader decodes and validates a header.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	return h, h.Validate()
}

// Validate checks the recognition values and the scale.
func (h Header) Validate() error {
	if h.RecogVal != RecogVal || !bytes.Equal(h.RecogStr[:], []byte(RecogStr)) {
		return fmt.Errorf("not a TerraSolid file: recognition %d %q", h.RecogVal, h.RecogStr[:])
	}
	if h.HdrSize < HeaderSize {
		return fmt.Errorf("header size %d smaller than %d", h.HdrSize, HeaderSize)
	}
	if h.Units <= 0 {
		return fmt.Errorf("invalid units %d", h.Units)
	}
	if h.PntCnt < 0 {
		return fmt.Errorf("invalid point count %d", h.PntCnt)
	}
	return nil
}

// RecordSize returns the encoded width of one point.
func (h Header) RecordSize() int {
	n := baseRecordSize
	if h.Time != 0 {
		n += 4
	}
	if h.Color != 0 {
		n += 4
	}
	return n
}

// Fields returns the point fields a file with this header carries.
func (h Header) Fields() []schema.Field {
	fields := []schema.Field{
		schema.NewField(schema.XPos, schema.Float64),
		schema.NewField(schema.YPos, schema.Float64),
		schema.NewField(schema.ZPos, schema.Float64),
		schema.NewField(schema.Classification, schema.Uint8),
		schema.NewField(schema.PointSourceID, schema.Uint8),
		schema.NewField(schema.Intensity, schema.Uint16),
	}
	if h.Time != 0 {
		fields = append(fields, schema.NewField(schema.GpsTime, schema.Uint32))
	}
	if h.Color != 0 {
		fields = append(fields,
			schema.NewField(schema.Red, schema.Uint8),
			schema.NewField(schema.Green, schema.Uint8),
			schema.NewField(schema.Blue, schema.Uint8),
			schema.NewField(schema.Alpha, schema.Uint8),
		)
	}
	return fields
}

// record is one decoded point.
type record struct {
	code, line uint8
	echoInt    uint16
	x, y, z    int32
	time       uint32
	rgba       [4]uint8
}

func (h Header) decode(b []byte) record {
	r := record{
		code:    b[0],
		line:    b[1],
		echoInt: binary.LittleEndian.Uint16(b[2:]),
		x:       int32(binary.LittleEndian.Uint32(b[4:])),
		y:       int32(binary.LittleEndian.Uint32(b[8:])),
		z:       int32(binary.LittleEndian.Uint32(b[12:])),
	}
	off := baseRecordSize
	if h.Time != 0 {
		r.time = binary.LittleEndian.Uint32(b[off:])
		off += 4
	}
	if h.Color != 0 {
		copy(r.rgba[:], b[off:off+4])
	}
	return r
}

func (h Header) encode(b []byte, r record) {
	b[0] = r.code
	b[1] = r.line
	binary.LittleEndian.PutUint16(b[2:], r.echoInt)
	binary.LittleEndian.PutUint32(b[4:], uint32(r.x))
	binary.LittleEndian.PutUint32(b[8:], uint32(r.y))
	binary.LittleEndian.PutUint32(b[12:], uint32(r.z))
	off := baseRecordSize
	if h.Time != 0 {
		binary.LittleEndian.PutUint32(b[off:], r.time)
		off += 4
	}
	if h.Color != 0 {
		copy(b[off:off+4], r.rgba[:])
	}
}

func (h Header) scale(raw int32, org float64) float64 {
	return (float64(raw) - org) / float64(h.Units)
}

func (h Header) unscale(v, org float64) (int32, error) {
	raw := math.Round(v*float64(h.Units) + org)
	if math.IsNaN(raw) || raw < math.MinInt32 || raw > math.MaxInt32 {
		return 0, fmt.Errorf("coordinate %g out of range for units %d", v, h.Units)
	}
	return int32(raw), nil
}
