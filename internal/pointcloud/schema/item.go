// Package schema describes the byte geometry of a point record.
//
// A Layout is an append-only ordered set of Fields. Each Field pairs a
// semantic DataItem with a ValueKind; offsets are assigned once when the
// field is added and never change afterwards, so buffers allocated
// against a Layout stay valid for its whole lifetime.
package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// DataItem is the semantic kind of a point attribute.
type DataItem int

const (
	Unknown DataItem = iota
	XPos
	YPos
	ZPos
	Intensity
	ReturnNumber
	NumberOfReturns
	Classification
	PointSourceID
	GpsTime
	Red
	Green
	Blue
	Alpha

	// attributeBase is the first generic attribute; Attribute(k) = attributeBase + k.
	attributeBase DataItem = 1000
)

var itemNames = map[DataItem]string{
	XPos:            "X",
	YPos:            "Y",
	ZPos:            "Z",
	Intensity:       "Intensity",
	ReturnNumber:    "ReturnNumber",
	NumberOfReturns: "NumberOfReturns",
	Classification:  "Classification",
	PointSourceID:   "PointSourceId",
	GpsTime:         "GpsTime",
	Red:             "Red",
	Green:           "Green",
	Blue:            "Blue",
	Alpha:           "Alpha",
}

// Attribute returns the generic attribute item number k.
func Attribute(k int) DataItem {
	if k < 0 {
		return Unknown
	}
	return attributeBase + DataItem(k)
}

// IsPosition reports whether the item is X, Y or Z.
func (d DataItem) IsPosition() bool {
	return d == XPos || d == YPos || d == ZPos
}

// String returns the semantic name used in configuration.
func (d DataItem) String() string {
	if name, ok := itemNames[d]; ok {
		return name
	}
	if d >= attributeBase {
		return "Attribute" + strconv.Itoa(int(d-attributeBase))
	}
	return "Unknown"
}

// ParseDataItem resolves a semantic name, case-insensitively.
// Generic attributes are written "Attribute<k>".
func ParseDataItem(name string) (DataItem, error) {
	trimmed := strings.TrimSpace(name)
	for item, n := range itemNames {
		if strings.EqualFold(n, trimmed) {
			return item, nil
		}
	}
	const prefix = "attribute"
	if len(trimmed) > len(prefix) && strings.EqualFold(trimmed[:len(prefix)], prefix) {
		k, err := strconv.Atoi(trimmed[len(prefix):])
		if err == nil && k >= 0 {
			return Attribute(k), nil
		}
	}
	return Unknown, fmt.Errorf("unknown data item %q", name)
}

// ValueKind is the stored representation of a field value.
type ValueKind uint8

const (
	Uint8 ValueKind = iota + 1
	Uint16
	Int32
	Uint32
	Float32
	Float64
)

// Width returns the number of bytes a value of this kind occupies.
func (k ValueKind) Width() int {
	switch k {
	case Uint8:
		return 1
	case Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

func (k ValueKind) String() string {
	switch k {
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "invalid"
	}
}

// Range returns the smallest and largest value representable by the kind.
func (k ValueKind) Range() (lo, hi float64) {
	switch k {
	case Uint8:
		return 0, 255
	case Uint16:
		return 0, 65535
	case Int32:
		return -2147483648, 2147483647
	case Uint32:
		return 0, 4294967295
	case Float32:
		return -3.4028234663852886e38, 3.4028234663852886e38
	default:
		return -1.7976931348623157e308, 1.7976931348623157e308
	}
}
