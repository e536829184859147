// Package geometry wraps orb polygons with the operations the overlay
// needs: bounds, a boundary-inclusive covers test and reprojection.
package geometry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Well-known EPSG codes.
const (
	EPSGWGS84       = 4326
	EPSGWebMercator = 3857
)

// ErrUnsupportedTransform is returned when no projection is known between
// two spatial references.
var ErrUnsupportedTransform = errors.New("geometry: unsupported transform")

// SpatialReference identifies a coordinate reference system by EPSG code.
// The zero value is the empty reference.
type SpatialReference struct {
	Code int
}

// ParseSpatialReference accepts "EPSG:n" (any case), "WGS84", "CRS:84"
// and the legacy "EPSG:900913". An empty string yields the empty reference.
func ParseSpatialReference(s string) (SpatialReference, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	switch t {
	case "":
		return SpatialReference{}, nil
	case "WGS84", "CRS:84", "CRS84", "OGC:CRS84":
		return SpatialReference{Code: EPSGWGS84}, nil
	}
	if strings.HasPrefix(t, "URN:OGC:DEF:CRS:EPSG:") {
		t = "EPSG:" + t[strings.LastIndex(t, ":")+1:]
	}
	code, ok := strings.CutPrefix(t, "EPSG:")
	if !ok {
		return SpatialReference{}, fmt.Errorf("unrecognised spatial reference %q", s)
	}
	n, err := strconv.Atoi(code)
	if err != nil || n <= 0 {
		return SpatialReference{}, fmt.Errorf("invalid EPSG code in %q", s)
	}
	if n == 900913 {
		n = EPSGWebMercator
	}
	return SpatialReference{Code: n}, nil
}

// MustSpatialReference is ParseSpatialReference for constants.
func MustSpatialReference(s string) SpatialReference {
	srs, err := ParseSpatialReference(s)
	if err != nil {
		panic(err)
	}
	return srs
}

// IsEmpty reports whether no reference is set.
func (s SpatialReference) IsEmpty() bool { return s.Code == 0 }

func (s SpatialReference) String() string {
	if s.IsEmpty() {
		return ""
	}
	return "EPSG:" + strconv.Itoa(s.Code)
}
