package terrasolid

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fdbesanto2/PDAL/internal/pointcloud"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/pointdata"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/schema"
)

// Writer encodes points into a TerraSolid BIN stream. Records are
// buffered; the buffer is flushed and the header's point count patched on
// Close.
type Writer struct {
	w      io.WriteSeeker
	bw     *bufio.Writer
	header Header
	count  int32
	buf    []byte
	closed bool
}

// NewWriter writes h to w with a zero point count.
func NewWriter(w io.WriteSeeker, h Header) (*Writer, error) {
	h.PntCnt = 0
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("terrasolid writer: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return nil, pointcloud.Wrap(pointcloud.KindIO, "terrasolid.write_header", err, "write header")
	}
	if pad := int(h.HdrSize) - HeaderSize; pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return nil, pointcloud.Wrap(pointcloud.KindIO, "terrasolid.write_header", err, "pad header")
		}
	}
	return &Writer{w: w, bw: bufio.NewWriter(w), header: h, buf: make([]byte, h.RecordSize())}, nil
}

// Count returns the number of points written so far.
func (w *Writer) Count() int { return int(w.count) }

// Write encodes the valid points among the first n of data. The layout
// must have X, Y and Z; other fields are written when present.
func (w *Writer) Write(data *pointdata.Data, n int) error {
	if w.closed {
		return pointcloud.Errorf(pointcloud.KindIO, "terrasolid.write", "writer is closed")
	}
	if err := data.RequirePosition(schema.XPos, schema.YPos, schema.ZPos); err != nil {
		return err
	}
	if n > data.NumPoints() {
		n = data.NumPoints()
	}
	layout := data.Layout()
	get := func(p int, item schema.DataItem) float64 {
		f := layout.FindFieldIndex(item)
		if f < 0 {
			return 0
		}
		return data.Value(p, f)
	}

	h := w.header
	for p := 0; p < n; p++ {
		if !data.IsValid(p) {
			continue
		}
		var rec record
		var err error
		if rec.x, err = h.unscale(data.X(p), h.OrgX); err != nil {
			return fmt.Errorf("point %d x: %w", p, err)
		}
		if rec.y, err = h.unscale(data.Y(p), h.OrgY); err != nil {
			return fmt.Errorf("point %d y: %w", p, err)
		}
		if rec.z, err = h.unscale(data.Z(p), h.OrgZ); err != nil {
			return fmt.Errorf("point %d z: %w", p, err)
		}
		rec.code = uint8(get(p, schema.Classification))
		rec.line = uint8(get(p, schema.PointSourceID))
		rec.echoInt = uint16(get(p, schema.Intensity))
		rec.time = uint32(get(p, schema.GpsTime))
		rec.rgba = [4]uint8{
			uint8(get(p, schema.Red)), uint8(get(p, schema.Green)),
			uint8(get(p, schema.Blue)), uint8(get(p, schema.Alpha)),
		}

		h.encode(w.buf, rec)
		if _, err := w.bw.Write(w.buf); err != nil {
			return pointcloud.Wrap(pointcloud.KindIO, "terrasolid.write", err, "write point %d", w.count)
		}
		w.count++
	}
	return nil
}

// Close patches the point count into the header and closes the
// underlying stream if it is an io.Closer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var err error
	if ferr := w.bw.Flush(); ferr != nil {
		err = pointcloud.Wrap(pointcloud.KindIO, "terrasolid.close", ferr, "flush points")
	} else if _, serr := w.w.Seek(countOffset, io.SeekStart); serr != nil {
		err = pointcloud.Wrap(pointcloud.KindIO, "terrasolid.close", serr, "seek to point count")
	} else if werr := binary.Write(w.w, binary.LittleEndian, w.count); werr != nil {
		err = pointcloud.Wrap(pointcloud.KindIO, "terrasolid.close", werr, "patch point count")
	}
	if c, ok := w.w.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = pointcloud.Wrap(pointcloud.KindIO, "terrasolid.close", cerr, "close")
		}
	}
	pointcloud.Opsf("terrasolid: wrote %d points", w.count)
	return err
}
