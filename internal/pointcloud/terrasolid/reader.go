package terrasolid

import (
	"errors"
	"io"

	"github.com/fdbesanto2/PDAL/internal/fsutil"
	"github.com/fdbesanto2/PDAL/internal/pointcloud"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/pointdata"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/schema"
)

// Reader is a TerraSolid BIN source. It implements iterator.Stage.
type Reader struct {
	fs     fsutil.FileSystem
	path   string
	header Header
}

// NewReader opens path, validates the header and closes the file again.
// Streams are opened per iterator.
func NewReader(fs fsutil.FileSystem, path string) (*Reader, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, pointcloud.Wrap(pointcloud.KindIO, "terrasolid.open", err, "open %s", path)
	}
	defer f.Close()

	h, err := ReadHeader(f)
	if err != nil {
		return nil, pointcloud.Wrap(pointcloud.KindIO, "terrasolid.open", err, "%s", path)
	}
	pointcloud.Opsf("terrasolid: %s has %d points, record size %d, units %d",
		path, h.PntCnt, h.RecordSize(), h.Units)
	if fi, err := fs.Stat(path); err == nil {
		want := int64(h.HdrSize) + int64(h.PntCnt)*int64(h.RecordSize())
		if fi.Size() < want {
			pointcloud.Opsf("terrasolid: %s is truncated: %d bytes, header implies %d", path, fi.Size(), want)
		}
	}
	return &Reader{fs: fs, path: path, header: h}, nil
}

// Header returns the parsed file header.
func (r *Reader) Header() Header { return r.header }

// Fields returns the fields the file provides.
func (r *Reader) Fields() []schema.Field { return r.header.Fields() }

func (r *Reader) NumPoints() uint64      { return uint64(r.header.PntCnt) }
func (r *Reader) PointDataOffset() int64 { return int64(r.header.HdrSize) }
func (r *Reader) PointDataSize() int     { return r.header.RecordSize() }

// OpenStream opens a new handle on the file.
func (r *Reader) OpenStream() (io.ReadSeekCloser, error) {
	f, err := r.fs.Open(r.path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Decode reads up to maxCount records into dst starting at point 0, in one
// read from in. Fields dst's layout lacks are dropped. A truncated file
// ends decoding early without error; a partial trailing record is
// ignored.
func (r *Reader) Decode(in io.Reader, dst *pointdata.Data, maxCount int) (int, error) {
	if maxCount > dst.NumPoints() {
		maxCount = dst.NumPoints()
	}
	if maxCount <= 0 {
		return 0, nil
	}
	layout := dst.Layout()
	idx := func(item schema.DataItem) int { return layout.FindFieldIndex(item) }
	ix, iy, iz := layout.XIndex(), layout.YIndex(), layout.ZIndex()
	icls, iline, iint := idx(schema.Classification), idx(schema.PointSourceID), idx(schema.Intensity)
	itime := idx(schema.GpsTime)
	icolor := [4]int{idx(schema.Red), idx(schema.Green), idx(schema.Blue), idx(schema.Alpha)}

	h := r.header
	size := h.RecordSize()
	buf := make([]byte, maxCount*size)
	read, err := io.ReadFull(in, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	if whole := read / size; whole < maxCount {
		maxCount = whole
	}

	for p := 0; p < maxCount; p++ {
		rec := h.decode(buf[p*size : (p+1)*size])

		set := func(f int, v float64) {
			if f >= 0 {
				dst.SetValue(p, f, v)
			}
		}
		set(ix, h.scale(rec.x, h.OrgX))
		set(iy, h.scale(rec.y, h.OrgY))
		set(iz, h.scale(rec.z, h.OrgZ))
		set(icls, float64(rec.code))
		set(iline, float64(rec.line))
		set(iint, float64(rec.echoInt))
		if h.Time != 0 {
			set(itime, float64(rec.time))
		}
		if h.Color != 0 {
			for c, f := range icolor {
				set(f, float64(rec.rgba[c]))
			}
		}
		dst.SetValid(p, true)
	}
	return maxCount, err
}
