// Package iterator streams fixed-size point records from a Stage into
// pointdata buffers.
//
// Iterators are format agnostic: a Stage reports where its records start,
// how wide each one is and how many there are, and decodes them. Skipping
// and seeking move the stream by whole records without decoding.
package iterator

import (
	"io"

	"github.com/fdbesanto2/PDAL/internal/pointcloud"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/pointdata"
)

// Stage is the reader side of a point format.
type Stage interface {
	// NumPoints is the number of records in the source.
	NumPoints() uint64
	// PointDataOffset is the byte offset of the first record.
	PointDataOffset() int64
	// PointDataSize is the encoded width of one record in bytes.
	PointDataSize() int
	// OpenStream opens a fresh handle to the backing bytes.
	OpenStream() (io.ReadSeekCloser, error)
	// Decode reads up to maxCount records from r into dst starting at
	// point 0 and returns the number decoded.
	Decode(r io.Reader, dst *pointdata.Data, maxCount int) (int, error)
}

// base holds the stream and cursor shared by both traversal modes.
type base struct {
	stage  Stage
	stream io.ReadSeekCloser
	cursor uint64
	closed bool
}

func open(stage Stage, op string) (base, error) {
	stream, err := stage.OpenStream()
	if err != nil {
		return base{}, pointcloud.Wrap(pointcloud.KindIO, op, err, "open stream")
	}
	if _, err := stream.Seek(stage.PointDataOffset(), io.SeekStart); err != nil {
		stream.Close()
		return base{}, pointcloud.Wrap(pointcloud.KindIO, op, err,
			"seek to point data at %d", stage.PointDataOffset())
	}
	pointcloud.Diagf("iterator: opened stream, %d points of %d bytes at offset %d",
		stage.NumPoints(), stage.PointDataSize(), stage.PointDataOffset())
	return base{stage: stage, stream: stream}, nil
}

// Index returns the cursor: the index of the next point to be read.
func (b *base) Index() uint64 { return b.cursor }

// AtEnd reports whether every point has been consumed.
func (b *base) AtEnd() bool { return b.cursor >= b.stage.NumPoints() }

func (b *base) remaining() uint64 {
	if b.AtEnd() {
		return 0
	}
	return b.stage.NumPoints() - b.cursor
}

// Read decodes up to min(dst.NumPoints(), remaining) points into dst and
// advances the cursor by the count produced. A short count means the
// source ran out of data; it is not an error.
func (b *base) Read(dst *pointdata.Data) (int, error) {
	if b.closed {
		return 0, pointcloud.Errorf(pointcloud.KindIO, "iterator.read", "iterator is closed")
	}
	want := uint64(dst.NumPoints())
	if r := b.remaining(); r < want {
		want = r
	}
	if want == 0 {
		return 0, nil
	}

	n, err := b.stage.Decode(b.stream, dst, int(want))
	if err != nil {
		return 0, pointcloud.Wrap(pointcloud.KindIO, "iterator.read", err,
			"decode at point %d", b.cursor)
	}
	if n < 0 || uint64(n) > want {
		return 0, pointcloud.Errorf(pointcloud.KindIO, "iterator.read",
			"decode returned %d points, requested %d", n, want)
	}
	if uint64(n) < want {
		pointcloud.Diagf("iterator: short decode at point %d, %d of %d", b.cursor, n, want)
	}
	b.cursor += uint64(n)
	pointcloud.Tracef("iterator: read %d points, cursor %d", n, b.cursor)
	return n, nil
}

// Close releases the stream. It is safe to call more than once.
func (b *base) Close() error {
	if b.closed || b.stream == nil {
		return nil
	}
	b.closed = true
	if err := b.stream.Close(); err != nil {
		return pointcloud.Wrap(pointcloud.KindIO, "iterator.close", err, "close stream")
	}
	return nil
}

// Sequential walks the records in order.
type Sequential struct {
	base
}

// NewSequential opens stage and positions the stream at the first record.
// No iterator is returned when the open or the seek fails.
func NewSequential(stage Stage) (*Sequential, error) {
	b, err := open(stage, "iterator.new_sequential")
	if err != nil {
		return nil, err
	}
	return &Sequential{base: b}, nil
}

// Skip advances past up to n records without decoding them and returns
// how many were skipped. n is clamped to the records remaining.
func (s *Sequential) Skip(n uint64) (uint64, error) {
	if s.closed {
		return 0, pointcloud.Errorf(pointcloud.KindIO, "iterator.skip", "iterator is closed")
	}
	if r := s.remaining(); n > r {
		n = r
	}
	if n == 0 {
		return 0, nil
	}
	delta := int64(n) * int64(s.stage.PointDataSize())
	if _, err := s.stream.Seek(delta, io.SeekCurrent); err != nil {
		return 0, pointcloud.Wrap(pointcloud.KindIO, "iterator.skip", err,
			"skip %d points from %d", n, s.cursor)
	}
	s.cursor += n
	return n, nil
}

// Random reads records at arbitrary positions.
type Random struct {
	base
}

// NewRandom opens stage and positions the stream at the first record.
func NewRandom(stage Stage) (*Random, error) {
	b, err := open(stage, "iterator.new_random")
	if err != nil {
		return nil, err
	}
	return &Random{base: b}, nil
}

// Seek moves to absolute point n. Seeking to NumPoints is allowed and
// leaves the iterator at its end.
func (r *Random) Seek(n uint64) (uint64, error) {
	if r.closed {
		return 0, pointcloud.Errorf(pointcloud.KindIO, "iterator.seek", "iterator is closed")
	}
	if n > r.stage.NumPoints() {
		return 0, pointcloud.Errorf(pointcloud.KindIO, "iterator.seek",
			"point %d beyond end of %d points", n, r.stage.NumPoints())
	}
	off := r.stage.PointDataOffset() + int64(n)*int64(r.stage.PointDataSize())
	if _, err := r.stream.Seek(off, io.SeekStart); err != nil {
		return 0, pointcloud.Wrap(pointcloud.KindIO, "iterator.seek", err, "seek to point %d", n)
	}
	r.cursor = n
	return n, nil
}
