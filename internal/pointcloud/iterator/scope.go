package iterator

import (
	"context"
	"errors"
	"fmt"

	"github.com/fdbesanto2/PDAL/internal/pointcloud"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/pointdata"
	"github.com/fdbesanto2/PDAL/internal/pointcloud/schema"
)

// WithSequential opens a sequential iterator, passes it to fn and closes
// it on every return path, panics included. A close error is reported
// only when fn succeeded.
func WithSequential(stage Stage, fn func(*Sequential) error) (err error) {
	it, err := NewSequential(stage)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := it.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(it)
}

// ErrStop ends ForEach early without error.
var ErrStop = errors.New("iterator: stop")

// ForEach reads stage in chunks of chunkSize points. Each chunk is a new
// pointdata.Data under layout holding n decoded points; fn may modify it.
// Iteration ends at the end of data, on the first error, when fn returns
// ErrStop or when ctx is cancelled.
func ForEach(ctx context.Context, stage Stage, layout *schema.Layout, chunkSize int,
	fn func(chunk *pointdata.Data, n int) error) error {
	if chunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	return WithSequential(stage, func(it *Sequential) error {
		chunks := 0
		for !it.AtEnd() {
			if err := ctx.Err(); err != nil {
				return err
			}
			chunk, err := pointdata.New(layout, chunkSize)
			if err != nil {
				return err
			}
			n, err := it.Read(chunk)
			if err != nil {
				return err
			}
			if n == 0 {
				pointcloud.Opsf("iterator: source ended at point %d of %d", it.Index(), stage.NumPoints())
				return nil
			}
			for p := n; p < chunk.NumPoints(); p++ {
				chunk.SetValid(p, false)
			}
			chunks++
			if err := fn(chunk, n); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
		}
		pointcloud.Diagf("iterator: %d chunks, %d points", chunks, it.Index())
		return nil
	})
}
