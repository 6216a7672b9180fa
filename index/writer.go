package index

import (
	"github.com/hauke96/sigolo/v2"
	"golang.org/x/sync/errgroup"
	"sync/atomic"
)

// AsyncWriter saves indices in the background. The indices stay readable while they're written but must not be
// modified anymore.
type AsyncWriter struct {
	group   *errgroup.Group
	written atomic.Int64
}

// NewAsyncWriter creates a writer with at most "limit" concurrent writes. A limit < 1 means no limit.
func NewAsyncWriter(limit int) *AsyncWriter {
	group := &errgroup.Group{}
	if limit > 0 {
		group.SetLimit(limit)
	}
	return &AsyncWriter{group: group}
}

// Save schedules the write of the index. Indices without unsaved changes are skipped. It blocks when the limit of
// concurrent writes has been reached.
func (w *AsyncWriter) Save(index *Index, filename string) {
	if !index.IsDirty() {
		sigolo.Tracef("Index %s has no unsaved changes, skip writing it", filename)
		return
	}

	w.group.Go(func() error {
		err := index.Save(filename)
		if err != nil {
			return err
		}
		w.written.Add(1)
		return nil
	})
}

// Wait blocks until all scheduled writes are done and returns the first error that occurred.
func (w *AsyncWriter) Wait() error {
	return w.group.Wait()
}

// Written returns the number of successfully written indices.
func (w *AsyncWriter) Written() int64 {
	return w.written.Load()
}
