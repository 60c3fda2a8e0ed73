package audit

import (
	"context"

	"github.com/meridianhq/meridian/pkg/async"
)

// AsyncSink writes entries through a worker pool so request handlers never
// wait on audit storage. Entries are captured by value at submit time; a
// pool that has shut down drops the entry, matching the best-effort
// contract of the audit trail.
type AsyncSink struct {
	sink Sink
	pool *async.WorkerPool
}

// NewAsyncSink wraps sink with background delivery via pool.
func NewAsyncSink(sink Sink, pool *async.WorkerPool) *AsyncSink {
	return &AsyncSink{sink: sink, pool: pool}
}

// Record submits the entry for background delivery. The error reports a
// failed submit only; delivery failures surface through the pool's logger.
func (s *AsyncSink) Record(ctx context.Context, entry *Entry) error {
	// The request context ends when the handler returns; deliver on the
	// pool's own context instead.
	return s.pool.Submit(func(taskCtx context.Context) error {
		return s.sink.Record(taskCtx, entry)
	})
}
