package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/pkg/async"
)

type blockingSink struct {
	mu      sync.Mutex
	entries []*Entry
}

func (s *blockingSink) Record(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *blockingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestAsyncSinkDeliversInBackground(t *testing.T) {
	inner := &blockingSink{}
	pool := async.NewWorkerPool(context.Background(), 2, "audit", time.Second, nil)
	sink := NewAsyncSink(inner, pool)

	for i := 0; i < 10; i++ {
		require.NoError(t, sink.Record(context.Background(), &Entry{Action: "member_removed", CompanyID: 42}))
	}

	require.NoError(t, pool.Shutdown(time.Second))
	assert.Equal(t, 10, inner.count())
}

func TestAsyncSinkAfterShutdown(t *testing.T) {
	inner := &blockingSink{}
	pool := async.NewWorkerPool(context.Background(), 1, "audit", time.Second, nil)
	require.NoError(t, pool.Shutdown(time.Second))

	sink := NewAsyncSink(inner, pool)
	err := sink.Record(context.Background(), &Entry{Action: "member_removed", CompanyID: 42})
	assert.Error(t, err)
	assert.Zero(t, inner.count())
}
