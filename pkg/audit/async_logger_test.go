package audit

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldline/fieldline/pkg/observability"
)

// blockingSink holds every Record call until released.
type blockingSink struct {
	mu      sync.Mutex
	entries []*Entry
	gate    chan struct{}
}

func newBlockingSink() *blockingSink {
	return &blockingSink{gate: make(chan struct{})}
}

func (s *blockingSink) Record(ctx context.Context, entry *Entry) error {
	select {
	case <-s.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *blockingSink) Close() error { return nil }

func (s *blockingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func testAsyncLogger(t *testing.T, sink Logger, buffer int) *AsyncLogger {
	t.Helper()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewAsyncLogger(sink, logger, buffer)
}

func TestAsyncLogger_DrainsOnClose(t *testing.T) {
	sink := newBlockingSink()
	close(sink.gate)

	async := testAsyncLogger(t, sink, 16)
	for i := 0; i < 5; i++ {
		require.NoError(t, async.Record(context.Background(), sampleEntry()))
	}
	require.NoError(t, async.Close())

	assert.Equal(t, 5, sink.count())
	assert.Zero(t, async.Dropped())
}

func TestAsyncLogger_RecordNeverBlocks(t *testing.T) {
	sink := newBlockingSink() // gate stays shut, the worker is stuck

	async := testAsyncLogger(t, sink, 2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Far more entries than the queue holds.
		for i := 0; i < 50; i++ {
			_ = async.Record(context.Background(), sampleEntry())
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	assert.Greater(t, async.Dropped(), int64(0))
	close(sink.gate)
	require.NoError(t, async.Close())
}

// flakySink fails its first write and accepts the rest.
type flakySink struct {
	mu       sync.Mutex
	attempts int
	accepted int
}

func (s *flakySink) Record(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts == 1 {
		return errors.New("sink down")
	}
	s.accepted++
	return nil
}

func (s *flakySink) Close() error { return nil }

func TestAsyncLogger_SinkErrorDoesNotStopWorker(t *testing.T) {
	sink := &flakySink{}

	async := testAsyncLogger(t, sink, 8)
	require.NoError(t, async.Record(context.Background(), sampleEntry()))
	require.NoError(t, async.Record(context.Background(), sampleEntry()))
	require.NoError(t, async.Close())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, 2, sink.attempts)
	assert.Equal(t, 1, sink.accepted)
}

func TestAsyncLogger_RecordAfterCloseIsSafe(t *testing.T) {
	sink := newBlockingSink()
	close(sink.gate)

	async := testAsyncLogger(t, sink, 4)
	require.NoError(t, async.Record(context.Background(), sampleEntry()))
	require.NoError(t, async.Close())

	// Detached denial goroutines can outlive server shutdown; a late
	// Record must be dropped, never panic.
	for i := 0; i < 10; i++ {
		require.NoError(t, async.Record(context.Background(), sampleEntry()))
	}
	assert.Equal(t, 1, sink.count())
}

func TestAsyncLogger_RecordRacingCloseDoesNotPanic(t *testing.T) {
	sink := newBlockingSink()
	close(sink.gate)

	async := testAsyncLogger(t, sink, 1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = async.Record(context.Background(), sampleEntry())
			}
		}()
	}
	require.NoError(t, async.Close())
	wg.Wait()
}

func TestAsyncLogger_CloseIsIdempotent(t *testing.T) {
	sink := newBlockingSink()
	close(sink.gate)

	async := testAsyncLogger(t, sink, 4)
	require.NoError(t, async.Close())
	require.NoError(t, async.Close())
}
