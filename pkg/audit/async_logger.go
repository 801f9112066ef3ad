package audit

import (
	"context"
	"sync"
	"time"

	"github.com/fieldline/fieldline/pkg/observability"
)

// writeTimeout bounds a single background write so a stalled sink cannot
// pin the worker forever.
const writeTimeout = 5 * time.Second

// AsyncLogger decouples denial recording from the sink behind a bounded
// queue. Record never blocks the caller: when the queue is full the entry
// is dropped and counted, which keeps a slow sink from backing up into
// request handling.
type AsyncLogger struct {
	sink   Logger
	logger *observability.Logger

	queue chan *Entry
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	closed  bool
	dropped int64
}

// NewAsyncLogger starts a single worker draining entries into the sink.
// A buffer of zero falls back to 256.
func NewAsyncLogger(sink Logger, logger *observability.Logger, buffer int) *AsyncLogger {
	if buffer <= 0 {
		buffer = 256
	}

	l := &AsyncLogger{
		sink:   sink,
		logger: logger,
		queue:  make(chan *Entry, buffer),
		done:   make(chan struct{}),
	}
	go l.worker()
	return l
}

// Record enqueues the entry without blocking. The context is ignored; the
// write happens on the worker's own deadline. Entries recorded after Close
// are silently discarded, so late fire-and-forget callers stay safe.
func (l *AsyncLogger) Record(ctx context.Context, entry *Entry) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	select {
	case l.queue <- entry:
		l.mu.Unlock()
		return nil
	default:
	}
	l.dropped++
	n := l.dropped
	l.mu.Unlock()
	l.logger.WithField("dropped_total", n).Warn("audit queue full, dropping denial entry")
	return nil
}

// Dropped reports how many entries were discarded because the queue was
// full.
func (l *AsyncLogger) Dropped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close drains the queue, closes the sink and stops the worker. The queue
// is only closed once no producer can reach it again, so a denial recorded
// during or after shutdown is dropped rather than panicking the process.
func (l *AsyncLogger) Close() error {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(l.queue)
		<-l.done
	})
	return l.sink.Close()
}

func (l *AsyncLogger) worker() {
	defer close(l.done)
	defer observability.RecoverPanic(l.logger, "audit worker")

	for entry := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := l.sink.Record(ctx, entry); err != nil {
			l.logger.WithError(err).Warn("failed to record denial in audit trail")
		}
		cancel()
	}
}
