package audit

import "context"

// Logger is the audit sink. Implementations must be safe for concurrent use;
// the middleware records denials from request goroutines without
// coordination.
type Logger interface {
	// Record appends one entry to the trail.
	Record(ctx context.Context, entry *Entry) error

	// Close flushes and releases the sink.
	Close() error
}

// NopLogger discards every entry. Used when auditing is disabled and as the
// default in tests.
type NopLogger struct{}

func (NopLogger) Record(ctx context.Context, entry *Entry) error { return nil }

func (NopLogger) Close() error { return nil }
