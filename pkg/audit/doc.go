// Package audit records permission denials as an append-only trail.
//
// Only authorization denials are recorded. A request that fails
// authentication never reaches the authorizer and leaves no trail entry, and
// granted requests are not logged. Writes are fire-and-forget: the
// authorization middleware records in a detached goroutine and a sink error
// can never fail the request it describes.
//
// Sinks implement the Logger interface. DBLogger writes to PostgreSQL and
// doubles as the query/export backend, FileLogger appends NDJSON lines, and
// MultiLogger fans out to both. RetentionJob prunes old rows on a cron
// schedule.
package audit
