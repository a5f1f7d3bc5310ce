// Package logging configures the process-wide slog logger for forumsearch.
// Records are JSON, optionally written to a size-rotated file under
// ~/.forumsearch/logs/ in addition to stderr.
package logging
