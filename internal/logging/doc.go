// Package logging builds the slog loggers used across datasetdedup.
//
// Two formats are supported: a single-line console format for terminals and
// JSON for log shipping. Debug level also records the call site.
package logging
