// Package logging wraps log/slog with the handlers and attribute helpers
// shared across the pipeline. The console handler renders compact
// human-readable lines; the JSON handler is for log files and scraping.
package logging
