// Package logging assembles structured slog loggers and formatting helpers used
// across figurespeaker services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so trigger handling code can tag
// log lines with the scanned tag and a correlation ID. The level lives in a
// shared slog.LevelVar so the daemon can change verbosity at runtime. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
package logging
