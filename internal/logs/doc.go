// Package logs reads the daemon's run logs for `figurespeaker logs`.
//
// The daemon writes one file per run and points figurespeaker.log at the
// newest one. Follow resolves that pointer on every poll, so a daemon restart
// moves the tail onto the new run instead of stalling on the old file.
package logs
