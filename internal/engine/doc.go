// Package engine supervises the external playback engine process.
//
// A Supervisor owns a single process slot. Start spawns the configured
// binary, streams its output, and returns once the readiness marker appears
// (for Mopidy, "HTTP server running"). Stop sends SIGTERM and escalates to
// SIGKILL after the stop timeout. Restart is Stop followed by Start and never
// starts when the stop failed. Observers receive lifecycle transitions so the
// control session can be dropped when the process goes away.
package engine
