// Package daemon coordinates the long-running figurespeaker process.
//
// It wires configuration, the settings store, the engine supervisor, the
// control session, the playback orchestrator, the volume controller and the
// RFID reader into a single lifecycle with flock-based locking to prevent
// multiple instances. Tag events, API requests, IPC calls and MPRIS methods
// all funnel through the Daemon methods, which tag each request with a
// trigger and a correlation ID before handing it to the components.
//
// Keep orchestration logic here: playback and volume semantics live in their
// own packages while the daemon focuses on startup, shutdown and routing.
package daemon
