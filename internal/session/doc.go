// Package session holds the remote-control connection to the playback engine.
//
// The connection only exists while the engine supervisor reports readiness.
// Callers ask for it through Acquire; when the engine is not ready they get
// no controller and no error, and are expected to return quietly.
package session
