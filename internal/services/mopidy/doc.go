// Package mopidy implements the engine control session over Mopidy's
// JSON-RPC 2.0 websocket API (core.tracklist, core.library, core.mixer and
// core.playback). Events pushed by Mopidy are logged at debug level and
// otherwise ignored.
package mopidy
