// Package playback sequences engine operations for play requests and the
// transport buttons.
//
// PlayItem runs a fixed pipeline of named steps (clear, lookup, add, volume,
// play, seek) against the active engine session and stops at the first
// failing step. All entry points share one gate so concurrent triggers never
// interleave queue changes.
package playback
