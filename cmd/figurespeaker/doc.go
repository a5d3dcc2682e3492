// Package main hosts the figurespeaker CLI entrypoint and command graph.
//
// The Cobra command tree turns terminal invocations into IPC calls against
// the daemon: lifecycle control, engine supervision, playback buttons and
// volume. Figure management and configuration scaffolding work on local
// files directly, so they are usable while the daemon is down.
package main
