// Package mpd implements the engine control session over the MPD text
// protocol using gompd. It serves installations that run Mopidy-MPD or a
// stock MPD instead of Mopidy's HTTP frontend.
package mpd
