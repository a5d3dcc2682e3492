// Package mpris exports the player on the D-Bus session bus as an MPRIS
// MediaPlayer2 service, so desktop media keys and tools such as playerctl
// can pause, seek and change volume. It is a no-op outside Linux.
package mpris
