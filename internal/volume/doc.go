// Package volume applies bounded, persisted volume changes.
//
// Every change reads the persisted settings fresh, persists the new current
// volume, and then applies it to the engine. A step that would cross the
// configured bound is refused unless clamping is enabled, in which case the
// volume lands exactly on the bound. One mutex serializes all writers in the
// process; SwapCurrentVolume on the store guards against writers outside it.
package volume
