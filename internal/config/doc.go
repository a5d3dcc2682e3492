// Package config loads, normalizes, and validates figurespeaker configuration data.
//
// It supplies repository defaults rooted in the XDG base directories, expands
// user paths (including tilde shortcuts), reads TOML files, and honours
// environment fallbacks such as MOPIDY_WEB_SOCKET_URL and PORT. The Config type
// centralizes every knob the daemon and CLI need: engine supervision, volume
// seed values, figure playback behavior, and the RFID reader device.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
