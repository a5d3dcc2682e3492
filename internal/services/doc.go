// Package services defines shared utilities consumed by the engine control
// clients and the components that drive them.
//
// Key responsibilities:
//   - Context helpers that stamp the trigger source, scanned tag, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     as conflicts, protocol failures, validation errors, or missing data,
//     and map them onto API status codes.
//
// Engine protocol clients live in subpackages (mopidy, mpd).
package services
