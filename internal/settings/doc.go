// Package settings persists volume settings and the figure catalogue in
// SQLite.
//
// The database lives under paths.data_dir and is migrated on open from the
// embedded migrations directory. Volume values are seeded from the [volume]
// configuration section the first time the database is created; afterwards
// the stored values win. SwapCurrentVolume provides a compare-and-swap for
// writers that race on the current volume.
package settings
