// Package preflight provides readiness checks for the programs, devices and
// paths figurespeaker depends on.
//
// These checks run in two contexts:
//   - The daemon logs RunAll results at startup so a missing engine binary
//     or unreadable reader device is visible before the first tag scan.
//   - The CLI "figurespeaker status" command uses the individual checks to
//     display system health, including when the daemon is not running.
//
// Each check is gated by its config toggle. Disabled features are skipped.
package preflight
