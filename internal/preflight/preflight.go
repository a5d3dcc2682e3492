package preflight

import (
	"context"

	"figurespeaker/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckEngineBinary(cfg.Engine.Binary),
	}

	if cfg.RFID.Enabled {
		results = append(results, CheckDeviceAccess("RFID reader", cfg.RFID.Device))
	}

	if cfg.MPRIS.Enabled {
		results = append(results, CheckSessionBus())
	}

	return results
}
