package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"figurespeaker/internal/config"
	"figurespeaker/internal/deps"
	"figurespeaker/internal/ipc"
	"figurespeaker/internal/preflight"
	"figurespeaker/internal/settings"
)

// StatusLine is one labelled row of the status report.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// DependencyStatus reports one external program.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
	Severity    string `json:"severity"`
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int    `json:"total"`
	Available       int    `json:"available"`
	MissingRequired int    `json:"missing_required"`
	MissingOptional int    `json:"missing_optional"`
	Severity        string `json:"severity"`
	Detail          string `json:"detail"`
}

// Snapshot is the CLI status report.
type Snapshot struct {
	Daemon            ipc.StatusResponse `json:"daemon"`
	FigureCount       int                `json:"figure_count"`
	SystemChecks      []StatusLine       `json:"system_checks"`
	Dependencies      []DependencyStatus `json:"dependencies"`
	DependencySummary DependencySummary  `json:"dependency_summary"`
}

// BuildStatusSnapshot collects daemon status and falls back to the settings
// store and local probes when the daemon is not running.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snap := &Snapshot{FigureCount: -1}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil {
			snap.Daemon = *resp
		}
		if figs, listErr := client.FigureList(); listErr == nil {
			snap.FigureCount = len(figs.Figures)
		}
	}

	if !snap.Daemon.Running {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if store, openErr := settings.Open(cfg); openErr == nil {
			if vol, volErr := store.VolumeSettings(queryCtx); volErr == nil {
				snap.Daemon.Volume = ipc.VolumeSettings{Min: vol.Min, Max: vol.Max, Current: vol.Current}
			}
			if figs, listErr := store.ListFigures(queryCtx); listErr == nil {
				snap.FigureCount = len(figs)
			}
			snap.Daemon.DatabasePath = store.Path()
			_ = store.Close()
		}
	}

	snap.Dependencies = ResolveDependencies(cfg)
	snap.DependencySummary = BuildDependencySummary(snap.Dependencies)
	snap.SystemChecks = BuildSystemChecks(ctx, cfg, snap.Daemon)
	return snap, nil
}

// ResolveDependencies returns current dependency availability for status output.
func ResolveDependencies(cfg *config.Config) []DependencyStatus {
	if cfg == nil {
		return nil
	}
	checks := preflight.CheckSystemDeps(cfg)
	statuses := make([]DependencyStatus, 0, len(checks))
	for _, check := range checks {
		statuses = append(statuses, fromDependency(check))
	}
	return statuses
}

func fromDependency(check deps.Status) DependencyStatus {
	severity := "ok"
	if !check.Available {
		severity = "error"
		if check.Optional {
			severity = "warn"
		}
	}
	return DependencyStatus{
		Name:        check.Name,
		Command:     check.Command,
		Description: check.Description,
		Optional:    check.Optional,
		Available:   check.Available,
		Detail:      check.Detail,
		Severity:    severity,
	}
}

// BuildSystemChecks resolves status lines that combine runtime state and config checks.
func BuildSystemChecks(ctx context.Context, cfg *config.Config, status ipc.StatusResponse) []StatusLine {
	lines := make([]StatusLine, 0, 6)
	if status.Running {
		lines = append(lines, StatusLine{Label: "Daemon", Severity: "ok", Detail: fmt.Sprintf("Running (pid %d)", status.PID)})
		lines = append(lines, engineLine(status.Engine))
	} else {
		lines = append(lines, StatusLine{Label: "Daemon", Severity: "warn", Detail: "Not running (run `figurespeaker start`)"})
		endpoint := preflight.CheckEngineEndpoint(ctx, cfg.Engine)
		severity := "info"
		if endpoint.Passed {
			severity = "ok"
		}
		lines = append(lines, StatusLine{Label: "Engine", Severity: severity, Detail: endpoint.Detail})
	}

	if cfg.RFID.Enabled {
		lines = append(lines, resultLine("RFID reader", preflight.CheckDeviceAccess("RFID reader", cfg.RFID.Device), "warn"))
	} else {
		lines = append(lines, StatusLine{Label: "RFID reader", Severity: "info", Detail: "Disabled"})
	}

	switch {
	case !cfg.MPRIS.Enabled:
		lines = append(lines, StatusLine{Label: "MPRIS", Severity: "info", Detail: "Disabled"})
	case status.MPRISActive:
		lines = append(lines, StatusLine{Label: "MPRIS", Severity: "ok", Detail: "Exported on the session bus"})
	case status.Running:
		lines = append(lines, StatusLine{Label: "MPRIS", Severity: "warn", Detail: "Enabled but not exported (check the session bus)"})
	default:
		lines = append(lines, resultLine("MPRIS", preflight.CheckSessionBus(), "warn"))
	}

	lines = append(lines, resultLine("Data directory", preflight.CheckDirectoryAccess("Data directory", cfg.Paths.DataDir), "error"))
	return lines
}

func engineLine(engine ipc.EngineStatus) StatusLine {
	switch engine.State {
	case "ready":
		return StatusLine{Label: "Engine", Severity: "ok", Detail: fmt.Sprintf("Ready (%s, pid %d)", engine.Binary, engine.PID)}
	case "starting", "stopping":
		return StatusLine{Label: "Engine", Severity: "info", Detail: engine.State}
	default:
		return StatusLine{Label: "Engine", Severity: "warn", Detail: "Stopped (run `figurespeaker engine start`)"}
	}
}

func resultLine(label string, result preflight.Result, failSeverity string) StatusLine {
	if result.Passed {
		return StatusLine{Label: label, Severity: "ok", Detail: result.Detail}
	}
	return StatusLine{Label: label, Severity: failSeverity, Detail: result.Detail}
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(deps []DependencyStatus) DependencySummary {
	if len(deps) == 0 {
		return DependencySummary{
			Severity: "info",
			Detail:   "No dependency checks configured",
		}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range deps {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(deps) - missingCount
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(deps), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(deps))
	}

	return DependencySummary{
		Total:           len(deps),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}
