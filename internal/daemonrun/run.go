package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"figurespeaker/internal/config"
	"figurespeaker/internal/daemon"
	"figurespeaker/internal/ipc"
	"figurespeaker/internal/logging"
	"figurespeaker/internal/preflight"
	"figurespeaker/internal/settings"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the figurespeaker daemon and blocks until a termination signal
// or a stop request arrives. A clean shutdown returns nil.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("figurespeaker-%s.log", runID))

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	levelVar := new(slog.LevelVar)
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
		LevelVar:    levelVar,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(cmdCtx, logger, cfg)
	if err := ensureCurrentLogPointer(cfg.CurrentLogPath(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update figurespeaker.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, cfg.Paths.LogDir, "figurespeaker-*.log", logPath)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := settings.Open(cfg)
	if err != nil {
		logger.Error("open settings store", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, store, logger, daemon.Options{LevelVar: levelVar, LogPath: logPath})
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	runCtx, cancel := context.WithCancel(cmdCtx)
	defer cancel()

	// The lock taken by Start guards the socket below.
	if err := d.Start(runCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(runCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	coordinator := NewCoordinator(d.TagReader(), d.Engine(),
		cfg.Engine.StopTimeoutDuration()+5*time.Second, logger)
	if err := coordinator.Run(runCtx, d.ShutdownRequested()); err != nil {
		if !isCancellation(err) {
			return err
		}
		coordinator.Shutdown("context cancelled")
	}
	logger.Info("figurespeaker daemon exiting",
		logging.Event("daemon_exit"),
	)
	return nil
}

func ensureCurrentLogPointer(current, target string) error {
	if current == "" || target == "" {
		return nil
	}
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("dependency snapshot",
		logging.Event("dependency_snapshot"),
		logging.String("engine_binary", cfg.Engine.Binary),
		logging.String("protocol", cfg.Engine.Protocol),
		logging.Bool("rfid_enabled", cfg.RFID.Enabled),
		logging.String("rfid_device", cfg.RFID.Device),
		logging.Bool("mpris_enabled", cfg.MPRIS.Enabled),
		logging.Bool("api_token_present", strings.TrimSpace(cfg.Paths.APIToken) != ""),
	)
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "the daemon starts but the affected feature may not work"),
			logging.String(logging.FieldErrorHint, "run figurespeaker status for details"),
		)
	}
}
