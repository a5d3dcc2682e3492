package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"figurespeaker/internal/config"
	"figurespeaker/internal/engine"
	"figurespeaker/internal/figures"
	"figurespeaker/internal/logging"
	"figurespeaker/internal/mpris"
	"figurespeaker/internal/playback"
	"figurespeaker/internal/rfid"
	"figurespeaker/internal/services/mopidy"
	"figurespeaker/internal/services/mpd"
	"figurespeaker/internal/session"
	"figurespeaker/internal/settings"
	"figurespeaker/internal/volume"
)

// TagSource delivers tag placement events. rfid.Reader implements it.
type TagSource interface {
	Start(ctx context.Context) error
	Events() <-chan rfid.Event
	Stop()
}

// Options overrides the collaborators New would otherwise build from config.
type Options struct {
	Spawner   engine.Spawner
	Dialer    session.Dialer
	TagSource TagSource
	// LevelVar is the handler level shared with the logger so the API can
	// change verbosity at runtime.
	LevelVar *slog.LevelVar
	LogPath  string
}

// Daemon coordinates the player services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	levelVar *slog.LevelVar
	store    *settings.Store
	logPath  string

	supervisor *engine.Supervisor
	session    *session.Session
	player     *playback.Orchestrator
	volume     *volume.Controller
	resolver   *figures.Resolver
	tags       TagSource
	mpris      *mpris.Server
	api        *apiServer

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	ctxMu     sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Engine       engine.Status
	Session      bool
	Playback     playback.Status
	Volume       settings.VolumeSettings
	RFIDEnabled  bool
	MPRISActive  bool
	DatabasePath string
	LockFilePath string
	LogPath      string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *settings.Store, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and settings store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	levelVar := opts.LevelVar
	if levelVar == nil {
		levelVar = new(slog.LevelVar)
	}

	supOpts := engine.OptionsFromConfig(cfg, logger)
	supOpts.Spawner = opts.Spawner
	supervisor := engine.New(supOpts)

	dial := opts.Dialer
	if dial == nil {
		dial = dialerFromConfig(cfg, logger)
	}
	sess := session.New(supervisor, dial, logger)
	supervisor.Observe(func(state engine.State) {
		if state != engine.StateReady {
			sess.Reset()
		}
	})

	d := &Daemon{
		cfg:        cfg,
		logger:     logger,
		levelVar:   levelVar,
		store:      store,
		logPath:    opts.LogPath,
		supervisor: supervisor,
		session:    sess,
		player: playback.New(playback.Options{
			Session:      sess,
			Volume:       store,
			WindInterval: cfg.Player.WindInterval(),
			StepTimeout:  cfg.Engine.RPCTimeoutDuration(),
			Logger:       logger,
		}),
		volume: volume.New(volume.Options{
			Settings:      store,
			Session:       sess,
			Interval:      cfg.Volume.Interval,
			ClampToBounds: cfg.Volume.ClampToBounds,
			Logger:        logger,
		}),
		resolver: figures.NewResolver(store, cfg.Player, logger),
		tags:     opts.TagSource,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
		shutdown: make(chan struct{}),
	}
	if d.tags == nil && cfg.RFID.Enabled {
		d.tags = rfid.New(rfid.OptionsFromConfig(cfg.RFID, logger))
	}
	if cfg.MPRIS.Enabled {
		d.mpris = mpris.New(mpris.Options{
			Player:      d,
			Volume:      d.volume,
			CallTimeout: cfg.Engine.RPCTimeoutDuration(),
			Logger:      logger,
		})
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

func dialerFromConfig(cfg *config.Config, logger *slog.Logger) session.Dialer {
	if cfg.Engine.Protocol == config.ProtocolMPD {
		return mpd.Dialer(cfg.Engine.MPDAddress, cfg.Engine.MPDPassword, logger)
	}
	return mopidy.Dialer(cfg.Engine.WebSocketURL, mopidy.Options{
		CallTimeout: cfg.Engine.RPCTimeoutDuration(),
		Logger:      logger,
	})
}

// Start acquires the daemon lock, starts the API server, the tag reader and
// MPRIS, and launches the engine in the background when autostart is set.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another figurespeaker daemon instance is already running")
	}

	d.ctxMu.Lock()
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.ctxMu.Unlock()
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctxMu.Lock()
		d.ctx = nil
		d.ctxMu.Unlock()
		d.cancel = nil
		return fmt.Errorf("start api server: %w", err)
	}

	if d.tags != nil {
		if err := d.tags.Start(d.ctx); err != nil {
			logging.WarnWithContext(d.logger, "rfid reader start failed", "rfid_start_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check rfid.device and its permissions"),
				logging.String(logging.FieldImpact, "figures are ignored until the daemon restarts"),
			)
		} else {
			d.wg.Add(1)
			go d.tagLoop(d.ctx, d.tags.Events())
		}
	}

	if err := d.mpris.Start(d.ctx); err != nil {
		logging.WarnWithContext(d.logger, "mpris start failed", "mpris_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the D-Bus session bus or set mpris.enabled = false"),
			logging.String(logging.FieldImpact, "media keys cannot control playback"),
		)
	}

	if d.cfg.Engine.Autostart {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			startCtx := Trigger(d.ctx, "autostart")
			if err := d.supervisor.Start(startCtx); err != nil && d.ctx.Err() == nil {
				logging.WarnWithContext(d.logger, "engine autostart failed", "engine_autostart_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "run `figurespeaker engine start` after fixing engine.binary or engine.args"),
					logging.String(logging.FieldImpact, "playback is unavailable until the engine starts"),
				)
			}
		}()
	}

	d.running.Store(true)
	d.logger.Info("figurespeaker daemon started",
		logging.String("lock", d.lockPath),
		logging.Bool("rfid", d.tags != nil),
		logging.Bool("mpris", d.mpris.Running()),
		logging.Event("daemon_start"),
	)
	return nil
}

// RequestShutdown asks the process to exit through the shutdown coordinator.
func (d *Daemon) RequestShutdown() {
	d.shutdownOnce.Do(func() {
		d.logger.Info("daemon shutdown requested", logging.Event("daemon_shutdown_requested"))
		close(d.shutdown)
	})
}

// ShutdownRequested is closed once RequestShutdown has been called.
func (d *Daemon) ShutdownRequested() <-chan struct{} {
	return d.shutdown
}

// lifetime returns the context that ends when the daemon stops, or nil
// before Start.
func (d *Daemon) lifetime() context.Context {
	d.ctxMu.Lock()
	defer d.ctxMu.Unlock()
	return d.ctx
}

// Engine exposes the supervisor to the shutdown coordinator.
func (d *Daemon) Engine() *engine.Supervisor {
	return d.supervisor
}

// TagReader exposes the tag source to the shutdown coordinator. It is nil
// when RFID is disabled.
func (d *Daemon) TagReader() TagSource {
	return d.tags
}

// Stop tears down every service and releases the daemon lock. The engine is
// stopped if it is still running.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.tags != nil {
		d.tags.Stop()
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), d.cfg.Engine.StopTimeoutDuration()+5*time.Second)
	if err := d.supervisor.Stop(stopCtx); err != nil {
		logging.WarnWithContext(d.logger, "engine stop failed", "engine_stop_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for a leftover engine process"),
		)
	}
	cancel()
	d.mpris.Stop()
	d.api.stop()
	d.wg.Wait()
	d.session.Reset()

	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if the next start fails"),
		)
	}
	d.ctxMu.Lock()
	d.ctx = nil
	d.ctxMu.Unlock()
	d.running.Store(false)
	d.logger.Info("figurespeaker daemon stopped", logging.Event("daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.Stop()
		if d.store != nil {
			err = d.store.Close()
		}
	})
	return err
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddress returns the bound API address, or "" when the API is disabled.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// SetLogLevel changes the runtime log level.
func (d *Daemon) SetLogLevel(level string) (slog.Level, error) {
	if level == "" {
		return 0, validationError("loglevel", "level is required")
	}
	parsed, err := logging.ParseLevel(level)
	if err != nil {
		return 0, validationError("loglevel", err.Error())
	}
	d.levelVar.Set(parsed)
	d.logger.Info("log level changed",
		logging.String("level", parsed.String()),
		logging.Event("log_level_changed"),
	)
	return parsed, nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Engine:       d.supervisor.Status(),
		Session:      d.session.Available(),
		RFIDEnabled:  d.tags != nil,
		MPRISActive:  d.mpris.Running(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
	}
	if playbackStatus, err := d.player.Status(ctx); err == nil {
		status.Playback = playbackStatus
	} else {
		status.Playback = playback.Status{NowPlaying: d.player.NowPlaying()}
		d.logger.Debug("playback status unavailable", logging.Error(err))
	}
	if vol, err := d.store.VolumeSettings(ctx); err == nil {
		status.Volume = vol
	}
	return status
}
