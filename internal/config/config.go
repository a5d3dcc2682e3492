package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

const appName = "figurespeaker"

// Paths contains directory and bind address configuration.
type Paths struct {
	LogDir   string `toml:"log_dir"`
	DataDir  string `toml:"data_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Engine contains configuration for the supervised audio engine process and
// the protocol used to control it once it reports readiness.
type Engine struct {
	Binary       string   `toml:"binary"`
	Args         []string `toml:"args"`
	ReadyMarker  string   `toml:"ready_marker"`
	ReadyTimeout int      `toml:"ready_timeout"`
	StopTimeout  int      `toml:"stop_timeout"`
	RPCTimeout   int      `toml:"rpc_timeout"`
	Autostart    bool     `toml:"autostart"`
	Protocol     string   `toml:"protocol"`
	WebSocketURL string   `toml:"websocket_url"`
	MPDAddress   string   `toml:"mpd_address"`
	MPDPassword  string   `toml:"mpd_password"`
}

// Volume seeds the persisted volume settings and sets the button step size.
type Volume struct {
	Min           int  `toml:"min"`
	Max           int  `toml:"max"`
	Current       int  `toml:"current"`
	Interval      int  `toml:"interval"`
	ClampToBounds bool `toml:"clamp_to_bounds"`
}

// Player contains figure playback behavior.
type Player struct {
	DefaultPlayMode string `toml:"default_play_mode"`
	ResetAfterDays  int    `toml:"reset_after_days"`
	WindIntervalMS  int    `toml:"wind_interval_ms"`
}

// RFID contains configuration for the tag reader bridge.
type RFID struct {
	Enabled       bool   `toml:"enabled"`
	Device        string `toml:"device"`
	Subsystem     string `toml:"subsystem"`
	RemovedMarker string `toml:"removed_marker"`
	RetryInterval int    `toml:"retry_interval"`
}

// MPRIS toggles the D-Bus media player interface.
type MPRIS struct {
	Enabled bool `toml:"enabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for figurespeaker.
//
// Configuration sections by subsystem:
//   - Paths: directories and API bind address
//   - Engine: engine process supervision and control protocol
//   - Volume: volume bounds seed values and step interval
//   - Player: resume/reset behavior and wind step
//   - RFID: tag reader device
//   - MPRIS: D-Bus media player interface
//   - Logging: log format, level, and retention
type Config struct {
	Paths   Paths   `toml:"paths"`
	Engine  Engine  `toml:"engine"`
	Volume  Volume  `toml:"volume"`
	Player  Player  `toml:"player"`
	RFID    RFID    `toml:"rfid"`
	MPRIS   MPRIS   `toml:"mpris"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(filepath.Join(xdg.ConfigHome, appName, "config.toml"))
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(appName + ".toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite settings database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "settings.db")
}

// SocketPath returns the daemon IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, appName+".sock")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, appName+".lock")
}

// PIDPath returns the daemon PID file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, appName+".pid")
}

// CurrentLogPath is the pointer to the newest run log.
func (c *Config) CurrentLogPath() string {
	return filepath.Join(c.Paths.LogDir, appName+".log")
}

// ReadyTimeoutDuration bounds how long engine startup may wait for the readiness marker.
// Zero means wait until the process exits or the caller gives up.
func (e Engine) ReadyTimeoutDuration() time.Duration {
	return time.Duration(e.ReadyTimeout) * time.Second
}

// StopTimeoutDuration bounds the graceful stop before the engine is killed.
func (e Engine) StopTimeoutDuration() time.Duration {
	return time.Duration(e.StopTimeout) * time.Second
}

// RPCTimeoutDuration bounds a single control protocol round-trip.
func (e Engine) RPCTimeoutDuration() time.Duration {
	return time.Duration(e.RPCTimeout) * time.Second
}

// WindInterval returns the seek step applied per wind button press.
func (p Player) WindInterval() time.Duration {
	return time.Duration(p.WindIntervalMS) * time.Millisecond
}

// ResetAfter returns the idle period after which a resumable figure restarts from zero.
func (p Player) ResetAfter() time.Duration {
	return time.Duration(p.ResetAfterDays) * 24 * time.Hour
}

// RetryIntervalDuration returns the delay between reader reopen attempts.
func (r RFID) RetryIntervalDuration() time.Duration {
	return time.Duration(r.RetryInterval) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
