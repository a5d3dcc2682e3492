package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

const (
	defaultAPIHost             = "127.0.0.1"
	defaultAPIPort             = "3000"
	defaultEngineBinary        = "mopidy"
	defaultMopidyConfig        = "~/.config/mopidy/mopidy.conf"
	defaultReadyMarker         = "HTTP server running"
	defaultReadyTimeoutSeconds = 60
	defaultStopTimeoutSeconds  = 10
	defaultRPCTimeoutSeconds   = 5
	defaultWebSocketURL        = "ws://localhost:6680/mopidy/ws/"
	defaultMPDAddress          = "localhost:6600"
	defaultMinVolume           = 5
	defaultMaxVolume           = 100
	defaultCurrentVolume       = 70
	defaultVolumeInterval      = 5
	defaultResetAfterDays      = 7
	defaultWindIntervalMS      = 500
	defaultRFIDDevice          = "/dev/ttyUSB0"
	defaultRFIDSubsystem       = "tty"
	defaultRemovedMarker       = "-"
	defaultRFIDRetrySeconds    = 5
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30

	// ProtocolJSONRPC selects Mopidy's websocket JSON-RPC API.
	ProtocolJSONRPC = "jsonrpc"
	// ProtocolMPD selects the MPD text protocol.
	ProtocolMPD = "mpd"

	// PlayModeResume continues a figure from its saved progress.
	PlayModeResume = "RESUME"
	// PlayModeReset always starts a figure from the beginning.
	PlayModeReset = "RESET"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:  defaultLogDir(),
			DataDir: defaultDataDir(),
		},
		Engine: Engine{
			Binary:       defaultEngineBinary,
			Args:         []string{"--config", defaultMopidyConfig},
			ReadyMarker:  defaultReadyMarker,
			ReadyTimeout: defaultReadyTimeoutSeconds,
			StopTimeout:  defaultStopTimeoutSeconds,
			RPCTimeout:   defaultRPCTimeoutSeconds,
			Autostart:    true,
			Protocol:     ProtocolJSONRPC,
			MPDAddress:   defaultMPDAddress,
		},
		Volume: Volume{
			Min:      defaultMinVolume,
			Max:      defaultMaxVolume,
			Current:  defaultCurrentVolume,
			Interval: defaultVolumeInterval,
		},
		Player: Player{
			DefaultPlayMode: PlayModeResume,
			ResetAfterDays:  defaultResetAfterDays,
			WindIntervalMS:  defaultWindIntervalMS,
		},
		RFID: RFID{
			Enabled:       true,
			Device:        defaultRFIDDevice,
			Subsystem:     defaultRFIDSubsystem,
			RemovedMarker: defaultRemovedMarker,
			RetryInterval: defaultRFIDRetrySeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

func defaultLogDir() string {
	return filepath.Join(xdg.StateHome, appName, "logs")
}

func defaultDataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}
