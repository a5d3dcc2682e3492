package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateVolume(); err != nil {
		return err
	}
	if err := c.validatePlayer(); err != nil {
		return err
	}
	if err := c.validateRFID(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind: %w", err)
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.ReadyTimeout < 0 {
		return errors.New("engine.ready_timeout must be >= 0")
	}
	if c.Engine.StopTimeout < 0 {
		return errors.New("engine.stop_timeout must be >= 0")
	}
	if c.Engine.RPCTimeout < 0 {
		return errors.New("engine.rpc_timeout must be >= 0")
	}
	switch c.Engine.Protocol {
	case ProtocolJSONRPC:
		parsed, err := url.Parse(c.Engine.WebSocketURL)
		if err != nil {
			return fmt.Errorf("engine.websocket_url: %w", err)
		}
		if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
			return fmt.Errorf("engine.websocket_url: unsupported scheme %q (want ws or wss)", parsed.Scheme)
		}
	case ProtocolMPD:
		if strings.HasPrefix(c.Engine.MPDAddress, "/") {
			return nil
		}
		if _, _, err := net.SplitHostPort(c.Engine.MPDAddress); err != nil {
			return fmt.Errorf("engine.mpd_address: %w", err)
		}
	default:
		return fmt.Errorf("engine.protocol: unsupported value %q (want %s or %s)", c.Engine.Protocol, ProtocolJSONRPC, ProtocolMPD)
	}
	return nil
}

func (c *Config) validateVolume() error {
	for _, field := range []struct {
		name  string
		value int
	}{
		{"volume.min", c.Volume.Min},
		{"volume.max", c.Volume.Max},
		{"volume.current", c.Volume.Current},
	} {
		if field.value < 0 || field.value > 100 {
			return fmt.Errorf("%s must be between 0 and 100", field.name)
		}
	}
	if c.Volume.Min > c.Volume.Max {
		return errors.New("volume.min must not exceed volume.max")
	}
	if c.Volume.Current < c.Volume.Min || c.Volume.Current > c.Volume.Max {
		return errors.New("volume.current must lie within volume.min and volume.max")
	}
	if c.Volume.Interval <= 0 {
		return errors.New("volume.interval must be positive")
	}
	return nil
}

func (c *Config) validatePlayer() error {
	switch c.Player.DefaultPlayMode {
	case PlayModeResume, PlayModeReset:
	default:
		return fmt.Errorf("player.default_play_mode: unsupported value %q (want %s or %s)", c.Player.DefaultPlayMode, PlayModeResume, PlayModeReset)
	}
	if c.Player.ResetAfterDays < 0 {
		return errors.New("player.reset_after_days must be >= 0")
	}
	if c.Player.WindIntervalMS <= 0 {
		return errors.New("player.wind_interval_ms must be positive")
	}
	return nil
}

func (c *Config) validateRFID() error {
	if c.RFID.Enabled && c.RFID.Device == "" {
		return errors.New("rfid.device must be set when rfid.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}
