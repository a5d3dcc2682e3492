package config

import (
	"fmt"
	"net"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeEngine(); err != nil {
		return err
	}
	c.normalizePlayer()
	if err := c.normalizeRFID(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir()
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir()
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		port := defaultAPIPort
		if value, ok := os.LookupEnv("PORT"); ok && strings.TrimSpace(value) != "" {
			port = strings.TrimSpace(value)
		}
		c.Paths.APIBind = net.JoinHostPort(defaultAPIHost, port)
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeEngine() error {
	c.Engine.Binary = strings.TrimSpace(c.Engine.Binary)
	if c.Engine.Binary == "" {
		c.Engine.Binary = defaultEngineBinary
	}
	for i, arg := range c.Engine.Args {
		if strings.HasPrefix(arg, "~") {
			expanded, err := expandPath(arg)
			if err != nil {
				return fmt.Errorf("engine.args[%d]: %w", i, err)
			}
			c.Engine.Args[i] = expanded
		}
	}
	if strings.TrimSpace(c.Engine.ReadyMarker) == "" {
		c.Engine.ReadyMarker = defaultReadyMarker
	}
	c.Engine.Protocol = strings.ToLower(strings.TrimSpace(c.Engine.Protocol))
	if c.Engine.Protocol == "" {
		c.Engine.Protocol = ProtocolJSONRPC
	}
	c.Engine.WebSocketURL = strings.TrimSpace(c.Engine.WebSocketURL)
	if c.Engine.WebSocketURL == "" {
		if value, ok := os.LookupEnv("MOPIDY_WEB_SOCKET_URL"); ok && strings.TrimSpace(value) != "" {
			c.Engine.WebSocketURL = strings.TrimSpace(value)
		} else {
			c.Engine.WebSocketURL = defaultWebSocketURL
		}
	}
	c.Engine.MPDAddress = strings.TrimSpace(c.Engine.MPDAddress)
	if c.Engine.MPDAddress == "" {
		c.Engine.MPDAddress = defaultMPDAddress
	}
	return nil
}

func (c *Config) normalizePlayer() {
	c.Player.DefaultPlayMode = strings.ToUpper(strings.TrimSpace(c.Player.DefaultPlayMode))
	if c.Player.DefaultPlayMode == "" {
		c.Player.DefaultPlayMode = PlayModeResume
	}
}

func (c *Config) normalizeRFID() error {
	c.RFID.Device = strings.TrimSpace(c.RFID.Device)
	if c.RFID.Device != "" {
		expanded, err := expandPath(c.RFID.Device)
		if err != nil {
			return fmt.Errorf("rfid.device: %w", err)
		}
		c.RFID.Device = expanded
	}
	c.RFID.Subsystem = strings.TrimSpace(c.RFID.Subsystem)
	if c.RFID.Subsystem == "" {
		c.RFID.Subsystem = defaultRFIDSubsystem
	}
	if c.RFID.RetryInterval <= 0 {
		c.RFID.RetryInterval = defaultRFIDRetrySeconds
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
