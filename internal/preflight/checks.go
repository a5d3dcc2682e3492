package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sys/unix"

	"figurespeaker/internal/config"
	"figurespeaker/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDeviceAccess verifies that a reader device or FIFO exists and is
// readable by the current user.
func CheckDeviceAccess(name, path string) Result {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{Name: name, Detail: "device not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (not connected)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v; add the user to the dialout group)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s, readable)", path, deviceKind(info.Mode()))}
}

func deviceKind(mode os.FileMode) string {
	switch {
	case mode&os.ModeCharDevice != 0:
		return "character device"
	case mode&os.ModeNamedPipe != 0:
		return "fifo"
	default:
		return "file"
	}
}

// CheckEngineBinary verifies that the playback engine can be launched.
func CheckEngineBinary(binary string) Result {
	const name = "Engine binary"
	path, err := deps.ResolveBinary(binary)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckSessionBus verifies that a D-Bus session bus address is available for
// MPRIS.
func CheckSessionBus() Result {
	const name = "D-Bus session bus"
	if strings.TrimSpace(os.Getenv("DBUS_SESSION_BUS_ADDRESS")) == "" {
		return Result{Name: name, Detail: "DBUS_SESSION_BUS_ADDRESS is not set"}
	}
	return Result{Name: name, Passed: true, Detail: "Available"}
}

// CheckEngineEndpoint verifies that the engine's control endpoint accepts
// connections. The websocket endpoint is dialled with a full handshake; MPD
// addresses only need to accept a connection.
func CheckEngineEndpoint(ctx context.Context, engine config.Engine) Result {
	const name = "Engine endpoint"

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if engine.Protocol == config.ProtocolMPD {
		address := strings.TrimSpace(engine.MPDAddress)
		if address == "" {
			return Result{Name: name, Detail: "mpd_address not configured"}
		}
		network := "tcp"
		if strings.HasPrefix(address, "/") {
			network = "unix"
		}
		var dialer net.Dialer
		conn, err := dialer.DialContext(checkCtx, network, address)
		if err != nil {
			return Result{Name: name, Detail: summarizeDialError(address, err)}
		}
		_ = conn.Close()
		return Result{Name: name, Passed: true, Detail: address + " (reachable)"}
	}

	url := strings.TrimSpace(engine.WebSocketURL)
	if url == "" {
		return Result{Name: name, Detail: "websocket_url not configured"}
	}
	conn, _, err := websocket.Dial(checkCtx, url, nil)
	if err != nil {
		return Result{Name: name, Detail: summarizeDialError(url, err)}
	}
	_ = conn.Close(websocket.StatusNormalClosure, "preflight")
	return Result{Name: name, Passed: true, Detail: url + " (reachable)"}
}

// CheckSystemDeps evaluates the external programs required by the config.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "Playback engine",
			Command:     cfg.Engine.Binary,
			Description: "Required for audio playback",
		},
	}
	if cfg.MPRIS.Enabled {
		requirements = append(requirements, deps.Requirement{
			Name:        "dbus-daemon",
			Command:     "dbus-daemon",
			Description: "Provides the session bus for MPRIS control",
			Optional:    true,
		})
	}
	return deps.CheckBinaries(requirements)
}

func summarizeDialError(target string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return target + " (timed out)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return target + " (timed out)"
	}
	if errors.Is(err, unix.ECONNREFUSED) {
		return target + " (connection refused; is the engine running?)"
	}
	return fmt.Sprintf("%s (%v)", target, err)
}
