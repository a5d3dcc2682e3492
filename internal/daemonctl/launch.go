package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"figurespeaker/internal/ipc"
)

// pollInterval is how often the socket is probed while waiting on the daemon.
const pollInterval = 200 * time.Millisecond

// ErrDaemonNotRunning indicates nothing answers on the control socket.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions are forwarded to the hidden daemon command.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

func (o LaunchOptions) args() []string {
	args := []string{"daemon"}
	if path := strings.TrimSpace(o.ConfigPath); path != "" {
		args = append(args, "--config", path)
	}
	if level := strings.TrimSpace(o.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}
	return args
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult reports what EnsureStarted did.
type StartResult struct {
	State    StartState
	Launched bool
	PID      int
}

// Launch starts executablePath as a detached daemon in its own session, so
// it survives the terminal that ran `figurespeaker start`.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return errors.New("launch daemon: executable path is empty")
	}
	proc := exec.Command(executablePath, opts.args()...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// poll calls probe every pollInterval until it reports done, returns an
// error, or timeout elapses.
func poll(timeout time.Duration, probe func() (bool, error)) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		done, err := probe()
		if done || err != nil {
			return done, err
		}
		if time.Now().Add(pollInterval).After(deadline) {
			return false, nil
		}
		time.Sleep(pollInterval)
	}
}

// WaitForClient returns a connected client once the socket accepts.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	var (
		client  *ipc.Client
		lastErr error
	)
	ok, _ := poll(timeout, func() (bool, error) {
		client, lastErr = ipc.Dial(socketPath)
		return lastErr == nil, nil
	})
	if ok {
		return client, nil
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless it already answers on the socket.
// The daemon brings up the engine itself, so a reachable socket means running.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	result := StartResult{State: StartStateAlreadyRunning}
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if err := Launch(executablePath, opts); err != nil {
			return StartResult{}, err
		}
		if client, err = WaitForClient(socketPath, waitTimeout); err != nil {
			return StartResult{}, err
		}
		result = StartResult{State: StartStateStarted, Launched: true}
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		return StartResult{}, fmt.Errorf("query daemon status: %w", err)
	}
	result.PID = status.PID
	return result, nil
}

// ProcessInfo reports whether the daemon answers and, if so, its PID.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	switch {
	case err != nil && isDaemonUnavailable(err):
		return false, 0, nil
	case err != nil:
		return false, 0, err
	}
	defer client.Close()
	status, err := client.Status()
	if err != nil {
		return true, 0, err
	}
	return true, status.PID, nil
}

func isDaemonUnavailable(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, unix.ENOENT) ||
		errors.Is(err, unix.ECONNREFUSED)
}
