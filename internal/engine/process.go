package engine

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Process is a running engine process as seen by the supervisor.
type Process interface {
	// Output streams the combined stdout and stderr of the process. It reaches
	// EOF once the process has exited.
	Output() io.Reader
	PID() int
	Signal(sig os.Signal) error
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// ExitErr reports the exit status after Done is closed.
	ExitErr() error
}

// Spawner launches engine processes. It abstracts os/exec for testability.
type Spawner interface {
	Spawn(binary string, args []string) (Process, error)
}

// ExecSpawner launches real OS processes.
type ExecSpawner struct {
	// WaitDelay bounds how long output copying may outlive the process.
	WaitDelay time.Duration
}

func (s ExecSpawner) Spawn(binary string, args []string) (Process, error) {
	cmd := exec.Command(binary, args...) //nolint:gosec
	reader, writer := io.Pipe()
	cmd.Stdout = writer
	cmd.Stderr = writer
	// Own process group so terminal signals reach the daemon, not the engine.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = s.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 2 * time.Second
	}
	if err := cmd.Start(); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}

	proc := &execProcess{
		cmd:    cmd,
		output: reader,
		done:   make(chan struct{}),
	}
	go func() {
		proc.exitErr = cmd.Wait()
		_ = writer.Close()
		close(proc.done)
	}()
	return proc, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	output  io.Reader
	done    chan struct{}
	exitErr error
}

func (p *execProcess) Output() io.Reader { return p.output }

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) ExitErr() error {
	select {
	case <-p.done:
		return p.exitErr
	default:
		return nil
	}
}
