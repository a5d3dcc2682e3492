package testsupport

import (
	"errors"
	"io"
	"os"
	"sync"
	"syscall"

	"figurespeaker/internal/engine"
)

// PipeSpawner is an engine.Spawner whose processes print a readiness line and
// exit when they receive SIGTERM or SIGKILL.
type PipeSpawner struct {
	Marker string
	// Hold, when set, delays the readiness line until it is closed.
	Hold chan struct{}

	mu     sync.Mutex
	spawns int
	procs  []*PipeProcess
}

// NewPipeSpawner returns a spawner whose processes print marker on start.
func NewPipeSpawner(marker string) *PipeSpawner {
	return &PipeSpawner{Marker: marker}
}

// Spawn implements engine.Spawner.
func (s *PipeSpawner) Spawn(string, []string) (engine.Process, error) {
	r, w := io.Pipe()
	proc := &PipeProcess{out: r, w: w, done: make(chan struct{})}

	s.mu.Lock()
	s.spawns++
	proc.pid = 1000 + s.spawns
	s.procs = append(s.procs, proc)
	s.mu.Unlock()

	hold := s.Hold
	go func() {
		_, _ = io.WriteString(w, "INFO starting engine\n")
		if hold != nil {
			select {
			case <-hold:
			case <-proc.done:
				return
			}
		}
		if s.Marker != "" {
			_, _ = io.WriteString(w, "INFO "+s.Marker+" at [::]:6680\n")
		}
	}()
	return proc, nil
}

// Spawns returns how many processes were launched.
func (s *PipeSpawner) Spawns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawns
}

// PipeProcess is a fake engine process backed by an io.Pipe.
type PipeProcess struct {
	pid  int
	out  *io.PipeReader
	w    *io.PipeWriter
	once sync.Once
	done chan struct{}
}

func (p *PipeProcess) Output() io.Reader { return p.out }

func (p *PipeProcess) PID() int { return p.pid }

func (p *PipeProcess) Signal(sig os.Signal) error {
	if sig == syscall.SIGTERM || sig == os.Kill {
		p.exit()
		return nil
	}
	return errors.New("unsupported signal")
}

func (p *PipeProcess) Done() <-chan struct{} { return p.done }

func (p *PipeProcess) ExitErr() error { return nil }

func (p *PipeProcess) exit() {
	p.once.Do(func() {
		_ = p.w.Close()
		close(p.done)
	})
}
