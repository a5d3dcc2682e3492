package engine_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"figurespeaker/internal/engine"
	"figurespeaker/internal/services"
)

const readyLine = "INFO     2026-01-01 12:00:00,000 [1:MainThread] mopidy.http.actor\n  HTTP server running at [::]:6680"

type fakeProcess struct {
	pid        int
	outR       *io.PipeReader
	outW       *io.PipeWriter
	done       chan struct{}
	exitOnce   sync.Once
	exitErr    error
	signalErr  error
	exitOnTerm bool

	mu      sync.Mutex
	signals []os.Signal
}

func newFakeProcess(pid int) *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{pid: pid, outR: r, outW: w, done: make(chan struct{}), exitOnTerm: true}
}

func (p *fakeProcess) Output() io.Reader { return p.outR }
func (p *fakeProcess) PID() int          { return p.pid }

func (p *fakeProcess) Signal(sig os.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	p.mu.Unlock()
	if p.signalErr != nil {
		return p.signalErr
	}
	if sig == os.Kill || (sig == syscall.SIGTERM && p.exitOnTerm) {
		p.exit(nil)
	}
	return nil
}

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) ExitErr() error {
	select {
	case <-p.done:
		return p.exitErr
	default:
		return nil
	}
}

func (p *fakeProcess) emit(line string) {
	_, _ = fmt.Fprintln(p.outW, line)
}

func (p *fakeProcess) exit(err error) {
	p.exitOnce.Do(func() {
		p.exitErr = err
		_ = p.outW.Close()
		close(p.done)
	})
}

func (p *fakeProcess) receivedSignals() []os.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]os.Signal(nil), p.signals...)
}

type fakeSpawner struct {
	mu       sync.Mutex
	procs    []*fakeProcess
	spawnErr error
	setup    func(*fakeProcess)
	behave   func(*fakeProcess)
}

func (s *fakeSpawner) Spawn(binary string, args []string) (engine.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spawnErr != nil {
		return nil, s.spawnErr
	}
	proc := newFakeProcess(1000 + len(s.procs))
	if s.setup != nil {
		s.setup(proc)
	}
	s.procs = append(s.procs, proc)
	if s.behave != nil {
		go s.behave(proc)
	}
	return proc, nil
}

func (s *fakeSpawner) spawned() []*fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeProcess(nil), s.procs...)
}

func becomesReady(p *fakeProcess) {
	p.emit("INFO Starting Mopidy 3.4.2")
	p.emit(readyLine)
}

func newSupervisor(spawner *fakeSpawner, readyTimeout, stopTimeout time.Duration) *engine.Supervisor {
	return engine.New(engine.Options{
		Binary:       "mopidy",
		Args:         []string{"--config", "/etc/mopidy.conf"},
		ReadyMarker:  "HTTP server running",
		ReadyTimeout: readyTimeout,
		StopTimeout:  stopTimeout,
		Spawner:      spawner,
	})
}

func TestStartWaitsForReadinessMarker(t *testing.T) {
	spawner := &fakeSpawner{behave: becomesReady}
	sup := newSupervisor(spawner, time.Second, time.Second)

	if sup.Ready() {
		t.Fatal("expected supervisor to start not ready")
	}
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !sup.Ready() {
		t.Fatal("expected ready after marker")
	}
	status := sup.Status()
	if status.State != engine.StateReady || status.PID != 1000 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if err := sup.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStartRejectsSecondInstance(t *testing.T) {
	spawner := &fakeSpawner{behave: becomesReady}
	sup := newSupervisor(spawner, time.Second, time.Second)

	const callers = 5
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- sup.Start(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, services.ErrConflict) && errors.Is(err, engine.ErrAlreadyRunning):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != callers-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d/%d", callers-1, ok, conflicts)
	}
	if got := len(spawner.spawned()); got != 1 {
		t.Fatalf("expected one spawn, got %d", got)
	}
	_ = sup.Stop(context.Background())
}

func TestStopWithoutProcessIsNoop(t *testing.T) {
	spawner := &fakeSpawner{}
	sup := newSupervisor(spawner, time.Second, time.Second)
	if err := sup.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := len(spawner.spawned()); got != 0 {
		t.Fatalf("expected no processes, got %d", got)
	}
}

func TestStopTerminatesAndReleasesSlot(t *testing.T) {
	spawner := &fakeSpawner{behave: becomesReady}
	sup := newSupervisor(spawner, time.Second, time.Second)
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sup.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	first := spawner.spawned()[0]
	if sigs := first.receivedSignals(); len(sigs) != 1 || sigs[0] != syscall.SIGTERM {
		t.Fatalf("expected a single SIGTERM, got %v", sigs)
	}
	if sup.Ready() || sup.Status().State != engine.StateStopped {
		t.Fatalf("expected stopped status, got %+v", sup.Status())
	}
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if got := len(spawner.spawned()); got != 2 {
		t.Fatalf("expected two spawns, got %d", got)
	}
	_ = sup.Stop(context.Background())
}

func TestStopEscalatesToKill(t *testing.T) {
	spawner := &fakeSpawner{
		behave: becomesReady,
		setup:  func(p *fakeProcess) { p.exitOnTerm = false },
	}
	sup := newSupervisor(spawner, time.Second, 20*time.Millisecond)
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sup.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	sigs := spawner.spawned()[0].receivedSignals()
	if len(sigs) != 2 || sigs[0] != syscall.SIGTERM || sigs[1] != os.Kill {
		t.Fatalf("expected SIGTERM then SIGKILL, got %v", sigs)
	}
}

func TestRestartReplacesProcess(t *testing.T) {
	spawner := &fakeSpawner{behave: becomesReady}
	sup := newSupervisor(spawner, time.Second, time.Second)
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sup.Restart(context.Background()); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	procs := spawner.spawned()
	if len(procs) != 2 {
		t.Fatalf("expected two spawns, got %d", len(procs))
	}
	select {
	case <-procs[0].Done():
	default:
		t.Fatal("expected first process to have exited before restart")
	}
	if sup.Status().PID != procs[1].PID() {
		t.Fatalf("expected status to track the new process")
	}
	_ = sup.Stop(context.Background())
}

func TestRestartDoesNotStartWhenStopFails(t *testing.T) {
	spawner := &fakeSpawner{
		behave: becomesReady,
		setup:  func(p *fakeProcess) { p.signalErr = errors.New("operation not permitted") },
	}
	sup := newSupervisor(spawner, time.Second, time.Second)
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sup.Restart(context.Background()); err == nil {
		t.Fatal("expected restart to fail")
	}
	if got := len(spawner.spawned()); got != 1 {
		t.Fatalf("expected no second spawn, got %d", got)
	}
	spawner.spawned()[0].exit(nil)
}

func TestStartFailsWhenProcessExitsBeforeReady(t *testing.T) {
	exitErr := errors.New("exit status 1")
	spawner := &fakeSpawner{behave: func(p *fakeProcess) {
		p.emit("ERROR Port 6680 already in use")
		p.exit(exitErr)
	}}
	sup := newSupervisor(spawner, time.Second, time.Second)
	err := sup.Start(context.Background())
	if !errors.Is(err, engine.ErrExited) || !errors.Is(err, exitErr) {
		t.Fatalf("expected ErrExited wrapping exit status, got %v", err)
	}
	if sup.Status().State != engine.StateStopped {
		t.Fatalf("expected slot released, got %+v", sup.Status())
	}
}

func TestStartTimesOutWithoutMarker(t *testing.T) {
	spawner := &fakeSpawner{behave: func(p *fakeProcess) { p.emit("INFO still loading extensions") }}
	sup := newSupervisor(spawner, 30*time.Millisecond, time.Second)
	err := sup.Start(context.Background())
	if !errors.Is(err, engine.ErrReadyTimeout) {
		t.Fatalf("expected ErrReadyTimeout, got %v", err)
	}
	proc := spawner.spawned()[0]
	select {
	case <-proc.Done():
	case <-time.After(time.Second):
		t.Fatal("expected timed out process to be terminated")
	}
	if sigs := proc.receivedSignals(); len(sigs) == 0 || sigs[0] != syscall.SIGTERM {
		t.Fatalf("expected SIGTERM, got %v", sigs)
	}
}

func TestSpawnFailureLeavesSlotEmpty(t *testing.T) {
	spawner := &fakeSpawner{spawnErr: errors.New("executable file not found")}
	sup := newSupervisor(spawner, time.Second, time.Second)
	if err := sup.Start(context.Background()); err == nil {
		t.Fatal("expected spawn failure")
	}
	spawner.mu.Lock()
	spawner.spawnErr = nil
	spawner.behave = becomesReady
	spawner.mu.Unlock()
	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start after spawn failure: %v", err)
	}
	_ = sup.Stop(context.Background())
}

func TestUnexpectedExitNotifiesObservers(t *testing.T) {
	spawner := &fakeSpawner{behave: becomesReady}
	sup := newSupervisor(spawner, time.Second, time.Second)

	states := make(chan engine.State, 8)
	sup.Observe(func(s engine.State) { states <- s })

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	spawner.spawned()[0].exit(errors.New("signal: segmentation fault"))

	deadline := time.After(time.Second)
	var seen []engine.State
	for {
		select {
		case s := <-states:
			seen = append(seen, s)
			if s == engine.StateStopped {
				if seen[0] != engine.StateStarting {
					t.Fatalf("expected starting first, got %v", seen)
				}
				if sup.Ready() {
					t.Fatal("expected not ready after exit")
				}
				return
			}
		case <-deadline:
			t.Fatalf("no stopped notification, saw %v", seen)
		}
	}
}
