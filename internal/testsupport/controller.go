package testsupport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"figurespeaker/internal/session"
)

// RecordingController is a session.Controller that records every call in
// order and can be told to fail specific operations.
type RecordingController struct {
	mu       sync.Mutex
	calls    []string
	failures map[string]error
	items    map[string]session.Item
	position time.Duration
	state    session.PlaybackState
	volume   int
	healthy  bool
	closed   int
}

// NewRecordingController returns a healthy controller in the stopped state.
func NewRecordingController() *RecordingController {
	return &RecordingController{
		failures: make(map[string]error),
		items:    make(map[string]session.Item),
		state:    session.StateStopped,
		healthy:  true,
	}
}

// FailOn makes the named operation (for example "clear" or "play") return err.
func (c *RecordingController) FailOn(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op] = err
}

// SetItem registers the item returned by Lookup for uri.
func (c *RecordingController) SetItem(uri string, item session.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[uri] = item
}

// SetPosition sets the value reported by Position.
func (c *RecordingController) SetPosition(position time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = position
}

// SetState sets the value reported by State.
func (c *RecordingController) SetState(state session.PlaybackState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// SetHealthy toggles the value reported by Healthy.
func (c *RecordingController) SetHealthy(healthy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy = healthy
}

// Calls returns the recorded operations in order.
func (c *RecordingController) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// CallString joins the recorded operations for compact assertions.
func (c *RecordingController) CallString() string {
	return strings.Join(c.Calls(), " ")
}

// Volume returns the last volume applied through SetVolume.
func (c *RecordingController) Volume() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// Closed reports how many times Close was called.
func (c *RecordingController) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *RecordingController) record(op, call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	return c.failures[op]
}

func (c *RecordingController) ClearQueue(context.Context) error {
	return c.record("clear", "clear")
}

func (c *RecordingController) Lookup(_ context.Context, uri string) (session.Item, error) {
	if err := c.record("lookup", fmt.Sprintf("lookup(%s)", uri)); err != nil {
		return session.Item{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if item, ok := c.items[uri]; ok {
		return item, nil
	}
	return session.Item{URI: uri, TrackURIs: []string{uri}}, nil
}

func (c *RecordingController) Enqueue(_ context.Context, item session.Item) error {
	return c.record("add", fmt.Sprintf("add(%s)", item.URI))
}

func (c *RecordingController) SetVolume(_ context.Context, volume int) error {
	if err := c.record("setVolume", fmt.Sprintf("setVolume(%d)", volume)); err != nil {
		return err
	}
	c.mu.Lock()
	c.volume = volume
	c.mu.Unlock()
	return nil
}

func (c *RecordingController) Play(context.Context) error {
	if err := c.record("play", "play"); err != nil {
		return err
	}
	c.SetState(session.StatePlaying)
	return nil
}

func (c *RecordingController) Seek(_ context.Context, position time.Duration) error {
	if err := c.record("seek", fmt.Sprintf("seek(%s)", position)); err != nil {
		return err
	}
	c.SetPosition(position)
	return nil
}

func (c *RecordingController) Pause(context.Context) error {
	if err := c.record("pause", "pause"); err != nil {
		return err
	}
	c.SetState(session.StatePaused)
	return nil
}

func (c *RecordingController) Resume(context.Context) error {
	if err := c.record("resume", "resume"); err != nil {
		return err
	}
	c.SetState(session.StatePlaying)
	return nil
}

func (c *RecordingController) Stop(context.Context) error {
	if err := c.record("stop", "stop"); err != nil {
		return err
	}
	c.SetState(session.StateStopped)
	return nil
}

func (c *RecordingController) Position(context.Context) (time.Duration, error) {
	if err := c.record("position", "position"); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position, nil
}

func (c *RecordingController) State(context.Context) (session.PlaybackState, error) {
	if err := c.record("state", "state"); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, nil
}

func (c *RecordingController) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthy
}

func (c *RecordingController) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

// StaticReadiness is a settable session.Readiness.
type StaticReadiness struct {
	mu    sync.Mutex
	ready bool
}

// NewReadiness returns a readiness source with the given initial value.
func NewReadiness(ready bool) *StaticReadiness {
	return &StaticReadiness{ready: ready}
}

func (r *StaticReadiness) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// Set changes the reported readiness.
func (r *StaticReadiness) Set(ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = ready
}

// NewSession builds a session that always dials ctrl while ready is true.
func NewSession(ready *StaticReadiness, ctrl session.Controller) *session.Session {
	return session.New(ready, func(context.Context) (session.Controller, error) {
		return ctrl, nil
	}, nil)
}
