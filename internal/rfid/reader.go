package rfid

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"figurespeaker/internal/config"
	"figurespeaker/internal/logging"
)

// EventKind distinguishes tag placement from removal.
type EventKind int

const (
	TagPlaced EventKind = iota
	TagRemoved
)

func (k EventKind) String() string {
	if k == TagRemoved {
		return "removed"
	}
	return "placed"
}

// Event is a tag change observed on the reader.
type Event struct {
	Kind EventKind
	Tag  string
	At   time.Time
}

// Opener opens the reader's line stream.
type Opener func() (io.ReadCloser, error)

// Options configures a Reader.
type Options struct {
	Device        string
	Subsystem     string
	RemovedMarker string
	RetryInterval time.Duration
	// Open overrides how the device is opened. Defaults to a non-blocking
	// open of Device.
	Open   Opener
	Logger *slog.Logger
}

// OptionsFromConfig maps the [rfid] configuration section onto reader options.
func OptionsFromConfig(cfg config.RFID, logger *slog.Logger) Options {
	return Options{
		Device:        cfg.Device,
		Subsystem:     cfg.Subsystem,
		RemovedMarker: cfg.RemovedMarker,
		RetryInterval: cfg.RetryIntervalDuration(),
		Logger:        logger,
	}
}

// Reader turns newline-delimited tag identifiers into placement events.
type Reader struct {
	device        string
	removedMarker string
	retry         time.Duration
	open          Opener
	logger        *slog.Logger
	hotplug       *hotplugMonitor

	events chan Event
	wake   chan struct{}

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	current  io.ReadCloser
	done     chan struct{}
	stopOnce sync.Once

	lastTag string
}

// New constructs a reader. Call Start to begin reading.
func New(opts Options) *Reader {
	retry := opts.RetryInterval
	if retry <= 0 {
		retry = 5 * time.Second
	}
	marker := strings.TrimSpace(opts.RemovedMarker)
	if marker == "" {
		marker = "-"
	}
	r := &Reader{
		device:        opts.Device,
		removedMarker: marker,
		retry:         retry,
		open:          opts.Open,
		logger:        logging.NewComponentLogger(opts.Logger, "rfid"),
		events:        make(chan Event, 8),
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	if r.open == nil {
		r.open = r.openDevice
	}
	r.hotplug = newHotplugMonitor(opts.Device, opts.Subsystem, r.logger, r.Wake)
	return r
}

func (r *Reader) openDevice() (io.ReadCloser, error) {
	return os.OpenFile(r.device, os.O_RDONLY|unix.O_NONBLOCK|unix.O_NOCTTY, 0)
}

// Events delivers tag changes. The channel is closed after Stop.
func (r *Reader) Events() <-chan Event {
	return r.events
}

// Start launches the read loop and the hotplug monitor.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	r.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	go r.loop(loopCtx)
	if err := r.hotplug.Start(loopCtx); err != nil {
		r.logger.Debug("hotplug monitor unavailable", logging.Error(err))
	}
	r.logger.Info("rfid reader started",
		logging.String("device", r.device),
		logging.Event("rfid_start"),
	)
	return nil
}

// Stop closes the device and waits for the read loop to exit. It is safe to
// call more than once and before Start.
func (r *Reader) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		started := r.started
		r.started = true
		if started {
			r.cancel()
		}
		current := r.current
		r.mu.Unlock()

		r.hotplug.Stop()
		if !started {
			close(r.events)
			return
		}
		if current != nil {
			_ = current.Close()
		}
		<-r.done
		r.logger.Info("rfid reader stopped",
			logging.Event("rfid_stop"),
		)
	})
}

// Wake asks a reader waiting to reopen the device to try immediately.
func (r *Reader) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// setCurrent records the open stream so Stop can unblock a pending read. A
// stream opened after Stop is closed immediately.
func (r *Reader) setCurrent(ctx context.Context, rc io.ReadCloser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = rc
	if rc != nil && ctx.Err() != nil {
		_ = rc.Close()
	}
}

func (r *Reader) loop(ctx context.Context) {
	defer close(r.done)
	defer close(r.events)

	failures := 0
	for ctx.Err() == nil {
		rc, err := r.open()
		if err != nil {
			failures++
			if failures == 1 {
				logging.WarnWithContext(r.logger, "rfid device unavailable", "rfid_open_failed",
					logging.String("device", r.device),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check the reader is connected and rfid.device is correct"),
					logging.String(logging.FieldImpact, "tag scans are ignored until the device returns"),
				)
			}
			r.pause(ctx)
			continue
		}
		if failures > 0 {
			r.logger.Info("rfid device reconnected",
				logging.String("device", r.device),
				logging.Event("rfid_reconnect"),
			)
		}
		failures = 0

		r.setCurrent(ctx, rc)
		err = r.consume(ctx, rc)
		r.setCurrent(ctx, nil)
		_ = rc.Close()
		if ctx.Err() != nil {
			return
		}
		// lastTag survives the reopen: FIFO writers close after every line,
		// and the removal marker arrives on the next stream.
		r.logger.Info("rfid device stream ended",
			logging.String("device", r.device),
			logging.Event("rfid_disconnect"),
			logging.Error(err),
		)
		r.pause(ctx)
	}
}

func (r *Reader) pause(ctx context.Context) {
	timer := time.NewTimer(r.retry)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-r.wake:
	case <-timer.C:
	}
}

func (r *Reader) consume(ctx context.Context, rc io.Reader) error {
	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		if !r.handleLine(ctx, scanner.Text()) {
			return ctx.Err()
		}
	}
	err := scanner.Err()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// handleLine returns false when the reader is shutting down.
func (r *Reader) handleLine(ctx context.Context, line string) bool {
	tag := strings.TrimSpace(line)
	if tag == "" || tag == r.removedMarker {
		if r.lastTag == "" {
			return true
		}
		removed := r.lastTag
		r.lastTag = ""
		return r.emit(ctx, Event{Kind: TagRemoved, Tag: removed, At: time.Now()})
	}
	if tag == r.lastTag {
		r.logger.Debug("duplicate tag ignored", logging.Tag(tag))
		return true
	}
	if r.lastTag != "" {
		if !r.emit(ctx, Event{Kind: TagRemoved, Tag: r.lastTag, At: time.Now()}) {
			return false
		}
	}
	r.lastTag = tag
	return r.emit(ctx, Event{Kind: TagPlaced, Tag: tag, At: time.Now()})
}

func (r *Reader) emit(ctx context.Context, ev Event) bool {
	r.logger.Debug("tag event",
		logging.Tag(ev.Tag),
		logging.String("kind", ev.Kind.String()),
	)
	select {
	case r.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
