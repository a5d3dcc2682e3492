package rfid

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"figurespeaker/internal/logging"
)

// hotplugMonitor listens for udev add events on the reader's subsystem and
// wakes the reader when the configured device node reappears.
type hotplugMonitor struct {
	device    string
	subsystem string
	logger    *slog.Logger
	onAdd     func()

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

func newHotplugMonitor(device, subsystem string, logger *slog.Logger, onAdd func()) *hotplugMonitor {
	device = strings.TrimSpace(device)
	subsystem = strings.TrimSpace(subsystem)
	if device == "" || subsystem == "" {
		return nil
	}
	return &hotplugMonitor{
		device:    device,
		subsystem: subsystem,
		logger:    logger,
		onAdd:     onAdd,
	}
}

// Start connects to the kernel uevent socket. Failure leaves the reader on
// its retry interval.
func (m *hotplugMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return fmt.Errorf("connect netlink: %w", err)
	}
	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true
	go m.monitorLoop(ctx, conn, m.quit)
	return nil
}

// Stop shuts the monitor down.
func (m *hotplugMonitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	_ = m.conn.Close()
	m.conn = nil
	m.running = false
}

// Running reports whether the monitor is active.
func (m *hotplugMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *hotplugMonitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Debug("hotplug monitor error", logging.Error(err))
		}
	}
}

func (m *hotplugMonitor) buildMatcher() netlink.Matcher {
	action := "add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": m.subsystem,
		},
	})
	return rules
}

func (m *hotplugMonitor) handleEvent(uevent netlink.UEvent) {
	devname := deviceName(uevent)
	if devname == "" || !m.matches(devname) {
		return
	}
	m.logger.Info("rfid device attached",
		logging.String("device", devname),
		logging.Event("rfid_hotplug"),
	)
	if m.onAdd != nil {
		m.onAdd()
	}
}

// matches compares against the configured path and its symlink target, so
// /dev/serial/by-id paths work.
func (m *hotplugMonitor) matches(devname string) bool {
	if devname == m.device {
		return true
	}
	if resolved, err := filepath.EvalSymlinks(m.device); err == nil && resolved == devname {
		return true
	}
	return filepath.Base(devname) == filepath.Base(m.device)
}

func deviceName(uevent netlink.UEvent) string {
	devname := uevent.Env["DEVNAME"]
	if devname == "" {
		devpath := uevent.Env["DEVPATH"]
		if devpath == "" {
			return ""
		}
		parts := strings.Split(devpath, "/")
		devname = parts[len(parts)-1]
	}
	if !strings.HasPrefix(devname, "/") {
		devname = "/dev/" + devname
	}
	return devname
}
