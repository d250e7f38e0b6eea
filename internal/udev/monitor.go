// SPDX-License-Identifier: GPL-3.0-only

// Package udev watches DRM uevents so the backlight follows panel
// (de)initialisation.
package udev

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pilebones/go-udev/crawler"
	"github.com/pilebones/go-udev/netlink"
	"github.com/rs/zerolog/log"
)

const (
	// netlinkBufferSize is the receive buffer size for the netlink socket.
	// Connector probing on modeset emits bursts of change events.
	netlinkBufferSize = 2 * 1024 * 1024 // 2 MB

	// changeDebounceWindow collapses hotplug pulses of one device.
	changeDebounceWindow = 250 * time.Millisecond

	// debounceRetention is how long change timestamps are kept.
	debounceRetention = time.Minute
)

const (
	// Subsystem is the kernel subsystem the monitor listens on.
	Subsystem = "drm"

	// drmMinorType is the DEVTYPE of DRM card nodes.
	drmMinorType = "drm_minor"
)

// anyCard matches the node name of every DRM card; render nodes and
// connectors do not match.
var anyCard = regexp.MustCompile(`^dri/card[0-9]+$`)

// EventType represents the type of panel event.
type EventType int

const (
	// EventAdd indicates the display device appeared.
	EventAdd EventType = iota
	// EventChange indicates a hotplug or mode change on the display device.
	EventChange
	// EventRemove indicates the display device went away.
	EventRemove
)

func (t EventType) String() string {
	switch t {
	case EventAdd:
		return "add"
	case EventChange:
		return "change"
	case EventRemove:
		return "remove"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event represents a display device event.
type Event struct {
	Type EventType
	// Device is the device node name, e.g. "dri/card0".
	Device string
}

// EventHandler is called when a device event occurs.
type EventHandler func(event Event)

// RecoveryHandler is called when the monitor recovers from an error condition
// (e.g., netlink buffer overflow) and needs to trigger a refresh.
type RecoveryHandler func()

// Option configures a Monitor.
type Option func(*Monitor)

// WithCard restricts the monitor to one card, e.g. "card0".
func WithCard(card string) Option {
	return func(m *Monitor) {
		m.card = card
	}
}

// Monitor watches DRM card add/change/remove events.
type Monitor struct {
	conn            *netlink.UEventConn
	handler         EventHandler
	recoveryHandler RecoveryHandler
	card            string
	quit            chan struct{}
	stopped         bool
	lastChange      map[string]time.Time
	now             func() time.Time
	crawl           func(chan crawler.Device, chan error, netlink.Matcher) chan struct{}
	mu              sync.Mutex
}

// NewMonitor creates a new udev monitor with the given event handler.
func NewMonitor(handler EventHandler, opts ...Option) *Monitor {
	m := &Monitor{
		handler:    handler,
		lastChange: make(map[string]time.Time),
		now:        time.Now,
		crawl:      crawler.ExistingDevices,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetRecoveryHandler sets the handler called when the monitor recovers from errors.
// This should trigger a backlight refresh to recover from potentially missed events.
func (m *Monitor) SetRecoveryHandler(handler RecoveryHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveryHandler = handler
}

// Start begins monitoring for device events.
// This method is non-blocking; events are processed in a background goroutine.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return fmt.Errorf("monitor already started")
	}

	m.conn = &netlink.UEventConn{}
	if err := m.conn.Connect(netlink.UdevEvent); err != nil {
		m.conn = nil
		return fmt.Errorf("failed to connect to netlink: %w", err)
	}

	if err := setSocketBufferSize(m.conn.Fd, netlinkBufferSize); err != nil {
		log.Warn().Err(err).Int("size", netlinkBufferSize).Msg("Failed to set netlink buffer size")
		// Continue anyway - the default buffer may still work for most cases
	} else {
		log.Debug().Int("size", netlinkBufferSize).Msg("Netlink socket buffer size configured")
	}

	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.quit = m.conn.Monitor(queue, errs, m.createMatcher())
	m.stopped = false

	go m.processEvents(queue, errs)

	log.Info().Str("subsystem", Subsystem).Str("card", m.card).Msg("udev monitor started")
	return nil
}

// Stop stops the monitor and releases resources.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.stopped {
		return nil
	}

	m.stopped = true

	// Signal the monitor goroutine to stop
	select {
	case m.quit <- struct{}{}:
	default:
	}

	if err := m.conn.Close(); err != nil {
		return fmt.Errorf("failed to close netlink connection: %w", err)
	}

	m.conn = nil
	log.Info().Msg("udev monitor stopped")
	return nil
}

// isCardNode reports whether the device node name belongs to the monitored
// card, or to any card when none is configured.
func (m *Monitor) isCardNode(devname string) bool {
	if m.card != "" {
		return devname == "dri/"+m.card
	}
	return anyCard.MatchString(devname)
}

// PanelPresent scans the devices already known to the kernel for a card node
// the monitor would report. Events only cover changes after Start.
func (m *Monitor) PanelPresent() (bool, error) {
	queue := make(chan crawler.Device)
	errs := make(chan error, 1)
	quit := m.crawl(queue, errs, nil)

	found := false
	var scanErr error
	record := func(err error) {
		if err != nil && !found {
			scanErr = fmt.Errorf("failed to scan existing devices: %w", err)
		}
	}
	for {
		select {
		case device, more := <-queue:
			if !more {
				// an error may be buffered behind the close
				select {
				case err := <-errs:
					record(err)
				default:
				}
				return found, scanErr
			}
			if found {
				continue
			}
			if device.Env["SUBSYSTEM"] == Subsystem &&
				device.Env["DEVTYPE"] == drmMinorType &&
				m.isCardNode(device.Env["DEVNAME"]) {
				found = true
				log.Debug().Str("devpath", device.KObj).Str("device", device.Env["DEVNAME"]).Msg("Display device present")
				select {
				case quit <- struct{}{}:
				default:
				}
			}
		case err := <-errs:
			record(err)
		}
	}
}

// createMatcher creates a matcher for DRM card events.
func (m *Monitor) createMatcher() *netlink.RuleDefinitions {
	rules := &netlink.RuleDefinitions{}

	env := map[string]string{
		"SUBSYSTEM": "^" + Subsystem + "$",
	}
	if m.card != "" {
		// anchored so card1 does not match card10
		env["DEVNAME"] = "^dri/" + regexp.QuoteMeta(m.card) + "$"
	}

	for _, action := range []string{"^add$", "^change$", "^remove$"} {
		rules.AddRule(netlink.RuleDefinition{
			Action: &action,
			Env:    env,
		})
	}

	return rules
}

// processEvents handles incoming udev events.
func (m *Monitor) processEvents(queue chan netlink.UEvent, errs chan error) {
	for {
		select {
		case event, ok := <-queue:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-errs:
			if !ok {
				return
			}
			m.mu.Lock()
			stopped := m.stopped
			recoveryHandler := m.recoveryHandler
			m.mu.Unlock()
			if stopped {
				return
			}

			// Events may have been dropped; the recovery handler re-reads
			// the panel state.
			if isBufferOverflowError(err) {
				log.Warn().Msg("Netlink buffer overflow detected, triggering recovery refresh")
				if recoveryHandler != nil {
					go recoveryHandler()
				}
				continue
			}

			log.Error().Err(err).Msg("udev monitor error")
		}
	}
}

// setSocketBufferSize sets the receive buffer size for a socket.
// It first tries SO_RCVBUFFORCE (requires CAP_NET_ADMIN), then falls back to SO_RCVBUF.
func setSocketBufferSize(fd int, size int) error {
	err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUFFORCE, size)
	if err == nil {
		return nil
	}

	// The kernel will cap the value at rmem_max and double it internally
	return syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, size)
}

// isBufferOverflowError checks if the error is a netlink buffer overflow (ENOBUFS).
func isBufferOverflowError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ENOBUFS) {
		return true
	}
	// the udev library does not always wrap the errno
	return strings.Contains(strings.ToLower(err.Error()), "no buffer space available")
}

// shouldDebounceChange reports whether a change event for device arrived
// within the debounce window of the previous one, and records it otherwise.
func (m *Monitor) shouldDebounceChange(device string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for d, ts := range m.lastChange {
		if now.Sub(ts) > debounceRetention {
			delete(m.lastChange, d)
		}
	}

	if ts, ok := m.lastChange[device]; ok && now.Sub(ts) < changeDebounceWindow {
		return true
	}
	m.lastChange[device] = now
	return false
}

// handleEvent processes a single udev event.
func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	// Connector children carry neither DEVTYPE nor DEVNAME; only card nodes
	// are of interest. REMOVE may lack DEVTYPE, so the node name decides.
	device := uevent.Env["DEVNAME"]
	if !m.isCardNode(device) {
		return
	}
	if uevent.Action != netlink.REMOVE && uevent.Env["DEVTYPE"] != drmMinorType {
		return
	}

	log.Debug().
		Str("action", string(uevent.Action)).
		Str("devpath", uevent.KObj).
		Str("device", device).
		Msg("DRM device event")

	var eventType EventType
	switch uevent.Action {
	case netlink.ADD:
		eventType = EventAdd
		log.Info().Str("device", device).Msg("Display device added")
	case netlink.CHANGE:
		if m.shouldDebounceChange(uevent.KObj) {
			return
		}
		eventType = EventChange
	case netlink.REMOVE:
		eventType = EventRemove
		log.Info().Str("device", device).Msg("Display device removed")
	default:
		return
	}

	if m.handler != nil {
		m.handler(Event{Type: eventType, Device: device})
	}
}
