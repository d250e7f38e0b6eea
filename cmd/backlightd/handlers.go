// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/backlightd/internal/dbus"
	"github.com/shini4i/backlightd/internal/panel"
	"github.com/shini4i/backlightd/internal/udev"
)

// panelController is the part of the coordinator driven by panel events.
type panelController interface {
	SetUpdatesAllowed(allowed bool) error
	Refresh() error
}

// notifier publishes brightness changes made outside the bus.
type notifier interface {
	NotifyBrightness()
}

const refreshRetries = 3

// retryBackoff is the base delay between refresh attempts. Replaced in tests.
var retryBackoff = 500 * time.Millisecond

// refreshMu serializes refresh operations to prevent race conditions
// between hotplug handlers and recovery handlers.
var refreshMu sync.Mutex

// refreshWithRetry re-applies the backlight with linear backoff.
func refreshWithRetry(ctl panelController, maxRetries int) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Linear backoff: 500ms, 1000ms, 1500ms, ...
			backoff := time.Duration(attempt) * retryBackoff
			log.Debug().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying backlight refresh")
			time.Sleep(backoff)
		}

		if err := ctl.Refresh(); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("maxRetries", maxRetries+1).
				Msg("Backlight refresh failed")
			continue
		}

		if attempt > 0 {
			log.Info().Int("attempts", attempt+1).Msg("Backlight refresh succeeded after retry")
		}
		return nil
	}
	return lastErr
}

// createHotplugHandler returns an event handler that tracks panel readiness.
// A panel that comes up opens the update gate, replaying a deferred level,
// and gets its backlight re-sent.
func createHotplugHandler(ctl panelController, ready *panel.Readiness, n notifier) udev.EventHandler {
	return func(event udev.Event) {
		refreshMu.Lock()
		defer refreshMu.Unlock()

		switch event.Type {
		case udev.EventAdd, udev.EventChange:
			changed := ready.SetReady(true)
			if err := ctl.SetUpdatesAllowed(true); err != nil {
				log.Error().Err(err).Str("device", event.Device).Msg("Failed to apply deferred backlight level")
			}
			if !changed && event.Type == udev.EventChange {
				return
			}
			log.Info().Str("device", event.Device).Str("event", event.Type.String()).Msg("Panel ready")
			if err := refreshWithRetry(ctl, refreshRetries); err != nil {
				log.Error().Err(err).Msg("Failed to refresh backlight after panel event (all retries exhausted)")
				return
			}
			n.NotifyBrightness()

		case udev.EventRemove:
			if ready.SetReady(false) {
				log.Info().Str("device", event.Device).Msg("Panel gone, holding backlight updates")
			}
		}
	}
}

// applyExistingPanel treats a card that is already present like an add event:
// the panel is marked ready and the update gate opened. A failed scan opens
// the gate as well.
func applyExistingPanel(ctl panelController, ready *panel.Readiness, n notifier, present func() (bool, error)) {
	found, err := present()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to look for an existing panel, applying backlight updates now")
		found = true
	}
	if !found {
		log.Info().Msg("No display device present, waiting for panel")
		return
	}

	refreshMu.Lock()
	defer refreshMu.Unlock()

	ready.SetReady(true)
	if err := ctl.SetUpdatesAllowed(true); err != nil {
		log.Error().Err(err).Msg("Failed to apply deferred backlight level")
		return
	}
	n.NotifyBrightness()
}

// createRecoveryHandler returns a handler for netlink buffer overflow recovery.
// Panel events may have been missed, so the backlight is re-sent.
func createRecoveryHandler(ctl panelController, n notifier) udev.RecoveryHandler {
	return func() {
		refreshMu.Lock()
		defer refreshMu.Unlock()

		log.Info().Msg("Performing recovery refresh after netlink buffer overflow")
		if err := refreshWithRetry(ctl, refreshRetries); err != nil {
			log.Error().Err(err).Msg("Recovery refresh failed (all retries exhausted)")
			return
		}
		n.NotifyBrightness()
	}
}

// createDeviceErrorHandler marks the panel unavailable after the hardware
// vanished mid-request; the next panel event brings it back.
func createDeviceErrorHandler(ready *panel.Readiness) dbus.DeviceErrorHandler {
	return func(err error) {
		if ready.SetReady(false) {
			log.Warn().Err(err).Msg("Backlight hardware lost, waiting for panel")
		}
	}
}
