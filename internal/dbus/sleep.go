// SPDX-License-Identifier: GPL-3.0-only

package dbus

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const (
	login1Interface   = "org.freedesktop.login1.Manager"
	prepareForSleep   = "PrepareForSleep"
	sleepSignalBuffer = 4
)

// Sleeper is told when the system suspends and resumes.
type Sleeper interface {
	Suspend() error
	Resume() error
}

// SleepWatcher forwards logind PrepareForSleep signals to a Sleeper.
type SleepWatcher struct {
	sleeper Sleeper
}

// NewSleepWatcher creates a watcher for s.
func NewSleepWatcher(s Sleeper) *SleepWatcher {
	return &SleepWatcher{sleeper: s}
}

// Run connects to the system bus and forwards signals until ctx is done.
// It returns once the subscription is set up.
func (w *SleepWatcher) Run(ctx context.Context) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}

	err = conn.AddMatchSignal(
		dbus.WithMatchInterface(login1Interface),
		dbus.WithMatchMember(prepareForSleep),
	)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", prepareForSleep, err)
	}

	signals := make(chan *dbus.Signal, sleepSignalBuffer)
	conn.Signal(signals)

	go func() {
		defer func() {
			conn.RemoveSignal(signals)
			if err := conn.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close system bus connection")
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				w.handleSignal(sig)
			}
		}
	}()

	log.Info().Msg("Watching logind sleep signals")
	return nil
}

func (w *SleepWatcher) handleSignal(sig *dbus.Signal) {
	if sig == nil || sig.Name != login1Interface+"."+prepareForSleep || len(sig.Body) != 1 {
		return
	}
	entering, ok := sig.Body[0].(bool)
	if !ok {
		return
	}

	var err error
	if entering {
		log.Info().Msg("System suspending, turning backlight off")
		err = w.sleeper.Suspend()
	} else {
		log.Info().Msg("System resumed, restoring backlight")
		err = w.sleeper.Resume()
	}
	if err != nil {
		log.Error().Err(err).Bool("entering", entering).Msg("Failed to follow system sleep")
	}
}
