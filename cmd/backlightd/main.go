// SPDX-License-Identifier: GPL-3.0-only

// Package main provides the entry point for the panel backlight daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shini4i/backlightd/internal/backlight"
	"github.com/shini4i/backlightd/internal/config"
	"github.com/shini4i/backlightd/internal/dbus"
	"github.com/shini4i/backlightd/internal/panel"
	"github.com/shini4i/backlightd/internal/udev"
)

var (
	verbose    bool
	configPath string
	card       string
	rootCmd    = &cobra.Command{
		Use:   "backlightd",
		Short: "D-Bus daemon for controlling a display panel backlight",
		Long: `backlightd maps UI brightness requests onto the device levels of a
display panel backlight and keeps them consistent with the panel power state.

It drives PWM, DCS and external HID backlights, switches binned low-power
profiles while the panel is in an always-on mode, and exposes its controls
on the session bus.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the panel configuration")
	rootCmd.PersistentFlags().StringVar(&card, "card", "", "Only follow events of this DRM card, e.g. card0")
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func run() error {
	setupLogging()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log.Info().Str("panel", cfg.Name).Str("config", configPath).Msg("Starting backlightd")

	ready := panel.NewReadiness(true)
	hw, err := openHardware(cfg, ready)
	if err != nil {
		return err
	}

	var opts []backlight.Option
	if table := buildProfiles(cfg, hw); table != nil {
		opts = append(opts, backlight.WithProfiles(table))
	}

	coordinator, err := backlight.New(cfg.BacklightConfig(), hw, opts...)
	if err != nil {
		closeHardware(hw)
		return fmt.Errorf("failed to register backlight: %w", err)
	}
	defer func() {
		if err := coordinator.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close backlight hardware")
		}
	}()

	if err := coordinator.Update(); err != nil {
		log.Error().Err(err).Msg("Failed to apply initial backlight level")
	}

	server := dbus.NewServer(coordinator)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start D-Bus server: %w", err)
	}
	server.SetDeviceErrorHandler(createDeviceErrorHandler(ready))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := dbus.NewSleepWatcher(coordinator).Run(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to watch system sleep (suspend handling disabled)")
	}

	var monitorOpts []udev.Option
	if card != "" {
		monitorOpts = append(monitorOpts, udev.WithCard(card))
	}
	monitor := udev.NewMonitor(createHotplugHandler(coordinator, ready, server), monitorOpts...)
	monitor.SetRecoveryHandler(createRecoveryHandler(coordinator, server))
	if err := monitor.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start udev monitor (panel tracking disabled)")
		// without panel events the gate would never open
		if err := coordinator.SetUpdatesAllowed(true); err != nil {
			log.Error().Err(err).Msg("Failed to apply deferred backlight level")
		}
	} else {
		// a panel present at boot sends no add event
		applyExistingPanel(coordinator, ready, server, monitor.PanelPresent)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Msg("Daemon running, press Ctrl+C to stop")
	<-sigChan

	log.Info().Msg("Shutting down...")
	if err := monitor.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop udev monitor")
	}
	if err := server.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop D-Bus server")
	}

	log.Info().Msg("Daemon stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Failed to execute command")
	}
}
