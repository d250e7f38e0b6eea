// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/shini4i/backlightd/internal/backlight"
	"github.com/shini4i/backlightd/internal/binned"
	"github.com/shini4i/backlightd/internal/config"
	"github.com/shini4i/backlightd/internal/panel"
)

// hostInit loads the periph host drivers. Replaced in tests.
var hostInit = func() error {
	_, err := host.Init()
	return err
}

// openHardware opens the collaborators described by cfg. On failure anything
// already opened is closed again.
func openHardware(cfg *config.Config, ready *panel.Readiness) (hw backlight.Hardware, err error) {
	bl := cfg.Backlight
	cfgLevels := cfg.BacklightConfig()
	hw.Panel = ready

	var opened []io.Closer
	defer func() {
		if err != nil {
			for _, c := range opened {
				_ = c.Close()
			}
			hw = backlight.Hardware{}
		}
	}()

	needDCS := cfgLevels.Type == backlight.TypeDCS || (len(cfg.LPModes) > 0 && bl.DCS.Addr != 0)
	if cfgLevels.Type == backlight.TypePWM || needDCS || bl.Rail.Pin != "" {
		if err := hostInit(); err != nil {
			return hw, fmt.Errorf("failed to initialise host drivers: %w", err)
		}
	}

	switch cfgLevels.Type {
	case backlight.TypePWM:
		pin, err := lookupPin(bl.PWM.Pin)
		if err != nil {
			return hw, err
		}
		pwm, err := panel.NewPWM(pin, bl.PWM.Period(), cfgLevels.MaxLevel)
		if err != nil {
			return hw, err
		}
		opened = append(opened, pwm)
		hw.PWM = pwm
		log.Info().Str("pin", bl.PWM.Pin).Dur("period", bl.PWM.Period()).Msg("Using PWM backlight")

	case backlight.TypeExternal:
		dev, err := panel.OpenHIDDevice(panel.HIDSelector{
			VendorID:  bl.External.VendorID,
			ProductID: bl.External.ProductID,
			Interface: bl.External.InterfaceNumber(),
			Serial:    bl.External.Serial,
		})
		if err != nil {
			return hw, err
		}
		ext := panel.NewExternal(dev)
		opened = append(opened, ext)
		hw.External = ext
		log.Info().Str("serial", ext.Serial()).Msg("Using external backlight controller")
	}

	if needDCS {
		bus, err := i2creg.Open(bl.DCS.Bus)
		if err != nil {
			return hw, fmt.Errorf("failed to open panel bridge bus %q: %w", bl.DCS.Bus, err)
		}
		dcs := panel.NewDCS(&i2c.Dev{Bus: bus, Addr: bl.DCS.Addr}, cfgLevels.MaxLevel, panel.WithBus(bus))
		opened = append(opened, dcs)
		hw.Commands = dcs
		if cfgLevels.Type == backlight.TypeDCS {
			hw.DCS = dcs
		}
		log.Info().Str("bus", bus.String()).Uint16("addr", bl.DCS.Addr).Msg("Using DCS panel link")
	}

	if bl.Rail.Pin != "" {
		pin, err := lookupPin(bl.Rail.Pin)
		if err != nil {
			return hw, err
		}
		hw.Rail = panel.NewGPIORail(pin)
	}

	return hw, nil
}

func lookupPin(name string) (gpio.PinIO, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	return pin, nil
}

// closeHardware releases hardware that never reached a coordinator.
func closeHardware(hw backlight.Hardware) {
	for _, v := range []any{hw.PWM, hw.External, hw.Commands} {
		if c, ok := v.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close backlight hardware")
			}
		}
	}
}

// buildProfiles returns the low-power table declared in cfg, or nil when none
// is declared or it is unusable. An unusable table leaves the daemon on
// level-only dispatch.
func buildProfiles(cfg *config.Config, hw backlight.Hardware) *binned.Table {
	if len(cfg.LPModes) == 0 {
		return nil
	}
	if hw.Commands == nil {
		log.Warn().Msg("lp modes need a DCS panel link (backlight.dcs.addr), ignoring them")
		return nil
	}
	table, err := binned.NewTable(cfg.Declarations())
	if err != nil {
		log.Error().Err(err).Msg("Invalid lp modes, falling back to level-only backlight")
		return nil
	}
	log.Info().Int("modes", table.Len()).Msg("Binned lp modes enabled")
	return table
}
