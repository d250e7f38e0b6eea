// SPDX-License-Identifier: GPL-3.0-only

package panel

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"

	"github.com/shini4i/backlightd/internal/backlight"
)

// GPIORail switches the LAB supply rail through its mode pin: high for
// normal regulation, low for idle.
type GPIORail struct {
	pin gpio.PinOut
}

// NewGPIORail returns a rail bound to pin.
func NewGPIORail(pin gpio.PinOut) *GPIORail {
	return &GPIORail{pin: pin}
}

// SetRailMode implements backlight.Rail.
func (r *GPIORail) SetRailMode(mode backlight.RailMode) error {
	level := gpio.High
	if mode == backlight.RailIdle {
		level = gpio.Low
	}
	if err := r.pin.Out(level); err != nil {
		return fmt.Errorf("failed to set rail %s on %s: %w", mode, r.pin, err)
	}
	return nil
}
