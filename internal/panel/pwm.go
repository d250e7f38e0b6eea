// SPDX-License-Identifier: GPL-3.0-only

package panel

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// PWM drives the backlight with a PWM capable pin. Duty is level/maxLevel.
type PWM struct {
	mu       sync.Mutex
	pin      gpio.PinOut
	freq     physic.Frequency
	maxLevel uint32
	closed   bool
}

// NewPWM returns a PWM sender with the given period.
func NewPWM(pin gpio.PinOut, period time.Duration, maxLevel uint32) (*PWM, error) {
	if period <= 0 {
		return nil, fmt.Errorf("pwm period must be positive, got %s", period)
	}
	if maxLevel == 0 {
		return nil, fmt.Errorf("pwm max level must be positive")
	}
	return &PWM{
		pin:      pin,
		freq:     physic.PeriodToFrequency(period),
		maxLevel: maxLevel,
	}, nil
}

// SendLevel updates the duty cycle. Level zero drives the pin low.
func (p *PWM) SendLevel(level uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPanelClosed
	}

	if level == 0 {
		if err := p.pin.Out(gpio.Low); err != nil {
			return fmt.Errorf("failed to disable pwm on %s: %w", p.pin, err)
		}
		return nil
	}

	if level > p.maxLevel {
		level = p.maxLevel
	}
	duty := gpio.Duty(uint64(level) * uint64(gpio.DutyMax) / uint64(p.maxLevel))
	if err := p.pin.PWM(duty, p.freq); err != nil {
		return fmt.Errorf("failed to set pwm duty %s on %s: %w", duty, p.pin, err)
	}
	return nil
}

// Close drives the pin low and halts it.
func (p *PWM) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.pin.Out(gpio.Low); err != nil {
		return err
	}
	return p.pin.Halt()
}
