// SPDX-License-Identifier: GPL-3.0-only

// Package config loads the panel description used by the daemon.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shini4i/backlightd/internal/backlight"
	"github.com/shini4i/backlightd/internal/binned"
)

// DefaultPath is where the daemon looks for its configuration.
const DefaultPath = "/etc/backlightd/panel.yaml"

const (
	defaultMaxLevel   = 255
	defaultMaxUILevel = 255
)

// ErrInvalid is returned when a configuration file fails validation.
var ErrInvalid = errors.New("invalid configuration")

// PWM describes a backlight driven by a GPIO PWM pin.
type PWM struct {
	Pin      string `yaml:"pin"`
	PeriodUs int    `yaml:"period_us"`
}

// Period returns the configured PWM period.
func (p PWM) Period() time.Duration {
	return time.Duration(p.PeriodUs) * time.Microsecond
}

// DCS describes a panel controller reached over I2C.
type DCS struct {
	Bus  string `yaml:"bus"`  // empty selects the first I2C bus
	Addr uint16 `yaml:"addr"` // e.g. 0x2c
}

// External describes a USB HID display that takes brightness reports.
type External struct {
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`
	Interface *int   `yaml:"interface,omitempty"` // absent matches any interface
	Serial    string `yaml:"serial,omitempty"`
}

// InterfaceNumber returns the configured HID interface, or -1 for any.
func (e External) InterfaceNumber() int {
	if e.Interface == nil {
		return -1
	}
	return *e.Interface
}

// Rail is the GPIO line switching the panel supply between normal and low power.
type Rail struct {
	Pin string `yaml:"pin"` // empty disables rail control
}

// Backlight selects and parameterises the dispatch strategy.
type Backlight struct {
	Type       string   `yaml:"type"`
	UpdateFlag string   `yaml:"update_flag"`
	MinLevel   *uint32  `yaml:"min_level"`
	MaxLevel   *uint32  `yaml:"max_level"`
	MaxUILevel *uint32  `yaml:"brightness_max_level"`
	PWM        PWM      `yaml:"pwm,omitempty"`
	DCS        DCS      `yaml:"dcs,omitempty"`
	External   External `yaml:"external,omitempty"`
	Rail       Rail     `yaml:"rail,omitempty"`
}

// LPMode declares one low-power profile; Threshold is its brightness bin ceiling.
type LPMode struct {
	Label        string  `yaml:"label"`
	Threshold    *uint32 `yaml:"threshold,omitempty"`
	Command      string  `yaml:"command"`
	CommandState string  `yaml:"command_state,omitempty"`
}

// Config is the top level of the panel description file.
type Config struct {
	Name      string    `yaml:"name"`
	Backlight Backlight `yaml:"backlight"`
	LPModes   []LPMode  `yaml:"lp_modes,omitempty"`
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML document.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	bl := c.Backlight
	switch backlight.ParseType(bl.Type) {
	case backlight.TypeUnknown:
		return fmt.Errorf("%w: unknown backlight type %q", ErrInvalid, bl.Type)
	case backlight.TypePWM:
		if bl.PWM.Pin == "" {
			return fmt.Errorf("%w: pwm pin is required", ErrInvalid)
		}
		if bl.PWM.PeriodUs <= 0 {
			return fmt.Errorf("%w: pwm period_us must be positive", ErrInvalid)
		}
	case backlight.TypeDCS:
		if bl.DCS.Addr == 0 || bl.DCS.Addr > 0x7f {
			return fmt.Errorf("%w: dcs addr 0x%x is not a 7-bit address", ErrInvalid, bl.DCS.Addr)
		}
	case backlight.TypeExternal:
		if bl.External.VendorID == 0 || bl.External.ProductID == 0 {
			return fmt.Errorf("%w: external vendor_id and product_id are required", ErrInvalid)
		}
	}

	cfg := c.BacklightConfig()
	if cfg.MaxLevel < cfg.MinLevel {
		return fmt.Errorf("%w: max_level %d below min_level %d", ErrInvalid, cfg.MaxLevel, cfg.MinLevel)
	}
	if cfg.MaxLevel == 0 || cfg.MaxUILevel == 0 {
		return fmt.Errorf("%w: max_level and brightness_max_level must be positive", ErrInvalid)
	}
	return nil
}

// BacklightConfig returns the coordinator configuration with defaults applied.
func (c *Config) BacklightConfig() backlight.Config {
	bl := c.Backlight
	return backlight.Config{
		Type:       backlight.ParseType(bl.Type),
		MinLevel:   valueOr(bl.MinLevel, 0),
		MaxLevel:   valueOr(bl.MaxLevel, defaultMaxLevel),
		MaxUILevel: valueOr(bl.MaxUILevel, defaultMaxUILevel),
		UpdateFlag: backlight.ParseUpdateFlag(bl.UpdateFlag),
	}
}

// Declarations returns the low-power modes in file order. A mode without a
// label is named after its position.
func (c *Config) Declarations() []binned.Declaration {
	decls := make([]binned.Declaration, 0, len(c.LPModes))
	for i, m := range c.LPModes {
		name := m.Label
		if name == "" {
			name = fmt.Sprintf("lp_mode%d", i)
		}
		decls = append(decls, binned.Declaration{
			Name:         name,
			Threshold:    m.Threshold,
			Command:      m.Command,
			CommandState: m.CommandState,
		})
	}
	return decls
}

func valueOr(v *uint32, def uint32) uint32 {
	if v == nil {
		return def
	}
	return *v
}
