// SPDX-License-Identifier: GPL-3.0-only

package backlight

import (
	"errors"
	"fmt"

	"github.com/shini4i/backlightd/internal/brightness"
)

// ErrInvalidConfig is returned when a Config cannot describe a usable backlight.
var ErrInvalidConfig = errors.New("invalid backlight config")

// Type selects the hardware path used to apply a level.
type Type int

const (
	// TypeUnknown is an unrecognised or missing control type.
	TypeUnknown Type = iota
	// TypePWM drives the backlight with a PWM output.
	TypePWM
	// TypeWLED is handled by a WLED controller outside this daemon.
	TypeWLED
	// TypeDCS sends MIPI DCS brightness commands to the panel.
	TypeDCS
	// TypeExternal drives a separate backlight controller.
	TypeExternal
)

var typeNames = map[Type]string{
	TypeUnknown:  "unknown",
	TypePWM:      "bl_ctrl_pwm",
	TypeWLED:     "bl_ctrl_wled",
	TypeDCS:      "bl_ctrl_dcs",
	TypeExternal: "bl_ctrl_external",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType maps a pmic control type name to a Type. Unrecognised names yield
// TypeUnknown.
func ParseType(s string) Type {
	for t, name := range typeNames {
		if t != TypeUnknown && name == s {
			return t
		}
	}
	return TypeUnknown
}

// UpdateFlag controls whether updates are allowed from the start.
type UpdateFlag int

const (
	// UpdateNone applies updates immediately.
	UpdateNone UpdateFlag = iota
	// UpdateDelayUntilFirstFrame holds updates until the gate is opened.
	UpdateDelayUntilFirstFrame
)

// ParseUpdateFlag maps a bl-update-flag value to an UpdateFlag.
func ParseUpdateFlag(s string) UpdateFlag {
	if s == "delay_until_first_frame" {
		return UpdateDelayUntilFirstFrame
	}
	return UpdateNone
}

// Config describes the backlight of one panel. It is fixed for the lifetime
// of a Coordinator except for the two scale factors.
type Config struct {
	Type       Type
	MinLevel   uint32
	MaxLevel   uint32
	MaxUILevel uint32
	UpdateFlag UpdateFlag

	// Scale and ScaleSV start at full scale when left zero.
	Scale   uint32
	ScaleSV uint32
}

func (c Config) validate() error {
	switch {
	case c.MaxLevel < c.MinLevel:
		return fmt.Errorf("%w: max level %d below min level %d", ErrInvalidConfig, c.MaxLevel, c.MinLevel)
	case c.MaxLevel == 0:
		return fmt.Errorf("%w: max level must be positive", ErrInvalidConfig)
	case c.MaxUILevel == 0:
		return fmt.Errorf("%w: brightness max level must be positive", ErrInvalidConfig)
	case c.Scale > brightness.MaxScale:
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrScaleOutOfRange)
	case c.ScaleSV > brightness.MaxScaleSV:
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrScaleOutOfRange)
	}
	return nil
}

func (c Config) params() brightness.Params {
	return brightness.Params{
		MinLevel:   c.MinLevel,
		MaxLevel:   c.MaxLevel,
		MaxUILevel: c.MaxUILevel,
		Scale:      c.Scale,
		ScaleSV:    c.ScaleSV,
	}
}
