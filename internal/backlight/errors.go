// SPDX-License-Identifier: GPL-3.0-only

package backlight

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedType is returned for a backlight type without a dispatch path.
	ErrUnsupportedType = errors.New("backlight type not supported")

	// ErrMissingHardware is returned when a required collaborator is nil.
	ErrMissingHardware = errors.New("missing backlight hardware")

	// ErrScaleOutOfRange is returned when a scale factor exceeds full scale.
	ErrScaleOutOfRange = errors.New("scale out of range")

	// ErrBlanked is returned when a low-power mode is requested while blanked.
	ErrBlanked = errors.New("panel is blanked")

	// ErrClosed is returned when an operation is attempted after Close.
	ErrClosed = errors.New("backlight is closed")
)

// DispatchError reports hardware rejecting a level or a command set.
type DispatchError struct {
	Level   uint32
	Profile string
	Err     error
}

func (e *DispatchError) Error() string {
	if e.Profile != "" {
		return fmt.Sprintf("failed to send lp mode %q: %v", e.Profile, e.Err)
	}
	return fmt.Sprintf("failed to set backlight level %d: %v", e.Level, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
