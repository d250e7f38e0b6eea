// SPDX-License-Identifier: GPL-3.0-only

package panel

import (
	"errors"
	"strings"
	"syscall"
)

// IsDeviceGoneError reports whether err indicates the backlight hardware
// disappeared (unplugged controller, panel powered off under us).
func IsDeviceGoneError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ENODEV) || errors.Is(err, syscall.EIO) || errors.Is(err, syscall.ENXIO) {
		return true
	}
	// hidapi reports errors as plain strings
	msg := err.Error()
	return strings.Contains(msg, "No such device") || strings.Contains(msg, "Input/output error")
}
