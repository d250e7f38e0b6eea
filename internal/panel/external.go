// SPDX-License-Identifier: GPL-3.0-only

package panel

import (
	"encoding/binary"
	"fmt"
	"sync"
)

const (
	// ReportID is the HID report ID carrying the backlight level.
	ReportID byte = 0x01

	// ReportSize is the size of the HID feature report in bytes.
	ReportSize = 7
)

// External drives a USB-HID backlight controller. The level travels as a
// little-endian uint32 after the report ID.
// All methods are thread-safe and can be called concurrently.
type External struct {
	device Device
	mu     sync.Mutex
	closed bool
}

// NewExternal wraps an open HID device.
func NewExternal(device Device) *External {
	return &External{device: device}
}

// SendLevel writes a device level to the controller.
func (e *External) SendLevel(level uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrPanelClosed
	}

	data := make([]byte, ReportSize)
	data[0] = ReportID
	binary.LittleEndian.PutUint32(data[1:5], level)

	if _, err := e.device.SendFeatureReport(data); err != nil {
		return fmt.Errorf("failed to send feature report: %w", err)
	}
	return nil
}

// ReadLevel reads the level currently applied by the controller.
func (e *External) ReadLevel() (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, ErrPanelClosed
	}

	data := make([]byte, ReportSize)
	data[0] = ReportID

	if _, err := e.device.GetFeatureReport(data); err != nil {
		return 0, fmt.Errorf("failed to get feature report: %w", err)
	}
	return binary.LittleEndian.Uint32(data[1:5]), nil
}

// Serial returns the serial number of the controller.
// Device info is immutable, so no locking is needed.
func (e *External) Serial() string {
	return e.device.Info().Serial
}

// Close closes the underlying HID device.
func (e *External) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}

	e.closed = true
	return e.device.Close()
}
