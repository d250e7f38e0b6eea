// SPDX-License-Identifier: GPL-3.0-only

package panel

import (
	"fmt"

	karalabehid "github.com/karalabe/hid"
)

// HIDAPIDevice wraps a karalabe/hid device to implement the Device interface.
type HIDAPIDevice struct {
	device karalabehid.Device
	info   DeviceInfo
}

var _ Device = (*HIDAPIDevice)(nil)

// NewHIDAPIDevice creates a new HIDAPIDevice from an open hid.Device.
func NewHIDAPIDevice(device karalabehid.Device, info DeviceInfo) *HIDAPIDevice {
	return &HIDAPIDevice{
		device: device,
		info:   info,
	}
}

// GetFeatureReport reads a feature report from the device.
func (d *HIDAPIDevice) GetFeatureReport(data []byte) (int, error) {
	return d.device.GetFeatureReport(data)
}

// SendFeatureReport writes a feature report to the device.
func (d *HIDAPIDevice) SendFeatureReport(data []byte) (int, error) {
	return d.device.SendFeatureReport(data)
}

// Close closes the device handle.
func (d *HIDAPIDevice) Close() error {
	return d.device.Close()
}

// Info returns information about the device.
func (d *HIDAPIDevice) Info() DeviceInfo {
	return d.info
}

// HIDSelector identifies an external backlight controller on the USB bus.
type HIDSelector struct {
	VendorID  uint16
	ProductID uint16
	Interface int
	// Serial picks a specific controller; empty selects the first match.
	Serial string
}

// OpenHIDDevice opens the first controller matching sel.
func OpenHIDDevice(sel HIDSelector) (*HIDAPIDevice, error) {
	devices, err := karalabehid.Enumerate(sel.VendorID, sel.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate HID devices: %w", err)
	}

	for _, deviceInfo := range devices {
		if sel.Interface >= 0 && deviceInfo.Interface != sel.Interface {
			continue
		}
		if sel.Serial != "" && deviceInfo.Serial != sel.Serial {
			continue
		}

		device, err := deviceInfo.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open backlight controller %s: %w", deviceInfo.Serial, err)
		}

		info := DeviceInfo{
			Path:         deviceInfo.Path,
			VendorID:     deviceInfo.VendorID,
			ProductID:    deviceInfo.ProductID,
			Serial:       deviceInfo.Serial,
			Manufacturer: deviceInfo.Manufacturer,
			Product:      deviceInfo.Product,
			Interface:    deviceInfo.Interface,
		}

		return NewHIDAPIDevice(device, info), nil
	}

	if sel.Serial != "" {
		return nil, fmt.Errorf("backlight controller with serial %s not found", sel.Serial)
	}
	return nil, fmt.Errorf("no backlight controller %04x:%04x found", sel.VendorID, sel.ProductID)
}
