// SPDX-License-Identifier: GPL-3.0-only

// Package dbus exposes the backlight coordinator as a D-Bus service.
package dbus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/shini4i/backlightd/internal/binned"
	"github.com/shini4i/backlightd/internal/panel"
	"github.com/shini4i/backlightd/internal/power"
)

// ErrRateLimitExceeded is returned when change requests exceed the rate limit.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

const (
	// rateLimitPerSecond is the maximum number of change requests per second.
	rateLimitPerSecond = 20

	// rateLimitBurst is the maximum burst size for change requests.
	rateLimitBurst = 5
)

const (
	// ServiceName is the D-Bus service name.
	ServiceName = "io.github.shini4i.Backlight"

	// ObjectPath is the D-Bus object path.
	ObjectPath = "/io/github/shini4i/Backlight"

	// InterfaceName is the D-Bus interface name.
	InterfaceName = "io.github.shini4i.Backlight"
)

// IntrospectXML is the D-Bus introspection XML for the service.
const IntrospectXML = `
<node name="` + ObjectPath + `">
  <interface name="` + InterfaceName + `">
    <method name="GetBrightness">
      <arg name="brightness" type="u" direction="out"/>
    </method>
    <method name="SetBrightness">
      <arg name="brightness" type="u" direction="in"/>
    </method>
    <method name="GetActualBrightness">
      <arg name="level" type="u" direction="out"/>
    </method>
    <method name="GetMaxBrightness">
      <arg name="brightness" type="u" direction="out"/>
    </method>
    <method name="GetPowerState">
      <arg name="state" type="s" direction="out"/>
    </method>
    <method name="SetPowerMode">
      <arg name="mode" type="s" direction="in"/>
    </method>
    <method name="GetALPMMode">
      <arg name="mode" type="u" direction="out"/>
    </method>
    <method name="SetALPMMode">
      <arg name="mode" type="u" direction="in"/>
    </method>
    <method name="SetScale">
      <arg name="scale" type="u" direction="in"/>
    </method>
    <method name="SetScaleSV">
      <arg name="scale" type="u" direction="in"/>
    </method>
    <method name="ListProfiles">
      <arg name="profiles" type="a(su)" direction="out"/>
    </method>
    <signal name="BrightnessChanged">
      <arg name="brightness" type="u"/>
    </signal>
    <signal name="PowerModeChanged">
      <arg name="state" type="s"/>
    </signal>
  </interface>
  ` + introspect.IntrospectDataString + `
</node>
`

// Controller is the part of the backlight coordinator exported on the bus.
// This allows for mocking in tests.
type Controller interface {
	Brightness() uint32
	SetBrightness(b uint32) error
	ActualLevel() (uint32, bool)
	MaxBrightness() uint32
	State() power.State
	SetPowerMode(mode power.Mode) error
	ALPMMode() int
	SetALPMMode(level uint32) error
	SetScale(v uint32) error
	SetScaleSV(v uint32) error
	Profiles() []binned.Profile
}

// DeviceErrorHandler is called when a dispatch failed because the backlight
// hardware went away. This allows the caller to trigger recovery.
type DeviceErrorHandler func(err error)

// ProfileInfo represents a low-power profile returned via D-Bus.
// Serializes to D-Bus type (su) - a struct containing name and threshold.
type ProfileInfo struct {
	Name      string
	Threshold uint32
}

// Server implements the D-Bus service for backlight control.
//
// Thread safety:
//   - The Controller serialises its own requests.
//   - The connMu mutex protects the D-Bus connection field for signal emission.
//   - The handlerMu mutex protects the deviceErrorHandler field.
type Server struct {
	conn               *dbus.Conn
	connMu             sync.RWMutex // Protects conn field only
	ctl                Controller
	rateLimiter        *rate.Limiter
	handlerMu          sync.RWMutex // Protects deviceErrorHandler
	deviceErrorHandler DeviceErrorHandler
}

// NewServer creates a new D-Bus server in front of ctl.
func NewServer(ctl Controller) *Server {
	return &Server{
		ctl:         ctl,
		rateLimiter: rate.NewLimiter(rateLimitPerSecond, rateLimitBurst),
	}
}

// Start connects to the session bus and exports the service.
func (s *Server) Start() error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	// Ensure connection is closed if setup fails
	success := false
	defer func() {
		if !success {
			if closeErr := conn.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("Failed to close D-Bus connection during cleanup")
			}
		}
	}()

	if err := conn.Export(s, ObjectPath, InterfaceName); err != nil {
		return fmt.Errorf("failed to export server: %w", err)
	}

	err = conn.Export(introspect.Introspectable(IntrospectXML), ObjectPath, "org.freedesktop.DBus.Introspectable")
	if err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", ServiceName)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	success = true
	log.Info().Str("service", ServiceName).Msg("D-Bus service started")
	return nil
}

// Stop disconnects from the session bus.
func (s *Server) Stop() error {
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// SetDeviceErrorHandler sets the callback invoked when device errors are detected.
//
// This method is thread-safe and can be called at any time.
func (s *Server) SetDeviceErrorHandler(handler DeviceErrorHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.deviceErrorHandler = handler
}

// handleDeviceError checks if the error indicates vanished hardware and triggers recovery.
// Returns true if the error was a device error and recovery was triggered.
func (s *Server) handleDeviceError(err error) bool {
	if !panel.IsDeviceGoneError(err) {
		return false
	}

	log.Warn().Err(err).Msg("Device error detected, triggering recovery")

	s.handlerMu.RLock()
	handler := s.deviceErrorHandler
	s.handlerMu.RUnlock()

	if handler != nil {
		// Run recovery asynchronously to not block the D-Bus response
		go handler(err)
	}

	return true
}

// failed logs err, hands it to recovery and converts it for the bus.
func (s *Server) failed(op string, err error) *dbus.Error {
	s.handleDeviceError(err)
	log.Error().Err(err).Str("op", op).Msg("Backlight request failed")
	return dbus.MakeFailedError(err)
}

func (s *Server) allow(op string) *dbus.Error {
	if s.rateLimiter.Allow() {
		return nil
	}
	log.Warn().Str("op", op).Msg("Rate limit exceeded")
	return dbus.MakeFailedError(ErrRateLimitExceeded)
}

// GetBrightness returns the requested UI brightness.
func (s *Server) GetBrightness() (uint32, *dbus.Error) {
	return s.ctl.Brightness(), nil
}

// SetBrightness requests a new UI brightness.
func (s *Server) SetBrightness(brightness uint32) *dbus.Error {
	if dErr := s.allow("SetBrightness"); dErr != nil {
		return dErr
	}

	if err := s.ctl.SetBrightness(brightness); err != nil {
		return s.failed("SetBrightness", err)
	}

	log.Debug().Uint32("brightness", brightness).Msg("Set brightness")
	s.emitBrightnessChanged(brightness)
	return nil
}

// GetActualBrightness returns the level last applied to the hardware, or 0
// when none has been applied.
func (s *Server) GetActualBrightness() (uint32, *dbus.Error) {
	level, _ := s.ctl.ActualLevel()
	return level, nil
}

// GetMaxBrightness returns the highest accepted UI brightness.
func (s *Server) GetMaxBrightness() (uint32, *dbus.Error) {
	return s.ctl.MaxBrightness(), nil
}

// GetPowerState returns the current power state, e.g. "normal" or "lp1".
func (s *Server) GetPowerState() (string, *dbus.Error) {
	return s.ctl.State().String(), nil
}

// SetPowerMode applies a display power mode: on, off, lp1 or lp2.
func (s *Server) SetPowerMode(mode string) *dbus.Error {
	if dErr := s.allow("SetPowerMode"); dErr != nil {
		return dErr
	}

	m, err := power.ParseMode(mode)
	if err != nil {
		return dbus.MakeFailedError(err)
	}

	if err := s.ctl.SetPowerMode(m); err != nil {
		return s.failed("SetPowerMode", err)
	}

	s.emitPowerModeChanged()
	return nil
}

// GetALPMMode returns the always-on low-power level: 0, 1 or 2.
func (s *Server) GetALPMMode() (uint32, *dbus.Error) {
	// #nosec G115 -- ALPMMode is 0, 1 or 2
	return uint32(s.ctl.ALPMMode()), nil
}

// SetALPMMode requests an always-on low-power level.
func (s *Server) SetALPMMode(mode uint32) *dbus.Error {
	if dErr := s.allow("SetALPMMode"); dErr != nil {
		return dErr
	}

	before := s.ctl.State()
	if err := s.ctl.SetALPMMode(mode); err != nil {
		return s.failed("SetALPMMode", err)
	}

	if s.ctl.State() != before {
		s.emitPowerModeChanged()
	}
	return nil
}

// SetScale sets the global dimming factor.
func (s *Server) SetScale(scale uint32) *dbus.Error {
	if dErr := s.allow("SetScale"); dErr != nil {
		return dErr
	}
	if err := s.ctl.SetScale(scale); err != nil {
		return s.failed("SetScale", err)
	}
	return nil
}

// SetScaleSV sets the secondary dimming factor.
func (s *Server) SetScaleSV(scale uint32) *dbus.Error {
	if dErr := s.allow("SetScaleSV"); dErr != nil {
		return dErr
	}
	if err := s.ctl.SetScaleSV(scale); err != nil {
		return s.failed("SetScaleSV", err)
	}
	return nil
}

// ListProfiles returns the low-power profiles in threshold order.
func (s *Server) ListProfiles() ([]ProfileInfo, *dbus.Error) {
	profiles := s.ctl.Profiles()
	result := make([]ProfileInfo, len(profiles))
	for i, p := range profiles {
		result[i] = ProfileInfo{Name: p.Name, Threshold: p.Threshold}
	}

	log.Debug().Int("count", len(result)).Msg("Listed profiles")
	return result, nil
}

func (s *Server) emit(signal string, args ...any) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}

	if err := conn.Emit(ObjectPath, InterfaceName+"."+signal, args...); err != nil {
		log.Error().Err(err).Str("signal", signal).Msg("Failed to emit signal")
	}
}

func (s *Server) emitBrightnessChanged(brightness uint32) {
	s.emit("BrightnessChanged", brightness)
}

func (s *Server) emitPowerModeChanged() {
	state := s.ctl.State().String()
	log.Info().Str("state", state).Msg("Power mode changed")
	s.emit("PowerModeChanged", state)
}

// NotifyBrightness emits BrightnessChanged for changes made outside the bus,
// e.g. a replay after the panel came back.
func (s *Server) NotifyBrightness() {
	s.emitBrightnessChanged(s.ctl.Brightness())
}
