// SPDX-License-Identifier: GPL-3.0-only

// Package backlight coordinates brightness requests with the panel power
// state and decides what, if anything, is sent to the backlight hardware.
package backlight

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/backlightd/internal/binned"
	"github.com/shini4i/backlightd/internal/brightness"
	"github.com/shini4i/backlightd/internal/power"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithProfiles enables binned low-power profiles.
func WithProfiles(table *binned.Table) Option {
	return func(c *Coordinator) {
		c.profiles = table
	}
}

// WithBrightness sets the initial requested brightness.
func WithBrightness(b uint32) Option {
	return func(c *Coordinator) {
		c.brightness = b
	}
}

// Coordinator is the single entry point for brightness and power-mode
// requests of one panel.
//
// Thread safety: every request holds mu for the whole decide-and-dispatch
// sequence, so hardware calls run with the lock held.
type Coordinator struct {
	mu sync.Mutex

	cfg      Config
	levels   LevelSender
	commands CommandSender
	rail     Rail
	panel    Readiness
	profiles *binned.Table
	hw       Hardware

	// live properties
	brightness  uint32
	state       power.State
	poweredDown bool

	// last applied
	lastLevel      uint32
	lastLevelValid bool
	lastState      power.State
	active         *binned.Profile

	updatesAllowed bool
	pending        bool
	closed         bool
}

// New resolves the dispatch strategy for cfg.Type and returns a Coordinator
// that has not applied anything yet.
func New(cfg Config, hw Hardware, opts ...Option) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Scale == 0 {
		cfg.Scale = brightness.MaxScale
	}
	if cfg.ScaleSV == 0 {
		cfg.ScaleSV = brightness.MaxScaleSV
	}

	levels, err := hw.levelSender(cfg.Type)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:            cfg,
		levels:         levels,
		commands:       hw.Commands,
		rail:           hw.Rail,
		panel:          hw.Panel,
		hw:             hw,
		brightness:     cfg.MaxUILevel / 2,
		updatesAllowed: cfg.UpdateFlag != UpdateDelayUntilFirstFrame,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.profiles != nil && c.commands == nil {
		return nil, fmt.Errorf("%w: low-power profiles need a command sender", ErrMissingHardware)
	}
	if err := brightness.ValidateRequest(c.brightness, cfg.params()); err != nil {
		return nil, fmt.Errorf("%w: initial %w", ErrInvalidConfig, err)
	}

	log.Debug().
		Str("type", cfg.Type.String()).
		Uint32("minLevel", cfg.MinLevel).
		Uint32("maxLevel", cfg.MaxLevel).
		Uint32("maxUILevel", cfg.MaxUILevel).
		Int("profiles", c.profiles.Len()).
		Bool("updatesAllowed", c.updatesAllowed).
		Msg("Backlight registered")

	return c, nil
}

// SetBrightness stores a new requested UI brightness and applies it.
func (c *Coordinator) SetBrightness(b uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if err := brightness.ValidateRequest(b, c.cfg.params()); err != nil {
		return err
	}

	c.brightness = b
	return c.update()
}

// Update re-evaluates the current properties.
func (c *Coordinator) Update() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	return c.update()
}

// Refresh forgets the last applied level and profile and re-applies, for use
// after the panel has been (re)initialised.
func (c *Coordinator) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.lastLevelValid = false
	c.active = nil
	return c.update()
}

// SetPowerMode applies a DPMS directive. The rail side effect for a low-power
// edge runs before the new state is committed, then brightness is
// re-evaluated under the new state.
func (c *Coordinator) SetPowerMode(mode power.Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	return c.setPowerMode(mode)
}

func (c *Coordinator) setPowerMode(mode power.Mode) error {
	tr := power.Plan(c.state, mode)

	log.Info().
		Str("mode", mode.String()).
		Str("from", tr.From.String()).
		Str("to", tr.To.String()).
		Msg("Power mode change")

	switch tr.Edge {
	case power.EdgeEnterLP:
		c.setRailMode(RailIdle)
	case power.EdgeExitLP:
		c.setRailMode(RailNormal)
	}

	c.state = tr.To
	c.poweredDown = tr.To&power.Blanked != 0

	return c.update()
}

func (c *Coordinator) setRailMode(mode RailMode) {
	if c.rail == nil {
		return
	}
	log.Debug().Str("mode", mode.String()).Msg("Switching panel rail")
	if err := c.rail.SetRailMode(mode); err != nil {
		log.Warn().Err(err).Str("mode", mode.String()).Msg("Failed to switch panel rail")
	}
}

// SetALPMMode applies an always-on low-power request: 0 leaves low power,
// 1 selects LP1 and anything higher LP2. It is rejected while blanked.
func (c *Coordinator) SetALPMMode(level uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state.Has(power.Blanked) {
		return ErrBlanked
	}

	lp := c.state.LowPowerLevel()
	switch {
	case level == 1 && lp != 1:
		return c.setPowerMode(power.ModeLP1)
	case level > 1 && lp != 2:
		return c.setPowerMode(power.ModeLP2)
	case level == 0 && lp != 0:
		return c.setPowerMode(power.ModeOn)
	}
	return nil
}

// SetUpdatesAllowed opens or closes the update gate. Opening it replays an
// update captured while it was closed.
func (c *Coordinator) SetUpdatesAllowed(allowed bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.updatesAllowed = allowed
	if !allowed || !c.pending {
		return nil
	}

	log.Debug().Msg("Replaying pending backlight update")
	if err := c.update(); err != nil {
		return err
	}
	c.pending = false
	return nil
}

// SetScale sets the global dimming factor, out of brightness.MaxScale.
func (c *Coordinator) SetScale(v uint32) error {
	return c.setScale(&c.cfg.Scale, v, brightness.MaxScale)
}

// SetScaleSV sets the secondary dimming factor, out of brightness.MaxScaleSV.
func (c *Coordinator) SetScaleSV(v uint32) error {
	return c.setScale(&c.cfg.ScaleSV, v, brightness.MaxScaleSV)
}

func (c *Coordinator) setScale(field *uint32, v, limit uint32) error {
	if v > limit {
		return fmt.Errorf("%w: %d (max %d)", ErrScaleOutOfRange, v, limit)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	*field = v
	return c.update()
}

// Suspend forces the backlight off until Resume.
func (c *Coordinator) Suspend() error {
	return c.setSuspended(true)
}

// Resume undoes Suspend.
func (c *Coordinator) Resume() error {
	return c.setSuspended(false)
}

func (c *Coordinator) setSuspended(suspended bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if suspended {
		c.state |= power.Suspended
	} else {
		c.state &^= power.Suspended
	}
	return c.update()
}

// update runs the decide-and-dispatch pipeline. c.mu must be held.
func (c *Coordinator) update() error {
	policy := c.state.Policy()

	requested := c.brightness
	if policy.ForceZero || c.poweredDown {
		requested = 0
	}

	level := brightness.ComputeLevel(requested, c.cfg.params())
	if c.lastLevelValid && level == c.lastLevel && c.state == c.lastState {
		return nil
	}

	if !c.updatesAllowed {
		c.pending = true
		log.Debug().Uint32("level", level).Msg("Backlight update deferred")
		return nil
	}

	if c.panel != nil && !c.panel.Ready() {
		log.Debug().Uint32("level", level).Msg("Panel not ready, recording backlight level")
		c.record(level)
		return nil
	}

	if c.profiles != nil {
		absorbed, err := c.applyProfile(policy.UseProfiles)
		if err != nil {
			return err
		}
		if absorbed {
			c.lastState = c.state
			c.pending = false
			return nil
		}
	}

	if c.levels != nil {
		log.Info().
			Uint32("req", c.brightness).
			Uint32("bl", level).
			Str("state", c.state.String()).
			Msg("Setting backlight")

		if err := c.levels.SendLevel(level); err != nil {
			c.lastLevelValid = false
			return &DispatchError{Level: level, Err: err}
		}
	}

	c.record(level)
	c.pending = false
	return nil
}

// applyProfile selects the low-power profile for the requested brightness and
// sends it when it changes. It reports whether a profile is active, in which
// case no level is sent.
func (c *Coordinator) applyProfile(inLowPower bool) (bool, error) {
	p, err := c.profiles.Select(c.brightness, inLowPower)
	if err != nil {
		// soft: fall back to level dispatch
		log.Warn().Err(err).Uint32("brightness", c.brightness).Msg("Unable to find lp mode")
		p = nil
	}

	if p == c.active {
		return p != nil, nil
	}

	if p == nil {
		log.Debug().Str("from", c.active.Name).Msg("Leaving display lp mode")
		c.active = nil
		c.lastLevelValid = false
		return false, nil
	}

	log.Info().Str("mode", p.Name).Uint32("brightness", c.brightness).Msg("Switching display lp mode")
	if err := c.commands.SendCommands(p.Commands); err != nil {
		c.lastLevelValid = false
		return false, &DispatchError{Profile: p.Name, Err: err}
	}

	c.active = p
	// a level must be sent again once low power ends
	c.lastLevelValid = false
	return true, nil
}

func (c *Coordinator) record(level uint32) {
	c.lastLevel = level
	c.lastLevelValid = true
	c.lastState = c.state
}

// Brightness returns the requested UI brightness.
func (c *Coordinator) Brightness() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.brightness
}

// ActualLevel returns the last applied device level, if any.
func (c *Coordinator) ActualLevel() (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastLevel, c.lastLevelValid
}

// State returns the live power state.
func (c *Coordinator) State() power.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ALPMMode returns 0, 1 or 2 for normal, LP1 and LP2.
func (c *Coordinator) ALPMMode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.LowPowerLevel()
}

// ActiveProfile returns the name of the active low-power profile.
func (c *Coordinator) ActiveProfile() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return "", false
	}
	return c.active.Name, true
}

// Profiles returns the configured low-power profiles in threshold order.
func (c *Coordinator) Profiles() []binned.Profile {
	return c.profiles.Profiles()
}

// Pending reports whether an update is waiting for the gate to open.
func (c *Coordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// MaxBrightness returns the upper bound of the requested brightness range.
func (c *Coordinator) MaxBrightness() uint32 {
	return c.cfg.MaxUILevel
}

// Close releases the hardware collaborators.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for _, cl := range c.hw.closers() {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
