// SPDX-License-Identifier: GPL-3.0-only

package backlight

//go:generate mockgen -source=dispatch.go -destination=mocks/dispatch_mock.go -package=mocks

import (
	"fmt"
	"io"

	"github.com/shini4i/backlightd/internal/dsi"
)

// LevelSender applies a device backlight code.
type LevelSender interface {
	SendLevel(level uint32) error
}

// CommandSender transfers a panel command set.
type CommandSender interface {
	SendCommands(cs dsi.CommandSet) error
}

// RailMode is the operating mode of the panel supply rail.
type RailMode int

const (
	// RailNormal is full regulation.
	RailNormal RailMode = iota
	// RailIdle is the low-power regulation used while the panel is in LP.
	RailIdle
)

func (m RailMode) String() string {
	if m == RailIdle {
		return "idle"
	}
	return "normal"
}

// Rail switches the supply rail mode on low-power edges.
type Rail interface {
	SetRailMode(mode RailMode) error
}

// Readiness reports whether the panel accepts commands.
type Readiness interface {
	Ready() bool
}

// Hardware bundles the collaborators a Coordinator may dispatch to. Only the
// level sender matching Config.Type is used.
type Hardware struct {
	PWM      LevelSender
	DCS      LevelSender
	External LevelSender
	Commands CommandSender
	Rail     Rail
	Panel    Readiness
}

// levelSender resolves the level strategy for t. WLED has no strategy: the
// level is recorded but applied elsewhere.
func (h Hardware) levelSender(t Type) (LevelSender, error) {
	var s LevelSender
	switch t {
	case TypeWLED:
		return nil, nil
	case TypePWM:
		s = h.PWM
	case TypeDCS:
		s = h.DCS
	case TypeExternal:
		s = h.External
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	if s == nil {
		return nil, fmt.Errorf("%w: no sender for %s", ErrMissingHardware, t)
	}
	return s, nil
}

// closers returns the distinct collaborators that hold resources.
func (h Hardware) closers() []io.Closer {
	var out []io.Closer
	seen := make(map[any]bool)
	for _, v := range []any{h.PWM, h.DCS, h.External, h.Commands, h.Rail, h.Panel} {
		c, ok := v.(io.Closer)
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, c)
	}
	return out
}
