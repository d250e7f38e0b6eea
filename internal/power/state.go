// SPDX-License-Identifier: GPL-3.0-only

// Package power models the panel's DPMS and low-power state bits and the
// transitions between them.
package power

import (
	"fmt"
	"strings"
)

// State is a bit set over the panel power flags.
type State uint32

const (
	// Blanked means the display core is powered down.
	Blanked State = 1 << iota
	// Suspended means the backlight core is suspended.
	Suspended
	// LowPower1 is set in either low-power tier.
	LowPower1
	// LowPower2 is set only in the deeper low-power tier.
	LowPower2
)

// Normal is the fully powered, unblanked state.
const Normal State = 0

const lowPowerMask = LowPower1 | LowPower2

// InLowPower reports whether any low-power bit is set.
func (s State) InLowPower() bool {
	return s&lowPowerMask != 0
}

// LowPowerLevel returns 2 in LP2, 1 in LP1 and 0 otherwise.
func (s State) LowPowerLevel() int {
	switch {
	case s&LowPower2 != 0:
		return 2
	case s&LowPower1 != 0:
		return 1
	default:
		return 0
	}
}

// Has reports whether all bits in flags are set.
func (s State) Has(flags State) bool {
	return s&flags == flags
}

func (s State) String() string {
	if s == Normal {
		return "normal"
	}
	var parts []string
	for _, f := range []struct {
		bit  State
		name string
	}{
		{Blanked, "blanked"},
		{Suspended, "suspended"},
		{LowPower1, "lp1"},
		{LowPower2, "lp2"},
	} {
		if s&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// Policy describes how brightness updates are treated in a state.
type Policy struct {
	// ForceZero drives the backlight off regardless of the requested brightness.
	ForceZero bool
	// UseProfiles selects a binned low-power profile instead of a level.
	UseProfiles bool
}

// Policy returns the update policy for s.
func (s State) Policy() Policy {
	return Policy{
		ForceZero:   s&(Blanked|Suspended) != 0,
		UseProfiles: s.InLowPower(),
	}
}

// Mode is a DPMS power-mode directive.
type Mode int

const (
	// ModeOn unblanks and leaves low power.
	ModeOn Mode = iota
	// ModeOff blanks the panel.
	ModeOff
	// ModeLP1 enters the first low-power tier.
	ModeLP1
	// ModeLP2 enters the second low-power tier.
	ModeLP2
)

var modeNames = map[Mode]string{
	ModeOn:  "on",
	ModeOff: "off",
	ModeLP1: "lp1",
	ModeLP2: "lp2",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode converts "on", "off", "lp1" or "lp2" into a Mode.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for m, n := range modeNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown power mode %q", s)
}
