// SPDX-License-Identifier: GPL-3.0-only

package power

// Edge classifies a transition with respect to low power.
type Edge int

const (
	// EdgeNone means the low-power status does not change.
	EdgeNone Edge = iota
	// EdgeEnterLP means a non-LP state becomes an LP state.
	EdgeEnterLP
	// EdgeExitLP means an LP state becomes a non-LP state.
	EdgeExitLP
)

func (e Edge) String() string {
	switch e {
	case EdgeEnterLP:
		return "enter-lp"
	case EdgeExitLP:
		return "exit-lp"
	default:
		return "none"
	}
}

// Transition is the outcome of applying a Mode to a State.
type Transition struct {
	From State
	To   State
	Edge Edge
}

// Next applies mode to s. Blanked and the LP bits are managed independently:
// entering a low-power tier never clears Blanked.
func Next(s State, mode Mode) State {
	switch mode {
	case ModeOn:
		s &^= Blanked | lowPowerMask
	case ModeOff:
		s &^= lowPowerMask
		s |= Blanked
	case ModeLP1:
		s |= LowPower1
		s &^= LowPower2
	case ModeLP2:
		s |= LowPower1 | LowPower2
	}
	return s
}

// Classify returns the low-power edge between two states.
func Classify(from, to State) Edge {
	switch {
	case !from.InLowPower() && to.InLowPower():
		return EdgeEnterLP
	case from.InLowPower() && !to.InLowPower():
		return EdgeExitLP
	default:
		return EdgeNone
	}
}

// Plan computes the next state and its edge classification in one step.
func Plan(s State, mode Mode) Transition {
	to := Next(s, mode)
	return Transition{From: s, To: to, Edge: Classify(s, to)}
}
