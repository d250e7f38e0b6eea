// SPDX-License-Identifier: GPL-3.0-only

package panel

import "sync/atomic"

// Readiness tracks whether the panel is initialised and accepts commands.
type Readiness struct {
	ready atomic.Bool
}

// NewReadiness returns a tracker with the given initial value.
func NewReadiness(ready bool) *Readiness {
	r := &Readiness{}
	r.ready.Store(ready)
	return r
}

// Ready implements backlight.Readiness.
func (r *Readiness) Ready() bool {
	return r.ready.Load()
}

// SetReady records a panel (de)initialisation. It reports whether the value
// changed.
func (r *Readiness) SetReady(ready bool) bool {
	return r.ready.Swap(ready) != ready
}
