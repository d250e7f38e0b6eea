// SPDX-License-Identifier: GPL-3.0-only

// Package brightness maps a caller-facing UI brightness value into the device
// backlight code understood by the panel driver.
package brightness

import (
	"errors"
	"fmt"
)

const (
	// MaxScale is the full-scale value of the global (ambient) dimming factor.
	MaxScale uint32 = 1024

	// MaxScaleSV is the full-scale value of the secondary dimming factor.
	MaxScaleSV uint32 = 65535

	// MaxRequest is the widest brightness value a request may carry.
	MaxRequest uint32 = 0xffff
)

// ErrOutOfRange is returned when a requested brightness cannot be represented.
var ErrOutOfRange = errors.New("brightness out of range")

// Params holds the device range and dimming factors used by ComputeLevel.
type Params struct {
	MinLevel   uint32
	MaxLevel   uint32
	MaxUILevel uint32
	Scale      uint32
	ScaleSV    uint32
}

// FullScale returns p with both dimming factors set to no attenuation.
func (p Params) FullScale() Params {
	p.Scale = MaxScale
	p.ScaleSV = MaxScaleSV
	return p
}

// EffectiveMin returns the lowest code produced for a non-zero request.
func (p Params) EffectiveMin() uint32 {
	if p.MinLevel == 0 {
		return 1
	}
	return p.MinLevel
}

// ValidateRequest rejects brightness values the scaler must never see.
func ValidateRequest(requested uint32, p Params) error {
	if requested > MaxRequest || requested > p.MaxUILevel {
		return fmt.Errorf("%w: %d (max %d)", ErrOutOfRange, requested, p.MaxUILevel)
	}
	return nil
}

// ComputeLevel converts a UI brightness into a device code. Zero stays zero;
// any other value lands in [EffectiveMin, MaxLevel].
func ComputeLevel(requested uint32, p Params) uint32 {
	if requested == 0 {
		return 0
	}

	floor := p.EffectiveMin()
	var span uint64
	if p.MaxLevel > floor {
		span = uint64(p.MaxLevel - floor)
	}

	scaled := MultFrac(uint64(requested), uint64(p.Scale), uint64(MaxScale))
	scaled = MultFrac(scaled, uint64(p.ScaleSV), uint64(MaxScaleSV))

	var level uint64
	if scaled > 1 && p.MaxUILevel > 1 {
		level = DivRoundClosest((scaled-1)*span, uint64(p.MaxUILevel-1))
	}
	if level > span {
		level = span
	}

	return uint32(level) + floor
}

// MultFrac computes x*n/d without overflowing the intermediate product.
// The remainder term truncates, so the result matches integer fraction maths.
func MultFrac(x, n, d uint64) uint64 {
	if d == 0 {
		return 0
	}
	q := x / d
	r := x % d
	return q*n + r*n/d
}

// DivRoundClosest divides a by b rounding half up.
func DivRoundClosest(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b/2) / b
}
