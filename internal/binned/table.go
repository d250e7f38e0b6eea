// SPDX-License-Identifier: GPL-3.0-only

// Package binned holds the ordered set of discrete low-power brightness
// profiles a panel switches between with command sequences instead of levels.
package binned

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/shini4i/backlightd/internal/dsi"
)

// MaxProfiles is the largest number of profiles a table may hold.
const MaxProfiles = 10

// CatchAll is the threshold given to a profile declared without one.
const CatchAll uint32 = math.MaxUint32

var (
	// ErrNoProfiles is returned when a table is built from no declarations.
	ErrNoProfiles = errors.New("no low-power profiles declared")

	// ErrTooManyProfiles is returned when more than MaxProfiles are declared.
	ErrTooManyProfiles = errors.New("too many low-power profiles")

	// ErrDuplicateThreshold is returned when two profiles share a threshold.
	ErrDuplicateThreshold = errors.New("duplicate low-power threshold")

	// ErrNoMatch is returned by Select when no profile covers the brightness.
	ErrNoMatch = errors.New("no low-power profile for brightness")
)

// ConfigError reports a table that could not be built.
type ConfigError struct {
	Profile string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Profile != "" {
		return fmt.Sprintf("low-power profile %q: %v", e.Profile, e.Err)
	}
	return fmt.Sprintf("low-power profiles: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Declaration is a profile as read from configuration, before validation.
type Declaration struct {
	Name         string
	Threshold    *uint32
	Command      string
	CommandState string
}

// Profile is a named low-power tier.
type Profile struct {
	Name      string
	Threshold uint32
	Commands  dsi.CommandSet
}

// Table is an immutable, threshold-ordered set of profiles. It is safe for
// concurrent use.
type Table struct {
	profiles []*Profile
}

// NewTable validates decls and returns them ordered by ascending threshold.
func NewTable(decls []Declaration) (*Table, error) {
	if len(decls) == 0 {
		return nil, &ConfigError{Err: ErrNoProfiles}
	}
	if len(decls) > MaxProfiles {
		return nil, &ConfigError{Err: fmt.Errorf("%w: %d (max %d)", ErrTooManyProfiles, len(decls), MaxProfiles)}
	}

	profiles := make([]*Profile, 0, len(decls))
	for _, d := range decls {
		cmds, err := dsi.ParseCommandSet(d.Command, d.CommandState)
		if err != nil {
			return nil, &ConfigError{Profile: d.Name, Err: err}
		}

		threshold := CatchAll
		if d.Threshold != nil {
			threshold = *d.Threshold
		}

		profiles = append(profiles, &Profile{
			Name:      d.Name,
			Threshold: threshold,
			Commands:  cmds,
		})
	}

	slices.SortStableFunc(profiles, func(a, b *Profile) int {
		return cmp.Compare(a.Threshold, b.Threshold)
	})

	for i := 1; i < len(profiles); i++ {
		if profiles[i].Threshold == profiles[i-1].Threshold {
			return nil, &ConfigError{
				Profile: profiles[i].Name,
				Err:     fmt.Errorf("%w: %d shared with %q", ErrDuplicateThreshold, profiles[i].Threshold, profiles[i-1].Name),
			}
		}
	}

	return &Table{profiles: profiles}, nil
}

// Select returns the first profile whose threshold is at or above brightness.
// Outside low power it returns nil with no error.
func (t *Table) Select(brightness uint32, inLowPower bool) (*Profile, error) {
	if t == nil || !inLowPower {
		return nil, nil
	}
	for _, p := range t.profiles {
		if brightness <= p.Threshold {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrNoMatch, brightness)
}

// Profiles returns the profiles in threshold order.
func (t *Table) Profiles() []Profile {
	if t == nil {
		return nil
	}
	out := make([]Profile, len(t.profiles))
	for i, p := range t.profiles {
		out[i] = *p
	}
	return out
}

// Len returns the number of profiles.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.profiles)
}
