// SPDX-License-Identifier: GPL-3.0-only

// Package dsi describes MIPI DSI panel command sets and parses them from the
// packed byte format used by panel configuration blobs.
package dsi

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DCSSetDisplayBrightness is the MIPI DCS opcode for set_display_brightness.
const DCSSetDisplayBrightness byte = 0x51

// headerSize is dtype, last, vc, ack, wait and a two byte payload length.
const headerSize = 7

var (
	// ErrMalformed is returned when a packed command blob cannot be decoded.
	ErrMalformed = errors.New("malformed dsi command payload")

	// ErrUnknownState is returned for a command-set state other than LP or HS.
	ErrUnknownState = errors.New("unknown dsi command state")
)

// State selects the link mode used to transmit a command set.
type State int

const (
	// StateLP transmits in low-power (escape) mode.
	StateLP State = iota
	// StateHS transmits in high-speed mode.
	StateHS
)

func (s State) String() string {
	if s == StateHS {
		return "dsi_hs_mode"
	}
	return "dsi_lp_mode"
}

// ParseState parses a command-set state; an empty string means LP.
func ParseState(s string) (State, error) {
	switch strings.TrimSpace(s) {
	case "", "dsi_lp_mode":
		return StateLP, nil
	case "dsi_hs_mode":
		return StateHS, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownState, s)
	}
}

// Command is a single DSI packet.
type Command struct {
	DataType byte
	Last     bool
	Channel  byte
	Ack      bool
	Wait     time.Duration
	Payload  []byte
}

// CommandSet is an ordered sequence of commands sent as one transfer.
type CommandSet struct {
	State    State
	Commands []Command
}

// Len returns the number of commands in the set.
func (cs CommandSet) Len() int {
	return len(cs.Commands)
}

// ParseCommandSet decodes a packed command blob written as hex bytes
// (whitespace, commas and 0x prefixes are ignored).
func ParseCommandSet(blob, state string) (CommandSet, error) {
	st, err := ParseState(state)
	if err != nil {
		return CommandSet{}, err
	}

	raw, err := decodeHex(blob)
	if err != nil {
		return CommandSet{}, err
	}

	cmds, err := Unpack(raw)
	if err != nil {
		return CommandSet{}, err
	}

	return CommandSet{State: st, Commands: cmds}, nil
}

// Unpack walks a packed command buffer.
func Unpack(raw []byte) ([]Command, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformed)
	}

	var cmds []Command
	for off := 0; off < len(raw); {
		if len(raw)-off < headerSize {
			return nil, fmt.Errorf("%w: truncated header at offset %d", ErrMalformed, off)
		}
		hdr := raw[off : off+headerSize]
		dlen := int(binary.BigEndian.Uint16(hdr[5:7]))
		off += headerSize
		if dlen == 0 || len(raw)-off < dlen {
			return nil, fmt.Errorf("%w: bad payload length %d at offset %d", ErrMalformed, dlen, off)
		}

		payload := make([]byte, dlen)
		copy(payload, raw[off:off+dlen])
		off += dlen

		cmds = append(cmds, Command{
			DataType: hdr[0],
			Last:     hdr[1] != 0,
			Channel:  hdr[2],
			Ack:      hdr[3] != 0,
			Wait:     time.Duration(hdr[4]) * time.Millisecond,
			Payload:  payload,
		})
	}
	return cmds, nil
}

func decodeHex(blob string) ([]byte, error) {
	fields := strings.FieldsFunc(blob, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ','
	})

	var sb strings.Builder
	for _, f := range fields {
		f = strings.TrimPrefix(strings.TrimPrefix(f, "0x"), "0X")
		if len(f) == 1 {
			sb.WriteByte('0')
		}
		sb.WriteString(f)
	}

	raw, err := hex.DecodeString(sb.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return raw, nil
}
