// SPDX-License-Identifier: GPL-3.0-only

package panel

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"periph.io/x/conn/v3"

	"github.com/shini4i/backlightd/internal/dsi"
)

// ErrLevelOutOfRange is returned for a level wider than the DCS payload.
var ErrLevelOutOfRange = errors.New("backlight level out of range")

// DCS sends MIPI DCS commands to the panel through a bridge connection.
type DCS struct {
	mu     sync.Mutex
	conn   conn.Conn
	wide   bool
	bus    io.Closer
	sleep  func(time.Duration)
	closed bool
}

// DCSOption is a functional option for configuring a DCS sender.
type DCSOption func(*DCS)

// WithBus hands ownership of the underlying bus to the sender; it is closed
// with the sender.
func WithBus(bus io.Closer) DCSOption {
	return func(d *DCS) {
		d.bus = bus
	}
}

// WithSleep replaces the delay used for command waits.
func WithSleep(fn func(time.Duration)) DCSOption {
	return func(d *DCS) {
		d.sleep = fn
	}
}

// NewDCS returns a sender writing to c. Levels above 0xff are sent as two
// parameter bytes when maxLevel needs them.
func NewDCS(c conn.Conn, maxLevel uint32, opts ...DCSOption) *DCS {
	d := &DCS{
		conn:  c,
		wide:  maxLevel > 0xff,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SendLevel issues set_display_brightness.
func (d *DCS) SendLevel(level uint32) error {
	var payload []byte
	switch {
	case d.wide && level <= 0xffff:
		payload = []byte{dsi.DCSSetDisplayBrightness, byte(level >> 8), byte(level)}
	case !d.wide && level <= 0xff:
		payload = []byte{dsi.DCSSetDisplayBrightness, byte(level)}
	default:
		return fmt.Errorf("%w: %d", ErrLevelOutOfRange, level)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrPanelClosed
	}
	return d.write(payload)
}

// SendCommands transfers every command of cs in order, honouring each
// command's post-transfer wait.
func (d *DCS) SendCommands(cs dsi.CommandSet) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrPanelClosed
	}
	for i, cmd := range cs.Commands {
		if err := d.write(cmd.Payload); err != nil {
			return fmt.Errorf("command %d/%d: %w", i+1, cs.Len(), err)
		}
		if cmd.Wait > 0 {
			d.sleep(cmd.Wait)
		}
	}
	return nil
}

func (d *DCS) write(payload []byte) error {
	if err := d.conn.Tx(payload, nil); err != nil {
		return fmt.Errorf("failed to write dcs 0x%02x: %w", payload[0], err)
	}
	return nil
}

// Close releases the bus if the sender owns it.
func (d *DCS) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if d.bus != nil {
		return d.bus.Close()
	}
	return nil
}
