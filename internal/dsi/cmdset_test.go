package dsi_test

import (
	"testing"
	"time"

	"github.com/shini4i/backlightd/internal/dsi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommandSet(t *testing.T) {
	cs, err := dsi.ParseCommandSet("39 01 00 00 0a 00 03 51 0f ff\n05 01 00 00 00 00 01 39", "dsi_hs_mode")
	require.NoError(t, err)

	assert.Equal(t, dsi.StateHS, cs.State)
	require.Equal(t, 2, cs.Len())

	first := cs.Commands[0]
	assert.Equal(t, byte(0x39), first.DataType)
	assert.True(t, first.Last)
	assert.Equal(t, 10*time.Millisecond, first.Wait)
	assert.Equal(t, []byte{0x51, 0x0f, 0xff}, first.Payload)

	second := cs.Commands[1]
	assert.Equal(t, byte(0x05), second.DataType)
	assert.Equal(t, []byte{0x39}, second.Payload)
}

func TestParseCommandSet_AcceptsPrefixedBytes(t *testing.T) {
	cs, err := dsi.ParseCommandSet("0x15, 0x1, 0x0, 0x0, 0x0, 0x0, 0x2, 0x53, 0x24", "")
	require.NoError(t, err)
	assert.Equal(t, dsi.StateLP, cs.State)
	require.Equal(t, 1, cs.Len())
	assert.Equal(t, []byte{0x53, 0x24}, cs.Commands[0].Payload)
}

func TestParseCommandSet_Errors(t *testing.T) {
	tests := []struct {
		name  string
		blob  string
		state string
		err   error
	}{
		{name: "empty blob", blob: "", err: dsi.ErrMalformed},
		{name: "not hex", blob: "zz 01", err: dsi.ErrMalformed},
		{name: "truncated header", blob: "39 01 00", err: dsi.ErrMalformed},
		{name: "payload shorter than length", blob: "39 01 00 00 00 00 04 51 00", err: dsi.ErrMalformed},
		{name: "zero length payload", blob: "39 01 00 00 00 00 00", err: dsi.ErrMalformed},
		{name: "unknown state", blob: "05 01 00 00 00 00 01 28", state: "dsi_fast_mode", err: dsi.ErrUnknownState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dsi.ParseCommandSet(tt.blob, tt.state)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "dsi_lp_mode", dsi.StateLP.String())
	assert.Equal(t, "dsi_hs_mode", dsi.StateHS.String())
}
