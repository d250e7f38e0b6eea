package backlight_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/shini4i/backlightd/internal/backlight"
	"github.com/shini4i/backlightd/internal/backlight/mocks"
	"github.com/shini4i/backlightd/internal/binned"
	"github.com/shini4i/backlightd/internal/dsi"
	"github.com/shini4i/backlightd/internal/power"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// Device codes for a 0..4095 panel with a 255 UI range at full scale.
const (
	level40  uint32 = 630
	level100 uint32 = 1597
	level128 uint32 = 2048
)

func dcsConfig() backlight.Config {
	return backlight.Config{
		Type:       backlight.TypeDCS,
		MinLevel:   0,
		MaxLevel:   4095,
		MaxUILevel: 255,
	}
}

func ptr(v uint32) *uint32 { return &v }

func threeTierTable(t *testing.T) *binned.Table {
	t.Helper()
	table, err := binned.NewTable([]binned.Declaration{
		{Name: "bright", Command: "39 01 00 00 00 00 02 51 ff"},
		{Name: "dim", Threshold: ptr(50), Command: "39 01 00 00 00 00 02 51 10"},
		{Name: "medium", Threshold: ptr(150), Command: "39 01 00 00 00 00 02 51 80"},
	})
	require.NoError(t, err)
	return table
}

func profileCommands(t *testing.T, table *binned.Table, name string) dsi.CommandSet {
	t.Helper()
	for _, p := range table.Profiles() {
		if p.Name == name {
			return p.Commands
		}
	}
	t.Fatalf("profile %q not found", name)
	return dsi.CommandSet{}
}

type fixture struct {
	levels   *mocks.MockLevelSender
	commands *mocks.MockCommandSender
	rail     *mocks.MockRail
	hw       backlight.Hardware
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		levels:   mocks.NewMockLevelSender(ctrl),
		commands: mocks.NewMockCommandSender(ctrl),
		rail:     mocks.NewMockRail(ctrl),
	}
	f.hw = backlight.Hardware{DCS: f.levels, Commands: f.commands, Rail: f.rail}
	return f
}

func TestCoordinator_SetBrightness_SuppressesRepeats(t *testing.T) {
	f := newFixture(t)
	f.levels.EXPECT().SendLevel(level128).Return(nil).Times(1)

	c, err := backlight.New(dcsConfig(), f.hw)
	require.NoError(t, err)

	require.NoError(t, c.SetBrightness(128))
	require.NoError(t, c.SetBrightness(128))

	actual, ok := c.ActualLevel()
	assert.True(t, ok)
	assert.Equal(t, level128, actual)
	assert.Equal(t, uint32(128), c.Brightness())
}

func TestCoordinator_SetBrightness_RejectsOutOfRange(t *testing.T) {
	f := newFixture(t)

	c, err := backlight.New(dcsConfig(), f.hw)
	require.NoError(t, err)

	err = c.SetBrightness(256)
	require.Error(t, err)
	assert.Equal(t, uint32(127), c.Brightness())
}

func TestCoordinator_ZeroBrightness(t *testing.T) {
	f := newFixture(t)
	gomock.InOrder(
		f.levels.EXPECT().SendLevel(level128).Return(nil),
		f.levels.EXPECT().SendLevel(uint32(0)).Return(nil),
	)

	c, err := backlight.New(dcsConfig(), f.hw)
	require.NoError(t, err)

	require.NoError(t, c.SetBrightness(128))
	require.NoError(t, c.SetBrightness(0))
}

func TestCoordinator_DispatchFailure(t *testing.T) {
	f := newFixture(t)
	gomock.InOrder(
		f.levels.EXPECT().SendLevel(level128).Return(nil),
		f.levels.EXPECT().SendLevel(level100).Return(errors.New("dsi link down")),
		f.levels.EXPECT().SendLevel(level100).Return(nil),
	)

	c, err := backlight.New(dcsConfig(), f.hw)
	require.NoError(t, err)
	require.NoError(t, c.SetBrightness(128))

	err = c.SetBrightness(100)
	require.Error(t, err)
	var dispatchErr *backlight.DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, level100, dispatchErr.Level)
	assert.Contains(t, err.Error(), "dsi link down")

	_, ok := c.ActualLevel()
	assert.False(t, ok, "failed dispatch must invalidate the applied level")

	// the same request goes out again
	require.NoError(t, c.SetBrightness(100))
}

func TestCoordinator_DeferredUntilGateOpens(t *testing.T) {
	f := newFixture(t)
	cfg := dcsConfig()
	cfg.UpdateFlag = backlight.UpdateDelayUntilFirstFrame

	c, err := backlight.New(cfg, f.hw)
	require.NoError(t, err)

	require.NoError(t, c.SetBrightness(128))
	assert.True(t, c.Pending())
	_, ok := c.ActualLevel()
	assert.False(t, ok)

	f.levels.EXPECT().SendLevel(level128).Return(nil).Times(1)
	require.NoError(t, c.SetUpdatesAllowed(true))
	assert.False(t, c.Pending())

	// opening an already open gate replays nothing
	require.NoError(t, c.SetUpdatesAllowed(true))
}

func TestCoordinator_ClosingGateDefersAgain(t *testing.T) {
	f := newFixture(t)
	f.levels.EXPECT().SendLevel(level128).Return(nil)

	c, err := backlight.New(dcsConfig(), f.hw)
	require.NoError(t, err)
	require.NoError(t, c.SetBrightness(128))

	require.NoError(t, c.SetUpdatesAllowed(false))
	require.NoError(t, c.SetBrightness(100))
	assert.True(t, c.Pending())

	f.levels.EXPECT().SendLevel(level100).Return(nil)
	require.NoError(t, c.SetUpdatesAllowed(true))
	assert.False(t, c.Pending())
}

func TestCoordinator_PowerOffAndOn(t *testing.T) {
	f := newFixture(t)
	gomock.InOrder(
		f.levels.EXPECT().SendLevel(level128).Return(nil),
		f.levels.EXPECT().SendLevel(uint32(0)).Return(nil),
		f.levels.EXPECT().SendLevel(level128).Return(nil),
	)

	c, err := backlight.New(dcsConfig(), f.hw)
	require.NoError(t, err)

	require.NoError(t, c.SetBrightness(128))
	require.NoError(t, c.SetPowerMode(power.ModeOff))
	assert.Equal(t, power.Blanked, c.State())

	// brightness changes while blanked stay at zero
	require.NoError(t, c.SetBrightness(128))

	require.NoError(t, c.SetPowerMode(power.ModeOn))
	assert.Equal(t, power.Normal, c.State())
}

func TestCoordinator_SuspendResume(t *testing.T) {
	f := newFixture(t)
	gomock.InOrder(
		f.levels.EXPECT().SendLevel(level128).Return(nil),
		f.levels.EXPECT().SendLevel(uint32(0)).Return(nil),
		f.levels.EXPECT().SendLevel(level128).Return(nil),
	)

	c, err := backlight.New(dcsConfig(), f.hw)
	require.NoError(t, err)

	require.NoError(t, c.SetBrightness(128))
	require.NoError(t, c.Suspend())
	assert.True(t, c.State().Has(power.Suspended))
	require.NoError(t, c.Resume())
}

func TestCoordinator_BinnedProfiles(t *testing.T) {
	f := newFixture(t)
	table := threeTierTable(t)

	gomock.InOrder(
		f.levels.EXPECT().SendLevel(level40).Return(nil),
		f.rail.EXPECT().SetRailMode(backlight.RailIdle).Return(nil),
		f.commands.EXPECT().SendCommands(profileCommands(t, table, "dim")).Return(nil),
		f.commands.EXPECT().SendCommands(profileCommands(t, table, "medium")).Return(nil),
		f.rail.EXPECT().SetRailMode(backlight.RailNormal).Return(nil),
		f.levels.EXPECT().SendLevel(level100).Return(nil),
	)

	c, err := backlight.New(dcsConfig(), f.hw, backlight.WithProfiles(table))
	require.NoError(t, err)

	require.NoError(t, c.SetBrightness(40))
	require.NoError(t, c.SetPowerMode(power.ModeLP1))

	name, ok := c.ActiveProfile()
	require.True(t, ok)
	assert.Equal(t, "dim", name)
	assert.Equal(t, 1, c.ALPMMode())

	// same profile absorbs brightness changes
	require.NoError(t, c.SetBrightness(40))
	require.NoError(t, c.SetBrightness(45))

	require.NoError(t, c.SetBrightness(100))
	name, _ = c.ActiveProfile()
	assert.Equal(t, "medium", name)

	require.NoError(t, c.SetPowerMode(power.ModeOn))
	_, ok = c.ActiveProfile()
	assert.False(t, ok)
	actual, ok := c.ActualLevel()
	require.True(t, ok)
	assert.Equal(t, level100, actual)
}

func TestCoordinator_ExitLowPowerResendsSameLevel(t *testing.T) {
	f := newFixture(t)
	table := threeTierTable(t)

	gomock.InOrder(
		f.levels.EXPECT().SendLevel(level40).Return(nil),
		f.rail.EXPECT().SetRailMode(backlight.RailIdle).Return(nil),
		f.commands.EXPECT().SendCommands(profileCommands(t, table, "dim")).Return(nil),
		f.rail.EXPECT().SetRailMode(backlight.RailNormal).Return(nil),
		f.levels.EXPECT().SendLevel(level40).Return(nil),
	)

	c, err := backlight.New(dcsConfig(), f.hw, backlight.WithProfiles(table))
	require.NoError(t, err)

	require.NoError(t, c.SetBrightness(40))
	require.NoError(t, c.SetPowerMode(power.ModeLP1))
	_, ok := c.ActualLevel()
	assert.False(t, ok, "active profile invalidates the applied level")

	require.NoError(t, c.SetPowerMode(power.ModeOn))
}

func TestCoordinator_LP1ToLP2KeepsRail(t *testing.T) {
	f := newFixture(t)
	table := threeTierTable(t)

	gomock.InOrder(
		f.levels.EXPECT().SendLevel(level40).Return(nil),
		f.rail.EXPECT().SetRailMode(backlight.RailIdle).Return(nil).Times(1),
		f.commands.EXPECT().SendCommands(gomock.Any()).Return(nil).Times(1),
	)

	c, err := backlight.New(dcsConfig(), f.hw, backlight.WithProfiles(table))
	require.NoError(t, err)

	require.NoError(t, c.SetBrightness(40))
	require.NoError(t, c.SetPowerMode(power.ModeLP1))
	require.NoError(t, c.SetPowerMode(power.ModeLP2))
	assert.Equal(t, 2, c.ALPMMode())
}

func TestCoordinator_RailFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	table := threeTierTable(t)

	f.levels.EXPECT().SendLevel(level40).Return(nil)
	f.rail.EXPECT().SetRailMode(backlight.RailIdle).Return(errors.New("regulator busy"))
	f.commands.EXPECT().SendCommands(profileCommands(t, table, "dim")).Return(nil)

	c, err := backlight.New(dcsConfig(), f.hw, backlight.WithProfiles(table))
	require.NoError(t, err)

	require.NoError(t, c.SetBrightness(40))
	require.NoError(t, c.SetPowerMode(power.ModeLP1))
	assert.Equal(t, power.LowPower1, c.State())
}

func TestCoordinator_ProfileDispatchFailure(t *testing.T) {
	f := newFixture(t)
	table := threeTierTable(t)
	dim := profileCommands(t, table, "dim")

	gomock.InOrder(
		f.levels.EXPECT().SendLevel(level40).Return(nil),
		f.rail.EXPECT().SetRailMode(backlight.RailIdle).Return(nil),
		f.commands.EXPECT().SendCommands(dim).Return(errors.New("nack")),
		f.commands.EXPECT().SendCommands(dim).Return(nil),
	)

	c, err := backlight.New(dcsConfig(), f.hw, backlight.WithProfiles(table))
	require.NoError(t, err)
	require.NoError(t, c.SetBrightness(40))

	err = c.SetPowerMode(power.ModeLP1)
	var dispatchErr *backlight.DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, "dim", dispatchErr.Profile)
	_, ok := c.ActiveProfile()
	assert.False(t, ok)

	require.NoError(t, c.Update())
	name, ok := c.ActiveProfile()
	require.True(t, ok)
	assert.Equal(t, "dim", name)
}

func TestCoordinator_NoMatchingProfileFallsBackToLevel(t *testing.T) {
	f := newFixture(t)
	table, err := binned.NewTable([]binned.Declaration{
		{Name: "dim", Threshold: ptr(50), Command: "39 01 00 00 00 00 02 51 10"},
	})
	require.NoError(t, err)

	gomock.InOrder(
		f.levels.EXPECT().SendLevel(level100).Return(nil),
		f.rail.EXPECT().SetRailMode(backlight.RailIdle).Return(nil),
		f.levels.EXPECT().SendLevel(level100).Return(nil),
	)

	c, err := backlight.New(dcsConfig(), f.hw, backlight.WithProfiles(table))
	require.NoError(t, err)

	require.NoError(t, c.SetBrightness(100))
	require.NoError(t, c.SetPowerMode(power.ModeLP1))
	_, ok := c.ActiveProfile()
	assert.False(t, ok)
}

func TestCoordinator_ProfilesIgnoredOutsideLowPower(t *testing.T) {
	f := newFixture(t)
	f.levels.EXPECT().SendLevel(level40).Return(nil)

	c, err := backlight.New(dcsConfig(), f.hw, backlight.WithProfiles(threeTierTable(t)))
	require.NoError(t, err)

	require.NoError(t, c.SetBrightness(40))
	_, ok := c.ActiveProfile()
	assert.False(t, ok)
	assert.Len(t, c.Profiles(), 3)
}

func TestCoordinator_SetALPMMode(t *testing.T) {
	f := newFixture(t)
	f.levels.EXPECT().SendLevel(gomock.Any()).Return(nil).AnyTimes()
	f.rail.EXPECT().SetRailMode(gomock.Any()).Return(nil).AnyTimes()
	f.commands.EXPECT().SendCommands(gomock.Any()).Return(nil).AnyTimes()

	c, err := backlight.New(dcsConfig(), f.hw, backlight.WithProfiles(threeTierTable(t)))
	require.NoError(t, err)

	require.NoError(t, c.SetALPMMode(1))
	assert.Equal(t, power.LowPower1, c.State())

	require.NoError(t, c.SetALPMMode(3))
	assert.Equal(t, power.LowPower1|power.LowPower2, c.State())

	require.NoError(t, c.SetALPMMode(0))
	assert.Equal(t, power.Normal, c.State())

	require.NoError(t, c.SetPowerMode(power.ModeOff))
	assert.ErrorIs(t, c.SetALPMMode(1), backlight.ErrBlanked)
}

func TestCoordinator_SetScale(t *testing.T) {
	f := newFixture(t)
	gomock.InOrder(
		f.levels.EXPECT().SendLevel(level128).Return(nil),
		f.levels.EXPECT().SendLevel(uint32(1016)).Return(nil),
	)

	c, err := backlight.New(dcsConfig(), f.hw)
	require.NoError(t, err)
	require.NoError(t, c.SetBrightness(128))

	assert.ErrorIs(t, c.SetScale(2048), backlight.ErrScaleOutOfRange)
	assert.ErrorIs(t, c.SetScaleSV(70000), backlight.ErrScaleOutOfRange)

	require.NoError(t, c.SetScale(512))
	// full-scale SV leaves the level alone
	require.NoError(t, c.SetScaleSV(65535))
}

func TestCoordinator_PanelNotReady(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	ready := mocks.NewMockReadiness(ctrl)
	f.hw.Panel = ready

	ready.EXPECT().Ready().Return(false)

	c, err := backlight.New(dcsConfig(), f.hw)
	require.NoError(t, err)

	require.NoError(t, c.SetBrightness(128))
	actual, ok := c.ActualLevel()
	require.True(t, ok)
	assert.Equal(t, level128, actual)

	ready.EXPECT().Ready().Return(true)
	f.levels.EXPECT().SendLevel(level128).Return(nil)
	require.NoError(t, c.Refresh())
}

func TestCoordinator_WLEDRecordsOnly(t *testing.T) {
	cfg := dcsConfig()
	cfg.Type = backlight.TypeWLED

	c, err := backlight.New(cfg, backlight.Hardware{})
	require.NoError(t, err)

	require.NoError(t, c.SetBrightness(128))
	actual, ok := c.ActualLevel()
	require.True(t, ok)
	assert.Equal(t, level128, actual)
}

func TestNew_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		cfg  backlight.Config
		hw   backlight.Hardware
		opts []backlight.Option
		err  error
	}{
		{
			name: "unknown type",
			cfg:  backlight.Config{Type: backlight.TypeUnknown, MaxLevel: 255, MaxUILevel: 255},
			hw:   f.hw,
			err:  backlight.ErrUnsupportedType,
		},
		{
			name: "pwm without a pwm sender",
			cfg:  backlight.Config{Type: backlight.TypePWM, MaxLevel: 255, MaxUILevel: 255},
			hw:   f.hw,
			err:  backlight.ErrMissingHardware,
		},
		{
			name: "max below min",
			cfg:  backlight.Config{Type: backlight.TypeDCS, MinLevel: 10, MaxLevel: 5, MaxUILevel: 255},
			hw:   f.hw,
			err:  backlight.ErrInvalidConfig,
		},
		{
			name: "zero ui range",
			cfg:  backlight.Config{Type: backlight.TypeDCS, MaxLevel: 255},
			hw:   f.hw,
			err:  backlight.ErrInvalidConfig,
		},
		{
			name: "scale above full scale",
			cfg:  backlight.Config{Type: backlight.TypeDCS, MaxLevel: 255, MaxUILevel: 255, Scale: 4096},
			hw:   f.hw,
			err:  backlight.ErrScaleOutOfRange,
		},
		{
			name: "profiles without command sender",
			cfg:  dcsConfig(),
			hw:   backlight.Hardware{DCS: f.levels},
			opts: []backlight.Option{backlight.WithProfiles(threeTierTable(t))},
			err:  backlight.ErrMissingHardware,
		},
		{
			name: "initial brightness above range",
			cfg:  dcsConfig(),
			hw:   f.hw,
			opts: []backlight.Option{backlight.WithBrightness(300)},
			err:  backlight.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := backlight.New(tt.cfg, tt.hw, tt.opts...)
			assert.Nil(t, c)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

type closingSender struct {
	closed int
}

func (s *closingSender) SendLevel(uint32) error { return nil }

func (s *closingSender) Close() error {
	s.closed++
	return nil
}

func TestCoordinator_Close(t *testing.T) {
	sender := &closingSender{}
	c, err := backlight.New(dcsConfig(), backlight.Hardware{DCS: sender, External: sender})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.Equal(t, 1, sender.closed, "shared collaborators are closed once")

	require.NoError(t, c.Close())
	assert.Equal(t, 1, sender.closed)

	assert.ErrorIs(t, c.SetBrightness(10), backlight.ErrClosed)
	assert.ErrorIs(t, c.SetPowerMode(power.ModeOn), backlight.ErrClosed)
	assert.ErrorIs(t, c.SetUpdatesAllowed(true), backlight.ErrClosed)
}

// countingSender records levels without a mock so it can be shared across
// goroutines.
type countingSender struct {
	mu     sync.Mutex
	levels []uint32
}

func (s *countingSender) SendLevel(level uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels = append(s.levels, level)
	return nil
}

func TestCoordinator_ConcurrentRequests(t *testing.T) {
	sender := &countingSender{}
	c, err := backlight.New(dcsConfig(), backlight.Hardware{DCS: sender})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(b uint32) {
			defer wg.Done()
			assert.NoError(t, c.SetBrightness(b))
		}(uint32(i * 30))
		go func(off bool) {
			defer wg.Done()
			mode := power.ModeOn
			if off {
				mode = power.ModeOff
			}
			assert.NoError(t, c.SetPowerMode(mode))
		}(i%2 == 0)
	}
	wg.Wait()

	require.NoError(t, c.SetPowerMode(power.ModeOn))
	require.NoError(t, c.SetBrightness(128))

	actual, ok := c.ActualLevel()
	require.True(t, ok)
	assert.Equal(t, level128, actual)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Equal(t, level128, sender.levels[len(sender.levels)-1])
}

func TestParseType(t *testing.T) {
	assert.Equal(t, backlight.TypePWM, backlight.ParseType("bl_ctrl_pwm"))
	assert.Equal(t, backlight.TypeWLED, backlight.ParseType("bl_ctrl_wled"))
	assert.Equal(t, backlight.TypeDCS, backlight.ParseType("bl_ctrl_dcs"))
	assert.Equal(t, backlight.TypeExternal, backlight.ParseType("bl_ctrl_external"))
	assert.Equal(t, backlight.TypeUnknown, backlight.ParseType("bl_ctrl_magic"))
	assert.Equal(t, backlight.TypeUnknown, backlight.ParseType("unknown"))
	assert.Equal(t, "bl_ctrl_dcs", backlight.TypeDCS.String())
}

func TestParseUpdateFlag(t *testing.T) {
	assert.Equal(t, backlight.UpdateDelayUntilFirstFrame, backlight.ParseUpdateFlag("delay_until_first_frame"))
	assert.Equal(t, backlight.UpdateNone, backlight.ParseUpdateFlag(""))
	assert.Equal(t, backlight.UpdateNone, backlight.ParseUpdateFlag("whenever"))
}
