package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlapUnits(t *testing.T) {
	tests := []struct {
		percent int
		want    int
	}{
		{100, 55},
		{0, 148},
		{50, 118},
		{25, 127},
		{75, 109},
		{1, 136},
		{3, 135},
		{99, 101},
	}

	for _, tt := range tests {
		got, err := FlapUnits(tt.percent)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "FlapUnits(%d)", tt.percent)
	}
}

func TestFlapUnits_Truncates(t *testing.T) {
	prev := 148
	for p := 1; p <= 99; p++ {
		got, err := FlapUnits(p)
		require.NoError(t, err)
		assert.Equal(t, 136-(p*36)/100, got)
		assert.LessOrEqual(t, got, prev, "mapping must not increase at %d%%", p)
		prev = got
	}
}

func TestFlapUnits_OutOfRange(t *testing.T) {
	for _, p := range []int{-1, 101, 1000} {
		_, err := FlapUnits(p)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
}

func TestCommands(t *testing.T) {
	flap, err := Flap(50)
	require.NoError(t, err)
	pulse, err := Pulse(2, 2.5, 100)
	require.NoError(t, err)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"fans on", Fans(true), "FANS 1 1"},
		{"fans off", Fans(false), "FANS 0 0"},
		{"open", Open(), "OPEN"},
		{"close", Close(), "CLOSE"},
		{"heater on", HeaterOn(), "HEAT 0"},
		{"heater off", HeaterOff(), "HEAT 1"},
		{"mist", Mist(2), "MIST 2"},
		{"mist fractional", Mist(2.5), "MIST 2"},
		{"mist stop", Mist(0), "MIST 0"},
		{"flap", flap, "FLAP 118"},
		{"pulse", pulse, "PULSE 2 2.5 55"},
		{"led", LED(255, 50), "LED 255 50"},
		{"new pos", NewPos(-50), "NEW_POS -50"},
		{"get pos", GetPos(), "GET_POS"},
		{"data", Data(), "DATA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestPulse_InvalidPercent(t *testing.T) {
	_, err := Pulse(1, 1, 120)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestParseMotors(t *testing.T) {
	tests := []struct {
		line   string
		want   int
		wantOK bool
	}{
		{"MOTORS -50\r\n", -50, true},
		{"MOTORS 120 extra", 120, true},
		{"MOTORS", 0, false},
		{"MOTORS abc", 0, false},
		{"DEBUG step 3", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseMotors(tt.line)
		assert.Equal(t, tt.wantOK, ok, "line %q", tt.line)
		assert.Equal(t, tt.want, got, "line %q", tt.line)
	}
}

func TestIsReady(t *testing.T) {
	assert.True(t, IsReady("ready\r\n"))
	assert.True(t, IsReady("arduino ready"))
	assert.False(t, IsReady("booting"))
	assert.False(t, IsReady("ready to boot"))
}
