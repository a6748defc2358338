// Package command encodes actuator intents into the ASCII command lines
// understood by the chamber firmware. Lines are returned without the CR-LF
// terminator; the transport appends it.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidArgument is returned when an actuator value is outside the range
// the instrument accepts.
var ErrInvalidArgument = errors.New("invalid argument")

// Firmware command verbs.
const (
	VerbFans   = "FANS"
	VerbOpen   = "OPEN"
	VerbClose  = "CLOSE"
	VerbLED    = "LED"
	VerbMist   = "MIST"
	VerbHeat   = "HEAT"
	VerbFlap   = "FLAP"
	VerbPulse  = "PULSE"
	VerbNewPos = "NEW_POS"
	VerbGetPos = "GET_POS"
	VerbData   = "DATA"
	VerbMotors = "MOTORS"
)

// Heater codes as sent on the wire. The firmware is driven with "0" to turn
// the heater on and "1" to turn it off.
// TODO: confirm polarity against the heater relay wiring in the firmware.
const (
	heatCodeOn  = 0
	heatCodeOff = 1
)

// Flap calibration points in firmware servo units.
const (
	flapFullyOpen   = 55
	flapFullyClosed = 148
	flapBase        = 136
	flapSpan        = 36
)

// ReadySentinel is the token the firmware prints once it accepts commands.
const ReadySentinel = "ready"

// Fans drives both fans to the same state.
func Fans(on bool) string {
	if on {
		return "FANS 1 1"
	}
	return "FANS 0 0"
}

// Open fully opens the flap.
func Open() string { return VerbOpen }

// Close fully closes the flap.
func Close() string { return VerbClose }

// Heat sends a raw heater code.
func Heat(code int) string {
	return fmt.Sprintf("%s %d", VerbHeat, code)
}

// HeaterOn returns the command the host issues to switch the heater on.
func HeaterOn() string { return Heat(heatCodeOn) }

// HeaterOff returns the command the host issues to switch the heater off.
func HeaterOff() string { return Heat(heatCodeOff) }

// Mist requests a mist pulse of the given length. The firmware times the
// pulse itself; fractional seconds are truncated. Mist(0) stops the mister.
func Mist(seconds float64) string {
	return fmt.Sprintf("%s %d", VerbMist, int(seconds))
}

// FlapUnits converts an opening percentage into firmware servo units.
//
// The mapping is the instrument's calibration: 100% is 55, 0% is 148 and
// everything in between is 136 - floor(percent*36/100).
func FlapUnits(percent int) (int, error) {
	if percent < 0 || percent > 100 {
		return 0, fmt.Errorf("flap percent %d outside [0,100]: %w", percent, ErrInvalidArgument)
	}
	switch percent {
	case 100:
		return flapFullyOpen, nil
	case 0:
		return flapFullyClosed, nil
	}
	return flapBase - percent*flapSpan/100, nil
}

// Flap positions the flap at the given opening percentage.
func Flap(percent int) (string, error) {
	units, err := FlapUnits(percent)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %d", VerbFlap, units), nil
}

// Pulse opens the flap to percent after delay seconds and closes it again
// after a further duration seconds.
func Pulse(delay, duration float64, percent int) (string, error) {
	units, err := FlapUnits(percent)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s %d", VerbPulse, FormatNumber(delay), FormatNumber(duration), units), nil
}

// LED sets LED brightness with the given PWM divisor.
func LED(value, divisor int) string {
	return fmt.Sprintf("%s %d %d", VerbLED, value, divisor)
}

// NewPos moves the linear actuator to an absolute position.
func NewPos(pos int) string {
	return fmt.Sprintf("%s %d", VerbNewPos, pos)
}

// GetPos asks the firmware for the actuator position.
func GetPos() string { return VerbGetPos }

// Data requests one telemetry line.
func Data() string { return VerbData }

// ParseMotors extracts the position from a "MOTORS <pos>" response.
func ParseMotors(line string) (int, bool) {
	line = strings.Trim(line, "\r\n ")
	if !strings.HasPrefix(line, VerbMotors) {
		return 0, false
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, false
	}
	pos, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return pos, true
}

// IsReady reports whether line is the firmware ready sentinel.
func IsReady(line string) bool {
	return strings.HasSuffix(strings.TrimRight(line, "\r\n"), ReadySentinel)
}

// FormatNumber renders a number in its shortest decimal form: 2, 2.5, 0.25.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
