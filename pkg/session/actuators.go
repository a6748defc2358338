package session

import (
	"context"
	"fmt"
	"strconv"

	"github.com/itohio/mechtester/pkg/chamber"
	"github.com/itohio/mechtester/pkg/command"
	"github.com/itohio/mechtester/pkg/timeline"
)

func itoa(v int) string { return strconv.Itoa(v) }

// FansOn starts both fans.
func (s *Session) FansOn() error {
	return s.setFans(true)
}

// FansOff stops both fans.
func (s *Session) FansOff() error {
	return s.setFans(false)
}

func (s *Session) setFans(on bool) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	level := 0
	if on {
		level = 1
	}
	s.log.Infow("switching fans", "on", on)
	if err := s.send(command.Fans(on)); err != nil {
		return err
	}
	t := s.anchor.Elapsed()
	return s.record(t, command.VerbFans, []string{itoa(level)}, step{timeline.Fans, t, level})
}

// HeaterOn switches the heater on.
func (s *Session) HeaterOn() error {
	return s.setHeater(true)
}

// HeaterOff switches the heater off.
func (s *Session) HeaterOff() error {
	return s.setHeater(false)
}

// setHeater logs the logical heater state; the wire code comes from
// command.HeaterOn/HeaterOff, which is the inverse of the logged value.
func (s *Session) setHeater(on bool) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	cmd, level := command.HeaterOff(), 0
	if on {
		cmd, level = command.HeaterOn(), 1
	}
	s.log.Infow("switching heater", "on", on)
	if err := s.send(cmd); err != nil {
		return err
	}
	t := s.anchor.Elapsed()
	return s.record(t, command.VerbHeat, []string{itoa(level)}, step{timeline.Heat, t, level})
}

// MistOnTime runs the mister for seconds. The firmware ends the pulse on
// its own; the timeline gets both edges immediately.
func (s *Session) MistOnTime(seconds float64) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	if seconds <= 0 {
		return fmt.Errorf("mist duration %v: %w", seconds, ErrInvalidArgument)
	}
	s.log.Infow("misting", "seconds", seconds)
	if err := s.send(command.Mist(seconds)); err != nil {
		return err
	}
	t := s.anchor.Elapsed()
	return s.record(t, command.VerbMist, []string{command.FormatNumber(seconds)},
		step{timeline.Mist, t, 1},
		step{timeline.Mist, t + seconds, 0},
	)
}

// FlapOpenPercent moves the flap to percent open.
func (s *Session) FlapOpenPercent(percent int) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	cmd, err := command.Flap(percent)
	if err != nil {
		return err
	}
	s.log.Infow("positioning flap", "percent", percent, "command", cmd)
	if err := s.send(cmd); err != nil {
		return err
	}
	t := s.anchor.Elapsed()
	return s.record(t, command.VerbFlap, []string{itoa(percent)}, step{timeline.Flap, t, percent})
}

// FlapOpen opens the flap fully.
func (s *Session) FlapOpen() error {
	return s.flapEndstop(command.Open(), 100)
}

// FlapClose closes the flap fully.
func (s *Session) FlapClose() error {
	return s.flapEndstop(command.Close(), 0)
}

func (s *Session) flapEndstop(cmd string, percent int) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	s.log.Infow("moving flap", "percent", percent)
	if err := s.send(cmd); err != nil {
		return err
	}
	t := s.anchor.Elapsed()
	return s.record(t, command.VerbFlap, []string{itoa(percent)}, step{timeline.Flap, t, percent})
}

// FlapPulsePercent opens the flap to percent after delay seconds and closes
// it again duration seconds later. The firmware times the pulse; both edges
// are logged at their scheduled times.
func (s *Session) FlapPulsePercent(delay, duration float64, percent int) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	if delay < 0 || duration <= 0 {
		return fmt.Errorf("flap pulse delay %v duration %v: %w", delay, duration, ErrInvalidArgument)
	}
	cmd, err := command.Pulse(delay, duration, percent)
	if err != nil {
		return err
	}
	s.log.Infow("pulsing flap", "delay", delay, "duration", duration, "percent", percent)
	if err := s.send(cmd); err != nil {
		return err
	}
	t := s.anchor.Elapsed()
	open, shut := t+delay, t+delay+duration
	if err := s.record(open, command.VerbFlap, []string{itoa(percent)}, step{timeline.Flap, open, percent}); err != nil {
		return err
	}
	return s.record(shut, command.VerbFlap, []string{"0"}, step{timeline.Flap, shut, 0})
}

// LEDsOn sets the LED brightness with the given PWM divisor.
func (s *Session) LEDsOn(value, divisor int) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	s.log.Infow("setting LEDs", "value", value, "divisor", divisor)
	if err := s.send(command.LED(value, divisor)); err != nil {
		return err
	}
	return s.record(s.anchor.Elapsed(), command.VerbLED, []string{itoa(value), itoa(divisor)})
}

// MotorNewPos moves the linear actuator to an absolute position.
func (s *Session) MotorNewPos(pos int) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	if limit := s.opts.MaxMotorPosition; limit > 0 && (pos > limit || pos < -limit) {
		return fmt.Errorf("motor position %d outside ±%d: %w", pos, limit, ErrInvalidArgument)
	}
	s.log.Infow("moving actuator", "position", pos)
	if err := s.send(command.NewPos(pos)); err != nil {
		return err
	}
	return s.record(s.anchor.Elapsed(), command.VerbNewPos, []string{itoa(pos)})
}

// MotorGetPos queries the actuator position. Lines other than the MOTORS
// response are skipped.
func (s *Session) MotorGetPos(ctx context.Context) (int, error) {
	if err := s.checkRunning(); err != nil {
		return 0, err
	}
	if err := s.send(command.GetPos()); err != nil {
		return 0, err
	}

	var pos int
	_, err := chamber.Await(ctx, s.dev, s.opts.ResponseTimeout, s.log, func(line string) bool {
		p, ok := command.ParseMotors(line)
		pos = p
		return ok
	})
	if err != nil {
		return 0, fmt.Errorf("read motor position: %w", err)
	}

	s.log.Infow("motors position", "position", pos)
	if err := s.record(s.anchor.Elapsed(), command.VerbMotors, []string{itoa(pos)}); err != nil {
		return pos, err
	}
	return pos, nil
}
