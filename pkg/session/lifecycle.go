package session

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/itohio/mechtester/pkg/clock"
	"github.com/itohio/mechtester/pkg/command"
	"github.com/itohio/mechtester/pkg/timeline"
)

// Pre-run LED setting.
const (
	preFanLEDValue   = 255
	preFanLEDDivisor = 50
	ledOffDivisor    = 50
)

// WaitUntil blocks until target seconds have elapsed since the start
// anchor, polling telemetry at the session cadence. The anchor may move
// while waiting (first real telemetry sample), and the target follows it.
func (s *Session) WaitUntil(ctx context.Context, target float64) error {
	if err := s.checkRunning(); err != nil {
		return err
	}

	lastRead := s.clock.Now()
	for {
		now := s.clock.Now()
		deadline := s.anchor.Deadline(target)
		if !now.Before(deadline) {
			break
		}

		since := now.Sub(lastRead)
		if since >= s.cadence {
			if _, _, err := s.poller.Poll(ctx); err != nil {
				return err
			}
			lastRead = s.clock.Now()
			continue
		}

		wait := min(deadline.Sub(now), s.cadence-since)
		if err := s.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}

	s.log.Infow("log till time finished", "at", s.anchor.Elapsed(), "target", target)
	return nil
}

// LogTillTime is WaitUntil under the name test scripts use.
func (s *Session) LogTillTime(ctx context.Context, target float64) error {
	return s.WaitUntil(ctx, target)
}

// Pause sleeps without polling telemetry.
func (s *Session) Pause(ctx context.Context, seconds float64) error {
	s.log.Infow("pausing", "seconds", seconds)
	return s.clock.Sleep(ctx, clock.Seconds(seconds))
}

// PreFan runs the fans with the flap open for seconds to normalise the
// chamber, closes the flap and then makes now the logical t=0 of the test.
func (s *Session) PreFan(ctx context.Context, seconds float64) error {
	if err := s.checkRunning(); err != nil {
		return err
	}
	s.log.Infow("running fans to normalise readings", "seconds", seconds)
	if err := s.send(command.Fans(true), command.Open(), command.LED(preFanLEDValue, preFanLEDDivisor)); err != nil {
		return err
	}
	if err := s.Pause(ctx, seconds); err != nil {
		return err
	}
	if err := s.send(command.Close()); err != nil {
		return err
	}

	s.anchor.Reset()
	return s.record(0, command.VerbFans, []string{"1"}, step{timeline.Fans, 0, 1})
}

// MistAndFlap fires a 2.5 s mist burst followed by a full flap pulse and
// logs telemetry for 20 s from the whole second the burst started in.
func (s *Session) MistAndFlap(ctx context.Context) error {
	start := math.Round(s.anchor.Elapsed())
	if err := s.MistOnTime(2.5); err != nil {
		return err
	}
	if err := s.FlapPulsePercent(3, 3, 100); err != nil {
		return err
	}
	return s.WaitUntil(ctx, start+20)
}

// EndTest polls until five seconds before end, drives every actuator to
// rest, closes every timeline track and the telemetry series at end and
// closes the run log. Nothing is recorded after EndTest.
func (s *Session) EndTest(ctx context.Context, end float64) error {
	if err := s.WaitUntil(ctx, end-endLeadSeconds); err != nil {
		return err
	}

	shutdown := []struct {
		cmd  string
		verb string
		args []string
		ch   timeline.Channel
	}{
		{command.Close(), command.VerbFlap, []string{"0"}, timeline.Flap},
		{command.HeaterOff(), command.VerbHeat, []string{"0"}, timeline.Heat},
		{command.Fans(false), command.VerbFans, []string{"0"}, timeline.Fans},
		{command.Mist(0), command.VerbMist, []string{"0"}, timeline.Mist},
	}

	var errs []error
	for _, st := range shutdown {
		if err := s.send(st.cmd); err != nil {
			errs = append(errs, err)
			continue
		}
		// Edges scheduled past end never happen: the actuator is stopped now.
		if err := s.timeline.Clip(st.ch, end); err != nil {
			errs = append(errs, err)
		}
		if err := s.record(end, st.verb, st.args, step{st.ch, end, 0}); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.send(command.LED(0, ledOffDivisor)); err != nil {
		errs = append(errs, err)
	} else if err := s.record(end, command.VerbLED, []string{"0", itoa(ledOffDivisor)}); err != nil {
		errs = append(errs, err)
	}

	if err := s.timeline.FinalizeAll(end); err != nil {
		s.log.Warnw("timeline finalize", "err", err)
	}
	s.series.Finalize(end)
	s.endTime = end
	s.state = Ended

	if err := s.runLog.Close(); err != nil {
		errs = append(errs, err)
	}
	s.log.Infow("test ended", "end", end, "log", s.runLog.Path())

	return errors.Join(errs...)
}

// CooldownDryout runs the fans with the flap open after a test. It is
// recorded only while the session is still running.
func (s *Session) CooldownDryout() error {
	if s.released {
		return fmt.Errorf("cooldown: %w", ErrEnded)
	}
	s.log.Info("running fans for cooldown, opening flap for dryout")
	if err := s.send(command.Fans(true), command.Open()); err != nil {
		return err
	}
	if s.state != Running {
		return nil
	}
	t := s.anchor.Elapsed()
	if err := s.record(t, command.VerbFans, []string{"1"}, step{timeline.Fans, t, 1}); err != nil {
		return err
	}
	return s.record(t, command.VerbFlap, []string{"100"}, step{timeline.Flap, t, 100})
}

// Shutdown puts the chamber into a safe resting state and releases the
// device. With fans set the fans keep running with the flap open for
// drying out. It may be called in any state; later calls are no-ops.
func (s *Session) Shutdown(fans bool) error {
	if s.released {
		return nil
	}
	s.log.Infow("shutdown test", "dryout_fans", fans)

	cmds := []string{command.HeaterOff()}
	if fans {
		cmds = append(cmds, command.Fans(true), command.Open())
	} else {
		cmds = append(cmds, command.Fans(false), command.Close())
	}
	cmds = append(cmds, command.Mist(0), command.LED(0, ledOffDivisor))

	var errs []error
	for _, cmd := range cmds {
		if err := s.send(cmd); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.dev.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close device: %w", err))
	}
	if err := s.runLog.Close(); err != nil {
		errs = append(errs, err)
	}
	s.released = true
	s.state = Ended

	return errors.Join(errs...)
}
