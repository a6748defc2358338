package main

import (
	"context"
	"fmt"

	"github.com/itohio/mechtester/pkg/config"
	"github.com/itohio/mechtester/pkg/session"
)

// Pause around each actuator move, seconds.
const motorSettle = 2

// runScript drives the reference chamber test: pre-run the fans, heat,
// mist with a flap pulse, exercise the actuator and end the test.
func runScript(ctx context.Context, s *session.Session, sc config.ScriptConfig) error {
	steps := []struct {
		name string
		run  func() error
	}{
		{"pre-fan", func() error { return s.PreFan(ctx, sc.PreFan) }},
		{"log till heat", func() error { return s.LogTillTime(ctx, sc.HeatAt) }},
		{"heater on", s.HeaterOn},
		{"leds on", func() error { return s.LEDsOn(sc.LEDValue, sc.LEDDivisor) }},
		{"log till mist", func() error { return s.LogTillTime(ctx, sc.MistAt) }},
		{"mist", func() error { return s.MistOnTime(sc.MistSeconds) }},
		{"flap pulse", func() error { return s.FlapPulsePercent(sc.PulseDelay, sc.PulseSeconds, sc.FlapPercent) }},
		{"motor out", func() error { return s.MotorNewPos(-sc.MotorTravel) }},
		{"motor settle", func() error { return s.Pause(ctx, motorSettle) }},
		{"motor position", func() error { _, err := s.MotorGetPos(ctx); return err }},
		{"motor back", func() error { return s.MotorNewPos(sc.MotorTravel) }},
		{"motor settle", func() error { return s.Pause(ctx, motorSettle) }},
		{"end test", func() error { return s.EndTest(ctx, sc.EndTime) }},
		{"cooldown", s.CooldownDryout},
	}

	for _, st := range steps {
		if err := st.run(); err != nil {
			return fmt.Errorf("%s: %w", st.name, err)
		}
	}
	return nil
}
