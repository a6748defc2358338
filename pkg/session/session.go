// Package session runs a chamber test: it owns the device link, the start
// anchor, the run log, the actuator timeline and the telemetry series, and
// exposes the operations a test script calls in sequence.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/itohio/mechtester/pkg/chamber"
	"github.com/itohio/mechtester/pkg/clock"
	"github.com/itohio/mechtester/pkg/command"
	"github.com/itohio/mechtester/pkg/config"
	"github.com/itohio/mechtester/pkg/runlog"
	"github.com/itohio/mechtester/pkg/telemetry"
	"github.com/itohio/mechtester/pkg/timeline"
	"go.uber.org/zap"
)

// State is the lifecycle state of a session.
type State int

const (
	Idle State = iota
	Running
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrEnded is returned by operations that need a running session.
	ErrEnded = errors.New("session ended")
	// ErrTransportUnavailable is returned when the device cannot be opened.
	ErrTransportUnavailable = errors.New("transport unavailable")
	// ErrInvalidArgument is returned for out-of-range actuator values.
	ErrInvalidArgument = command.ErrInvalidArgument
	// ErrTransportTimeout is returned when the firmware stays silent.
	ErrTransportTimeout = chamber.ErrTransportTimeout
)

// Minimum seconds between telemetry polls.
const minPollSeconds = 3

// Seconds before the end time at which EndTest stops polling.
const endLeadSeconds = 5

// Options configures a session.
type Options struct {
	Name             string        // Test name for the run log
	LogDir           string        // Parent directory of the run log directory
	LogWriter        io.Writer     // Write the run log here instead of a file
	Interval         float64       // Shortest polling interval in seconds
	TelemetryFields  int           // Fields per DATA response
	ReadyTimeout     time.Duration // 0 waits forever
	ResponseTimeout  time.Duration // 0 waits forever
	MaxMotorPosition int           // 0 leaves positions unchecked
	Clock            clock.Clock
	Log              *zap.SugaredLogger
}

// OptionsFromConfig maps the session section of cfg to Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Name:             cfg.Session.Name,
		LogDir:           cfg.Session.LogDir,
		Interval:         cfg.Session.Interval,
		TelemetryFields:  cfg.Session.TelemetryFields,
		ReadyTimeout:     cfg.Session.ReadyTimeout,
		ResponseTimeout:  cfg.Session.ResponseTimeout,
		MaxMotorPosition: cfg.Session.MaxMotorPosition,
	}
}

// Session is a single test run against one chamber.
type Session struct {
	id    string
	dev   chamber.Device
	opts  Options
	clock clock.Clock
	log   *zap.SugaredLogger

	anchor   *clock.Anchor
	runLog   *runlog.Log
	timeline *timeline.Timeline
	series   *telemetry.Series
	poller   *telemetry.Poller
	cadence  time.Duration

	state    State
	endTime  float64
	released bool
}

// New opens the run log, connects to the device and waits for the firmware
// ready sentinel. The start anchor is set once the firmware is ready.
func New(ctx context.Context, dev chamber.Device, opts Options) (*Session, error) {
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	if opts.Interval <= 0 {
		opts.Interval = 1
	}
	if opts.TelemetryFields <= 0 {
		opts.TelemetryFields = telemetry.DefaultFields
	}

	s := &Session{
		id:       uuid.NewString(),
		dev:      dev,
		opts:     opts,
		clock:    opts.Clock,
		log:      opts.Log,
		timeline: timeline.New(),
		series:   telemetry.NewSeries(),
		cadence:  clock.Seconds(max(2*opts.Interval, minPollSeconds)),
		state:    Idle,
	}

	var err error
	if opts.LogWriter != nil {
		s.runLog = runlog.New(opts.LogWriter)
	} else {
		s.runLog, err = runlog.Open(opts.LogDir, opts.Name, s.clock.Now())
		if err != nil {
			return nil, fmt.Errorf("open run log: %w", err)
		}
	}
	s.log.Infow("opened run log", "path", s.runLog.Path(), "run", s.id)

	if err := dev.Connect(); err != nil {
		s.runLog.Close()
		return nil, fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}

	if _, err := chamber.Await(ctx, dev, opts.ReadyTimeout, s.log, command.IsReady); err != nil {
		dev.Close()
		s.runLog.Close()
		return nil, fmt.Errorf("wait for ready: %w", err)
	}
	s.log.Info("chamber is ready")

	s.anchor = clock.NewAnchor(s.clock)
	s.poller = telemetry.NewPoller(telemetry.PollerConfig{
		Link:    dev,
		Anchor:  s.anchor,
		Out:     s.runLog,
		Series:  s.series,
		Fields:  opts.TelemetryFields,
		Timeout: opts.ResponseTimeout,
		Log:     s.log,
	})
	s.state = Running

	return s, nil
}

// ID returns the unique run identifier.
func (s *Session) ID() string { return s.id }

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// Timeline returns the read-only actuator timeline.
func (s *Session) Timeline() timeline.Reader { return s.timeline }

// Telemetry returns the read-only telemetry series.
func (s *Session) Telemetry() telemetry.Reader { return s.series }

// EndTime returns the end time passed to EndTest, 0 before that.
func (s *Session) EndTime() float64 { return s.endTime }

// LogPath returns the run log path, empty for writer-backed logs.
func (s *Session) LogPath() string { return s.runLog.Path() }

// Elapsed returns seconds since the start anchor.
func (s *Session) Elapsed() float64 { return s.anchor.Elapsed() }

// AnchorTime returns the wall-clock instant of the start anchor.
func (s *Session) AnchorTime() time.Time { return s.anchor.Start() }

// Cadence returns the minimum time between telemetry polls.
func (s *Session) Cadence() time.Duration { return s.cadence }

// OnReading registers a callback for every accepted telemetry reading.
func (s *Session) OnReading(cb func(telemetry.Reading)) {
	s.series.OnAppend(cb)
}

func (s *Session) checkRunning() error {
	if s.state != Running {
		return fmt.Errorf("%w (state %s)", ErrEnded, s.state)
	}
	return nil
}

func (s *Session) send(cmds ...string) error {
	for _, cmd := range cmds {
		if err := s.dev.Send(cmd); err != nil {
			return fmt.Errorf("send %q: %w", cmd, err)
		}
	}
	return nil
}

// step is one timeline point produced by an actuation.
type step struct {
	ch    timeline.Channel
	at    float64
	level int
}

// record writes the log line first, then the timeline points. A rejected
// timeline point is reported but does not fail the call: the log line is
// the durable record.
func (s *Session) record(at float64, verb string, args []string, steps ...step) error {
	if err := s.runLog.Event(at, verb, args...); err != nil {
		return err
	}
	for _, st := range steps {
		if err := s.timeline.Record(st.ch, st.at, st.level); err != nil {
			s.log.Warnw("timeline step rejected", "channel", st.ch, "err", err)
		}
	}
	return nil
}
