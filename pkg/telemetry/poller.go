package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/itohio/mechtester/pkg/chamber"
	"github.com/itohio/mechtester/pkg/clock"
	"github.com/itohio/mechtester/pkg/command"
	"go.uber.org/zap"
)

// Link is the part of the chamber device the poller needs.
type Link interface {
	Send(cmd string) error
	ReadLine(ctx context.Context) (string, error)
}

// SampleWriter receives the raw fields of every accepted reading.
type SampleWriter interface {
	Sample(fields []string) error
}

// Poller requests and collects telemetry.
//
// The first well-formed response after start-up is usually stale, so it is
// thrown away. The second one resets the start anchor and becomes t=0.
type Poller struct {
	link    Link
	anchor  *clock.Anchor
	out     SampleWriter
	series  *Series
	arity   int
	timeout time.Duration
	log     *zap.SugaredLogger

	discarded    bool
	firstReading bool
}

// PollerConfig holds the poller collaborators.
type PollerConfig struct {
	Link    Link
	Anchor  *clock.Anchor
	Out     SampleWriter
	Series  *Series
	Fields  int           // Fields per DATA line, DefaultFields if 0
	Timeout time.Duration // 0 waits forever
	Log     *zap.SugaredLogger
}

// NewPoller creates a poller.
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Fields <= 0 {
		cfg.Fields = DefaultFields
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}
	if cfg.Series == nil {
		cfg.Series = NewSeries()
	}
	return &Poller{
		link:    cfg.Link,
		anchor:  cfg.Anchor,
		out:     cfg.Out,
		series:  cfg.Series,
		arity:   cfg.Fields,
		timeout: cfg.Timeout,
		log:     cfg.Log,
	}
}

// Series returns the series the poller appends to.
func (p *Poller) Series() *Series { return p.series }

// Started reports whether the first real reading has been accepted.
func (p *Poller) Started() bool { return p.firstReading }

// Poll sends one DATA request and waits for the response. It returns false
// when the response was discarded as the warm-up sample.
func (p *Poller) Poll(ctx context.Context) (Reading, bool, error) {
	if err := p.link.Send(command.Data()); err != nil {
		return Reading{}, false, fmt.Errorf("request telemetry: %w", err)
	}

	var (
		raw    []string
		values []float64
	)
	_, err := chamber.Await(ctx, p.link, p.timeout, p.log, func(line string) bool {
		var perr error
		raw, values, perr = ParseLine(line, p.arity)
		return perr == nil
	})
	if err != nil {
		return Reading{}, false, fmt.Errorf("read telemetry: %w", err)
	}

	if !p.firstReading {
		if !p.discarded {
			p.discarded = true
			p.log.Debugw("discarding first telemetry sample", "fields", raw)
			return Reading{}, false, nil
		}
		p.anchor.Reset()
		p.firstReading = true
	}

	elapsed := p.anchor.Elapsed()
	if p.out != nil {
		line := append([]string{clock.Format(elapsed)}, raw...)
		if err := p.out.Sample(line); err != nil {
			return Reading{}, false, fmt.Errorf("log telemetry: %w", err)
		}
	}

	r := NewReading(elapsed, raw, values)
	if err := p.series.Append(r); err != nil {
		return Reading{}, false, fmt.Errorf("store telemetry: %w", err)
	}
	p.log.Debugw("telemetry", "t", elapsed, "temps", r.Temperatures, "humidity", r.Humidity)
	return r, true, nil
}
