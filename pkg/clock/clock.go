// Package clock provides the start anchor that all elapsed timestamps of a
// test run are measured against.
package clock

import (
	"context"
	"math"
	"strconv"
	"time"
)

// Clock abstracts wall-clock time so that timed waits can be driven by tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

// System returns the wall clock.
func System() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Anchor is the zero reference of a test run.
type Anchor struct {
	clock Clock
	start time.Time
}

// NewAnchor creates an anchor set to the current time of c.
func NewAnchor(c Clock) *Anchor {
	if c == nil {
		c = System()
	}
	return &Anchor{clock: c, start: c.Now()}
}

// Reset moves the zero reference to now.
func (a *Anchor) Reset() {
	a.start = a.clock.Now()
}

// Start returns the current zero reference.
func (a *Anchor) Start() time.Time { return a.start }

// Clock returns the clock the anchor reads.
func (a *Anchor) Clock() Clock { return a.clock }

// Elapsed returns seconds since the anchor, rounded to hundredths.
func (a *Anchor) Elapsed() float64 {
	return Round(a.clock.Now().Sub(a.start).Seconds())
}

// Deadline returns the wall-clock instant at which Elapsed reaches seconds.
func (a *Anchor) Deadline(seconds float64) time.Time {
	return a.start.Add(Seconds(seconds))
}

// Round rounds seconds to two decimal places.
func Round(seconds float64) float64 {
	return math.Round(seconds*100) / 100
}

// Seconds converts fractional seconds into a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Format renders elapsed seconds the way they appear in the run log.
func Format(seconds float64) string {
	return strconv.FormatFloat(Round(seconds), 'f', -1, 64)
}
