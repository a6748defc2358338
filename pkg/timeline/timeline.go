// Package timeline records actuator level changes over the elapsed time of a
// test run.
package timeline

import (
	"errors"
	"fmt"
)

// ErrOutOfOrder is returned when a point would move a track back in time.
var ErrOutOfOrder = errors.New("timeline point out of order")

// Channel names an actuator track.
type Channel string

const (
	Fans Channel = "fans"
	Heat Channel = "heat"
	Mist Channel = "mist"
	Flap Channel = "flap"
)

// Channels lists every track in reporting order.
func Channels() []Channel {
	return []Channel{Heat, Mist, Flap, Fans}
}

// Point is a level change at an elapsed time in seconds.
type Point struct {
	Time  float64 `yaml:"time"`
	Level int     `yaml:"level"`
}

// Interval is a contiguous span during which a track was non-zero.
type Interval struct {
	Start    float64 `yaml:"start"`
	Duration float64 `yaml:"duration"`
}

// Track is a step function of level over time. Every track starts from an
// implicit (0, 0) baseline that is not stored in Points.
type Track struct {
	points []Point
}

// Record appends a level change. Times must be non-decreasing.
func (t *Track) Record(at float64, level int) error {
	if n := len(t.points); n > 0 && at < t.points[n-1].Time {
		return fmt.Errorf("%w: %.2f before %.2f", ErrOutOfOrder, at, t.points[n-1].Time)
	}
	if at < 0 {
		return fmt.Errorf("%w: negative time %.2f", ErrOutOfOrder, at)
	}
	t.points = append(t.points, Point{Time: at, Level: level})
	return nil
}

// Level returns the current level.
func (t *Track) Level() int {
	if len(t.points) == 0 {
		return 0
	}
	return t.points[len(t.points)-1].Level
}

// Clip drops every point later than end, so that end can be recorded next.
// Scheduled edges past end (a mist burst or flap pulse still running) are
// cut short.
func (t *Track) Clip(end float64) {
	n := len(t.points)
	for n > 0 && t.points[n-1].Time > end {
		n--
	}
	t.points = t.points[:n]
}

// Finalize clips the track at end and returns it to baseline there. It is a
// no-op when the clipped track already sits at zero.
func (t *Track) Finalize(end float64) error {
	t.Clip(end)
	if t.Level() == 0 {
		return nil
	}
	return t.Record(end, 0)
}

// Points returns a copy of the recorded points, baseline excluded.
func (t *Track) Points() []Point {
	result := make([]Point, len(t.points))
	copy(result, t.points)
	return result
}

// Intervals derives the on-intervals of the track. A bar opens when the
// level leaves zero and closes when it returns to zero; a bar still open at
// the last point is not reported.
func (t *Track) Intervals() []Interval {
	var (
		bars  []Interval
		inBar bool
		start float64
	)
	for _, p := range t.points {
		switch {
		case !inBar && p.Level != 0:
			inBar = true
			start = p.Time
		case inBar && p.Level == 0:
			bars = append(bars, Interval{Start: start, Duration: p.Time - start})
			inBar = false
		}
	}
	return bars
}

// Reader is the read-only view of a timeline handed to reporters.
type Reader interface {
	Points(ch Channel) []Point
	Intervals(ch Channel) []Interval
	Level(ch Channel) int
}

var _ Reader = (*Timeline)(nil)

// Timeline owns one track per actuator channel.
type Timeline struct {
	tracks map[Channel]*Track
}

// New creates an empty timeline.
func New() *Timeline {
	tl := &Timeline{tracks: make(map[Channel]*Track, 4)}
	for _, ch := range Channels() {
		tl.tracks[ch] = &Track{}
	}
	return tl
}

// Record appends a point to the channel's track.
func (tl *Timeline) Record(ch Channel, at float64, level int) error {
	tr, ok := tl.tracks[ch]
	if !ok {
		return fmt.Errorf("unknown channel %q", ch)
	}
	if err := tr.Record(at, level); err != nil {
		return fmt.Errorf("%s: %w", ch, err)
	}
	return nil
}

// Track returns the track of a channel, or nil for an unknown channel.
func (tl *Timeline) Track(ch Channel) *Track {
	return tl.tracks[ch]
}

// Points returns a copy of a channel's points.
func (tl *Timeline) Points(ch Channel) []Point {
	tr := tl.tracks[ch]
	if tr == nil {
		return nil
	}
	return tr.Points()
}

// Intervals returns the on-intervals of a channel.
func (tl *Timeline) Intervals(ch Channel) []Interval {
	tr := tl.tracks[ch]
	if tr == nil {
		return nil
	}
	return tr.Intervals()
}

// Level returns the current level of a channel.
func (tl *Timeline) Level(ch Channel) int {
	tr := tl.tracks[ch]
	if tr == nil {
		return 0
	}
	return tr.Level()
}

// Clip drops the channel's points later than end.
func (tl *Timeline) Clip(ch Channel, end float64) error {
	tr, ok := tl.tracks[ch]
	if !ok {
		return fmt.Errorf("unknown channel %q", ch)
	}
	tr.Clip(end)
	return nil
}

// FinalizeAll clips every track at end and returns it to baseline there.
func (tl *Timeline) FinalizeAll(end float64) error {
	var errs []error
	for _, ch := range Channels() {
		if err := tl.tracks[ch].Finalize(end); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}
