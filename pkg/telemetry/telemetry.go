// Package telemetry parses, timestamps and stores chamber sensor readings.
package telemetry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// DefaultFields is the field count of a DATA response: six temperature
// zones followed by relative humidity.
const DefaultFields = 7

var (
	// ErrNoise marks an inbound line that is not a telemetry response.
	ErrNoise = errors.New("not a telemetry line")
	// ErrFrozen is returned when appending to a finalized series.
	ErrFrozen = errors.New("telemetry series is finalized")
)

// TemperatureLabels names the temperature zones in wire order.
var TemperatureLabels = []string{
	"Chamber Top",
	"Chamber Bottom",
	"Heater Chamber Top",
	"Heater Chamber Bottom",
	"External",
	"Humidity Sensor",
}

// Reading is one timestamped sensor sample.
type Reading struct {
	Elapsed      float64   // Seconds since the start anchor
	Temperatures []float64 // °C, wire order
	Humidity     float64   // %RH
	Raw          []string  // Field strings as received
}

// ParseLine splits a DATA response into its raw fields and values. Lines
// with a different field count, or with non-numeric fields, are ErrNoise.
// A failed sensor reads as nan or inf and is kept; consumers skip
// non-finite values.
func ParseLine(line string, arity int) ([]string, []float64, error) {
	line = strings.Trim(line, "\r\n ")
	fields := strings.Split(line, " ")
	if len(fields) != arity {
		return nil, nil, fmt.Errorf("%w: %d fields, want %d", ErrNoise, len(fields), arity)
	}

	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: field %d: %v", ErrNoise, i, err)
		}
		values[i] = v
	}
	return fields, values, nil
}

// NewReading builds a reading from parsed values; the last value is humidity.
func NewReading(elapsed float64, raw []string, values []float64) Reading {
	n := len(values)
	r := Reading{Elapsed: elapsed, Raw: raw}
	if n == 0 {
		return r
	}
	r.Temperatures = append([]float64(nil), values[:n-1]...)
	r.Humidity = values[n-1]
	return r
}

// Reader is the read-only view of a series handed to reporters.
type Reader interface {
	Readings() []Reading
	Len() int
	Last() (Reading, bool)
	Downsample(maxPoints int) []Reading
}

var _ Reader = (*Series)(nil)

// Series is an append-only sequence of readings.
type Series struct {
	mu        sync.RWMutex
	readings  []Reading
	frozen    bool
	endTime   float64
	callbacks []func(Reading)
}

// NewSeries creates an empty series.
func NewSeries() *Series {
	return &Series{}
}

// Append adds a reading and notifies OnAppend callbacks.
func (s *Series) Append(r Reading) error {
	s.mu.Lock()
	if s.frozen {
		s.mu.Unlock()
		return ErrFrozen
	}
	s.readings = append(s.readings, r)
	callbacks := make([]func(Reading), len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(r)
	}
	return nil
}

// OnAppend registers a callback invoked after every appended reading.
func (s *Series) OnAppend(cb func(Reading)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// Finalize repeats the last reading at end and freezes the series. Calling
// it again is a no-op.
func (s *Series) Finalize(end float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return
	}
	s.frozen = true
	s.endTime = end

	if len(s.readings) == 0 {
		return
	}
	last := s.readings[len(s.readings)-1]
	s.readings = append(s.readings, Reading{
		Elapsed:      end,
		Temperatures: append([]float64(nil), last.Temperatures...),
		Humidity:     last.Humidity,
	})
}

// Frozen reports whether the series has been finalized.
func (s *Series) Frozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen
}

// Len returns the number of readings.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}

// Last returns the most recent reading.
func (s *Series) Last() (Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.readings) == 0 {
		return Reading{}, false
	}
	return s.readings[len(s.readings)-1], true
}

// Readings returns a copy of all readings.
func (s *Series) Readings() []Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Reading, len(s.readings))
	copy(result, s.readings)
	return result
}

// Downsample returns at most maxPoints readings picked by decimation. The
// final reading is always kept so that the series still spans the run.
func (s *Series) Downsample(maxPoints int) []Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.readings)
	if maxPoints <= 0 || n <= maxPoints {
		result := make([]Reading, n)
		copy(result, s.readings)
		return result
	}

	result := make([]Reading, 0, maxPoints)
	step := float64(n) / float64(maxPoints)
	for i := 0; i < maxPoints-1; i++ {
		result = append(result, s.readings[int(float64(i)*step)])
	}
	return append(result, s.readings[n-1])
}
