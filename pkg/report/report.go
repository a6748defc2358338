// Package report turns a finished run into the data a renderer needs:
// actuator bars per channel and statistics over the telemetry series.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/itohio/mechtester/pkg/clock"
	"github.com/itohio/mechtester/pkg/telemetry"
	"github.com/itohio/mechtester/pkg/timeline"
	"gopkg.in/yaml.v3"
)

// Source is a run that can be reported on.
type Source interface {
	ID() string
	EndTime() float64
	Timeline() timeline.Reader
	Telemetry() telemetry.Reader
}

// Stats are min/mean/max over the finite values of one telemetry column.
// Count is the number of values used.
type Stats struct {
	Label string  `yaml:"label"`
	Count int     `yaml:"count"`
	Min   float64 `yaml:"min"`
	Mean  float64 `yaml:"mean"`
	Max   float64 `yaml:"max"`
}

// Channel is the actuator history of one timeline channel.
type Channel struct {
	Name   timeline.Channel    `yaml:"name"`
	Points []timeline.Point    `yaml:"points"`
	Bars   []timeline.Interval `yaml:"bars"`
	OnTime float64             `yaml:"on_time"`
}

// Summary is the reportable state of a run.
type Summary struct {
	ID           string    `yaml:"id"`
	EndTime      float64   `yaml:"end_time"`
	Samples      int       `yaml:"samples"`
	Channels     []Channel `yaml:"channels"`
	Temperatures []Stats   `yaml:"temperatures,omitempty"`
	Humidity     *Stats    `yaml:"humidity,omitempty"`
}

// Build collects the summary of src.
func Build(src Source) Summary {
	sum := Summary{
		ID:      src.ID(),
		EndTime: src.EndTime(),
	}

	tl := src.Timeline()
	for _, ch := range timeline.Channels() {
		c := Channel{
			Name:   ch,
			Points: tl.Points(ch),
			Bars:   tl.Intervals(ch),
		}
		for _, b := range c.Bars {
			c.OnTime += b.Duration
		}
		c.OnTime = clock.Round(c.OnTime)
		sum.Channels = append(sum.Channels, c)
	}

	readings := src.Telemetry().Readings()
	sum.Samples = len(readings)
	if len(readings) == 0 {
		return sum
	}

	zones := len(readings[0].Temperatures)
	temps := make([]accumulator, zones)
	var hum accumulator
	for _, r := range readings {
		for i := 0; i < zones && i < len(r.Temperatures); i++ {
			temps[i].add(r.Temperatures[i])
		}
		hum.add(r.Humidity)
	}

	for i := range temps {
		sum.Temperatures = append(sum.Temperatures, temps[i].stats(zoneLabel(i)))
	}
	h := hum.stats("Humidity")
	sum.Humidity = &h

	return sum
}

// WriteYAML writes the summary as a YAML document.
func WriteYAML(w io.Writer, sum Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(sum); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return enc.Close()
}

// WriteCSV writes the telemetry table, decimated to at most maxPoints rows.
// maxPoints <= 0 writes every reading.
func WriteCSV(w io.Writer, src Source, maxPoints int) error {
	readings := src.Telemetry().Downsample(maxPoints)

	zones := 0
	if len(readings) > 0 {
		zones = len(readings[0].Temperatures)
	}

	cw := csv.NewWriter(w)
	header := make([]string, 0, zones+2)
	header = append(header, "elapsed")
	for i := 0; i < zones; i++ {
		header = append(header, zoneLabel(i))
	}
	header = append(header, "humidity")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	row := make([]string, len(header))
	for _, r := range readings {
		row = row[:0]
		row = append(row, clock.Format(r.Elapsed))
		for i := 0; i < zones; i++ {
			v := math.NaN()
			if i < len(r.Temperatures) {
				v = r.Temperatures[i]
			}
			row = append(row, strconv.FormatFloat(v, 'f', 2, 64))
		}
		row = append(row, strconv.FormatFloat(r.Humidity, 'f', 2, 64))
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func zoneLabel(i int) string {
	if i < len(telemetry.TemperatureLabels) {
		return telemetry.TemperatureLabels[i]
	}
	return fmt.Sprintf("Zone %d", i+1)
}

type accumulator struct {
	n             int
	sum, min, max float64
}

// add ignores nan and inf, which the firmware prints for a failed sensor.
func (a *accumulator) add(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	if a.n == 0 || v < a.min {
		a.min = v
	}
	if a.n == 0 || v > a.max {
		a.max = v
	}
	a.sum += v
	a.n++
}

func (a *accumulator) stats(label string) Stats {
	s := Stats{Label: label, Count: a.n, Min: a.min, Max: a.max}
	if a.n > 0 {
		s.Mean = a.sum / float64(a.n)
	}
	return s
}
