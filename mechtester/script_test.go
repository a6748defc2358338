package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/itohio/mechtester/pkg/chamber"
	"github.com/itohio/mechtester/pkg/clock"
	"github.com/itohio/mechtester/pkg/config"
	"github.com/itohio/mechtester/pkg/logger"
	"github.com/itohio/mechtester/pkg/session"
	"github.com/itohio/mechtester/pkg/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScriptSession(t *testing.T, cfg *config.Config) (*session.Session, *chamber.Mock) {
	t.Helper()

	mock := chamber.NewMock(&cfg.Mock, nil)
	opts := session.OptionsFromConfig(cfg)
	opts.Clock = clock.NewFake(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	opts.Log = logger.Nop()

	s, err := session.New(context.Background(), mock, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown(false) })
	return s, mock
}

func TestRunScript(t *testing.T) {
	cfg := config.Default()
	cfg.Session.LogDir = t.TempDir()
	s, mock := newScriptSession(t, cfg)

	require.NoError(t, runScript(context.Background(), s, cfg.Script))

	assert.Equal(t, session.Ended, s.State())
	assert.Equal(t, 20.0, s.EndTime())
	assert.Equal(t, cfg.Script.MotorTravel, mock.MotorPosition())
	assert.True(t, mock.Fans(), "cooldown leaves the fans running")

	tl := s.Timeline()
	assert.Equal(t, []timeline.Interval{{Start: 10, Duration: 2}}, tl.Intervals(timeline.Mist))
	assert.Equal(t, []timeline.Interval{{Start: 12, Duration: 2}}, tl.Intervals(timeline.Flap))
	assert.Equal(t, []timeline.Point{{Time: 0, Level: 1}, {Time: 20, Level: 0}}, tl.Points(timeline.Fans))
	for _, ch := range timeline.Channels() {
		assert.Zero(t, tl.Level(ch), ch)
	}

	data, err := os.ReadFile(s.LogPath())
	require.NoError(t, err)
	log := string(data)
	assert.True(t, strings.HasPrefix(log, "0 FANS 1\n"))
	assert.Contains(t, log, "10 MIST 2\n")
	assert.Contains(t, log, "MOTORS -50\n")
	assert.True(t, strings.HasSuffix(log, "20 LED 0 50\n"))
}

func TestWriteReports(t *testing.T) {
	cfg := config.Default()
	cfg.Session.LogDir = t.TempDir()
	s, _ := newScriptSession(t, cfg)

	require.NoError(t, s.EndTest(context.Background(), 10))
	require.NoError(t, writeReports(s, cfg.Report, logger.Nop()))

	base := strings.TrimSuffix(s.LogPath(), ".log")
	summary, err := os.ReadFile(base + "_summary.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(summary), "end_time: 10")
	assert.Contains(t, string(summary), "id: "+s.ID())

	csv, err := os.ReadFile(base + "_telemetry.csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(csv), "elapsed,"))

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(s.LogPath()), "*"))
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}
