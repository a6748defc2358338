package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, "test", cfg.Session.Name)
	assert.Equal(t, float64(1), cfg.Session.Interval)
	assert.Equal(t, 7, cfg.Session.TelemetryFields)
	assert.Equal(t, 30*time.Second, cfg.Session.ReadyTimeout)
	assert.Equal(t, 5*time.Second, cfg.Session.ResponseTimeout)
	assert.Equal(t, float64(5), cfg.Script.PreFan)
	assert.Equal(t, float64(20), cfg.Script.EndTime)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 21.0, cfg.Mock.AmbientTemperature)
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: "/dev/ttyUSB1"
  baud_rate: 57600

session:
  name: heat_soak
  log_dir: /tmp/runs
  interval: 2.5
  telemetry_fields: 6
  ready_timeout: 0s
  response_timeout: 1500ms
  max_motor_position: 200

script:
  pre_fan: 10
  end_time: 600
  dryout_fans: true

logging:
  level: debug

mock:
  enabled: true
  ambient_temperature: 18.5
  diagnostics: true
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Port)
	assert.Equal(t, 57600, cfg.Serial.BaudRate)
	assert.Equal(t, "heat_soak", cfg.Session.Name)
	assert.Equal(t, "/tmp/runs", cfg.Session.LogDir)
	assert.Equal(t, 2.5, cfg.Session.Interval)
	assert.Equal(t, 6, cfg.Session.TelemetryFields)
	assert.Equal(t, time.Duration(0), cfg.Session.ReadyTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.Session.ResponseTimeout)
	assert.Equal(t, 200, cfg.Session.MaxMotorPosition)
	assert.Equal(t, float64(10), cfg.Script.PreFan)
	assert.Equal(t, float64(600), cfg.Script.EndTime)
	assert.True(t, cfg.Script.DryoutFans)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Mock.Enabled)
	assert.True(t, cfg.Mock.Diagnostics)
	assert.Equal(t, 18.5, cfg.Mock.AmbientTemperature)
	assert.Equal(t, 45.0, cfg.Mock.AmbientHumidity) // default
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("invalid: yaml: content: [")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_PartialYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: "/dev/ttyACM1"
session:
  name: ""
  interval: 0
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM1", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)     // default
	assert.Equal(t, "test", cfg.Session.Name)        // restored
	assert.Equal(t, float64(1), cfg.Session.Interval) // restored
	assert.Equal(t, 7, cfg.Session.TelemetryFields)  // default
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB0"
	cfg.Session.ResponseTimeout = 2 * time.Second
	cfg.Script.EndTime = 120

	tmpfile, err := os.CreateTemp("", "test_save_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	require.NoError(t, cfg.Save(tmpfile.Name()))

	loaded, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", loaded.Serial.Port)
	assert.Equal(t, 2*time.Second, loaded.Session.ResponseTimeout)
	assert.Equal(t, float64(120), loaded.Script.EndTime)
}
