package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the harness configuration.
type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Session SessionConfig `yaml:"session"`
	Script  ScriptConfig  `yaml:"script"`
	Report  ReportConfig  `yaml:"report"`
	Logging LoggingConfig `yaml:"logging"`
	Mock    MockConfig    `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// SessionConfig contains test session parameters.
type SessionConfig struct {
	Name             string        `yaml:"name"`               // Test name, used for the log directory and file name
	LogDir           string        `yaml:"log_dir"`            // Parent directory of per-test log directories
	Interval         float64       `yaml:"interval"`           // Shortest polling interval in seconds
	TelemetryFields  int           `yaml:"telemetry_fields"`   // Fields per DATA response line
	ReadyTimeout     time.Duration `yaml:"ready_timeout"`      // 0 waits forever for the ready sentinel
	ResponseTimeout  time.Duration `yaml:"response_timeout"`   // 0 waits forever for DATA/GET_POS responses
	MaxMotorPosition int           `yaml:"max_motor_position"` // 0 leaves motor positions unchecked
}

// ScriptConfig parametrises the reference test script run by the CLI.
type ScriptConfig struct {
	PreFan       float64 `yaml:"pre_fan"`  // Seconds of fan pre-run
	HeatAt       float64 `yaml:"heat_at"`  // Elapsed seconds when the heater is switched on
	MistAt       float64 `yaml:"mist_at"`  // Elapsed seconds of the mist/flap burst
	MistSeconds  float64 `yaml:"mist_seconds"`
	FlapPercent  int     `yaml:"flap_percent"`
	MotorTravel  int     `yaml:"motor_travel"` // Actuator moves to -travel then +travel
	EndTime      float64 `yaml:"end_time"`
	DryoutFans   bool    `yaml:"dryout_fans"` // Leave fans running on shutdown
	LEDValue     int     `yaml:"led_value"`
	LEDDivisor   int     `yaml:"led_divisor"`
	PulseDelay   float64 `yaml:"pulse_delay"`
	PulseSeconds float64 `yaml:"pulse_seconds"`
}

// ReportConfig controls the post-run data export.
type ReportConfig struct {
	Enabled   bool `yaml:"enabled"`
	MaxPoints int  `yaml:"max_points"` // Decimation limit for the telemetry CSV
}

// LoggingConfig controls diagnostic logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// MockConfig contains simulated chamber configuration.
type MockConfig struct {
	Enabled            bool    `yaml:"enabled"`
	AmbientTemperature float64 `yaml:"ambient_temperature"` // °C
	AmbientHumidity    float64 `yaml:"ambient_humidity"`    // %RH
	HeaterRate         float64 `yaml:"heater_rate"`         // °C gained per DATA request with the heater on
	MistRate           float64 `yaml:"mist_rate"`           // %RH gained per second of mist
	NoiseLevel         float64 `yaml:"noise_level"`         // Amplitude of sensor jitter
	Diagnostics        bool    `yaml:"diagnostics"`         // Emit debug lines before responses
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
		},
		Session: SessionConfig{
			Name:            "test",
			LogDir:          ".",
			Interval:        1,
			TelemetryFields: 7,
			ReadyTimeout:    30 * time.Second,
			ResponseTimeout: 5 * time.Second,
		},
		Script: ScriptConfig{
			PreFan:       5,
			HeatAt:       5,
			MistAt:       10,
			MistSeconds:  2,
			FlapPercent:  100,
			MotorTravel:  50,
			EndTime:      20,
			LEDValue:     255,
			LEDDivisor:   50,
			PulseDelay:   2,
			PulseSeconds: 2,
		},
		Report: ReportConfig{
			Enabled:   true,
			MaxPoints: 1000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Mock: MockConfig{
			AmbientTemperature: 21.0,
			AmbientHumidity:    45.0,
			HeaterRate:         0.4,
			MistRate:           3.0,
			NoiseLevel:         0.05,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults fills required fields that were left empty.
// Timeouts are not touched: an explicit 0 means "wait forever".
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Session.Name == "" {
		c.Session.Name = def.Session.Name
	}
	if c.Session.LogDir == "" {
		c.Session.LogDir = def.Session.LogDir
	}
	if c.Session.Interval <= 0 {
		c.Session.Interval = def.Session.Interval
	}
	if c.Session.TelemetryFields <= 0 {
		c.Session.TelemetryFields = def.Session.TelemetryFields
	}

	if c.Script.EndTime == 0 {
		c.Script.EndTime = def.Script.EndTime
	}
	if c.Script.LEDDivisor == 0 {
		c.Script.LEDDivisor = def.Script.LEDDivisor
	}

	if c.Report.MaxPoints <= 0 {
		c.Report.MaxPoints = def.Report.MaxPoints
	}

	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
}
