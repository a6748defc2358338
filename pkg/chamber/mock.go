package chamber

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/chewxy/math32"
	"github.com/itohio/mechtester/pkg/command"
	"github.com/itohio/mechtester/pkg/config"
	"go.uber.org/zap"
)

// Zones is the number of temperature sensors the simulated chamber reports.
const Zones = 6

// Mock simulates the chamber firmware for testing and development.
//
// It answers DATA with "t1 .. t6 humidity" and GET_POS with "MOTORS n".
// Each DATA request advances the thermal model by one step.
type Mock struct {
	cfg *config.MockConfig
	log *zap.SugaredLogger

	mu        sync.Mutex
	lines     chan string
	done      chan struct{}
	connected bool
	muted     bool
	sent      []string

	// Actuator state
	fans      bool
	heater    bool
	flapUnits int
	ledValue  int
	ledDiv    int
	motorPos  int
	mistLeft  float64 // Seconds of mist left, one second consumed per DATA

	// Sensor state
	temps    [Zones]float64
	humidity float64
	steps    int
}

// NewMock creates a new simulated chamber.
func NewMock(cfg *config.MockConfig, log *zap.SugaredLogger) *Mock {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	m := &Mock{
		cfg:       cfg,
		log:       log,
		flapUnits: 148,
		humidity:  cfg.AmbientHumidity,
	}
	for i := range m.temps {
		m.temps[i] = cfg.AmbientTemperature
	}
	return m
}

// Connect simulates a firmware boot ending in the ready sentinel.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return ErrAlreadyConnected
	}

	m.lines = make(chan string, DefaultBufferSize)
	m.done = make(chan struct{})
	m.connected = true

	m.emitLocked("booting chamber controller")
	m.emitLocked(command.ReadySentinel)

	return nil
}

// Close stops the simulated device.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.connected = false
	close(m.done)

	return nil
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Mute stops (or resumes) all output, simulating a silent link.
func (m *Mock) Mute(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
}

// Inject queues an arbitrary inbound line.
func (m *Mock) Inject(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		m.pushLocked(line)
	}
}

// Sent returns every command received so far.
func (m *Mock) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]string, len(m.sent))
	copy(result, m.sent)
	return result
}

// Heater reports whether the simulated heater is energised.
func (m *Mock) Heater() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heater
}

// Fans reports whether the simulated fans run.
func (m *Mock) Fans() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fans
}

// FlapUnits returns the last flap servo position.
func (m *Mock) FlapUnits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flapUnits
}

// MotorPosition returns the simulated actuator position.
func (m *Mock) MotorPosition() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.motorPos
}

// LED returns the LED brightness and divisor.
func (m *Mock) LED() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledValue, m.ledDiv
}

// Send interprets one command line.
func (m *Mock) Send(cmd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}

	cmd = strings.TrimRight(cmd, "\r\n")
	m.sent = append(m.sent, cmd)

	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return nil
	}
	args := make([]int, 0, len(fields)-1)
	for _, f := range fields[1:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			m.emitLocked("? " + cmd)
			return nil
		}
		args = append(args, int(v))
	}

	switch fields[0] {
	case command.VerbFans:
		m.fans = arg(args, 0) == 1 || arg(args, 1) == 1
	case command.VerbOpen:
		m.flapUnits = 55
	case command.VerbClose:
		m.flapUnits = 148
	case command.VerbFlap:
		m.flapUnits = arg(args, 0)
	case command.VerbPulse:
		m.flapUnits = arg(args, 2)
	case command.VerbHeat:
		// The heater is energised by code 0.
		m.heater = arg(args, 0) == 0
	case command.VerbMist:
		m.mistLeft = float64(arg(args, 0))
	case command.VerbLED:
		m.ledValue, m.ledDiv = arg(args, 0), arg(args, 1)
	case command.VerbNewPos:
		m.motorPos = arg(args, 0)
	case command.VerbGetPos:
		m.diagnosticLocked("stepper idle")
		m.emitLocked(fmt.Sprintf("%s %d", command.VerbMotors, m.motorPos))
	case command.VerbData:
		m.stepLocked()
		m.diagnosticLocked(fmt.Sprintf("dht ok %d", m.steps))
		m.emitLocked(m.dataLineLocked())
	default:
		m.emitLocked("? " + cmd)
	}

	return nil
}

// ReadLine returns the next simulated line.
func (m *Mock) ReadLine(ctx context.Context) (string, error) {
	m.mu.Lock()
	lines, done, connected := m.lines, m.done, m.connected
	m.mu.Unlock()

	if !connected {
		return "", ErrNotConnected
	}

	select {
	case line := <-lines:
		return line, nil
	case <-done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func arg(args []int, i int) int {
	if i < len(args) {
		return args[i]
	}
	return 0
}

func (m *Mock) diagnosticLocked(line string) {
	if m.cfg.Diagnostics {
		m.emitLocked("# " + line)
	}
}

func (m *Mock) emitLocked(line string) {
	if m.muted {
		return
	}
	m.pushLocked(line)
}

func (m *Mock) pushLocked(line string) {
	select {
	case m.lines <- line:
	default:
		m.log.Warnw("mock line buffer full, dropping line", "line", line)
	}
}

// stepLocked advances the chamber model by one polling step.
func (m *Mock) stepLocked() {
	m.steps++
	ambient := m.cfg.AmbientTemperature

	for i := range m.temps {
		// Heater chamber zones (2, 3) respond faster than the test chamber.
		gain := m.cfg.HeaterRate
		if i == 2 || i == 3 {
			gain *= 2
		}
		switch {
		case i == 4:
			m.temps[i] = ambient
		case m.heater:
			m.temps[i] += gain
		default:
			m.temps[i] += (ambient - m.temps[i]) * 0.05
		}
	}

	if m.mistLeft > 0 {
		m.humidity += m.cfg.MistRate
		m.mistLeft--
	} else {
		decay := 0.02
		if m.fans {
			decay = 0.1
		}
		m.humidity += (m.cfg.AmbientHumidity - m.humidity) * decay
	}
	m.humidity = min(max(m.humidity, 0), 100)
}

func (m *Mock) dataLineLocked() string {
	parts := make([]string, 0, Zones+1)
	for i, t := range m.temps {
		parts = append(parts, strconv.FormatFloat(t+m.jitter(i), 'f', 2, 64))
	}
	parts = append(parts, strconv.FormatFloat(m.humidity+m.jitter(Zones), 'f', 2, 64))
	return strings.Join(parts, " ")
}

// jitter is a deterministic sensor noise term.
func (m *Mock) jitter(zone int) float64 {
	phase := float32(m.steps)*0.7 + float32(zone)*1.3
	return float64(math32.Sin(phase) * float32(m.cfg.NoiseLevel))
}
