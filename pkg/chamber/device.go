// Package chamber talks to the mechanical tester's microcontroller.
package chamber

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

const (
	// DefaultBaudRate is the firmware's fixed baud rate.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default number of buffered inbound lines.
	DefaultBufferSize = 100
	// LineTerminator ends every outbound command.
	LineTerminator = "\r\n"
	// MaxLineSize is the longest inbound line accepted. A longer line stops
	// the reader and the device reports itself disconnected.
	MaxLineSize = 1 << 20
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrClosed           = errors.New("device closed")
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial represents a connection to the chamber MCU.
type Serial struct {
	port     string
	baudRate int
	bufSize  int
	log      *zap.SugaredLogger

	conn      serial.Port
	lines     chan string
	done      chan struct{}
	mu        sync.RWMutex
	connected bool
	readErr   error // Set when the reader stopped on its own
}

// New creates a new Serial device with the specified port, baud rate, and buffer size.
func New(port string, baudRate int, bufSize int, log *zap.SugaredLogger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Serial{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		log:      log,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(details))
	for _, d := range details {
		desc := d.Name
		if d.IsUSB {
			desc = fmt.Sprintf("USB %s:%s", d.VID, d.PID)
			if d.Product != "" {
				desc += " " + d.Product
			}
		}
		result = append(result, Port{Name: d.Name, Description: desc})
	}
	return result, nil
}

// Connect opens the serial port and starts reading lines.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return ErrAlreadyConnected
	}

	mode := &serial.Mode{
		BaudRate: d.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(d.port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		d.log.Warnw("could not reset input buffer", "port", d.port, "err", err)
	}

	d.conn = port
	d.lines = make(chan string, d.bufSize)
	d.done = make(chan struct{})
	d.connected = true
	d.readErr = nil

	go d.readLines(port, d.lines, d.done)

	return nil
}

// Close closes the connection and stops reading lines.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	close(d.done)

	var err error
	if d.conn != nil {
		if err = d.conn.Close(); err != nil {
			err = fmt.Errorf("failed to close serial port %s: %w", d.port, err)
		}
		d.conn = nil
	}

	d.connected = false
	return err
}

// IsConnected returns whether the device is connected and still reading.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected && d.readErr == nil
}

// Send writes a command line to the MCU.
func (d *Serial) Send(cmd string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return ErrNotConnected
	}

	if _, err := d.conn.Write([]byte(cmd + LineTerminator)); err != nil {
		return fmt.Errorf("failed to send %q: %w", cmd, err)
	}
	return nil
}

// ReadLine returns the next line received from the MCU.
func (d *Serial) ReadLine(ctx context.Context) (string, error) {
	d.mu.RLock()
	lines, done, connected := d.lines, d.done, d.connected
	d.mu.RUnlock()

	if !connected {
		return "", ErrNotConnected
	}

	select {
	case line, ok := <-lines:
		if !ok {
			d.mu.RLock()
			defer d.mu.RUnlock()
			if d.readErr != nil {
				return "", fmt.Errorf("%w: %w", ErrClosed, d.readErr)
			}
			return "", ErrClosed
		}
		return line, nil
	case <-done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// readLines scans the port and forwards complete lines until the port is closed.
func (d *Serial) readLines(r io.Reader, lines chan<- string, done <-chan struct{}) {
	defer close(lines)
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Errorw("panic in serial reader", "panic", rec)
		}
	}()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), MaxLineSize)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		select {
		case lines <- line:
		case <-done:
			return
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-done:
			// Port closed on purpose.
		default:
			d.log.Errorw("error reading from serial port", "port", d.port, "err", err)
			d.mu.Lock()
			d.readErr = err
			d.mu.Unlock()
		}
	}
}
