package chamber

import "context"

// Device is the line-oriented link to the chamber firmware (real or mocked).
type Device interface {
	Connect() error
	Close() error
	IsConnected() bool
	// Send writes one command line; the CR-LF terminator is appended.
	Send(cmd string) error
	// ReadLine blocks until the next line arrives, ctx is done or the device
	// is closed. The line terminator is stripped.
	ReadLine(ctx context.Context) (string, error)
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
