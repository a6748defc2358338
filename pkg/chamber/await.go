package chamber

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrTransportTimeout is returned when the firmware does not produce an
// expected line within the configured timeout.
var ErrTransportTimeout = errors.New("transport timeout")

// LineReader is the inbound half of a Device.
type LineReader interface {
	ReadLine(ctx context.Context) (string, error)
}

// Await reads lines until accept returns true and returns the accepted line.
// Lines that are not accepted are logged as noise and skipped. A zero
// timeout waits for as long as ctx allows.
func Await(ctx context.Context, r LineReader, timeout time.Duration, log *zap.SugaredLogger, accept func(line string) bool) (string, error) {
	readCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		line, err := r.ReadLine(readCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return "", fmt.Errorf("%w after %v", ErrTransportTimeout, timeout)
			}
			return "", err
		}
		if accept(line) {
			return line, nil
		}
		if log != nil {
			log.Debugf("- %s", line)
		}
	}
}
