// Package runlog writes the per-run event log: one line per actuation event
// and one line per telemetry sample, each carrying elapsed seconds.
package runlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/itohio/mechtester/pkg/clock"
)

// ErrClosed is returned for writes after Close.
var ErrClosed = errors.New("run log closed")

const dateLayout = "02_Jan_2006"

// Log is an append-only run log.
type Log struct {
	mu     sync.Mutex
	path   string
	closer io.Closer
	w      *bufio.Writer
	closed bool
}

// Open creates a fresh log file <dir>/<name>/<name>_<date>_Run<N>.log,
// picking the first run number that is not taken yet.
func Open(dir, name string, now time.Time) (*Log, error) {
	if name == "" {
		return nil, fmt.Errorf("run log name is empty")
	}
	runDir := filepath.Join(dir, name)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", runDir, err)
	}

	base := filepath.Join(runDir, fmt.Sprintf("%s_%s_Run", name, now.UTC().Format(dateLayout)))
	for n := 1; ; n++ {
		path := fmt.Sprintf("%s%d.log", base, n)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
		return &Log{path: path, closer: f, w: bufio.NewWriter(f)}, nil
	}
}

// New wraps an arbitrary writer. Close closes w if it is an io.Closer.
func New(w io.Writer) *Log {
	l := &Log{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		l.closer = c
	}
	return l
}

// Path returns the file path, empty for writer-backed logs.
func (l *Log) Path() string { return l.path }

// Event writes "<elapsed> <VERB> <args...>".
func (l *Log) Event(elapsed float64, verb string, args ...string) error {
	var b strings.Builder
	b.WriteString(clock.Format(elapsed))
	b.WriteByte(' ')
	b.WriteString(verb)
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	return l.writeLine(b.String())
}

// Sample writes the raw telemetry field strings, comma separated.
func (l *Log) Sample(fields []string) error {
	return l.writeLine(strings.Join(fields, ", "))
}

func (l *Log) writeLine(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if _, err := l.w.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write run log: %w", err)
	}
	// Flush per line so the file survives an aborted run.
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("flush run log: %w", err)
	}
	return nil
}

// Closed reports whether the log has been closed.
func (l *Log) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close flushes and closes the log. Closing twice is a no-op.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	err := l.w.Flush()
	if l.closer != nil {
		if cerr := l.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("close run log: %w", err)
	}
	return nil
}
