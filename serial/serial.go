// Package serial provides the byte-stream transport the drivers talk to their devices over.
package serial

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrTimeout is returned when a read or write does not complete within its timeout.
	ErrTimeout = errors.New("serial: timeout")
	// ErrClosed is returned by operations on a closed port.
	ErrClosed = errors.New("serial: port closed")
)

// Port is an open byte-stream to a device.
type Port interface {
	// Read reads exactly n bytes. If the timeout elapses first, the bytes read so far are
	// returned together with ErrTimeout.
	Read(ctx context.Context, n int, timeout time.Duration) ([]byte, error)
	// Write writes all of data.
	Write(ctx context.Context, data []byte, timeout time.Duration) error
	// Drain discards any buffered input.
	Drain(ctx context.Context) error
	Close() error
}

// Options to be passed to Open(), closely mirrors go.bug.st/serial.Mode.
type Options struct {
	BaudRate     int
	DataBits     int
	StopBits     StopBits
	Parity       Parity
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Parity describes a serial port parity setting.
type Parity int

const (
	// NoParity disable parity control (default).
	NoParity Parity = iota
	// OddParity enable odd-parity check.
	OddParity
	// EvenParity enable even-parity check.
	EvenParity
	// MarkParity enable mark-parity (always 1) check.
	MarkParity
	// SpaceParity enable space-parity (always 0) check.
	SpaceParity
)

// StopBits describe a serial port stop bits setting.
type StopBits int

const (
	// OneStopBit sets 1 stop bit (default).
	OneStopBit StopBits = iota
	// OnePointFiveStopBits sets 1.5 stop bits.
	OnePointFiveStopBits
	// TwoStopBits sets 2 stop bits.
	TwoStopBits
)

// DefaultTimeout is the read/write timeout used when Options leaves it unset.
const DefaultTimeout = time.Second

// Options8N1 returns 8 data bits, no parity, one stop bit at the given baud rate with default
// timeouts. There is no handshake.
func Options8N1(baudRate int) Options {
	return Options{
		BaudRate:     baudRate,
		DataBits:     8,
		StopBits:     OneStopBit,
		Parity:       NoParity,
		ReadTimeout:  DefaultTimeout,
		WriteTimeout: DefaultTimeout,
	}
}

// Open attempts to open a serial device on the given path. It's a variable
// in case you need to override it during tests.
var Open = func(devicePath string, options Options) (Port, error) {
	p, err := openPort(devicePath, options)
	if err != nil {
		return nil, err
	}
	return p, nil
}
