package serial

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	ser "go.bug.st/serial"
	"go.uber.org/atomic"
)

// readSlice bounds a single blocking read so that cancellation is observed promptly.
const readSlice = 50 * time.Millisecond

type port struct {
	path    string
	options Options

	readMu  sync.Mutex
	writeMu sync.Mutex
	dev     ser.Port
	closed  atomic.Bool
}

func openPort(devicePath string, options Options) (*port, error) {
	if options.DataBits == 0 {
		options.DataBits = 8
	}
	if options.ReadTimeout <= 0 {
		options.ReadTimeout = DefaultTimeout
	}
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = DefaultTimeout
	}

	mode := &ser.Mode{
		BaudRate: options.BaudRate,
		Parity:   ser.Parity(options.Parity),
		DataBits: options.DataBits,
		StopBits: ser.StopBits(options.StopBits),
	}

	dev, err := ser.Open(devicePath, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial %s", devicePath)
	}
	return &port{path: devicePath, options: options, dev: dev}, nil
}

func (p *port) Read(ctx context.Context, n int, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = p.options.ReadTimeout
	}
	p.readMu.Lock()
	defer p.readMu.Unlock()

	buf := make([]byte, n)
	deadline := time.Now().Add(timeout)
	read := 0
	for read < n {
		if p.closed.Load() {
			return buf[:read], ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return buf[:read], err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return buf[:read], ErrTimeout
		}
		if remaining > readSlice {
			remaining = readSlice
		}
		if err := p.dev.SetReadTimeout(remaining); err != nil {
			return buf[:read], p.wrapErr(err)
		}
		// a zero-length read with no error is a timeout slice elapsing
		m, err := p.dev.Read(buf[read:])
		if err != nil {
			return buf[:read], p.wrapErr(err)
		}
		read += m
	}
	return buf, nil
}

func (p *port) Write(ctx context.Context, data []byte, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.options.WriteTimeout
	}
	if p.closed.Load() {
		return ErrClosed
	}

	// go.bug.st/serial has no write deadline; run the write aside and stop waiting on it.
	errCh := make(chan error, 1)
	go func() {
		p.writeMu.Lock()
		defer p.writeMu.Unlock()
		written := 0
		for written < len(data) {
			m, err := p.dev.Write(data[written:])
			if err != nil {
				errCh <- p.wrapErr(err)
				return
			}
			written += m
		}
		errCh <- nil
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}

func (p *port) Drain(ctx context.Context) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.wrapErr(p.dev.ResetInputBuffer())
}

func (p *port) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.dev.Close()
}

func (p *port) wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var portErr *ser.PortError
	if p.closed.Load() || (errors.As(err, &portErr) && portErr.Code() == ser.PortClosed) {
		return ErrClosed
	}
	return errors.Wrapf(err, "serial %s", p.path)
}
