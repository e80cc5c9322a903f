// Package serialtest provides an in-memory serial.Port for driver tests.
package serialtest

import (
	"context"
	"sync"
	"time"

	"github.com/navbot/navbot/serial"
)

// Port is a scripted serial.Port. Bytes handed to Feed, or returned by Responder for each
// write, become readable input. Every write is recorded.
type Port struct {
	mu      sync.Mutex
	input   []byte
	writes  [][]byte
	drains  int
	closed  bool
	changed chan struct{}

	// Responder, when set, is called with each write and its result is appended to the input.
	Responder func(written []byte) []byte
	// WriteErr, when set, is returned by every Write.
	WriteErr error
}

var _ serial.Port = (*Port)(nil)

// NewPort returns an empty Port.
func NewPort() *Port {
	return &Port{changed: make(chan struct{})}
}

// Feed appends bytes to the readable input.
func (p *Port) Feed(data ...byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.input = append(p.input, data...)
	p.notifyInLock()
}

func (p *Port) notifyInLock() {
	close(p.changed)
	p.changed = make(chan struct{})
}

// Writes returns a copy of everything written so far, one entry per Write call.
func (p *Port) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.writes))
	copy(out, p.writes)
	return out
}

// Drains returns how many times Drain was called.
func (p *Port) Drains() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drains
}

// Pending returns the number of unread input bytes.
func (p *Port) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.input)
}

// Read implements serial.Port.
func (p *Port) Read(ctx context.Context, n int, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, serial.ErrClosed
		}
		if len(p.input) >= n {
			out := make([]byte, n)
			copy(out, p.input)
			p.input = p.input[n:]
			p.mu.Unlock()
			return out, nil
		}
		changed := p.changed
		p.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			p.mu.Lock()
			out := make([]byte, len(p.input))
			copy(out, p.input)
			p.input = nil
			p.mu.Unlock()
			return out, serial.ErrTimeout
		}
	}
}

// Write implements serial.Port.
func (p *Port) Write(ctx context.Context, data []byte, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return serial.ErrClosed
	}
	if p.WriteErr != nil {
		p.mu.Unlock()
		return p.WriteErr
	}
	written := make([]byte, len(data))
	copy(written, data)
	p.writes = append(p.writes, written)
	responder := p.Responder
	p.mu.Unlock()

	if responder != nil {
		if resp := responder(written); len(resp) > 0 {
			p.Feed(resp...)
		}
	}
	return nil
}

// Drain implements serial.Port.
func (p *Port) Drain(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return serial.ErrClosed
	}
	p.drains++
	p.input = nil
	return nil
}

// Close implements serial.Port.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.notifyInLock()
	}
	return nil
}

// Closed reports whether Close was called.
func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
