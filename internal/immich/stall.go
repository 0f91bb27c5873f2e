package immich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

// ErrTransferStalled is returned when a download or upload moves no bytes
// for the stall timeout.
var ErrTransferStalled = errors.New("immich: transfer stalled")

const dialTimeout = 10 * time.Second

// newTransport bounds connection setup and the wait for response headers.
// Body streaming is left to the stall guard.
func newTransport(headerTimeout time.Duration) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = dialTimeout
	transport.ResponseHeaderTimeout = headerTimeout
	return transport
}

// stallGuard cancels a transfer once no bytes have moved for timeout. A nil
// guard is inert.
type stallGuard struct {
	timeout time.Duration
	timer   *time.Timer
	cancel  context.CancelCauseFunc
	stalled atomic.Bool
}

func withStallGuard(ctx context.Context, timeout time.Duration) (context.Context, *stallGuard) {
	if timeout <= 0 {
		return ctx, nil
	}
	ctx, cancel := context.WithCancelCause(ctx)
	g := &stallGuard{timeout: timeout, cancel: cancel}
	g.timer = time.AfterFunc(timeout, func() {
		g.stalled.Store(true)
		cancel(ErrTransferStalled)
	})
	return ctx, g
}

func (g *stallGuard) touch() {
	if g != nil {
		g.timer.Reset(g.timeout)
	}
}

func (g *stallGuard) stop() {
	if g != nil {
		g.timer.Stop()
		g.cancel(nil)
	}
}

// err replaces a cancellation caused by the guard with ErrTransferStalled.
func (g *stallGuard) err(err error) error {
	if err == nil || g == nil || !g.stalled.Load() {
		return err
	}
	return fmt.Errorf("%w after %s without progress", ErrTransferStalled, g.timeout)
}

// guardedReader feeds the guard on every read and keeps Close reachable for
// the transport.
type guardedReader struct {
	r     io.Reader
	guard *stallGuard
}

func (r *guardedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.guard.touch()
	}
	return n, r.guard.err(err)
}

func (r *guardedReader) Close() error {
	if closer, ok := r.r.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// guardedBody releases the guard when the response body is closed.
type guardedBody struct {
	guardedReader
}

func (b *guardedBody) Close() error {
	err := b.guardedReader.Close()
	b.guard.stop()
	return err
}
