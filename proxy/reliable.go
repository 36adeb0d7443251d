package proxy

import (
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hop.computer/throttle/common"
	"hop.computer/throttle/monitor"
	"hop.computer/throttle/throttle"
)

// Conn is a stream socket whose write half can be shut down on its own.
// *net.TCPConn and *net.UnixConn implement it.
type Conn interface {
	net.Conn
	CloseWrite() error
}

// Reliable relays a stream connection in both directions with one pump task
// per direction. The pumps share a stop flag, so the end of one direction
// ends the other within a poll interval. Reliable never closes either
// connection; the caller does that after Wait returns.
type Reliable struct {
	in   Conn
	out  Conn
	opts Options

	stopped    common.AtomicBool
	lastActive common.AtomicTime

	inToOut *monitor.Task
	outToIn *monitor.Task
}

// NewReliable pairs the accepted connection in with the outbound connection
// out.
func NewReliable(in, out Conn, opts Options) *Reliable {
	return &Reliable{
		in:   in,
		out:  out,
		opts: opts.withDefaults(),
	}
}

// Start spawns both pump tasks as children of t.
func (r *Reliable) Start(t *monitor.Task) {
	r.lastActive.Touch()
	logrus.Debugf("TCP: starting relay between %v and %v", r.in.RemoteAddr(), r.out.RemoteAddr())
	r.inToOut = t.Spawn("tcp in->out "+r.in.RemoteAddr().String(), func(t *monitor.Task) error {
		return r.pump(t, r.in, r.out, "in->out")
	})
	r.outToIn = t.Spawn("tcp out->in "+r.in.RemoteAddr().String(), func(t *monitor.Task) error {
		return r.pump(t, r.out, r.in, "out->in")
	})
}

// Wait blocks until both pumps have exited.
func (r *Reliable) Wait() {
	<-r.inToOut.Done()
	<-r.outToIn.Done()
}

// Stop asks both pumps to exit.
func (r *Reliable) Stop() {
	r.stopped.SetTrue()
}

// Stopped reports whether either pump has ended the relay.
func (r *Reliable) Stopped() bool {
	return r.stopped.IsSet()
}

func (r *Reliable) running(t *monitor.Task) bool {
	return !t.IsShutdown() && !r.stopped.IsSet()
}

// pumpStop interrupts a throttle sleep on shutdown or when the other
// direction has ended the relay.
type pumpStop struct {
	t *monitor.Task
	r *Reliable
}

func (s pumpStop) IsShutdown() bool {
	return !s.r.running(s.t)
}

func (r *Reliable) pump(t *monitor.Task, src, dst Conn, direction string) error {
	buf := make([]byte, r.opts.BufferSize)
	stop := pumpStop{t: t, r: r}
	var written int64
	defer func() {
		logrus.Debugf("TCP: %s wrote %v bytes from %v to %v", direction, written, src.RemoteAddr(), dst.RemoteAddr())
	}()

	for r.running(t) {
		if err := src.SetReadDeadline(time.Now().Add(r.opts.PollInterval)); err != nil {
			r.Stop()
			return errors.Wrapf(err, "%s: set read deadline", direction)
		}
		n, err := src.Read(buf)
		if n > 0 {
			r.lastActive.Touch()
			if !throttle.Wait(stop, n, r.opts.Rate, r.opts.PollInterval) {
				break
			}
			m, werr := r.write(t, dst, buf[:n])
			written += int64(m)
			if werr != nil {
				r.Stop()
				return errors.Wrapf(werr, "%s: write", direction)
			}
		}
		switch {
		case err == nil:
		case isTimeout(err):
			if r.idle() {
				logrus.Debugf("TCP: %s idle for %v, stopping", direction, r.opts.IdleTimeout)
				r.Stop()
				return nil
			}
		case errors.Is(err, io.EOF):
			// Propagate the half-close, then end both directions.
			cerr := dst.CloseWrite()
			r.Stop()
			if cerr != nil && !errors.Is(cerr, net.ErrClosed) {
				return errors.Wrapf(cerr, "%s: close write", direction)
			}
			return nil
		default:
			r.Stop()
			return errors.Wrapf(err, "%s: read", direction)
		}
	}
	return nil
}

// write forwards data in slices bounded by the poll interval so that a peer
// that stops reading cannot hold the pump past shutdown.
func (r *Reliable) write(t *monitor.Task, dst Conn, data []byte) (int, error) {
	total := 0
	for len(data) > 0 && r.running(t) {
		if err := dst.SetWriteDeadline(time.Now().Add(r.opts.PollInterval)); err != nil {
			return total, err
		}
		n, err := dst.Write(data)
		total += n
		data = data[n:]
		if err != nil && !isTimeout(err) {
			return total, err
		}
	}
	return total, nil
}

func (r *Reliable) idle() bool {
	return r.opts.IdleTimeout > 0 && r.lastActive.Since() >= r.opts.IdleTimeout
}
