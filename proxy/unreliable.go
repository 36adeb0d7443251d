package proxy

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hop.computer/throttle/common"
	"hop.computer/throttle/monitor"
	"hop.computer/throttle/throttle"
)

// Unreliable is the datagram path of one UDP pseudo-session. The session
// socket talks to the original server; replies are sent to the client from
// the shared listening socket so the client only ever sees the address it
// contacted.
type Unreliable struct {
	session  *net.UDPConn
	listener *net.UDPConn
	client   *net.UDPAddr
	opts     Options

	lastActive common.AtomicTime
}

// NewUnreliable binds a session socket to its client.
func NewUnreliable(session, listener *net.UDPConn, client *net.UDPAddr, opts Options) *Unreliable {
	u := &Unreliable{
		session:  session,
		listener: listener,
		client:   client,
		opts:     opts.withDefaults(),
	}
	u.lastActive.Touch()
	return u
}

// Client is the address the session serves.
func (u *Unreliable) Client() *net.UDPAddr { return u.client }

// LocalAddr is the session socket's ephemeral address.
func (u *Unreliable) LocalAddr() net.Addr { return u.session.LocalAddr() }

// IdleFor is the time since a datagram last crossed the session in either
// direction.
func (u *Unreliable) IdleFor() time.Duration { return u.lastActive.Since() }

// Forward throttles a datagram from the client and sends it to server from
// the session socket.
func (u *Unreliable) Forward(s throttle.Shutdowner, data []byte, server *net.UDPAddr) error {
	u.lastActive.Touch()
	if !throttle.Wait(s, len(data), u.opts.Rate, u.opts.PollInterval) {
		return nil
	}
	_, err := u.session.WriteToUDP(data, server)
	return err
}

// Return is the work of the session's return-pump task: it relays everything
// the session socket receives back to the client until shutdown or until the
// session socket is closed.
func (u *Unreliable) Return(t *monitor.Task) error {
	buf := make([]byte, u.opts.BufferSize)
	var written int64
	defer func() {
		logrus.Debugf("UDP: wrote %v bytes from %v to %v", written, u.session.LocalAddr(), u.client)
	}()

	for !t.IsShutdown() {
		if err := u.session.SetReadDeadline(time.Now().Add(u.opts.PollInterval)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.Wrap(err, "set read deadline")
		}
		n, _, err := u.session.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.Wrapf(err, "read from %v", u.session.LocalAddr())
		}
		u.lastActive.Touch()
		if !throttle.Wait(t, n, u.opts.Rate, u.opts.PollInterval) {
			return nil
		}
		if _, err := u.listener.WriteToUDP(buf[:n], u.client); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.Wrapf(err, "write to %v", u.client)
		}
		written += int64(n)
	}
	return nil
}
