//go:build unix

package portforwarding

import (
	"net"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func listenConfig(cfg Config) *net.ListenConfig {
	lc := &net.ListenConfig{}
	if cfg.ReuseAddress {
		lc.Control = func(network, address string, c syscall.RawConn) error {
			var serr error
			err := c.Control(func(fd uintptr) {
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return errors.Wrap(serr, "SO_REUSEADDR")
		}
	}
	return lc
}

// setBacklog re-issues listen(2) with the configured queue length. The
// runtime listens with the system maximum; calling listen again on a
// listening socket only adjusts the queue.
func setBacklog(l *net.TCPListener, backlog int) error {
	rc, err := l.SyscallConn()
	if err != nil {
		return err
	}
	var lerr error
	err = rc.Control(func(fd uintptr) {
		lerr = unix.Listen(int(fd), backlog)
	})
	if err != nil {
		return err
	}
	return errors.Wrapf(lerr, "listen backlog %d", backlog)
}
