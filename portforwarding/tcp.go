package portforwarding

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hop.computer/throttle/monitor"
	"hop.computer/throttle/proxy"
	"hop.computer/throttle/throttle"
)

// TCPRedirect is the TCP relay engine.
type TCPRedirect struct {
	cfg        Config
	opts       proxy.Options
	listener   *net.TCPListener
	listenerID monitor.SocketID
}

// ListenTCP binds and registers the listening socket on cfg.NewAddr.
func ListenTCP(t *monitor.Task, cfg Config) (*TCPRedirect, error) {
	cfg = cfg.withDefaults()
	l, err := listenConfig(cfg).Listen(t.Monitor().Context(), "tcp", cfg.NewAddr.String())
	if err != nil {
		return nil, errors.Wrapf(err, "PF: TCP listener can't start on %v", cfg.NewAddr)
	}
	tl := l.(*net.TCPListener)
	id := t.RegisterSocket(tl)
	if err := setBacklog(tl, cfg.Backlog); err != nil {
		t.CloseSocket(id)
		return nil, err
	}
	logrus.Infof("PF: TCP listening on %v, relaying to %v at %v", tl.Addr(), cfg.ServerAddr, cfg.Bandwidth)
	return &TCPRedirect{
		cfg:        cfg,
		opts:       cfg.proxyOptions(),
		listener:   tl,
		listenerID: id,
	}, nil
}

// RedirectTCP binds and serves a TCP engine on the calling task.
func RedirectTCP(t *monitor.Task, cfg Config) error {
	r, err := ListenTCP(t, cfg)
	if err != nil {
		return err
	}
	return r.Serve(t)
}

// Addr is the bound listening address.
func (r *TCPRedirect) Addr() net.Addr {
	return r.listener.Addr()
}

// Serve accepts connections until shutdown and hands each one to its own
// handler task.
func (r *TCPRedirect) Serve(t *monitor.Task) error {
	defer t.CloseSocket(r.listenerID)

	for !t.IsShutdown() {
		if err := r.listener.SetDeadline(time.Now().Add(r.cfg.PollInterval)); err != nil {
			return errors.Wrap(err, "PF: TCP listener")
		}
		local, err := r.listener.AcceptTCP()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			// Out of descriptors and similar: back off for a poll and retry.
			logrus.Warnf("PF: TCP listener can't accept connection: %v", err)
			throttle.Sleep(t, r.cfg.PollInterval, r.cfg.PollInterval)
			continue
		}
		id := t.RegisterSocket(local)
		logrus.Infof("PF: TCP connection accepted from %s", local.RemoteAddr())
		t.Spawn("tcp handler "+local.RemoteAddr().String(), func(h *monitor.Task) error {
			return r.handle(h, local, id)
		})
	}
	logrus.Debugf("PF: TCP listener on %v stopping", r.listener.Addr())
	return nil
}

func (r *TCPRedirect) handle(t *monitor.Task, local *net.TCPConn, localID monitor.SocketID) error {
	defer t.CloseSocket(localID)

	d := net.Dialer{Timeout: r.cfg.ConnectTimeout}
	conn, err := d.DialContext(t.Monitor().Context(), "tcp", r.cfg.ServerAddr.String())
	if err != nil {
		logrus.Errorf("PF: couldn't connect to %v: %v", r.cfg.ServerAddr, err)
		return errors.Wrapf(err, "PF: connect %v", r.cfg.ServerAddr)
	}
	remote := conn.(*net.TCPConn)
	remoteID := t.RegisterSocket(remote)
	defer t.CloseSocket(remoteID)

	p := proxy.NewReliable(local, remote, r.opts)
	p.Start(t)
	p.Wait()
	logrus.Infof("PF: closing connection to %v", local.RemoteAddr())
	return nil
}
