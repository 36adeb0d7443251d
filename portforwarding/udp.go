package portforwarding

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"hop.computer/throttle/monitor"
	"hop.computer/throttle/proxy"
)

// maxDatagram is the largest UDP payload.
const maxDatagram = 64 * 1024

// session is a UDP pseudo-session. It is fully built before it is added to
// the session table.
type session struct {
	client   *net.UDPAddr
	socketID monitor.SocketID
	pump     *proxy.Unreliable
	task     *monitor.Task
}

// UDPRedirect is the UDP relay engine.
type UDPRedirect struct {
	cfg        Config
	opts       proxy.Options
	server     *net.UDPAddr
	listener   *net.UDPConn
	listenerID monitor.SocketID

	mu sync.Mutex

	// +checklocks:mu
	sessions map[string]*session
}

// ListenUDP binds and registers the shared listening socket on cfg.NewAddr.
func ListenUDP(t *monitor.Task, cfg Config) (*UDPRedirect, error) {
	cfg = cfg.withDefaults()
	server, err := net.ResolveUDPAddr("udp", cfg.ServerAddr.String())
	if err != nil {
		return nil, errors.Wrapf(err, "PF: can't resolve %v", cfg.ServerAddr)
	}
	pc, err := listenConfig(cfg).ListenPacket(t.Monitor().Context(), "udp", cfg.NewAddr.String())
	if err != nil {
		return nil, errors.Wrapf(err, "PF: UDP listener can't start on %v", cfg.NewAddr)
	}
	l := pc.(*net.UDPConn)
	id := t.RegisterSocket(l)
	logrus.Infof("PF: UDP listening on %v, relaying to %v at %v", l.LocalAddr(), server, cfg.Bandwidth)
	return &UDPRedirect{
		cfg:        cfg,
		opts:       cfg.proxyOptions(),
		server:     server,
		listener:   l,
		listenerID: id,
		sessions:   make(map[string]*session),
	}, nil
}

// RedirectUDP binds and serves a UDP engine on the calling task.
func RedirectUDP(t *monitor.Task, cfg Config) error {
	r, err := ListenUDP(t, cfg)
	if err != nil {
		return err
	}
	return r.Serve(t)
}

// Addr is the bound listening address.
func (r *UDPRedirect) Addr() net.Addr {
	return r.listener.LocalAddr()
}

// Sessions lists the client addresses with a live pseudo-session.
func (r *UDPRedirect) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := maps.Keys(r.sessions)
	slices.Sort(keys)
	return keys
}

// Serve reads datagrams from clients until shutdown and forwards each one
// through the client's session socket.
func (r *UDPRedirect) Serve(t *monitor.Task) error {
	defer r.closeAll(t)

	buf := make([]byte, maxDatagram)
	lastSweep := time.Now()
	for !t.IsShutdown() {
		if time.Since(lastSweep) >= r.cfg.PollInterval {
			r.sweep(t)
			lastSweep = time.Now()
		}
		if err := r.listener.SetReadDeadline(time.Now().Add(r.cfg.PollInterval)); err != nil {
			return errors.Wrap(err, "PF: UDP listener")
		}
		n, client, err := r.listener.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logrus.Debugf("PF: UDP listener read: %v", err)
			continue
		}
		s := r.session(t, client)
		if s == nil {
			continue
		}
		if err := s.pump.Forward(t, buf[:n], r.server); err != nil {
			logrus.Debugf("PF: UDP forward from %v: %v", client, err)
		}
	}
	logrus.Debugf("PF: UDP listener on %v stopping", r.listener.LocalAddr())
	return nil
}

// session returns the client's session, creating it if needed. It returns
// nil if no session socket could be opened.
func (r *UDPRedirect) session(t *monitor.Task, client *net.UDPAddr) *session {
	key := client.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		return s
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		logrus.Errorf("PF: can't open UDP session socket for %v: %v", client, err)
		return nil
	}
	s := &session{
		client:   client,
		socketID: t.RegisterSocket(conn),
		pump:     proxy.NewUnreliable(conn, r.listener, client, r.opts),
	}
	s.task = t.Spawn("udp return "+key, s.pump.Return)
	r.sessions[key] = s
	logrus.Infof("PF: new UDP session from %v via %v", client, s.pump.LocalAddr())
	return s
}

// sweep removes sessions whose return pump has exited and, when a session
// idle timeout is set, sessions that have been silent for that long.
func (r *UDPRedirect) sweep(t *monitor.Task) {
	var expired []*session
	r.mu.Lock()
	for key, s := range r.sessions {
		select {
		case <-s.task.Done():
		default:
			if r.cfg.SessionIdleTimeout <= 0 || s.pump.IdleFor() < r.cfg.SessionIdleTimeout {
				continue
			}
		}
		delete(r.sessions, key)
		expired = append(expired, s)
	}
	r.mu.Unlock()

	for _, s := range expired {
		logrus.Infof("PF: closing UDP session from %v", s.client)
		t.CloseSocket(s.socketID)
	}
}

// closeAll closes the shared listening socket first so that no new session
// can appear, then every session socket.
func (r *UDPRedirect) closeAll(t *monitor.Task) {
	t.CloseSocket(r.listenerID)

	r.mu.Lock()
	sessions := maps.Values(r.sessions)
	r.sessions = make(map[string]*session)
	r.mu.Unlock()

	for _, s := range sessions {
		t.CloseSocket(s.socketID)
	}
}
