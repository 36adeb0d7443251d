// Package app runs a throttle process: one relay engine per configured
// protocol, the monitor's watch loop and the optional status endpoint.
package app

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hop.computer/throttle/config"
	"hop.computer/throttle/core"
	"hop.computer/throttle/monitor"
	"hop.computer/throttle/portforwarding"
	"hop.computer/throttle/status"
)

// ErrDrainTimeout is returned by Shutdown when relay tasks were still running
// at the drain deadline.
var ErrDrainTimeout = errors.New("relay tasks did not finish before the drain timeout")

// Throttle is a running localhost throttle.
type Throttle struct {
	cfg config.Config
	m   *monitor.Monitor

	engines map[core.Protocol]portforwarding.Engine
	udp     *portforwarding.UDPRedirect

	watchStop chan struct{}
	watchDone chan struct{}

	status     *http.Server
	statusAddr net.Addr
	statusDone chan struct{}

	started      bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// New prepares a throttle for cfg. Nothing is bound until Start.
func New(cfg *config.Config) *Throttle {
	return &Throttle{
		cfg:       *cfg,
		m:         monitor.New(),
		engines:   make(map[core.Protocol]portforwarding.Engine),
		watchStop: make(chan struct{}),
		watchDone: make(chan struct{}),
	}
}

func engineConfig(c *config.Config) portforwarding.Config {
	return portforwarding.Config{
		NewAddr:            c.NewServer,
		ServerAddr:         c.Server,
		Bandwidth:          c.Bandwidth,
		PollInterval:       c.PollInterval.Duration,
		Backlog:            c.Backlog,
		ConnectTimeout:     c.ConnectTimeout.Duration,
		IdleTimeout:        c.IdleTimeout.Duration,
		SessionIdleTimeout: c.SessionIdleTimeout.Duration,
		ReuseAddress:       c.ReuseAddress,
	}
}

// Start binds every engine, then starts them. If any engine fails to bind,
// nothing is started and every bound socket is closed.
func (a *Throttle) Start() error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	root := a.m.Root()
	ecfg := engineConfig(&a.cfg)
	for _, p := range a.cfg.Protocols {
		e, err := portforwarding.Listen(root, p, ecfg)
		if err != nil {
			a.m.CloseAllSockets()
			return err
		}
		a.engines[p] = e
		if u, ok := e.(*portforwarding.UDPRedirect); ok {
			a.udp = u
		}
	}

	if !a.cfg.StatusAddress.IsZero() {
		if err := a.startStatus(); err != nil {
			a.m.CloseAllSockets()
			return err
		}
	}

	for _, p := range a.cfg.Protocols {
		root.Spawn(p.String()+" engine", a.engines[p].Serve)
	}
	go func() {
		defer close(a.watchDone)
		a.m.Watch(a.cfg.PollInterval.Duration, a.watchStop)
	}()
	a.started = true
	logrus.Infof("throttle: redirecting %v from %v to %v at %v", a.cfg.Protocols, a.cfg.NewServer, a.cfg.Server, a.cfg.Bandwidth)
	return nil
}

func (a *Throttle) startStatus() error {
	l, err := net.Listen("tcp", a.cfg.StatusAddress.String())
	if err != nil {
		return errors.Wrapf(err, "status listener can't start on %v", a.cfg.StatusAddress)
	}
	a.statusAddr = l.Addr()
	a.status = &http.Server{
		Handler:           status.New(a),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.statusDone = make(chan struct{})
	go func() {
		defer close(a.statusDone)
		if err := a.status.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("status: %v", err)
		}
	}()
	logrus.Infof("status: serving on %v", a.statusAddr)
	return nil
}

// Monitor is the throttle's resource monitor.
func (a *Throttle) Monitor() *monitor.Monitor {
	return a.m
}

// Addr is the bound address of the engine for p, or nil if p is not relayed.
func (a *Throttle) Addr(p core.Protocol) net.Addr {
	e, ok := a.engines[p]
	if !ok {
		return nil
	}
	return e.Addr()
}

// StatusAddr is the bound status endpoint address, or nil.
func (a *Throttle) StatusAddr() net.Addr {
	return a.statusAddr
}

// Snapshot reports the monitor's registry.
func (a *Throttle) Snapshot() monitor.Snapshot {
	return a.m.Snapshot()
}

// Sessions lists the UDP clients with a live pseudo-session.
func (a *Throttle) Sessions() []string {
	if a.udp == nil {
		return nil
	}
	return a.udp.Sessions()
}

// Shutdown signals shutdown, drains every relay task and closes whatever
// socket is left. It returns ErrDrainTimeout if the drain did not complete.
// Later calls return the first result.
func (a *Throttle) Shutdown() error {
	a.shutdownOnce.Do(func() {
		a.shutdownErr = a.shutdown()
	})
	return a.shutdownErr
}

func (a *Throttle) shutdown() error {
	logrus.Info("throttle: shutting down")
	a.m.SignalShutdown()
	drained := a.m.Drain(a.cfg.DrainTimeout.Duration)

	if a.status != nil {
		a.status.Close()
		<-a.statusDone
	}
	if a.started {
		close(a.watchStop)
		<-a.watchDone
	}

	if n := a.m.CloseAllSockets(); n > 0 {
		logrus.Warnf("throttle: closed %d sockets left open after drain", n)
	}
	if !drained {
		tasks, _ := a.m.Stats()
		return errors.Wrapf(ErrDrainTimeout, "%d tasks running after %v", tasks, a.cfg.DrainTimeout)
	}
	logrus.Info("throttle: all relays finished")
	return nil
}
