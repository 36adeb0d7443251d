// Package portforwarding runs the relay engines. A TCP engine terminates
// connections on the new address and relays each one to a fresh connection to
// the original server. A UDP engine keeps one pseudo-session per client
// address so that replies always come from the new address.
package portforwarding

import (
	"net"
	"os"
	"time"

	"github.com/pkg/errors"

	"hop.computer/throttle/common"
	"hop.computer/throttle/core"
	"hop.computer/throttle/monitor"
	"hop.computer/throttle/proxy"
	"hop.computer/throttle/throttle"
)

// Config is the immutable configuration of one engine.
type Config struct {
	// NewAddr is where clients connect.
	NewAddr core.Address

	// ServerAddr is the original server.
	ServerAddr core.Address

	Bandwidth    throttle.Rate
	PollInterval time.Duration

	// Backlog is the TCP listen queue length.
	Backlog int

	ConnectTimeout     time.Duration
	IdleTimeout        time.Duration
	SessionIdleTimeout time.Duration

	// ReuseAddress sets SO_REUSEADDR on the listening socket.
	ReuseAddress bool
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = common.DefaultPollInterval
	}
	if c.Backlog <= 0 {
		c.Backlog = common.DefaultBacklog
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = common.DefaultConnectTimeout
	}
	return c
}

func (c Config) proxyOptions() proxy.Options {
	return proxy.Options{
		Rate:         c.Bandwidth,
		PollInterval: c.PollInterval,
		IdleTimeout:  c.IdleTimeout,
		BufferSize:   common.BufferSize,
	}
}

// Engine is a bound relay engine.
type Engine interface {
	// Addr is the bound listening address.
	Addr() net.Addr

	// Serve runs the engine until shutdown. It is the work of the engine's
	// task and closes every socket the engine registered before returning.
	Serve(t *monitor.Task) error
}

// Listen binds the engine for p. Bind errors are returned here, never from
// Serve.
func Listen(t *monitor.Task, p core.Protocol, cfg Config) (Engine, error) {
	switch p {
	case core.TCP:
		return ListenTCP(t, cfg)
	case core.UDP:
		return ListenUDP(t, cfg)
	default:
		return nil, errors.Wrapf(core.ErrUnknownProtocol, "%v", p)
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}
