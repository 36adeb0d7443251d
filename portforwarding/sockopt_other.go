//go:build !unix

package portforwarding

import (
	"net"

	"github.com/sirupsen/logrus"
)

func listenConfig(cfg Config) *net.ListenConfig {
	if cfg.ReuseAddress {
		logrus.Warn("PF: address reuse is not supported on this platform")
	}
	return &net.ListenConfig{}
}

func setBacklog(l *net.TCPListener, backlog int) error {
	logrus.Debugf("PF: keeping the system listen backlog instead of %d", backlog)
	return nil
}
