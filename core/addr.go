// Package core contains the small value types shared by the throttle's
// configuration and relay engines.
package core

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// ErrInvalidAddress is returned when an address is not of the form host:port.
var ErrInvalidAddress = errors.New("invalid address")

// Address is a hostname and port pair. An empty Host listens on every local
// interface.
type Address struct {
	Host string
	Port int
}

// Localhost is the address of port on the loopback host.
func Localhost(port int) Address {
	return Address{Host: "localhost", Port: port}
}

// ParseAddress parses an address of the form host:port. IPv6 hosts must be
// bracketed.
func ParseAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, errors.Wrapf(ErrInvalidAddress, "%q", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return Address{}, errors.Wrapf(ErrInvalidAddress, "%q: bad port", s)
	}
	return Address{Host: host, Port: port}, nil
}

// IsZero reports whether a is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns a string of the form "host:port".
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

func (a Address) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return nil, nil
	}
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
