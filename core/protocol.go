package core

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// ErrUnknownProtocol is returned for anything other than tcp or udp.
var ErrUnknownProtocol = errors.New("unknown protocol")

// Protocol is a transport the throttle can relay.
type Protocol int

// Protocols in canonical order.
const (
	TCP Protocol = iota + 1
	UDP
)

// ParseProtocol accepts "tcp" or "udp" in any case.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tcp":
		return TCP, nil
	case "udp":
		return UDP, nil
	default:
		return 0, errors.Wrapf(ErrUnknownProtocol, "%q: only 'tcp' and 'udp' are supported", s)
	}
}

func (p Protocol) String() string {
	switch p {
	case TCP:
		return "tcp"
	case UDP:
		return "udp"
	default:
		return "unknown"
	}
}

// ProtocolSet is a sorted set of protocols without duplicates.
type ProtocolSet []Protocol

// ParseProtocolSet parses a comma separated protocol list such as "tcp,udp".
func ParseProtocolSet(s string) (ProtocolSet, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.Wrap(ErrUnknownProtocol, "empty protocol list")
	}
	var set ProtocolSet
	for _, part := range strings.Split(s, ",") {
		p, err := ParseProtocol(part)
		if err != nil {
			return nil, err
		}
		set = append(set, p)
	}
	slices.Sort(set)
	return slices.Compact(set), nil
}

// Has reports whether p is in the set.
func (s ProtocolSet) Has(p Protocol) bool {
	return slices.Contains(s, p)
}

func (s ProtocolSet) String() string {
	parts := make([]string, len(s))
	for i, p := range s {
		parts[i] = p.String()
	}
	return strings.Join(parts, ",")
}

func (s ProtocolSet) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ProtocolSet) UnmarshalText(text []byte) error {
	parsed, err := ParseProtocolSet(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
