package core

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"gotest.tools/assert"
	"gotest.tools/assert/cmp"
)

type addrTestInput struct {
	raw      string
	expected Address
	s        string
	e        bool
}

var inputs = []addrTestInput{
	{
		raw:      "localhost:8080",
		expected: Address{Host: "localhost", Port: 8080},
		s:        "localhost:8080",
	},
	{
		raw:      "127.0.0.1:0",
		expected: Address{Host: "127.0.0.1", Port: 0},
		s:        "127.0.0.1:0",
	},
	{
		raw:      "[::1]:53",
		expected: Address{Host: "::1", Port: 53},
		s:        "[::1]:53",
	},
	{
		raw:      ":9000",
		expected: Address{Port: 9000},
		s:        ":9000",
	},
	{raw: "localhost", e: true},
	{raw: "localhost:http", e: true},
	{raw: "localhost:65536", e: true},
	{raw: "::1:53", e: true},
}

func TestParseAddress(t *testing.T) {
	for i, in := range inputs {
		in := in
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			a, err := ParseAddress(in.raw)
			if in.e {
				assert.Assert(t, errors.Is(err, ErrInvalidAddress))
				return
			}
			assert.NilError(t, err)
			assert.Check(t, cmp.Equal(in.expected, a))
			assert.Check(t, cmp.Equal(in.s, a.String()))
		})
	}
}

func TestAddressText(t *testing.T) {
	var a Address
	assert.NilError(t, a.UnmarshalText([]byte("example.com:443")))
	assert.Equal(t, Address{Host: "example.com", Port: 443}, a)

	b, err := a.MarshalText()
	assert.NilError(t, err)
	assert.Equal(t, "example.com:443", string(b))

	assert.NilError(t, a.UnmarshalText(nil))
	assert.Assert(t, a.IsZero())
	assert.Equal(t, "localhost:7", Localhost(7).String())
}

func TestParseProtocolSet(t *testing.T) {
	tests := []struct {
		raw      string
		expected ProtocolSet
		s        string
	}{
		{raw: "tcp", expected: ProtocolSet{TCP}, s: "tcp"},
		{raw: "UDP", expected: ProtocolSet{UDP}, s: "udp"},
		{raw: "udp,tcp", expected: ProtocolSet{TCP, UDP}, s: "tcp,udp"},
		{raw: "tcp, tcp", expected: ProtocolSet{TCP}, s: "tcp"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			set, err := ParseProtocolSet(tt.raw)
			assert.NilError(t, err)
			assert.DeepEqual(t, tt.expected, set)
			assert.Equal(t, tt.s, set.String())
		})
	}

	for _, bad := range []string{"", "sctp", "tcp,"} {
		_, err := ParseProtocolSet(bad)
		assert.Assert(t, errors.Is(err, ErrUnknownProtocol), "%q", bad)
	}

	set, err := ParseProtocolSet("tcp,udp")
	assert.NilError(t, err)
	assert.Assert(t, set.Has(TCP))
	assert.Assert(t, set.Has(UDP))
	assert.Assert(t, !ProtocolSet{TCP}.Has(UDP))
}
