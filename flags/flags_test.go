package flags

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"gotest.tools/assert"

	"hop.computer/throttle/config"
	"hop.computer/throttle/core"
	"hop.computer/throttle/throttle"
)

func parse(t *testing.T, args ...string) *Flags {
	t.Helper()
	f, err := ParseArgs("localhost-throttle", args, io.Discard)
	assert.NilError(t, err)
	return f
}

func TestLegacyPortFlags(t *testing.T) {
	f := parse(t, "--server-port", "8000", "--new-server-port", "8001", "--protocols", "tcp,udp", "--bandwidth", "5")
	c, err := LoadConfig(f)
	assert.NilError(t, err)
	assert.Equal(t, core.Localhost(8000), c.Server)
	assert.Equal(t, core.Localhost(8001), c.NewServer)
	assert.DeepEqual(t, core.ProtocolSet{core.TCP, core.UDP}, c.Protocols)
	assert.Equal(t, throttle.Rate(5), c.Bandwidth)
	assert.Equal(t, 100*time.Millisecond, c.PollInterval.Duration)
	assert.Equal(t, 100, c.Backlog)
}

func TestAddressFlags(t *testing.T) {
	f := parse(t,
		"--server", "127.0.0.1:9000",
		"--new-server", ":9001",
		"--protocols", "udp",
		"--poll-interval", "10ms",
		"--session-idle-timeout", "1m",
		"--status-address", "localhost:9090",
	)
	c, err := LoadConfig(f)
	assert.NilError(t, err)
	assert.Equal(t, core.Address{Host: "127.0.0.1", Port: 9000}, c.Server)
	assert.Equal(t, core.Address{Port: 9001}, c.NewServer)
	assert.Equal(t, 10*time.Millisecond, c.PollInterval.Duration)
	assert.Equal(t, time.Minute, c.SessionIdleTimeout.Duration)
	assert.Equal(t, core.Localhost(9090), c.StatusAddress)
	assert.Assert(t, !c.Bandwidth.Limited())
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "throttle.toml")
	data := "Server = \"localhost:1\"\nNewServer = \"localhost:2\"\nProtocols = \"tcp\"\nBacklog = 7\nBandwidth = 10.0\n"
	assert.NilError(t, os.WriteFile(path, []byte(data), 0o600))

	f := parse(t, "--config", path, "--new-server-port", "3", "--bandwidth", "20")
	c, err := LoadConfig(f)
	assert.NilError(t, err)
	assert.Equal(t, core.Localhost(1), c.Server)
	assert.Equal(t, core.Localhost(3), c.NewServer)
	assert.Equal(t, 7, c.Backlog)
	assert.Equal(t, throttle.Rate(20), c.Bandwidth)
}

func TestParseErrors(t *testing.T) {
	_, err := ParseArgs("localhost-throttle", []string{"--server-port", "1", "extra"}, io.Discard)
	assert.Assert(t, errors.Is(err, ErrExcessArgs))

	_, err = ParseArgs("localhost-throttle", []string{"--server", "nope"}, io.Discard)
	assert.ErrorContains(t, err, "invalid address")

	_, err = LoadConfig(parse(t, "--server-port", "1", "--new-server-port", "2", "--protocols", "sctp"))
	assert.Assert(t, errors.Is(err, core.ErrUnknownProtocol))

	_, err = LoadConfig(parse(t, "--server-port", "1", "--new-server-port", "2", "--protocols", "tcp", "--bandwidth", "-3"))
	assert.Assert(t, errors.Is(err, throttle.ErrInvalidRate))

	_, err = LoadConfig(parse(t, "--server-port", "1", "--new-server-port", "2", "--protocols", "tcp", "--bandwidth", "0"))
	assert.Assert(t, errors.Is(err, throttle.ErrInvalidRate))

	_, err = LoadConfig(parse(t, "--server-port", "-5", "--new-server-port", "2", "--protocols", "tcp"))
	assert.Assert(t, errors.Is(err, config.ErrInvalidConfig))
	assert.ErrorContains(t, err, "server port -5 out of range")

	_, err = LoadConfig(parse(t, "--server-port", "1", "--new-server-port", "99999", "--protocols", "tcp"))
	assert.Assert(t, errors.Is(err, config.ErrInvalidConfig))
	assert.ErrorContains(t, err, "new server port 99999 out of range")

	_, err = LoadConfig(parse(t, "--server-port", "1", "--server", "localhost:1", "--new-server-port", "2", "--protocols", "tcp"))
	assert.Assert(t, errors.Is(err, config.ErrInvalidConfig))

	_, err = LoadConfig(parse(t, "--new-server-port", "2", "--protocols", "tcp"))
	assert.ErrorContains(t, err, "server address is required")
}
