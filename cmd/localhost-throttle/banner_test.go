package main

import (
	"bytes"
	"strings"
	"testing"

	"gotest.tools/assert"

	"hop.computer/throttle/config"
	"hop.computer/throttle/core"
)

func TestPlainBanner(t *testing.T) {
	c := config.Default()
	c.Server = core.Localhost(8000)
	c.NewServer = core.Localhost(8001)
	c.Protocols = core.ProtocolSet{core.TCP, core.UDP}
	c.Bandwidth = 5

	var out bytes.Buffer
	printBanner(&out, &c, false)
	s := out.String()
	assert.Assert(t, strings.HasPrefix(s, "localhost-throttle\n"))
	assert.Assert(t, strings.Contains(s, "localhost:8001"))
	assert.Assert(t, strings.Contains(s, "tcp,udp"))
	assert.Assert(t, strings.Contains(s, "5 B/s"))
	assert.Assert(t, !strings.Contains(s, "status"))
}

func TestStyledBannerMentionsEveryRow(t *testing.T) {
	c := config.Default()
	c.Server = core.Localhost(8000)
	c.NewServer = core.Localhost(8001)
	c.Protocols = core.ProtocolSet{core.TCP}
	c.StatusAddress = core.Localhost(9090)

	var out bytes.Buffer
	printBanner(&out, &c, true)
	s := out.String()
	for _, want := range []string{"localhost-throttle", "localhost:8000", "unlimited", "localhost:9090/status"} {
		assert.Assert(t, strings.Contains(s, want), "missing %q", want)
	}
}
