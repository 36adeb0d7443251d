// Package config contains the resolved configuration of a throttle process
// and loads it from TOML files.
package config

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hop.computer/throttle/common"
	"hop.computer/throttle/core"
	"hop.computer/throttle/throttle"
)

// ErrInvalidConfig is wrapped by every validation error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Duration is a time.Duration written as a string such as "100ms".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Config is the configuration of one throttle process. It is built once at
// startup and never modified afterwards.
type Config struct {
	// Server is the original server.
	Server core.Address

	// NewServer is the address clients connect to.
	NewServer core.Address

	Protocols core.ProtocolSet

	// Bandwidth in bytes per second. Zero is unlimited.
	Bandwidth throttle.Rate

	PollInterval       Duration
	Backlog            int
	DrainTimeout       Duration
	ConnectTimeout     Duration
	IdleTimeout        Duration
	SessionIdleTimeout Duration
	ReuseAddress       bool

	// StatusAddress serves the status endpoint when set.
	StatusAddress core.Address

	LogLevel string
}

// Default returns a Config with every optional setting at its default.
func Default() Config {
	return Config{
		PollInterval:   Duration{common.DefaultPollInterval},
		Backlog:        common.DefaultBacklog,
		DrainTimeout:   Duration{common.DefaultDrainTimeout},
		ConnectTimeout: Duration{common.DefaultConnectTimeout},
		LogLevel:       common.DefaultLogLevel,
	}
}

// LoadFile decodes the TOML file at path over c. Keys missing from the file
// keep their current value. Unknown keys are an error.
func LoadFile(path string, c *Config) error {
	f, err := fileSystem.Open(path)
	if err != nil {
		return errors.Wrap(err, "open config")
	}
	defer f.Close()

	md, err := toml.NewDecoder(f).Decode(c)
	if err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.Wrapf(ErrInvalidConfig, "%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	// An absent Bandwidth is unlimited; a written one has to throttle.
	if md.IsDefined("Bandwidth") && !c.Bandwidth.Limited() {
		return errors.Wrapf(ErrInvalidConfig, "%s: Bandwidth must be positive, got %v", path, float64(c.Bandwidth))
	}
	logrus.Debugf("config: loaded %s", path)
	return nil
}

// Level is the parsed LogLevel.
func (c *Config) Level() (logrus.Level, error) {
	return logrus.ParseLevel(c.LogLevel)
}

// Validate checks that c can start a throttle.
func (c *Config) Validate() error {
	if c.Server.IsZero() {
		return errors.Wrap(ErrInvalidConfig, "server address is required")
	}
	if c.NewServer.IsZero() {
		return errors.Wrap(ErrInvalidConfig, "new server address is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.Wrapf(ErrInvalidConfig, "server port %d out of range", c.Server.Port)
	}
	for name, a := range map[string]core.Address{
		"new server": c.NewServer,
		"status":     c.StatusAddress,
	} {
		if a.Port < 0 || a.Port > 65535 {
			return errors.Wrapf(ErrInvalidConfig, "%s port %d out of range", name, a.Port)
		}
	}
	if len(c.Protocols) == 0 {
		return errors.Wrap(ErrInvalidConfig, "at least one protocol is required")
	}
	if err := c.Bandwidth.Validate(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if c.PollInterval.Duration <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "poll interval must be positive, got %v", c.PollInterval)
	}
	if c.Backlog <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "backlog must be positive, got %d", c.Backlog)
	}
	for name, d := range map[string]Duration{
		"drain timeout":        c.DrainTimeout,
		"connect timeout":      c.ConnectTimeout,
		"idle timeout":         c.IdleTimeout,
		"session idle timeout": c.SessionIdleTimeout,
	} {
		if d.Duration < 0 {
			return errors.Wrapf(ErrInvalidConfig, "%s must not be negative, got %v", name, d)
		}
	}
	if _, err := c.Level(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return nil
}
