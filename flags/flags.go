// Package flags defines the localhost-throttle command line and merges it with
// an optional configuration file.
package flags

import (
	"flag"
	"io"
	"time"

	"github.com/pkg/errors"

	"hop.computer/throttle/common"
	"hop.computer/throttle/config"
	"hop.computer/throttle/core"
	"hop.computer/throttle/throttle"
)

// ErrExcessArgs is returned when unparsed arguments remain.
var ErrExcessArgs = errors.New("excess arguments provided")

// Flags holds the raw command line.
type Flags struct {
	ConfigPath string

	Server        core.Address
	NewServer     core.Address
	ServerPort    int
	NewServerPort int
	Protocols     string
	Bandwidth     string

	PollInterval       time.Duration
	Backlog            int
	DrainTimeout       time.Duration
	ConnectTimeout     time.Duration
	IdleTimeout        time.Duration
	SessionIdleTimeout time.Duration
	ReuseAddress       bool
	StatusAddress      core.Address
	LogLevel           string

	// set holds the names of the flags given on the command line.
	set map[string]bool
}

// ParseArgs defines and parses the flags in args, which excludes the program
// name. Usage and errors are written to output.
func ParseArgs(name string, args []string, output io.Writer) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	defineFlags(fs, f)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, errors.Wrapf(ErrExcessArgs, "%v", fs.Args())
	}
	f.set = make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

func defineFlags(fs *flag.FlagSet, f *Flags) {
	fs.StringVar(&f.ConfigPath, "config", "", "path to a TOML config file")

	fs.TextVar(&f.Server, "server", core.Address{}, "`host:port` of the original server")
	fs.TextVar(&f.NewServer, "new-server", core.Address{}, "`host:port` clients connect to")
	fs.IntVar(&f.ServerPort, "server-port", 0, "port of the original server on localhost")
	fs.IntVar(&f.NewServerPort, "new-server-port", 0, "port on localhost clients connect to")
	fs.StringVar(&f.Protocols, "protocols", "", "protocols to redirect: 'tcp', 'udp' or 'tcp,udp'")
	fs.StringVar(&f.Bandwidth, "bandwidth", "", "bandwidth in bytes per second, unlimited if omitted")

	fs.DurationVar(&f.PollInterval, "poll-interval", common.DefaultPollInterval, "how often blocked loops check for shutdown")
	fs.IntVar(&f.Backlog, "backlog", common.DefaultBacklog, "TCP listen backlog")
	fs.DurationVar(&f.DrainTimeout, "drain-timeout", common.DefaultDrainTimeout, "how long shutdown waits for relays to finish")
	fs.DurationVar(&f.ConnectTimeout, "connect-timeout", common.DefaultConnectTimeout, "timeout for connecting to the original server")
	fs.DurationVar(&f.IdleTimeout, "idle-timeout", 0, "close TCP connections idle this long, 0 disables")
	fs.DurationVar(&f.SessionIdleTimeout, "session-idle-timeout", 0, "evict UDP sessions idle this long, 0 disables")
	fs.BoolVar(&f.ReuseAddress, "reuse-address", false, "set SO_REUSEADDR on the listening socket")
	fs.TextVar(&f.StatusAddress, "status-address", core.Address{}, "serve status JSON on `host:port`")
	fs.StringVar(&f.LogLevel, "log-level", common.DefaultLogLevel, "trace, debug, info, warn or error")
}

// IsSet reports whether name was given on the command line.
func (f *Flags) IsSet(name string) bool {
	return f.set[name]
}

// LoadConfig resolves the configuration: defaults, then the config file if
// any, then every flag given on the command line. The result is validated.
func LoadConfig(f *Flags) (*config.Config, error) {
	c := config.Default()
	if f.ConfigPath != "" {
		if err := config.LoadFile(f.ConfigPath, &c); err != nil {
			return nil, err
		}
	}
	if err := mergeFlagsAndConfig(f, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func mergeFlagsAndConfig(f *Flags, c *config.Config) error {
	if f.IsSet("server") && f.IsSet("server-port") {
		return errors.Wrap(config.ErrInvalidConfig, "--server and --server-port are mutually exclusive")
	}
	if f.IsSet("new-server") && f.IsSet("new-server-port") {
		return errors.Wrap(config.ErrInvalidConfig, "--new-server and --new-server-port are mutually exclusive")
	}

	if f.IsSet("server") {
		c.Server = f.Server
	}
	if f.IsSet("server-port") {
		c.Server = core.Localhost(f.ServerPort)
	}
	if f.IsSet("new-server") {
		c.NewServer = f.NewServer
	}
	if f.IsSet("new-server-port") {
		c.NewServer = core.Localhost(f.NewServerPort)
	}
	if f.IsSet("protocols") {
		set, err := core.ParseProtocolSet(f.Protocols)
		if err != nil {
			return err
		}
		c.Protocols = set
	}
	if f.IsSet("bandwidth") {
		r, err := throttle.ParseRate(f.Bandwidth)
		if err != nil {
			return err
		}
		c.Bandwidth = r
	}
	if f.IsSet("poll-interval") {
		c.PollInterval.Duration = f.PollInterval
	}
	if f.IsSet("backlog") {
		c.Backlog = f.Backlog
	}
	if f.IsSet("drain-timeout") {
		c.DrainTimeout.Duration = f.DrainTimeout
	}
	if f.IsSet("connect-timeout") {
		c.ConnectTimeout.Duration = f.ConnectTimeout
	}
	if f.IsSet("idle-timeout") {
		c.IdleTimeout.Duration = f.IdleTimeout
	}
	if f.IsSet("session-idle-timeout") {
		c.SessionIdleTimeout.Duration = f.SessionIdleTimeout
	}
	if f.IsSet("reuse-address") {
		c.ReuseAddress = f.ReuseAddress
	}
	if f.IsSet("status-address") {
		c.StatusAddress = f.StatusAddress
	}
	if f.IsSet("log-level") {
		c.LogLevel = f.LogLevel
	}
	return nil
}
