package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"hop.computer/throttle/app"
	"hop.computer/throttle/flags"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	tty := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:   tty,
		DisableColors: !tty,
		FullTimestamp: true,
	})

	f, err := flags.ParseArgs(args[0], args[1:], os.Stderr)
	if err == flag.ErrHelp {
		return 0
	}
	if err != nil {
		logrus.Error(err)
		return 2
	}
	c, err := flags.LoadConfig(f)
	if err != nil {
		logrus.Errorf("error loading config: %s", err)
		return 2
	}
	level, _ := c.Level()
	logrus.SetLevel(level)

	t := app.New(c)
	if err := t.Start(); err != nil {
		logrus.Error(err)
		return 1
	}
	printBanner(os.Stdout, c, isatty.IsTerminal(os.Stdout.Fd()))

	sch := make(chan os.Signal, 2)
	signal.Notify(sch, os.Interrupt, syscall.SIGTERM)
	sig := <-sch
	logrus.Infof("received %v, draining relays", sig)

	done := make(chan error, 1)
	go func() {
		done <- t.Shutdown()
	}()
	select {
	case err := <-done:
		if err != nil {
			logrus.Error(err)
			return 1
		}
		return 0
	case sig := <-sch:
		logrus.Errorf("received %v while draining, exiting", sig)
		return 1
	}
}
