// Command harness boots kernel images under QEMU and checks what they report
// over the serial port and through the isa-debug-exit device.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

var (
	configPath = flag.String("config", "", "path to the TOML configuration file")
	debug      = flag.Bool("debug", false, "enable debug logging")
	logFormat  = flag.String("log-format", "", "log format: text or json; by default text is used on terminals")
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(Run), "")
	subcommands.Register(new(Test), "")
	subcommands.Register(new(Decode), "")

	flag.Parse()

	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(newFormatter(*logFormat, term.IsTerminal(int(os.Stderr.Fd()))))
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Error("invalid configuration")
		os.Exit(int(subcommands.ExitFailure))
	}

	os.Exit(int(subcommands.Execute(context.Background(), cfg)))
}

func newFormatter(format string, terminal bool) logrus.Formatter {
	switch {
	case format == "json", format == "" && !terminal:
		return &logrus.JSONFormatter{}
	default:
		return &logrus.TextFormatter{FullTimestamp: true}
	}
}
