package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

// Run implements subcommands.Command for the "run" command.
type Run struct {
	out io.Writer
}

// Name implements subcommands.Command.Name.
func (*Run) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Run) Synopsis() string {
	return "boot a kernel image and stream its serial output"
}

// Usage implements subcommands.Command.Usage.
func (*Run) Usage() string {
	return "run [image]\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Run) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute. It exits successfully only
// when the kernel reports success through the exit port.
func (r *Run) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() > 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	cfg := args[0].(*Config)
	image := cfg.Image
	if f.NArg() == 1 {
		image = f.Arg(0)
	}

	out := r.out
	if out == nil {
		out = os.Stdout
	}

	outcome, err := newMachine(cfg).boot(ctx, image, out)
	if err != nil {
		logrus.WithError(err).WithField("image", image).Error("boot failed")
		return subcommands.ExitFailure
	}

	logrus.WithFields(logrus.Fields{"image": image, "outcome": outcome}).Info("vm exited")
	if outcome != OutcomeSuccess {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
