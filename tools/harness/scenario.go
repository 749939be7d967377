package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

// bootFn is used by tests to mock VM boots.
var bootFn = func(ctx context.Context, cfg *Config, image string, serial io.Writer) (Outcome, error) {
	return newMachine(cfg).boot(ctx, image, serial)
}

// Test implements subcommands.Command for the "test" command.
type Test struct {
	out  io.Writer
	only string
}

// Name implements subcommands.Command.Name.
func (*Test) Name() string {
	return "test"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Test) Synopsis() string {
	return "boot every configured scenario and check its serial output and exit"
}

// Usage implements subcommands.Command.Usage.
func (*Test) Usage() string {
	return "test [-only name]\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (t *Test) SetFlags(f *flag.FlagSet) {
	f.StringVar(&t.only, "only", "", "run only the scenario with this name")
}

// Execute implements subcommands.Command.Execute.
func (t *Test) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	out := t.out
	if out == nil {
		out = os.Stdout
	}

	cfg := args[0].(*Config)
	if len(cfg.Scenarios) == 0 {
		logrus.Error("no scenarios configured")
		return subcommands.ExitFailure
	}

	var ran, failed int
	for _, s := range cfg.Scenarios {
		if t.only != "" && s.Name != t.only {
			continue
		}
		ran++

		fmt.Fprintf(out, "%s...\t", s.Name)
		if err := runScenario(ctx, cfg, s); err != nil {
			failed++
			fmt.Fprintf(out, "[failed]\n")
			logrus.WithError(err).WithField("scenario", s.Name).Error("scenario failed")
			continue
		}
		fmt.Fprintf(out, "[ok]\n")
	}

	if ran == 0 {
		logrus.WithField("only", t.only).Error("no matching scenario")
		return subcommands.ExitFailure
	}

	logrus.WithFields(logrus.Fields{"ran": ran, "failed": failed}).Info("done")
	if failed != 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func runScenario(ctx context.Context, cfg *Config, s Scenario) error {
	var serial bytes.Buffer
	outcome, err := bootFn(ctx, cfg, s.Image, &serial)
	if err != nil {
		return err
	}

	logrus.WithField("scenario", s.Name).Debugf("serial output:\n%s", serial.Bytes())
	return checkScenario(s, outcome, serial.Bytes())
}

// checkScenario verifies that the run ended with the expected outcome and
// that every expected string shows up in serial, in order.
func checkScenario(s Scenario, outcome Outcome, serial []byte) error {
	if outcome != s.Outcome {
		return fmt.Errorf("expected outcome %q; got %q", s.Outcome, outcome)
	}

	rest := serial
	for _, exp := range s.Expect {
		idx := bytes.Index(rest, []byte(exp))
		if idx < 0 {
			return fmt.Errorf("expected serial output to contain %q after offset %d", exp, len(serial)-len(rest))
		}
		rest = rest[idx+len(exp):]
	}

	return nil
}
