// Command redirects patches the kernel image so that calls to selected Go
// runtime functions land on kernel replacements.
//
// Functions annotated with a //go:redirect-from <symbol> comment are
// collected from the kernel sources. The count subcommand prints how many
// exist (the linker script sizes the .goredirectstbl section from it) and
// populate-table writes (source, destination) address pairs into that
// section of a linked image.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

const kernelDir = "kernel"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s count | populate-table <kernel image>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	log := logrus.WithField("tool", "redirects")
	if err := run(flag.Args()); err != nil {
		log.WithError(err).Error("failed")
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return errors.New("missing command")
	}

	if info, err := os.Stat(kernelDir); err != nil || !info.IsDir() {
		return errors.New("this tool must be run from the module root folder")
	}

	var imgFile string
	switch args[0] {
	case "count":
	case "populate-table":
		if len(args) != 2 {
			return errors.New("populate-table requires the path to the kernel image as an argument")
		}
		imgFile = args[1]
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}

	modPath, err := modulePath("go.mod")
	if err != nil {
		return err
	}

	redirects, err := findRedirects(modPath, kernelDir)
	if err != nil {
		return err
	}

	if args[0] == "count" {
		fmt.Printf("%d", len(redirects))
		return nil
	}

	if err = resolveSymbols(redirects, imgFile); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{"image": imgFile, "count": len(redirects)}).Info("writing redirect table")
	return writeTable(redirects, imgFile)
}
