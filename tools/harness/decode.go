package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"trapos/kernel/gate"
	"trapos/kernel/segment"
)

// Decode implements subcommands.Command for the "decode" command.
type Decode struct {
	out io.Writer
}

// Name implements subcommands.Command.Name.
func (*Decode) Name() string {
	return "decode"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Decode) Synopsis() string {
	return "decode raw gate or segment descriptors and exit statuses"
}

// Usage implements subcommands.Command.Usage.
func (*Decode) Usage() string {
	return `decode gate <low quadword> <high quadword>
decode segment <quadword> [high quadword of a system segment]
decode exit <qemu status>
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Decode) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (d *Decode) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	out := d.out
	if out == nil {
		out = os.Stdout
	}

	words, err := parseWords(f.Args())
	if err != nil {
		logrus.WithError(err).Error("invalid argument")
		return subcommands.ExitUsageError
	}

	switch {
	case f.Arg(0) == "gate" && len(words) == 2:
		err = decodeGate(out, words[0], words[1])
	case f.Arg(0) == "segment" && len(words) == 1:
		decodeSegment(out, words[0])
	case f.Arg(0) == "segment" && len(words) == 2:
		decodeSystemSegment(out, words[0], words[1])
	case f.Arg(0) == "exit" && len(words) == 1:
		err = decodeExitStatus(out, words[0], args[0].(*Config).Exit)
	default:
		f.Usage()
		return subcommands.ExitUsageError
	}

	if err != nil {
		logrus.WithError(err).Error("decode failed")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// parseWords parses every argument after the kind. Values accept any prefix
// strconv understands.
func parseWords(args []string) ([]uint64, error) {
	if len(args) < 2 {
		return nil, nil
	}

	words := make([]uint64, 0, len(args)-1)
	for _, arg := range args[1:] {
		v, err := strconv.ParseUint(arg, 0, 64)
		if err != nil {
			return nil, err
		}
		words = append(words, v)
	}
	return words, nil
}

func gateTypeName(t uint8) string {
	switch t {
	case 0xe:
		return "interrupt gate"
	case 0xf:
		return "trap gate"
	}
	return "invalid"
}

// decodeGate prints the fields of a gate descriptor. It returns an error if
// LIDT would be handed an entry the CPU rejects.
func decodeGate(w io.Writer, lo, hi uint64) error {
	e := gate.EntryFromWords(lo, hi)
	opts := *e.Options()
	sel := e.Selector()

	fmt.Fprintf(w, "offset   %#016x\n", e.Offset())
	table := "gdt"
	if sel.LocalTable() {
		table = "ldt"
	}
	fmt.Fprintf(w, "selector %#04x (%s index %d, rpl %d)\n", uint16(sel), table, sel.Index(), sel.RPL())
	fmt.Fprintf(w, "present  %t\n", opts.Present())
	fmt.Fprintf(w, "type     %s (%#x)\n", gateTypeName(opts.GateType()), opts.GateType())
	fmt.Fprintf(w, "dpl      %d\n", opts.PrivilegeLevel())
	fmt.Fprintf(w, "ist      %d\n", opts.StackIndex())

	if !opts.Present() {
		return nil
	}
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("gate options %#04x: %s", uint16(opts), err.Message)
	}
	if hi>>32 != 0 {
		return fmt.Errorf("gate reserved bits set: %#x", hi>>32)
	}
	return nil
}

// decodeSegment prints the fields of a GDT slot.
func decodeSegment(w io.Writer, word uint64) {
	d := segment.Descriptor(word)

	kind := "system"
	if d.UserSegment() {
		kind = "data"
		if d&segment.FlagExecutable != 0 {
			kind = "code"
		}
	}

	fmt.Fprintf(w, "kind     %s\n", kind)
	fmt.Fprintf(w, "present  %t\n", d.Present())
	fmt.Fprintf(w, "type     %#x\n", d.Type())
	fmt.Fprintf(w, "dpl      %d\n", d.DPL())
	fmt.Fprintf(w, "long     %t\n", d.Long())
	fmt.Fprintf(w, "base     %#08x\n", d.Base())
	fmt.Fprintf(w, "limit    %#05x\n", d.Limit())
}

// decodeSystemSegment prints a two-slot system descriptor such as the TSS
// along with its full 64-bit base.
func decodeSystemSegment(w io.Writer, lo, hi uint64) {
	decodeSegment(w, lo)
	fmt.Fprintf(w, "base64   %#016x\n", segment.SystemBase(segment.Descriptor(lo), segment.Descriptor(hi)))
}

func decodeExitStatus(w io.Writer, status uint64, codes ExitCodes) error {
	outcome, err := decodeExit(int(status), codes)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "outcome  %s\n", outcome)
	return nil
}
