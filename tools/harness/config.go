package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"trapos/kernel/qemu"
)

// Outcome is the way a kernel run ended.
type Outcome string

const (
	// OutcomeSuccess means the kernel wrote qemu.Success to the exit port.
	OutcomeSuccess Outcome = "success"

	// OutcomeFailed means the kernel wrote qemu.Failed to the exit port.
	OutcomeFailed Outcome = "failed"

	// OutcomeReset means the VM shut down without using the exit port,
	// which with -no-reboot is what a triple fault looks like.
	OutcomeReset Outcome = "reset"
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	switch v := Outcome(text); v {
	case OutcomeSuccess, OutcomeFailed, OutcomeReset:
		*o = v
		return nil
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// duration lets TOML files spell timeouts as "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// ExitCodes are the values the kernel writes to the isa-debug-exit port.
type ExitCodes struct {
	Success uint8 `toml:"success"`
	Failed  uint8 `toml:"failed"`
}

// Scenario is a single boot whose serial output and exit are checked by the
// test command.
type Scenario struct {
	Name  string `toml:"name"`
	Image string `toml:"image"`

	// Expect lists strings that must appear in the serial output in order.
	Expect []string `toml:"expect"`

	Outcome Outcome `toml:"outcome"`
}

// Config is the harness configuration file.
type Config struct {
	QEMU    string    `toml:"qemu"`
	Image   string    `toml:"image"`
	Args    []string  `toml:"args"`
	Timeout duration  `toml:"timeout"`
	Exit    ExitCodes `toml:"exit"`

	Scenarios []Scenario `toml:"scenario"`
}

func defaultConfig() *Config {
	return &Config{
		QEMU:    "qemu-system-x86_64",
		Image:   "build/kernel-x86_64.iso",
		Timeout: duration{30 * time.Second},
		Exit: ExitCodes{
			Success: uint8(qemu.Success),
			Failed:  uint8(qemu.Failed),
		},
	}
}

// loadConfig reads the TOML file at path on top of the defaults. An empty
// path yields the defaults.
func loadConfig(path string) (*Config, error) {
	c := defaultConfig()
	if path == "" {
		return c, nil
	}

	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, fmt.Errorf("loading config %q: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("loading config %q: unknown key %q", path, undecoded[0].String())
	}

	if err = c.validate(); err != nil {
		return nil, fmt.Errorf("loading config %q: %w", path, err)
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.Timeout.Duration <= 0 {
		return fmt.Errorf("timeout must be positive; got %s", c.Timeout.Duration)
	}

	if c.Exit.Success == c.Exit.Failed {
		return fmt.Errorf("success and failed exit codes must differ; both are %#x", c.Exit.Success)
	}

	seen := make(map[string]bool, len(c.Scenarios))
	for i := range c.Scenarios {
		s := &c.Scenarios[i]
		switch {
		case s.Name == "":
			return fmt.Errorf("scenario %d has no name", i)
		case seen[s.Name]:
			return fmt.Errorf("duplicate scenario %q", s.Name)
		case s.Outcome == "":
			return fmt.Errorf("scenario %q has no outcome", s.Name)
		}
		seen[s.Name] = true

		if s.Image == "" {
			s.Image = c.Image
		}
	}

	return nil
}
