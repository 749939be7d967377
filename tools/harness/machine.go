package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"trapos/kernel/qemu"
)

const (
	dialInterval     = 50 * time.Millisecond
	lockRetryDelay   = 100 * time.Millisecond
	serialSocketName = "serial.sock"
)

var errTimeout = errors.New("timed out waiting for the VM to exit")

// machine boots kernel images under QEMU.
type machine struct {
	cfg *Config
	log *logrus.Entry
}

func newMachine(cfg *Config) *machine {
	return &machine{
		cfg: cfg,
		log: logrus.WithField("qemu", cfg.QEMU),
	}
}

// args returns the QEMU command line for booting image with COM1 attached to
// a unix socket server at socket. QEMU holds the boot until a client
// connects so no serial output is lost.
func (m *machine) args(image, socket string) []string {
	args := []string{
		"-no-reboot",
		"-display", "none",
		"-device", fmt.Sprintf("isa-debug-exit,iobase=%#x,iosize=0x04", qemu.ExitPort),
		"-serial", "unix:" + socket + ",server=on,wait=on",
		"-cdrom", image,
	}
	return append(args, m.cfg.Args...)
}

// boot runs image until the VM exits, copying everything the kernel writes
// to the serial port into serial.
func (m *machine) boot(ctx context.Context, image string, serial io.Writer) (Outcome, error) {
	log := m.log.WithField("image", image)

	unlock, err := lockImage(ctx, image)
	if err != nil {
		return "", err
	}
	defer unlock()

	dir, err := os.MkdirTemp("", "harness")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)
	socket := filepath.Join(dir, serialSocketName)

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout.Duration)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	stderr := log.WriterLevel(logrus.DebugLevel)
	defer stderr.Close()

	cmd := exec.CommandContext(gctx, m.cfg.QEMU, m.args(image, socket)...)
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// QEMU may fork helpers; take down the whole group.
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}

	log.WithField("args", cmd.Args[1:]).Debug("starting vm")
	if err = cmd.Start(); err != nil {
		return "", fmt.Errorf("starting %s: %w", m.cfg.QEMU, err)
	}

	dialCtx, stopDial := context.WithCancel(gctx)
	defer stopDial()

	g.Go(func() error {
		conn, err := dialSerial(dialCtx, socket)
		if err != nil {
			if dialCtx.Err() != nil && gctx.Err() == nil {
				// The VM exited before the socket showed up.
				return nil
			}
			return err
		}
		defer conn.Close()

		_, err = io.Copy(serial, conn)
		return err
	})

	var waitErr error
	g.Go(func() error {
		waitErr = cmd.Wait()
		stopDial()
		return nil
	})

	groupErr := g.Wait()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", errTimeout
	}
	if groupErr != nil {
		return "", groupErr
	}

	status, err := exitStatus(waitErr)
	if err != nil {
		return "", err
	}

	log.WithField("status", status).Debug("vm exited")
	return decodeExit(status, m.cfg.Exit)
}

func exitStatus(waitErr error) (int, error) {
	if waitErr == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode(), nil
	}
	return 0, waitErr
}

// dialSerial connects to the serial socket, retrying until QEMU creates it
// or ctx is done.
func dialSerial(ctx context.Context, socket string) (net.Conn, error) {
	var conn net.Conn
	op := func() error {
		c, err := net.Dial("unix", socket)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(dialInterval), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("connecting to serial socket %q: %w", socket, err)
	}
	return conn, nil
}

// lockImage takes a shared lock on image.lock so a build holding the
// exclusive lock never rewrites the image while a VM reads it.
func lockImage(ctx context.Context, image string) (func() error, error) {
	f := image + ".lock"
	l := flock.New(f)

	locked, err := l.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("error acquiring lock on image lock file %q: %w", f, err)
	}
	if !locked {
		return nil, fmt.Errorf("could not acquire lock on image lock file %q", f)
	}
	return l.Unlock, nil
}
