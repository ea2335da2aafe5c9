// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/mirrorsupport/pkg/control"
	"github.com/Thermoquad/mirrorsupport/pkg/telemetry"
)

var (
	runCommands []string
	runConsole  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the control loop",
	Long: `Run the control loop against the ILC bridge (or the simulated bus) and serve
telemetry on the configured listen address.

Operator commands are read one per line from stdin:
  start, standby, raise, raise-bypass, lower, pause, resume, clear-fault
  apply-velocity, zero-velocity, apply-acceleration, zero-acceleration
  reset-ilcs
  elevation <degrees>
  azimuth <degrees>
  thermal <uniform> <x gradient> <y gradient> <radial gradient>
  velocity <x> <y> <z>       (rad/s)
  acceleration <x> <y> <z>   (rad/s²)

Examples:
  # Raise the mirror on the simulated bus
  mirrorsupport run --simulate --command start --command raise

  # Hardware over the serial bridge, commands from a script
  mirrorsupport run --port /dev/ttyUSB0 < operations.txt`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSliceVar(&runCommands, "command", nil, "Command to submit at start (repeatable)")
	runCmd.Flags().BoolVar(&runConsole, "console", true, "Read operator commands from stdin")
}

func runControl(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd, true)
	if err != nil {
		return err
	}
	log, err := newLogger(s)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	table, err := s.Table()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lk, err := openLink(ctx, s, table, log)
	if err != nil {
		return fmt.Errorf("open link: %w", err)
	}
	defer lk.Close()

	pub := telemetry.NewPublisher(telemetry.WithLogger(log.Named("telemetry")))
	elevation := control.NewElevationMonitor(s.Control.Elevation)
	inputs := control.NewInputMonitor()
	loop, err := control.New(lk, table, s.Control,
		control.WithLogger(log.Named("control")),
		control.WithPublisher(pub),
		control.WithElevation(elevation),
		control.WithInputs(inputs))
	if err != nil {
		return err
	}

	log.Info("control loop starting",
		zap.String("link", lk.Info),
		zap.Int("force_actuators", table.Count()),
		zap.Int("hardpoints", len(table.Hardpoints)),
		zap.Duration("cycle", s.Control.CycleTime))

	if s.Telemetry.Listen != "" {
		hub := telemetry.NewHub(pub, log.Named("hub"))
		go func() {
			if err := hub.ListenAndServe(ctx, s.Telemetry.Listen); err != nil {
				log.Error("telemetry server", zap.Error(err))
			}
		}()
	}

	samples := make(chan float64)
	go elevation.Feed(ctx, samples)
	readings := make(chan control.Reading)
	go inputs.Feed(ctx, readings)

	for _, name := range runCommands {
		c, err := control.ParseCommand(name)
		if err != nil {
			return err
		}
		go report(log, c, loop.Submit(c))
	}
	if runConsole {
		go readConsole(ctx, os.Stdin, loop, samples, readings, log)
	}

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("control loop stopped")
	return nil
}

// consoleInput is one parsed operator line.
type consoleInput struct {
	Command   control.Command
	Elevation float64
	// SetElevation is true for an elevation line.
	SetElevation bool
	// Reading is set for an azimuth, thermal, velocity or acceleration line.
	Reading control.Reading
}

// parseConsoleLine parses an operator line. Blank lines and # comments
// return ok false.
func parseConsoleLine(line string) (in consoleInput, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return in, false, nil
	}
	fields := strings.Fields(line)
	if strings.EqualFold(fields[0], "elevation") {
		if len(fields) != 2 {
			return in, false, fmt.Errorf("usage: elevation <degrees>")
		}
		deg, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || deg < 0 || deg > 90 {
			return in, false, fmt.Errorf("elevation %q must be between 0 and 90 degrees", fields[1])
		}
		return consoleInput{Elevation: deg, SetElevation: true}, true, nil
	}
	if input, err := control.ParseInput(fields[0]); err == nil {
		if len(fields)-1 != input.Arity() {
			return in, false, fmt.Errorf("%s takes %d values", input, input.Arity())
		}
		r := control.Reading{Input: input}
		for i, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return in, false, fmt.Errorf("%s value %q is not a number", input, f)
			}
			r.Values[i] = v
		}
		return consoleInput{Reading: r}, true, nil
	}
	c, err := control.ParseCommand(line)
	if err != nil {
		return in, false, err
	}
	return consoleInput{Command: c}, true, nil
}

func readConsole(ctx context.Context, r io.Reader, loop *control.Loop, samples chan<- float64, readings chan<- control.Reading, log *zap.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		in, ok, err := parseConsoleLine(scanner.Text())
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			continue
		}
		if !ok {
			continue
		}
		if in.SetElevation {
			select {
			case samples <- in.Elevation:
			case <-ctx.Done():
				return
			}
			continue
		}
		if in.Reading.Input != 0 {
			select {
			case readings <- in.Reading:
			case <-ctx.Done():
				return
			}
			continue
		}
		go report(log, in.Command, loop.Submit(in.Command))
	}
	if err := scanner.Err(); err != nil {
		log.Warn("console read", zap.Error(err))
	}
}

func report(log *zap.Logger, c control.Command, done <-chan error) {
	if err := <-done; err != nil {
		log.Warn("command failed", zap.Stringer("command", c), zap.Error(err))
		return
	}
	log.Info("command accepted", zap.Stringer("command", c))
}
