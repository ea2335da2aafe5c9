// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
	"github.com/Thermoquad/mirrorsupport/pkg/ilc"
)

var (
	decodeSubnet   uint8
	decodeCommands bool
)

var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Decode FIFO dumps in human-readable format",
	Long: `Decode response FIFO buffers (or command FIFO batches with --commands) and
display each frame with its timestamp, function, ILC and decoded payload.

Input is read from the file argument or stdin, one buffer per line, as
whitespace separated 16-bit hex words. A line may start with "<subnet>:" to
override --subnet. Blank lines and lines starting with # are skipped.

Examples:
  # Response buffer captured from subnet 2
  mirrorsupport decode --subnet 2 capture.txt

  # Command batches written by the control loop
  mirrorsupport decode --commands < batches.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().Uint8Var(&decodeSubnet, "subnet", 1, "Subnet the buffers were read from (1-5)")
	decodeCmd.Flags().BoolVar(&decodeCommands, "commands", false, "Input is command FIFO batches")
}

func runDecode(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd, false)
	if err != nil {
		return err
	}
	table, err := s.Table()
	if err != nil {
		return err
	}
	firmware, err := ilc.NewFirmwareCheck(s.Control.Firmware)
	if err != nil {
		return err
	}

	in := io.Reader(os.Stdin)
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	d := newDecoder(table, firmware, cmd.OutOrStdout())
	if err := d.run(in, decodeSubnet, decodeCommands); err != nil {
		return err
	}
	if !decodeCommands {
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprint(cmd.OutOrStdout(), d.parser.Statistics().String())
	}
	return nil
}

// decoder prints FIFO dumps.
type decoder struct {
	subnets *ilc.SubnetMap
	parser  *ilc.Parser
	out     io.Writer
}

func newDecoder(t *actuator.Table, firmware *ilc.FirmwareCheck, out io.Writer) *decoder {
	d := &decoder{subnets: ilc.NewSubnetMap(t), out: out}
	d.parser = ilc.NewParser(d.subnets, ilc.NewState(t), ilc.NewResponses(t),
		ilc.WithFirmwareCheck(firmware),
		ilc.WithWarningSink(ilc.WarningFunc(func(w ilc.Warning) {
			fmt.Fprintf(out, "  \033[1;33mWARNING:\033[0m %s\n", w)
		})))
	return d
}

func (d *decoder) run(r io.Reader, subnet uint8, commands bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		words, sn, ok, err := parseWordLine(scanner.Text(), subnet)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if !ok {
			continue
		}
		if commands {
			d.commands(words)
		} else {
			d.responses(words, sn)
		}
	}
	return scanner.Err()
}

func (d *decoder) responses(words []uint16, subnet uint8) {
	ts, frames := ilc.SplitFrames(words)
	fmt.Fprintf(d.out, "=== subnet %d batch @ %.6f (%d frames) ===\n", subnet, ts, len(frames))
	for _, f := range frames {
		fmt.Fprint(d.out, ilc.FormatFrame(subnet, f, d.subnets.Lookup(subnet, f.Address())))
	}
	d.parser.Parse(words, subnet)
}

func (d *decoder) commands(words []uint16) {
	frames, err := ilc.DecodeCommands(words)
	for _, f := range frames {
		e := d.subnets.Lookup(f.Subnet, f.Address)
		crc := "OK"
		if !f.CRCValid {
			crc = "BAD"
		}
		fmt.Fprintf(d.out, "%s (%d) ilc=%d:%d %s#%d len=%d crc=%s wait=0x%04X\n",
			f.Function, uint8(f.Function), f.Subnet, f.Address, e.Type, e.ActuatorID, len(f.Payload), crc, f.Wait)
	}
	if err != nil {
		fmt.Fprintf(d.out, "  \033[1;31mDECODE ERROR:\033[0m %v\n", err)
	}
}

// parseWordLine parses "[subnet:] word word ...". ok is false for blank and
// comment lines.
func parseWordLine(line string, subnet uint8) (words []uint16, sn uint8, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, 0, false, nil
	}
	sn = subnet
	if prefix, rest, found := strings.Cut(line, ":"); found {
		v, err := strconv.ParseUint(strings.TrimSpace(prefix), 10, 8)
		if err != nil {
			return nil, 0, false, fmt.Errorf("bad subnet prefix %q", prefix)
		}
		sn = uint8(v)
		line = rest
	}
	for _, field := range strings.Fields(line) {
		field = strings.TrimPrefix(strings.TrimPrefix(field, "0x"), "0X")
		v, err := strconv.ParseUint(field, 16, 16)
		if err != nil {
			return nil, 0, false, fmt.Errorf("bad word %q", field)
		}
		words = append(words, uint16(v))
	}
	return words, sn, len(words) > 0, nil
}
