// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
	"github.com/Thermoquad/mirrorsupport/pkg/ilc"
)

var discoverTimeout int

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover the ILCs on every subnet",
	Long: `Send ReportServerID and ReportServerStatus to every ILC of the configured
layout and list what answered, with firmware revisions checked against the
configured constraint.

Examples:
  mirrorsupport discover --port /dev/ttyUSB0
  mirrorsupport discover --simulate

Exit codes:
  0 - Every ILC answered with accepted firmware
  1 - One or more ILCs missing, faulted or on rejected firmware
  2 - Connection error`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().IntVar(&discoverTimeout, "timeout", 5, "Timeout in seconds for discovery")
}

// discovered is one ILC of the layout and what it reported.
type discovered struct {
	Key   ilc.Key
	Entry ilc.Entry
	Info  ilc.Info
}

// OK reports whether the ILC answered with accepted firmware and no major fault.
func (d discovered) OK() bool {
	return d.Info.IDReported && d.Info.ID.FirmwareAccepted && !d.Info.Status.MajorFault()
}

func runDiscover(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd, true)
	if err != nil {
		return err
	}
	log, err := newLogger(s)
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

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(discoverTimeout)*time.Second)
	defer cancel()

	lk, err := openLink(ctx, s, table, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Mirrorsupport - ILC Discovery\n")
	fmt.Fprintf(out, "Connection: %s\n", lk.Info)
	fmt.Fprintf(out, "Timeout: %d seconds\n\n", discoverTimeout)

	c := ilc.NewController(lk, table, ilc.ControllerConfig{
		Timings:       ilc.DefaultTimings().Merge(s.Control.Timings),
		SubnetTimeout: s.Control.SubnetTimeout,
		Firmware:      firmware,
		Logger:        log.Named("ilc"),
	})
	found, err := discover(ctx, c, table)
	lk.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Discovery failed: %v\n", err)
		os.Exit(2)
	}

	if !printDiscovery(out, found) {
		os.Exit(1)
	}
	return nil
}

// discover queries every ILC of t and returns them ordered by type, subnet
// and address.
func discover(ctx context.Context, c *ilc.Controller, t *actuator.Table) ([]discovered, error) {
	for _, write := range []func(ilc.Type) error{c.WriteServerID, c.WriteServerStatus} {
		for _, typ := range ilcTypes() {
			if err := write(typ); err != nil {
				return nil, err
			}
		}
		if _, err := c.Run(ctx); err != nil {
			return nil, err
		}
	}

	m := c.SubnetMap()
	var found []discovered
	for _, typ := range ilcTypes() {
		for _, subnet := range m.Subnets(typ) {
			for _, address := range m.Addresses(subnet, typ) {
				e := m.Lookup(subnet, address)
				d := discovered{Key: ilc.Key{Subnet: subnet, Address: address}, Entry: e}
				if info := c.State().InfoFor(e); info != nil {
					d.Info = *info
				}
				found = append(found, d)
			}
		}
	}
	return found, nil
}

func ilcTypes() []ilc.Type {
	return []ilc.Type{ilc.TypeForceActuator, ilc.TypeHardpoint, ilc.TypeHardpointMonitor}
}

// printDiscovery prints every ILC and a summary, and reports whether all of
// them are healthy.
func printDiscovery(out io.Writer, found []discovered) bool {
	missing, rejected, faulted := 0, 0, 0
	for _, d := range found {
		switch {
		case !d.Info.IDReported:
			missing++
			fmt.Fprintf(out, "  %-6s %s#%d: \033[1;31mNO RESPONSE\033[0m\n", d.Key, d.Entry.Type, d.Entry.ActuatorID)
			continue
		case !d.Info.ID.FirmwareAccepted:
			rejected++
		case d.Info.Status.MajorFault():
			faulted++
		}
		id := d.Info.ID
		fmt.Fprintf(out, "  %-6s %s#%d: uid=%012X fw=%s %d.%d mode=%s",
			d.Key, d.Entry.Type, d.Entry.ActuatorID, id.UniqueID, id.FirmwareName, id.MajorRevision, id.MinorRevision, d.Info.Mode)
		if !id.FirmwareAccepted {
			fmt.Fprint(out, " \033[1;33mFIRMWARE REJECTED\033[0m")
		}
		if d.Info.Status.MajorFault() {
			fmt.Fprintf(out, " \033[1;31mMAJOR FAULT\033[0m %s", d.Info.Status.Describe(d.Entry.Type))
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "\n--- Discovery summary ---\n")
	fmt.Fprintf(out, "ILCs found: %d/%d\n", len(found)-missing, len(found))
	if rejected > 0 {
		fmt.Fprintf(out, "Firmware rejected: %d\n", rejected)
	}
	if faulted > 0 {
		fmt.Fprintf(out, "Major faults: %d\n", faulted)
	}
	if missing > 0 {
		fmt.Fprintf(out, "No response from %d ILCs. Check subnet wiring and power.\n", missing)
	}
	return missing == 0 && rejected == 0 && faulted == 0
}
