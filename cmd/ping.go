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

	"github.com/Thermoquad/mirrorsupport/pkg/ilc"
)

var (
	pingSubnet  uint8
	pingAddress uint8
	pingCount   int
	pingTimeout int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping one ILC with ReportServerStatus",
	Long: `Send ReportServerStatus requests to one ILC and wait for the reply.

This is useful for verifying:
  - The FIFO bridge link is established
  - The subnet wiring reaches the ILC
  - The ILC answers within the configured subnet timeout

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().Uint8Var(&pingSubnet, "subnet", 1, "Subnet of the ILC (1-5)")
	pingCmd.Flags().Uint8Var(&pingAddress, "address", 18, "Modbus address of the ILC")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
}

// pingResult is the outcome of one ping.
type pingResult struct {
	RTT    time.Duration
	Mode   ilc.Mode
	Status ilc.ServerStatus
	Err    error
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}
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

	lk, err := openLink(cmd.Context(), s, table, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	out := cmd.OutOrStdout()
	key := ilc.Key{Subnet: pingSubnet, Address: pingAddress}
	fmt.Fprintf(out, "Mirrorsupport - ILC Ping\n")
	fmt.Fprintf(out, "Connection: %s\n", lk.Info)
	fmt.Fprintf(out, "ILC: %s\n", key)
	fmt.Fprintf(out, "Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Fprintf(out, "Count: %d pings\n\n", pingCount)

	c := ilc.NewController(lk, table, ilc.ControllerConfig{
		Timings:       ilc.DefaultTimings().Merge(s.Control.Timings),
		SubnetTimeout: s.Control.SubnetTimeout,
		Logger:        log.Named("ilc"),
	})
	failed := printPings(cmd.Context(), out, key, pingCount, func(ctx context.Context) pingResult {
		ctx, cancel := context.WithTimeout(ctx, time.Duration(pingTimeout)*time.Second)
		defer cancel()
		return ping(ctx, c, key)
	})
	lk.Close()

	if failed > 0 {
		os.Exit(1)
	}
	return nil
}

// ping sends one ReportServerStatus to key and waits for the reply.
func ping(ctx context.Context, c *ilc.Controller, key ilc.Key) pingResult {
	e := c.SubnetMap().Lookup(key.Subnet, key.Address)
	info := c.State().InfoFor(e)
	if info == nil {
		return pingResult{Err: fmt.Errorf("no ILC configured at %s", key)}
	}
	info.Responded = false

	if err := c.WriteSingle(key, (*ilc.Buffer).ReportServerStatus); err != nil {
		return pingResult{Err: err}
	}
	start := time.Now()
	timedOut, err := c.Run(ctx)
	rtt := time.Since(start)
	switch {
	case err != nil:
		return pingResult{RTT: rtt, Err: err}
	case timedOut || !info.Responded:
		return pingResult{RTT: rtt, Err: fmt.Errorf("no response")}
	}
	return pingResult{RTT: rtt, Mode: info.Mode, Status: info.Status}
}

// printPings runs count pings and prints each result and the summary. It
// returns the number of failures.
func printPings(ctx context.Context, out io.Writer, key ilc.Key, count int, do func(context.Context) pingResult) int {
	failCount := 0
	var total time.Duration
	for i := 1; i <= count; i++ {
		fmt.Fprintf(out, "Ping %d/%d: ", i, count)
		r := do(ctx)
		if r.Err != nil {
			fmt.Fprintf(out, "FAILED: %v\n", r.Err)
			failCount++
		} else {
			total += r.RTT
			fmt.Fprintf(out, "reply from %s, mode=%s, status=0x%04X, rtt=%v\n",
				key, r.Mode, uint16(r.Status), r.RTT.Round(time.Microsecond))
		}

		// Small delay between pings
		if i < count {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Fprintf(out, "\n--- Ping statistics ---\n")
	fmt.Fprintf(out, "%d pings sent, %d responses received, %.0f%% packet loss\n",
		count, count-failCount, float64(failCount)/float64(count)*100)
	if ok := count - failCount; ok > 0 {
		fmt.Fprintf(out, "average rtt=%v\n", (total / time.Duration(ok)).Round(time.Microsecond))
	}
	return failCount
}
