// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
	"github.com/Thermoquad/mirrorsupport/pkg/config"
	"github.com/Thermoquad/mirrorsupport/pkg/fpga"
	"github.com/Thermoquad/mirrorsupport/pkg/ilc"
	"github.com/Thermoquad/mirrorsupport/pkg/logging"
	"github.com/Thermoquad/mirrorsupport/pkg/simulator"
)

// loadSettings reads the settings file and environment, then applies the
// flags the user set. Commands that talk to the ILCs pass requireLink to get
// the full validation; the others only need a usable log level.
func loadSettings(cmd *cobra.Command, requireLink bool) (config.Settings, error) {
	s, err := config.Read(configPath)
	if err != nil {
		return s, err
	}
	applyFlags(&s, cmd.Flags().Changed)
	if requireLink {
		return s, s.Validate()
	}
	if _, err := logging.ParseLevel(s.Logging.Level); err != nil {
		return s, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	return s, nil
}

// applyFlags copies every flag for which changed reports true.
func applyFlags(s *config.Settings, changed func(name string) bool) {
	if changed("log-level") {
		s.Logging.Level = logLevel
	}
	if changed("simulate") {
		s.Simulate = simulate
	}
	if changed("port") {
		s.Transport.Port = portName
		s.Transport.URL = ""
	}
	if changed("baud") {
		s.Transport.Baud = baudRate
	}
	if changed("url") {
		s.Transport.URL = wsURL
		s.Transport.Port = ""
	}
	if changed("username") {
		s.Transport.Username = wsUsername
	}
	if changed("no-ssl-verify") {
		s.Transport.NoSSLVerify = wsNoSSLVerify
	}
}

// link is the ILC FIFO a command talks through.
type link struct {
	ilc.FIFO
	Info string

	// Bus is set when the ILCs are simulated.
	Bus    *simulator.Bus
	bridge *fpga.Bridge
}

// Close releases the bridge connection, if any.
func (l *link) Close() error {
	if l.bridge == nil {
		return nil
	}
	return l.bridge.Close()
}

// openLink opens the FIFO bridge selected by s, or a simulated bus.
func openLink(ctx context.Context, s config.Settings, t *actuator.Table, log *zap.Logger) (*link, error) {
	if s.Simulate {
		bus := simulator.New(t, simulator.DefaultConfig())
		return &link{FIFO: bus, Bus: bus, Info: "Simulated ILC bus"}, nil
	}

	conn, info, err := fpga.Open(ctx, s.Transport)
	if err != nil {
		return nil, err
	}
	bridge := fpga.NewBridge(conn, fpga.WithLogger(log.Named("fpga")))
	return &link{FIFO: bridge, Info: info, bridge: bridge}, nil
}

// newLogger builds the zap logger for s.
func newLogger(s config.Settings) (*zap.Logger, error) {
	return logging.NewLogger(s.Logging.Level)
}
