// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the mirror support settings from a YAML file and
// MIRRORSUPPORT_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
	"github.com/Thermoquad/mirrorsupport/pkg/control"
	"github.com/Thermoquad/mirrorsupport/pkg/fpga"
	"github.com/Thermoquad/mirrorsupport/pkg/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MIRRORSUPPORT_"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid settings")

// Logging configures the logger.
type Logging struct {
	Level string `yaml:"level" env:"LEVEL"`
}

// Telemetry configures the telemetry stream.
type Telemetry struct {
	// Listen is the address the run command serves telemetry on. Empty
	// disables the server.
	Listen string `yaml:"listen" env:"LISTEN"`
	// URL is where the monitor command connects.
	URL string `yaml:"url" env:"URL"`
}

// Neighbors sets the neighbor search radii of the actuator table, in metres.
type Neighbors struct {
	Near float64 `yaml:"near"`
	Far  float64 `yaml:"far"`
}

// Settings is everything the CLI needs. It is not modified after Load.
type Settings struct {
	Control   control.Config         `yaml:"control"`
	Transport fpga.Config            `yaml:"transport" envPrefix:"TRANSPORT_"`
	Logging   Logging                `yaml:"logging" envPrefix:"LOG_"`
	Telemetry Telemetry              `yaml:"telemetry" envPrefix:"TELEMETRY_"`
	Layout    actuator.LayoutOptions `yaml:"layout"`
	Neighbors Neighbors              `yaml:"neighbors"`
	// Simulate answers the ILCs in process instead of opening the bridge.
	Simulate bool `yaml:"simulate" env:"SIMULATE"`
}

// Default returns the settings used when no file is given.
func Default() Settings {
	return Settings{
		Control:   control.DefaultConfig(),
		Transport: fpga.Config{Baud: 115200},
		Logging:   Logging{Level: "info"},
		Telemetry: Telemetry{Listen: ":8765", URL: "ws://localhost:8765/telemetry"},
		Layout:    actuator.DefaultLayoutOptions(),
		Neighbors: Neighbors{Near: 1.1, Far: 2.5},
	}
}

// Load reads path (skipped when empty), applies the environment overrides,
// then normalizes and validates the result.
func Load(path string) (Settings, error) {
	s, err := Read(path)
	if err != nil {
		return s, err
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Read is Load without validation, for callers that apply their own
// overrides first or need only part of the settings.
func Read(path string) (Settings, error) {
	s := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("read settings: %w", err)
		}
		if err := decode(data, &s); err != nil {
			return s, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := env.Parse(&s, env.Options{Prefix: EnvPrefix}); err != nil {
		return s, fmt.Errorf("environment: %w", err)
	}
	s.Normalize()
	return s, nil
}

func decode(data []byte, s *Settings) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Normalize fills what a partial file left empty.
func (s *Settings) Normalize() {
	if s.Logging.Level == "" {
		s.Logging.Level = "info"
	}
	if s.Layout.PerSubnet == 0 {
		s.Layout = actuator.DefaultLayoutOptions()
	}
	if s.Neighbors.Near == 0 && s.Neighbors.Far == 0 {
		s.Neighbors = Default().Neighbors
	}
	if s.Transport.Port != "" && s.Transport.Baud == 0 {
		s.Transport.Baud = 115200
	}
}

// Validate checks every section and lists every problem found.
func (s Settings) Validate() error {
	var errs []error
	if err := s.Control.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("control: %w", err))
	}
	if _, err := logging.ParseLevel(s.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if !s.Simulate {
		switch {
		case s.Transport.Port == "" && s.Transport.URL == "":
			errs = append(errs, errors.New("transport: a serial port or websocket URL is required"))
		case s.Transport.Port != "" && s.Transport.URL != "":
			errs = append(errs, errors.New("transport: serial port and websocket URL are exclusive"))
		}
	}
	if s.Transport.Port != "" && s.Transport.Baud <= 0 {
		errs = append(errs, fmt.Errorf("transport: baud rate %d must be positive", s.Transport.Baud))
	}
	if l := s.Layout; l.PerSubnet < 1 || l.PerSubnet > 247 || l.Rings < 1 {
		errs = append(errs, fmt.Errorf("layout: %d actuators per subnet on %d rings", l.PerSubnet, l.Rings))
	}
	if a := s.Layout.MonitorAddress; a <= 6 || a > 242 {
		errs = append(errs, fmt.Errorf("layout: monitor address %d collides with the hardpoints or leaves the address range", a))
	}
	if s.Neighbors.Near <= 0 || s.Neighbors.Far < s.Neighbors.Near {
		errs = append(errs, fmt.Errorf("neighbors: near %g, far %g", s.Neighbors.Near, s.Neighbors.Far))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Table builds the actuator table of the configured layout.
func (s Settings) Table() (*actuator.Table, error) {
	fas, hps, mons := actuator.GenerateLayout(s.Layout)
	return actuator.NewTable(fas, hps, mons, s.Neighbors.Near, s.Neighbors.Far)
}
