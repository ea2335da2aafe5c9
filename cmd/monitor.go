// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/mirrorsupport/pkg/telemetry"
)

var (
	monitorURL       string
	monitorTUI       bool
	monitorShowAll   bool
	monitorReconnect time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch the telemetry of a running control loop",
	Long: `Connect to the telemetry stream of "mirrorsupport run" and display the
operating mode, safety faults, raise progress, mirror forces, hardpoints and
ILC warnings as they change.

By default a terminal UI is shown. Use --tui=false for a line per event.

Examples:
  mirrorsupport monitor
  mirrorsupport monitor --telemetry-url ws://cell:8765/telemetry --tui=false`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorURL, "telemetry-url", "", "Telemetry URL (default from settings)")
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", true, "Use terminal UI (false for text mode)")
	monitorCmd.Flags().BoolVar(&monitorShowAll, "show-all", false, "Print every event in text mode, not just changes")
	monitorCmd.Flags().DurationVar(&monitorReconnect, "reconnect", 2*time.Second, "Delay between connection attempts")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd, false)
	if err != nil {
		return err
	}
	url := s.Telemetry.URL
	if monitorURL != "" {
		url = monitorURL
	}
	if url == "" {
		return errors.New("no telemetry URL configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if monitorTUI {
		p := tea.NewProgram(initialMonitorModel(url))
		go follow(ctx, url, monitorReconnect, p.Send)
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("TUI error: %v", err)
		}
		return nil
	}
	return runMonitorText(ctx, cmd.OutOrStdout(), url)
}

// Messages shared by both display modes.
type (
	telemetryMsg struct {
		env telemetry.Envelope
		v   any
	}
	connectedMsg    struct{}
	disconnectedMsg struct{ err error }
)

// follow streams telemetry from url into send, reconnecting until ctx is done.
func follow(ctx context.Context, url string, delay time.Duration, send func(tea.Msg)) {
	for ctx.Err() == nil {
		client, err := telemetry.Dial(ctx, url)
		if err != nil {
			send(disconnectedMsg{err: err})
		} else {
			send(connectedMsg{})
			stop := context.AfterFunc(ctx, func() { _ = client.Close() })
			for {
				env, v, err := client.Next()
				if err != nil {
					if ctx.Err() == nil {
						send(disconnectedMsg{err: err})
					}
					break
				}
				send(telemetryMsg{env: env, v: v})
			}
			stop()
			_ = client.Close()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func runMonitorText(ctx context.Context, out io.Writer, url string) error {
	fmt.Fprintf(out, "Mirrorsupport - Telemetry Monitor\n")
	fmt.Fprintf(out, "Telemetry: %s\n", url)
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	msgs := make(chan tea.Msg, 64)
	go follow(ctx, url, monitorReconnect, func(m tea.Msg) {
		select {
		case msgs <- m:
		case <-ctx.Done():
		}
	})

	state := newMonitorState()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgs:
			ts := time.Now().Format("15:04:05.000")
			switch msg := msg.(type) {
			case connectedMsg:
				fmt.Fprintf(out, "[%s] Connected\n", ts)
			case disconnectedMsg:
				fmt.Fprintf(out, "[%s] \033[1;31mDISCONNECTED:\033[0m %v\n", ts, msg.err)
			case telemetryMsg:
				entry, ok := state.apply(msg.v)
				switch {
				case ok && entry.isError:
					fmt.Fprintf(out, "[%s] \033[1;31m%s\033[0m\n", ts, entry.message)
				case ok:
					fmt.Fprintf(out, "[%s] %s\n", ts, entry.message)
				case monitorShowAll:
					fmt.Fprintf(out, "[%s] %s %+v\n", ts, msg.env.Kind, msg.v)
				}
			}
		}
	}
}

// logEntry is one line of the event log.
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for information
}

// monitorState is the latest value of every telemetry topic.
type monitorState struct {
	mode       string
	fault      telemetry.ErrorCodeEvent
	progress   telemetry.RaiseProgressEvent
	stats      telemetry.ILCStatisticsEvent
	forces     telemetry.MirrorForcesEvent
	hardpoints telemetry.HardpointsEvent
	components map[string]telemetry.ForceComponentEvent
	warnings   map[string]telemetry.ILCWarningEvent
	events     uint64
}

func newMonitorState() *monitorState {
	return &monitorState{
		components: make(map[string]telemetry.ForceComponentEvent),
		warnings:   make(map[string]telemetry.ILCWarningEvent),
	}
}

// apply records one event. It returns a log entry for changes an operator
// should see.
func (s *monitorState) apply(v any) (logEntry, bool) {
	s.events++
	now := time.Now()
	switch ev := v.(type) {
	case *telemetry.ModeEvent:
		s.mode = ev.Mode
		return logEntry{timestamp: now, message: "Mode: " + ev.Mode}, true

	case *telemetry.ErrorCodeEvent:
		prev := s.fault
		s.fault = *ev
		if ev.Code == 0 {
			if prev.Code == 0 {
				return logEntry{}, false
			}
			return logEntry{timestamp: now, message: "Fault cleared: " + prev.Name}, true
		}
		msg := "Fault: " + ev.Name
		if ev.Report != "" {
			msg += " (" + ev.Report + ")"
		}
		return logEntry{timestamp: now, message: msg, isError: true}, true

	case *telemetry.ILCWarningEvent:
		key := fmt.Sprintf("%d:%d", ev.Subnet, ev.Address)
		if !ev.Any {
			if _, ok := s.warnings[key]; !ok {
				return logEntry{}, false
			}
			delete(s.warnings, key)
			return logEntry{timestamp: now, message: fmt.Sprintf("ILC %s #%d warnings cleared", key, ev.ActuatorID)}, true
		}
		s.warnings[key] = *ev
		msg := fmt.Sprintf("ILC %s #%d: %s", key, ev.ActuatorID, strings.Join(ev.Flags, ", "))
		if ev.Function != "" {
			msg += " on " + ev.Function
		}
		return logEntry{timestamp: now, message: msg, isError: true}, true

	case *telemetry.ForceComponentEvent:
		prev, seen := s.components[ev.Name]
		s.components[ev.Name] = *ev
		if seen && prev.State == ev.State && (prev.Clipped > 0) == (ev.Clipped > 0) {
			return logEntry{}, false
		}
		msg := fmt.Sprintf("%s: %s", ev.Name, ev.State)
		if ev.Clipped > 0 {
			return logEntry{timestamp: now, message: fmt.Sprintf("%s, %d actuators clipped", msg, ev.Clipped), isError: true}, true
		}
		return logEntry{timestamp: now, message: msg}, true

	case *telemetry.RaiseProgressEvent:
		s.progress = *ev
	case *telemetry.ILCStatisticsEvent:
		s.stats = *ev
	case *telemetry.MirrorForcesEvent:
		s.forces = *ev
	case *telemetry.HardpointsEvent:
		s.hardpoints = *ev
	}
	return logEntry{}, false
}

// componentNames returns the force component names in display order.
func (s *monitorState) componentNames() []string {
	names := make([]string, 0, len(s.components))
	for name := range s.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
