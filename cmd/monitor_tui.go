// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUI model
type monitorModel struct {
	url           string
	state         *monitorState
	eventLog      []logEntry
	maxLogEntries int
	connected     bool
	spinner       spinner.Model
	support       progress.Model
	width         int
	height        int
	quitting      bool
}

type tickMsg time.Time

func initialMonitorModel(url string) monitorModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	return monitorModel{
		url:           url,
		state:         newMonitorState(),
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		spinner:       sp,
		support:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.support.Width = max(10, min(60, msg.Width-30))

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		if m.connected {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case connectedMsg:
		m.connected = true
		m.addLogEntry("Connected to "+m.url, false)

	case disconnectedMsg:
		wasConnected := m.connected
		m.connected = false
		m.addLogEntry(fmt.Sprintf("DISCONNECTED: %v", msg.err), true)
		if wasConnected {
			return m, m.spinner.Tick
		}

	case telemetryMsg:
		if entry, ok := m.state.apply(msg.v); ok {
			m.eventLog = append(m.eventLog, entry)
			m.trimLog()
		}
	}

	return m, nil
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	m.trimLog()
}

// trimLog keeps only the last maxLogEntries entries.
func (m *monitorModel) trimLog() {
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("MIRRORSUPPORT - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Telemetry: %s | Press 'q' to quit", m.url)))
	s.WriteString("\n\n")

	if !m.connected {
		s.WriteString(m.spinner.View())
		s.WriteString(warningStyle.Render(" Waiting for telemetry..."))
		s.WriteString("\n\n")
	} else {
		s.WriteString(valueStyle.Render("✓ Connected"))
		s.WriteString(headerStyle.Render(fmt.Sprintf(" (%d events)", m.state.events)))
		s.WriteString("\n\n")
	}

	s.WriteString(boxStyle.Render(m.statusView()))
	s.WriteString("\n")
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Render(m.forcesView()),
		boxStyle.Render(m.hardpointsView()),
	))
	s.WriteString("\n")
	if len(m.state.components) > 0 {
		s.WriteString(boxStyle.Render(m.componentsView()))
		s.WriteString("\n")
	}
	s.WriteString(boxStyle.Render(m.statisticsView()))
	s.WriteString("\n\n")

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(m.logView()))

	return s.String()
}

func (m monitorModel) statusView() string {
	st := m.state
	var b strings.Builder

	mode := st.mode
	if mode == "" {
		mode = "UNKNOWN"
	}
	fault := valueStyle.Render("none")
	if st.fault.Code != 0 {
		fault = errorStyle.Render(st.fault.Name)
		if st.fault.Report != "" {
			fault += headerStyle.Render(" " + st.fault.Report)
		}
	}
	fmt.Fprintf(&b, "%s %s   %s %s\n",
		labelStyle.Render("Mode:"), valueStyle.Render(mode),
		labelStyle.Render("Fault:"), fault)

	p := st.progress
	fmt.Fprintf(&b, "%s %s %5.1f%%", labelStyle.Render("Support:"), m.support.ViewAs(p.Support/100), p.Support)
	var flags []string
	switch {
	case p.Raising:
		flags = append(flags, "raising")
	case p.Lowering:
		flags = append(flags, "lowering")
	}
	if p.Paused {
		flags = append(flags, "paused")
	}
	if p.Stalled {
		flags = append(flags, "stalled")
	}
	if p.WaitingAir {
		flags = append(flags, "waiting for air")
	}
	if len(flags) > 0 {
		b.WriteString(warningStyle.Render(" " + strings.Join(flags, ", ")))
	}
	if (p.Raising || p.Lowering) && p.Remaining > 0 {
		b.WriteString(headerStyle.Render(fmt.Sprintf(" (%.0fs left)", p.Remaining)))
	}
	return b.String()
}

var mirrorAxes = [7]string{"Fx", "Fy", "Fz", "Mx", "My", "Mz", "|F|"}

func (m monitorModel) forcesView() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Mirror Forces") + headerStyle.Render("  applied / preclipped") + "\n")
	f := m.state.forces
	for i, axis := range mirrorAxes {
		applied := valueStyle.Render(fmt.Sprintf("%10.1f", f.Applied[i]))
		if f.Applied[i] != f.Preclipped[i] {
			applied = warningStyle.Render(fmt.Sprintf("%10.1f", f.Applied[i]))
		}
		fmt.Fprintf(&b, "%s %s %s", labelStyle.Render(fmt.Sprintf("%-4s", axis)), applied,
			headerStyle.Render(fmt.Sprintf("%10.1f", f.Preclipped[i])))
		if i < len(mirrorAxes)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m monitorModel) hardpointsView() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Hardpoints") + headerStyle.Render("  encoder / force / mode") + "\n")
	hp := m.state.hardpoints
	if len(hp.Encoders) == 0 {
		b.WriteString(headerStyle.Render("  (no data yet)"))
		return b.String()
	}
	for i, enc := range hp.Encoders {
		force, mode := 0.0, ""
		if i < len(hp.Forces) {
			force = hp.Forces[i]
		}
		if i < len(hp.Modes) {
			mode = hp.Modes[i]
		}
		fmt.Fprintf(&b, "%s %s %s %s", labelStyle.Render(fmt.Sprintf("HP%d", i+1)),
			valueStyle.Render(fmt.Sprintf("%8d", enc)),
			valueStyle.Render(fmt.Sprintf("%9.1f N", force)),
			headerStyle.Render(mode))
		if i < len(hp.Encoders)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m monitorModel) componentsView() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("Force Components") + "\n")
	names := m.state.componentNames()
	for i, name := range names {
		c := m.state.components[name]
		clipped := valueStyle.Render("0")
		if c.Clipped > 0 {
			clipped = errorStyle.Render(fmt.Sprintf("%d", c.Clipped))
		}
		fmt.Fprintf(&b, "%s %s %s %s %s",
			labelStyle.Render(fmt.Sprintf("%-16s", name)),
			valueStyle.Render(fmt.Sprintf("%-12s", c.State)),
			headerStyle.Render("clipped"), clipped,
			headerStyle.Render(fmt.Sprintf("max %.1f N", c.MaxApplied)))
		if i < len(names)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m monitorModel) statisticsView() string {
	st := m.state.stats
	var validPercent float64
	if st.TotalFrames > 0 {
		validPercent = float64(st.ValidFrames) * 100.0 / float64(st.TotalFrames)
	}
	warnRate := valueStyle.Render(fmt.Sprintf("%.1f warn/s", st.WarningRate))
	if st.WarningRate > 0 {
		warnRate = errorStyle.Render(fmt.Sprintf("%.1f warn/s", st.WarningRate))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s   %s %s",
		labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", st.TotalFrames)),
		labelStyle.Render("Valid:"), valueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.ValidFrames, validPercent)),
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f frames/s", st.FrameRate)),
		labelStyle.Render("Warnings:"), warnRate)
	if len(st.Warnings) > 0 {
		parts := make([]string, 0, len(st.Warnings))
		for flag, n := range st.Warnings {
			parts = append(parts, fmt.Sprintf("%s: %d", flag, n))
		}
		sort.Strings(parts)
		b.WriteString("\n" + warningStyle.Render(strings.Join(parts, ", ")))
	}
	if n := len(m.state.warnings); n > 0 {
		b.WriteString("\n" + errorStyle.Render(fmt.Sprintf("%d ILCs warning", n)))
	}
	return b.String()
}

func (m monitorModel) logView() string {
	// Reserve space for header, status, forces and statistics
	logHeight := m.height - 30
	if logHeight < 5 {
		logHeight = 5
	}

	var b strings.Builder
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		b.WriteString(headerStyle.Render("  (no events yet)"))
		return b.String()
	}
	for i := startIdx; i < len(m.eventLog); i++ {
		entry := m.eventLog[i]
		timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
		if entry.isError {
			fmt.Fprintf(&b, "%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message))
		} else {
			fmt.Fprintf(&b, "%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message))
		}
	}
	return b.String()
}
