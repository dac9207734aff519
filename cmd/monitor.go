// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 OpenBench Labs

package cmd

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/openbenchlab/powenetics/pkg/pmd"
)

var monitorNoStart bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live 13-channel display",
	Long: `Show a live view of all 13 channels with voltage, current, power, and
accumulated energy, plus session statistics and recent events.

The display refreshes at 10 Hz; the full 1 kHz stream keeps being consumed
underneath so energy totals stay exact.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorNoStart, "no-start", false, "Skip the start-measurement handshake (stream already running)")
}

// Styles
var (
	monTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	monHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	monStatStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	monErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	monWarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// monitorShared is updated by the consumer goroutines and sampled by the
// model on each tick.
type monitorShared struct {
	mu      sync.Mutex
	latest  *pmd.Reading
	events  []string
	fatal   bool
	stopped bool
}

func (m *monitorShared) snapshot() (*pmd.Reading, []string, bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]string, len(m.events))
	copy(events, m.events)
	return m.latest, events, m.fatal, m.stopped
}

const monitorMaxEvents = 50

type monitorTickMsg time.Time

// TUI model
type monitorModel struct {
	session  *pmd.Session
	shared   *monitorShared
	connInfo string
	eventLog viewport.Model
	width    int
	height   int
	quitting bool
}

func newMonitorModel(session *pmd.Session, shared *monitorShared, connInfo string) monitorModel {
	vp := viewport.New(80, 8)
	return monitorModel{
		session:  session,
		shared:   shared,
		connInfo: connInfo,
		eventLog: vp,
	}
}

func monitorTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Init() tea.Cmd {
	return monitorTick()
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.eventLog, cmd = m.eventLog.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.eventLog.Width = msg.Width - 2
		logHeight := msg.Height - (pmd.NumChannels + 10)
		if logHeight < 3 {
			logHeight = 3
		}
		m.eventLog.Height = logHeight

	case monitorTickMsg:
		_, events, _, stopped := m.shared.snapshot()
		m.eventLog.SetContent(joinLines(events))
		if stopped {
			m.quitting = true
			return m, tea.Quit
		}
		return m, monitorTick()
	}

	return m, nil
}

func (m monitorModel) View() string {
	if m.quitting {
		return ""
	}

	latest, _, fatal, _ := m.shared.snapshot()
	stats := m.session.Stats()

	s := monTitleStyle.Render("powenetics - Live Monitor") + "\n"
	s += monStatStyle.Render(m.connInfo) + "\n\n"

	s += monHeaderStyle.Render(fmt.Sprintf("%-20s %10s %11s %11s %15s", "Channel", "Voltage", "Current", "Power", "Energy")) + "\n"
	if latest != nil {
		for i, c := range latest.Channels {
			powerUW := uint64(c.VoltageMV) * uint64(c.CurrentMA)
			s += fmt.Sprintf("%-20s %8.3f V %9.3f A %9.3f W %13.6f J\n",
				pmd.ChannelNames[i],
				float64(c.VoltageMV)/1000.0,
				float64(c.CurrentMA)/1000.0,
				float64(powerUW)/1e6,
				float64(c.EnergyNJ)/1e9,
			)
		}
		s += "\n" + monStatStyle.Render(fmt.Sprintf("reading #%d  wire seq %d  %s",
			latest.Sequence, latest.WireSequence, latest.Timestamp.Format(pmd.TimeFormat))) + "\n"
	} else {
		s += monStatStyle.Render("waiting for first reading...") + "\n"
	}

	line := fmt.Sprintf("frames %d  rate %.0f/s  checksum errors %d  dropped %d  gaps %d",
		stats.FramesAccepted, rateSince(stats), stats.ChecksumErrors, stats.ReadingsDropped, stats.SequenceGaps)
	if fatal {
		s += monErrorStyle.Render(line) + "\n"
	} else {
		s += monStatStyle.Render(line) + "\n"
	}

	s += "\n" + monHeaderStyle.Render("Events") + "\n"
	s += m.eventLog.View() + "\n"
	s += monStatStyle.Render("q: quit  up/down: scroll events")

	return s
}

func rateSince(stats pmd.Statistics) float64 {
	elapsed := time.Since(stats.StartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(stats.FramesAccepted) / elapsed
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if !monitorNoStart {
		if err := pmd.StartMeasurement(conn); err != nil {
			return err
		}
	}

	session := pmd.NewSession(conn, pmd.SessionOptions{})
	session.Start()
	defer session.Stop()

	shared := &monitorShared{}

	// Drain the full-rate reading stream; the model samples the latest one
	// per display tick.
	go func() {
		for r := range session.Readings() {
			r := r
			shared.mu.Lock()
			shared.latest = &r
			shared.mu.Unlock()
		}
		shared.mu.Lock()
		shared.stopped = true
		shared.mu.Unlock()
	}()

	go func() {
		for e := range session.Events() {
			line := fmt.Sprintf("[%s] %s", e.Time.Format("15:04:05.000"), pmd.FormatEvent(e))
			if e.Kind.Terminal() {
				line = monErrorStyle.Render(line)
			} else {
				line = monWarnStyle.Render(line)
			}
			shared.mu.Lock()
			shared.events = append(shared.events, line)
			if len(shared.events) > monitorMaxEvents {
				shared.events = shared.events[len(shared.events)-monitorMaxEvents:]
			}
			if e.Kind.Terminal() {
				shared.fatal = true
			}
			shared.mu.Unlock()
		}
	}()

	p := tea.NewProgram(newMonitorModel(session, shared, connInfo), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("monitor UI error: %v", err)
	}

	session.Stop()
	if err := session.Err(); err != nil {
		return err
	}
	return nil
}
