package tui

import (
	"fmt"
	"strings"
)

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	s := m.snapshot

	run := []string{
		panelTitleStyle.Render("Run"),
		row("Elapsed", formatDuration(m.Elapsed())),
		row("Adapter", m.adapterName),
		row("Queue depth", fmt.Sprintf("%d", s.QueueDepth)),
	}
	if s.Awaited > 0 {
		run = append(run, row("Awaited suites", fmt.Sprintf("%d", s.Awaited)))
	}

	workers := []string{
		panelTitleStyle.Render("Workers"),
		row("Local", fmt.Sprintf("%d / %d", s.LocalWorkers, m.targetWorkers)),
		row("Remote owed", fmt.Sprintf("%d", s.RemoteWorkers)),
	}

	suites := []string{
		panelTitleStyle.Render("Suites"),
		row("Completed", fmt.Sprintf("%d", s.Completed)),
		rowStyled("Failed", fmt.Sprintf("%d", s.Failed), countStyle(s.Failed)),
	}
	if s.WrongTokens > 0 {
		suites = append(suites, rowStyled("Wrong tokens", fmt.Sprintf("%d", s.WrongTokens), warnStyle))
	}

	help := "q to quit"
	if m.metricsAddr != "" {
		help += "  |  metrics: http://" + m.metricsAddr + "/metrics"
	}

	var b strings.Builder
	b.WriteString(bannerStyle.Render("suite-swarm"))
	b.WriteString("\n")
	for _, panel := range [][]string{run, workers, suites} {
		b.WriteString(panelStyle.Render(strings.Join(panel, "\n")))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render(help))
	b.WriteString("\n")

	return b.String()
}
