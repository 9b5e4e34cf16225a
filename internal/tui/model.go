package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// TickMsg is sent periodically to refresh the elapsed clock.
type TickMsg time.Time

// Snapshot is one heartbeat's view of the run.
type Snapshot struct {
	QueueDepth    int
	Awaited       int
	LocalWorkers  int
	RemoteWorkers int
	Completed     int64
	Failed        int64
	WrongTokens   int64
}

// SnapshotMsg carries an updated run snapshot.
type SnapshotMsg Snapshot

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// Config holds TUI configuration.
type Config struct {
	TargetWorkers int
	AdapterName   string
	MetricsAddr   string
}

// Model represents the TUI state.
type Model struct {
	targetWorkers int
	adapterName   string
	metricsAddr   string

	snapshot   Snapshot
	startTime  time.Time
	lastUpdate time.Time

	width  int
	height int

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		targetWorkers: cfg.TargetWorkers,
		adapterName:   cfg.AdapterName,
		metricsAddr:   cfg.MetricsAddr,
		startTime:     time.Now(),
		lastUpdate:    time.Now(),
		width:         80,
		height:        24,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		return m, tickCmd()

	case SnapshotMsg:
		m.snapshot = Snapshot(msg)
		m.lastUpdate = time.Now()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Elapsed returns the time since the run started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// SendSnapshot sends a run snapshot to the TUI.
func SendSnapshot(p *tea.Program, s Snapshot) {
	if p != nil {
		p.Send(SnapshotMsg(s))
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
