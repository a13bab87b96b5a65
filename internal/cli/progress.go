package cli

import (
	"context"
	"fmt"
	"math"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
)

const tickInterval = 100 * time.Millisecond

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg advances the elapsed-time display.
type tickMsg time.Time

// importDoneMsg carries the result of the import request.
type importDoneMsg struct {
	err error
}

// importModel is the bubbletea model shown while a snapshot import is in
// flight. The server applies imports atomically, so there is no per-node
// progress to poll; the bar is an activity indicator driven by elapsed time
// that completes when the request returns.
type importModel struct {
	run      func(ctx context.Context) error
	total    int
	progress progress.Model
	theme    Theme
	started  time.Time
	elapsed  time.Duration
	done     bool
	quitting bool
	ctx      context.Context
	cancel   context.CancelFunc
	err      error
}

func newImportModel(total int, run func(ctx context.Context) error) importModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	ctx, cancel := context.WithCancel(context.Background())
	return importModel{
		run:      run,
		total:    total,
		progress: prog,
		theme:    defaultTheme,
		started:  time.Now(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Init starts the import request and the tick loop.
func (m importModel) Init() tea.Cmd {
	return tea.Batch(
		m.startImport(),
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m importModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.elapsed = time.Since(m.started)
		return m, tickCmd()

	case importDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m importModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m importModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	status := m.theme.statusStyle().Render("[importing]")
	bar := m.progress.ViewAs(m.fraction())
	counts := fmt.Sprintf("%d nodes, %s", m.total, m.elapsed.Round(time.Second))
	hint := m.theme.hintStyle().Render("Press Ctrl+C to cancel")

	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, counts, hint)
}

// fraction eases toward 95% while waiting so the bar keeps moving without
// a real completion signal.
func (m importModel) fraction() float64 {
	f := 1 - math.Exp(-m.elapsed.Seconds()/5)
	return math.Min(f, 0.95)
}

func (m importModel) finalView() string {
	if m.quitting {
		return m.theme.hintStyle().Render("\nImport cancelled.\n")
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Import failed: %s\n", m.err))
	}
	return m.theme.completedStyle().Render(fmt.Sprintf("✓ Imported %d nodes\n", m.total))
}

// startImport runs the request in a command goroutine so Update never
// blocks.
func (m importModel) startImport() tea.Cmd {
	return func() tea.Msg {
		return importDoneMsg{err: m.run(m.ctx)}
	}
}

// tickCmd returns a command that sends a tick after the interval.
func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunImportProgress shows the interactive progress UI while run executes.
func RunImportProgress(total int, run func(ctx context.Context) error) error {
	model := newImportModel(total, run)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(importModel); ok {
		if m.quitting {
			return fmt.Errorf("import cancelled")
		}
		return m.err
	}
	return nil
}
