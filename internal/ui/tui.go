package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/xHumanityRO/forumsearch/internal/reindex"
)

// TUIRenderer shows a live reindex panel using bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *reindexModel
	tracker *ProgressTracker
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails for non-TTY output.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newReindexModel(tracker, cfg.Title, GetStyles(cfg.NoColor))

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	ctx, r.cancel = context.WithCancel(ctx)

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()

	return nil
}

// Update implements Renderer.
func (r *TUIRenderer) Update(snap reindex.ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.Observe(snap)
	if r.program != nil {
		r.program.Send(progressMsg{})
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(snap reindex.ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.Observe(snap)
	if r.program != nil {
		r.program.Send(completeMsg(snap))
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Quit()

		// An unresponsive program must not hang the CLI on Ctrl+C.
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
		}
	}
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

type progressMsg struct{}
type completeMsg reindex.ProgressSnapshot
type tickMsg time.Time

// reindexModel is the bubbletea model for a reindex job.
type reindexModel struct {
	tracker  *ProgressTracker
	title    string
	width    int
	quitting bool
	final    *reindex.ProgressSnapshot
	spinner  spinner.Model
	bar      progress.Model
	styles   Styles
}

func newReindexModel(tracker *ProgressTracker, title string, styles Styles) *reindexModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Active

	return &reindexModel{
		tracker: tracker,
		title:   title,
		width:   80,
		spinner: s,
		bar: progress.New(
			progress.WithSolidFill(ColorAccent),
			progress.WithWidth(50),
			progress.WithoutPercentage(),
		),
		styles: styles,
	}
}

// Init implements tea.Model.
func (m *reindexModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *reindexModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-20, 20)

	case progressMsg:
		return m, nil

	case completeMsg:
		snap := reindex.ProgressSnapshot(msg)
		m.final = &snap
		return m, tea.Quit

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *reindexModel) View() string {
	if m.quitting {
		return "Detached. The job keeps running until stopped.\n"
	}
	if m.final != nil {
		return m.renderComplete(*m.final)
	}

	width := max(m.width-4, 40)
	stats := m.tracker.Stats()

	sections := []string{
		m.renderPhases(stats.Phase),
		m.divider(width),
		m.renderProgress(stats),
		m.renderSpeed(stats),
		m.divider(width),
		m.styles.Active.Render(m.tracker.Sparkline(max(width-14, 10))) + " " + m.styles.Dim.Render("posts/sec"),
	}

	title := "forumsearch reindex"
	if m.title != "" {
		title += " • " + m.title
	}
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		panel.Render(strings.Join(sections, "\n")),
	) + "\n" + m.styles.Dim.Render("q to detach")
}

func (m *reindexModel) renderPhases(current Phase) string {
	var parts []string
	for _, p := range []Phase{PhaseResolving, PhaseIndexing, PhaseDone} {
		switch {
		case p < current:
			parts = append(parts, m.styles.Success.Render("● "+p.String()))
		case p == current:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+p.String()))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+p.String()))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *reindexModel) renderProgress(stats ProgressStats) string {
	snap := stats.Snapshot
	if stats.Phase == PhaseResolving {
		return fmt.Sprintf("%s %s", m.spinner.View(), m.styles.Dim.Render(snap.Spec.String()))
	}

	bar := m.bar.ViewAs(stats.Fraction)
	pct := m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Fraction*100))
	counts := m.styles.Label.Render(fmt.Sprintf("posts %d..%d  •  %d indexed, %d skipped  •  last %d",
		snap.FirstID, snap.LastID, snap.Indexed, snap.Skipped, snap.LastPostID))
	return fmt.Sprintf("%s  %s\n%s", bar, pct, counts)
}

func (m *reindexModel) renderSpeed(stats ProgressStats) string {
	parts := []string{m.styles.Label.Render(fmt.Sprintf("Speed: %.0f/s", stats.Speed.Current))}
	if stats.Speed.Avg > 0 {
		parts[0] += m.styles.Label.Render(fmt.Sprintf(" (avg: %.0f, peak: %.0f)", stats.Speed.Avg, stats.Speed.Peak))
	}
	if stats.ETA > 0 {
		parts = append(parts, m.styles.Label.Render("ETA: "+formatDuration(stats.ETA)))
	}
	return strings.Join(parts, m.styles.Dim.Render("  •  "))
}

func (m *reindexModel) divider(width int) string {
	return m.styles.Border.Render(strings.Repeat("─", width))
}

func (m *reindexModel) renderComplete(snap reindex.ProgressSnapshot) string {
	style := m.styles.outcomeStyle(string(snap.Outcome))
	lines := []string{
		style.Render("Reindex " + string(snap.Outcome)),
		"",
		fmt.Sprintf("%s  %d", m.styles.Label.Render("Indexed: "), snap.Indexed),
		fmt.Sprintf("%s  %d", m.styles.Label.Render("Skipped: "), snap.Skipped),
		fmt.Sprintf("%s  %s", m.styles.Label.Render("Duration:"), formatDuration(time.Duration(snap.Elapsed*float64(time.Second)))),
	}
	if snap.Error != "" {
		lines = append(lines, "", m.styles.Error.Render(fmt.Sprintf("✗ %s (last post %d)", snap.Error, snap.LastPostID)))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(1, 2).
		Width(max(m.width-4, 40)).
		Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

var _ Renderer = (*TUIRenderer)(nil)
