// Package ui renders reindex progress and index status in the terminal.
package ui

import (
	"context"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/xHumanityRO/forumsearch/internal/reindex"
)

// Phase is the coarse state of a job as shown to the user.
type Phase int

const (
	// PhaseResolving means the post id window is not known yet.
	PhaseResolving Phase = iota
	// PhaseIndexing means posts are being paged into the index.
	PhaseIndexing
	// PhaseDone means the job has ended, whatever the outcome.
	PhaseDone
)

// String returns the human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseResolving:
		return "Resolving"
	case PhaseIndexing:
		return "Indexing"
	case PhaseDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Icon returns the short tag used in plain text output.
func (p Phase) Icon() string {
	switch p {
	case PhaseResolving:
		return "RANGE"
	case PhaseIndexing:
		return "INDEX"
	case PhaseDone:
		return "DONE"
	default:
		return "???"
	}
}

// PhaseOf derives the phase from a progress snapshot.
func PhaseOf(snap reindex.ProgressSnapshot) Phase {
	switch {
	case snap.Outcome != reindex.OutcomeRunning && snap.Outcome != "":
		return PhaseDone
	case snap.LastID == 0:
		return PhaseResolving
	default:
		return PhaseIndexing
	}
}

// Renderer displays the progress of one reindex job.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// Update shows the latest progress.
	Update(snap reindex.ProgressSnapshot)

	// Complete shows the final summary.
	Complete(snap reindex.ProgressSnapshot)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	// Title is shown in the TUI header, typically the index path.
	Title string
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithTitle sets the header title.
func WithTitle(title string) ConfigOption {
	return func(c *Config) {
		c.Title = title
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns a TUI renderer for interactive terminals and a plain
// text renderer for CI, pipes, or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
