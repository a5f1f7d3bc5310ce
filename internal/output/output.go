// Package output provides consistent CLI output formatting.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

// Writer provides formatted output for the CLI.
type Writer struct {
	out io.Writer
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Hit is one search result line.
type Hit struct {
	PostID  int
	ForumID int
	TopicID int
	Date    time.Time
	Subject string
	Score   float64
}

// Hits prints a page of search results with a summary line.
func (w *Writer) Hits(total uint64, offset int, hits []Hit) {
	if total == 0 {
		w.Status("🔍", "No matching posts")
		return
	}

	w.Statusf("🔍", "%d matching posts, showing %d-%d", total, offset+1, offset+len(hits))
	w.Newline()
	for _, h := range hits {
		_, _ = fmt.Fprintf(w.out, "  #%-8d %s  forum %-4d topic %-6d %6.3f  %s\n",
			h.PostID, h.Date.Local().Format("2006-01-02"), h.ForumID, h.TopicID, h.Score, truncate(h.Subject, 60))
	}
}

// Tokens prints an analyzed token stream.
func (w *Writer) Tokens(tokens []string) {
	if len(tokens) == 0 {
		w.Status("", "(no tokens)")
		return
	}
	w.Status("", strings.Join(tokens, " | "))
}

// truncate shortens s to max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
