package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xHumanityRO/forumsearch/internal/index"
	"github.com/xHumanityRO/forumsearch/internal/jobstore"
	"github.com/xHumanityRO/forumsearch/internal/reindex"
)

// StatusInfo is what `forumsearch status` shows.
type StatusInfo struct {
	// DaemonRunning is false when the index was inspected directly.
	DaemonRunning bool   `json:"daemon_running"`
	PID           int    `json:"pid,omitempty"`
	Uptime        string `json:"uptime,omitempty"`

	Index   index.Status              `json:"index"`
	Job     *reindex.ProgressSnapshot `json:"job,omitempty"`
	LastJob *jobstore.Record          `json:"last_job,omitempty"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render displays status info.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index: "+info.Index.Path))

	_, _ = fmt.Fprintf(r.out, "  State:      %s\n", r.styles.outcomeStyle(info.Index.State).Render(info.Index.State))
	_, _ = fmt.Fprintf(r.out, "  Documents:  %d\n", info.Index.DocCount)
	_, _ = fmt.Fprintf(r.out, "  Languages:  %s\n", strings.Join(info.Index.Languages, ", "))
	if info.Index.LastError != "" {
		_, _ = fmt.Fprintf(r.out, "  Rebuild:    %s\n", r.styles.Error.Render(info.Index.LastError))
	}
	_, _ = fmt.Fprintln(r.out)

	if info.DaemonRunning {
		_, _ = fmt.Fprintf(r.out, "  Daemon:     %s (pid %d, up %s)\n", r.styles.Success.Render("running"), info.PID, info.Uptime)
		w := info.Index.Writes
		_, _ = fmt.Fprintf(r.out, "  Writes:     %d docs, %d deletes, %d commits, %d buffered\n",
			w.DocumentsWritten, w.Deletes, w.Commits, w.Buffered)
	} else {
		_, _ = fmt.Fprintf(r.out, "  Daemon:     %s\n", r.styles.Warning.Render("not running"))
	}

	if info.Job != nil {
		_, _ = fmt.Fprintln(r.out)
		r.renderJob("Current job", *info.Job)
	}
	if info.LastJob != nil {
		_, _ = fmt.Fprintln(r.out)
		r.renderJob(fmt.Sprintf("Last journaled job (#%d, %s)", info.LastJob.ID, formatTime(info.LastJob.FinishedAt)), info.LastJob.Progress)
	}
	return nil
}

func (r *StatusRenderer) renderJob(title string, snap reindex.ProgressSnapshot) {
	_, _ = fmt.Fprintf(r.out, "  %s:\n", title)
	_, _ = fmt.Fprintf(r.out, "    Outcome:  %s\n", r.styles.outcomeStyle(string(snap.Outcome)).Render(string(snap.Outcome)))
	_, _ = fmt.Fprintf(r.out, "    Spec:     %s\n", snap.Spec.String())
	_, _ = fmt.Fprintf(r.out, "    Progress: %.0f%% (%d indexed, %d skipped, last post %d)\n",
		snap.ProgressPct, snap.Indexed, snap.Skipped, snap.LastPostID)
	if snap.Error != "" {
		_, _ = fmt.Fprintf(r.out, "    Error:    %s\n", r.styles.Error.Render(snap.Error))
	}
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

// RenderJobs lists journal records, newest first.
func (r *StatusRenderer) RenderJobs(records []jobstore.Record) {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(r.out, "No reindex jobs recorded.")
		return
	}
	for _, rec := range records {
		snap := rec.Progress
		_, _ = fmt.Fprintf(r.out, "#%-4d %-16s %-10s %6d indexed %6d skipped  %s\n",
			rec.ID,
			rec.FinishedAt.Local().Format("2006-01-02 15:04"),
			r.styles.outcomeStyle(string(snap.Outcome)).Render(string(snap.Outcome)),
			snap.Indexed, snap.Skipped, snap.Spec.String())
	}
}

// formatTime formats a time relative to now for recent times.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day") + " ago"
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
