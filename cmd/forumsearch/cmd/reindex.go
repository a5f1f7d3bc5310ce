package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xHumanityRO/forumsearch/internal/config"
	"github.com/xHumanityRO/forumsearch/internal/daemon"
	"github.com/xHumanityRO/forumsearch/internal/errors"
	"github.com/xHumanityRO/forumsearch/internal/output"
	"github.com/xHumanityRO/forumsearch/internal/reindex"
	"github.com/xHumanityRO/forumsearch/internal/ui"
)

// pollInterval is how often job progress is refreshed.
const pollInterval = 250 * time.Millisecond

// reindexOptions holds CLI flags for reindex.
type reindexOptions struct {
	first           int
	last            int
	from            string
	to              string
	recreate        bool
	avoidDuplicates bool
	foreground      bool
	wait            bool
	plain           bool
}

func newReindexCmd() *cobra.Command {
	var opts reindexOptions

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from the database",
		Long: `Index a window of posts from the database.

The window is a post id range (--first/--last) or a date range
(--from/--to). Omitted bounds default to the first and last post.
--recreate empties the index first; --avoid-duplicates skips posts that
are already indexed.

By default the job runs inside the daemon. --foreground runs it in this
process instead, which requires the daemon to be stopped.

Examples:
  forumsearch reindex --recreate
  forumsearch reindex --first 1000 --last 2000 --wait
  forumsearch reindex --from 2024-01-01 --to 2024-06-30 --avoid-duplicates
  forumsearch reindex --foreground
  forumsearch reindex stop`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			spec, err := opts.spec()
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if opts.foreground {
				return runReindexForeground(ctx, cmd, cfg, spec, opts.plain)
			}
			return runReindexDaemon(ctx, cmd, cfg, spec, opts)
		},
	}

	cmd.Flags().IntVar(&opts.first, "first", 0, "First post id (default: first post in the database)")
	cmd.Flags().IntVar(&opts.last, "last", 0, "Last post id (default: last post in the database)")
	cmd.Flags().StringVar(&opts.from, "from", "", "Index posts written on or after this date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&opts.to, "to", "", "Index posts written on or before this date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().BoolVar(&opts.recreate, "recreate", false, "Empty the index before indexing")
	cmd.Flags().BoolVar(&opts.avoidDuplicates, "avoid-duplicates", false, "Skip posts that are already indexed")
	cmd.Flags().BoolVarP(&opts.foreground, "foreground", "f", false, "Run the job in this process instead of the daemon")
	cmd.Flags().BoolVarP(&opts.wait, "wait", "w", false, "Follow the daemon job until it finishes")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain text progress output (no TUI)")

	cmd.AddCommand(newReindexStopCmd())

	return cmd
}

func newReindexStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the reindex job running in the daemon",
		Long: `Ask the daemon to stop its reindex job. The job stops at the next
post, flushes what it has indexed and records a cancelled outcome.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runReindexStop(cmd.Context(), cmd, cfg)
		},
	}
}

// spec converts the flags to a job spec.
func (o reindexOptions) spec() (reindex.JobSpec, error) {
	spec := reindex.JobSpec{
		FirstPostID:     o.first,
		LastPostID:      o.last,
		Recreate:        o.recreate,
		AvoidDuplicates: o.avoidDuplicates,
	}

	var err error
	if o.from != "" {
		if spec.FromDate, err = parseDate(o.from, false); err != nil {
			return spec, err
		}
	}
	if o.to != "" {
		if spec.ToDate, err = parseDate(o.to, true); err != nil {
			return spec, err
		}
	}
	if spec.ByDate() {
		if spec.FromDate.IsZero() {
			spec.FromDate = reindex.Epoch
		}
		if spec.ToDate.IsZero() {
			spec.ToDate = time.Now()
		}
	}
	return spec, spec.Validate()
}

// parseDate accepts RFC3339 or a plain date. A plain end date covers the
// whole day.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, errors.New(errors.ErrCodeInvalidRange,
			fmt.Sprintf("invalid date %q, expected YYYY-MM-DD or RFC3339", s), err)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func runReindexDaemon(ctx context.Context, cmd *cobra.Command, cfg *config.Config, spec reindex.JobSpec, opts reindexOptions) error {
	out := output.New(cmd.OutOrStdout())
	client := daemon.NewClient(daemon.FromConfig(cfg))
	if !client.IsRunning() {
		return errDaemonNotRunning
	}

	res, err := client.Reindex(ctx, daemon.ReindexParams{
		FirstPostID:     spec.FirstPostID,
		LastPostID:      spec.LastPostID,
		FromDate:        spec.FromDate,
		ToDate:          spec.ToDate,
		Recreate:        spec.Recreate,
		AvoidDuplicates: spec.AvoidDuplicates,
	})
	if err != nil {
		return err
	}
	if !res.Started {
		out.Warning("A reindex job is already running")
		return nil
	}
	out.Successf("Reindex started: %s", spec)

	if !opts.wait {
		out.Status("", "Follow it with 'forumsearch status' or stop it with 'forumsearch reindex stop'")
		return nil
	}

	renderer := newRenderer(cmd, cfg, opts.plain)
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		status, err := client.Status(ctx)
		if err != nil {
			return err
		}
		if status.Job != nil {
			if status.Job.Outcome != reindex.OutcomeRunning {
				renderer.Complete(*status.Job)
				return jobError(*status.Job)
			}
			renderer.Update(*status.Job)
		}

		select {
		case <-ctx.Done():
			// Leaving the watch does not stop the daemon's job.
			return nil
		case <-ticker.C:
		}
	}
}

func runReindexForeground(ctx context.Context, cmd *cobra.Command, cfg *config.Config, spec reindex.JobSpec, plain bool) error {
	out := output.New(cmd.OutOrStdout())
	if daemon.NewClient(daemon.FromConfig(cfg)).IsRunning() {
		return errors.New(errors.ErrCodeIndexLocked, "the daemon owns the index", nil).
			WithSuggestion("Run without --foreground to reindex through the daemon")
	}

	st, err := openStack(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := st.open(ctx); err != nil {
		return err
	}
	if st.rx.IsRunning() {
		out.Status("", "Index was recreated, rebuilding the full history first...")
		st.rx.Wait()
	}

	renderer := newRenderer(cmd, cfg, plain)
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	done := make(chan struct{})
	var (
		snap   reindex.ProgressSnapshot
		runErr error
	)
	go func() {
		defer close(done)
		snap, runErr = st.rx.Run(ctx, spec)
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			if runErr != nil && snap.Outcome == "" {
				return runErr
			}
			renderer.Complete(snap)
			return runErr
		case <-ticker.C:
			if p, ok := st.rx.Progress(); ok {
				renderer.Update(p)
			}
		}
	}
}

func runReindexStop(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	out := output.New(cmd.OutOrStdout())
	client := daemon.NewClient(daemon.FromConfig(cfg))
	if !client.IsRunning() {
		return errDaemonNotRunning
	}

	res, err := client.ReindexStop(ctx)
	if err != nil {
		return err
	}
	if res.Stopped {
		out.Success("Stop requested; the job flushes and ends at the next post")
	} else {
		out.Status("", "No reindex job is running")
	}
	return nil
}

func newRenderer(cmd *cobra.Command, cfg *config.Config, plain bool) ui.Renderer {
	return ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(plain),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithTitle(cfg.Index.Path),
	))
}

// jobError turns a failed job into a command error.
func jobError(snap reindex.ProgressSnapshot) error {
	if snap.Outcome == reindex.OutcomeFailed {
		return fmt.Errorf("reindex failed after post %d: %s", snap.LastPostID, snap.Error)
	}
	return nil
}
