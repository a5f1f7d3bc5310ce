package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/xHumanityRO/forumsearch/internal/jobstore"
	"github.com/xHumanityRO/forumsearch/internal/ui"
)

func newJobsCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent reindex jobs",
		Long: `List reindex jobs recorded in the job journal, newest first.

The journal is locked while the daemon runs; use 'forumsearch status' to
see the last job then.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := jobstore.Open(cfg.Journal.Path, cfg.Journal.MaxRecords)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			records, err := store.List(limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor()).RenderJobs(records)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of jobs")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
