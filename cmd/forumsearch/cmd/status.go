package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/xHumanityRO/forumsearch/internal/config"
	"github.com/xHumanityRO/forumsearch/internal/daemon"
	"github.com/xHumanityRO/forumsearch/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and reindex progress",
		Long: `Display information about the index:
  - Daemon state, PID and uptime
  - Index state, path, languages and document count
  - Progress of the running reindex job
  - The last job recorded in the journal

Without a running daemon the index directory and the journal are read
directly.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runStatus(cmd.Context(), cmd, cfg, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, cfg *config.Config, jsonOutput bool) error {
	info, err := collectStatus(ctx, cfg)
	if err != nil {
		return err
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

func collectStatus(ctx context.Context, cfg *config.Config) (ui.StatusInfo, error) {
	client := daemon.NewClient(daemon.FromConfig(cfg))
	if client.IsRunning() {
		res, err := client.Status(ctx)
		if err != nil {
			return ui.StatusInfo{}, err
		}
		return ui.StatusInfo{
			DaemonRunning: true,
			PID:           res.PID,
			Uptime:        res.Uptime,
			Index:         res.Index,
			Job:           res.Job,
			LastJob:       res.LastJob,
		}, nil
	}

	status, last, err := offlineStatus(cfg)
	if err != nil {
		return ui.StatusInfo{}, err
	}
	return ui.StatusInfo{Index: status, LastJob: last}, nil
}
