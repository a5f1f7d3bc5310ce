package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/xHumanityRO/forumsearch/internal/analysis"
	"github.com/xHumanityRO/forumsearch/internal/daemon"
	"github.com/xHumanityRO/forumsearch/internal/errors"
	"github.com/xHumanityRO/forumsearch/internal/index"
	"github.com/xHumanityRO/forumsearch/internal/output"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that the index directory is usable",
		Long: `Check the index directory without changing it: it must exist, hold
readable index metadata and match the configured languages.

An unavailable or corrupt index is recreated and rebuilt the next time
'forumsearch serve' starts. The daemon must be stopped, since it holds the
index lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())

			if daemon.NewClient(daemon.FromConfig(cfg)).IsRunning() {
				out.Status("", "The daemon is running and holds the index; see 'forumsearch status'")
				return nil
			}

			pipeline, err := analysis.New(cfg.Index.Languages, nil)
			if err != nil {
				return err
			}
			settings := index.NewSettings(cfg.Index.Path, pipeline, nil)
			defer func() { _ = settings.Close() }()

			if err := settings.Validate(); err != nil {
				switch errors.GetCode(err) {
				case errors.ErrCodeIndexUnavailable:
					out.Warningf("Index at %s is missing", cfg.Index.Path)
				case errors.ErrCodeCorruptIndex:
					out.Errorf("Index at %s is corrupt or built with other languages", cfg.Index.Path)
				}
				return err
			}

			out.Successf("Index at %s is valid (languages: %s)", cfg.Index.Path, strings.Join(pipeline.Languages(), ", "))
			return nil
		},
	}
}
