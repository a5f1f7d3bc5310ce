package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/xHumanityRO/forumsearch/internal/analysis"
	"github.com/xHumanityRO/forumsearch/internal/output"
)

func newAnalyzeCmd() *cobra.Command {
	var languages []string

	cmd := &cobra.Command{
		Use:   "analyze <text>",
		Short: "Show the tokens the index stores for a text",
		Long: `Run text through the analysis pipeline and print the resulting tokens:
lowercased, with stop words of the configured languages removed and
stemmed.

Examples:
  forumsearch analyze "The quick brown foxes"
  forumsearch analyze --languages en,fr "les chats et the dogs"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(languages) == 0 {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				languages = cfg.Index.Languages
			}

			pipeline, err := analysis.New(languages, nil)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			out.Statusf("🔤", "Languages: %s", strings.Join(pipeline.Languages(), ", "))
			out.Tokens(pipeline.Analyze(strings.Join(args, " ")))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&languages, "languages", "l", nil, "Stop-word languages (default: index.languages)")

	return cmd
}
