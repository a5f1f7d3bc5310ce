package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xHumanityRO/forumsearch/internal/analysis"
	"github.com/xHumanityRO/forumsearch/internal/index"
	"github.com/xHumanityRO/forumsearch/pkg/version"
)

// versionReport adds the index compatibility markers to the build info.
// Indexes written with another mapping version are rebuilt on start.
type versionReport struct {
	version.Info
	IndexMapping int      `json:"index_mapping"`
	Languages    []string `json:"languages"`
}

func newVersionCmd() *cobra.Command {
	var jsonOutput, shortOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build and index format versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			info := version.Get()

			switch {
			case shortOutput:
				_, err := fmt.Fprintln(out, info.Version)
				return err
			case jsonOutput:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(versionReport{
					Info:         info,
					IndexMapping: index.MappingVersion,
					Languages:    analysis.SupportedLanguages(),
				})
			}

			_, err := fmt.Fprintf(out, "%s\nindex mapping v%d, %d analyzer languages\n",
				info, index.MappingVersion, len(analysis.SupportedLanguages()))
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	cmd.Flags().BoolVar(&shortOutput, "short", false, "Output only the version number")

	return cmd
}
