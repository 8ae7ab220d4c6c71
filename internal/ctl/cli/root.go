// Package cli implements pipelinectl, the operator tool for the media
// pipeline.
package cli

import (
	"context"

	"github.com/abdul-hamid-achik/vodcoach/internal/ctl/output"
	"github.com/spf13/cobra"
)

var (
	jsonOutput bool
	quietMode  bool
	noColor    bool
	printer    *output.Printer
)

var rootCmd = &cobra.Command{
	Use:   "pipelinectl",
	Short: "Operate the vodcoach media pipeline",
	Long: `pipelinectl inspects and nudges the vodcoach media pipeline.

Examples:
  pipelinectl stuck --older-than 1h       # Assets waiting on processing
  pipelinectl requeue --stuck --forget    # Redeliver upload notifications
  pipelinectl webhook sign --secret whsec_... < event.json`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		printer = output.New(
			output.WithJSON(jsonOutput),
			output.WithQuiet(quietMode),
			output.WithNoColor(noColor),
			output.WithOutput(cmd.OutOrStdout()),
			output.WithErrOutput(cmd.ErrOrStderr()),
		)
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute(ctx context.Context, version string) error {
	rootCmd.Version = version
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON (for scripting)")
	rootCmd.PersistentFlags().BoolVar(&quietMode, "quiet", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.SetVersionTemplate("pipelinectl version {{.Version}}\n")

	rootCmd.AddCommand(stuckCmd)
	rootCmd.AddCommand(requeueCmd)
	rootCmd.AddCommand(webhookCmd)
}
