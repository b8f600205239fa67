package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keithhendry/dotty/internal/pipeline"
	"github.com/keithhendry/dotty/pkg/releaser"
)

var (
	nextVersion string
	nextLabels  []string
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Print the version the next release would get",
	Long: `Next resolves the next version without tagging or building anything.
Labels are applied as if a labelled pull request had been merged.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := baseOptions()
		opts.Trigger = pipeline.Manual(nextVersion)
		if len(nextLabels) > 0 {
			opts.Trigger = pipeline.Merge(nextLabels...)
			opts.Trigger.Override = nextVersion
		}

		res, err := releaser.NextVersion(cmd.Context(), opts)
		if err != nil {
			return err
		}
		fmt.Println(res.Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nextCmd)
	nextCmd.Flags().StringVar(&nextVersion, "version", "", "Version override to validate")
	nextCmd.Flags().StringSliceVarP(&nextLabels, "label", "l", nil, "Pull request label (repeatable)")
}
