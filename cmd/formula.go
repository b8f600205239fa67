package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keithhendry/dotty/pkg/releaser"
)

var formulaOutput string

var formulaCmd = &cobra.Command{
	Use:   "formula <version>",
	Short: "Render the Homebrew formula for archives already built",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := releaser.Formula(baseOptions(), args[0])
		if err != nil {
			return err
		}
		if formulaOutput == "" || formulaOutput == "-" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(formulaOutput, data, 0644); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✅ Formula written to %s\n", formulaOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(formulaCmd)
	formulaCmd.Flags().StringVarP(&formulaOutput, "output", "o", "", "Write the formula to this file instead of stdout")
}
