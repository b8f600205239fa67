package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/keithhendry/dotty/internal/store"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded pipeline runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := openLedger()
		if err != nil {
			return err
		}
		defer ledger.Close()

		runs, err := ledger.ListRuns(historyLimit)
		if err != nil {
			return err
		}
		if historyJSON {
			return printJSON(runs)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tTRIGGER\tVERSION\tSTATE")
		for _, r := range runs {
			v := r.Version
			if v == "" {
				v = "-"
			}
			state := string(r.State)
			if r.DryRun {
				state += " (dry run)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.StartedAt.Local().Format(time.DateTime), r.Trigger, v, state)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := openLedger()
		if err != nil {
			return err
		}
		defer ledger.Close()

		run, err := ledger.LoadRun(args[0])
		if err != nil {
			return err
		}
		if historyJSON {
			return printJSON(run)
		}

		fmt.Printf("📋 Run %s (%s)\n", run.ID, run.Trigger)
		fmt.Printf("🏁 State: %s\n", run.State)
		if run.Version != "" {
			fmt.Printf("✅ Version: %s (%s), tag %s\n", run.Version, run.Source, run.Tag)
		}
		for _, t := range run.Transitions {
			fmt.Printf("   %s  %s → %s\n", t.At.Local().Format(time.TimeOnly), t.From, t.To)
		}
		for _, b := range run.Builds {
			if b.Error != "" {
				fmt.Printf("❌ %s: %s\n", b.Platform, b.Error)
				continue
			}
			fmt.Printf("✅ %s: %s sha256:%s\n", b.Platform, b.Archive, b.SHA256)
		}
		if run.Release != nil {
			fmt.Printf("🚀 Release %s: %s\n", run.Release.Tag, run.Release.URL)
		}
		if run.FormulaPR != nil {
			fmt.Printf("🍺 Formula: %s (%s)\n", run.FormulaPR.URL, run.FormulaPR.Branch)
		}
		if run.Error != "" {
			fmt.Printf("❌ Error: %s\n", run.Error)
		}
		return nil
	},
}

func openLedger() (*store.Ledger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Ledger == "" {
		return nil, fmt.Errorf("ledger is disabled in the configuration")
	}
	return store.Open(cfg.Ledger)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.PersistentFlags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of runs to list")
	historyCmd.PersistentFlags().BoolVar(&historyJSON, "json", false, "Print JSON")
}
