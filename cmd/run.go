package cmd

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/keithhendry/dotty/internal/pipeline"
	"github.com/keithhendry/dotty/pkg/releaser"
)

var (
	runVersion   string
	runEvent     string
	runLabels    []string
	runEventFile string
	runDryRun    bool
	runNoLedger  bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the release pipeline once",
	Long: `Run resolves the next version, tags it, builds every platform,
publishes the release and updates the Homebrew formula.

The trigger is manual by default. Use --event merge with --label to simulate
a merged pull request, or --event-file to read a GitHub Actions event payload
(defaults to $GITHUB_EVENT_PATH with --event github).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		trig, err := buildTrigger()
		if err != nil {
			return &exitError{code: pipeline.ExitConfigError, err: err}
		}

		fmt.Println("🔧 Starting release...")
		fmt.Printf("🎯 Trigger: %s\n", trig)
		if runDryRun {
			fmt.Println("🧪 Dry run: nothing will be tagged, built or published")
		}

		opts := baseOptions()
		opts.Trigger = trig
		opts.DryRun = runDryRun
		opts.NoLedger = runNoLedger
		opts.Observers = append(opts.Observers, newConsole(os.Stdout))

		res, err := releaser.Release(cmd.Context(), opts)
		if res != nil && res.Plan != nil {
			printPlan(res.Plan)
		}
		if err != nil {
			code := pipeline.ExitFailure
			if res != nil {
				code = res.ExitCode
			}
			if code == pipeline.ExitNotTriggered {
				fmt.Println("⏭️  Not triggered, nothing to release")
			}
			return &exitError{code: code, err: err}
		}
		if res.FormulaWarning != nil {
			fmt.Printf("⚠️  Formula update failed, release is still published: %v\n", res.FormulaWarning)
		}
		if res.Plan == nil {
			fmt.Printf("✅ Release complete: %s\n", res.Tag)
		}
		return nil
	},
}

func buildTrigger() (pipeline.Trigger, error) {
	path := runEventFile
	if runEvent == "github" && path == "" {
		path = os.Getenv("GITHUB_EVENT_PATH")
		if path == "" {
			return pipeline.Trigger{}, fmt.Errorf("--event github needs --event-file or GITHUB_EVENT_PATH")
		}
	}
	if path != "" {
		trig, err := pipeline.FromGitHubEvent(path)
		if err != nil {
			return pipeline.Trigger{}, err
		}
		if runVersion != "" {
			trig.Override = runVersion
		}
		return trig, nil
	}

	kind, err := pipeline.ParseKind(runEvent)
	if err != nil {
		return pipeline.Trigger{}, err
	}
	if kind == pipeline.KindMerge {
		trig := pipeline.Merge(runLabels...)
		trig.Override = runVersion
		return trig, nil
	}
	return pipeline.Manual(runVersion), nil
}

// console prints pipeline progress as it happens. Build events arrive from
// concurrent tasks.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console { return &console{out: out} }

func (c *console) Observe(e pipeline.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev := e.(type) {
	case *pipeline.StateTransitionedEvent:
		if line := stateLine(ev.To); line != "" {
			fmt.Fprintln(c.out, line)
		}
	case *pipeline.VersionResolvedEvent:
		fmt.Fprintf(c.out, "✅ Version: %s (%s), tag %s\n", ev.Version, ev.Source, ev.Tag)
	case *pipeline.BuildFinishedEvent:
		if ev.Err != nil {
			fmt.Fprintf(c.out, "❌ Build %s failed: %v\n", ev.Platform, ev.Err)
			return nil
		}
		fmt.Fprintf(c.out, "✅ Built %s: %s (%s)\n", ev.Platform, ev.Archive, ev.Duration.Round(time.Millisecond))
	case *pipeline.ReleasePublishedEvent:
		fmt.Fprintf(c.out, "🚀 Released %s with %d assets: %s\n", ev.Tag, len(ev.Assets), ev.URL)
	case *pipeline.FormulaUpdatedEvent:
		switch {
		case ev.Reused:
			fmt.Fprintf(c.out, "🍺 Formula pull request reused: %s\n", ev.URL)
		case ev.UpToDate:
			fmt.Fprintln(c.out, "🍺 Formula already current, no pull request needed")
		default:
			fmt.Fprintf(c.out, "🍺 Formula pull request opened: %s\n", ev.URL)
		}
	}
	return nil
}

func stateLine(s pipeline.State) string {
	switch s {
	case pipeline.StateResolving:
		return "🔎 Resolving version..."
	case pipeline.StateTagging:
		return "🏷️  Tagging..."
	case pipeline.StateBuilding:
		return "🔨 Building platforms..."
	case pipeline.StateAggregating:
		return "📦 Collecting archives..."
	case pipeline.StateReleasing:
		return "📝 Publishing release..."
	case pipeline.StateUpdatingFormula:
		return "🍺 Updating Homebrew formula..."
	}
	return ""
}

func printPlan(p *pipeline.Plan) {
	fmt.Printf("📋 Version: %s (%s)\n", p.Version, p.Source)
	fmt.Printf("🏷️  Tag: %s\n", p.Tag)
	if p.TagExists {
		fmt.Println("⚠️  Tag already exists, a real run would stop here")
	}
	for _, a := range p.Archives {
		fmt.Printf("📦 Archive: %s\n", a)
	}
	if p.Branch != "" {
		fmt.Printf("🍺 Formula branch: %s\n", p.Branch)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runVersion, "version", "", "Release exactly this version (MAJOR.MINOR.PATCH)")
	runCmd.Flags().StringVar(&runEvent, "event", "manual", "Trigger kind: manual, merge or github")
	runCmd.Flags().StringSliceVarP(&runLabels, "label", "l", nil, "Pull request label (repeatable, merge trigger only)")
	runCmd.Flags().StringVar(&runEventFile, "event-file", "", "GitHub event payload to derive the trigger from")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Resolve and plan without side effects")
	runCmd.Flags().BoolVar(&runNoLedger, "no-ledger", false, "Do not record this run in the ledger")
}
