package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/keithhendry/dotty/internal/config"
	"github.com/keithhendry/dotty/internal/logging"
	"github.com/keithhendry/dotty/internal/pipeline"
	"github.com/keithhendry/dotty/pkg/releaser"
)

var (
	configFile string
	verbose    bool
	logFormat  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dotty-release",
	Short: "Release dotty: tag, build every platform, publish, update Homebrew",
	Long: `dotty-release automates the release of the dotty dotfile manager.

A run:
  - resolves the next version from conventional commits, a bump label or --version
  - tags the repository and pushes the tag
  - builds every configured platform in parallel
  - publishes one release once every archive is present
  - opens an auto-merge pull request updating the Homebrew formula

Examples:
  dotty-release run --version 2.5.0
  dotty-release run --event merge --label release --label release:minor
  dotty-release next
  dotty-release history`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		env := config.Get()
		level := slog.LevelInfo
		if verbose || env.Verbose {
			level = slog.LevelDebug
		}
		format := logFormat
		if format == "" {
			format = env.LogFormat
		}
		logging.Init(level, format, os.Stderr)
	},
}

// exitError carries an explicit process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "❌ %v\n", err)
	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	os.Exit(pipeline.ExitCode(err))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Release config file (default release.yaml, or $DOTTY_RELEASE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
}

// baseOptions returns releaser options carrying the global flags.
func baseOptions() *releaser.Options {
	opts := releaser.DefaultOptions()
	opts.ConfigFile = configFile
	return opts
}

func loadConfig() (*config.Config, error) {
	return config.LoadFile(config.Path(configFile), true)
}
