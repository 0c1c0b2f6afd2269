// Command profcov converts profiler coverage dumps into coverage of the
// original source files, using the compiler listings to undo include
// expansion.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"profcov/internal/config"
	"profcov/internal/logging"
	"profcov/internal/pipeline"
	"profcov/internal/report"
	"profcov/internal/watch"
)

// cliFlags holds the flags shared by every command.
type cliFlags struct {
	configPath string
	format     string
	verbose    bool
	summary    bool
	extensions []string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	f := &cliFlags{}

	root := &cobra.Command{
		Use:   "profcov <profiler-path> <listing-root> <output-file> [output-source-prefix]",
		Short: "Map profiler coverage onto original source lines",
		Long: `profcov reads profiler coverage dumps (a single .out file or a directory of
them), finds the compiler listing of every profiled source under the listing
root, and writes coverage of the original source files and lines.

The default report is SonarQube generic coverage XML. The optional
output-source-prefix is prepended to every file path in the report.`,
		Args:          cobra.RangeArgs(3, 4),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return f.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := pipeline.Run(ctx, f.options(cmd, args))
			if err != nil {
				return err
			}
			if f.summary || f.cfg.Output.Summary {
				fmt.Fprint(cmd.OutOrStdout(), report.RenderSummary(report.Summarize(res.Report)))
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&f.configPath, "config", config.DefaultPath, "Config file")
	root.PersistentFlags().StringVarP(&f.format, "format", "f", "", "Report format: xml, json, yaml, sqlite (default: by output extension)")
	root.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&f.summary, "summary", false, "Print a per-file coverage table")
	root.PersistentFlags().StringSliceVar(&f.extensions, "ext", nil, "Listing extensions to search (default: p,py,w,cls)")

	root.AddCommand(newWatchCmd(f))
	return root
}

func newWatchCmd(f *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <profiler-path> <listing-root> <output-file> [output-source-prefix]",
		Short: "Rebuild the report whenever a dump or listing changes",
		Long: `Runs once, then watches the profiler path and the listing root and rebuilds
the whole report after every change. Stop with Ctrl-C.`,
		Args:          cobra.RangeArgs(3, 4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := f.options(cmd, args)
			w, err := watch.New(opts, watch.WithDebounce(f.cfg.GetWatchDebounce()), watch.WithRunFunc(f.summarized(cmd)))
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				return err
			}
			defer w.Stop()

			select {
			case <-ctx.Done():
			case <-w.Done():
			}
			return nil
		},
	}
}

// setup loads the configuration and starts logging.
func (f *cliFlags) setup() error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logging.Initialize(cfg.Logging.Settings()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	f.cfg = cfg

	logging.BootDebug("config loaded from %s", f.configPath)
	return nil
}

// options layers positional arguments and flags over the configuration.
func (f *cliFlags) options(cmd *cobra.Command, args []string) pipeline.Options {
	opts := pipeline.FromConfig(f.cfg)
	opts.ProfilerPath = args[0]
	opts.ListingRoot = args[1]
	opts.OutputPath = args[2]
	if len(args) > 3 {
		opts.SourcePrefix = args[3]
	}
	if cmd.Flags().Changed("format") {
		opts.Format = f.format
	}
	if cmd.Flags().Changed("ext") {
		opts.Extensions = f.extensions
	}
	return opts
}

// summarized wraps pipeline.Run to print the summary table after each run.
func (f *cliFlags) summarized(cmd *cobra.Command) watch.RunFunc {
	return func(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error) {
		res, err := pipeline.Run(ctx, opts)
		if err == nil && (f.summary || f.cfg.Output.Summary) {
			fmt.Fprint(cmd.OutOrStdout(), report.RenderSummary(report.Summarize(res.Report)))
		}
		return res, err
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
