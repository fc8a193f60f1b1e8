package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cired/directory"
	"github.com/cired/directory/internal/config"
	"github.com/cired/directory/internal/watch"
	"github.com/cired/directory/pkg/constants"
	"github.com/cired/directory/pkg/errors"
	"github.com/cired/directory/pkg/logging"
	"github.com/cired/directory/pkg/provenance"
)

// settingFlags maps command flags to setting keys.
var settingFlags = map[string]string{
	"input":          "inputs",
	"output-dir":     "output_dir",
	"origins":        "origins",
	"exclusion-file": "exclusion_file",
	"exclusion-mode": "exclusion_mode",
	"consent-file":   "consent_file",
	"as-of":          "as_of",
	"workers":        "workers",
	"metrics-file":   "metrics_file",
}

// addSettingFlags registers the flags overriding pipeline settings.
func addSettingFlags(flags *pflag.FlagSet) {
	flags.StringSliceP("input", "i", nil, "input glob patterns, ** supported (default \""+constants.DefaultInputPattern+"\")")
	flags.StringP("output-dir", "d", "", "output directory (default \""+constants.DefaultOutputDir+"\")")
	flags.StringSlice("origins", nil, "origin ranking, most authoritative first")
	flags.String("exclusion-file", "", "YAML list of names to exclude")
	flags.String("exclusion-mode", "", "drop or passthrough (default \"drop\")")
	flags.String("consent-file", "", "YAML sidecar of consent grants")
	flags.String("as-of", "", "evaluate consent at this instant (RFC 3339, default now)")
	flags.Int("workers", 0, "identity groups merged concurrently (default CPU count)")
	flags.String("metrics-file", "", "write run metrics to this node-exporter textfile")
}

// settingsFor binds the command's setting flags and decodes the settings.
func (a *App) settingsFor(cmd *cobra.Command) (*config.Settings, error) {
	v, err := a.Viper()
	if err != nil {
		return nil, err
	}
	for name, key := range settingFlags {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, errors.NewConfigError("flags", "binding --"+name, err)
		}
	}
	return a.Settings()
}

// commandContext returns the command context carrying the application logger.
func (a *App) commandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return logging.WithLogger(ctx, a.logger)
}

// NewRunCommand creates the run command.
func (a *App) NewRunCommand() *cobra.Command {
	var (
		dryRun  bool
		explain bool
	)
	cmd := &cobra.Command{
		Use:     "run",
		GroupID: "core",
		Short:   "Merge the inputs and write the directory and its exports",
		Long: `Run parses every input, groups records by identity, merges each group
into a canonical record and writes merged.vcf, the public, members and admin
exports and audit.yaml into the output directory.

Malformed records are reported and skipped. Read or write failures abort the
run.`,
		Example: `  directory run -i 'data/**/*.vcf' --origins askCIRED,askHAL,askREPEC
  directory run --dry-run --explain`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := a.settingsFor(cmd)
			if err != nil {
				return err
			}
			p, err := a.Pipeline(settings, directory.WithDryRun(dryRun))
			if err != nil {
				return err
			}
			result, err := p.Run(a.commandContext(cmd))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.Summary())
			for _, path := range result.Outputs {
				fmt.Fprintf(out, "  wrote %s\n", path)
			}
			if explain {
				fmt.Fprint(out, provenance.GenerateReport(result.Merge.Provenance, result.Merge.Conflicts).String())
			}
			return nil
		},
	}
	addSettingFlags(cmd.Flags())
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run every stage but write nothing")
	cmd.Flags().BoolVar(&explain, "explain", false, "print where each merged value came from")
	return cmd
}

// NewValidateCommand creates the validate command.
func (a *App) NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "validate",
		GroupID: "core",
		Short:   "Parse the inputs and report malformed records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := a.settingsFor(cmd)
			if err != nil {
				return err
			}
			p, err := a.Pipeline(settings)
			if err != nil {
				return err
			}
			result, err := p.Validate(a.commandContext(cmd))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.Summary())
			for _, diag := range result.Diagnostics {
				fmt.Fprintf(out, "  %v\n", diag)
			}
			if n := result.Skipped(); n > 0 {
				return errors.NewValidationError("inputs", n, "malformed records found")
			}
			return nil
		},
	}
	addSettingFlags(cmd.Flags())
	return cmd
}

// NewWatchCommand creates the watch command.
func (a *App) NewWatchCommand() *cobra.Command {
	var debounce = constants.WatchDebounce
	cmd := &cobra.Command{
		Use:     "watch",
		GroupID: "core",
		Short:   "Re-run the pipeline whenever an input file changes",
		Long: `Watch performs a run, then re-runs the whole pipeline after every burst of
changes to files matching the input patterns. A failed run is logged and
watching continues. Interrupt to stop.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := a.settingsFor(cmd)
			if err != nil {
				return err
			}
			p, err := a.Pipeline(settings)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			w := watch.New(settings.Inputs, func(ctx context.Context) error {
				result, err := p.Run(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, result.Summary())
				return nil
			}, watch.WithDebounce(debounce), watch.WithIgnore(settings.OutputDir))

			a.logger.Info().Strs("inputs", settings.Inputs).Dur("debounce", debounce).Msg("Watching inputs")
			return w.Run(a.commandContext(cmd))
		},
	}
	addSettingFlags(cmd.Flags())
	cmd.Flags().DurationVar(&debounce, "debounce", constants.WatchDebounce, "quiet period after the last change before a run")
	return cmd
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("directory %s\n", a.version)
			if a.config.Verbose {
				cmd.Printf("  commit:   %s\n", a.commit)
				cmd.Printf("  built:    %s\n", a.date)
				cmd.Printf("  built by: %s\n", a.builtBy)
			}
		},
	}
}
