package cli

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/sirad/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Config  string // path to sirad.yaml
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the sirad CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sirad",
		Short: "sirad - de-identified research data builds",
		Long: `Separate administrative datasets into data, PII and link stores,
resolve a pseudonymous sirad_id per person, and assemble research
tables that carry the id but never the identifying columns.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", config.DefaultFile, "path to config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewResearchCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewBuildCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Execute runs the CLI with os.Args and returns the process exit code.
// Errors a command has not printed itself are written in the selected
// format: JSON on stdout, text on stderr.
func Execute() int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || !exitErr.Reported {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.ErrOrStderr(), Verbose: opts.Verbose}
		if f.Format == "json" {
			f.Writer = cmd.OutOrStdout()
		}
		_ = f.Error(errorCode(err), err.Error(), nil)
	}
	return GetExitCode(err)
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
