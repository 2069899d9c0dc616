package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sirad/internal/config"
	"github.com/roach88/sirad/internal/layout"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool           `json:"valid"`
	Datasets []DatasetCheck `json:"datasets"`
	Errors   []string       `json:"errors,omitempty"`
}

// DatasetCheck describes one configured dataset.
type DatasetCheck struct {
	Name       string `json:"name"`
	File       string `json:"file"`
	Columns    int    `json:"columns"`
	PII        bool   `json:"pii"`
	FileExists bool   `json:"file_exists"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the config and layouts without touching any store",
		Long: `Load the config file and every CUE layout, and check that each
configured dataset has a layout and a raw file. Nothing is written.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return outputValidateError(formatter, "CONFIG", err)
	}
	formatter.VerboseLog("Loaded config %s (version %s)", opts.Config, cfg.Version)

	layouts, err := layout.Load(cfg.Path(cfg.Layouts))
	if err != nil {
		var lerr *layout.CompileError
		if errors.As(err, &lerr) {
			return outputValidateError(formatter, "LAYOUT", err)
		}
		return outputValidateError(formatter, "CONFIG", err)
	}
	formatter.VerboseLog("Found %d layout(s) in %s", len(layouts), cfg.Path(cfg.Layouts))
	byName := layout.ByName(layouts)

	datasets := cfg.Datasets
	if len(datasets) == 0 {
		for _, l := range layouts {
			datasets = append(datasets, config.Dataset{Name: l.Dataset})
		}
	}

	result := ValidationResult{Valid: true, Datasets: make([]DatasetCheck, 0, len(datasets))}
	for _, d := range datasets {
		check := DatasetCheck{Name: d.Name, File: cfg.DatasetFile(d)}
		l, ok := byName[d.Name]
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("dataset %s: no layout declares this dataset", d.Name))
		} else {
			check.Columns = len(l.Columns)
			check.PII = l.HasPII()
		}
		if _, err := os.Stat(check.File); err == nil {
			check.FileExists = true
		} else {
			result.Errors = append(result.Errors, fmt.Sprintf("dataset %s: raw file not found: %s", d.Name, check.File))
		}
		result.Datasets = append(result.Datasets, check)
	}
	result.Valid = len(result.Errors) == 0

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		fmt.Fprint(formatter.Writer, formatValidation(result))
	}
	if !result.Valid {
		return &ExitError{
			Code:     ExitCommandError,
			Message:  fmt.Sprintf("%d validation error(s)", len(result.Errors)),
			Reported: true,
		}
	}
	return nil
}

func formatValidation(r ValidationResult) string {
	var b strings.Builder
	for _, d := range r.Datasets {
		kind := "data only"
		if d.PII {
			kind = "identifying"
		}
		fmt.Fprintf(&b, "%-20s %2d columns, %s\n", d.Name, d.Columns, kind)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "✗ %s\n", e)
	}
	if r.Valid {
		fmt.Fprintln(&b, "✓ Config valid")
	}
	return b.String()
}

func outputValidateError(f *OutputFormatter, code string, err error) error {
	if outErr := f.Error(code, err.Error(), nil); outErr != nil {
		return outErr
	}
	return &ExitError{Code: ExitCommandError, Message: "validation failed", Err: err, Reported: true}
}
