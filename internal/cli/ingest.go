package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sirad/internal/separate"
)

// IngestResult is the JSON payload of the ingest command.
type IngestResult struct {
	Datasets []DatasetIngest `json:"datasets"`
}

// DatasetIngest summarizes the load of one dataset.
type DatasetIngest struct {
	separate.LoadReport
	Failures []string `json:"failures,omitempty"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [dataset...]",
		Short: "Separate raw files into the data, PII and link stores",
		Long: `Read each dataset's raw file, coerce it through its layout and rebuild
its tables in the data, PII and link stores. Datasets load concurrently,
bounded by ingest_workers. With no arguments every configured dataset is
loaded.

Rows that fail coercion are dropped and reported by line number.

Example:
  sirad ingest
  sirad ingest tax credit_scores --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runIngest(opts *RootOptions, datasets []string, cmd *cobra.Command) error {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	reports, err := s.pipeline.Ingest(ctx, datasets...)
	if err != nil {
		return stageError("ingest failed", err)
	}
	return s.report(newIngestResult(reports), formatIngest(reports, opts.Verbose))
}

func newIngestResult(reports []separate.LoadReport) IngestResult {
	out := IngestResult{Datasets: make([]DatasetIngest, len(reports))}
	for i, r := range reports {
		out.Datasets[i] = DatasetIngest{LoadReport: r}
		for _, f := range r.Failures {
			out.Datasets[i].Failures = append(out.Datasets[i].Failures, f.Error())
		}
	}
	return out
}

func formatIngest(reports []separate.LoadReport, verbose bool) string {
	var b strings.Builder
	for _, r := range reports {
		fmt.Fprintf(&b, "%s: read %d, loaded %d, dropped %d\n", r.Dataset, r.Read, r.Loaded, r.Dropped)
		if verbose {
			for _, f := range r.Failures {
				fmt.Fprintf(&b, "  %v\n", f)
			}
		}
	}
	return b.String()
}
