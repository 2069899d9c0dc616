package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sirad/internal/resolve"
)

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Assign a sirad_id to every PII row",
		Long: `Read the PII table of every configured dataset with identifying
columns, group rows that belong to the same person and replace the
pii.sirad_id mapping.

Rows without an SSN and without a complete name and birth date share one
unlinkable id; they are listed with --verbose for manual review.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(rootOpts, cmd)
		},
	}
	return cmd
}

func runResolve(opts *RootOptions, cmd *cobra.Command) error {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	res, err := s.pipeline.Resolve(ctx)
	if err != nil {
		return stageError("resolve failed", err)
	}
	return s.report(res, formatResolve(res, opts.Verbose))
}

func formatResolve(res resolve.Result, verbose bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "resolved %d rows into %d ids\n", res.Rows, res.Groups)
	for _, k := range []resolve.KeyKind{resolve.KindSSN, resolve.KindNameDOB, resolve.KindUnresolved} {
		fmt.Fprintf(&b, "  %-10s %d\n", k, res.ByKind[k])
	}
	if verbose {
		for _, r := range res.Unresolved {
			fmt.Fprintf(&b, "  review: %s pii_id %d\n", r.Dataset, r.PIIID)
		}
	}
	return b.String()
}
