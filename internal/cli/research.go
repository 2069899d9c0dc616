package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sirad/internal/research"
)

// NewResearchCommand creates the research command.
func NewResearchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "research [dataset...]",
		Short: "Assemble the versioned research store",
		Long: `Build research_v<version>.db from the data store and the identity
mapping. Datasets with identifying columns are keyed by sirad_id; the
rest are copied unchanged. With no arguments every configured dataset
is assembled.

Example:
  sirad research
  sirad research wages --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResearch(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runResearch(opts *RootOptions, datasets []string, cmd *cobra.Command) error {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	m, err := s.pipeline.Assemble(ctx, datasets...)
	if err != nil {
		return stageError("research assembly failed", err)
	}
	return s.report(m, formatManifest(m))
}

func formatManifest(m research.Manifest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "research v%s: %s (build %s)\n", m.Version, m.Store, m.BuildID)
	for _, t := range m.Tables {
		fmt.Fprintf(&b, "  %-20s %-5s %d rows\n", t.Name, t.Source, t.Rows)
	}
	return b.String()
}
